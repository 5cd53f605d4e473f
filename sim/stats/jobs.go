package stats

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	parquetWriter "github.com/xitongsys/parquet-go/writer"

	"github.com/hpcsim/hpcsim/sim"
)

// JobRow is one finished job as written to CSV and Parquet outputs.
type JobRow struct {
	Policy          string  `parquet:"name=policy, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	ID              int64   `parquet:"name=id, type=INT64"`
	Partition       string  `parquet:"name=partition, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Status          string  `parquet:"name=status, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Submit          int64   `parquet:"name=submit, type=INT64"`
	Arrival         int64   `parquet:"name=arrival, type=INT64"`
	Start           int64   `parquet:"name=start, type=INT64"`
	Finish          int64   `parquet:"name=finish, type=INT64"`
	Wait            int64   `parquet:"name=wait, type=INT64"`
	RunTime         int64   `parquet:"name=run_time, type=INT64"`
	Requested       int64   `parquet:"name=requested, type=INT64"`
	Processors      int64   `parquet:"name=processors, type=INT64"`
	NodesUsed       int32   `parquet:"name=nodes_used, type=INT32"`
	Nodes           string  `parquet:"name=nodes, type=BYTE_ARRAY, convertedtype=UTF8"`
	Backfilled      bool    `parquet:"name=backfilled, type=BOOLEAN"`
	Killed          bool    `parquet:"name=killed, type=BOOLEAN"`
	AllocatedWith   string  `parquet:"name=allocated_with, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Slowdown        float64 `parquet:"name=slowdown, type=DOUBLE"`
	BoundedSlowdown float64 `parquet:"name=bounded_slowdown, type=DOUBLE"`
}

var jobColumns = []string{
	"policy", "id", "partition", "status", "submit", "arrival", "start", "finish", "wait", "run_time",
	"requested", "processors", "nodes_used", "nodes", "backfilled", "killed", "allocated_with", "slowdown", "bounded_slowdown",
}

// Rows converts jobs to output rows in job-number order, skipping jobs that
// never arrived.
func Rows(policy string, jobs []*sim.Job) []JobRow {
	rows := make([]JobRow, 0, len(jobs))
	for _, j := range jobs {
		if j.Status == sim.JobSkipped || j.Status == sim.JobPending {
			continue
		}
		nodes := make([]string, len(j.Nodes))
		for i, n := range j.Nodes {
			nodes[i] = strconv.Itoa(n)
		}
		rows = append(rows, JobRow{
			Policy:          policy,
			ID:              int64(j.ID),
			Partition:       j.Partition,
			Status:          string(j.Status),
			Submit:          j.SubmitTime,
			Arrival:         j.ArrivalTime,
			Start:           j.StartTime,
			Finish:          j.FinishTime,
			Wait:            j.WaitTime,
			RunTime:         j.RunTime,
			Requested:       j.Walltime(),
			Processors:      j.Processors,
			NodesUsed:       int32(j.NodesUsed),
			Nodes:           strings.Join(nodes, " "),
			Backfilled:      j.Backfilled,
			Killed:          j.Killed,
			AllocatedWith:   j.AllocatedWith,
			Slowdown:        j.Slowdown,
			BoundedSlowdown: j.BoundedSlowdown,
		})
	}
	return rows
}

// WriteJobs writes rows to path as Parquet when the extension is .parquet
// and as CSV otherwise.
func WriteJobs(path string, rows []JobRow) error {
	if strings.EqualFold(filepath.Ext(path), ".parquet") {
		return writeJobsParquet(path, rows)
	}
	return writeJobsCSV(path, rows)
}

func writeJobsCSV(path string, rows []JobRow) error {
	file, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "creating job table")
	}
	defer func() { _ = file.Close() }()

	w := csv.NewWriter(file)
	if err := w.Write(jobColumns); err != nil {
		return errors.Wrap(err, "writing CSV header")
	}
	for _, r := range rows {
		record := []string{
			r.Policy, strconv.FormatInt(r.ID, 10), r.Partition, r.Status,
			strconv.FormatInt(r.Submit, 10), strconv.FormatInt(r.Arrival, 10),
			strconv.FormatInt(r.Start, 10), strconv.FormatInt(r.Finish, 10),
			strconv.FormatInt(r.Wait, 10), strconv.FormatInt(r.RunTime, 10),
			strconv.FormatInt(r.Requested, 10), strconv.FormatInt(r.Processors, 10),
			strconv.Itoa(int(r.NodesUsed)), r.Nodes,
			strconv.FormatBool(r.Backfilled), strconv.FormatBool(r.Killed), r.AllocatedWith,
			strconv.FormatFloat(r.Slowdown, 'f', 4, 64), strconv.FormatFloat(r.BoundedSlowdown, 'f', 4, 64),
		}
		if err := w.Write(record); err != nil {
			return errors.Wrapf(err, "writing job %d", r.ID)
		}
	}
	w.Flush()
	return errors.Wrap(w.Error(), "flushing job table")
}

func writeJobsParquet(path string, rows []JobRow) error {
	file, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "creating job table")
	}
	defer func() { _ = file.Close() }()

	pw, err := parquetWriter.NewParquetWriterFromWriter(file, new(JobRow), 1)
	if err != nil {
		return errors.Wrap(err, "creating parquet writer")
	}
	for _, r := range rows {
		if err := pw.Write(r); err != nil {
			return errors.Wrapf(err, "writing job %d", r.ID)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return errors.Wrap(err, "finishing parquet file")
	}
	return nil
}

// WriteSamples writes the utilisation time series of a run as CSV.
func WriteSamples(path string, samples []sim.Sample) error {
	file, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "creating sample table")
	}
	defer func() { _ = file.Close() }()

	w := csv.NewWriter(file)
	_ = w.Write([]string{"time", "waiting", "running", "used_cpus", "total_cpus", "utilization"})
	for _, s := range samples {
		_ = w.Write([]string{
			strconv.FormatInt(s.Time, 10), strconv.Itoa(s.Waiting), strconv.Itoa(s.Running),
			strconv.FormatInt(s.UsedCPUs, 10), strconv.FormatInt(s.TotalCPUs, 10),
			strconv.FormatFloat(s.Utilization(), 'f', 4, 64),
		})
	}
	w.Flush()
	return errors.Wrap(w.Error(), "writing sample table")
}
