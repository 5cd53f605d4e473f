package trace

import (
	"encoding/csv"
	"os"
	"sort"
	"strconv"

	"github.com/pkg/errors"
)

// exportColumns is the header row of an exported trace, one row per event and slice.
var exportColumns = []string{"clock", "event", "job_id", "continuation", "backfilled", "node", "start", "end", "cpus", "memory_mb", "disk_mb"}

type exportRow struct {
	clock int64
	event string
	seq   int
	cols  []string
}

// ExportCSV writes every recorded event to path in clock order. Job events
// produce one row per slice; phase events produce a single row with empty
// slice columns.
func ExportCSV(st *SimulationTrace, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "creating trace file")
	}
	defer func() { _ = file.Close() }()

	writer := csv.NewWriter(file)

	if err := writer.Write(exportColumns); err != nil {
		return errors.Wrap(err, "writing CSV header")
	}
	for _, row := range exportRows(st) {
		if err := writer.Write(row.cols); err != nil {
			return errors.Wrapf(err, "writing CSV row at %d", row.clock)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return errors.Wrap(err, "flushing trace file")
	}
	return nil
}

func exportRows(st *SimulationTrace) []exportRow {
	if st == nil {
		return nil
	}
	var rows []exportRow
	addJob := func(event string, r JobRecord) {
		base := []string{
			strconv.FormatInt(r.Clock, 10), event, strconv.FormatInt(r.JobID, 10),
			strconv.FormatBool(r.Continuation), strconv.FormatBool(r.Backfilled),
		}
		if len(r.Slices) == 0 {
			rows = append(rows, exportRow{clock: r.Clock, event: event, seq: len(rows), cols: append(base, "", "", "", "", "", "")})
			return
		}
		for _, s := range r.Slices {
			cols := append(append([]string(nil), base...),
				strconv.Itoa(s.Node),
				strconv.FormatInt(s.Start, 10),
				strconv.FormatInt(s.End, 10),
				strconv.FormatInt(s.CPUs, 10),
				strconv.FormatInt(s.Memory, 10),
				strconv.FormatInt(s.Disk, 10),
			)
			rows = append(rows, exportRow{clock: r.Clock, event: event, seq: len(rows), cols: cols})
		}
	}
	addPhase := func(event string, r PhaseRecord) {
		cols := []string{strconv.FormatInt(r.Clock, 10), event, strconv.FormatInt(r.JobID, 10), "", "", "", "", "", "", "", ""}
		rows = append(rows, exportRow{clock: r.Clock, event: event, seq: len(rows), cols: cols})
	}
	for _, r := range st.Starts {
		addJob("start", r)
	}
	for _, r := range st.Ends {
		addJob("end", r)
	}
	for _, r := range st.ComputeBegins {
		addPhase("begin_compute", r)
	}
	for _, r := range st.ComputeEnds {
		addPhase("end_compute", r)
	}
	// Ends sort before starts at the same clock so freed nodes read naturally.
	rank := map[string]int{"end": 0, "end_compute": 1, "begin_compute": 2, "start": 3}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].clock != rows[j].clock {
			return rows[i].clock < rows[j].clock
		}
		if rank[rows[i].event] != rank[rows[j].event] {
			return rank[rows[i].event] < rank[rows[j].event]
		}
		return rows[i].seq < rows[j].seq
	})
	return rows
}
