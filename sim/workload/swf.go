package workload

import (
	"bufio"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/hpcsim/hpcsim/sim"
)

// swfFields is the number of whitespace-separated fields of an SWF record.
const swfFields = 18

// SWF field positions, zero-based.
const (
	swfJobNumber = iota
	swfSubmitTime
	swfWaitTime
	swfRunTime
	swfAllocatedProcs
	swfAverageCPUTime
	swfUsedMemory
	swfRequestedProcs
	swfRequestedTime
	swfRequestedMemory
	swfStatus
	swfUserID
	swfGroupID
	swfExecutable
	swfQueue
	swfPartition
	swfPrecedingJob
	swfThinkTime
)

// SWFOptions tune how SWF records become jobs.
type SWFOptions struct {
	// Partitions maps SWF partition numbers to partition names. Numbers
	// without an entry are named by their decimal value.
	Partitions map[int]string
	// MaxJobs stops reading after this many records; 0 reads everything.
	MaxJobs int
}

// SWFTrace is a parsed Standard Workload Format file.
type SWFTrace struct {
	// Header holds the "; Key: value" comment lines.
	Header map[string]string
	Jobs   []*sim.Job
}

// LoadSWF reads an SWF file from path.
func LoadSWF(path string, opts SWFOptions) (*SWFTrace, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening SWF workload")
	}
	defer func() { _ = f.Close() }()
	trace, err := ReadSWF(f, opts)
	if err != nil {
		return nil, errors.WithMessagef(err, "reading %s", path)
	}
	return trace, nil
}

// ReadSWF parses SWF records from r. Memory is converted from KB to MB per
// CPU; unknown values (-1) become zero.
func ReadSWF(r io.Reader, opts SWFOptions) (*SWFTrace, error) {
	trace := &SWFTrace{Header: make(map[string]string)}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		if strings.HasPrefix(text, ";") {
			parseSWFHeader(trace.Header, text)
			continue
		}
		job, err := parseSWFRecord(text, opts)
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", line)
		}
		trace.Jobs = append(trace.Jobs, job)
		if opts.MaxJobs > 0 && len(trace.Jobs) >= opts.MaxJobs {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "scanning SWF records")
	}
	logrus.Debugf("read %d SWF records (%d header fields)", len(trace.Jobs), len(trace.Header))
	return trace, nil
}

func parseSWFHeader(header map[string]string, text string) {
	body := strings.TrimSpace(strings.TrimPrefix(text, ";"))
	key, value, ok := strings.Cut(body, ":")
	if !ok {
		return
	}
	key = strings.TrimSpace(key)
	if key == "" || strings.ContainsAny(key, " \t") {
		return
	}
	header[key] = strings.TrimSpace(value)
}

func parseSWFRecord(text string, opts SWFOptions) (*sim.Job, error) {
	fields := strings.Fields(text)
	if len(fields) != swfFields {
		return nil, errors.Errorf("expected %d fields, got %d", swfFields, len(fields))
	}
	var v [swfFields]int64
	for i, f := range fields {
		n, err := parseSWFNumber(f)
		if err != nil {
			return nil, errors.Wrapf(err, "field %d", i+1)
		}
		v[i] = n
	}

	procs := v[swfRequestedProcs]
	if procs <= 0 {
		procs = v[swfAllocatedProcs]
	}
	job := sim.NewJob(sim.JobID(v[swfJobNumber]), max(v[swfSubmitTime], 0), max(v[swfRunTime], 0), v[swfRequestedTime], max(procs, 0))

	memKB := v[swfRequestedMemory]
	if memKB <= 0 {
		memKB = v[swfUsedMemory]
	}
	if memKB > 0 {
		job.MemoryPerCPU = int64(math.Ceil(float64(memKB) / 1024))
	}
	job.UserID = max(v[swfUserID], 0)
	job.GroupID = max(v[swfGroupID], 0)
	if p := v[swfPartition]; p > 0 {
		if name, ok := opts.Partitions[int(p)]; ok {
			job.Partition = name
		} else {
			job.Partition = strconv.FormatInt(p, 10)
		}
	}
	if pred := v[swfPrecedingJob]; pred > 0 && pred != v[swfJobNumber] {
		job.Predecessors = []sim.JobID{sim.JobID(pred)}
	}
	return job, nil
}

// parseSWFNumber accepts integers and the decimals some archives write for
// times and averages, truncating the latter.
func parseSWFNumber(s string) (int64, error) {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, errors.Errorf("invalid number %q", s)
	}
	return int64(f), nil
}
