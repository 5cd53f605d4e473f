package workload

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/mattn/go-zglob"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/hpcsim/hpcsim/sim"
)

// ExpandPaths resolves glob patterns (including "**") into a sorted,
// de-duplicated list of files. A pattern matching nothing is an error.
func ExpandPaths(patterns []string) ([]string, error) {
	seen := make(map[string]bool)
	var paths []string
	for _, pattern := range patterns {
		matches, err := zglob.Glob(pattern)
		if err != nil {
			return nil, errors.WithMessagef(err, "expanding %q", pattern)
		}
		if len(matches) == 0 {
			return nil, errors.Errorf("no workload files match %q", pattern)
		}
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				paths = append(paths, m)
			}
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// LoadOptions control Load.
type LoadOptions struct {
	SWF SWFOptions
	// OverridesPath, when set, is applied to the loaded jobs.
	OverridesPath string
}

// Load reads every file matched by patterns, choosing the reader by
// extension: .swf for SWF traces, .yaml or .yml for workload specs.
func Load(patterns []string, opts LoadOptions) ([]*sim.Job, error) {
	paths, err := ExpandPaths(patterns)
	if err != nil {
		return nil, err
	}
	var jobs []*sim.Job
	for _, path := range paths {
		loaded, err := loadFile(path, opts)
		if err != nil {
			return nil, err
		}
		logrus.Infof("loaded %d jobs from %s", len(loaded), path)
		jobs = append(jobs, loaded...)
	}
	if opts.OverridesPath != "" {
		overrides, err := LoadOverrides(opts.OverridesPath)
		if err != nil {
			return nil, err
		}
		if err := overrides.Apply(jobs); err != nil {
			return nil, errors.WithMessagef(err, "applying %s", opts.OverridesPath)
		}
	}
	return jobs, nil
}

func loadFile(path string, opts LoadOptions) ([]*sim.Job, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".swf":
		trace, err := LoadSWF(path, opts.SWF)
		if err != nil {
			return nil, err
		}
		return trace.Jobs, nil
	case ".yaml", ".yml":
		spec, err := LoadWorkloadSpec(path)
		if err != nil {
			return nil, errors.WithMessagef(err, "loading %s", path)
		}
		jobs, err := spec.BuildJobs()
		if err != nil {
			return nil, errors.WithMessagef(err, "building %s", path)
		}
		return jobs, nil
	default:
		return nil, errors.Errorf("unsupported workload file %s: want .swf, .yaml or .yml", path)
	}
}
