package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/hpcsim/hpcsim/sim"
	"github.com/hpcsim/hpcsim/sim/arch"
	"github.com/hpcsim/hpcsim/sim/stats"
	"github.com/hpcsim/hpcsim/sim/trace"
	"github.com/hpcsim/hpcsim/sim/workload"
)

// policyRun is one simulation of the workload under a single policy.
type policyRun struct {
	policy string
	sim    *sim.Simulation
	trace  *trace.SimulationTrace // nil unless tracing
}

// loadInputs reads the cluster description and the workload.
func loadInputs(cfg *Config) (*arch.Cluster, []sim.Node, *sim.JobSet, error) {
	cluster, err := arch.Load(cfg.Cluster)
	if err != nil {
		return nil, nil, nil, err
	}
	jobs, err := workload.Load(cfg.Workload, workload.LoadOptions{
		SWF:           workload.SWFOptions{Partitions: cluster.PartitionNumbers(), MaxJobs: cfg.MaxJobs},
		OverridesPath: cfg.Overrides,
	})
	if err != nil {
		return nil, nil, nil, err
	}
	set, err := sim.NewJobSet(jobs)
	if err != nil {
		return nil, nil, nil, errors.Wrap(err, "indexing workload")
	}
	return cluster, cluster.Nodes(), set, nil
}

// execute runs one simulation per policy concurrently, each on its own copy
// of the workload, then reports and writes the outputs.
func execute(ctx context.Context, cfg *Config, out io.Writer) error {
	_, nodes, jobs, err := loadInputs(cfg)
	if err != nil {
		return err
	}
	logrus.Infof("Loaded %d jobs on %d nodes", jobs.Len(), len(nodes))

	runs := make([]*policyRun, len(cfg.Policies))
	for i, policy := range cfg.Policies {
		r := &policyRun{policy: policy}
		var tracer trace.Tracer
		if cfg.Scheduler.Tracing {
			r.trace = trace.NewSimulationTrace(trace.TraceConfig{Level: trace.TraceLevel(cfg.TraceLevel)})
			tracer = r.trace
		}
		r.sim = sim.NewSimulation(cfg.Simulation, cfg.policyConfig(policy), nodes, jobs.Clone(), tracer)
		runs[i] = r
	}

	progressCtx, stopProgress := context.WithCancel(ctx)
	defer stopProgress()
	go reportProgress(progressCtx, runs)

	g, gctx := errgroup.WithContext(ctx)
	for _, r := range runs {
		r := r
		g.Go(func() error {
			return errors.WithMessagef(r.sim.Run(gctx), "policy %s", r.policy)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	stopProgress()

	for _, r := range runs {
		r.sim.Metrics().Print(out)
		stats.Summarize(r.policy, r.sim.Jobs().Jobs()).Print(out)
		if err := r.sim.Orchestrator().Verify(); err != nil {
			logrus.Warnf("policy %s left inconsistent reservations: %v", r.policy, err)
		}
	}
	if cfg.Output.Dir == "" {
		return nil
	}
	return writeOutputs(cfg, runs, out)
}

// reportProgress logs every run's clock and event count on SIGUSR1.
func reportProgress(ctx context.Context, runs []*policyRun) {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGUSR1)
	defer signal.Stop(signals)
	for {
		select {
		case <-ctx.Done():
			return
		case <-signals:
			for _, r := range runs {
				p := r.sim.Progress()
				logrus.WithField("policy", r.policy).Infof("t=%d, %d events processed, %d pending", p.Clock, p.Events, p.Pending)
			}
		}
	}
}

// writeOutputs creates a fresh run directory and writes the configured files.
func writeOutputs(cfg *Config, runs []*policyRun, out io.Writer) error {
	dir := filepath.Join(cfg.Output.Dir, uuid.NewString())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, "creating output directory")
	}
	exporter := stats.NewExporter()
	for _, r := range runs {
		jobs := r.sim.Jobs().Jobs()
		if cfg.Output.Jobs != "" {
			path := filepath.Join(dir, r.policy+"-"+cfg.Output.Jobs)
			if err := stats.WriteJobs(path, stats.Rows(r.policy, jobs)); err != nil {
				return errors.WithMessagef(err, "policy %s", r.policy)
			}
		}
		if cfg.Output.Samples {
			if err := stats.WriteSamples(filepath.Join(dir, r.policy+"-samples.csv"), r.sim.Metrics().Samples); err != nil {
				return errors.WithMessagef(err, "policy %s", r.policy)
			}
		}
		if r.trace != nil {
			if err := trace.ExportCSV(r.trace, filepath.Join(dir, r.policy+"-trace.csv")); err != nil {
				return errors.WithMessagef(err, "policy %s", r.policy)
			}
			summary := trace.Summarize(r.trace)
			logrus.WithField("policy", r.policy).Infof("trace: %d starts, %d ends, %d backfilled, %d nodes used",
				summary.Started, summary.Ended, summary.Backfilled, summary.UniqueNodes)
		}
		exporter.Observe(stats.Run{Metrics: r.sim.Metrics(), Jobs: jobs})
	}
	if cfg.Output.Metrics {
		if err := exporter.WriteTextfile(filepath.Join(dir, "metrics.prom")); err != nil {
			return err
		}
	}
	_, _ = fmt.Fprintf(out, "Results written to %s\n", dir)
	return nil
}
