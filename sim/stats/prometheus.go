package stats

import (
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hpcsim/hpcsim/sim"
)

// Run is one finished simulation as exported.
type Run struct {
	Metrics *sim.Metrics
	Jobs    []*sim.Job
}

// Exporter collects the results of one or more runs into a private registry.
// Every series carries a policy label.
type Exporter struct {
	registry *prometheus.Registry

	jobs        *prometheus.GaugeVec
	waitSeconds *prometheus.HistogramVec
	bsld        *prometheus.HistogramVec
	makespan    *prometheus.GaugeVec
	utilization *prometheus.GaugeVec
	meanWait    *prometheus.GaugeVec
	passes      *prometheus.GaugeVec
	resizes     *prometheus.GaugeVec
}

// NewExporter registers the simulation metrics on a fresh registry.
func NewExporter() *Exporter {
	e := &Exporter{
		registry: prometheus.NewRegistry(),
		jobs: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "hpcsim",
			Name:      "jobs",
			Help:      "Jobs by final status.",
		}, []string{"policy", "status"}),
		waitSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "hpcsim",
			Name:      "job_wait_seconds",
			Help:      "Time finished jobs spent queued.",
			Buckets:   prometheus.ExponentialBuckets(60, 4, 8),
		}, []string{"policy"}),
		bsld: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "hpcsim",
			Name:      "job_bounded_slowdown",
			Help:      "Bounded slowdown of finished jobs.",
			Buckets:   []float64{1, 2, 5, 10, 50, 100, 1000},
		}, []string{"policy"}),
		makespan: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "hpcsim",
			Name:      "makespan_seconds",
			Help:      "Time from the first start to the last finish.",
		}, []string{"policy"}),
		utilization: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "hpcsim",
			Name:      "mean_utilization_ratio",
			Help:      "Mean sampled fraction of CPUs in use.",
		}, []string{"policy"}),
		meanWait: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "hpcsim",
			Name:      "mean_wait_seconds",
			Help:      "Mean wait of finished jobs.",
		}, []string{"policy"}),
		passes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "hpcsim",
			Name:      "scheduling_passes",
			Help:      "Scheduling passes by kind.",
		}, []string{"policy", "kind"}),
		resizes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "hpcsim",
			Name:      "malleable_resizes",
			Help:      "Malleable resizes by direction.",
		}, []string{"policy", "direction"}),
	}
	e.registry.MustRegister(e.jobs, e.waitSeconds, e.bsld, e.makespan, e.utilization, e.meanWait, e.passes, e.resizes)
	return e
}

// Registry returns the underlying registry.
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}

// Observe records one run.
func (e *Exporter) Observe(run Run) {
	m := run.Metrics
	policy := m.Policy
	for status, n := range map[string]int{
		"completed":  m.Completed,
		"killed":     m.Killed,
		"cancelled":  m.Cancelled,
		"skipped":    m.Skipped,
		"unfinished": m.Unfinished,
		"backfilled": m.Backfilled,
	} {
		e.jobs.WithLabelValues(policy, status).Set(float64(n))
	}
	for _, j := range run.Jobs {
		if j.Status != sim.JobCompleted && j.Status != sim.JobKilled {
			continue
		}
		e.waitSeconds.WithLabelValues(policy).Observe(float64(j.WaitTime))
		e.bsld.WithLabelValues(policy).Observe(j.BoundedSlowdown)
	}
	e.makespan.WithLabelValues(policy).Set(float64(m.Makespan()))
	e.utilization.WithLabelValues(policy).Set(m.MeanUtilization())
	e.meanWait.WithLabelValues(policy).Set(m.MeanWait())
	e.passes.WithLabelValues(policy, "schedule").Set(float64(m.Stats.Passes))
	e.passes.WithLabelValues(policy, "backfill").Set(float64(m.Stats.BackfillPasses))
	e.resizes.WithLabelValues(policy, "shrink").Set(float64(m.Stats.Shrinks))
	e.resizes.WithLabelValues(policy, "expand").Set(float64(m.Stats.Expansions))
}

// WriteTextfile writes every collected series in the Prometheus text format.
func (e *Exporter) WriteTextfile(path string) error {
	return errors.Wrap(prometheus.WriteToTextfile(path, e.registry), "writing metrics textfile")
}
