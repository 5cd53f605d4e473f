package cmd

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/hpcsim/hpcsim/sim"
	"github.com/hpcsim/hpcsim/sim/trace"
)

// Config is a run's full configuration: an optional file (yaml, json or
// toml) overlaid by command-line flags.
type Config struct {
	Policies   []string         `mapstructure:"policies"`
	Scheduler  sim.PolicyConfig `mapstructure:"scheduler"`
	Simulation sim.SimConfig    `mapstructure:"simulation"`
	TraceLevel string           `mapstructure:"trace_level"`
	Cluster    string           `mapstructure:"cluster"`
	Workload   []string         `mapstructure:"workload"`
	Overrides  string           `mapstructure:"overrides"`
	MaxJobs    int              `mapstructure:"max_jobs"`
	Output     OutputConfig     `mapstructure:"output"`
}

// OutputConfig selects the files written per run.
type OutputConfig struct {
	Dir     string `mapstructure:"dir"`     // parent of the per-run directory; empty prints only
	Jobs    string `mapstructure:"jobs"`    // per-job table name; .parquet selects Parquet
	Samples bool   `mapstructure:"samples"` // utilisation time series
	Metrics bool   `mapstructure:"metrics"` // Prometheus text file
}

// flagBindings maps configuration keys to the flags that override them.
var flagBindings = map[string]string{
	"policies":                     "policy",
	"scheduler.selection":          "selection",
	"scheduler.malleable_expand":   "malleable-expand",
	"scheduler.malleable_shrink":   "malleable-shrink",
	"scheduler.reservation_depth":  "reservation-depth",
	"scheduler.reserve_full_node":  "reserve-full-node",
	"scheduler.priority_window":    "priority-window",
	"scheduler.scheduler_interval": "scheduler-interval",
	"scheduler.backfill_delay":     "backfill-delay",
	"scheduler.persistent_memory":  "persistent-memory",
	"scheduler.cpu_factor":         "cpu-factor",
	"scheduler.multi_partition":    "multi-partition",
	"scheduler.tracing":            "tracing",
	"simulation.arrival_factor":    "arrival-factor",
	"simulation.stats_interval":    "stats-interval",
	"simulation.bsld_threshold":    "bsld-threshold",
	"simulation.horizon":           "horizon",
	"trace_level":                  "trace",
	"cluster":                      "cluster",
	"workload":                     "workload",
	"overrides":                    "overrides",
	"max_jobs":                     "max-jobs",
	"output.dir":                   "output-dir",
	"output.jobs":                  "jobs-file",
	"output.samples":               "samples",
	"output.metrics":               "prometheus",
}

// addConfigFlags registers every configuration flag on fs, with defaults
// taken from the scheduler and engine defaults.
func addConfigFlags(fs *pflag.FlagSet) {
	p := sim.DefaultPolicyConfig()
	s := sim.DefaultSimConfig()
	fs.String("config", "", "Scheduler configuration file (yaml, json or toml)")
	fs.StringSlice("policy", []string{p.Policy}, "Comma-separated scheduling policies to simulate (fcfs, slurm)")
	fs.String("selection", p.Selection, "Node selection strategy (first-fit, best-fit)")
	fs.Bool("malleable-expand", p.MalleableExpand, "Grow running malleable jobs into idle CPUs")
	fs.Bool("malleable-shrink", p.MalleableShrink, "Shrink running malleable jobs to start blocked ones")
	fs.Int("reservation-depth", p.ReservationDepth, "Future reservations granted per backfill pass")
	fs.Bool("reserve-full-node", p.ReserveFullNode, "Never share a node between jobs")
	fs.Int("priority-window", p.PriorityWindow, "SLURM jobs placed per scheduling pass (0 = all)")
	fs.Int64("scheduler-interval", p.SchedulerInterval, "SLURM minimum seconds between scheduling passes")
	fs.Int64("backfill-delay", p.BackfillDelay, "SLURM seconds from a scheduling pass to its backfill")
	fs.Bool("persistent-memory", p.PersistentMemory, "Pin workflow continuations to their predecessors' nodes")
	fs.Float64("cpu-factor", p.CPUFactor, "Runtime scale applied to every job")
	fs.Bool("multi-partition", p.MultiPartition, "Run one policy instance per cluster partition")
	fs.Float64("arrival-factor", s.ArrivalFactor, "Submit time scale; below 1 raises the load")
	fs.Int64("stats-interval", s.StatsInterval, "Seconds between utilisation samples (0 disables)")
	fs.Int64("bsld-threshold", s.BSLDThreshold, "Runtime floor of the bounded slowdown, in seconds")
	fs.Int64("horizon", s.Horizon, "Stop the simulation at this time (0 = run to completion)")
	fs.Bool("tracing", p.Tracing, "Record job trace notifications (at jobs level unless --trace is set)")
	fs.String("trace", string(trace.TraceLevelNone), "Trace level (none, jobs, phases)")
	fs.String("cluster", "", "Cluster description YAML")
	fs.StringSlice("workload", nil, "Workload files or glob patterns (.swf, .yaml)")
	fs.String("overrides", "", "YAML overrides applied to the loaded jobs")
	fs.Int("max-jobs", 0, "Read at most this many SWF records per file (0 = all)")
	fs.String("output-dir", "", "Directory under which a per-run output directory is created")
	fs.String("jobs-file", "jobs.csv", "Per-job table name; a .parquet extension writes Parquet")
	fs.Bool("samples", false, "Write the utilisation time series")
	fs.Bool("prometheus", false, "Write a Prometheus text file with run metrics")
}

// loadConfig reads the file named by --config, if any, and overlays the
// flags that were set.
func loadConfig(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	if path, _ := fs.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.WithMessagef(err, "reading configuration %s", path)
		}
	}
	for key, name := range flagBindings {
		if err := v.BindPFlag(key, fs.Lookup(name)); err != nil {
			return nil, errors.Wrapf(err, "binding flag --%s", name)
		}
	}
	var cfg Config
	hooks := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToSliceHookFunc(","),
		mapstructure.StringToTimeDurationHookFunc(),
	))
	if err := v.Unmarshal(&cfg, hooks); err != nil {
		return nil, errors.Wrap(err, "decoding configuration")
	}
	leveled := cfg.TraceLevel != "" && trace.TraceLevel(cfg.TraceLevel) != trace.TraceLevelNone
	if cfg.Scheduler.Tracing && !leveled {
		cfg.TraceLevel = string(trace.TraceLevelJobs)
	}
	cfg.Scheduler.Tracing = cfg.Scheduler.Tracing || leveled
	if err := cfg.Validate(); err != nil {
		return nil, errors.WithMessage(err, "invalid configuration")
	}
	return &cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var result error
	if len(c.Policies) == 0 {
		result = multierror.Append(result, fmt.Errorf("at least one policy is required"))
	}
	seen := make(map[string]bool)
	for _, p := range c.Policies {
		if p == "" || !sim.ValidPolicies[p] {
			result = multierror.Append(result, fmt.Errorf("unknown policy %q", p))
		}
		if seen[p] {
			result = multierror.Append(result, fmt.Errorf("policy %q listed twice", p))
		}
		seen[p] = true
	}
	scheduler := c.Scheduler
	scheduler.Policy = sim.PolicyFCFS
	if err := scheduler.Validate(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := c.Simulation.Validate(); err != nil {
		result = multierror.Append(result, err)
	}
	if !trace.IsValidTraceLevel(c.TraceLevel) {
		result = multierror.Append(result, fmt.Errorf("unknown trace level %q", c.TraceLevel))
	}
	if c.Cluster == "" {
		result = multierror.Append(result, fmt.Errorf("a cluster description is required"))
	}
	if len(c.Workload) == 0 {
		result = multierror.Append(result, fmt.Errorf("at least one workload file is required"))
	}
	if c.MaxJobs < 0 {
		result = multierror.Append(result, fmt.Errorf("max_jobs must be non-negative, got %d", c.MaxJobs))
	}
	return result
}

// policyConfig returns the scheduler settings for one policy.
func (c *Config) policyConfig(policy string) sim.PolicyConfig {
	p := c.Scheduler
	p.Policy = policy
	return p
}
