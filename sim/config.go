package sim

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
)

const (
	PolicyFCFS  = "fcfs"
	PolicySLURM = "slurm"
)

// ValidPolicies is the set of recognized scheduling policy names.
var ValidPolicies = map[string]bool{"": true, PolicyFCFS: true, PolicySLURM: true}

// PolicyConfig gathers every scheduling knob. Field tags serve both the
// viper/mapstructure loader and YAML round-trips.
type PolicyConfig struct {
	Policy            string  `mapstructure:"policy" yaml:"policy"`                         // "fcfs" (default) or "slurm"
	Selection         string  `mapstructure:"selection" yaml:"selection"`                   // "first-fit" (default) or "best-fit"
	MalleableExpand   bool    `mapstructure:"malleable_expand" yaml:"malleable_expand"`     // grow running malleable jobs into slack
	MalleableShrink   bool    `mapstructure:"malleable_shrink" yaml:"malleable_shrink"`     // shrink running malleable jobs to unblock the head
	ReservationDepth  int     `mapstructure:"reservation_depth" yaml:"reservation_depth"`   // future reservations per backfill pass
	ReserveFullNode   bool    `mapstructure:"reserve_full_node" yaml:"reserve_full_node"`   // never share a node between jobs
	PriorityWindow    int     `mapstructure:"priority_window" yaml:"priority_window"`       // SLURM jobs placed per pass; 0 = all
	SchedulerInterval int64   `mapstructure:"scheduler_interval" yaml:"scheduler_interval"` // SLURM minimum seconds between passes
	BackfillDelay     int64   `mapstructure:"backfill_delay" yaml:"backfill_delay"`         // SLURM seconds from a pass to its backfill
	PersistentMemory  bool    `mapstructure:"persistent_memory" yaml:"persistent_memory"`   // shorten and pin workflow continuations
	CPUFactor         float64 `mapstructure:"cpu_factor" yaml:"cpu_factor"`                 // runtime emulation scale
	Tracing           bool    `mapstructure:"tracing" yaml:"tracing"`
	MultiPartition    bool    `mapstructure:"multi_partition" yaml:"multi_partition"` // one policy per partition
}

// DefaultPolicyConfig returns the configuration used when nothing is set.
func DefaultPolicyConfig() PolicyConfig {
	return PolicyConfig{
		Policy:            PolicyFCFS,
		Selection:         SelectFirstFit,
		ReservationDepth:  1,
		SchedulerInterval: 1,
		CPUFactor:         1,
	}
}

// Validate reports every invalid field at once.
func (c PolicyConfig) Validate() error {
	var result error
	if !ValidPolicies[c.Policy] {
		result = multierror.Append(result, fmt.Errorf("unknown policy %q", c.Policy))
	}
	if !IsValidSelectionStrategy(c.Selection) {
		result = multierror.Append(result, fmt.Errorf("unknown selection strategy %q (valid: %v)", c.Selection, ValidSelectionStrategyNames()))
	}
	if c.ReservationDepth < 0 {
		result = multierror.Append(result, fmt.Errorf("reservation_depth must be non-negative, got %d", c.ReservationDepth))
	}
	if c.PriorityWindow < 0 {
		result = multierror.Append(result, fmt.Errorf("priority_window must be non-negative, got %d", c.PriorityWindow))
	}
	if c.SchedulerInterval < 0 {
		result = multierror.Append(result, fmt.Errorf("scheduler_interval must be non-negative, got %d", c.SchedulerInterval))
	}
	if c.BackfillDelay < 0 {
		result = multierror.Append(result, fmt.Errorf("backfill_delay must be non-negative, got %d", c.BackfillDelay))
	}
	if c.CPUFactor <= 0 {
		result = multierror.Append(result, fmt.Errorf("cpu_factor must be positive, got %f", c.CPUFactor))
	}
	return result
}

// SimConfig holds engine-level settings.
type SimConfig struct {
	ArrivalFactor float64 `mapstructure:"arrival_factor" yaml:"arrival_factor"` // scales submit times; < 1 raises load
	StatsInterval int64   `mapstructure:"stats_interval" yaml:"stats_interval"` // seconds between samples; 0 disables
	BSLDThreshold int64   `mapstructure:"bsld_threshold" yaml:"bsld_threshold"` // bounded slowdown runtime floor
	Horizon       int64   `mapstructure:"horizon" yaml:"horizon"`               // stop after this time; 0 = run to completion
}

// DefaultSimConfig returns the engine defaults.
func DefaultSimConfig() SimConfig {
	return SimConfig{ArrivalFactor: 1, BSLDThreshold: DefaultBSLDThreshold}
}

// Validate reports every invalid field at once.
func (c SimConfig) Validate() error {
	var result error
	if c.ArrivalFactor <= 0 {
		result = multierror.Append(result, fmt.Errorf("arrival_factor must be positive, got %f", c.ArrivalFactor))
	}
	if c.StatsInterval < 0 {
		result = multierror.Append(result, fmt.Errorf("stats_interval must be non-negative, got %d", c.StatsInterval))
	}
	if c.BSLDThreshold < 1 {
		result = multierror.Append(result, fmt.Errorf("bsld_threshold must be at least 1, got %d", c.BSLDThreshold))
	}
	if c.Horizon < 0 {
		result = multierror.Append(result, fmt.Errorf("horizon must be non-negative, got %d", c.Horizon))
	}
	return result
}
