// Package sim provides the discrete-event engine that simulates HPC batch
// scheduling.
//
// # Reading Guide
//
// Start with these files to understand the simulation kernel:
//   - job.go: Job lifecycle (pending → queued → scheduled → running → completed/killed)
//   - rrt.go: the reservation table, one time-ordered bucket sequence per node
//   - policy.go: the Policy interface and the placement logic shared by policies
//   - simulator.go: the event loop and event dispatch
//
// # Architecture
//
// The sim package holds the core; collaborators live in sub-packages:
//   - sim/workload/: SWF traces, YAML job lists, overrides and synthetic workloads
//   - sim/arch/: cluster descriptions producing the node list
//   - sim/stats/: distributions, per-job tables and Prometheus export
//   - sim/trace/: job start/end and compute-phase trace records
//
// # Key Interfaces
//
//   - Policy: arrive, schedule, backfill, start and finish jobs on one partition.
//     FCFSPolicy and SLURMPolicy are the implementations.
//   - EventScheduler: what a policy may ask of the engine (insert, ensure and
//     delete events).
//   - SelectionStrategy: pick concrete nodes out of a feasible allocation
//     (first-fit, best-fit).
//   - trace.Tracer: receives job notifications when tracing is enabled.
//
// Invariant violations (an event in the past, a job without the reservation it
// must hold, an allocation that cannot be deallocated) panic. Infeasible
// placement is a value: Allocation.Feasible, Reason and NextRetry.
package sim
