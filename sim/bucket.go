package sim

import (
	"fmt"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Bucket is a maximal time interval [Start, End] on one node during which the
// node's free resources and its set of reserving jobs are constant.
type Bucket struct {
	id    uint64
	Node  int
	Start int64
	End   int64 // inclusive; OpenEnded for the last bucket of a node
	Free  Resources
	jobs  map[JobID]Resources
}

func newBucket(id uint64, node int, start, end int64, free Resources) *Bucket {
	return &Bucket{id: id, Node: node, Start: start, End: end, Free: free, jobs: make(map[JobID]Resources)}
}

// ID returns the bucket's table-unique identifier.
func (b *Bucket) ID() uint64 { return b.id }

func (b *Bucket) String() string {
	end := fmt.Sprint(b.End)
	if b.End == OpenEnded {
		end = "inf"
	}
	return fmt.Sprintf("Bucket: (Node: %d, [%d, %s], Free: %v, Jobs: %d)", b.Node, b.Start, end, b.Free, len(b.jobs))
}

// Contains reports whether t falls inside the bucket.
func (b *Bucket) Contains(t int64) bool {
	return b.Start <= t && t <= b.End
}

// Overlaps reports whether the bucket intersects [start, end].
func (b *Bucket) Overlaps(start, end int64) bool {
	return b.Start <= end && start <= b.End
}

// Holds returns the amount reserved by job in this bucket.
func (b *Bucket) Holds(job JobID) (Resources, bool) {
	r, ok := b.jobs[job]
	return r, ok
}

// Jobs returns the IDs of the reserving jobs in ascending order.
func (b *Bucket) Jobs() []JobID {
	ids := maps.Keys(b.jobs)
	slices.Sort(ids)
	return ids
}

// Reserved returns the sum of all reservations in the bucket.
func (b *Bucket) Reserved() Resources {
	var sum Resources
	for _, r := range b.jobs {
		sum = sum.Add(r)
	}
	return sum
}

// Allocate reserves amount for job, adding to any amount it already holds.
// Exceeding the free resources or touching bandwidth is a defect.
func (b *Bucket) Allocate(job JobID, amount Resources) {
	if amount.UsesBandwidth() {
		panic(fmt.Sprintf("Allocate: job %d requests bandwidth %+v, which is not supported", job, amount))
	}
	if !b.Free.Covers(amount) {
		panic(fmt.Sprintf("Allocate: job %d wants %v but %v has only %v free", job, amount, b, b.Free))
	}
	b.Free = b.Free.Sub(amount)
	b.jobs[job] = b.jobs[job].Add(amount)
}

// Expand grows an existing reservation of job by amount.
func (b *Bucket) Expand(job JobID, amount Resources) {
	if _, ok := b.jobs[job]; !ok {
		panic(fmt.Sprintf("Expand: job %d holds nothing in %v", job, b))
	}
	b.Allocate(job, amount)
}

// Deallocate releases everything job holds in the bucket.
func (b *Bucket) Deallocate(job JobID) bool {
	held, ok := b.jobs[job]
	if !ok {
		return false
	}
	b.Free = b.Free.Add(held)
	delete(b.jobs, job)
	return true
}

// Shrink releases up to cpus CPUs of job's reservation, with memory and disk
// released in proportion. It returns the CPUs released and the CPUs the job
// still holds in the bucket.
func (b *Bucket) Shrink(job JobID, cpus int64) (released, remaining int64) {
	held, ok := b.jobs[job]
	if !ok || cpus <= 0 {
		return 0, held.CPUs
	}
	if cpus >= held.CPUs {
		b.Deallocate(job)
		return held.CPUs, 0
	}
	freed := proportionalShare(held, cpus)
	b.Free = b.Free.Add(freed)
	b.jobs[job] = held.Sub(freed)
	return cpus, held.CPUs - cpus
}

// Equal reports whether two buckets carry identical free resources and
// identical reservations. Adjacent equal buckets are merged.
func (b *Bucket) Equal(o *Bucket) bool {
	if b.Node != o.Node || b.Free != o.Free || len(b.jobs) != len(o.jobs) {
		return false
	}
	for id, r := range b.jobs {
		if or, ok := o.jobs[id]; !ok || or != r {
			return false
		}
	}
	return true
}

// cloneAt returns a copy of b covering [start, end] under a new ID.
func (b *Bucket) cloneAt(id uint64, start, end int64) *Bucket {
	c := newBucket(id, b.Node, start, end, b.Free)
	for j, r := range b.jobs {
		c.jobs[j] = r
	}
	return c
}

// proportionalShare returns the slice of held corresponding to cpus of its CPUs.
func proportionalShare(held Resources, cpus int64) Resources {
	if held.CPUs == 0 {
		return Resources{}
	}
	return Resources{
		CPUs:   cpus,
		Memory: held.Memory * cpus / held.CPUs,
		Disk:   held.Disk * cpus / held.CPUs,
	}
}
