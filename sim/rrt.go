// Implements the resource reservation table: for every node, a contiguous
// sequence of buckets from the current time to infinity recording free
// resources and which jobs reserve what.

package sim

import (
	"fmt"
	"sort"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Reservation is the registry entry of a job's single live allocation.
type Reservation struct {
	Job    JobID
	Start  int64
	End    int64
	Shares map[int]Resources // node ID -> amount held on that node
}

// Nodes returns the reserved node IDs in ascending order.
func (r *Reservation) Nodes() []int {
	nodes := maps.Keys(r.Shares)
	slices.Sort(nodes)
	return nodes
}

// Total returns the amount reserved over all nodes.
func (r *Reservation) Total() Resources {
	var sum Resources
	for _, s := range r.Shares {
		sum = sum.Add(s)
	}
	return sum
}

func (r *Reservation) clone() Reservation {
	c := *r
	c.Shares = make(map[int]Resources, len(r.Shares))
	for n, s := range r.Shares {
		c.Shares[n] = s
	}
	return c
}

// ReservationTable records, per node, the free resources over time and the
// reservations of every job. Each job holds at most one reservation.
type ReservationTable struct {
	nodes           []Node
	pos             map[int]int // node ID -> index into nodes/buckets
	buckets         [][]*Bucket
	registry        map[JobID]*Reservation
	now             int64
	nextID          uint64
	reserveFullNode bool
}

// NewReservationTable returns a table over nodes with every node entirely
// free from now on.
func NewReservationTable(nodes []Node, now int64, reserveFullNode bool) *ReservationTable {
	if len(nodes) == 0 {
		panic("NewReservationTable: no nodes")
	}
	sorted := append([]Node(nil), nodes...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	t := &ReservationTable{
		nodes:           sorted,
		pos:             make(map[int]int, len(sorted)),
		buckets:         make([][]*Bucket, len(sorted)),
		registry:        make(map[JobID]*Reservation),
		now:             now,
		reserveFullNode: reserveFullNode,
	}
	for i, n := range sorted {
		if _, dup := t.pos[n.ID]; dup {
			panic(fmt.Sprintf("NewReservationTable: duplicate node %d", n.ID))
		}
		t.pos[n.ID] = i
		t.buckets[i] = []*Bucket{newBucket(t.newID(), n.ID, now, OpenEnded, n.Capacity)}
	}
	return t
}

func (t *ReservationTable) newID() uint64 {
	t.nextID++
	return t.nextID
}

// Now returns the time the table was last advanced to.
func (t *ReservationTable) Now() int64 { return t.now }

// Nodes returns the table's nodes in ascending ID order.
func (t *ReservationTable) Nodes() []Node { return t.nodes }

// HasNode reports whether the node belongs to this table.
func (t *ReservationTable) HasNode(id int) bool {
	_, ok := t.pos[id]
	return ok
}

// Capacity returns the summed capacity of all nodes.
func (t *ReservationTable) Capacity() Resources {
	var sum Resources
	for _, n := range t.nodes {
		sum = sum.Add(n.Capacity)
	}
	return sum
}

// NodeCapacity returns the capacity of one node.
func (t *ReservationTable) NodeCapacity(id int) Resources {
	return t.nodes[t.position(id)].Capacity
}

// Reservation returns a copy of the job's live reservation.
func (t *ReservationTable) Reservation(job JobID) (Reservation, bool) {
	r, ok := t.registry[job]
	if !ok {
		return Reservation{}, false
	}
	return r.clone(), true
}

// Reservations returns the number of live reservations.
func (t *ReservationTable) Reservations() int { return len(t.registry) }

// Buckets returns the node's bucket sequence. Callers must not modify it.
func (t *ReservationTable) Buckets(node int) []*Bucket {
	return t.buckets[t.position(node)]
}

// UsedAt returns the resources reserved at time at, summed over nodes.
func (t *ReservationTable) UsedAt(at int64) Resources {
	var used Resources
	for i, n := range t.nodes {
		b := t.buckets[i][t.locate(i, at)]
		used = used.Add(n.Capacity.Sub(b.Free))
	}
	return used
}

// Advance moves the table's origin to now, dropping buckets that ended before
// it and clipping the first remaining bucket.
func (t *ReservationTable) Advance(now int64) {
	if now < t.now {
		panic(fmt.Sprintf("ReservationTable.Advance: time went backwards: %d < %d", now, t.now))
	}
	if now == t.now {
		return
	}
	t.now = now
	for i, bs := range t.buckets {
		k := sort.Search(len(bs), func(k int) bool { return bs[k].End >= now })
		bs = bs[k:]
		if bs[0].Start < now {
			bs[0].Start = now
		}
		t.buckets[i] = bs
	}
}

// FindFirstBucket returns a synthetic bucket spanning [time, time+length-1]
// on node whose Free is the component-wise minimum over every overlapped
// bucket, together with the earliest time after which resources held in the
// window are released. nextRelease is OpenEnded when nothing in the window is
// reserved.
func (t *ReservationTable) FindFirstBucket(time, length int64, node int) (*Bucket, int64) {
	if length < 1 {
		panic(fmt.Sprintf("FindFirstBucket: non-positive length %d", length))
	}
	if time < t.now {
		panic(fmt.Sprintf("FindFirstBucket: time %d is before table origin %d", time, t.now))
	}
	p := t.position(node)
	capacity := t.nodes[p].Capacity
	end := windowEnd(time, length)
	bs := t.buckets[p]
	i := t.locate(p, time)
	free := bs[i].Free
	nextRelease := OpenEnded
	for ; i < len(bs) && bs[i].Start <= end; i++ {
		b := bs[i]
		free = free.Min(b.Free)
		if nextRelease == OpenEnded && b.Free != capacity && b.End != OpenEnded {
			nextRelease = b.End + 1
		}
	}
	return &Bucket{Node: node, Start: time, End: end, Free: free}, nextRelease
}

// FindPossibleAllocation checks whether demand fits in [time, time+length-1]
// using only the candidate nodes (all nodes when candidates is nil). It never
// mutates the table.
func (t *ReservationTable) FindPossibleAllocation(d Demand, time, length int64, candidates []int) Allocation {
	if d.CPUs <= 0 {
		panic(fmt.Sprintf("FindPossibleAllocation: non-positive CPU demand %d", d.CPUs))
	}
	a := Allocation{Start: time, End: windowEnd(time, length), NextRetry: OpenEnded}
	nodes := t.nodeIDs(candidates)
	var freeCPUs int64
	for _, id := range nodes {
		b, next := t.FindFirstBucket(time, length, id)
		a.NextRetry = min(a.NextRetry, next)
		if t.reserveFullNode && b.Free != t.NodeCapacity(id) {
			continue
		}
		freeCPUs += b.Free.CPUs
		usable := d.usableCPUs(b.Free)
		if usable == 0 {
			continue
		}
		a.Candidates = append(a.Candidates, Candidate{Node: id, Free: b.Free, Usable: usable})
		a.Available += usable
	}
	switch {
	case a.Available >= d.CPUs:
		a.Feasible = true
	case candidates != nil:
		a.Reason = ReasonCollision
	case freeCPUs >= d.CPUs:
		a.Reason = ReasonInsufficientResources
	default:
		a.Reason = ReasonInsufficientCPUs
	}
	return a
}

// FindAllocation searches forward from `from`, following NextRetry, until the
// demand fits or no retry can help.
func (t *ReservationTable) FindAllocation(d Demand, from, length int64, candidates []int) Allocation {
	at := from
	for {
		a := t.FindPossibleAllocation(d, at, length, candidates)
		if a.Feasible || a.NextRetry == OpenEnded {
			return a
		}
		if a.NextRetry <= at {
			panic(fmt.Sprintf("FindAllocation: retry %d does not advance past %d", a.NextRetry, at))
		}
		at = a.NextRetry
	}
}

// AllocateJob commits the selected shares of a for job over [a.Start, a.End].
func (t *ReservationTable) AllocateJob(job JobID, a Allocation) {
	if _, ok := t.registry[job]; ok {
		panic(fmt.Sprintf("AllocateJob: job %d already holds a reservation", job))
	}
	if len(a.Shares) == 0 {
		panic(fmt.Sprintf("AllocateJob: allocation for job %d has no shares", job))
	}
	if a.Start < t.now || a.End < a.Start {
		panic(fmt.Sprintf("AllocateJob: invalid window [%d, %d] at %d", a.Start, a.End, t.now))
	}
	r := &Reservation{Job: job, Start: a.Start, End: a.End, Shares: make(map[int]Resources, len(a.Shares))}
	for _, s := range a.Shares {
		if s.Amount.CPUs <= 0 {
			panic(fmt.Sprintf("AllocateJob: empty share on node %d for job %d", s.Node, job))
		}
		p := t.position(s.Node)
		t.splitWindow(p, a.Start, a.End)
		for _, b := range t.window(p, a.Start, a.End) {
			b.Allocate(job, s.Amount)
		}
		r.Shares[s.Node] = r.Shares[s.Node].Add(s.Amount)
		t.merge(p)
	}
	t.registry[job] = r
}

// DeallocateJob releases the job's reservation. It returns false when the job
// holds none.
func (t *ReservationTable) DeallocateJob(job JobID) bool {
	r, ok := t.registry[job]
	if !ok {
		return false
	}
	for _, n := range r.Nodes() {
		p := t.position(n)
		for _, b := range t.window(p, r.Start, r.End) {
			b.Deallocate(job)
		}
		t.merge(p)
	}
	delete(t.registry, job)
	return true
}

// ShrinkJobAllocation releases cpus CPUs of the job's reservation from now to
// its end, taking them from the highest-numbered nodes first. It fails
// without changes when the job does not hold more than cpus CPUs.
func (t *ReservationTable) ShrinkJobAllocation(job JobID, cpus int64) bool {
	r, ok := t.registry[job]
	if !ok || cpus <= 0 || cpus >= r.Total().CPUs {
		return false
	}
	from := max(t.now, r.Start)
	nodes := r.Nodes()
	remaining := cpus
	for i := len(nodes) - 1; i >= 0 && remaining > 0; i-- {
		n := nodes[i]
		held := r.Shares[n]
		take := min(held.CPUs, remaining)
		p := t.position(n)
		t.splitWindow(p, from, r.End)
		for _, b := range t.window(p, from, r.End) {
			b.Shrink(job, take)
		}
		if take == held.CPUs {
			delete(r.Shares, n)
		} else {
			r.Shares[n] = held.Sub(proportionalShare(held, take))
		}
		remaining -= take
		t.merge(p)
	}
	return true
}

// ExpandJobAllocation adds shares to the job's reservation from now to its end.
func (t *ReservationTable) ExpandJobAllocation(job JobID, shares []Share) bool {
	r, ok := t.registry[job]
	if !ok || r.End < t.now {
		return false
	}
	from := max(t.now, r.Start)
	for _, s := range shares {
		p := t.position(s.Node)
		t.splitWindow(p, from, r.End)
		for _, b := range t.window(p, from, r.End) {
			b.Allocate(job, s.Amount)
		}
		r.Shares[s.Node] = r.Shares[s.Node].Add(s.Amount)
		t.merge(p)
	}
	return true
}

// Verify checks the table's structural invariants.
func (t *ReservationTable) Verify() error {
	var result error
	for p, n := range t.nodes {
		bs := t.buckets[p]
		if len(bs) == 0 {
			result = multierror.Append(result, errors.Errorf("node %d has no buckets", n.ID))
			continue
		}
		if bs[0].Start > t.now {
			result = multierror.Append(result, errors.Errorf("node %d starts at %d after origin %d", n.ID, bs[0].Start, t.now))
		}
		if bs[len(bs)-1].End != OpenEnded {
			result = multierror.Append(result, errors.Errorf("node %d does not extend to infinity", n.ID))
		}
		for i, b := range bs {
			if b.End < b.Start {
				result = multierror.Append(result, errors.Errorf("node %d: empty %v", n.ID, b))
			}
			if i > 0 && b.Start != bs[i-1].End+1 {
				result = multierror.Append(result, errors.Errorf("node %d: gap or overlap before %v", n.ID, b))
			}
			if i > 0 && b.Equal(bs[i-1]) {
				result = multierror.Append(result, errors.Errorf("node %d: unmerged neighbours at %d", n.ID, b.Start))
			}
			if b.Free.Add(b.Reserved()) != n.Capacity {
				result = multierror.Append(result, errors.Errorf("node %d: free %v plus reserved %v is not capacity %v", n.ID, b.Free, b.Reserved(), n.Capacity))
			}
			for _, job := range b.Jobs() {
				r, ok := t.registry[job]
				if !ok {
					result = multierror.Append(result, errors.Errorf("node %d: unregistered job %d in %v", n.ID, job, b))
					continue
				}
				if b.Start < r.Start || b.End > r.End {
					result = multierror.Append(result, errors.Errorf("node %d: job %d reserved outside [%d, %d] in %v", n.ID, job, r.Start, r.End, b))
				}
			}
		}
	}
	return result
}

// position maps a node ID to its index. Unknown nodes are a defect.
func (t *ReservationTable) position(node int) int {
	p, ok := t.pos[node]
	if !ok {
		panic(fmt.Sprintf("ReservationTable: unknown node %d", node))
	}
	return p
}

// locate returns the index of the bucket containing at.
func (t *ReservationTable) locate(p int, at int64) int {
	bs := t.buckets[p]
	i := sort.Search(len(bs), func(k int) bool { return bs[k].End >= at })
	if i == len(bs) || bs[i].Start > at {
		panic(fmt.Sprintf("ReservationTable: time %d outside node %d buckets", at, t.nodes[p].ID))
	}
	return i
}

// window returns the buckets of node p overlapping [start, end].
func (t *ReservationTable) window(p int, start, end int64) []*Bucket {
	bs := t.buckets[p]
	i := sort.Search(len(bs), func(k int) bool { return bs[k].End >= start })
	j := i
	for j < len(bs) && bs[j].Start <= end {
		j++
	}
	return bs[i:j]
}

// splitWindow makes start and end+1 bucket boundaries on node p.
func (t *ReservationTable) splitWindow(p int, start, end int64) {
	t.split(p, start)
	if end != OpenEnded {
		t.split(p, end+1)
	}
}

// split makes at the start of a bucket on node p.
func (t *ReservationTable) split(p int, at int64) {
	if at <= t.buckets[p][0].Start {
		return
	}
	i := t.locate(p, at)
	b := t.buckets[p][i]
	if b.Start == at {
		return
	}
	c := b.cloneAt(t.newID(), at, b.End)
	b.End = at - 1
	bs := append(t.buckets[p], nil)
	copy(bs[i+2:], bs[i+1:])
	bs[i+1] = c
	t.buckets[p] = bs
}

// merge coalesces adjacent identical buckets on node p.
func (t *ReservationTable) merge(p int) {
	bs := t.buckets[p]
	out := bs[:1]
	for _, b := range bs[1:] {
		last := out[len(out)-1]
		if last.Equal(b) {
			last.End = b.End
			continue
		}
		out = append(out, b)
	}
	for i := len(out); i < len(bs); i++ {
		bs[i] = nil
	}
	t.buckets[p] = out
}

// nodeIDs returns candidates in ascending order, or every node when nil.
func (t *ReservationTable) nodeIDs(candidates []int) []int {
	if candidates == nil {
		ids := make([]int, len(t.nodes))
		for i, n := range t.nodes {
			ids[i] = n.ID
		}
		return ids
	}
	ids := append([]int(nil), candidates...)
	sort.Ints(ids)
	return ids
}

// windowEnd returns the inclusive end of a window of length starting at time.
func windowEnd(time, length int64) int64 {
	if length >= OpenEnded-time {
		return OpenEnded
	}
	return time + length - 1
}
