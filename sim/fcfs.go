package sim

// FCFSPolicy starts jobs strictly in arrival order and backfills the jobs
// behind a blocked head with future reservations.
type FCFSPolicy struct {
	policyBase
}

func (p *FCFSPolicy) Name() string { return PolicyFCFS }

func (p *FCFSPolicy) Arrive(job *Job) { p.arrive(job) }

// Schedule runs one pass: release the provisional reservations of waiting
// jobs, start jobs in arrival order until the first one that does not fit,
// grow malleable jobs, then backfill the rest.
func (p *FCFSPolicy) Schedule() {
	p.stats.Passes++
	for _, j := range p.waiting.Items() {
		p.table.DeallocateJob(j.ID)
	}

	var blocked []*Job
	for _, j := range p.waiting.Items() {
		if !p.admissible(j) {
			continue
		}
		if len(blocked) > 0 {
			blocked = append(blocked, j)
			continue
		}
		if _, ok := p.tryStart(j, nil, false, true); !ok {
			blocked = append(blocked, j)
		}
	}

	if p.cfg.MalleableExpand {
		p.expandRunning()
	}
	p.backfill(blocked)
}

// backfill starts blocked jobs that fit now without touching earlier
// reservations, and reserves future windows for up to ReservationDepth of
// the rest. Reservations stay provisional: the job remains queued and the
// next pass releases and re-plans it.
func (p *FCFSPolicy) backfill(blocked []*Job) {
	if len(blocked) == 0 {
		return
	}
	p.stats.BackfillPasses++
	reserved := 0
	for i, j := range blocked {
		first := Allocation{}
		if i > 0 {
			var ok bool
			if first, ok = p.tryStart(j, nil, true, false); ok {
				continue
			}
		} else {
			first = p.table.FindPossibleAllocation(j.Demand(), p.events.Now(), j.Walltime(), nil)
		}
		if reserved >= p.cfg.ReservationDepth {
			continue
		}
		a := p.futureAllocation(j, first, nil)
		if !a.Feasible {
			p.log.Debugf("job %d has no future window (%s)", j.ID, a.Reason)
			continue
		}
		p.reserve(j, a)
		reserved++
		p.stats.Reserved++
		p.events.EnsureScheduled(EventSchedule, a.Start)
		p.log.Debugf("job %d reserved at %d", j.ID, a.Start)
	}
}

// Backfill is part of every Schedule pass.
func (p *FCFSPolicy) Backfill() {}

func (p *FCFSPolicy) JobStart(job *Job)        { p.jobStart(job) }
func (p *FCFSPolicy) JobFinish(job *Job)       { p.jobFinish(job) }
func (p *FCFSPolicy) JobBeginCompute(job *Job) { p.jobBeginCompute(job) }
func (p *FCFSPolicy) JobEndCompute(job *Job)   { p.jobEndCompute(job) }
