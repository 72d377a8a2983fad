package uica

// ReorderBuffer is a bounded FIFO of FusedUops retiring in strict program
// order (spec.md §4.5).
type ReorderBuffer struct {
	cfg   *MicroArchConfig
	log   *EventLog
	stats *runStats

	queue []*FusedUop

	retireIdxCounter int64
	totalRetired     int64
	lastRetireCycle  int64
	firstRetireCycle int64
}

// NewReorderBuffer creates an RB for the given microarchitecture.
func NewReorderBuffer(cfg *MicroArchConfig, log *EventLog, stats *runStats) *ReorderBuffer {
	return &ReorderBuffer{cfg: cfg, log: log, stats: stats, firstRetireCycle: -1}
}

// Full reports whether the RB cannot accept a full issue-width batch this
// cycle (spec.md §4.5: "Full when len + issueWidth > RBWidth").
func (rb *ReorderBuffer) Full() bool {
	return len(rb.queue)+rb.cfg.IssueWidth > rb.cfg.RBWidth
}

// Cycle retires up to retireWidth fused uops from the head (only those
// whose constituent uops have all executed strictly before the current
// clock), then appends newly issued fused uops. On append, a uop with no
// possible ports or already eliminated is marked executed immediately
// (spec.md §4.5).
func (rb *ReorderBuffer) Cycle(clock int64, newlyIssued []*FusedUop) {
	retired := 0
	for retired < rb.cfg.RetireWidth && len(rb.queue) > 0 {
		head := rb.queue[0]
		if !head.retireReady(clock) {
			break
		}
		head.Retired = clock
		head.RetireIdx = rb.retireIdxCounter
		rb.retireIdxCounter++
		rb.queue = rb.queue[1:]
		retired++
		rb.totalRetired++
		rb.log.Record(clock, EventRetired)
		rb.log.Record(clock, EventRemovedFromRB)
		if len(head.Uops) > 0 && head.Uops[0].Instance != nil {
			rb.stats.lastRetireCycleByRound[head.Uops[0].Instance.Round] = clock
		}

		if rb.firstRetireCycle < 0 {
			rb.firstRetireCycle = clock
		}
		rb.lastRetireCycle = clock
	}

	if retired > 0 {
		rb.stats.totalRetired += int64(retired)
		if rb.firstRetireCycle >= 0 {
			rb.stats.retireCycleSpan = rb.lastRetireCycle - rb.firstRetireCycle + 1
		}
	}

	for _, f := range newlyIssued {
		for _, u := range f.Uops {
			if !u.possiblePorts() || u.Eliminated {
				u.Executed = clock
				u.hasExecuted = true
			}
		}
		rb.queue = append(rb.queue, f)
		rb.log.Record(clock, EventAddedToRB)
	}

	if rb.Full() {
		rb.log.Record(clock, EventRBFull)
		rb.stats.backendEverFull = true
	}
}

// Len returns the current occupancy.
func (rb *ReorderBuffer) Len() int {
	return len(rb.queue)
}

// Empty reports whether the RB currently holds no fused uops.
func (rb *ReorderBuffer) Empty() bool {
	return len(rb.queue) == 0
}
