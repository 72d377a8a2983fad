package uica

import (
	"container/heap"
	"sort"

	"github.com/go-uica/uica/internal/prng"
)

// uopHeap is a min-heap of uops ordered by program-order GlobalIndex,
// giving each port's ready queue oldest-first dispatch priority (spec.md
// §4.6).
type uopHeap []*Uop

func (h uopHeap) Len() int            { return len(h) }
func (h uopHeap) Less(i, j int) bool  { return h[i].GlobalIndex < h[j].GlobalIndex }
func (h uopHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *uopHeap) Push(x interface{}) { *h = append(*h, x.(*Uop)) }
func (h *uopHeap) Pop() interface{} {
	old := *h
	n := len(old)
	v := old[n-1]
	*h = old[:n-1]
	return v
}

// Scheduler assigns ports at issue, tracks readiness, dispatches at most
// one uop per port per cycle, and models the divider, store-fence
// ordering, and per-instruction throughput as shared scarce resources
// (spec.md §4.6). It owns the port-usage counters, ready queues, pending
// set, and blocked-resource map (spec.md §5).
type Scheduler struct {
	cfg   *MicroArchConfig
	log   *EventLog
	stats *runStats
	rng   *prng.Stream

	portHeaps  []uopHeap
	dividerHeap uopHeap

	dividerBusyUntil int64 // clock through which the divider stays busy; -1 if free
	port0Idx         int   // index of the "0" port label in portHeaps, or -1 if absent

	pending    map[int64]*Uop
	dependents map[int64][]*Uop // producer Uop.GlobalIndex -> uops to re-examine when it executes

	notReady         []*Uop
	readyQueueByCycle map[int64][]*Uop

	portUsage            []int64
	portUsageDecrementAt map[int64][]int

	pairNext    map[string]int
	rotateState map[string]int
	hysteresis  map[string]int

	blockedResource map[string]int64

	allLoads  []*Uop
	allStores []*Uop

	clock int64
}

// NewScheduler creates a Scheduler for the given microarchitecture,
// recording events into log and accumulating stats for bottleneck
// classification.
func NewScheduler(cfg *MicroArchConfig, log *EventLog, stats *runStats, seed []byte) *Scheduler {
	s := &Scheduler{
		cfg:                  cfg,
		log:                  log,
		stats:                stats,
		rng:                  prng.New(seed),
		portHeaps:            make([]uopHeap, len(cfg.AllPorts)),
		dividerBusyUntil:     -1,
		port0Idx:             cfg.portIndex("0"),
		pending:              make(map[int64]*Uop),
		dependents:           make(map[int64][]*Uop),
		readyQueueByCycle:    make(map[int64][]*Uop),
		portUsage:            make([]int64, len(cfg.AllPorts)),
		portUsageDecrementAt: make(map[int64][]int),
		pairNext:             make(map[string]int),
		rotateState:          make(map[string]int),
		hysteresis:           make(map[string]int),
		blockedResource:      make(map[string]int64),
	}
	for i := range s.portHeaps {
		heap.Init(&s.portHeaps[i])
	}
	return s
}

// Idle reports whether the scheduler has no outstanding work: nothing
// pending dispatch, nothing awaiting readiness, and every per-port/divider
// ready-queue is empty. Used by the top-level run loop to detect a
// drained pipeline for non-looping (unroll-mode) programs.
func (s *Scheduler) Idle() bool {
	if len(s.pending) > 0 || len(s.notReady) > 0 || len(s.readyQueueByCycle) > 0 {
		return false
	}
	for _, ph := range s.portHeaps {
		if ph.Len() > 0 {
			return false
		}
	}
	return s.dividerHeap.Len() == 0
}

// Issue registers the uops of newly issued fused uops with the scheduler:
// assigns ports, charges port usage, and places each uop in the
// not-ready set for readiness tracking (spec.md §4.6 "Port assignment (at
// issue)").
func (s *Scheduler) Issue(fused []*FusedUop, clock int64) {
	for _, f := range fused {
		for slotIdx, u := range f.Uops {
			if !u.possiblePorts() || u.Eliminated {
				continue
			}
			port := s.assignPort(u, slotIdx, clock)
			u.Port = port
			s.portUsage[port]++
			s.portUsageDecrementAt[clock+1] = append(s.portUsageDecrementAt[clock+1], port)

			if u.Props.IsLoadUop {
				s.allLoads = append(s.allLoads, u)
			}
			if u.Props.IsStoreAddressUop || u.Props.IsStoreDataUop {
				s.allStores = append(s.allStores, u)
			}
			s.notReady = append(s.notReady, u)
		}
	}
}

// assignPort implements the port-assignment heuristics of spec.md §4.6.
func (s *Scheduler) assignPort(u *Uop, slotIdx int, clock int64) int {
	allowed := u.Props.AllowedPorts

	if len(allowed) == 1 {
		return allowed[0]
	}

	if s.cfg.SimplePortAssignment {
		return allowed[s.rng.Intn(len(allowed))]
	}

	key := portSetKey(allowed)

	if len(allowed) == 2 {
		// Round-robin via a per-pair next-pointer, regardless of usage
		// history.
		next := s.pairNext[key] % 2
		s.pairNext[key] = next + 1
		return allowed[next]
	}

	if len(allowed) == 3 {
		// Rotate through a fixed sequence determined by the least-used
		// port, applied per issue slot.
		least := s.leastUsedOf(allowed)
		order := rotateFrom(allowed, least)
		idx := s.rotateState[key] % len(order)
		s.rotateState[key] = idx + 1
		return order[idx]
	}

	if len(s.cfg.AllPorts) >= 10 {
		return s.assignPort10Wide(allowed, slotIdx, key)
	}
	if len(s.cfg.AllPorts) >= 8 {
		return s.assignPort8Wide(allowed, key)
	}

	return s.leastUsedOf(allowed)
}

func (s *Scheduler) leastUsedOf(allowed []int) int {
	best := allowed[0]
	for _, p := range allowed[1:] {
		if s.portUsage[p] < s.portUsage[best] {
			best = p
		}
	}
	return best
}

// assignPort8Wide alternates between the least-used and second-least-used
// port each slot, with a 3-count hysteresis preventing thrashing.
func (s *Scheduler) assignPort8Wide(allowed []int, key string) int {
	sorted := append([]int(nil), allowed...)
	sort.Slice(sorted, func(i, j int) bool { return s.portUsage[sorted[i]] < s.portUsage[sorted[j]] })
	least := sorted[0]
	secondLeast := least
	if len(sorted) > 1 {
		secondLeast = sorted[1]
	}

	count := s.hysteresis[key]
	var chosen int
	if count%2 == 0 {
		chosen = least
	} else {
		chosen = secondLeast
	}
	count++
	if count >= 3 {
		count = 0
	}
	s.hysteresis[key] = count
	return chosen
}

// assignPort10Wide picks the allowed ports whose usage is within 5 of the
// minimum and distributes by slot position: slot 4 takes the least-used,
// slot 3 the second-least-used, and other slots rotate through a
// per-port-combination counter. Usage is read live from portUsage, not
// from a snapshot of the previous cycle, and the rotation counter is not
// reset between cycles.
func (s *Scheduler) assignPort10Wide(allowed []int, slotIdx int, key string) int {
	min := s.portUsage[allowed[0]]
	for _, p := range allowed[1:] {
		if s.portUsage[p] < min {
			min = s.portUsage[p]
		}
	}
	var candidates []int
	for _, p := range allowed {
		if s.portUsage[p]-min <= 5 {
			candidates = append(candidates, p)
		}
	}
	if len(candidates) == 0 {
		candidates = allowed
	}
	sort.Slice(candidates, func(i, j int) bool { return s.portUsage[candidates[i]] < s.portUsage[candidates[j]] })

	switch slotIdx {
	case 4:
		return candidates[0]
	case 3:
		if len(candidates) > 1 {
			return candidates[1]
		}
		return candidates[0]
	default:
		idx := s.rotateState[key] % len(candidates)
		s.rotateState[key] = idx + 1
		return candidates[idx]
	}
}

func portSetKey(ports []int) string {
	sorted := append([]int(nil), ports...)
	sort.Ints(sorted)
	out := make([]byte, 0, len(sorted)*2)
	for _, p := range sorted {
		out = append(out, byte('0'+p%10), ',')
	}
	return string(out)
}

func rotateFrom(ports []int, start int) []int {
	sorted := append([]int(nil), ports...)
	sort.Ints(sorted)
	i := 0
	for idx, p := range sorted {
		if p == start {
			i = idx
			break
		}
	}
	return append(append([]int(nil), sorted[i:]...), sorted[:i]...)
}

// Cycle advances the scheduler by one cycle, in this sub-step order:
// ready-promotion, dispatch, pending-uop finishing, port-usage decrements,
// non-ready re-examination. The divider is charged at dispatch through
// dividerBusyUntil, and blocked resources expire by comparison against
// the clock in computeReadiness, so neither has a step of its own.
func (s *Scheduler) Cycle(clock int64) {
	s.clock = clock

	s.promoteReady(clock)
	s.dispatch(clock)
	s.finishPending(clock)
	s.applyPortUsageDecrements(clock)
	s.reexamineNotReady(clock)
}

func (s *Scheduler) promoteReady(clock int64) {
	ready := s.readyQueueByCycle[clock]
	delete(s.readyQueueByCycle, clock)
	for _, u := range ready {
		heap.Push(&s.portHeaps[u.Port], u)
		if u.Props.DivCycles > 0 {
			heap.Push(&s.dividerHeap, u)
		}
		s.log.Record(clock, EventReadyForDispatch)
	}
}

func (s *Scheduler) dispatch(clock int64) {
	dispatchedThisCycle := make(map[int]bool, len(s.portHeaps))

	// Drop divider-heap entries that already dispatched via their own
	// port's heap, unconditionally: this must not be gated on any single
	// port having a ready head, or stale entries could linger and make
	// Idle() see a non-empty divider queue after the pipeline has in fact
	// drained.
	for s.dividerHeap.Len() > 0 && s.dividerHeap[0].Dispatched >= 0 {
		heap.Pop(&s.dividerHeap)
	}

	for i := range s.portHeaps {
		ph := &s.portHeaps[i]
		for ph.Len() > 0 && (*ph)[0].Dispatched >= 0 {
			heap.Pop(ph) // drop stale entries already dispatched via the divider path
		}
		if ph.Len() == 0 {
			continue
		}

		// Port-0 divider preemption (spec.md §4.6: "when port 0 would
		// dispatch, and its heap's head is older than port 0's head, the
		// divider Uop goes instead"). This only ever applies to port 0's
		// own dispatch decision, never to other ports: a stale or
		// not-yet-dispatched divider entry has no business preempting a
		// port that the divider unit never occupies.
		if i == s.port0Idx && s.dividerHeap.Len() > 0 && s.dividerBusyUntil < clock {
			if s.dividerHeap[0].GlobalIndex < (*ph)[0].GlobalIndex {
				divUop := heap.Pop(&s.dividerHeap).(*Uop)
				s.dispatchUop(divUop, clock)
				dispatchedThisCycle[divUop.Port] = true
				continue
			}
		}

		if dispatchedThisCycle[i] {
			continue
		}

		head := (*ph)[0]
		if s.violatesPairedStoreConstraint(head, i) {
			continue
		}
		// A divider-consuming head must itself wait out the shared
		// divider's busy period even when it reaches dispatch through
		// this plain per-port path rather than the port-0 preemption
		// branch above (e.g. it is already the natural head of its own
		// port's heap, or a prior divider uop is still occupying the
		// unit). Leave it queued; it is re-tried every subsequent cycle.
		if head.Props.DivCycles > 0 && s.dividerBusyUntil >= clock {
			continue
		}

		heap.Pop(ph)
		s.dispatchUop(head, clock)
		dispatchedThisCycle[i] = true
	}
}

// violatesPairedStoreConstraint implements the same-cache-line check: if
// both store-address/data ports have a ready head and their fingerprints
// disagree, only the older one may dispatch this cycle (spec.md §4.6).
func (s *Scheduler) violatesPairedStoreConstraint(u *Uop, portIdx int) bool {
	if !(u.Props.IsStoreAddressUop || u.Props.IsStoreDataUop) {
		return false
	}
	for j, ph := range s.portHeaps {
		if j == portIdx || ph.Len() == 0 {
			continue
		}
		other := ph[0]
		if !(other.Props.IsStoreAddressUop || other.Props.IsStoreDataUop) {
			continue
		}
		if u.StoreEntry == nil || other.StoreEntry == nil {
			continue
		}
		if !sameCacheLine(u.StoreEntry.Fingerprint, other.StoreEntry.Fingerprint) {
			if other.GlobalIndex < u.GlobalIndex {
				return true
			}
		}
	}
	return false
}

func (s *Scheduler) dispatchUop(u *Uop, clock int64) {
	u.Dispatched = clock
	s.pending[u.GlobalIndex] = u
	s.stats.dispatchedByPort[u.Port]++
	if u.Props.DivCycles > 0 {
		s.stats.divCyclesUsed += int64(u.Props.DivCycles)
		// Charge the shared divider unit on every dispatch path, not just
		// the port-0 preemption branch: a divider-bearing uop that is
		// already the natural head of its own port's heap (the common
		// case, e.g. a lone DIV with nothing else contending) must still
		// occupy the divider for DivCycles cycles (spec.md §4.6).
		until := clock + int64(u.Props.DivCycles) - 1
		if until > s.dividerBusyUntil {
			s.dividerBusyUntil = until
		}
	}
	s.log.Record(clock, EventDispatched)
}

func (s *Scheduler) applyPortUsageDecrements(clock int64) {
	for _, p := range s.portUsageDecrementAt[clock] {
		if s.portUsage[p] > 0 {
			s.portUsage[p]--
		}
	}
	delete(s.portUsageDecrementAt, clock)
}

// finishPending computes each pending uop's finish time and marks it
// executed once known (spec.md §4.6 "Pending-uop finishing").
func (s *Scheduler) finishPending(clock int64) {
	for idx, u := range s.pending {
		finish, ok := s.uopFinishTime(u)
		if !ok {
			continue
		}
		if finish > clock {
			continue
		}
		u.Executed = finish
		u.hasExecuted = true
		delete(s.pending, idx)
		s.log.Record(clock, EventExecuted)

		for _, dep := range s.dependents[idx] {
			s.notReady = append(s.notReady, dep)
		}
		delete(s.dependents, idx)
	}
}

// uopFinishTime is the max of: dispatched+2, the instruction's throughput
// floor for the first uop of an instruction, every renamed output's ready
// cycle, and the store-half offsets for store address/data uops (spec.md
// §3, §4.6).
func (s *Scheduler) uopFinishTime(u *Uop) (int64, bool) {
	if u.hasExecuted {
		return u.Executed, true
	}
	if u.Dispatched < 0 {
		return 0, false
	}

	finish := u.Dispatched + 2

	if u.Props.IsFirstUopOfInstr {
		tp := int64(u.Props.Instr.TP)
		if tp < 1 {
			tp = 1
		}
		if u.Dispatched+tp > finish {
			finish = u.Dispatched + tp
		}
	}

	// A uop's outputs become ready dispatched+latency cycles after
	// dispatch; RenamedOperand.ReadyCycle computes the same value from the
	// output's latency, and it is computed directly here as well.
	for i := range u.Outputs {
		lat := int64(1)
		if i < len(u.Props.OutputLatency) {
			lat = int64(u.Props.OutputLatency[i])
		}
		if u.Dispatched+lat > finish {
			finish = u.Dispatched + lat
		}
	}

	if u.Props.IsStoreAddressUop {
		if u.Dispatched+5 > finish {
			finish = u.Dispatched + 5
		}
	}
	if u.Props.IsStoreDataUop {
		if u.Dispatched+1 > finish {
			finish = u.Dispatched + 1
		}
	}

	return finish, true
}

// storeHalfReady returns the ready cycle of a store buffer entry's address
// (data=false) or data (data=true) half.
func (s *Scheduler) storeHalfReady(e *StoreBufferEntry, data bool) (int64, bool) {
	u := e.AddrUop
	offset := int64(5)
	if data {
		u = e.DataUop
		offset = 1
	}
	if u == nil {
		return 0, true
	}
	if u.Dispatched < 0 {
		return 0, false
	}
	return u.Dispatched + offset, true
}

// reexamineNotReady computes readiness for every uop awaiting source
// readiness and promotes those that become ready into the per-cycle ready
// queue (spec.md §4.6 "Readiness"). A uop blocked on a specific producer
// is registered on that producer's dependent list instead of being
// rescanned every cycle (spec.md §4.6 "Dependency propagation"); a uop
// blocked on a fence or a blocked resource has no single producer to wait
// on, so it is simply retried next cycle.
func (s *Scheduler) reexamineNotReady(clock int64) {
	var stillNotReady []*Uop
	for _, u := range s.notReady {
		if u.hasReadyForDispatch {
			continue
		}
		ready, ok, blockingProducer := s.computeReadiness(u, clock)
		if !ok {
			s.stats.dependencyStalledOpenings++
			if blockingProducer != nil {
				s.dependents[blockingProducer.GlobalIndex] = append(s.dependents[blockingProducer.GlobalIndex], u)
			} else {
				stillNotReady = append(stillNotReady, u)
			}
			continue
		}
		u.ReadyForDispatch = ready
		u.hasReadyForDispatch = true
		s.readyQueueByCycle[ready] = append(s.readyQueueByCycle[ready], u)
	}
	s.notReady = stillNotReady
}

func (s *Scheduler) computeReadiness(u *Uop, clock int64) (int64, bool, *Uop) {
	boundary := u.Issued + int64(s.cfg.IssueDispatchDelay)
	ready := clock + 1
	if ready < boundary {
		ready = boundary
	}

	// A 1-cycle bump when the last input becomes ready exactly at the
	// dispatch-delay boundary, modeling a forwarding restriction (spec.md
	// §4.6, and the possibly-incorrect-on-one-µarch open question of
	// spec.md §9 — retained as-is pending characterization data).
	bump := false
	for _, in := range u.Inputs {
		rc, ok := in.ReadyCycle(s)
		if !ok {
			return 0, false, in.Producer
		}
		if rc > ready {
			ready = rc
		}
		if rc == boundary+1 {
			bump = true
		}
	}
	if bump {
		ready++
	}

	if u.Props.Instr.IsLoadSerializing {
		if !s.loadFenceClear(u, clock) {
			return 0, false, nil
		}
	}
	if u.Props.Instr.IsStoreSerializing {
		if !s.storeFenceClear(u, clock) {
			return 0, false, nil
		}
	}

	if u.Props.IsFirstUopOfInstr {
		key := u.Props.Instr.Canonical
		if until, blocked := s.blockedResource[key]; blocked && clock < until {
			return 0, false, nil
		}
		tp := int64(u.Props.Instr.TP)
		if tp < 1 {
			tp = 1
		}
		s.blockedResource[key] = ready + tp
	}

	return ready, true, nil
}

// loadFenceClear reports whether a load-serializing uop may become ready:
// every load uop issued before it must already have executed by clock.
// Ordering among load-serializing uops themselves is not checked.
func (s *Scheduler) loadFenceClear(fence *Uop, clock int64) bool {
	for _, l := range s.allLoads {
		if l.GlobalIndex < fence.GlobalIndex && (l.Executed < 0 || l.Executed > clock) {
			return false
		}
	}
	return true
}

func (s *Scheduler) storeFenceClear(fence *Uop, clock int64) bool {
	for _, st := range s.allStores {
		if st.GlobalIndex < fence.GlobalIndex && (st.Executed < 0 || st.Executed > clock) {
			return false
		}
	}
	return true
}
