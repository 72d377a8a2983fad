package uica

import "strings"

// moveElimTracker tracks the per-cycle move-elimination quota and the
// multi-use alias table for one register file (GPR or SIMD) (spec.md
// §4.4).
type moveElimTracker struct {
	slots          int // configured quota, or Unlimited
	pipelineLength int

	useInCycle map[int64]int // eliminations committed at a given cycle

	// aliasCount counts how many architectural operands currently point
	// at a given physical name (RenamedOperand). Expiry on a new
	// definition is suppressed when requireAllOverwritten is set, per
	// spec.md §4.4: "If the µarch requires all aliases of a physical name
	// to be overwritten before the slot is freed, do not evict stale
	// entries."
	aliasCount            map[*RenamedOperand]int
	requireAllOverwritten bool

	// aliasSizeInCycle snapshots len(aliasCount) once per cycle (taken at
	// the end of that cycle's renamer work), so quotaRemaining can look up
	// the multi-use alias table's size as it stood at a past cycle —
	// mirroring the reference's multiUseGPRDictUseInCycle map, which
	// despite its name holds alias-table sizes, not elimination counts
	// (spec.md §4.4, §9).
	aliasSizeInCycle map[int64]int
}

func newMoveElimTracker(slots, pipelineLength int, requireAllOverwritten bool) *moveElimTracker {
	return &moveElimTracker{
		slots:                 slots,
		pipelineLength:        pipelineLength,
		useInCycle:            make(map[int64]int),
		aliasCount:            make(map[*RenamedOperand]int),
		requireAllOverwritten: requireAllOverwritten,
		aliasSizeInCycle:      make(map[int64]int),
	}
}

// snapshotAliasSize records the multi-use alias table's size as of the end
// of clock's renamer work, for later lookup by quotaRemaining.
func (m *moveElimTracker) snapshotAliasSize(clock int64) {
	m.aliasSizeInCycle[clock] = len(m.aliasCount)
}

// quotaRemaining computes how many eliminations are still available this
// cycle, per the reference formula (spec.md §4.4, §9): the configured
// quota minus two distinct terms — a sum of eliminations committed at
// offsets 1..pipelineLength-1 cycles back, plus the multi-use alias
// table's size exactly pipelineLength cycles back (one cycle further than
// the sum's last term; this is the verbatim-preserved "-1 offset" the
// open question refers to, not "fixed" here).
func (m *moveElimTracker) quotaRemaining(clock int64) int {
	if m.slots == Unlimited {
		return Unlimited
	}
	inFlight := 0
	if m.pipelineLength > 0 {
		for offset := int64(1); offset < int64(m.pipelineLength); offset++ {
			inFlight += m.useInCycle[clock-offset]
		}
		inFlight += m.aliasSizeInCycle[clock-int64(m.pipelineLength)]
	}
	remaining := m.slots - inFlight
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}

func (m *moveElimTracker) recordElimination(clock int64, alias *RenamedOperand) {
	m.useInCycle[clock]++
	m.aliasCount[alias]++
}

// expire drops the alias-count bookkeeping for a physical name once a new
// definition lands on one of its aliased architectural operands.
func (m *moveElimTracker) expire(alias *RenamedOperand) {
	if m.requireAllOverwritten {
		return
	}
	if m.aliasCount[alias] > 0 {
		m.aliasCount[alias]--
	}
	if m.aliasCount[alias] == 0 {
		delete(m.aliasCount, alias)
	}
}

// Renamer drives allocation, breaks lamination into fused µops, performs
// move elimination, and synchronizes the stack engine and store buffer
// (spec.md §4.4). It owns the rename map, abstract-value map, and
// store-buffer map exclusively (spec.md §5).
type Renamer struct {
	cfg   *MicroArchConfig
	log   *EventLog
	stats *runStats
	rb    *ReorderBuffer

	operands *Arena[RenamedOperand]

	renameMap     map[Operand]*RenamedOperand
	abstractValue map[Operand]int64
	nextAbstract  int64

	storeBuffer map[MemFingerprint]*StoreBufferEntry

	gpr  *moveElimTracker
	simd *moveElimTracker

	stack stackEngine

	// nextGlobalIndex mints the shared program-order index used to key the
	// scheduler's per-port ready-queue heaps. It is shared with the
	// top-level Simulator's LaminatedUop builder so ordinary uops and
	// renamer-injected register-merge uops draw from the same monotonic
	// sequence (spec.md §4.6).
	nextGlobalIndex func() int64
}

// NewRenamer creates a Renamer for the given microarchitecture, checking
// rb.Empty() for the serializing-instruction stall rule (spec.md §4.4
// step 1).
func NewRenamer(cfg *MicroArchConfig, log *EventLog, stats *runStats, rb *ReorderBuffer, operands *Arena[RenamedOperand], nextGlobalIndex func() int64) *Renamer {
	return &Renamer{
		cfg:             cfg,
		log:             log,
		stats:           stats,
		rb:              rb,
		operands:        operands,
		renameMap:       make(map[Operand]*RenamedOperand),
		abstractValue:   make(map[Operand]int64),
		storeBuffer:     make(map[MemFingerprint]*StoreBufferEntry),
		gpr:             newMoveElimTracker(cfg.MoveEliminationGPRSlots, cfg.MoveEliminationPipelineLength, cfg.MoveEliminationGPRAllAliasesMustBeOverwritten),
		simd:            newMoveElimTracker(cfg.MoveEliminationSIMDSlots, cfg.MoveEliminationPipelineLength, false),
		nextGlobalIndex: nextGlobalIndex,
	}
}

// Cycle drains idq up to issueWidth fused-uop slots, handling register-
// merge emission and serializing stalls before ordinary rename work, and
// returns the FusedUops issued this cycle (spec.md §4.4).
func (rn *Renamer) Cycle(clock int64, idq *IDQ) []*FusedUop {
	var out []*FusedUop
	issued := 0

	for issued < rn.cfg.IssueWidth {
		head := idq.Peek()
		if head == nil {
			break
		}
		slots := len(head.FusedUops)
		if issued > 0 && issued+slots > rn.cfg.IssueWidth {
			break
		}

		inst := head.Instance
		if rn.isFirstUopBoundary(head) && len(inst.Instr.RegMergeUopPropertiesList) > 0 && !inst.mergeIssued {
			merges := rn.emitSideUops(clock, inst, inst.Instr.RegMergeUopPropertiesList, true)
			out = append(out, merges...)
			issued += len(merges)
			inst.mergeIssued = true
			break
		}

		if inst.Instr.IsSerializing && !rn.rb.Empty() {
			break
		}

		idq.Pop()
		fused := rn.renameLaminated(clock, head)
		out = append(out, fused...)
		issued += len(fused)
		rn.log.Record(clock, EventIssued)
	}

	rn.gpr.snapshotAliasSize(clock)
	rn.simd.snapshotAliasSize(clock)

	return out
}

// isFirstUopBoundary reports whether l's leading uop is flagged as the
// first uop of its owning instruction.
func (rn *Renamer) isFirstUopBoundary(l *LaminatedUop) bool {
	if len(l.FusedUops) == 0 || len(l.FusedUops[0].Uops) == 0 {
		return false
	}
	return l.FusedUops[0].Uops[0].Props.IsFirstUopOfInstr
}

// emitSideUops mints single-uop FusedUops for a list of UopProperties
// templates (register-merge or stack-sync uops), renaming them like any
// other uop but skipping move elimination (spec.md §4.3, §4.4 step 1).
func (rn *Renamer) emitSideUops(clock int64, inst *InstrInstance, props []UopProperties, isMerge bool) []*FusedUop {
	var out []*FusedUop
	for i := range props {
		p := &props[i]
		u := newUop(i, inst, p, rn.nextGlobalIndex())
		u.Issued = clock
		rn.renameUopOperands(clock, u)
		f := &FusedUop{Uops: []*Uop{u}, Issued: clock}
		out = append(out, f)
	}
	if isMerge {
		inst.RegMerge = append(inst.RegMerge, nil)
	}
	return out
}

// renameLaminated performs move elimination and rename on every Uop of a
// LaminatedUop's FusedUops, committing the instruction's rename map on its
// last uop (spec.md §4.4 steps 2-4).
func (rn *Renamer) renameLaminated(clock int64, l *LaminatedUop) []*FusedUop {
	inst := l.Instance
	pending := make(map[Operand]*RenamedOperand)

	for _, f := range l.FusedUops {
		for _, u := range f.Uops {
			u.Issued = clock
			rn.eliminateOrRename(clock, u, pending)
			if u.Props.IsLastUopOfInstr {
				rn.commit(pending, inst)
			}
		}
		f.Issued = clock
	}
	return l.FusedUops
}

// eliminateOrRename first attempts move elimination (spec.md §4.4 step 2),
// then falls back to ordinary input lookup / output mint (step 3). Newly
// minted outputs land in pending, visible to later instructions only
// after the instruction boundary commits (spec.md §4.4 step 4), never to
// later uops of the same instruction.
func (rn *Renamer) eliminateOrRename(clock int64, u *Uop, pending map[Operand]*RenamedOperand) {
	if rn.tryEliminate(clock, u, pending) {
		return
	}
	rn.renameUopOperands(clock, u)
	for i, op := range u.Props.Outputs {
		pending[op] = u.Outputs[i]
	}

	if u.Props.IsStoreAddressUop && len(u.Outputs) == 0 {
		mem := u.Props.MemDescriptor
		entry := &StoreBufferEntry{Fingerprint: fingerprintOf(mem), AddrUop: u}
		rn.storeBuffer[entry.Fingerprint] = entry
		u.StoreEntry = entry
	}
	if u.Props.IsStoreDataUop {
		if entry, ok := rn.storeBuffer[fingerprintOf(u.Props.MemDescriptor)]; ok {
			entry.DataUop = u
			u.StoreEntry = entry
		}
	}
	if u.Props.IsLoadUop && u.Props.MemDescriptor != nil {
		if entry, ok := rn.storeBuffer[fingerprintOf(u.Props.MemDescriptor)]; ok {
			for _, out := range u.Outputs {
				out.forwardEntry = entry
			}
		}
	}
}

// tryEliminate implements move elimination: a mov-eligible single-input/
// single-output uop whose quota allows it is resolved by aliasing the
// output's RenamedOperand to the input's physical name, consuming no
// execution port (GLOSSARY, spec.md §4.4 step 2).
func (rn *Renamer) tryEliminate(clock int64, u *Uop, pending map[Operand]*RenamedOperand) bool {
	if !u.Props.Instr.MoveEliminationEligible {
		return false
	}
	if len(u.Props.Inputs) != 1 || len(u.Props.Outputs) != 1 {
		return false
	}

	tracker := rn.gpr
	if isSIMDOperand(u.Props.Outputs[0]) {
		tracker = rn.simd
	}
	if tracker.quotaRemaining(clock) == 0 {
		return false
	}

	src := rn.lookupInput(u.Props.Inputs[0], pending)
	if src == nil {
		return false
	}

	u.Eliminated = true
	u.Executed = clock
	u.hasExecuted = true
	u.Inputs = []*RenamedOperand{src}
	pending[u.Props.Outputs[0]] = src
	tracker.recordElimination(clock, src)
	return true
}

func isSIMDOperand(op Operand) bool {
	if op.Kind != OperandReg {
		return false
	}
	r := strings.ToUpper(op.Reg)
	return strings.HasPrefix(r, "XMM") || strings.HasPrefix(r, "YMM") || strings.HasPrefix(r, "ZMM") || strings.HasPrefix(r, "MM")
}

// renameUopOperands binds u's inputs to existing RenamedOperands (global
// map, falling back to a fresh initial value) and mints a new
// RenamedOperand for each output; eliminateOrRename stages those outputs
// in pending (spec.md §4.4 step 3).
func (rn *Renamer) renameUopOperands(clock int64, u *Uop) {
	u.Inputs = make([]*RenamedOperand, len(u.Props.Inputs))
	for i, op := range u.Props.Inputs {
		u.Inputs[i] = rn.lookupOrCreateInput(op)
	}

	u.Outputs = make([]*RenamedOperand, len(u.Props.Outputs))
	for i, op := range u.Props.Outputs {
		ro, idx := rn.operands.Alloc()
		*ro = RenamedOperand{Idx: idx, Producer: u, NonRenamed: op}
		u.Outputs[i] = ro
	}
}

func (rn *Renamer) lookupInput(op Operand, pending map[Operand]*RenamedOperand) *RenamedOperand {
	if ro, ok := pending[op]; ok {
		return ro
	}
	if ro, ok := rn.renameMap[op]; ok {
		return ro
	}
	return nil
}

func (rn *Renamer) lookupOrCreateInput(op Operand) *RenamedOperand {
	if ro, ok := rn.renameMap[op]; ok {
		return ro
	}
	idx := rn.operands.Len()
	ro := newInitialOperand(idx, op)
	rn.renameMap[op] = ro
	return ro
}

// commit publishes an instruction's pending output renames into the
// global rename map and advances the abstract-value map: a plain mov
// propagates its source's abstract value, every other definition mints a
// fresh abstract value (spec.md §4.4 step 4, §9).
func (rn *Renamer) commit(pending map[Operand]*RenamedOperand, inst *InstrInstance) {
	for op, ro := range pending {
		if old, ok := rn.renameMap[op]; ok {
			rn.gpr.expire(old)
			rn.simd.expire(old)
		}
		rn.renameMap[op] = ro

		if inst.Instr.MoveEliminationEligible {
			// An eliminated move aliases its source's operand; a renamed
			// one reads the source through its producer's single input.
			srcOp := ro.NonRenamed
			if srcOp == op && ro.Producer != nil && len(ro.Producer.Props.Inputs) == 1 {
				srcOp = ro.Producer.Props.Inputs[0]
			}
			if src, ok := rn.abstractValue[srcOp]; ok {
				rn.abstractValue[op] = src
				continue
			}
		}
		rn.nextAbstract++
		rn.abstractValue[op] = rn.nextAbstract
	}
}

// ObserveStackEngine applies the stack engine's RSP-drift bookkeeping for
// one instruction and reports whether a StackSyncUop must be injected
// before its own uops (spec.md §4.3). Exposed so the instance/laminated-uop
// builder (owned by the top-level Simulator) can decide injection at
// IDQ-append time while sharing the renamer's single stack-engine state.
func (rn *Renamer) ObserveStackEngine(instr *Instruction, readsRSPExplicitly, writesRSP bool) bool {
	return rn.stack.observe(instr, readsRSPExplicitly, writesRSP).injectSync
}
