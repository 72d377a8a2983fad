package uica

// IDQ is the Instruction Decode Queue: the front-end's output buffer,
// drained by the renamer up to its issue width each cycle (spec.md §2,
// §4.2, GLOSSARY).
type IDQ struct {
	width int
	slots []*LaminatedUop
}

// NewIDQ creates an IDQ with the given capacity.
func NewIDQ(width int) *IDQ {
	return &IDQ{width: width}
}

// Len returns current occupancy in LaminatedUop slots.
func (q *IDQ) Len() int { return len(q.slots) }

// Headroom is how many more LaminatedUops can be appended before the IDQ
// is full.
func (q *IDQ) Headroom() int { return q.width - len(q.slots) }

// Push appends a LaminatedUop if there is room, returning false if full.
func (q *IDQ) Push(l *LaminatedUop) bool {
	if len(q.slots) >= q.width {
		return false
	}
	q.slots = append(q.slots, l)
	return true
}

// Peek returns the head LaminatedUop without removing it, or nil if empty.
func (q *IDQ) Peek() *LaminatedUop {
	if len(q.slots) == 0 {
		return nil
	}
	return q.slots[0]
}

// Pop removes and returns the head LaminatedUop.
func (q *IDQ) Pop() *LaminatedUop {
	l := q.slots[0]
	q.slots = q.slots[1:]
	return l
}

// uopSourceState is which front-end path is currently feeding the IDQ
// (spec.md §4.2).
type uopSourceState struct {
	current       UopSource
	msStallCycles int
}

// FrontEnd multiplexes exactly one uop source per cycle onto the IDQ: MS
// preempts all others while busy; otherwise LSD, DSB, or MITE is chosen
// per spec.md §4.2's admission rules.
//
// The admission decision is made once, from the first round's blocks
// (spec.md §4.2's "first-round" rules), and is sticky for the remainder
// of the run: if the whole loop body is LSD-eligible it is unrolled into
// the LSD forever; else if the whole loop body is DSB-cacheable it is
// served from the DSB forever; otherwise every round decodes through
// MITE. Real hardware can switch within a run when a branch target
// straddles the DSB/MITE boundary; this simplification is sufficient for
// the single-loop-body workloads spec.md's throughput scenarios describe
// (§8) and is documented rather than silently approximated.
type FrontEnd struct {
	cfg   *MicroArchConfig
	log   *EventLog
	stats *runStats

	predecoder *Predecoder
	legacy     *LegacyDecoder
	dsb        *DSB
	ms         *MicrocodeSequencer

	state uopSourceState

	blocks     *RoundGenerator
	analyzed   bool
	blockQueue []*Block

	lsdAdmitted bool
	lsdEntries  []dsbEntry
	lsdIdx      int
	lsdRound    int

	mkInstance  func(instr *Instruction, addr uint64, round int) *InstrInstance
	mkLaminated func(inst *InstrInstance) []*LaminatedUop
}

// NewFrontEnd wires up the predecoder/legacy-decoder/DSB/MS sub-stages for
// one simulation run.
func NewFrontEnd(cfg *MicroArchConfig, log *EventLog, stats *runStats, program []*Instruction, alignmentOffset uint64, mkInstance func(instr *Instruction, addr uint64, round int) *InstrInstance, mkLaminated func(inst *InstrInstance) []*LaminatedUop) *FrontEnd {
	fe := &FrontEnd{
		cfg:         cfg,
		log:         log,
		stats:       stats,
		blocks:      NewRoundGenerator(program, alignmentOffset, uint64(cfg.DSBBlockSize)),
		mkInstance:  mkInstance,
		mkLaminated: mkLaminated,
	}
	fe.predecoder = NewPredecoder(cfg, log, stats)
	fe.legacy = NewLegacyDecoder(cfg, log)
	fe.dsb = NewDSB(cfg, log)
	fe.ms = NewMicrocodeSequencer(cfg, log)
	fe.state.current = SourceMITE
	return fe
}

// Cycle appends at most DSBWidth (or equivalent) LaminatedUops to idq,
// stopping when the IDQ would exceed capacity, choosing the source for
// this cycle per spec.md §4.2.
func (fe *FrontEnd) Cycle(clock int64, idq *IDQ) {
	if fe.state.msStallCycles > 0 {
		fe.state.msStallCycles--
	}

	if !fe.analyzed {
		fe.analyzeFirstRound()
	}

	if fe.ms.Busy() {
		fe.ms.Cycle(clock, idq)
		return
	}

	switch fe.state.current {
	case SourceLSD:
		fe.feedLSD(clock, idq)
	case SourceDSB:
		fe.dsb.Cycle(clock, idq, fe.mkInstance, fe.mkLaminated)
	default:
		fe.refillPredecoder(clock)
		fe.legacy.Cycle(clock, idq, fe.predecoder, fe.ms, &fe.state, fe.mkLaminated)
	}

	if idq.Headroom() < fe.cfg.PreDecodeWidth {
		fe.log.Record(clock, EventIDQFull)
	}
}

// Looping reports whether the underlying program is treated as a loop
// (spec.md §4.1); non-looping (unroll-mode) programs only ever complete a
// single pass.
func (fe *FrontEnd) Looping() bool {
	return fe.blocks.Looping()
}

// HasMoreWork reports whether the front-end can still add uops to the IDQ
// on some future cycle: LSD/DSB sources are sticky and always have more
// (the loop body replays forever), while a MITE-fed unroll-mode program is
// done once its queued blocks and IQ have drained.
func (fe *FrontEnd) HasMoreWork() bool {
	if fe.state.current == SourceLSD || fe.state.current == SourceDSB {
		return true
	}
	return len(fe.blockQueue) > 0 || fe.predecoder.Len() > 0 || fe.ms.Busy()
}

// analyzeFirstRound collects round 0's blocks, decides LSD/DSB admission
// per spec.md §4.2, and either builds the LSD replay program, builds the
// DSB cache, or re-queues the collected blocks for ordinary MITE decode.
func (fe *FrontEnd) analyzeFirstRound() {
	fe.analyzed = true

	var firstRound []*Block
	var lookahead *Block
	for {
		blk := fe.blocks.Next()
		if blk == nil {
			break
		}
		if blk.Round != 0 {
			lookahead = blk
			break
		}
		firstRound = append(firstRound, blk)
	}

	looping := fe.blocks.Looping()

	if looping && fe.cfg.LSDEnabled && fe.lsdEligible(firstRound) {
		fe.lsdAdmitted = true
		fe.state.current = SourceLSD
		nUops := 0
		for _, blk := range firstRound {
			for _, instr := range blk.Instructions {
				nUops += instr.TotalUops
			}
		}
		k := fe.cfg.LSDUnrolling(nUops)
		entries := blockEntries(firstRound)
		for i := 0; i < k; i++ {
			fe.lsdEntries = append(fe.lsdEntries, entries...)
		}
		return
	}

	if looping && fe.dsb.Cacheable(firstRound) {
		fe.dsb.Build(firstRound)
		fe.state.current = SourceDSB
		return
	}

	fe.state.current = SourceMITE
	fe.blockQueue = append(fe.blockQueue, firstRound...)
	if lookahead != nil {
		fe.blockQueue = append(fe.blockQueue, lookahead)
	}
}

// lsdEligible implements spec.md §4.2's first-round LSD admission rule:
// every instruction must be LSD-eligible and every block DSB-cacheable,
// and the total µop count must fit the IDQ width.
func (fe *FrontEnd) lsdEligible(blocks []*Block) bool {
	total := 0
	for _, blk := range blocks {
		for _, instr := range blk.Instructions {
			if !instr.CanBeUsedByLSD() {
				return false
			}
			total += instr.TotalUops
		}
	}
	if !fe.dsb.Cacheable(blocks) {
		return false
	}
	return total <= fe.cfg.IDQWidth
}

// blockEntries flattens blocks into an address-tagged instruction list in
// program order.
func blockEntries(blocks []*Block) []dsbEntry {
	var out []dsbEntry
	for _, blk := range blocks {
		addr := blk.StartOffset
		for _, instr := range blk.Instructions {
			out = append(out, dsbEntry{instr: instr, addr: addr})
			size := uint64(len(instr.OpcodeBytes))
			if size == 0 {
				size = 1
			}
			addr += size
		}
	}
	return out
}

// feedLSD re-emits the cached loop-body program cyclically, minting a
// fresh InstrInstance/LaminatedUop set per occurrence, advancing the round
// counter each time the cached body wraps (spec.md §4.2 LSD admission).
func (fe *FrontEnd) feedLSD(clock int64, idq *IDQ) {
	emitted := 0
	for emitted < fe.cfg.DSBWidth {
		if len(fe.lsdEntries) == 0 {
			return
		}
		if fe.lsdIdx >= len(fe.lsdEntries) {
			fe.lsdIdx = 0
			fe.lsdRound++
		}
		if idq.Headroom() == 0 {
			return
		}
		e := fe.lsdEntries[fe.lsdIdx]
		inst := fe.mkInstance(e.instr, e.addr, fe.lsdRound)
		inst.Source = SourceLSD
		for _, l := range fe.mkLaminated(inst) {
			if !idq.Push(l) {
				return
			}
			l.AddedToIDQ = clock
			fe.log.Record(clock, EventAddedToIDQ)
		}
		fe.lsdIdx++
		emitted++
	}
}

// refillPredecoder tops up the Instruction Queue from the pending block
// queue, pulling further blocks from the round generator once the queue
// drains, so the legacy decoder always has fresh work (spec.md §4.2.1's
// "a block terminates when the IQ would overflow" governs how much of
// each block actually gets consumed per call).
func (fe *FrontEnd) refillPredecoder(clock int64) {
	for fe.predecoder.Headroom() > 0 {
		var blk *Block
		if len(fe.blockQueue) > 0 {
			blk = fe.blockQueue[0]
			fe.blockQueue = fe.blockQueue[1:]
		} else {
			blk = fe.blocks.Next()
		}
		if blk == nil {
			return
		}
		fe.predecoder.Feed(clock, instancesForBlock(blk, fe.mkInstance))
	}
}

// instancesForBlock mints one InstrInstance per instruction in blk, with
// addresses computed the same way the unroll generator laid them out.
func instancesForBlock(blk *Block, mkInstance func(instr *Instruction, addr uint64, round int) *InstrInstance) []*InstrInstance {
	out := make([]*InstrInstance, 0, len(blk.Instructions))
	addr := blk.StartOffset
	for _, instr := range blk.Instructions {
		out = append(out, mkInstance(instr, addr, blk.Round))
		size := uint64(len(instr.OpcodeBytes))
		if size == 0 {
			size = 1
		}
		addr += size
	}
	return out
}
