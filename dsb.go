package uica

// dsbSlotCapacity is the number of LaminatedUop slots in one DSB block
// (spec.md §4.2.3).
const dsbSlotCapacity = 6

// dsbEntry pairs a static instruction with the byte address it occupies
// within the cached program, so replay in later rounds can mint fresh
// InstrInstances at the right address without re-walking the block
// generator.
type dsbEntry struct {
	instr *Instruction
	addr  uint64
}

// DSB is the µop cache: a queue of pre-formed 6-slot blocks built once
// from the first round's instruction stream and replayed every subsequent
// round without re-predecoding or re-decoding (spec.md §4.2.3).
type DSB struct {
	cfg *MicroArchConfig
	log *EventLog

	blocks [][]dsbEntry

	blockIdx int
	entryIdx int
	round    int
}

// NewDSB creates an empty DSB cache for the given microarchitecture.
func NewDSB(cfg *MicroArchConfig, log *EventLog) *DSB {
	return &DSB{cfg: cfg, log: log}
}

// Build partitions the first round's blocks into DSB blocks using
// spec.md §4.2.3's slot-fitting algorithm: a new block starts when the
// current one cannot fit the next instruction's µop-slot cost (including
// its extra immediate slot), or the instruction uses MS (an MS-using
// instruction is never DSB-cached and breaks the current block).
func (d *DSB) Build(firstRoundBlocks []*Block) {
	d.blocks = nil
	var cur []dsbEntry
	used := 0

	flush := func() {
		if len(cur) > 0 {
			d.blocks = append(d.blocks, cur)
			cur = nil
			used = 0
		}
	}

	for _, blk := range firstRoundBlocks {
		addr := blk.StartOffset
		for _, instr := range blk.Instructions {
			size := uint64(len(instr.OpcodeBytes))
			if size == 0 {
				size = 1
			}
			if instr.UopsMS > 0 {
				flush()
				addr += size
				continue
			}
			cost := dsbSlotCost(instr)
			if used+cost > dsbSlotCapacity {
				flush()
			}
			cur = append(cur, dsbEntry{instr: instr, addr: addr})
			used += cost
			addr += size

			if instr.IsBranch && !d.cfg.BranchCanBeLastInstrInCachedBlock {
				flush()
			}
		}
	}
	flush()
}

// dsbSlotCost is the number of DSB slots instr occupies: one slot for its
// laminated µop, plus one extra immediate slot if its signed immediate
// does not fit 32 bits, or 16 bits when a memory operand is present
// (spec.md §4.2.3).
func dsbSlotCost(instr *Instruction) int {
	cost := 1
	limit := int64(1) << 31
	if len(instr.MemOperands) > 0 {
		limit = int64(1) << 15
	}
	imm := int64(instr.Immediate)
	if imm >= limit || imm < -limit {
		cost++
	}
	return cost
}

// Cacheable reports whether the given blocks are entirely DSB-cacheable:
// no instruction uses MS, and no run of instructions between MS/flush
// boundaries ever exceeds dsbSlotCapacity (spec.md §4.2, "an address is
// in DSB if its block is cacheable").
func (d *DSB) Cacheable(blocks []*Block) bool {
	used := 0
	for _, blk := range blocks {
		for _, instr := range blk.Instructions {
			if instr.UopsMS > 0 {
				return false
			}
			used += dsbSlotCost(instr)
			if used > dsbSlotCapacity {
				used = dsbSlotCost(instr)
			}
		}
	}
	return true
}

// Len returns the number of cached DSB blocks.
func (d *DSB) Len() int { return len(d.blocks) }

// Cycle emits up to DSBWidth LaminatedUop entries from the cached block
// queue into idq, minting a fresh InstrInstance/LaminatedUop set per round
// via mkInstance/mkLaminated — the DSB caches the decoded shape, not the
// per-round dynamic rename/schedule state. Wrapping past the cached
// program's end advances the round counter (spec.md §4.2.3).
func (d *DSB) Cycle(clock int64, idq *IDQ, mkInstance func(instr *Instruction, addr uint64, round int) *InstrInstance, mkLaminated func(*InstrInstance) []*LaminatedUop) {
	emitted := 0
	for emitted < d.cfg.DSBWidth {
		if len(d.blocks) == 0 {
			return
		}
		if d.blockIdx >= len(d.blocks) {
			d.blockIdx = 0
			d.entryIdx = 0
			d.round++
		}
		block := d.blocks[d.blockIdx]
		for d.entryIdx < len(block) {
			if emitted >= d.cfg.DSBWidth || idq.Headroom() == 0 {
				return
			}
			e := block[d.entryIdx]
			inst := mkInstance(e.instr, e.addr, d.round)
			inst.Source = SourceDSB
			for _, l := range mkLaminated(inst) {
				if !idq.Push(l) {
					return
				}
				l.AddedToIDQ = clock
				d.log.Record(clock, EventAddedToIDQ)
			}
			emitted++
			d.entryIdx++
		}
		d.blockIdx++
		d.entryIdx = 0
	}
}
