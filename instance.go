package uica

// InstrInstance is one dynamic occurrence of an Instruction at a given byte
// address in a given round (spec.md §3).
type InstrInstance struct {
	Idx   int
	Instr *Instruction
	Addr  uint64
	Round int

	Laminated []*LaminatedUop
	RegMerge  []*LaminatedUop
	StackSync []*LaminatedUop

	PredecodedCycle     int64
	RemovedFromIQCycle  int64
	Source              UopSource

	// mergeIssued marks whether this instance's register-merge uops have
	// already been emitted by the renamer, so the check in renamer.go is
	// idempotent across cycles spent stalled mid-issue.
	mergeIssued bool
}

// Block is one contiguous run of instructions that fit within a single
// 64-byte (or configured) alignment boundary (spec.md §4.1).
type Block struct {
	Round        int
	StartOffset  uint64
	Instructions []*Instruction
}

// UnrollGenerator yields successive cache blocks by laying instructions out
// contiguously starting at alignmentOffset. A block ends when the next
// instruction would cross the boundary (spec.md §4.1).
type UnrollGenerator struct {
	Program          []*Instruction
	AlignmentOffset  uint64
	BlockSize        uint64

	pos   int
	addr  uint64
	round int
}

// NewUnrollGenerator creates a generator over program starting at
// alignmentOffset within a blockSize-byte-aligned cache line.
func NewUnrollGenerator(program []*Instruction, alignmentOffset uint64, blockSize uint64) *UnrollGenerator {
	if blockSize == 0 {
		blockSize = 64
	}
	return &UnrollGenerator{Program: program, AlignmentOffset: alignmentOffset, BlockSize: blockSize, addr: alignmentOffset}
}

// Next returns the next block, or nil when the program is exhausted (for
// non-looping programs; Round generator wraps this for looping programs).
func (g *UnrollGenerator) Next() *Block {
	if len(g.Program) == 0 || g.pos >= len(g.Program) {
		return nil
	}
	blk := &Block{Round: g.round, StartOffset: g.addr}
	boundary := (g.addr/g.BlockSize + 1) * g.BlockSize

	for g.pos < len(g.Program) {
		instr := g.Program[g.pos]
		size := uint64(len(instr.OpcodeBytes))
		if size == 0 {
			size = 1
		}
		if g.addr+size > boundary && len(blk.Instructions) > 0 {
			break
		}
		blk.Instructions = append(blk.Instructions, instr)
		g.addr += size
		g.pos++
		if g.addr > boundary {
			// An instruction that straddled the boundary carries the
			// block on to the next one.
			boundary = (g.addr/g.BlockSize + 1) * g.BlockSize
		}
	}
	return blk
}

// isLoop reports whether the program should be treated as looping: the
// chosen mode is "unroll" iff the last instruction is not a branch
// (spec.md §4.1).
func isLoop(program []*Instruction) bool {
	if len(program) == 0 {
		return false
	}
	return program[len(program)-1].IsBranch
}

// RoundGenerator wraps UnrollGenerator but, when the instruction stream is
// a loop, groups blocks by round and restarts from alignmentOffset at each
// wrap, advancing a monotonically increasing round counter (spec.md §4.1).
type RoundGenerator struct {
	program         []*Instruction
	alignmentOffset uint64
	blockSize       uint64
	looping         bool

	unroll *UnrollGenerator
	round  int
}

// NewRoundGenerator creates a round-aware generator. If the program is not
// a loop (last instruction isn't a branch), it behaves exactly like
// UnrollGenerator and never wraps.
func NewRoundGenerator(program []*Instruction, alignmentOffset uint64, blockSize uint64) *RoundGenerator {
	return &RoundGenerator{
		program:         program,
		alignmentOffset: alignmentOffset,
		blockSize:       blockSize,
		looping:         isLoop(program),
		unroll:          NewUnrollGenerator(program, alignmentOffset, blockSize),
	}
}

// Looping reports whether the wrapped program is treated as a loop (the
// last instruction is a branch): only loop programs ever produce more
// than one round (spec.md §4.1).
func (g *RoundGenerator) Looping() bool {
	return g.looping
}

// Next returns the next block, restarting the underlying unroll generator
// at alignmentOffset and incrementing the round counter when a looping
// program's instruction stream wraps.
func (g *RoundGenerator) Next() *Block {
	blk := g.unroll.Next()
	if blk != nil {
		return blk
	}
	if !g.looping {
		return nil
	}
	g.round++
	g.unroll = NewUnrollGenerator(g.program, g.alignmentOffset, g.blockSize)
	g.unroll.round = g.round
	return g.unroll.Next()
}
