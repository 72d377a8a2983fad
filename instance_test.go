package uica

import "testing"

func TestUnrollGeneratorSplitsAtBoundary(t *testing.T) {
	mk := func(size int) *Instruction { return &Instruction{OpcodeBytes: make([]byte, size)} }
	program := []*Instruction{mk(60), mk(10), mk(4)}
	g := NewUnrollGenerator(program, 0, 64)

	first := g.Next()
	if first == nil || len(first.Instructions) != 1 {
		t.Fatalf("first block = %+v, want exactly the 60-byte instruction before crossing the 64-byte boundary", first)
	}

	second := g.Next()
	if second == nil || len(second.Instructions) != 2 {
		t.Fatalf("second block = %+v, want the remaining two instructions", second)
	}

	if g.Next() != nil {
		t.Fatalf("expected nil once the program is exhausted")
	}
}

func TestUnrollGeneratorEmptyProgram(t *testing.T) {
	g := NewUnrollGenerator(nil, 0, 64)
	if g.Next() != nil {
		t.Fatalf("Next() on an empty program should return nil")
	}
}

func TestIsLoop(t *testing.T) {
	if isLoop(nil) {
		t.Fatalf("isLoop(nil) = true, want false")
	}
	nonLooping := []*Instruction{{}, {}}
	if isLoop(nonLooping) {
		t.Fatalf("isLoop() = true for a program not ending in a branch")
	}
	looping := []*Instruction{{}, {IsBranch: true}}
	if !isLoop(looping) {
		t.Fatalf("isLoop() = false for a program ending in a branch")
	}
}

func TestRoundGeneratorWrapsForLoopingProgram(t *testing.T) {
	program := []*Instruction{
		{OpcodeBytes: []byte{0x01}},
		{OpcodeBytes: []byte{0x01}, IsBranch: true},
	}
	g := NewRoundGenerator(program, 0, 64)
	if !g.Looping() {
		t.Fatalf("Looping() = false, want true for a branch-terminated program")
	}

	b0 := g.Next()
	if b0 == nil || b0.Round != 0 {
		t.Fatalf("first block round = %+v, want round 0", b0)
	}
	b1 := g.Next()
	if b1 == nil || b1.Round != 1 {
		t.Fatalf("second block round = %+v, want round 1 after wraparound", b1)
	}
}

func TestRoundGeneratorNonLoopingNeverWraps(t *testing.T) {
	program := []*Instruction{{OpcodeBytes: []byte{0x01}}}
	g := NewRoundGenerator(program, 0, 64)
	if g.Looping() {
		t.Fatalf("Looping() = true, want false: program does not end in a branch")
	}
	if g.Next() == nil {
		t.Fatalf("expected one block from a single-instruction program")
	}
	if g.Next() != nil {
		t.Fatalf("a non-looping program must never wrap to a second round")
	}
}
