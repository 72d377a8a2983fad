package uica

import "testing"

func TestPredecoderFeedRespectsIQWidth(t *testing.T) {
	cfg := testMicroArch()
	cfg.IQWidth = 2
	cfg.PreDecodeWidth = 10
	p := NewPredecoder(&cfg, NewEventLog(), newRunStats(len(cfg.AllPorts)))

	instr := testALUInstr("add rax, rbx", nil, nil, 1, []int{0})
	instances := []*InstrInstance{
		testMkInstance(instr, 0, 0),
		testMkInstance(instr, 1, 0),
		testMkInstance(instr, 2, 0),
	}
	p.Feed(0, instances)

	if p.Len() != 2 {
		t.Fatalf("Len() = %d, want 2: the IQ should stop accepting once full (IQWidth=2)", p.Len())
	}
	if p.Headroom() != 0 {
		t.Fatalf("Headroom() = %d, want 0", p.Headroom())
	}
}

func TestPredecoderFeedRespectsPreDecodeWidth(t *testing.T) {
	cfg := testMicroArch()
	cfg.IQWidth = 100
	cfg.PreDecodeWidth = 2
	p := NewPredecoder(&cfg, NewEventLog(), newRunStats(len(cfg.AllPorts)))

	instr := testALUInstr("add rax, rbx", nil, nil, 1, []int{0})
	instances := []*InstrInstance{
		testMkInstance(instr, 0, 0),
		testMkInstance(instr, 1, 0),
		testMkInstance(instr, 2, 0),
	}
	p.Feed(0, instances)

	if p.Len() != 2 {
		t.Fatalf("Len() = %d, want 2: only PreDecodeWidth instructions predecode per cycle", p.Len())
	}
}

func TestPredecoderPeekGatedByDecodeDelay(t *testing.T) {
	cfg := testMicroArch()
	cfg.PredecodeDecodeDelay = 3
	p := NewPredecoder(&cfg, NewEventLog(), newRunStats(len(cfg.AllPorts)))

	instr := testALUInstr("add rax, rbx", nil, nil, 1, []int{0})
	p.Feed(0, []*InstrInstance{testMkInstance(instr, 0, 0)})

	if p.Peek(1) != nil {
		t.Fatalf("Peek(1) should be nil before the decode delay elapses")
	}
	if p.Peek(3) == nil {
		t.Fatalf("Peek(3) should return the head once predecodedCycle+delay is reached")
	}
}

func TestPredecoderPopRemovesHead(t *testing.T) {
	cfg := testMicroArch()
	p := NewPredecoder(&cfg, NewEventLog(), newRunStats(len(cfg.AllPorts)))

	instr := testALUInstr("add rax, rbx", nil, nil, 1, []int{0})
	p.Feed(0, []*InstrInstance{testMkInstance(instr, 0, 0)})
	p.Pop()
	if p.Len() != 0 {
		t.Fatalf("Len() = %d, want 0 after popping the only entry", p.Len())
	}
}

func TestPredecoderLCPStallAddsThreeCycles(t *testing.T) {
	cfg := testMicroArch()
	p := NewPredecoder(&cfg, NewEventLog(), newRunStats(len(cfg.AllPorts)))

	instr := testALUInstr("add rax, [rbx+disp32]", nil, nil, 1, []int{0})
	instr.LCPStall = true
	p.Feed(0, []*InstrInstance{testMkInstance(instr, 0, 0)})

	if p.iq[0].lcpStallsLeft != 3 {
		t.Fatalf("lcpStallsLeft = %d, want 3 for an LCP-stalling instruction", p.iq[0].lcpStallsLeft)
	}
}
