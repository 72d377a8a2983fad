package uica

import "testing"

func testRenamer(cfg *MicroArchConfig) (*Renamer, *ReorderBuffer) {
	log := NewEventLog()
	stats := newRunStats(len(cfg.AllPorts))
	rb := NewReorderBuffer(cfg, log, stats)
	operands := NewArena[RenamedOperand](64)
	var next int64
	rn := NewRenamer(cfg, log, stats, rb, operands, func() int64 { next++; return next })
	return rn, rb
}

func TestRenamerCycleSetsIssuedOnEveryUop(t *testing.T) {
	cfg := testMicroArch()
	rn, _ := testRenamer(&cfg)

	instr := testALUInstr("add rax, rbx", []Operand{testReg("RAX"), testReg("RBX")}, []Operand{testReg("RAX")}, 1, []int{0})
	inst := testMkInstance(instr, 0, 0)
	laminated := testMkLaminatedSingle(inst)

	idq := NewIDQ(64)
	idq.Push(laminated[0])

	fused := rn.Cycle(5, idq)
	if len(fused) != 1 {
		t.Fatalf("Cycle() issued %d fused uops, want 1", len(fused))
	}
	for _, f := range fused {
		for _, u := range f.Uops {
			if u.Issued != 5 {
				t.Fatalf("Uop.Issued = %d, want 5 (the cycle it was issued)", u.Issued)
			}
		}
	}
}

func TestRenamerRenamesOutputsAndInputs(t *testing.T) {
	cfg := testMicroArch()
	rn, _ := testRenamer(&cfg)

	instr := testALUInstr("add rax, rbx", []Operand{testReg("RAX"), testReg("RBX")}, []Operand{testReg("RAX")}, 1, []int{0})
	inst := testMkInstance(instr, 0, 0)
	idq := NewIDQ(64)
	idq.Push(testMkLaminatedSingle(inst)[0])
	rn.Cycle(0, idq)

	if _, ok := rn.renameMap[testReg("RAX")]; !ok {
		t.Fatalf("renameMap should contain an entry for RAX after committing its producer")
	}
}

func issueProducer(t *testing.T, rn *Renamer, clock int64, out Operand) {
	t.Helper()
	producer := testALUInstr("add rbx, rbx", nil, []Operand{out}, 1, []int{0})
	inst := testMkInstance(producer, 0, 0)
	idq := NewIDQ(64)
	idq.Push(testMkLaminatedSingle(inst)[0])
	if fused := rn.Cycle(clock, idq); len(fused) != 1 {
		t.Fatalf("issueProducer: Cycle() issued %d fused uops, want 1", len(fused))
	}
}

func TestRenamerMoveEliminationAliasesOutput(t *testing.T) {
	cfg := testMicroArch()
	rn, _ := testRenamer(&cfg)
	issueProducer(t, rn, 0, testReg("RBX"))

	mov := testALUInstr("mov rax, rbx", []Operand{testReg("RBX")}, []Operand{testReg("RAX")}, 1, []int{0})
	mov.MoveEliminationEligible = true
	inst := testMkInstance(mov, 0, 0)
	idq := NewIDQ(64)
	idq.Push(testMkLaminatedSingle(inst)[0])

	fused := rn.Cycle(1, idq)
	u := fused[0].Uops[0]
	if !u.Eliminated {
		t.Fatalf("a single-input/single-output move-eligible uop within quota should be eliminated")
	}
	if !u.hasExecuted || u.Executed != 1 {
		t.Fatalf("an eliminated uop should execute immediately on the issuing cycle")
	}
}

func TestRenamerMoveEliminationRespectsQuota(t *testing.T) {
	cfg := testMicroArch()
	cfg.MoveEliminationGPRSlots = 0
	rn, _ := testRenamer(&cfg)
	issueProducer(t, rn, 0, testReg("RBX"))

	mov := testALUInstr("mov rax, rbx", []Operand{testReg("RBX")}, []Operand{testReg("RAX")}, 1, []int{0})
	mov.MoveEliminationEligible = true
	inst := testMkInstance(mov, 0, 0)
	idq := NewIDQ(64)
	idq.Push(testMkLaminatedSingle(inst)[0])

	fused := rn.Cycle(1, idq)
	u := fused[0].Uops[0]
	if u.Eliminated {
		t.Fatalf("move elimination should not apply once the quota is exhausted (slots=0)")
	}
}

func TestRenamerObserveStackEngineInjectsSync(t *testing.T) {
	cfg := testMicroArch()
	rn, _ := testRenamer(&cfg)

	instr := &Instruction{ImplicitRSPDelta: 300}
	if !rn.ObserveStackEngine(instr, false, false) {
		t.Fatalf("ObserveStackEngine() should report a sync once drift exceeds the threshold")
	}
}

func TestRenamerSerializingInstructionStallsOnNonEmptyRB(t *testing.T) {
	cfg := testMicroArch()
	rn, rb := testRenamer(&cfg)

	blocker := newUop(0, nil, &UopProperties{AllowedPorts: []int{0}}, 0)
	rb.Cycle(0, []*FusedUop{{Uops: []*Uop{blocker}}})

	serializing := testALUInstr("mfence", nil, nil, 1, []int{0})
	serializing.IsSerializing = true
	inst := testMkInstance(serializing, 0, 0)
	idq := NewIDQ(64)
	idq.Push(testMkLaminatedSingle(inst)[0])

	fused := rn.Cycle(1, idq)
	if len(fused) != 0 {
		t.Fatalf("Cycle() issued %d fused uops, want 0: a serializing instruction must stall while the RB is non-empty", len(fused))
	}
}

// TestMoveElimTrackerQuotaChargesAliasTableSizeAtPipelineLengthBack pins
// down the reference's two-term quota formula (spec.md §4.4, §9): a sum of
// eliminations committed over offsets 1..pipelineLength-1, plus the
// multi-use alias table's size exactly pipelineLength cycles back (not a
// second sum over the same useInCycle map).
func TestMoveElimTrackerQuotaChargesAliasTableSizeAtPipelineLengthBack(t *testing.T) {
	const pipelineLength = 3
	m := newMoveElimTracker(2, pipelineLength, false)

	alias := &RenamedOperand{}
	m.recordElimination(0, alias) // grows aliasCount to 1
	m.snapshotAliasSize(0)        // aliasSizeInCycle[0] = 1

	if got := m.quotaRemaining(pipelineLength); got != 1 {
		t.Fatalf("quotaRemaining(%d) = %d, want 1 (quota 2 minus the alias table's size of 1 at cycle 0, pipelineLength cycles back)", pipelineLength, got)
	}
}

// TestMoveElimTrackerQuotaSumsRecentEliminationsSeparatelyFromAliasSize
// confirms the sum-of-recent-eliminations term only spans offsets
// 1..pipelineLength-1 and does not overlap with the alias-size term at
// offset pipelineLength.
func TestMoveElimTrackerQuotaSumsRecentEliminationsSeparatelyFromAliasSize(t *testing.T) {
	const pipelineLength = 3
	m := newMoveElimTracker(5, pipelineLength, false)

	clock := int64(10)
	m.recordElimination(clock-1, &RenamedOperand{}) // within the sum window
	m.recordElimination(clock-2, &RenamedOperand{}) // within the sum window
	m.recordElimination(clock-pipelineLength, &RenamedOperand{}) // outside the sum window, the dedicated alias-size term instead
	m.snapshotAliasSize(clock - pipelineLength)

	got := m.quotaRemaining(clock)
	// sum term: 2 eliminations at offsets 1 and 2; alias term: aliasCount
	// has grown to 3 entries by cycle (clock-pipelineLength).
	want := 5 - 2 - 3
	if got != want {
		t.Fatalf("quotaRemaining(%d) = %d, want %d", clock, got, want)
	}
}
