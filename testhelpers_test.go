package uica

// testMicroArch returns a small, fully valid MicroArchConfig used as a
// baseline across unit tests; individual tests override the fields they
// care about.
func testMicroArch() MicroArchConfig {
	return MicroArchConfig{
		XEDName: "testarch",

		IQWidth:  25,
		IDQWidth: 16,
		RBWidth:  32,
		RSWidth:  16,

		IssueWidth:  4,
		RetireWidth: 4,

		NDecoders:            4,
		PreDecodeWidth:       5,
		PredecodeDecodeDelay: 3,

		DSBWidth:                          4,
		DSBBlockSize:                      32,
		Both32ByteBlocksMustBeCacheable:   true,
		BranchCanBeLastInstrInCachedBlock: false,

		AllPorts:          []string{"0", "1", "2", "3"},
		StackSyncUopPorts: []string{"0", "1"},

		LSDEnabled: true,
		LSDUnrolling: func(nUops int) int {
			if nUops <= 4 {
				return 4
			}
			return 1
		},

		DSBMSStall: 2,

		MoveEliminationGPRSlots:                      2,
		MoveEliminationSIMDSlots:                      0,
		MoveEliminationPipelineLength:                 3,
		MoveEliminationGPRAllAliasesMustBeOverwritten: false,

		IssueDispatchDelay: 1,
	}
}

func testReg(name string) Operand {
	return Operand{Kind: OperandReg, Reg: name}
}

// testALUInstr builds a single-uop, single-retire-slot ALU instruction
// reading in and writing out, with the given per-output latency and
// allowed ports.
func testALUInstr(asm string, in, out []Operand, latency int, ports []int) *Instruction {
	instr := &Instruction{
		Asm:         asm,
		OpcodeBytes: []byte{0x01, 0x02},
		TotalUops:   1,
		RetireSlots: 1,
		UopsMITE:    1,
		TP:          1,
		Latency:     map[[2]int]int{},
	}
	instr.UopPropertiesList = []UopProperties{{
		Instr:             instr,
		AllowedPorts:      ports,
		Inputs:            in,
		Outputs:           out,
		OutputLatency:     repeatInt(latency, len(out)),
		IsFirstUopOfInstr: true,
		IsLastUopOfInstr:  true,
	}}
	return instr
}

func repeatInt(v, n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func testBranch() *Instruction {
	instr := &Instruction{
		Asm:         "jmp .loop",
		OpcodeBytes: []byte{0xeb, 0x00},
		TotalUops:   1,
		RetireSlots: 1,
		UopsMITE:    1,
		TP:          1,
		IsBranch:    true,
		Latency:     map[[2]int]int{},
	}
	instr.UopPropertiesList = []UopProperties{{
		Instr: instr, AllowedPorts: []int{2}, IsFirstUopOfInstr: true, IsLastUopOfInstr: true,
	}}
	return instr
}
