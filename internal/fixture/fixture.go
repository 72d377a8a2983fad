// Package fixture builds small synthetic instruction streams and a
// built-in microarchitecture table for the cmd/uicasim demo harness. It
// stands in for the real per-µarch instruction-decoding/table collaborator
// spec.md §1 explicitly keeps out of the core's scope: a production caller
// would source Instructions from an actual x86-64 decoder and instruction
// database instead.
package fixture

import (
	"fmt"

	"github.com/go-uica/uica"
	"github.com/go-uica/uica/internal/prng"
)

// Generic returns a 10-execution-port microarchitecture description wide
// enough to exercise the scheduler's 10-port distribute-by-slot port
// heuristic, the 6-slot DSB, and LSD admission, so the CLI demo's default
// µarch touches most of the core's behavior.
func Generic() uica.MicroArchConfig {
	return uica.MicroArchConfig{
		XEDName: "genericwide",

		IQWidth:  25,
		IDQWidth: 64,
		RBWidth:  224,
		RSWidth:  97,

		IssueWidth:  4,
		RetireWidth: 4,

		NDecoders:            4,
		PreDecodeWidth:       5,
		PredecodeDecodeDelay: 3,

		DSBWidth:                          6,
		DSBBlockSize:                      32,
		Both32ByteBlocksMustBeCacheable:   true,
		BranchCanBeLastInstrInCachedBlock: false,

		AllPorts:          []string{"0", "1", "2", "3", "4", "5", "6", "7", "8", "9"},
		StackSyncUopPorts: []string{"0", "1", "5", "6"},

		LSDEnabled: true,
		LSDUnrolling: func(nUops int) int {
			if nUops <= 0 {
				return 1
			}
			switch {
			case nUops <= 4:
				return 6
			case nUops <= 8:
				return 3
			default:
				return 1
			}
		},

		DSBMSStall: 2,

		MoveEliminationGPRSlots:                      uica.Unlimited,
		MoveEliminationSIMDSlots:                      0,
		MoveEliminationPipelineLength:                  5,
		MoveEliminationGPRAllAliasesMustBeOverwritten:  false,

		IssueDispatchDelay: 1,

		SimplePortAssignment: false,
		FastPointerChasing:    true,

		MovzxHigh8AliasCanBeEliminated:            false,
		Pop5CRequiresComplexDecoder:                false,
		Pop5CEndsDecodeGroup:                       false,
		MacroFusibleInstrCanBeDecodedAsLastInstr:   false,
	}
}

// Narrow returns a 2-port, 2-decoder microarchitecture, used by the demo's
// "narrow" preset to exercise the scheduler's direct single-port
// assignment path and the simple round-robin 2-port path when a pattern
// mixes port-0-only and 2-port-eligible uops.
func Narrow() uica.MicroArchConfig {
	cfg := Generic()
	cfg.XEDName = "narrow2"
	cfg.AllPorts = []string{"0", "1"}
	cfg.StackSyncUopPorts = []string{"0"}
	cfg.NDecoders = 2
	cfg.DSBWidth = 2
	cfg.LSDEnabled = false
	return cfg
}

// Pattern is a named synthetic program generator.
type Pattern string

const (
	// DepChain is a single-cycle dependency chain: every ADD consumes the
	// previous ADD's result (spec.md §8 scenario 1).
	DepChain Pattern = "depchain"
	// IndependentAdds is four ADDs with no data dependency between them
	// (spec.md §8 scenario 2).
	IndependentAdds Pattern = "indepadds"
	// DivLoop repeatedly issues a DIV, exercising the shared divider
	// resource (spec.md §8 scenario 3).
	DivLoop Pattern = "divloop"
	// PairedStores writes two adjacent same-cache-line locations each
	// iteration (spec.md §8 scenario 4).
	PairedStores Pattern = "pairedstores"
	// MovLoop is a tight MOV-register loop shaped to qualify for LSD
	// admission: no microcode, no implicit RSP change, fits in the IDQ
	// (spec.md §8 scenario 5).
	MovLoop Pattern = "movloop"
	// PointerChase loads through a chain of pointers, each load's address
	// depending on the previous load's result (spec.md §8 scenario 6,
	// FastPointerChasing).
	PointerChase Pattern = "pointerchase"
)

// All lists every built-in pattern, in the order cmd/uicasim's bench
// subcommand reports them.
var All = []Pattern{DepChain, IndependentAdds, DivLoop, PairedStores, MovLoop, PointerChase}

// Build constructs length dynamic-looking instructions for pattern (2*length
// for PairedStores, which emits one pair per step) against a
// microarchitecture with the given port count, followed by a terminating
// branch so RoundGenerator treats the stream as a loop. length is clamped
// to at least 1. Patterns reference port indices tuned for Generic's
// 10-wide layout; numPorts lets the same builders run against a narrower
// µarch (e.g. Narrow's 2 ports) by clamping every AllowedPorts list down to
// the ports that actually exist (spec.md §6's AllPorts is caller-sized, not
// fixed-width).
func Build(pattern Pattern, length int, numPorts int) ([]*uica.Instruction, error) {
	if length < 1 {
		length = 1
	}
	if numPorts < 1 {
		numPorts = 1
	}
	switch pattern {
	case DepChain:
		return depChain(length, numPorts), nil
	case IndependentAdds:
		return independentAdds(length, numPorts), nil
	case DivLoop:
		return divLoop(length, numPorts), nil
	case PairedStores:
		return pairedStores(length, numPorts), nil
	case MovLoop:
		return movLoop(length, numPorts), nil
	case PointerChase:
		return pointerChase(length, numPorts), nil
	default:
		return nil, fmt.Errorf("fixture: unknown pattern %q", pattern)
	}
}

// clampPorts filters ports down to indices that exist in a numPorts-wide
// microarchitecture, falling back to port 0 if none remain.
func clampPorts(ports []int, numPorts int) []int {
	out := make([]int, 0, len(ports))
	for _, p := range ports {
		if p < numPorts {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		out = append(out, 0)
	}
	return out
}

// opcodeBytes deterministically derives plausible-looking opcode bytes
// for pattern/index pairs from the prng stream, the same blake2b-backed
// generator the scheduler's simplePortAssignment mode uses, so distinct
// demo runs of the same pattern always lay out identical byte lengths.
func opcodeBytes(pattern Pattern, idx, n int) []byte {
	seed := []byte(fmt.Sprintf("uica-fixture:%s:%d", pattern, idx))
	s := prng.New(seed)
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = s.Byte()
	}
	return buf
}

func reg(name string) uica.Operand {
	return uica.Operand{Kind: uica.OperandReg, Reg: name}
}

func aluUop(instr *uica.Instruction, in, out []uica.Operand, lat int, ports []int) uica.UopProperties {
	return uica.UopProperties{
		Instr:             instr,
		AllowedPorts:      ports,
		Inputs:            in,
		Outputs:           out,
		OutputLatency:     repeat(lat, len(out)),
		IsFirstUopOfInstr: true,
		IsLastUopOfInstr:  true,
	}
}

func repeat(v, n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// branch builds the loop-closing terminator every fixture program ends
// with: a single-port jump with no outputs, TotalUops 1.
func branch(idx int, numPorts int) *uica.Instruction {
	instr := &uica.Instruction{
		Asm:         "jmp .loop",
		OpcodeBytes: opcodeBytes("branch", idx, 2),
		TotalUops:   1,
		RetireSlots: 1,
		UopsMITE:    1,
		TP:          1,
		IsBranch:    true,
		Latency:     map[[2]int]int{},
	}
	instr.UopPropertiesList = []uica.UopProperties{aluUop(instr, nil, nil, 1, clampPorts([]int{6}, numPorts))}
	return instr
}

// depChain builds n ADDs where instruction i reads the accumulator
// register RAX and writes it back, so each instance can only dispatch
// once the previous instance's output is ready (spec.md §8 scenario 1).
func depChain(n, numPorts int) []*uica.Instruction {
	out := make([]*uica.Instruction, 0, n+1)
	for i := 0; i < n; i++ {
		instr := &uica.Instruction{
			Asm:                     "add rax, 1",
			OpcodeBytes:             opcodeBytes(DepChain, i, 4),
			TotalUops:               1,
			RetireSlots:             1,
			UopsMITE:                1,
			TP:                      1,
			Immediate:               1,
			MoveEliminationEligible: false,
			Latency:                 map[[2]int]int{},
		}
		instr.UopPropertiesList = []uica.UopProperties{
			aluUop(instr, []uica.Operand{reg("RAX")}, []uica.Operand{reg("RAX")}, 1, clampPorts([]int{0, 1, 5, 6}, numPorts)),
		}
		out = append(out, instr)
	}
	out = append(out, branch(n, numPorts))
	return out
}

// independentAdds builds n ADDs into four disjoint accumulators so no
// instance depends on another, letting the scheduler saturate every ALU
// port (spec.md §8 scenario 2).
func independentAdds(n, numPorts int) []*uica.Instruction {
	regs := []string{"RAX", "RBX", "RCX", "RDX"}
	out := make([]*uica.Instruction, 0, n+1)
	for i := 0; i < n; i++ {
		r := regs[i%len(regs)]
		instr := &uica.Instruction{
			Asm:         fmt.Sprintf("add %s, 1", r),
			OpcodeBytes: opcodeBytes(IndependentAdds, i, 4),
			TotalUops:   1,
			RetireSlots: 1,
			UopsMITE:    1,
			TP:          1,
			Immediate:   1,
			Latency:     map[[2]int]int{},
		}
		instr.UopPropertiesList = []uica.UopProperties{
			aluUop(instr, []uica.Operand{reg(r)}, []uica.Operand{reg(r)}, 1, clampPorts([]int{0, 1, 5, 6}, numPorts)),
		}
		out = append(out, instr)
	}
	out = append(out, branch(n, numPorts))
	return out
}

// divLoop builds n DIVs, each a 1-uop, divider-bound instruction with a
// 20-cycle divider occupancy, to exercise the shared divider resource
// (spec.md §8 scenario 3).
func divLoop(n, numPorts int) []*uica.Instruction {
	out := make([]*uica.Instruction, 0, n+1)
	for i := 0; i < n; i++ {
		instr := &uica.Instruction{
			Asm:         "div rcx",
			OpcodeBytes: opcodeBytes(DivLoop, i, 3),
			TotalUops:   1,
			RetireSlots: 1,
			UopsMITE:    1,
			TP:          20,
			DivCycles:   20,
			Latency:     map[[2]int]int{},
		}
		props := aluUop(instr, []uica.Operand{reg("RAX"), reg("RCX")}, []uica.Operand{reg("RAX"), reg("RDX")}, 20, clampPorts([]int{1}, numPorts))
		props.DivCycles = 20
		instr.UopPropertiesList = []uica.UopProperties{props}
		out = append(out, instr)
	}
	out = append(out, branch(n, numPorts))
	return out
}

// pairedStores builds n pairs of stores at displacement (i%4)*16 and
// (i%4)*16+8 from the same base register, so every pair, and every group
// of 4 consecutive pairs, shares one 64-byte cache line (spec.md §8
// scenario 4).
func pairedStores(n, numPorts int) []*uica.Instruction {
	out := make([]*uica.Instruction, 0, 2*n+1)
	for i := 0; i < n; i++ {
		base := int32((i % 4) * 16)
		for j, off := range []int32{0, 8} {
			mem := uica.MemDescriptor{Base: "RBX", Scale: 1, Displacement: base + off}
			instr := &uica.Instruction{
				Asm:         fmt.Sprintf("mov [rbx+%d], rax", base+off),
				OpcodeBytes: opcodeBytes(PairedStores, i*2+j, 4),
				TotalUops:   2,
				RetireSlots: 1,
				UopsMITE:    2,
				TP:          1,
				MemOperands: []uica.MemDescriptor{mem},
				Latency:     map[[2]int]int{},
			}
			addrUop := uica.UopProperties{
				Instr: instr, AllowedPorts: clampPorts([]int{2, 3, 7}, numPorts),
				Inputs: []uica.Operand{reg("RBX")}, MemDescriptor: &mem,
				IsStoreAddressUop: true, IsFirstUopOfInstr: true,
			}
			dataUop := uica.UopProperties{
				Instr: instr, AllowedPorts: clampPorts([]int{4}, numPorts),
				Inputs: []uica.Operand{reg("RAX")}, MemDescriptor: &mem,
				IsStoreDataUop: true, IsLastUopOfInstr: true,
			}
			instr.UopPropertiesList = []uica.UopProperties{addrUop, dataUop}
			out = append(out, instr)
		}
	}
	out = append(out, branch(n, numPorts))
	return out
}

// movLoop builds n register-to-register MOVs, each move-elimination
// eligible and LSD-admissible: no MS uops, no implicit RSP change, no
// high-8 register operand (spec.md §8 scenario 5).
func movLoop(n, numPorts int) []*uica.Instruction {
	out := make([]*uica.Instruction, 0, n+1)
	for i := 0; i < n; i++ {
		src, dst := "RAX", "RBX"
		if i%2 == 1 {
			src, dst = "RBX", "RAX"
		}
		instr := &uica.Instruction{
			Asm:                     fmt.Sprintf("mov %s, %s", dst, src),
			OpcodeBytes:             opcodeBytes(MovLoop, i, 3),
			TotalUops:               1,
			RetireSlots:             1,
			UopsMITE:                1,
			TP:                      1,
			MoveEliminationEligible: true,
			Latency:                 map[[2]int]int{},
		}
		instr.UopPropertiesList = []uica.UopProperties{
			aluUop(instr, []uica.Operand{reg(src)}, []uica.Operand{reg(dst)}, 1, clampPorts([]int{0, 1, 5, 6}, numPorts)),
		}
		out = append(out, instr)
	}
	out = append(out, branch(n, numPorts))
	return out
}

// pointerChase builds n loads where instance i's address depends on
// instance i-1's loaded value (RAX both feeds the next load's base and
// receives its own result), the shape spec.md §8 scenario 6 uses to
// exercise FastPointerChasing's reduced-latency path.
func pointerChase(n, numPorts int) []*uica.Instruction {
	out := make([]*uica.Instruction, 0, n+1)
	for i := 0; i < n; i++ {
		mem := uica.MemDescriptor{Base: "RAX", Scale: 1, Displacement: 0}
		instr := &uica.Instruction{
			Asm:         "mov rax, [rax]",
			OpcodeBytes: opcodeBytes(PointerChase, i, 3),
			TotalUops:   1,
			RetireSlots: 1,
			UopsMITE:    1,
			TP:          1,
			MemOperands: []uica.MemDescriptor{mem},
			Latency:     map[[2]int]int{},
		}
		instr.UopPropertiesList = []uica.UopProperties{{
			Instr:             instr,
			AllowedPorts:      clampPorts([]int{2, 3}, numPorts),
			Inputs:            []uica.Operand{reg("RAX")},
			Outputs:           []uica.Operand{reg("RAX")},
			OutputLatency:     []int{4},
			MemDescriptor:     &mem,
			IsLoadUop:         true,
			IsFirstUopOfInstr: true,
			IsLastUopOfInstr:  true,
		}}
		out = append(out, instr)
	}
	out = append(out, branch(n, numPorts))
	return out
}
