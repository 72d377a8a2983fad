package uica

// Instruction is a program-order static entry, built once by the external
// instruction-decoding/table collaborators (spec.md §1) and immutable
// afterward. It carries everything the front-end, renamer, and scheduler
// need about one instruction form.
type Instruction struct {
	Asm               string
	OpcodeBytes       []byte
	NominalOpcodePos  int
	Canonical         string

	TotalUops     int
	RetireSlots   int
	UopsMITE      int
	UopsMS        int
	DivCycles     int

	InputOperands  []Operand
	OutputOperands []Operand
	MemOperands    []MemDescriptor
	AgenOperands   []Operand

	// Latency maps a (inputIndex, outputIndex) pair to a cycle count.
	Latency map[[2]int]int

	TP float64

	Immediate int32
	LCPStall  bool

	ImplicitRSPDelta int

	MoveEliminationEligible bool

	ComplexDecoder         bool
	SimpleDecodersUsable   int

	LockPrefix bool

	IsBranch            bool
	IsSerializing       bool
	IsLoadSerializing   bool
	IsStoreSerializing  bool

	// MacroFusibleWith is the set of following-mnemonic strings this
	// instruction can macro-fuse as the first ("predecessor") half with.
	MacroFusibleWith map[string]bool
	// PostFusion is set on the instruction record synthesized to replace
	// a macro-fused pair's first half once fusion is decided.
	PostFusion bool
	// FusedAway marks the companion half of an already-decided macro-fused
	// pair: it occupies no decoder/issue/retire resource and is reported
	// with note 'M' rather than simulated (spec.md §7).
	FusedAway bool

	UopPropertiesList         []UopProperties
	RegMergeUopPropertiesList []UopProperties
}

// CanBeUsedByLSD reports whether this instruction form is eligible for
// loop-stream-detector admission: no microcode uops, no implicit RSP
// change, and no high-8-bit GPR operand (spec.md §4.2, canBeUsedByLSD).
func (in *Instruction) CanBeUsedByLSD() bool {
	if in.UopsMS > 0 {
		return false
	}
	if in.ImplicitRSPDelta != 0 {
		return false
	}
	for _, op := range in.InputOperands {
		if op.Kind == OperandReg && isHigh8Reg(op.Reg) {
			return false
		}
	}
	for _, op := range in.OutputOperands {
		if op.Kind == OperandReg && isHigh8Reg(op.Reg) {
			return false
		}
	}
	return true
}

func isHigh8Reg(name string) bool {
	switch name {
	case "AH", "BH", "CH", "DH":
		return true
	}
	return false
}

// UnknownInstr builds the fallback record for an iform with no entry in the
// µarch instruction table (spec.md §7): empty port data, one retirement
// slot, one MITE uop, no latencies. The core does not stop simulating;
// reports annotate it with note 'X'.
func UnknownInstr(asm string) *Instruction {
	in := &Instruction{
		Asm:         asm,
		Canonical:   asm,
		TotalUops:   1,
		RetireSlots: 1,
		UopsMITE:    1,
		TP:          1,
		Latency:     map[[2]int]int{},
	}
	in.UopPropertiesList = []UopProperties{{
		Instr:             in,
		AllowedPorts:      nil,
		IsFirstUopOfInstr: true,
		IsLastUopOfInstr:  true,
	}}
	return in
}

// IsUnknown reports whether this instruction is the UnknownInstr fallback
// (no assigned ports on its sole uop).
func (in *Instruction) IsUnknown() bool {
	return len(in.UopPropertiesList) == 1 && len(in.UopPropertiesList[0].AllowedPorts) == 0 && in.TotalUops == 1
}

// Note returns the per-instruction-table report annotation for the error
// kinds spec.md §7 defines: 'X' for an unknown iform, 'M' for a macro-fused
// companion that consumed no resources, or "" otherwise.
func (in *Instruction) Note() string {
	switch {
	case in.FusedAway:
		return "M"
	case in.IsUnknown():
		return "X"
	default:
		return ""
	}
}

// UopProperties is the static template for one unfused-domain uop: its
// owning instruction, allowed ports, operand references, per-output
// latency, divider cycles, and role flags (spec.md §3).
type UopProperties struct {
	Instr *Instruction

	AllowedPorts []int // indices into MicroArchConfig.AllPorts

	Inputs  []Operand
	Outputs []Operand
	// OutputLatency[i] is the latency in cycles from dispatch to output i
	// (parallel to Outputs).
	OutputLatency []int

	DivCycles int

	IsLoadUop         bool
	IsStoreAddressUop bool
	IsStoreDataUop    bool
	IsFirstUopOfInstr bool
	IsLastUopOfInstr  bool
	IsRegMergeUop     bool

	MemDescriptor *MemDescriptor
}
