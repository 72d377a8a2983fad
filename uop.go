package uica

// UopSource identifies which front-end path supplied a LaminatedUop.
type UopSource uint8

const (
	SourceMITE UopSource = iota
	SourceDSB
	SourceLSD
	SourceMS
)

func (s UopSource) String() string {
	switch s {
	case SourceMITE:
		return "MITE"
	case SourceDSB:
		return "DSB"
	case SourceLSD:
		return "LSD"
	case SourceMS:
		return "MS"
	default:
		return "?"
	}
}

// Uop is the atomic dispatch unit: it is dispatched to exactly one
// execution port (spec.md §3, GLOSSARY). Event timestamps are -1 until
// set; -1 means "not yet reached".
type Uop struct {
	Idx      int
	Instance *InstrInstance
	Props    *UopProperties

	Inputs  []*RenamedOperand
	Outputs []*RenamedOperand

	// GlobalIndex is this uop's position in program order, used to key the
	// per-port ready-queue min-heaps (spec.md §4.6).
	GlobalIndex int64

	StoreEntry *StoreBufferEntry

	Eliminated bool
	Port       int // index into MicroArchConfig.AllPorts, -1 until assigned

	Issued           int64
	ReadyForDispatch int64
	Dispatched       int64
	Executed         int64

	hasReadyForDispatch bool
	hasExecuted         bool
}

func newUop(idx int, inst *InstrInstance, props *UopProperties, globalIdx int64) *Uop {
	return &Uop{
		Idx:         idx,
		Instance:    inst,
		Props:       props,
		GlobalIndex: globalIdx,
		Port:        -1,
		Issued:      -1, ReadyForDispatch: -1, Dispatched: -1, Executed: -1,
	}
}

// possiblePorts reports whether this uop has any legal dispatch port. A
// uop with no possible ports (e.g. a degenerate synthetic uop) retires
// immediately upon RB append (spec.md §4.5).
func (u *Uop) possiblePorts() bool {
	return len(u.Props.AllowedPorts) > 0
}

// FusedUop is 1–2 unfused Uops that issue/retire as one RB slot (spec.md
// §3 GLOSSARY).
type FusedUop struct {
	Idx  int
	Uops []*Uop

	Issued    int64
	Retired   int64
	RetireIdx int64
}

// retireReady reports whether every constituent Uop has executed strictly
// before currentCycle (spec.md §4.5).
func (f *FusedUop) retireReady(currentCycle int64) bool {
	for _, u := range f.Uops {
		if u.Executed < 0 || u.Executed >= currentCycle {
			return false
		}
	}
	return true
}

// LaminatedUop is 1+ FusedUops that occupy one IDQ slot (spec.md §3
// GLOSSARY).
type LaminatedUop struct {
	Idx       int
	Instance  *InstrInstance
	FusedUops []*FusedUop

	AddedToIDQ int64

	IsRegMergeUop  bool
	IsStackSyncUop bool
}

func (l *LaminatedUop) uopCount() int {
	n := 0
	for _, f := range l.FusedUops {
		n += len(f.Uops)
	}
	return n
}

// canFuse reports whether a load/store-address Uop and a following ALU
// uop may share one FusedUop: the first must be flagged as a load or
// store-address uop, and the resulting fused slot must fit the
// instruction's target retireSlots and uopsMITE+uopsMS counts (spec.md §3
// lamination invariants). The memory uop's port set is not examined.
func canFuse(mem, alu *UopProperties, targetRetireSlots, targetFrontEndUops, currentFusedCount, currentFrontEndCount int) bool {
	if mem == nil || alu == nil {
		return false
	}
	if !(mem.IsLoadUop || mem.IsStoreAddressUop) {
		return false
	}
	if currentFusedCount+1 > targetRetireSlots {
		return false
	}
	if currentFrontEndCount > targetFrontEndUops {
		return false
	}
	return true
}
