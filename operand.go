package uica

// OperandKind tags what kind of dynamic value an Operand refers to.
type OperandKind uint8

const (
	OperandReg OperandKind = iota
	OperandFlag
	OperandMemory
	OperandPseudo
)

// Operand is a tagged variant identifying one non-renamed input/output of
// an instruction or uop (spec.md §9, "dynamic-typed operand identity").
// Equality for rename-map keying is by canonical register name, flag group
// string, or pseudo-operand identity (PseudoID, an arena index).
type Operand struct {
	Kind      OperandKind
	Reg       string // canonical register name, when Kind == OperandReg
	FlagGroup string // "C" or "SPAZO", when Kind == OperandFlag
	PseudoID  int    // arena index, when Kind == OperandPseudo
}

// key returns a value usable as a map key for rename-table lookups.
func (o Operand) key() Operand {
	return o
}

// MemDescriptor is the symbolic memory-address descriptor carried by
// memory uops: base/index register names (possibly empty), a scale, and a
// displacement. Values are never concrete addresses — only fingerprints
// derived from this descriptor are compared (spec.md §1 Non-goals).
type MemDescriptor struct {
	Base        string
	Index       string
	Scale       int
	Displacement int32
}

// RenamedOperand is a physical name: the Uop that produced it (nil for an
// initial architectural value or an eliminated move), the non-renamed
// operand it corresponds to, and a memoized ready cycle.
//
// readyCycle is computed lazily and must be idempotent once known: once the
// producer has dispatched the result never changes, so once ready is true
// callers must never recompute (spec.md §9).
type RenamedOperand struct {
	Idx          int
	Producer     *Uop
	NonRenamed   Operand
	ready        bool
	readyCycle   int64
	forwardEntry *StoreBufferEntry // set for loads forwarded from a store buffer hit
}

// newInitialOperand creates a RenamedOperand for an architectural value that
// existed before the simulation started: it has no producer and is ready at
// cycle 0.
func newInitialOperand(idx int, nonRenamed Operand) *RenamedOperand {
	return &RenamedOperand{Idx: idx, NonRenamed: nonRenamed, ready: true, readyCycle: 0}
}

// ReadyCycle returns the cycle at which this operand's value becomes
// available for consumption, and whether that cycle is known yet. A
// producer that has not dispatched yet yields (0, false); the caller must
// not cache that negative result and must re-query on a later cycle
// (spec.md §9).
func (ro *RenamedOperand) ReadyCycle(sched *Scheduler) (int64, bool) {
	if ro.ready {
		return ro.readyCycle, true
	}
	if ro.Producer == nil {
		// Eliminated move or otherwise producer-less but not yet marked
		// ready: treat as immediately available.
		ro.ready = true
		ro.readyCycle = 0
		return 0, true
	}

	// The value is ready dispatched+latency cycles after the producer
	// dispatches, using this output's own latency (1 if none is given).
	p := ro.Producer
	var cycle int64
	switch {
	case p.Dispatched >= 0:
		lat := int64(1)
		for i, out := range p.Outputs {
			if out == ro && i < len(p.Props.OutputLatency) {
				lat = int64(p.Props.OutputLatency[i])
			}
		}
		cycle = p.Dispatched + lat
	case p.hasExecuted:
		cycle = p.Executed
	default:
		return 0, false
	}
	if ro.forwardEntry != nil {
		addrReady, addrOK := sched.storeHalfReady(ro.forwardEntry, false)
		dataReady, dataOK := sched.storeHalfReady(ro.forwardEntry, true)
		if !addrOK || !dataOK {
			return 0, false
		}
		fwd := addrReady
		if dataReady > fwd {
			fwd = dataReady
		}
		fwd += forwardingLatency
		if fwd > cycle {
			cycle = fwd
		}
	}

	ro.ready = true
	ro.readyCycle = cycle
	return cycle, true
}

// forwardingLatency is the extra cycles a store-to-load forward adds on top
// of max(storeAddrReady, storeDataReady), per spec.md §3. Not a
// MicroArchConfig field in spec.md §6 (the external instruction tables are
// assumed to bake a forwarding penalty into individual load latencies on
// µarchs where it varies); kept as a small fixed constant here since
// spec.md names the term but never enumerates it as caller-configurable.
const forwardingLatency = 5
