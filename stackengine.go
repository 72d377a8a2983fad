package uica

// stackSyncThreshold is the magnitude of tracked RSP drift, in bytes,
// beyond which the stack engine injects a synchronizing uop. Spec.md §9
// flags this as an empirically observed constant, not derived from first
// principles; kept verbatim rather than re-derived.
const stackSyncThreshold = 192

// stackEngine tracks the renamer-side view of RSP drift relative to the
// architectural value and decides when a StackSyncUop must be injected
// (spec.md §4.3).
type stackEngine struct {
	offset int
}

// stackEngineDecision is what the renamer should do for one first-uop of
// an instruction with a potential RSP interaction.
type stackEngineDecision struct {
	injectSync bool
}

// observe applies one instruction's RSP interaction to the stack engine
// and reports whether a sync uop must be injected before this
// instruction's own uops (spec.md §4.3):
//
//  1. If the current offset is nonzero and the instruction reads RSP
//     (excluding implicit stack operands), inject a sync and reset offset.
//  2. Add implicitRSPDelta to the offset; if |offset| > 192, inject a
//     sync and reset.
//  3. If the instruction writes RSP, reset the offset (no sync needed —
//     the write makes RSP exact again).
func (se *stackEngine) observe(instr *Instruction, readsRSPExplicitly, writesRSP bool) stackEngineDecision {
	dec := stackEngineDecision{}

	if se.offset != 0 && readsRSPExplicitly {
		dec.injectSync = true
		se.offset = 0
	}

	se.offset += instr.ImplicitRSPDelta
	if se.offset > stackSyncThreshold || se.offset < -stackSyncThreshold {
		dec.injectSync = true
		se.offset = 0
	}

	if writesRSP {
		se.offset = 0
	}

	return dec
}

// newStackSyncUopProperties builds the UopProperties template for a
// synthetic StackSyncUop: single ALU port set, latency 1, first-uop-of-
// instruction flagged so the renamer treats it like an ordinary leading
// uop for merge/serialization checks (spec.md §4.3).
func newStackSyncUopProperties(portIndices []int) UopProperties {
	return UopProperties{
		AllowedPorts:      portIndices,
		OutputLatency:     []int{1},
		IsFirstUopOfInstr: true,
		IsLastUopOfInstr:  true,
	}
}
