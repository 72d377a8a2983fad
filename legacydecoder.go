package uica

// LegacyDecoder is the MITE decode path: per cycle it consumes up to
// nDecoders IQ entries the Predecoder has produced (spec.md §4.2.2).
type LegacyDecoder struct {
	cfg *MicroArchConfig
	log *EventLog
}

// NewLegacyDecoder creates a LegacyDecoder for the given microarchitecture.
func NewLegacyDecoder(cfg *MicroArchConfig, log *EventLog) *LegacyDecoder {
	return &LegacyDecoder{cfg: cfg, log: log}
}

// Cycle decodes up to nDecoders IQ entries into idq. The complex decoder
// instruction must be first decoded in the cycle and sets how many simple
// decoders remain usable; fused-away companions and MS-companion
// instructions never occupy a decoder slot; the cycle ends after a branch,
// a hand-off to MS, or a macro-fused pair whose partner needs a reserved
// slot (spec.md §4.2.2).
func (d *LegacyDecoder) Cycle(clock int64, idq *IDQ, pre *Predecoder, ms *MicrocodeSequencer, state *uopSourceState, mkLaminated func(*InstrInstance) []*LaminatedUop) {
	decoded := 0
	simpleLeft := d.cfg.NDecoders - 1

	for decoded < d.cfg.NDecoders {
		pi := pre.Peek(clock)
		if pi == nil {
			return
		}
		instr := pi.instr

		if instr.FusedAway {
			// Already emitted as the macro-fused predecessor's companion;
			// consumes no decoder resource (spec.md §7, §4.2.2).
			pre.Pop()
			pi.inst.RemovedFromIQCycle = clock
			d.log.Record(clock, EventRemovedFromIQ)
			continue
		}

		if instr.ComplexDecoder {
			if decoded != 0 {
				return
			}
			simpleLeft = instr.SimpleDecodersUsable
		} else if decoded > 0 && simpleLeft <= 0 {
			return
		}

		pre.Pop()
		laminated := mkLaminated(pi.inst)
		for _, l := range laminated {
			if !idq.Push(l) {
				state.current = SourceMITE
				return
			}
			l.AddedToIDQ = clock
			d.log.Record(clock, EventAddedToIDQ)
		}
		pi.inst.RemovedFromIQCycle = clock
		pi.inst.Source = SourceMITE
		d.log.Record(clock, EventRemovedFromIQ)

		decoded++
		// The first instruction of a cycle goes to the complex decoder, so
		// only later simple instructions use up a simple decoder.
		if !instr.ComplexDecoder && decoded > 1 {
			simpleLeft--
		}

		if instr.UopsMS > 0 {
			ms.Enqueue(pi.inst, SourceMITE, mkLaminated)
			state.current = SourceMS
			return
		}

		if instr.IsBranch {
			return
		}

		if d.reservesPartnerSlot(instr) && decoded >= d.cfg.NDecoders-1 {
			return
		}
	}
}

// reservesPartnerSlot reports whether instr is the predecessor half of a
// macro-fusible pair that the µarch forbids decoding as the last
// instruction of a group, meaning a slot must be reserved for its partner
// (spec.md §4.2.2).
func (d *LegacyDecoder) reservesPartnerSlot(instr *Instruction) bool {
	return len(instr.MacroFusibleWith) > 0 && !d.cfg.MacroFusibleInstrCanBeDecodedAsLastInstr
}
