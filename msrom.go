package uica

// MicrocodeSequencer is the MS-ROM front-end path: a FIFO µop queue plus a
// stall counter. While stalled it emits nothing; otherwise it emits up to
// 4 laminated µops per cycle. MS preempts all other uop sources while
// busy (spec.md §4.2, §4.2.4).
type MicrocodeSequencer struct {
	cfg *MicroArchConfig
	log *EventLog

	queue           []*LaminatedUop
	stallCyclesLeft int
}

// NewMicrocodeSequencer creates an MS sequencer for the given
// microarchitecture.
func NewMicrocodeSequencer(cfg *MicroArchConfig, log *EventLog) *MicrocodeSequencer {
	return &MicrocodeSequencer{cfg: cfg, log: log}
}

// Enqueue hands an instruction's MS-domain µops to the sequencer. The
// entry stall depends on the uop source that was active just before this
// hand-off: 1 cycle post-stall from MITE, DSB_MS_Stall cycles (and no
// post-stall) from DSB (spec.md §4.2.4).
func (ms *MicrocodeSequencer) Enqueue(inst *InstrInstance, prevSource UopSource, mkLaminated func(*InstrInstance) []*LaminatedUop) {
	inst.Source = SourceMS
	ms.queue = append(ms.queue, mkLaminated(inst)...)
	if prevSource == SourceDSB {
		ms.stallCyclesLeft = ms.cfg.DSBMSStall
	} else {
		ms.stallCyclesLeft = 1
	}
}

// Busy reports whether MS still holds queued µops or is stalled, and so
// must preempt every other uop source this cycle (spec.md §4.2).
func (ms *MicrocodeSequencer) Busy() bool {
	return len(ms.queue) > 0 || ms.stallCyclesLeft > 0
}

// Cycle emits up to 4 queued laminated µops into idq, or decrements the
// stall counter and emits nothing if still stalled.
func (ms *MicrocodeSequencer) Cycle(clock int64, idq *IDQ) {
	if ms.stallCyclesLeft > 0 {
		ms.stallCyclesLeft--
		return
	}
	emitted := 0
	for emitted < 4 && len(ms.queue) > 0 && idq.Headroom() > 0 {
		l := ms.queue[0]
		ms.queue = ms.queue[1:]
		l.AddedToIDQ = clock
		idq.Push(l)
		ms.log.Record(clock, EventAddedToIDQ)
		emitted++
	}
}
