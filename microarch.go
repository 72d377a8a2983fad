package uica

import "fmt"

// Unlimited marks a move-elimination slot count as having no quota limit.
const Unlimited = -1

// MicroArchConfig describes the microarchitectural parameters the core
// simulates against. It is supplied by the caller (the per-microarch
// instruction-table/config source is out of scope for this module, per
// spec.md §1/§6).
type MicroArchConfig struct {
	XEDName string

	IQWidth  int
	IDQWidth int
	RBWidth  int
	RSWidth  int

	IssueWidth  int
	RetireWidth int

	NDecoders            int
	PreDecodeWidth       int
	PredecodeDecodeDelay int

	DSBWidth                      int
	DSBBlockSize                  int // 32 or 64
	Both32ByteBlocksMustBeCacheable bool
	BranchCanBeLastInstrInCachedBlock bool

	AllPorts          []string
	StackSyncUopPorts []string

	LSDEnabled   bool
	LSDUnrolling func(nUops int) int

	DSBMSStall int

	MoveEliminationGPRSlots                int // count, or Unlimited
	MoveEliminationSIMDSlots                int // count, or Unlimited
	MoveEliminationPipelineLength           int
	MoveEliminationGPRAllAliasesMustBeOverwritten bool

	IssueDispatchDelay int

	SimplePortAssignment bool
	FastPointerChasing    bool

	MovzxHigh8AliasCanBeEliminated bool
	Pop5CRequiresComplexDecoder    bool
	Pop5CEndsDecodeGroup           bool
	MacroFusibleInstrCanBeDecodedAsLastInstr bool
}

// Validate checks the microarch configuration for internal consistency.
// This is a programmer-facing sanity check, not a recoverable user error
// path (spec.md §7 treats malformed µarch data as a CLI-boundary concern,
// not something the core retries around).
func (c *MicroArchConfig) Validate() error {
	if c.XEDName == "" {
		return fmt.Errorf("uica: MicroArchConfig.XEDName must not be empty")
	}
	if c.IQWidth <= 0 || c.IDQWidth <= 0 || c.RBWidth <= 0 || c.RSWidth <= 0 {
		return fmt.Errorf("uica: %s: queue widths must be positive", c.XEDName)
	}
	if c.IssueWidth <= 0 || c.RetireWidth <= 0 {
		return fmt.Errorf("uica: %s: issue/retire width must be positive", c.XEDName)
	}
	if c.NDecoders <= 0 || c.PreDecodeWidth <= 0 {
		return fmt.Errorf("uica: %s: decoder widths must be positive", c.XEDName)
	}
	if c.DSBWidth <= 0 {
		return fmt.Errorf("uica: %s: DSBWidth must be positive", c.XEDName)
	}
	if c.DSBBlockSize != 32 && c.DSBBlockSize != 64 {
		return fmt.Errorf("uica: %s: DSBBlockSize must be 32 or 64, got %d", c.XEDName, c.DSBBlockSize)
	}
	if len(c.AllPorts) == 0 {
		return fmt.Errorf("uica: %s: AllPorts must not be empty", c.XEDName)
	}
	if c.LSDEnabled && c.LSDUnrolling == nil {
		return fmt.Errorf("uica: %s: LSDUnrolling function required when LSDEnabled", c.XEDName)
	}
	if c.IssueDispatchDelay < 0 {
		return fmt.Errorf("uica: %s: IssueDispatchDelay must be non-negative", c.XEDName)
	}
	return nil
}

// portIndex returns the index of a port label in AllPorts, or -1.
func (c *MicroArchConfig) portIndex(label string) int {
	for i, p := range c.AllPorts {
		if p == label {
			return i
		}
	}
	return -1
}
