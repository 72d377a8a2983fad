package uica

import "fmt"

// Bottleneck is one label in the reported bottleneck set (spec.md §8).
type Bottleneck struct {
	Label string
}

// classifyBottlenecks implements spec.md §8's quantified rule: the
// reported set is the union of every qualifying condition, never a single
// best guess.
func classifyBottlenecks(stats *runStats, cfg *MicroArchConfig, tp float64) []Bottleneck {
	var out []Bottleneck

	if stats.rounds <= 0 {
		return out
	}

	for i, port := range cfg.AllPorts {
		if float64(stats.dispatchedByPort[i])/float64(stats.rounds) >= 0.99*tp {
			out = append(out, Bottleneck{Label: fmt.Sprintf("Port %s", port)})
		}
	}

	if float64(stats.divCyclesUsed)/float64(stats.rounds) >= 0.99*tp {
		out = append(out, Bottleneck{Label: "Divider"})
	}

	if stats.retireCycleSpan > 0 &&
		float64(stats.totalRetired)/float64(stats.retireCycleSpan) >= 0.99*float64(cfg.RetireWidth) {
		out = append(out, Bottleneck{Label: "Retirement"})
	}

	if stats.dependencyStalledOpenings > stats.totalUops {
		out = append(out, Bottleneck{Label: "Dependencies"})
	}

	if len(out) == 0 {
		if !stats.backendEverFull {
			qualifier := "Issue"
			if stats.decoderWasLimiter {
				qualifier = "Decoder"
			} else if stats.predecoderWasLimiter {
				qualifier = "Predecoder"
			}
			out = append(out, Bottleneck{Label: fmt.Sprintf("Front End (%s)", qualifier)})
		} else {
			out = append(out, Bottleneck{Label: "Back End"})
		}
	}

	return out
}

// runStats accumulates the counters classifyBottlenecks needs. It is
// populated by the Scheduler/RB/front-end over the whole run; only the TP
// measurement (steadyStateTP) is restricted to the steady-state window of
// spec.md §8 scenario 8.
type runStats struct {
	rounds                    int64
	dispatchedByPort          []int64
	divCyclesUsed             int64
	totalRetired              int64
	retireCycleSpan           int64
	dependencyStalledOpenings int64
	totalUops                 int64
	backendEverFull           bool
	decoderWasLimiter         bool
	predecoderWasLimiter      bool

	// lastRetireCycleByRound records the cycle of the most recent
	// retirement attributed to each round, used to compute the
	// steady-state TP window (spec.md §8 scenario 8).
	lastRetireCycleByRound map[int]int64
}

func newRunStats(numPorts int) *runStats {
	return &runStats{
		dispatchedByPort:       make([]int64, numPorts),
		lastRetireCycleByRound: make(map[int]int64),
	}
}

// steadyStateTP implements spec.md §8 scenario 8: choosing
// firstRelevantRound = N/2 and lastRelevantRound = N-2, the cycles-per-
// round slope between those two rounds is the reported throughput,
// independent of how many total rounds N were simulated.
func (s *runStats) steadyStateTP(maxRound int) float64 {
	if maxRound < 4 {
		return 0
	}
	first := maxRound / 2
	last := maxRound - 2
	if last <= first {
		return 0
	}
	c0, ok0 := s.lastRetireCycleByRound[first]
	c1, ok1 := s.lastRetireCycleByRound[last]
	if !ok0 || !ok1 {
		return 0
	}
	return float64(c1-c0) / float64(last-first)
}
