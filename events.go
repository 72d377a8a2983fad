package uica

// EventKind enumerates the per-cycle events the core records for the
// event log (spec.md §4.7, §6).
type EventKind uint8

const (
	EventPredecoded EventKind = iota
	EventAddedToIDQ
	EventIssued
	EventReadyForDispatch
	EventDispatched
	EventExecuted
	EventRetired
	EventAddedToRB
	EventRemovedFromRB
	EventAddedToRS
	EventRemovedFromRS
	EventAddedToIQ
	EventRemovedFromIQ
	EventAddedToIDQFull
	EventRBFull
	EventRSFull
	EventIQFull
	EventIDQFull
)

var eventNames = map[EventKind]string{
	EventPredecoded:       "predecoded",
	EventAddedToIDQ:       "added_to_idq",
	EventIssued:           "issued",
	EventReadyForDispatch: "ready_for_dispatch",
	EventDispatched:       "dispatched",
	EventExecuted:         "executed",
	EventRetired:          "retired",
	EventAddedToRB:        "added_to_rb",
	EventRemovedFromRB:    "removed_from_rb",
	EventAddedToRS:        "added_to_rs",
	EventRemovedFromRS:    "removed_from_rs",
	EventAddedToIQ:        "added_to_iq",
	EventRemovedFromIQ:    "removed_from_iq",
	EventRBFull:           "rb_full",
	EventRSFull:           "rs_full",
	EventIQFull:           "iq_full",
	EventIDQFull:          "idq_full",
}

func (k EventKind) String() string {
	if n, ok := eventNames[k]; ok {
		return n
	}
	return "unknown"
}

// EventLog maps a cycle to the set of events (and their counts, for
// perf-style resource-pressure events) that occurred in that cycle
// (spec.md §4.7, §6).
type EventLog struct {
	perCycle map[int64]map[EventKind]int
}

// NewEventLog creates an empty event log.
func NewEventLog() *EventLog {
	return &EventLog{perCycle: make(map[int64]map[EventKind]int)}
}

// Record increments the count of kind at cycle by one.
func (l *EventLog) Record(cycle int64, kind EventKind) {
	m, ok := l.perCycle[cycle]
	if !ok {
		m = make(map[EventKind]int)
		l.perCycle[cycle] = m
	}
	m[kind]++
}

// At returns the event counts recorded for a given cycle (nil if none).
func (l *EventLog) At(cycle int64) map[EventKind]int {
	return l.perCycle[cycle]
}

// Count totals the occurrences of kind across all recorded cycles.
func (l *EventLog) Count(kind EventKind) int {
	total := 0
	for _, m := range l.perCycle {
		total += m[kind]
	}
	return total
}
