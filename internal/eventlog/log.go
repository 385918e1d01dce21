package eventlog

import (
	"sync"
	"time"
)

// Record is one entry in the log: an event paired with the time it was
// appended (spec.md §3 EventRecord).
type Record struct {
	Timestamp time.Time
	Event     SystemEvent
}

// Log is a thread-safe, append-only, monotone sequence of event records.
// It never mutates or removes a historical entry; Append is O(1)
// amortized and serialized by a single mutex, matching the single-writer
// discipline of the orchestrator actor that owns it.
type Log struct {
	mu      sync.Mutex
	records []Record
}

// NewLog creates an empty event log.
func NewLog() *Log {
	return &Log{}
}

// Append adds event to the log, stamped with the current time.
func (l *Log) Append(event SystemEvent) {
	l.mu.Lock()
	l.records = append(l.records, Record{Timestamp: time.Now(), Event: event})
	l.mu.Unlock()
}

// All returns a snapshot copy of every record appended so far, in
// insertion order.
func (l *Log) All() []Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Record, len(l.records))
	copy(out, l.records)
	return out
}

// Len reports how many records have been appended.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

// Summary is the reduction produced by ReplaySummary: aggregate counts per
// entity kind plus the terminal status last observed for each entity.
type Summary struct {
	TaskCounts   map[EventKind]int
	PluginCounts map[EventKind]int
	AgentCounts  map[EventKind]int

	// TerminalStatus maps an entity identifier (task ID, plugin ID string,
	// or agent ID) to the last terminal event kind observed for it.
	TerminalStatus map[string]EventKind
}

func newSummary() Summary {
	return Summary{
		TaskCounts:     make(map[EventKind]int),
		PluginCounts:   make(map[EventKind]int),
		AgentCounts:    make(map[EventKind]int),
		TerminalStatus: make(map[string]EventKind),
	}
}

// ReplaySummary folds the log into aggregate counts and per-entity
// terminal status (spec.md §4.E). It is a pure reduction: the log itself
// is never mutated by replay.
func (l *Log) ReplaySummary() Summary {
	records := l.All()
	summary := newSummary()

	for _, r := range records {
		e := r.Event
		switch e.Kind {
		case EventTaskSubmitted, EventTaskCompleted, EventTaskError:
			summary.TaskCounts[e.Kind]++
			if e.Kind.Terminal() {
				summary.TerminalStatus[string(e.TaskID)] = e.Kind
			}
		case EventPluginInvoked, EventPluginResult, EventPluginError:
			summary.PluginCounts[e.Kind]++
			if e.Kind.Terminal() {
				summary.TerminalStatus[string(e.Plugin)] = e.Kind
			}
		case EventAgentSpawned, EventAgentPartialOutput, EventAgentCompleted, EventAgentError:
			summary.AgentCounts[e.Kind]++
			if e.Kind.Terminal() {
				summary.TerminalStatus[e.AgentID] = e.Kind
			}
		}
	}

	return summary
}
