// File: api/schemas/latency.go
package schemas

import (
	"slices"
	"sync/atomic"
	"time"
)

// traceIDs hands out process-wide, monotonically increasing trace identifiers.
var traceIDs atomic.Int64

// LatencyComponent is one timestamped stage an event passed through.
type LatencyComponent struct {
	Name      string    `json:"name"`
	Timestamp time.Time `json:"timestamp"`
}

// LatencyInfo is the diagnostic trace attached to every event. A TraceID of
// zero means the event carries no trace.
type LatencyInfo struct {
	TraceID    int64              `json:"trace_id"`
	Components []LatencyComponent `json:"components,omitempty"`
}

// NewLatencyInfo starts a fresh trace.
func NewLatencyInfo() LatencyInfo {
	return LatencyInfo{TraceID: traceIDs.Add(1)}
}

// Valid reports whether the info carries a trace.
func (l LatencyInfo) Valid() bool { return l.TraceID > 0 }

// HasComponent reports whether a component with the given name was recorded.
func (l LatencyInfo) HasComponent(name string) bool {
	return slices.ContainsFunc(l.Components, func(c LatencyComponent) bool { return c.Name == name })
}

// AddComponent records a stage unless it is already present.
func (l *LatencyInfo) AddComponent(name string, ts time.Time) {
	if l.HasComponent(name) {
		return
	}
	// Clip so a copy sharing the backing array is never written through.
	l.Components = append(slices.Clip(l.Components), LatencyComponent{Name: name, Timestamp: ts})
}

// AddNewLatencyFrom appends the components of other that l does not have yet.
// Existing components keep their order.
func (l *LatencyInfo) AddNewLatencyFrom(other LatencyInfo) {
	for _, c := range other.Components {
		l.AddComponent(c.Name, c.Timestamp)
	}
}

// CoalesceWith merges the trace of an event folded into l. The oldest trace
// id wins.
func (l *LatencyInfo) CoalesceWith(other LatencyInfo) {
	if other.Valid() && (!l.Valid() || other.TraceID < l.TraceID) {
		l.TraceID = other.TraceID
	}
	l.AddNewLatencyFrom(other)
}

// MergeLatency combines the traces of a group of events, oldest trace first.
func MergeLatency(infos ...LatencyInfo) LatencyInfo {
	var merged LatencyInfo
	for _, info := range infos {
		merged.CoalesceWith(info)
	}
	return merged
}
