package lifecycle

import "time"

// Metrics tracks a loaded plugin's resource consumption and activity,
// updated after every successful invoke() per spec.md §4.F steps 2-3; a
// failed invocation leaves them unchanged.
type Metrics struct {
	MemoryUsageMB   uint64
	NetworkRequests uint64
	InvocationCount uint64
	LastActivity    time.Time
	TotalRuntime    time.Duration
}

func newMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) recordInvocation(memoryUsageMB uint64, duration time.Duration, networkRequests uint64) {
	m.MemoryUsageMB = memoryUsageMB
	m.NetworkRequests += networkRequests
	m.InvocationCount++
	m.TotalRuntime += duration
	m.LastActivity = time.Now()
}

func (m *Metrics) exceedsMemoryLimit(limitMB uint64) bool {
	return limitMB > 0 && m.MemoryUsageMB >= limitMB
}
