package executor

import (
	"sync"
	"time"

	"github.com/pitwall-ai/pitwall"
)

// ExecutorMetrics tracks statistics about plan execution.
type ExecutorMetrics struct {
	CallsExecuted    int
	CallsSuccessful  int
	CallsFailed      int
	TotalDuration    time.Duration
	LongestCallTime  time.Duration
	ShortestCallTime time.Duration

	mu sync.Mutex // Protects metrics updates
}

// Copy creates a copy without the mutex.
func (m *ExecutorMetrics) Copy() ExecutorMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	return ExecutorMetrics{
		CallsExecuted:    m.CallsExecuted,
		CallsSuccessful:  m.CallsSuccessful,
		CallsFailed:      m.CallsFailed,
		TotalDuration:    m.TotalDuration,
		LongestCallTime:  m.LongestCallTime,
		ShortestCallTime: m.ShortestCallTime,
	}
}

func (m *ExecutorMetrics) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CallsExecuted = 0
	m.CallsSuccessful = 0
	m.CallsFailed = 0
	m.TotalDuration = 0
	m.LongestCallTime = 0
	m.ShortestCallTime = 0
}

func (m *ExecutorMetrics) record(result pitwall.ToolResult) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CallsExecuted++
	if result.Failed() {
		m.CallsFailed++
	} else {
		m.CallsSuccessful++
	}
	if result.Duration > m.LongestCallTime {
		m.LongestCallTime = result.Duration
	}
	if m.ShortestCallTime == 0 || result.Duration < m.ShortestCallTime {
		m.ShortestCallTime = result.Duration
	}
}

func (m *ExecutorMetrics) setTotalDuration(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TotalDuration = d
}

func (m *ExecutorMetrics) snapshotFailed() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CallsFailed
}
