// Package dispatch turns inbound work (queue messages or template files on
// disk) into pipeline executions and delivers the results.
package dispatch

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Metrics counts render outcomes. Counters are atomic so dispatcher workers
// can record without coordination.
type Metrics struct {
	total   atomic.Int64
	success atomic.Int64
	failure atomic.Int64

	mu     sync.Mutex
	byType map[string]int64
}

func NewMetrics() *Metrics {
	return &Metrics{byType: make(map[string]int64)}
}

func (m *Metrics) RecordSuccess(documentType string) {
	m.total.Add(1)
	m.success.Add(1)
	m.recordType(documentType)
}

func (m *Metrics) RecordFailure(documentType string) {
	m.total.Add(1)
	m.failure.Add(1)
	m.recordType(documentType)
}

func (m *Metrics) recordType(documentType string) {
	if documentType == "" {
		documentType = "unknown"
	}
	m.mu.Lock()
	m.byType[documentType]++
	m.mu.Unlock()
}

func (m *Metrics) Total() int64   { return m.total.Load() }
func (m *Metrics) Success() int64 { return m.success.Load() }
func (m *Metrics) Failure() int64 { return m.failure.Load() }

// ByType returns a copy of the per-document-type counts
func (m *Metrics) ByType() map[string]int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int64, len(m.byType))
	for k, v := range m.byType {
		out[k] = v
	}
	return out
}

// LogSummary emits the final tally, typically on shutdown or at the end of
// a file-mode batch.
func (m *Metrics) LogSummary(logger *zap.Logger) {
	logger.Info("render totals",
		zap.Int64("total", m.Total()),
		zap.Int64("success", m.Success()),
		zap.Int64("failure", m.Failure()),
		zap.Any("byDocumentType", m.ByType()))
}
