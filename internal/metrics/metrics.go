// Package metrics collects statistics about patch applications.
package metrics

import (
	"errors"
	"sync"
	"time"

	"github.com/asynkron/udiff/pkg/udiff"
)

// Metrics records what an apply run did.
type Metrics interface {
	// RecordParse records one parse of a patch with the number of file sections found.
	RecordParse(duration time.Duration, files int, err error)
	// RecordResult records one committed file section and its hunks.
	RecordResult(result udiff.Result)
	// RecordFailure records a failed run, keyed by error code.
	RecordFailure(err error)
	// Snapshot returns the current metrics.
	Snapshot() Snapshot
	// Reset clears all metrics.
	Reset()
}

// Snapshot is a point-in-time view of collected metrics.
type Snapshot struct {
	Parses       int64
	ParseTime    time.Duration
	Files        int64
	FilesBy      map[string]int64 // result status -> count
	Hunks        int64
	OffsetHunks  int64
	MaxOffset    int
	Failures     int64
	FailuresBy   map[string]int64 // error code -> count
	LastParsedAt time.Time
}

// NoOpMetrics discards all metrics.
type NoOpMetrics struct{}

func (n *NoOpMetrics) RecordParse(_ time.Duration, _ int, _ error) {}
func (n *NoOpMetrics) RecordResult(_ udiff.Result)                 {}
func (n *NoOpMetrics) RecordFailure(_ error)                       {}
func (n *NoOpMetrics) Snapshot() Snapshot                          { return Snapshot{} }
func (n *NoOpMetrics) Reset()                                      {}

// InMemoryMetrics is a thread-safe in-memory collector.
type InMemoryMetrics struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewInMemoryMetrics creates an empty collector.
func NewInMemoryMetrics() *InMemoryMetrics {
	m := &InMemoryMetrics{}
	m.Reset()
	return m
}

func (m *InMemoryMetrics) RecordParse(duration time.Duration, _ int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.snap.Parses++
	m.snap.ParseTime += duration
	m.snap.LastParsedAt = time.Now()
	if err != nil {
		m.recordFailureLocked(err)
	}
}

func (m *InMemoryMetrics) RecordResult(result udiff.Result) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.snap.Files++
	m.snap.FilesBy[result.Status]++
	for _, hunk := range result.Hunks {
		m.snap.Hunks++
		offset := hunk.Offset
		if offset < 0 {
			offset = -offset
		}
		if offset == 0 {
			continue
		}
		m.snap.OffsetHunks++
		if offset > m.snap.MaxOffset {
			m.snap.MaxOffset = offset
		}
	}
}

func (m *InMemoryMetrics) RecordFailure(err error) {
	if err == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recordFailureLocked(err)
}

func (m *InMemoryMetrics) recordFailureLocked(err error) {
	m.snap.Failures++
	m.snap.FailuresBy[errorCode(err)]++
}

func (m *InMemoryMetrics) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := m.snap
	snap.FilesBy = make(map[string]int64, len(m.snap.FilesBy))
	for k, v := range m.snap.FilesBy {
		snap.FilesBy[k] = v
	}
	snap.FailuresBy = make(map[string]int64, len(m.snap.FailuresBy))
	for k, v := range m.snap.FailuresBy {
		snap.FailuresBy[k] = v
	}
	return snap
}

func (m *InMemoryMetrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap = Snapshot{
		FilesBy:    make(map[string]int64),
		FailuresBy: make(map[string]int64),
	}
}

func errorCode(err error) string {
	var pe *udiff.Error
	if errors.As(err, &pe) && pe.Code != "" {
		return pe.Code
	}
	return "OTHER"
}
