// Package metrics provides a lightweight in-process metric tree for the story
// engine: counters, timings, and success/failure tracking addressed by
// slash-separated paths (e.g. "router/anthropic/request").
package metrics

import (
	"sync"
	"time"
)

// TimingMetric tracks timing statistics
type TimingMetric struct {
	Count int64
	Total time.Duration
	Min   time.Duration
	Max   time.Duration
	Last  time.Duration
}

// CounterMetric tracks incrementing values
type CounterMetric struct {
	Value int64
	Last  time.Time
}

// SuccessFailMetric tracks success and failure counts
type SuccessFailMetric struct {
	Success     int64
	Failures    int64
	LastReason  string
	LastFailure time.Time
}

// Manager holds all metrics for the process.
type Manager struct {
	mu       sync.RWMutex
	timings  map[string]*TimingMetric
	counters map[string]*CounterMetric
	results  map[string]*SuccessFailMetric
}

var (
	instance *Manager
	once     sync.Once
)

// GetInstance returns the global metrics manager.
func GetInstance() *Manager {
	once.Do(func() {
		instance = &Manager{
			timings:  make(map[string]*TimingMetric),
			counters: make(map[string]*CounterMetric),
			results:  make(map[string]*SuccessFailMetric),
		}
	})
	return instance
}

func buildPath(topic, function string) string {
	if function == "" {
		return topic
	}
	return topic + "/" + function
}

// RecordDuration records a timing sample.
func (m *Manager) RecordDuration(topic, function string, d time.Duration) {
	path := buildPath(topic, function)

	m.mu.Lock()
	defer m.mu.Unlock()

	t := m.timings[path]
	if t == nil {
		t = &TimingMetric{Min: d, Max: d}
		m.timings[path] = t
	}
	t.Count++
	t.Total += d
	t.Last = d
	if d < t.Min || t.Count == 1 {
		t.Min = d
	}
	if d > t.Max {
		t.Max = d
	}
}

// AddCounter adds delta to a counter.
func (m *Manager) AddCounter(topic, function string, delta int64) {
	path := buildPath(topic, function)

	m.mu.Lock()
	defer m.mu.Unlock()

	c := m.counters[path]
	if c == nil {
		c = &CounterMetric{}
		m.counters[path] = c
	}
	c.Value += delta
	c.Last = time.Now()
}

// RecordSuccess increments the success count.
func (m *Manager) RecordSuccess(topic, function string) {
	path := buildPath(topic, function)

	m.mu.Lock()
	defer m.mu.Unlock()

	r := m.results[path]
	if r == nil {
		r = &SuccessFailMetric{}
		m.results[path] = r
	}
	r.Success++
}

// RecordFailure increments the failure count with a reason.
func (m *Manager) RecordFailure(topic, function, reason string) {
	path := buildPath(topic, function)

	m.mu.Lock()
	defer m.mu.Unlock()

	r := m.results[path]
	if r == nil {
		r = &SuccessFailMetric{}
		m.results[path] = r
	}
	r.Failures++
	r.LastReason = reason
	r.LastFailure = time.Now()
}

// Snapshot is a point-in-time copy of all metrics.
type Snapshot struct {
	Timings  map[string]TimingMetric
	Counters map[string]CounterMetric
	Results  map[string]SuccessFailMetric
}

// GetSnapshot returns a copy of the current metric values.
func (m *Manager) GetSnapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := Snapshot{
		Timings:  make(map[string]TimingMetric, len(m.timings)),
		Counters: make(map[string]CounterMetric, len(m.counters)),
		Results:  make(map[string]SuccessFailMetric, len(m.results)),
	}
	for k, v := range m.timings {
		snap.Timings[k] = *v
	}
	for k, v := range m.counters {
		snap.Counters[k] = *v
	}
	for k, v := range m.results {
		snap.Results[k] = *v
	}
	return snap
}

// ==================== Package-level helpers ====================

// MetricDuration records a timing sample on the global manager.
func MetricDuration(topic, function string, d time.Duration) {
	GetInstance().RecordDuration(topic, function, d)
}

// MetricAdd adds delta to a counter on the global manager.
func MetricAdd(topic, function string, delta int64) {
	GetInstance().AddCounter(topic, function, delta)
}

// MetricSuccess records a success on the global manager.
func MetricSuccess(topic, function string) {
	GetInstance().RecordSuccess(topic, function)
}

// MetricFailWithReason records a failure with a reason on the global manager.
func MetricFailWithReason(topic, function, reason string) {
	GetInstance().RecordFailure(topic, function, reason)
}
