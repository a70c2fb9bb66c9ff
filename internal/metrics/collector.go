// Package metrics provides in-memory runtime statistics collection for the
// ingestion pipeline.
package metrics

import (
	"math"
	"sync"
	"time"
)

// OperationMetrics holds aggregated metrics for a single operation type.
type OperationMetrics struct {
	Count     int64
	TotalTime time.Duration
	MinTime   time.Duration
	MaxTime   time.Duration

	// Unit metrics (documents, chunks, pages moved per call)
	TotalUnits int64
}

// OperationSnapshot provides computed stats from raw metrics.
type OperationSnapshot struct {
	Count       int64   `json:"count"`
	TotalTimeMs int64   `json:"totalTimeMs"`
	AvgTimeMs   float64 `json:"avgTimeMs"`
	MinTimeMs   int64   `json:"minTimeMs"`
	MaxTimeMs   int64   `json:"maxTimeMs"`
	TotalUnits  *int64  `json:"totalUnits,omitempty"`
}

// Snapshot represents the full pipeline statistics at a point in time.
type Snapshot struct {
	UptimeSeconds  float64            `json:"uptimeSeconds"`
	ConnectorFetch *OperationSnapshot `json:"connectorFetch,omitempty"`
	Extract        *OperationSnapshot `json:"extract,omitempty"`
	Embedding      *OperationSnapshot `json:"embedding,omitempty"`
	VectorUpsert   *OperationSnapshot `json:"vectorUpsert,omitempty"`
	VectorDelete   *OperationSnapshot `json:"vectorDelete,omitempty"`
}

// Operation names for the collector.
const (
	OpConnectorFetch = "connector_fetch"
	OpExtract        = "extract"
	OpEmbedding      = "embedding"
	OpVectorUpsert   = "vector_upsert"
	OpVectorDelete   = "vector_delete"
)

// Collector aggregates in-memory runtime statistics.
// All methods are thread-safe.
type Collector struct {
	mu        sync.RWMutex
	startTime time.Time
	ops       map[string]*OperationMetrics
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{
		startTime: time.Now(),
		ops:       make(map[string]*OperationMetrics),
	}
}

// getOrCreate returns existing metrics or creates new ones for an operation.
// Caller must hold write lock.
func (c *Collector) getOrCreate(op string) *OperationMetrics {
	m, ok := c.ops[op]
	if !ok {
		m = &OperationMetrics{
			MinTime: time.Duration(math.MaxInt64),
		}
		c.ops[op] = m
	}
	return m
}

// RecordTiming records timing for an operation.
func (c *Collector) RecordTiming(op string, duration time.Duration) {
	c.RecordUnits(op, duration, 0)
}

// RecordUnits records timing plus the number of units moved by the call
// (chunks upserted, pages extracted, documents fetched).
func (c *Collector) RecordUnits(op string, duration time.Duration, units int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m := c.getOrCreate(op)
	m.Count++
	m.TotalTime += duration
	m.TotalUnits += units

	if duration < m.MinTime {
		m.MinTime = duration
	}
	if duration > m.MaxTime {
		m.MaxTime = duration
	}
}

// snapshotOp creates a snapshot for an operation, returning nil if no data.
func snapshotOp(m *OperationMetrics) *OperationSnapshot {
	if m == nil || m.Count == 0 {
		return nil
	}

	snap := &OperationSnapshot{
		Count:       m.Count,
		TotalTimeMs: m.TotalTime.Milliseconds(),
		AvgTimeMs:   float64(m.TotalTime.Milliseconds()) / float64(m.Count),
		MinTimeMs:   m.MinTime.Milliseconds(),
		MaxTimeMs:   m.MaxTime.Milliseconds(),
	}
	if m.TotalUnits > 0 {
		units := m.TotalUnits
		snap.TotalUnits = &units
	}
	return snap
}

// Snapshot returns a point-in-time snapshot of all metrics.
func (c *Collector) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Snapshot{
		UptimeSeconds:  time.Since(c.startTime).Seconds(),
		ConnectorFetch: snapshotOp(c.ops[OpConnectorFetch]),
		Extract:        snapshotOp(c.ops[OpExtract]),
		Embedding:      snapshotOp(c.ops[OpEmbedding]),
		VectorUpsert:   snapshotOp(c.ops[OpVectorUpsert]),
		VectorDelete:   snapshotOp(c.ops[OpVectorDelete]),
	}
}
