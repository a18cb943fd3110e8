package core

import (
	"fmt"
	"sync/atomic"
	"time"
)

// LoadMetrics collects counters over one ingestion session. All fields are safe for
// concurrent use; upload workers and the loader update them independently.
type LoadMetrics struct {
	Models            atomic.Int64
	Nodes             atomic.Int64
	Primitives        atomic.Int64
	SkippedPrimitives atomic.Int64
	Vertices          atomic.Int64
	Indices           atomic.Int64
	TextureDecodes    atomic.Int64
	TextureCacheHits  atomic.Int64
	Flushes           atomic.Int64

	flushNanos atomic.Int64
}

func NewLoadMetrics() *LoadMetrics {
	return &LoadMetrics{}
}

func (m *LoadMetrics) RecordFlush(d time.Duration) {
	m.Flushes.Add(1)
	m.flushNanos.Add(int64(d))
}

func (m *LoadMetrics) FlushTime() time.Duration {
	return time.Duration(m.flushNanos.Load())
}

func (m *LoadMetrics) String() string {
	return fmt.Sprintf("models=%d nodes=%d primitives=%d skipped=%d vertices=%d indices=%d texture_decodes=%d texture_hits=%d flushes=%d flush_time=%s",
		m.Models.Load(), m.Nodes.Load(), m.Primitives.Load(), m.SkippedPrimitives.Load(),
		m.Vertices.Load(), m.Indices.Load(), m.TextureDecodes.Load(), m.TextureCacheHits.Load(),
		m.Flushes.Load(), m.FlushTime())
}
