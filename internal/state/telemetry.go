package state

import (
	"sync"

	"tilewatch/internal/protocol"
)

// DefaultHistorySize is the default number of samples retained per series.
const DefaultHistorySize = 60

// Metric names the telemetry series kept per entity.
const (
	MetricHeartbeat   = "heartbeat"
	MetricTemperature = "temperature"
)

// Buffer keeps fixed-capacity telemetry history per entity, one ring buffer
// per logical metric. Samples are ordered by arrival; a gap sample records
// that a message carried no usable value for the metric. Entities are created
// lazily on first append and never removed.
type Buffer struct {
	mu       sync.RWMutex
	size     int
	entities map[string]*entitySeries
}

// entitySeries holds the ring buffers for a single entity.
type entitySeries struct {
	heartbeat   *ring
	temperature *ring
}

// ring is a fixed-size circular buffer of samples.
type ring struct {
	data  []protocol.Sample
	head  int
	count int
	size  int
}

// NewBuffer creates a telemetry buffer retaining size samples per series.
func NewBuffer(size int) *Buffer {
	if size <= 0 {
		size = DefaultHistorySize
	}
	return &Buffer{
		size:     size,
		entities: make(map[string]*entitySeries),
	}
}

// Append records one sample per metric for the entity, evicting the oldest
// sample of each series once capacity is reached.
func (b *Buffer) Append(id string, m protocol.Metrics) {
	b.mu.Lock()
	defer b.mu.Unlock()

	series := b.getOrCreate(id)
	series.heartbeat.push(m.Heartbeat)
	series.temperature.push(m.Temperature)
}

// Heartbeat returns the last count heartbeat samples, oldest first.
// Returns fewer values if not enough history is available.
func (b *Buffer) Heartbeat(id string, count int) []protocol.Sample {
	b.mu.RLock()
	defer b.mu.RUnlock()

	series, ok := b.entities[id]
	if !ok {
		return nil
	}
	return series.heartbeat.last(count)
}

// Temperature returns the last count temperature samples, oldest first.
func (b *Buffer) Temperature(id string, count int) []protocol.Sample {
	b.mu.RLock()
	defer b.mu.RUnlock()

	series, ok := b.entities[id]
	if !ok {
		return nil
	}
	return series.temperature.last(count)
}

// Len returns the number of samples stored for the entity.
func (b *Buffer) Len(id string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	series, ok := b.entities[id]
	if !ok {
		return 0
	}
	return series.heartbeat.count
}

// Size returns the per-series capacity.
func (b *Buffer) Size() int {
	return b.size
}

// getOrCreate returns the series for an entity, creating it if needed.
// Must be called with b.mu held.
func (b *Buffer) getOrCreate(id string) *entitySeries {
	series, ok := b.entities[id]
	if !ok {
		series = &entitySeries{
			heartbeat:   newRing(b.size),
			temperature: newRing(b.size),
		}
		b.entities[id] = series
	}
	return series
}

func newRing(size int) *ring {
	return &ring{
		data: make([]protocol.Sample, size),
		size: size,
	}
}

// push adds a sample, overwriting the oldest once full.
func (r *ring) push(s protocol.Sample) {
	r.data[r.head] = s
	r.head = (r.head + 1) % r.size
	if r.count < r.size {
		r.count++
	}
}

// last returns the last count samples in chronological order (oldest first).
func (r *ring) last(count int) []protocol.Sample {
	if count <= 0 || r.count == 0 {
		return nil
	}
	if count > r.count {
		count = r.count
	}

	result := make([]protocol.Sample, count)

	// head points at the next write position, so the newest sample sits at
	// head-1; walk count positions back from there.
	start := (r.head - count + r.size) % r.size
	for i := 0; i < count; i++ {
		result[i] = r.data[(start+i)%r.size]
	}

	return result
}
