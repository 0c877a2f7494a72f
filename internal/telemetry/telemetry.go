// Package telemetry records retrieval pipeline metrics locally.
// Nothing is reported externally; the recorder exists so operators can
// inspect stage latencies and zero-result queries after the fact.
package telemetry

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Stage identifies one pipeline stage.
type Stage string

const (
	StageLens      Stage = "lens"
	StageExpansion Stage = "expansion"
	StageFocus     Stage = "focus"
)

// LatencyBucket represents a latency histogram bucket.
type LatencyBucket string

const (
	BucketP10   LatencyBucket = "p10"   // <10ms
	BucketP50   LatencyBucket = "p50"   // 10-50ms
	BucketP100  LatencyBucket = "p100"  // 50-100ms
	BucketP500  LatencyBucket = "p500"  // 100-500ms
	BucketP1000 LatencyBucket = "p1000" // >=500ms
)

// LatencyToBucket converts a duration to its histogram bucket.
func LatencyToBucket(d time.Duration) LatencyBucket {
	ms := d.Milliseconds()
	switch {
	case ms < 10:
		return BucketP10
	case ms < 50:
		return BucketP50
	case ms < 100:
		return BucketP100
	case ms < 500:
		return BucketP500
	default:
		return BucketP1000
	}
}

// SearchEvent is one completed pipeline run.
type SearchEvent struct {
	TraceID     string
	QueryTags   int
	ResultCount int
	Latency     time.Duration
	StageMS     map[Stage]float64
	Timestamp   time.Time
}

// IsZeroResult returns true if this search returned nothing.
func (e SearchEvent) IsZeroResult() bool {
	return e.ResultCount == 0
}

// Snapshot summarizes recorded activity.
type Snapshot struct {
	TotalSearches int
	ZeroResults   int
	Histogram     map[LatencyBucket]int
	Recent        []SearchEvent
}

// Recorder accumulates search events in a bounded ring, with an LRU over
// trace ids for cheap recent-event lookup.
type Recorder struct {
	mu        sync.RWMutex
	events    []SearchEvent
	head      int
	size      int
	capacity  int
	zeroCount int
	total     int
	histogram map[LatencyBucket]int
	byTrace   *lru.Cache[string, SearchEvent]
}

// NewRecorder creates a recorder keeping the last capacity events.
func NewRecorder(capacity int) *Recorder {
	if capacity <= 0 {
		capacity = 100
	}
	byTrace, _ := lru.New[string, SearchEvent](capacity)
	return &Recorder{
		events:    make([]SearchEvent, capacity),
		capacity:  capacity,
		histogram: make(map[LatencyBucket]int),
		byTrace:   byTrace,
	}
}

// Record adds one event, evicting the oldest when full.
func (r *Recorder) Record(e SearchEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events[r.head] = e
	r.head = (r.head + 1) % r.capacity
	if r.size < r.capacity {
		r.size++
	}

	r.total++
	if e.IsZeroResult() {
		r.zeroCount++
	}
	r.histogram[LatencyToBucket(e.Latency)]++
	r.byTrace.Add(e.TraceID, e)
}

// Lookup returns a recent event by trace id.
func (r *Recorder) Lookup(traceID string) (SearchEvent, bool) {
	return r.byTrace.Get(traceID)
}

// Snapshot returns current counters and the ring contents, oldest first.
func (r *Recorder) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	recent := make([]SearchEvent, 0, r.size)
	start := (r.head - r.size + r.capacity) % r.capacity
	for i := 0; i < r.size; i++ {
		recent = append(recent, r.events[(start+i)%r.capacity])
	}

	hist := make(map[LatencyBucket]int, len(r.histogram))
	for k, v := range r.histogram {
		hist[k] = v
	}

	return Snapshot{
		TotalSearches: r.total,
		ZeroResults:   r.zeroCount,
		Histogram:     hist,
		Recent:        recent,
	}
}
