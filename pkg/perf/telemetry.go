package perf

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// rollingWindow bounds the global call sample buffer.
	rollingWindow = 1000
	// opWindow bounds the per-operation timing history.
	opWindow = 100
)

// Slow-call thresholds per operation. A recorded duration over the
// threshold is logged as a slow operation.
var defaultThresholds = map[string]time.Duration{
	"get_ticker":           500 * time.Millisecond,
	"get_order_book":       500 * time.Millisecond,
	"place_order":          1 * time.Second,
	"cancel_order":         1 * time.Second,
	"calculate_volatility": 100 * time.Millisecond,
	"calculate_atr":        100 * time.Millisecond,
}

const fallbackThreshold = 1 * time.Second

type CallSample struct {
	Operation string
	Duration  time.Duration
	Timestamp time.Time
}

// OpStats summarizes recorded timings for one operation.
type OpStats struct {
	Mean  time.Duration `json:"mean"`
	Min   time.Duration `json:"min"`
	Max   time.Duration `json:"max"`
	Count int           `json:"count"`
}

// Telemetry records call timings into bounded rolling windows and flags
// operations that exceed their thresholds.
type Telemetry struct {
	mu         sync.Mutex
	samples    []CallSample
	opTimes    map[string][]time.Duration
	thresholds map[string]time.Duration
	callCount  int64
	logger     *logrus.Logger
	now        func() time.Time
}

func NewTelemetry(logger *logrus.Logger) *Telemetry {
	return &Telemetry{
		samples:    make([]CallSample, 0, rollingWindow),
		opTimes:    make(map[string][]time.Duration),
		thresholds: defaultThresholds,
		logger:     logger,
		now:        time.Now,
	}
}

// Record appends one call timing. Windows are trimmed from the front so
// memory stays bounded no matter how long the process runs.
func (t *Telemetry) Record(op string, duration time.Duration) {
	t.mu.Lock()
	t.callCount++
	t.samples = append(t.samples, CallSample{Operation: op, Duration: duration, Timestamp: t.now()})
	if len(t.samples) > rollingWindow {
		t.samples = t.samples[len(t.samples)-rollingWindow:]
	}
	times := append(t.opTimes[op], duration)
	if len(times) > opWindow {
		times = times[len(times)-opWindow:]
	}
	t.opTimes[op] = times
	threshold := t.threshold(op)
	t.mu.Unlock()

	if duration > threshold {
		t.logger.WithFields(logrus.Fields{
			"operation": op,
			"duration":  duration.Seconds(),
			"threshold": threshold.Seconds(),
		}).Warn("Slow operation detected")
	}
}

func (t *Telemetry) threshold(op string) time.Duration {
	if th, ok := t.thresholds[op]; ok {
		return th
	}
	return fallbackThreshold
}

// CallCount returns the total number of recorded calls.
func (t *Telemetry) CallCount() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.callCount
}

// OperationStats computes per-operation timing summaries.
func (t *Telemetry) OperationStats() map[string]OpStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	stats := make(map[string]OpStats, len(t.opTimes))
	for op, times := range t.opTimes {
		if len(times) == 0 {
			continue
		}
		var sum, min, max time.Duration
		min = times[0]
		max = times[0]
		for _, d := range times {
			sum += d
			if d < min {
				min = d
			}
			if d > max {
				max = d
			}
		}
		stats[op] = OpStats{
			Mean:  sum / time.Duration(len(times)),
			Min:   min,
			Max:   max,
			Count: len(times),
		}
	}
	return stats
}

// SlowOperations lists operations whose mean duration exceeds their
// threshold.
func (t *Telemetry) SlowOperations() []string {
	stats := t.OperationStats()

	t.mu.Lock()
	defer t.mu.Unlock()
	var slow []string
	for op, s := range stats {
		if s.Mean > t.threshold(op) {
			slow = append(slow, op)
		}
	}
	return slow
}
