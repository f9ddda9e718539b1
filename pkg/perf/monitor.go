package perf

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Monitor bundles the cache, the pacer, and call telemetry into the one
// object the gateway interceptor and the volatility estimator share.
type Monitor struct {
	cache     *Cache
	pacer     *Pacer
	telemetry *Telemetry
}

// Stats is a point-in-time snapshot for diagnostics and the status API.
type Stats struct {
	CallCount      int64              `json:"call_count"`
	CacheHitRate   float64            `json:"cache_hit_rate"`
	CacheSize      int                `json:"cache_size"`
	Operations     map[string]OpStats `json:"operations"`
	SlowOperations []string           `json:"slow_operations,omitempty"`
}

func NewMonitor(logger *logrus.Logger) *Monitor {
	return &Monitor{
		cache:     NewCache(),
		pacer:     NewPacer(),
		telemetry: NewTelemetry(logger),
	}
}

func (m *Monitor) GetCached(kind Kind, key string) (any, bool) {
	return m.cache.Get(kind, key)
}

func (m *Monitor) PutCached(kind Kind, key string, value any) {
	m.cache.Put(kind, key, value)
}

// AllowCall reports whether op is within its pacing budget. Advisory
// only: callers sleep MinCallInterval on false and then proceed.
func (m *Monitor) AllowCall(op string) bool {
	return m.pacer.Allow(op)
}

func (m *Monitor) RecordCall(op string, duration time.Duration) {
	m.telemetry.Record(op, duration)
}

// Clear drops cached entries. Pacing state and telemetry are untouched.
func (m *Monitor) Clear() {
	m.cache.Clear()
}

func (m *Monitor) Stats() Stats {
	return Stats{
		CallCount:      m.telemetry.CallCount(),
		CacheHitRate:   m.cache.HitRate(),
		CacheSize:      m.cache.Size(),
		Operations:     m.telemetry.OperationStats(),
		SlowOperations: m.telemetry.SlowOperations(),
	}
}
