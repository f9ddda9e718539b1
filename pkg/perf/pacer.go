package perf

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// MinCallInterval is the advisory floor between calls of the same
// operation. Callers that get false from Allow should sleep this long
// and proceed anyway; pacing is a courtesy to the upstream, not a block.
const MinCallInterval = 50 * time.Millisecond

// Pacer spaces out calls per operation name using one token-bucket
// limiter per operation.
type Pacer struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	interval time.Duration
}

func NewPacer() *Pacer {
	return &Pacer{
		limiters: make(map[string]*rate.Limiter),
		interval: MinCallInterval,
	}
}

// Allow reports whether at least the minimum interval has passed since
// the last call tagged with op.
func (p *Pacer) Allow(op string) bool {
	p.mu.Lock()
	limiter, ok := p.limiters[op]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(p.interval), 1)
		p.limiters[op] = limiter
	}
	p.mu.Unlock()

	return limiter.Allow()
}
