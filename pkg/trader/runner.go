package trader

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/solquote/mmbot/pkg/perf"
	"github.com/solquote/mmbot/pkg/risk"
)

const (
	cycleTimeWindow     = 100
	slowCycleThreshold  = 5 * time.Second
	skipCycleThreshold  = 2 * time.Second
	cacheClearEvery     = 10
	perfSummaryInterval = 5 * time.Minute
	minUpdateInterval   = 1 * time.Second
)

// Runner drives the strategy loop: one cycle at a time, never two
// concurrently. It adapts the polling interval to observed cycle times,
// clears caches periodically, and logs a performance summary every few
// minutes.
type Runner struct {
	maker   *MarketMaker
	riskMgr *risk.Manager
	monitor *perf.Monitor
	logger  *logrus.Logger

	interval time.Duration

	mu            sync.Mutex
	cycleTimes    []time.Duration
	lastCycleTime time.Duration
	running       bool

	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewRunner(maker *MarketMaker, riskMgr *risk.Manager, monitor *perf.Monitor, interval time.Duration, logger *logrus.Logger) *Runner {
	return &Runner{
		maker:    maker,
		riskMgr:  riskMgr,
		monitor:  monitor,
		logger:   logger,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Run blocks until the context is cancelled or Stop is called. Resting
// spot orders are cancelled on the way out.
func (r *Runner) Run(ctx context.Context) {
	r.mu.Lock()
	r.running = true
	r.mu.Unlock()

	r.logger.WithField("interval", r.interval.String()).Info("Starting market making loop")

	cycleCount := 0
	lastSummary := time.Now()

	for {
		select {
		case <-ctx.Done():
			r.shutdown(ctx)
			return
		case <-r.stopCh:
			r.shutdown(ctx)
			return
		default:
		}

		cycleCount++

		if r.shouldSkipCycle() {
			r.logger.WithField("last_cycle", r.LastCycleTime().String()).Warn("Skipping cycle due to slow execution")
			r.sleep(ctx, r.interval)
			continue
		}

		success := r.runSingleCycle(ctx)

		if !success {
			// Back off harder after a failed cycle.
			r.sleep(ctx, 2*r.interval)
		} else {
			r.interval = r.optimizeInterval(r.interval)
			r.sleep(ctx, r.interval)
		}

		if cycleCount%cacheClearEvery == 0 {
			r.monitor.Clear()
			r.logger.Debug("Cleared market data caches")
		}
		if time.Since(lastSummary) > perfSummaryInterval {
			r.logPerformanceSummary()
			lastSummary = time.Now()
		}
	}
}

func (r *Runner) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
}

func (r *Runner) runSingleCycle(ctx context.Context) bool {
	start := time.Now()
	result := r.maker.ExecuteCycle(ctx)
	elapsed := time.Since(start)

	r.mu.Lock()
	r.lastCycleTime = elapsed
	r.cycleTimes = append(r.cycleTimes, elapsed)
	if len(r.cycleTimes) > cycleTimeWindow {
		r.cycleTimes = r.cycleTimes[len(r.cycleTimes)-cycleTimeWindow:]
	}
	r.mu.Unlock()

	if result.Success {
		r.logger.WithFields(logrus.Fields{
			"mid_price":  result.MidPrice,
			"spread":     result.Spread,
			"volatility": result.Volatility,
			"inventory":  result.SpotInventory,
			"funding":    result.FundingIncome,
			"cycle_time": elapsed.Seconds(),
		}).Info("Cycle completed")
		if elapsed > slowCycleThreshold {
			r.logger.WithField("cycle_time", elapsed.Seconds()).Warn("Cycle time exceeded threshold")
		}
		return true
	}

	if result.TradingPaused {
		r.logger.WithField("error", result.Error).Warn("Trading paused")
	} else {
		r.logger.WithField("error", result.Error).Error("Cycle failed")
	}
	return false
}

// optimizeInterval grows the interval when cycles are eating most of it
// and shrinks it (down to the floor) when cycles finish fast.
func (r *Runner) optimizeInterval(current time.Duration) time.Duration {
	avg := r.averageCycleTime()
	if avg == 0 {
		return current
	}

	switch {
	case avg > time.Duration(float64(current)*0.8):
		next := time.Duration(float64(current) * 1.2)
		if grown := time.Duration(float64(avg) * 1.1); grown > next {
			next = grown
		}
		r.logger.WithFields(logrus.Fields{
			"from": current.String(),
			"to":   next.String(),
		}).Info("Increasing update interval")
		return next
	case avg < time.Duration(float64(current)*0.3):
		next := time.Duration(float64(current) * 0.8)
		if next < minUpdateInterval {
			next = minUpdateInterval
		}
		if next != current {
			r.logger.WithFields(logrus.Fields{
				"from": current.String(),
				"to":   next.String(),
			}).Info("Decreasing update interval")
		}
		return next
	default:
		return current
	}
}

func (r *Runner) shouldSkipCycle() bool {
	return r.LastCycleTime() > skipCycleThreshold
}

func (r *Runner) averageCycleTime() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.cycleTimes) == 0 {
		return 0
	}
	var sum time.Duration
	for _, d := range r.cycleTimes {
		sum += d
	}
	return sum / time.Duration(len(r.cycleTimes))
}

func (r *Runner) LastCycleTime() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastCycleTime
}

func (r *Runner) logPerformanceSummary() {
	stats := r.monitor.Stats()
	r.logger.WithFields(logrus.Fields{
		"avg_cycle_time": r.averageCycleTime().Seconds(),
		"api_calls":      stats.CallCount,
		"cache_hit_rate": stats.CacheHitRate,
		"slow_ops":       stats.SlowOperations,
	}).Info("Performance summary")
}

func (r *Runner) sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-r.stopCh:
	case <-timer.C:
	}
}

func (r *Runner) shutdown(ctx context.Context) {
	r.mu.Lock()
	r.running = false
	r.mu.Unlock()

	r.logger.Info("Stopping market making loop")
	r.maker.cancelSpotOrders(ctx)

	summary := r.maker.GetSummary()
	riskSummary := r.riskMgr.Summary()
	r.logger.WithFields(logrus.Fields{
		"daily_volume":    summary.DailyVolume,
		"volume_progress": summary.VolumeProgress,
		"inventory":       summary.CurrentInventory,
		"trading_paused":  riskSummary.TradingPaused,
		"daily_trades":    riskSummary.DailyTrades,
	}).Info("Final strategy summary")
	r.logPerformanceSummary()
}

// Running reports whether the loop is active, for the health endpoint.
func (r *Runner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}
