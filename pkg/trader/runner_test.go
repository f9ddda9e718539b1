package trader

import (
	"context"
	"testing"
	"time"

	"github.com/solquote/mmbot/pkg/perf"
	"github.com/solquote/mmbot/pkg/risk"
)

func newTestRunner(gw *gatewayStub, interval time.Duration) *Runner {
	logger := quietLogger()
	mm := newTestMaker(testTraderConfig(), gw)
	riskMgr := risk.NewManager(risk.Config{
		MaxInventory:  10.0,
		MaxVolatility: 0.24,
		MarginBuffer:  2.0,
		TradesPerDay:  500,
		QuoteCurrency: "USDC",
	}, logger)
	return NewRunner(mm, riskMgr, perf.NewMonitor(logger), interval, logger)
}

func TestOptimizeIntervalGrowsUnderLoad(t *testing.T) {
	r := newTestRunner(healthyStub(), 5*time.Second)
	r.cycleTimes = []time.Duration{4500 * time.Millisecond}

	next := r.optimizeInterval(5 * time.Second)
	if next <= 5*time.Second {
		t.Errorf("interval = %v, want growth when cycles eat over 80%%", next)
	}
}

func TestOptimizeIntervalShrinksWhenFast(t *testing.T) {
	r := newTestRunner(healthyStub(), 5*time.Second)
	r.cycleTimes = []time.Duration{200 * time.Millisecond}

	next := r.optimizeInterval(5 * time.Second)
	if next != 4*time.Second {
		t.Errorf("interval = %v, want 4s when cycles finish under 30%%", next)
	}
}

func TestOptimizeIntervalRespectsFloor(t *testing.T) {
	r := newTestRunner(healthyStub(), time.Second)
	r.cycleTimes = []time.Duration{10 * time.Millisecond}

	if next := r.optimizeInterval(time.Second); next < minUpdateInterval {
		t.Errorf("interval = %v, want at least the %v floor", next, minUpdateInterval)
	}
}

func TestOptimizeIntervalStableMidRange(t *testing.T) {
	r := newTestRunner(healthyStub(), 5*time.Second)
	r.cycleTimes = []time.Duration{2 * time.Second}

	if next := r.optimizeInterval(5 * time.Second); next != 5*time.Second {
		t.Errorf("interval = %v, want unchanged in the stable band", next)
	}
}

func TestShouldSkipCycle(t *testing.T) {
	r := newTestRunner(healthyStub(), 5*time.Second)

	r.lastCycleTime = time.Second
	if r.shouldSkipCycle() {
		t.Error("fast last cycle should not skip")
	}
	r.lastCycleTime = 3 * time.Second
	if !r.shouldSkipCycle() {
		t.Error("slow last cycle should skip")
	}
}

func TestRunnerStopsOnStop(t *testing.T) {
	r := newTestRunner(healthyStub(), 10*time.Millisecond)

	done := make(chan struct{})
	go func() {
		r.Run(context.Background())
		close(done)
	}()

	// Let at least one cycle run before stopping.
	time.Sleep(50 * time.Millisecond)
	if !r.Running() {
		t.Error("runner should report running before Stop")
	}
	r.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop")
	}
	if r.Running() {
		t.Error("runner should report stopped after Stop")
	}
}

func TestRunnerStopsOnContextCancel(t *testing.T) {
	r := newTestRunner(healthyStub(), 10*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop on context cancellation")
	}
}
