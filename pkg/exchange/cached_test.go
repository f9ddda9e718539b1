package exchange

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/solquote/mmbot/pkg/models"
	"github.com/solquote/mmbot/pkg/perf"
)

type countingGateway struct {
	tickerCalls int
	bookCalls   int
	ohlcvCalls  int
	tickerErr   error
}

func (c *countingGateway) GetTicker(ctx context.Context, symbol string) (*models.Ticker, error) {
	c.tickerCalls++
	if c.tickerErr != nil {
		return nil, c.tickerErr
	}
	return &models.Ticker{Symbol: symbol, LastPrice: 143.0}, nil
}

func (c *countingGateway) GetOrderBook(ctx context.Context, symbol string, depth int) (*models.OrderBook, error) {
	c.bookCalls++
	return &models.OrderBook{Symbol: symbol}, nil
}

func (c *countingGateway) GetBalance(ctx context.Context) (models.Balance, error) {
	return models.Balance{}, nil
}

func (c *countingGateway) GetPositions(ctx context.Context) ([]models.Position, error) {
	return nil, nil
}

func (c *countingGateway) GetFundingRate(ctx context.Context, symbol string) (float64, error) {
	return 0.0002, nil
}

func (c *countingGateway) PlaceOrder(ctx context.Context, order *models.OrderRequest) (string, error) {
	return "order-1", nil
}

func (c *countingGateway) CancelOrder(ctx context.Context, orderID, symbol string, marketType models.MarketType) error {
	return nil
}

func (c *countingGateway) FetchOHLCV(ctx context.Context, symbol, timeframe string, limit int) ([]models.Candle, error) {
	c.ohlcvCalls++
	return []models.Candle{{Close: 143.0}}, nil
}

func newCachedTestGateway(next Gateway) (*CachedGateway, *perf.Monitor) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	monitor := perf.NewMonitor(logger)
	return NewCachedGateway(next, monitor, logger), monitor
}

func TestCachedGatewayTickerCached(t *testing.T) {
	upstream := &countingGateway{}
	gw, _ := newCachedTestGateway(upstream)
	ctx := context.Background()

	first, err := gw.GetTicker(ctx, "USOL/USDC")
	if err != nil {
		t.Fatal(err)
	}
	second, err := gw.GetTicker(ctx, "USOL/USDC")
	if err != nil {
		t.Fatal(err)
	}

	if upstream.tickerCalls != 1 {
		t.Errorf("upstream fetched %d times within the TTL, want 1", upstream.tickerCalls)
	}
	if first != second {
		t.Error("cached lookup should return the same ticker")
	}
}

func TestCachedGatewayErrorNotCached(t *testing.T) {
	upstream := &countingGateway{tickerErr: errors.New("timeout")}
	gw, _ := newCachedTestGateway(upstream)
	ctx := context.Background()

	if _, err := gw.GetTicker(ctx, "USOL/USDC"); err == nil {
		t.Fatal("expected error from upstream")
	}

	upstream.tickerErr = nil
	if _, err := gw.GetTicker(ctx, "USOL/USDC"); err != nil {
		t.Fatalf("recovery fetch failed: %v", err)
	}
	if upstream.tickerCalls != 2 {
		t.Errorf("upstream fetched %d times, want a retry after the error", upstream.tickerCalls)
	}
}

func TestCachedGatewaySymbolsKeyedSeparately(t *testing.T) {
	upstream := &countingGateway{}
	gw, _ := newCachedTestGateway(upstream)
	ctx := context.Background()

	gw.GetTicker(ctx, "USOL/USDC")
	gw.GetTicker(ctx, "SOL/USDC:USDC")

	if upstream.tickerCalls != 2 {
		t.Errorf("upstream fetched %d times, want one per symbol", upstream.tickerCalls)
	}
}

func TestCachedGatewayOHLCVKeyIncludesParams(t *testing.T) {
	upstream := &countingGateway{}
	gw, _ := newCachedTestGateway(upstream)
	ctx := context.Background()

	gw.FetchOHLCV(ctx, "USOL/USDC", "1h", 15)
	gw.FetchOHLCV(ctx, "USOL/USDC", "1h", 15)
	gw.FetchOHLCV(ctx, "USOL/USDC", "5m", 15)

	if upstream.ohlcvCalls != 2 {
		t.Errorf("upstream fetched %d times, want distinct timeframes to miss", upstream.ohlcvCalls)
	}
}

func TestCachedGatewayRecordsTelemetry(t *testing.T) {
	upstream := &countingGateway{}
	gw, monitor := newCachedTestGateway(upstream)
	ctx := context.Background()

	gw.GetTicker(ctx, "USOL/USDC")
	gw.PlaceOrder(ctx, &models.OrderRequest{Symbol: "USOL/USDC"})
	gw.CancelOrder(ctx, "order-1", "USOL/USDC", models.MarketTypeSpot)

	stats := monitor.Stats()
	if stats.CallCount != 3 {
		t.Errorf("call count = %d, want 3", stats.CallCount)
	}
	for _, op := range []string{"get_ticker", "place_order", "cancel_order"} {
		if _, ok := stats.Operations[op]; !ok {
			t.Errorf("missing telemetry for %s", op)
		}
	}
}

func TestOhlcvKey(t *testing.T) {
	if got := ohlcvKey("USOL/USDC", "1h", 15); got != "USOL/USDC_1h_15" {
		t.Errorf("key = %q, want USOL/USDC_1h_15", got)
	}
}
