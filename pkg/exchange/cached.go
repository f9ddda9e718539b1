package exchange

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/solquote/mmbot/pkg/models"
	"github.com/solquote/mmbot/pkg/perf"
)

// CachedGateway wraps a Gateway with the cache-lookup, rate-check,
// timed-invoke, cache-store, telemetry-record pipeline. Every market
// read the engine makes goes through here, so upstream sees at most one
// fetch per TTL window per key.
type CachedGateway struct {
	next    Gateway
	monitor *perf.Monitor
	logger  *logrus.Logger
}

func NewCachedGateway(next Gateway, monitor *perf.Monitor, logger *logrus.Logger) *CachedGateway {
	return &CachedGateway{
		next:    next,
		monitor: monitor,
		logger:  logger,
	}
}

// pace sleeps out the advisory interval when the operation is being
// called too quickly. The call itself always proceeds.
func (g *CachedGateway) pace(op string) {
	if !g.monitor.AllowCall(op) {
		time.Sleep(perf.MinCallInterval)
	}
}

// invoke runs fn with timing and telemetry around it.
func invoke[T any](g *CachedGateway, op string, fn func() (T, error)) (T, error) {
	g.pace(op)
	start := time.Now()
	result, err := fn()
	g.monitor.RecordCall(op, time.Since(start))
	return result, err
}

func (g *CachedGateway) GetTicker(ctx context.Context, symbol string) (*models.Ticker, error) {
	if cached, ok := g.monitor.GetCached(perf.KindTicker, symbol); ok {
		return cached.(*models.Ticker), nil
	}
	ticker, err := invoke(g, "get_ticker", func() (*models.Ticker, error) {
		return g.next.GetTicker(ctx, symbol)
	})
	if err != nil {
		return nil, err
	}
	g.monitor.PutCached(perf.KindTicker, symbol, ticker)
	return ticker, nil
}

func (g *CachedGateway) GetOrderBook(ctx context.Context, symbol string, depth int) (*models.OrderBook, error) {
	if cached, ok := g.monitor.GetCached(perf.KindOrderBook, symbol); ok {
		return cached.(*models.OrderBook), nil
	}
	book, err := invoke(g, "get_order_book", func() (*models.OrderBook, error) {
		return g.next.GetOrderBook(ctx, symbol, depth)
	})
	if err != nil {
		return nil, err
	}
	g.monitor.PutCached(perf.KindOrderBook, symbol, book)
	return book, nil
}

func (g *CachedGateway) GetBalance(ctx context.Context) (models.Balance, error) {
	return invoke(g, "get_balance", func() (models.Balance, error) {
		return g.next.GetBalance(ctx)
	})
}

func (g *CachedGateway) GetPositions(ctx context.Context) ([]models.Position, error) {
	return invoke(g, "get_positions", func() ([]models.Position, error) {
		return g.next.GetPositions(ctx)
	})
}

func (g *CachedGateway) GetFundingRate(ctx context.Context, symbol string) (float64, error) {
	return invoke(g, "get_funding_rate", func() (float64, error) {
		return g.next.GetFundingRate(ctx, symbol)
	})
}

func (g *CachedGateway) PlaceOrder(ctx context.Context, order *models.OrderRequest) (string, error) {
	return invoke(g, "place_order", func() (string, error) {
		return g.next.PlaceOrder(ctx, order)
	})
}

func (g *CachedGateway) CancelOrder(ctx context.Context, orderID, symbol string, marketType models.MarketType) error {
	_, err := invoke(g, "cancel_order", func() (struct{}, error) {
		return struct{}{}, g.next.CancelOrder(ctx, orderID, symbol, marketType)
	})
	return err
}

func (g *CachedGateway) FetchOHLCV(ctx context.Context, symbol, timeframe string, limit int) ([]models.Candle, error) {
	key := ohlcvKey(symbol, timeframe, limit)
	if cached, ok := g.monitor.GetCached(perf.KindOHLCV, key); ok {
		return cached.([]models.Candle), nil
	}
	candles, err := invoke(g, "fetch_ohlcv", func() ([]models.Candle, error) {
		return g.next.FetchOHLCV(ctx, symbol, timeframe, limit)
	})
	if err != nil {
		return nil, err
	}
	g.monitor.PutCached(perf.KindOHLCV, key, candles)
	return candles, nil
}

func ohlcvKey(symbol, timeframe string, limit int) string {
	return fmt.Sprintf("%s_%s_%d", symbol, timeframe, limit)
}
