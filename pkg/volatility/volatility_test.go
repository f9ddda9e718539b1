package volatility

import (
	"context"
	"errors"
	"io"
	"math"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/solquote/mmbot/pkg/models"
	"github.com/solquote/mmbot/pkg/perf"
)

type fakeGateway struct {
	candles   []models.Candle
	candleErr error
	ticker    *models.Ticker
	tickerErr error

	ohlcvCalls int
}

func (f *fakeGateway) GetTicker(ctx context.Context, symbol string) (*models.Ticker, error) {
	return f.ticker, f.tickerErr
}

func (f *fakeGateway) GetOrderBook(ctx context.Context, symbol string, depth int) (*models.OrderBook, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeGateway) GetBalance(ctx context.Context) (models.Balance, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeGateway) GetPositions(ctx context.Context) ([]models.Position, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeGateway) GetFundingRate(ctx context.Context, symbol string) (float64, error) {
	return 0, errors.New("not implemented")
}

func (f *fakeGateway) PlaceOrder(ctx context.Context, order *models.OrderRequest) (string, error) {
	return "", errors.New("not implemented")
}

func (f *fakeGateway) CancelOrder(ctx context.Context, orderID, symbol string, marketType models.MarketType) error {
	return errors.New("not implemented")
}

func (f *fakeGateway) FetchOHLCV(ctx context.Context, symbol, timeframe string, limit int) ([]models.Candle, error) {
	f.ohlcvCalls++
	return f.candles, f.candleErr
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// unitRangeCandles builds n candles each with high-low = 1.0 and a close
// equal to the next candle's midpoint, so every true range is exactly 1.
func unitRangeCandles(n int) []models.Candle {
	candles := make([]models.Candle, n)
	ts := time.Now().Add(-time.Duration(n) * time.Hour)
	for i := range candles {
		candles[i] = models.Candle{
			Open:      100.0,
			High:      100.5,
			Low:       99.5,
			Close:     100.0,
			Volume:    10,
			Timestamp: ts.Add(time.Duration(i) * time.Hour),
		}
	}
	return candles
}

func TestTrueRange(t *testing.T) {
	tests := []struct {
		name                 string
		high, low, prevClose float64
		want                 float64
	}{
		{"plain range", 101, 99, 100, 2},
		{"gap up", 110, 108, 100, 10},
		{"gap down", 92, 90, 100, 10},
		{"flat candle", 100, 100, 100, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TrueRange(tt.high, tt.low, tt.prevClose); got != tt.want {
				t.Errorf("TrueRange(%v, %v, %v) = %v, want %v", tt.high, tt.low, tt.prevClose, got, tt.want)
			}
		})
	}
}

func TestCalculateATRUnitRanges(t *testing.T) {
	gw := &fakeGateway{candles: unitRangeCandles(15)}
	est := NewEstimator(gw, perf.NewMonitor(quietLogger()), quietLogger())

	atr := est.CalculateATR(context.Background(), "USOL/USDC", 14, "1h")
	if math.Abs(atr-1.0) > 1e-9 {
		t.Errorf("ATR = %v, want 1.0 for 14 unit true ranges", atr)
	}
}

func TestCalculateATRInsufficientData(t *testing.T) {
	gw := &fakeGateway{candles: unitRangeCandles(10)}
	est := NewEstimator(gw, perf.NewMonitor(quietLogger()), quietLogger())

	if atr := est.CalculateATR(context.Background(), "USOL/USDC", 14, "1h"); atr != 0.0 {
		t.Errorf("ATR = %v, want 0 when fewer than period+1 candles", atr)
	}
}

func TestCalculateATRFetchFailure(t *testing.T) {
	gw := &fakeGateway{candleErr: errors.New("upstream down")}
	est := NewEstimator(gw, perf.NewMonitor(quietLogger()), quietLogger())

	if atr := est.CalculateATR(context.Background(), "USOL/USDC", 14, "1h"); atr != 0.0 {
		t.Errorf("ATR = %v, want 0 on fetch failure", atr)
	}
}

func TestCalculateATRCached(t *testing.T) {
	gw := &fakeGateway{candles: unitRangeCandles(15)}
	est := NewEstimator(gw, perf.NewMonitor(quietLogger()), quietLogger())

	ctx := context.Background()
	first := est.CalculateATR(ctx, "USOL/USDC", 14, "1h")
	second := est.CalculateATR(ctx, "USOL/USDC", 14, "1h")

	if first != second {
		t.Errorf("cached ATR %v differs from computed %v", second, first)
	}
	if gw.ohlcvCalls != 1 {
		t.Errorf("OHLCV fetched %d times, want 1", gw.ohlcvCalls)
	}
}

func TestCalculateVolatility(t *testing.T) {
	gw := &fakeGateway{
		candles: unitRangeCandles(15),
		ticker:  &models.Ticker{Symbol: "USOL/USDC", LastPrice: 100.0},
	}
	est := NewEstimator(gw, perf.NewMonitor(quietLogger()), quietLogger())

	vol := est.CalculateVolatility(context.Background(), "USOL/USDC", 14, "1h")
	if math.Abs(vol-0.01) > 1e-9 {
		t.Errorf("volatility = %v, want 0.01 (ATR 1.0 / price 100)", vol)
	}
}

func TestCalculateVolatilityInvalidPrice(t *testing.T) {
	gw := &fakeGateway{
		candles: unitRangeCandles(15),
		ticker:  &models.Ticker{Symbol: "USOL/USDC", LastPrice: 0},
	}
	est := NewEstimator(gw, perf.NewMonitor(quietLogger()), quietLogger())

	if vol := est.CalculateVolatility(context.Background(), "USOL/USDC", 14, "1h"); vol != 0.0 {
		t.Errorf("volatility = %v, want 0 when last price is not positive", vol)
	}
}

func TestCalculateVolatilityTickerFailure(t *testing.T) {
	gw := &fakeGateway{
		candles:   unitRangeCandles(15),
		tickerErr: errors.New("upstream down"),
	}
	est := NewEstimator(gw, perf.NewMonitor(quietLogger()), quietLogger())

	if vol := est.CalculateVolatility(context.Background(), "USOL/USDC", 14, "1h"); vol != 0.0 {
		t.Errorf("volatility = %v, want 0 on ticker failure", vol)
	}
}

func TestAdjustSpread(t *testing.T) {
	if got := AdjustSpread(0.001, 0, 0.5); got != 0.001 {
		t.Errorf("zero ATR must leave the spread unchanged, got %v", got)
	}
	if got := AdjustSpread(0.001, 2.0, 0.5); math.Abs(got-0.002) > 1e-12 {
		t.Errorf("AdjustSpread(0.001, 2, 0.5) = %v, want 0.002", got)
	}
}
