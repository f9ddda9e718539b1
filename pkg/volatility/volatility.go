package volatility

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/solquote/mmbot/pkg/exchange"
	"github.com/solquote/mmbot/pkg/perf"
)

// Estimator computes ATR-based volatility from OHLCV candles. Derived
// values are cached for up to three minutes, which bounds the staleness
// of every pricing decision downstream.
type Estimator struct {
	gateway exchange.Gateway
	monitor *perf.Monitor
	logger  *logrus.Logger
}

func NewEstimator(gateway exchange.Gateway, monitor *perf.Monitor, logger *logrus.Logger) *Estimator {
	return &Estimator{
		gateway: gateway,
		monitor: monitor,
		logger:  logger,
	}
}

// TrueRange for one candle against the previous close.
func TrueRange(high, low, prevClose float64) float64 {
	tr := high - low
	if d := math.Abs(high - prevClose); d > tr {
		tr = d
	}
	if d := math.Abs(low - prevClose); d > tr {
		tr = d
	}
	return tr
}

// CalculateATR returns the Average True Range over period candles of the
// given timeframe. Fails soft: data problems log a warning and yield 0.
func (e *Estimator) CalculateATR(ctx context.Context, symbol string, period int, timeframe string) float64 {
	start := time.Now()
	key := cacheKey(symbol, timeframe, period)

	if cached, ok := e.monitor.GetCached(perf.KindATR, key); ok {
		return cached.(float64)
	}

	candles, err := e.gateway.FetchOHLCV(ctx, symbol, timeframe, period+1)
	if err != nil {
		e.logger.WithError(err).WithField("symbol", symbol).Warn("Failed to fetch OHLCV for ATR")
		return 0.0
	}
	if len(candles) < period+1 {
		e.logger.WithFields(logrus.Fields{
			"symbol":   symbol,
			"have":     len(candles),
			"required": period + 1,
		}).Warn("Insufficient data for ATR calculation")
		return 0.0
	}

	trueRanges := make([]float64, 0, len(candles)-1)
	for i := 1; i < len(candles); i++ {
		trueRanges = append(trueRanges, TrueRange(candles[i].High, candles[i].Low, candles[i-1].Close))
	}

	// ATR is the arithmetic mean of the last period true ranges.
	var sum float64
	for _, tr := range trueRanges[len(trueRanges)-period:] {
		sum += tr
	}
	atr := sum / float64(period)

	e.monitor.PutCached(perf.KindATR, key, atr)
	e.monitor.RecordCall("calculate_atr", time.Since(start))

	e.logger.WithFields(logrus.Fields{
		"symbol": symbol,
		"atr":    atr,
	}).Debug("ATR calculated")
	return atr
}

// CalculateVolatility returns ATR normalized by the last traded price.
func (e *Estimator) CalculateVolatility(ctx context.Context, symbol string, period int, timeframe string) float64 {
	start := time.Now()
	key := cacheKey(symbol, timeframe, period)

	if cached, ok := e.monitor.GetCached(perf.KindVolatility, key); ok {
		return cached.(float64)
	}

	ticker, err := e.gateway.GetTicker(ctx, symbol)
	if err != nil {
		e.logger.WithError(err).WithField("symbol", symbol).Warn("Failed to fetch ticker for volatility")
		return 0.0
	}
	if ticker.LastPrice <= 0 {
		e.logger.WithFields(logrus.Fields{
			"symbol": symbol,
			"price":  ticker.LastPrice,
		}).Warn("Invalid price for volatility calculation")
		return 0.0
	}

	atr := e.CalculateATR(ctx, symbol, period, timeframe)
	vol := atr / ticker.LastPrice

	e.monitor.PutCached(perf.KindVolatility, key, vol)
	e.monitor.RecordCall("calculate_volatility", time.Since(start))

	e.logger.WithFields(logrus.Fields{
		"symbol":     symbol,
		"atr":        atr,
		"volatility": vol,
	}).Debug("Volatility calculated")
	return vol
}

// AdjustSpread widens a base spread by the ATR: base * (1 + k*atr).
// Pure function; identity when ATR is zero.
func AdjustSpread(baseSpread, atr, scaleFactor float64) float64 {
	return baseSpread * (1 + scaleFactor*atr)
}

func cacheKey(symbol, timeframe string, period int) string {
	return fmt.Sprintf("%s_%s_%d", symbol, timeframe, period)
}
