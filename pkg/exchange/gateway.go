package exchange

import (
	"context"

	"github.com/solquote/mmbot/pkg/models"
)

// Gateway is the exchange connectivity contract the engine consumes.
// Implementations own transport, auth, and retry/backoff; an error from
// any call means "no data this cycle" and is never retried by the core.
type Gateway interface {
	GetTicker(ctx context.Context, symbol string) (*models.Ticker, error)
	GetOrderBook(ctx context.Context, symbol string, depth int) (*models.OrderBook, error)
	GetBalance(ctx context.Context) (models.Balance, error)
	GetPositions(ctx context.Context) ([]models.Position, error)
	GetFundingRate(ctx context.Context, symbol string) (float64, error)
	PlaceOrder(ctx context.Context, order *models.OrderRequest) (string, error)
	CancelOrder(ctx context.Context, orderID, symbol string, marketType models.MarketType) error
	FetchOHLCV(ctx context.Context, symbol, timeframe string, limit int) ([]models.Candle, error)
}
