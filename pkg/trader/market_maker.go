package trader

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/solquote/mmbot/pkg/exchange"
	"github.com/solquote/mmbot/pkg/models"
	"github.com/solquote/mmbot/pkg/risk"
	"github.com/solquote/mmbot/pkg/volatility"
)

// hedgeThreshold is the smallest perp adjustment worth sending. Deltas
// below it are left to drift until the next cycle.
const hedgeThreshold = 0.01

// tierWeights splits the base order size across tiers, heaviest closest
// to mid. Tiers beyond the table repeat the last weight.
var tierWeights = []float64{0.40, 0.35, 0.25}

// Config holds the strategy parameters for one spot/perp pair.
type Config struct {
	SpotSymbol string
	PerpSymbol string

	BaseSpread    float64
	InventorySize float64
	Leverage      float64

	ATRPeriod int
	Timeframe string

	MinSpread         float64
	MaxSpread         float64
	SpreadAggression  float64
	OrderTiers        int
	TierSpacing       float64
	MinOrderSize      float64
	MaxOrderSize      float64
	TargetDailyVolume float64

	FundingRateAnnual float64
}

// Summary is the strategy state snapshot served by the status API.
type Summary struct {
	SpotSymbol       string  `json:"spot_symbol"`
	PerpSymbol       string  `json:"perp_symbol"`
	CurrentInventory float64 `json:"current_inventory"`
	LastMidPrice     float64 `json:"last_mid_price"`
	BaseSpread       float64 `json:"base_spread"`
	InventorySize    float64 `json:"inventory_size"`
	Leverage         float64 `json:"leverage"`
	OpenSpotOrders   int     `json:"open_spot_orders"`
	DailyVolume      float64 `json:"daily_volume"`
	TargetVolume     float64 `json:"target_volume"`
	VolumeProgress   float64 `json:"volume_progress"`
	OrderTiers       int     `json:"order_tiers"`
	SpreadAggression float64 `json:"spread_aggression"`
}

// MarketMaker runs the long-spot short-perp quoting strategy: each cycle
// it reprices a ladder of spot quotes around mid and keeps the perp
// hedge sized against spot inventory.
type MarketMaker struct {
	cfg       Config
	gateway   exchange.Gateway
	estimator *volatility.Estimator
	risk      *risk.Manager
	logger    *logrus.Logger

	volume *VolumeTracker

	mu               sync.RWMutex
	spotOrderIDs     []string
	lastMidPrice     float64
	currentInventory float64
}

func NewMarketMaker(cfg Config, gateway exchange.Gateway, estimator *volatility.Estimator, riskMgr *risk.Manager, logger *logrus.Logger) *MarketMaker {
	mm := &MarketMaker{
		cfg:       cfg,
		gateway:   gateway,
		estimator: estimator,
		risk:      riskMgr,
		logger:    logger,
		volume:    NewVolumeTracker(cfg.TargetDailyVolume, time.Now),
	}
	logger.WithFields(logrus.Fields{
		"spot_symbol": cfg.SpotSymbol,
		"perp_symbol": cfg.PerpSymbol,
		"order_tiers": cfg.OrderTiers,
	}).Info("Initialized market making strategy")
	return mm
}

// ExecuteCycle runs one full strategy cycle. It never propagates an
// error or panic to the caller; every failure mode comes back as a
// CycleResult with Success=false.
func (mm *MarketMaker) ExecuteCycle(ctx context.Context) (result models.CycleResult) {
	defer func() {
		if r := recover(); r != nil {
			mm.logger.WithField("panic", r).Error("Strategy cycle panicked")
			result = models.CycleResult{Success: false, Error: fmt.Sprint(r)}
		}
	}()

	if mm.volume.ResetIfNewDay() {
		mm.logger.WithField("target", mm.cfg.TargetDailyVolume).Info("Reset daily volume tracking")
	}

	// Ticker, balance, and positions have no ordering dependency, so
	// fetch them on three short-lived workers and join before anything
	// that prices or gates.
	var (
		ticker    *models.Ticker
		tickerErr error
		balance   models.Balance
		positions []models.Position
	)
	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		ticker, tickerErr = mm.gateway.GetTicker(ctx, mm.cfg.SpotSymbol)
	}()
	go func() {
		defer wg.Done()
		b, err := mm.gateway.GetBalance(ctx)
		if err != nil {
			mm.logger.WithError(err).Warn("Failed to fetch balance")
			return
		}
		balance = b
	}()
	go func() {
		defer wg.Done()
		p, err := mm.gateway.GetPositions(ctx)
		if err != nil {
			mm.logger.WithError(err).Warn("Failed to fetch positions")
			return
		}
		positions = p
	}()
	wg.Wait()

	if tickerErr != nil || ticker == nil {
		if tickerErr != nil {
			mm.logger.WithError(tickerErr).Error("Failed to fetch spot ticker")
		}
		return models.CycleResult{Success: false, Error: "Unable to get ticker"}
	}

	midPrice := ticker.LastPrice
	inventory := balance.Free(mm.baseCurrency())
	perpPosition := mm.findPerpPosition(positions)

	mm.mu.Lock()
	mm.lastMidPrice = midPrice
	mm.currentInventory = inventory
	mm.mu.Unlock()

	vol := mm.estimator.CalculateVolatility(ctx, mm.cfg.SpotSymbol, mm.cfg.ATRPeriod, mm.cfg.Timeframe)

	fundingRate, err := mm.gateway.GetFundingRate(ctx, mm.cfg.PerpSymbol)
	if err != nil {
		fundingRate = mm.cfg.FundingRateAnnual / 365
		mm.logger.WithError(err).WithField("fallback", fundingRate).Warn("Funding rate unavailable, using configured annual rate")
	}
	fundingIncome := math.Abs(perpPosition) * midPrice * fundingRate

	safe, violations := mm.risk.ComprehensiveRiskCheck(inventory, vol, balance, positions)
	if !safe {
		mm.cancelSpotOrders(ctx)
		return models.CycleResult{
			Success:       false,
			Error:         "Risk violations: " + strings.Join(violations, ", "),
			TradingPaused: true,
		}
	}

	quotes := mm.calculateQuotes(vol)
	orderIDs := mm.placeSpotQuotes(ctx, midPrice, quotes)

	hedgePlaced := mm.placeHedgeOrder(ctx, mm.hedgeSize(inventory), perpPosition)

	mm.volume.Observe(0)
	mm.risk.IncrementTradeCount()

	var spread float64
	if len(quotes) > 0 {
		spread = quotes[0].Spread()
	}

	return models.CycleResult{
		Success:        true,
		MidPrice:       midPrice,
		Spread:         spread,
		Volatility:     vol,
		SpotInventory:  inventory,
		PerpPosition:   perpPosition,
		FundingRate:    fundingRate,
		FundingIncome:  fundingIncome,
		QuoteTiers:     len(quotes),
		SpotOrders:     len(orderIDs),
		HedgePlaced:    hedgePlaced,
		DailyVolume:    mm.volume.Daily(),
		VolumeProgress: mm.volume.Progress(),
	}
}

// CalculateAggressiveSpread derives the innermost tier's spread from the
// base spread: scale by volatility regime, discount by aggression, clamp
// to bounds, then tighten further when fills are scarce or volume is
// behind pace. The no-fill and pacing adjustments apply after the clamp.
func (mm *MarketMaker) CalculateAggressiveSpread(vol float64) float64 {
	base := mm.cfg.BaseSpread
	if vol < 0.01 {
		base *= 0.7
	} else if vol > 0.02 {
		base *= 1.2
	}

	spread := base * (1 - mm.cfg.SpreadAggression*0.5)

	if spread < mm.cfg.MinSpread {
		spread = mm.cfg.MinSpread
	}
	if spread > mm.cfg.MaxSpread {
		spread = mm.cfg.MaxSpread
	}

	if mm.volume.ConsecutiveNoFills() > 5 {
		spread *= 0.8
		mm.volume.ClearNoFills()
	}

	progress := mm.volume.Progress()
	if progress < 0.3 {
		spread *= 0.9
	} else if progress > 0.8 {
		spread *= 1.1
	}

	mm.logger.WithFields(logrus.Fields{
		"spread":     spread,
		"base":       base,
		"volatility": vol,
	}).Debug("Aggressive spread calculated")
	return spread
}

// orderSizes splits the base size across tiers and clamps each to the
// configured order size bounds.
func (mm *MarketMaker) orderSizes(baseSize float64) []float64 {
	sizes := make([]float64, 0, mm.cfg.OrderTiers)
	for i := 0; i < mm.cfg.OrderTiers; i++ {
		weight := tierWeights[len(tierWeights)-1]
		if i < len(tierWeights) {
			weight = tierWeights[i]
		}
		size := baseSize * weight
		if size < mm.cfg.MinOrderSize {
			size = mm.cfg.MinOrderSize
		}
		if size > mm.cfg.MaxOrderSize {
			size = mm.cfg.MaxOrderSize
		}
		sizes = append(sizes, size)
	}
	return sizes
}

// calculateQuotes returns the per-tier spreads and sizes. Prices are
// derived from mid at placement time via QuoteTiersAt.
func (mm *MarketMaker) calculateQuotes(vol float64) []models.QuoteTier {
	spread := mm.CalculateAggressiveSpread(vol)
	baseSize := mm.cfg.InventorySize / (2 * float64(mm.cfg.OrderTiers))
	sizes := mm.orderSizes(baseSize)

	mid := mm.LastMidPrice()
	return QuoteTiersAt(mid, spread, mm.cfg.TierSpacing, sizes)
}

// QuoteTiersAt builds the quote ladder: tier i trades at half-spread
// (spread + i*spacing)/2 off mid, so spread strictly increases with the
// tier index while bid < mid < ask holds throughout.
func QuoteTiersAt(mid, spread, spacing float64, sizes []float64) []models.QuoteTier {
	tiers := make([]models.QuoteTier, 0, len(sizes))
	for i, size := range sizes {
		half := (spread + float64(i)*spacing) / 2
		tiers = append(tiers, models.QuoteTier{
			BidPrice: mid * (1 - half),
			AskPrice: mid * (1 + half),
			Size:     size,
		})
	}
	return tiers
}

// placeSpotQuotes replaces the resting spot ladder: cancel everything,
// then one bid and one ask per tier, skipping empty tiers.
func (mm *MarketMaker) placeSpotQuotes(ctx context.Context, mid float64, quotes []models.QuoteTier) []string {
	mm.cancelSpotOrders(ctx)

	var orderIDs []string
	for i, tier := range quotes {
		if tier.Size <= 0 {
			continue
		}
		bidID, err := mm.gateway.PlaceOrder(ctx, &models.OrderRequest{
			Symbol:     mm.cfg.SpotSymbol,
			Side:       models.OrderSideBuy,
			Type:       models.OrderTypeLimit,
			Price:      tier.BidPrice,
			Size:       tier.Size,
			MarketType: models.MarketTypeSpot,
		})
		if err != nil {
			mm.logger.WithError(err).WithField("tier", i+1).Error("Failed to place bid")
		} else {
			orderIDs = append(orderIDs, bidID)
		}

		askID, err := mm.gateway.PlaceOrder(ctx, &models.OrderRequest{
			Symbol:     mm.cfg.SpotSymbol,
			Side:       models.OrderSideSell,
			Type:       models.OrderTypeLimit,
			Price:      tier.AskPrice,
			Size:       tier.Size,
			MarketType: models.MarketTypeSpot,
		})
		if err != nil {
			mm.logger.WithError(err).WithField("tier", i+1).Error("Failed to place ask")
		} else {
			orderIDs = append(orderIDs, askID)
		}
	}

	mm.mu.Lock()
	mm.spotOrderIDs = append(mm.spotOrderIDs, orderIDs...)
	mm.mu.Unlock()

	mm.logger.WithFields(logrus.Fields{
		"orders": len(orderIDs),
		"tiers":  len(quotes),
		"mid":    mid,
	}).Info("Placed spot quotes")
	return orderIDs
}

// hedgeSize is the perp position that neutralizes spot inventory.
func (mm *MarketMaker) hedgeSize(inventory float64) float64 {
	return -inventory * mm.cfg.Leverage
}

// placeHedgeOrder moves the perp position toward the hedge target with a
// market order. Adjustments under the threshold are skipped.
func (mm *MarketMaker) placeHedgeOrder(ctx context.Context, target, current float64) bool {
	adjustment := target - current
	if math.Abs(adjustment) < hedgeThreshold {
		return false
	}

	perpTicker, err := mm.gateway.GetTicker(ctx, mm.cfg.PerpSymbol)
	if err != nil {
		mm.logger.WithError(err).Warn("Failed to fetch perp ticker for hedge")
		return false
	}

	side := models.OrderSideBuy
	if adjustment < 0 {
		side = models.OrderSideSell
	}
	orderID, err := mm.gateway.PlaceOrder(ctx, &models.OrderRequest{
		Symbol:     mm.cfg.PerpSymbol,
		Side:       side,
		Type:       models.OrderTypeMarket,
		Price:      perpTicker.LastPrice,
		Size:       math.Abs(adjustment),
		MarketType: models.MarketTypeSwap,
	})
	if err != nil {
		mm.logger.WithError(err).Error("Failed to place hedge order")
		return false
	}

	mm.logger.WithFields(logrus.Fields{
		"order_id": orderID,
		"side":     side,
		"size":     math.Abs(adjustment),
		"symbol":   mm.cfg.PerpSymbol,
	}).Info("Placed hedge order")
	return true
}

// cancelSpotOrders cancels every resting spot order. Failures are logged
// and the ID dropped anyway; a cancel that failed because the order is
// already gone should not wedge the ladder.
func (mm *MarketMaker) cancelSpotOrders(ctx context.Context) {
	mm.mu.Lock()
	ids := mm.spotOrderIDs
	mm.spotOrderIDs = nil
	mm.mu.Unlock()

	for _, id := range ids {
		if err := mm.gateway.CancelOrder(ctx, id, mm.cfg.SpotSymbol, models.MarketTypeSpot); err != nil {
			mm.logger.WithError(err).WithField("order_id", id).Warn("Failed to cancel spot order")
		}
	}
	if len(ids) > 0 {
		mm.logger.WithField("orders", len(ids)).Info("Cancelled spot orders")
	}
}

// RecordFill feeds an observed fill into volume tracking.
func (mm *MarketMaker) RecordFill(size float64) {
	mm.volume.Observe(size)
}

func (mm *MarketMaker) findPerpPosition(positions []models.Position) float64 {
	for _, pos := range positions {
		if pos.Symbol == mm.cfg.PerpSymbol {
			return pos.Size
		}
	}
	return 0.0
}

func (mm *MarketMaker) baseCurrency() string {
	if i := strings.Index(mm.cfg.SpotSymbol, "/"); i > 0 {
		return mm.cfg.SpotSymbol[:i]
	}
	return mm.cfg.SpotSymbol
}

func (mm *MarketMaker) LastMidPrice() float64 {
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	return mm.lastMidPrice
}

func (mm *MarketMaker) GetSummary() Summary {
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	return Summary{
		SpotSymbol:       mm.cfg.SpotSymbol,
		PerpSymbol:       mm.cfg.PerpSymbol,
		CurrentInventory: mm.currentInventory,
		LastMidPrice:     mm.lastMidPrice,
		BaseSpread:       mm.cfg.BaseSpread,
		InventorySize:    mm.cfg.InventorySize,
		Leverage:         mm.cfg.Leverage,
		OpenSpotOrders:   len(mm.spotOrderIDs),
		DailyVolume:      mm.volume.Daily(),
		TargetVolume:     mm.cfg.TargetDailyVolume,
		VolumeProgress:   mm.volume.Progress(),
		OrderTiers:       mm.cfg.OrderTiers,
		SpreadAggression: mm.cfg.SpreadAggression,
	}
}
