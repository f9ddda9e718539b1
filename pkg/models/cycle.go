package models

// QuoteTier is one (bid, ask, size) quote layer. Tiers are ordered by
// increasing distance from the mid price.
type QuoteTier struct {
	BidPrice float64
	AskPrice float64
	Size     float64
}

// Spread returns the absolute bid/ask spread of the tier.
func (q QuoteTier) Spread() float64 {
	return q.AskPrice - q.BidPrice
}

// CycleResult is the contract returned to the polling loop for every
// strategy cycle, successful or not.
type CycleResult struct {
	Success        bool    `json:"success"`
	MidPrice       float64 `json:"mid_price"`
	Spread         float64 `json:"spread"`
	Volatility     float64 `json:"volatility"`
	SpotInventory  float64 `json:"spot_inventory"`
	PerpPosition   float64 `json:"perp_position"`
	FundingRate    float64 `json:"funding_rate"`
	FundingIncome  float64 `json:"funding_income"`
	QuoteTiers     int     `json:"quote_tiers"`
	SpotOrders     int     `json:"spot_orders"`
	HedgePlaced    bool    `json:"hedge_placed"`
	DailyVolume    float64 `json:"daily_volume"`
	VolumeProgress float64 `json:"volume_progress"`
	Error          string  `json:"error,omitempty"`
	TradingPaused  bool    `json:"trading_paused,omitempty"`
}
