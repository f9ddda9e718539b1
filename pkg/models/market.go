package models

import (
	"time"
)

type MarketType string

const (
	MarketTypeSpot MarketType = "spot"
	MarketTypeSwap MarketType = "swap"
)

type Market struct {
	Symbol     string
	Type       MarketType
	BaseAsset  string
	QuoteAsset string
	UpdatedAt  time.Time
}

type Ticker struct {
	Symbol    string
	BidPrice  float64
	AskPrice  float64
	LastPrice float64
	Volume24h float64
	Timestamp time.Time
}

type OrderBook struct {
	Symbol    string
	Bids      []OrderBookLevel
	Asks      []OrderBookLevel
	Timestamp time.Time
}

type OrderBookLevel struct {
	Price float64
	Size  float64
}

// Candle is one OHLCV period. Sequences are always ordered oldest-first.
type Candle struct {
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	Timestamp time.Time
}
