package hyperliquid

import (
	"encoding/json"
	"fmt"

	"github.com/solquote/mmbot/pkg/models"
)

type infoRequest struct {
	Type     string `json:"type"`
	Symbol   string `json:"symbol,omitempty"`
	User     string `json:"user,omitempty"`
	Depth    int    `json:"depth,omitempty"`
	Interval string `json:"interval,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

type marketPayload struct {
	Symbol     string `json:"symbol"`
	Type       string `json:"type"`
	BaseAsset  string `json:"baseAsset"`
	QuoteAsset string `json:"quoteAsset"`
}

type tickerPayload struct {
	Bid       float64 `json:"bid"`
	Ask       float64 `json:"ask"`
	Last      float64 `json:"last"`
	Volume24h float64 `json:"volume24h"`
	Time      int64   `json:"time"`
}

type bookLevelPayload struct {
	Price float64 `json:"px"`
	Size  float64 `json:"sz"`
}

type bookPayload struct {
	Bids []bookLevelPayload `json:"bids"`
	Asks []bookLevelPayload `json:"asks"`
	Time int64              `json:"time"`
}

type balancePayload struct {
	Coin  string  `json:"coin"`
	Free  float64 `json:"free"`
	Used  float64 `json:"used"`
	Total float64 `json:"total"`
}

// positionPayload carries a position as the wire delivers it. The size
// field has been observed as a bare number, an object with a size key,
// and a single-element list; normalize flattens all three into the one
// struct the core consumes.
type positionPayload struct {
	Symbol     string          `json:"symbol"`
	Size       json.RawMessage `json:"size"`
	Notional   float64         `json:"notional"`
	Leverage   float64         `json:"leverage"`
	EntryPrice float64         `json:"entryPrice"`
}

func (p positionPayload) normalize() (models.Position, error) {
	size, err := decodeSize(p.Size)
	if err != nil {
		return models.Position{}, err
	}
	return models.Position{
		Symbol:     p.Symbol,
		Size:       size,
		Notional:   p.Notional,
		Leverage:   p.Leverage,
		EntryPrice: p.EntryPrice,
	}, nil
}

func decodeSize(raw json.RawMessage) (float64, error) {
	if len(raw) == 0 {
		return 0, nil
	}

	var number float64
	if err := json.Unmarshal(raw, &number); err == nil {
		return number, nil
	}

	var object struct {
		Size float64 `json:"size"`
	}
	if err := json.Unmarshal(raw, &object); err == nil {
		return object.Size, nil
	}

	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err == nil {
		if len(list) == 0 {
			return 0, nil
		}
		return decodeSize(list[0])
	}

	return 0, fmt.Errorf("unrecognized position size payload: %s", string(raw))
}

type fundingPayload struct {
	FundingRate float64 `json:"fundingRate"`
	Time        int64   `json:"time"`
}

type candlePayload struct {
	Open   float64 `json:"o"`
	High   float64 `json:"h"`
	Low    float64 `json:"l"`
	Close  float64 `json:"c"`
	Volume float64 `json:"v"`
	Time   int64   `json:"t"`
}

type orderRequestPayload struct {
	Action     string  `json:"action"`
	OrderID    string  `json:"orderId,omitempty"`
	Symbol     string  `json:"symbol"`
	Side       string  `json:"side,omitempty"`
	Type       string  `json:"type,omitempty"`
	Price      float64 `json:"price,omitempty"`
	Size       float64 `json:"size,omitempty"`
	MarketType string  `json:"marketType,omitempty"`
	ReduceOnly bool    `json:"reduceOnly,omitempty"`
}

type orderResponsePayload struct {
	Status  string `json:"status"`
	OrderID string `json:"orderId"`
	Error   string `json:"error,omitempty"`
}
