package models

import (
	"time"
)

// Asset is one currency entry of an account balance.
type Asset struct {
	Free  float64
	Used  float64
	Total float64
}

// Balance maps currency code to its balance entry.
type Balance map[string]Asset

// Free returns the free amount for a currency, zero if absent.
func (b Balance) Free(currency string) float64 {
	return b[currency].Free
}

// Position is a normalized open position. Payload shapes coming off the
// wire (object, list, bare number) are flattened into this struct at the
// gateway boundary; core logic never sees anything else.
type Position struct {
	Symbol     string
	Size       float64
	Notional   float64
	Leverage   float64
	EntryPrice float64
	UpdatedAt  time.Time
}
