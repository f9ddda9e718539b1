package models

import (
	"time"
)

type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
)

type OrderStatus string

const (
	OrderStatusNew             OrderStatus = "new"
	OrderStatusPartiallyFilled OrderStatus = "partially_filled"
	OrderStatusFilled          OrderStatus = "filled"
	OrderStatusCancelled       OrderStatus = "cancelled"
	OrderStatusRejected        OrderStatus = "rejected"
)

type Order struct {
	OrderID    string
	Symbol     string
	Side       OrderSide
	Type       OrderType
	Price      float64
	Size       float64
	FilledSize float64
	Status     OrderStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type OrderRequest struct {
	Symbol     string
	Side       OrderSide
	Type       OrderType
	Price      float64
	Size       float64
	MarketType MarketType
	ReduceOnly bool
}
