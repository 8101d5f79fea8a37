package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderSide is the exchange-side order direction.
type OrderSide string

const (
	SideBid OrderSide = "bid"
	SideAsk OrderSide = "ask"
)

// OrderStatus is the exchange-reported order state.
type OrderStatus string

const (
	OrderWaiting  OrderStatus = "waiting"
	OrderExecuted OrderStatus = "executed"
	OrderCanceled OrderStatus = "canceled"
	OrderFailed   OrderStatus = "failed"
)

// Order is one execution attempt on the exchange. Orders are persisted
// regardless of success.
type Order struct {
	ID             string          `json:"id"`
	Market         string          `json:"market"`
	Side           OrderSide       `json:"side"`
	Price          decimal.Decimal `json:"price"`
	Volume         decimal.Decimal `json:"volume"`
	Status         OrderStatus     `json:"status"`
	CreatedAt      time.Time       `json:"created_at"`
	ExecutedVolume decimal.Decimal `json:"executed_volume"`
	ExecutedAmount decimal.Decimal `json:"executed_amount"`
}

// OrderResult is the outcome of processing one trade decision. Failures are
// delivered through the same stream so they stay observable.
type OrderResult struct {
	Order   Order
	Success bool
	Err     error
}

// SuccessResult wraps an executed order.
func SuccessResult(order Order) OrderResult {
	return OrderResult{Order: order, Success: true}
}

// FailureResult records a failed execution attempt for the given market/side.
func FailureResult(market string, side OrderSide, err error) OrderResult {
	return OrderResult{
		Order:   Order{Market: market, Side: side, Status: OrderFailed, CreatedAt: time.Now()},
		Success: false,
		Err:     err,
	}
}
