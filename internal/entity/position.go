package entity

import (
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// PositionStatus is the lifecycle state of a position.
type PositionStatus string

const (
	PositionActive PositionStatus = "active"
	PositionClosed PositionStatus = "closed"
)

// Position is a held market exposure with exit thresholds fixed at creation.
// At most one active position exists system-wide at any time.
type Position struct {
	Market     string          `json:"market"`
	EntryPrice decimal.Decimal `json:"entry_price"`
	Amount     decimal.Decimal `json:"amount"`
	EntryTime  time.Time       `json:"entry_time"`
	StopLoss   decimal.Decimal `json:"stop_loss"`
	TakeProfit decimal.Decimal `json:"take_profit"`
	Status     PositionStatus  `json:"status"`

	// set on close, zero otherwise
	ExitPrice decimal.Decimal `json:"exit_price"`
	ExitTime  time.Time       `json:"exit_time"`
	Pnl       decimal.Decimal `json:"pnl"`
	PnlRate   decimal.Decimal `json:"pnl_rate"`
}

// NewPosition constructs an active position. Stop-loss and take-profit prices
// are derived from the entry price once and never recomputed.
func NewPosition(market string, entryPrice, amount decimal.Decimal, stopLossRate, takeProfitRate decimal.Decimal) (*Position, error) {
	if market == "" {
		return nil, errors.New("position market is required")
	}
	if entryPrice.LessThanOrEqual(decimal.Zero) {
		return nil, errors.New("entry price must be greater than zero")
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, errors.New("position amount must be greater than zero")
	}

	one := decimal.NewFromInt(1)
	return &Position{
		Market:     market,
		EntryPrice: entryPrice,
		Amount:     amount,
		EntryTime:  time.Now(),
		StopLoss:   entryPrice.Mul(one.Sub(stopLossRate)),
		TakeProfit: entryPrice.Mul(one.Add(takeProfitRate)),
		Status:     PositionActive,
	}, nil
}

// Close transitions the position to closed, recording the realized result.
func (p *Position) Close(exitPrice decimal.Decimal, exitTime time.Time) {
	pnl := p.PnL(exitPrice)
	p.ExitPrice = exitPrice
	p.ExitTime = exitTime
	p.Pnl = pnl.Profit
	p.PnlRate = pnl.ProfitRate
	p.Status = PositionClosed
}

// ShouldStopLoss reports whether the price breached the stop-loss threshold.
func (p *Position) ShouldStopLoss(price decimal.Decimal) bool {
	return price.LessThanOrEqual(p.StopLoss)
}

// ShouldTakeProfit reports whether the price reached the take-profit threshold.
func (p *Position) ShouldTakeProfit(price decimal.Decimal) bool {
	return price.GreaterThanOrEqual(p.TakeProfit)
}

// PnL computes profit and loss against the given market price.
func (p *Position) PnL(currentPrice decimal.Decimal) PnL {
	cost := p.EntryPrice.Mul(p.Amount)
	value := currentPrice.Mul(p.Amount)

	var rate decimal.Decimal
	if p.EntryPrice.IsPositive() {
		rate = currentPrice.Div(p.EntryPrice).Sub(decimal.NewFromInt(1))
	}

	return PnL{
		Cost:       cost,
		Value:      value,
		Profit:     value.Sub(cost),
		ProfitRate: rate,
	}
}

// PnL is profit and loss derived from a position and a current price.
// It is computed on demand and never stored.
type PnL struct {
	Cost       decimal.Decimal
	Value      decimal.Decimal
	Profit     decimal.Decimal
	ProfitRate decimal.Decimal
}
