package risk

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/kanghyeon/autocoin/internal/entity"
)

// positionReader exposes the persisted position state. The manager re-reads
// on every matching tick, so a position opened or closed by the executor is
// visible without out-of-band updates.
type positionReader interface {
	GetAllActivePositions() []entity.Position
	ActivePosition(market string) (entity.Position, bool)
}

// Manager watches the tick stream against the held position and emits
// risk-driven sell decisions for stop-loss and take-profit exits.
type Manager struct {
	positions positionReader
	logger    *zap.Logger
}

// New creates a risk manager reading positions through store.
func New(store positionReader, logger *zap.Logger) *Manager {
	return &Manager{positions: store, logger: logger}
}

// Run consumes ticks until the input closes or the context is cancelled.
// Sell decisions block on a full output buffer.
func (m *Manager) Run(ctx context.Context, in <-chan entity.Tick, out chan<- entity.Decision) error {
	m.logger.Info("starting risk manager")
	defer close(out)

	m.loadActivePositions()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case tick, ok := <-in:
			if !ok {
				return nil
			}

			dec, ok := m.Evaluate(tick)
			if !ok {
				continue
			}

			m.logger.Warn("risk exit triggered",
				zap.String("market", dec.Market),
				zap.String("reason", dec.Reason),
				zap.Float64("price", tick.TradePrice))

			select {
			case out <- dec:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// loadActivePositions reports the persisted state on start. More than one
// active position is a data-consistency anomaly: the first by entry time is
// watched and the rest are logged.
func (m *Manager) loadActivePositions() {
	active := m.positions.GetAllActivePositions()
	switch {
	case len(active) == 0:
		m.logger.Info("no active position on start")
	case len(active) == 1:
		m.logger.Info("loaded active position",
			zap.String("market", active[0].Market),
			zap.String("entry_price", active[0].EntryPrice.String()))
	default:
		m.logger.Warn("multiple active positions found, selecting the first",
			zap.Int("count", len(active)),
			zap.String("selected", active[0].Market))
	}
}

// Evaluate checks one tick against the held position. It returns no decision
// when the position should be maintained or the tick is for another market.
func (m *Manager) Evaluate(tick entity.Tick) (entity.Decision, bool) {
	pos, held := m.positions.ActivePosition(tick.Market)
	if !held {
		return entity.Decision{}, false
	}

	price := decimal.NewFromFloat(tick.TradePrice)

	if pos.ShouldStopLoss(price) {
		pnl := pos.PnL(price)
		m.logger.Warn("stop loss breached",
			zap.String("market", pos.Market),
			zap.String("stop_loss", pos.StopLoss.String()),
			zap.String("pnl", pnl.Profit.String()))
		return entity.SellDecision(pos.Market, pos.Amount, "stop loss triggered"), true
	}

	if pos.ShouldTakeProfit(price) {
		pnl := pos.PnL(price)
		m.logger.Info("take profit reached",
			zap.String("market", pos.Market),
			zap.String("take_profit", pos.TakeProfit.String()),
			zap.String("pnl", pnl.Profit.String()))
		return entity.SellDecision(pos.Market, pos.Amount, "take profit reached"), true
	}

	return entity.Decision{}, false
}
