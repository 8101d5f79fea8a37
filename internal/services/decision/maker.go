package decision

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/kanghyeon/autocoin/internal/entity"
)

// positionReader is the synchronous read-through view of persisted positions.
// Querying at decision time instead of caching a pushed snapshot closes the
// race between execution results and the next signal.
type positionReader interface {
	AnyActivePosition() (entity.Position, bool)
	ActivePosition(market string) (entity.Position, bool)
}

// Config holds the decision parameters.
type Config struct {
	MinOrderAmount   decimal.Decimal
	MaxPositionRatio decimal.Decimal
}

// Maker arbitrates signals against balance and position state. Every signal
// yields exactly one decision.
type Maker struct {
	cfg       Config
	positions positionReader
	logger    *zap.Logger

	mu      sync.RWMutex
	balance decimal.Decimal
}

// New creates a decision maker reading positions through store.
func New(cfg Config, store positionReader, logger *zap.Logger) *Maker {
	return &Maker{
		cfg:       cfg,
		positions: store,
		logger:    logger,
	}
}

// SetBalance updates the available quote balance.
func (m *Maker) SetBalance(balance decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balance = balance
}

// Balance returns the tracked quote balance.
func (m *Maker) Balance() decimal.Decimal {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.balance
}

// Run consumes signals until the input closes or the context is cancelled.
// Decisions block on a full output buffer; dropping one is a correctness bug.
func (m *Maker) Run(ctx context.Context, in <-chan entity.Signal, out chan<- entity.Decision) error {
	m.logger.Info("starting decision maker",
		zap.String("min_order_amount", m.cfg.MinOrderAmount.String()),
		zap.String("max_position_ratio", m.cfg.MaxPositionRatio.String()))
	defer close(out)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case signal, ok := <-in:
			if !ok {
				return nil
			}

			dec := m.Decide(signal)
			m.logger.Debug("decision made",
				zap.String("signal", signal.Kind.String()),
				zap.String("decision", dec.String()))

			select {
			case out <- dec:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// Decide maps one signal to one decision.
func (m *Maker) Decide(signal entity.Signal) entity.Decision {
	switch signal.Kind {
	case entity.SignalBuy, entity.SignalStrongBuy:
		return m.evaluateBuy(signal)
	case entity.SignalSell, entity.SignalStrongSell:
		return m.evaluateSell(signal)
	default:
		return entity.HoldDecision("No significant signal")
	}
}

func (m *Maker) evaluateBuy(signal entity.Signal) entity.Decision {
	if pos, held := m.positions.AnyActivePosition(); held {
		m.logger.Info("buy signal ignored, position already held",
			zap.String("signal_market", signal.Market),
			zap.String("held_market", pos.Market))
		return entity.HoldDecision("Position already exists")
	}

	balance := m.Balance()
	if balance.LessThan(m.cfg.MinOrderAmount) {
		m.logger.Warn("buy signal ignored, insufficient balance",
			zap.String("balance", balance.String()),
			zap.String("required", m.cfg.MinOrderAmount.String()))
		return entity.HoldDecision("Insufficient balance")
	}

	orderAmount := balance.Mul(m.cfg.MaxPositionRatio)

	// operator visibility only, never blocks the trade
	if orderAmount.GreaterThan(balance.Mul(decimal.NewFromFloat(0.5))) {
		m.logger.Warn("large order",
			zap.String("market", signal.Market),
			zap.String("amount", orderAmount.String()),
			zap.String("balance", balance.String()))
	}

	return entity.BuyDecision(signal.Market, orderAmount, signal.Reason)
}

func (m *Maker) evaluateSell(signal entity.Signal) entity.Decision {
	if pos, held := m.positions.ActivePosition(signal.Market); held {
		return entity.SellDecision(signal.Market, pos.Amount, signal.Reason)
	}
	return entity.HoldDecision("No matching position to sell")
}
