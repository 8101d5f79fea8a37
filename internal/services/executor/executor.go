package executor

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/kanghyeon/autocoin/internal/entity"
	"github.com/kanghyeon/autocoin/pkg/retrier"
)

// minExecutedVolume guards the average-price division against zero fills.
var minExecutedVolume = decimal.NewFromFloat(0.0001)

// exchange is the order placement surface of the exchange client.
type exchange interface {
	BuyMarketOrder(ctx context.Context, market string, amountQuote decimal.Decimal) (entity.Order, error)
	SellMarketOrder(ctx context.Context, market string, volume decimal.Decimal) (entity.Order, error)
}

// positionStore is the durable bookkeeping surface.
type positionStore interface {
	SavePosition(p *entity.Position) error
	ClosePosition(market string, exitPrice, pnl, pnlRate decimal.Decimal) error
	ActivePosition(market string) (entity.Position, bool)
	SaveOrder(o entity.Order) error
}

// Config holds the execution parameters.
type Config struct {
	StopLossRate decimal.Decimal
	ProfitRate   decimal.Decimal
	// MaxRetries is the total number of placement attempts per decision.
	MaxRetries int
	// BaseDelay seeds the exponential backoff: attempt n sleeps base*2^n.
	BaseDelay time.Duration
}

// Agent consumes the merged decision stream and places orders with bounded
// retries. A failed trade is reported on the result stream and never halts
// the pipeline.
type Agent struct {
	cfg      Config
	exchange exchange
	store    positionStore
	retry    *retrier.Retrier
	logger   *zap.Logger
}

// New creates an execution agent. retryable classifies exchange errors; a
// non-retryable error aborts the decision immediately.
func New(cfg Config, ex exchange, store positionStore, retryable func(error) bool, logger *zap.Logger) *Agent {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}

	retry := retrier.New(
		retrier.WithInitialInterval(cfg.BaseDelay*2),
		retrier.WithMultiplier(2),
		retrier.WithMaxRetries(cfg.MaxRetries-1),
		retrier.WithRetryIf(retryable),
	)

	return &Agent{
		cfg:      cfg,
		exchange: ex,
		store:    store,
		retry:    retry,
		logger:   logger,
	}
}

// Run consumes decisions until the input closes or the context is cancelled.
// Cancellation is observed only between decisions: an in-flight retry loop
// runs to completion so an exchange-side fill is never orphaned without a
// recorded order.
func (a *Agent) Run(ctx context.Context, in <-chan entity.Decision, out chan<- entity.OrderResult) error {
	a.logger.Info("starting execution agent",
		zap.Int("max_retries", a.cfg.MaxRetries),
		zap.Duration("base_delay", a.cfg.BaseDelay))
	defer close(out)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case dec, ok := <-in:
			if !ok {
				return nil
			}
			if result, ok := a.Execute(ctx, dec); ok {
				// result delivery must not be lost, block until consumed
				out <- result
			}
		}
	}
}

// Execute processes one decision. Hold decisions produce no result.
func (a *Agent) Execute(ctx context.Context, dec entity.Decision) (entity.OrderResult, bool) {
	// finish the attempt even when the process is shutting down
	execCtx := context.WithoutCancel(ctx)

	switch dec.Kind {
	case entity.DecideBuy:
		return a.executeBuy(execCtx, dec), true
	case entity.DecideSell:
		return a.executeSell(execCtx, dec), true
	default:
		return entity.OrderResult{}, false
	}
}

func (a *Agent) executeBuy(ctx context.Context, dec entity.Decision) entity.OrderResult {
	a.logger.Info("executing buy order",
		zap.String("market", dec.Market),
		zap.String("amount_quote", dec.AmountQuote.String()))

	order, err := retrier.DoWithData(a.retry, ctx, func(ctx context.Context) (entity.Order, error) {
		return a.exchange.BuyMarketOrder(ctx, dec.Market, dec.AmountQuote)
	})
	if err != nil {
		a.logger.Error("buy order failed",
			zap.String("market", dec.Market),
			zap.Error(err))
		return entity.FailureResult(dec.Market, entity.SideBid, err)
	}

	a.logger.Info("buy order executed",
		zap.String("order_id", order.ID),
		zap.String("executed_volume", order.ExecutedVolume.String()))

	avgPrice := fillPrice(order)
	position, err := entity.NewPosition(dec.Market, avgPrice, order.ExecutedVolume, a.cfg.StopLossRate, a.cfg.ProfitRate)
	if err != nil {
		// the exchange-side fill already happened, bookkeeping lag must
		// not turn it into a failure
		a.logger.Error("failed to construct position from fill",
			zap.String("order_id", order.ID),
			zap.Error(err))
	} else if err := a.store.SavePosition(position); err != nil {
		a.logger.Error("failed to persist position",
			zap.String("market", dec.Market),
			zap.Error(err))
	}

	a.saveOrder(order)
	return entity.SuccessResult(order)
}

func (a *Agent) executeSell(ctx context.Context, dec entity.Decision) entity.OrderResult {
	a.logger.Info("executing sell order",
		zap.String("market", dec.Market),
		zap.String("amount", dec.Amount.String()))

	order, err := retrier.DoWithData(a.retry, ctx, func(ctx context.Context) (entity.Order, error) {
		return a.exchange.SellMarketOrder(ctx, dec.Market, dec.Amount)
	})
	if err != nil {
		a.logger.Error("sell order failed",
			zap.String("market", dec.Market),
			zap.Error(err))
		return entity.FailureResult(dec.Market, entity.SideAsk, err)
	}

	a.logger.Info("sell order executed",
		zap.String("order_id", order.ID),
		zap.String("executed_volume", order.ExecutedVolume.String()))

	exitPrice := fillPrice(order)
	if pos, held := a.store.ActivePosition(dec.Market); held {
		pnl := pos.PnL(exitPrice)
		if err := a.store.ClosePosition(dec.Market, exitPrice, pnl.Profit, pnl.ProfitRate); err != nil {
			a.logger.Error("failed to persist position close",
				zap.String("market", dec.Market),
				zap.Error(err))
		}
	} else {
		a.logger.Warn("sell executed without a matching active position",
			zap.String("market", dec.Market))
	}

	a.saveOrder(order)
	return entity.SuccessResult(order)
}

func (a *Agent) saveOrder(order entity.Order) {
	if err := a.store.SaveOrder(order); err != nil {
		a.logger.Error("failed to persist order",
			zap.String("order_id", order.ID),
			zap.Error(err))
	}
}

// fillPrice derives the average execution price from the fill, falling back
// to the quoted order price when the executed volume is unusable.
func fillPrice(order entity.Order) decimal.Decimal {
	vol := order.ExecutedVolume
	if vol.LessThan(minExecutedVolume) {
		vol = minExecutedVolume
	}
	if order.ExecutedAmount.IsPositive() {
		return order.ExecutedAmount.Div(vol)
	}
	return order.Price
}
