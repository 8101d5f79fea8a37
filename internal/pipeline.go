package internal

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/kanghyeon/autocoin/config"
	"github.com/kanghyeon/autocoin/internal/entity"
	"github.com/kanghyeon/autocoin/internal/services/decision"
	"github.com/kanghyeon/autocoin/internal/services/detector"
	"github.com/kanghyeon/autocoin/internal/services/executor"
	"github.com/kanghyeon/autocoin/internal/services/notifier"
	"github.com/kanghyeon/autocoin/internal/services/risk"
	"github.com/kanghyeon/autocoin/internal/storage/positions"
	"github.com/kanghyeon/autocoin/internal/upbit"
	"github.com/kanghyeon/autocoin/pkg/broadcast"
	"github.com/kanghyeon/autocoin/pkg/ratelimit"
)

// Pipeline wires the full trading flow: market data fans out to the surge
// detector and the risk manager, their decisions fan in to a single
// execution agent, and order results feed the notifier. All hops are
// channels; correctness-critical hops block rather than drop.
type Pipeline struct {
	cfg    config.Config
	logger *zap.Logger

	client   *upbit.Client
	store    *positions.WALStore
	detector *detector.Detector
	maker    *decision.Maker
	risk     *risk.Manager
	agent    *executor.Agent
	notify   *notifier.Discord
}

// NewPipeline builds every stage from configuration. The position store is
// opened here so replayed state is available before any stage starts.
func NewPipeline(cfg config.Config, logger *zap.Logger) (*Pipeline, error) {
	limiter := ratelimit.New(cfg.Upbit.RateLimit)
	client := upbit.NewClient(cfg.Upbit.AccessKey, cfg.Upbit.SecretKey, limiter, logger,
		upbit.WithBaseURL(cfg.Upbit.APIURL))

	store, err := positions.NewWALStore(cfg.Storage.Dir)
	if err != nil {
		return nil, errors.Wrap(err, "open position store")
	}

	det := detector.New(detector.Config{
		SurgeThreshold:   cfg.Trading.SurgeThreshold,
		SurgeWindow:      cfg.Trading.SurgeWindow,
		VolumeMultiplier: cfg.Trading.VolumeMultiplier,
	}, logger)

	maker := decision.New(decision.Config{
		MinOrderAmount:   cfg.Trading.MinOrderAmount,
		MaxPositionRatio: cfg.Trading.MaxPositionRatio,
	}, store, logger)

	agent := executor.New(executor.Config{
		StopLossRate: cfg.Trading.StopLossRate,
		ProfitRate:   cfg.Trading.ProfitRate,
		MaxRetries:   cfg.Executor.MaxRetries,
		BaseDelay:    cfg.Executor.BaseDelay,
	}, client, store, upbit.IsRetryable, logger)

	notify := notifier.New(notifier.Config{
		WebhookURL:   cfg.Notify.WebhookURL,
		NotifyOnBuy:  cfg.Notify.NotifyOnBuy,
		NotifyOnSell: cfg.Notify.NotifyOnSell,
		NotifyOnErr:  cfg.Notify.NotifyOnErr,
	}, logger)

	return &Pipeline{
		cfg:      cfg,
		logger:   logger,
		client:   client,
		store:    store,
		detector: det,
		maker:    maker,
		risk:     risk.New(store, logger),
		agent:    agent,
		notify:   notify,
	}, nil
}

// Close releases the position store.
func (p *Pipeline) Close() error {
	return p.store.Close()
}

// Run starts every stage and blocks until the context is cancelled or every
// stage has exited. A fatal stage error stops that stage only: its siblings
// keep running, and downstream stages drain in topology order as their
// inputs close, so no accepted decision is lost. The first stage error is
// returned once all stages have exited.
func (p *Pipeline) Run(ctx context.Context) error {
	markets, err := p.resolveMarkets(ctx)
	if err != nil {
		return errors.Wrap(err, "resolve target markets")
	}

	balance, err := p.client.GetBalance(ctx)
	if err != nil {
		return errors.Wrap(err, "fetch initial balance")
	}
	p.maker.SetBalance(balance)
	p.logger.Info("starting trading pipeline",
		zap.Strings("markets", markets),
		zap.String("balance", balance.StringFixed(0)))

	stream := upbit.NewStream(markets, p.logger,
		upbit.WithStreamURL(p.cfg.Upbit.WSURL),
		upbit.WithMaxRetries(p.cfg.Stream.MaxRetries),
		upbit.WithRetryDelay(p.cfg.Stream.RetryDelay))

	capacity := p.cfg.ChannelCapacity
	ticks := make(chan entity.Tick, capacity)
	signals := make(chan entity.Signal, capacity)
	makerOut := make(chan entity.Decision, capacity)
	riskOut := make(chan entity.Decision, capacity)
	results := make(chan entity.OrderResult, capacity)
	notified := make(chan entity.OrderResult, capacity)

	fanout := broadcast.New[entity.Tick](capacity)
	detectorTicks := fanout.Subscribe()
	riskTicks := fanout.Subscribe()

	var wg sync.WaitGroup
	errc := make(chan error, 1)
	fail := func(stage string, err error) {
		if err == nil || errors.Is(err, context.Canceled) {
			return
		}
		// the failed stage's closed output lets downstream stages drain
		// and exit; siblings are not torn down
		p.logger.Error("stage failed",
			zap.String("stage", stage),
			zap.Error(err))
		select {
		case errc <- errors.Wrap(err, stage):
		default:
		}
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(ticks)
		fail("market data stream", stream.Run(ctx, ticks))
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		fanout.Run(ctx, ticks)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		fail("signal detector", p.detector.Run(ctx, detectorTicks, signals))
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		fail("decision maker", p.maker.Run(ctx, signals, makerOut))
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		fail("risk manager", p.risk.Run(ctx, riskTicks, riskOut))
	}()

	decisions := mergeDecisions(ctx, makerOut, riskOut)

	wg.Add(1)
	go func() {
		defer wg.Done()
		fail("execution agent", p.agent.Run(ctx, decisions, results))
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(notified)
		p.refreshBalance(ctx, results, notified)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		p.notify.Run(ctx, notified)
	}()

	wg.Wait()

	select {
	case err := <-errc:
		return err
	default:
		return ctx.Err()
	}
}

// resolveMarkets returns the configured market list, or the first
// TargetMarkets KRW-quoted codes from the catalogue when none is configured.
func (p *Pipeline) resolveMarkets(ctx context.Context) ([]string, error) {
	if len(p.cfg.Trading.Markets) > 0 {
		return p.cfg.Trading.Markets, nil
	}
	return p.client.GetTopKRWMarkets(ctx, p.cfg.Trading.TargetMarkets)
}

// refreshBalance forwards order results downstream, refetching the account
// balance after each successful trade so the decision maker sizes the next
// order against reality.
func (p *Pipeline) refreshBalance(ctx context.Context, in <-chan entity.OrderResult, out chan<- entity.OrderResult) {
	for result := range in {
		if result.Success {
			if balance, err := p.client.GetBalance(ctx); err != nil {
				p.logger.Warn("failed to refresh balance after trade", zap.Error(err))
			} else {
				p.maker.SetBalance(balance)
			}
		}
		out <- result
	}
}

// mergeDecisions fans the decision producers into one stream. The merged
// channel closes after every producer has closed its source, or once ctx
// ends, so a consumer that stopped reading never strands the forwarders.
func mergeDecisions(ctx context.Context, sources ...<-chan entity.Decision) <-chan entity.Decision {
	out := make(chan entity.Decision)
	var wg sync.WaitGroup
	for _, src := range sources {
		wg.Add(1)
		go func(src <-chan entity.Decision) {
			defer wg.Done()
			for d := range src {
				select {
				case out <- d:
				case <-ctx.Done():
					return
				}
			}
		}(src)
	}
	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}
