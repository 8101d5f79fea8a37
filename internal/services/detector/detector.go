package detector

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kanghyeon/autocoin/internal/entity"
	"github.com/kanghyeon/autocoin/pkg/logging"
)

const defaultWindowCapacity = 10000

// Config holds the surge detection parameters.
type Config struct {
	// SurgeThreshold is the minimum relative price increase over the
	// lookback window, e.g. 0.05 for 5%.
	SurgeThreshold float64
	// SurgeWindow is the lookback duration.
	SurgeWindow time.Duration
	// VolumeMultiplier is the minimum ratio of the current tick volume to
	// the window's average volume.
	VolumeMultiplier float64
	// WindowCapacity bounds the tick history across all markets.
	WindowCapacity int
}

// Detector consumes the tick stream, maintains a rolling tick window per
// market and emits buy signals on surge conditions. No signal is the hold
// state; the detector never emits explicit holds.
type Detector struct {
	cfg     Config
	history *history
	logger  *zap.Logger
	summary *logging.Throttled
	now     func() time.Time
}

// New creates a surge detector.
func New(cfg Config, logger *zap.Logger) *Detector {
	if cfg.WindowCapacity <= 0 {
		cfg.WindowCapacity = defaultWindowCapacity
	}
	return &Detector{
		cfg:     cfg,
		history: newHistory(cfg.WindowCapacity),
		logger:  logger,
		summary: logging.NewThrottled(logger, time.Minute),
		now:     time.Now,
	}
}

// Run consumes ticks until the input closes or the context is cancelled.
// Emitted signals block on a full output buffer; a signal is a trading
// intent and must not be dropped.
func (d *Detector) Run(ctx context.Context, in <-chan entity.Tick, out chan<- entity.Signal) error {
	d.logger.Info("starting signal detector",
		zap.Float64("surge_threshold", d.cfg.SurgeThreshold),
		zap.Duration("surge_window", d.cfg.SurgeWindow))
	defer close(out)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case tick, ok := <-in:
			if !ok {
				return nil
			}

			d.history.add(tick)
			d.summary.Info("window", "tick window stats",
				zap.Int("window_size", d.history.len()),
				zap.String("market", tick.Market))

			signal, ok := d.analyze(tick)
			if !ok {
				continue
			}

			d.logger.Info("surge detected",
				zap.String("market", signal.Market),
				zap.Float64("confidence", signal.Confidence),
				zap.String("reason", signal.Reason))

			select {
			case out <- signal:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// analyze evaluates the surge conditions for the tick's market.
func (d *Detector) analyze(tick entity.Tick) (entity.Signal, bool) {
	window := d.history.inWindow(tick.Market, d.now().Add(-d.cfg.SurgeWindow))
	if len(window) < 2 {
		return entity.Signal{}, false
	}

	oldest := window[0]
	latest := window[len(window)-1]
	if oldest.TradePrice <= 0 {
		return entity.Signal{}, false
	}
	priceChange := latest.TradePrice/oldest.TradePrice - 1

	var total float64
	for _, t := range window {
		total += t.Volume
	}
	avgVolume := total / float64(len(window))

	volumeRatio := 1.0
	if avgVolume > 0 {
		volumeRatio = tick.Volume / avgVolume
	}

	if priceChange < d.cfg.SurgeThreshold || volumeRatio < d.cfg.VolumeMultiplier {
		return entity.Signal{}, false
	}

	confidence := d.confidence(priceChange, volumeRatio)
	reason := fmt.Sprintf("price surged %.2f%% with %.1fx volume", priceChange*100, volumeRatio)
	return entity.NewBuySignal(tick.Market, confidence, reason), true
}

// confidence weights the price score 60/40 against the volume score, each
// capped so a single extreme input cannot saturate the result alone.
func (d *Detector) confidence(priceChange, volumeRatio float64) float64 {
	priceScore := min(priceChange/d.cfg.SurgeThreshold, 2.0) / 2.0
	volumeScore := min(volumeRatio/d.cfg.VolumeMultiplier, 3.0) / 3.0

	return min(priceScore*0.6+volumeScore*0.4, 1.0)
}
