package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/kanghyeon/autocoin/internal/entity"
)

const (
	colorGreen  = 3066993
	colorRed    = 15158332
	colorOrange = 15105570
)

// Config selects which events produce a webhook message. An empty WebhookURL
// disables delivery entirely.
type Config struct {
	WebhookURL   string
	NotifyOnBuy  bool
	NotifyOnSell bool
	NotifyOnErr  bool
}

// Discord posts order outcomes to a Discord webhook. Delivery is best effort:
// a failed or slow post is logged and dropped, it never applies backpressure
// to the trading path.
type Discord struct {
	cfg        Config
	httpClient *http.Client
	logger     *zap.Logger
}

// New creates a Discord notifier.
func New(cfg Config, logger *zap.Logger) *Discord {
	return &Discord{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Run drains the result stream until it closes. The notifier always keeps
// consuming so the executor is never blocked on an unread result.
func (d *Discord) Run(ctx context.Context, in <-chan entity.OrderResult) {
	if d.cfg.WebhookURL == "" {
		d.logger.Info("webhook url not configured, notifications disabled")
		for range in {
		}
		return
	}

	for result := range in {
		d.notify(ctx, result)
	}
}

func (d *Discord) notify(ctx context.Context, result entity.OrderResult) {
	switch {
	case !result.Success:
		if !d.cfg.NotifyOnErr {
			return
		}
		d.send(ctx, embed{
			Title: "Order Failed",
			Description: fmt.Sprintf("**%s** %s order failed: %v",
				result.Order.Market, sideLabel(result.Order.Side), result.Err),
			Color: colorOrange,
		})
	case result.Order.Side == entity.SideBid:
		if !d.cfg.NotifyOnBuy {
			return
		}
		d.send(ctx, embed{
			Title: "Buy Executed",
			Description: fmt.Sprintf("**%s** bought for %s KRW (volume %s)",
				result.Order.Market,
				result.Order.ExecutedAmount.StringFixed(0),
				result.Order.ExecutedVolume.String()),
			Color: colorGreen,
		})
	default:
		if !d.cfg.NotifyOnSell {
			return
		}
		d.send(ctx, embed{
			Title: "Sell Executed",
			Description: fmt.Sprintf("**%s** sold %s (proceeds %s KRW)",
				result.Order.Market,
				result.Order.ExecutedVolume.String(),
				result.Order.ExecutedAmount.StringFixed(0)),
			Color: colorRed,
		})
	}
}

type embed struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Color       int    `json:"color"`
}

type webhookPayload struct {
	Embeds []embed `json:"embeds"`
}

func (d *Discord) send(ctx context.Context, e embed) {
	body, err := json.Marshal(webhookPayload{Embeds: []embed{e}})
	if err != nil {
		d.logger.Error("failed to marshal webhook payload", zap.Error(err))
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		d.logger.Error("failed to build webhook request", zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		d.logger.Warn("webhook delivery failed", zap.Error(err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		d.logger.Warn("webhook rejected", zap.Int("status", resp.StatusCode))
	}
}

func sideLabel(side entity.OrderSide) string {
	if side == entity.SideBid {
		return "buy"
	}
	return "sell"
}
