package upbit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/kanghyeon/autocoin/internal/entity"
)

const (
	// DefaultStreamURL is the production websocket endpoint.
	DefaultStreamURL = "wss://api.upbit.com/websocket/v1"

	defaultMaxRetries = 5
	defaultRetryDelay = 5 * time.Second
	handshakeTimeout  = 10 * time.Second
)

// Stream is the resilient market-data stream. It keeps one websocket
// connection subscribed to the configured markets, reconnecting with a fixed
// delay on failure, and gives up after maxRetries consecutive failures.
type Stream struct {
	url        string
	markets    []string
	subType    string
	maxRetries int
	retryDelay time.Duration
	logger     *zap.Logger
}

// StreamOption configures the stream.
type StreamOption func(*Stream)

// WithStreamURL overrides the websocket endpoint, used by tests.
func WithStreamURL(u string) StreamOption {
	return func(s *Stream) {
		s.url = u
	}
}

// WithMaxRetries sets how many consecutive connection failures are tolerated.
func WithMaxRetries(n int) StreamOption {
	return func(s *Stream) {
		s.maxRetries = n
	}
}

// WithRetryDelay sets the fixed wait between reconnect attempts.
func WithRetryDelay(d time.Duration) StreamOption {
	return func(s *Stream) {
		s.retryDelay = d
	}
}

// WithSubscriptionType subscribes to "trade" or "ticker" frames.
func WithSubscriptionType(t string) StreamOption {
	return func(s *Stream) {
		s.subType = t
	}
}

// NewStream creates a market-data stream for the given markets.
func NewStream(markets []string, logger *zap.Logger, opts ...StreamOption) *Stream {
	s := &Stream{
		url:        DefaultStreamURL,
		markets:    markets,
		subType:    "trade",
		maxRetries: defaultMaxRetries,
		retryDelay: defaultRetryDelay,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run consumes the stream until the context is cancelled or reconnection is
// exhausted. Each decoded frame is delivered to out; the send blocks when the
// channel is full so ticks are never dropped while there is capacity.
func (s *Stream) Run(ctx context.Context, out chan<- entity.Tick) error {
	failures := 0

	for {
		subscribed, err := s.connectAndConsume(ctx, out)
		if subscribed {
			// the counter tracks consecutive failures only, a successful
			// subscribe starts a fresh budget
			failures = 0
		}
		if err == nil {
			// peer closed the stream cleanly, reconnect immediately
			s.logger.Info("stream closed by peer, reconnecting")
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		failures++
		if failures > s.maxRetries {
			s.logger.Error("giving up on stream reconnection",
				zap.Int("failures", failures),
				zap.Error(err))
			return errors.Wrapf(ErrMaxRetriesExceeded, "after %d consecutive failures: %s", failures, err)
		}

		s.logger.Warn("stream connection failed, retrying",
			zap.Int("attempt", failures),
			zap.Int("max_retries", s.maxRetries),
			zap.Duration("delay", s.retryDelay),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.retryDelay):
		}
	}
}

// connectAndConsume runs one connection lifetime: dial, subscribe, read until
// the connection drops. A nil error means the peer ended the stream cleanly;
// subscribed reports whether the subscription was established before the
// connection ended.
func (s *Stream) connectAndConsume(ctx context.Context, out chan<- entity.Tick) (subscribed bool, err error) {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}

	conn, _, err := dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return false, errors.Wrap(err, "dial stream")
	}
	defer conn.Close()

	// drop the connection when ctx ends so the blocking read returns
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	if err := s.subscribe(conn); err != nil {
		return false, err
	}

	s.logger.Info("stream subscribed",
		zap.String("url", s.url),
		zap.String("type", s.subType),
		zap.Int("markets", len(s.markets)))

	// gorilla answers server pings with pongs from its default ping handler,
	// the read loop just has to keep pumping

	for {
		msgType, payload, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return true, ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return true, nil
			}
			return true, errors.Wrap(err, "read stream frame")
		}

		// the exchange delivers JSON in both text and binary frames
		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			continue
		}

		var frame streamFrame
		if err := json.Unmarshal(payload, &frame); err != nil || frame.Code == "" {
			s.logger.Debug("skipping malformed stream frame", zap.ByteString("payload", payload))
			continue
		}
		if frame.Type != "trade" && frame.Type != "ticker" {
			continue
		}

		select {
		case out <- frame.toTick():
		case <-ctx.Done():
			return true, ctx.Err()
		}
	}
}

func (s *Stream) subscribe(conn *websocket.Conn) error {
	msg := subscribeMessage{
		Ticket: uuid.NewString(),
		Type:   s.subType,
		Codes:  s.markets,
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "marshal subscribe message")
	}
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return errors.Wrap(err, "send subscribe message")
	}
	return nil
}
