package logging

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Throttled emits at most one record per key per interval. It replaces
// package-global last-logged timestamps: each component that needs periodic
// summary logging gets its own instance.
type Throttled struct {
	logger   *zap.Logger
	interval time.Duration

	mu   sync.Mutex
	last map[string]time.Time
	now  func() time.Time
}

// NewThrottled wraps logger with a per-key rate limit.
func NewThrottled(logger *zap.Logger, interval time.Duration) *Throttled {
	return &Throttled{
		logger:   logger,
		interval: interval,
		last:     make(map[string]time.Time),
		now:      time.Now,
	}
}

// Info logs the message unless the same key was logged within the interval.
func (t *Throttled) Info(key, msg string, fields ...zap.Field) {
	if t.allow(key) {
		t.logger.Info(msg, fields...)
	}
}

// Warn logs the message unless the same key was logged within the interval.
func (t *Throttled) Warn(key, msg string, fields ...zap.Field) {
	if t.allow(key) {
		t.logger.Warn(msg, fields...)
	}
}

func (t *Throttled) allow(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if last, ok := t.last[key]; ok && now.Sub(last) < t.interval {
		return false
	}
	t.last[key] = now
	return true
}
