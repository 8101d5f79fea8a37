package logging

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestThrottledSuppressesWithinInterval(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	th := NewThrottled(zap.New(core), time.Minute)

	now := time.Now()
	th.now = func() time.Time { return now }

	th.Info("window", "first")
	th.Info("window", "suppressed")
	assert.Equal(t, 1, logs.Len())

	now = now.Add(time.Minute)
	th.Info("window", "after interval")
	assert.Equal(t, 2, logs.Len())
}

func TestThrottledKeysAreIndependent(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	th := NewThrottled(zap.New(core), time.Minute)

	th.Info("a", "one")
	th.Warn("b", "two")
	assert.Equal(t, 2, logs.Len())
}

func TestNewLoggerFallsBackToInfoOnBadLevel(t *testing.T) {
	logger, err := New("not-a-level", true)
	assert.NoError(t, err)
	assert.NotNil(t, logger)
	assert.False(t, logger.Core().Enabled(zap.DebugLevel))
	assert.True(t, logger.Core().Enabled(zap.InfoLevel))
}
