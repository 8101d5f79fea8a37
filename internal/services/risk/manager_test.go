package risk

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kanghyeon/autocoin/internal/entity"
)

type fakePositions struct {
	active []entity.Position
}

func (f *fakePositions) GetAllActivePositions() []entity.Position {
	return f.active
}

func (f *fakePositions) ActivePosition(market string) (entity.Position, bool) {
	for _, p := range f.active {
		if p.Market == market {
			return p, true
		}
	}
	return entity.Position{}, false
}

func activePosition(t *testing.T, market string, entryPrice int64) entity.Position {
	t.Helper()
	pos, err := entity.NewPosition(market,
		decimal.NewFromInt(entryPrice), decimal.NewFromFloat(0.01),
		decimal.NewFromFloat(0.05), decimal.NewFromFloat(0.10))
	require.NoError(t, err)
	return *pos
}

func tick(market string, price float64) entity.Tick {
	return entity.Tick{
		Market:     market,
		Timestamp:  time.Now().UnixMilli(),
		TradePrice: price,
	}
}

func TestEvaluateStopLoss(t *testing.T) {
	store := &fakePositions{active: []entity.Position{activePosition(t, "KRW-BTC", 100000)}}
	m := New(store, zap.NewNop())

	// stop loss sits at entry * 0.95
	dec, ok := m.Evaluate(tick("KRW-BTC", 94000))
	require.True(t, ok)
	assert.Equal(t, entity.DecideSell, dec.Kind)
	assert.Equal(t, "stop loss triggered", dec.Reason)
	assert.True(t, dec.Amount.Equal(decimal.NewFromFloat(0.01)))
}

func TestEvaluateStopLossAtExactThreshold(t *testing.T) {
	store := &fakePositions{active: []entity.Position{activePosition(t, "KRW-BTC", 100000)}}
	m := New(store, zap.NewNop())

	dec, ok := m.Evaluate(tick("KRW-BTC", 95000))
	require.True(t, ok)
	assert.Equal(t, "stop loss triggered", dec.Reason)
}

func TestEvaluateTakeProfit(t *testing.T) {
	store := &fakePositions{active: []entity.Position{activePosition(t, "KRW-BTC", 100000)}}
	m := New(store, zap.NewNop())

	dec, ok := m.Evaluate(tick("KRW-BTC", 111000))
	require.True(t, ok)
	assert.Equal(t, entity.DecideSell, dec.Kind)
	assert.Equal(t, "take profit reached", dec.Reason)
}

func TestEvaluateHoldsBetweenThresholds(t *testing.T) {
	store := &fakePositions{active: []entity.Position{activePosition(t, "KRW-BTC", 100000)}}
	m := New(store, zap.NewNop())

	_, ok := m.Evaluate(tick("KRW-BTC", 102000))
	assert.False(t, ok)
}

func TestEvaluateIgnoresOtherMarkets(t *testing.T) {
	store := &fakePositions{active: []entity.Position{activePosition(t, "KRW-BTC", 100000)}}
	m := New(store, zap.NewNop())

	_, ok := m.Evaluate(tick("KRW-ETH", 1))
	assert.False(t, ok)
}

func TestEvaluateWithoutPosition(t *testing.T) {
	m := New(&fakePositions{}, zap.NewNop())

	_, ok := m.Evaluate(tick("KRW-BTC", 94000))
	assert.False(t, ok)
}

func TestRunEmitsSellOnBreach(t *testing.T) {
	store := &fakePositions{active: []entity.Position{activePosition(t, "KRW-BTC", 100000)}}
	m := New(store, zap.NewNop())

	in := make(chan entity.Tick, 2)
	out := make(chan entity.Decision, 2)

	in <- tick("KRW-BTC", 98000) // inside thresholds
	in <- tick("KRW-BTC", 94000) // stop loss
	close(in)

	err := m.Run(context.Background(), in, out)
	require.NoError(t, err)

	dec := <-out
	assert.Equal(t, entity.DecideSell, dec.Kind)

	_, ok := <-out
	assert.False(t, ok, "output must be closed after input drains")
}
