package positions

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kanghyeon/autocoin/internal/entity"
)

func newStore(t *testing.T, dir string) *WALStore {
	t.Helper()
	s, err := NewWALStore(dir)
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, s.Close())
	})
	return s
}

func newPosition(t *testing.T, market string) *entity.Position {
	t.Helper()
	p, err := entity.NewPosition(market,
		decimal.NewFromInt(50000000), decimal.NewFromFloat(0.001),
		decimal.NewFromFloat(0.05), decimal.NewFromFloat(0.10))
	require.NoError(t, err)
	return p
}

func TestSaveAndLookupPosition(t *testing.T) {
	s := newStore(t, t.TempDir())

	require.NoError(t, s.SavePosition(newPosition(t, "KRW-BTC")))

	got, ok := s.ActivePosition("KRW-BTC")
	require.True(t, ok)
	assert.Equal(t, "KRW-BTC", got.Market)
	assert.True(t, got.EntryPrice.Equal(decimal.NewFromInt(50000000)))

	_, ok = s.ActivePosition("KRW-ETH")
	assert.False(t, ok)

	any, ok := s.AnyActivePosition()
	require.True(t, ok)
	assert.Equal(t, "KRW-BTC", any.Market)
}

func TestSecondActivePositionRejected(t *testing.T) {
	s := newStore(t, t.TempDir())

	require.NoError(t, s.SavePosition(newPosition(t, "KRW-BTC")))

	err := s.SavePosition(newPosition(t, "KRW-ETH"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPositionExists)
}

func TestClosePositionTransition(t *testing.T) {
	s := newStore(t, t.TempDir())

	require.NoError(t, s.SavePosition(newPosition(t, "KRW-BTC")))

	exit := decimal.NewFromInt(55000000)
	pnl := decimal.NewFromInt(5000)
	rate := decimal.NewFromFloat(0.10)
	require.NoError(t, s.ClosePosition("KRW-BTC", exit, pnl, rate))

	_, ok := s.ActivePosition("KRW-BTC")
	assert.False(t, ok, "closed position must not read as active")

	// a new position can be opened after the close
	require.NoError(t, s.SavePosition(newPosition(t, "KRW-ETH")))
}

func TestCloseWithoutActivePosition(t *testing.T) {
	s := newStore(t, t.TempDir())

	err := s.ClosePosition("KRW-BTC", decimal.Zero, decimal.Zero, decimal.Zero)
	require.Error(t, err)
}

func TestReplayAfterReopen(t *testing.T) {
	dir := t.TempDir()

	s, err := NewWALStore(dir)
	require.NoError(t, err)
	require.NoError(t, s.SavePosition(newPosition(t, "KRW-BTC")))
	require.NoError(t, s.SaveOrder(entity.Order{
		ID:        "ord-1",
		Market:    "KRW-BTC",
		Side:      entity.SideBid,
		Status:    entity.OrderExecuted,
		CreatedAt: time.Now(),
	}))
	require.NoError(t, s.Close())

	reopened := newStore(t, dir)

	got, ok := reopened.ActivePosition("KRW-BTC")
	require.True(t, ok, "active position must survive a restart")
	assert.True(t, got.StopLoss.Equal(decimal.NewFromInt(47500000)))

	orders := reopened.Orders()
	require.Len(t, orders, 1)
	assert.Equal(t, "ord-1", orders[0].ID)
}

func TestReplayKeepsLatestPositionState(t *testing.T) {
	dir := t.TempDir()

	s, err := NewWALStore(dir)
	require.NoError(t, err)
	require.NoError(t, s.SavePosition(newPosition(t, "KRW-BTC")))
	require.NoError(t, s.ClosePosition("KRW-BTC",
		decimal.NewFromInt(48000000), decimal.NewFromInt(-2000), decimal.NewFromFloat(-0.04)))
	require.NoError(t, s.Close())

	reopened := newStore(t, dir)

	_, ok := reopened.AnyActivePosition()
	assert.False(t, ok, "the close record must win on replay")
}

func TestSaveOrderWithoutID(t *testing.T) {
	s := newStore(t, t.TempDir())

	require.NoError(t, s.SaveOrder(entity.Order{
		Market:    "KRW-BTC",
		Side:      entity.SideBid,
		Status:    entity.OrderFailed,
		CreatedAt: time.Now(),
	}))
	assert.Len(t, s.Orders(), 1)
}
