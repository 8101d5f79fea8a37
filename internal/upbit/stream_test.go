package upbit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kanghyeon/autocoin/internal/entity"
)

var upgrader = websocket.Upgrader{}

// wsServer runs handler for every incoming websocket connection and returns
// the ws:// endpoint.
func wsServer(t *testing.T, handler func(conn *websocket.Conn)) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		handler(conn)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func readSubscribe(t *testing.T, conn *websocket.Conn) subscribeMessage {
	t.Helper()
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg subscribeMessage
	require.NoError(t, json.Unmarshal(payload, &msg))
	return msg
}

func TestStreamSubscribesAndDeliversTicks(t *testing.T) {
	frame := `{"type":"trade","code":"KRW-BTC","timestamp":1756400000000,"trade_price":50000000.0,"change_rate":0.02,"trade_volume":0.5}`

	url := wsServer(t, func(conn *websocket.Conn) {
		msg := readSubscribe(t, conn)
		assert.NotEmpty(t, msg.Ticket)
		assert.Equal(t, "trade", msg.Type)
		assert.Equal(t, []string{"KRW-BTC", "KRW-ETH"}, msg.Codes)

		// the exchange delivers JSON as binary frames
		require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte(frame)))

		// keep the connection open until the client drops it
		conn.ReadMessage()
	})

	s := NewStream([]string{"KRW-BTC", "KRW-ETH"}, zap.NewNop(), WithStreamURL(url))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := make(chan entity.Tick, 1)
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, out) }()

	select {
	case tick := <-out:
		assert.Equal(t, "KRW-BTC", tick.Market)
		assert.Equal(t, int64(1756400000000), tick.Timestamp)
		assert.Equal(t, 50000000.0, tick.TradePrice)
		assert.Equal(t, 0.5, tick.Volume)
	case <-time.After(5 * time.Second):
		t.Fatal("no tick delivered")
	}

	cancel()
	select {
	case err := <-done:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not stop on cancel")
	}
}

func TestStreamSkipsMalformedFrames(t *testing.T) {
	url := wsServer(t, func(conn *websocket.Conn) {
		readSubscribe(t, conn)

		conn.WriteMessage(websocket.TextMessage, []byte(`not json`))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"trade"}`)) // no code
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"status","code":"UP"}`))
		conn.WriteMessage(websocket.TextMessage,
			[]byte(`{"type":"ticker","code":"KRW-ETH","timestamp":1,"trade_price":100.0,"trade_volume":1.0}`))

		conn.ReadMessage()
	})

	s := NewStream([]string{"KRW-ETH"}, zap.NewNop(),
		WithStreamURL(url), WithSubscriptionType("ticker"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := make(chan entity.Tick, 4)
	go s.Run(ctx, out)

	select {
	case tick := <-out:
		assert.Equal(t, "KRW-ETH", tick.Market, "only the well-formed frame must survive")
	case <-time.After(5 * time.Second):
		t.Fatal("no tick delivered")
	}
	assert.Empty(t, out, "malformed frames must not produce ticks")
}

func TestStreamFailureCounterResetsAfterReconnect(t *testing.T) {
	// every session subscribes and delivers a tick, then the connection is
	// dropped abruptly; the drops are not consecutive failures, so the
	// stream must keep reconnecting well past the retry budget
	url := wsServer(t, func(conn *websocket.Conn) {
		readSubscribe(t, conn)
		conn.WriteMessage(websocket.TextMessage,
			[]byte(`{"type":"trade","code":"KRW-BTC","timestamp":1,"trade_price":1.0,"trade_volume":1.0}`))
	})

	s := NewStream([]string{"KRW-BTC"}, zap.NewNop(),
		WithStreamURL(url),
		WithMaxRetries(2),
		WithRetryDelay(time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := make(chan entity.Tick)
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, out) }()

	// far more successful sessions than the retry budget allows failures
	for i := 0; i < 5; i++ {
		select {
		case <-out:
		case <-time.After(5 * time.Second):
			t.Fatalf("stream stopped reconnecting after %d sessions", i)
		}
	}

	cancel()
	select {
	case err := <-done:
		assert.True(t, errors.Is(err, context.Canceled),
			"stream must outlive non-consecutive drops, got %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not stop on cancel")
	}
}

func TestStreamGivesUpAfterConsecutiveFailures(t *testing.T) {
	// nothing listens here, every dial fails
	srv := httptest.NewServer(http.NotFoundHandler())
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	srv.Close()

	s := NewStream([]string{"KRW-BTC"}, zap.NewNop(),
		WithStreamURL(url),
		WithMaxRetries(2),
		WithRetryDelay(time.Millisecond))

	out := make(chan entity.Tick, 1)
	err := s.Run(context.Background(), out)

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMaxRetriesExceeded))
	assert.Contains(t, err.Error(), "3 consecutive failures")
}

func TestStreamReconnectsAfterDrop(t *testing.T) {
	connections := make(chan struct{}, 4)

	url := wsServer(t, func(conn *websocket.Conn) {
		connections <- struct{}{}
		readSubscribe(t, conn)

		if len(connections) == 1 {
			// first connection drops abruptly after subscribing
			return
		}
		conn.WriteMessage(websocket.TextMessage,
			[]byte(`{"type":"trade","code":"KRW-BTC","timestamp":2,"trade_price":1.0,"trade_volume":1.0}`))
		conn.ReadMessage()
	})

	s := NewStream([]string{"KRW-BTC"}, zap.NewNop(),
		WithStreamURL(url),
		WithRetryDelay(10*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := make(chan entity.Tick, 1)
	go s.Run(ctx, out)

	select {
	case tick := <-out:
		assert.Equal(t, "KRW-BTC", tick.Market)
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not recover from the dropped connection")
	}
	assert.GreaterOrEqual(t, len(connections), 2, "a second connection must have been made")
}
