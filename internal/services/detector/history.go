package detector

import (
	"time"

	"github.com/kanghyeon/autocoin/internal/entity"
)

// history is a bounded FIFO window of recent ticks across all markets.
// The oldest tick is evicted when capacity is reached.
type history struct {
	ticks []entity.Tick
	cap   int
}

func newHistory(capacity int) *history {
	return &history{
		ticks: make([]entity.Tick, 0, capacity),
		cap:   capacity,
	}
}

func (h *history) add(tick entity.Tick) {
	if len(h.ticks) == h.cap {
		copy(h.ticks, h.ticks[1:])
		h.ticks = h.ticks[:len(h.ticks)-1]
	}
	h.ticks = append(h.ticks, tick)
}

func (h *history) len() int {
	return len(h.ticks)
}

// inWindow returns the ticks for market not older than cutoff, in arrival
// order.
func (h *history) inWindow(market string, cutoff time.Time) []entity.Tick {
	cutoffMs := cutoff.UnixMilli()

	var out []entity.Tick
	for _, t := range h.ticks {
		if t.Market == market && t.Timestamp >= cutoffMs {
			out = append(out, t)
		}
	}
	return out
}
