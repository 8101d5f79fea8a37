package positions

import (
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/gowal"

	"github.com/kanghyeon/autocoin/internal/entity"
)

const (
	// DefaultDir keeps position history across restarts.
	DefaultDir   = "./wal/positions"
	segmentLimit = 1000
	maxSegments  = 10

	positionKeyPrefix = "position_"
	orderKeyPrefix    = "order_"
)

// ErrPositionExists is returned when opening a position would violate the
// single-active-position invariant.
var ErrPositionExists = errors.New("an active position already exists")

// WALStore persists positions and orders in a WAL and keeps the replayed
// state in memory, so position lookups are synchronous reads.
type WALStore struct {
	wal *gowal.Wal
	mu  sync.RWMutex

	// latest state per market, both active and closed
	positions map[string]entity.Position
	orders    []entity.Order
}

// NewWALStore opens the WAL at dir and replays it into memory.
func NewWALStore(dir string) (*WALStore, error) {
	if dir == "" {
		dir = DefaultDir
	}

	cfg := gowal.Config{
		Dir:              dir,
		Prefix:           "seg_",
		SegmentThreshold: segmentLimit,
		MaxSegments:      maxSegments,
		IsInSyncDiskMode: true,
	}

	wal, err := gowal.NewWAL(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "init position WAL")
	}

	s := &WALStore{
		wal:       wal,
		positions: make(map[string]entity.Position),
	}
	if err := s.replay(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *WALStore) replay() error {
	for msg := range s.wal.Iterator() {
		switch {
		case strings.HasPrefix(msg.Key, positionKeyPrefix):
			var p entity.Position
			if err := json.Unmarshal(msg.Value, &p); err != nil {
				return errors.Wrap(err, "decode position record")
			}
			s.positions[p.Market] = p
		case strings.HasPrefix(msg.Key, orderKeyPrefix):
			var o entity.Order
			if err := json.Unmarshal(msg.Value, &o); err != nil {
				return errors.Wrap(err, "decode order record")
			}
			s.orders = append(s.orders, o)
		}
	}
	return nil
}

// SavePosition persists a new active position. It fails when any active
// position already exists, enforcing the single-position invariant at the
// durable layer.
func (s *WALStore) SavePosition(p *entity.Position) error {
	if p == nil {
		return errors.New("position is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if p.Status == entity.PositionActive {
		for _, existing := range s.positions {
			if existing.Status == entity.PositionActive {
				return errors.Wrapf(ErrPositionExists, "market %s", existing.Market)
			}
		}
	}

	if err := s.write(positionKeyPrefix+p.Market, p); err != nil {
		return err
	}
	s.positions[p.Market] = *p
	return nil
}

// ClosePosition transitions the active position for market to closed.
func (s *WALStore) ClosePosition(market string, exitPrice, pnl, pnlRate decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.positions[market]
	if !ok || p.Status != entity.PositionActive {
		return errors.Errorf("no active position for market %s", market)
	}

	p.ExitPrice = exitPrice
	p.ExitTime = time.Now()
	p.Pnl = pnl
	p.PnlRate = pnlRate
	p.Status = entity.PositionClosed

	if err := s.write(positionKeyPrefix+market, &p); err != nil {
		return err
	}
	s.positions[market] = p
	return nil
}

// GetAllActivePositions returns active positions ordered by entry time.
func (s *WALStore) GetAllActivePositions() []entity.Position {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var active []entity.Position
	for _, p := range s.positions {
		if p.Status == entity.PositionActive {
			active = append(active, p)
		}
	}
	sort.Slice(active, func(i, j int) bool {
		return active[i].EntryTime.Before(active[j].EntryTime)
	})
	return active
}

// ActivePosition returns the active position for market, if any.
func (s *WALStore) ActivePosition(market string) (entity.Position, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.positions[market]
	if !ok || p.Status != entity.PositionActive {
		return entity.Position{}, false
	}
	return p, true
}

// AnyActivePosition returns the single active position, if one is held.
func (s *WALStore) AnyActivePosition() (entity.Position, bool) {
	active := s.GetAllActivePositions()
	if len(active) == 0 {
		return entity.Position{}, false
	}
	return active[0], true
}

// SaveOrder appends an order record. Orders are persisted for every
// execution attempt, successful or not.
func (s *WALStore) SaveOrder(o entity.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := orderKeyPrefix + o.ID
	if o.ID == "" {
		key = orderKeyPrefix + o.Market + "_" + o.CreatedAt.Format(time.RFC3339Nano)
	}
	if err := s.write(key, o); err != nil {
		return err
	}
	s.orders = append(s.orders, o)
	return nil
}

// Orders returns all persisted orders in append order.
func (s *WALStore) Orders() []entity.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]entity.Order, len(s.orders))
	copy(out, s.orders)
	return out
}

// Close flushes and closes the underlying WAL.
func (s *WALStore) Close() error {
	return s.wal.Close()
}

func (s *WALStore) write(key string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "marshal record")
	}
	return s.wal.Write(s.wal.CurrentIndex()+1, key, payload)
}
