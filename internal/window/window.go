// Package window maintains per-symbol bounded candle windows.
//
// Each window is a strictly openTime-ordered sequence with FIFO eviction at
// capacity. The newest entry may be refreshed in place, which is how the
// still-forming candle from repeated polls is handled. The store owns all
// candle data; callers get copies.
package window

import (
	"sort"
	"sync"

	"github.com/bgorhoball/crypto-ta-bot/internal/model"
)

// IngestResult reports what Ingest did with a candle.
type IngestResult int

const (
	Accepted IngestResult = iota
	Replaced
	RejectedDuplicate
	RejectedOutOfOrder
)

func (r IngestResult) String() string {
	switch r {
	case Accepted:
		return "accepted"
	case Replaced:
		return "replaced"
	case RejectedDuplicate:
		return "rejected_duplicate"
	case RejectedOutOfOrder:
		return "rejected_out_of_order"
	default:
		return "unknown"
	}
}

// Store holds one bounded window per symbol. Safe for concurrent use: the
// scheduler runs one goroutine per symbol against the shared map, so the
// map itself is guarded even though each symbol has a single writer.
type Store struct {
	capacity int

	mu      sync.Mutex
	windows map[string][]model.Candle
}

// NewStore creates a store whose windows hold at most capacity candles.
// Capacity must cover the longest indicator lookback in use.
func NewStore(capacity int) *Store {
	if capacity < 1 {
		capacity = 1
	}
	return &Store{
		capacity: capacity,
		windows:  make(map[string][]model.Candle),
	}
}

// Capacity returns the fixed per-symbol window capacity.
func (s *Store) Capacity() int { return s.capacity }

// Ingest appends a candle to the symbol's window.
//
// A candle with openTime equal to the newest entry replaces it (forming
// candle refresh). A candle older than the newest entry is rejected:
// RejectedDuplicate if that openTime is already stored, RejectedOutOfOrder
// otherwise. Backfill is not supported. Oldest entries are evicted FIFO
// once the window is full.
func (s *Store) Ingest(symbol string, c model.Candle) IngestResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	w := s.windows[symbol]

	if n := len(w); n > 0 {
		last := w[n-1].OpenTime
		if c.OpenTime.Equal(last) {
			w[n-1] = c
			return Replaced
		}
		if c.OpenTime.Before(last) {
			i := sort.Search(n, func(i int) bool { return !w[i].OpenTime.Before(c.OpenTime) })
			if i < n && w[i].OpenTime.Equal(c.OpenTime) {
				return RejectedDuplicate
			}
			return RejectedOutOfOrder
		}
	}

	if len(w) >= s.capacity {
		copy(w, w[1:])
		w[len(w)-1] = c
	} else {
		w = append(w, c)
	}
	s.windows[symbol] = w
	return Accepted
}

// Window returns an ordered copy of the symbol's window, possibly shorter
// than capacity. Returns nil for an unknown symbol.
func (s *Store) Window(symbol string) []model.Candle {
	s.mu.Lock()
	defer s.mu.Unlock()
	w := s.windows[symbol]
	if w == nil {
		return nil
	}
	out := make([]model.Candle, len(w))
	copy(out, w)
	return out
}

// Len returns the current window length for a symbol.
func (s *Store) Len(symbol string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows[symbol])
}

// Latest returns the newest candle for a symbol, if any.
func (s *Store) Latest(symbol string) (model.Candle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w := s.windows[symbol]
	if len(w) == 0 {
		return model.Candle{}, false
	}
	return w[len(w)-1], true
}
