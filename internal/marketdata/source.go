// Package marketdata supplies current prices per symbol and pushes price
// ticks into the engine. The engine only sees the Source interface and the
// Tick callback; where prices come from (the bundled random-walk feed, a
// replay file, a test fixture) is this package's business.
package marketdata

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Source answers the engine's synchronous price lookups. A missing symbol
// is a valid state, reported via ok=false.
type Source interface {
	CurrentPrice(symbol string) (decimal.Decimal, bool)
}

type Tick struct {
	Symbol    string          `json:"symbol"`
	Price     decimal.Decimal `json:"price"`
	Timestamp time.Time       `json:"timestamp"`
}

// MemorySource is the in-memory quote table behind the feed. Writers are
// the feed goroutines, readers the engine and HTTP handlers.
type MemorySource struct {
	mu   sync.RWMutex
	data map[string]decimal.Decimal
}

func NewMemorySource() *MemorySource {
	return &MemorySource{data: make(map[string]decimal.Decimal)}
}

func (s *MemorySource) Set(symbol string, price decimal.Decimal) {
	if symbol == "" || !price.GreaterThan(decimal.Zero) {
		return
	}
	s.mu.Lock()
	s.data[symbol] = price
	s.mu.Unlock()
}

func (s *MemorySource) CurrentPrice(symbol string) (decimal.Decimal, bool) {
	s.mu.RLock()
	p, ok := s.data[symbol]
	s.mu.RUnlock()
	return p, ok
}

func (s *MemorySource) Symbols() []string {
	s.mu.RLock()
	out := make([]string, 0, len(s.data))
	for sym := range s.data {
		out = append(out, sym)
	}
	s.mu.RUnlock()
	return out
}
