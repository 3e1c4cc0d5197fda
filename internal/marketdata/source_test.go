package marketdata

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMemorySourceIgnoresBadWrites(t *testing.T) {
	s := NewMemorySource()
	s.Set("", decimal.NewFromInt(100))
	s.Set("BTCUSDT", decimal.Zero)
	_, ok := s.CurrentPrice("BTCUSDT")
	assert.False(t, ok)

	s.Set("BTCUSDT", decimal.NewFromInt(50000))
	p, ok := s.CurrentPrice("BTCUSDT")
	require.True(t, ok)
	assert.True(t, p.Equal(decimal.NewFromInt(50000)))
	assert.Equal(t, []string{"BTCUSDT"}, s.Symbols())
}

func TestFeedPublishesOrderedTicks(t *testing.T) {
	s := NewMemorySource()
	ticks := make(chan Tick, 64)
	feed := NewFeed(s, func(tick Tick) { ticks <- tick }, []SymbolProfile{
		{Symbol: "BTCUSDT", StartPrice: 50000, Volatility: 0.001},
	}, 5*time.Millisecond, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	feed.Start(ctx)

	// the seed tick arrives synchronously, then the walk ticks
	first := <-ticks
	assert.Equal(t, "BTCUSDT", first.Symbol)
	assert.True(t, first.Price.Equal(decimal.NewFromInt(50000)))

	select {
	case tick := <-ticks:
		assert.True(t, tick.Price.GreaterThan(decimal.Zero))
		p, ok := s.CurrentPrice("BTCUSDT")
		require.True(t, ok)
		assert.True(t, p.GreaterThan(decimal.Zero))
	case <-time.After(2 * time.Second):
		t.Fatal("no tick from feed")
	}
}
