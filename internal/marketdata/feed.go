package marketdata

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// TickHandler receives every generated tick, in arrival order per symbol.
type TickHandler func(tick Tick)

type SymbolProfile struct {
	Symbol     string
	StartPrice float64
	Volatility float64 // per-tick stddev as a fraction of price
}

// Feed drives the simulation with a geometric random walk per symbol. One
// goroutine owns all symbols so ticks stay ordered.
type Feed struct {
	source   *MemorySource
	handler  TickHandler
	profiles []SymbolProfile
	interval time.Duration
	log      *zap.Logger
	rng      *rand.Rand
}

func NewFeed(source *MemorySource, handler TickHandler, profiles []SymbolProfile, interval time.Duration, log *zap.Logger) *Feed {
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	return &Feed{
		source:   source,
		handler:  handler,
		profiles: profiles,
		interval: interval,
		log:      log,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Start seeds the quote table and runs the walk until ctx is done.
func (f *Feed) Start(ctx context.Context) {
	prices := make(map[string]float64, len(f.profiles))
	for _, p := range f.profiles {
		prices[p.Symbol] = p.StartPrice
		f.publish(p.Symbol, p.StartPrice)
	}
	f.log.Info("market feed started",
		zap.Int("symbols", len(f.profiles)),
		zap.Duration("interval", f.interval))

	go func() {
		ticker := time.NewTicker(f.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				f.log.Info("market feed stopped")
				return
			case <-ticker.C:
				for _, p := range f.profiles {
					next := f.step(prices[p.Symbol], p.Volatility)
					prices[p.Symbol] = next
					f.publish(p.Symbol, next)
				}
			}
		}
	}()
}

func (f *Feed) step(price, volatility float64) float64 {
	if volatility <= 0 {
		volatility = 0.0005
	}
	// log-normal step keeps prices positive
	return price * math.Exp(f.rng.NormFloat64()*volatility)
}

func (f *Feed) publish(symbol string, price float64) {
	p := decimal.NewFromFloat(price)
	f.source.Set(symbol, p)
	if f.handler != nil {
		f.handler(Tick{Symbol: symbol, Price: p, Timestamp: time.Now().UTC()})
	}
}
