// Package engine ties the simulation together: it owns the order state
// machine, routes fills into the position store, reacts to price ticks,
// and exposes the account state. Every public mutating entry point runs
// under one mutex, so all balance and position invariants hold between
// calls.
package engine

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/eth-jashan/trading-book-sub000/internal/events"
	"github.com/eth-jashan/trading-book-sub000/internal/ledger"
	"github.com/eth-jashan/trading-book-sub000/internal/marketdata"
	"github.com/eth-jashan/trading-book-sub000/internal/model"
	"github.com/eth-jashan/trading-book-sub000/internal/positions"
	"github.com/eth-jashan/trading-book-sub000/internal/risk"
	"github.com/eth-jashan/trading-book-sub000/internal/types"
)

type Config struct {
	StartingBalance       decimal.Decimal
	DefaultLeverage       decimal.Decimal
	MaintenanceMarginRate decimal.Decimal
	RiskLimits            model.RiskLimits
}

type Engine struct {
	mu sync.Mutex

	cfg    Config
	log    *zap.Logger
	market marketdata.Source
	bus    *events.Bus

	ledger    *ledger.Ledger
	positions *positions.Store
	risk      *risk.Manager

	orders   map[string]*model.Order
	orderSeq []string

	// daily-loss anchor: realized pnl booked before dayStart, rolled
	// forward at the first assessment past UTC midnight
	dayStart         time.Time
	dayStartRealized decimal.Decimal

	warnings []model.RiskWarning
}

// New constructs an isolated engine instance around its collaborators; no
// ambient global state, so multiple accounts and tests run side by side.
func New(cfg Config, market marketdata.Source, bus *events.Bus, log *zap.Logger) *Engine {
	if !cfg.DefaultLeverage.GreaterThan(decimal.Zero) {
		cfg.DefaultLeverage = decimal.NewFromInt(1)
	}
	l := ledger.New(cfg.StartingBalance)
	e := &Engine{
		cfg:       cfg,
		log:       log,
		market:    market,
		bus:       bus,
		ledger:    l,
		positions: positions.NewStore(l, cfg.MaintenanceMarginRate, log),
		risk:      risk.NewManager(cfg.RiskLimits),
		orders:    make(map[string]*model.Order),
		dayStart:  time.Now().UTC().Truncate(24 * time.Hour),
	}
	l.OnChange(func(b model.Balance) {
		e.bus.Publish(events.Event{Type: events.TypeBalanceChanged, Data: b})
	})
	e.positions.OnOpened(func(p model.Position) {
		e.bus.Publish(events.Event{Type: events.TypePositionOpened, Data: p})
	})
	e.positions.OnClosed(func(p model.Position) {
		e.bus.Publish(events.Event{Type: events.TypePositionClosed, Data: p})
	})
	return e
}

// OnPriceTick is the reactor for one market tick: refresh position marks
// and SL/TP first, then the pending conditional orders, then the account
// risk scan. Ticks per symbol must arrive in order; the caller's feed
// guarantees that.
func (e *Engine) OnPriceTick(tick marketdata.Tick) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.positions.RefreshOnPriceTick(tick.Symbol, tick.Price, tick.Timestamp)
	e.evaluatePending(tick.Symbol, tick.Price)
	e.assessAccount()
}

func (e *Engine) evaluatePending(symbol string, price decimal.Decimal) {
	for _, id := range e.orderSeq {
		o := e.orders[id]
		if o.Status != types.OrderStatusPending || o.Symbol != symbol {
			continue
		}
		switch o.Type {
		case types.OrderTypeLimit:
			if limitSatisfied(o.Side, price, *o.Price) {
				// fills at the limit price, not the tick price
				e.execute(o, *o.Price)
			}
		case types.OrderTypeStop:
			if stopTriggered(o.Side, price, *o.StopPrice) {
				// acts as a market order from the trigger onward
				e.execute(o, price)
			}
		case types.OrderTypeStopLimit:
			if !stopTriggered(o.Side, price, *o.StopPrice) {
				continue
			}
			if limitSatisfied(o.Side, price, *o.Price) {
				e.execute(o, *o.Price)
				continue
			}
			// stop armed but limit not reachable yet: convert in place to
			// a plain limit and keep waiting
			o.StopPrice = nil
			o.Type = types.OrderTypeLimit
			o.UpdatedAt = time.Now().UTC()
		}
	}
}

func limitSatisfied(side types.OrderSide, price, limitPrice decimal.Decimal) bool {
	if side == types.OrderSideBuy {
		return price.LessThanOrEqual(limitPrice)
	}
	return price.GreaterThanOrEqual(limitPrice)
}

func stopTriggered(side types.OrderSide, price, stopPrice decimal.Decimal) bool {
	if side == types.OrderSideBuy {
		return price.GreaterThanOrEqual(stopPrice)
	}
	return price.LessThanOrEqual(stopPrice)
}

// dailyPnL returns realized plus unrealized pnl accumulated since UTC
// midnight, advancing the anchor when the day rolls over.
func (e *Engine) dailyPnL() decimal.Decimal {
	today := time.Now().UTC().Truncate(24 * time.Hour)
	b := e.ledger.Balance()
	if today.After(e.dayStart) {
		e.dayStart = today
		e.dayStartRealized = b.RealizedPnL
	}
	return b.RealizedPnL.Sub(e.dayStartRealized).Add(b.UnrealizedPnL)
}

// assessAccount runs the account-wide risk scan and accumulates any new
// warnings, deduplicated by code against the ones not yet dismissed.
func (e *Engine) assessAccount() {
	found := e.risk.AssessAccount(e.ledger.StartingBalance(), e.dailyPnL(), e.ledger.Balance(), e.positions.Open())
	for _, w := range found {
		if e.hasWarning(w.Code) {
			continue
		}
		e.warnings = append(e.warnings, w)
		e.bus.Publish(events.Event{Type: events.TypeRiskWarning, Data: w})
		e.log.Warn("risk warning",
			zap.String("code", w.Code),
			zap.String("severity", string(w.Severity)),
			zap.String("message", w.Message))
	}
}

func (e *Engine) hasWarning(code string) bool {
	for _, w := range e.warnings {
		if w.Code == code {
			return true
		}
	}
	return false
}

func (e *Engine) Warnings() []model.RiskWarning {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]model.RiskWarning, len(e.warnings))
	copy(out, e.warnings)
	return out
}

func (e *Engine) DismissWarning(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, w := range e.warnings {
		if w.ID == id {
			e.warnings = append(e.warnings[:i], e.warnings[i+1:]...)
			return true
		}
	}
	return false
}

func (e *Engine) Balance() model.Balance {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.Balance()
}

func (e *Engine) Transactions() []model.Transaction {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.Transactions()
}

func (e *Engine) OpenPositions() []model.Position {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.positions.Open()
}

func (e *Engine) ClosedPositions() []model.Position {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.positions.Closed()
}

func (e *Engine) Position(id string) (model.Position, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.positions.Get(id)
}

func (e *Engine) Orders() []model.Order {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]model.Order, 0, len(e.orderSeq))
	for _, id := range e.orderSeq {
		out = append(out, *e.orders[id])
	}
	return out
}

func (e *Engine) Order(id string) (model.Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	o, ok := e.orders[id]
	if !ok {
		return model.Order{}, ErrOrderNotFound
	}
	return *o, nil
}

// ClosePosition settles a position in full at the current market price.
func (e *Engine) ClosePosition(id string) (model.Position, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, err := e.positions.Get(id)
	if err != nil {
		return model.Position{}, err
	}
	price, ok := e.market.CurrentPrice(p.Symbol)
	if !ok {
		return model.Position{}, ErrMissingMarketPrice
	}
	if _, err := e.positions.Close(id, price); err != nil {
		return model.Position{}, err
	}
	return e.positions.Get(id)
}

// ReducePosition closes part of a position at the current market price.
// A closing size equal to the full size routes to a full close.
func (e *Engine) ReducePosition(id string, closingSize decimal.Decimal) (model.Position, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, err := e.positions.Get(id)
	if err != nil {
		return model.Position{}, err
	}
	price, ok := e.market.CurrentPrice(p.Symbol)
	if !ok {
		return model.Position{}, ErrMissingMarketPrice
	}
	if closingSize.Equal(p.Size) {
		if _, err := e.positions.Close(id, price); err != nil {
			return model.Position{}, err
		}
	} else if _, err := e.positions.Reduce(id, closingSize, price); err != nil {
		return model.Position{}, err
	}
	return e.positions.Get(id)
}

// SetPositionStops updates SL/TP on an open position.
func (e *Engine) SetPositionStops(id string, stopLoss, takeProfit *decimal.Decimal) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.positions.SetStops(id, stopLoss, takeProfit)
}

// AccountRisk is the on-demand risk report for the API.
type AccountRisk struct {
	Warnings  []model.RiskWarning             `json:"warnings"`
	Positions map[string]risk.LiquidationRisk `json:"positions"`
}

func (e *Engine) AssessRisk() AccountRisk {
	e.mu.Lock()
	defer e.mu.Unlock()

	report := AccountRisk{
		Warnings:  e.risk.AssessAccount(e.ledger.StartingBalance(), e.dailyPnL(), e.ledger.Balance(), e.positions.Open()),
		Positions: make(map[string]risk.LiquidationRisk),
	}
	for _, p := range e.positions.Open() {
		report.Positions[p.ID] = e.risk.CheckLiquidationRisk(p)
	}
	return report
}

func (e *Engine) RiskLimits() model.RiskLimits {
	return e.risk.Limits()
}

func (e *Engine) DynamicLeverage(volatility, liquidity, accountSize decimal.Decimal) decimal.Decimal {
	return e.risk.DynamicLeverage(volatility, liquidity, accountSize)
}

func (e *Engine) PositionSizing(entryPrice, stopLoss, riskPercentage decimal.Decimal) decimal.Decimal {
	e.mu.Lock()
	defer e.mu.Unlock()
	b := e.ledger.Balance()
	equity := b.Total.Add(b.UnrealizedPnL)
	return e.risk.PositionSizing(entryPrice, stopLoss, equity, riskPercentage)
}
