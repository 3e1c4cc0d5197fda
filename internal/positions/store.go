// Package positions owns the set of open and closed positions and every
// mutation path that touches them: merge-on-add, netting against opposing
// fills, partial and full closes, and the per-tick P&L refresh with
// stop-loss/take-profit evaluation. All ledger margin movement for
// positions happens here and nowhere else.
//
// The store runs in net mode: at most one open position per symbol. An
// opposing fill reduces it, closes it, or closes it and flips into the
// remainder.
package positions

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/eth-jashan/trading-book-sub000/internal/ledger"
	"github.com/eth-jashan/trading-book-sub000/internal/model"
	"github.com/eth-jashan/trading-book-sub000/internal/pnl"
	"github.com/eth-jashan/trading-book-sub000/internal/types"
)

var (
	ErrPositionNotFound = errors.New("position not found")
	ErrInvalidSize      = errors.New("invalid closing size")
	ErrNothingToReduce  = errors.New("reduce-only order has no opposing position")
)

type Store struct {
	ledger *ledger.Ledger
	mmr    decimal.Decimal
	log    *zap.Logger

	open   map[string]*model.Position // one net position per symbol
	byID   map[string]*model.Position // open and closed
	closed []string                   // close order, for history listing

	onOpened func(model.Position)
	onClosed func(model.Position)
}

func NewStore(l *ledger.Ledger, maintenanceMarginRate decimal.Decimal, log *zap.Logger) *Store {
	if maintenanceMarginRate.LessThanOrEqual(decimal.Zero) {
		maintenanceMarginRate = pnl.DefaultMaintenanceMarginRate
	}
	return &Store{
		ledger: l,
		mmr:    maintenanceMarginRate,
		log:    log,
		open:   make(map[string]*model.Position),
		byID:   make(map[string]*model.Position),
	}
}

func (s *Store) OnOpened(fn func(model.Position)) { s.onOpened = fn }
func (s *Store) OnClosed(fn func(model.Position)) { s.onClosed = fn }

// FillOutcome reports what a fill did to the book. FilledSize is the size
// that actually traded; a reduce-only fill larger than the open position
// clamps to it.
type FillOutcome struct {
	Opened      *model.Position
	Reduced     *model.Position
	Closed      *model.Position
	FilledSize  decimal.Decimal
	RealizedPnL decimal.Decimal
}

// ApplyFill routes an executed order into the book: same-side fills merge,
// opposing fills net (reduce, close, or close-and-flip), reduce-only fills
// may only shrink or close. fillPrice is the execution price; margin is
// reserved here against the ledger.
func (s *Store) ApplyFill(symbol string, orderSide types.OrderSide, size, fillPrice, leverage decimal.Decimal, reduceOnly bool) (FillOutcome, error) {
	var out FillOutcome
	side := orderSide.PositionSide()
	existing := s.open[symbol]

	if reduceOnly {
		if existing == nil || existing.Side == side {
			return out, ErrNothingToReduce
		}
		closing := decimal.Min(size, existing.Size)
		return s.netAgainst(existing, closing, fillPrice)
	}

	if existing == nil || existing.Side == side {
		p, err := s.openOrMerge(symbol, side, size, fillPrice, leverage)
		if err != nil {
			return out, err
		}
		out.Opened = p
		out.FilledSize = size
		return out, nil
	}

	// opposing fill: net against the open position
	if size.LessThanOrEqual(existing.Size) {
		return s.netAgainst(existing, size, fillPrice)
	}
	remainder := size.Sub(existing.Size)
	out, err := s.netAgainst(existing, existing.Size, fillPrice)
	if err != nil {
		return out, err
	}
	flipped, err := s.openOrMerge(symbol, side, remainder, fillPrice, leverage)
	if err != nil {
		return out, err
	}
	out.Opened = flipped
	out.FilledSize = size
	return out, nil
}

func (s *Store) netAgainst(p *model.Position, closing, fillPrice decimal.Decimal) (FillOutcome, error) {
	out := FillOutcome{FilledSize: closing}
	if closing.Equal(p.Size) {
		realized, err := s.close(p, fillPrice)
		if err != nil {
			return out, err
		}
		cp := clone(p)
		out.Closed = &cp
		out.RealizedPnL = realized
		return out, nil
	}
	realized, err := s.reduce(p, closing, fillPrice)
	if err != nil {
		return out, err
	}
	cp := clone(p)
	out.Reduced = &cp
	out.RealizedPnL = realized
	return out, nil
}

func (s *Store) openOrMerge(symbol string, side types.PositionSide, size, entryPrice, leverage decimal.Decimal) (*model.Position, error) {
	margin := pnl.RequiredMargin(size, entryPrice, leverage)
	if err := s.ledger.ReserveMargin(margin); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if existing := s.open[symbol]; existing != nil {
		// size-weighted average entry, then the liquidation price moves
		// with the new entry
		newSize := existing.Size.Add(size)
		existing.EntryPrice = existing.EntryPrice.Mul(existing.Size).
			Add(entryPrice.Mul(size)).
			Div(newSize)
		existing.Size = newSize
		existing.Margin = existing.Margin.Add(margin)
		existing.LiquidationPrice = pnl.LiquidationPrice(existing.EntryPrice, existing.Leverage, existing.Side, s.mmr)
		s.mark(existing, entryPrice, now)
		s.syncUnrealized()
		cp := clone(existing)
		return &cp, nil
	}

	p := &model.Position{
		ID:               uuid.NewString(),
		Symbol:           symbol,
		Side:             side,
		Status:           types.PositionStatusOpen,
		Size:             size,
		EntryPrice:       entryPrice,
		CurrentPrice:     entryPrice,
		Margin:           margin,
		Leverage:         leverage,
		LiquidationPrice: pnl.LiquidationPrice(entryPrice, leverage, side, s.mmr),
		HighestPrice:     entryPrice,
		LowestPrice:      entryPrice,
		PriceHistory:     []model.PricePoint{{Price: entryPrice, Time: now}},
		OpenedAt:         now,
	}
	s.open[symbol] = p
	s.byID[p.ID] = p
	s.syncUnrealized()
	s.log.Info("position opened",
		zap.String("id", p.ID),
		zap.String("symbol", symbol),
		zap.String("side", string(side)),
		zap.String("size", size.String()),
		zap.String("entry", entryPrice.String()))
	if s.onOpened != nil {
		s.onOpened(clone(p))
	}
	cp := clone(p)
	return &cp, nil
}

// Reduce shrinks an open position by closingSize at closePrice. The entry
// and liquidation prices are untouched; margin is released proportionally
// and the realized slice of P&L lands in the ledger.
func (s *Store) Reduce(positionID string, closingSize, closePrice decimal.Decimal) (decimal.Decimal, error) {
	p, err := s.openByID(positionID)
	if err != nil {
		return decimal.Zero, err
	}
	if closingSize.LessThanOrEqual(decimal.Zero) || closingSize.GreaterThanOrEqual(p.Size) {
		return decimal.Zero, fmt.Errorf("%w: %s of %s", ErrInvalidSize, closingSize, p.Size)
	}
	return s.reduce(p, closingSize, closePrice)
}

func (s *Store) reduce(p *model.Position, closingSize, closePrice decimal.Decimal) (decimal.Decimal, error) {
	res := pnl.Compute(p.EntryPrice, closePrice, closingSize, p.Side, p.Leverage)
	releasedMargin := p.Margin.Mul(closingSize).Div(p.Size)
	if err := s.ledger.ReleaseMargin(releasedMargin, res.PnL); err != nil {
		return decimal.Zero, err
	}
	p.Size = p.Size.Sub(closingSize)
	p.Margin = p.Margin.Sub(releasedMargin)
	p.RealizedPnL = p.RealizedPnL.Add(res.PnL)
	s.mark(p, closePrice, time.Now().UTC())
	s.syncUnrealized()
	s.ledger.Append(types.TransactionTypeRealizedPnL, res.PnL, "partial close "+p.ID)
	s.log.Info("position reduced",
		zap.String("id", p.ID),
		zap.String("closed_size", closingSize.String()),
		zap.String("pnl", res.PnL.String()))
	return res.PnL, nil
}

// Close settles the full remaining size at closePrice. Closed positions
// stay in the store with status closed; they are never removed.
func (s *Store) Close(positionID string, closePrice decimal.Decimal) (decimal.Decimal, error) {
	p, err := s.openByID(positionID)
	if err != nil {
		return decimal.Zero, err
	}
	return s.close(p, closePrice)
}

func (s *Store) close(p *model.Position, closePrice decimal.Decimal) (decimal.Decimal, error) {
	res := pnl.Compute(p.EntryPrice, closePrice, p.Size, p.Side, p.Leverage)
	if err := s.ledger.ReleaseMargin(p.Margin, res.PnL); err != nil {
		return decimal.Zero, err
	}
	now := time.Now().UTC()
	p.Status = types.PositionStatusClosed
	p.ClosedAt = &now
	cp := closePrice
	p.ClosedPrice = &cp
	p.RealizedPnL = p.RealizedPnL.Add(res.PnL)
	p.Margin = decimal.Zero
	s.mark(p, closePrice, now)
	p.PnL = decimal.Zero
	p.PnLPercentage = decimal.Zero
	delete(s.open, p.Symbol)
	s.closed = append(s.closed, p.ID)
	s.syncUnrealized()
	s.ledger.Append(types.TransactionTypeRealizedPnL, res.PnL, "close "+p.ID)
	s.log.Info("position closed",
		zap.String("id", p.ID),
		zap.String("symbol", p.Symbol),
		zap.String("close_price", closePrice.String()),
		zap.String("realized_pnl", res.PnL.String()))
	if s.onClosed != nil {
		s.onClosed(clone(p))
	}
	return res.PnL, nil
}

// SetStops updates the stop-loss / take-profit triggers on an open
// position. Nil clears.
func (s *Store) SetStops(positionID string, stopLoss, takeProfit *decimal.Decimal) error {
	p, err := s.openByID(positionID)
	if err != nil {
		return err
	}
	p.StopLoss = stopLoss
	p.TakeProfit = takeProfit
	return nil
}

// RefreshOnPriceTick marks every open position in symbol to price, pushes
// the bounded history point, refreshes the account-wide unrealized P&L,
// and then evaluates stop-loss/take-profit. SL/TP closes go through the
// same close path as user closes; this is the only place they are
// evaluated.
func (s *Store) RefreshOnPriceTick(symbol string, price decimal.Decimal, at time.Time) []model.Position {
	// no open position in this symbol means nothing to mark and no
	// ledger movement
	p := s.open[symbol]
	if p == nil {
		return nil
	}
	s.mark(p, price, at)
	s.syncUnrealized()

	if !s.stopTriggered(p, price) {
		return nil
	}
	if _, err := s.close(p, price); err != nil {
		// leave the position for the next tick rather than half-close
		s.log.Error("auto close failed", zap.String("id", p.ID), zap.Error(err))
		return nil
	}
	return []model.Position{clone(p)}
}

func (s *Store) stopTriggered(p *model.Position, price decimal.Decimal) bool {
	if p.StopLoss != nil {
		if p.Side == types.PositionSideLong && price.LessThanOrEqual(*p.StopLoss) {
			return true
		}
		if p.Side == types.PositionSideShort && price.GreaterThanOrEqual(*p.StopLoss) {
			return true
		}
	}
	if p.TakeProfit != nil {
		if p.Side == types.PositionSideLong && price.GreaterThanOrEqual(*p.TakeProfit) {
			return true
		}
		if p.Side == types.PositionSideShort && price.LessThanOrEqual(*p.TakeProfit) {
			return true
		}
	}
	return false
}

func (s *Store) mark(p *model.Position, price decimal.Decimal, at time.Time) {
	p.CurrentPrice = price
	if price.GreaterThan(p.HighestPrice) {
		p.HighestPrice = price
	}
	if price.LessThan(p.LowestPrice) {
		p.LowestPrice = price
	}
	p.PriceHistory = append(p.PriceHistory, model.PricePoint{Price: price, Time: at})
	if len(p.PriceHistory) > model.PriceHistoryCap {
		p.PriceHistory = p.PriceHistory[len(p.PriceHistory)-model.PriceHistoryCap:]
	}
	res := pnl.Compute(p.EntryPrice, price, p.Size, p.Side, p.Leverage)
	p.PnL = res.PnL
	p.PnLPercentage = res.PnLPercentage
}

// syncUnrealized pushes the sum of open-position P&L into the ledger.
func (s *Store) syncUnrealized() {
	total := decimal.Zero
	for _, p := range s.open {
		total = total.Add(p.PnL)
	}
	if err := s.ledger.ApplyDelta(ledger.Delta{UnrealizedPnL: &total}); err != nil {
		s.log.Error("unrealized sync failed", zap.Error(err))
	}
}

func (s *Store) openByID(id string) (*model.Position, error) {
	p, ok := s.byID[id]
	if !ok || p.Status != types.PositionStatusOpen {
		return nil, ErrPositionNotFound
	}
	return p, nil
}

func (s *Store) Get(id string) (model.Position, error) {
	p, ok := s.byID[id]
	if !ok {
		return model.Position{}, ErrPositionNotFound
	}
	return clone(p), nil
}

func (s *Store) OpenBySymbol(symbol string) (model.Position, bool) {
	p, ok := s.open[symbol]
	if !ok {
		return model.Position{}, false
	}
	return clone(p), true
}

func (s *Store) Open() []model.Position {
	out := make([]model.Position, 0, len(s.open))
	for _, p := range s.open {
		out = append(out, clone(p))
	}
	return out
}

func (s *Store) Closed() []model.Position {
	out := make([]model.Position, 0, len(s.closed))
	for _, id := range s.closed {
		out = append(out, clone(s.byID[id]))
	}
	return out
}

// TotalOpenMargin is the sum of margin across open positions; the risk
// tests hold it equal to the ledger's margin field.
func (s *Store) TotalOpenMargin() decimal.Decimal {
	total := decimal.Zero
	for _, p := range s.open {
		total = total.Add(p.Margin)
	}
	return total
}

// TotalExposure is the open notional, marked to current prices.
func (s *Store) TotalExposure() decimal.Decimal {
	total := decimal.Zero
	for _, p := range s.open {
		total = total.Add(pnl.Notional(p.Size, p.CurrentPrice))
	}
	return total
}

func (s *Store) All() []model.Position {
	out := make([]model.Position, 0, len(s.byID))
	for _, p := range s.byID {
		out = append(out, clone(p))
	}
	return out
}

// Restore replaces the book from a snapshot; positions arrive with derived
// fields already validated by the engine.
func (s *Store) Restore(list []model.Position) {
	s.open = make(map[string]*model.Position)
	s.byID = make(map[string]*model.Position)
	s.closed = nil
	for i := range list {
		p := clone(&list[i])
		s.byID[p.ID] = &p
		if p.Status == types.PositionStatusOpen {
			s.open[p.Symbol] = &p
		} else {
			s.closed = append(s.closed, p.ID)
		}
	}
}

func clone(p *model.Position) model.Position {
	cp := *p
	cp.PriceHistory = make([]model.PricePoint, len(p.PriceHistory))
	copy(cp.PriceHistory, p.PriceHistory)
	if p.StopLoss != nil {
		v := *p.StopLoss
		cp.StopLoss = &v
	}
	if p.TakeProfit != nil {
		v := *p.TakeProfit
		cp.TakeProfit = &v
	}
	if p.ClosedPrice != nil {
		v := *p.ClosedPrice
		cp.ClosedPrice = &v
	}
	return cp
}
