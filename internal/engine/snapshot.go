package engine

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/eth-jashan/trading-book-sub000/internal/ledger"
	"github.com/eth-jashan/trading-book-sub000/internal/model"
	"github.com/eth-jashan/trading-book-sub000/internal/pnl"
	"github.com/eth-jashan/trading-book-sub000/internal/types"
)

// Snapshot exports the full engine state for an external store.
func (e *Engine) Snapshot() model.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap := model.Snapshot{
		StartingBalance:  e.ledger.StartingBalance(),
		Balance:          e.ledger.Balance(),
		Positions:        e.positions.All(),
		Transactions:     e.ledger.Transactions(),
		DayStart:         e.dayStart,
		DayStartRealized: e.dayStartRealized,
		TakenAt:          time.Now().UTC(),
	}
	snap.Orders = make([]model.Order, 0, len(e.orderSeq))
	for _, id := range e.orderSeq {
		snap.Orders = append(snap.Orders, *e.orders[id])
	}
	snap.Warnings = make([]model.RiskWarning, len(e.warnings))
	copy(snap.Warnings, e.warnings)
	return snap
}

// Restore replaces the engine state from a snapshot. Derived fields are
// re-validated against their definitions, never recomputed, so a
// corrupted snapshot fails loudly instead of being masked as healthy.
func (e *Engine) Restore(snap model.Snapshot) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := ledger.Validate(snap.StartingBalance, snap.Balance); err != nil {
		return fmt.Errorf("restore: %w", err)
	}
	if err := validatePositions(snap); err != nil {
		return fmt.Errorf("restore: %w", err)
	}
	if err := ledger.VerifyChain(snap.Transactions); err != nil {
		return fmt.Errorf("restore: transaction log: %w", err)
	}

	if err := e.ledger.Restore(snap.StartingBalance, snap.Balance, snap.Transactions); err != nil {
		return fmt.Errorf("restore: %w", err)
	}
	e.positions.Restore(snap.Positions)
	e.orders = make(map[string]*model.Order, len(snap.Orders))
	e.orderSeq = e.orderSeq[:0]
	for i := range snap.Orders {
		o := snap.Orders[i]
		e.orders[o.ID] = &o
		e.orderSeq = append(e.orderSeq, o.ID)
	}
	e.warnings = make([]model.RiskWarning, len(snap.Warnings))
	copy(e.warnings, snap.Warnings)
	if snap.DayStart.IsZero() {
		// snapshots from before the anchor existed start a fresh day
		e.dayStart = time.Now().UTC().Truncate(24 * time.Hour)
		e.dayStartRealized = snap.Balance.RealizedPnL
	} else {
		e.dayStart = snap.DayStart
		e.dayStartRealized = snap.DayStartRealized
	}
	e.log.Info("state restored")
	return nil
}

var restoreTolerance = decimal.New(1, -9)

func validatePositions(snap model.Snapshot) error {
	totalMargin := decimal.Zero
	totalUnrealized := decimal.Zero
	for _, p := range snap.Positions {
		if p.Status != types.PositionStatusOpen {
			continue
		}
		res := pnl.Compute(p.EntryPrice, p.CurrentPrice, p.Size, p.Side, p.Leverage)
		if !res.PnL.Sub(p.PnL).Abs().LessThanOrEqual(restoreTolerance) {
			return fmt.Errorf("position %s: pnl %s does not match marks (want %s)", p.ID, p.PnL, res.PnL)
		}
		totalMargin = totalMargin.Add(p.Margin)
		totalUnrealized = totalUnrealized.Add(p.PnL)
	}
	if !totalMargin.Sub(snap.Balance.Margin).Abs().LessThanOrEqual(restoreTolerance) {
		return fmt.Errorf("position margins sum to %s, balance says %s", totalMargin, snap.Balance.Margin)
	}
	if !totalUnrealized.Sub(snap.Balance.UnrealizedPnL).Abs().LessThanOrEqual(restoreTolerance) {
		return fmt.Errorf("position pnl sums to %s, balance says %s", totalUnrealized, snap.Balance.UnrealizedPnL)
	}
	return nil
}
