// Package pnl holds the pure profit-and-loss and margin arithmetic shared
// by the position store, the order engine and the risk manager. Nothing
// here carries state; every function is safe for concurrent readers.
package pnl

import (
	"github.com/shopspring/decimal"

	"github.com/eth-jashan/trading-book-sub000/internal/types"
)

// DefaultMaintenanceMarginRate is applied when the caller passes a zero
// rate to LiquidationPrice.
var DefaultMaintenanceMarginRate = decimal.NewFromFloat(0.005)

var hundred = decimal.NewFromInt(100)

type Result struct {
	PnL                decimal.Decimal
	PnLPercentage      decimal.Decimal
	PriceChangePercent decimal.Decimal
}

// Compute marks a position to currentPrice. PnLPercentage is return on
// margin, not on notional.
func Compute(entryPrice, currentPrice, size decimal.Decimal, side types.PositionSide, leverage decimal.Decimal) Result {
	var res Result
	if side == types.PositionSideLong {
		res.PnL = currentPrice.Sub(entryPrice).Mul(size)
	} else {
		res.PnL = entryPrice.Sub(currentPrice).Mul(size)
	}
	if !leverage.GreaterThan(decimal.Zero) {
		leverage = decimal.NewFromInt(1)
	}
	marginUsed := entryPrice.Mul(size).Div(leverage)
	if marginUsed.GreaterThan(decimal.Zero) {
		res.PnLPercentage = res.PnL.Div(marginUsed).Mul(hundred)
	}
	if entryPrice.GreaterThan(decimal.Zero) {
		res.PriceChangePercent = currentPrice.Sub(entryPrice).Div(entryPrice).Mul(hundred)
	}
	return res
}

// LiquidationPrice projects the mark price at which losses exhaust the
// position's margin beyond the maintenance threshold. Leverage must be
// positive; callers validate before calling.
func LiquidationPrice(entryPrice, leverage decimal.Decimal, side types.PositionSide, maintenanceMarginRate decimal.Decimal) decimal.Decimal {
	if maintenanceMarginRate.LessThanOrEqual(decimal.Zero) {
		maintenanceMarginRate = DefaultMaintenanceMarginRate
	}
	initialMarginRate := decimal.NewFromInt(1).Div(leverage)
	if side == types.PositionSideLong {
		return entryPrice.Mul(decimal.NewFromInt(1).Sub(initialMarginRate).Add(maintenanceMarginRate))
	}
	return entryPrice.Mul(decimal.NewFromInt(1).Add(initialMarginRate).Sub(maintenanceMarginRate))
}

func RequiredMargin(size, price, leverage decimal.Decimal) decimal.Decimal {
	if !leverage.GreaterThan(decimal.Zero) {
		leverage = decimal.NewFromInt(1)
	}
	return size.Mul(price).Div(leverage)
}

func Notional(size, price decimal.Decimal) decimal.Decimal {
	return size.Mul(price)
}
