// Package risk evaluates proposed orders and the whole account against
// configured limits. It reads ledger and position state and produces
// warnings; it never mutates either. Critical findings are converted to
// rejections by the order engine.
package risk

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/eth-jashan/trading-book-sub000/internal/model"
	"github.com/eth-jashan/trading-book-sub000/internal/pnl"
	"github.com/eth-jashan/trading-book-sub000/internal/types"
)

// ErrRiskLimitExceeded marks a critical finding; the message carries the
// specific limit and, where computable, a suggested adjustment.
var ErrRiskLimitExceeded = errors.New("risk limit exceeded")

var hundred = decimal.NewFromInt(100)

type Manager struct {
	limits model.RiskLimits
}

func NewManager(limits model.RiskLimits) *Manager {
	return &Manager{limits: limits}
}

func (m *Manager) Limits() model.RiskLimits {
	return m.limits
}

// OrderContext is everything EvaluateOrder needs about the proposal.
type OrderContext struct {
	Symbol         string
	Side           types.OrderSide
	Size           decimal.Decimal
	ReferencePrice decimal.Decimal
	Leverage       decimal.Decimal
	ReduceOnly     bool
}

// EvaluateOrder runs the per-order checks. Reduce-only orders shrink
// exposure and skip the sizing checks.
func (m *Manager) EvaluateOrder(ord OrderContext, balance model.Balance, open []model.Position) []model.RiskWarning {
	var warnings []model.RiskWarning

	if ord.Leverage.GreaterThan(m.limits.MaxLeverage) {
		warnings = append(warnings, warning(types.RiskSeverityCritical, "leverage",
			fmt.Sprintf("leverage %s exceeds the maximum of %s", ord.Leverage, m.limits.MaxLeverage)))
	}
	if ord.ReduceOnly {
		return warnings
	}

	equity := balance.Total.Add(balance.UnrealizedPnL)
	notional := pnl.Notional(ord.Size, ord.ReferencePrice)

	if equity.GreaterThan(decimal.Zero) {
		maxNotional := m.limits.MaxPositionSize.Mul(equity)
		if notional.GreaterThan(maxNotional) {
			suggested := maxNotional.Div(ord.ReferencePrice)
			warnings = append(warnings, warning(types.RiskSeverityCritical, "position_size",
				fmt.Sprintf("order notional %s exceeds %s%% of equity; a size of %s would pass",
					notional.StringFixed(2), m.limits.MaxPositionSize.Mul(hundred), suggested.StringFixed(8))))
		}

		exposure := notional
		for _, p := range open {
			exposure = exposure.Add(pnl.Notional(p.Size, p.CurrentPrice))
		}
		maxExposure := m.limits.MaxTotalExposure.Mul(equity)
		if exposure.GreaterThan(maxExposure) {
			warnings = append(warnings, warning(types.RiskSeverityCritical, "total_exposure",
				fmt.Sprintf("total exposure %s would exceed the limit of %s",
					exposure.StringFixed(2), maxExposure.StringFixed(2))))
		}
	}

	if len(open) >= m.limits.MaxOpenPositions {
		// merging into an existing position does not add a slot
		if _, merges := findOpen(open, ord.Symbol); !merges {
			warnings = append(warnings, warning(types.RiskSeverityCritical, "open_positions",
				fmt.Sprintf("max open positions reached (%d)", m.limits.MaxOpenPositions)))
		}
	}

	return warnings
}

// AssessAccount is the account-wide scan: margin level thresholds, daily
// loss, single-symbol concentration. dailyPnL is the caller's realized
// plus unrealized pnl since its day anchor; losses before the anchor do
// not count against the daily limit.
func (m *Manager) AssessAccount(startingBalance, dailyPnL decimal.Decimal, balance model.Balance, open []model.Position) []model.RiskWarning {
	var warnings []model.RiskWarning

	if balance.Margin.GreaterThan(decimal.Zero) {
		if balance.MarginLevel.LessThanOrEqual(m.limits.LiquidationLevel) {
			warnings = append(warnings, warning(types.RiskSeverityCritical, "liquidation_level",
				fmt.Sprintf("margin level %s%% is at or below the liquidation threshold of %s%%",
					balance.MarginLevel.StringFixed(2), m.limits.LiquidationLevel)))
		} else if balance.MarginLevel.LessThanOrEqual(m.limits.MarginCallLevel) {
			warnings = append(warnings, warning(types.RiskSeverityHigh, "margin_call",
				fmt.Sprintf("margin level %s%% is below the margin call threshold of %s%%",
					balance.MarginLevel.StringFixed(2), m.limits.MarginCallLevel)))
		}
	}

	if startingBalance.GreaterThan(decimal.Zero) {
		loss := dailyPnL.Neg()
		maxLoss := m.limits.MaxDailyLoss.Mul(startingBalance)
		if loss.GreaterThan(maxLoss) {
			warnings = append(warnings, warning(types.RiskSeverityHigh, "daily_loss",
				fmt.Sprintf("combined loss %s exceeds the daily limit of %s",
					loss.StringFixed(2), maxLoss.StringFixed(2))))
		}
	}

	total := decimal.Zero
	bySymbol := make(map[string]decimal.Decimal, len(open))
	for _, p := range open {
		n := pnl.Notional(p.Size, p.CurrentPrice)
		total = total.Add(n)
		bySymbol[p.Symbol] = bySymbol[p.Symbol].Add(n)
	}
	if total.GreaterThan(decimal.Zero) && len(open) > 1 {
		for symbol, n := range bySymbol {
			share := n.Div(total)
			if share.GreaterThan(m.limits.ConcentrationLimit) {
				warnings = append(warnings, warning(types.RiskSeverityMedium, "concentration",
					fmt.Sprintf("%s is %s%% of open exposure", symbol, share.Mul(hundred).StringFixed(1))))
			}
		}
	}

	return warnings
}

// DynamicLeverage suggests a leverage ceiling that shrinks with
// volatility and grows with liquidity and account size, capped by
// MaxLeverage. Pure function of its inputs.
func (m *Manager) DynamicLeverage(volatility, liquidity, accountSize decimal.Decimal) decimal.Decimal {
	base := m.limits.MaxLeverage
	if volatility.GreaterThan(decimal.Zero) {
		// 1% per-period volatility halves the ceiling, 2% quarters it
		divisor := decimal.NewFromInt(1).Add(volatility.Mul(hundred))
		base = base.Div(divisor)
	}
	if liquidity.GreaterThan(decimal.Zero) && liquidity.LessThan(decimal.NewFromInt(1)) {
		base = base.Mul(liquidity)
	}
	if accountSize.GreaterThan(decimal.Zero) && accountSize.LessThan(decimal.NewFromInt(10000)) {
		// small accounts get headroom shaved rather than added
		base = base.Mul(decimal.NewFromFloat(0.8))
	}
	if base.GreaterThan(m.limits.MaxLeverage) {
		base = m.limits.MaxLeverage
	}
	if base.LessThan(decimal.NewFromInt(1)) {
		base = decimal.NewFromInt(1)
	}
	return base.Round(2)
}

// PositionSizing returns the fixed-fractional size: the size for which the
// stop distance loses exactly riskPercentage of equity. Zero when the stop
// sits on the entry.
func (m *Manager) PositionSizing(entryPrice, stopLoss, accountEquity, riskPercentage decimal.Decimal) decimal.Decimal {
	distance := entryPrice.Sub(stopLoss).Abs()
	if distance.IsZero() || accountEquity.LessThanOrEqual(decimal.Zero) || riskPercentage.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}
	riskAmount := accountEquity.Mul(riskPercentage)
	return riskAmount.Div(distance)
}

// LiquidationRisk reports the distance from the current price to the
// liquidation price and the qualitative band it falls in.
type LiquidationRisk struct {
	Distance        decimal.Decimal `json:"distance"`
	DistancePercent decimal.Decimal `json:"distance_percent"`
	Band            types.RiskBand  `json:"band"`
}

func (m *Manager) CheckLiquidationRisk(p model.Position) LiquidationRisk {
	distance := p.CurrentPrice.Sub(p.LiquidationPrice).Abs()
	var pct decimal.Decimal
	if p.CurrentPrice.GreaterThan(decimal.Zero) {
		pct = distance.Div(p.CurrentPrice).Mul(hundred)
	}
	band := types.RiskBandSafe
	if pct.LessThanOrEqual(m.limits.DangerDistancePct) {
		band = types.RiskBandDanger
	} else if pct.LessThanOrEqual(m.limits.CautionDistancePct) {
		band = types.RiskBandCaution
	}
	return LiquidationRisk{Distance: distance, DistancePercent: pct, Band: band}
}

func findOpen(open []model.Position, symbol string) (model.Position, bool) {
	for _, p := range open {
		if p.Symbol == symbol {
			return p, true
		}
	}
	return model.Position{}, false
}

func warning(severity types.RiskSeverity, code, message string) model.RiskWarning {
	return model.RiskWarning{
		ID:        uuid.NewString(),
		Severity:  severity,
		Code:      code,
		Message:   message,
		CreatedAt: time.Now().UTC(),
	}
}
