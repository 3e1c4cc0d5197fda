package risk

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eth-jashan/trading-book-sub000/internal/model"
	"github.com/eth-jashan/trading-book-sub000/internal/types"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func balance(total string) model.Balance {
	return model.Balance{Total: d(total), Available: d(total)}
}

func findCode(warnings []model.RiskWarning, code string) (model.RiskWarning, bool) {
	for _, w := range warnings {
		if w.Code == code {
			return w, true
		}
	}
	return model.RiskWarning{}, false
}

func TestEvaluateOrderLeverageLimit(t *testing.T) {
	m := NewManager(model.DefaultRiskLimits())

	warnings := m.EvaluateOrder(OrderContext{
		Symbol: "BTC-USD", Side: types.OrderSideBuy,
		Size: d("0.001"), ReferencePrice: d("50000"), Leverage: d("150"),
	}, balance("100000"), nil)

	w, ok := findCode(warnings, "leverage")
	require.True(t, ok)
	assert.Equal(t, types.RiskSeverityCritical, w.Severity)
	assert.True(t, w.Blocking())
}

func TestEvaluateOrderPositionSizeSuggestsSmaller(t *testing.T) {
	m := NewManager(model.DefaultRiskLimits())

	// equity 1000, max position 50% => notional cap 500; asking for 1000
	warnings := m.EvaluateOrder(OrderContext{
		Symbol: "BTC-USD", Side: types.OrderSideBuy,
		Size: d("1"), ReferencePrice: d("1000"), Leverage: d("10"),
	}, balance("1000"), nil)

	w, ok := findCode(warnings, "position_size")
	require.True(t, ok)
	assert.Contains(t, w.Message, "a size of 0.50000000 would pass")
}

func TestEvaluateOrderExposureCountsOpenPositions(t *testing.T) {
	m := NewManager(model.DefaultRiskLimits())

	open := []model.Position{{
		Symbol: "ETH-USD", Size: d("100"), CurrentPrice: d("30"),
		Status: types.PositionStatusOpen,
	}}
	// equity 1000, exposure cap 3x => 3000; open 3000 + new 400 breaches
	warnings := m.EvaluateOrder(OrderContext{
		Symbol: "BTC-USD", Side: types.OrderSideBuy,
		Size: d("0.4"), ReferencePrice: d("1000"), Leverage: d("10"),
	}, balance("1000"), open)

	_, ok := findCode(warnings, "total_exposure")
	assert.True(t, ok)
}

func TestEvaluateOrderReduceOnlySkipsSizing(t *testing.T) {
	m := NewManager(model.DefaultRiskLimits())

	warnings := m.EvaluateOrder(OrderContext{
		Symbol: "BTC-USD", Side: types.OrderSideSell,
		Size: d("100"), ReferencePrice: d("50000"), Leverage: d("10"),
		ReduceOnly: true,
	}, balance("1000"), nil)

	assert.Empty(t, warnings)
}

func TestEvaluateOrderMaxOpenPositions(t *testing.T) {
	limits := model.DefaultRiskLimits()
	limits.MaxOpenPositions = 1
	m := NewManager(limits)

	open := []model.Position{{Symbol: "ETH-USD", Size: d("0.001"), CurrentPrice: d("1000")}}

	warnings := m.EvaluateOrder(OrderContext{
		Symbol: "BTC-USD", Side: types.OrderSideBuy,
		Size: d("0.0001"), ReferencePrice: d("1000"), Leverage: d("1"),
	}, balance("100000"), open)
	_, ok := findCode(warnings, "open_positions")
	assert.True(t, ok)

	// same symbol merges, no new slot
	warnings = m.EvaluateOrder(OrderContext{
		Symbol: "ETH-USD", Side: types.OrderSideBuy,
		Size: d("0.0001"), ReferencePrice: d("1000"), Leverage: d("1"),
	}, balance("100000"), open)
	_, ok = findCode(warnings, "open_positions")
	assert.False(t, ok)
}

func TestAssessAccountMarginThresholds(t *testing.T) {
	m := NewManager(model.DefaultRiskLimits())

	b := model.Balance{Total: d("100"), Margin: d("120"), MarginLevel: d("83")}
	warnings := m.AssessAccount(d("100"), d("0"), b, nil)
	w, ok := findCode(warnings, "margin_call")
	require.True(t, ok)
	assert.Equal(t, types.RiskSeverityHigh, w.Severity)

	b.MarginLevel = d("40")
	warnings = m.AssessAccount(d("100"), d("0"), b, nil)
	w, ok = findCode(warnings, "liquidation_level")
	require.True(t, ok)
	assert.Equal(t, types.RiskSeverityCritical, w.Severity)
}

func TestAssessAccountDailyLoss(t *testing.T) {
	m := NewManager(model.DefaultRiskLimits())

	b := model.Balance{Total: d("75000"), RealizedPnL: d("-25000"), UnrealizedPnL: d("0")}
	warnings := m.AssessAccount(d("100000"), d("-25000"), b, nil)
	_, ok := findCode(warnings, "daily_loss")
	assert.True(t, ok)

	// the same lifetime drawdown booked before today's anchor stays quiet
	warnings = m.AssessAccount(d("100000"), d("0"), b, nil)
	_, ok = findCode(warnings, "daily_loss")
	assert.False(t, ok)
}

func TestAssessAccountConcentration(t *testing.T) {
	m := NewManager(model.DefaultRiskLimits())

	open := []model.Position{
		{Symbol: "BTC-USD", Size: d("1"), CurrentPrice: d("9000")},
		{Symbol: "ETH-USD", Size: d("1"), CurrentPrice: d("1000")},
	}
	warnings := m.AssessAccount(d("100000"), d("0"), model.Balance{Total: d("100000")}, open)
	w, ok := findCode(warnings, "concentration")
	require.True(t, ok)
	assert.Contains(t, w.Message, "BTC-USD")
}

func TestDynamicLeverageShrinksWithVolatility(t *testing.T) {
	m := NewManager(model.DefaultRiskLimits())

	calm := m.DynamicLeverage(d("0"), d("1"), d("100000"))
	stormy := m.DynamicLeverage(d("0.02"), d("1"), d("100000"))

	assert.True(t, calm.GreaterThan(stormy))
	assert.True(t, calm.LessThanOrEqual(m.Limits().MaxLeverage))
	assert.True(t, stormy.GreaterThanOrEqual(d("1")))
}

func TestPositionSizing(t *testing.T) {
	m := NewManager(model.DefaultRiskLimits())

	// risking 1% of 100k = 1000 over a 1000-point stop distance => size 1
	size := m.PositionSizing(d("50000"), d("49000"), d("100000"), d("0.01"))
	assert.True(t, size.Equal(d("1")), "size = %s", size)

	// stop on the entry is unusable
	assert.True(t, m.PositionSizing(d("50000"), d("50000"), d("100000"), d("0.01")).IsZero())
}

func TestCheckLiquidationRiskBands(t *testing.T) {
	m := NewManager(model.DefaultRiskLimits())

	p := model.Position{CurrentPrice: d("50000"), LiquidationPrice: d("45250")}
	r := m.CheckLiquidationRisk(p)
	assert.Equal(t, types.RiskBandCaution, r.Band)
	assert.True(t, r.Distance.Equal(d("4750")))

	p.CurrentPrice = d("46000")
	p.LiquidationPrice = d("45250")
	r = m.CheckLiquidationRisk(p)
	assert.Equal(t, types.RiskBandDanger, r.Band)

	p.CurrentPrice = d("60000")
	r = m.CheckLiquidationRisk(p)
	assert.Equal(t, types.RiskBandSafe, r.Band)
}
