package pnl

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/eth-jashan/trading-book-sub000/internal/types"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestComputeLong(t *testing.T) {
	res := Compute(d("50000"), d("55000"), d("0.001"), types.PositionSideLong, d("1"))

	assert.True(t, res.PnL.Equal(d("5")), "pnl = %s", res.PnL)
	// margin used = 50000*0.001/1 = 50, 5/50*100 = 10%
	assert.True(t, res.PnLPercentage.Equal(d("10")), "pnl%% = %s", res.PnLPercentage)
	assert.True(t, res.PriceChangePercent.Equal(d("10")), "price change = %s", res.PriceChangePercent)
}

func TestComputeShort(t *testing.T) {
	res := Compute(d("50000"), d("45000"), d("0.002"), types.PositionSideShort, d("10"))

	assert.True(t, res.PnL.Equal(d("10")), "pnl = %s", res.PnL)
	// margin used = 50000*0.002/10 = 10, return on margin 100%
	assert.True(t, res.PnLPercentage.Equal(d("100")), "pnl%% = %s", res.PnLPercentage)
	assert.True(t, res.PriceChangePercent.Equal(d("-10")), "price change = %s", res.PriceChangePercent)
}

func TestComputeReturnOnMarginScalesWithLeverage(t *testing.T) {
	at1 := Compute(d("100"), d("110"), d("1"), types.PositionSideLong, d("1"))
	at10 := Compute(d("100"), d("110"), d("1"), types.PositionSideLong, d("10"))

	assert.True(t, at1.PnL.Equal(at10.PnL), "pnl is leverage independent")
	assert.True(t, at10.PnLPercentage.Equal(at1.PnLPercentage.Mul(d("10"))))
}

func TestComputeZeroEntry(t *testing.T) {
	res := Compute(d("0"), d("100"), d("1"), types.PositionSideLong, d("1"))

	assert.True(t, res.PnLPercentage.IsZero())
	assert.True(t, res.PriceChangePercent.IsZero())
}

func TestLiquidationPriceLong(t *testing.T) {
	// 50000 * (1 - 0.1 + 0.005) = 45250
	liq := LiquidationPrice(d("50000"), d("10"), types.PositionSideLong, decimal.Zero)
	assert.True(t, liq.Equal(d("45250")), "liq = %s", liq)
}

func TestLiquidationPriceShort(t *testing.T) {
	// 50000 * (1 + 0.1 - 0.005) = 54750
	liq := LiquidationPrice(d("50000"), d("10"), types.PositionSideShort, decimal.Zero)
	assert.True(t, liq.Equal(d("54750")), "liq = %s", liq)
}

func TestRequiredMargin(t *testing.T) {
	m := RequiredMargin(d("0.001"), d("50000"), d("1"))
	assert.True(t, m.Equal(d("50")), "margin = %s", m)

	m = RequiredMargin(d("2"), d("3000"), d("20"))
	assert.True(t, m.Equal(d("300")), "margin = %s", m)
}
