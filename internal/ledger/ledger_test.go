package ledger

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

func TestNewSeedsDeposit(t *testing.T) {
	l := New(d("100000"))

	b := l.Balance()
	assert.True(t, b.Total.Equal(d("100000")))
	assert.True(t, b.Available.Equal(d("100000")))
	assert.True(t, b.Margin.IsZero())
	assert.True(t, b.MarginLevel.IsZero())

	txs := l.Transactions()
	require.Len(t, txs, 1)
	assert.Equal(t, types.TransactionTypeDeposit, txs[0].Type)
	require.NoError(t, VerifyChain(txs))
}

func TestReserveAndReleaseMargin(t *testing.T) {
	l := New(d("100000"))

	require.NoError(t, l.ReserveMargin(d("50")))
	b := l.Balance()
	assert.True(t, b.Available.Equal(d("99950")))
	assert.True(t, b.Margin.Equal(d("50")))
	assert.True(t, b.Available.Add(b.Margin).Equal(b.Total))

	// close at +5 profit
	require.NoError(t, l.ReleaseMargin(d("50"), d("5")))
	b = l.Balance()
	assert.True(t, b.Total.Equal(d("100005")), "total = %s", b.Total)
	assert.True(t, b.Available.Equal(d("100005")))
	assert.True(t, b.Margin.IsZero())
	assert.True(t, b.RealizedPnL.Equal(d("5")))
	assert.True(t, b.MarginLevel.IsZero())
}

func TestUnrealizedDrivesDerivedFields(t *testing.T) {
	l := New(d("100000"))
	require.NoError(t, l.ReserveMargin(d("50")))

	u := d("5")
	require.NoError(t, l.ApplyDelta(Delta{UnrealizedPnL: &u}))

	b := l.Balance()
	assert.True(t, b.FreeMargin.Equal(d("99955")), "free margin = %s", b.FreeMargin)
	// (100000 + 5) / 50 * 100
	assert.True(t, b.MarginLevel.Equal(d("200010")), "margin level = %s", b.MarginLevel)
}

func TestApplyDeltaRejectsNegativeState(t *testing.T) {
	l := New(d("100"))

	err := l.ReserveMargin(d("150"))
	require.ErrorIs(t, err, ErrInvalidBalanceState)

	// nothing applied
	b := l.Balance()
	assert.True(t, b.Available.Equal(d("100")))
	assert.True(t, b.Margin.IsZero())
}

func TestOnChangeNotification(t *testing.T) {
	l := New(d("1000"))
	var seen int
	l.OnChange(func(b model.Balance) {
		seen++
		assert.True(t, b.Available.Add(b.Margin).Equal(b.Total))
	})

	require.NoError(t, l.ReserveMargin(d("10")))
	require.NoError(t, l.ReleaseMargin(d("10"), d("2")))
	assert.Equal(t, 2, seen)
}

func TestTransactionCapTrimsOldest(t *testing.T) {
	l := New(d("1000"))
	l.txCap = 5
	for i := 0; i < 10; i++ {
		l.Append(types.TransactionTypeTrade, d("1"), "t")
	}
	txs := l.Transactions()
	require.Len(t, txs, 5)
	// chain linkage still verifiable over the retained suffix
	require.NoError(t, VerifyChain(txs))
}

func TestRestoreValidatesDerivedFields(t *testing.T) {
	l := New(d("100000"))
	require.NoError(t, l.ReserveMargin(d("50")))
	b := l.Balance()

	fresh := New(d("100000"))
	require.NoError(t, fresh.Restore(d("100000"), b, l.Transactions()))
	assert.True(t, fresh.Balance().Margin.Equal(d("50")))

	corrupted := b
	corrupted.FreeMargin = corrupted.FreeMargin.Add(d("1"))
	err := fresh.Restore(d("100000"), corrupted, nil)
	require.ErrorIs(t, err, ErrInvalidBalanceState)
}
