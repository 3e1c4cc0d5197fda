// Package ledger owns the single account-wide money state: total,
// available, margin, unrealized and realized P&L, plus the derived free
// margin and margin level. Every mutation goes through ApplyDelta or the
// reserve/release helpers so the derived fields are recomputed and the
// balance invariants re-checked in one step.
//
// The ledger has no lock of its own: all mutation happens inside the
// engine's single critical section.
package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/eth-jashan/trading-book-sub000/internal/model"
	"github.com/eth-jashan/trading-book-sub000/internal/types"
)

// ErrInvalidBalanceState signals a mutation that would leave available or
// margin negative. Callers are expected to pre-validate; hitting this is a
// programming error upstream.
var ErrInvalidBalanceState = errors.New("invalid balance state")

// DefaultTransactionCap bounds the audit log; the oldest entries are
// trimmed beyond it.
const DefaultTransactionCap = 1000

type Ledger struct {
	starting decimal.Decimal
	balance  model.Balance

	txs      []model.Transaction
	txCap    int
	sequence int64
	lastHash string

	onChange func(model.Balance)
}

func New(startingBalance decimal.Decimal) *Ledger {
	l := &Ledger{
		starting: startingBalance,
		balance: model.Balance{
			Total:     startingBalance,
			Available: startingBalance,
		},
		txCap: DefaultTransactionCap,
	}
	l.recompute()
	l.append(types.TransactionTypeDeposit, startingBalance, "initial deposit")
	return l
}

// OnChange registers the balance-changed sink. At most one; the engine
// fans out to its bus.
func (l *Ledger) OnChange(fn func(model.Balance)) {
	l.onChange = fn
}

func (l *Ledger) StartingBalance() decimal.Decimal {
	return l.starting
}

func (l *Ledger) Balance() model.Balance {
	return l.balance
}

// Delta is a partial set of balance field changes; nil fields are left
// untouched. RealizedPnL and UnrealizedPnL are absolute replacements for
// the unrealized field and additive for realized, matching how the two
// quantities behave: unrealized is recomputed from scratch each tick,
// realized only ever accumulates.
type Delta struct {
	Available     *decimal.Decimal
	Margin        *decimal.Decimal
	UnrealizedPnL *decimal.Decimal
	RealizedPnL   *decimal.Decimal
}

func (l *Ledger) ApplyDelta(d Delta) error {
	next := l.balance
	if d.Available != nil {
		next.Available = next.Available.Add(*d.Available)
	}
	if d.Margin != nil {
		next.Margin = next.Margin.Add(*d.Margin)
	}
	if d.UnrealizedPnL != nil {
		next.UnrealizedPnL = *d.UnrealizedPnL
	}
	if d.RealizedPnL != nil {
		next.RealizedPnL = next.RealizedPnL.Add(*d.RealizedPnL)
	}
	if next.Available.IsNegative() {
		return fmt.Errorf("%w: available would be %s", ErrInvalidBalanceState, next.Available)
	}
	if next.Margin.IsNegative() {
		return fmt.Errorf("%w: margin would be %s", ErrInvalidBalanceState, next.Margin)
	}
	l.balance = next
	l.recompute()
	l.notify()
	return nil
}

// ReserveMargin moves amount from available into margin ahead of a fill.
func (l *Ledger) ReserveMargin(amount decimal.Decimal) error {
	neg := amount.Neg()
	return l.ApplyDelta(Delta{Available: &neg, Margin: &amount})
}

// ReleaseMargin returns amount from margin to available and books the
// realized delta of the close alongside it, as one recompute.
func (l *Ledger) ReleaseMargin(amount, realizedDelta decimal.Decimal) error {
	back := amount.Add(realizedDelta)
	negMargin := amount.Neg()
	return l.ApplyDelta(Delta{Available: &back, Margin: &negMargin, RealizedPnL: &realizedDelta})
}

func (l *Ledger) recompute() {
	l.balance.Total = l.starting.Add(l.balance.RealizedPnL)
	l.balance.FreeMargin = l.balance.Available.Add(l.balance.UnrealizedPnL)
	if l.balance.Margin.GreaterThan(decimal.Zero) {
		equity := l.balance.Total.Add(l.balance.UnrealizedPnL)
		l.balance.MarginLevel = equity.Div(l.balance.Margin).Mul(decimal.NewFromInt(100))
	} else {
		l.balance.MarginLevel = decimal.Zero
	}
}

func (l *Ledger) notify() {
	if l.onChange != nil {
		l.onChange(l.balance)
	}
}

// Append records an audit transaction with the running balance snapshot.
func (l *Ledger) Append(txType types.TransactionType, amount decimal.Decimal, ref string) model.Transaction {
	return l.append(txType, amount, ref)
}

func (l *Ledger) append(txType types.TransactionType, amount decimal.Decimal, ref string) model.Transaction {
	l.sequence++
	tx := model.Transaction{
		ID:           uuid.NewString(),
		Type:         txType,
		Amount:       amount,
		BalanceAfter: l.balance.Total,
		Ref:          ref,
		PrevHash:     l.lastHash,
		Sequence:     l.sequence,
		CreatedAt:    time.Now().UTC(),
	}
	tx.Hash = computeHash(tx)
	l.lastHash = tx.Hash
	l.txs = append(l.txs, tx)
	if len(l.txs) > l.txCap {
		l.txs = l.txs[len(l.txs)-l.txCap:]
	}
	return tx
}

func (l *Ledger) Transactions() []model.Transaction {
	out := make([]model.Transaction, len(l.txs))
	copy(out, l.txs)
	return out
}

// Restore replaces the ledger state from a snapshot. Derived fields are
// validated against their definitions, never recomputed, so a corrupted
// snapshot surfaces instead of being silently repaired.
func (l *Ledger) Restore(starting decimal.Decimal, b model.Balance, txs []model.Transaction) error {
	if err := Validate(starting, b); err != nil {
		return err
	}
	l.starting = starting
	l.balance = b
	l.txs = make([]model.Transaction, len(txs))
	copy(l.txs, txs)
	l.sequence = 0
	l.lastHash = ""
	if n := len(l.txs); n > 0 {
		l.sequence = l.txs[n-1].Sequence
		l.lastHash = l.txs[n-1].Hash
	}
	return nil
}

var tolerance = decimal.New(1, -9)

// Validate checks the balance invariants within a fixed tolerance.
func Validate(starting decimal.Decimal, b model.Balance) error {
	if !b.Total.Sub(starting.Add(b.RealizedPnL)).Abs().LessThanOrEqual(tolerance) {
		return fmt.Errorf("%w: total %s != starting %s + realized %s", ErrInvalidBalanceState, b.Total, starting, b.RealizedPnL)
	}
	if !b.Available.Add(b.Margin).Sub(b.Total).Abs().LessThanOrEqual(tolerance) {
		return fmt.Errorf("%w: available %s + margin %s != total %s", ErrInvalidBalanceState, b.Available, b.Margin, b.Total)
	}
	if !b.FreeMargin.Sub(b.Available.Add(b.UnrealizedPnL)).Abs().LessThanOrEqual(tolerance) {
		return fmt.Errorf("%w: free margin %s != available + unrealized", ErrInvalidBalanceState, b.FreeMargin)
	}
	wantLevel := decimal.Zero
	if b.Margin.GreaterThan(decimal.Zero) {
		wantLevel = b.Total.Add(b.UnrealizedPnL).Div(b.Margin).Mul(decimal.NewFromInt(100))
	}
	if !b.MarginLevel.Sub(wantLevel).Abs().LessThanOrEqual(tolerance) {
		return fmt.Errorf("%w: margin level %s != %s", ErrInvalidBalanceState, b.MarginLevel, wantLevel)
	}
	if b.Available.IsNegative() || b.Margin.IsNegative() {
		return fmt.Errorf("%w: negative available or margin", ErrInvalidBalanceState)
	}
	return nil
}

func computeHash(tx model.Transaction) string {
	buf := tx.ID + "|" + string(tx.Type) + "|" + tx.Amount.String() + "|" + tx.BalanceAfter.String() + "|" + strconv.FormatInt(tx.Sequence, 10) + "|" + tx.PrevHash
	sum := sha256.Sum256([]byte(buf))
	return hex.EncodeToString(sum[:])
}

// VerifyChain walks the transaction log and re-derives every hash.
func VerifyChain(txs []model.Transaction) error {
	prev := ""
	for i, tx := range txs {
		if i > 0 && tx.PrevHash != prev {
			return fmt.Errorf("transaction %s: prev hash mismatch", tx.ID)
		}
		if computeHash(tx) != tx.Hash {
			return fmt.Errorf("transaction %s: hash mismatch", tx.ID)
		}
		prev = tx.Hash
	}
	return nil
}
