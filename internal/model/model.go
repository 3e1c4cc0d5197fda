package model

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/eth-jashan/trading-book-sub000/internal/types"
)

type Order struct {
	ID         string            `json:"id"`
	Symbol     string            `json:"symbol"`
	Side       types.OrderSide   `json:"side"`
	Type       types.OrderType   `json:"type"`
	Status     types.OrderStatus `json:"status"`
	Size       decimal.Decimal   `json:"size"`
	Price      *decimal.Decimal  `json:"price,omitempty"`
	StopPrice  *decimal.Decimal  `json:"stop_price,omitempty"`
	Leverage   decimal.Decimal   `json:"leverage"`
	ReduceOnly bool              `json:"reduce_only"`
	StopLoss   *decimal.Decimal  `json:"stop_loss,omitempty"`
	TakeProfit *decimal.Decimal  `json:"take_profit,omitempty"`

	FilledPrice  *decimal.Decimal `json:"filled_price,omitempty"`
	FilledSize   *decimal.Decimal `json:"filled_size,omitempty"`
	FilledAt     *time.Time       `json:"filled_at,omitempty"`
	RejectReason string           `json:"reject_reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type PricePoint struct {
	Price decimal.Decimal `json:"price"`
	Time  time.Time       `json:"time"`
}

// PriceHistoryCap bounds the per-position price trail; the oldest points
// are dropped beyond this.
const PriceHistoryCap = 100

type Position struct {
	ID               string               `json:"id"`
	Symbol           string               `json:"symbol"`
	Side             types.PositionSide   `json:"side"`
	Status           types.PositionStatus `json:"status"`
	Size             decimal.Decimal      `json:"size"`
	EntryPrice       decimal.Decimal      `json:"entry_price"`
	CurrentPrice     decimal.Decimal      `json:"current_price"`
	Margin           decimal.Decimal      `json:"margin"`
	Leverage         decimal.Decimal      `json:"leverage"`
	PnL              decimal.Decimal      `json:"pnl"`
	PnLPercentage    decimal.Decimal      `json:"pnl_percentage"`
	LiquidationPrice decimal.Decimal      `json:"liquidation_price"`
	HighestPrice     decimal.Decimal      `json:"highest_price"`
	LowestPrice      decimal.Decimal      `json:"lowest_price"`
	PriceHistory     []PricePoint         `json:"price_history"`
	StopLoss         *decimal.Decimal     `json:"stop_loss,omitempty"`
	TakeProfit       *decimal.Decimal     `json:"take_profit,omitempty"`

	ClosedAt    *time.Time       `json:"closed_at,omitempty"`
	ClosedPrice *decimal.Decimal `json:"closed_price,omitempty"`
	RealizedPnL decimal.Decimal  `json:"realized_pnl"`

	OpenedAt time.Time `json:"opened_at"`
}

type Balance struct {
	Total         decimal.Decimal `json:"total"`
	Available     decimal.Decimal `json:"available"`
	Margin        decimal.Decimal `json:"margin"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
	RealizedPnL   decimal.Decimal `json:"realized_pnl"`
	FreeMargin    decimal.Decimal `json:"free_margin"`
	MarginLevel   decimal.Decimal `json:"margin_level"`
}

// Transaction is an append-only audit record; never mutated once written.
type Transaction struct {
	ID           string                `json:"id"`
	Type         types.TransactionType `json:"type"`
	Amount       decimal.Decimal       `json:"amount"`
	BalanceAfter decimal.Decimal       `json:"balance_after"`
	Ref          string                `json:"ref,omitempty"`
	Hash         string                `json:"hash"`
	PrevHash     string                `json:"prev_hash,omitempty"`
	Sequence     int64                 `json:"sequence"`
	CreatedAt    time.Time             `json:"created_at"`
}

type RiskWarning struct {
	ID        string             `json:"id"`
	Severity  types.RiskSeverity `json:"severity"`
	Code      string             `json:"code"`
	Message   string             `json:"message"`
	CreatedAt time.Time          `json:"created_at"`
}

func (w RiskWarning) Blocking() bool {
	return w.Severity == types.RiskSeverityCritical
}

type RiskLimits struct {
	MaxLeverage        decimal.Decimal `json:"max_leverage"`
	MaxPositionSize    decimal.Decimal `json:"max_position_size"`
	MaxTotalExposure   decimal.Decimal `json:"max_total_exposure"`
	MaxDailyLoss       decimal.Decimal `json:"max_daily_loss"`
	MaxOpenPositions   int             `json:"max_open_positions"`
	MarginCallLevel    decimal.Decimal `json:"margin_call_level"`
	LiquidationLevel   decimal.Decimal `json:"liquidation_level"`
	CautionDistancePct decimal.Decimal `json:"caution_distance_pct"`
	DangerDistancePct  decimal.Decimal `json:"danger_distance_pct"`
	ConcentrationLimit decimal.Decimal `json:"concentration_limit"`
}

// DefaultRiskLimits mirrors the broker defaults: position size and
// exposure limits are fractions of account equity, margin call and
// liquidation levels are margin-level percentages.
func DefaultRiskLimits() RiskLimits {
	return RiskLimits{
		MaxLeverage:        decimal.NewFromInt(100),
		MaxPositionSize:    decimal.NewFromFloat(0.5),
		MaxTotalExposure:   decimal.NewFromInt(3),
		MaxDailyLoss:       decimal.NewFromFloat(0.2),
		MaxOpenPositions:   20,
		MarginCallLevel:    decimal.NewFromInt(100),
		LiquidationLevel:   decimal.NewFromInt(50),
		CautionDistancePct: decimal.NewFromInt(15),
		DangerDistancePct:  decimal.NewFromInt(5),
		ConcentrationLimit: decimal.NewFromFloat(0.6),
	}
}

// Snapshot is the full serializable engine state handed to the snapshot
// store. Derived balance fields are carried as-is and re-validated, never
// recomputed, on restore.
type Snapshot struct {
	StartingBalance  decimal.Decimal `json:"starting_balance"`
	Balance          Balance         `json:"balance"`
	Positions        []Position      `json:"positions"`
	Orders           []Order         `json:"orders"`
	Transactions     []Transaction   `json:"transactions"`
	Warnings         []RiskWarning   `json:"warnings"`
	DayStart         time.Time       `json:"day_start"`
	DayStartRealized decimal.Decimal `json:"day_start_realized"`
	TakenAt          time.Time       `json:"taken_at"`
}
