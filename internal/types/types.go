package types

type OrderSide string

type OrderType string

type OrderStatus string

type PositionSide string

type PositionStatus string

type TransactionType string

type RiskSeverity string

type RiskBand string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

const (
	OrderTypeMarket    OrderType = "market"
	OrderTypeLimit     OrderType = "limit"
	OrderTypeStop      OrderType = "stop"
	OrderTypeStopLimit OrderType = "stop_limit"
)

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusFilled    OrderStatus = "filled"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusRejected  OrderStatus = "rejected"
)

const (
	PositionSideLong  PositionSide = "long"
	PositionSideShort PositionSide = "short"
)

const (
	PositionStatusOpen   PositionStatus = "open"
	PositionStatusClosed PositionStatus = "closed"
)

const (
	TransactionTypeDeposit     TransactionType = "deposit"
	TransactionTypeTrade       TransactionType = "trade"
	TransactionTypeRealizedPnL TransactionType = "realized_pnl"
)

const (
	RiskSeverityInfo     RiskSeverity = "info"
	RiskSeverityMedium   RiskSeverity = "medium"
	RiskSeverityHigh     RiskSeverity = "high"
	RiskSeverityCritical RiskSeverity = "critical"
)

const (
	RiskBandSafe    RiskBand = "safe"
	RiskBandCaution RiskBand = "caution"
	RiskBandDanger  RiskBand = "danger"
)

// PositionSide maps an order side to the position direction it opens:
// a buy opens or adds to a long, a sell opens or adds to a short.
func (s OrderSide) PositionSide() PositionSide {
	if s == OrderSideSell {
		return PositionSideShort
	}
	return PositionSideLong
}

func (s PositionSide) Opposite() PositionSide {
	if s == PositionSideLong {
		return PositionSideShort
	}
	return PositionSideLong
}

func (s OrderStatus) Terminal() bool {
	return s == OrderStatusFilled || s == OrderStatusCancelled || s == OrderStatusRejected
}
