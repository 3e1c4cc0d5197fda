package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/eth-jashan/trading-book-sub000/internal/events"
	"github.com/eth-jashan/trading-book-sub000/internal/model"
	"github.com/eth-jashan/trading-book-sub000/internal/pnl"
	"github.com/eth-jashan/trading-book-sub000/internal/positions"
	"github.com/eth-jashan/trading-book-sub000/internal/risk"
	"github.com/eth-jashan/trading-book-sub000/internal/types"
)

var (
	ErrInvalidOrderRequest = errors.New("invalid order request")
	ErrMissingMarketPrice  = errors.New("no market price for symbol")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrOrderNotFound       = errors.New("order not found")
)

type PlaceOrderRequest struct {
	Symbol     string
	Side       types.OrderSide
	Type       types.OrderType
	Size       decimal.Decimal
	Price      *decimal.Decimal
	StopPrice  *decimal.Decimal
	Leverage   decimal.Decimal
	ReduceOnly bool
	StopLoss   *decimal.Decimal
	TakeProfit *decimal.Decimal
}

type PlaceOrderResult struct {
	OrderID  string              `json:"order_id"`
	Status   types.OrderStatus   `json:"status"`
	Warnings []model.RiskWarning `json:"warnings,omitempty"`
}

// PlaceOrder validates and stores the order; market orders execute
// synchronously at the current price. A validation failure means the order
// was never stored and nothing was mutated.
func (e *Engine) PlaceOrder(req PlaceOrderRequest) (PlaceOrderResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !req.Leverage.GreaterThan(decimal.Zero) {
		req.Leverage = e.cfg.DefaultLeverage
	}
	refPrice, advisory, err := e.validate(req)
	if err != nil {
		return PlaceOrderResult{}, err
	}

	now := time.Now().UTC()
	o := &model.Order{
		ID:         uuid.NewString(),
		Symbol:     req.Symbol,
		Side:       req.Side,
		Type:       req.Type,
		Status:     types.OrderStatusPending,
		Size:       req.Size,
		Price:      req.Price,
		StopPrice:  req.StopPrice,
		Leverage:   req.Leverage,
		ReduceOnly: req.ReduceOnly,
		StopLoss:   req.StopLoss,
		TakeProfit: req.TakeProfit,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	e.orders[o.ID] = o
	e.orderSeq = append(e.orderSeq, o.ID)
	e.log.Info("order placed",
		zap.String("id", o.ID),
		zap.String("symbol", o.Symbol),
		zap.String("side", string(o.Side)),
		zap.String("type", string(o.Type)),
		zap.String("size", o.Size.String()))

	if req.Type == types.OrderTypeMarket {
		e.execute(o, refPrice)
		if o.Status == types.OrderStatusRejected {
			return PlaceOrderResult{OrderID: o.ID, Status: o.Status, Warnings: advisory},
				fmt.Errorf("%w: %s", ErrInvalidOrderRequest, o.RejectReason)
		}
	}

	return PlaceOrderResult{OrderID: o.ID, Status: o.Status, Warnings: advisory}, nil
}

// validate returns the reference price used for the pre-execution margin
// check, plus any advisory (non-blocking) risk warnings.
func (e *Engine) validate(req PlaceOrderRequest) (decimal.Decimal, []model.RiskWarning, error) {
	if req.Side != types.OrderSideBuy && req.Side != types.OrderSideSell {
		return decimal.Zero, nil, fmt.Errorf("%w: invalid side %q", ErrInvalidOrderRequest, req.Side)
	}
	switch req.Type {
	case types.OrderTypeMarket, types.OrderTypeLimit, types.OrderTypeStop, types.OrderTypeStopLimit:
	default:
		return decimal.Zero, nil, fmt.Errorf("%w: invalid type %q", ErrInvalidOrderRequest, req.Type)
	}
	if !req.Size.GreaterThan(decimal.Zero) {
		return decimal.Zero, nil, fmt.Errorf("%w: size must be positive", ErrInvalidOrderRequest)
	}
	needsLimit := req.Type == types.OrderTypeLimit || req.Type == types.OrderTypeStopLimit
	if needsLimit && (req.Price == nil || !req.Price.GreaterThan(decimal.Zero)) {
		return decimal.Zero, nil, fmt.Errorf("%w: limit price required for %s orders", ErrInvalidOrderRequest, req.Type)
	}
	needsStop := req.Type == types.OrderTypeStop || req.Type == types.OrderTypeStopLimit
	if needsStop && (req.StopPrice == nil || !req.StopPrice.GreaterThan(decimal.Zero)) {
		return decimal.Zero, nil, fmt.Errorf("%w: stop price required for %s orders", ErrInvalidOrderRequest, req.Type)
	}

	current, ok := e.market.CurrentPrice(req.Symbol)
	if !ok {
		return decimal.Zero, nil, fmt.Errorf("%w: %s", ErrMissingMarketPrice, req.Symbol)
	}
	refPrice := current
	switch req.Type {
	case types.OrderTypeLimit, types.OrderTypeStopLimit:
		refPrice = *req.Price
	case types.OrderTypeStop:
		refPrice = *req.StopPrice
	}

	if !req.ReduceOnly {
		required := pnl.RequiredMargin(req.Size, refPrice, req.Leverage)
		if required.GreaterThan(e.ledger.Balance().Available) {
			return decimal.Zero, nil, fmt.Errorf("%w: need %s, available %s",
				ErrInsufficientBalance, required.StringFixed(2), e.ledger.Balance().Available.StringFixed(2))
		}
	}

	findings := e.risk.EvaluateOrder(risk.OrderContext{
		Symbol:         req.Symbol,
		Side:           req.Side,
		Size:           req.Size,
		ReferencePrice: refPrice,
		Leverage:       req.Leverage,
		ReduceOnly:     req.ReduceOnly,
	}, e.ledger.Balance(), e.positions.Open())

	var advisory []model.RiskWarning
	for _, w := range findings {
		if w.Blocking() {
			return decimal.Zero, nil, fmt.Errorf("%w: %s", risk.ErrRiskLimitExceeded, w.Message)
		}
		advisory = append(advisory, w)
		if !e.hasWarning(w.Code) {
			e.warnings = append(e.warnings, w)
			e.bus.Publish(events.Event{Type: events.TypeRiskWarning, Data: w})
		}
	}
	return refPrice, advisory, nil
}

// execute fills an order at executionPrice. Required margin is recomputed
// at this price; conditional orders may have drifted since validation.
// Failures reject the order whole, no partial fills.
func (e *Engine) execute(o *model.Order, executionPrice decimal.Decimal) {
	if !o.ReduceOnly {
		required := pnl.RequiredMargin(o.Size, executionPrice, o.Leverage)
		if required.GreaterThan(e.ledger.Balance().Available) {
			e.reject(o, fmt.Sprintf("insufficient balance at execution: need %s, available %s",
				required.StringFixed(2), e.ledger.Balance().Available.StringFixed(2)))
			return
		}
	}

	out, err := e.positions.ApplyFill(o.Symbol, o.Side, o.Size, executionPrice, o.Leverage, o.ReduceOnly)
	if err != nil {
		switch {
		case errors.Is(err, positions.ErrNothingToReduce):
			e.reject(o, "reduce-only order has no position to reduce")
		default:
			e.reject(o, "fill failed: "+err.Error())
		}
		return
	}

	now := time.Now().UTC()
	o.Status = types.OrderStatusFilled
	o.FilledPrice = &executionPrice
	// reduce-only fills may have been clamped to the open size
	filled := out.FilledSize
	o.FilledSize = &filled
	o.FilledAt = &now
	o.UpdatedAt = now

	e.ledger.Append(types.TransactionTypeTrade, pnl.Notional(filled, executionPrice), "order "+o.ID)
	if out.Opened != nil && (o.StopLoss != nil || o.TakeProfit != nil) {
		if err := e.positions.SetStops(out.Opened.ID, o.StopLoss, o.TakeProfit); err != nil {
			e.log.Warn("could not attach stops", zap.String("order", o.ID), zap.Error(err))
		}
	}

	e.log.Info("order filled",
		zap.String("id", o.ID),
		zap.String("symbol", o.Symbol),
		zap.String("price", executionPrice.String()),
		zap.String("size", filled.String()))
	e.bus.Publish(events.Event{Type: events.TypeOrderFilled, Data: *o})
}

func (e *Engine) reject(o *model.Order, reason string) {
	o.Status = types.OrderStatusRejected
	o.RejectReason = reason
	o.UpdatedAt = time.Now().UTC()
	e.log.Info("order rejected", zap.String("id", o.ID), zap.String("reason", reason))
	e.bus.Publish(events.Event{Type: events.TypeOrderRejected, Data: *o})
}

// CancelOrder cancels a pending order. Cancelling an order already in a
// terminal state is an idempotent no-op, not an error.
func (e *Engine) CancelOrder(id string) (model.Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	o, ok := e.orders[id]
	if !ok {
		return model.Order{}, ErrOrderNotFound
	}
	if o.Status.Terminal() {
		return *o, nil
	}
	o.Status = types.OrderStatusCancelled
	o.UpdatedAt = time.Now().UTC()
	e.log.Info("order cancelled", zap.String("id", o.ID))
	return *o, nil
}
