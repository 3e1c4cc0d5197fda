package httpserver

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/eth-jashan/trading-book-sub000/internal/engine"
	"github.com/eth-jashan/trading-book-sub000/internal/httputil"
	"github.com/eth-jashan/trading-book-sub000/internal/marketdata"
	"github.com/eth-jashan/trading-book-sub000/internal/positions"
	"github.com/eth-jashan/trading-book-sub000/internal/risk"
	"github.com/eth-jashan/trading-book-sub000/internal/types"
)

// Handler exposes the simulation engine over HTTP. The engine owns its
// locking; handlers parse, call, and encode.
type Handler struct {
	engine *engine.Engine
	market *marketdata.MemorySource
}

func NewHandler(eng *engine.Engine, market *marketdata.MemorySource) *Handler {
	return &Handler{engine: eng, market: market}
}

type placeOrderRequest struct {
	Symbol     string `json:"symbol"`
	Side       string `json:"side"`
	Type       string `json:"type"`
	Size       string `json:"size"`
	Price      string `json:"price"`
	StopPrice  string `json:"stop_price"`
	Leverage   string `json:"leverage"`
	ReduceOnly bool   `json:"reduce_only"`
	StopLoss   string `json:"stop_loss"`
	TakeProfit string `json:"take_profit"`
}

func parseDecimal(raw, field string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Decimal{}, errors.New("invalid " + field)
	}
	return d, nil
}

func parseOptDecimal(raw, field string) (*decimal.Decimal, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	d, err := parseDecimal(raw, field)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))
	if symbol == "" {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "symbol is required"})
		return
	}
	size, err := parseDecimal(req.Size, "size")
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	price, err := parseOptDecimal(req.Price, "price")
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	stopPrice, err := parseOptDecimal(req.StopPrice, "stop_price")
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	stopLoss, err := parseOptDecimal(req.StopLoss, "stop_loss")
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	takeProfit, err := parseOptDecimal(req.TakeProfit, "take_profit")
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	leverage := decimal.Zero
	if strings.TrimSpace(req.Leverage) != "" {
		leverage, err = parseDecimal(req.Leverage, "leverage")
		if err != nil {
			httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
			return
		}
	}

	res, err := h.engine.PlaceOrder(engine.PlaceOrderRequest{
		Symbol:     symbol,
		Side:       types.OrderSide(req.Side),
		Type:       types.OrderType(req.Type),
		Size:       size,
		Price:      price,
		StopPrice:  stopPrice,
		Leverage:   leverage,
		ReduceOnly: req.ReduceOnly,
		StopLoss:   stopLoss,
		TakeProfit: takeProfit,
	})
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, engine.ErrInsufficientBalance) || errors.Is(err, risk.ErrRiskLimitExceeded) {
			status = http.StatusUnprocessableEntity
		}
		httputil.WriteJSON(w, status, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, res)
}

func (h *Handler) Orders(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, h.engine.Orders())
}

func (h *Handler) Order(w http.ResponseWriter, r *http.Request) {
	o, err := h.engine.Order(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteJSON(w, http.StatusNotFound, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, o)
}

func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.engine.CancelOrder(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteJSON(w, http.StatusNotFound, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, o)
}

func (h *Handler) OpenPositions(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, h.engine.OpenPositions())
}

func (h *Handler) ClosedPositions(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, h.engine.ClosedPositions())
}

func (h *Handler) Position(w http.ResponseWriter, r *http.Request) {
	p, err := h.engine.Position(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteJSON(w, http.StatusNotFound, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}

type closePositionRequest struct {
	Size string `json:"size"` // empty closes in full
}

func (h *Handler) ClosePosition(w http.ResponseWriter, r *http.Request) {
	// body is optional; no size means close in full
	var req closePositionRequest
	_ = httputil.ReadJSON(r, &req)
	id := chi.URLParam(r, "id")

	size, err := parseOptDecimal(req.Size, "size")
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	var p interface{}
	if size == nil {
		p, err = h.engine.ClosePosition(id)
	} else {
		p, err = h.engine.ReducePosition(id, *size)
	}
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, positions.ErrPositionNotFound) {
			status = http.StatusNotFound
		}
		httputil.WriteJSON(w, status, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}

type setStopsRequest struct {
	StopLoss   string `json:"stop_loss"`
	TakeProfit string `json:"take_profit"`
}

func (h *Handler) SetStops(w http.ResponseWriter, r *http.Request) {
	var req setStopsRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	stopLoss, err := parseOptDecimal(req.StopLoss, "stop_loss")
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	takeProfit, err := parseOptDecimal(req.TakeProfit, "take_profit")
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	id := chi.URLParam(r, "id")
	if err := h.engine.SetPositionStops(id, stopLoss, takeProfit); err != nil {
		httputil.WriteJSON(w, http.StatusNotFound, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	p, err := h.engine.Position(id)
	if err != nil {
		httputil.WriteJSON(w, http.StatusNotFound, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}

func (h *Handler) Balance(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, h.engine.Balance())
}

func (h *Handler) Transactions(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, h.engine.Transactions())
}

func (h *Handler) AssessRisk(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, h.engine.AssessRisk())
}

func (h *Handler) RiskLimits(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, h.engine.RiskLimits())
}

func (h *Handler) Warnings(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, h.engine.Warnings())
}

func (h *Handler) DismissWarning(w http.ResponseWriter, r *http.Request) {
	if !h.engine.DismissWarning(chi.URLParam(r, "id")) {
		httputil.WriteJSON(w, http.StatusNotFound, httputil.ErrorResponse{Error: "warning not found"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type positionSizingRequest struct {
	EntryPrice     string `json:"entry_price"`
	StopLoss       string `json:"stop_loss"`
	RiskPercentage string `json:"risk_percentage"`
}

func (h *Handler) PositionSizing(w http.ResponseWriter, r *http.Request) {
	var req positionSizingRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	entry, err := parseDecimal(req.EntryPrice, "entry_price")
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	stop, err := parseDecimal(req.StopLoss, "stop_loss")
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	pct, err := parseDecimal(req.RiskPercentage, "risk_percentage")
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	size := h.engine.PositionSizing(entry, stop, pct)
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"size": size.String()})
}

type dynamicLeverageRequest struct {
	Volatility  string `json:"volatility"`
	Liquidity   string `json:"liquidity"`
	AccountSize string `json:"account_size"`
}

func (h *Handler) DynamicLeverage(w http.ResponseWriter, r *http.Request) {
	var req dynamicLeverageRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	vol, err := parseDecimal(req.Volatility, "volatility")
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	liq, err := parseDecimal(req.Liquidity, "liquidity")
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	size, err := parseDecimal(req.AccountSize, "account_size")
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	lev := h.engine.DynamicLeverage(vol, liq, size)
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"max_leverage": lev.String()})
}

func (h *Handler) Prices(w http.ResponseWriter, r *http.Request) {
	out := make(map[string]string)
	for _, sym := range h.market.Symbols() {
		if p, ok := h.market.CurrentPrice(sym); ok {
			out[sym] = p.String()
		}
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}
