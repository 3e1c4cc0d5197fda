package httpserver

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/eth-jashan/trading-book-sub000/internal/auth"
	"github.com/eth-jashan/trading-book-sub000/internal/engine"
	"github.com/eth-jashan/trading-book-sub000/internal/events"
	"github.com/eth-jashan/trading-book-sub000/internal/marketdata"
	"github.com/eth-jashan/trading-book-sub000/internal/model"
)

func newTestServer(t *testing.T) (*httptest.Server, string) {
	t.Helper()
	market := marketdata.NewMemorySource()
	market.Set("BTCUSDT", decimal.NewFromInt(50000))
	eng := engine.New(engine.Config{
		StartingBalance: decimal.NewFromInt(100000),
		DefaultLeverage: decimal.NewFromInt(1),
		RiskLimits:      model.DefaultRiskLimits(),
	}, market, events.NewBus(), zap.NewNop())

	authSvc := auth.NewService("test", []byte("secret"), time.Hour)
	_, err := authSvc.Register("trader@example.com", "hunter22")
	require.NoError(t, err)
	token, err := authSvc.Login("trader@example.com", "hunter22")
	require.NoError(t, err)

	router := NewRouter(RouterDeps{
		AuthHandler: auth.NewHandler(authSvc),
		AuthService: authSvc,
		APIHandler:  NewHandler(eng, market),
		WSHandler:   NewWSHandler(events.NewBus(), authSvc, "*"),
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, token
}

func doJSON(t *testing.T, method, url, token string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestBalanceRequiresAuth(t *testing.T) {
	srv, token := newTestServer(t)

	resp := doJSON(t, http.MethodGet, srv.URL+"/v1/balance", "", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = doJSON(t, http.MethodGet, srv.URL+"/v1/balance", token, nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var b model.Balance
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&b))
	assert.True(t, b.Total.Equal(decimal.NewFromInt(100000)))
}

func TestPlaceOrderOverHTTP(t *testing.T) {
	srv, token := newTestServer(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/v1/orders", token, map[string]any{
		"symbol": "btcusdt",
		"side":   "buy",
		"type":   "market",
		"size":   "0.001",
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var res engine.PlaceOrderResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
	assert.NotEmpty(t, res.OrderID)
	assert.Equal(t, "filled", string(res.Status))

	posResp := doJSON(t, http.MethodGet, srv.URL+"/v1/positions", token, nil)
	defer posResp.Body.Close()
	var open []model.Position
	require.NoError(t, json.NewDecoder(posResp.Body).Decode(&open))
	require.Len(t, open, 1)
	assert.Equal(t, "BTCUSDT", open[0].Symbol)
}

func TestPlaceOrderInsufficientBalance(t *testing.T) {
	srv, token := newTestServer(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/v1/orders", token, map[string]any{
		"symbol": "BTCUSDT",
		"side":   "buy",
		"type":   "market",
		"size":   "5",
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestCancelOrderOverHTTP(t *testing.T) {
	srv, token := newTestServer(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/v1/orders", token, map[string]any{
		"symbol": "BTCUSDT",
		"side":   "buy",
		"type":   "limit",
		"size":   "0.001",
		"price":  "49000",
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var res engine.PlaceOrderResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))

	del := doJSON(t, http.MethodDelete, srv.URL+"/v1/orders/"+res.OrderID, token, nil)
	defer del.Body.Close()
	require.Equal(t, http.StatusOK, del.StatusCode)
	var o model.Order
	require.NoError(t, json.NewDecoder(del.Body).Decode(&o))
	assert.Equal(t, "cancelled", string(o.Status))
}

func TestClosePositionOverHTTP(t *testing.T) {
	srv, token := newTestServer(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/v1/orders", token, map[string]any{
		"symbol": "BTCUSDT", "side": "buy", "type": "market", "size": "0.001",
	})
	resp.Body.Close()

	posResp := doJSON(t, http.MethodGet, srv.URL+"/v1/positions", token, nil)
	var open []model.Position
	require.NoError(t, json.NewDecoder(posResp.Body).Decode(&open))
	posResp.Body.Close()
	require.Len(t, open, 1)

	closeResp := doJSON(t, http.MethodPost, srv.URL+"/v1/positions/"+open[0].ID+"/close", token, map[string]any{})
	defer closeResp.Body.Close()
	require.Equal(t, http.StatusOK, closeResp.StatusCode)
	var p model.Position
	require.NoError(t, json.NewDecoder(closeResp.Body).Decode(&p))
	assert.Equal(t, "closed", string(p.Status))
}

func TestRiskEndpoints(t *testing.T) {
	srv, token := newTestServer(t)

	resp := doJSON(t, http.MethodGet, srv.URL+"/v1/risk/limits", token, nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var limits model.RiskLimits
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&limits))
	assert.True(t, limits.MaxLeverage.Equal(decimal.NewFromInt(100)))

	sizing := doJSON(t, http.MethodPost, srv.URL+"/v1/risk/position-sizing", token, map[string]any{
		"entry_price": "50000", "stop_loss": "49000", "risk_percentage": "0.01",
	})
	defer sizing.Body.Close()
	require.Equal(t, http.StatusOK, sizing.StatusCode)
	var out map[string]string
	require.NoError(t, json.NewDecoder(sizing.Body).Decode(&out))
	assert.Equal(t, "1", out["size"])
}

func TestMarketPricesPublic(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/v1/market/prices")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var prices map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&prices))
	assert.Equal(t, "50000", prices["BTCUSDT"])
}
