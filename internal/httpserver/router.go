package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/eth-jashan/trading-book-sub000/internal/auth"
	"github.com/eth-jashan/trading-book-sub000/internal/httputil"
)

type RouterDeps struct {
	AuthHandler *auth.Handler
	AuthService *auth.Service
	APIHandler  *Handler
	WSHandler   http.Handler
}

func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()

	// CORS middleware for development
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				origin = "*"
			}
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Use(SecurityHeaders)
	r.Use(RateLimitMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Route("/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", d.AuthHandler.Register)
			r.Post("/login", d.AuthHandler.Login)
		})
		r.Get("/ws", d.WSHandler.ServeHTTP)
		r.Get("/market/prices", d.APIHandler.Prices)
		r.Group(func(r chi.Router) {
			r.Use(WithAuth(d.AuthService))
			r.Get("/me", func(w http.ResponseWriter, r *http.Request) {
				userID, ok := UserID(r)
				if !ok {
					httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Error: "unauthorized"})
					return
				}
				d.AuthHandler.Me(w, r, userID)
			})
			r.Get("/balance", d.APIHandler.Balance)
			r.Get("/transactions", d.APIHandler.Transactions)
			r.Post("/orders", d.APIHandler.PlaceOrder)
			r.Get("/orders", d.APIHandler.Orders)
			r.Get("/orders/{id}", d.APIHandler.Order)
			r.Delete("/orders/{id}", d.APIHandler.CancelOrder)
			r.Get("/positions", d.APIHandler.OpenPositions)
			r.Get("/positions/history", d.APIHandler.ClosedPositions)
			r.Get("/positions/{id}", d.APIHandler.Position)
			r.Post("/positions/{id}/close", d.APIHandler.ClosePosition)
			r.Post("/positions/{id}/stops", d.APIHandler.SetStops)
			r.Get("/risk", d.APIHandler.AssessRisk)
			r.Get("/risk/limits", d.APIHandler.RiskLimits)
			r.Get("/risk/warnings", d.APIHandler.Warnings)
			r.Delete("/risk/warnings/{id}", d.APIHandler.DismissWarning)
			r.Post("/risk/position-sizing", d.APIHandler.PositionSizing)
			r.Post("/risk/dynamic-leverage", d.APIHandler.DynamicLeverage)
		})
	})
	return r
}
