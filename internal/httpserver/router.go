package httpserver

import (
	"net/http"

	"lv-exchange/internal/admin"
	"lv-exchange/internal/auth"
	"lv-exchange/internal/health"
	"lv-exchange/internal/httputil"
	"lv-exchange/internal/ledger"
	"lv-exchange/internal/marketdata"
	"lv-exchange/internal/orders"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"
)

type RouterDeps struct {
	AuthHandler   *auth.Handler
	LedgerHandler *ledger.Handler
	OrderHandler  *orders.Handler
	MarketHandler *marketdata.Handler
	AdminHandler  *admin.Handler
	HealthHandler *health.Handler
	AuthService   *auth.Service
	InternalToken string
	WSHandler     http.Handler
	Metrics       http.Handler
}

func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization", "X-Internal-Token"},
	}).Handler)
	r.Use(Instrument)

	r.Get("/health", d.HealthHandler.Live)
	r.Get("/ready", d.HealthHandler.Ready)
	r.Method(http.MethodGet, "/metrics", d.Metrics)
	r.Get("/v1/ws", d.WSHandler.ServeHTTP)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/public", func(r chi.Router) {
			r.Post("/register", d.AuthHandler.Register)
			r.Get("/instrument", d.MarketHandler.Instruments)
			r.Get("/orderbook/{ticker}", func(w http.ResponseWriter, r *http.Request) {
				d.MarketHandler.OrderBook(w, r, chi.URLParam(r, "ticker"))
			})
			r.Get("/transactions/{ticker}", func(w http.ResponseWriter, r *http.Request) {
				d.MarketHandler.Transactions(w, r, chi.URLParam(r, "ticker"))
			})
			r.Get("/stats/{ticker}", func(w http.ResponseWriter, r *http.Request) {
				d.MarketHandler.Stats(w, r, chi.URLParam(r, "ticker"))
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(WithAuth(d.AuthService))
			r.Get("/me", func(w http.ResponseWriter, r *http.Request) {
				user, ok := CurrentUser(r)
				if !ok {
					httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Error: "unauthorized"})
					return
				}
				d.AuthHandler.Me(w, r, user)
			})
			r.Get("/balance", func(w http.ResponseWriter, r *http.Request) {
				user, ok := CurrentUser(r)
				if !ok {
					httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Error: "unauthorized"})
					return
				}
				d.LedgerHandler.Balances(w, r, user.ID)
			})
			r.Get("/balance/{ticker}", func(w http.ResponseWriter, r *http.Request) {
				user, ok := CurrentUser(r)
				if !ok {
					httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Error: "unauthorized"})
					return
				}
				d.LedgerHandler.Balance(w, r, user.ID, chi.URLParam(r, "ticker"))
			})
			r.Post("/order", func(w http.ResponseWriter, r *http.Request) {
				user, ok := CurrentUser(r)
				if !ok {
					httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Error: "unauthorized"})
					return
				}
				d.OrderHandler.Create(w, r, user.ID)
			})
			r.Get("/order", func(w http.ResponseWriter, r *http.Request) {
				user, ok := CurrentUser(r)
				if !ok {
					httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Error: "unauthorized"})
					return
				}
				d.OrderHandler.List(w, r, user.ID)
			})
			r.Get("/order/{id}", func(w http.ResponseWriter, r *http.Request) {
				user, ok := CurrentUser(r)
				if !ok {
					httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Error: "unauthorized"})
					return
				}
				d.OrderHandler.Get(w, r, user.ID, chi.URLParam(r, "id"))
			})
			r.Delete("/order/{id}", func(w http.ResponseWriter, r *http.Request) {
				user, ok := CurrentUser(r)
				if !ok {
					httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Error: "unauthorized"})
					return
				}
				d.OrderHandler.Cancel(w, r, user.ID, chi.URLParam(r, "id"))
			})
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(WithAuth(d.AuthService))
			r.Use(RequireAdmin)
			r.Get("/order", d.OrderHandler.ListAll)
			r.Post("/instrument", d.AdminHandler.CreateInstrument)
			r.Delete("/instrument/{ticker}", func(w http.ResponseWriter, r *http.Request) {
				d.AdminHandler.DeleteInstrument(w, r, chi.URLParam(r, "ticker"))
			})
			r.Delete("/user/{id}", func(w http.ResponseWriter, r *http.Request) {
				d.AdminHandler.DeleteUser(w, r, chi.URLParam(r, "id"))
			})
			r.Post("/balance/deposit", d.LedgerHandler.Deposit)
			r.Post("/balance/withdraw", d.LedgerHandler.Withdraw)
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(InternalAuth(d.InternalToken))
		r.Post("/internal/fills", d.OrderHandler.Fills)
	})

	return r
}
