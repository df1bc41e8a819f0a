package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"lv-exchange/internal/admin"
	"lv-exchange/internal/auth"
	"lv-exchange/internal/events"
	"lv-exchange/internal/health"
	"lv-exchange/internal/ledger"
	"lv-exchange/internal/marketdata"
	"lv-exchange/internal/orders"
	"lv-exchange/internal/storage"

	"go.uber.org/zap"
)

const internalToken = "test-internal-token"

func newTestServer(t *testing.T) (http.Handler, *storage.Memory) {
	t.Helper()
	log := zap.NewNop()
	store := storage.NewMemory()
	bus := events.NewBus()
	authSvc := auth.NewService(store, "lv-exchange-test", []byte("test-secret"), log)
	if err := authSvc.EnsureAdmin(context.Background(), "root", "rootpw"); err != nil {
		t.Fatalf("ensure admin: %v", err)
	}
	ledgerSvc := ledger.NewService(store, events.Noop{}, log)
	orderSvc := orders.NewService(store, ledgerSvc, events.Noop{}, "RUB", log)

	router := NewRouter(RouterDeps{
		AuthHandler:   auth.NewHandler(authSvc),
		LedgerHandler: ledger.NewHandler(ledgerSvc),
		OrderHandler:  orders.NewHandler(orderSvc),
		MarketHandler: marketdata.NewHandler(marketdata.NewReader(store)),
		AdminHandler:  admin.NewHandler(store, log),
		HealthHandler: health.NewHandler(store),
		AuthService:   authSvc,
		InternalToken: internalToken,
		WSHandler:     marketdata.NewWS(bus, "*", log),
		Metrics:       http.NotFoundHandler(),
	})
	return router, store
}

type request struct {
	method string
	path   string
	body   any
	token  string
	header map[string]string
}

func do(t *testing.T, h http.Handler, req request) *httptest.ResponseRecorder {
	t.Helper()
	var body *bytes.Buffer = bytes.NewBuffer(nil)
	if req.body != nil {
		if err := json.NewEncoder(body).Encode(req.body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	r := httptest.NewRequest(req.method, req.path, body)
	if req.body != nil {
		r.Header.Set("Content-Type", "application/json")
	}
	if req.token != "" {
		r.Header.Set("Authorization", "Bearer "+req.token)
	}
	for k, v := range req.header {
		r.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return out
}

type registeredUser struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Role   string `json:"role"`
	APIKey string `json:"api_key"`
}

func registerUser(t *testing.T, h http.Handler, name string) registeredUser {
	t.Helper()
	w := do(t, h, request{
		method: http.MethodPost,
		path:   "/api/v1/public/register",
		body:   map[string]string{"name": name, "password": "pw-" + name},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("register %s: %d %s", name, w.Code, w.Body.String())
	}
	return decode[registeredUser](t, w)
}

func TestRegisterAndAuthBoundary(t *testing.T) {
	h, _ := newTestServer(t)

	alice := registerUser(t, h, "alice")
	if alice.Role != "USER" {
		t.Fatalf("bad role: %s", alice.Role)
	}

	// Unauthenticated order placement is rejected.
	if w := do(t, h, request{method: http.MethodPost, path: "/api/v1/order", body: map[string]any{}}); w.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous order: %d", w.Code)
	}

	// /me round-trips the registered identity.
	w := do(t, h, request{method: http.MethodGet, path: "/api/v1/me", token: alice.APIKey})
	if w.Code != http.StatusOK {
		t.Fatalf("me: %d %s", w.Code, w.Body.String())
	}
	me := decode[registeredUser](t, w)
	if me.ID != alice.ID || me.Name != "alice" {
		t.Fatalf("wrong identity: %+v", me)
	}
}

func TestAdminAndTradingRoundTrip(t *testing.T) {
	h, store := newTestServer(t)

	root, err := store.UserByName(context.Background(), "root")
	if err != nil {
		t.Fatalf("bootstrap admin missing: %v", err)
	}
	rootKey := root.APIKey
	alice := registerUser(t, h, "alice")

	// Admin lists instruments.
	for _, ins := range []map[string]string{
		{"ticker": "RUB", "name": "Rouble"},
		{"ticker": "MEMCOIN", "name": "Memcoin"},
	} {
		w := do(t, h, request{method: http.MethodPost, path: "/api/v1/admin/instrument", body: ins, token: rootKey})
		if w.Code != http.StatusCreated {
			t.Fatalf("create instrument: %d %s", w.Code, w.Body.String())
		}
	}

	// Non-admin is turned away from the admin surface.
	if w := do(t, h, request{
		method: http.MethodPost, path: "/api/v1/admin/instrument",
		body: map[string]string{"ticker": "HACK", "name": "Hack"}, token: alice.APIKey,
	}); w.Code != http.StatusForbidden {
		t.Fatalf("non-admin instrument create: %d", w.Code)
	}

	// Admin funds alice.
	w := do(t, h, request{
		method: http.MethodPost, path: "/api/v1/admin/balance/deposit",
		body:  map[string]any{"user_id": alice.ID, "ticker": "MEMCOIN", "amount": 10},
		token: rootKey,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("deposit: %d %s", w.Code, w.Body.String())
	}

	// Alice sees the balance.
	w = do(t, h, request{method: http.MethodGet, path: "/api/v1/balance", token: alice.APIKey})
	if w.Code != http.StatusOK {
		t.Fatalf("balance: %d", w.Code)
	}
	balances := decode[map[string]int64](t, w)
	if balances["MEMCOIN"] != 10 {
		t.Fatalf("want 10 MEMCOIN, got %v", balances)
	}

	// The single-cell view agrees, and untouched cells read as zero.
	w = do(t, h, request{method: http.MethodGet, path: "/api/v1/balance/MEMCOIN", token: alice.APIKey})
	if w.Code != http.StatusOK {
		t.Fatalf("cell: %d %s", w.Code, w.Body.String())
	}
	cell := decode[struct {
		Ticker string `json:"ticker"`
		Amount int64  `json:"amount"`
	}](t, w)
	if cell.Ticker != "MEMCOIN" || cell.Amount != 10 {
		t.Fatalf("bad cell: %+v", cell)
	}
	w = do(t, h, request{method: http.MethodGet, path: "/api/v1/balance/RUB", token: alice.APIKey})
	if got := decode[struct {
		Amount int64 `json:"amount"`
	}](t, w); w.Code != http.StatusOK || got.Amount != 0 {
		t.Fatalf("untouched cell: %d %+v", w.Code, got)
	}

	// Alice places a sell order.
	w = do(t, h, request{
		method: http.MethodPost, path: "/api/v1/order",
		body:  map[string]any{"ticker": "MEMCOIN", "direction": "SELL", "qty": 10, "price": 5},
		token: alice.APIKey,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("order: %d %s", w.Code, w.Body.String())
	}
	created := decode[struct {
		Success bool   `json:"success"`
		OrderID string `json:"order_id"`
	}](t, w)
	if !created.Success || created.OrderID == "" {
		t.Fatalf("bad create response: %s", w.Body.String())
	}

	// Admin sees the order in the global listing; users do not.
	w = do(t, h, request{method: http.MethodGet, path: "/api/v1/admin/order", token: rootKey})
	if w.Code != http.StatusOK {
		t.Fatalf("admin order list: %d %s", w.Code, w.Body.String())
	}
	all := decode[[]map[string]any](t, w)
	if len(all) != 1 || all[0]["id"] != created.OrderID {
		t.Fatalf("admin listing: %v", all)
	}
	if w := do(t, h, request{method: http.MethodGet, path: "/api/v1/admin/order", token: alice.APIKey}); w.Code != http.StatusForbidden {
		t.Fatalf("non-admin order list: %d", w.Code)
	}

	// The venue reports a partial execution through the internal route.
	w = do(t, h, request{
		method: http.MethodPost, path: "/internal/fills",
		body:   map[string]any{"order_id": created.OrderID, "amount": 4, "price": 5},
		header: map[string]string{"X-Internal-Token": internalToken},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("fill: %d %s", w.Code, w.Body.String())
	}

	// Without the internal token the venue route is closed.
	w = do(t, h, request{
		method: http.MethodPost, path: "/internal/fills",
		body: map[string]any{"order_id": created.OrderID, "amount": 1, "price": 5},
	})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated fill: %d", w.Code)
	}

	// Public trade tape shows the execution.
	w = do(t, h, request{method: http.MethodGet, path: "/api/v1/public/transactions/MEMCOIN"})
	if w.Code != http.StatusOK {
		t.Fatalf("transactions: %d", w.Code)
	}
	trades := decode[[]map[string]any](t, w)
	if len(trades) != 1 {
		t.Fatalf("want 1 trade, got %d", len(trades))
	}

	// Alice cancels; the unsold remainder comes back.
	w = do(t, h, request{
		method: http.MethodDelete, path: "/api/v1/order/" + created.OrderID, token: alice.APIKey,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("cancel: %d %s", w.Code, w.Body.String())
	}
	w = do(t, h, request{method: http.MethodGet, path: "/api/v1/balance", token: alice.APIKey})
	balances = decode[map[string]int64](t, w)
	if balances["MEMCOIN"] != 6 || balances["RUB"] != 20 {
		t.Fatalf("post-cancel balances: %v", balances)
	}
}
