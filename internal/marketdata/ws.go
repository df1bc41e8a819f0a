package marketdata

import (
	"net/http"
	"strings"

	"lv-exchange/internal/events"
	"lv-exchange/internal/metrics"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WS streams the in-process event feed to websocket clients. Clients
// may pass ?type=order.created,trade.settled to filter.
type WS struct {
	bus      *events.Bus
	upgrader websocket.Upgrader
	log      *zap.Logger
}

func NewWS(bus *events.Bus, origin string, log *zap.Logger) *WS {
	return &WS{
		bus: bus,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return allowOrigin(r, origin) },
		},
		log: log,
	}
}

func allowOrigin(r *http.Request, origin string) bool {
	if origin == "*" {
		return true
	}
	return strings.EqualFold(r.Header.Get("Origin"), origin)
}

func (h *WS) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()
	metrics.WSClients.Inc()
	defer metrics.WSClients.Dec()

	var want map[string]bool
	if raw := strings.TrimSpace(r.URL.Query().Get("type")); raw != "" {
		want = make(map[string]bool)
		for _, t := range strings.Split(raw, ",") {
			want[strings.TrimSpace(t)] = true
		}
	}

	ch := h.bus.Subscribe()
	defer h.bus.Unsubscribe(ch)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	for {
		select {
		case evt, ok := <-ch:
			if !ok {
				return
			}
			if want != nil && !want[evt.Type] {
				continue
			}
			if err := conn.WriteJSON(evt); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
