package hints

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/lettucespeak/internal/observe"
)

// writeTimeout bounds a single frame write to a client.
const writeTimeout = 5 * time.Second

// Handler streams hints to WebSocket clients as JSON text frames, one hint
// per frame. Clients never send anything; incoming frames are discarded.
type Handler struct {
	b       *Broadcaster
	metrics *observe.Metrics
	origins []string
}

// HandlerOption configures a [Handler].
type HandlerOption func(*Handler)

// WithOriginPatterns allows cross-origin browser clients matching patterns.
func WithOriginPatterns(patterns ...string) HandlerOption {
	return func(h *Handler) { h.origins = patterns }
}

// WithHandlerMetrics records subscriber counts on m.
func WithHandlerMetrics(m *observe.Metrics) HandlerOption {
	return func(h *Handler) { h.metrics = m }
}

// NewHandler creates a WebSocket handler serving hints from b.
func NewHandler(b *Broadcaster, opts ...HandlerOption) *Handler {
	h := &Handler{b: b}
	for _, o := range opts {
		o(h)
	}
	if h.metrics == nil {
		h.metrics = observe.DefaultMetrics()
	}
	return h
}

// ServeHTTP upgrades the connection and streams hints until the client goes
// away or the broadcaster is closed.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.origins,
	})
	if err != nil {
		slog.Warn("hints: websocket accept failed", "err", err)
		return
	}
	defer conn.CloseNow()

	ctx := conn.CloseRead(r.Context())
	hints, cancel := h.b.Subscribe()
	defer cancel()

	h.metrics.HintSubscribers.Add(ctx, 1)
	defer h.metrics.HintSubscribers.Add(context.WithoutCancel(ctx), -1)

	log := observe.Logger(r.Context()).With("remote", r.RemoteAddr)
	log.Info("hints: client connected")

	for {
		select {
		case <-ctx.Done():
			log.Info("hints: client disconnected")
			return
		case hint, ok := <-hints:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "shutting down")
				return
			}
			if err := writeHint(ctx, conn, hint); err != nil {
				log.Debug("hints: write failed", "err", err)
				return
			}
		}
	}
}

func writeHint(ctx context.Context, conn *websocket.Conn, h Hint) error {
	data, err := json.Marshal(h)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}
