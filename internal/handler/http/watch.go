package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/websocket"

	"github.com/utafrali/mobileshop/internal/store"
	apperrors "github.com/utafrali/mobileshop/pkg/errors"
	"github.com/utafrali/mobileshop/pkg/httputil"
)

// Watch topics.
const (
	TopicCart   = "cart"
	TopicOrders = "orders"
	TopicPoints = "points"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 64
)

// WatchMessage is one change pushed to a websocket client.
type WatchMessage struct {
	Topic   string          `json:"topic"`
	Path    string          `json:"path"`
	Op      store.Op        `json:"op"`
	Value   json.RawMessage `json:"value,omitempty"`
	Version int64           `json:"version"`
}

// WatchHandler streams store changes over websockets.
type WatchHandler struct {
	store    store.Store
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewWatchHandler creates a watch handler accepting upgrades from
// allowedOrigins ("*" accepts any).
func NewWatchHandler(st store.Store, allowedOrigins []string, logger *slog.Logger) *WatchHandler {
	return &WatchHandler{
		store: st,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || slices.Contains(allowedOrigins, "*") || slices.Contains(allowedOrigins, origin)
			},
		},
		logger: logger,
	}
}

// Watch handles GET /api/v1/watch?topic=cart|orders|points
func (h *WatchHandler) Watch(w http.ResponseWriter, r *http.Request) {
	topic := r.URL.Query().Get("topic")
	path, err := watchPath(topic, userID(r))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	h.serve(w, r, topic, path)
}

// AdminWatch handles GET /api/v1/admin/watch
func (h *WatchHandler) AdminWatch(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, TopicOrders, store.OrderIndexRoot)
}

func watchPath(topic, userID string) (string, error) {
	switch topic {
	case TopicCart:
		return store.CartPath(userID)
	case TopicOrders:
		return store.OrdersPath(userID)
	case TopicPoints:
		return store.PointsPath(userID)
	default:
		return "", apperrors.InvalidInput(fmt.Sprintf("unknown watch topic %q", topic))
	}
}

func (h *WatchHandler) serve(w http.ResponseWriter, r *http.Request, topic, path string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WarnContext(r.Context(), "websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	send := make(chan WatchMessage, sendBuffer)
	unsubscribe, err := h.store.Subscribe(ctx, path, func(c store.Change) {
		msg := WatchMessage{Topic: topic, Path: c.Path, Op: c.Op, Value: c.Value, Version: c.Version}
		select {
		case send <- msg:
		default:
			// Client is not keeping up.
			cancel()
		}
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "subscribe failed",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "subscribe failed"),
			time.Now().Add(writeWait))
		return
	}
	defer unsubscribe()

	h.logger.DebugContext(ctx, "watch started", slog.String("topic", topic), slog.String("path", path))

	go readPump(conn, cancel)
	writePump(ctx, conn, send)
}

// readPump discards client frames and cancels the watch when the client goes
// away or stops answering pings.
func readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func writePump(ctx context.Context, conn *websocket.Conn, send <-chan WatchMessage) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		case msg := <-send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
