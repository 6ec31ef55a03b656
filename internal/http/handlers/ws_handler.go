package handlers

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/nft-gate/backend/internal/auth"
	"github.com/nft-gate/backend/internal/events"
	"github.com/nft-gate/backend/internal/rbac"
	"go.uber.org/zap"
)

// WSHub fans bus events out to connected dashboards.
type WSHub struct {
	secret      string
	subscriber  events.Subscriber
	log         *zap.Logger
	mu          sync.RWMutex
	connections map[string][]*websocket.Conn
}

func NewWSHub(secret string, subscriber events.Subscriber, log *zap.Logger) *WSHub {
	return &WSHub{
		secret:      secret,
		subscriber:  subscriber,
		log:         log,
		connections: make(map[string][]*websocket.Conn),
	}
}

func (h *WSHub) Start(ctx context.Context) error {
	if h.subscriber == nil {
		return nil
	}
	for _, stream := range []string{events.StreamVerification, events.StreamRoles, events.StreamStorage} {
		if err := h.subscriber.Subscribe(ctx, stream, h.broadcast); err != nil {
			return err
		}
	}
	return nil
}

func (h *WSHub) broadcast(event events.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, conns := range h.connections {
		for _, conn := range conns {
			_ = conn.WriteMessage(websocket.TextMessage, data)
		}
	}
}

// Connections is the number of open sockets.
func (h *WSHub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, conns := range h.connections {
		n += len(conns)
	}
	return n
}

func WSUpgradeMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}
}

func (h *WSHub) HandleWS(conn *websocket.Conn) {
	tokenStr := conn.Query("token")
	if tokenStr == "" {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"missing token"}`))
		conn.Close()
		return
	}

	claims, err := auth.ParseJWT(h.secret, tokenStr)
	if err != nil {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"invalid token"}`))
		conn.Close()
		return
	}
	if !rbac.Allowed(claims.Scopes, rbac.PermStreamEvents) {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"insufficient scope"}`))
		conn.Close()
		return
	}

	subject := claims.Subject

	h.mu.Lock()
	h.connections[subject] = append(h.connections[subject], conn)
	h.mu.Unlock()
	h.log.Debug("ws connected", zap.String("subject", subject))

	defer func() {
		h.mu.Lock()
		conns := h.connections[subject]
		for i, c := range conns {
			if c == conn {
				h.connections[subject] = append(conns[:i], conns[i+1:]...)
				break
			}
		}
		if len(h.connections[subject]) == 0 {
			delete(h.connections, subject)
		}
		h.mu.Unlock()
		conn.Close()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}
