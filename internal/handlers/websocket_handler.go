package handlers

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/latestcomment/round-feedback/internal/services"
)

// feedWriteWait bounds a single push to a dashboard connection.
const feedWriteWait = 5 * time.Second

// feedConn gives every feed write a deadline, so a half-open dashboard
// connection fails its write instead of stalling the feed.
type feedConn struct {
	*websocket.Conn
}

func (c feedConn) WriteJSON(v any) error {
	if err := c.SetWriteDeadline(time.Now().Add(feedWriteWait)); err != nil {
		return err
	}
	return c.Conn.WriteJSON(v)
}

// WebSocketHandler serves the live pending-queue feed of the dashboard.
type WebSocketHandler struct {
	Feed     *services.PendingFeed
	Sessions *services.SupervisorSessions
}

func NewWebSocketHandler(feed *services.PendingFeed, sessions *services.SupervisorSessions) *WebSocketHandler {
	return &WebSocketHandler{Feed: feed, Sessions: sessions}
}

func (h *WebSocketHandler) WebSocketMiddleware(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	if !h.Sessions.Authorized(c) {
		return fiber.ErrUnauthorized
	}
	return c.Next()
}

func (h *WebSocketHandler) HandleWebSocket(c *websocket.Conn) {
	defer func() {
		_ = c.Close()
	}()

	id, err := h.Feed.Subscribe(feedConn{Conn: c})
	if err != nil {
		slog.Debug("dashboard feed subscribe failed", "error", err)
		return
	}
	defer h.Feed.Unsubscribe(id)

	// The dashboard never sends; reading only detects the close.
	for {
		if _, _, err := c.ReadMessage(); err != nil {
			return
		}
	}
}
