package ws

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"chat-sync/internal/auth"
	"chat-sync/internal/models"
	"chat-sync/internal/observability"
	"chat-sync/internal/roster"
)

// RosterWebSocketHandler streams the authenticated user's roster, each
// snapshot enriched with fresh peer profiles and sorted by recency.
type RosterWebSocketHandler struct {
	roster *roster.Sync
	auth   *auth.Manager
	log    *zap.Logger
}

func NewRosterWebSocketHandler(rosterSync *roster.Sync, authManager *auth.Manager, log *zap.Logger) *RosterWebSocketHandler {
	return &RosterWebSocketHandler{roster: rosterSync, auth: authManager, log: log}
}

func (h *RosterWebSocketHandler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("chat-sync/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	userID, err := authorize(c, h.auth)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      userID,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}

	observability.IncWSActive("roster")
	publishWSEvent(ctx, "roster", userID, info, "ws_connect", "")

	cancel := h.roster.Subscribe(userID, func(entries []models.EnrichedEntry) {
		event := models.RosterEvent{Type: "roster", Entries: entries}
		if err := conn.WriteJSON(event); err != nil {
			h.log.Warn("websocket write failed",
				zap.String("user_id", userID), zap.Error(err))
			conn.Close()
		}
	}, func(err error) {
		publishWSEvent(ctx, "roster", userID, info, "ws_error", err.Error())
	})

	go func() {
		var closeReason string
		defer func() {
			cancel()
			observability.DecWSActive("roster")
			publishWSEvent(ctx, "roster", userID, info, "ws_disconnect", closeReason)
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				closeReason = err.Error()
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					publishWSEvent(ctx, "roster", userID, info, "ws_error", closeReason)
				}
				return
			}
		}
	}()
}
