package ws

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"chat-sync/internal/auth"
	"chat-sync/internal/models"
	"chat-sync/internal/observability"
	"chat-sync/internal/store"
	"chat-sync/internal/stream"
)

// ThreadWebSocketHandler pushes a thread's live message sequence to
// connected clients. Each connection holds exactly one message subscription,
// cancelled when the socket closes.
type ThreadWebSocketHandler struct {
	stream *stream.Stream
	store  store.Store
	auth   *auth.Manager
	log    *zap.Logger
}

func NewThreadWebSocketHandler(msgStream *stream.Stream, st store.Store, authManager *auth.Manager, log *zap.Logger) *ThreadWebSocketHandler {
	return &ThreadWebSocketHandler{stream: msgStream, store: st, auth: authManager, log: log}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle upgrades the connection, verifies thread membership and streams
// message snapshots until the client disconnects.
func (h *ThreadWebSocketHandler) Handle(c *gin.Context) {
	threadID := c.Param("thread_id")

	ctx, span := otel.Tracer("chat-sync/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	userID, err := authorize(c, h.auth)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	member, err := isParticipant(ctx, h.store, userID, threadID)
	if err != nil || !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not authorized for thread"})
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

	observability.IncWSActive("thread")
	publishWSEvent(ctx, "thread", threadID, info, "ws_connect", "")

	cancel := h.stream.Subscribe(threadID, func(msgs []models.Message) {
		event := models.ThreadEvent{Type: "messages", ThreadID: threadID, Messages: msgs}
		if err := conn.WriteJSON(event); err != nil {
			h.log.Warn("websocket write failed",
				zap.String("thread_id", threadID), zap.Error(err))
			conn.Close()
		}
	}, func(err error) {
		publishWSEvent(ctx, "thread", threadID, info, "ws_error", err.Error())
	})

	go func() {
		var closeReason string
		defer func() {
			cancel()
			observability.DecWSActive("thread")
			publishWSEvent(ctx, "thread", threadID, info, "ws_disconnect", closeReason)
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				closeReason = err.Error()
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					publishWSEvent(ctx, "thread", threadID, info, "ws_error", closeReason)
				}
				return
			}
		}
	}()
}

// authorize extracts and validates the bearer token from the Authorization
// header, falling back to the token query parameter for browser clients.
func authorize(c *gin.Context, authManager *auth.Manager) (string, error) {
	header := c.GetHeader("Authorization")
	if header == "" {
		if token := c.Query("token"); token != "" {
			header = "Bearer " + token
		}
	}
	parts := strings.Split(header, " ")
	if len(parts) != 2 {
		return "", fmt.Errorf("invalid token")
	}
	return authManager.ValidateToken(parts[1])
}

// isParticipant checks the user's roster for an entry referencing the thread.
func isParticipant(ctx context.Context, st store.Store, userID, threadID string) (bool, error) {
	doc, err := st.Get(ctx, "rosters", userID)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	var roster models.RosterDocument
	if err := doc.Decode(&roster); err != nil {
		return false, err
	}
	for _, entry := range roster.Entries {
		if entry.ThreadID == threadID {
			return true, nil
		}
	}
	return false, nil
}
