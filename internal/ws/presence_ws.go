package ws

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"messaging-service/internal/directory"
	"messaging-service/internal/observability"
)

// PresenceHandler upgrades authenticated clients onto the presence channel.
// Per connection: Disconnected -> Authenticating -> Connected -> Disconnected.
type PresenceHandler struct {
	hub       *Hub
	validator directory.TokenValidator
}

// NewPresenceHandler constructs a PresenceHandler.
func NewPresenceHandler(hub *Hub, validator directory.TokenValidator) *PresenceHandler {
	return &PresenceHandler{hub: hub, validator: validator}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle authenticates, upgrades the connection and registers it under the
// caller's identity. The read loop exists only to observe disconnects; the
// channel carries server-pushed messages.
func (h *PresenceHandler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("messaging-service/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	token := c.GetHeader("Authorization")
	if token == "" {
		token = c.Query("token")
		if token != "" {
			token = "Bearer " + token
		}
	}

	userID, err := h.authenticate(c, token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	traceID := span.SpanContext().TraceID().String()
	requestID := observability.RequestIDFromRequest(c.Request)
	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      userID,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   requestID,
		TraceID:     traceID,
		ConnectedAt: time.Now(),
	}
	h.hub.Register(userID, conn, info)

	observability.IncWSActive("presence")
	observability.IncWSEvent("presence", "ws_connect")
	_ = observability.PublishEvent(ctx, "ws_events.presence", observability.EventEnvelope{
		EventType: "ws_events",
		EventName: "ws_connect",
		Payload:   presencePayload(info, "ws_connect", 0, ""),
	}, observability.BuildHeaders(requestID, traceID))

	go func() {
		var closeReason string
		defer func() {
			h.hub.Unregister(userID, conn)
			observability.DecWSActive("presence")
			observability.IncWSEvent("presence", "ws_disconnect")
			_ = observability.PublishEvent(ctx, "ws_events.presence", observability.EventEnvelope{
				EventType: "ws_events",
				EventName: "ws_disconnect",
				Payload:   presencePayload(info, "ws_disconnect", time.Since(info.ConnectedAt).Milliseconds(), closeReason),
			}, observability.BuildHeaders(requestID, traceID))
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				closeReason = err.Error()
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					observability.IncWSEvent("presence", "ws_error")
					_ = observability.PublishEvent(ctx, "ws_events.presence", observability.EventEnvelope{
						EventType: "ws_events",
						EventName: "ws_error",
						Payload:   presencePayload(info, "ws_error", time.Since(info.ConnectedAt).Milliseconds(), closeReason),
					}, observability.BuildHeaders(requestID, traceID))
				}
				return
			}
		}
	}()
}

func (h *PresenceHandler) authenticate(c *gin.Context, header string) (int64, error) {
	parts := strings.Split(header, " ")
	if len(parts) == 2 {
		return h.validator.ValidateToken(c.Request.Context(), parts[1])
	}
	return 0, fmt.Errorf("invalid token")
}

func presencePayload(info ConnInfo, event string, durationMS int64, reason string) map[string]interface{} {
	return map[string]interface{}{
		"ws": map[string]interface{}{
			"kind":        "presence",
			"event":       event,
			"conn_id":     info.ConnID,
			"duration_ms": durationMS,
			"reason":      reason,
		},
		"identity": map[string]interface{}{
			"user_id":   info.UserID,
			"device_id": info.DeviceID,
			"ip":        info.IP,
		},
	}
}
