package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"reveal-service/internal/handlers"
	"reveal-service/internal/middleware"
	"reveal-service/internal/models"
	"reveal-service/internal/observability"
)

const writeWait = 10 * time.Second

var tracer = otel.Tracer("reveal-service/ws")

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type groupSubscriber interface {
	SubscribeUserGroups(caller models.Caller, onUpdate func([]models.Group)) func()
}

type messageSubscriber interface {
	SubscribeToMessages(ctx context.Context, caller models.Caller, groupID string, onUpdate func([]models.MessageView)) (func(), error)
}

// GroupWebSocketHandler streams group and message snapshots. Callers are
// resolved by the auth middleware in front of it.
type GroupWebSocketHandler struct {
	hub      *Hub
	groups   groupSubscriber
	messages messageSubscriber
	log      *zap.Logger
}

// NewGroupWebSocketHandler constructs a GroupWebSocketHandler.
func NewGroupWebSocketHandler(hub *Hub, groups groupSubscriber, messages messageSubscriber, log *zap.Logger) *GroupWebSocketHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &GroupWebSocketHandler{hub: hub, groups: groups, messages: messages, log: log.Named("ws")}
}

// UserGroups handles GET /ws/groups: one frame with the caller's groups now and
// after every change.
func (h *GroupWebSocketHandler) UserGroups(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "ws.handshake", trace.WithAttributes(attribute.String("ws.kind", KindGroups)))
	caller := middleware.CallerFrom(c)
	if !caller.Authenticated() {
		span.End()
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
		return
	}

	box := newMailbox[models.GroupsSnapshot]()
	cancel := h.groups.SubscribeUserGroups(caller, func(groups []models.Group) {
		box.put(models.GroupsSnapshot{Type: KindGroups, Groups: groups})
	})
	serve(h, c, ctx, span, KindGroups, caller.ID, caller, cancel, box)
}

// GroupMessages handles GET /ws/groups/:group_id/messages for group members.
func (h *GroupWebSocketHandler) GroupMessages(c *gin.Context) {
	groupID := c.Param("group_id")
	ctx, span := tracer.Start(c.Request.Context(), "ws.handshake", trace.WithAttributes(
		attribute.String("ws.kind", KindMessages),
		attribute.String("group.id", groupID),
	))
	caller := middleware.CallerFrom(c)

	box := newMailbox[models.MessagesSnapshot]()
	cancel, err := h.messages.SubscribeToMessages(ctx, caller, groupID, func(views []models.MessageView) {
		box.put(models.MessagesSnapshot{Type: KindMessages, GroupID: groupID, Messages: views})
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.End()
		handlers.RespondError(c, err)
		return
	}
	serve(h, c, ctx, span, KindMessages, groupID, caller, cancel, box)
}

// serve upgrades the request and pumps snapshots from box to the socket until
// either side goes away. cancel is always called exactly once.
func serve[T any](h *GroupWebSocketHandler, c *gin.Context, ctx context.Context, span trace.Span, kind, resourceID string, caller models.Caller, cancel func(), box *mailbox[T]) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		cancel()
		span.SetStatus(codes.Error, "upgrade failed")
		span.End()
		return
	}
	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      caller.ID,
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
	span.End()

	// the request context ends with the handler, the connection outlives it
	ctx = context.WithoutCancel(ctx)
	h.hub.Add(kind, resourceID, conn, info)
	observability.IncWSActive(kind)
	publishWSEvent(ctx, kind, resourceID, "ws_connect", info, "")

	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case snapshot := <-box.ch:
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteJSON(snapshot); err != nil {
					h.log.Debug("websocket write failed", zap.String("conn_id", info.ConnID), zap.Error(err))
					_ = conn.Close()
					return
				}
			}
		}
	}()

	go func() {
		var closeReason string
		defer func() {
			cancel()
			close(done)
			h.hub.Remove(kind, resourceID, conn)
			observability.DecWSActive(kind)
			publishWSEvent(ctx, kind, resourceID, "ws_disconnect", info, closeReason)
			_ = conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				closeReason = err.Error()
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					publishWSEvent(ctx, kind, resourceID, "ws_error", info, closeReason)
				}
				return
			}
		}
	}()
}
