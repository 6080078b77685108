package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/fibertrak/fibertrak-backend/internal/logger"
	"github.com/fibertrak/fibertrak-backend/internal/middleware"
	"github.com/fibertrak/fibertrak-backend/internal/realtime"
	"github.com/fibertrak/fibertrak-backend/internal/services"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

type WSHandler struct {
	log                 *logger.Logger
	hub                 *realtime.Hub
	emit                services.Emitter
	notificationService services.NotificationService
	upgrader            websocket.Upgrader
}

func NewWSHandler(log *logger.Logger, hub *realtime.Hub, emit services.Emitter, notificationService services.NotificationService) *WSHandler {
	return &WSHandler{
		log:                 log.With("handler", "WSHandler"),
		hub:                 hub,
		emit:                emit,
		notificationService: notificationService,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Auth happens in middleware; cross-origin handshakes are
			// allowed so field devices on other hosts can connect.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Stream upgrades the request and binds the session to the hub. Every
// session is implicitly a member of its own user room so notifications reach
// it without an explicit join.
func (h *WSHandler) Stream(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("Websocket upgrade failed", "error", err)
		return
	}

	session := h.hub.NewSession(userID)
	h.hub.JoinRoom(session, realtime.UserRoom(userID.String()))
	h.hub.Presence().Set(userID.String(), realtime.PresenceOnline)

	go h.writePump(conn, session)
	h.readPump(conn, session)
}

func (h *WSHandler) writePump(conn *websocket.Conn, session *realtime.Session) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case env, ok := <-session.Outbound:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			raw, err := json.Marshal(env)
			if err != nil {
				h.log.Warn("Failed to marshal outbound envelope", "error", err)
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-session.Done():
			return
		}
	}
}

func (h *WSHandler) readPump(conn *websocket.Conn, session *realtime.Session) {
	defer func() {
		h.hub.Presence().Set(session.UserID.String(), realtime.PresenceOffline)
		h.broadcastPresence(session, realtime.PresenceOffline)
		h.hub.CloseSession(session)
		_ = conn.Close()
	}()

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug("Session closed unexpectedly", "sessionID", session.ID, "error", err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		var env realtime.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			h.log.Warn("Dropping malformed inbound frame", "sessionID", session.ID, "error", err)
			continue
		}
		h.handleInbound(session, env)
	}
}

func (h *WSHandler) handleInbound(session *realtime.Session, env realtime.Envelope) {
	// The session's identity wins over whatever the payload claims.
	env.UserID = session.UserID.String()

	switch env.Type {
	case realtime.MessageJoinRoom:
		h.hub.JoinRoom(session, env.Room)
	case realtime.MessageLeaveRoom:
		h.hub.LeaveRoom(session, env.Room)
	case realtime.MessageUserStatus:
		var payload realtime.PresencePayload
		if err := env.Decode(&payload); err != nil {
			return
		}
		h.hub.Presence().Set(session.UserID.String(), payload.Status)
		h.broadcastPresence(session, payload.Status)
	case realtime.MessageTypingStart, realtime.MessageTypingStop:
		h.rebroadcastTyping(session, env)
	case realtime.MessageMarkNotificationRead:
		var payload realtime.MarkReadPayload
		if err := env.Decode(&payload); err != nil {
			return
		}
		id, err := uuid.Parse(payload.NotificationID)
		if err != nil {
			return
		}
		ctx, cancel := contextWithTimeout()
		defer cancel()
		if err := h.notificationService.MarkRead(ctx, session.UserID, []uuid.UUID{id}); err != nil {
			h.log.Warn("Failed to mark notification read", "notificationID", id, "error", err)
		}
	case realtime.MessageChat:
		if env.Room == "" {
			return
		}
		out := env
		out.Type = realtime.MessageRoomMessage
		h.emitEnvelope(out)
	case realtime.MessageLocationUpdate:
		if env.ProjectID == "" {
			return
		}
		out := env
		out.Room = realtime.ProjectRoom(env.ProjectID)
		h.emitEnvelope(out)
	case realtime.MessageCreateNotification, realtime.MessageRealtimeEvent:
		// Trusted producers (internal tools) push these through the socket;
		// they fan out exactly like server-originated envelopes.
		h.emitEnvelope(env)
	default:
		h.log.Debug("Ignoring inbound message of unknown type", "messageType", env.Type, "sessionID", session.ID)
	}
}

func (h *WSHandler) broadcastPresence(session *realtime.Session, status realtime.PresenceStatus) {
	env, err := realtime.NewEnvelope(realtime.MessageUserStatus, realtime.PresencePayload{
		UserID: session.UserID.String(),
		Status: status,
	})
	if err != nil {
		return
	}
	env.UserID = session.UserID.String()
	for _, room := range h.hub.SharedRooms(session) {
		out := env
		out.Room = room
		h.emitEnvelope(out)
	}
}

func (h *WSHandler) rebroadcastTyping(session *realtime.Session, env realtime.Envelope) {
	if env.Room == "" {
		return
	}
	out, err := realtime.NewEnvelope(realtime.MessageTyping, realtime.TypingPayload{
		UserID: session.UserID.String(),
		Room:   env.Room,
		Typing: env.Type == realtime.MessageTypingStart,
	})
	if err != nil {
		return
	}
	out.UserID = session.UserID.String()
	out.Room = env.Room
	h.emitEnvelope(out)
}

func (h *WSHandler) emitEnvelope(env realtime.Envelope) {
	ctx, cancel := contextWithTimeout()
	defer cancel()
	if err := h.emit.Emit(ctx, env); err != nil {
		h.log.Warn("Failed to emit envelope", "messageType", env.Type, "room", env.Room, "error", err)
	}
}
