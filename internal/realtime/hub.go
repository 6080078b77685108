package realtime

import (
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/fibertrak/fibertrak-backend/internal/logger"
)

// Session is one connected websocket client on this server instance. The
// write pump drains Outbound; the hub never blocks on a slow client.
type Session struct {
	ID       uuid.UUID
	UserID   uuid.UUID
	Rooms    map[string]bool
	Outbound chan Envelope
	done     chan struct{}
}

// Done is closed when the session is torn down.
func (s *Session) Done() <-chan struct{} { return s.done }

// Hub tracks room subscriptions for the sessions on this instance and fans
// envelopes out to them. Cross-instance fan-out rides the redis bus; the
// forwarder feeds remote envelopes back through Broadcast.
type Hub struct {
	mu            sync.RWMutex
	log           *logger.Logger
	subscriptions map[string]map[*Session]bool
	presence      *PresenceTracker
}

func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		log:           log.With("component", "Hub"),
		subscriptions: make(map[string]map[*Session]bool),
		presence:      NewPresenceTracker(),
	}
}

func (hub *Hub) Presence() *PresenceTracker { return hub.presence }

func (hub *Hub) NewSession(userID uuid.UUID) *Session {
	return &Session{
		ID:       uuid.New(),
		UserID:   userID,
		Rooms:    make(map[string]bool),
		Outbound: make(chan Envelope, 16),
		done:     make(chan struct{}),
	}
}

func (hub *Hub) JoinRoom(session *Session, room string) {
	room = strings.TrimSpace(room)
	if room == "" {
		return
	}

	hub.mu.Lock()
	defer hub.mu.Unlock()

	session.Rooms[room] = true

	sessions, exists := hub.subscriptions[room]
	if !exists {
		sessions = make(map[*Session]bool)
		hub.subscriptions[room] = sessions
	}
	sessions[session] = true

	hub.log.Debug("Session joined room", "sessionID", session.ID, "room", room)
}

func (hub *Hub) LeaveRoom(session *Session, room string) {
	room = strings.TrimSpace(room)
	if room == "" {
		return
	}

	hub.mu.Lock()
	defer hub.mu.Unlock()

	delete(session.Rooms, room)

	if sessions, ok := hub.subscriptions[room]; ok {
		delete(sessions, session)
		if len(sessions) == 0 {
			delete(hub.subscriptions, room)
		}
	}
	hub.log.Debug("Session left room", "sessionID", session.ID, "room", room)
}

func (hub *Hub) RemoveSession(session *Session) {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	for room := range session.Rooms {
		if sessions, ok := hub.subscriptions[room]; ok {
			delete(sessions, session)
			if len(sessions) == 0 {
				delete(hub.subscriptions, room)
			}
		}
	}
	session.Rooms = make(map[string]bool)
	hub.log.Debug("Session removed from all rooms", "sessionID", session.ID)
}

// Broadcast delivers the envelope to every session in env.Room. A session
// whose outbound buffer is full misses the message; clients converge through
// their next ordinary fetch, so dropping beats blocking the hub.
func (hub *Hub) Broadcast(env Envelope) {
	if env.Room == "" {
		return
	}

	hub.mu.RLock()
	defer hub.mu.RUnlock()

	sessions, ok := hub.subscriptions[env.Room]
	if !ok {
		return
	}
	for session := range sessions {
		select {
		case session.Outbound <- env:
		default:
			hub.log.Warn("Dropping envelope; outbound buffer full", "sessionID", session.ID, "room", env.Room, "messageType", env.Type)
		}
	}
}

// BroadcastToUser targets every session of one user via their user room.
func (hub *Hub) BroadcastToUser(userID uuid.UUID, env Envelope) {
	env.Room = UserRoom(userID.String())
	hub.Broadcast(env)
}

// SharedRooms lists the rooms the session holds, for rebroadcasting presence
// and typing signals to peers.
func (hub *Hub) SharedRooms(session *Session) []string {
	hub.mu.RLock()
	defer hub.mu.RUnlock()

	rooms := make([]string, 0, len(session.Rooms))
	for room := range session.Rooms {
		rooms = append(rooms, room)
	}
	return rooms
}

func (hub *Hub) CloseSession(session *Session) {
	select {
	case <-session.done:
		return
	default:
	}
	close(session.done)
	hub.RemoveSession(session)
	close(session.Outbound)
}
