package wsclient

import (
	"github.com/fibertrak/fibertrak-backend/internal/logger"
	"github.com/fibertrak/fibertrak-backend/internal/realtime"
)

// QueryKey addresses cached query results in the data-fetching layer, e.g.
// {"projects"} or {"notifications", "detail", id}. Invalidation matches by
// prefix, mirroring how list keys cover their detail keys.
type QueryKey []string

// QueryCache is the boundary to the data-fetching layer. The bus only ever
// tells it "this is stale" or hands it a fresher copy; fetching is not this
// layer's job.
type QueryCache interface {
	Invalidate(keys ...QueryKey)
	InvalidateAll()
	Upsert(key QueryKey, value any)
}

const (
	SeverityInfo    = "info"
	SeveritySuccess = "success"
	SeverityWarning = "warning"
	SeverityError   = "error"
)

type Toast struct {
	Severity string
	Title    string
	Message  string
	// Persistent toasts stay until dismissed by hand; the rest auto-dismiss
	// after the toaster's fixed duration.
	Persistent  bool
	ActionURL   string
	ActionLabel string
}

// Toaster is the transient-message surface of the UI layer.
type Toaster interface {
	Show(t Toast)
}

// Query keys invalidated by entity changes.
func notificationsKey(userID string) QueryKey { return QueryKey{"notifications", userID} }
func unreadCountKey(userID string) QueryKey {
	return QueryKey{"notifications", "unread-count", userID}
}
func notificationDetailKey(id string) QueryKey { return QueryKey{"notifications", "detail", id} }

var entityListKeys = map[string]QueryKey{
	realtime.EntityProject:     {"projects"},
	realtime.EntityWorkEntry:   {"work-entries"},
	realtime.EntityMaterial:    {"materials"},
	realtime.EntityHouse:       {"houses"},
	realtime.EntityAppointment: {"appointments"},
	realtime.EntityCrew:        {"crews"},
}

// DomainHandlers is the fixed handler set of the bus: notifications,
// cross-entity cache invalidation, presence, typing, upload progress. All of
// it is best-effort; a dropped message is healed by the next ordinary fetch.
type DomainHandlers struct {
	log       *logger.Logger
	cache     QueryCache
	toaster   Toaster
	presence  *realtime.PresenceTracker
	localUser func() string

	// Ephemeral signals forwarded straight to interested UI, never cached.
	OnTyping         func(realtime.TypingPayload)
	OnUploadProgress func(realtime.UploadProgressPayload)
	OnRoomMessage    func(realtime.Envelope)
}

func NewDomainHandlers(log *logger.Logger, cache QueryCache, toaster Toaster, presence *realtime.PresenceTracker, localUser func() string) *DomainHandlers {
	return &DomainHandlers{
		log:       log.With("component", "DomainHandlers"),
		cache:     cache,
		toaster:   toaster,
		presence:  presence,
		localUser: localUser,
	}
}

// Register wires every domain handler into the router and returns the
// subscriptions so a caller can tear them down individually.
func (h *DomainHandlers) Register(r *realtime.Router) []*realtime.Subscription {
	return []*realtime.Subscription{
		r.Subscribe(realtime.MessageNotification, h.HandleNotification),
		r.Subscribe(realtime.MessageRealtimeUpdate, h.HandleRealtimeUpdate),
		r.Subscribe(realtime.MessageUserStatus, h.HandlePresence),
		r.Subscribe(realtime.MessageTyping, h.HandleTyping),
		r.Subscribe(realtime.MessageUploadProgress, h.HandleUploadProgress),
		r.Subscribe(realtime.MessageRoomMessage, h.HandleRoomMessage),
	}
}

func (h *DomainHandlers) HandleNotification(env realtime.Envelope) {
	var payload realtime.NotificationPayload
	if err := env.Decode(&payload); err != nil {
		h.log.Warn("Undecodable notification payload", "error", err)
		return
	}
	userID := payload.UserID
	if userID == "" {
		userID = env.UserID
	}

	h.cache.Invalidate(notificationsKey(userID), unreadCountKey(userID))
	if payload.ID != "" {
		h.cache.Upsert(notificationDetailKey(payload.ID), payload)
	}

	switch payload.Priority {
	case realtime.PriorityUrgent:
		h.showToast(Toast{
			Severity:    SeverityError,
			Title:       payload.Title,
			Message:     payload.Message,
			Persistent:  true,
			ActionURL:   payload.ActionURL,
			ActionLabel: payload.ActionLabel,
		})
	case realtime.PriorityHigh:
		h.showToast(Toast{
			Severity:    SeverityWarning,
			Title:       payload.Title,
			Message:     payload.Message,
			ActionURL:   payload.ActionURL,
			ActionLabel: payload.ActionLabel,
		})
	}
}

func (h *DomainHandlers) HandleRealtimeUpdate(env realtime.Envelope) {
	var payload realtime.RealtimeUpdatePayload
	if err := env.Decode(&payload); err != nil {
		h.log.Warn("Undecodable realtime_update payload", "error", err)
		return
	}

	listKey, known := entityListKeys[payload.EntityType]
	if !known {
		// Unrecognized entity: drop everything rather than guess which
		// queries went stale.
		h.log.Debug("Unknown entity type, invalidating all queries", "entityType", payload.EntityType)
		h.cache.InvalidateAll()
	} else {
		keys := []QueryKey{listKey}
		if payload.EntityID != "" {
			detail := append(append(QueryKey{}, listKey...), "detail", payload.EntityID)
			keys = append(keys, detail)
		}
		h.cache.Invalidate(keys...)
	}

	switch payload.Action {
	case realtime.ActionStatusChanged:
		h.showToast(Toast{
			Severity: SeverityInfo,
			Title:    "Status updated",
			Message:  statusToastMessage(payload),
		})
	case realtime.ActionAssignmentChanged:
		// Assignment toasts only for the assignee.
		if h.localUser != nil && payload.TargetUserID != "" && payload.TargetUserID == h.localUser() {
			h.showToast(Toast{
				Severity: SeverityInfo,
				Title:    "New assignment",
				Message:  "You have been assigned to a " + entityLabel(payload.EntityType) + ".",
			})
		}
	}
}

func (h *DomainHandlers) HandlePresence(env realtime.Envelope) {
	var payload realtime.PresencePayload
	if err := env.Decode(&payload); err != nil {
		h.log.Warn("Undecodable presence payload", "error", err)
		return
	}
	userID := payload.UserID
	if userID == "" {
		userID = env.UserID
	}
	h.presence.Set(userID, payload.Status)
}

func (h *DomainHandlers) HandleTyping(env realtime.Envelope) {
	if h.OnTyping == nil {
		return
	}
	var payload realtime.TypingPayload
	if err := env.Decode(&payload); err != nil {
		return
	}
	if payload.UserID == "" {
		payload.UserID = env.UserID
	}
	h.OnTyping(payload)
}

func (h *DomainHandlers) HandleUploadProgress(env realtime.Envelope) {
	if h.OnUploadProgress == nil {
		return
	}
	var payload realtime.UploadProgressPayload
	if err := env.Decode(&payload); err != nil {
		return
	}
	h.OnUploadProgress(payload)
}

func (h *DomainHandlers) HandleRoomMessage(env realtime.Envelope) {
	if h.OnRoomMessage != nil {
		h.OnRoomMessage(env)
	}
}

func (h *DomainHandlers) showToast(t Toast) {
	if h.toaster != nil {
		h.toaster.Show(t)
	}
}

func statusToastMessage(payload realtime.RealtimeUpdatePayload) string {
	label := entityLabel(payload.EntityType)
	if payload.Status != "" {
		return "A " + label + " moved to " + payload.Status + "."
	}
	return "A " + label + " changed status."
}

func entityLabel(entityType string) string {
	switch entityType {
	case realtime.EntityProject:
		return "project"
	case realtime.EntityWorkEntry:
		return "work entry"
	case realtime.EntityMaterial:
		return "material order"
	case realtime.EntityHouse:
		return "house connection"
	case realtime.EntityAppointment:
		return "appointment"
	case realtime.EntityCrew:
		return "crew"
	default:
		return "record"
	}
}
