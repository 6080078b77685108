package realtime

import (
	"encoding/json"
	"time"
)

// MessageType tags every envelope on the wire. Inbound aliases from older
// clients are folded into their canonical form before dispatch.
type MessageType string

const (
	// Server -> client
	MessageNotification   MessageType = "notification"
	MessageRealtimeUpdate MessageType = "realtime_update"
	MessageUserStatus     MessageType = "user_status"
	MessageTyping         MessageType = "typing_indicator"
	MessageUploadProgress MessageType = "upload_progress"
	MessageRoomMessage    MessageType = "room_message"

	// Aliases still emitted by deployed producers.
	MessageRealtimeUpdateAlias MessageType = "real_time_update"
	MessageUserPresenceAlias   MessageType = "user_presence"
	MessageUserTypingAlias     MessageType = "user_typing"

	// Client -> server
	MessageJoinRoom             MessageType = "join_room"
	MessageLeaveRoom            MessageType = "leave_room"
	MessageTypingStart          MessageType = "typing_start"
	MessageTypingStop           MessageType = "typing_stop"
	MessageMarkNotificationRead MessageType = "mark_notification_read"
	MessageLocationUpdate       MessageType = "location_update"
	MessageChat                 MessageType = "message"
	MessageCreateNotification   MessageType = "create_notification"
	MessageRealtimeEvent        MessageType = "realtime_event"
)

// Canonical folds wire aliases into the message type handlers subscribe to.
func (t MessageType) Canonical() MessageType {
	switch t {
	case MessageRealtimeUpdateAlias:
		return MessageRealtimeUpdate
	case MessageUserPresenceAlias:
		return MessageUserStatus
	case MessageUserTypingAlias:
		return MessageTyping
	default:
		return t
	}
}

// Envelope is the single wire frame for the realtime bus. Data is left raw so
// the router can dispatch on Type without knowing every payload shape; unknown
// types travel through untouched.
type Envelope struct {
	Type      MessageType     `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	UserID    string          `json:"userId,omitempty"`
	ProjectID string          `json:"projectId,omitempty"`
	Room      string          `json:"room,omitempty"`
}

func NewEnvelope(msgType MessageType, data any) (Envelope, error) {
	env := Envelope{Type: msgType, Timestamp: time.Now().UTC()}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return Envelope{}, err
		}
		env.Data = raw
	}
	return env, nil
}

// Decode unmarshals the payload into v. Handlers tolerate partial payloads;
// absent fields decode to zero values rather than failing a validation stage.
func (e Envelope) Decode(v any) error {
	if len(e.Data) == 0 {
		return nil
	}
	return json.Unmarshal(e.Data, v)
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// NotificationPayload mirrors the persisted notification row; the durable
// copy lives in postgres and is fetched over plain HTTP, this is the push copy.
type NotificationPayload struct {
	ID          string   `json:"id"`
	UserID      string   `json:"user_id"`
	Category    string   `json:"category"`
	Priority    Priority `json:"priority"`
	Title       string   `json:"title"`
	Message     string   `json:"message"`
	Read        bool     `json:"read"`
	ActionURL   string   `json:"action_url,omitempty"`
	ActionLabel string   `json:"action_label,omitempty"`
}

// Entity types carried by realtime_update payloads.
const (
	EntityProject     = "project"
	EntityWorkEntry   = "work_entry"
	EntityMaterial    = "material"
	EntityHouse       = "house"
	EntityAppointment = "appointment"
	EntityCrew        = "crew"
)

// Actions carried by realtime_update payloads.
const (
	ActionCreated           = "created"
	ActionUpdated           = "updated"
	ActionDeleted           = "deleted"
	ActionStatusChanged     = "status_changed"
	ActionAssignmentChanged = "assignment_changed"
)

// RealtimeUpdatePayload is a best-effort "something changed, go refetch"
// signal. It carries no delivery or ordering guarantee.
type RealtimeUpdatePayload struct {
	EntityType   string `json:"entity_type"`
	EntityID     string `json:"entity_id,omitempty"`
	Action       string `json:"action,omitempty"`
	ProjectID    string `json:"project_id,omitempty"`
	TargetUserID string `json:"target_user_id,omitempty"`
	Status       string `json:"status,omitempty"`
}

type PresencePayload struct {
	UserID string         `json:"user_id"`
	Status PresenceStatus `json:"status"`
}

type TypingPayload struct {
	UserID string `json:"user_id"`
	Room   string `json:"room,omitempty"`
	Typing bool   `json:"typing"`
}

type UploadProgressPayload struct {
	UploadID string `json:"upload_id"`
	FileName string `json:"file_name,omitempty"`
	Percent  int    `json:"percent"`
	Done     bool   `json:"done,omitempty"`
	Error    string `json:"error,omitempty"`
}

type LocationPayload struct {
	UserID    string  `json:"user_id,omitempty"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Accuracy  float64 `json:"accuracy,omitempty"`
}

type MarkReadPayload struct {
	NotificationID string `json:"notification_id"`
}

type RoomMessagePayload struct {
	Room    string          `json:"room,omitempty"`
	Body    json.RawMessage `json:"body,omitempty"`
	Sender  string          `json:"sender,omitempty"`
	Subject string          `json:"subject,omitempty"`
}
