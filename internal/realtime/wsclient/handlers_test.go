package wsclient

import (
	"strings"
	"sync"
	"testing"

	"github.com/fibertrak/fibertrak-backend/internal/realtime"
)

type recordCache struct {
	mu          sync.Mutex
	invalidated []QueryKey
	fullCount   int
	upserts     map[string]any
}

func newRecordCache() *recordCache {
	return &recordCache{upserts: make(map[string]any)}
}

func (rc *recordCache) Invalidate(keys ...QueryKey) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.invalidated = append(rc.invalidated, keys...)
}

func (rc *recordCache) InvalidateAll() {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.fullCount++
}

func (rc *recordCache) Upsert(key QueryKey, value any) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.upserts[strings.Join(key, "/")] = value
}

func (rc *recordCache) hasInvalidated(key QueryKey) bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	want := strings.Join(key, "/")
	for _, got := range rc.invalidated {
		if strings.Join(got, "/") == want {
			return true
		}
	}
	return false
}

func newTestHandlers(t *testing.T, localUser string) (*DomainHandlers, *recordCache, *recordToaster, *realtime.PresenceTracker) {
	t.Helper()
	cache := newRecordCache()
	toaster := &recordToaster{}
	presence := realtime.NewPresenceTracker()
	handlers := NewDomainHandlers(mustTestLogger(t), cache, toaster, presence, func() string { return localUser })
	return handlers, cache, toaster, presence
}

func dispatchEnvelope(t *testing.T, msgType realtime.MessageType, data any) realtime.Envelope {
	t.Helper()
	env, err := realtime.NewEnvelope(msgType, data)
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}
	return env
}

func TestUrgentNotificationRaisesPersistentToastAndInvalidates(t *testing.T) {
	handlers, cache, toaster, _ := newTestHandlers(t, "u1")

	handlers.HandleNotification(dispatchEnvelope(t, realtime.MessageNotification, realtime.NotificationPayload{
		ID:       "n1",
		UserID:   "u1",
		Priority: realtime.PriorityUrgent,
		Title:    "X",
		Message:  "Y",
	}))

	toasts := toaster.snapshot()
	if len(toasts) != 1 {
		t.Fatalf("toast count: want=1 got=%d", len(toasts))
	}
	if !toasts[0].Persistent {
		t.Fatalf("urgent toast must be persistent")
	}
	if toasts[0].Title != "X" || toasts[0].Message != "Y" {
		t.Fatalf("toast content: got title=%q message=%q", toasts[0].Title, toasts[0].Message)
	}

	if !cache.hasInvalidated(QueryKey{"notifications", "u1"}) {
		t.Fatalf("notification list for u1 was not invalidated: %v", cache.invalidated)
	}
	if !cache.hasInvalidated(QueryKey{"notifications", "unread-count", "u1"}) {
		t.Fatalf("unread count for u1 was not invalidated: %v", cache.invalidated)
	}
	if _, ok := cache.upserts["notifications/detail/n1"]; !ok {
		t.Fatalf("notification n1 was not upserted into the cache")
	}
}

func TestHighPriorityToastAutoDismissesAndLowStaysSilent(t *testing.T) {
	handlers, _, toaster, _ := newTestHandlers(t, "u1")

	handlers.HandleNotification(dispatchEnvelope(t, realtime.MessageNotification, realtime.NotificationPayload{
		ID:       "n2",
		UserID:   "u1",
		Priority: realtime.PriorityHigh,
		Title:    "High",
	}))
	handlers.HandleNotification(dispatchEnvelope(t, realtime.MessageNotification, realtime.NotificationPayload{
		ID:       "n3",
		UserID:   "u1",
		Priority: realtime.PriorityNormal,
		Title:    "Normal",
	}))
	handlers.HandleNotification(dispatchEnvelope(t, realtime.MessageNotification, realtime.NotificationPayload{
		ID:       "n4",
		UserID:   "u1",
		Priority: realtime.PriorityLow,
		Title:    "Low",
	}))

	toasts := toaster.snapshot()
	if len(toasts) != 1 {
		t.Fatalf("only high/urgent raise toasts: want=1 got=%d", len(toasts))
	}
	if toasts[0].Persistent {
		t.Fatalf("high priority toast must auto-dismiss")
	}
}

func TestWorkEntryUpdateInvalidatesListAndDetail(t *testing.T) {
	handlers, cache, _, _ := newTestHandlers(t, "u1")

	handlers.HandleRealtimeUpdate(dispatchEnvelope(t, realtime.MessageRealtimeUpdate, realtime.RealtimeUpdatePayload{
		EntityType: realtime.EntityWorkEntry,
		EntityID:   "we-7",
		Action:     realtime.ActionUpdated,
	}))

	if !cache.hasInvalidated(QueryKey{"work-entries"}) {
		t.Fatalf("work-entries list key was not invalidated: %v", cache.invalidated)
	}
	if !cache.hasInvalidated(QueryKey{"work-entries", "detail", "we-7"}) {
		t.Fatalf("work-entries detail key was not invalidated: %v", cache.invalidated)
	}
	if cache.fullCount != 0 {
		t.Fatalf("known entity must not trigger a full invalidation")
	}
}

func TestUnknownEntityTypeTriggersFullInvalidation(t *testing.T) {
	handlers, cache, _, _ := newTestHandlers(t, "u1")

	handlers.HandleRealtimeUpdate(dispatchEnvelope(t, realtime.MessageRealtimeUpdate, realtime.RealtimeUpdatePayload{
		EntityType: "foo",
		EntityID:   "x",
	}))

	if cache.fullCount != 1 {
		t.Fatalf("unknown entity must trigger exactly one full invalidation, got=%d", cache.fullCount)
	}
	if len(cache.invalidated) != 0 {
		t.Fatalf("unknown entity must not invalidate scoped keys, got=%v", cache.invalidated)
	}
}

func TestStatusChangeRaisesToast(t *testing.T) {
	handlers, _, toaster, _ := newTestHandlers(t, "u1")

	handlers.HandleRealtimeUpdate(dispatchEnvelope(t, realtime.MessageRealtimeUpdate, realtime.RealtimeUpdatePayload{
		EntityType: realtime.EntityProject,
		EntityID:   "p1",
		Action:     realtime.ActionStatusChanged,
		Status:     "completed",
	}))

	toasts := toaster.snapshot()
	if len(toasts) != 1 || toasts[0].Severity != SeverityInfo {
		t.Fatalf("status change toast: got=%v", toasts)
	}
	if !strings.Contains(toasts[0].Message, "completed") {
		t.Fatalf("status toast should name the new status: %q", toasts[0].Message)
	}
}

func TestAssignmentToastOnlyForTargetUser(t *testing.T) {
	handlers, _, toaster, _ := newTestHandlers(t, "u1")

	// Assignment targeting someone else: invalidation only, no toast.
	handlers.HandleRealtimeUpdate(dispatchEnvelope(t, realtime.MessageRealtimeUpdate, realtime.RealtimeUpdatePayload{
		EntityType:   realtime.EntityAppointment,
		EntityID:     "a1",
		Action:       realtime.ActionAssignmentChanged,
		TargetUserID: "u2",
	}))
	if len(toaster.snapshot()) != 0 {
		t.Fatalf("assignment toast shown to a non-target user")
	}

	handlers.HandleRealtimeUpdate(dispatchEnvelope(t, realtime.MessageRealtimeUpdate, realtime.RealtimeUpdatePayload{
		EntityType:   realtime.EntityAppointment,
		EntityID:     "a1",
		Action:       realtime.ActionAssignmentChanged,
		TargetUserID: "u1",
	}))
	toasts := toaster.snapshot()
	if len(toasts) != 1 {
		t.Fatalf("assignment toast missing for target user, got=%d", len(toasts))
	}
}

func TestPresenceHandlerUpdatesTracker(t *testing.T) {
	handlers, _, _, presence := newTestHandlers(t, "u1")

	handlers.HandlePresence(dispatchEnvelope(t, realtime.MessageUserStatus, realtime.PresencePayload{
		UserID: "u9",
		Status: realtime.PresenceAway,
	}))

	entry, ok := presence.Get("u9")
	if !ok || entry.Status != realtime.PresenceAway {
		t.Fatalf("presence entry: ok=%v status=%s", ok, entry.Status)
	}
}

func TestTypingForwardedWithoutCaching(t *testing.T) {
	handlers, cache, _, _ := newTestHandlers(t, "u1")

	var got realtime.TypingPayload
	handlers.OnTyping = func(payload realtime.TypingPayload) { got = payload }

	handlers.HandleTyping(dispatchEnvelope(t, realtime.MessageTyping, realtime.TypingPayload{
		UserID: "u3",
		Room:   "project:p1",
		Typing: true,
	}))

	if got.UserID != "u3" || !got.Typing {
		t.Fatalf("typing payload not forwarded: %+v", got)
	}
	if len(cache.invalidated) != 0 || cache.fullCount != 0 || len(cache.upserts) != 0 {
		t.Fatalf("typing indicators must not touch the cache")
	}
}

func TestMalformedPayloadIsToleratedByHandlers(t *testing.T) {
	handlers, cache, toaster, _ := newTestHandlers(t, "u1")

	env := realtime.Envelope{Type: realtime.MessageRealtimeUpdate, Data: []byte(`{"entity_type":42}`)}
	handlers.HandleRealtimeUpdate(env)

	// Undecodable payloads are dropped without a toast or invalidation.
	if cache.fullCount != 0 || len(cache.invalidated) != 0 || len(toaster.snapshot()) != 0 {
		t.Fatalf("malformed payload caused side effects")
	}
}

func TestRegisterWiresAllDomainHandlers(t *testing.T) {
	handlers, cache, _, presence := newTestHandlers(t, "u1")
	router := realtime.NewRouter(mustTestLogger(t))

	subs := handlers.Register(router)
	if len(subs) != 6 {
		t.Fatalf("registered handler count: want=6 got=%d", len(subs))
	}

	router.Dispatch(dispatchEnvelope(t, realtime.MessageRealtimeUpdate, realtime.RealtimeUpdatePayload{
		EntityType: realtime.EntityHouse,
	}))
	if !cache.hasInvalidated(QueryKey{"houses"}) {
		t.Fatalf("registered realtime_update handler did not run")
	}

	// Alias flows through the same registration.
	router.Dispatch(dispatchEnvelope(t, realtime.MessageUserPresenceAlias, realtime.PresencePayload{
		UserID: "u5",
		Status: realtime.PresenceOnline,
	}))
	if _, ok := presence.Get("u5"); !ok {
		t.Fatalf("presence alias did not reach the presence handler")
	}
}
