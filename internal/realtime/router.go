package realtime

import (
	"sync"

	"github.com/fibertrak/fibertrak-backend/internal/logger"
)

// Handler consumes one inbound envelope. Handlers run synchronously on the
// dispatching goroutine, in registration order.
type Handler func(Envelope)

// Subscription identifies one registration. Go functions are not comparable,
// so unsubscribing goes through the handle rather than function identity;
// subscribing the same function twice yields two registrations and two calls
// per dispatch.
type Subscription struct {
	msgType MessageType
	id      uint64
}

type registration struct {
	id uint64
	fn Handler
}

// Router is the pub/sub registry of the bus: message type -> ordered handler
// list. Dispatch snapshots the list under the lock, so a handler that
// unsubscribes itself (or anyone else) mid-dispatch does not perturb the
// in-flight dispatch.
type Router struct {
	mu     sync.Mutex
	log    *logger.Logger
	nextID uint64
	subs   map[MessageType][]registration
}

func NewRouter(log *logger.Logger) *Router {
	return &Router{
		log:  log.With("component", "Router"),
		subs: make(map[MessageType][]registration),
	}
}

func (r *Router) Subscribe(msgType MessageType, h Handler) *Subscription {
	if h == nil {
		return nil
	}
	msgType = msgType.Canonical()

	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	r.subs[msgType] = append(r.subs[msgType], registration{id: r.nextID, fn: h})
	return &Subscription{msgType: msgType, id: r.nextID}
}

func (r *Router) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	regs := r.subs[sub.msgType]
	for i, reg := range regs {
		if reg.id == sub.id {
			r.subs[sub.msgType] = append(regs[:i:i], regs[i+1:]...)
			break
		}
	}
	if len(r.subs[sub.msgType]) == 0 {
		delete(r.subs, sub.msgType)
	}
}

// Dispatch invokes every handler registered for the envelope's canonical
// type. A panicking handler is recovered and logged; the remaining handlers
// still run.
func (r *Router) Dispatch(env Envelope) {
	msgType := env.Type.Canonical()

	r.mu.Lock()
	regs := r.subs[msgType]
	snapshot := make([]registration, len(regs))
	copy(snapshot, regs)
	r.mu.Unlock()

	for _, reg := range snapshot {
		r.invoke(msgType, reg, env)
	}
}

func (r *Router) invoke(msgType MessageType, reg registration, env Envelope) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("Handler panicked during dispatch", "messageType", msgType, "panic", rec)
		}
	}()
	reg.fn(env)
}

// HandlerCount reports registrations for a type; used by the connection
// manager to decide whether an inbound type is wired at all.
func (r *Router) HandlerCount(msgType MessageType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs[msgType.Canonical()])
}

// Clear drops every registration. Called on explicit disconnect.
func (r *Router) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs = make(map[MessageType][]registration)
}
