package services

import (
	"context"

	"github.com/fibertrak/fibertrak-backend/internal/clients/redis"
	"github.com/fibertrak/fibertrak-backend/internal/realtime"
)

// Emitter is how services hand envelopes to the realtime fan-out. In a
// multi-instance deployment this is the redis bus (the forwarder loops the
// envelope back into every instance's hub); without redis it is the local hub
// directly.
type Emitter interface {
	Emit(ctx context.Context, env realtime.Envelope) error
}

type busEmitter struct {
	bus redis.Bus
}

func NewBusEmitter(bus redis.Bus) Emitter {
	return &busEmitter{bus: bus}
}

func (e *busEmitter) Emit(ctx context.Context, env realtime.Envelope) error {
	return e.bus.Publish(ctx, env)
}

type hubEmitter struct {
	hub *realtime.Hub
}

func NewHubEmitter(hub *realtime.Hub) Emitter {
	return &hubEmitter{hub: hub}
}

func (e *hubEmitter) Emit(_ context.Context, env realtime.Envelope) error {
	e.hub.Broadcast(env)
	return nil
}
