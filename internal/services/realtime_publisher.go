package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/fibertrak/fibertrak-backend/internal/logger"
	"github.com/fibertrak/fibertrak-backend/internal/realtime"
)

// RealtimePublisher is the seam the CRUD layer calls after committing an
// entity change. It fans a realtime_update envelope out to the project room
// so connected clients invalidate the matching queries.
type RealtimePublisher interface {
	EntityChanged(ctx context.Context, projectID uuid.UUID, update realtime.RealtimeUpdatePayload)
	StatusChanged(ctx context.Context, projectID uuid.UUID, entityType string, entityID uuid.UUID, status string)
	AssignmentChanged(ctx context.Context, projectID uuid.UUID, entityType string, entityID, assigneeID uuid.UUID)
}

type realtimePublisher struct {
	log  *logger.Logger
	emit Emitter
}

func NewRealtimePublisher(log *logger.Logger, emit Emitter) RealtimePublisher {
	return &realtimePublisher{
		log:  log.With("service", "RealtimePublisher"),
		emit: emit,
	}
}

func (rp *realtimePublisher) EntityChanged(ctx context.Context, projectID uuid.UUID, update realtime.RealtimeUpdatePayload) {
	if rp.emit == nil || update.EntityType == "" {
		return
	}
	if update.ProjectID == "" && projectID != uuid.Nil {
		update.ProjectID = projectID.String()
	}
	env, err := realtime.NewEnvelope(realtime.MessageRealtimeUpdate, update)
	if err != nil {
		rp.log.Warn("Failed to encode realtime_update envelope", "error", err)
		return
	}
	env.ProjectID = update.ProjectID
	env.Room = realtime.ProjectRoom(update.ProjectID)
	if err := rp.emit.Emit(ctx, env); err != nil {
		rp.log.Warn("Failed to emit realtime_update", "entityType", update.EntityType, "error", err)
	}
}

func (rp *realtimePublisher) StatusChanged(ctx context.Context, projectID uuid.UUID, entityType string, entityID uuid.UUID, status string) {
	rp.EntityChanged(ctx, projectID, realtime.RealtimeUpdatePayload{
		EntityType: entityType,
		EntityID:   entityID.String(),
		Action:     realtime.ActionStatusChanged,
		Status:     status,
	})
}

func (rp *realtimePublisher) AssignmentChanged(ctx context.Context, projectID uuid.UUID, entityType string, entityID, assigneeID uuid.UUID) {
	rp.EntityChanged(ctx, projectID, realtime.RealtimeUpdatePayload{
		EntityType:   entityType,
		EntityID:     entityID.String(),
		Action:       realtime.ActionAssignmentChanged,
		TargetUserID: assigneeID.String(),
	})
}
