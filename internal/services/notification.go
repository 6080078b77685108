package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/fibertrak/fibertrak-backend/internal/logger"
	"github.com/fibertrak/fibertrak-backend/internal/realtime"
	"github.com/fibertrak/fibertrak-backend/internal/repos"
	"github.com/fibertrak/fibertrak-backend/internal/types"
)

type NotificationService interface {
	Create(ctx context.Context, notification *types.Notification) (*types.Notification, error)
	ListForUser(ctx context.Context, userID uuid.UUID, limit int) ([]*types.Notification, error)
	MarkRead(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) error
	UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error)
}

type notificationService struct {
	db               *gorm.DB
	log              *logger.Logger
	notificationRepo repos.NotificationRepo
	emit             Emitter
}

func NewNotificationService(db *gorm.DB, log *logger.Logger, notificationRepo repos.NotificationRepo, emit Emitter) NotificationService {
	serviceLog := log.With("service", "NotificationService")
	return &notificationService{
		db:               db,
		log:              serviceLog,
		notificationRepo: notificationRepo,
		emit:             emit,
	}
}

// Create persists the notification, then pushes the copy to the user's room.
// The push is best-effort: a failed emit leaves the row behind for the next
// ordinary fetch.
func (ns *notificationService) Create(ctx context.Context, notification *types.Notification) (*types.Notification, error) {
	if notification == nil || notification.UserID == uuid.Nil {
		return nil, fmt.Errorf("notification requires a user id")
	}
	if notification.Priority == "" {
		notification.Priority = string(realtime.PriorityNormal)
	}
	notification.ID = uuid.New()

	created, err := ns.notificationRepo.Create(ctx, nil, []*types.Notification{notification})
	if err != nil {
		return nil, fmt.Errorf("failed to create notification: %w", err)
	}
	notification = created[0]

	ns.publish(ctx, notification)
	return notification, nil
}

func (ns *notificationService) publish(ctx context.Context, notification *types.Notification) {
	if ns.emit == nil {
		return
	}
	env, err := realtime.NewEnvelope(realtime.MessageNotification, realtime.NotificationPayload{
		ID:          notification.ID.String(),
		UserID:      notification.UserID.String(),
		Category:    notification.Category,
		Priority:    realtime.Priority(notification.Priority),
		Title:       notification.Title,
		Message:     notification.Message,
		Read:        notification.Read,
		ActionURL:   notification.ActionURL,
		ActionLabel: notification.ActionLabel,
	})
	if err != nil {
		ns.log.Warn("Failed to encode notification envelope", "error", err)
		return
	}
	env.UserID = notification.UserID.String()
	env.Room = realtime.UserRoom(notification.UserID.String())
	if err := ns.emit.Emit(ctx, env); err != nil {
		ns.log.Warn("Failed to emit notification", "notificationID", notification.ID, "error", err)
	}
}

func (ns *notificationService) ListForUser(ctx context.Context, userID uuid.UUID, limit int) ([]*types.Notification, error) {
	return ns.notificationRepo.ListByUser(ctx, nil, userID, limit)
}

// MarkRead flips the rows and pushes a realtime_update so other open
// sessions of the same user refresh their unread badge.
func (ns *notificationService) MarkRead(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) error {
	updated, err := ns.notificationRepo.MarkRead(ctx, nil, userID, ids)
	if err != nil {
		return fmt.Errorf("failed to mark notifications read: %w", err)
	}
	if updated == 0 || ns.emit == nil {
		return nil
	}

	env, err := realtime.NewEnvelope(realtime.MessageRealtimeUpdate, realtime.RealtimeUpdatePayload{
		EntityType: "notification",
		Action:     realtime.ActionUpdated,
	})
	if err != nil {
		return nil
	}
	env.UserID = userID.String()
	env.Room = realtime.UserRoom(userID.String())
	if err := ns.emit.Emit(ctx, env); err != nil {
		ns.log.Warn("Failed to emit read-state update", "userID", userID, "error", err)
	}
	return nil
}

func (ns *notificationService) UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	return ns.notificationRepo.UnreadCount(ctx, nil, userID)
}
