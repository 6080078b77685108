package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/fibertrak/fibertrak-backend/internal/logger"
	"github.com/fibertrak/fibertrak-backend/internal/types"
)

type NotificationRepo interface {
	Create(ctx context.Context, tx *gorm.DB, notifications []*types.Notification) ([]*types.Notification, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.Notification, error)
	ListByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID, limit int) ([]*types.Notification, error)
	MarkRead(ctx context.Context, tx *gorm.DB, userID uuid.UUID, ids []uuid.UUID) (int64, error)
	UnreadCount(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (int64, error)
}

type notificationRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewNotificationRepo(db *gorm.DB, baseLog *logger.Logger) NotificationRepo {
	repoLog := baseLog.With("repo", "NotificationRepo")
	return &notificationRepo{db: db, log: repoLog}
}

func (nr *notificationRepo) Create(ctx context.Context, tx *gorm.DB, notifications []*types.Notification) ([]*types.Notification, error) {
	transaction := tx
	if transaction == nil {
		transaction = nr.db
	}

	if len(notifications) == 0 {
		return []*types.Notification{}, nil
	}

	if err := transaction.WithContext(ctx).Create(&notifications).Error; err != nil {
		return nil, err
	}

	return notifications, nil
}

func (nr *notificationRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.Notification, error) {
	transaction := tx
	if transaction == nil {
		transaction = nr.db
	}

	var results []*types.Notification

	if len(ids) == 0 {
		return results, nil
	}

	if err := transaction.WithContext(ctx).
		Where("id IN ?", ids).
		Find(&results).Error; err != nil {
		return nil, err
	}

	return results, nil
}

func (nr *notificationRepo) ListByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID, limit int) ([]*types.Notification, error) {
	transaction := tx
	if transaction == nil {
		transaction = nr.db
	}

	if limit <= 0 {
		limit = 50
	}

	var results []*types.Notification
	if err := transaction.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&results).Error; err != nil {
		return nil, err
	}

	return results, nil
}

func (nr *notificationRepo) MarkRead(ctx context.Context, tx *gorm.DB, userID uuid.UUID, ids []uuid.UUID) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = nr.db
	}

	if len(ids) == 0 {
		return 0, nil
	}

	result := transaction.WithContext(ctx).
		Model(&types.Notification{}).
		Where("user_id = ? AND id IN ?", userID, ids).
		Update("read", true)
	if result.Error != nil {
		return 0, result.Error
	}

	return result.RowsAffected, nil
}

func (nr *notificationRepo) UnreadCount(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = nr.db
	}

	var count int64
	if err := transaction.WithContext(ctx).
		Model(&types.Notification{}).
		Where("user_id = ? AND read = ?", userID, false).
		Count(&count).Error; err != nil {
		return 0, err
	}

	return count, nil
}
