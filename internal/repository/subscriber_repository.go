package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"ops-dashboard/internal/model"
)

// SubscriberRepository tracks chats that receive the board digest.
type SubscriberRepository struct {
	db *gorm.DB
}

func NewSubscriberRepository(db *gorm.DB) *SubscriberRepository {
	return &SubscriberRepository{db: db}
}

// Upsert finds or creates a subscriber by Telegram id and refreshes its profile.
func (r *SubscriberRepository) Upsert(ctx context.Context, telegramID, chatID int64, firstName, username string) (*model.Subscriber, error) {
	var sub model.Subscriber
	db := r.db.WithContext(ctx)
	err := db.Where("telegram_id = ?", telegramID).First(&sub).Error
	switch {
	case err == nil:
		updates := map[string]interface{}{
			"chat_id":    chatID,
			"first_name": firstName,
			"username":   username,
		}
		if err := db.Model(&sub).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("update subscriber: %w", err)
		}
		sub.ChatID, sub.FirstName, sub.Username = chatID, firstName, username
		return &sub, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		sub = model.Subscriber{
			TelegramID:    telegramID,
			ChatID:        chatID,
			FirstName:     firstName,
			Username:      username,
			DigestEnabled: true,
		}
		if err := db.Create(&sub).Error; err != nil {
			return nil, fmt.Errorf("create subscriber: %w", err)
		}
		return &sub, nil
	default:
		return nil, fmt.Errorf("find subscriber: %w", err)
	}
}

func (r *SubscriberRepository) SetDigest(ctx context.Context, telegramID int64, enabled bool) error {
	res := r.db.WithContext(ctx).Model(&model.Subscriber{}).Where("telegram_id = ?", telegramID).
		Update("digest_enabled", enabled)
	if res.Error != nil {
		return fmt.Errorf("update subscriber digest: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *SubscriberRepository) ListDigest(ctx context.Context) ([]model.Subscriber, error) {
	var subs []model.Subscriber
	if err := r.db.WithContext(ctx).Where("digest_enabled = ?", true).Find(&subs).Error; err != nil {
		return nil, fmt.Errorf("list subscribers: %w", err)
	}
	return subs, nil
}
