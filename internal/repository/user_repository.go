package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"taskwise/internal/model"
)

// UserRepository handles CRUD for users.
type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// UpsertFromTelegram finds or creates a user based on TelegramID and updates basic profile info.
func (r *UserRepository) UpsertFromTelegram(ctx context.Context, telegramID int64, firstName, lastName, username string) (*model.User, error) {
	var user model.User
	db := r.db.WithContext(ctx)
	err := db.Where("telegram_id = ?", telegramID).First(&user).Error
	switch {
	case err == nil:
		updates := map[string]interface{}{
			"first_name": firstName,
			"last_name":  lastName,
			"username":   username,
		}
		if err := db.Model(&user).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("update user: %w", err)
		}
		return &user, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		user = model.User{
			TelegramID: &telegramID,
			FirstName:  firstName,
			LastName:   lastName,
			Username:   username,
		}
		if err := db.Create(&user).Error; err != nil {
			return nil, fmt.Errorf("create user: %w", err)
		}
		return &user, nil
	default:
		return nil, fmt.Errorf("find user: %w", err)
	}
}

// Ensure returns the user with the given external id, creating it on first use.
func (r *UserRepository) Ensure(ctx context.Context, userID string) (*model.User, error) {
	user := model.User{ID: userID}
	if err := r.db.WithContext(ctx).Where(model.User{ID: userID}).FirstOrCreate(&user).Error; err != nil {
		return nil, fmt.Errorf("ensure user: %w", err)
	}
	return &user, nil
}

func (r *UserRepository) FindByID(ctx context.Context, userID string) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).Where("id = ?", userID).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) FindByTelegramID(ctx context.Context, telegramID int64) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).Where("telegram_id = ?", telegramID).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) SetNotificationsEnabled(ctx context.Context, userID string, enabled bool) error {
	res := r.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", userID).
		Update("notifications_enabled", enabled)
	if res.Error != nil {
		return fmt.Errorf("update notification preference: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// NotificationsEnabled reports the stored preference. A missing user counts as opted out.
func (r *UserRepository) NotificationsEnabled(ctx context.Context, userID string) (bool, error) {
	user, err := r.FindByID(ctx, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load notification preference: %w", err)
	}
	return user.NotificationsEnabled, nil
}

// ListNotifiable returns every user who opted in to notifications.
func (r *UserRepository) ListNotifiable(ctx context.Context) ([]model.User, error) {
	var users []model.User
	if err := r.db.WithContext(ctx).Where("notifications_enabled = ?", true).Find(&users).Error; err != nil {
		return nil, fmt.Errorf("list notifiable users: %w", err)
	}
	return users, nil
}
