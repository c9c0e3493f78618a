package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"taskwise/internal/model"
)

// PushRepository is the registry of push delivery addresses.
type PushRepository struct {
	db *gorm.DB
}

func NewPushRepository(db *gorm.DB) *PushRepository {
	return &PushRepository{db: db}
}

// RegisterAddress binds address to userID, moving it if another user held it.
// Registering again makes the address the user's most recent one.
func (r *PushRepository) RegisterAddress(ctx context.Context, userID, address string) error {
	addr := model.PushAddress{Address: address, UserID: userID}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "address"}},
		DoUpdates: clause.AssignmentColumns([]string{"user_id", "created_at"}),
	}).Create(&addr).Error
	if err != nil {
		return fmt.Errorf("register push address: %w", err)
	}
	return nil
}

func (r *PushRepository) UnregisterAll(ctx context.Context, userID string) error {
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&model.PushAddress{}).Error; err != nil {
		return fmt.Errorf("unregister push addresses: %w", err)
	}
	return nil
}

// ResolveAddress returns the most recently registered address of the user.
func (r *PushRepository) ResolveAddress(ctx context.Context, userID string) (string, bool, error) {
	var addr model.PushAddress
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).
		Order("created_at DESC").
		First(&addr).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("resolve push address: %w", err)
	}
	return addr.Address, true, nil
}

func (r *PushRepository) RemoveAddress(ctx context.Context, address string) error {
	if err := r.db.WithContext(ctx).Where("address = ?", address).Delete(&model.PushAddress{}).Error; err != nil {
		return fmt.Errorf("remove push address: %w", err)
	}
	return nil
}
