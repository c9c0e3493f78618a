package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"taskwise/internal/push"
	"taskwise/internal/repository"
)

var (
	ErrUnknownUser      = errors.New("user not found")
	ErrNotificationsOff = errors.New("notifications are not enabled for this user")
	ErrNoPushAddress    = errors.New("no push address registered for this user")
	ErrNoSender         = errors.New("push delivery is not configured")
)

// Sessions stops the in-process due-time notifications of a user.
type Sessions interface {
	Disable(userID string)
}

// NotificationService owns the opt-in preference and the push registry.
type NotificationService struct {
	userRepo *repository.UserRepository
	pushRepo *repository.PushRepository
	sessions Sessions
	sender   push.Sender
	log      *zap.Logger
}

type NotificationOption func(*NotificationService)

// WithSessions makes an opt-out also stop the user's notification session.
func WithSessions(s Sessions) NotificationOption {
	return func(n *NotificationService) { n.sessions = s }
}

// WithSender enables SendTest.
func WithSender(s push.Sender) NotificationOption {
	return func(n *NotificationService) { n.sender = s }
}

func NewNotificationService(userRepo *repository.UserRepository, pushRepo *repository.PushRepository, log *zap.Logger, opts ...NotificationOption) *NotificationService {
	if log == nil {
		log = zap.NewNop()
	}
	s := &NotificationService{userRepo: userRepo, pushRepo: pushRepo, log: log}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetEnabled stores the preference. Turning notifications off also drops
// every registered push address of the user and stops its session.
func (s *NotificationService) SetEnabled(ctx context.Context, userID string, enabled bool) error {
	if err := s.userRepo.SetNotificationsEnabled(ctx, userID, enabled); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrUnknownUser
		}
		return err
	}
	if !enabled {
		if s.sessions != nil {
			s.sessions.Disable(userID)
		}
		if err := s.pushRepo.UnregisterAll(ctx, userID); err != nil {
			return fmt.Errorf("disable notifications: %w", err)
		}
	}
	s.log.Info("notification preference changed", zap.String("user_id", userID), zap.Bool("enabled", enabled))
	return nil
}

func (s *NotificationService) Enabled(ctx context.Context, userID string) (bool, error) {
	return s.userRepo.NotificationsEnabled(ctx, userID)
}

func (s *NotificationService) RegisterAddress(ctx context.Context, userID, address string) error {
	if address == "" {
		return invalid("address", "address is required")
	}
	return s.pushRepo.RegisterAddress(ctx, userID, address)
}

// SendTest pushes a fixed message to the user's current address so the
// delivery path can be checked end to end.
func (s *NotificationService) SendTest(ctx context.Context, userID string) error {
	if s.sender == nil {
		return ErrNoSender
	}
	enabled, err := s.userRepo.NotificationsEnabled(ctx, userID)
	if err != nil {
		return err
	}
	if !enabled {
		return ErrNotificationsOff
	}
	address, ok, err := s.pushRepo.ResolveAddress(ctx, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNoPushAddress
	}
	err = s.sender.Send(ctx, address, push.Message{
		Title: "Test Notification",
		Body:  "This is a test notification from TaskWise!",
		Tag:   "test",
	})
	if errors.Is(err, push.ErrInvalidAddress) {
		if rmErr := s.pushRepo.RemoveAddress(ctx, address); rmErr != nil {
			s.log.Warn("remove invalid address", zap.String("user_id", userID), zap.Error(rmErr))
		}
		return ErrNoPushAddress
	}
	if err != nil {
		return fmt.Errorf("send test notification: %w", err)
	}
	s.log.Info("test notification sent", zap.String("user_id", userID))
	return nil
}
