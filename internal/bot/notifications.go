package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"taskwise/internal/notify"
	"taskwise/internal/push"
	"taskwise/internal/service"
)

func (b *Bot) handleNotify(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}

	switch strings.ToLower(strings.TrimSpace(msg.CommandArguments())) {
	case "on":
		if err := b.notif.SetEnabled(ctx, user.ID, true); err != nil {
			return err
		}
		if err := b.notif.RegisterAddress(ctx, user.ID, chatAddress(msg.Chat.ID)); err != nil {
			return err
		}
		if err := b.startSession(ctx, user.ID, msg.Chat.ID); err != nil {
			b.log.Warn("start notification session", zap.String("user_id", user.ID), zap.Error(err))
		}
		return b.sendText(msg.Chat.ID, "🔔 Reminders are on. I will ping you a day ahead and when a task is due.")
	case "off":
		if err := b.notif.SetEnabled(ctx, user.ID, false); err != nil {
			return err
		}
		return b.sendText(msg.Chat.ID, "🔕 Reminders are off.")
	case "test":
		err := b.notif.SendTest(ctx, user.ID)
		switch {
		case errors.Is(err, service.ErrNotificationsOff):
			return b.sendText(msg.Chat.ID, "Reminders are off. Turn them on with /notify on first.")
		case errors.Is(err, service.ErrNoPushAddress):
			return b.sendText(msg.Chat.ID, "I have no chat to deliver to. Run /notify on again.")
		case err != nil:
			return err
		}
		return nil
	case "":
		state := "off"
		if user.NotificationsEnabled {
			state = "on"
		}
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Reminders are %s. Use /notify on, /notify off or /notify test.", state))
	default:
		return b.sendText(msg.Chat.ID, "Use /notify on, /notify off or /notify test.")
	}
}

// startSession arms due-time notifications for userID, delivered to chatID.
func (b *Bot) startSession(ctx context.Context, userID string, chatID int64) error {
	if b.sessions == nil {
		return nil
	}
	address := chatAddress(chatID)
	notifier := notify.NotifierFunc(func(ctx context.Context, n notify.Notification) error {
		err := b.sender.Send(ctx, address, push.Message{Title: n.Title, Body: n.Body, Tag: n.Tag})
		if errors.Is(err, push.ErrInvalidAddress) {
			b.log.Warn("chat unreachable, stopping notifications", zap.String("user_id", userID))
			go b.sessions.Disable(userID)
		}
		return err
	})
	return b.sessions.Enable(ctx, userID, notifier)
}

// RestoreSessions re-arms due-time notifications for every opted-in user
// after a restart.
func (b *Bot) RestoreSessions(ctx context.Context) error {
	if b.sessions == nil {
		return nil
	}
	users, err := b.users.ListNotifiable(ctx)
	if err != nil {
		return err
	}
	for _, user := range users {
		if user.TelegramID == nil {
			continue
		}
		if err := b.startSession(ctx, user.ID, *user.TelegramID); err != nil {
			b.log.Warn("restore session", zap.String("user_id", user.ID), zap.Error(err))
		}
	}
	return nil
}

// SendDailyDigests sends the morning summary to every opted-in user.
func (b *Bot) SendDailyDigests(ctx context.Context) error {
	users, err := b.users.ListNotifiable(ctx)
	if err != nil {
		return err
	}
	now := b.clock()
	for _, user := range users {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if user.TelegramID == nil {
			continue
		}
		text, err := b.digest.DailySummary(ctx, user.ID, now)
		if err != nil {
			b.log.Warn("build digest", zap.String("user_id", user.ID), zap.Error(err))
			continue
		}
		if err := b.sendText(*user.TelegramID, text); err != nil {
			b.log.Warn("send digest", zap.String("user_id", user.ID), zap.Error(err))
		}
	}
	return nil
}
