package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"taskwise/internal/analytics"
	"taskwise/internal/model"
	"taskwise/internal/service"
	"taskwise/internal/tasklist"
)

const (
	cbCompletePrefix = "complete:"
	cbReopenPrefix   = "reopen:"
	cbDeletePrefix   = "delete:"

	maxListed = 20
)

func (b *Bot) handleListTasks(ctx context.Context, msg *tgbotapi.Message) error {
	view, err := parseListArgs(msg.CommandArguments())
	if err != nil {
		return b.sendText(msg.Chat.ID, escape(err.Error())+". See /help.")
	}
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	return b.sendTaskList(ctx, msg.Chat.ID, user, view)
}

func (b *Bot) sendTaskList(ctx context.Context, chatID int64, user *model.User, view tasklist.View) error {
	now := b.clock()
	tasks, err := b.tasks.View(ctx, user.ID, view, now)
	if err != nil {
		return b.sendText(chatID, fmt.Sprintf("Could not load tasks: %s", escape(err.Error())))
	}
	if len(tasks) == 0 {
		return b.sendText(chatID, "No tasks match. Add one with /newtask.")
	}

	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("📋 <b>Tasks</b> <i>(%s)</i>\n\n", escape(describeView(view))))

	var buttons [][]tgbotapi.InlineKeyboardButton
	for i, task := range tasks {
		if i == maxListed {
			builder.WriteString(fmt.Sprintf("…and %d more. Narrow the list with filters.\n", len(tasks)-maxListed))
			break
		}
		builder.WriteString(service.FormatTask(task, now))
		builder.WriteByte('\n')

		var toggle tgbotapi.InlineKeyboardButton
		if task.Completed {
			toggle = tgbotapi.NewInlineKeyboardButtonData("↩️ "+shortTitle(task.Title, 22), cbReopenPrefix+task.ID)
		} else {
			toggle = tgbotapi.NewInlineKeyboardButtonData("✅ "+shortTitle(task.Title, 22), cbCompletePrefix+task.ID)
		}
		buttons = append(buttons, tgbotapi.NewInlineKeyboardRow(
			toggle,
			tgbotapi.NewInlineKeyboardButtonData("🗑", cbDeletePrefix+task.ID),
		))
	}

	msg := tgbotapi.NewMessage(chatID, strings.TrimSpace(builder.String()))
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(buttons...)
	msg.ParseMode = tgbotapi.ModeHTML
	_, err = b.api.Send(msg)
	return err
}

func (b *Bot) handleSetCompleted(ctx context.Context, msg *tgbotapi.Message, completed bool) error {
	ref := strings.TrimSpace(msg.CommandArguments())
	if ref == "" {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Give me the task id: /%s 1a2b3c4d", msg.Command()))
	}
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	task, err := b.tasks.Resolve(ctx, user.ID, ref)
	if err != nil {
		return b.sendText(msg.Chat.ID, describeLookupErr(err))
	}
	return b.setCompleted(ctx, msg.Chat.ID, user, task.ID, completed)
}

func (b *Bot) setCompleted(ctx context.Context, chatID int64, user *model.User, taskID string, completed bool) error {
	task, err := b.tasks.SetCompleted(ctx, user.ID, taskID, completed)
	if err != nil {
		return b.sendText(chatID, describeLookupErr(err))
	}
	b.log.Info("task completion changed", zap.String("task_id", task.ID), zap.String("user_id", user.ID), zap.Bool("completed", completed))
	if completed {
		return b.sendText(chatID, fmt.Sprintf("✅ «%s» is done.", escape(task.Title)))
	}
	return b.sendText(chatID, fmt.Sprintf("↩️ «%s» is open again.", escape(task.Title)))
}

func (b *Bot) handleDelete(ctx context.Context, msg *tgbotapi.Message) error {
	ref := strings.TrimSpace(msg.CommandArguments())
	if ref == "" {
		return b.sendText(msg.Chat.ID, "Give me the task id: /delete 1a2b3c4d")
	}
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	task, err := b.tasks.Resolve(ctx, user.ID, ref)
	if err != nil {
		return b.sendText(msg.Chat.ID, describeLookupErr(err))
	}
	return b.askDeleteConfirmation(msg.Chat.ID, msg.From, task)
}

func (b *Bot) askDeleteConfirmation(chatID int64, from *tgbotapi.User, task *model.Task) error {
	b.setConfirmation(from.ID, confirmationRequest{taskID: task.ID, action: actionDelete})
	text := fmt.Sprintf("Delete «%s» (<code>%s</code>)? This cannot be undone.", escape(task.Title), task.ShortID())
	return b.sendWithReplyMarkup(chatID, text, confirmKeyboard())
}

func (b *Bot) deleteTask(ctx context.Context, chatID int64, from *tgbotapi.User, taskID string) error {
	user, err := b.ensureUser(ctx, from)
	if err != nil {
		return err
	}
	task, err := b.tasks.GetTask(ctx, user.ID, taskID)
	if err != nil {
		return b.sendText(chatID, describeLookupErr(err))
	}
	if err := b.tasks.DeleteTask(ctx, user.ID, taskID); err != nil {
		return b.sendText(chatID, describeLookupErr(err))
	}
	b.log.Info("task deleted", zap.String("task_id", taskID), zap.String("user_id", user.ID))
	return b.sendText(chatID, fmt.Sprintf("🗑 «%s» deleted.", escape(task.Title)))
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) error {
	if cb == nil || cb.From == nil || cb.Message == nil || cb.Message.Chat == nil {
		return nil
	}
	b.ack(cb)

	chatID := cb.Message.Chat.ID
	user, err := b.ensureUser(ctx, cb.From)
	if err != nil {
		return err
	}

	switch data := cb.Data; {
	case strings.HasPrefix(data, cbCompletePrefix):
		return b.setCompleted(ctx, chatID, user, strings.TrimPrefix(data, cbCompletePrefix), true)
	case strings.HasPrefix(data, cbReopenPrefix):
		return b.setCompleted(ctx, chatID, user, strings.TrimPrefix(data, cbReopenPrefix), false)
	case strings.HasPrefix(data, cbDeletePrefix):
		task, err := b.tasks.GetTask(ctx, user.ID, strings.TrimPrefix(data, cbDeletePrefix))
		if err != nil {
			return b.sendText(chatID, describeLookupErr(err))
		}
		return b.askDeleteConfirmation(chatID, cb.From, task)
	default:
		return nil
	}
}

func (b *Bot) handleStats(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	tasks, err := b.tasks.ListTasks(ctx, user.ID)
	if err != nil {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Could not load tasks: %s", escape(err.Error())))
	}
	return b.sendText(msg.Chat.ID, formatStats(analytics.Compute(tasks, b.clock())))
}

func describeLookupErr(err error) string {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return "Task not found."
	case errors.Is(err, service.ErrAmbiguousID):
		return "More than one task starts with that id. Type a few more characters."
	default:
		return fmt.Sprintf("Error: %s", escape(err.Error()))
	}
}
