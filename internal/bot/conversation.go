package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"taskwise/internal/model"
	"taskwise/internal/routine"
	"taskwise/internal/service"
)

type conversationStage int

const (
	stageNone conversationStage = iota
	stageTitle
	stageDescription
	stagePriority
	stageCategory
	stageDueDate
	stageRoutine
)

type conversationState struct {
	stage  conversationStage
	input  service.TaskInput
	review bool // every answer given once; a corrected step saves right away
}

type confirmationAction int

const (
	actionDelete confirmationAction = iota
	actionCreateRoutine
)

type confirmationRequest struct {
	taskID     string
	action     confirmationAction
	candidates []routine.Candidate
}

func (b *Bot) startNewTaskConversation(ctx context.Context, msg *tgbotapi.Message) error {
	if _, err := b.ensureUser(ctx, msg.From); err != nil {
		return err
	}
	b.setConversation(msg.From.ID, &conversationState{stage: stageTitle})
	return b.sendWithReplyMarkup(msg.Chat.ID, "🆕 New task.\n<b>Step 1:</b> what should it be called?", cancelKeyboard())
}

func (b *Bot) handleConversation(ctx context.Context, msg *tgbotapi.Message) error {
	state := b.getConversation(msg.From.ID)
	if state == nil {
		return nil
	}

	text := strings.TrimSpace(msg.Text)
	switch state.stage {
	case stageTitle:
		state.input.Title = text
		if state.review {
			return b.finishTaskCreation(ctx, msg, state)
		}
		state.stage = stageDescription
		return b.sendWithReplyMarkup(msg.Chat.ID, "✏️ Add a short description (or tap Skip).", skipKeyboard())
	case stageDescription:
		if !isSkipInput(text) {
			state.input.Description = text
		}
		state.stage = stagePriority
		return b.sendWithReplyMarkup(msg.Chat.ID, "🔥 How important is it?", priorityKeyboard())
	case stagePriority:
		p, err := model.ParsePriority(text)
		if err != nil {
			return b.sendWithReplyMarkup(msg.Chat.ID, "Pick one of the priorities below.", priorityKeyboard())
		}
		state.input.Priority = p
		state.stage = stageCategory
		return b.sendWithReplyMarkup(msg.Chat.ID, "🏷 Which category?", categoryKeyboard())
	case stageCategory:
		c, err := model.ParseCategory(text)
		if err != nil {
			return b.sendWithReplyMarkup(msg.Chat.ID, "Pick one of the categories below.", categoryKeyboard())
		}
		state.input.Category = c
		state.stage = stageDueDate
		return b.sendWithReplyMarkup(msg.Chat.ID, dueDatePrompt, cancelKeyboard())
	case stageDueDate:
		due, err := parseDueDate(text, b.loc)
		if err != nil {
			return b.sendWithReplyMarkup(msg.Chat.ID, "I cannot read that date. "+dueDatePrompt, cancelKeyboard())
		}
		state.input.DueDate = due
		state.review = true
		return b.finishTaskCreation(ctx, msg, state)
	case stageRoutine:
		return b.previewRoutine(ctx, msg, text)
	default:
		b.clearConversation(msg.From.ID)
		return b.sendText(msg.Chat.ID, "Dialog reset. Try again with /newtask.")
	}
}

const dueDatePrompt = "⏰ When is it due? Use <code>" + dueDateLayout + "</code>, e.g. <code>2025-11-30 18:00</code>."

// finishTaskCreation saves the task, or rewinds the dialog to the step whose
// answer was rejected.
func (b *Bot) finishTaskCreation(ctx context.Context, msg *tgbotapi.Message, state *conversationState) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}

	task, err := b.tasks.CreateTask(ctx, user.ID, state.input)
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		switch verr.Field {
		case "title":
			state.stage = stageTitle
			return b.sendWithReplyMarkup(msg.Chat.ID, fmt.Sprintf("%s. What should it be called?", capitalize(verr.Message)), cancelKeyboard())
		case "dueDate":
			return b.sendWithReplyMarkup(msg.Chat.ID, fmt.Sprintf("%s. %s", capitalize(verr.Message), dueDatePrompt), cancelKeyboard())
		}
		b.clearConversation(msg.From.ID)
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Could not save the task: %s", escape(verr.Error())))
	case err != nil:
		b.clearConversation(msg.From.ID)
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Could not save the task: %s", escape(err.Error())))
	}
	b.clearConversation(msg.From.ID)

	b.log.Info("task created", zap.String("task_id", task.ID), zap.String("user_id", user.ID))

	var summary strings.Builder
	summary.WriteString("✅ <b>Task saved</b>\n")
	summary.WriteString(service.FormatTask(*task, b.clock()))
	return b.sendText(msg.Chat.ID, strings.TrimSpace(summary.String()))
}

func (b *Bot) startRoutineConversation(ctx context.Context, msg *tgbotapi.Message) error {
	if b.converter == nil {
		return b.sendText(msg.Chat.ID, "Routine planning is not available right now.")
	}
	if _, err := b.ensureUser(ctx, msg.From); err != nil {
		return err
	}
	b.setConversation(msg.From.ID, &conversationState{stage: stageRoutine})
	return b.sendWithReplyMarkup(msg.Chat.ID,
		"🧭 Describe your routine in a few sentences, e.g. <i>I work 9 to 5, go to the gym on Tuesday and Thursday evenings and study Spanish before bed.</i>",
		cancelKeyboard())
}

func (b *Bot) previewRoutine(ctx context.Context, msg *tgbotapi.Message, text string) error {
	res, err := b.converter.Convert(ctx, text, b.clock())
	switch {
	case errors.Is(err, routine.ErrInputTooShort), errors.Is(err, routine.ErrInputTooLong):
		return b.sendWithReplyMarkup(msg.Chat.ID, fmt.Sprintf("%s. Please try again.", capitalize(err.Error())), cancelKeyboard())
	case errors.Is(err, routine.ErrNoTasks), errors.Is(err, routine.ErrNoFutureTasks):
		b.clearConversation(msg.From.ID)
		return b.sendText(msg.Chat.ID, "I could not find any upcoming tasks in that description.")
	case err != nil:
		b.clearConversation(msg.From.ID)
		b.log.Warn("routine conversion", zap.Int64("telegram_id", msg.From.ID), zap.Error(err))
		return b.sendText(msg.Chat.ID, "The planning assistant failed. Please try again later.")
	}
	b.clearConversation(msg.From.ID)

	b.setConfirmation(msg.From.ID, confirmationRequest{action: actionCreateRoutine, candidates: res.Tasks})
	return b.sendWithReplyMarkup(msg.Chat.ID, formatRoutinePreview(res, b.loc), confirmKeyboard())
}

func (b *Bot) createRoutineTasks(ctx context.Context, msg *tgbotapi.Message, candidates []routine.Candidate) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	inputs := make([]service.TaskInput, 0, len(candidates))
	for _, c := range candidates {
		inputs = append(inputs, service.TaskInput{
			Title:       c.Title,
			Description: c.Description,
			DueDate:     c.DueDate,
			Priority:    c.Priority,
			Category:    c.Category,
		})
	}
	created, err := b.tasks.CreateBatch(ctx, user.ID, inputs)
	if err != nil {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Could not save the tasks: %s", escape(err.Error())))
	}
	b.log.Info("routine tasks created", zap.String("user_id", user.ID), zap.Int("count", len(created)))
	return b.sendText(msg.Chat.ID, fmt.Sprintf("✅ Added %d tasks. See them with /tasks.", len(created)))
}

func (b *Bot) handleConfirmationResponse(ctx context.Context, msg *tgbotapi.Message, req confirmationRequest) error {
	text := strings.TrimSpace(msg.Text)
	switch {
	case isConfirmInput(text):
		b.clearConfirmation(msg.From.ID)
		if req.action == actionCreateRoutine {
			return b.createRoutineTasks(ctx, msg, req.candidates)
		}
		return b.deleteTask(ctx, msg.Chat.ID, msg.From, req.taskID)
	case isCancelInput(text):
		b.clearConfirmation(msg.From.ID)
		return b.sendText(msg.Chat.ID, "👌 Nothing changed.")
	default:
		prompt := "Confirm or cancel the deletion."
		if req.action == actionCreateRoutine {
			prompt = "Confirm to add these tasks or cancel."
		}
		return b.sendWithReplyMarkup(msg.Chat.ID, prompt, confirmKeyboard())
	}
}
