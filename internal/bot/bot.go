package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"taskwise/internal/model"
	"taskwise/internal/notify"
	"taskwise/internal/push"
	"taskwise/internal/repository"
	"taskwise/internal/routine"
	"taskwise/internal/service"
)

// API is the part of the Telegram client the bot uses. *tgbotapi.BotAPI
// satisfies it.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Deps wires the bot to the rest of the application. Converter may be nil
// when no AI key is configured.
type Deps struct {
	Users         *repository.UserRepository
	Tasks         *service.TaskService
	Notifications *service.NotificationService
	Digest        *service.DigestService
	Converter     *routine.Converter
	Sessions      *notify.Manager
	Location      *time.Location
	Logger        *zap.Logger
}

// Bot aggregates Telegram API with services.
type Bot struct {
	api       API
	sender    *push.TelegramSender
	users     *repository.UserRepository
	tasks     *service.TaskService
	notif     *service.NotificationService
	digest    *service.DigestService
	converter *routine.Converter
	sessions  *notify.Manager
	loc       *time.Location
	log       *zap.Logger
	now       func() time.Time

	mu            sync.Mutex
	conversations map[int64]*conversationState
	confirmations map[int64]confirmationRequest
}

func New(api API, deps Deps) *Bot {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	loc := deps.Location
	if loc == nil {
		loc = time.Local
	}
	return &Bot{
		api:           api,
		sender:        push.NewTelegramSender(api),
		users:         deps.Users,
		tasks:         deps.Tasks,
		notif:         deps.Notifications,
		digest:        deps.Digest,
		converter:     deps.Converter,
		sessions:      deps.Sessions,
		loc:           loc,
		log:           log,
		now:           time.Now,
		conversations: make(map[int64]*conversationState),
		confirmations: make(map[int64]confirmationRequest),
	}
}

// Start begins polling updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	if err := b.RestoreSessions(ctx); err != nil {
		b.log.Warn("restore notification sessions", zap.Error(err))
	}

	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := b.api.GetUpdatesChan(updateConfig)

	b.log.Info("start polling updates")

	go func() {
		<-ctx.Done()
		b.api.StopReceivingUpdates()
	}()

	for update := range updates {
		switch {
		case update.CallbackQuery != nil:
			if err := b.handleCallback(ctx, update.CallbackQuery); err != nil {
				b.log.Error("handle callback", zap.Error(err))
			}
		case update.Message != nil:
			if update.Message.Chat == nil || !update.Message.Chat.IsPrivate() {
				continue
			}
			if err := b.handleMessage(ctx, update.Message); err != nil {
				b.log.Error("handle message", zap.Error(err))
			}
		}
	}

	return nil
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	if msg.From == nil {
		return nil
	}

	if !msg.IsCommand() && isCancelDialogInput(msg.Text) {
		b.clearConversation(msg.From.ID)
		b.clearConfirmation(msg.From.ID)
		return b.sendText(msg.Chat.ID, "⏪ Cancelled. Pick something from the menu to start again.")
	}

	if !msg.IsCommand() {
		if handled, err := b.handleMenuAlias(ctx, msg); handled {
			return err
		}
	}

	if msg.IsCommand() {
		b.log.Debug("command", zap.Int64("telegram_id", msg.From.ID), zap.String("command", msg.Command()))
		return b.handleCommand(ctx, msg)
	}

	if pending, ok := b.getConfirmation(msg.From.ID); ok {
		return b.handleConfirmationResponse(ctx, msg, pending)
	}

	if b.hasConversation(msg.From.ID) {
		return b.handleConversation(ctx, msg)
	}

	return b.sendText(msg.Chat.ID, "I did not get that. Send /newtask to add a task or /help for the command list.")
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) error {
	// a new command abandons whatever dialog was open
	if msg.Command() != "cancel" {
		b.clearConfirmation(msg.From.ID)
	}
	switch msg.Command() {
	case "start":
		return b.handleStart(ctx, msg)
	case "help":
		return b.handleHelp(msg)
	case "newtask":
		return b.startNewTaskConversation(ctx, msg)
	case "tasks":
		return b.handleListTasks(ctx, msg)
	case "complete":
		return b.handleSetCompleted(ctx, msg, true)
	case "reopen":
		return b.handleSetCompleted(ctx, msg, false)
	case "delete":
		return b.handleDelete(ctx, msg)
	case "routine":
		return b.startRoutineConversation(ctx, msg)
	case "stats":
		return b.handleStats(ctx, msg)
	case "notify":
		return b.handleNotify(ctx, msg)
	case "digest":
		return b.handleDigest(ctx, msg)
	case "cancel":
		b.clearConversation(msg.From.ID)
		b.clearConfirmation(msg.From.ID)
		return b.sendText(msg.Chat.ID, "⏪ Cancelled.")
	default:
		return b.sendText(msg.Chat.ID, "Unknown command. See /help.")
	}
}

func (b *Bot) handleStart(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	if user.NotificationsEnabled {
		if err := b.notif.RegisterAddress(ctx, user.ID, chatAddress(msg.Chat.ID)); err != nil {
			return err
		}
	}

	name := strings.TrimSpace(msg.From.FirstName)
	if name == "" {
		name = "there"
	}

	text := fmt.Sprintf(
		"👋 Hi, %s!\n<b>I keep your tasks in order and remind you before they are due.</b>\n\n%s",
		escape(name), commandList,
	)
	return b.sendText(msg.Chat.ID, text)
}

const commandList = "Commands:\n" +
	"• /newtask: add a task step by step\n" +
	"• /tasks [status] [priority] [category]: show tasks, e.g. <code>/tasks due-today high</code>\n" +
	"• /complete &lt;id&gt;: mark a task done\n" +
	"• /reopen &lt;id&gt;: mark a task open again\n" +
	"• /delete &lt;id&gt;: delete a task\n" +
	"• /routine: describe your routine and get tasks for it\n" +
	"• /stats: your progress\n" +
	"• /digest: today's summary\n" +
	"• /notify on|off|test: reminders\n" +
	"• /cancel: abort the current input"

func (b *Bot) handleHelp(msg *tgbotapi.Message) error {
	text := "ℹ️ <b>Help</b>\n" + commandList + "\n\n" +
		"Statuses: all, past-due, due-today, due-this-week, upcoming, completed.\n" +
		"Ids: the first characters shown in <code>code</code> are enough."
	return b.sendText(msg.Chat.ID, text)
}

func (b *Bot) handleDigest(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	text, err := b.digest.DailySummary(ctx, user.ID, b.clock())
	if err != nil {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Could not build the summary: %s", escape(err.Error())))
	}
	return b.sendText(msg.Chat.ID, text)
}

func (b *Bot) handleMenuAlias(ctx context.Context, msg *tgbotapi.Message) (bool, error) {
	text := strings.TrimSpace(strings.ToLower(msg.Text))
	switch text {
	case strings.ToLower(menuLabelNewTask):
		return true, b.startNewTaskConversation(ctx, msg)
	case strings.ToLower(menuLabelTasks):
		return true, b.handleListTasks(ctx, msg)
	case strings.ToLower(menuLabelRoutine):
		return true, b.startRoutineConversation(ctx, msg)
	case strings.ToLower(menuLabelStats):
		return true, b.handleStats(ctx, msg)
	case strings.ToLower(menuLabelHelp):
		return true, b.handleHelp(msg)
	default:
		return false, nil
	}
}

func (b *Bot) clock() time.Time { return b.now().In(b.loc) }

func (b *Bot) ensureUser(ctx context.Context, from *tgbotapi.User) (*model.User, error) {
	return b.users.UpsertFromTelegram(ctx, from.ID, from.FirstName, from.LastName, from.UserName)
}

func chatAddress(chatID int64) string {
	return strconv.FormatInt(chatID, 10)
}

func (b *Bot) sendText(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = mainMenuKeyboard()
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) sendWithReplyMarkup(chatID int64, text string, markup interface{}) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = markup
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) ack(cb *tgbotapi.CallbackQuery) {
	if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		b.log.Warn("callback ack", zap.Error(err))
	}
}

func (b *Bot) getConfirmation(userID int64) (confirmationRequest, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	req, ok := b.confirmations[userID]
	return req, ok
}

func (b *Bot) setConfirmation(userID int64, req confirmationRequest) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.confirmations[userID] = req
}

func (b *Bot) clearConfirmation(userID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.confirmations, userID)
}

func (b *Bot) setConversation(userID int64, state *conversationState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.conversations[userID] = state
}

func (b *Bot) getConversation(userID int64) *conversationState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conversations[userID]
}

func (b *Bot) hasConversation(userID int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.conversations[userID]
	return ok
}

func (b *Bot) clearConversation(userID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.conversations, userID)
}
