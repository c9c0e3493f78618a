// Package push delivers reminder messages to registered addresses.
package push

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// ErrInvalidAddress means the address will never accept deliveries and its
// registration should be dropped.
var ErrInvalidAddress = errors.New("push address is invalid")

// Message is one push payload. Tag identifies the task it is about.
type Message struct {
	Title string
	Body  string
	Tag   string
}

type Sender interface {
	Send(ctx context.Context, address string, msg Message) error
}

// BotAPI is the part of the Telegram client the sender needs.
type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramSender treats an address as a Telegram chat id.
type TelegramSender struct {
	api BotAPI
}

func NewTelegramSender(api BotAPI) *TelegramSender {
	return &TelegramSender{api: api}
}

func (s *TelegramSender) Send(ctx context.Context, address string, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	chatID, err := strconv.ParseInt(strings.TrimSpace(address), 10, 64)
	if err != nil {
		return fmt.Errorf("%w: %q is not a chat id", ErrInvalidAddress, address)
	}

	out := tgbotapi.NewMessage(chatID, Format(msg))
	out.ParseMode = tgbotapi.ModeHTML
	if _, err := s.api.Send(out); err != nil {
		if permanent(err) {
			return fmt.Errorf("%w: %v", ErrInvalidAddress, err)
		}
		return fmt.Errorf("send telegram message: %w", err)
	}
	return nil
}

// Format renders a message as Telegram HTML.
func Format(msg Message) string {
	var sb strings.Builder
	sb.WriteString("⏰ <b>")
	sb.WriteString(html.EscapeString(msg.Title))
	sb.WriteString("</b>")
	if msg.Body != "" {
		sb.WriteString("\n")
		sb.WriteString(html.EscapeString(msg.Body))
	}
	return sb.String()
}

// permanent reports Telegram errors meaning the chat is gone or has blocked
// the bot.
func permanent(err error) bool {
	var tgErr *tgbotapi.Error
	if !errors.As(err, &tgErr) {
		return false
	}
	switch tgErr.Code {
	case 403:
		return true
	case 400:
		return strings.Contains(strings.ToLower(tgErr.Message), "chat not found")
	default:
		return false
	}
}
