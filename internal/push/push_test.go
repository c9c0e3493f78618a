package push

import (
	"context"
	"errors"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type mockBot struct {
	sendFunc func(c tgbotapi.Chattable) (tgbotapi.Message, error)
	sent     []tgbotapi.MessageConfig
}

func (m *mockBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		m.sent = append(m.sent, msg)
	}
	if m.sendFunc != nil {
		return m.sendFunc(c)
	}
	return tgbotapi.Message{}, nil
}

func TestTelegramSenderSend(t *testing.T) {
	bot := &mockBot{}
	s := NewTelegramSender(bot)

	err := s.Send(context.Background(), "12345", Message{Title: "Task Reminder", Body: `Your task "a<b" is due soon.`, Tag: "t1"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(bot.sent) != 1 {
		t.Fatalf("expected 1 message, got %d", len(bot.sent))
	}
	got := bot.sent[0]
	if got.ChatID != 12345 {
		t.Errorf("chat id = %d", got.ChatID)
	}
	if got.ParseMode != tgbotapi.ModeHTML {
		t.Errorf("parse mode = %q", got.ParseMode)
	}
	want := "⏰ <b>Task Reminder</b>\nYour task &#34;a&lt;b&#34; is due soon."
	if got.Text != want {
		t.Errorf("text = %q, want %q", got.Text, want)
	}
}

func TestTelegramSenderErrors(t *testing.T) {
	cases := []struct {
		name    string
		address string
		err     error
		invalid bool
	}{
		{"unparsable address", "not-a-chat", nil, true},
		{"blocked", "1", &tgbotapi.Error{Code: 403, Message: "Forbidden: bot was blocked by the user"}, true},
		{"chat not found", "1", &tgbotapi.Error{Code: 400, Message: "Bad Request: chat not found"}, true},
		{"other bad request", "1", &tgbotapi.Error{Code: 400, Message: "Bad Request: message is too long"}, false},
		{"network", "1", errors.New("connection reset"), false},
	}
	for _, tc := range cases {
		bot := &mockBot{sendFunc: func(tgbotapi.Chattable) (tgbotapi.Message, error) {
			return tgbotapi.Message{}, tc.err
		}}
		err := NewTelegramSender(bot).Send(context.Background(), tc.address, Message{Title: "x"})
		if err == nil {
			t.Errorf("%s: expected error", tc.name)
			continue
		}
		if got := errors.Is(err, ErrInvalidAddress); got != tc.invalid {
			t.Errorf("%s: invalid = %t, want %t (%v)", tc.name, got, tc.invalid, err)
		}
	}
}

func TestTelegramSenderHonoursCancelledContext(t *testing.T) {
	bot := &mockBot{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := NewTelegramSender(bot).Send(ctx, "1", Message{Title: "x"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(bot.sent) != 0 {
		t.Fatal("nothing must be sent after cancellation")
	}
}
