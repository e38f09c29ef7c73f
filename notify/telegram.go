package notify

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/ltpalert/ltpalert/alert"
	"github.com/ltpalert/ltpalert/internal/ctxtime"
)

// Sender is the part of tgbotapi.BotAPI used to deliver messages.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram sends each event as a MarkdownV2 message to one chat.
type Telegram struct {
	sender     Sender
	chatID     int64
	maxRetries int
	retryDelay time.Duration
}

var _ alert.Notifier = (*Telegram)(nil)

// NewTelegram creates a bot client for token and validates chatID.
func NewTelegram(token, chatID string, maxRetries int, retryDelay time.Duration) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}
	return NewTelegramWithSender(bot, chatID, maxRetries, retryDelay)
}

// NewTelegramWithSender is NewTelegram with an existing Sender.
func NewTelegramWithSender(sender Sender, chatID string, maxRetries int, retryDelay time.Duration) (*Telegram, error) {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelay < 0 {
		retryDelay = time.Second
	}
	return &Telegram{
		sender:     sender,
		chatID:     id,
		maxRetries: maxRetries,
		retryDelay: retryDelay,
	}, nil
}

func (t *Telegram) Emit(ctx context.Context, e alert.Event) error {
	msg := tgbotapi.NewMessage(t.chatID, formatEvent(e))
	msg.ParseMode = tgbotapi.ModeMarkdownV2

	err := ctxtime.Retry(ctx, t.maxRetries, t.retryDelay, func() error {
		_, err := t.sender.Send(msg)
		return err
	})
	if err != nil {
		return fmt.Errorf("telegram: failed after %d attempts: %w", t.maxRetries, err)
	}
	return nil
}

func formatEvent(e alert.Event) string {
	arrow := "📈"
	if e.Direction == alert.Below {
		arrow = "📉"
	}
	return fmt.Sprintf("%s *%s* %s %s\nprice %s, threshold %s\n`%s` · %s",
		arrow,
		escapeMarkdownV2(e.Symbol),
		escapeMarkdownV2(e.Direction.String()),
		escapeMarkdownV2(strconv.FormatFloat(e.Threshold, 'f', -1, 64)),
		escapeMarkdownV2(strconv.FormatFloat(e.Price, 'f', -1, 64)),
		escapeMarkdownV2(strconv.FormatFloat(e.Threshold, 'f', -1, 64)),
		escapeMarkdownV2(e.InstrumentKey),
		escapeMarkdownV2(e.TriggeredAt.UTC().Format("2006-01-02 15:04:05")),
	)
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2.
func escapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text) + len(text)/4)
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}
