// Package notify delivers best-effort operator alerts: SLA breaches,
// circuit breaker transitions, degraded-mode cancels, and expiration sweep
// summaries. Failures are logged and swallowed; a notification channel must
// never block or fail order processing.
package notify

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"

	"github.com/yourorg/tradingcore/internal/ports"
)

// Telegram is the production ports.Notifier.
type Telegram struct {
	api    *tgbotapi.BotAPI
	chatID int64
}

// New constructs a Telegram notifier. Returns an error if the token is
// invalid or unreachable; callers should fall back to NoOp rather than fail
// startup over a missing notification channel.
func New(token string, chatID int64) (*Telegram, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("notify: create telegram client: %w", err)
	}
	return &Telegram{api: api, chatID: chatID}, nil
}

func (t *Telegram) Notify(ctx context.Context, title, body string) {
	text := fmt.Sprintf("*%s*\n\n%s", title, body)
	msg := tgbotapi.NewMessage(t.chatID, text)
	msg.ParseMode = "Markdown"
	go func() {
		if _, err := t.api.Send(msg); err != nil {
			log.Error().Err(err).Str("title", title).Msg("notify: telegram send failed")
		}
	}()
}

// NoOp satisfies ports.Notifier for deployments without an operator
// notification channel configured.
type NoOp struct{}

func (NoOp) Notify(ctx context.Context, title, body string) {
	log.Info().Str("title", title).Str("body", body).Msg("notify: no-op sink")
}

var _ ports.Notifier = (*Telegram)(nil)
var _ ports.Notifier = NoOp{}
