// Package notify delivers fire-and-forget subscription events to the bot
// front-end. Delivery failures are logged, never propagated: provisioning
// outcomes do not depend on Telegram being reachable.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	"github.com/rs/zerolog"
)

// Sink consumes provisioning and subscription lifecycle events.
type Sink interface {
	PeerIssued(ctx context.Context, telegramID int64, peerID string)
	SubscriptionExpiring(ctx context.Context, telegramID int64, until time.Time)
	SubscriptionExpired(ctx context.Context, telegramID int64)
}

// Telegram sends events as bot messages.
type Telegram struct {
	Bot *telego.Bot
	log zerolog.Logger
}

func NewTelegram(bot *telego.Bot, log zerolog.Logger) *Telegram {
	return &Telegram{
		Bot: bot,
		log: log.With().Str("component", "notify").Logger(),
	}
}

func (t *Telegram) send(ctx context.Context, telegramID int64, text string) {
	if telegramID == 0 {
		return
	}
	if _, err := t.Bot.SendMessage(ctx, tu.Message(tu.ID(telegramID), text)); err != nil {
		t.log.Warn().Err(err).Int64("telegram_id", telegramID).Msg("failed to send notification")
	}
}

func (t *Telegram) PeerIssued(ctx context.Context, telegramID int64, peerID string) {
	t.send(ctx, telegramID, fmt.Sprintf("✅ Новый VPN-доступ выдан (конфиг %s). Настройки придут отдельным сообщением.", peerID))
}

func (t *Telegram) SubscriptionExpiring(ctx context.Context, telegramID int64, until time.Time) {
	t.send(ctx, telegramID, fmt.Sprintf("⚠️ Ваша подписка истекает %s. Продлите её, чтобы не потерять доступ.", until.Format("02.01.2006 15:04")))
}

func (t *Telegram) SubscriptionExpired(ctx context.Context, telegramID int64) {
	t.send(ctx, telegramID, "❌ Ваша подписка истекла. Доступ к VPN отключён. Продлить можно в меню подписки.")
}

// Nop discards all events.
type Nop struct{}

func (Nop) PeerIssued(context.Context, int64, string)              {}
func (Nop) SubscriptionExpiring(context.Context, int64, time.Time) {}
func (Nop) SubscriptionExpired(context.Context, int64)             {}
