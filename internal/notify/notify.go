// Package notify is the Notification Transport (spec.md §4.10): one-shot,
// fire-and-forget delivery of limit-breach, ML-block, and trade-outcome
// events to a user's Telegram chat, built on go-telegram-bot-api/v5 per
// the teacher pack's notification_service.go (yohannesjx-sniperterminal),
// generalized from a single-operator bot to a per-user chat-id lookup.
// Message bodies use dustin/go-humanize for readable quantities
// ("$1,234.56" / "3 minutes ago") rather than raw decimals.
package notify

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/dustin/go-humanize"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/chidi150c/tradegateway/internal/money"
)

// Kind is the event category a notification reports.
type Kind string

const (
	KindLimitBreach         Kind = "limit_breach"
	KindMLBlock             Kind = "ml_block"
	KindTradeOutcome        Kind = "trade_outcome"
	KindTradeSuccess        Kind = "trade_success"
	KindPositionClosedProfit Kind = "position_closed_profit"
	KindPositionClosedLoss   Kind = "position_closed_loss"
)

// PreferenceStore lets the transport skip sending when a user has opted
// out of a given Kind (spec.md §4.10).
type PreferenceStore interface {
	NotificationEnabled(ctx context.Context, user, kind string) (bool, error)
	InsertNotification(ctx context.Context, user, kind, message string, delivered bool) error
}

// ChatIDResolver maps a gateway user id to their Telegram chat id. A
// user with no linked chat silently receives no notifications.
type ChatIDResolver interface {
	ChatIDFor(user string) (int64, bool)
}

// StaticChatIDs is a ChatIDResolver backed by a fixed user->chat-id map,
// the way the teacher pack only ever addressed one operator's chat — here
// loaded from config at boot instead of a single env var.
type StaticChatIDs map[string]int64

// ChatIDFor implements ChatIDResolver.
func (m StaticChatIDs) ChatIDFor(user string) (int64, bool) {
	id, ok := m[user]
	return id, ok
}

// Transport sends notifications. A nil *Transport is valid and treated
// as "notifications disabled" (spec.md §4.10's degrade-gracefully
// requirement, and the teacher's NewNotificationService returning nil
// when TELEGRAM_BOT_TOKEN is unset).
type Transport struct {
	bot   *tgbotapi.BotAPI
	chats ChatIDResolver
	prefs PreferenceStore
}

// New constructs a Transport. Returns (nil, nil) when token is empty,
// matching the teacher's "notifications disabled" boot path rather than
// erroring — a missing Telegram token must never prevent the gateway
// from starting.
func New(token string, chats ChatIDResolver, prefs PreferenceStore) (*Transport, error) {
	if token == "" {
		log.Println("notify: TELEGRAM_BOT_TOKEN not set, notifications disabled")
		return nil, nil
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("notify: init telegram bot: %w", err)
	}
	log.Printf("notify: authorized on telegram account %s", bot.Self.UserName)
	return &Transport{bot: bot, chats: chats, prefs: prefs}, nil
}

// Send delivers a notification to user if they're linked and opted in.
// Failures are logged, never returned as fatal — notification delivery
// must never block the caller's trading-decision path (spec.md §4.10).
func (t *Transport) Send(ctx context.Context, user string, kind Kind, message string) {
	if t == nil {
		return
	}
	if t.prefs != nil {
		enabled, err := t.prefs.NotificationEnabled(ctx, user, string(kind))
		if err != nil {
			log.Printf("notify: preference lookup failed for %s/%s: %v", user, kind, err)
		} else if !enabled {
			return
		}
	}

	chatID, ok := t.chats.ChatIDFor(user)
	delivered := false
	if ok {
		msg := tgbotapi.NewMessage(chatID, message)
		if _, err := t.bot.Send(msg); err != nil {
			log.Printf("notify: send to %s failed: %v", user, err)
		} else {
			delivered = true
		}
	}

	if t.prefs != nil {
		if err := t.prefs.InsertNotification(ctx, user, string(kind), message, delivered); err != nil {
			log.Printf("notify: record notification failed: %v", err)
		}
	}
}

// LimitBreachMessage formats a weekly-risk-limit denial for delivery.
func LimitBreachMessage(venueName, symbol, reason string) string {
	return fmt.Sprintf("Risk limit blocked a trade on %s/%s: %s", venueName, symbol, reason)
}

// MLBlockMessage formats an ML-validation rejection for delivery.
func MLBlockMessage(venueName, symbol string, confidence float64) string {
	return fmt.Sprintf("ML validation blocked %s/%s (confidence %.0f%%)", venueName, symbol, confidence*100)
}

// TradeOutcomeMessage formats a closed trade's PnL using go-humanize for
// a readable dollar amount and a relative timestamp.
func TradeOutcomeMessage(venueName, symbol string, pnl money.Amount, openedAt time.Time) string {
	sign := ""
	if pnl.IsPositive() {
		sign = "+"
	}
	return fmt.Sprintf("Closed %s/%s: %s$%s (open %s)", venueName, symbol, sign, humanize.Commaf(pnl.Float64()), humanize.Time(openedAt))
}

// TradeOpenedMessage formats a new entry for delivery on the OPEN NEW
// path (spec.md §4.6 step 6's trade_success notification).
func TradeOpenedMessage(venueName, symbol, side string, qty, entryPrice money.Amount) string {
	return fmt.Sprintf("Opened %s %s/%s: qty %s @ $%s", side, venueName, symbol, qty.String(), humanize.Commaf(entryPrice.Float64()))
}
