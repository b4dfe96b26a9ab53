// Package notify implements C14: an optional, fire-and-forget alert
// notifier — constructed only when a bot token is configured, callers
// nil-check, sends never block the caller and failures are logged only.
package notify

import (
	"context"
	"fmt"
	"log"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/flowdesk/optionflow/internal/model"
)

// Notifier is the C14 contract: notify on an alert, never block, never fail
// the caller.
type Notifier interface {
	NotifyAlert(ctx context.Context, alert model.AlertEvent)
}

// TelegramNotifier sends alert summaries to a configured Telegram chat.
type TelegramNotifier struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegramNotifier builds a notifier from a bot token and chat ID. If
// token is empty or the bot fails to initialize, it returns nil — callers
// must nil-check before calling NotifyAlert, the usual pattern for an
// optional collaborator that degrades to a no-op when unconfigured.
func NewTelegramNotifier(token string, chatID int64) *TelegramNotifier {
	if token == "" {
		log.Println("⚠️ TELEGRAM_BOT_TOKEN not set. Alert notifications disabled.")
		return nil
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		log.Printf("⚠️ Failed to init Telegram bot: %v", err)
		return nil
	}
	log.Printf("✅ Authorized alert notifier on account %s", bot.Self.UserName)
	return &TelegramNotifier{bot: bot, chatID: chatID}
}

// NotifyAlert sends a formatted alert summary, fire-and-forget. A send
// failure is logged only; it never affects the pipeline's persist/publish/ack
// outcome for the alert that triggered it.
func (n *TelegramNotifier) NotifyAlert(ctx context.Context, alert model.AlertEvent) {
	if n == nil || n.bot == nil || n.chatID == 0 {
		return
	}

	text := fmt.Sprintf(
		"🔔 *FLOW ALERT*\n\n*Packet:* %s\n*Severity:* %s\n*Score:* %.0f\n*Hits:* %d",
		alert.PacketID, alert.Severity, alert.Score, len(alert.Hits),
	)

	go func() {
		msg := tgbotapi.NewMessage(n.chatID, text)
		msg.ParseMode = "Markdown"
		if _, err := n.bot.Send(msg); err != nil {
			log.Printf("⚠️ Failed to send alert notification: %v", err)
		}
	}()
}
