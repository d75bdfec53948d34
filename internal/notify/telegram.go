package notify

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// TelegramNotifier delivers guest notifications to a staff channel so
// the front desk can reach the guest by phone. Delivery failures are
// returned to the caller, which logs and moves on: the reservation or
// waitlist state is the source of truth, delivery is best effort.
type TelegramNotifier struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	logger *zerolog.Logger
}

func NewTelegramNotifier(token string, chatID int64, logger *zerolog.Logger) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("init telegram bot: %w", err)
	}
	return &TelegramNotifier{bot: bot, chatID: chatID, logger: logger}, nil
}

func (n *TelegramNotifier) Send(ctx context.Context, recipient, template string, params map[string]string) error {
	text := fmt.Sprintf("To %s:\n%s", recipient, Render(template, params))
	msg := tgbotapi.NewMessage(n.chatID, text)

	if _, err := n.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	n.logger.Debug().Str("recipient", recipient).Str("template", template).Msg("telegram notification delivered")
	return nil
}
