package notify

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/vdcapital/copytrader/internal/config"
	"github.com/vdcapital/copytrader/internal/logger"
)

// TelegramSink forwards notifications to a Telegram chat. Disabled or
// misconfigured bots degrade to a no-op sink rather than failing startup.
type TelegramSink struct {
	bot     *tgbotapi.BotAPI
	chatID  int64
	enabled bool
	logger  *logger.Logger
}

func NewTelegramSink(cfg *config.Config, log *logger.Logger) *TelegramSink {
	if !cfg.Telegram.Enabled {
		return &TelegramSink{enabled: false, logger: log}
	}

	bot, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
	if err != nil {
		log.Error("failed to create telegram bot", "error", err)
		return &TelegramSink{enabled: false, logger: log}
	}

	log.Info("telegram bot connected", "username", bot.Self.UserName)

	return &TelegramSink{
		bot:     bot,
		chatID:  cfg.Telegram.ChatID,
		enabled: true,
		logger:  log,
	}
}

func (t *TelegramSink) Emit(kind Kind, title, message string) {
	if !t.enabled {
		return
	}

	emoji := "ℹ️"
	switch kind {
	case KindSuccess:
		emoji = "✅"
	case KindWarning:
		emoji = "⚠️"
	case KindError:
		emoji = "🔴"
	}

	msg := tgbotapi.NewMessage(t.chatID, fmt.Sprintf("%s *%s*\n%s", emoji, title, message))
	msg.ParseMode = tgbotapi.ModeMarkdown

	if _, err := t.bot.Send(msg); err != nil {
		t.logger.Error("send telegram message", "title", title, "error", err)
	}
}
