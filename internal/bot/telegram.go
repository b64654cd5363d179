package bot

import (
	"context"
	"fmt"
	"log/slog"

	tgbot "github.com/go-telegram/bot"
)

// NewTelegramBot creates the admin-facing Telegram bot instance using the
// go-telegram/bot library.
func NewTelegramBot(token string, logger *slog.Logger, opts ...tgbot.Option) (*tgbot.Bot, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram bot token cannot be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With("component", "telegram_bot")

	b, err := tgbot.New(token, opts...)
	if err != nil {
		log.Error("Failed to create Telegram bot instance", "error", err)
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	log.Info("Telegram bot instance created successfully", "token_prefix", token[:8]+"...")
	return b, nil
}

// Digest sends pipeline summaries to the configured admin chat.
type Digest struct {
	bot         *tgbot.Bot
	adminChatID int64
	logger      *slog.Logger
}

// NewDigest creates an admin notifier. bot may be nil in tests; sends then
// become log-only.
func NewDigest(bot *tgbot.Bot, adminChatID int64, logger *slog.Logger) *Digest {
	if logger == nil {
		logger = slog.Default()
	}
	return &Digest{
		bot:         bot,
		adminChatID: adminChatID,
		logger:      logger.With("component", "admin_digest"),
	}
}

// NotifyAdmin delivers one plain-text message to the admin chat.
func (d *Digest) NotifyAdmin(ctx context.Context, text string) error {
	if d.bot == nil || d.adminChatID == 0 {
		d.logger.InfoContext(ctx, "Admin digest (no delivery target)", "text", text)
		return nil
	}

	_, err := d.bot.SendMessage(ctx, &tgbot.SendMessageParams{
		ChatID: d.adminChatID,
		Text:   text,
	})
	if err != nil {
		d.logger.ErrorContext(ctx, "Failed to send admin digest", "error", err)
		return fmt.Errorf("failed to send admin digest: %w", err)
	}
	return nil
}
