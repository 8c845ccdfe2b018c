package telegram

import (
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/Kalifa21/the-watcher/config"
)

// Client wraps the Telegram Bot API for sending alerts and receiving
// bot commands. A single consumer should drain Updates().
type Client struct {
	logger         *zap.Logger
	bot            *tgbotapi.BotAPI
	maxRetries     int
	retryDelayBase time.Duration
}

func NewClient(logger *zap.Logger, cfg *config.Config) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	bot, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}

	logger.Info("telegram bot initialized",
		zap.String("username", bot.Self.UserName),
		zap.Bool("isProd", cfg.IsProd),
	)

	return &Client{
		logger:         logger,
		bot:            bot,
		maxRetries:     3,
		retryDelayBase: time.Second,
	}, nil
}

// Updates returns the long-poll update channel for incoming messages.
func (c *Client) Updates() tgbotapi.UpdatesChannel {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	return c.bot.GetUpdatesChan(u)
}

// Stop terminates the update long-poll loop.
func (c *Client) Stop() {
	c.bot.StopReceivingUpdates()
}

// SendMessage sends a plain text message to a chat.
func (c *Client) SendMessage(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	return c.send(msg)
}

// SendAlert sends a Markdown-formatted alert to a chat with link
// previews suppressed, so deep links stay compact.
func (c *Client) SendAlert(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	msg.DisableWebPagePreview = true
	return c.send(msg)
}

// send delivers a message with linear-backoff retry.
func (c *Client) send(msg tgbotapi.MessageConfig) error {
	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		if _, err := c.bot.Send(msg); err == nil {
			return nil
		} else {
			lastErr = err
		}
		time.Sleep(c.retryDelayBase * time.Duration(i+1))
	}
	return fmt.Errorf("send after %d retries: %w", c.maxRetries, lastErr)
}

// ShortAddress abbreviates a wallet address for display.
func ShortAddress(addr string) string {
	if len(addr) <= 14 {
		return addr
	}
	return addr[:6] + "…" + addr[len(addr)-6:]
}

// EscapeMarkdown escapes special characters for Telegram Markdown.
func EscapeMarkdown(s string) string {
	replacer := strings.NewReplacer(
		"_", "\\_",
		"*", "\\*",
		"[", "\\[",
		"]", "\\]",
		"`", "\\`",
	)
	return replacer.Replace(s)
}
