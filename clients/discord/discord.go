package discord

import (
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/Kalifa21/the-watcher/config"
)

// Client mirrors market signal alerts into a Discord channel. It is
// optional; without a token it stays disabled and drops sends silently.
type Client struct {
	logger    *zap.Logger
	session   *discordgo.Session
	channelID string
}

func NewClient(logger *zap.Logger, cfg *config.Config) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}

	channelID := cfg.Discord.ChannelID

	token := cfg.Discord.BotToken
	if token == "" {
		logger.Info("DISCORD_BOT_TOKEN not set, Discord mirroring disabled")
		return &Client{
			logger:    logger,
			channelID: channelID,
		}
	}

	session, err := discordgo.New("Bot " + token)
	if err != nil {
		logger.Error("failed to create discord session", zap.Error(err))
		return &Client{
			logger:    logger,
			channelID: channelID,
		}
	}

	logger.Info("discord bot initialized", zap.String("channelID", channelID))

	return &Client{
		logger:    logger,
		session:   session,
		channelID: channelID,
	}
}

// Enabled reports whether the client has a live session and a channel.
func (dc *Client) Enabled() bool {
	return dc.session != nil && dc.channelID != ""
}

// SendMessage sends a plain text message to the configured channel.
func (dc *Client) SendMessage(message string) {
	if !dc.Enabled() {
		return
	}

	_, err := dc.session.ChannelMessageSend(dc.channelID, message)
	if err != nil {
		dc.logger.Error("failed to send discord message", zap.Error(err))
		return
	}
}

// SignalAlert carries the fields rendered into a Discord embed for a
// detected market signal.
type SignalAlert struct {
	Kind         string // WOLF_PACK or VOLUME_SURGE
	Title        string
	MarketTitle  string
	MarketURL    string
	MarketImage  string
	Outcome      string
	BuyVolume    float64
	SellVolume   float64
	RatioDisplay string
	UniqueBuyers int
	Timestamp    time.Time
}

// SendSignalAlert sends a rich embedded signal alert.
func (dc *Client) SendSignalAlert(alert SignalAlert) {
	if !dc.Enabled() {
		return
	}

	embed := buildSignalEmbed(alert)

	_, err := dc.session.ChannelMessageSendEmbed(dc.channelID, embed)
	if err != nil {
		dc.logger.Error("failed to send discord embed", zap.Error(err))
		return
	}

	dc.logger.Info("sent discord signal alert",
		zap.String("kind", alert.Kind),
		zap.String("market", alert.MarketTitle),
	)
}

func buildSignalEmbed(alert SignalAlert) *discordgo.MessageEmbed {
	// Coordinated buying reads as hotter than a plain surge
	color := 0x2ECC71 // Green for VOLUME_SURGE
	if alert.Kind == "WOLF_PACK" {
		color = 0xE74C3C // Red for WOLF_PACK
	}

	fields := []*discordgo.MessageEmbedField{
		{
			Name:   "Outcome",
			Value:  alert.Outcome,
			Inline: true,
		},
		{
			Name:   "Buy Volume",
			Value:  fmt.Sprintf("$%.2f", alert.BuyVolume),
			Inline: true,
		},
		{
			Name:   "Sell Volume",
			Value:  fmt.Sprintf("$%.2f", alert.SellVolume),
			Inline: true,
		},
		{
			Name:   "Buy/Sell Ratio",
			Value:  alert.RatioDisplay,
			Inline: true,
		},
	}

	if alert.Kind == "WOLF_PACK" {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name:   "Unique Buyers",
			Value:  fmt.Sprintf("%d", alert.UniqueBuyers),
			Inline: true,
		})
	}

	ts := alert.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	embed := &discordgo.MessageEmbed{
		Title:       alert.Title,
		URL:         alert.MarketURL,
		Description: fmt.Sprintf("**%s**", alert.MarketTitle),
		Color:       color,
		Fields:      fields,
		Footer: &discordgo.MessageEmbedFooter{
			Text: fmt.Sprintf("the-watcher • %s", ts.UTC().Format("2006-01-02 15:04:05 UTC")),
		},
		Timestamp: ts.Format(time.RFC3339),
	}

	if alert.MarketImage != "" {
		embed.Image = &discordgo.MessageEmbedImage{
			URL: alert.MarketImage,
		}
	}

	return embed
}

// Close closes the Discord session.
func (dc *Client) Close() error {
	if dc.session != nil {
		return dc.session.Close()
	}
	return nil
}
