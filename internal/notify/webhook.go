// Package notify delivers farmer events to Discord and Telegram webhooks.
package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/chia-farm/farmer-core/internal/util"
)

// WebhookConfig holds webhook configuration.
type WebhookConfig struct {
	DiscordURL     string `mapstructure:"discord_url"`
	TelegramBot    string `mapstructure:"telegram_bot"`
	TelegramChat   string `mapstructure:"telegram_chat"`
	Enabled        bool   `mapstructure:"enabled"`
	FarmerName     string
}

// Retry configuration.
const (
	MaxRetries     = 3
	RetryBaseDelay = 2 * time.Second
)

// Notifier handles sending notifications.
type Notifier struct {
	cfg    *WebhookConfig
	client *http.Client
}

// NewNotifier creates a new notifier.
func NewNotifier(cfg *WebhookConfig) *Notifier {
	return &Notifier{
		cfg: cfg,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// NotifyProofFound sends notifications when a harvester-submitted candidate
// clears the SP-phase signature aggregation (the "proof" event, spec.md §9).
func (n *Notifier) NotifyProofFound(spHash, plotIdentifier, qualityString string) {
	if !n.cfg.Enabled {
		return
	}

	if n.cfg.DiscordURL != "" {
		go n.sendDiscordProofNotification(spHash, plotIdentifier, qualityString)
	}

	if n.cfg.TelegramBot != "" && n.cfg.TelegramChat != "" {
		go n.sendTelegramProofNotification(spHash, plotIdentifier, qualityString)
	}
}

// NotifyMissingSignagePoints sends notifications when the missing-signage-
// point detector reports a gap (spec.md §4.E).
func (n *Notifier) NotifyMissingSignagePoints(at int64, skipped uint32) {
	if !n.cfg.Enabled {
		return
	}

	if n.cfg.DiscordURL != "" {
		go n.sendDiscordMissingSPNotification(at, skipped)
	}

	if n.cfg.TelegramBot != "" && n.cfg.TelegramChat != "" {
		go n.sendTelegramMissingSPNotification(at, skipped)
	}
}

// DiscordEmbed represents a Discord embed object.
type DiscordEmbed struct {
	Title       string         `json:"title,omitempty"`
	Description string         `json:"description,omitempty"`
	URL         string         `json:"url,omitempty"`
	Color       int            `json:"color,omitempty"`
	Fields      []DiscordField `json:"fields,omitempty"`
	Timestamp   string         `json:"timestamp,omitempty"`
	Footer      *DiscordFooter `json:"footer,omitempty"`
}

// DiscordField represents a field in a Discord embed.
type DiscordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// DiscordFooter represents the footer of a Discord embed.
type DiscordFooter struct {
	Text string `json:"text"`
}

// DiscordMessage represents a Discord webhook message.
type DiscordMessage struct {
	Content string         `json:"content,omitempty"`
	Embeds  []DiscordEmbed `json:"embeds,omitempty"`
}

// sendDiscordProofNotification sends a proof-found notification to Discord.
func (n *Notifier) sendDiscordProofNotification(spHash, plotIdentifier, qualityString string) {
	embed := DiscordEmbed{
		Title:       "Proof of Space Found",
		Description: fmt.Sprintf("**%s** produced a winning candidate", n.cfg.FarmerName),
		Color:       0x00FF00, // Green
		Fields: []DiscordField{
			{Name: "Signage Point", Value: truncateHash(spHash), Inline: true},
			{Name: "Plot", Value: truncateHash(plotIdentifier), Inline: true},
			{Name: "Quality", Value: truncateHash(qualityString), Inline: false},
		},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Footer:    &DiscordFooter{Text: n.cfg.FarmerName},
	}

	n.sendDiscordMessageWithRetry(DiscordMessage{Embeds: []DiscordEmbed{embed}})
}

// sendDiscordMissingSPNotification sends a missing-signage-point warning to Discord.
func (n *Notifier) sendDiscordMissingSPNotification(at int64, skipped uint32) {
	embed := DiscordEmbed{
		Title:       "Missing Signage Points",
		Description: fmt.Sprintf("**%s** detected a gap in signage points from the full node", n.cfg.FarmerName),
		Color:       0xFFA500, // Orange
		Fields: []DiscordField{
			{Name: "Detected At", Value: time.Unix(at, 0).UTC().Format(time.RFC3339), Inline: true},
			{Name: "Skipped", Value: fmt.Sprintf("%d", skipped), Inline: true},
		},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Footer:    &DiscordFooter{Text: n.cfg.FarmerName},
	}

	n.sendDiscordMessageWithRetry(DiscordMessage{Embeds: []DiscordEmbed{embed}})
}

// sendDiscordMessageWithRetry sends a message to Discord with exponential backoff retry.
func (n *Notifier) sendDiscordMessageWithRetry(msg DiscordMessage) {
	body, err := json.Marshal(msg)
	if err != nil {
		util.Warnf("Failed to marshal Discord message: %v", err)
		return
	}

	var lastErr error
	for attempt := 0; attempt < MaxRetries; attempt++ {
		if attempt > 0 {
			// Exponential backoff: 2s, 4s
			delay := RetryBaseDelay * time.Duration(1<<uint(attempt-1))
			time.Sleep(delay)
		}

		resp, err := n.client.Post(n.cfg.DiscordURL, "application/json", bytes.NewReader(body))
		if err != nil {
			lastErr = err
			continue
		}

		resp.Body.Close()

		if resp.StatusCode < 400 {
			return // Success
		}

		// Rate limited - wait longer
		if resp.StatusCode == 429 {
			time.Sleep(5 * time.Second)
			continue
		}

		lastErr = fmt.Errorf("status %d", resp.StatusCode)
	}

	if lastErr != nil {
		util.Warnf("Failed to send Discord notification after %d attempts: %v", MaxRetries, lastErr)
	}
}

// TelegramMessage represents a Telegram bot message.
type TelegramMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

// sendTelegramProofNotification sends a proof-found notification to Telegram.
func (n *Notifier) sendTelegramProofNotification(spHash, plotIdentifier, qualityString string) {
	text := fmt.Sprintf(
		"*Proof of Space Found*\n\n"+
			"Signage Point: `%s`\n"+
			"Plot: `%s`\n"+
			"Quality: `%s`",
		truncateHash(spHash), truncateHash(plotIdentifier), truncateHash(qualityString),
	)

	n.sendTelegramMessageWithRetry(text)
}

// sendTelegramMissingSPNotification sends a missing-signage-point warning to Telegram.
func (n *Notifier) sendTelegramMissingSPNotification(at int64, skipped uint32) {
	text := fmt.Sprintf(
		"*Missing Signage Points*\n\n"+
			"Detected At: `%s`\n"+
			"Skipped: `%d`",
		time.Unix(at, 0).UTC().Format(time.RFC3339), skipped,
	)

	n.sendTelegramMessageWithRetry(text)
}

// sendTelegramMessageWithRetry sends a message via Telegram with exponential backoff retry.
func (n *Notifier) sendTelegramMessageWithRetry(text string) {
	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", n.cfg.TelegramBot)

	msg := TelegramMessage{
		ChatID:    n.cfg.TelegramChat,
		Text:      text,
		ParseMode: "Markdown",
	}

	body, err := json.Marshal(msg)
	if err != nil {
		util.Warnf("Failed to marshal Telegram message: %v", err)
		return
	}

	var lastErr error
	for attempt := 0; attempt < MaxRetries; attempt++ {
		if attempt > 0 {
			delay := RetryBaseDelay * time.Duration(1<<uint(attempt-1))
			time.Sleep(delay)
		}

		resp, err := n.client.Post(url, "application/json", bytes.NewReader(body))
		if err != nil {
			lastErr = err
			continue
		}

		resp.Body.Close()

		if resp.StatusCode < 400 {
			return // Success
		}

		// Rate limited
		if resp.StatusCode == 429 {
			time.Sleep(5 * time.Second)
			continue
		}

		lastErr = fmt.Errorf("status %d", resp.StatusCode)
	}

	if lastErr != nil {
		util.Warnf("Failed to send Telegram notification after %d attempts: %v", MaxRetries, lastErr)
	}
}

// truncateHash returns a shortened hash/identifier for display.
func truncateHash(hash string) string {
	if len(hash) <= 20 {
		return hash
	}
	return hash[:10] + "..." + hash[len(hash)-8:]
}
