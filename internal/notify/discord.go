package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// discordUsername is the webhook display name for engine alerts.
const discordUsername = "r2 arbitrage"

// DiscordSender delivers alerts to a Discord webhook as a single embed per
// alert, color-coded by event type.
type DiscordSender struct {
	webhookURL string
	client     *http.Client
}

// NewDiscordSender creates a DiscordSender for the given webhook URL.
func NewDiscordSender(webhookURL string) *DiscordSender {
	return &DiscordSender{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// discordColor picks the embed accent color for an event type.
func discordColor(event string) int {
	switch event {
	case EventPairOpened:
		return 0x2ecc71 // green
	case EventPairClosed:
		return 0x3498db // blue
	case EventSingleLeg:
		return 0xe67e22 // orange
	case EventFatalError:
		return 0xe74c3c // red
	default:
		return 0x95a5a6 // grey
	}
}

type discordEmbed struct {
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Color       int           `json:"color"`
	Timestamp   string        `json:"timestamp"`
	Footer      discordFooter `json:"footer"`
}

type discordFooter struct {
	Text string `json:"text"`
}

type discordPayload struct {
	Username string         `json:"username"`
	Embeds   []discordEmbed `json:"embeds"`
}

// newDiscordEmbed shapes one alert as an embed. The event type lands in the
// footer so filtered feeds stay searchable.
func newDiscordEmbed(event, title, message string) discordEmbed {
	return discordEmbed{
		Title:       title,
		Description: message,
		Color:       discordColor(event),
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		Footer:      discordFooter{Text: event},
	}
}

// Send posts the alert to the webhook. Discord returns 204 No Content on
// success.
func (d *DiscordSender) Send(ctx context.Context, event, title, message string) error {
	body, err := json.Marshal(discordPayload{
		Username: discordUsername,
		Embeds:   []discordEmbed{newDiscordEmbed(event, title, message)},
	})
	if err != nil {
		return fmt.Errorf("discord: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("discord: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("discord: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("discord: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// Name returns the sender identifier.
func (d *DiscordSender) Name() string {
	return "discord"
}
