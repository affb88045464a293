package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"strings"
	"time"
)

// telegramAPIBase is the Bot API host.
const telegramAPIBase = "https://api.telegram.org"

// TelegramSender delivers alerts through the Telegram Bot API, one HTML
// message per alert.
type TelegramSender struct {
	endpoint string
	chatID   string
	client   *http.Client
}

// NewTelegramSender creates a TelegramSender for the given bot token and chat
// ID.
func NewTelegramSender(token, chatID string) *TelegramSender {
	return &TelegramSender{
		endpoint: fmt.Sprintf("%s/bot%s/sendMessage", telegramAPIBase, token),
		chatID:   chatID,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

// telegramMessage is the sendMessage request body.
type telegramMessage struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

// telegramText renders one alert as HTML, with the event tag and bold title
// on the first line and the escaped body below.
func telegramText(event, title, message string) string {
	var b strings.Builder
	if tag := eventTag(event); tag != "" {
		b.WriteString(tag)
		b.WriteByte(' ')
	}
	b.WriteString("<b>")
	b.WriteString(html.EscapeString(title))
	b.WriteString("</b>\n")
	b.WriteString(html.EscapeString(message))
	return b.String()
}

// Send posts the alert to the configured chat.
func (t *TelegramSender) Send(ctx context.Context, event, title, message string) error {
	body, err := json.Marshal(telegramMessage{
		ChatID:                t.chatID,
		Text:                  telegramText(event, title, message),
		ParseMode:             "HTML",
		DisableWebPagePreview: true,
	})
	if err != nil {
		return fmt.Errorf("telegram: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("telegram: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// Name returns the sender identifier.
func (t *TelegramSender) Name() string {
	return "telegram"
}
