package notify

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Telegram rejects messages over 4096 characters.
const telegramMessageLimit = 4096

// TelegramSender delivers notifications through the Telegram Bot API.
type TelegramSender struct {
	token   string
	chatID  string
	baseURL string
	client  *http.Client
}

// NewTelegramSender creates a TelegramSender for the given bot token and
// chat ID.
func NewTelegramSender(token, chatID string) *TelegramSender {
	return &TelegramSender{
		token:   token,
		chatID:  chatID,
		baseURL: "https://api.telegram.org",
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Send posts the message via sendMessage. The title is rendered bold and the
// body wrapped in a code block so JSON payloads stay readable; oversized
// bodies are cut to Telegram's message limit.
func (t *TelegramSender) Send(ctx context.Context, title, message string) error {
	text := fmt.Sprintf("*%s*\n```\n%s\n```", title, message)
	payload := map[string]string{
		"chat_id":                  t.chatID,
		"text":                     truncate(text, telegramMessageLimit),
		"parse_mode":               "Markdown",
		"disable_web_page_preview": "true",
	}
	return postJSON(ctx, t.client, "telegram", t.baseURL+"/bot"+t.token+"/sendMessage", payload)
}

// Name returns the sender identifier.
func (t *TelegramSender) Name() string { return "telegram" }
