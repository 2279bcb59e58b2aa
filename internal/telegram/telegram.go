// Package telegram is the downtime collaborator's report sink (§6): a thin
// POST client against the Telegram bot API, out of the core's scope per
// spec but wired into cmd/downtime-report as a complete collaborator.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/rainarb/solver/internal/errs"
)

const apiBaseURL = "https://api.telegram.org"

// sendMessageRequest mirrors §6: POST .../bot<token>/sendMessage with
// {text, parse_mode: "HTML", chat_id}.
type sendMessageRequest struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

// Client posts downtime reports to a single Telegram bot/chat pair.
type Client struct {
	HTTPClient *http.Client
	BotToken   string
	ChatID     string
	baseURL    string // overridable in tests; defaults to apiBaseURL
}

// New constructs a Client for the given bot token and chat id.
func New(botToken, chatID string) *Client {
	return &Client{HTTPClient: http.DefaultClient, BotToken: botToken, ChatID: chatID, baseURL: apiBaseURL}
}

// SendHTML posts text as an HTML-parsed message to the configured chat.
func (c *Client) SendHTML(ctx context.Context, text string) error {
	base := c.baseURL
	if base == "" {
		base = apiBaseURL
	}

	body, err := json.Marshal(sendMessageRequest{ChatID: c.ChatID, Text: text, ParseMode: "HTML"})
	if err != nil {
		return errs.Wrap(errs.KindInternal, err, "telegram: marshal request")
	}

	url := base + "/bot" + c.BotToken + "/sendMessage"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return errs.Wrap(errs.KindTransport, err, "telegram: build request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return errs.Wrap(errs.KindTransport, err, "telegram: request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errs.New(errs.KindTransport, "telegram: unexpected status "+resp.Status)
	}
	return nil
}
