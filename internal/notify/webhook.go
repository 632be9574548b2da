// Package notify delivers messages to the chat platform.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/example/chronopact/internal/application"
)

const defaultTimeout = 10 * time.Second

// Webhook posts messages as JSON to a gateway endpoint and reads the created
// message reference from the response body.
type Webhook struct {
	url    string
	client *http.Client
}

// NewWebhook targets url. A nil client gets a client with a 10s timeout.
func NewWebhook(url string, client *http.Client) *Webhook {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	return &Webhook{url: url, client: client}
}

type webhookField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

type webhookEmbed struct {
	Title  string         `json:"title,omitempty"`
	Fields []webhookField `json:"fields,omitempty"`
}

type webhookPayload struct {
	Channel  string         `json:"channel"`
	Content  string         `json:"content,omitempty"`
	Embeds   []webhookEmbed `json:"embeds,omitempty"`
	Mentions []string       `json:"mentions,omitempty"`
}

type webhookResponse struct {
	ID string `json:"id"`
}

// Send implements application.Notifier.
func (w *Webhook) Send(ctx context.Context, channel string, msg application.Message) (string, error) {
	body, err := json.Marshal(toPayload(channel, msg))
	if err != nil {
		return "", fmt.Errorf("%w: encode message: %w", application.ErrDelivery, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: build request: %w", application.ErrDelivery, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", application.ErrDelivery, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("%w: status %d: %s", application.ErrDelivery, resp.StatusCode, bytes.TrimSpace(snippet))
	}

	var decoded webhookResponse
	if resp.StatusCode == http.StatusNoContent {
		return "", nil
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil && err != io.EOF {
		return "", fmt.Errorf("%w: decode response: %w", application.ErrDelivery, err)
	}
	return decoded.ID, nil
}

func toPayload(channel string, msg application.Message) webhookPayload {
	payload := webhookPayload{
		Channel:  channel,
		Content:  msg.Content,
		Mentions: msg.Mentions,
	}
	if msg.Title != "" || len(msg.Fields) > 0 {
		embed := webhookEmbed{Title: msg.Title}
		for _, f := range msg.Fields {
			embed.Fields = append(embed.Fields, webhookField{Name: f.Name, Value: f.Value, Inline: f.Inline})
		}
		payload.Embeds = []webhookEmbed{embed}
	}
	return payload
}
