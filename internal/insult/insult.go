// Package insult produces shaming text for latecomers, either from a chat
// completion endpoint or from a fixed rotation of lines.
package insult

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/example/chronopact/internal/application"
)

const (
	defaultModel   = "gpt-4o-mini"
	defaultTimeout = 10 * time.Second
	maxTokens      = 80
)

const systemPrompt = "You write one short, playful, non-offensive roast for gamers who are late to a session. No slurs, no threats, one sentence."

// HTTP calls an OpenAI compatible chat completion endpoint.
type HTTP struct {
	endpoint string
	apiKey   string
	model    string
	client   *http.Client
}

// HTTPConfig configures the completion client.
type HTTPConfig struct {
	Endpoint string
	APIKey   string
	Model    string
	Timeout  time.Duration
	Client   *http.Client
}

// NewHTTP constructs a completion client.
func NewHTTP(cfg HTTPConfig) *HTTP {
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	client := cfg.Client
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	return &HTTP{endpoint: cfg.Endpoint, apiKey: cfg.APIKey, model: model, client: client}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Prompt renders the user prompt for input.
func Prompt(input application.InsultContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s kept everyone waiting for %d minutes", strings.Join(input.SubjectNames, " and "), input.ElapsedMinutes)
	if input.Activity != "" {
		fmt.Fprintf(&b, " before %s", input.Activity)
	}
	b.WriteString(". Roast them.")
	return b.String()
}

// Generate implements application.InsultGenerator.
func (h *HTTP) Generate(ctx context.Context, input application.InsultContext) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: h.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: Prompt(input)},
		},
		MaxTokens: maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("%w: encode request: %w", application.ErrGeneration, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: build request: %w", application.ErrGeneration, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if h.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.apiKey)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", application.ErrGeneration, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("%w: status %d: %s", application.ErrGeneration, resp.StatusCode, bytes.TrimSpace(snippet))
	}

	var decoded chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("%w: decode response: %w", application.ErrGeneration, err)
	}
	if len(decoded.Choices) == 0 {
		return "", fmt.Errorf("%w: empty completion", application.ErrGeneration)
	}
	text := strings.TrimSpace(decoded.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("%w: empty completion", application.ErrGeneration)
	}
	return text, nil
}

var cannedLines = []string{
	"the rest of the party aged a year waiting for you.",
	"even the loading screen was faster than you.",
	"your teammates have started a fan club for your absence.",
	"the lobby is getting cobwebs.",
	"is your internet powered by a hamster?",
}

// Canned rotates through fixed lines, picked by elapsed minutes so the same
// input always yields the same text.
type Canned struct{}

// Generate implements application.InsultGenerator.
func (Canned) Generate(_ context.Context, input application.InsultContext) (string, error) {
	idx := input.ElapsedMinutes % len(cannedLines)
	if idx < 0 {
		idx = -idx
	}
	return fmt.Sprintf("%s, %s", strings.Join(input.SubjectNames, ", "), cannedLines[idx]), nil
}
