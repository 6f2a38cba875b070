package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Message is one turn of a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Backend answers a conversation with the next assistant message.
type Backend interface {
	Chat(ctx context.Context, messages []Message) (Message, error)
}

// Options configures the Ollama chat client.
type Options struct {
	BaseURL     string
	Model       string
	Temperature float64
	Timeout     time.Duration
	HTTPClient  *http.Client
	Logger      *zerolog.Logger
}

// OllamaClient calls the Ollama /api/chat endpoint without streaming.
type OllamaClient struct {
	baseURL     string
	model       string
	temperature float64
	http        *http.Client
	logger      zerolog.Logger
}

type chatRequest struct {
	Model    string      `json:"model"`
	Messages []Message   `json:"messages"`
	Stream   bool        `json:"stream"`
	Options  chatOptions `json:"options"`
}

type chatOptions struct {
	Temperature float64 `json:"temperature"`
}

type chatResponse struct {
	Message Message `json:"message"`
	Error   string  `json:"error"`
}

// NewOllamaClient applies defaults for local development.
func NewOllamaClient(opts Options) *OllamaClient {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 5 * time.Minute
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = "llama3"
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &OllamaClient{
		baseURL:     baseURL,
		model:       model,
		temperature: opts.Temperature,
		http:        httpClient,
		logger:      logger,
	}
}

// Model returns the configured model name.
func (c *OllamaClient) Model() string { return c.model }

// Chat sends the full history and returns the assistant's reply.
func (c *OllamaClient) Chat(ctx context.Context, messages []Message) (Message, error) {
	body, err := json.Marshal(chatRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   false,
		Options:  chatOptions{Temperature: c.temperature},
	})
	if err != nil {
		return Message{}, fmt.Errorf("chat: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return Message{}, fmt.Errorf("chat: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return Message{}, fmt.Errorf("chat: call %s: %w", c.model, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return Message{}, fmt.Errorf("chat: read response: %w", err)
	}

	var decoded chatResponse
	_ = json.Unmarshal(raw, &decoded)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := decoded.Error
		if msg == "" {
			msg = strings.TrimSpace(string(raw))
		}
		c.logger.Error().Int("status", resp.StatusCode).Str("error", msg).Msg("chat backend rejected request")
		return Message{}, fmt.Errorf("chat: status %d: %s", resp.StatusCode, msg)
	}
	if decoded.Message.Content == "" {
		return Message{}, errors.New("chat: empty reply")
	}
	if decoded.Message.Role == "" {
		decoded.Message.Role = RoleAssistant
	}
	c.logger.Debug().Dur("took", time.Since(start)).Int("chars", len(decoded.Message.Content)).Msg("chat reply received")
	return decoded.Message, nil
}
