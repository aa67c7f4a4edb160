// Package openai is the chat-completions and embeddings client. It
// speaks the OpenAI wire API, so any compatible endpoint (including
// local gateways) can serve the models.
package openai

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mosarlab/graphrag/internal/core/ports"
	"github.com/mosarlab/graphrag/internal/infrastructure/resilience"
)

type Options struct {
	ChatModel          string
	EmbedModel         string
	EmbedDimension     int
	RequestTimeout     time.Duration
	ResilienceExecutor *resilience.Executor
	Logger             *slog.Logger
}

type Client struct {
	baseURL    string
	apiKey     string
	chatModel  string
	embedModel string
	embedDim   int
	httpClient *http.Client
	executor   *resilience.Executor
	logger     *slog.Logger
}

func New(baseURL, apiKey string, options Options) *Client {
	timeout := options.RequestTimeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	chatModel := options.ChatModel
	if chatModel == "" {
		chatModel = "gpt-4o"
	}
	embedModel := options.EmbedModel
	if embedModel == "" {
		embedModel = "text-embedding-3-large"
	}
	embedDim := options.EmbedDimension
	if embedDim <= 0 {
		embedDim = 3072
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		chatModel:  chatModel,
		embedModel: embedModel,
		embedDim:   embedDim,
		httpClient: &http.Client{Timeout: timeout},
		executor:   options.ResilienceExecutor,
		logger:     logger,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Complete runs one chat completion and returns the assistant text.
func (c *Client) Complete(ctx context.Context, system, user string, opts ports.CompletionOptions) (string, error) {
	request := chatRequest{
		Model:       c.chatModel,
		Messages:    buildMessages(system, user),
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	}

	var response chatResponse
	call := func(ctx context.Context) error {
		return c.postJSON(ctx, "/v1/chat/completions", request, &response, "chat")
	}

	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, "openai.chat", call, classifyOpenAIError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return "", wrapTemporaryIfNeeded("chat completion", err)
	}
	if len(response.Choices) == 0 {
		return "", fmt.Errorf("chat completion: empty choices")
	}
	return response.Choices[0].Message.Content, nil
}

func buildMessages(system, user string) []chatMessage {
	messages := make([]chatMessage, 0, 2)
	if strings.TrimSpace(system) != "" {
		messages = append(messages, chatMessage{Role: "system", Content: system})
	}
	messages = append(messages, chatMessage{Role: "user", Content: user})
	return messages
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// EmbedQuery embeds one text. On failure it degrades to an all-zero
// vector of the configured dimension: semantic search then returns
// nothing rather than failing the whole question.
func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	request := embedRequest{Model: c.embedModel, Input: []string{text}}

	var response embedResponse
	call := func(ctx context.Context) error {
		return c.postJSON(ctx, "/v1/embeddings", request, &response, "embed")
	}

	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, "openai.embed", call, classifyOpenAIError)
	} else {
		err = call(ctx)
	}
	if err != nil || len(response.Data) == 0 {
		c.logger.Warn("embedding failed, degrading to zero vector", "error", err)
		return make([]float32, c.embedDim), nil
	}
	return response.Data[0].Embedding, nil
}

func (c *Client) Dimension() int { return c.embedDim }
