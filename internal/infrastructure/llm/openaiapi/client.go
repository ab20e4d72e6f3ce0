package openaiapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cdco-dev/chantier-assistant/internal/core/domain"
	"github.com/cdco-dev/chantier-assistant/internal/infrastructure/resilience"
)

// Client speaks the OpenAI-compatible chat and embeddings API. One instance
// is shared by the chat streamer, the query expander and the embedder.
type Client struct {
	baseURL    string
	apiKey     string
	chatModel  string
	embedModel string
	httpClient *http.Client
	exec       *resilience.Executor
}

type Config struct {
	BaseURL    string
	APIKey     string
	ChatModel  string
	EmbedModel string
	Timeout    time.Duration
	Resilience resilience.Policy
}

// New validates credentials up front: a missing API key fails the process at
// startup instead of on the first user request.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, domain.WrapError(domain.ErrCredentials, "llm client init",
			fmt.Errorf("API key is not set"))
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if cfg.ChatModel == "" {
		cfg.ChatModel = "gpt-4o"
	}
	if cfg.EmbedModel == "" {
		cfg.EmbedModel = "text-embedding-3-small"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		chatModel:  cfg.ChatModel,
		embedModel: cfg.EmbedModel,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		exec:       resilience.NewExecutor(cfg.Resilience),
	}, nil
}

func (c *Client) ChatModel() string { return c.chatModel }

// Embed vectorizes a batch of texts in one API call, retried under the
// embedding policy. Rate limiting surfaces as domain.ErrRateLimited so the
// ingestion pipeline can degrade to one-at-a-time processing.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	request := map[string]any{
		"model": c.embedModel,
		"input": texts,
	}

	var response struct {
		Data []struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}

	err := c.exec.Execute(ctx, "embeddings", func(ctx context.Context) error {
		return c.postJSON(ctx, "/embeddings", request, &response, "embeddings")
	}, resilience.ClassifyByKind)
	if err != nil {
		return nil, err
	}

	if len(response.Data) != len(texts) {
		return nil, fmt.Errorf("embeddings: got %d vectors for %d inputs", len(response.Data), len(texts))
	}
	vectors := make([][]float32, len(texts))
	for _, item := range response.Data {
		if item.Index < 0 || item.Index >= len(vectors) {
			return nil, fmt.Errorf("embeddings: index %d out of range", item.Index)
		}
		vectors[item.Index] = item.Embedding
	}
	return vectors, nil
}

func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, fmt.Errorf("embeddings: empty result")
	}
	return vectors[0], nil
}

// RunPrompt is the short non-streaming completion used by query expansion.
func (c *Client) RunPrompt(ctx context.Context, model, prompt string) (string, error) {
	if model == "" {
		model = c.chatModel
	}

	request := map[string]any{
		"model": model,
		"messages": []chatMessagePayload{
			{Role: "user", Content: prompt},
		},
	}

	var response struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}

	err := c.exec.Execute(ctx, "chat_completion", func(ctx context.Context) error {
		return c.postJSON(ctx, "/chat/completions", request, &response, "chat completion")
	}, resilience.ClassifyByKind)
	if err != nil {
		return "", err
	}
	if len(response.Choices) == 0 {
		return "", fmt.Errorf("chat completion: no choices returned")
	}
	return strings.TrimSpace(response.Choices[0].Message.Content), nil
}
