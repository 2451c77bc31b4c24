// Package llm is a client for the OpenAI REST API covering the two calls
// counsel makes: chat completions for the agents and embeddings for the
// ingestion and retrieval paths.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/counselai/counsel/internal/fault"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultTimeout = 120 * time.Second
	maxRetries     = 3
	initialBackoff = 500 * time.Millisecond
)

// modelDimensions maps embedding model names to their vector sizes.
var modelDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// Message is a single chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatOptions tunes a single chat completion call.
type ChatOptions struct {
	MaxTokens   int
	Temperature float64
}

// Config holds client configuration. APIKey is required.
type Config struct {
	APIKey     string
	BaseURL    string // default https://api.openai.com/v1
	ChatModel  string // default gpt-4o
	EmbedModel string // default text-embedding-3-small
	Timeout    time.Duration
}

// Client communicates with an OpenAI-compatible API.
type Client struct {
	apiKey     string
	baseURL    string
	chatModel  string
	embedModel string
	dimensions int
	httpClient *http.Client
}

// New creates a Client. Fails with a configuration fault when the API key
// is missing.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fault.New(fault.KindConfiguration, "llm.new", "OpenAI API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.ChatModel == "" {
		cfg.ChatModel = "gpt-4o"
	}
	if cfg.EmbedModel == "" {
		cfg.EmbedModel = "text-embedding-3-small"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}

	dims, ok := modelDimensions[cfg.EmbedModel]
	if !ok {
		dims = 1536
	}

	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		chatModel:  cfg.ChatModel,
		embedModel: cfg.EmbedModel,
		dimensions: dims,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// ChatModel returns the configured chat model name.
func (c *Client) ChatModel() string { return c.chatModel }

// EmbedModel returns the configured embedding model name.
func (c *Client) EmbedModel() string { return c.embedModel }

// Dimensions returns the embedding vector size of the configured model.
func (c *Client) Dimensions() int { return c.dimensions }

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *apiError `json:"error,omitempty"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// rateLimitError is returned on HTTP 429 so Chat can retry with backoff.
type rateLimitError struct {
	status int
}

func (e *rateLimitError) Error() string {
	return fmt.Sprintf("rate limited (HTTP %d)", e.status)
}

func isRateLimit(err error) bool {
	_, ok := err.(*rateLimitError)
	return ok
}

// Chat sends a chat completion request and returns the assistant's text.
// Rate-limit responses are retried with exponential backoff; all other API
// failures surface immediately as model faults.
func (c *Client) Chat(ctx context.Context, messages []Message, opts ChatOptions) (string, error) {
	req := chatRequest{
		Model:       c.chatModel,
		Messages:    messages,
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
	}
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshaling chat request: %w", err)
	}

	var lastErr error
	for attempt := range maxRetries {
		content, err := c.doChat(ctx, body)
		if err == nil {
			return content, nil
		}

		if !isRateLimit(err) {
			return "", err
		}

		lastErr = err
		if attempt < maxRetries-1 {
			backoff := time.Duration(float64(initialBackoff) * math.Pow(2, float64(attempt)))
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
		}
	}

	return "", fault.Wrap(fault.KindModel, "llm.chat",
		fmt.Errorf("rate limited after %d retries: %w", maxRetries, lastErr))
}

func (c *Client) doChat(ctx context.Context, body []byte) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating chat request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fault.Wrap(fault.KindConnectivity, "llm.chat", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", &rateLimitError{status: resp.StatusCode}
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fault.Wrap(fault.KindConnectivity, "llm.chat", err)
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fault.Wrap(fault.KindModel, "llm.chat",
			fmt.Errorf("decoding response (status %d): %w", resp.StatusCode, err))
	}
	if parsed.Error != nil {
		return "", fault.New(fault.KindModel, "llm.chat", "%s: %s", parsed.Error.Type, parsed.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fault.New(fault.KindModel, "llm.chat", "unexpected status %d: %s", resp.StatusCode, string(respBody))
	}
	if len(parsed.Choices) == 0 {
		return "", fault.New(fault.KindModel, "llm.chat", "no response choices returned")
	}

	return parsed.Choices[0].Message.Content, nil
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Error *apiError `json:"error,omitempty"`
}

// Embed returns the embedding vector for a single text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 || vecs[0] == nil {
		return nil, fault.New(fault.KindEmbedding, "llm.embed", "no embedding returned")
	}
	return vecs[0], nil
}

// EmbedBatch returns embedding vectors for multiple texts in a single API
// call, ordered to match the input. Returns nil (not error) for empty input.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(embeddingRequest{Model: c.embedModel, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("marshaling embedding request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating embedding request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fault.Wrap(fault.KindConnectivity, "llm.embed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fault.Wrap(fault.KindConnectivity, "llm.embed", err)
	}

	var parsed embeddingResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fault.Wrap(fault.KindEmbedding, "llm.embed",
			fmt.Errorf("decoding response (status %d): %w", resp.StatusCode, err))
	}
	if parsed.Error != nil {
		return nil, fault.New(fault.KindEmbedding, "llm.embed", "%s: %s", parsed.Error.Type, parsed.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fault.New(fault.KindEmbedding, "llm.embed", "unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	vecs := make([][]float32, len(texts))
	for _, d := range parsed.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, fault.New(fault.KindEmbedding, "llm.embed", "embedding index %d out of range", d.Index)
		}
		vec := make([]float32, len(d.Embedding))
		for i, v := range d.Embedding {
			vec[i] = float32(v)
		}
		vecs[d.Index] = vec
	}
	return vecs, nil
}

// Ping validates the API key by listing models. Used at session creation to
// fail fast on bad credentials before any document work starts.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", http.NoBody)
	if err != nil {
		return fmt.Errorf("creating ping request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fault.Wrap(fault.KindConnectivity, "llm.ping", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fault.New(fault.KindConfiguration, "llm.ping", "API returned status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
}
