package openrouter

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/ghostwrite/ai/tracker"
	"github.com/teranos/ghostwrite/errors"
	"github.com/teranos/ghostwrite/internal/httpclient"
)

const (
	// DefaultModel matches openrouter.model in am/defaults.go
	DefaultModel = "openai/gpt-4o-mini"

	// DefaultBaseURL is the OpenRouter API root
	DefaultBaseURL = "https://openrouter.ai/api/v1"

	maxRetries = 3
)

// Client is an OpenRouter.ai chat client with usage tracking
type Client struct {
	apiKey       string
	baseURL      string
	httpClient   *httpclient.SaferClient
	config       Config
	usageTracker *tracker.UsageTracker
	logger       *zap.SugaredLogger
	retryDelay   time.Duration
}

// Config holds AI client configuration
type Config struct {
	APIKey        string
	Model         string
	BaseURL       string   // empty = DefaultBaseURL
	Temperature   *float64 // nil = use default (0.2)
	MaxTokens     *int     // nil = use default (256)
	Logger        *zap.SugaredLogger
	DB            *sql.DB // usage tracking; nil disables
	Verbosity     int
	OperationType string // e.g. "completion"
	EntityType    string
	EntityID      string
}

// NewClient creates a new OpenRouter.ai client
func NewClient(config Config) *Client {
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.Temperature == nil {
		defaultTemp := 0.2
		config.Temperature = &defaultTemp
	}
	if config.MaxTokens == nil {
		defaultTokens := 256
		config.MaxTokens = &defaultTokens
	}
	if config.OperationType == "" {
		config.OperationType = tracker.OperationCompletion
	}

	var usageTracker *tracker.UsageTracker
	if config.DB != nil {
		usageTracker = tracker.NewUsageTracker(config.DB, config.Verbosity)
	}

	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	return &Client{
		apiKey:       config.APIKey,
		baseURL:      strings.TrimRight(config.BaseURL, "/"),
		httpClient:   httpclient.NewSaferClient(60 * time.Second),
		config:       config,
		usageTracker: usageTracker,
		logger:       logger,
		retryDelay:   500 * time.Millisecond,
	}
}

// ChatCompletionRequest represents a request to the chat completions endpoint
type ChatCompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Stop        []string  `json:"stop,omitempty"`
}

// ChatRequest represents a high-level request to the AI
type ChatRequest struct {
	SystemPrompt string
	UserPrompt   string
	Temperature  *float64 // Override default temperature
	MaxTokens    *int     // Override default max tokens
	Model        *string  // Override default model
	Stop         []string

	// Tracking context, overriding the client config when set
	EntityType string
	EntityID   string
	Metadata   *tracker.UsageMetadata
}

// ChatResponse represents the AI response
type ChatResponse struct {
	Content string
	Model   string
	Usage   Usage
}

// Message represents a message in a chat completion
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatCompletionResponse represents the response from chat completions
type ChatCompletionResponse struct {
	ID      string   `json:"id"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

// Choice represents a completion choice
type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// Usage represents token usage information
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// StatusError is a non-200 response from the API
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API request failed with status %d: %s", e.StatusCode, e.Body)
}

// CreateChatCompletion sends a single chat completion request to OpenRouter
func (c *Client) CreateChatCompletion(ctx context.Context, req ChatCompletionRequest) (*ChatCompletionResponse, error) {
	reqBody, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(reqBody))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("X-Title", "ghostwrite/"+c.config.OperationType)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(err, "failed to send request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, errors.WithStack(&StatusError{StatusCode: resp.StatusCode, Body: string(respBody)})
	}

	var chatResp ChatCompletionResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal response")
	}

	return &chatResp, nil
}

// Chat sends a chat completion request with retries and usage tracking.
// Cancellation of ctx stops retries immediately.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if c.config.APIKey == "" {
		return nil, errors.WithHint(errors.New("OpenRouter API key not configured"),
			"set OPENROUTER_API_KEY or openrouter.api_key in am.toml")
	}

	temperature := *c.config.Temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	maxTokens := *c.config.MaxTokens
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}
	model := c.config.Model
	if req.Model != nil && *req.Model != "" {
		model = *req.Model
	}

	c.logger.Debugw("OpenRouter chat request",
		"model", model,
		"temperature", temperature,
		"max_tokens", maxTokens,
		"prompt_chars", len(req.UserPrompt),
	)

	messages := []Message{{Role: "user", Content: req.UserPrompt}}
	if req.SystemPrompt != "" {
		messages = append([]Message{{Role: "system", Content: req.SystemPrompt}}, messages...)
	}

	apiReq := ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   maxTokens,
		Stop:        req.Stop,
	}

	requestTime := time.Now()
	var resp *ChatCompletionResponse
	var err error

	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(attempt) * c.retryDelay
			c.logger.Debugw("Retrying OpenRouter request", "attempt", attempt, "delay", delay)
			select {
			case <-ctx.Done():
				return nil, errors.Wrap(ctx.Err(), "OpenRouter request cancelled")
			case <-time.After(delay):
			}
		}

		resp, err = c.CreateChatCompletion(ctx, apiReq)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return nil, errors.Wrap(ctx.Err(), "OpenRouter request cancelled")
		}

		c.logger.Warnw("OpenRouter API error", "attempt", attempt+1, "error", err, "model", model)

		if !isRetryableError(err) {
			c.trackUsage(ctx, req, requestTime, model, temperature, maxTokens, nil, err)
			return nil, errors.Wrap(err, "OpenRouter API error")
		}
	}

	if err != nil {
		c.trackUsage(ctx, req, requestTime, model, temperature, maxTokens, nil, err)
		return nil, errors.Wrapf(err, "OpenRouter API error after %d attempts", maxRetries)
	}

	if len(resp.Choices) == 0 {
		return nil, errors.New("no response choices from OpenRouter")
	}

	c.trackUsage(ctx, req, requestTime, model, temperature, maxTokens, &resp.Usage, nil)

	return &ChatResponse{
		Content: resp.Choices[0].Message.Content,
		Model:   model,
		Usage:   resp.Usage,
	}, nil
}

// isRetryableError reports network failures, rate limits and server errors
func isRetryableError(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == http.StatusTooManyRequests || statusErr.StatusCode >= 500
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case syscall.ECONNREFUSED, syscall.ECONNRESET, syscall.ETIMEDOUT:
			return true
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, s := range []string{"connection reset by peer", "connection refused", "temporary failure", "network is unreachable", "i/o timeout"} {
		if strings.Contains(errStr, s) {
			return true
		}
	}
	return false
}

// trackUsage records the call; tracking failures are logged, never returned
func (c *Client) trackUsage(ctx context.Context, req ChatRequest, requestTime time.Time, model string, temperature float64, maxTokens int, usage *Usage, callErr error) {
	if c.usageTracker == nil {
		return
	}

	entityType, entityID := c.config.EntityType, c.config.EntityID
	if req.EntityType != "" {
		entityType = req.EntityType
	}
	if req.EntityID != "" {
		entityID = req.EntityID
	}

	responseTime := time.Now()
	record := &tracker.ModelUsage{
		OperationType:     c.config.OperationType,
		EntityType:        entityType,
		EntityID:          entityID,
		ModelName:         model,
		ModelProvider:     "openrouter",
		ModelConfig:       tracker.NewModelConfig(&temperature, &maxTokens),
		RequestTimestamp:  requestTime,
		ResponseTimestamp: &responseTime,
		Success:           callErr == nil,
	}
	if req.Metadata != nil {
		record.Metadata = tracker.NewUsageMetadata(*req.Metadata)
	}
	if usage != nil {
		tokens := usage.TotalTokens
		cost := CalculateCost(model, usage.PromptTokens, usage.CompletionTokens)
		record.TokensUsed = &tokens
		record.Cost = &cost
	}
	if callErr != nil {
		msg := callErr.Error()
		record.ErrorMessage = &msg
	}

	// The request context may already be cancelled by a superseding keystroke
	trackCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := c.usageTracker.TrackUsage(trackCtx, record); err != nil {
		c.logger.Warnw("Failed to track usage", "error", err, "model", model)
	}
}

// IsConfigured returns true if the client has an API key
func (c *Client) IsConfigured() bool {
	return c.config.APIKey != ""
}

// Model returns the default model
func (c *Client) Model() string {
	return c.config.Model
}

// SetHTTPClient overrides the HTTP client without SSRF protection.
// Only tests should use it, to reach httptest servers.
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = httpclient.WrapClient(client)
}

// SetBaseURL points the client at a different API root
func (c *Client) SetBaseURL(baseURL string) {
	c.baseURL = strings.TrimRight(baseURL, "/")
}
