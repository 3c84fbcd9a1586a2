package anthropic

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/ghostwrite/ai/openrouter"
	"github.com/teranos/ghostwrite/ai/tracker"
	"github.com/teranos/ghostwrite/errors"
	"github.com/teranos/ghostwrite/internal/httpclient"
)

const (
	// DefaultModel matches anthropic.model in am/defaults.go
	DefaultModel = "claude-3-5-haiku-latest"

	// BaseURL is the Anthropic API endpoint
	BaseURL = "https://api.anthropic.com/v1"

	// APIVersion is the required Anthropic API version header
	APIVersion = "2023-06-01"

	maxRetries = 3
)

// Client is an Anthropic Messages API client
type Client struct {
	apiKey       string
	baseURL      string
	httpClient   *httpclient.SaferClient
	config       Config
	usageTracker *tracker.UsageTracker
	logger       *zap.SugaredLogger
	retryDelay   time.Duration
}

// Config holds Anthropic client configuration
type Config struct {
	APIKey        string
	Model         string
	Temperature   float64
	MaxTokens     int
	Logger        *zap.SugaredLogger
	DB            *sql.DB // usage tracking; nil disables
	Verbosity     int
	OperationType string
}

// NewClient creates a new Anthropic API client
func NewClient(config Config) *Client {
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.Temperature == 0 {
		config.Temperature = 0.2
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = 1024
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
		baseURL:      BaseURL,
		httpClient:   httpclient.NewSaferClient(60 * time.Second),
		config:       config,
		usageTracker: usageTracker,
		logger:       logger,
		retryDelay:   500 * time.Millisecond,
	}
}

// MessagesRequest represents a request to the Anthropic Messages API
type MessagesRequest struct {
	Model         string    `json:"model"`
	MaxTokens     int       `json:"max_tokens"`
	Messages      []Message `json:"messages"`
	System        string    `json:"system,omitempty"`
	Temperature   float64   `json:"temperature"`
	StopSequences []string  `json:"stop_sequences,omitempty"`
}

// Message represents a message in the conversation
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// MessagesResponse represents the response from the Messages API
type MessagesResponse struct {
	ID         string         `json:"id"`
	Content    []ContentBlock `json:"content"`
	Model      string         `json:"model"`
	StopReason string         `json:"stop_reason"`
	Usage      Usage          `json:"usage"`
}

// ContentBlock represents a content block in the response
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Usage represents token usage information
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Chat sends a Messages request using the shared chat request shape
func (c *Client) Chat(ctx context.Context, req openrouter.ChatRequest) (*openrouter.ChatResponse, error) {
	if c.config.APIKey == "" {
		return nil, errors.WithHint(errors.New("Anthropic API key not configured"),
			"set ANTHROPIC_API_KEY or anthropic.api_key in am.toml")
	}

	temperature := c.config.Temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	maxTokens := c.config.MaxTokens
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}
	model := c.config.Model
	if req.Model != nil && *req.Model != "" {
		model = *req.Model
	}

	apiReq := MessagesRequest{
		Model:         model,
		MaxTokens:     maxTokens,
		Temperature:   temperature,
		System:        req.SystemPrompt,
		Messages:      []Message{{Role: "user", Content: req.UserPrompt}},
		StopSequences: req.Stop,
	}

	requestTime := time.Now()
	var resp *MessagesResponse
	var err error

	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, errors.Wrap(ctx.Err(), "Anthropic request cancelled")
			case <-time.After(time.Duration(attempt) * c.retryDelay):
			}
		}

		resp, err = c.createMessages(ctx, apiReq)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return nil, errors.Wrap(ctx.Err(), "Anthropic request cancelled")
		}

		c.logger.Warnw("Anthropic API error", "attempt", attempt+1, "error", err, "model", model)
		if !isRetryable(err) {
			c.trackUsage(ctx, req, requestTime, model, temperature, maxTokens, nil, err)
			return nil, errors.Wrap(err, "Anthropic API error")
		}
	}

	if err != nil {
		c.trackUsage(ctx, req, requestTime, model, temperature, maxTokens, nil, err)
		return nil, errors.Wrapf(err, "Anthropic API error after %d attempts", maxRetries)
	}

	var content strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}

	c.trackUsage(ctx, req, requestTime, model, temperature, maxTokens, &resp.Usage, nil)

	return &openrouter.ChatResponse{
		Content: content.String(),
		Model:   model,
		Usage: openrouter.Usage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
		},
	}, nil
}

func (c *Client) createMessages(ctx context.Context, req MessagesRequest) (*MessagesResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", APIVersion)

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
		return nil, errors.WithStack(&openrouter.StatusError{StatusCode: resp.StatusCode, Body: string(respBody)})
	}

	var out MessagesResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal response")
	}
	return &out, nil
}

// isRetryable covers rate limits, overload (529) and network failures
func isRetryable(err error) bool {
	var statusErr *openrouter.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == http.StatusTooManyRequests || statusErr.StatusCode >= 500
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "timeout")
}

func (c *Client) trackUsage(ctx context.Context, req openrouter.ChatRequest, requestTime time.Time, model string, temperature float64, maxTokens int, usage *Usage, callErr error) {
	if c.usageTracker == nil {
		return
	}

	responseTime := time.Now()
	record := &tracker.ModelUsage{
		OperationType:     c.config.OperationType,
		EntityType:        req.EntityType,
		EntityID:          req.EntityID,
		ModelName:         model,
		ModelProvider:     "anthropic",
		ModelConfig:       tracker.NewModelConfig(&temperature, &maxTokens),
		RequestTimestamp:  requestTime,
		ResponseTimestamp: &responseTime,
		Success:           callErr == nil,
	}
	if req.Metadata != nil {
		record.Metadata = tracker.NewUsageMetadata(*req.Metadata)
	}
	if usage != nil {
		tokens := usage.InputTokens + usage.OutputTokens
		cost := CalculateCost(model, usage.InputTokens, usage.OutputTokens)
		record.TokensUsed = &tokens
		record.Cost = &cost
	}
	if callErr != nil {
		msg := callErr.Error()
		record.ErrorMessage = &msg
	}

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

// SetHTTPClient overrides the HTTP client without SSRF protection (tests only)
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = httpclient.WrapClient(client)
}

// SetBaseURL points the client at a different API root
func (c *Client) SetBaseURL(baseURL string) {
	c.baseURL = strings.TrimRight(baseURL, "/")
}
