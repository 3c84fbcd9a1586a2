package provider

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
	"github.com/teranos/ghostwrite/internal/util"
)

// LocalClientConfig holds configuration for a local inference server
// (Ollama, LocalAI, llama.cpp or any OpenAI-compatible endpoint)
type LocalClientConfig struct {
	BaseURL        string
	Model          string
	TimeoutSeconds int
	ContextSize    *int // nil = model default
	DB             *sql.DB
	Verbosity      int
	OperationType  string
	Logger         *zap.SugaredLogger
}

// LocalClient talks to a local OpenAI-compatible chat endpoint
type LocalClient struct {
	config       LocalClientConfig
	httpClient   *httpclient.SaferClient
	usageTracker *tracker.UsageTracker
	logger       *zap.SugaredLogger
}

// NewLocalClient creates a client for local inference
func NewLocalClient(cfg LocalClientConfig) *LocalClient {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if cfg.OperationType == "" {
		cfg.OperationType = tracker.OperationCompletion
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	var usageTracker *tracker.UsageTracker
	if cfg.DB != nil {
		usageTracker = tracker.NewUsageTracker(cfg.DB, cfg.Verbosity)
	}

	return &LocalClient{
		config: cfg,
		// Local servers live on loopback, so private-IP blocking stays off
		httpClient: httpclient.NewSaferClientWithOptions(timeout, httpclient.SaferClientOptions{
			BlockPrivateIP: util.Ptr(false),
		}),
		usageTracker: usageTracker,
		logger:       logger,
	}
}

type localChatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Stream      bool          `json:"stream"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
	Stop        []string      `json:"stop,omitempty"`
	Options     *ollamaOpts   `json:"options,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ollamaOpts are ignored by servers other than Ollama
type ollamaOpts struct {
	NumCtx int `json:"num_ctx,omitempty"`
}

type localChatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage *openrouter.Usage `json:"usage,omitempty"`
}

// Chat implements AIClient for local inference
func (lc *LocalClient) Chat(ctx context.Context, req openrouter.ChatRequest) (*openrouter.ChatResponse, error) {
	model := lc.config.Model
	if req.Model != nil && *req.Model != "" {
		model = *req.Model
	}

	messages := []chatMessage{{Role: "user", Content: req.UserPrompt}}
	if req.SystemPrompt != "" {
		messages = append([]chatMessage{{Role: "system", Content: req.SystemPrompt}}, messages...)
	}

	body := localChatRequest{
		Model:       model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Stop:        req.Stop,
	}
	if lc.config.ContextSize != nil {
		body.Options = &ollamaOpts{NumCtx: *lc.config.ContextSize}
	}

	requestTime := time.Now()
	resp, err := lc.post(ctx, body)
	if err != nil {
		lc.trackUsage(ctx, req, requestTime, model, nil, err)
		return nil, err
	}

	usage := openrouter.Usage{}
	if resp.Usage != nil {
		usage = *resp.Usage
	}
	lc.trackUsage(ctx, req, requestTime, model, &usage, nil)

	return &openrouter.ChatResponse{
		Content: resp.Choices[0].Message.Content,
		Model:   model,
		Usage:   usage,
	}, nil
}

func (lc *LocalClient) post(ctx context.Context, body localChatRequest) (*localChatResponse, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal request")
	}

	endpoint := strings.TrimRight(lc.config.BaseURL, "/") + "/v1/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := lc.httpClient.Do(httpReq)
	if err != nil {
		return nil, errors.WithHint(errors.Wrap(err, "local inference request failed"),
			"is the local inference server running at "+lc.config.BaseURL+"?")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, errors.WithStack(&openrouter.StatusError{StatusCode: resp.StatusCode, Body: string(respBody)})
	}

	var out localChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, errors.Wrap(err, "failed to decode response")
	}
	if len(out.Choices) == 0 {
		return nil, errors.New("no completion choices returned")
	}
	return &out, nil
}

// Local inference has no API cost; calls are still recorded for latency stats
func (lc *LocalClient) trackUsage(ctx context.Context, req openrouter.ChatRequest, requestTime time.Time, model string, usage *openrouter.Usage, callErr error) {
	if lc.usageTracker == nil {
		return
	}

	responseTime := time.Now()
	zero := 0.0
	record := &tracker.ModelUsage{
		OperationType:     lc.config.OperationType,
		EntityType:        req.EntityType,
		EntityID:          req.EntityID,
		ModelName:         model,
		ModelProvider:     string(ProviderLocal),
		ModelConfig:       tracker.NewModelConfig(req.Temperature, req.MaxTokens),
		RequestTimestamp:  requestTime,
		ResponseTimestamp: &responseTime,
		Cost:              &zero,
		Success:           callErr == nil,
	}
	if req.Metadata != nil {
		record.Metadata = tracker.NewUsageMetadata(*req.Metadata)
	}
	if usage != nil && usage.TotalTokens > 0 {
		tokens := usage.TotalTokens
		record.TokensUsed = &tokens
	}
	if callErr != nil {
		msg := callErr.Error()
		record.ErrorMessage = &msg
	}

	trackCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := lc.usageTracker.TrackUsage(trackCtx, record); err != nil {
		lc.logger.Warnw("Failed to track usage", "error", err, "model", model)
	}
}

// Model returns the configured local model name
func (lc *LocalClient) Model() string {
	return lc.config.Model
}
