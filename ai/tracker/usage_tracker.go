package tracker

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/teranos/ghostwrite/errors"
)

// OperationCompletion is the operation type recorded for inline completion calls
const OperationCompletion = "completion"

// ModelUsage represents a record of AI model usage
type ModelUsage struct {
	ID                int        `json:"id" db:"id"`
	OperationType     string     `json:"operation_type" db:"operation_type"`
	EntityType        string     `json:"entity_type" db:"entity_type"` // strategy name for completions
	EntityID          string     `json:"entity_id" db:"entity_id"`     // document URI for completions
	ModelName         string     `json:"model_name" db:"model_name"`
	ModelProvider     string     `json:"model_provider" db:"model_provider"`
	ModelConfig       *string    `json:"model_config,omitempty" db:"model_config"`
	RequestTimestamp  time.Time  `json:"request_timestamp" db:"request_timestamp"`
	ResponseTimestamp *time.Time `json:"response_timestamp,omitempty" db:"response_timestamp"`
	TokensUsed        *int       `json:"tokens_used,omitempty" db:"tokens_used"`
	Cost              *float64   `json:"cost,omitempty" db:"cost"`
	Success           bool       `json:"success" db:"success"`
	ErrorMessage      *string    `json:"error_message,omitempty" db:"error_message"`
	Metadata          *string    `json:"metadata,omitempty" db:"metadata"`
	CreatedAt         time.Time  `json:"created_at" db:"created_at"`
}

// ModelConfig represents the configuration used for an AI model request
type ModelConfig struct {
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
}

// UsageMetadata represents additional context for AI model usage
type UsageMetadata struct {
	SessionID    string `json:"session_id,omitempty"`
	RequestID    uint64 `json:"request_id,omitempty"`
	Language     string `json:"language,omitempty"`
	InputLength  *int   `json:"input_length,omitempty"`
	OutputLength *int   `json:"output_length,omitempty"`
}

// UsageTracker records provider calls in ai_model_usage
type UsageTracker struct {
	db        *sql.DB
	verbosity int
}

// NewUsageTracker creates a new AI usage tracker
func NewUsageTracker(db *sql.DB, verbosity int) *UsageTracker {
	return &UsageTracker{
		db:        db,
		verbosity: verbosity,
	}
}

// TrackUsage records AI model usage in the database
func (t *UsageTracker) TrackUsage(ctx context.Context, usage *ModelUsage) error {
	query := `
		INSERT INTO ai_model_usage (
			operation_type, entity_type, entity_id, model_name, model_provider,
			model_config, request_timestamp, response_timestamp, tokens_used,
			cost, success, error_message, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := t.db.ExecContext(ctx, query,
		usage.OperationType, usage.EntityType, usage.EntityID,
		usage.ModelName, usage.ModelProvider, usage.ModelConfig,
		usage.RequestTimestamp, usage.ResponseTimestamp, usage.TokensUsed,
		usage.Cost, usage.Success, usage.ErrorMessage, usage.Metadata,
	)
	if err != nil {
		return errors.Wrapf(err, "track usage for %s/%s", usage.ModelProvider, usage.ModelName)
	}
	return nil
}

// UsageStats represents aggregated usage statistics
type UsageStats struct {
	TotalRequests      int     `json:"total_requests"`
	SuccessfulRequests int     `json:"successful_requests"`
	SuccessRate        float64 `json:"success_rate"`
	TotalTokens        int     `json:"total_tokens"`
	TotalCost          float64 `json:"total_cost"`
	UniqueModels       int     `json:"unique_models"`
}

// GetUsageStats returns usage statistics since the given time
func (t *UsageTracker) GetUsageStats(ctx context.Context, since time.Time) (*UsageStats, error) {
	query := `
		SELECT
			COUNT(*) as total_requests,
			COUNT(CASE WHEN success = 1 THEN 1 END) as successful_requests,
			COALESCE(SUM(COALESCE(tokens_used, 0)), 0) as total_tokens,
			COALESCE(SUM(COALESCE(cost, 0)), 0) as total_cost,
			COUNT(DISTINCT model_name) as unique_models
		FROM ai_model_usage
		WHERE request_timestamp >= ?`

	var stats UsageStats
	err := t.db.QueryRowContext(ctx, query, since).Scan(
		&stats.TotalRequests, &stats.SuccessfulRequests,
		&stats.TotalTokens, &stats.TotalCost, &stats.UniqueModels,
	)
	if err != nil {
		return nil, errors.Wrap(err, "query usage stats")
	}

	if stats.TotalRequests > 0 {
		stats.SuccessRate = float64(stats.SuccessfulRequests) / float64(stats.TotalRequests)
	}

	return &stats, nil
}

// ModelBreakdown represents usage statistics for a specific model
type ModelBreakdown struct {
	ModelName         string   `json:"model_name"`
	ModelProvider     string   `json:"model_provider"`
	RequestCount      int      `json:"request_count"`
	TotalTokens       int      `json:"total_tokens"`
	TotalCost         float64  `json:"total_cost"`
	AvgResponseTimeMs *float64 `json:"avg_response_time_ms,omitempty"`
}

// GetModelBreakdown returns successful usage grouped by model, most expensive first
func (t *UsageTracker) GetModelBreakdown(ctx context.Context, since time.Time) ([]ModelBreakdown, error) {
	query := `
		SELECT
			model_name,
			model_provider,
			COUNT(*) as request_count,
			SUM(COALESCE(tokens_used, 0)) as total_tokens,
			SUM(COALESCE(cost, 0)) as total_cost,
			AVG(CASE WHEN response_timestamp IS NOT NULL THEN
				(julianday(response_timestamp) - julianday(request_timestamp)) * 86400000
				ELSE NULL END) as avg_response_time_ms
		FROM ai_model_usage
		WHERE request_timestamp >= ? AND success = 1
		GROUP BY model_name, model_provider
		ORDER BY total_cost DESC`

	rows, err := t.db.QueryContext(ctx, query, since)
	if err != nil {
		return nil, errors.Wrap(err, "query model breakdown")
	}
	defer rows.Close()

	var breakdown []ModelBreakdown
	for rows.Next() {
		var mb ModelBreakdown
		if err := rows.Scan(&mb.ModelName, &mb.ModelProvider, &mb.RequestCount,
			&mb.TotalTokens, &mb.TotalCost, &mb.AvgResponseTimeMs); err != nil {
			return nil, errors.Wrap(err, "scan model breakdown")
		}
		breakdown = append(breakdown, mb)
	}

	return breakdown, rows.Err()
}

// TimeSeriesPoint represents a single day of usage
type TimeSeriesPoint struct {
	Date     string  `json:"date"`
	Requests int     `json:"requests"`
	Cost     float64 `json:"cost"`
}

// GetTimeSeriesData returns daily aggregated cost and request counts for the last days
func (t *UsageTracker) GetTimeSeriesData(ctx context.Context, days int) ([]TimeSeriesPoint, error) {
	query := `
		SELECT
			DATE(request_timestamp) as date,
			COUNT(*) as requests,
			COALESCE(SUM(COALESCE(cost, 0)), 0) as cost
		FROM ai_model_usage
		WHERE request_timestamp >= ?
		GROUP BY DATE(request_timestamp)
		ORDER BY date ASC`

	since := time.Now().AddDate(0, 0, -days)
	rows, err := t.db.QueryContext(ctx, query, since)
	if err != nil {
		return nil, errors.Wrap(err, "query usage time series")
	}
	defer rows.Close()

	var points []TimeSeriesPoint
	for rows.Next() {
		var point TimeSeriesPoint
		if err := rows.Scan(&point.Date, &point.Requests, &point.Cost); err != nil {
			return nil, errors.Wrap(err, "scan usage time series")
		}
		points = append(points, point)
	}

	return points, rows.Err()
}

// NewModelConfig serializes request parameters to JSON, or nil when none are set
func NewModelConfig(temperature *float64, maxTokens *int) *string {
	if temperature == nil && maxTokens == nil {
		return nil
	}
	return marshalString(ModelConfig{Temperature: temperature, MaxTokens: maxTokens})
}

// NewUsageMetadata serializes metadata to JSON
func NewUsageMetadata(metadata UsageMetadata) *string {
	return marshalString(metadata)
}

func marshalString(v any) *string {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	s := string(data)
	return &s
}
