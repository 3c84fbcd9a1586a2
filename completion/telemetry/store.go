package telemetry

import (
	"context"
	"database/sql"
	"time"

	"github.com/teranos/ghostwrite/errors"
)

// Store persists events to the completion_events table.
type Store struct {
	db *sql.DB
}

// NewStore creates a store over a migrated database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const insertEvent = `
	INSERT INTO completion_events (
		id, kind, session_id, request_id, uri, strategy, language,
		accept_type, chars, latency_ms, error_message, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// Insert writes one event.
func (s *Store) Insert(ctx context.Context, e Event) error {
	_, err := s.db.ExecContext(ctx, insertEvent, eventArgs(e)...)
	if err != nil {
		return errors.Wrapf(err, "insert %s event %s", e.Kind, e.ID)
	}
	return nil
}

// InsertBatch writes events in one transaction.
func (s *Store) InsertBatch(ctx context.Context, events []Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin event batch")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, insertEvent)
	if err != nil {
		return errors.Wrap(err, "prepare event insert")
	}
	defer stmt.Close()

	for _, e := range events {
		if _, err := stmt.ExecContext(ctx, eventArgs(e)...); err != nil {
			return errors.Wrapf(err, "insert %s event %s", e.Kind, e.ID)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrapf(err, "commit %d events", len(events))
	}
	return nil
}

func eventArgs(e Event) []any {
	return []any{
		e.ID, string(e.Kind), e.SessionID, int64(e.RequestID),
		nullString(e.URI), nullString(e.Strategy), nullString(e.Language),
		nullString(e.AcceptType), e.Chars, e.Latency.Milliseconds(),
		nullString(e.Error), e.Time.UTC(),
	}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Stats aggregates events since a point in time.
type Stats struct {
	Counts         map[Kind]int  `json:"counts"`
	Total          int           `json:"total"`
	AcceptanceRate float64       `json:"acceptance_rate"` // accepted / displayed
	AvgLatency     time.Duration `json:"avg_latency"`     // over received events
	AcceptedChars  int           `json:"accepted_chars"`
	Sessions       int           `json:"sessions"`
}

// Stats returns per-kind counts, acceptance rate and average latency.
func (s *Store) Stats(ctx context.Context, since time.Time) (*Stats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, COUNT(*)
		FROM completion_events
		WHERE created_at >= ?
		GROUP BY kind`, since.UTC())
	if err != nil {
		return nil, errors.Wrap(err, "query event counts")
	}
	defer rows.Close()

	stats := &Stats{Counts: make(map[Kind]int, len(Kinds))}
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, errors.Wrap(err, "scan event count")
		}
		stats.Counts[Kind(kind)] = n
		stats.Total += n
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate event counts")
	}

	var avgMs sql.NullFloat64
	err = s.db.QueryRowContext(ctx, `
		SELECT
			AVG(CASE WHEN kind = 'received' AND latency_ms > 0 THEN latency_ms END),
			COALESCE(SUM(CASE WHEN kind = 'accepted' THEN chars ELSE 0 END), 0),
			COUNT(DISTINCT session_id)
		FROM completion_events
		WHERE created_at >= ?`, since.UTC()).Scan(&avgMs, &stats.AcceptedChars, &stats.Sessions)
	if err != nil {
		return nil, errors.Wrap(err, "query event aggregates")
	}

	if avgMs.Valid {
		stats.AvgLatency = time.Duration(avgMs.Float64 * float64(time.Millisecond))
	}
	if displayed := stats.Counts[KindDisplayed]; displayed > 0 {
		stats.AcceptanceRate = float64(stats.Counts[KindAccepted]) / float64(displayed)
		if stats.AcceptanceRate > 1 {
			stats.AcceptanceRate = 1
		}
	}

	return stats, nil
}

// Recent returns the newest events, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, session_id, request_id, uri, strategy, language,
			accept_type, chars, latency_ms, error_message, created_at
		FROM completion_events
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "query recent events")
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var kind string
		var requestID, latencyMs int64
		var uri, strategy, language, acceptType, msg sql.NullString
		if err := rows.Scan(&e.ID, &kind, &e.SessionID, &requestID, &uri, &strategy,
			&language, &acceptType, &e.Chars, &latencyMs, &msg, &e.Time); err != nil {
			return nil, errors.Wrap(err, "scan event")
		}
		e.Kind = Kind(kind)
		e.RequestID = uint64(requestID)
		e.URI = uri.String
		e.Strategy = strategy.String
		e.Language = language.String
		e.AcceptType = acceptType.String
		e.Error = msg.String
		e.Latency = time.Duration(latencyMs) * time.Millisecond
		events = append(events, e)
	}
	return events, errors.Wrap(rows.Err(), "iterate recent events")
}
