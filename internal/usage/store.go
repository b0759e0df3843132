// Package usage records token usage and cost per chat turn. Records are
// append-only and indexed by timestamp and session so totals can be
// reported per model or per session.
package usage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Record is the token usage of one completed turn.
type Record struct {
	ID           string    `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	SessionID    string    `json:"session_id"`
	Model        string    `json:"model"`
	Mode         string    `json:"mode"` // "blocking" or "stream"
	ModelCalls   int       `json:"model_calls"`
	ToolCalls    int       `json:"tool_calls"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	CostUSD      float64   `json:"cost_usd"`
}

// Summary holds aggregated totals.
type Summary struct {
	Turns        int     `json:"turns"`
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	CostUSD      float64 `json:"cost_usd"`
}

// Price is the cost of a model's tokens in USD per million.
type Price struct {
	InputPerMillion  float64 `yaml:"input_per_million" json:"input_per_million"`
	OutputPerMillion float64 `yaml:"output_per_million" json:"output_per_million"`
}

// Store is an append-only SQL store for usage records. It works with
// any database/sql SQLite driver.
type Store struct {
	db      *sql.DB
	pricing map[string]Price
	logger  *slog.Logger
}

// Open opens the database with the named driver and prepares the schema.
func Open(driver, dsn string, pricing map[string]Price, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open usage database: %w", err)
	}
	// SQLite serializes writers; one connection also keeps an in-memory
	// database alive for the life of the store.
	db.SetMaxOpenConns(1)

	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{db: db, pricing: pricing, logger: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate usage schema: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS turn_usage (
		id            TEXT PRIMARY KEY,
		timestamp     TEXT NOT NULL,
		session_id    TEXT NOT NULL,
		model         TEXT NOT NULL,
		mode          TEXT NOT NULL,
		model_calls   INTEGER NOT NULL,
		tool_calls    INTEGER NOT NULL,
		input_tokens  INTEGER NOT NULL,
		output_tokens INTEGER NOT NULL,
		cost_usd      REAL NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_turn_usage_timestamp ON turn_usage(timestamp);
	CREATE INDEX IF NOT EXISTS idx_turn_usage_session ON turn_usage(session_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Record persists a usage record. An empty ID gets a UUIDv7, a zero
// timestamp gets the current time, and a zero cost is filled in from
// the pricing table.
func (s *Store) Record(ctx context.Context, rec Record) error {
	if rec.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("generate usage record ID: %w", err)
		}
		rec.ID = id.String()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	if rec.CostUSD == 0 {
		rec.CostUSD = ComputeCost(rec.Model, rec.InputTokens, rec.OutputTokens, s.pricing)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO turn_usage
			(id, timestamp, session_id, model, mode, model_calls, tool_calls,
			 input_tokens, output_tokens, cost_usd)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		formatTime(rec.Timestamp),
		rec.SessionID,
		rec.Model,
		rec.Mode,
		rec.ModelCalls,
		rec.ToolCalls,
		rec.InputTokens,
		rec.OutputTokens,
		rec.CostUSD,
	)
	if err != nil {
		return fmt.Errorf("insert usage record: %w", err)
	}
	s.logger.Debug("turn usage recorded",
		"session", rec.SessionID,
		"model", rec.Model,
		"input_tokens", rec.InputTokens,
		"output_tokens", rec.OutputTokens,
		"cost_usd", rec.CostUSD,
	)
	return nil
}

// Summary returns totals for records within [start, end).
func (s *Store) Summary(ctx context.Context, start, end time.Time) (*Summary, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(input_tokens), 0), COALESCE(SUM(output_tokens), 0), COALESCE(SUM(cost_usd), 0)
		 FROM turn_usage
		 WHERE timestamp >= ? AND timestamp < ?`,
		formatTime(start), formatTime(end),
	)
	return scanSummary(row)
}

// SessionSummary returns totals for one session across all time.
func (s *Store) SessionSummary(ctx context.Context, sessionID string) (*Summary, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(input_tokens), 0), COALESCE(SUM(output_tokens), 0), COALESCE(SUM(cost_usd), 0)
		 FROM turn_usage
		 WHERE session_id = ?`,
		sessionID,
	)
	return scanSummary(row)
}

// SummaryByModel returns per-model totals for records within [start, end).
func (s *Store) SummaryByModel(ctx context.Context, start, end time.Time) (map[string]*Summary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT model, COUNT(*), COALESCE(SUM(input_tokens), 0), COALESCE(SUM(output_tokens), 0), COALESCE(SUM(cost_usd), 0)
		 FROM turn_usage
		 WHERE timestamp >= ? AND timestamp < ?
		 GROUP BY model`,
		formatTime(start), formatTime(end),
	)
	if err != nil {
		return nil, fmt.Errorf("query usage by model: %w", err)
	}
	defer rows.Close()

	result := make(map[string]*Summary)
	for rows.Next() {
		var model string
		var sum Summary
		if err := rows.Scan(&model, &sum.Turns, &sum.InputTokens, &sum.OutputTokens, &sum.CostUSD); err != nil {
			return nil, fmt.Errorf("scan usage by model: %w", err)
		}
		result[model] = &sum
	}
	return result, rows.Err()
}

func scanSummary(row *sql.Row) (*Summary, error) {
	var sum Summary
	if err := row.Scan(&sum.Turns, &sum.InputTokens, &sum.OutputTokens, &sum.CostUSD); err != nil {
		return nil, fmt.Errorf("query usage summary: %w", err)
	}
	return &sum, nil
}

// formatTime renders t so that string order matches time order.
func formatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000000Z07:00")
}

// ComputeCost returns the USD cost of a model's tokens. Models missing
// from the table are local and free.
func ComputeCost(model string, inputTokens, outputTokens int, pricing map[string]Price) float64 {
	p, ok := pricing[model]
	if !ok {
		return 0
	}
	return float64(inputTokens)/1_000_000.0*p.InputPerMillion +
		float64(outputTokens)/1_000_000.0*p.OutputPerMillion
}
