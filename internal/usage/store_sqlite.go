package usage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLite allows 999 bindable parameters per statement by default. With 11
// columns per entry, 90 entries per batch stays under the limit.
const (
	maxSQLiteParams    = 999
	columnsPerEntry    = 11
	maxEntriesPerBatch = maxSQLiteParams / columnsPerEntry
)

// SQLiteStore persists usage entries to a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (or creates) the database at path and prepares the
// usage table and indexes.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open usage database: %w", err)
	}
	store, err := NewSQLiteStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewSQLiteStore wraps an existing connection, creating the schema if
// missing.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS usage (
			id TEXT PRIMARY KEY,
			timestamp DATETIME NOT NULL,
			provider TEXT NOT NULL,
			model TEXT NOT NULL,
			task TEXT NOT NULL,
			input_tokens INTEGER NOT NULL DEFAULT 0,
			output_tokens INTEGER NOT NULL DEFAULT 0,
			total_tokens INTEGER NOT NULL DEFAULT 0,
			success INTEGER NOT NULL DEFAULT 0,
			error_type TEXT NOT NULL DEFAULT '',
			latency_ms INTEGER NOT NULL DEFAULT 0
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create usage table: %w", err)
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_usage_timestamp ON usage(timestamp)",
		"CREATE INDEX IF NOT EXISTS idx_usage_provider ON usage(provider)",
		"CREATE INDEX IF NOT EXISTS idx_usage_model ON usage(model)",
	}
	for _, idx := range indexes {
		if _, err := db.Exec(idx); err != nil {
			slog.Warn("failed to create usage index", "error", err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

// WriteBatch inserts entries, chunked to stay within the parameter limit.
// Duplicate IDs are ignored so a retried flush never fails.
func (s *SQLiteStore) WriteBatch(ctx context.Context, entries []*Entry) error {
	for i := 0; i < len(entries); i += maxEntriesPerBatch {
		end := min(i+maxEntriesPerBatch, len(entries))
		chunk := entries[i:end]

		placeholders := make([]string, len(chunk))
		values := make([]any, 0, len(chunk)*columnsPerEntry)
		for j, e := range chunk {
			placeholders[j] = "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"
			values = append(values,
				e.ID,
				e.Timestamp.UTC().Format(time.RFC3339Nano),
				string(e.Provider),
				e.Model,
				e.Task,
				e.InputTokens,
				e.OutputTokens,
				e.TotalTokens,
				e.Success,
				e.ErrorType,
				e.LatencyMS,
			)
		}

		query := `INSERT OR IGNORE INTO usage (id, timestamp, provider, model, task,
			input_tokens, output_tokens, total_tokens, success, error_type, latency_ms) VALUES ` +
			strings.Join(placeholders, ",")

		if _, err := s.db.ExecContext(ctx, query, values...); err != nil {
			return fmt.Errorf("failed to insert usage batch: %w", err)
		}
	}
	return nil
}

// CountByProvider returns the number of recorded requests per provider.
func (s *SQLiteStore) CountByProvider(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT provider, COUNT(*) FROM usage GROUP BY provider")
	if err != nil {
		return nil, fmt.Errorf("failed to query usage counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var provider string
		var count int
		if err := rows.Scan(&provider, &count); err != nil {
			return nil, err
		}
		counts[provider] = count
	}
	return counts, rows.Err()
}

// Close closes the database.
func (s *SQLiteStore) Close() error { return s.db.Close() }
