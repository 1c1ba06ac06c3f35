// Package audit provides a persistent, append-only log of mutating
// tool invocations. Every state-changing call against the controller
// leaves a record of who asked for what and how it went; reads are
// never logged. Records are indexed by timestamp and tool for
// reporting queries.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Record is one mutating tool invocation.
type Record struct {
	ID        string
	Timestamp time.Time
	RequestID string
	Tool      string
	Args      string // JSON-encoded arguments, secrets redacted
	Success   bool
	Error     string
}

// Store is an append-only SQLite store for audit records. All public
// methods are safe for concurrent use (SQLite serializes writes).
type Store struct {
	db *sql.DB
}

// NewStore creates an audit store at the given database path. The
// schema is created automatically on first use.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open audit database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate audit schema: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS audit_records (
		id         TEXT PRIMARY KEY,
		timestamp  TEXT NOT NULL,
		request_id TEXT NOT NULL,
		tool       TEXT NOT NULL,
		args       TEXT,
		success    INTEGER NOT NULL,
		error      TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_records(timestamp);
	CREATE INDEX IF NOT EXISTS idx_audit_tool ON audit_records(tool);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Append persists a record. If rec.ID is empty, a UUIDv7 is generated.
func (s *Store) Append(ctx context.Context, rec Record) error {
	if rec.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("generate audit record ID: %w", err)
		}
		rec.ID = id.String()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_records (id, timestamp, request_id, tool, args, success, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.Timestamp.UTC().Format(time.RFC3339),
		rec.RequestID,
		rec.Tool,
		rec.Args,
		boolToInt(rec.Success),
		rec.Error,
	)
	if err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}

// Recent returns the newest records, most recent first, capped at
// limit.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, timestamp, request_id, tool, args, success, error
		 FROM audit_records ORDER BY timestamp DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit records: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// ByTool returns the newest records for one tool, most recent first.
func (s *Store) ByTool(ctx context.Context, tool string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, timestamp, request_id, tool, args, success, error
		 FROM audit_records WHERE tool = ? ORDER BY timestamp DESC LIMIT ?`, tool, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit records by tool: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	var records []Record
	for rows.Next() {
		var rec Record
		var ts string
		var success int
		if err := rows.Scan(&rec.ID, &ts, &rec.RequestID, &rec.Tool, &rec.Args, &success, &rec.Error); err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		rec.Timestamp, _ = time.Parse(time.RFC3339, ts)
		rec.Success = success != 0
		records = append(records, rec)
	}
	return records, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// EncodeArgs serializes tool arguments for storage, redacting fields
// that carry credentials.
func EncodeArgs(args map[string]any) string {
	if len(args) == 0 {
		return "{}"
	}
	clean := make(map[string]any, len(args))
	for k, v := range args {
		switch k {
		case "x_passphrase", "password", "wan_password":
			clean[k] = "[redacted]"
		default:
			clean[k] = v
		}
	}
	encoded, err := json.Marshal(clean)
	if err != nil {
		return "{}"
	}
	return string(encoded)
}
