// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Stores serialized conversation state with a version column for compare-and-swap

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/2389/support-gateway/internal/state"
)

// cycleTimeFormat keeps fractional seconds fixed-width so text ordering matches time ordering.
const cycleTimeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			state TEXT NOT NULL,
			version INTEGER NOT NULL,
			terminated INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_conversations_updated
			ON conversations(updated_at);

		CREATE TABLE IF NOT EXISTS cycles (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			outcome TEXT NOT NULL,
			agent_name TEXT,
			turn_count INTEGER NOT NULL DEFAULT 0,
			error TEXT,
			created_at TEXT NOT NULL,

			CHECK (outcome IN ('ok', 'limit_exceeded', 'failed', 'aborted'))
		);

		CREATE INDEX IF NOT EXISTS idx_cycles_conversation
			ON cycles(conversation_id, created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// runMigrations applies schema migrations for existing databases.
// These are idempotent - safe to run multiple times.
func (s *SQLiteStore) runMigrations() error {
	// SQLite doesn't support ADD COLUMN IF NOT EXISTS, so we check first
	migrations := []struct {
		table  string
		column string
		apply  string
	}{
		{
			table:  "cycles",
			column: "duration_ms",
			apply:  `ALTER TABLE cycles ADD COLUMN duration_ms INTEGER NOT NULL DEFAULT 0`,
		},
	}

	for _, m := range migrations {
		var exists int
		err := s.db.QueryRow(`SELECT 1 FROM pragma_table_info(?) WHERE name = ?`, m.table, m.column).Scan(&exists)
		if err == nil {
			continue
		}
		if _, err := s.db.Exec(m.apply); err != nil {
			return fmt.Errorf("adding %s column to %s: %w", m.column, m.table, err)
		}
		s.logger.Info("applied migration", "column", m.column, "table", m.table)
	}
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// LoadConversation retrieves a conversation by ID.
// Returns ErrNotFound if the conversation doesn't exist.
func (s *SQLiteStore) LoadConversation(ctx context.Context, id string) (*state.State, error) {
	var raw string
	var version int64

	err := s.db.QueryRowContext(ctx,
		`SELECT state, version FROM conversations WHERE id = ?`, id,
	).Scan(&raw, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying conversation: %w", err)
	}

	var st state.State
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return nil, fmt.Errorf("decoding conversation %s: %w", id, err)
	}
	st.Version = version
	return &st, nil
}

// SaveConversation inserts or updates a conversation with compare-and-swap on version.
func (s *SQLiteStore) SaveConversation(ctx context.Context, st *state.State) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encoding conversation: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	next := st.Version + 1

	if st.Version == 0 {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO conversations (id, state, version, terminated, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, st.ConversationID, string(data), next, boolToInt(st.Terminated),
			st.CreatedAt.UTC().Format(time.RFC3339), now)
		if err != nil {
			if isConstraintViolation(err) {
				return fmt.Errorf("%w: %s already exists", ErrConflict, st.ConversationID)
			}
			return fmt.Errorf("inserting conversation: %w", err)
		}
	} else {
		res, err := s.db.ExecContext(ctx, `
			UPDATE conversations
			SET state = ?, version = ?, terminated = ?, updated_at = ?
			WHERE id = ? AND version = ?
		`, string(data), next, boolToInt(st.Terminated), now, st.ConversationID, st.Version)
		if err != nil {
			return fmt.Errorf("updating conversation: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("checking rows affected: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("%w: %s at version %d", ErrConflict, st.ConversationID, st.Version)
		}
	}

	st.Version = next
	s.logger.Debug("saved conversation",
		"conversation_id", st.ConversationID,
		"version", next,
		"messages", len(st.Messages),
		"terminated", st.Terminated,
	)
	return nil
}

// DeleteConversation removes a conversation and its cycle log in one transaction.
func (s *SQLiteStore) DeleteConversation(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting conversation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM cycles WHERE conversation_id = ?`, id); err != nil {
		return fmt.Errorf("deleting cycles: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing delete: %w", err)
	}

	s.logger.Debug("deleted conversation", "conversation_id", id)
	return nil
}

// RecordCycle appends a cycle outcome to the log.
func (s *SQLiteStore) RecordCycle(ctx context.Context, rec *CycleRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cycles (id, conversation_id, outcome, agent_name, turn_count, error, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.ID,
		rec.ConversationID,
		string(rec.Outcome),
		nullString(rec.AgentName),
		rec.TurnCount,
		nullString(rec.Error),
		rec.Duration.Milliseconds(),
		rec.CreatedAt.UTC().Format(cycleTimeFormat),
	)
	if err != nil {
		return fmt.Errorf("inserting cycle record: %w", err)
	}
	return nil
}

// ListCycles returns the newest cycle records for a conversation.
func (s *SQLiteStore) ListCycles(ctx context.Context, conversationID string, limit int) ([]*CycleRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, outcome, agent_name, turn_count, error, duration_ms, created_at
		FROM cycles
		WHERE conversation_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`, conversationID, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("querying cycles: %w", err)
	}
	defer rows.Close()

	var out []*CycleRecord
	for rows.Next() {
		var rec CycleRecord
		var outcome, createdAt string
		var agentName, errText sql.NullString
		var durationMS int64

		if err := rows.Scan(&rec.ID, &rec.ConversationID, &outcome, &agentName,
			&rec.TurnCount, &errText, &durationMS, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning cycle: %w", err)
		}

		rec.Outcome = CycleOutcome(outcome)
		rec.AgentName = agentName.String
		rec.Error = errText.String
		rec.Duration = time.Duration(durationMS) * time.Millisecond
		rec.CreatedAt, err = time.Parse(cycleTimeFormat, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		out = append(out, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating cycles: %w", err)
	}
	return out, nil
}

// isConstraintViolation checks if the error is a SQLite UNIQUE constraint violation
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "constraint failed")
}

// nullString returns nil for empty strings so they are stored as NULL
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var _ Store = (*SQLiteStore)(nil)
