package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/lumi/internal/models"
)

type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

const turnsSchema = `
CREATE TABLE IF NOT EXISTS turns (
	session_id TEXT NOT NULL,
	seq BIGINT NOT NULL,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	tool_name TEXT,
	tool_input TEXT,
	tool_output TEXT,
	created_at TIMESTAMP NOT NULL,
	PRIMARY KEY (session_id, seq)
)`

// SQLStore keeps turns in a SQL table. Appends hold a per-session lock in process and run
// in a transaction; on Postgres the transaction also takes an advisory lock on the session
// so several processes can share one database.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
	locks   *sessionLocks
}

// sqliteMemory is SQLite's name for a private in-memory database.
const sqliteMemory = ":memory:"

// NewSQLiteStore opens or creates a SQLite history database at path. ":memory:" keeps
// the database in memory on a single connection, since every SQLite connection to
// ":memory:" opens its own empty database.
func NewSQLiteStore(path string) (*SQLStore, error) {
	inMemory := path == sqliteMemory
	if dir := filepath.Dir(path); dir != "." && !inMemory {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
	}
	// Immediate transactions take the write lock up front so two writers never both read
	// the same MAX(seq).
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	if inMemory {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
		db.SetConnMaxIdleTime(0)
	} else if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if _, err := db.Exec(turnsSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize history schema: %w", err)
	}
	return &SQLStore{db: db, dialect: dialectSQLite, locks: newSessionLocks()}, nil
}

// NewPostgresStore connects to dsn and creates the turns table when missing.
func NewPostgresStore(ctx context.Context, dsn string) (*SQLStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, turnsSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create turns table: %w", err)
	}
	return &SQLStore{db: db, dialect: dialectPostgres, locks: newSessionLocks()}, nil
}

// rebind rewrites ? placeholders to $n for Postgres.
func (s *SQLStore) rebind(query string) string {
	if s.dialect != dialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Append implements Store.
func (s *SQLStore) Append(ctx context.Context, sessionID string, turn *models.Turn) (*models.Turn, error) {
	t, err := prepare(sessionID, turn)
	if err != nil {
		return nil, err
	}
	unlock := s.locks.lock(sessionID)
	defer unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, unavailable(ctx, "begin append", err)
	}
	defer func() { _ = tx.Rollback() }()

	if s.dialect == dialectPostgres {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, sessionID); err != nil {
			return nil, unavailable(ctx, "lock session", err)
		}
	}
	if err := tx.QueryRowContext(ctx,
		s.rebind(`SELECT COALESCE(MAX(seq), 0) + 1 FROM turns WHERE session_id = ?`), sessionID,
	).Scan(&t.Seq); err != nil {
		return nil, unavailable(ctx, "next seq", err)
	}

	var toolName, toolInput, toolOutput sql.NullString
	if t.ToolCall != nil {
		toolName = sql.NullString{String: t.ToolCall.Name, Valid: true}
		toolInput = sql.NullString{String: t.ToolCall.Input, Valid: true}
		toolOutput = sql.NullString{String: t.ToolCall.Output, Valid: true}
	}
	if _, err := tx.ExecContext(ctx, s.rebind(
		`INSERT INTO turns (session_id, seq, role, content, tool_name, tool_input, tool_output, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		sessionID, t.Seq, string(t.Role), t.Content, toolName, toolInput, toolOutput, t.CreatedAt,
	); err != nil {
		return nil, unavailable(ctx, "insert turn", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, unavailable(ctx, "commit append", err)
	}
	return t, nil
}

// Read implements Store.
func (s *SQLStore) Read(ctx context.Context, sessionID string) ([]*models.Turn, error) {
	if err := validateSession(sessionID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT seq, role, content, tool_name, tool_input, tool_output, created_at
		 FROM turns WHERE session_id = ? ORDER BY seq`), sessionID)
	if err != nil {
		return nil, unavailable(ctx, "read turns", err)
	}
	defer rows.Close()

	turns := make([]*models.Turn, 0)
	for rows.Next() {
		t := &models.Turn{SessionID: sessionID}
		var role string
		var toolName, toolInput, toolOutput sql.NullString
		if err := rows.Scan(&t.Seq, &role, &t.Content, &toolName, &toolInput, &toolOutput, &t.CreatedAt); err != nil {
			return nil, unavailable(ctx, "scan turn", err)
		}
		t.Role = models.Role(role)
		if toolName.Valid {
			t.ToolCall = &models.ToolCall{Name: toolName.String, Input: toolInput.String, Output: toolOutput.String}
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(ctx, "read turns", err)
	}
	return turns, nil
}

// Reset implements Store.
func (s *SQLStore) Reset(ctx context.Context, sessionID string) error {
	if err := validateSession(sessionID); err != nil {
		return err
	}
	unlock := s.locks.lock(sessionID)
	defer unlock()
	if _, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM turns WHERE session_id = ?`), sessionID); err != nil {
		return unavailable(ctx, "reset session", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}
