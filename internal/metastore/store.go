// Copyright (c) 2025 PgDock
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package metastore persists connection configurations and query history in
// a local SQLite database. Secrets are never written here; the credential
// store owns those.
package metastore

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"pgdock/core/internal/connection"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// DefaultHistoryLimit bounds how many history rows are kept per trim.
const DefaultHistoryLimit = 500

// HistoryEntry is one persisted record of a finished statement.
type HistoryEntry struct {
	ID           int64
	ConnectionID string
	Statement    string
	Status       string
	RowsTotal    int64
	Affected     int64
	Elapsed      time.Duration
	ErrorMessage string
	StartedAt    time.Time
}

// History status values.
const (
	StatusComplete  = "complete"
	StatusCancelled = "cancelled"
	StatusError     = "error"
)

// Store wraps the SQLite database holding connection and history records.
type Store struct {
	db *sql.DB
}

// Open creates the database under dataDir, applying the schema if needed.
func Open(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}

	dbPath := filepath.Join(dataDir, "pgdock.db")
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating schema: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS connections (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		host TEXT NOT NULL,
		port INTEGER NOT NULL,
		database TEXT NOT NULL,
		username TEXT NOT NULL,
		tls_mode TEXT NOT NULL,
		tunnel TEXT NOT NULL DEFAULT '',
		connect_timeout_ms INTEGER NOT NULL DEFAULT 0,
		statement_timeout_ms INTEGER NOT NULL DEFAULT 0,
		read_only INTEGER NOT NULL DEFAULT 0,
		app_name TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS query_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		connection_id TEXT NOT NULL,
		statement TEXT NOT NULL,
		status TEXT NOT NULL,
		rows_total INTEGER NOT NULL DEFAULT 0,
		affected INTEGER NOT NULL DEFAULT 0,
		elapsed_ms INTEGER NOT NULL DEFAULT 0,
		error_message TEXT NOT NULL DEFAULT '',
		started_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_history_connection ON query_history(connection_id, started_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveConnection inserts or replaces one connection record.
func (s *Store) SaveConnection(cfg connection.Config) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.Exec(`
		INSERT INTO connections
			(id, name, host, port, database, username, tls_mode, tunnel,
			 connect_timeout_ms, statement_timeout_ms, read_only, app_name,
			 created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			host = excluded.host,
			port = excluded.port,
			database = excluded.database,
			username = excluded.username,
			tls_mode = excluded.tls_mode,
			tunnel = excluded.tunnel,
			connect_timeout_ms = excluded.connect_timeout_ms,
			statement_timeout_ms = excluded.statement_timeout_ms,
			read_only = excluded.read_only,
			app_name = excluded.app_name,
			updated_at = excluded.updated_at`,
		cfg.ID, cfg.Name, cfg.Host, cfg.Port, cfg.Database, cfg.User,
		string(cfg.TLS), cfg.Tunnel,
		cfg.ConnectTimeout.Milliseconds(), cfg.StatementTimeout.Milliseconds(),
		boolInt(cfg.ReadOnly), cfg.AppName, now, now)
	if err != nil {
		return fmt.Errorf("saving connection %s: %w", cfg.ID, err)
	}
	return nil
}

// GetConnection loads one connection by id. Returns ErrNotFound when absent.
func (s *Store) GetConnection(id string) (connection.Config, error) {
	row := s.db.QueryRow(`
		SELECT id, name, host, port, database, username, tls_mode, tunnel,
			connect_timeout_ms, statement_timeout_ms, read_only, app_name
		FROM connections WHERE id = ?`, id)

	cfg, err := scanConnection(row)
	if errors.Is(err, sql.ErrNoRows) {
		return connection.Config{}, fmt.Errorf("connection %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return connection.Config{}, fmt.Errorf("loading connection %s: %w", id, err)
	}
	return cfg, nil
}

// FindConnectionByName loads one connection by its display name.
func (s *Store) FindConnectionByName(name string) (connection.Config, error) {
	row := s.db.QueryRow(`
		SELECT id, name, host, port, database, username, tls_mode, tunnel,
			connect_timeout_ms, statement_timeout_ms, read_only, app_name
		FROM connections WHERE name = ? ORDER BY updated_at DESC LIMIT 1`, name)

	cfg, err := scanConnection(row)
	if errors.Is(err, sql.ErrNoRows) {
		return connection.Config{}, fmt.Errorf("connection %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return connection.Config{}, fmt.Errorf("loading connection %q: %w", name, err)
	}
	return cfg, nil
}

// ListConnections returns every saved connection ordered by name.
func (s *Store) ListConnections() ([]connection.Config, error) {
	rows, err := s.db.Query(`
		SELECT id, name, host, port, database, username, tls_mode, tunnel,
			connect_timeout_ms, statement_timeout_ms, read_only, app_name
		FROM connections ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing connections: %w", err)
	}
	defer rows.Close()

	var configs []connection.Config
	for rows.Next() {
		cfg, err := scanConnection(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning connection: %w", err)
		}
		configs = append(configs, cfg)
	}
	return configs, rows.Err()
}

// DeleteConnection removes one connection and its history in one transaction.
func (s *Store) DeleteConnection(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("deleting connection %s: %w", id, err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM query_history WHERE connection_id = ?`, id); err != nil {
		return fmt.Errorf("deleting history for %s: %w", id, err)
	}
	res, err := tx.Exec(`DELETE FROM connections WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting connection %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("connection %s: %w", id, ErrNotFound)
	}
	return tx.Commit()
}

// AppendHistory records one finished statement and trims old rows past limit.
// A limit <= 0 selects DefaultHistoryLimit.
func (s *Store) AppendHistory(e HistoryEntry, limit int) error {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	_, err := s.db.Exec(`
		INSERT INTO query_history
			(connection_id, statement, status, rows_total, affected, elapsed_ms,
			 error_message, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ConnectionID, e.Statement, e.Status, e.RowsTotal, e.Affected,
		e.Elapsed.Milliseconds(), e.ErrorMessage,
		e.StartedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("appending history: %w", err)
	}

	_, err = s.db.Exec(`
		DELETE FROM query_history
		WHERE connection_id = ? AND id NOT IN (
			SELECT id FROM query_history
			WHERE connection_id = ?
			ORDER BY id DESC LIMIT ?
		)`, e.ConnectionID, e.ConnectionID, limit)
	if err != nil {
		return fmt.Errorf("trimming history: %w", err)
	}
	return nil
}

// RecentHistory returns up to limit entries for one connection, newest first.
// An empty connectionID returns history across all connections.
func (s *Store) RecentHistory(connectionID string, limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	q := `
		SELECT id, connection_id, statement, status, rows_total, affected,
			elapsed_ms, error_message, started_at
		FROM query_history`
	args := []any{}
	if connectionID != "" {
		q += ` WHERE connection_id = ?`
		args = append(args, connectionID)
	}
	q += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("listing history: %w", err)
	}
	defer rows.Close()

	var entries []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		var elapsedMS int64
		var startedAt string
		if err := rows.Scan(&e.ID, &e.ConnectionID, &e.Statement, &e.Status,
			&e.RowsTotal, &e.Affected, &elapsedMS, &e.ErrorMessage, &startedAt); err != nil {
			return nil, fmt.Errorf("scanning history: %w", err)
		}
		e.Elapsed = time.Duration(elapsedMS) * time.Millisecond
		e.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConnection(row rowScanner) (connection.Config, error) {
	var cfg connection.Config
	var tlsMode string
	var connectMS, statementMS int64
	var readOnly int
	err := row.Scan(&cfg.ID, &cfg.Name, &cfg.Host, &cfg.Port, &cfg.Database,
		&cfg.User, &tlsMode, &cfg.Tunnel, &connectMS, &statementMS,
		&readOnly, &cfg.AppName)
	if err != nil {
		return connection.Config{}, err
	}
	cfg.TLS = connection.TLSMode(tlsMode)
	cfg.ConnectTimeout = time.Duration(connectMS) * time.Millisecond
	cfg.StatementTimeout = time.Duration(statementMS) * time.Millisecond
	cfg.ReadOnly = readOnly != 0
	return cfg, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
