package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - tables as created by the first releases (no message positions,
//     weeks stored as "2006-01-02 15:04:05-07:00")
// 1 - messages.position, weeks stored as dates, unique slot index
const currentSchemaVersion = 1

var (
	// ErrChannelExists is returned when a channel is registered twice.
	ErrChannelExists = errors.New("channel already registered")
	// ErrChannelNotFound is returned for operations on an unregistered channel.
	ErrChannelNotFound = errors.New("channel not registered")
)

// Store is the SQLite-backed record of channels, posted messages and
// command cooldowns. It is safe for concurrent use; writes are serialized
// on a single connection.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open creates or opens the database at path and brings its schema up to
// date. Use ":memory:" only with care: each connection would see its own
// database, which is why the pool is pinned to one connection.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	// SQLite has one writer; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	return nil
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	if err := runMigrations(db); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// migrateToV1 adds message positions. Existing rows are numbered by
// insertion order within their (week, channel), which is the order the
// first releases posted them in.
func migrateToV1(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	defer tx.Rollback()

	has, err := hasColumn(tx, "messages", "position")
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	stmts := []string{
		`UPDATE messages SET week = substr(week, 1, 10) WHERE length(week) > 10`,
		`UPDATE messages SET position = (
			SELECT COUNT(*) FROM messages AS earlier
			WHERE earlier.week = messages.week
			  AND earlier.channel_id = messages.channel_id
			  AND earlier.id <= messages.id
		) WHERE position IS NULL`,
		`CREATE UNIQUE INDEX IF NOT EXISTS messages_slot_index ON messages (week, channel_id, position)`,
	}
	if !has {
		stmts = append([]string{`ALTER TABLE messages ADD COLUMN position INTEGER`}, stmts...)
	}
	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("migrate to v1: %w", err)
		}
	}
	return tx.Commit()
}

func hasColumn(tx *sql.Tx, table, column string) (bool, error) {
	rows, err := tx.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			cid       int
			name      string
			ctype     string
			notNull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dfltValue, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}

// channelRowID resolves a Slack channel ID to its row id.
func (s *Store) channelRowID(ctx context.Context, q querier, channelID string) (int64, error) {
	var id int64
	err := q.QueryRowContext(ctx, `SELECT id FROM channels WHERE slack_channel_id = ?`, channelID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: %s", ErrChannelNotFound, channelID)
	}
	return id, err
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}
