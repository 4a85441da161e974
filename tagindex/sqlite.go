package tagindex

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/jonwraymond/tagcache/tagindex/migrations"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// DefaultTable is the mapping table used when SQLiteConfig.Table is empty.
const DefaultTable = "tag_mappings"

// DefaultBusyTimeout is how long SQLite waits on a locked database.
const DefaultBusyTimeout = 5 * time.Second

// ErrBusy is returned when SQLite reports the database as busy or locked.
var ErrBusy = errors.New("tagindex: store is busy")

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLiteConfig configures a SQLite index.
type SQLiteConfig struct {
	// Path is the database file. Required.
	Path string `mapstructure:"path" yaml:"path"`

	// Table is the mapping table name. Default: DefaultTable.
	Table string `mapstructure:"table" yaml:"table"`

	// BusyTimeout bounds waits on the single writer lock.
	// Default: DefaultBusyTimeout.
	BusyTimeout time.Duration `mapstructure:"busy_timeout" yaml:"busy_timeout"`
}

// SQLiteIndex stores mappings in a SQLite table without a unique constraint,
// so plain Insert can produce duplicate rows.
type SQLiteIndex struct {
	db    *sql.DB
	table string

	existsSQL, insertSQL, insertIfAbsentSQL, deleteSQL, allKeysSQL string
}

// OpenSQLite opens the database at cfg.Path and applies embedded migrations.
func OpenSQLite(ctx context.Context, cfg SQLiteConfig) (*SQLiteIndex, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, fmt.Errorf("tagindex: sqlite path is required")
	}
	table := cfg.Table
	if table == "" {
		table = DefaultTable
	}
	if !tableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("tagindex: invalid table name %q", table)
	}
	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = DefaultBusyTimeout
	}

	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)",
		filepath.Clean(path), busy.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, db, migrations.FS, table); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteIndex{
		db:                db,
		table:             table,
		existsSQL:         "SELECT 1 FROM " + table + " WHERE cache_key = ? AND tag = ? LIMIT 1",
		insertSQL:         "INSERT INTO " + table + " (cache_key, tag) VALUES (?, ?)",
		insertIfAbsentSQL: "INSERT INTO " + table + " (cache_key, tag) SELECT ?, ? WHERE NOT EXISTS (SELECT 1 FROM " + table + " WHERE cache_key = ? AND tag = ?)",
		deleteSQL:         "DELETE FROM " + table + " WHERE cache_key = ?",
		allKeysSQL:        "SELECT DISTINCT cache_key FROM " + table + " ORDER BY cache_key",
	}, nil
}

// Table returns the mapping table name.
func (s *SQLiteIndex) Table() string { return s.table }

// Exists reports whether a (key, tag) row exists.
func (s *SQLiteIndex) Exists(ctx context.Context, key, tag string) (bool, error) {
	var found int
	err := s.db.QueryRowContext(ctx, s.existsSQL, key, tag).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, classifySQLite("exists", err)
	}
	return true, nil
}

// Insert adds a row unconditionally.
func (s *SQLiteIndex) Insert(ctx context.Context, key, tag string) error {
	if key == "" {
		return ErrEmptyKey
	}
	if _, err := s.db.ExecContext(ctx, s.insertSQL, key, tag); err != nil {
		return classifySQLite("insert", err)
	}
	return nil
}

// InsertIfAbsent adds a row in a single statement unless one already exists.
func (s *SQLiteIndex) InsertIfAbsent(ctx context.Context, key, tag string) (bool, error) {
	if key == "" {
		return false, ErrEmptyKey
	}
	res, err := s.db.ExecContext(ctx, s.insertIfAbsentSQL, key, tag, key, tag)
	if err != nil {
		return false, classifySQLite("insert", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, classifySQLite("insert", err)
	}
	return n > 0, nil
}

// DeleteByKey removes every row for key.
func (s *SQLiteIndex) DeleteByKey(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, s.deleteSQL, key); err != nil {
		return classifySQLite("delete", err)
	}
	return nil
}

// FindKeysByTagIn returns keys carrying any of tags.
func (s *SQLiteIndex) FindKeysByTagIn(ctx context.Context, tags []string) ([]string, error) {
	tags = NormalizeTags(tags)
	if len(tags) == 0 {
		return []string{}, nil
	}
	query := "SELECT DISTINCT cache_key FROM " + s.table +
		" WHERE tag IN (" + placeholders(len(tags)) + ") ORDER BY cache_key"
	return s.queryKeys(ctx, query, stringArgs(tags)...)
}

// FindKeysByTagNotIn returns keys whose rows carry none of tags.
func (s *SQLiteIndex) FindKeysByTagNotIn(ctx context.Context, tags []string) ([]string, error) {
	tags = NormalizeTags(tags)
	if len(tags) == 0 {
		return s.queryKeys(ctx, s.allKeysSQL)
	}
	query := "SELECT DISTINCT cache_key FROM " + s.table +
		" WHERE cache_key NOT IN (SELECT cache_key FROM " + s.table +
		" WHERE tag IN (" + placeholders(len(tags)) + ")) ORDER BY cache_key"
	return s.queryKeys(ctx, query, stringArgs(tags)...)
}

// Ping checks the database connection.
func (s *SQLiteIndex) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return classifySQLite("ping", err)
	}
	return nil
}

// Close closes the database handle.
func (s *SQLiteIndex) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteIndex) queryKeys(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classifySQLite("query", err)
	}
	defer rows.Close()

	keys := []string{}
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, classifySQLite("scan", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, classifySQLite("query", err)
	}
	return keys, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func stringArgs(values []string) []any {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}

// classifySQLite wraps busy/locked driver errors with ErrBusy.
func classifySQLite(op string, err error) error {
	if errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("tagindex: sqlite %s: %w", op, ErrClosed)
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() & 0xff {
		case sqlite3lib.SQLITE_BUSY, sqlite3lib.SQLITE_LOCKED:
			return fmt.Errorf("tagindex: sqlite %s: %w: %w", op, ErrBusy, err)
		}
	}
	return fmt.Errorf("tagindex: sqlite %s: %w", op, err)
}

var (
	_ Index    = (*SQLiteIndex)(nil)
	_ Upserter = (*SQLiteIndex)(nil)
	_ Pinger   = (*SQLiteIndex)(nil)
)
