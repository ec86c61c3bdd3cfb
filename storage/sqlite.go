package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	_ "modernc.org/sqlite"

	"github.com/MapleMaven/esp32-sram-puf/interfaces"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS enrollment_kv (
	namespace TEXT NOT NULL,
	key       TEXT NOT NULL,
	value     BLOB NOT NULL,
	PRIMARY KEY (namespace, key)
);
`

// SQLiteBackend persists enrollment records in a single SQLite database,
// one row per (namespace, key). This is the default durable store for
// host-side enrollment.
type SQLiteBackend struct {
	db          *sql.DB
	log         *slog.Logger
	locationURI string
}

// NewSQLiteBackend opens (creating if necessary) the database at dbPath and
// runs migrations.
func NewSQLiteBackend(dbPath string, log *slog.Logger) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &SQLiteBackend{
		db:          db,
		log:         log,
		locationURI: fmt.Sprintf("sqlite://%s", dbPath),
	}, nil
}

// Namespace returns the store scoped to the given namespace.
func (b *SQLiteBackend) Namespace(name string) interfaces.KVStore {
	return typedKV{raw: &sqliteStore{backend: b, ns: name}}
}

// Available reports whether the database responds to a ping.
func (b *SQLiteBackend) Available(ctx context.Context) bool {
	return b.db.PingContext(ctx) == nil
}

// Name returns a unique identifier for this backend.
func (b *SQLiteBackend) Name() string {
	return "sqlite"
}

// LocationURI returns the URI that identifies this backend.
func (b *SQLiteBackend) LocationURI() string {
	return b.locationURI
}

// Close closes the underlying database.
func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}

type sqliteStore struct {
	backend *SQLiteBackend
	ns      string
}

func (s *sqliteStore) has(ctx context.Context, key string) (bool, error) {
	var one int
	err := s.backend.db.QueryRowContext(ctx,
		`SELECT 1 FROM enrollment_kv WHERE namespace = ? AND key = ?`, s.ns, key).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query key: %w", err)
	}
	return true, nil
}

func (s *sqliteStore) get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.backend.db.QueryRowContext(ctx,
		`SELECT value FROM enrollment_kv WHERE namespace = ? AND key = ?`, s.ns, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, interfaces.ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query value: %w", err)
	}
	return value, nil
}

func (s *sqliteStore) put(ctx context.Context, key string, value []byte) (int, error) {
	_, err := s.backend.db.ExecContext(ctx,
		`INSERT INTO enrollment_kv (namespace, key, value) VALUES (?, ?, ?)
		 ON CONFLICT (namespace, key) DO UPDATE SET value = excluded.value`,
		s.ns, key, value)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", interfaces.ErrStorageFull, err)
	}
	return len(value), nil
}

func (s *sqliteStore) clear(ctx context.Context) error {
	_, err := s.backend.db.ExecContext(ctx,
		`DELETE FROM enrollment_kv WHERE namespace = ?`, s.ns)
	if err != nil {
		return fmt.Errorf("clear namespace: %w", err)
	}
	return nil
}
