package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLite is the durable default Store. The database file survives process
// restarts; no multi-process sharing is assumed.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens (or creates) the cache database at path.
func OpenSQLite(path string) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("cache: mkdir %s: %w", filepath.Dir(path), err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("cache: open db: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite: single writer
	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("cache: init schema: %w", err)
	}
	return &SQLite{db: db, now: time.Now}, nil
}

func initSchema(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS entries (
		key       TEXT PRIMARY KEY,
		value     TEXT NOT NULL,
		identity  TEXT NOT NULL,
		cached_at INTEGER NOT NULL,
		ttl_secs  INTEGER NOT NULL
	)`)
	return err
}

func (s *SQLite) Get(ctx context.Context, key, identity string) (json.RawMessage, bool, error) {
	var (
		value    string
		storedID string
		cachedAt int64
		ttlSecs  int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT value, identity, cached_at, ttl_secs FROM entries WHERE key = ?`, key).
		Scan(&value, &storedID, &cachedAt, &ttlSecs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache: get %s: %w", key, err)
	}
	e := entry{Value: json.RawMessage(value), Identity: storedID, CachedAt: cachedAt, TTL: ttlSecs}
	if !e.live(s.now(), identity) {
		return nil, false, nil
	}
	return e.Value, true, nil
}

func (s *SQLite) Put(ctx context.Context, key string, value json.RawMessage, identity string, ttl time.Duration) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO entries (key, value, identity, cached_at, ttl_secs) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value=excluded.value, identity=excluded.identity,
		 cached_at=excluded.cached_at, ttl_secs=excluded.ttl_secs`,
		key, string(value), identity, s.now().Unix(), int64(ttl/time.Second))
	if err != nil {
		return fmt.Errorf("cache: put %s: %w", key, err)
	}
	return nil
}

// likeEscaper makes a caller-supplied prefix safe as a literal LIKE
// pattern. The admin sweep endpoint passes the prefix through verbatim,
// so %, _ and \ must not act as wildcards.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (s *SQLite) Sweep(ctx context.Context, prefix string) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM entries WHERE key LIKE ? || '%' ESCAPE '\'`, likeEscaper.Replace(prefix))
	if err != nil {
		return 0, fmt.Errorf("cache: sweep %s: %w", prefix, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (s *SQLite) Close() error { return s.db.Close() }
