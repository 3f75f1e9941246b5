package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"sentinel-community/internal/clock"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrations embed.FS

// ErrNotFound is returned by FetchOne and the typed getters when no row matches.
var ErrNotFound = errors.New("storage: not found")

// QueryError wraps a driver failure with the operation that produced it.
type QueryError struct {
	Op    string
	Query string
	Err   error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

type Store struct {
	db     *sqlx.DB
	logger *zap.Logger
	clock  clock.Clock
}

func New(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sqlx.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}
	// One connection: writes are serialized and ":memory:" stays a single database.
	db.SetMaxOpenConns(1)
	return &Store{db: db, logger: zap.NewNop(), clock: clock.Real()}, nil
}

func (s *Store) WithLogger(logger *zap.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// WithClock sets the clock used for joined_at, last_active and default timestamps.
func (s *Store) WithClock(c clock.Clock) {
	if c != nil {
		s.clock = c
	}
}

func (s *Store) Close() {
	if s.db != nil {
		_ = s.db.Close()
	}
}

func (s *Store) Migrate() error {
	entries, err := migrations.ReadDir("migrations")
	if err != nil {
		return err
	}

	var files []string
	for _, entry := range entries {
		files = append(files, entry.Name())
	}
	sort.Strings(files)

	for _, file := range files {
		content, err := migrations.ReadFile(path.Join("migrations", file))
		if err != nil {
			return err
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			if isIgnorableMigrationError(err) {
				continue
			}
			return fmt.Errorf("migration %s failed: %w", file, err)
		}
	}
	return nil
}

// Exec runs a statement that returns no rows.
func (s *Store) Exec(ctx context.Context, query string, args ...any) error {
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return s.fail("exec", query, err)
	}
	return nil
}

// Fetch scans every matching row into dest, which must be a pointer to a slice.
func (s *Store) Fetch(ctx context.Context, dest any, query string, args ...any) error {
	if err := s.db.SelectContext(ctx, dest, query, args...); err != nil {
		return s.fail("fetch", query, err)
	}
	return nil
}

// FetchOne scans a single row into dest and returns ErrNotFound when there is none.
func (s *Store) FetchOne(ctx context.Context, dest any, query string, args ...any) error {
	if err := s.db.GetContext(ctx, dest, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return s.fail("fetch_one", query, err)
	}
	return nil
}

func (s *Store) fail(op, query string, err error) error {
	query = strings.Join(strings.Fields(query), " ")
	s.logger.Error("storage query failed", zap.String("op", op), zap.String("query", query), zap.Error(err))
	return &QueryError{Op: op, Query: query, Err: err}
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func isIgnorableMigrationError(err error) bool {
	if err == nil {
		return false
	}
	message := err.Error()
	return strings.Contains(message, "duplicate column name") || strings.Contains(message, "already exists")
}
