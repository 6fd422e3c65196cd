package store

import (
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

// Collection names. These are a contract with downstream readers.
const (
	Registries    = "registries"
	Organizations = "organizations"
	Filings       = "filings"
)

// Schema version tracking (SQLite user_version):
// 0 - empty database
// 1 - registries, organizations, filings document tables
const currentSchemaVersion = 1

// ErrUnknownCollection is returned for any collection name outside the fixed set.
var ErrUnknownCollection = errors.New("unknown collection")

var collections = map[string]bool{
	Registries:    true,
	Organizations: true,
	Filings:       true,
}

// Store is a JSON document store on top of database/sql.
type Store struct {
	db      *sql.DB
	dialect dialect
	ids     IDGenerator
}

// Option configures a Store.
type Option func(*Store)

// WithIDGenerator overrides the UUIDv7 document ID generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(s *Store) {
		s.ids = g
	}
}

// Open connects to the store named by dsn and applies the schema.
//
// A "postgres://" or "postgresql://" DSN selects PostgreSQL; anything else is
// treated as a SQLite path or URI. SQLite databases are configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode
//   - 5-second busy timeout for lock contention
//
// Open is idempotent: reopening an existing store leaves its data untouched.
func Open(dsn string, opts ...Option) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("open store: empty DSN")
	}
	d := dialectFor(dsn)

	db, err := sql.Open(d.driver(), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &Store{db: db, dialect: d, ids: UUIDv7Generator{}}
	for _, opt := range opts {
		opt(s)
	}

	if _, ok := d.(sqliteDialect); ok {
		// SQLite only supports one writer at a time.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)

		if err := applyPragmas(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply pragmas: %w", err)
		}
	}

	if err := s.applySchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Backend reports which dialect the store speaks: "sqlite" or "postgres".
func (s *Store) Backend() string {
	return s.dialect.name()
}

// MaxBatch is the largest IN-list a single filter should carry.
func (s *Store) MaxBatch() int {
	return s.dialect.maxBind()
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

func (s *Store) applySchema() error {
	for _, stmt := range statements(s.dialect.schema()) {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema: %w", err)
		}
	}

	if _, ok := s.dialect.(sqliteDialect); !ok {
		return nil
	}

	var version int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version < currentSchemaVersion {
		if _, err := s.db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
			return fmt.Errorf("set user_version: %w", err)
		}
	}

	return nil
}

func checkCollection(name string) error {
	if !collections[name] {
		return fmt.Errorf("%w: %q", ErrUnknownCollection, name)
	}
	return nil
}
