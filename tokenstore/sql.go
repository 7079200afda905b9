package tokenstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

// Supported SQL drivers.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

type tokenRow struct {
	bun.BaseModel `bun:"table:canvas_tokens"`

	Key       string    `bun:"token_key,pk"`
	Value     []byte    `bun:"value,notnull"`
	ExpiresAt time.Time `bun:"expires_at,nullzero"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}

// SQL stores token state in a single canvas_tokens table.
type SQL struct {
	db  *bun.DB
	now func() time.Time
}

// OpenSQL opens a database for driver (DriverSQLite or DriverPostgres) and
// creates the token table if it does not exist.
func OpenSQL(ctx context.Context, driver, dsn string) (*SQL, error) {
	sqldb, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}

	var db *bun.DB
	switch driver {
	case DriverSQLite:
		// A single connection keeps in-memory databases shared and serializes writers.
		sqldb.SetMaxOpenConns(1)
		db = bun.NewDB(sqldb, sqlitedialect.New())
	case DriverPostgres:
		db = bun.NewDB(sqldb, pgdialect.New())
	default:
		_ = sqldb.Close()
		return nil, fmt.Errorf("unsupported sql driver %q (expected: %s, %s)", driver, DriverSQLite, DriverPostgres)
	}

	store, err := NewSQL(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// NewSQL wraps an existing bun database and ensures the schema exists.
func NewSQL(ctx context.Context, db *bun.DB) (*SQL, error) {
	_, err := db.NewCreateTable().
		Model((*tokenRow)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create token table: %w", err)
	}

	return &SQL{
		db:  db,
		now: time.Now,
	}, nil
}

// Get returns the value stored under key, or ErrNotFound when it is absent or expired.
func (s *SQL) Get(ctx context.Context, key string) ([]byte, error) {
	var row tokenRow
	err := s.db.NewSelect().
		Model(&row).
		Where("token_key = ?", key).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select token state: %w", err)
	}

	if !row.ExpiresAt.IsZero() && !s.now().Before(row.ExpiresAt) {
		_ = s.Forget(ctx, key)
		return nil, ErrNotFound
	}

	return row.Value, nil
}

// Put stores value under key. A non-positive ttl keeps it until Forget.
func (s *SQL) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	now := s.now().UTC()
	row := tokenRow{
		Key:       key,
		Value:     value,
		UpdatedAt: now,
	}
	if ttl > 0 {
		row.ExpiresAt = now.Add(ttl)
	}

	_, err := s.db.NewInsert().
		Model(&row).
		On("CONFLICT (token_key) DO UPDATE").
		Set("value = EXCLUDED.value").
		Set("expires_at = EXCLUDED.expires_at").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to upsert token state: %w", err)
	}
	return nil
}

// Forget removes key. Removing an absent key is not an error.
func (s *SQL) Forget(ctx context.Context, key string) error {
	_, err := s.db.NewDelete().
		Model((*tokenRow)(nil)).
		Where("token_key = ?", key).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete token state: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQL) Close() error {
	return s.db.Close()
}

var _ Store = (*SQL)(nil)
