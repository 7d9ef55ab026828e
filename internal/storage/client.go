// Package storage provides the PostgreSQL-backed persistence layer for
// experiments, approvals, the guardrail audit log, and the cache/quota
// ledger: pooled connections and embedded migrations over pgx, with
// hand-written repositories instead of a generated ORM client.
package storage

import (
	stdsql "database/sql"
	"context"
	"embed"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
)

//go:embed migrations
var migrationsFS embed.FS

// Config holds database connection settings.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// Client wraps a pooled *sql.DB connected through the pgx driver.
type Client struct {
	db *stdsql.DB
}

// DB returns the underlying connection pool for health checks.
func (c *Client) DB() *stdsql.DB { return c.db }

// Close closes the underlying connection pool.
func (c *Client) Close() error { return c.db.Close() }

// Open creates a pooled connection, applies embedded migrations, and
// returns a ready-to-use Client.
func Open(ctx context.Context, cfg Config) (*Client, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	db, err := stdsql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(db, cfg.Database, ""); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Client{db: db}, nil
}

// NewClientFromDB wraps an existing *sql.DB, useful for tests that
// construct their own pool (e.g. against a testcontainer).
func NewClientFromDB(db *stdsql.DB) *Client {
	return &Client{db: db}
}

// MigrateSchema applies the embedded migrations against db, tracking
// schema_migrations inside the named Postgres schema (empty schemaName
// uses the driver default). Exported so integration tests can apply the
// same migrations inside an isolated per-test schema.
func MigrateSchema(db *stdsql.DB, schemaName string) error {
	return runMigrations(db, "adops_intel", schemaName)
}

func runMigrations(db *stdsql.DB, dbName, schemaName string) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{SchemaName: schemaName})
	if err != nil {
		return fmt.Errorf("create postgres driver: %w", err)
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, dbName, driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}

	// Close only the migration source; closing the migrate instance
	// would also close db via the shared postgres.WithInstance driver.
	return sourceDriver.Close()
}
