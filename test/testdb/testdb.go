// Package testdb provides a per-test, schema-isolated PostgreSQL
// connection for internal/storage's integration tests. It mirrors the
// teacher's dual-mode (CI service container vs. local testcontainer)
// database test helper, trimmed of the generated ent client this
// repository does not carry.
package testdb

import (
	"context"
	stdsql "database/sql"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/littlebearapps/adops-intel/internal/storage"
)

var (
	sharedConnStr string
	containerOnce sync.Once
	containerErr  error
)

// NewTestClient returns a storage.Client backed by a fresh, isolated
// Postgres schema with migrations applied. The schema is dropped and
// the pool closed via t.Cleanup.
func NewTestClient(t *testing.T) *storage.Client {
	t.Helper()
	ctx := context.Background()

	baseConnStr := baseConnectionString(t)
	schemaName := generateSchemaName(t)

	admin, err := stdsql.Open("pgx", baseConnStr)
	require.NoError(t, err)
	_, err = admin.ExecContext(ctx, fmt.Sprintf("CREATE SCHEMA %s", schemaName))
	require.NoError(t, err)
	_ = admin.Close()

	connStr := addSearchPath(baseConnStr, schemaName)
	db, err := stdsql.Open("pgx", connStr)
	require.NoError(t, err)
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	require.NoError(t, db.PingContext(ctx))
	require.NoError(t, storage.MigrateSchema(db, schemaName))

	client := storage.NewClientFromDB(db)

	t.Cleanup(func() {
		_ = client.Close()
		cleanup, err := stdsql.Open("pgx", baseConnStr)
		if err != nil {
			t.Logf("testdb: could not reconnect to drop schema %s: %v", schemaName, err)
			return
		}
		defer cleanup.Close()
		if _, err := cleanup.ExecContext(context.Background(), fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", schemaName)); err != nil {
			t.Logf("testdb: failed to drop schema %s: %v", schemaName, err)
		}
	})

	return client
}

func baseConnectionString(t *testing.T) string {
	t.Helper()

	if ci := os.Getenv("CI_DATABASE_URL"); ci != "" {
		t.Log("testdb: using external PostgreSQL from CI_DATABASE_URL")
		return ci
	}

	containerOnce.Do(func() {
		ctx := context.Background()
		t.Log("testdb: starting shared PostgreSQL testcontainer")

		pgContainer, err := postgres.Run(ctx,
			"postgres:17-alpine",
			postgres.WithDatabase("test"),
			postgres.WithUsername("test"),
			postgres.WithPassword("test"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(30*time.Second)),
		)
		if err != nil {
			containerErr = fmt.Errorf("start postgres container: %w", err)
			return
		}

		connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
		if err != nil {
			containerErr = fmt.Errorf("get connection string: %w", err)
			return
		}
		sharedConnStr = connStr
	})

	require.NoError(t, containerErr, "failed to start shared test container")
	return sharedConnStr
}

func generateSchemaName(t *testing.T) string {
	name := strings.ToLower(t.Name())
	name = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			return r
		}
		return '_'
	}, name)
	if len(name) > 40 {
		name = name[:40]
	}
	suffix := make([]byte, 4)
	_, err := rand.Read(suffix)
	require.NoError(t, err)
	return fmt.Sprintf("test_%s_%s", name, hex.EncodeToString(suffix))
}

func addSearchPath(connStr, schema string) string {
	sep := "?"
	if strings.Contains(connStr, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%ssearch_path=%s", connStr, sep, schema)
}
