// Package integration exercises the invoicing service against real
// infrastructure: PostgreSQL and Redis started with testcontainers.
package integration

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/erp/invoicing/internal/infrastructure/config"
	"github.com/erp/invoicing/internal/infrastructure/migration"
	"github.com/erp/invoicing/internal/infrastructure/persistence"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// TestDB is a migrated invoicing database
type TestDB struct {
	DB    *gorm.DB
	SqlDB *sql.DB
	DSN   string
	t     *testing.T
}

var sharedPG struct {
	once sync.Once
	dsn  string
	err  error
}

// NewTestDB starts a dedicated PostgreSQL container, migrated to the latest
// schema, and terminates it when the test ends.
func NewTestDB(t *testing.T) *TestDB {
	t.Helper()
	skipIfShort(t)

	container, dsn, err := startPostgres(context.Background(), "invoicing_test")
	require.NoError(t, err, "start postgres")
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("terminate postgres: %v", err)
		}
	})
	require.NoError(t, migrateUp(dsn), "migrate")
	return connect(t, dsn)
}

// NewSharedTestDB connects to a container shared by the whole package run.
// Tests sharing it must use distinct invoice numbers or call CleanTables.
// The container is reaped by the testcontainers reaper when the run ends.
func NewSharedTestDB(t *testing.T) *TestDB {
	t.Helper()
	skipIfShort(t)

	sharedPG.once.Do(func() {
		var dsn string
		_, dsn, sharedPG.err = startPostgres(context.Background(), "invoicing_shared_test")
		if sharedPG.err == nil {
			sharedPG.err = migrateUp(dsn)
		}
		sharedPG.dsn = dsn
	})
	require.NoError(t, sharedPG.err, "shared postgres")
	return connect(t, sharedPG.dsn)
}

// CleanTables empties the invoice tables
func (tdb *TestDB) CleanTables() {
	tdb.t.Helper()
	require.NoError(tdb.t, tdb.DB.Exec("TRUNCATE TABLE invoice_items, invoices CASCADE").Error)
}

func startPostgres(ctx context.Context, dbName string) (testcontainers.Container, string, error) {
	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase(dbName),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("admin123"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		return nil, "", err
	}
	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, "", err
	}
	return container, dsn, nil
}

// migrateUp applies migrations/ through the same Migrator cmd/migrate uses.
// The Migrator owns its connection and closes it.
func migrateUp(dsn string) error {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return err
	}
	m, err := migration.New(db, migrationsPath(), nil)
	if err != nil {
		_ = db.Close()
		return err
	}
	defer m.Close()
	return m.Up()
}

func connect(t *testing.T, dsn string) *TestDB {
	t.Helper()

	level := logger.Silent
	if os.Getenv("TEST_DB_DEBUG") != "" {
		level = logger.Info
	}
	db, err := persistence.OpenDialector(gormpostgres.Open(dsn),
		&config.DatabaseConfig{MaxOpenConns: 10, MaxIdleConns: 2},
		persistence.WithGormLogger(logger.Default.LogMode(level)))
	require.NoError(t, err, "connect")
	t.Cleanup(func() { _ = db.Close() })

	return &TestDB{DB: db.DB, SqlDB: db.SQL(), DSN: dsn, t: t}
}

// migrationsPath resolves the repository's migrations directory from this
// file's location so tests run from any working directory.
func migrationsPath() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "..", "migrations")
}

func skipIfShort(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container-backed test in short mode")
	}
}
