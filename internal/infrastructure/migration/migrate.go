// Package migration applies the SQL schema migrations under migrations/ with golang-migrate.
package migration

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"go.uber.org/zap"
)

// Migrator drives the invoice schema migrations of one database.
type Migrator struct {
	migrate *migrate.Migrate
	dir     string
	logger  *zap.Logger
}

// New creates a Migrator over an open postgres connection. The Migrator owns
// db from here on and closes it in Close.
func New(db *sql.DB, dir string, logger *zap.Logger) (*Migrator, error) {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("postgres migration driver: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance(sourceURL(dir), "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("open migrations %s: %w", dir, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Migrator{migrate: m, dir: dir, logger: logger.Named("migration")}, nil
}

// Up applies every pending migration. An up-to-date schema is not an error.
func (m *Migrator) Up() error {
	return m.apply("up", m.migrate.Up)
}

// Down rolls every migration back.
func (m *Migrator) Down() error {
	return m.apply("down", m.migrate.Down)
}

// Steps applies n migrations, rolling back when n is negative.
func (m *Migrator) Steps(n int) error {
	return m.apply(fmt.Sprintf("step %d", n), func() error { return m.migrate.Steps(n) })
}

// Force records version as applied and clean without running anything. It
// is the way out of a dirty schema after a failed migration.
func (m *Migrator) Force(version int) error {
	m.logger.Warn("Forcing schema version", zap.Int("version", version))
	if err := m.migrate.Force(version); err != nil {
		return fmt.Errorf("force version %d: %w", version, err)
	}
	return nil
}

func (m *Migrator) apply(name string, run func() error) error {
	m.logger.Info("Applying migrations", zap.String("direction", name))
	err := run()
	if errors.Is(err, migrate.ErrNoChange) {
		m.logger.Info("Schema already at target version")
		return nil
	}
	if err != nil {
		return fmt.Errorf("migrate %s: %w", name, err)
	}
	if st, err := m.Status(); err == nil {
		m.logger.Info("Migrations applied", zap.Uint("version", st.Version), zap.Int("pending", len(st.Pending)))
	}
	return nil
}

// Version returns the applied schema version, 0 when nothing was applied.
func (m *Migrator) Version() (uint, bool, error) {
	version, dirty, err := m.migrate.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read schema version: %w", err)
	}
	return version, dirty, nil
}

// Status compares the applied version with the migrations on disk.
type Status struct {
	Version uint
	Dirty   bool
	Pending []Available
}

// Status reports the applied version and the migrations not yet applied.
func (m *Migrator) Status() (Status, error) {
	version, dirty, err := m.Version()
	if err != nil {
		return Status{}, err
	}
	available, err := ListAvailable(m.dir)
	if err != nil {
		return Status{}, err
	}
	st := Status{Version: version, Dirty: dirty}
	for _, a := range available {
		if a.Version > version {
			st.Pending = append(st.Pending, a)
		}
	}
	return st, nil
}

// Close releases the source and the database connection.
func (m *Migrator) Close() error {
	sourceErr, dbErr := m.migrate.Close()
	return errors.Join(sourceErr, dbErr)
}

// Available is one migration found in the migrations directory.
type Available struct {
	Version    uint
	Identifier string
}

// ListAvailable enumerates the migrations of dir in version order.
func ListAvailable(dir string) ([]Available, error) {
	drv, err := source.Open(sourceURL(dir))
	if err != nil {
		return nil, fmt.Errorf("open migrations %s: %w", dir, err)
	}
	defer drv.Close()

	var out []Available
	version, err := drv.First()
	for err == nil {
		r, identifier, readErr := drv.ReadUp(version)
		if readErr != nil {
			return nil, fmt.Errorf("read migration %d: %w", version, readErr)
		}
		_ = r.Close()
		out = append(out, Available{Version: version, Identifier: identifier})
		version, err = drv.Next(version)
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("enumerate migrations: %w", err)
	}
	return out, nil
}

func sourceURL(dir string) string {
	return "file://" + dir
}
