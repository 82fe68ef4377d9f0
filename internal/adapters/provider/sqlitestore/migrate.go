package sqlitestore

import (
	"context"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations
var migrations embed.FS

// migrateUp applies every pending migration. The migrate instance is not
// closed since that would close the shared *sql.DB.
func (s *Store) migrateUp() error {
	source, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("source: %v: %w", err, ErrMigrate)
	}
	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("driver: %v: %w", err, ErrMigrate)
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("instance: %v: %w", err, ErrMigrate)
	}
	m.Log = &migrateLogger{s: s}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("up: %v: %w", err, ErrMigrate)
	}
	return nil
}

// Version reports the applied schema version.
func (s *Store) Version() (uint, bool, error) {
	source, err := iofs.New(migrations, "migrations")
	if err != nil {
		return 0, false, err
	}
	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return 0, false, err
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return 0, false, err
	}
	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return v, dirty, err
}

// migrateLogger routes migrate output to the store logger.
type migrateLogger struct{ s *Store }

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	l.s.logger.Debug(context.Background(), fmt.Sprintf("[migrate] "+format, v...))
}

func (l *migrateLogger) Verbose() bool { return false }
