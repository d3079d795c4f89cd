package sqlstore

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/aussiebroadwan/keystone/internal/keystone/store/drivers/sqlstore/migrations"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
)

// ApplyMigrations applies any pending migrations embedded for the store's
// driver. Postgres migrations run over lib/pq, the driver golang-migrate's
// postgres backend is built on; application queries use pgx.
func (s *Store) ApplyMigrations() error {
	var (
		driver database.Driver
		err    error
	)

	switch s.driver {
	case DriverPostgres:
		pq, openErr := sql.Open("postgres", s.dsn)
		if openErr != nil {
			return fmt.Errorf("sqlstore: open migration conn: %w", openErr)
		}
		driver, err = migratepg.WithInstance(pq, &migratepg.Config{})
		if err != nil {
			_ = pq.Close()
		}
	default:
		driver, err = migratesqlite.WithInstance(s.db.DB, &migratesqlite.Config{})
	}
	if err != nil {
		return fmt.Errorf("sqlstore: migration driver: %w", err)
	}

	src, err := iofs.New(migrations.FS, string(s.driver))
	if err != nil {
		return fmt.Errorf("sqlstore: migration source: %w", err)
	}

	instance, err := migrate.NewWithInstance("iofs", src, string(s.driver), driver)
	if err != nil {
		return fmt.Errorf("sqlstore: migrate: %w", err)
	}

	if err := instance.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("sqlstore: migrate up: %w", err)
	}

	// Closing the sqlite driver would close the store's own handle.
	if s.driver == DriverPostgres {
		_, _ = instance.Close()
	}
	return nil
}
