package db

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/sirupsen/logrus"
)

// RunMigrations applies every pending migration in config.MigrationsDir.
func RunMigrations(config *Config) error {
	source := "file://" + config.MigrationsDir

	config.Logger.WithFields(logrus.Fields{
		"migrations_path": source,
		"database":        config.Name,
	}).Debug("Running database migrations")

	m, err := migrate.New(source, config.URL())
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to read migration version: %w", err)
	}
	config.Logger.WithFields(logrus.Fields{
		"version": version,
		"dirty":   dirty,
	}).Debug("Database schema is current")
	return nil
}
