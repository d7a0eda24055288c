// Package db opens the postgres database the event sink writes to and keeps
// its schema current.
package db

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// SetupDatabase runs migrations and opens a gorm connection that logs
// through the config's logger.
func SetupDatabase(config *Config) (*gorm.DB, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database config: %w", err)
	}
	config.Logger.Debug("Starting database setup")

	if err := RunMigrations(config); err != nil {
		return nil, err
	}

	config.Logger.Debug("Establishing GORM database connection")
	db, err := gorm.Open(postgres.Open(config.DSN()), &gorm.Config{
		Logger: NewGormLogrusLogger(config.Logger),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	config.Logger.Info("Database setup completed successfully")
	return db, nil
}
