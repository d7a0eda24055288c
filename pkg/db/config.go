package db

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/lisanmuaddib/event-scraper/internal/envutil"
	"github.com/sirupsen/logrus"
)

// Config holds the postgres connection settings.
// Environment variables:
//   - DB_HOST, DB_PORT, DB_USER, DB_PASSWORD, DB_NAME
//   - DB_SSLMODE (default: disable)
//   - DB_MIGRATIONS_DIR: directory of migration files (default: <project root>/migrations)
type Config struct {
	Host          string
	Port          string
	User          string
	Password      string
	Name          string
	SSLMode       string
	MigrationsDir string
	Logger        *logrus.Logger
}

// NewConfig reads the database settings from the environment.
func NewConfig() (*Config, error) {
	if err := envutil.LoadDotEnv(); err != nil {
		return nil, err
	}
	config := &Config{
		Host:          envutil.String("DB_HOST", "localhost"),
		Port:          envutil.String("DB_PORT", "5432"),
		User:          envutil.String("DB_USER", ""),
		Password:      envutil.String("DB_PASSWORD", ""),
		Name:          envutil.String("DB_NAME", ""),
		SSLMode:       envutil.String("DB_SSLMODE", "disable"),
		MigrationsDir: envutil.String("DB_MIGRATIONS_DIR", ""),
		Logger:        logrus.New(),
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks the required settings and resolves the migrations directory.
func (c *Config) Validate() error {
	if c.Logger == nil {
		c.Logger = logrus.New()
	}
	if c.User == "" || c.Name == "" {
		return errors.New("DB_USER and DB_NAME are required")
	}
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == "" {
		c.Port = "5432"
	}
	if c.SSLMode == "" {
		c.SSLMode = "disable"
	}
	if c.MigrationsDir == "" {
		root, err := findProjectRoot()
		if err != nil {
			return fmt.Errorf("failed to find project root: %w", err)
		}
		c.MigrationsDir = filepath.Join(root, "migrations")
	}
	return nil
}

// DSN is the key/value form gorm's postgres driver takes.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		c.Host, c.User, c.Password, c.Name, c.Port, c.SSLMode)
}

// URL is the postgres:// form golang-migrate takes.
func (c *Config) URL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     c.Host + ":" + c.Port,
		Path:     "/" + c.Name,
		RawQuery: "sslmode=" + url.QueryEscape(c.SSLMode),
	}
	return u.String()
}

// findProjectRoot looks for go.mod file to determine project root
func findProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("could not find project root (go.mod)")
		}
		dir = parent
	}
}
