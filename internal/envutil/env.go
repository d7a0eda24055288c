// Package envutil reads typed configuration values from the environment.
package envutil

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// LoadDotEnv loads .env if it exists. A missing file is not an error.
func LoadDotEnv() error {
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("error loading .env file: %w", err)
		}
	}
	return nil
}

// String returns the value of key, or defaultValue when it is unset or empty.
func String(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// Int parses key as an integer, falling back to defaultValue.
func Int(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		warnInvalid(key, value, defaultValue, err)
		return defaultValue
	}
	return n
}

// Float parses key as a float, falling back to defaultValue.
func Float(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		warnInvalid(key, value, defaultValue, err)
		return defaultValue
	}
	return f
}

// Bool parses key as a boolean, falling back to defaultValue.
func Bool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		warnInvalid(key, value, defaultValue, err)
		return defaultValue
	}
	return b
}

// Seconds reads key as a whole number of seconds.
func Seconds(key string, defaultValue time.Duration) time.Duration {
	return time.Duration(Int(key, int(defaultValue/time.Second))) * time.Second
}

func warnInvalid(key, value string, defaultValue any, err error) {
	logrus.WithFields(logrus.Fields{
		"key":     key,
		"value":   value,
		"default": defaultValue,
		"error":   err.Error(),
	}).Warn("Invalid environment value, using default")
}
