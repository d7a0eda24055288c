package openai

import (
	"fmt"

	"github.com/lisanmuaddib/event-scraper/internal/envutil"
	"github.com/sirupsen/logrus"
)

type Config struct {
	APIKey      string
	Logger      *logrus.Logger
	Temperature float64
	MaxTokens   int
	Model       string
}

// NewConfig creates a new Config with OpenAI-specific values from environment variables
func NewConfig() (*Config, error) {
	if err := envutil.LoadDotEnv(); err != nil {
		return nil, err
	}

	config := &Config{
		APIKey:    envutil.String("OPENAI_API_KEY", ""),
		Model:     envutil.String("OPENAI_MODEL", ""),
		MaxTokens: envutil.Int("OPENAI_MAX_TOKENS", 0),
		Logger:    logrus.New(),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("API key is required")
	}
	if c.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	// Temperature stays at zero unless set explicitly
	if c.MaxTokens == 0 {
		c.MaxTokens = 4000
	}
	if c.Model == "" {
		c.Model = "gpt-4o-mini"
	}
	return nil
}
