package openai

import (
	"context"
	"fmt"
	"time"

	"github.com/lisanmuaddib/event-scraper/pkg/llm"
	"github.com/sirupsen/logrus"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

type Client struct {
	logger *logrus.Logger
	llm    llms.Model
	config *Config
}

func NewClient(config *Config) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	model, err := openai.New(
		openai.WithToken(config.APIKey),
		openai.WithModel(config.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenAI: %w", err)
	}

	return &Client{
		logger: config.Logger,
		llm:    model,
		config: config,
	}, nil
}

func (c *Client) Generate(ctx context.Context, prompt string, opts ...llm.Option) (string, error) {
	options := llm.Apply(llm.Options{
		Temperature: c.config.Temperature,
		MaxTokens:   c.config.MaxTokens,
		Model:       c.config.Model,
	}, opts...)

	c.logger.WithFields(logrus.Fields{
		"temperature":  options.Temperature,
		"maxTokens":    options.MaxTokens,
		"model":        options.Model,
		"json_mode":    options.JSONMode,
		"prompt_bytes": len(prompt),
	}).Debug("Generating completion")

	callOpts := []llms.CallOption{
		llms.WithTemperature(options.Temperature),
		llms.WithMaxTokens(options.MaxTokens),
		llms.WithModel(options.Model),
	}
	if options.JSONMode {
		callOpts = append(callOpts, llms.WithJSONMode())
	}

	start := time.Now()
	completion, err := llms.GenerateFromSinglePrompt(ctx, c.llm, prompt, callOpts...)
	if err != nil {
		return "", fmt.Errorf("failed to generate completion: %w", err)
	}

	c.logger.WithFields(logrus.Fields{
		"model":    options.Model,
		"duration": time.Since(start).String(),
	}).Debug("Completion received")

	return completion, nil
}
