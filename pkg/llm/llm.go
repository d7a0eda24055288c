package llm

import (
	"context"
)

// LLM defines the interface for language model interactions
type LLM interface {
	Generate(ctx context.Context, prompt string, opts ...Option) (string, error)
}

// Func adapts a plain function to the LLM interface.
type Func func(ctx context.Context, prompt string, opts ...Option) (string, error)

// Generate calls f.
func (f Func) Generate(ctx context.Context, prompt string, opts ...Option) (string, error) {
	return f(ctx, prompt, opts...)
}

// Option defines functional options for LLM configuration
type Option func(*Options)

// Options holds configuration for LLM calls
type Options struct {
	Temperature float64
	MaxTokens   int
	Model       string
	JSONMode    bool
}

// Apply builds Options from defaults and opts.
func Apply(defaults Options, opts ...Option) Options {
	for _, opt := range opts {
		opt(&defaults)
	}
	return defaults
}

// WithTemperature sets the temperature for generation
func WithTemperature(temp float64) Option {
	return func(o *Options) {
		o.Temperature = temp
	}
}

// WithMaxTokens sets the maximum tokens for generation
func WithMaxTokens(tokens int) Option {
	return func(o *Options) {
		o.MaxTokens = tokens
	}
}

// WithModel sets the model to use
func WithModel(model string) Option {
	return func(o *Options) {
		o.Model = model
	}
}

// WithJSONMode asks the model to answer with a JSON object only
func WithJSONMode() Option {
	return func(o *Options) {
		o.JSONMode = true
	}
}
