package render

import (
	"context"
	"fmt"
	"time"

	"github.com/lisanmuaddib/event-scraper/pkg/llm"
	templates "github.com/lisanmuaddib/event-scraper/pkg/prompts/templates"
	"github.com/sirupsen/logrus"
	"github.com/tmc/langchaingo/prompts"
)

// DefaultJudgeTimeout bounds one judge call.
const DefaultJudgeTimeout = 30 * time.Second

// Verdict is the judge's choice.
type Verdict struct {
	Provider string `json:"provider"`
	Reason   string `json:"reason"`
}

// Judge picks the better of several rendered candidates.
type Judge interface {
	JudgeRenderQuality(ctx context.Context, url string, candidates []Candidate) (Verdict, error)
}

// JudgeFunc adapts a function to Judge.
type JudgeFunc func(ctx context.Context, url string, candidates []Candidate) (Verdict, error)

func (f JudgeFunc) JudgeRenderQuality(ctx context.Context, url string, candidates []Candidate) (Verdict, error) {
	return f(ctx, url, candidates)
}

// LLMJudge asks a language model to compare renders.
type LLMJudge struct {
	model   llm.LLM
	prompt  prompts.PromptTemplate
	timeout time.Duration
	logger  *logrus.Logger
}

// NewLLMJudge creates a judge backed by model.
func NewLLMJudge(model llm.LLM, logger *logrus.Logger) *LLMJudge {
	if logger == nil {
		logger = logrus.New()
	}
	return &LLMJudge{
		model:   model,
		prompt:  templates.NewRenderJudgePrompt(),
		timeout: DefaultJudgeTimeout,
		logger:  logger,
	}
}

func (j *LLMJudge) JudgeRenderQuality(ctx context.Context, url string, candidates []Candidate) (Verdict, error) {
	shown := make([]templates.JudgeCandidate, 0, len(candidates))
	for _, c := range candidates {
		shown = append(shown, templates.JudgeCandidate{
			Provider:  c.Provider,
			HTML:      c.Prepped.Truncated,
			JSONBlobs: c.Prepped.JSONBlobs,
		})
	}

	prompt, err := j.prompt.Format(map[string]any{
		templates.VarURL:        url,
		templates.VarCandidates: templates.FormatJudgeCandidates(shown),
	})
	if err != nil {
		return Verdict{}, fmt.Errorf("formatting judge prompt: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	raw, err := j.model.Generate(ctx, prompt, llm.WithTemperature(0), llm.WithJSONMode())
	if err != nil {
		return Verdict{}, fmt.Errorf("judge call failed: %w", err)
	}

	var v Verdict
	if err := llm.DecodeJSON(raw, &v); err != nil {
		return Verdict{}, fmt.Errorf("judge returned unparseable output: %w", err)
	}

	j.logger.WithFields(logrus.Fields{
		"url":      url,
		"provider": v.Provider,
		"reason":   v.Reason,
	}).Debug("Render judge verdict")
	return v, nil
}
