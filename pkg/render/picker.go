package render

import (
	"context"
	"time"

	"github.com/lisanmuaddib/event-scraper/pkg/htmlprep"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// PickerConfig wires a Picker.
type PickerConfig struct {
	Providers []Provider
	Judge     Judge
	// Debug, when set, receives every candidate's HTML.
	Debug  *DebugStore
	Logger *logrus.Logger
}

// Picker races the render providers and arbitrates between their output.
type Picker struct {
	providers []Provider
	judge     Judge
	debug     *DebugStore
	logger    *logrus.Logger
}

// NewPicker creates a Picker.
func NewPicker(config PickerConfig) *Picker {
	logger := config.Logger
	if logger == nil {
		logger = logrus.New()
	}
	return &Picker{
		providers: config.Providers,
		judge:     config.Judge,
		debug:     config.Debug,
		logger:    logger,
	}
}

// RenderAll runs every provider concurrently and waits for all of them.
// Results keep provider order.
func (p *Picker) RenderAll(ctx context.Context, url string) []Result {
	results := make([]Result, len(p.providers))
	var g errgroup.Group
	for i, provider := range p.providers {
		i, provider := i, provider
		g.Go(func() error {
			results[i] = p.render(ctx, provider, url)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Pick renders url with every provider and chooses one candidate.
func (p *Picker) Pick(ctx context.Context, url string) Outcome {
	renders := p.RenderAll(ctx, url)
	out := Outcome{Kind: Unavailable, Renders: renders}

	for _, r := range renders {
		if r.HTML == "" {
			continue
		}
		out.Candidates = append(out.Candidates, p.prepare(url, r))
	}

	switch len(out.Candidates) {
	case 0:
		p.logger.WithField("url", url).Warn("No render provider returned HTML")
		return out
	case 1:
		out.Kind = Single
		out.Chosen = out.Candidates[0]
		return out
	}

	out.Kind = Arbitrated
	out.Chosen = out.Candidates[0]

	if p.judge == nil {
		out.Defaulted = true
		return out
	}

	verdict, err := p.judge.JudgeRenderQuality(ctx, url, out.Candidates)
	if err != nil {
		p.logger.WithFields(logrus.Fields{
			"url":   url,
			"error": err,
		}).Warn("Render judge failed, using first candidate")
		out.Defaulted = true
		return out
	}

	out.Reason = verdict.Reason
	for _, c := range out.Candidates {
		if c.Provider == verdict.Provider {
			out.Chosen = c
			return out
		}
	}

	p.logger.WithFields(logrus.Fields{
		"url":      url,
		"provider": verdict.Provider,
	}).Warn("Render judge named an unknown provider, using first candidate")
	out.Defaulted = true
	return out
}

func (p *Picker) render(ctx context.Context, provider Provider, url string) Result {
	start := time.Now()
	html, err := provider.RenderPage(ctx, url)
	r := Result{
		Provider: provider.Name(),
		OK:       err == nil && html != "",
		HTML:     html,
		Duration: time.Since(start),
	}
	if err != nil {
		r.Error = err.Error()
		r.HTML = ""
	}

	p.logger.WithFields(logrus.Fields{
		"url":      url,
		"provider": r.Provider,
		"ok":       r.OK,
		"duration": r.Duration.String(),
		"error":    r.Error,
	}).Debug("Render attempt finished")
	return r
}

func (p *Picker) prepare(url string, r Result) Candidate {
	label := r.Provider + " " + url
	prepped, err := htmlprep.Prepare(label, r.HTML)
	if err != nil {
		prepped = htmlprep.Prepared{
			Truncated: htmlprep.Truncate(r.HTML, htmlprep.MaxBytes),
			BaseName:  htmlprep.StableName(label, r.HTML),
		}
	}
	c := Candidate{Provider: r.Provider, HTML: r.HTML, Prepped: prepped}

	if p.debug != nil {
		if _, err := p.debug.Save(c); err != nil {
			p.logger.WithError(err).Warn("Failed to save debug HTML")
		}
	}
	return c
}
