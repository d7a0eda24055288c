package render_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/lisanmuaddib/event-scraper/pkg/llm"
	"github.com/lisanmuaddib/event-scraper/pkg/proxy"
	"github.com/lisanmuaddib/event-scraper/pkg/render"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"
)

type fakeProvider struct {
	name  string
	html  string
	err   error
	delay time.Duration
	calls int32
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) RenderPage(ctx context.Context, url string) (string, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.html, f.err
}

type runnerFunc func(ctx context.Context, priority int, label string, fn func(ctx context.Context) error) error

func (r runnerFunc) Run(ctx context.Context, priority int, label string, fn func(ctx context.Context) error) error {
	return r(ctx, priority, label, fn)
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

var _ = Describe("Picker", func() {
	var (
		ctx        context.Context
		oxy        *fakeProvider
		scrape     *fakeProvider
		judgeCalls int32
	)

	judgeNaming := func(provider string, err error) render.Judge {
		return render.JudgeFunc(func(ctx context.Context, url string, candidates []render.Candidate) (render.Verdict, error) {
			atomic.AddInt32(&judgeCalls, 1)
			return render.Verdict{Provider: provider, Reason: "more complete"}, err
		})
	}

	BeforeEach(func() {
		ctx = context.Background()
		atomic.StoreInt32(&judgeCalls, 0)
		oxy = &fakeProvider{name: render.ProviderOxylabs, html: "<html><body><h1>Oxy</h1></body></html>"}
		scrape = &fakeProvider{name: render.ProviderScrapeIO, html: "<html><body><h1>Scrape</h1></body></html>"}
	})

	newPicker := func(judge render.Judge) *render.Picker {
		return render.NewPicker(render.PickerConfig{
			Providers: []render.Provider{oxy, scrape},
			Judge:     judge,
			Logger:    quietLogger(),
		})
	}

	It("chooses the provider the judge names", func() {
		out := newPicker(judgeNaming(render.ProviderScrapeIO, nil)).Pick(ctx, "https://example.org/e")
		Expect(out.Kind).To(Equal(render.Arbitrated))
		Expect(out.Chosen.Provider).To(Equal(render.ProviderScrapeIO))
		Expect(out.Reason).To(Equal("more complete"))
		Expect(out.Defaulted).To(BeFalse())
		Expect(out.Ordered()[1].Provider).To(Equal(render.ProviderOxylabs))
	})

	It("reports unavailable when nobody returns HTML", func() {
		oxy.html, oxy.err = "", errors.New("boom")
		scrape.html = ""
		out := newPicker(judgeNaming(render.ProviderOxylabs, nil)).Pick(ctx, "https://example.org/e")
		Expect(out.Kind).To(Equal(render.Unavailable))
		Expect(out.Ordered()).To(BeEmpty())
		Expect(out.Renders).To(HaveLen(2))
		Expect(out.Renders[0].Error).To(Equal("boom"))
		Expect(atomic.LoadInt32(&judgeCalls)).To(BeZero())
	})

	It("skips the judge when only one provider succeeds", func() {
		oxy.html, oxy.err = "", errors.New("credentials missing")
		out := newPicker(judgeNaming(render.ProviderOxylabs, nil)).Pick(ctx, "https://example.org/e")
		Expect(out.Kind).To(Equal(render.Single))
		Expect(out.Chosen.Provider).To(Equal(render.ProviderScrapeIO))
		Expect(atomic.LoadInt32(&judgeCalls)).To(BeZero())
	})

	It("defaults to the first candidate when the judge fails", func() {
		out := newPicker(judgeNaming("", errors.New("timeout"))).Pick(ctx, "https://example.org/e")
		Expect(out.Kind).To(Equal(render.Arbitrated))
		Expect(out.Defaulted).To(BeTrue())
		Expect(out.Chosen.Provider).To(Equal(render.ProviderOxylabs))
	})

	It("defaults to the first candidate when the judge names an unknown provider", func() {
		out := newPicker(judgeNaming("brightdata", nil)).Pick(ctx, "https://example.org/e")
		Expect(out.Defaulted).To(BeTrue())
		Expect(out.Chosen.Provider).To(Equal(render.ProviderOxylabs))
	})

	It("runs providers concurrently and waits for both", func() {
		oxy.delay = 100 * time.Millisecond
		scrape.delay = 100 * time.Millisecond
		start := time.Now()
		results := newPicker(nil).RenderAll(ctx, "https://example.org/e")
		Expect(time.Since(start)).To(BeNumerically("<", 190*time.Millisecond))
		Expect(results).To(HaveLen(2))
		Expect(results[0].OK).To(BeTrue())
		Expect(results[1].OK).To(BeTrue())
	})

	It("writes debug HTML when a store is configured", func() {
		dir := GinkgoT().TempDir()
		picker := render.NewPicker(render.PickerConfig{
			Providers: []render.Provider{scrape},
			Debug:     &render.DebugStore{Dir: dir},
			Logger:    quietLogger(),
		})
		out := picker.Pick(ctx, "https://example.org/e")
		Expect(out.Kind).To(Equal(render.Single))

		entries, err := os.ReadDir(dir)
		Expect(err).NotTo(HaveOccurred())
		Expect(entries).To(HaveLen(2))
		Expect(entries[0].Name()).To(HavePrefix("html-scrapeio-"))
	})

	It("returns the first OK HTML from a set of results", func() {
		html, ok := render.FirstHTML([]render.Result{
			{Provider: "a", OK: false},
			{Provider: "b", OK: true, HTML: "<p>b</p>"},
		})
		Expect(ok).To(BeTrue())
		Expect(html).To(Equal("<p>b</p>"))
	})
})

var _ = Describe("LLMJudge", func() {
	It("shows every candidate to the model and decodes its verdict", func() {
		var seen string
		model := llm.Func(func(ctx context.Context, prompt string, opts ...llm.Option) (string, error) {
			seen = prompt
			return "```json\n{\"provider\":\"scrapeio\",\"reason\":\"oxylabs got a captcha\"}\n```", nil
		})
		judge := render.NewLLMJudge(model, quietLogger())

		v, err := judge.JudgeRenderQuality(context.Background(), "https://example.org/e", []render.Candidate{
			{Provider: "oxylabs"},
			{Provider: "scrapeio"},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(v.Provider).To(Equal("scrapeio"))
		Expect(seen).To(ContainSubstring(`provider="oxylabs"`))
		Expect(seen).To(ContainSubstring(`provider="scrapeio"`))
		Expect(seen).To(ContainSubstring("https://example.org/e"))
	})

	It("fails on unparseable output", func() {
		model := llm.Func(func(ctx context.Context, prompt string, opts ...llm.Option) (string, error) {
			return "both look fine to me", nil
		})
		_, err := render.NewLLMJudge(model, quietLogger()).JudgeRenderQuality(context.Background(), "u", nil)
		Expect(err).To(MatchError(llm.ErrNoJSON))
	})
})

var _ = Describe("providers", func() {
	It("posts render requests to Oxylabs with basic auth inside the runner", func() {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer GinkgoRecover()
			user, pass, ok := r.BasicAuth()
			Expect(ok).To(BeTrue())
			Expect(user).To(Equal("u"))
			Expect(pass).To(Equal("p"))

			var body map[string]string
			Expect(json.NewDecoder(r.Body).Decode(&body)).To(Succeed())
			Expect(body).To(HaveKeyWithValue("render", "html"))
			Expect(body).To(HaveKeyWithValue("source", "universal"))
			_, _ = w.Write([]byte(`{"results":[{"content":"<html>rendered ` + body["url"] + `</html>","status_code":200}]}`))
		}))
		defer server.Close()

		var labels []string
		runner := runnerFunc(func(ctx context.Context, priority int, label string, fn func(ctx context.Context) error) error {
			labels = append(labels, label)
			return fn(ctx)
		})
		provider := render.NewOxylabsProvider(&render.OxylabsConfig{
			Username: "u", Password: "p", RealtimeURL: server.URL,
		}, runner)

		html, err := provider.RenderPage(context.Background(), "https://example.org/e")
		Expect(err).NotTo(HaveOccurred())
		Expect(html).To(Equal("<html>rendered https://example.org/e</html>"))
		Expect(labels).To(HaveLen(1))
	})

	It("fails eagerly without Oxylabs credentials", func() {
		provider := render.NewOxylabsProvider(&render.OxylabsConfig{}, runnerFunc(
			func(ctx context.Context, priority int, label string, fn func(ctx context.Context) error) error {
				Fail("runner should not be called")
				return nil
			}))
		_, err := provider.RenderPage(context.Background(), "https://example.org")
		Expect(err).To(MatchError(render.ErrMissingCredentials))
	})

	It("treats empty proxy HTML as an error", func() {
		provider := render.NewProxyProvider(fetcherFunc(func(ctx context.Context, req proxy.Request) ([]byte, error) {
			return []byte("   "), nil
		}))
		_, err := provider.RenderPage(context.Background(), "https://example.org")
		Expect(err).To(MatchError(ContainSubstring("empty HTML")))
		Expect(strings.HasPrefix(provider.Name(), "scrape")).To(BeTrue())
	})
})

type fetcherFunc func(ctx context.Context, req proxy.Request) ([]byte, error)

func (f fetcherFunc) Get(ctx context.Context, req proxy.Request) ([]byte, error) {
	return f(ctx, req)
}
