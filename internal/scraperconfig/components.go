// Package scraperconfig builds the scrape pipeline from environment
// configuration.
package scraperconfig

import (
	"fmt"

	"github.com/lisanmuaddib/event-scraper/internal/envutil"
	"github.com/lisanmuaddib/event-scraper/pkg/db"
	"github.com/lisanmuaddib/event-scraper/pkg/dispatch"
	"github.com/lisanmuaddib/event-scraper/pkg/extract"
	"github.com/lisanmuaddib/event-scraper/pkg/jobs"
	"github.com/lisanmuaddib/event-scraper/pkg/llm"
	"github.com/lisanmuaddib/event-scraper/pkg/llm/openai"
	"github.com/lisanmuaddib/event-scraper/pkg/memory"
	"github.com/lisanmuaddib/event-scraper/pkg/organizer"
	"github.com/lisanmuaddib/event-scraper/pkg/proxy"
	"github.com/lisanmuaddib/event-scraper/pkg/render"
	"github.com/lisanmuaddib/event-scraper/pkg/scrapers"
	"github.com/lisanmuaddib/event-scraper/pkg/scrapers/eventbrite"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Options select what Configure builds. Zero values read everything from
// the environment.
type Options struct {
	Logger *logrus.Logger
	// Persist connects the job queue to postgres.
	Persist bool
	// Model replaces the OpenAI client.
	Model llm.LLM
	// DB replaces the connection opened from DB_* settings when Persist is set.
	DB *gorm.DB
}

// Components is the wired pipeline.
type Components struct {
	Gateway    *proxy.Gateway
	Picker     *render.Picker
	Extractor  *extract.Extractor
	Registry   *scrapers.Registry
	Organizers *organizer.Pager
	Dispatcher *dispatch.Dispatcher
	Queue      *jobs.Queue
	// Sink is nil unless Persist was set.
	Sink *memory.EventStore
}

// Configure wires every component: gateway, render providers and judge,
// extractor, registered scrapers, organizer pager, dispatcher and queue.
func Configure(opts Options) (*Components, error) {
	log := opts.Logger
	if log == nil {
		log = logrus.New()
	}

	proxyConfig, err := proxy.NewConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to create proxy config: %w", err)
	}
	proxyConfig.Logger = log
	gateway, err := proxy.New(proxyConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create proxy gateway: %w", err)
	}

	model := opts.Model
	if model == nil {
		openaiConfig, err := openai.NewConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to create OpenAI config: %w", err)
		}
		openaiConfig.Logger = log
		client, err := openai.NewClient(openaiConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create OpenAI client: %w", err)
		}
		model = client
	}

	oxyConfig, err := render.NewOxylabsConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to create Oxylabs config: %w", err)
	}
	oxyConfig.Logger = log

	var debug *render.DebugStore
	if envutil.Bool("DEBUG_SAVE_HTML", false) {
		debug = &render.DebugStore{Dir: envutil.String("DEBUG_HTML_DIR", "debug-html")}
	}

	// Oxylabs first: it is the default when the judge cannot decide.
	picker := render.NewPicker(render.PickerConfig{
		Providers: []render.Provider{
			render.NewOxylabsProvider(oxyConfig, gateway),
			render.NewProxyProvider(gateway),
		},
		Judge:  render.NewLLMJudge(model, log),
		Debug:  debug,
		Logger: log,
	})

	extractor := extract.New(extract.Config{
		Model:    model,
		Renderer: picker,
		Logger:   log,
	})

	registry := scrapers.NewRegistry()
	detail := eventbrite.New(gateway, log)
	if err := eventbrite.Register(registry, detail); err != nil {
		return nil, fmt.Errorf("failed to register eventbrite scraper: %w", err)
	}

	pager := organizer.New(organizer.Config{
		Fetcher: gateway,
		Details: detail,
		Logger:  log,
	})

	dispatchConfig, err := dispatch.NewConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to create dispatch config: %w", err)
	}
	dispatchConfig.Registry = registry
	dispatchConfig.Organizers = pager
	dispatchConfig.Auto = extractor.AutoScrape
	dispatchConfig.Logger = log
	dispatcher, err := dispatch.New(dispatchConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create dispatcher: %w", err)
	}

	var sink *memory.EventStore
	if opts.Persist {
		conn := opts.DB
		if conn == nil {
			dbConfig, err := db.NewConfig()
			if err != nil {
				return nil, fmt.Errorf("failed to create database config: %w", err)
			}
			dbConfig.Logger = log
			if conn, err = db.SetupDatabase(dbConfig); err != nil {
				return nil, err
			}
		}
		sink = memory.NewEventStore(log, conn)
	}

	jobsConfig, err := jobs.NewConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to create jobs config: %w", err)
	}
	jobsConfig.Scraper = dispatcher
	jobsConfig.Logger = log
	if sink != nil {
		jobsConfig.Sink = sink
	}
	queue, err := jobs.New(jobsConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create job queue: %w", err)
	}

	log.WithFields(logrus.Fields{
		"domains": registry.Domains(),
		"persist": sink != nil,
		"debug":   debug != nil,
	}).Debug("Configured scrape pipeline")

	return &Components{
		Gateway:    gateway,
		Picker:     picker,
		Extractor:  extractor,
		Registry:   registry,
		Organizers: pager,
		Dispatcher: dispatcher,
		Queue:      queue,
		Sink:       sink,
	}, nil
}
