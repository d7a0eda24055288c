package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/lisanmuaddib/event-scraper/internal/envutil"
	"github.com/lisanmuaddib/event-scraper/internal/scraperconfig"
	"github.com/lisanmuaddib/event-scraper/pkg/dispatch"
	"github.com/lisanmuaddib/event-scraper/pkg/events"
	"github.com/lisanmuaddib/event-scraper/pkg/jobs"
	"github.com/lisanmuaddib/event-scraper/pkg/logging"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	flagPersist  bool
	flagMultiple bool
	flagListPage bool
	flagTags     []string
	flagPriority int
	flagWait     bool
)

func main() {
	if err := envutil.LoadDotEnv(); err != nil {
		// Only log warning since .env is optional
		logrus.WithError(err).Warn("Error loading .env file")
	}
	log := newLogger()

	// Handle graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		log.Info("Received shutdown signal")
		cancel()
	}()

	if err := newRootCmd(log).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newLogger() *logrus.Logger {
	log := logrus.New()
	if strings.EqualFold(os.Getenv("LOG_FORMAT"), "json") {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(logging.NewColoredJSONFormatter())
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		log.SetLevel(logrus.InfoLevel)
	} else if level, err := logrus.ParseLevel(logLevel); err == nil {
		log.SetLevel(level)
	} else {
		log.SetLevel(logrus.InfoLevel)
		log.WithFields(logrus.Fields{
			"attempted_level": logLevel,
			"default_level":   "INFO",
		}).Warn("Invalid log level specified, defaulting to INFO")
	}
	return log
}

func newRootCmd(log *logrus.Logger) *cobra.Command {
	root := &cobra.Command{
		Use:          "scraper",
		Short:        "Scrape event pages into normalized events",
		SilenceUsage: true,
	}
	root.PersistentFlags().BoolVar(&flagPersist, "persist", false, "Upsert scraped events into postgres (DB_* settings)")
	root.PersistentFlags().BoolVar(&flagMultiple, "multiple", false, "Treat each URL as a page listing several events")
	root.PersistentFlags().BoolVar(&flagListPage, "list-page", false, "Extract events straight from the list page instead of following links")
	root.PersistentFlags().StringSliceVar(&flagTags, "tag", nil, "Tag added to every scraped event (repeatable)")

	root.AddCommand(newScrapeCmd(log), newJobCmd(log))
	return root
}

func newScrapeCmd(log *logrus.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "scrape [urls...]",
		Short: "Scrape URLs now and print the events as JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := scraperconfig.Configure(scraperconfig.Options{Logger: log, Persist: flagPersist})
			if err != nil {
				return err
			}

			var collector events.SkipCollector
			found := c.Dispatcher.ScrapeURLs(cmd.Context(), inputs(args), defaults(), dispatch.WithOnSkip(collector.Add))

			out := struct {
				Events  []events.NormalizedEventInput `json:"events"`
				Skipped []events.SkipReason           `json:"skipped,omitempty"`
				Upserts []events.UpsertResult         `json:"upserts,omitempty"`
			}{Events: found, Skipped: collector.Skips()}

			if c.Sink != nil {
				for _, ev := range found {
					res, err := c.Sink.UpsertEvent(cmd.Context(), ev)
					if err != nil {
						log.WithFields(logrus.Fields{"name": ev.Name, "error": err}).Error("Upsert failed")
					}
					out.Upserts = append(out.Upserts, res)
				}
			}
			return printJSON(cmd, out)
		},
	}
}

func newJobCmd(log *logrus.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "job [urls...]",
		Short: "Submit URLs as a background job",
		Long: `Submit URLs as one job with a task per URL. Tasks run on the job
queue in priority order. Without --wait the command prints the job id and
exits, which also stops the in-process queue.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := scraperconfig.Configure(scraperconfig.Options{Logger: log, Persist: flagPersist})
			if err != nil {
				return err
			}

			id, err := c.Queue.CreateJob(inputs(args), flagPriority,
				jobs.WithDefaults(defaults()),
				jobs.WithSource("cli"))
			if err != nil {
				return err
			}
			if !flagWait {
				return printJSON(cmd, map[string]string{"job_id": id})
			}

			if _, err := c.Queue.Wait(cmd.Context(), id); err != nil {
				return fmt.Errorf("waiting for job %s: %w", id, err)
			}
			view, _ := c.Queue.GetJob(id)
			return printJSON(cmd, view)
		},
	}
	cmd.Flags().IntVar(&flagPriority, "priority", 5, "Job priority from 1 (highest) to 10 (lowest)")
	cmd.Flags().BoolVar(&flagWait, "wait", false, "Block until the job finishes and print its tasks")
	return cmd
}

func inputs(urls []string) []dispatch.URLInput {
	out := dispatch.Strings(urls...)
	for i := range out {
		out[i].MultipleEvents = flagMultiple
		out[i].ExtractFromListPage = flagListPage
	}
	return out
}

func defaults() events.NormalizedEventInput {
	return events.NormalizedEventInput{Tags: flagTags}
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
