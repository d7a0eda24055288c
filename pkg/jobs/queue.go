package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lisanmuaddib/event-scraper/pkg/dispatch"
	"github.com/lisanmuaddib/event-scraper/pkg/events"
	"github.com/lisanmuaddib/event-scraper/pkg/scheduler"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// URLScraper is the per-URL scrape path tasks run through.
type URLScraper interface {
	ScrapeURLs(ctx context.Context, inputs []dispatch.URLInput, defaults events.NormalizedEventInput, opts ...dispatch.Option) []events.NormalizedEventInput
}

// Sink persists scraped events.
type Sink interface {
	UpsertEvent(ctx context.Context, ev events.NormalizedEventInput) (events.UpsertResult, error)
}

// JobOption adjusts a job at creation.
type JobOption func(*jobOptions)

type jobOptions struct {
	defaults events.NormalizedEventInput
	source   string
}

// WithDefaults sets the event defaults every task scrapes with.
func WithDefaults(defaults events.NormalizedEventInput) JobOption {
	return func(o *jobOptions) { o.defaults = defaults }
}

// WithSource labels the job with where it came from.
func WithSource(source string) JobOption {
	return func(o *jobOptions) { o.source = source }
}

// Queue accepts jobs and runs their tasks in the background.
type Queue struct {
	scraper     URLScraper
	sink        Sink
	store       Store
	logger      *logrus.Logger
	exec        *scheduler.Executor
	upsertLimit int
	now         func() time.Time

	mu   sync.Mutex
	done map[string]chan struct{}
}

// New creates a Queue.
func New(config *Config) (*Queue, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid jobs config: %w", err)
	}
	if config.Scraper == nil {
		return nil, errors.New("jobs: scraper is required")
	}
	return &Queue{
		scraper:     config.Scraper,
		sink:        config.Sink,
		store:       config.Store,
		logger:      config.Logger,
		exec:        scheduler.NewExecutor(config.TaskConcurrency),
		upsertLimit: config.UpsertConcurrency,
		now:         config.Now,
		done:        make(map[string]chan struct{}),
	}, nil
}

// CreateJob stores one job with one pending task per input and schedules
// the tasks. It returns before any task runs. Priority uses the 1 (highest)
// to 10 (lowest) scale; zero means 5.
func (q *Queue) CreateJob(inputs []dispatch.URLInput, priority int, opts ...JobOption) (string, error) {
	o := jobOptions{source: "auto"}
	for _, opt := range opts {
		opt(&o)
	}
	priority = scheduler.ClampPriority(priority)
	now := q.now()

	job := Job{
		ID:         uuid.New().String(),
		Status:     StatusPending,
		Priority:   priority,
		TotalTasks: len(inputs),
		Source:     o.source,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if job.TotalTasks == 0 {
		job.Status = StatusCompleted
		job.FinishedAt = &now
	}

	tasks := make([]Task, len(inputs))
	for i, in := range inputs {
		tasks[i] = Task{
			ID:        uuid.New().String(),
			JobID:     job.ID,
			URL:       in.URL,
			Status:    StatusPending,
			Priority:  priority,
			CreatedAt: now,
			UpdatedAt: now,
			input:     in,
			defaults:  o.defaults.Clone(),
		}
	}

	if err := q.store.Create(job, tasks); err != nil {
		return "", fmt.Errorf("error creating job: %w", err)
	}
	if job.TotalTasks > 0 {
		q.mu.Lock()
		q.done[job.ID] = make(chan struct{})
		q.mu.Unlock()
	}

	q.logger.WithFields(logrus.Fields{
		"job_id":   job.ID,
		"tasks":    len(tasks),
		"priority": priority,
		"source":   o.source,
	}).Info("Created scrape job")

	// Jobs cannot be cancelled, so tasks run detached from any caller context.
	schedPriority := scheduler.ToSchedulerPriority(priority)
	for _, t := range tasks {
		t := t
		q.exec.Go(context.Background(), schedPriority, func(ctx context.Context) error {
			q.runTask(ctx, t)
			return nil
		})
	}
	return job.ID, nil
}

// GetJob returns a job and its tasks.
func (q *Queue) GetJob(id string) (*JobView, bool) {
	job, ok := q.store.Job(id)
	if !ok {
		return nil, false
	}
	return &JobView{Job: job, Tasks: q.store.Tasks(id)}, true
}

// ListJobs returns every job the store holds.
func (q *Queue) ListJobs() []Job {
	return q.store.Jobs()
}

// Backlog returns how many tasks are waiting for an execution slot.
func (q *Queue) Backlog() int {
	return q.exec.Pending()
}

// Wait blocks until the job reaches a terminal status or ctx is done.
func (q *Queue) Wait(ctx context.Context, id string) (Job, error) {
	q.mu.Lock()
	ch, pending := q.done[id]
	q.mu.Unlock()

	if pending {
		select {
		case <-ch:
		case <-ctx.Done():
			return Job{}, ctx.Err()
		}
	}
	job, ok := q.store.Job(id)
	if !ok {
		return Job{}, fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	return job, nil
}

func (q *Queue) runTask(ctx context.Context, task Task) {
	started := time.Now()
	log := q.logger.WithFields(logrus.Fields{
		"job_id":  task.JobID,
		"task_id": task.ID,
		"url":     task.URL,
	})

	if _, err := q.store.StartTask(task.ID, q.now()); err != nil {
		log.WithField("error", err).Error("Could not start task")
		return
	}
	log.Info("Starting task")

	status := StatusCompleted
	result, errMsg, err := q.process(ctx, task, log)
	if err != nil {
		errMsg = err.Error()
		result = &TaskResult{FailedCount: 1, Errors: []string{errMsg}}
	}
	if errMsg != "" {
		status = StatusFailed
	}

	job, err := q.store.FinishTask(task.ID, status, result, errMsg, q.now())
	if err != nil {
		log.WithField("error", err).Error("Could not finish task")
		return
	}

	fields := logrus.Fields{
		"status":   status,
		"scraped":  result.ScrapedCount,
		"inserted": result.InsertedCount,
		"updated":  result.UpdatedCount,
		"failed":   result.FailedCount,
		"duration": time.Since(started).String(),
	}
	if status == StatusFailed {
		fields["error"] = errMsg
		log.WithFields(fields).Warn("Task failed")
	} else {
		log.WithFields(fields).Info("Task completed")
	}

	if job.Status.Terminal() {
		q.finishJob(job)
	}
}

// process scrapes the task's URL and stores what it found. A non-empty
// message marks the task failed; an error means the runner itself broke.
func (q *Queue) process(ctx context.Context, task Task, log *logrus.Entry) (result *TaskResult, errMsg string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panic: %v", r)
		}
	}()

	skips := &events.SkipCollector{}
	scraped := q.scraper.ScrapeURLs(ctx, []dispatch.URLInput{task.input}, task.defaults, dispatch.WithOnSkip(skips.Add))
	result = &TaskResult{ScrapedCount: len(scraped)}
	log.WithField("events", len(scraped)).Debug("Scraped task URL")

	var messages []string
	if len(scraped) == 0 {
		if first, ok := skips.FirstError(); ok {
			messages = append(messages, formatSkip(first))
		} else {
			messages = append(messages, "no events scraped")
		}
	}

	upsertSkips := q.upsertAll(ctx, task, scraped, result)

	result.Skipped = append(skips.Skips(), upsertSkips...)
	result.SkippedCount = len(result.Skipped)
	if result.FailedCount > 0 {
		messages = append(messages, result.Errors...)
	}
	return result, strings.Join(messages, "; "), nil
}

// upsertAll hands every event to the sink with bounded concurrency and
// folds the outcomes into result. Without a sink events are only listed.
func (q *Queue) upsertAll(ctx context.Context, task Task, scraped []events.NormalizedEventInput, result *TaskResult) []events.SkipReason {
	result.Events = make([]EventResult, len(scraped))
	for i, ev := range scraped {
		result.Events[i] = EventResult{
			Name:       ev.Name,
			OriginalID: ev.OriginalID,
			StartDate:  ev.StartDate,
			EventURL:   firstNonEmpty(ev.EventURL, ev.TicketURL),
		}
	}
	if q.sink == nil || len(scraped) == 0 {
		return nil
	}

	outcomes := make([]events.UpsertResult, len(scraped))
	errs := make([]error, len(scraped))
	var g errgroup.Group
	g.SetLimit(q.upsertLimit)
	for i, ev := range scraped {
		i, ev := i, ev
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					errs[i] = fmt.Errorf("upsert panic: %v", r)
				}
			}()
			outcomes[i], errs[i] = q.sink.UpsertEvent(ctx, ev)
			return nil
		})
	}
	_ = g.Wait()

	var skipped []events.SkipReason
	for i, ev := range scraped {
		res := &result.Events[i]
		if errs[i] != nil {
			res.Status = events.ResultFailed
			res.Error = errs[i].Error()
			result.FailedCount++
			result.Errors = append(result.Errors, res.Error)
			continue
		}
		res.Status = outcomes[i].Status
		res.EventID = outcomes[i].EventID
		switch outcomes[i].Status {
		case events.ResultInserted:
			result.InsertedCount++
		case events.ResultUpdated:
			result.UpdatedCount++
		case events.ResultSkipped:
			skipped = append(skipped, upsertSkip(ev, outcomes[i], task.URL))
		default:
			res.Status = events.ResultFailed
			result.FailedCount++
			result.Errors = append(result.Errors, fmt.Sprintf("upsert failed for %q", ev.Name))
		}
	}
	return skipped
}

func (q *Queue) finishJob(job Job) {
	q.mu.Lock()
	if ch, ok := q.done[job.ID]; ok {
		close(ch)
		delete(q.done, job.ID)
	}
	q.mu.Unlock()

	fields := logrus.Fields{
		"job_id":    job.ID,
		"status":    job.Status,
		"tasks":     job.TotalTasks,
		"completed": job.CompletedTasks,
		"failed":    job.FailedTasks,
	}
	if job.StartedAt != nil && job.FinishedAt != nil {
		fields["duration"] = job.FinishedAt.Sub(*job.StartedAt).String()
	}
	q.logger.WithFields(fields).Info("Scrape job finished")
}

func upsertSkip(ev events.NormalizedEventInput, res events.UpsertResult, taskURL string) events.SkipReason {
	skip := events.SkipReason{Reason: "Event skipped during import", Source: "upsert"}
	if res.Skip != nil {
		skip = *res.Skip
	}
	skip.URL = firstNonEmpty(ev.SourceURL, ev.TicketURL, ev.EventURL, ev.OriginalID, taskURL, skip.URL)
	skip.Stage = events.StageUpsert
	if skip.Level == "" {
		skip.Level = events.LevelWarn
	}
	if skip.Source == "" {
		skip.Source = "upsert"
	}
	if skip.Reason == "" {
		skip.Reason = "Event skipped during import"
	}
	if skip.EventName == "" {
		skip.EventName = ev.Name
	}
	if skip.EventID == "" {
		skip.EventID = res.EventID
	}
	return skip
}

func formatSkip(s events.SkipReason) string {
	if s.Detail != "" {
		return s.Reason + " (" + s.Detail + ")"
	}
	return s.Reason
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
