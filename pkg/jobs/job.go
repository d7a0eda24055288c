// Package jobs runs bulk scrape jobs in the background with per-job and
// per-task progress tracking.
package jobs

import (
	"time"

	"github.com/lisanmuaddib/event-scraper/pkg/dispatch"
	"github.com/lisanmuaddib/event-scraper/pkg/events"
)

// Status is shared by jobs and tasks.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether s is completed or failed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Job aggregates the tasks submitted together.
type Job struct {
	ID             string     `json:"id"`
	Status         Status     `json:"status"`
	Priority       int        `json:"priority"`
	TotalTasks     int        `json:"total_tasks"`
	CompletedTasks int        `json:"completed_tasks"`
	FailedTasks    int        `json:"failed_tasks"`
	Source         string     `json:"source,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
}

// Task is one URL's scrape attempt within a job.
type Task struct {
	ID         string      `json:"id"`
	JobID      string      `json:"job_id"`
	URL        string      `json:"url"`
	Status     Status      `json:"status"`
	Priority   int         `json:"priority"`
	Attempts   int         `json:"attempts"`
	Result     *TaskResult `json:"result,omitempty"`
	Error      string      `json:"error,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
	StartedAt  *time.Time  `json:"started_at,omitempty"`
	FinishedAt *time.Time  `json:"finished_at,omitempty"`

	input    dispatch.URLInput
	defaults events.NormalizedEventInput
}

// TaskResult summarizes what a task scraped and stored.
type TaskResult struct {
	ScrapedCount  int                 `json:"scraped_count"`
	InsertedCount int                 `json:"inserted_count"`
	UpdatedCount  int                 `json:"updated_count"`
	SkippedCount  int                 `json:"skipped_count"`
	FailedCount   int                 `json:"failed_count"`
	Events        []EventResult       `json:"events,omitempty"`
	Skipped       []events.SkipReason `json:"skipped,omitempty"`
	Errors        []string            `json:"errors,omitempty"`
}

// EventResult is the per-event outcome of a task.
type EventResult struct {
	Name       string              `json:"name,omitempty"`
	OriginalID string              `json:"original_id,omitempty"`
	StartDate  string              `json:"start_date,omitempty"`
	EventURL   string              `json:"event_url,omitempty"`
	Status     events.ResultStatus `json:"status,omitempty"`
	EventID    string              `json:"event_id,omitempty"`
	Error      string              `json:"error,omitempty"`
}

// JobView is a job together with its tasks.
type JobView struct {
	Job   Job    `json:"job"`
	Tasks []Task `json:"tasks"`
}
