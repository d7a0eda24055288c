package jobs

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

var (
	// ErrNotFound is returned for unknown job or task ids.
	ErrNotFound = errors.New("jobs: not found")
	// ErrInvalidTransition is returned when a status would move backwards.
	ErrInvalidTransition = errors.New("jobs: invalid status transition")
)

// Store keeps jobs and tasks. Implementations must serialize updates to a
// single job's counters.
type Store interface {
	Create(job Job, tasks []Task) error
	Job(id string) (Job, bool)
	Jobs() []Job
	Tasks(jobID string) []Task
	// StartTask moves a pending task to running and its job out of pending.
	StartTask(taskID string, now time.Time) (Task, error)
	// FinishTask records a terminal task status and updates the job aggregate.
	FinishTask(taskID string, status Status, result *TaskResult, errMsg string, now time.Time) (Job, error)
}

type jobEntry struct {
	mu    sync.Mutex
	job   Job
	tasks []*Task
}

// MemoryStore is the process-lifetime Store. Nothing is evicted unless
// Prune is called.
type MemoryStore struct {
	mu      sync.RWMutex
	jobs    map[string]*jobEntry
	taskJob map[string]*jobEntry
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:    make(map[string]*jobEntry),
		taskJob: make(map[string]*jobEntry),
	}
}

func (s *MemoryStore) Create(job Job, tasks []Task) error {
	if job.TotalTasks != len(tasks) {
		return fmt.Errorf("jobs: job %s declares %d tasks, got %d", job.ID, job.TotalTasks, len(tasks))
	}
	entry := &jobEntry{job: job, tasks: make([]*Task, len(tasks))}
	for i := range tasks {
		t := tasks[i]
		entry.tasks[i] = &t
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("jobs: job %s already exists", job.ID)
	}
	s.jobs[job.ID] = entry
	for _, t := range entry.tasks {
		s.taskJob[t.ID] = entry
	}
	return nil
}

func (s *MemoryStore) Job(id string) (Job, bool) {
	s.mu.RLock()
	entry, ok := s.jobs[id]
	s.mu.RUnlock()
	if !ok {
		return Job{}, false
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.job, true
}

// Jobs returns every job, oldest first.
func (s *MemoryStore) Jobs() []Job {
	s.mu.RLock()
	entries := make([]*jobEntry, 0, len(s.jobs))
	for _, e := range s.jobs {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	out := make([]Job, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, e.job)
		e.mu.Unlock()
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Tasks returns a job's tasks in submission order.
func (s *MemoryStore) Tasks(jobID string) []Task {
	s.mu.RLock()
	entry, ok := s.jobs[jobID]
	s.mu.RUnlock()
	if !ok {
		return nil
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	out := make([]Task, len(entry.tasks))
	for i, t := range entry.tasks {
		out[i] = *t
	}
	return out
}

func (s *MemoryStore) StartTask(taskID string, now time.Time) (Task, error) {
	entry, task, err := s.lockTask(taskID)
	if err != nil {
		return Task{}, err
	}
	defer entry.mu.Unlock()

	if task.Status != StatusPending {
		return *task, fmt.Errorf("task %s is %s: %w", taskID, task.Status, ErrInvalidTransition)
	}
	task.Status = StatusRunning
	task.Attempts++
	task.StartedAt = &now
	task.UpdatedAt = now

	if entry.job.Status == StatusPending {
		entry.job.Status = StatusRunning
		entry.job.StartedAt = &now
	}
	entry.job.UpdatedAt = now
	return *task, nil
}

func (s *MemoryStore) FinishTask(taskID string, status Status, result *TaskResult, errMsg string, now time.Time) (Job, error) {
	if !status.Terminal() {
		return Job{}, fmt.Errorf("finishing task %s as %s: %w", taskID, status, ErrInvalidTransition)
	}
	entry, task, err := s.lockTask(taskID)
	if err != nil {
		return Job{}, err
	}
	defer entry.mu.Unlock()

	if task.Status.Terminal() {
		return entry.job, fmt.Errorf("task %s is already %s: %w", taskID, task.Status, ErrInvalidTransition)
	}
	task.Status = status
	task.Result = result
	task.Error = errMsg
	task.FinishedAt = &now
	task.UpdatedAt = now

	job := &entry.job
	if status == StatusCompleted {
		job.CompletedTasks++
	} else {
		job.FailedTasks++
	}
	job.UpdatedAt = now
	if job.CompletedTasks+job.FailedTasks == job.TotalTasks {
		job.Status = StatusCompleted
		if job.FailedTasks > 0 {
			job.Status = StatusFailed
		}
		job.FinishedAt = &now
	} else {
		job.Status = StatusRunning
	}
	return *job, nil
}

// Prune drops terminal jobs that finished before the cutoff and returns how
// many were removed. Running jobs are never pruned.
func (s *MemoryStore) Prune(before time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, entry := range s.jobs {
		entry.mu.Lock()
		drop := entry.job.Status.Terminal() && entry.job.FinishedAt != nil && entry.job.FinishedAt.Before(before)
		entry.mu.Unlock()
		if !drop {
			continue
		}
		for _, t := range entry.tasks {
			delete(s.taskJob, t.ID)
		}
		delete(s.jobs, id)
		removed++
	}
	return removed
}

// lockTask returns the task with its job's mutex held.
func (s *MemoryStore) lockTask(taskID string) (*jobEntry, *Task, error) {
	s.mu.RLock()
	entry, ok := s.taskJob[taskID]
	s.mu.RUnlock()
	if !ok {
		return nil, nil, fmt.Errorf("task %s: %w", taskID, ErrNotFound)
	}
	entry.mu.Lock()
	for _, t := range entry.tasks {
		if t.ID == taskID {
			return entry, t, nil
		}
	}
	entry.mu.Unlock()
	return nil, nil, fmt.Errorf("task %s: %w", taskID, ErrNotFound)
}
