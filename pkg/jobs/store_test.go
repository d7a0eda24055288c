package jobs_test

import (
	"sync"
	"time"

	"github.com/lisanmuaddib/event-scraper/pkg/jobs"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("MemoryStore", func() {
	var (
		store *jobs.MemoryStore
		now   time.Time
	)

	newJob := func(id string, n int) (jobs.Job, []jobs.Task) {
		job := jobs.Job{ID: id, Status: jobs.StatusPending, TotalTasks: n, CreatedAt: now}
		tasks := make([]jobs.Task, n)
		for i := range tasks {
			tasks[i] = jobs.Task{ID: id + "-" + string(rune('a'+i)), JobID: id, Status: jobs.StatusPending}
		}
		return job, tasks
	}

	BeforeEach(func() {
		store = jobs.NewMemoryStore()
		now = time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC)
	})

	It("rejects a task count that disagrees with the job", func() {
		job, tasks := newJob("j1", 2)
		Expect(store.Create(job, tasks[:1])).To(HaveOccurred())
	})

	It("rejects duplicate job ids", func() {
		job, tasks := newJob("j1", 1)
		Expect(store.Create(job, tasks)).To(Succeed())
		Expect(store.Create(job, tasks)).To(HaveOccurred())
	})

	It("moves tasks and the job forward only", func() {
		job, tasks := newJob("j1", 2)
		Expect(store.Create(job, tasks)).To(Succeed())

		started, err := store.StartTask("j1-a", now)
		Expect(err).NotTo(HaveOccurred())
		Expect(started.Status).To(Equal(jobs.StatusRunning))
		Expect(started.Attempts).To(Equal(1))

		got, _ := store.Job("j1")
		Expect(got.Status).To(Equal(jobs.StatusRunning))
		Expect(got.StartedAt).NotTo(BeNil())

		_, err = store.StartTask("j1-a", now)
		Expect(err).To(MatchError(jobs.ErrInvalidTransition))

		_, err = store.FinishTask("j1-a", jobs.StatusRunning, nil, "", now)
		Expect(err).To(MatchError(jobs.ErrInvalidTransition))

		got, err = store.FinishTask("j1-a", jobs.StatusCompleted, &jobs.TaskResult{ScrapedCount: 1}, "", now)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Status).To(Equal(jobs.StatusRunning))
		Expect(got.CompletedTasks).To(Equal(1))

		_, err = store.FinishTask("j1-a", jobs.StatusFailed, nil, "again", now)
		Expect(err).To(MatchError(jobs.ErrInvalidTransition))

		_, _ = store.StartTask("j1-b", now)
		got, err = store.FinishTask("j1-b", jobs.StatusFailed, nil, "boom", now.Add(time.Second))
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Status).To(Equal(jobs.StatusFailed))
		Expect(got.FailedTasks).To(Equal(1))
		Expect(got.FinishedAt).NotTo(BeNil())

		tasksNow := store.Tasks("j1")
		Expect(tasksNow[1].Error).To(Equal("boom"))
	})

	It("returns ErrNotFound for unknown tasks", func() {
		_, err := store.StartTask("nope", now)
		Expect(err).To(MatchError(jobs.ErrNotFound))
		_, err = store.FinishTask("nope", jobs.StatusCompleted, nil, "", now)
		Expect(err).To(MatchError(jobs.ErrNotFound))
		Expect(store.Tasks("nope")).To(BeNil())
	})

	It("never counts more finished tasks than the job holds", func() {
		job, tasks := newJob("j1", 20)
		Expect(store.Create(job, tasks)).To(Succeed())

		var wg sync.WaitGroup
		for _, t := range tasks {
			wg.Add(1)
			go func(id string) {
				defer GinkgoRecover()
				defer wg.Done()
				_, err := store.StartTask(id, now)
				Expect(err).NotTo(HaveOccurred())
				j, err := store.FinishTask(id, jobs.StatusCompleted, nil, "", now)
				Expect(err).NotTo(HaveOccurred())
				Expect(j.CompletedTasks + j.FailedTasks).To(BeNumerically("<=", j.TotalTasks))
			}(t.ID)
		}
		wg.Wait()

		got, _ := store.Job("j1")
		Expect(got.Status).To(Equal(jobs.StatusCompleted))
		Expect(got.CompletedTasks).To(Equal(20))
	})

	It("prunes only terminal jobs finished before the cutoff", func() {
		done, doneTasks := newJob("done", 1)
		Expect(store.Create(done, doneTasks)).To(Succeed())
		_, _ = store.StartTask("done-a", now)
		_, _ = store.FinishTask("done-a", jobs.StatusCompleted, nil, "", now)

		running, runningTasks := newJob("running", 1)
		Expect(store.Create(running, runningTasks)).To(Succeed())
		_, _ = store.StartTask("running-a", now)

		Expect(store.Prune(now)).To(BeZero())
		Expect(store.Prune(now.Add(time.Minute))).To(Equal(1))

		_, ok := store.Job("done")
		Expect(ok).To(BeFalse())
		_, err := store.StartTask("done-a", now)
		Expect(err).To(MatchError(jobs.ErrNotFound))
		Expect(store.Jobs()).To(HaveLen(1))
	})
})
