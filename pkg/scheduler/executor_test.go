package scheduler_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lisanmuaddib/event-scraper/pkg/scheduler"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("ToSchedulerPriority", func() {
	DescribeTable("inverts and clamps the user scale",
		func(user, expected int) {
			Expect(scheduler.ToSchedulerPriority(user)).To(Equal(expected))
		},
		Entry("highest", 1, 19),
		Entry("lowest", 10, 10),
		Entry("unset defaults to 5", 0, 15),
		Entry("below range", -3, 19),
		Entry("above range", 42, 10),
	)
})

var _ = Describe("Executor", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	It("runs a priority 1 waiter before a priority 10 waiter", func() {
		exec := scheduler.NewExecutor(1)
		Expect(exec.Acquire(ctx, 0)).To(Succeed())

		var (
			mu    sync.Mutex
			order []string
		)
		record := func(name string) func(context.Context) error {
			return func(context.Context) error {
				mu.Lock()
				order = append(order, name)
				mu.Unlock()
				return nil
			}
		}

		low := exec.Go(ctx, scheduler.ToSchedulerPriority(10), record("low"))
		Eventually(exec.Pending).Should(Equal(1))
		high := exec.Go(ctx, scheduler.ToSchedulerPriority(1), record("high"))
		Eventually(exec.Pending).Should(Equal(2))

		exec.Release()
		Eventually(high).Should(Receive(BeNil()))
		Eventually(low).Should(Receive(BeNil()))
		Expect(order).To(Equal([]string{"high", "low"}))
	})

	It("breaks ties in submission order", func() {
		exec := scheduler.NewExecutor(1)
		Expect(exec.Acquire(ctx, 0)).To(Succeed())

		var (
			mu    sync.Mutex
			order []int
		)
		var chans []<-chan error
		for i := 0; i < 3; i++ {
			i := i
			chans = append(chans, exec.Go(ctx, 15, func(context.Context) error {
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				return nil
			}))
			Eventually(exec.Pending).Should(Equal(i + 1))
		}

		exec.Release()
		for _, ch := range chans {
			Eventually(ch).Should(Receive(BeNil()))
		}
		Expect(order).To(Equal([]int{0, 1, 2}))
	})

	It("never exceeds its ceiling", func() {
		exec := scheduler.NewExecutor(3)
		var active, peak int32
		var wg sync.WaitGroup
		for i := 0; i < 12; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = exec.Do(ctx, 10, func(context.Context) error {
					n := atomic.AddInt32(&active, 1)
					for {
						p := atomic.LoadInt32(&peak)
						if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
							break
						}
					}
					time.Sleep(5 * time.Millisecond)
					atomic.AddInt32(&active, -1)
					return nil
				})
			}()
		}
		wg.Wait()
		Expect(atomic.LoadInt32(&peak)).To(BeNumerically("<=", 3))
		Expect(exec.Active()).To(Equal(0))
	})

	It("gives up waiting when the context is cancelled", func() {
		exec := scheduler.NewExecutor(1)
		Expect(exec.Acquire(ctx, 0)).To(Succeed())

		cctx, cancel := context.WithCancel(ctx)
		done := exec.Go(cctx, 10, func(context.Context) error { return nil })
		Eventually(exec.Pending).Should(Equal(1))
		cancel()

		Eventually(done).Should(Receive(MatchError(context.Canceled)))
		Expect(exec.Pending()).To(Equal(0))
		exec.Release()
		Expect(exec.Active()).To(Equal(0))
	})

	It("turns panics into errors and frees the slot", func() {
		exec := scheduler.NewExecutor(1)
		err := exec.Do(ctx, 10, func(context.Context) error { panic("kaboom") })
		Expect(err).To(MatchError(ContainSubstring("kaboom")))
		Expect(exec.Active()).To(Equal(0))

		sentinel := errors.New("plain failure")
		Expect(exec.Do(ctx, 10, func(context.Context) error { return sentinel })).To(MatchError(sentinel))
	})
})
