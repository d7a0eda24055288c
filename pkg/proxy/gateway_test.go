package proxy_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lisanmuaddib/event-scraper/pkg/proxy"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"
)

var _ = Describe("Gateway", func() {
	var (
		server   *httptest.Server
		handler  http.HandlerFunc
		inflight int32
		peak     int32
		hits     int32
		logger   *logrus.Logger
	)

	newGateway := func(concurrency int, token string) *proxy.Gateway {
		gw, err := proxy.New(&proxy.Config{
			Token:            token,
			Endpoint:         server.URL + "/",
			Concurrency:      concurrency,
			Timeout:          2 * time.Second,
			IdleSummaryDelay: 20 * time.Millisecond,
			Logger:           logger,
		})
		Expect(err).NotTo(HaveOccurred())
		return gw
	}

	BeforeEach(func() {
		atomic.StoreInt32(&inflight, 0)
		atomic.StoreInt32(&peak, 0)
		atomic.StoreInt32(&hits, 0)
		logger = logrus.New()
		logger.SetOutput(io.Discard)

		handler = func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"target":"` + r.URL.Query().Get("url") + `"}`))
		}
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&hits, 1)
			n := atomic.AddInt32(&inflight, 1)
			defer atomic.AddInt32(&inflight, -1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			handler(w, r)
		}))
	})

	AfterEach(func() {
		server.Close()
	})

	It("passes the target url and token to the proxy and decodes JSON", func() {
		var gotToken string
		handler = func(w http.ResponseWriter, r *http.Request) {
			gotToken = r.URL.Query().Get("token")
			_, _ = w.Write([]byte(`{"target":"` + r.URL.Query().Get("url") + `"}`))
		}
		gw := newGateway(5, "secret")

		var out struct {
			Target string `json:"target"`
		}
		err := gw.GetJSON(context.Background(), proxy.Request{URL: "https://example.org/a?b=c", Label: "test"}, &out)
		Expect(err).NotTo(HaveOccurred())
		Expect(out.Target).To(Equal("https://example.org/a?b=c"))
		Expect(gotToken).To(Equal("secret"))
		Expect(gw.Stats().Success).To(Equal(1))
	})

	It("keeps at most two calls active when the ceiling is two", func() {
		handler = func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(50 * time.Millisecond)
			_, _ = w.Write([]byte("ok"))
		}
		gw := newGateway(2, "secret")

		var wg sync.WaitGroup
		for i := 0; i < 5; i++ {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				body, err := gw.Get(context.Background(), proxy.Request{URL: "https://example.org", Label: "burst"})
				Expect(err).NotTo(HaveOccurred())
				Expect(string(body)).To(Equal("ok"))
			}()
		}
		wg.Wait()

		Expect(atomic.LoadInt32(&peak)).To(BeNumerically("<=", 2))
		stats := gw.Stats()
		Expect(stats.PeakActive).To(Equal(2))
		Expect(stats.Total).To(Equal(5))
		Expect(stats.Success).To(Equal(5))
		Expect(stats.Active).To(Equal(0))
	})

	It("labels non-2xx responses with the caller's label and does not retry", func() {
		handler = func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}
		gw := newGateway(5, "secret")

		_, err := gw.Get(context.Background(), proxy.Request{URL: "https://example.org", Label: "organizer page 1"})
		var statusErr *proxy.StatusError
		Expect(errors.As(err, &statusErr)).To(BeTrue())
		Expect(statusErr.StatusCode).To(Equal(http.StatusBadGateway))
		Expect(err.Error()).To(ContainSubstring("organizer page 1"))
		Expect(atomic.LoadInt32(&hits)).To(Equal(int32(1)))
		Expect(gw.Stats().Failed).To(Equal(1))
	})

	It("fails fast without a token", func() {
		gw := newGateway(5, "")
		_, err := gw.Get(context.Background(), proxy.Request{URL: "https://example.org"})
		Expect(err).To(MatchError(proxy.ErrMissingToken))
		Expect(atomic.LoadInt32(&hits)).To(BeZero())
	})

	It("bounds each call with the configured timeout", func() {
		handler = func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(time.Second):
			}
		}
		gw, err := proxy.New(&proxy.Config{
			Token:    "secret",
			Endpoint: server.URL + "/",
			Timeout:  30 * time.Millisecond,
			Logger:   logger,
		})
		Expect(err).NotTo(HaveOccurred())

		_, err = gw.Get(context.Background(), proxy.Request{URL: "https://slow.example"})
		Expect(errors.Is(err, context.DeadlineExceeded)).To(BeTrue())
	})

	It("logs one summary after going idle", func() {
		gw := newGateway(5, "secret")
		_, err := gw.Get(context.Background(), proxy.Request{URL: "https://example.org"})
		Expect(err).NotTo(HaveOccurred())

		Eventually(func() int { return gw.Stats().Summaries }).Should(Equal(1))
		Consistently(func() int { return gw.Stats().Summaries }, 100*time.Millisecond).Should(Equal(1))
	})
})
