package render

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/lisanmuaddib/event-scraper/internal/envutil"
	"github.com/lisanmuaddib/event-scraper/pkg/proxy"
	"github.com/sirupsen/logrus"
)

// ErrMissingCredentials is returned when Oxylabs credentials are not configured.
var ErrMissingCredentials = errors.New("render: OXY_USERNAME and OXY_PASSWORD must be set")

// DefaultOxylabsURL is the Oxylabs realtime endpoint.
const DefaultOxylabsURL = "https://realtime.oxylabs.io/v1/queries"

// Fetcher is the slice of the proxy gateway used for page fetches.
type Fetcher interface {
	Get(ctx context.Context, req proxy.Request) ([]byte, error)
}

// Runner executes a metered call inside the gateway's limiter.
type Runner interface {
	Run(ctx context.Context, priority int, label string, fn func(ctx context.Context) error) error
}

// OxylabsConfig holds Oxylabs realtime API settings.
// Environment variables:
//   - OXY_USERNAME, OXY_PASSWORD: basic auth credentials
//   - OXY_REALTIME_URL: endpoint (default: https://realtime.oxylabs.io/v1/queries)
type OxylabsConfig struct {
	Username    string
	Password    string
	RealtimeURL string
	HTTPClient  *http.Client
	Logger      *logrus.Logger
}

// NewOxylabsConfig reads Oxylabs settings from the environment.
func NewOxylabsConfig() (*OxylabsConfig, error) {
	if err := envutil.LoadDotEnv(); err != nil {
		return nil, err
	}
	config := &OxylabsConfig{
		Username:    envutil.String("OXY_USERNAME", ""),
		Password:    envutil.String("OXY_PASSWORD", ""),
		RealtimeURL: envutil.String("OXY_REALTIME_URL", DefaultOxylabsURL),
		Logger:      logrus.New(),
	}
	return config, config.Validate()
}

// Validate fills defaults. Missing credentials surface per call.
func (c *OxylabsConfig) Validate() error {
	if c.RealtimeURL == "" {
		c.RealtimeURL = DefaultOxylabsURL
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{}
	}
	if c.Logger == nil {
		c.Logger = logrus.New()
	}
	return nil
}

// OxylabsProvider renders pages with the Oxylabs realtime API.
type OxylabsProvider struct {
	config *OxylabsConfig
	runner Runner
}

// NewOxylabsProvider creates a provider whose calls run inside runner.
func NewOxylabsProvider(config *OxylabsConfig, runner Runner) *OxylabsProvider {
	_ = config.Validate()
	return &OxylabsProvider{config: config, runner: runner}
}

func (p *OxylabsProvider) Name() string { return ProviderOxylabs }

type oxylabsRequest struct {
	Source string `json:"source"`
	URL    string `json:"url"`
	Render string `json:"render"`
}

type oxylabsResponse struct {
	Results []struct {
		Content    string `json:"content"`
		StatusCode int    `json:"status_code"`
	} `json:"results"`
}

func (p *OxylabsProvider) RenderPage(ctx context.Context, url string) (string, error) {
	if p.config.Username == "" || p.config.Password == "" {
		return "", ErrMissingCredentials
	}

	label := "oxylabs render " + url
	var content string
	err := p.runner.Run(ctx, 0, label, func(ctx context.Context) error {
		body, err := json.Marshal(oxylabsRequest{Source: "universal", URL: url, Render: "html"})
		if err != nil {
			return fmt.Errorf("error marshaling request: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.RealtimeURL, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("error creating request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.SetBasicAuth(p.config.Username, p.config.Password)

		resp, err := p.config.HTTPClient.Do(req)
		if err != nil {
			return fmt.Errorf("%s: %w", label, err)
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("%s: error reading response: %w", label, err)
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return &proxy.StatusError{Label: label, StatusCode: resp.StatusCode, Body: truncate(string(raw), 400)}
		}

		var decoded oxylabsResponse
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return fmt.Errorf("%s: non-JSON response: %w", label, err)
		}
		if len(decoded.Results) > 0 {
			content = decoded.Results[0].Content
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(content) == "" {
		return "", nil
	}
	return content, nil
}

// ProxyProvider renders pages through the unblocking proxy gateway.
type ProxyProvider struct {
	fetcher Fetcher
}

// NewProxyProvider creates the scrape.do backed provider.
func NewProxyProvider(fetcher Fetcher) *ProxyProvider {
	return &ProxyProvider{fetcher: fetcher}
}

func (p *ProxyProvider) Name() string { return ProviderScrapeIO }

func (p *ProxyProvider) RenderPage(ctx context.Context, url string) (string, error) {
	body, err := p.fetcher.Get(ctx, proxy.Request{URL: url, Label: "scrapeio render " + url})
	if err != nil {
		return "", err
	}
	html := string(body)
	if strings.TrimSpace(html) == "" {
		return "", fmt.Errorf("scrapeio returned empty HTML for %s", url)
	}
	return html, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
