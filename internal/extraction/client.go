package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"menuscore-backend/internal/analyses/scoring"
)

const defaultBaseURL = "http://localhost:8000"

// Task states reported by the extraction service.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Client is the contract of the external extraction service.
type Client interface {
	HealthCheck(ctx context.Context) bool
	StartTask(ctx context.Context, link string) (string, error)
	PollTask(ctx context.Context, taskID string) (TaskStatus, error)
	FetchResult(ctx context.Context, taskID string) (scoring.Establishment, error)
}

// TaskStatus is the response from GET /api/v1/status/{id}.
type TaskStatus struct {
	Status   string `json:"status"`
	Progress *int   `json:"progress,omitempty"`
	Message  string `json:"message,omitempty"`
}

// ScrapeOptions tunes what the extractor collects.
type ScrapeOptions struct {
	WaitForSelectors    bool `json:"waitForSelectors"`
	ExtractImages       bool `json:"extractImages"`
	ExtractPrices       bool `json:"extractPrices"`
	ExtractDescriptions bool `json:"extractDescriptions"`
}

// ScrapeRequest is the body for POST /api/v1/scrape.
type ScrapeRequest struct {
	URL     string        `json:"url"`
	Options ScrapeOptions `json:"options"`
}

// ScrapeResponse is the response from POST /api/v1/scrape.
type ScrapeResponse struct {
	TaskID string `json:"task_id"`
}

type healthResponse struct {
	Status string `json:"status"`
}

// APIError is returned when the extraction service responds with a non-2xx status.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("extraction: HTTP %d: %s", e.StatusCode, e.Body)
}

// Option configures the httpClient.
type Option func(*httpClient)

// WithBaseURL overrides the default base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		if strings.TrimSpace(u) != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithAPIKey sends the key as a bearer token.
func WithAPIKey(key string) Option {
	return func(c *httpClient) {
		c.apiKey = key
	}
}

// WithHTTPClient sets a custom *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit throttles outbound calls. A non-positive limit disables throttling.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *httpClient) {
		if perSecond <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithScrapeOptions overrides the options sent with every new task.
func WithScrapeOptions(opts ScrapeOptions) Option {
	return func(c *httpClient) {
		c.scrape = opts
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	scrape  ScrapeOptions
}

// NewClient creates an HTTP client for the scraper API.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(rate.Limit(5), 10),
		scrape: ScrapeOptions{
			WaitForSelectors:    true,
			ExtractImages:       true,
			ExtractPrices:       true,
			ExtractDescriptions: true,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) HealthCheck(ctx context.Context) bool {
	var resp healthResponse
	if err := c.get(ctx, "/health", &resp); err != nil {
		return false
	}
	return resp.Status == "ok"
}

func (c *httpClient) StartTask(ctx context.Context, link string) (string, error) {
	var resp ScrapeResponse
	if err := c.post(ctx, "/api/v1/scrape", ScrapeRequest{URL: link, Options: c.scrape}, &resp); err != nil {
		return "", eris.Wrap(err, "extraction: start task")
	}
	if strings.TrimSpace(resp.TaskID) == "" {
		return "", eris.New("extraction: start task: empty task id")
	}
	return resp.TaskID, nil
}

func (c *httpClient) PollTask(ctx context.Context, taskID string) (TaskStatus, error) {
	var resp TaskStatus
	if err := c.get(ctx, "/api/v1/status/"+url.PathEscape(taskID), &resp); err != nil {
		return TaskStatus{}, eris.Wrapf(err, "extraction: poll task %s", taskID)
	}
	return resp, nil
}

func (c *httpClient) FetchResult(ctx context.Context, taskID string) (scoring.Establishment, error) {
	var resp ScrapePayload
	if err := c.get(ctx, "/api/v1/results/"+url.PathEscape(taskID), &resp); err != nil {
		return scoring.Establishment{}, eris.Wrapf(err, "extraction: fetch result %s", taskID)
	}
	return resp.Establishment(), nil
}

func (c *httpClient) post(ctx context.Context, path string, body any, out any) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return eris.Wrap(err, "marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return eris.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, out)
}

func (c *httpClient) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return eris.Wrap(err, "create request")
	}
	return c.do(req, out)
}

func (c *httpClient) do(req *http.Request, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(req.Context()); err != nil {
			return eris.Wrap(err, "rate limit wait")
		}
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "execute request")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return eris.Wrap(err, "read response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{
			StatusCode: resp.StatusCode,
			Body:       string(data),
		}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return eris.Wrap(err, "decode response")
	}
	return nil
}
