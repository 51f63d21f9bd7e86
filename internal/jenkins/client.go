// Package jenkins is a minimal client for the subset of the Jenkins remote
// API this automation needs: trigger a parameterized build, resolve the queue
// item to a build number, query build status and fetch console output.
package jenkins

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	// requestTimeout bounds a single API round trip.
	requestTimeout = 30 * time.Second

	// maxConsoleBytes caps how much console output is read when a build fails.
	maxConsoleBytes = 4 << 20 // 4 MB
)

// Client talks to a single Jenkins job. BaseURL is the full job URL,
// e.g. "https://jenkins.example.com/job/csf-integration/".
type Client struct {
	baseURL  string
	username string
	apiToken string
	jobName  string
	httpc    *http.Client
	limiter  *rate.Limiter
	logger   *slog.Logger
}

// TriggerError means the build could not be started. Trigger failures are
// never retried: a duplicate build is worse than a missed one.
type TriggerError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *TriggerError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("failed to trigger build: %v", e.Err)
	}
	return fmt.Sprintf("failed to trigger build: status %d: %s", e.StatusCode, e.Body)
}

func (e *TriggerError) Unwrap() error { return e.Err }

// QueueItem is the state of a queued build request.
type QueueItem struct {
	// BuildNumber is non-zero once an executor has picked the build up.
	BuildNumber int64
	// InQueueSince is when the item entered the queue.
	InQueueSince time.Time
	// Why is Jenkins' explanation for why the item is still waiting.
	Why string
}

// BuildStatus is a snapshot of one build.
type BuildStatus struct {
	Number   int64
	Building bool
	// Result is Jenkins' result string: SUCCESS, FAILURE, ABORTED or UNSTABLE.
	// Empty while the build is still running.
	Result string
}

// NewClient creates a Jenkins client authenticated with a username and API
// token. Requests are paced through a shared rate limiter so polling can
// never hammer the master.
func NewClient(baseURL, username, apiToken, jobName string, logger *slog.Logger) *Client {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &Client{
		baseURL:  baseURL,
		username: username,
		apiToken: apiToken,
		jobName:  jobName,
		httpc:    &http.Client{Timeout: requestTimeout},
		limiter:  rate.NewLimiter(rate.Every(time.Second), 5),
		logger:   logger,
	}
}

// TriggerBuild starts a parameterized build and returns the queue URL.
//
// Jenkins may or may not return the queue URL in the Location header. When it
// does not, the queue API is scanned for this job; as a last resort the last
// known build URL is returned (which may not be our run — the caller is told
// via the log).
func (c *Client) TriggerBuild(ctx context.Context, params map[string]string) (string, error) {
	values := url.Values{}
	for k, v := range params {
		values.Set(k, v)
	}

	triggerURL := c.baseURL + "buildWithParameters"
	if len(values) > 0 {
		triggerURL += "?" + values.Encode()
	}

	resp, err := c.do(ctx, http.MethodPost, triggerURL)
	if err != nil {
		return "", &TriggerError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &TriggerError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	if loc := resp.Header.Get("Location"); loc != "" {
		return loc, nil
	}

	c.logger.Warn("Jenkins did not return a queue URL, scanning the queue API")

	if queueURL, err := c.findQueuedItem(ctx); err == nil && queueURL != "" {
		return queueURL, nil
	}

	// Last resort: the most recent build of the job
	number, err := c.LastBuildNumber(ctx)
	if err != nil {
		return "", &TriggerError{Err: fmt.Errorf("build triggered but no queue item found: %w", err)}
	}

	c.logger.Warn("Falling back to last known build, which may not be this run", "build", number)
	return fmt.Sprintf("%s%d/", c.baseURL, number), nil
}

// findQueuedItem scans the queue API for an item belonging to this job.
func (c *Client) findQueuedItem(ctx context.Context) (string, error) {
	var payload struct {
		Items []struct {
			URL  string `json:"url"`
			Task struct {
				URL string `json:"url"`
			} `json:"task"`
		} `json:"items"`
	}

	if err := c.getJSON(ctx, c.baseURL+"queue/api/json", &payload); err != nil {
		return "", err
	}

	for _, item := range payload.Items {
		if c.jobName != "" && strings.Contains(item.Task.URL, c.jobName) {
			return item.URL, nil
		}
	}

	return "", fmt.Errorf("no queued item found for job %q", c.jobName)
}

// QueueItem queries a queue URL for its current state.
func (c *Client) QueueItem(ctx context.Context, queueURL string) (*QueueItem, error) {
	if !strings.HasSuffix(queueURL, "/") {
		queueURL += "/"
	}

	var payload struct {
		Executable *struct {
			Number int64 `json:"number"`
		} `json:"executable"`
		// Number is set when queueURL is already a build URL (the last-build
		// fallback in TriggerBuild).
		Number       int64  `json:"number"`
		InQueueSince int64  `json:"inQueueSince"`
		Why          string `json:"why"`
	}

	if err := c.getJSON(ctx, queueURL+"api/json", &payload); err != nil {
		return nil, err
	}

	item := &QueueItem{Why: payload.Why}
	if payload.InQueueSince > 0 {
		item.InQueueSince = time.UnixMilli(payload.InQueueSince)
	}
	if payload.Executable != nil {
		item.BuildNumber = payload.Executable.Number
	} else if payload.Number > 0 {
		item.BuildNumber = payload.Number
	}

	return item, nil
}

// BuildStatus queries the status of a build by number.
func (c *Client) BuildStatus(ctx context.Context, number int64) (*BuildStatus, error) {
	var payload struct {
		Building bool   `json:"building"`
		Result   string `json:"result"`
	}

	if err := c.getJSON(ctx, fmt.Sprintf("%s%d/api/json", c.baseURL, number), &payload); err != nil {
		return nil, err
	}

	return &BuildStatus{
		Number:   number,
		Building: payload.Building,
		Result:   payload.Result,
	}, nil
}

// LastBuildNumber returns the number of the job's most recent build.
func (c *Client) LastBuildNumber(ctx context.Context) (int64, error) {
	var payload struct {
		LastBuild *struct {
			Number int64 `json:"number"`
		} `json:"lastBuild"`
	}

	if err := c.getJSON(ctx, c.baseURL+"api/json", &payload); err != nil {
		return 0, err
	}
	if payload.LastBuild == nil {
		return 0, fmt.Errorf("job has no builds")
	}

	return payload.LastBuild.Number, nil
}

// ConsoleTail fetches the last n non-empty lines of a build's console output.
func (c *Client) ConsoleTail(ctx context.Context, number int64, n int) (string, error) {
	resp, err := c.do(ctx, http.MethodGet, fmt.Sprintf("%s%d/consoleText", c.baseURL, number))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("console fetch failed: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxConsoleBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read console output: %w", err)
	}

	return tailLines(string(body), n), nil
}

// tailLines returns the last n non-empty lines of text.
func tailLines(text string, n int) string {
	lines := strings.Split(text, "\n")
	var kept []string
	for _, line := range lines {
		if strings.TrimSpace(line) != "" {
			kept = append(kept, line)
		}
	}
	if len(kept) > n {
		kept = kept[len(kept)-n:]
	}
	return strings.Join(kept, "\n")
}

func (c *Client) do(ctx context.Context, method, rawURL string) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.SetBasicAuth(c.username, c.apiToken)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", rawURL, err)
	}
	return resp, nil
}

func (c *Client) getJSON(ctx context.Context, rawURL string, v interface{}) error {
	resp, err := c.do(ctx, http.MethodGet, rawURL)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("request to %s failed: status %d", rawURL, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", rawURL, err)
	}

	return nil
}
