// Package rest is the REST client of the backend job API.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/slok/btorch/internal/backend"
	"github.com/slok/btorch/internal/log"
	"github.com/slok/btorch/internal/model"
)

const maxErrorBody = 4096

// ClientConfig is the configuration of the REST client.
type ClientConfig struct {
	// BaseURL is the API base URL (e.g. "http://localhost:8000/api").
	BaseURL string
	// HTTPClient is the HTTP client for the API requests.
	HTTPClient *http.Client
	// RequestsPerSecond limits the API request rate, 0 disables the limit.
	RequestsPerSecond float64
	// Burst is the request burst allowed by the limiter.
	Burst  int
	Logger log.Logger
}

func (c *ClientConfig) defaults() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL is required")
	}
	c.BaseURL = strings.TrimSuffix(c.BaseURL, "/")
	if !strings.HasPrefix(c.BaseURL, "http://") && !strings.HasPrefix(c.BaseURL, "https://") {
		return fmt.Errorf("base URL %q must be an http(s) URL", c.BaseURL)
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if c.RequestsPerSecond < 0 {
		return fmt.Errorf("requests per second can't be negative")
	}
	if c.Burst <= 0 {
		c.Burst = 5
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "backend.rest.Client"})
	return nil
}

// Client talks to the backend job API. It implements every backend operation
// except the push subscription.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     log.Logger
}

// NewClient returns a new REST client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	return &Client{
		baseURL:    cfg.BaseURL,
		httpClient: cfg.HTTPClient,
		limiter:    rate.NewLimiter(limit, cfg.Burst),
		logger:     cfg.Logger,
	}, nil
}

type startJobResponse struct {
	TaskID    string `json:"task_id"`
	TaskIDAlt string `json:"taskId"`
}

type cancelJobResponse struct {
	Acknowledged *bool `json:"acknowledged"`
}

// StartJob posts the job to the endpoint of its mode.
func (c *Client) StartJob(ctx context.Context, mode model.JobMode, body map[string]any) (string, error) {
	endpoint := backend.Endpoint(mode)
	if endpoint == "" {
		return "", fmt.Errorf("unknown job mode %q: %w", mode, model.ErrNotValid)
	}

	data, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("could not marshal job body: %w", err)
	}

	var resp startJobResponse
	if err := c.do(ctx, http.MethodPost, endpoint, data, &resp); err != nil {
		return "", err
	}

	id := resp.TaskID
	if id == "" {
		id = resp.TaskIDAlt
	}
	if id == "" {
		return "", fmt.Errorf("start response without task id: %w", model.ErrNotValid)
	}
	c.logger.Debugf("Started %s job %s", mode, id)

	return id, nil
}

// GetJobStatus queries the status of a task.
func (c *Client) GetJobStatus(ctx context.Context, taskID string) (*backend.JobStatus, error) {
	var msg backend.StatusMessage
	if err := c.do(ctx, http.MethodGet, taskPath(taskID, ""), nil, &msg); err != nil {
		return nil, err
	}

	// Some handlers omit the id on the status body.
	if msg.TaskID == "" && msg.TaskIDAlt == "" {
		msg.TaskID = taskID
	}

	st, err := msg.ToJobStatus()
	if err != nil {
		return nil, fmt.Errorf("invalid status of task %s: %w", taskID, err)
	}

	return st, nil
}

// CancelJob requests the revoke of a task.
func (c *Client) CancelJob(ctx context.Context, taskID string) (bool, error) {
	var resp cancelJobResponse
	if err := c.do(ctx, http.MethodPost, taskPath(taskID, "/cancel"), nil, &resp); err != nil {
		return false, err
	}

	// A body without the flag is an acknowledge.
	if resp.Acknowledged == nil {
		return true, nil
	}
	return *resp.Acknowledged, nil
}

// DownloadArtifact streams the report artifact of a task into w.
func (c *Client) DownloadArtifact(ctx context.Context, taskID string, w io.Writer) (int64, error) {
	resp, err := c.request(ctx, http.MethodGet, taskPath(taskID, "/artifact"), nil)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("could not download artifact of task %s: %w: %w", taskID, model.ErrTransport, err)
	}

	return n, nil
}

func taskPath(taskID, suffix string) string {
	return "/tasks/" + taskID + suffix
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	resp, err := c.request(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("could not decode %s %s response: %w: %w", method, path, model.ErrNotValid, err)
	}

	return nil
}

// request executes the request and maps the failures: network errors and 5xx
// are transport errors, 404 is not found and any other status is not valid.
func (c *Client) request(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, url, r)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w: %w", model.ErrTransport, err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()

	msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	detail := strings.TrimSpace(string(msg))
	if detail == "" {
		detail = http.StatusText(resp.StatusCode)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%s %s: %w", method, url, model.ErrNotFound)
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("HTTP %d from %s: %s: %w", resp.StatusCode, url, detail, model.ErrTransport)
	default:
		return nil, fmt.Errorf("HTTP %d from %s: %s: %w", resp.StatusCode, url, detail, model.ErrNotValid)
	}
}
