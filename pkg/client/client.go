package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/wpsteward/steward/pkg/types"
)

// Client wraps the steward HTTP API for CLI and programmatic use.
type Client struct {
	baseURL    string
	resetToken string
	httpClient *http.Client
}

// Option adjusts a client at construction time.
type Option func(*Client)

// WithResetToken attaches the token required by destructive endpoints.
func WithResetToken(token string) Option {
	return func(c *Client) { c.resetToken = token }
}

// WithHTTPClient substitutes the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a client for the given control-plane address.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// EnqueueResponse is the acknowledgement for a submitted task.
type EnqueueResponse struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
}

// TaskStatus is the lookup projection of a task.
type TaskStatus struct {
	TaskID string          `json:"task_id"`
	State  types.TaskState `json:"state"`
	Result map[string]any  `json:"result,omitempty"`
	Info   string          `json:"info,omitempty"`
}

// LoginResponse acknowledges a verified SSH session.
type LoginResponse struct {
	SiteID   string `json:"site_id"`
	Verified bool   `json:"verified"`
	Uname    string `json:"uname,omitempty"`
}

// apiError is the server's JSON error envelope.
type apiError struct {
	Err string `json:"error"`
}

// Submission is one task request: the site record plus handler
// arguments flattened into a single body.
type Submission struct {
	Site        types.SiteRecord
	Args        types.Args
	ReportEmail string
}

func (s Submission) body() (map[string]any, error) {
	flat := map[string]any{}

	raw, err := json.Marshal(s.Site)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &flat); err != nil {
		return nil, err
	}
	for k, v := range s.Args {
		flat[k] = v
	}
	if s.ReportEmail != "" {
		flat["report_email"] = s.ReportEmail
	}
	return flat, nil
}

// Submit enqueues a task on the endpoint serving the given kind.
func (c *Client) Submit(ctx context.Context, endpoint string, sub Submission) (*EnqueueResponse, error) {
	body, err := sub.body()
	if err != nil {
		return nil, err
	}
	var resp EnqueueResponse
	if err := c.post(ctx, endpoint, body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Task looks up a task by id.
func (c *Client) Task(ctx context.Context, taskID string) (*TaskStatus, error) {
	var status TaskStatus
	if err := c.get(ctx, "/tasks/"+taskID, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// WaitTask polls until the task reaches a terminal state or the context
// expires.
func (c *Client) WaitTask(ctx context.Context, taskID string, interval time.Duration) (*TaskStatus, error) {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		status, err := c.Task(ctx, taskID)
		if err != nil {
			return nil, err
		}
		if status.State.Terminal() {
			return status, nil
		}
		select {
		case <-ctx.Done():
			return status, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Login verifies SSH access to a site and opens a server-side session.
func (c *Client) Login(ctx context.Context, site types.SiteRecord) (*LoginResponse, error) {
	body, err := Submission{Site: site}.body()
	if err != nil {
		return nil, err
	}
	var resp LoginResponse
	if err := c.post(ctx, "/ssh/login", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Site fetches non-secret session metadata.
func (c *Client) Site(ctx context.Context, siteID string) (map[string]any, error) {
	var meta map[string]any
	if err := c.get(ctx, "/sites/"+siteID, &meta); err != nil {
		return nil, err
	}
	return meta, nil
}

// Install runs the provisioning script against a verified session.
func (c *Client) Install(ctx context.Context, siteID string, args types.Args) (*EnqueueResponse, error) {
	body := map[string]any{}
	for k, v := range args {
		body[k] = v
	}
	var resp EnqueueResponse
	if err := c.post(ctx, "/tasks/wp-install/"+siteID, body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DownloadBackup submits a blocking backup request and writes the
// artefact stream to dst. endpoint is /tasks/backup/db or
// /tasks/backup/content.
func (c *Client) DownloadBackup(ctx context.Context, endpoint string, sub Submission, dst io.Writer) error {
	if sub.Args == nil {
		sub.Args = types.Args{}
	}
	sub.Args["download"] = true

	body, err := sub.body()
	if err != nil {
		return err
	}
	resp, err := c.send(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}
	_, err = io.Copy(dst, resp.Body)
	return err
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	resp, err := c.send(ctx, http.MethodPost, path, body)
	if err != nil {
		return err
	}
	return decodeResponse(resp, out)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	resp, err := c.send(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	return decodeResponse(resp, out)
}

func (c *Client) send(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var buf io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		buf = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, buf)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.resetToken != "" {
		req.Header.Set("X-Reset-Token", c.resetToken)
	}
	return c.httpClient.Do(req)
}

func decodeResponse(resp *http.Response, out any) error {
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func decodeError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var apiErr apiError
	if json.Unmarshal(data, &apiErr) == nil && apiErr.Err != "" {
		return fmt.Errorf("api error (%d): %s", resp.StatusCode, apiErr.Err)
	}
	return fmt.Errorf("api error (%d): %s", resp.StatusCode, strings.TrimSpace(string(data)))
}
