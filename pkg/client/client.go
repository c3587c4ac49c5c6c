package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/docmill/docmill/pkg/types"
)

// maxResponseBytes bounds how much of a response body is read.
const maxResponseBytes = 8 << 20

// Client wraps the docmill REST API for CLI usage.
type Client struct {
	baseURL string
	http    *http.Client
}

// New builds a client for the API at baseURL, for example
// http://localhost:8000.
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// TaskAction is the server's acknowledgement of a state-changing call.
type TaskAction struct {
	TaskID  int64  `json:"task_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// TaskList is one page of task rows.
type TaskList struct {
	Tasks  []*types.Task `json:"tasks"`
	Total  int           `json:"total"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

// RetryFailedResult reports the outcome of a bulk retry.
type RetryFailedResult struct {
	RetriedTaskIDs []int64 `json:"retried_task_ids"`
	Count          int     `json:"count"`
	Message        string  `json:"message"`
}

// Statistics combines store aggregates with the live scheduler snapshot.
type Statistics struct {
	Tasks     *types.TaskStatistics `json:"tasks"`
	Scheduler *types.SchedulerStats `json:"scheduler"`
}

// Health mirrors the /api/health response.
type Health struct {
	Status       string                `json:"status"`
	Timestamp    time.Time             `json:"timestamp"`
	Scheduler    *types.SchedulerStats `json:"scheduler"`
	Dependencies map[string]struct {
		Healthy bool   `json:"healthy"`
		Message string `json:"message,omitempty"`
		Latency string `json:"latency,omitempty"`
	} `json:"dependencies,omitempty"`
}

// ListOptions narrows ListTasks. Zero values mean "no constraint".
type ListOptions struct {
	Status   types.TaskStatus
	Priority types.TaskPriority
	TaskType types.TaskType
	Platform string
	Limit    int
	Offset   int
}

// CreateTask submits one conversion task.
func (c *Client) CreateTask(req *types.CreateTaskRequest) (*TaskAction, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fields := []struct{ name, value string }{
		{"task_type", string(req.TaskType)},
		{"priority", string(req.Priority)},
		{"bucket_name", req.BucketName},
		{"file_path", req.FilePath},
		{"file_url", req.FileURL},
		{"local_path", req.LocalPath},
		{"output_path", req.OutputPath},
		{"platform", req.Platform},
		{"callback_url", req.CallbackURL},
	}
	for _, f := range fields {
		if f.value == "" {
			continue
		}
		if err := mw.WriteField(f.name, f.value); err != nil {
			return nil, fmt.Errorf("failed to encode form: %w", err)
		}
	}
	if len(req.Params) > 0 {
		raw, err := json.Marshal(req.Params)
		if err != nil {
			return nil, fmt.Errorf("failed to encode params: %w", err)
		}
		if err := mw.WriteField("params", string(raw)); err != nil {
			return nil, fmt.Errorf("failed to encode form: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish form: %w", err)
	}

	var out TaskAction
	if err := c.do(http.MethodPost, "/api/tasks/create", nil, &buf, mw.FormDataContentType(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetTask fetches one task view.
func (c *Client) GetTask(id int64) (*types.Task, error) {
	var out types.Task
	if err := c.do(http.MethodGet, fmt.Sprintf("/api/tasks/%d", id), nil, nil, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListTasks fetches one page of tasks matching the options.
func (c *Client) ListTasks(opts ListOptions) (*TaskList, error) {
	query := url.Values{}
	if opts.Status != "" {
		query.Set("status", string(opts.Status))
	}
	if opts.Priority != "" {
		query.Set("priority", string(opts.Priority))
	}
	if opts.TaskType != "" {
		query.Set("task_type", string(opts.TaskType))
	}
	if opts.Platform != "" {
		query.Set("platform", opts.Platform)
	}
	if opts.Limit > 0 {
		query.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		query.Set("offset", strconv.Itoa(opts.Offset))
	}

	var out TaskList
	if err := c.do(http.MethodGet, "/api/tasks", query, nil, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RetryTask resets a failed or cancelled task and re-enqueues it.
func (c *Client) RetryTask(id int64) (*TaskAction, error) {
	var out TaskAction
	if err := c.do(http.MethodPost, fmt.Sprintf("/api/tasks/%d/retry", id), nil, nil, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RetryFailed resets every failed task.
func (c *Client) RetryFailed() (*RetryFailedResult, error) {
	var out RetryFailedResult
	if err := c.do(http.MethodPost, "/api/tasks/retry-failed", nil, nil, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateTaskType changes the conversion of a failed task.
func (c *Client) UpdateTaskType(id int64, taskType types.TaskType) (*TaskAction, error) {
	body, err := json.Marshal(map[string]string{"task_type": string(taskType)})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	var out TaskAction
	if err := c.do(http.MethodPut, fmt.Sprintf("/api/tasks/%d/task-type", id),
		nil, bytes.NewReader(body), "application/json", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Statistics fetches store aggregates plus the scheduler snapshot.
func (c *Client) Statistics() (*Statistics, error) {
	var out Statistics
	if err := c.do(http.MethodGet, "/api/statistics", nil, nil, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Health probes the server's health endpoint. A degraded service
// answers 503 with the same body shape, so any status code with a
// decodable health payload is reported to the caller, not turned into
// an error.
func (c *Client) Health() (*Health, error) {
	resp, err := c.http.Get(c.baseURL + "/api/health")
	if err != nil {
		return nil, fmt.Errorf("failed to reach API: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var out Health
	if err := json.Unmarshal(data, &out); err != nil || out.Status == "" {
		return nil, apiError(resp.StatusCode, data)
	}
	return &out, nil
}

func (c *Client) do(method, path string, query url.Values, body io.Reader, contentType string, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequest(method, u, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach API: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apiError(resp.StatusCode, data)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// apiError surfaces the server's error field when present, else the raw
// body, so CLI users see the same message curl would.
func apiError(code int, body []byte) error {
	var e struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &e); err == nil && e.Error != "" {
		return fmt.Errorf("api returned %d: %s", code, e.Error)
	}
	return fmt.Errorf("api returned %d: %s", code, strings.TrimSpace(string(body)))
}
