// Package dataforseo implements the SERP v3 API client. It attaches auth,
// decodes the task envelope, classifies remote status codes into tagged
// outcomes, and retries transient server errors; callers never see raw
// payload maps or numeric status codes.
package dataforseo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rankscope/rankscope/internal/metrics"
	"github.com/rankscope/rankscope/internal/serp"
)

// Remote status codes the client understands. Everything else is classified
// defensively: unknown non-success codes on a fetch are treated as
// non-terminal rather than guessed to be failures.
const (
	codeSuccess     = 20000
	codeTaskCreated = 20100
	codeTaskHanded  = 40601
	codeTaskInQueue = 40602
	codeInternal    = 50000
)

// Config carries client construction parameters.
type Config struct {
	BaseURL    string
	Login      string
	Password   string
	SerpType   string
	Timeout    time.Duration
	MaxRetries int
	BackoffMin time.Duration
	BackoffMax time.Duration
}

// Client talks to the DataForSEO SERP v3 API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	login      string
	password   string
	serpType   string
	retry      *serp.RetryPolicy
	logger     *zap.Logger
}

// New constructs a Client.
func New(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if cfg.Login == "" || cfg.Password == "" {
		return nil, fmt.Errorf("api credentials are required")
	}
	if cfg.SerpType == "" {
		cfg.SerpType = "google"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		login:      cfg.Login,
		password:   cfg.Password,
		serpType:   cfg.SerpType,
		retry:      serp.NewRetryPolicy(cfg.MaxRetries, cfg.BackoffMin, cfg.BackoffMax),
		logger:     logger,
	}, nil
}

// envelope is the top-level response wrapper common to every endpoint.
type envelope struct {
	StatusCode    int            `json:"status_code"`
	StatusMessage string         `json:"status_message"`
	Tasks         []taskEnvelope `json:"tasks"`
}

type taskEnvelope struct {
	ID            string            `json:"id"`
	StatusCode    int               `json:"status_code"`
	StatusMessage string            `json:"status_message"`
	Result        []json.RawMessage `json:"result"`
}

// taskPayload is the request body for both live and queued submissions.
type taskPayload struct {
	Keyword           string `json:"keyword"`
	LanguageCode      string `json:"language_code"`
	LocationCode      int    `json:"location_code"`
	Target            string `json:"target,omitempty"`
	IncludeSubdomains bool   `json:"include_subdomains"`
	Device            string `json:"device"`
	Depth             int    `json:"depth"`
	OS                string `json:"os"`
}

func buildPayload(job serp.KeywordJob, withTarget bool) taskPayload {
	p := taskPayload{
		Keyword:           job.Keyword,
		LanguageCode:      job.LanguageCode,
		LocationCode:      job.LocationCode,
		IncludeSubdomains: job.IncludeSubdomains,
		Device:            string(job.Device),
		Depth:             job.Depth,
		OS:                job.OS,
	}
	if p.OS == "" {
		p.OS = job.Device.DefaultOS()
	}
	if withTarget {
		p.Target = job.Domain
	}
	return p
}

// SubmitImmediate runs one Live request. The target domain is passed so the
// remote filters server-side.
func (c *Client) SubmitImmediate(ctx context.Context, job serp.KeywordJob) (serp.SubmitOutcome, error) {
	endpoint := fmt.Sprintf("serp/%s/organic/live/advanced", c.serpType)
	env, err := c.do(ctx, http.MethodPost, endpoint, []taskPayload{buildPayload(job, true)})
	if err != nil {
		return serp.SubmitOutcome{}, err
	}
	if len(env.Tasks) == 0 {
		return serp.SubmitOutcome{Status: serp.StatusError, Message: "empty task envelope"}, nil
	}
	task := env.Tasks[0]
	if task.StatusCode != codeSuccess {
		return serp.SubmitOutcome{Status: serp.StatusError, Message: task.StatusMessage}, nil
	}
	result, err := firstResult(task)
	if err != nil {
		return serp.SubmitOutcome{Status: serp.StatusError, Message: err.Error()}, nil
	}
	return serp.SubmitOutcome{Status: serp.StatusOK, Result: result}, nil
}

// EnqueueBatch submits jobs as queued tasks. The remote cannot apply the
// target filter in this mode, so the payload omits it and filtering happens
// client-side at fetch time.
func (c *Client) EnqueueBatch(ctx context.Context, jobs []serp.KeywordJob) ([]serp.EnqueueOutcome, error) {
	endpoint := fmt.Sprintf("serp/%s/organic/task_post", c.serpType)
	payloads := make([]taskPayload, 0, len(jobs))
	for _, job := range jobs {
		payloads = append(payloads, buildPayload(job, false))
	}
	env, err := c.do(ctx, http.MethodPost, endpoint, payloads)
	if err != nil {
		return nil, err
	}

	outcomes := make([]serp.EnqueueOutcome, 0, len(env.Tasks))
	for _, task := range env.Tasks {
		outcomes = append(outcomes, classifyEnqueue(task))
	}
	return outcomes, nil
}

func classifyEnqueue(task taskEnvelope) serp.EnqueueOutcome {
	if task.StatusCode != codeTaskCreated {
		return serp.EnqueueOutcome{Status: serp.StatusError, Message: task.StatusMessage}
	}
	id := task.ID
	if len(task.Result) > 0 {
		var r struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(task.Result[0], &r); err == nil && r.ID != "" {
			id = r.ID
		}
	}
	if id == "" {
		return serp.EnqueueOutcome{Status: serp.StatusError, Message: "task accepted without id"}
	}
	return serp.EnqueueOutcome{Status: serp.StatusCreated, TaskID: id}
}

// ListReadyTasks returns ids of queued tasks whose results can be fetched.
func (c *Client) ListReadyTasks(ctx context.Context) ([]string, error) {
	endpoint := fmt.Sprintf("serp/%s/organic/tasks_ready", c.serpType)
	env, err := c.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	var ids []string
	for _, task := range env.Tasks {
		for _, raw := range task.Result {
			var r struct {
				ID string `json:"id"`
			}
			if err := json.Unmarshal(raw, &r); err != nil || r.ID == "" {
				continue
			}
			ids = append(ids, r.ID)
		}
	}
	return ids, nil
}

// FetchTaskResult retrieves one queued task's result.
func (c *Client) FetchTaskResult(ctx context.Context, taskID string) (serp.FetchOutcome, error) {
	endpoint := fmt.Sprintf("serp/%s/organic/task_get/advanced/%s", c.serpType, taskID)
	env, err := c.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return serp.FetchOutcome{}, err
	}
	if len(env.Tasks) == 0 {
		return serp.FetchOutcome{Status: serp.StatusError, Message: "empty task envelope"}, nil
	}
	task := env.Tasks[0]
	switch {
	case task.StatusCode == codeSuccess:
		result, rerr := firstResult(task)
		if rerr != nil {
			return serp.FetchOutcome{Status: serp.StatusError, Message: rerr.Error()}, nil
		}
		return serp.FetchOutcome{Status: serp.StatusOK, Result: result}, nil
	case isHardError(task.StatusCode):
		return serp.FetchOutcome{Status: serp.StatusError, Message: task.StatusMessage}, nil
	default:
		// Includes 40601/40602 and any status the client does not recognize:
		// leave the task pending rather than fail it prematurely.
		return serp.FetchOutcome{Status: serp.StatusQueued, Message: task.StatusMessage}, nil
	}
}

// isHardError reports whether a task status is a terminal remote failure.
// In-queue/handed codes and the internal-error code are not hard failures.
func isHardError(code int) bool {
	switch code {
	case codeTaskHanded, codeTaskInQueue, codeInternal:
		return false
	}
	return code >= 40000 && code < 50000
}

func firstResult(task taskEnvelope) (*serp.RawResult, error) {
	if len(task.Result) == 0 {
		return nil, fmt.Errorf("empty result array")
	}
	var result serp.RawResult
	if err := json.Unmarshal(task.Result[0], &result); err != nil {
		return nil, fmt.Errorf("decode result payload: %w", err)
	}
	return &result, nil
}

// do issues one request with bounded transient retry. HTTP 5xx responses and
// an all-tasks internal-error envelope are retried; everything else is
// returned to the caller for classification.
func (c *Client) do(ctx context.Context, method, endpoint string, body any) (envelope, error) {
	var lastErr error
	for attempt := 0; attempt < c.retry.MaxAttempts(); attempt++ {
		if attempt > 0 {
			if err := c.retry.Sleep(ctx, attempt-1); err != nil {
				return envelope{}, fmt.Errorf("retry wait: %w", err)
			}
			c.logger.Debug("retrying request",
				zap.String("endpoint", endpoint),
				zap.Int("attempt", attempt+1),
			)
		}

		env, retryable, err := c.doOnce(ctx, method, endpoint, body)
		if err == nil {
			return env, nil
		}
		lastErr = err
		if !retryable || !c.retry.ShouldRetry(err, attempt) {
			break
		}
	}
	return envelope{}, lastErr
}

func (c *Client) doOnce(ctx context.Context, method, endpoint string, body any) (envelope, bool, error) {
	url := c.baseURL + "/" + endpoint

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return envelope{}, false, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return envelope{}, false, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.login, c.password)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.ObserveRequest(endpoint, "transport_error", time.Since(start))
		return envelope{}, true, fmt.Errorf("%s: %w", endpoint, err)
	}
	defer resp.Body.Close()
	dur := time.Since(start)

	if resp.StatusCode >= 500 {
		metrics.ObserveRequest(endpoint, "server_error", dur)
		return envelope{}, true, fmt.Errorf("%s: server error %d", endpoint, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		metrics.ObserveRequest(endpoint, "http_error", dur)
		return envelope{}, false, fmt.Errorf("%s: unexpected status %d", endpoint, resp.StatusCode)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		metrics.ObserveRequest(endpoint, "decode_error", dur)
		return envelope{}, false, fmt.Errorf("decode %s response: %w", endpoint, err)
	}

	if allInternalError(env) {
		metrics.ObserveRequest(endpoint, "internal_error", dur)
		return envelope{}, true, fmt.Errorf("%s: remote internal error: %s", endpoint, env.StatusMessage)
	}

	metrics.ObserveRequest(endpoint, "ok", dur)
	return env, false, nil
}

// allInternalError reports whether every task in the envelope failed with the
// transient internal-error status, which makes the whole call retry-eligible.
func allInternalError(env envelope) bool {
	if env.StatusCode == codeInternal {
		return true
	}
	if len(env.Tasks) == 0 {
		return false
	}
	for _, task := range env.Tasks {
		if task.StatusCode != codeInternal {
			return false
		}
	}
	return true
}
