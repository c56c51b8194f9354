package comfy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/NicoNav/igsaw-puzzle-app/internal/infra"
)

// Options configures the graph-execution service client.
type Options struct {
	BaseURL      string
	HTTPClient   *http.Client
	Logger       *infra.Logger
	PollInterval time.Duration
	PollTimeout  time.Duration
}

// Client performs HTTP calls against the graph-execution service's queue,
// history, upload and view endpoints. It is safe for concurrent use; all
// state is fixed at construction.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	logger       *infra.Logger
	pollInterval time.Duration
	pollTimeout  time.Duration
}

// Submission is the queue's acknowledgement of one submitted graph. JobID
// keys every subsequent tracking call.
type Submission struct {
	JobID         string
	QueuePosition int
	NodeErrors    map[string]json.RawMessage
}

// QueueState summarizes the remote's running and pending job entries.
type QueueState struct {
	Running []json.RawMessage `json:"queue_running"`
	Pending []json.RawMessage `json:"queue_pending"`
}

// UploadResult identifies an uploaded source image on the remote.
type UploadResult struct {
	Name      string `json:"name"`
	Subfolder string `json:"subfolder"`
}

// SubmissionError reports a rejected graph submission. The remote's status
// and response body are preserved verbatim for diagnostics.
type SubmissionError struct {
	StatusCode int
	Body       string
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("comfy: submission rejected: status %d: %s", e.StatusCode, e.Body)
}

// TimeoutError reports that the history endpoint never produced outputs for
// a job within the polling deadline.
type TimeoutError struct {
	JobID   string
	Elapsed time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("comfy: job %s produced no outputs within %s", e.JobID, e.Elapsed)
}

type promptRequest struct {
	Prompt   Graph  `json:"prompt"`
	ClientID string `json:"client_id"`
}

type promptResponse struct {
	PromptID   string                     `json:"prompt_id"`
	Number     int                        `json:"number"`
	NodeErrors map[string]json.RawMessage `json:"node_errors,omitempty"`
}

type historyEntry struct {
	Outputs map[string]NodeOutput `json:"outputs"`
}

// NewClient constructs a client with sane defaults and injected dependencies.
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "http://127.0.0.1:8188"
	}
	pollInterval := opts.PollInterval
	if pollInterval <= 0 {
		pollInterval = 1500 * time.Millisecond
	}
	pollTimeout := opts.PollTimeout
	if pollTimeout <= 0 {
		pollTimeout = 5 * time.Minute
	}
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Client{
		baseURL:      baseURL,
		httpClient:   httpClient,
		logger:       logger,
		pollInterval: pollInterval,
		pollTimeout:  pollTimeout,
	}
}

// BaseURL returns the configured remote base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// SubmitPrompt enqueues a concrete graph under the given correlation id. It
// returns as soon as the queue acknowledges the job; it never waits for
// execution.
func (c *Client) SubmitPrompt(ctx context.Context, graph Graph, clientID string) (*Submission, error) {
	payload := promptRequest{Prompt: graph, ClientID: clientID}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("comfy: encode prompt: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/prompt", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("comfy: build prompt request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("comfy: submit prompt: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("comfy: read prompt response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, &SubmissionError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	var decoded promptResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("comfy: decode prompt response: %w", err)
	}
	if decoded.PromptID == "" {
		return nil, fmt.Errorf("comfy: prompt response missing prompt_id")
	}
	c.logger.Debug().
		Str("job_id", decoded.PromptID).
		Int("queue_position", decoded.Number).
		Msg("comfy: prompt queued")
	return &Submission{
		JobID:         decoded.PromptID,
		QueuePosition: decoded.Number,
		NodeErrors:    decoded.NodeErrors,
	}, nil
}

// History fetches the job's history record. The second return reports whether
// the job has outputs yet.
func (c *Client) History(ctx context.Context, jobID string) (map[string]NodeOutput, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/history/"+url.PathEscape(jobID), nil)
	if err != nil {
		return nil, false, fmt.Errorf("comfy: build history request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("comfy: fetch history: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, false, fmt.Errorf("comfy: history status %d", resp.StatusCode)
	}

	var decoded map[string]historyEntry
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, false, fmt.Errorf("comfy: decode history: %w", err)
	}
	entry, ok := decoded[jobID]
	if !ok || len(entry.Outputs) == 0 {
		return nil, false, nil
	}
	return entry.Outputs, true, nil
}

// AwaitOutputs polls the history endpoint until the job's outputs appear or
// the polling deadline elapses. Failed poll attempts count as "not ready
// yet": transient connectivity gaps are ridden out until the timeout, which
// surfaces as a TimeoutError.
func (c *Client) AwaitOutputs(ctx context.Context, jobID string) (map[string]NodeOutput, error) {
	deadline := time.Now().Add(c.pollTimeout)
	for {
		outputs, ready, err := c.History(ctx, jobID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.logger.Debug().Err(err).Str("job_id", jobID).Msg("comfy: history poll attempt failed")
		} else if ready {
			return outputs, nil
		}
		if time.Now().After(deadline) {
			return nil, &TimeoutError{JobID: jobID, Elapsed: c.pollTimeout}
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.pollInterval):
		}
	}
}

// QueueState fetches the remote queue's running and pending entries.
func (c *Client) QueueState(ctx context.Context) (*QueueState, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/queue", nil)
	if err != nil {
		return nil, fmt.Errorf("comfy: build queue request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("comfy: fetch queue: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("comfy: queue status %d", resp.StatusCode)
	}
	var state QueueState
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		return nil, fmt.Errorf("comfy: decode queue: %w", err)
	}
	return &state, nil
}

// Interrupt asks the remote to abort its currently-executing job. It does not
// touch any local await; callers still observe the job's terminal event.
func (c *Client) Interrupt(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/interrupt", nil)
	if err != nil {
		return fmt.Errorf("comfy: build interrupt request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("comfy: interrupt: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("comfy: interrupt status %d", resp.StatusCode)
	}
	return nil
}

// UploadImage pushes a source image to the remote's input storage and returns
// the name the remote filed it under.
func (c *Client) UploadImage(ctx context.Context, filename string, content io.Reader) (*UploadResult, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("image", filename)
	if err != nil {
		return nil, fmt.Errorf("comfy: build upload form: %w", err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return nil, fmt.Errorf("comfy: copy upload content: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("comfy: finish upload form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload/image", &body)
	if err != nil {
		return nil, fmt.Errorf("comfy: build upload request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("comfy: upload image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("comfy: upload status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var result UploadResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("comfy: decode upload response: %w", err)
	}
	if result.Name == "" {
		return nil, fmt.Errorf("comfy: upload response missing name")
	}
	return &result, nil
}

// ViewURL converts an artifact descriptor into a dereferenceable asset URL.
func (c *Client) ViewURL(a Artifact) string {
	query := url.Values{}
	query.Set("filename", a.Filename)
	query.Set("subfolder", a.Subfolder)
	query.Set("type", a.Type)
	return c.baseURL + "/view?" + query.Encode()
}
