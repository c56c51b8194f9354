package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/NicoNav/igsaw-puzzle-app/internal/infra"
)

// Options configures the vision/language service client.
type Options struct {
	BaseURL    string
	Model      string
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// Client performs HTTP calls against an Ollama-compatible chat API. The
// client is an immutable value: reconfiguring the model produces a new client
// via WithModel instead of mutating one shared by in-flight requests.
type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *infra.Logger
}

// Message is one chat turn. Images carries base64-encoded attachments.
type Message struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

// Model describes one model the remote advertises.
type Model struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

type chatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
}

type chatResponse struct {
	Message Message `json:"message"`
}

type tagsResponse struct {
	Models []Model `json:"models"`
}

// NewClient constructs a client with sane defaults and injected dependencies.
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 120 * time.Second}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "http://127.0.0.1:11434"
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = "llava"
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
		baseURL:    baseURL,
		model:      model,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Model returns the configured model identifier.
func (c *Client) Model() string {
	return c.model
}

// WithModel returns a copy of the client bound to another model. The receiver
// is unchanged, so requests already in flight keep their model.
func (c *Client) WithModel(model string) *Client {
	model = strings.TrimSpace(model)
	if model == "" || model == c.model {
		return c
	}
	clone := *c
	clone.model = model
	return &clone
}

// Chat performs one non-streaming chat call and returns the reply message.
func (c *Client) Chat(ctx context.Context, messages []Message) (Message, error) {
	if len(messages) == 0 {
		return Message{}, errors.New("vision: at least one message is required")
	}
	payload := chatRequest{Model: c.model, Messages: messages, Stream: false}
	body, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("vision: encode chat request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return Message{}, fmt.Errorf("vision: build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Message{}, fmt.Errorf("vision: chat request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Message{}, fmt.Errorf("vision: read chat response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return Message{}, fmt.Errorf("vision: chat status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var decoded chatResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return Message{}, fmt.Errorf("vision: decode chat response: %w", err)
	}
	c.logger.Debug().
		Str("model", c.model).
		Int("reply_bytes", len(decoded.Message.Content)).
		Msg("vision: chat completed")
	return decoded.Message, nil
}

// AnalyzeImage sends one image with an instruction prompt and returns the
// model's description.
func (c *Client) AnalyzeImage(ctx context.Context, prompt string, imageData []byte) (string, error) {
	if len(imageData) == 0 {
		return "", errors.New("vision: image data is required")
	}
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", errors.New("vision: prompt is required")
	}
	reply, err := c.Chat(ctx, []Message{{
		Role:    "user",
		Content: prompt,
		Images:  []string{base64.StdEncoding.EncodeToString(imageData)},
	}})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(reply.Content), nil
}

// ListModels fetches the models the remote advertises.
func (c *Client) ListModels(ctx context.Context) ([]Model, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("vision: build tags request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("vision: fetch tags: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("vision: tags status %d", resp.StatusCode)
	}
	var decoded tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("vision: decode tags: %w", err)
	}
	return decoded.Models, nil
}
