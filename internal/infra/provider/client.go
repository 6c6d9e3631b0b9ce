package provider

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

	"github.com/you-humble/genstudio/internal/domain"
)

const maxResponseBytes = 1 << 20

type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	CallbackURL string
	Timeout     time.Duration
}

// Client talks to the generation API. One call per operation, no retries:
// repeated poll ticks from the caller are the retry mechanism.
type Client struct {
	cfg  Config
	http *http.Client
}

func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: timeout},
	}
}

type contentItem struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageRef `json:"image_url,omitempty"`
}

type imageRef struct {
	URL string `json:"url"`
}

type generationParams struct {
	AspectRatio string `json:"aspect_ratio,omitempty"`
	Resolution  string `json:"resolution,omitempty"`
	Seed        *int64 `json:"seed,omitempty"`
	Watermark   *bool  `json:"watermark,omitempty"`
}

type createPayload struct {
	Model       string            `json:"model"`
	Content     []contentItem     `json:"content"`
	Parameters  *generationParams `json:"parameters,omitempty"`
	CallbackURL string            `json:"callback_url,omitempty"`
}

type createResponse struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

// CreateTask submits a generation request and returns the provider-assigned
// task id. Any non-success response, or a success response without an id,
// is a hard failure.
func (c *Client) CreateTask(ctx context.Context, req domain.GenerationRequest) (string, error) {
	content := []contentItem{{Type: "text", Text: req.Prompt}}
	if req.ImageURL != "" {
		content = append(content, contentItem{
			Type:     "image_url",
			ImageURL: &imageRef{URL: req.ImageURL},
		})
	}

	payload := createPayload{
		Model:       c.cfg.Model,
		Content:     content,
		CallbackURL: c.cfg.CallbackURL,
	}
	if p := req.Params; p.AspectRatio != "" || p.Resolution != "" || p.Seed != nil || p.Watermark != nil {
		payload.Parameters = &generationParams{
			AspectRatio: p.AspectRatio,
			Resolution:  p.Resolution,
			Seed:        p.Seed,
			Watermark:   p.Watermark,
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode create payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.cfg.BaseURL+"/contents/generations/tasks",
		bytes.NewReader(body),
	)
	if err != nil {
		return "", fmt.Errorf("build create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("create task request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("read create response: %w", err)
	}

	var out createResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("decode create response (status %d): %w", resp.StatusCode, err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := out.Message
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return "", fmt.Errorf("create task: provider returned %d: %s", resp.StatusCode, msg)
	}

	if out.ID == "" {
		return "", errors.New("create task: provider response has no task id")
	}

	return out.ID, nil
}

type statusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// TaskStatus fetches the provider's view of a task. For succeeded tasks the
// result URL is extracted here, probing the known payload shapes; an empty
// ResultURL on a succeeded status means the payload held no usable URL.
func (c *Client) TaskStatus(ctx context.Context, taskID string) (domain.GenerationStatus, error) {
	httpReq, err := http.NewRequestWithContext(
		ctx,
		http.MethodGet,
		c.cfg.BaseURL+"/contents/generations/tasks/"+taskID,
		nil,
	)
	if err != nil {
		return domain.GenerationStatus{}, fmt.Errorf("build status request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return domain.GenerationStatus{}, fmt.Errorf("task status request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return domain.GenerationStatus{}, fmt.Errorf("read status response: %w", err)
	}

	var out statusResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return domain.GenerationStatus{}, fmt.Errorf("decode status response (status %d): %w", resp.StatusCode, err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := out.Message
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return domain.GenerationStatus{}, fmt.Errorf("task status %s: provider returned %d: %s", taskID, resp.StatusCode, msg)
	}

	st := domain.GenerationStatus{Status: out.Status}
	if st.Succeeded() {
		if url, ok := ResultURL(raw); ok {
			st.ResultURL = url
		}
	}

	return st, nil
}
