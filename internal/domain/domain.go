package domain

import (
	"errors"
	"io"
	"time"
)

type TaskStatus string

const (
	StatusProcessing TaskStatus = "processing"
	StatusComplete   TaskStatus = "complete"
	StatusFailed     TaskStatus = "failed"

	// StatusNotFound is reported when the store no longer holds the record.
	// It is never persisted.
	StatusNotFound TaskStatus = "not_found"
)

func (s TaskStatus) Terminal() bool {
	return s == StatusComplete || s == StatusFailed
}

// Task is the persisted record of one generation request, keyed by the
// provider-assigned task id.
type Task struct {
	TaskID        string     `json:"taskId"`
	Prompt        string     `json:"prompt"`
	InputImageURL string     `json:"inputImageUrl,omitempty"`
	Status        TaskStatus `json:"status"`
	CreatedAt     time.Time  `json:"createdAt"`
	CompletedAt   *time.Time `json:"completedAt,omitempty"`
	ResultURL     string     `json:"resultUrl,omitempty"`
}

type GenerationParams struct {
	AspectRatio string
	Resolution  string
	Seed        *int64
	Watermark   *bool
}

type SubmitParams struct {
	Prompt string

	// ImageURL references an already-hosted conditioning image. Image, if
	// set, is an uploaded file to be stored first; it takes precedence.
	ImageURL      string
	Image         io.Reader
	ImageFilename string
	ImageSize     int64

	Params GenerationParams
}

// GenerationRequest is what actually goes to the provider after the
// conditioning image (if any) has been placed at a fetchable URL.
type GenerationRequest struct {
	Prompt   string
	ImageURL string
	Params   GenerationParams
}

// GenerationStatus is the provider's view of a task. Status carries the
// provider-native value; ResultURL is already extracted from whatever shape
// the provider returned, empty when no usable URL was present.
type GenerationStatus struct {
	Status    string
	ResultURL string
}

const (
	providerSucceeded = "succeeded"
	providerFailed    = "failed"
)

func (g GenerationStatus) Succeeded() bool { return g.Status == providerSucceeded }

func (g GenerationStatus) Failed() bool { return g.Status == providerFailed }

func (g GenerationStatus) Terminal() bool { return g.Succeeded() || g.Failed() }

type SubmitResponse struct {
	TaskID string `json:"taskId"`
}

type StatusResponse struct {
	TaskID    string     `json:"taskId"`
	Status    TaskStatus `json:"status"`
	ResultURL string     `json:"resultUrl,omitempty"`
}

// WebhookEvent is the provider's completion push. The payload is loosely
// specified on the provider side, so every field is optional.
type WebhookEvent struct {
	TaskID    string            `json:"taskId"`
	EventData *WebhookEventData `json:"eventData"`
}

type WebhookEventData struct {
	Code int             `json:"code"`
	Data []WebhookResult `json:"data"`
}

type WebhookResult struct {
	VideoURL string `json:"videoUrl"`
}

type WebhookAck struct {
	Success bool `json:"success"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

var (
	ErrTaskNotFound     = errors.New("task not found")
	ErrPromptRequired   = errors.New("prompt is required")
	ErrTaskIDRequired   = errors.New("task id is required")
	ErrUnsupportedImage = errors.New("unsupported image type")
)
