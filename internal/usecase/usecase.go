package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/you-humble/genstudio/internal/domain"
)

type TaskRepository interface {
	Get(ctx context.Context, id string) (domain.Task, bool, error)
	Put(ctx context.Context, id string, t domain.Task) error
	PutIfStatus(ctx context.Context, id string, t domain.Task, expected domain.TaskStatus) (bool, error)
	GetMany(ctx context.Context, ids []string) ([]domain.Task, error)
	Keys(ctx context.Context) ([]string, error)
}

type Generator interface {
	CreateTask(ctx context.Context, req domain.GenerationRequest) (string, error)
	TaskStatus(ctx context.Context, taskID string) (domain.GenerationStatus, error)
}

type ImageStore interface {
	SaveImage(ctx context.Context, reader io.Reader, filename string, size int64) (string, error)
}

type EventPublisher interface {
	TaskCompleted(ctx context.Context, t domain.Task) error
}

type usecase struct {
	repo   TaskRepository
	gen    Generator
	images ImageStore
	events EventPublisher
	now    func() time.Time
}

func New(
	repo TaskRepository,
	gen Generator,
	images ImageStore,
	events EventPublisher,
) *usecase {
	return &usecase{
		repo:   repo,
		gen:    gen,
		images: images,
		events: events,
		now:    time.Now,
	}
}

// Submit places the conditioning image (if any) at a fetchable URL, creates
// the provider task, and writes the initial record. A provider failure
// leaves the store untouched.
func (uc *usecase) Submit(ctx context.Context, p domain.SubmitParams) (string, error) {
	prompt := strings.TrimSpace(p.Prompt)
	if prompt == "" {
		return "", domain.ErrPromptRequired
	}

	imageURL := p.ImageURL
	if p.Image != nil {
		ext := strings.ToLower(filepath.Ext(p.ImageFilename))
		switch ext {
		case ".png", ".jpg", ".jpeg", ".webp":
		default:
			return "", fmt.Errorf("%w: %q", domain.ErrUnsupportedImage, ext)
		}

		url, err := uc.images.SaveImage(ctx, p.Image, p.ImageFilename, p.ImageSize)
		if err != nil {
			return "", fmt.Errorf("save conditioning image: %w", err)
		}
		imageURL = url
	}

	taskID, err := uc.gen.CreateTask(ctx, domain.GenerationRequest{
		Prompt:   prompt,
		ImageURL: imageURL,
		Params:   p.Params,
	})
	if err != nil {
		return "", fmt.Errorf("create generation task: %w", err)
	}

	t := domain.Task{
		TaskID:        taskID,
		Prompt:        prompt,
		InputImageURL: imageURL,
		Status:        domain.StatusProcessing,
		CreatedAt:     uc.now().UTC(),
	}
	if err := uc.repo.Put(ctx, taskID, t); err != nil {
		return "", fmt.Errorf("store task %s: %w", taskID, err)
	}

	return taskID, nil
}

// CheckStatus polls the provider and, on a terminal provider status, applies
// the one-time terminal update to the stored record. A provider error leaves
// the record untouched; the next poll tick retries from unchanged state.
func (uc *usecase) CheckStatus(ctx context.Context, taskID string) (domain.StatusResponse, error) {
	if strings.TrimSpace(taskID) == "" {
		return domain.StatusResponse{}, domain.ErrTaskIDRequired
	}

	st, err := uc.gen.TaskStatus(ctx, taskID)
	if err != nil {
		return domain.StatusResponse{}, fmt.Errorf("query provider: %w", err)
	}

	if !st.Terminal() {
		return domain.StatusResponse{TaskID: taskID, Status: domain.StatusProcessing}, nil
	}

	return uc.applyTerminal(ctx, taskID, st.Succeeded(), st.ResultURL)
}

// HandleWebhook applies a provider completion push. Errors are returned for
// logging only; the transport layer ACKs regardless, since the provider
// retransmits on anything else.
func (uc *usecase) HandleWebhook(ctx context.Context, ev domain.WebhookEvent) error {
	if ev.TaskID == "" {
		return errors.New("webhook payload has no task id")
	}

	var (
		succeeded bool
		resultURL string
	)
	if ev.EventData != nil && ev.EventData.Code == 0 && len(ev.EventData.Data) > 0 {
		succeeded = true
		resultURL = ev.EventData.Data[0].VideoURL
	}

	_, err := uc.applyTerminal(ctx, ev.TaskID, succeeded, resultURL)
	if errors.Is(err, domain.ErrTaskNotFound) {
		slog.Warn("webhook for unknown task", slog.String("task_id", ev.TaskID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("webhook for %s: %w", ev.TaskID, err)
	}

	return nil
}

// History lists every known record, newest first. Entries that vanished or
// fail to decode are dropped by the repository.
func (uc *usecase) History(ctx context.Context) ([]domain.Task, error) {
	ids, err := uc.repo.Keys(ctx)
	if err != nil {
		return nil, fmt.Errorf("list task keys: %w", err)
	}
	if len(ids) == 0 {
		return []domain.Task{}, nil
	}

	tasks, err := uc.repo.GetMany(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load tasks: %w", err)
	}

	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
	})

	return tasks, nil
}

// applyTerminal is the shared tail of both reconciliation paths. A record
// that is already terminal is never rewritten; the conditional put closes
// the window between the check and the write.
func (uc *usecase) applyTerminal(
	ctx context.Context,
	taskID string,
	succeeded bool,
	resultURL string,
) (domain.StatusResponse, error) {
	t, ok, err := uc.repo.Get(ctx, taskID)
	if err != nil {
		return domain.StatusResponse{}, fmt.Errorf("load task %s: %w", taskID, err)
	}
	if !ok {
		// the store expires records independently of the provider
		return domain.StatusResponse{}, domain.ErrTaskNotFound
	}

	if t.Status.Terminal() {
		return statusOf(t), nil
	}

	if succeeded && resultURL != "" {
		t.Status = domain.StatusComplete
		t.ResultURL = resultURL
	} else {
		if succeeded {
			slog.Error("provider reported success without a result url",
				slog.String("task_id", taskID),
			)
		}
		t.Status = domain.StatusFailed
		t.ResultURL = ""
	}
	completedAt := uc.now().UTC()
	t.CompletedAt = &completedAt

	applied, err := uc.repo.PutIfStatus(ctx, taskID, t, domain.StatusProcessing)
	if err != nil {
		return domain.StatusResponse{}, fmt.Errorf("store task %s: %w", taskID, err)
	}
	if !applied {
		// lost the race to a concurrent poll or webhook; stored state wins
		cur, ok, err := uc.repo.Get(ctx, taskID)
		if err == nil && ok {
			return statusOf(cur), nil
		}
		return domain.StatusResponse{}, domain.ErrTaskNotFound
	}

	if err := uc.events.TaskCompleted(ctx, t); err != nil {
		slog.Warn("publish completion event",
			slog.String("task_id", taskID),
			slog.String("error", err.Error()),
		)
	}

	return statusOf(t), nil
}

func statusOf(t domain.Task) domain.StatusResponse {
	return domain.StatusResponse{
		TaskID:    t.TaskID,
		Status:    t.Status,
		ResultURL: t.ResultURL,
	}
}
