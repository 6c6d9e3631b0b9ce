package usecase

import (
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/you-humble/genstudio/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memRepo is an in-memory TaskRepository with the same conditional-write
// semantics as the Redis store.
type memRepo struct {
	tasks    map[string]domain.Task
	condPuts int
}

func newMemRepo() *memRepo {
	return &memRepo{tasks: make(map[string]domain.Task)}
}

func (r *memRepo) Get(ctx context.Context, id string) (domain.Task, bool, error) {
	t, ok := r.tasks[id]
	return t, ok, nil
}

func (r *memRepo) Put(ctx context.Context, id string, t domain.Task) error {
	r.tasks[id] = t
	return nil
}

func (r *memRepo) PutIfStatus(ctx context.Context, id string, t domain.Task, expected domain.TaskStatus) (bool, error) {
	cur, ok := r.tasks[id]
	if !ok || cur.Status != expected {
		return false, nil
	}
	r.condPuts++
	r.tasks[id] = t
	return true, nil
}

func (r *memRepo) GetMany(ctx context.Context, ids []string) ([]domain.Task, error) {
	out := make([]domain.Task, 0, len(ids))
	for _, id := range ids {
		if t, ok := r.tasks[id]; ok {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *memRepo) Keys(ctx context.Context) ([]string, error) {
	ids := make([]string, 0, len(r.tasks))
	for id := range r.tasks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

type fakeGenerator struct {
	createID    string
	createErr   error
	lastRequest domain.GenerationRequest

	status    domain.GenerationStatus
	statusErr error
}

func (g *fakeGenerator) CreateTask(ctx context.Context, req domain.GenerationRequest) (string, error) {
	g.lastRequest = req
	return g.createID, g.createErr
}

func (g *fakeGenerator) TaskStatus(ctx context.Context, taskID string) (domain.GenerationStatus, error) {
	return g.status, g.statusErr
}

type fakeImages struct {
	url string
	err error
}

func (s *fakeImages) SaveImage(ctx context.Context, r io.Reader, filename string, size int64) (string, error) {
	return s.url, s.err
}

type fakeEvents struct {
	published []domain.Task
	err       error
}

func (e *fakeEvents) TaskCompleted(ctx context.Context, t domain.Task) error {
	e.published = append(e.published, t)
	return e.err
}

func fixture() (*usecase, *memRepo, *fakeGenerator, *fakeImages, *fakeEvents) {
	repo := newMemRepo()
	gen := &fakeGenerator{createID: "T1"}
	images := &fakeImages{url: "https://blobs/img.png"}
	events := &fakeEvents{}

	uc := New(repo, gen, images, events)
	uc.now = func() time.Time { return time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC) }

	return uc, repo, gen, images, events
}

func TestSubmit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("text-only submission writes a processing record", func(t *testing.T) {
		uc, repo, _, _, _ := fixture()

		taskID, err := uc.Submit(ctx, domain.SubmitParams{Prompt: "a cat"})
		require.NoError(t, err)
		assert.Equal(t, "T1", taskID)

		rec, ok, err := repo.Get(ctx, "T1")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "a cat", rec.Prompt)
		assert.Equal(t, domain.StatusProcessing, rec.Status)
		assert.Empty(t, rec.ResultURL)
		assert.Empty(t, rec.InputImageURL)
		assert.Nil(t, rec.CompletedAt)
		assert.False(t, rec.CreatedAt.IsZero())
	})

	t.Run("empty prompt is rejected with no side effects", func(t *testing.T) {
		uc, repo, _, _, _ := fixture()

		_, err := uc.Submit(ctx, domain.SubmitParams{Prompt: "   "})
		assert.ErrorIs(t, err, domain.ErrPromptRequired)
		assert.Empty(t, repo.tasks)
	})

	t.Run("uploaded image is stored and its url embedded", func(t *testing.T) {
		uc, repo, gen, _, _ := fixture()

		_, err := uc.Submit(ctx, domain.SubmitParams{
			Prompt:        "a cat",
			Image:         strings.NewReader("png-bytes"),
			ImageFilename: "cat.png",
			ImageSize:     9,
		})
		require.NoError(t, err)
		assert.Equal(t, "https://blobs/img.png", gen.lastRequest.ImageURL)

		rec, _, _ := repo.Get(ctx, "T1")
		assert.Equal(t, "https://blobs/img.png", rec.InputImageURL)
	})

	t.Run("unsupported image extension is rejected", func(t *testing.T) {
		uc, repo, _, _, _ := fixture()

		_, err := uc.Submit(ctx, domain.SubmitParams{
			Prompt:        "a cat",
			Image:         strings.NewReader("bytes"),
			ImageFilename: "cat.exe",
		})
		assert.ErrorIs(t, err, domain.ErrUnsupportedImage)
		assert.Empty(t, repo.tasks)
	})

	t.Run("provider failure leaves the store untouched", func(t *testing.T) {
		uc, repo, gen, _, _ := fixture()
		gen.createErr = errors.New("provider down")

		_, err := uc.Submit(ctx, domain.SubmitParams{Prompt: "a cat"})
		assert.Error(t, err)
		assert.Empty(t, repo.tasks)
	})
}

func processingTask(id string) domain.Task {
	return domain.Task{
		TaskID:    id,
		Prompt:    "a cat",
		Status:    domain.StatusProcessing,
		CreatedAt: time.Date(2026, 8, 30, 11, 0, 0, 0, time.UTC),
	}
}

func TestCheckStatus(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("empty task id is rejected", func(t *testing.T) {
		uc, _, _, _, _ := fixture()
		_, err := uc.CheckStatus(ctx, "  ")
		assert.ErrorIs(t, err, domain.ErrTaskIDRequired)
	})

	t.Run("pending provider status mutates nothing", func(t *testing.T) {
		uc, repo, gen, _, _ := fixture()
		repo.tasks["T1"] = processingTask("T1")
		gen.status = domain.GenerationStatus{Status: "running"}

		resp, err := uc.CheckStatus(ctx, "T1")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusProcessing, resp.Status)
		assert.Equal(t, 0, repo.condPuts)
		assert.Equal(t, domain.StatusProcessing, repo.tasks["T1"].Status)
	})

	t.Run("succeeded with result url completes the record", func(t *testing.T) {
		uc, repo, gen, _, events := fixture()
		repo.tasks["T1"] = processingTask("T1")
		gen.status = domain.GenerationStatus{Status: "succeeded", ResultURL: "https://x/r.mp4"}

		resp, err := uc.CheckStatus(ctx, "T1")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusComplete, resp.Status)
		assert.Equal(t, "https://x/r.mp4", resp.ResultURL)

		rec := repo.tasks["T1"]
		assert.Equal(t, domain.StatusComplete, rec.Status)
		assert.Equal(t, "https://x/r.mp4", rec.ResultURL)
		require.NotNil(t, rec.CompletedAt)
		require.Len(t, events.published, 1)
	})

	t.Run("second poll after completion is a no-op", func(t *testing.T) {
		uc, repo, gen, _, events := fixture()
		repo.tasks["T1"] = processingTask("T1")
		gen.status = domain.GenerationStatus{Status: "succeeded", ResultURL: "https://x/r.mp4"}

		first, err := uc.CheckStatus(ctx, "T1")
		require.NoError(t, err)
		completedAt := *repo.tasks["T1"].CompletedAt

		second, err := uc.CheckStatus(ctx, "T1")
		require.NoError(t, err)
		assert.Equal(t, first, second)
		assert.Equal(t, 1, repo.condPuts)
		assert.Equal(t, completedAt, *repo.tasks["T1"].CompletedAt)
		assert.Len(t, events.published, 1)
	})

	t.Run("succeeded without extractable url fails the task", func(t *testing.T) {
		uc, repo, gen, _, _ := fixture()
		repo.tasks["T2"] = processingTask("T2")
		gen.status = domain.GenerationStatus{Status: "succeeded"}

		resp, err := uc.CheckStatus(ctx, "T2")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusFailed, resp.Status)

		rec := repo.tasks["T2"]
		assert.Equal(t, domain.StatusFailed, rec.Status)
		assert.Empty(t, rec.ResultURL)
		require.NotNil(t, rec.CompletedAt)
	})

	t.Run("provider failed marks the task failed without result url", func(t *testing.T) {
		uc, repo, gen, _, _ := fixture()
		repo.tasks["T1"] = processingTask("T1")
		gen.status = domain.GenerationStatus{Status: "failed"}

		resp, err := uc.CheckStatus(ctx, "T1")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusFailed, resp.Status)
		assert.Empty(t, repo.tasks["T1"].ResultURL)
	})

	t.Run("terminal provider status for a missing record is not found", func(t *testing.T) {
		uc, _, gen, _, _ := fixture()
		gen.status = domain.GenerationStatus{Status: "succeeded", ResultURL: "https://x/r.mp4"}

		_, err := uc.CheckStatus(ctx, "gone")
		assert.ErrorIs(t, err, domain.ErrTaskNotFound)
	})

	t.Run("provider error leaves the record untouched", func(t *testing.T) {
		uc, repo, gen, _, _ := fixture()
		repo.tasks["T1"] = processingTask("T1")
		gen.statusErr = errors.New("502 from provider")

		_, err := uc.CheckStatus(ctx, "T1")
		assert.Error(t, err)
		assert.Equal(t, domain.StatusProcessing, repo.tasks["T1"].Status)
	})

	t.Run("terminal record never moves back to processing", func(t *testing.T) {
		uc, repo, gen, _, _ := fixture()
		repo.tasks["T1"] = processingTask("T1")
		gen.status = domain.GenerationStatus{Status: "failed"}

		_, err := uc.CheckStatus(ctx, "T1")
		require.NoError(t, err)

		gen.status = domain.GenerationStatus{Status: "succeeded", ResultURL: "https://x/late.mp4"}
		resp, err := uc.CheckStatus(ctx, "T1")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusFailed, resp.Status)
		assert.Empty(t, repo.tasks["T1"].ResultURL)
	})
}

func TestHandleWebhook(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("successful payload completes the record", func(t *testing.T) {
		uc, repo, _, _, events := fixture()
		repo.tasks["T1"] = processingTask("T1")

		err := uc.HandleWebhook(ctx, domain.WebhookEvent{
			TaskID: "T1",
			EventData: &domain.WebhookEventData{
				Code: 0,
				Data: []domain.WebhookResult{{VideoURL: "https://x/r.mp4"}},
			},
		})
		require.NoError(t, err)

		rec := repo.tasks["T1"]
		assert.Equal(t, domain.StatusComplete, rec.Status)
		assert.Equal(t, "https://x/r.mp4", rec.ResultURL)
		assert.Len(t, events.published, 1)
	})

	t.Run("failure payload marks the record failed", func(t *testing.T) {
		uc, repo, _, _, _ := fixture()
		repo.tasks["T1"] = processingTask("T1")

		err := uc.HandleWebhook(ctx, domain.WebhookEvent{
			TaskID:    "T1",
			EventData: &domain.WebhookEventData{Code: 13},
		})
		require.NoError(t, err)
		assert.Equal(t, domain.StatusFailed, repo.tasks["T1"].Status)
	})

	t.Run("unknown task is absorbed without a write", func(t *testing.T) {
		uc, repo, _, _, events := fixture()

		err := uc.HandleWebhook(ctx, domain.WebhookEvent{
			TaskID:    "T9",
			EventData: &domain.WebhookEventData{Code: 0, Data: []domain.WebhookResult{{VideoURL: "https://x/r.mp4"}}},
		})
		require.NoError(t, err)
		assert.Empty(t, repo.tasks)
		assert.Empty(t, events.published)
	})

	t.Run("missing task id surfaces for logging", func(t *testing.T) {
		uc, _, _, _, _ := fixture()
		err := uc.HandleWebhook(ctx, domain.WebhookEvent{})
		assert.Error(t, err)
	})

	t.Run("webhook after poll does not rewrite the record", func(t *testing.T) {
		uc, repo, gen, _, _ := fixture()
		repo.tasks["T1"] = processingTask("T1")
		gen.status = domain.GenerationStatus{Status: "succeeded", ResultURL: "https://x/first.mp4"}

		_, err := uc.CheckStatus(ctx, "T1")
		require.NoError(t, err)

		err = uc.HandleWebhook(ctx, domain.WebhookEvent{
			TaskID: "T1",
			EventData: &domain.WebhookEventData{
				Code: 0,
				Data: []domain.WebhookResult{{VideoURL: "https://x/second.mp4"}},
			},
		})
		require.NoError(t, err)
		assert.Equal(t, "https://x/first.mp4", repo.tasks["T1"].ResultURL)
		assert.Equal(t, 1, repo.condPuts)
	})
}

func TestHistory(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	uc, repo, _, _, _ := fixture()

	base := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	for i, id := range []string{"A", "B", "C"} {
		repo.tasks[id] = domain.Task{
			TaskID:    id,
			Prompt:    "p" + id,
			Status:    domain.StatusProcessing,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
	}

	tasks, err := uc.History(ctx)
	require.NoError(t, err)
	require.Len(t, tasks, 3)
	assert.Equal(t, "C", tasks[0].TaskID)
	assert.Equal(t, "B", tasks[1].TaskID)
	assert.Equal(t, "A", tasks[2].TaskID)
}

func TestHistoryEmpty(t *testing.T) {
	t.Parallel()

	uc, _, _, _, _ := fixture()
	tasks, err := uc.History(context.Background())
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

// Invariant sweep: after arbitrary reconciliation sequences, complete records
// have a result URL and terminal records have a completion time.
func TestRecordInvariants(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	uc, repo, gen, _, _ := fixture()
	for _, id := range []string{"ok", "noresult", "fail", "pending"} {
		repo.tasks[id] = processingTask(id)
	}

	gen.status = domain.GenerationStatus{Status: "succeeded", ResultURL: "https://x/r.mp4"}
	_, err := uc.CheckStatus(ctx, "ok")
	require.NoError(t, err)

	gen.status = domain.GenerationStatus{Status: "succeeded"}
	_, err = uc.CheckStatus(ctx, "noresult")
	require.NoError(t, err)

	gen.status = domain.GenerationStatus{Status: "failed"}
	_, err = uc.CheckStatus(ctx, "fail")
	require.NoError(t, err)

	gen.status = domain.GenerationStatus{Status: "queued"}
	_, err = uc.CheckStatus(ctx, "pending")
	require.NoError(t, err)

	for id, rec := range repo.tasks {
		if rec.Status == domain.StatusComplete {
			assert.NotEmpty(t, rec.ResultURL, "complete record %s must carry a result url", id)
		} else {
			assert.Empty(t, rec.ResultURL, "non-complete record %s must not carry a result url", id)
		}
		if rec.Status.Terminal() {
			assert.NotNil(t, rec.CompletedAt, "terminal record %s must carry completedAt", id)
		} else {
			assert.Nil(t, rec.CompletedAt, "non-terminal record %s must not carry completedAt", id)
		}
	}
}
