package taskstore

import (
	"testing"
	"time"

	"github.com/you-humble/genstudio/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeTask(t *testing.T) {
	t.Parallel()

	record := `{"taskId":"T1","prompt":"a cat","status":"complete",` +
		`"createdAt":"2026-08-30T10:00:00Z","completedAt":"2026-08-30T10:05:00Z",` +
		`"resultUrl":"https://x/r.mp4"}`

	t.Run("plain JSON object", func(t *testing.T) {
		got, err := decodeTask(record)
		require.NoError(t, err)
		assert.Equal(t, "T1", got.TaskID)
		assert.Equal(t, domain.StatusComplete, got.Status)
		assert.Equal(t, "https://x/r.mp4", got.ResultURL)
		assert.Equal(t, time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC), got.CreatedAt)
		require.NotNil(t, got.CompletedAt)
	})

	t.Run("legacy double-encoded value", func(t *testing.T) {
		doubled := `"{\"taskId\":\"T1\",\"prompt\":\"a cat\",\"status\":\"processing\",` +
			`\"createdAt\":\"2026-08-30T10:00:00Z\"}"`

		got, err := decodeTask(doubled)
		require.NoError(t, err)
		assert.Equal(t, "T1", got.TaskID)
		assert.Equal(t, domain.StatusProcessing, got.Status)
		assert.Nil(t, got.CompletedAt)
	})

	t.Run("double-encoded garbage", func(t *testing.T) {
		_, err := decodeTask(`"not a record"`)
		assert.Error(t, err)
	})

	t.Run("not json", func(t *testing.T) {
		_, err := decodeTask(`OK`)
		assert.Error(t, err)
	})
}
