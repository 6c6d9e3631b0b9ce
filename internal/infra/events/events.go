package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/you-humble/genstudio/internal/domain"

	"github.com/nats-io/nats.go"
)

// publisher pushes terminal task transitions onto a JetStream subject so
// out-of-process consumers (notifiers, alerting) can react without polling
// the store.
type publisher struct {
	js      nats.JetStreamContext
	subject string
}

func New(js nats.JetStreamContext, subject string) *publisher {
	return &publisher{
		js:      js,
		subject: subject,
	}
}

type completedEvent struct {
	TaskID      string     `json:"taskId"`
	Status      string     `json:"status"`
	ResultURL   string     `json:"resultUrl,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

func (p *publisher) TaskCompleted(ctx context.Context, t domain.Task) error {
	if t.TaskID == "" {
		return fmt.Errorf("empty taskID")
	}

	data, err := json.Marshal(completedEvent{
		TaskID:      t.TaskID,
		Status:      string(t.Status),
		ResultURL:   t.ResultURL,
		CompletedAt: t.CompletedAt,
	})
	if err != nil {
		return fmt.Errorf("encode completion event: %w", err)
	}

	msg := &nats.Msg{
		Subject: p.subject,
		Data:    data,
		Header:  nats.Header{},
	}

	ack, err := p.js.PublishMsg(msg, nats.Context(ctx))
	if err != nil {
		return fmt.Errorf("publish completion of %s: %w", t.TaskID, err)
	}

	slog.Debug("completion event published",
		slog.String("task_id", t.TaskID),
		slog.String("subject", p.subject),
		slog.String("stream", ack.Stream),
		slog.Uint64("seq", ack.Sequence),
	)

	return nil
}
