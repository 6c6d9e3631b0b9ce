package taskstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/you-humble/genstudio/internal/domain"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "task:"

// redisTaskStore keeps one JSON-encoded task record per key. The record is
// replaced whole on every write; there are no partial updates.
type redisTaskStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisTaskStore(rdb *redis.Client, ttl time.Duration) *redisTaskStore {
	return &redisTaskStore{rdb: rdb, ttl: ttl}
}

func (s *redisTaskStore) Get(ctx context.Context, id string) (domain.Task, bool, error) {
	raw, err := s.rdb.Get(ctx, taskKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return domain.Task{}, false, nil
	}
	if err != nil {
		return domain.Task{}, false, fmt.Errorf("redis get %s: %w", id, err)
	}

	t, err := decodeTask(raw)
	if err != nil {
		return domain.Task{}, false, fmt.Errorf("decode task %s: %w", id, err)
	}

	return t, true, nil
}

func (s *redisTaskStore) Put(ctx context.Context, id string, t domain.Task) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode task %s: %w", id, err)
	}

	if err := s.rdb.Set(ctx, taskKey(id), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", id, err)
	}

	return nil
}

// PutIfStatus replaces the record only while its stored status still equals
// expected. The check-and-write runs under WATCH, so a concurrent writer on
// the same key aborts the transaction instead of racing it.
func (s *redisTaskStore) PutIfStatus(
	ctx context.Context,
	id string,
	t domain.Task,
	expected domain.TaskStatus,
) (bool, error) {
	key := taskKey(id)
	applied := false

	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}

		cur, err := decodeTask(raw)
		if err != nil {
			return fmt.Errorf("decode task %s: %w", id, err)
		}
		if cur.Status != expected {
			return nil
		}

		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("encode task %s: %w", id, err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.ttl)
			return nil
		})
		if err == nil {
			applied = true
		}
		return err
	}

	err := s.rdb.Watch(ctx, txf, key)
	if errors.Is(err, redis.TxFailedErr) {
		// a concurrent writer got there first
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis conditional set %s: %w", id, err)
	}

	return applied, nil
}

// GetMany bulk-fetches records by id. Absent or undecodable values are
// skipped: the store may expire keys on its own, and a record that cannot be
// decoded should not take the whole listing down with it.
func (s *redisTaskStore) GetMany(ctx context.Context, ids []string) ([]domain.Task, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = taskKey(id)
	}

	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget: %w", err)
	}

	tasks := make([]domain.Task, 0, len(vals))
	for i, v := range vals {
		if v == nil {
			continue
		}
		raw, ok := v.(string)
		if !ok {
			continue
		}
		t, err := decodeTask(raw)
		if err != nil {
			slog.Warn("skip undecodable task record",
				slog.String("task_id", ids[i]),
				slog.String("error", err.Error()),
			)
			continue
		}
		tasks = append(tasks, t)
	}

	return tasks, nil
}

// Keys enumerates all stored task ids. SCAN instead of KEYS: the listing is
// linear either way, but SCAN does not block the server.
func (s *redisTaskStore) Keys(ctx context.Context) ([]string, error) {
	var ids []string

	iter := s.rdb.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		ids = append(ids, strings.TrimPrefix(iter.Val(), keyPrefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan: %w", err)
	}

	return ids, nil
}

// decodeTask accepts either a plain JSON object or a legacy double-encoded
// value (a JSON string whose content is the record) left behind by clients
// that pre-serialized before writing.
func decodeTask(raw string) (domain.Task, error) {
	var t domain.Task
	if err := json.Unmarshal([]byte(raw), &t); err == nil {
		return t, nil
	}

	var nested string
	if err := json.Unmarshal([]byte(raw), &nested); err != nil {
		return domain.Task{}, errors.New("value is not a task record")
	}
	if err := json.Unmarshal([]byte(nested), &t); err != nil {
		return domain.Task{}, fmt.Errorf("decode nested record: %w", err)
	}

	return t, nil
}

func taskKey(id string) string {
	return keyPrefix + id
}
