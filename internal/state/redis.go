package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"forum/crawler/internal/domain"
	"forum/crawler/internal/domain/task"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const (
	recordsKey   = "forum:resume:records"
	failedStream = "forum:stream:failed"
)

type redisStore struct {
	redisClient *redis.Client
	now         func() time.Time
}

// RedisStore keeps records in one hash keyed by fingerprint. Failed units are
// also appended to a stream so they can be inspected or replayed later.
type RedisStore interface {
	ResumeStore
	FailureRecorder
	FailedUnits(ctx context.Context) ([]task.Task, error)
}

func NewRedisStore(redisClient *redis.Client) RedisStore {
	return &redisStore{
		redisClient: redisClient,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *redisStore) IsDone(ctx context.Context, fingerprint string) (bool, error) {
	rec, ok, err := s.get(ctx, fingerprint)
	if err != nil || !ok {
		return false, err
	}
	return rec.Status == domain.StatusDone, nil
}

func (s *redisStore) MarkPending(ctx context.Context, fingerprint string) error {
	_, err := s.apply(ctx, fingerprint, domain.StatusPending, "")
	return err
}

func (s *redisStore) MarkDone(ctx context.Context, fingerprint string) error {
	_, err := s.apply(ctx, fingerprint, domain.StatusDone, "")
	return err
}

func (s *redisStore) MarkFailed(ctx context.Context, fingerprint, reason string) error {
	_, err := s.apply(ctx, fingerprint, domain.StatusFailed, reason)
	return err
}

// RecordFailure appends the failed unit to the failure stream.
func (s *redisStore) RecordFailure(ctx context.Context, unit task.Task, reason string) error {
	taskValue, err := unit.TaskValue()
	if err != nil {
		return fmt.Errorf("failed to serialize task: %w", err)
	}

	// Fields: task_type, task_data
	messageID, err := s.redisClient.XAdd(ctx, &redis.XAddArgs{
		Stream: failedStream,
		Values: map[string]interface{}{
			"task_type":   unit.TaskType(),
			"task_data":   string(taskValue),
			"fingerprint": unit.Fingerprint(),
			"reason":      reason,
		},
	}).Result()
	if err != nil {
		return fmt.Errorf("failed to add task to Redis stream %s: %w", failedStream, err)
	}

	log.Debugf("Added failed %s to stream %s with message ID: %s", unit.TaskType(), failedStream, messageID)
	return nil
}

// FailedUnits reads back the units recorded by RecordFailure, oldest first.
func (s *redisStore) FailedUnits(ctx context.Context) ([]task.Task, error) {
	messages, err := s.redisClient.XRange(ctx, failedStream, "-", "+").Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read stream %s: %w", failedStream, err)
	}

	units := make([]task.Task, 0, len(messages))
	for _, msg := range messages {
		taskType, ok := msg.Values["task_type"].(string)
		if !ok {
			return nil, fmt.Errorf("invalid task type in message %s", msg.ID)
		}
		taskData, ok := msg.Values["task_data"].(string)
		if !ok {
			return nil, fmt.Errorf("invalid task data in message %s", msg.ID)
		}

		unit, err := task.Decode(taskType, []byte(taskData))
		if err != nil {
			return nil, fmt.Errorf("message %s: %w", msg.ID, err)
		}
		units = append(units, unit)
	}
	return units, nil
}

// applyScript sets one field of the records hash unless the stored record is
// done or already carries the same status and reason. Unreadable records are
// overwritten. Returns 1 when the field was written.
var applyScript = redis.NewScript(`
local current = redis.call("HGET", KEYS[1], ARGV[1])
if current then
	local ok, rec = pcall(cjson.decode, current)
	if ok and type(rec) == "table" then
		local reason = rec["reason"]
		if type(reason) ~= "string" then
			reason = ""
		end
		if rec["status"] == "done" then
			return 0
		end
		if rec["status"] == ARGV[2] and reason == ARGV[3] then
			return 0
		end
	end
end
redis.call("HSET", KEYS[1], ARGV[1], ARGV[4])
return 1
`)

// apply returns the stored record, or nil when the transition was a no-op.
// The check and the write run as one script on the record's own field, so
// concurrent marks on other fingerprints never conflict and a stale
// MarkFailed cannot overwrite a done record.
func (s *redisStore) apply(ctx context.Context, fingerprint string, status domain.ResumeStatus, reason string) (*domain.ResumeRecord, error) {
	next, _ := domain.ResumeRecord{Fingerprint: fingerprint}.Apply(status, reason, s.now())
	data, err := json.Marshal(next)
	if err != nil {
		return nil, fmt.Errorf("failed to encode resume record %s: %w", fingerprint, err)
	}

	written, err := applyScript.Run(ctx, s.redisClient, []string{recordsKey},
		fingerprint, status.String(), reason, string(data)).Int()
	if err != nil {
		return nil, fmt.Errorf("failed to set %s for %s: %w", status, fingerprint, err)
	}
	if written == 0 {
		return nil, nil
	}
	return &next, nil
}

func (s *redisStore) get(ctx context.Context, fingerprint string) (domain.ResumeRecord, bool, error) {
	val, err := s.redisClient.HGet(ctx, recordsKey, fingerprint).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.ResumeRecord{}, false, nil // No record yet
		}
		return domain.ResumeRecord{}, false, fmt.Errorf("failed to get resume record %s: %w", fingerprint, err)
	}

	var rec domain.ResumeRecord
	if err := json.Unmarshal([]byte(val), &rec); err != nil {
		return domain.ResumeRecord{}, false, nil
	}
	return rec, true, nil
}

func (s *redisStore) Load(ctx context.Context) (map[string]domain.ResumeRecord, error) {
	records := make(map[string]domain.ResumeRecord)

	all, err := s.redisClient.HGetAll(ctx, recordsKey).Result()
	if err != nil {
		log.Warnf("⚠️ Failed to load resume records from Redis, starting with empty state: %v", err)
		return records, nil
	}

	for fp, val := range all {
		var rec domain.ResumeRecord
		if err := json.Unmarshal([]byte(val), &rec); err != nil || !rec.Status.Valid() {
			log.Warnf("Skipping unreadable resume record %s", fp)
			continue
		}
		records[fp] = rec
	}

	log.Infof("📂 Loaded %d resume records from Redis", len(records))
	return records, nil
}

// Close is a no-op: the Redis client is owned by the container.
func (s *redisStore) Close() error {
	return nil
}
