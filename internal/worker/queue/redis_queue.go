// Package queue is the durable, at-least-once export job queue on Redis.
//
// Delivery is the usual reliable-list pattern: BLMOVE from the main list to
// a processing list, LREM on ack. A claim timestamp per in-flight payload
// lets a reclaimer return entries whose visibility window lapsed, so a
// crashed worker's jobs get redelivered. Retries are counted per job; a job
// that exhausts its attempts moves to the dead-letter list for external
// inspection.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"docforge/internal/pkg/logger"
)

// Message is one export request as it travels through the queue.
type Message struct {
	JobID              string `json:"jobId"`
	TenantID           string `json:"tenantId"`
	ContractInstanceID string `json:"contractInstanceId"`
	Format             string `json:"format"`
	StyleTemplateID    string `json:"styleTemplateId,omitempty"`
}

type Config struct {
	Name        string
	DeadLetter  string
	MaxAttempts int
	Visibility  time.Duration
	Log         *logger.Logger
}

type RedisQueue struct {
	rdb *redis.Client

	name        string
	deadLetter  string
	maxAttempts int
	visibility  time.Duration
	log         *logger.Logger
}

func NewRedisQueue(rdb *redis.Client, cfg Config) *RedisQueue {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Visibility <= 0 {
		cfg.Visibility = 5 * time.Minute
	}
	if cfg.DeadLetter == "" {
		cfg.DeadLetter = cfg.Name + ":dead"
	}
	log := cfg.Log
	if log == nil {
		log = logger.NewDefault()
	}
	return &RedisQueue{
		rdb:         rdb,
		name:        cfg.Name,
		deadLetter:  cfg.DeadLetter,
		maxAttempts: cfg.MaxAttempts,
		visibility:  cfg.Visibility,
		log:         log.WithComponent("queue"),
	}
}

func (q *RedisQueue) processingKey() string { return q.name + ":processing" }
func (q *RedisQueue) attemptsKey() string   { return q.name + ":attempts" }
func (q *RedisQueue) claimsKey() string     { return q.name + ":claims" }

// Pop blocks up to the context deadline for the next job. It returns the
// parsed message plus the raw payload, which the caller must hand back to
// Ack or Nack. A payload that does not parse goes straight to the
// dead-letter list.
func (q *RedisQueue) Pop(ctx context.Context) (*Message, string, error) {
	raw, err := q.rdb.BLMove(ctx, q.name, q.processingKey(), "RIGHT", "LEFT", 0).Result()
	if err != nil {
		return nil, "", err
	}

	now := strconv.FormatInt(time.Now().Unix(), 10)
	if err := q.rdb.HSet(ctx, q.claimsKey(), raw, now).Err(); err != nil {
		q.log.Warn("failed to record claim time", "error", err.Error())
	}

	var msg Message
	if err := json.Unmarshal([]byte(raw), &msg); err != nil || msg.JobID == "" {
		q.log.Error("unparseable queue payload, moving to dead letter", "payload", truncate(raw, 200))
		q.moveToDeadLetter(ctx, raw, "")
		return nil, "", fmt.Errorf("unparseable queue payload")
	}

	return &msg, raw, nil
}

// Ack removes a successfully processed job from the processing list.
func (q *RedisQueue) Ack(ctx context.Context, raw string, jobID string) error {
	pipe := q.rdb.TxPipeline()
	pipe.LRem(ctx, q.processingKey(), 1, raw)
	pipe.HDel(ctx, q.claimsKey(), raw)
	pipe.HDel(ctx, q.attemptsKey(), jobID)
	_, err := pipe.Exec(ctx)
	return err
}

// Nack returns a failed job to the queue, or to the dead-letter list once
// its retry budget is spent. It reports whether the job will be retried.
func (q *RedisQueue) Nack(ctx context.Context, raw string, jobID string) (bool, error) {
	attempts, err := q.rdb.HIncrBy(ctx, q.attemptsKey(), jobID, 1).Result()
	if err != nil {
		return false, err
	}

	if attempts >= int64(q.maxAttempts) {
		q.log.Warn("job exhausted retries, moving to dead letter",
			"job_id", jobID,
			"attempts", attempts,
		)
		q.moveToDeadLetter(ctx, raw, jobID)
		return false, nil
	}

	pipe := q.rdb.TxPipeline()
	pipe.LRem(ctx, q.processingKey(), 1, raw)
	pipe.HDel(ctx, q.claimsKey(), raw)
	pipe.LPush(ctx, q.name, raw)
	_, err = pipe.Exec(ctx)
	return true, err
}

// Depth returns the number of jobs waiting in the main list.
func (q *RedisQueue) Depth(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, q.name).Result()
}

// Reclaim scans the processing list and requeues every entry whose
// visibility window lapsed. Run it periodically from a single goroutine.
func (q *RedisQueue) Reclaim(ctx context.Context) (int, error) {
	entries, err := q.rdb.LRange(ctx, q.processingKey(), 0, -1).Result()
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-q.visibility).Unix()
	reclaimed := 0

	for _, raw := range entries {
		claimedAt, err := q.rdb.HGet(ctx, q.claimsKey(), raw).Result()
		if err == redis.Nil {
			// No claim record: treat as stale and requeue.
			claimedAt = "0"
		} else if err != nil {
			continue
		}

		ts, _ := strconv.ParseInt(claimedAt, 10, 64)
		if ts > cutoff {
			continue
		}

		pipe := q.rdb.TxPipeline()
		pipe.LRem(ctx, q.processingKey(), 1, raw)
		pipe.HDel(ctx, q.claimsKey(), raw)
		pipe.LPush(ctx, q.name, raw)
		if _, err := pipe.Exec(ctx); err != nil {
			q.log.Warn("failed to reclaim stale job", "error", err.Error())
			continue
		}
		reclaimed++
	}

	if reclaimed > 0 {
		q.log.Info("reclaimed stale jobs", "count", reclaimed)
	}
	return reclaimed, nil
}

func (q *RedisQueue) moveToDeadLetter(ctx context.Context, raw string, jobID string) {
	pipe := q.rdb.TxPipeline()
	pipe.LRem(ctx, q.processingKey(), 1, raw)
	pipe.HDel(ctx, q.claimsKey(), raw)
	if jobID != "" {
		pipe.HDel(ctx, q.attemptsKey(), jobID)
	}
	pipe.LPush(ctx, q.deadLetter, raw)
	if _, err := pipe.Exec(ctx); err != nil {
		q.log.Error("failed to move job to dead letter", "error", err.Error())
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
