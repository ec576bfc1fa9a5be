package jobxredis

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/Abraxas-365/facilitydir/pkg/config"
	"github.com/Abraxas-365/facilitydir/pkg/jobx"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Completed and failed jobs are kept this long for inspection.
const finishedJobTTL = 7 * 24 * time.Hour

// RedisQueue implements jobx.Queue backed by Redis.
type RedisQueue struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisQueue creates a new Redis-backed queue. Keys are namespaced under prefix.
func NewRedisQueue(rdb *redis.Client, prefix string) *RedisQueue {
	if prefix == "" {
		prefix = "jobx"
	}
	return &RedisQueue{rdb: rdb, prefix: prefix}
}

// Connect opens a client for cfg and verifies it answers PING.
func Connect(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Address(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, redisErrors.NewWithCause(ErrConnect, err).WithDetail("addr", cfg.Address())
	}
	return rdb, nil
}

func (q *RedisQueue) queueKey(name string) string     { return q.prefix + ":queue:" + name }
func (q *RedisQueue) scheduledKey(name string) string { return q.prefix + ":scheduled:" + name }
func (q *RedisQueue) jobKey(id string) string         { return q.prefix + ":job:" + id }

// Enqueue adds a job to the ready queue immediately.
func (q *RedisQueue) Enqueue(ctx context.Context, job jobx.Job) (string, error) {
	info := jobx.NewInfo(uuid.NewString(), job, time.Now().UTC())

	data, err := json.Marshal(info)
	if err != nil {
		return "", redisErrors.NewWithCause(ErrMarshal, err)
	}

	pipe := q.rdb.TxPipeline()
	pipe.Set(ctx, q.jobKey(info.ID), data, 0)
	pipe.LPush(ctx, q.queueKey(job.Queue), info.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", redisErrors.NewWithCause(ErrEnqueue, err).WithDetail("queue", job.Queue)
	}

	return info.ID, nil
}

// EnqueueDelayed adds a job to the scheduled set with a future execution time.
func (q *RedisQueue) EnqueueDelayed(ctx context.Context, job jobx.Job, delay time.Duration) (string, error) {
	now := time.Now().UTC()
	info := jobx.NewInfo(uuid.NewString(), job, now)

	data, err := json.Marshal(info)
	if err != nil {
		return "", redisErrors.NewWithCause(ErrMarshal, err)
	}

	pipe := q.rdb.TxPipeline()
	pipe.Set(ctx, q.jobKey(info.ID), data, 0)
	pipe.ZAdd(ctx, q.scheduledKey(job.Queue), redis.Z{Score: float64(now.Add(delay).Unix()), Member: info.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return "", redisErrors.NewWithCause(ErrEnqueue, err).
			WithDetail("queue", job.Queue).
			WithDetail("delay", delay.String())
	}

	return info.ID, nil
}

// GetJob retrieves job info by ID.
func (q *RedisQueue) GetJob(ctx context.Context, jobID string) (*jobx.JobInfo, error) {
	data, err := q.rdb.Get(ctx, q.jobKey(jobID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, redisErrors.New(ErrNotFound).WithDetail("job_id", jobID)
		}
		return nil, redisErrors.NewWithCause(ErrGetJob, err).WithDetail("job_id", jobID)
	}

	var info jobx.JobInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, redisErrors.NewWithCause(ErrUnmarshal, err).WithDetail("job_id", jobID)
	}

	return &info, nil
}

// Dequeue blocks until a job is available from one of the given queues or the timeout expires.
func (q *RedisQueue) Dequeue(ctx context.Context, queues []string, timeout time.Duration) (*jobx.JobInfo, error) {
	keys := make([]string, len(queues))
	for i, name := range queues {
		keys[i] = q.queueKey(name)
	}

	result, err := q.rdb.BRPop(ctx, timeout, keys...).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) || ctx.Err() != nil {
			return nil, nil
		}
		return nil, redisErrors.NewWithCause(ErrDequeue, err)
	}

	// result[0] = key, result[1] = job ID
	info, err := q.GetJob(ctx, result[1])
	if err != nil {
		return nil, err
	}

	info.Status = jobx.JobStatusActive
	info.Attempts++
	if err := q.save(ctx, info, 0); err != nil {
		return nil, err
	}

	return info, nil
}

// Complete marks a job as successfully completed.
func (q *RedisQueue) Complete(ctx context.Context, jobID string, result []byte) error {
	info, err := q.GetJob(ctx, jobID)
	if err != nil {
		return err
	}

	info.Status = jobx.JobStatusCompleted
	info.Result = result
	return q.save(ctx, info, finishedJobTTL)
}

// Fail marks a job as failed. Returns true if the job should be retried.
func (q *RedisQueue) Fail(ctx context.Context, jobID string, errMsg string) (bool, error) {
	info, err := q.GetJob(ctx, jobID)
	if err != nil {
		return false, err
	}

	shouldRetry := info.Attempts < info.MaxRetries
	ttl := time.Duration(0)
	if shouldRetry {
		info.Status = jobx.JobStatusRetrying
	} else {
		info.Status = jobx.JobStatusFailed
		ttl = finishedJobTTL
	}
	info.Error = errMsg

	if err := q.save(ctx, info, ttl); err != nil {
		return false, err
	}
	return shouldRetry, nil
}

// Retry re-enqueues a failed job with a delay.
func (q *RedisQueue) Retry(ctx context.Context, jobID string, delay time.Duration) error {
	info, err := q.GetJob(ctx, jobID)
	if err != nil {
		return err
	}

	score := float64(time.Now().UTC().Add(delay).Unix())
	if err := q.rdb.ZAdd(ctx, q.scheduledKey(info.Queue), redis.Z{Score: score, Member: jobID}).Err(); err != nil {
		return redisErrors.NewWithCause(ErrRetry, err).WithDetail("job_id", jobID)
	}

	return nil
}

func (q *RedisQueue) save(ctx context.Context, info *jobx.JobInfo, ttl time.Duration) error {
	info.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(info)
	if err != nil {
		return redisErrors.NewWithCause(ErrMarshal, err).WithDetail("job_id", info.ID)
	}
	if err := q.rdb.Set(ctx, q.jobKey(info.ID), data, ttl).Err(); err != nil {
		return redisErrors.NewWithCause(ErrUpdate, err).WithDetail("job_id", info.ID)
	}
	return nil
}

// promoteScript moves due members of the scheduled set onto the ready list atomically.
var promoteScript = redis.NewScript(`
local scheduled_key = KEYS[1]
local queue_key = KEYS[2]
local now = tonumber(ARGV[1])
local ids = redis.call('ZRANGEBYSCORE', scheduled_key, '-inf', now)
if #ids > 0 then
    for _, id in ipairs(ids) do
        redis.call('LPUSH', queue_key, id)
    end
    redis.call('ZREMRANGEBYSCORE', scheduled_key, '-inf', now)
end
return #ids
`)

// PromoteScheduled moves jobs whose scheduled time has passed to the ready queue.
func (q *RedisQueue) PromoteScheduled(ctx context.Context, queues []string) error {
	now := strconv.FormatInt(time.Now().UTC().Unix(), 10)

	for _, name := range queues {
		err := promoteScript.Run(ctx, q.rdb, []string{q.scheduledKey(name), q.queueKey(name)}, now).Err()
		if err != nil && !errors.Is(err, redis.Nil) {
			return redisErrors.NewWithCause(ErrPromote, err).WithDetail("queue", name)
		}
	}

	return nil
}
