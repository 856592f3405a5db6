// Package queue implements named delayed job queues on Redis and the worker
// pools that consume them.
//
// A queue is a sorted set whose members are JSON-encoded jobs scored by the
// millisecond timestamp at which they become due. A Lua script pops the
// earliest due job atomically, so several consumers never receive the same
// job. There are no queue-level retries: a failed job is logged and dropped,
// and its owner decides what a retry means (the send worker reverts the link
// to pending).
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Queue names.
const (
	Cadence        = "cadence"
	AIReply        = "ai-reply"
	MessageSend    = "message-send"
	SchedulerTicks = "scheduler-ticks"

	// Reserved for the lead extraction and enrichment pipeline.
	Extraction = "extraction"
	Enrichment = "enrichment"
)

// Names lists every queue the system knows about.
var Names = []string{Cadence, AIReply, MessageSend, SchedulerTicks, Extraction, Enrichment}

// ErrUnknownQueue is returned for a queue name outside Names.
var ErrUnknownQueue = errors.New("unknown queue")

// Job is one unit of work.
type Job struct {
	ID         string          `json:"id"`
	Queue      string          `json:"queue"`
	Kind       string          `json:"kind"`
	Payload    json.RawMessage `json:"payload"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
	RunAt      time.Time       `json:"run_at"`
}

// Decode unmarshals the job payload into dst.
func (j *Job) Decode(dst any) error {
	if err := json.Unmarshal(j.Payload, dst); err != nil {
		return fmt.Errorf("decode %s job %s: %w", j.Kind, j.ID, err)
	}
	return nil
}

// Queue is the producer and consumer contract shared by workers and tests.
type Queue interface {
	// Enqueue schedules payload to become due after delay.
	Enqueue(ctx context.Context, queue, kind string, payload any, delay time.Duration) (*Job, error)

	// Dequeue pops the earliest job due at now. It returns nil, nil when
	// nothing is due.
	Dequeue(ctx context.Context, queue string, now time.Time) (*Job, error)

	// Len returns how many jobs, due or not, the queue holds.
	Len(ctx context.Context, queue string) (int64, error)
}

const popDueScript = `
local items = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", ARGV[1], "LIMIT", 0, 1)
if #items == 0 then
    return false
end
redis.call("ZREM", KEYS[1], items[1])
return items[1]
`

// RedisQueue stores queues as Redis sorted sets.
type RedisQueue struct {
	client *redis.Client
	prefix string
	pop    *redis.Script
	now    func() time.Time
}

// NewRedisQueue creates a Redis-backed queue. Keys are "<prefix>:queue:<name>".
func NewRedisQueue(client *redis.Client, prefix string) *RedisQueue {
	return &RedisQueue{
		client: client,
		prefix: prefix,
		pop:    redis.NewScript(popDueScript),
		now:    time.Now,
	}
}

func (q *RedisQueue) key(name string) string {
	return fmt.Sprintf("%s:queue:%s", q.prefix, name)
}

func validName(name string) bool {
	for _, n := range Names {
		if n == name {
			return true
		}
	}
	return false
}

// Enqueue adds a job due after delay. Negative delays run immediately.
func (q *RedisQueue) Enqueue(ctx context.Context, name, kind string, payload any, delay time.Duration) (*Job, error) {
	if !validName(name) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownQueue, name)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", kind, err)
	}
	if delay < 0 {
		delay = 0
	}

	now := q.now()
	job := &Job{
		ID:         uuid.New().String(),
		Queue:      name,
		Kind:       kind,
		Payload:    raw,
		EnqueuedAt: now,
		RunAt:      now.Add(delay),
	}
	member, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("encode job: %w", err)
	}

	err = q.client.ZAdd(ctx, q.key(name), redis.Z{
		Score:  float64(job.RunAt.UnixMilli()),
		Member: member,
	}).Err()
	if err != nil {
		return nil, fmt.Errorf("enqueue %s on %s: %w", kind, name, err)
	}
	return job, nil
}

// Dequeue atomically pops the earliest job due at now.
func (q *RedisQueue) Dequeue(ctx context.Context, name string, now time.Time) (*Job, error) {
	res, err := q.pop.Run(ctx, q.client, []string{q.key(name)}, now.UnixMilli()).Text()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dequeue %s: %w", name, err)
	}

	var job Job
	if err := json.Unmarshal([]byte(res), &job); err != nil {
		return nil, fmt.Errorf("decode job from %s: %w", name, err)
	}
	return &job, nil
}

// Len returns the number of jobs held by the queue.
func (q *RedisQueue) Len(ctx context.Context, name string) (int64, error) {
	return q.client.ZCard(ctx, q.key(name)).Result()
}
