package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/aluiziolira/go-scrape-customers/models"
)

const (
	PendingKey  = "queue:pending"
	InflightKey = "queue:inflight"
)

// claimScript moves up to ARGV[2] members due at ARGV[1] from the pending
// set to the in-flight set, scored by their lease deadline ARGV[3].
var claimScript = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[2]))
for _, member in ipairs(due) do
  redis.call('ZREM', KEYS[1], member)
  redis.call('ZADD', KEYS[2], ARGV[3], member)
end
return due
`)

// recoverScript returns in-flight members whose lease expired before
// ARGV[1] to the pending set, due immediately.
var recoverScript = redis.NewScript(`
local expired = redis.call('ZRANGEBYSCORE', KEYS[2], '-inf', ARGV[1])
for _, member in ipairs(expired) do
  redis.call('ZREM', KEYS[2], member)
  redis.call('ZADD', KEYS[1], ARGV[1], member)
end
return #expired
`)

// RedisQueue is a delayed job queue on two Redis sorted sets.
type RedisQueue struct {
	client *redis.Client
}

// NewRedisQueue builds a queue on client.
func NewRedisQueue(client *redis.Client) *RedisQueue {
	return &RedisQueue{client: client}
}

// Enqueue stores payload to become due at runAt.
func (q *RedisQueue) Enqueue(ctx context.Context, payload models.JobPayload, runAt time.Time) error {
	raw, err := json.Marshal(Envelope{ID: uuid.NewString(), Payload: payload})
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	if err := q.client.ZAdd(ctx, PendingKey, redis.Z{
		Score:  float64(runAt.UnixMilli()),
		Member: string(raw),
	}).Err(); err != nil {
		return fmt.Errorf("enqueue job: %w", err)
	}
	return nil
}

// Claim leases up to limit jobs due at now until now+lease.
func (q *RedisQueue) Claim(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]Delivery, error) {
	members, err := claimScript.Run(ctx, q.client,
		[]string{PendingKey, InflightKey},
		now.UnixMilli(), limit, now.Add(lease).UnixMilli(),
	).StringSlice()
	if err != nil {
		return nil, fmt.Errorf("claim jobs: %w", err)
	}

	deliveries := make([]Delivery, 0, len(members))
	for _, member := range members {
		var env Envelope
		if err := json.Unmarshal([]byte(member), &env); err != nil {
			slog.Error("dropping undecodable job", slog.String("member", member), slog.Any("error", err))
			q.client.ZRem(ctx, InflightKey, member)
			continue
		}
		deliveries = append(deliveries, Delivery{Envelope: env, raw: member})
	}
	return deliveries, nil
}

// Ack removes a handled delivery.
func (q *RedisQueue) Ack(ctx context.Context, d Delivery) error {
	if err := q.client.ZRem(ctx, InflightKey, d.raw).Err(); err != nil {
		return fmt.Errorf("ack job %s: %w", d.ID, err)
	}
	return nil
}

// RecoverExpired requeues deliveries whose lease ran out before now and
// returns how many were moved.
func (q *RedisQueue) RecoverExpired(ctx context.Context, now time.Time) (int, error) {
	n, err := recoverScript.Run(ctx, q.client,
		[]string{PendingKey, InflightKey},
		now.UnixMilli(),
	).Int()
	if err != nil {
		return 0, fmt.Errorf("recover expired jobs: %w", err)
	}
	return n, nil
}

// Depth returns the number of pending and in-flight jobs.
func (q *RedisQueue) Depth(ctx context.Context) (pending, inflight int64, err error) {
	pipe := q.client.Pipeline()
	p := pipe.ZCard(ctx, PendingKey)
	i := pipe.ZCard(ctx, InflightKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, 0, fmt.Errorf("queue depth: %w", err)
	}
	return p.Val(), i.Val(), nil
}

var _ Consumer = (*RedisQueue)(nil)
