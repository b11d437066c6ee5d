// Package queue schedules harvest jobs for delayed, at-least-once execution.
package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/aluiziolira/go-scrape-customers/models"
)

// Queue accepts job payloads for execution at or after runAt.
type Queue interface {
	Enqueue(ctx context.Context, payload models.JobPayload, runAt time.Time) error
}

// Consumer hands out due jobs under a lease.
type Consumer interface {
	Claim(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]Delivery, error)
	Ack(ctx context.Context, d Delivery) error
	RecoverExpired(ctx context.Context, now time.Time) (int, error)
	Depth(ctx context.Context) (pending, inflight int64, err error)
}

// Envelope is the stored form of a queued job.
type Envelope struct {
	ID      string            `json:"id"`
	Payload models.JobPayload `json:"payload"`
}

// Delivery is a claimed job. It must be acknowledged once handled; an
// unacknowledged delivery returns to the queue when its lease expires.
type Delivery struct {
	Envelope
	raw string
}

// DispatchError reports a dispatch that stopped before every job was
// queued. Jobs counted in Accepted remain queued.
type DispatchError struct {
	Accepted int
	Total    int
	Err      error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch stopped after %d of %d jobs: %v", e.Accepted, e.Total, e.Err)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}
