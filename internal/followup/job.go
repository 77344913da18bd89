// Package followup schedules the delayed actions that run after a manager
// call ends. Jobs carry identifiers only; runners re-read state when they fire.
package followup

import (
	"context"
	"time"
)

// Kind names a follow-up action.
type Kind string

const (
	KindResolutionAlert Kind = "resolution_alert"
	KindReviewRequest   Kind = "review_request"
)

// Job is one scheduled follow-up. OrderID is the cancellation key.
type Job struct {
	Kind    Kind   `json:"kind"`
	OrderID string `json:"orderId"`
	Phone   string `json:"phone"`
	CallID  string `json:"callId,omitempty"`
}

// TaskID is unique per order and kind so a job is never enqueued twice.
func (j Job) TaskID() string {
	return string(j.Kind) + ":" + j.OrderID
}

// Runner executes a job when it fires.
type Runner interface {
	RunFollowup(ctx context.Context, job Job) error
}

// Scheduler queues jobs to fire after a delay and cancels them by order key.
type Scheduler interface {
	Schedule(ctx context.Context, job Job, delay time.Duration) error
	Cancel(ctx context.Context, orderKey string) error
}

// Kinds lists every follow-up kind, in firing order.
func Kinds() []Kind {
	return []Kind{KindResolutionAlert, KindReviewRequest}
}
