package followup

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"curbside_relay/platform/logger"
)

type testSchedulerConfig struct {
	url string
}

func (c testSchedulerConfig) GetRedisURL() string       { return c.url }
func (c testSchedulerConfig) GetRedisTLSInsecure() bool { return false }
func (c testSchedulerConfig) GetAsynqQueueName() string { return "followups" }
func (c testSchedulerConfig) GetAsynqConcurrency() int  { return 1 }

func newTestClient(t *testing.T) *Client {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	c, err := NewClient(testSchedulerConfig{url: "redis://" + mr.Addr()})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func (c *Client) scheduledIDs(t *testing.T) []string {
	t.Helper()
	tasks, err := c.inspector.ListScheduledTasks(c.queue)
	if err != nil {
		t.Fatalf("ListScheduledTasks: %v", err)
	}
	ids := make([]string, 0, len(tasks))
	for _, task := range tasks {
		ids = append(ids, task.ID)
	}
	return ids
}

func TestClientReschedulesOverArchivedTask(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	job := Job{Kind: KindReviewRequest, OrderID: "order-1", Phone: "+16502530000", CallID: "call-1"}

	if err := c.Schedule(ctx, job, time.Minute); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if err := c.inspector.ArchiveTask(c.queue, job.TaskID()); err != nil {
		t.Fatalf("ArchiveTask: %v", err)
	}

	job.CallID = "call-2"
	if err := c.Schedule(ctx, job, time.Minute); err != nil {
		t.Fatalf("second Schedule: %v", err)
	}
	ids := c.scheduledIDs(t)
	if len(ids) != 1 || ids[0] != job.TaskID() {
		t.Fatalf("expected rescheduled task %s, got %v", job.TaskID(), ids)
	}
}

func TestClientCancelDeletesOrderTasks(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	for _, kind := range Kinds() {
		if err := c.Schedule(ctx, Job{Kind: kind, OrderID: "order-1"}, time.Minute); err != nil {
			t.Fatalf("Schedule %s: %v", kind, err)
		}
	}
	if err := c.Schedule(ctx, Job{Kind: KindReviewRequest, OrderID: "order-2"}, time.Minute); err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	if err := c.Cancel(ctx, "order-1"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	ids := c.scheduledIDs(t)
	if len(ids) != 1 || ids[0] != "review_request:order-2" {
		t.Fatalf("expected only order-2 to remain, got %v", ids)
	}
}

func TestWorkerCompletesFailedFollowup(t *testing.T) {
	runner := newRunner()
	runner.fail = KindReviewRequest
	w := &Worker{runner: runner, log: logger.New("development")}

	task, err := NewFollowupTask(Job{Kind: KindReviewRequest, OrderID: "order-1"})
	if err != nil {
		t.Fatalf("NewFollowupTask: %v", err)
	}
	if err := w.handleFollowup(context.Background(), task); err != nil {
		t.Fatalf("failed followup must complete the task, got %v", err)
	}
	if got := waitJob(t, runner.done); got.OrderID != "order-1" {
		t.Fatalf("unexpected job %+v", got)
	}
}
