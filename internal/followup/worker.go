package followup

import (
	"context"
	"fmt"

	"curbside_relay/platform/config"
	"curbside_relay/platform/logger"

	"github.com/hibiken/asynq"
)

// Worker consumes follow-up tasks from asynq.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	runner Runner
	log    *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, runner Runner, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 5
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queueName(cfg): 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server: server,
		mux:    mux,
		runner: runner,
		log:    log,
	}

	mux.HandleFunc(TaskFollowup, w.handleFollowup)

	return w, nil
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("followup worker stopped", "error", err)
	}
}

// handleFollowup always completes the task. Follow-ups are fire-once, and a
// finished task frees its id for the next escalation on the same order.
func (w *Worker) handleFollowup(ctx context.Context, task *asynq.Task) error {
	job, err := ParseFollowupPayload(task)
	if err != nil {
		w.log.Warn("dropping malformed followup", "error", err)
		return nil
	}

	if err := w.runner.RunFollowup(ctx, job); err != nil {
		w.log.Error("followup failed", "kind", job.Kind, "order_id", job.OrderID, "error", err)
	}
	return nil
}
