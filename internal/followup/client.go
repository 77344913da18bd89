package followup

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"curbside_relay/platform/config"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

// Client schedules follow-ups on asynq so they survive restarts.
type Client struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	queue     string
}

var _ Scheduler = (*Client)(nil)

func NewClient(cfg config.SchedulerConfig) (*Client, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	return &Client{
		client:    asynq.NewClient(opt),
		inspector: asynq.NewInspector(opt),
		queue:     queueName(cfg),
	}, nil
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return errors.Join(c.client.Close(), c.inspector.Close())
}

// Schedule enqueues job, replacing a pending or archived task with the same
// id. A task that is already running keeps the id and the job is skipped.
func (c *Client) Schedule(ctx context.Context, job Job, delay time.Duration) error {
	task, err := NewFollowupTask(job)
	if err != nil {
		return err
	}

	enqueue := func() error {
		_, err := c.client.EnqueueContext(ctx, task,
			asynq.ProcessIn(delay),
			asynq.Queue(c.queue),
			asynq.TaskID(job.TaskID()),
			asynq.MaxRetry(0),
		)
		return err
	}

	err = enqueue()
	if !errors.Is(err, asynq.ErrTaskIDConflict) {
		return err
	}
	if delErr := c.inspector.DeleteTask(c.queue, job.TaskID()); delErr != nil && !errors.Is(delErr, asynq.ErrTaskNotFound) {
		return nil
	}
	err = enqueue()
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	return err
}

// Cancel deletes the scheduled follow-ups of orderKey. Jobs already running
// are not interrupted.
func (c *Client) Cancel(_ context.Context, orderKey string) error {
	var errs []error
	for _, kind := range Kinds() {
		id := Job{Kind: kind, OrderID: orderKey}.TaskID()
		if err := c.inspector.DeleteTask(c.queue, id); err != nil && !errors.Is(err, asynq.ErrTaskNotFound) {
			errs = append(errs, fmt.Errorf("delete %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

func queueName(cfg config.SchedulerConfig) string {
	if queue := cfg.GetAsynqQueueName(); queue != "" {
		return queue
	}
	return "default"
}

func redisClientOpt(redisURL string, tlsInsecure bool) (asynq.RedisClientOpt, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}

	var tlsConfig *tls.Config
	if opt.TLSConfig != nil {
		clone := opt.TLSConfig.Clone()
		if tlsInsecure {
			clone.InsecureSkipVerify = true
		}
		tlsConfig = clone
	} else if tlsInsecure {
		tlsConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return asynq.RedisClientOpt{
		Addr:      opt.Addr,
		Password:  opt.Password,
		DB:        opt.DB,
		TLSConfig: tlsConfig,
	}, nil
}

// NewRedisClient opens a go-redis client with the same URL and TLS settings
// the scheduler uses.
func NewRedisClient(cfg config.SchedulerConfig) (*redis.Client, error) {
	opt, err := redisClientOpt(cfg.GetRedisURL(), cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}
	return redis.NewClient(&redis.Options{
		Addr:      opt.Addr,
		Password:  opt.Password,
		DB:        opt.DB,
		TLSConfig: opt.TLSConfig,
	}), nil
}
