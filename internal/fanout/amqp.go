package fanout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"curbside_relay/platform/config"
	"curbside_relay/platform/logger"
)

const (
	amqpBuffer         = 256
	amqpPublishTimeout = 5 * time.Second
	amqpDialAttempts   = 5
	amqpDialDelay      = time.Second
	amqpMaxDialDelay   = 30 * time.Second
	defaultExchange    = "curbside.events"
)

// AMQPObserver publishes events to a fanout exchange. Publishing happens on
// its own goroutine; once a publish fails Send starts returning errors so the
// hub detaches it.
type AMQPObserver struct {
	conn     *amqp091.Connection
	ch       *amqp091.Channel
	exchange string
	log      *logger.Logger

	events    chan Event
	done      chan struct{}
	closeOnce sync.Once
	failed    chan struct{}
	failOnce  sync.Once
	wg        sync.WaitGroup
}

// NewAMQPObserver dials the broker with backoff and declares the exchange.
func NewAMQPObserver(ctx context.Context, cfg config.AMQPConfig, log *logger.Logger) (*AMQPObserver, error) {
	exchange := cfg.GetAMQPExchange()
	if exchange == "" {
		exchange = defaultExchange
	}

	conn, err := dialWithRetry(ctx, cfg.GetAMQPURL(), log)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "fanout", true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}

	o := &AMQPObserver{
		conn:     conn,
		ch:       ch,
		exchange: exchange,
		log:      log,
		events:   make(chan Event, amqpBuffer),
		done:     make(chan struct{}),
		failed:   make(chan struct{}),
	}
	o.wg.Add(1)
	go o.publishLoop()
	return o, nil
}

func (o *AMQPObserver) Send(event Event) error {
	select {
	case <-o.failed:
		return errors.New("amqp publisher failed")
	case <-o.done:
		return errors.New("amqp publisher closed")
	default:
	}
	select {
	case o.events <- event:
		return nil
	default:
		return errObserverFull
	}
}

func (o *AMQPObserver) Close() {
	o.closeOnce.Do(func() {
		close(o.done)
		o.wg.Wait()
		_ = o.ch.Close()
		_ = o.conn.Close()
	})
}

func (o *AMQPObserver) publishLoop() {
	defer o.wg.Done()
	for {
		select {
		case <-o.done:
			return
		case event := <-o.events:
			if err := o.publish(event); err != nil {
				o.log.OutboundFailed("amqp", "publish", err)
				o.failOnce.Do(func() { close(o.failed) })
				return
			}
		}
	}
}

func (o *AMQPObserver) publish(event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), amqpPublishTimeout)
	defer cancel()

	return o.ch.PublishWithContext(ctx, o.exchange, event.Type, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Transient,
		MessageId:    event.ID,
		Type:         event.Type,
		Timestamp:    event.Timestamp,
		Body:         body,
	})
}

func dialWithRetry(ctx context.Context, url string, log *logger.Logger) (*amqp091.Connection, error) {
	var lastErr error
	for attempt := 1; attempt <= amqpDialAttempts; attempt++ {
		conn, err := amqp091.Dial(url)
		if err == nil {
			return conn, nil
		}
		lastErr = err

		sleep := time.Duration(float64(amqpDialDelay) * math.Pow(2, float64(attempt-1)))
		if sleep > amqpMaxDialDelay {
			sleep = amqpMaxDialDelay
		}
		log.Warn("amqp dial failed", "attempt", attempt, "sleep", sleep, "error", err)

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	return nil, fmt.Errorf("connect to amqp after %d attempts: %w", amqpDialAttempts, lastErr)
}
