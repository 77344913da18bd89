package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"curbside_relay/internal/adapters/storage"
	"curbside_relay/internal/archive"
	"curbside_relay/internal/email"
	"curbside_relay/internal/fanout"
	"curbside_relay/internal/followup"
	apphttp "curbside_relay/internal/http"
	"curbside_relay/internal/http/router"
	"curbside_relay/internal/inbox"
	"curbside_relay/internal/relay"
	"curbside_relay/internal/relay/classifier"
	relayrepo "curbside_relay/internal/relay/repository"
	"curbside_relay/internal/relay/service"
	"curbside_relay/internal/sms"
	"curbside_relay/internal/staffalert"
	"curbside_relay/internal/vapi"
	"curbside_relay/platform/config"
	"curbside_relay/platform/db"
	"curbside_relay/platform/logger"
	"curbside_relay/platform/phonelock"
	"curbside_relay/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	shutdownTimeout = 10 * time.Second
	phoneLockTTL    = 30 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, cfg)
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		var connErr error
		pool, connErr = db.NewPool(ctx, cfg)
		return connErr
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()
	log.Info("database connection established")

	val := validator.New()
	smsClient := sms.NewClient(cfg, log)
	voiceClient := vapi.NewClient(cfg, log)

	gateway, err := classifier.New(cfg, cfg.GetBrandName(), log)
	if err != nil {
		panic("failed to initialize classifier: " + err.Error())
	}

	hub := fanout.NewHub(log)
	defer hub.Close()
	if cfg.IsAMQPEnabled() {
		observer, err := fanout.NewAMQPObserver(ctx, cfg, log)
		if err != nil {
			log.Error("amqp fanout disabled", "error", err)
		} else {
			hub.Attach(observer)
			log.Info("amqp fanout attached", "exchange", cfg.GetAMQPExchange())
		}
	}

	alertOpts := []staffalert.Option{}
	if cfg.IsStaffEmailEnabled() {
		alertOpts = append(alertOpts, staffalert.WithEmail(email.NewSMTPSender(cfg, cfg.GetBrandName()), cfg.GetStaffEmail()))
	}
	staff := staffalert.New(smsClient, cfg.GetStaffPhone(), log, alertOpts...)

	calls := initCallArchive(ctx, cfg, log)

	// ========================================================================
	// Relay services and follow-up scheduling
	// ========================================================================

	deps := service.Deps{
		Store:                relayrepo.New(pool),
		Classifier:           gateway,
		Messenger:            smsClient,
		Voice:                voiceClient,
		Staff:                staff,
		Fanout:               hub,
		Messages:             service.Messages{Brand: cfg.GetBrandName(), ReviewURL: cfg.GetReviewURL()},
		Log:                  log,
		OptInWindow:          cfg.GetOptInWindow(),
		ResolutionAlertDelay: cfg.GetResolutionAlertDelay(),
		ReviewRequestDelay:   cfg.GetReviewRequestDelay(),
	}

	var timers *followup.TimerScheduler
	if cfg.GetRedisURL() != "" {
		queue, err := followup.NewClient(cfg)
		if err != nil {
			panic("failed to initialize follow-up scheduler: " + err.Error())
		}
		defer func() { _ = queue.Close() }()
		deps.Scheduler = queue

		redisClient, err := followup.NewRedisClient(cfg)
		if err != nil {
			panic("failed to initialize redis client: " + err.Error())
		}
		defer func() { _ = redisClient.Close() }()
		deps.Locker = phonelock.NewRedisLocker(redisClient, phoneLockTTL)
	} else {
		log.Warn("REDIS_URL not configured; follow-ups run in-process and are lost on restart")
		timers = followup.NewTimerScheduler(log)
		defer timers.Stop()
		deps.Scheduler = timers
	}

	relayModule := relay.NewModule(deps, calls, val, log)
	if timers != nil {
		timers.SetRunner(relayModule.VoiceBridge())
	} else {
		worker, err := followup.NewWorker(cfg, relayModule.VoiceBridge(), log)
		if err != nil {
			panic("failed to initialize follow-up worker: " + err.Error())
		}
		go worker.Run(ctx)
	}

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config: cfg,
		Logger: log,
		Health: db.NewPoolAdapter(pool),
		Events: hub,
		Modules: []apphttp.Module{
			relayModule,
			inbox.NewModule(pool, val),
		},
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router.New(app),
		ReadHeaderTimeout: 10 * time.Second,
	}

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown failed", "error", err)
		}
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

// initCallArchive returns nil when object storage is not configured.
func initCallArchive(ctx context.Context, cfg *config.Config, log *logger.Logger) *archive.CallArchive {
	if !cfg.IsMinIOEnabled() {
		log.Warn("MINIO_ENDPOINT not configured; call transcripts are not archived")
		return nil
	}

	storageSvc, err := storage.NewMinIOService(cfg)
	if err != nil {
		panic("failed to initialize storage: " + err.Error())
	}

	bucket := cfg.GetMinioBucketCallTranscripts()
	if err := withRetry(ctx, log, "ensure call transcript bucket", 5, 2*time.Second, func() error {
		return storageSvc.EnsureBucketExists(ctx, bucket)
	}); err != nil {
		log.Error("failed to ensure storage bucket exists", "error", err, "bucket", bucket)
		panic("failed to ensure storage bucket exists: " + err.Error())
	}
	return archive.New(storageSvc, bucket)
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
