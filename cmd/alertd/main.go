package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/st20medic/trucks/internal/auth"
	"github.com/st20medic/trucks/internal/clearance"
	"github.com/st20medic/trucks/internal/config"
	"github.com/st20medic/trucks/internal/mail"
	"github.com/st20medic/trucks/internal/notify"
	"github.com/st20medic/trucks/internal/pipeline"
	"github.com/st20medic/trucks/internal/rules"
	"github.com/st20medic/trucks/internal/scheduler"
	"github.com/st20medic/trucks/internal/store"
	transport "github.com/st20medic/trucks/internal/transport/http"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		os.Exit(1)
	}
	defer logger.Sync()

	if err := godotenv.Load(); err != nil {
		logger.Info("no .env file found, using system environment variables")
	}
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pg, err := store.NewPostgresStore(ctx, cfg)
	if err != nil {
		logger.Fatal("postgres connection failed", zap.Error(err))
	}
	defer pg.Close()

	rds, err := store.NewRedisStore(ctx, cfg)
	if err != nil {
		logger.Fatal("redis connection failed", zap.Error(err))
	}
	defer rds.Close()

	loc, err := time.LoadLocation(cfg.DigestTimezone)
	if err != nil {
		logger.Fatal("invalid digest timezone", zap.String("tz", cfg.DigestTimezone), zap.Error(err))
	}

	ruleset := rules.FromConfig(cfg)

	recipients := make([]notify.Recipient, 0, len(cfg.AlertRecipients))
	for _, addr := range cfg.AlertRecipients {
		recipients = append(recipients, notify.Recipient{Email: addr})
	}
	if len(recipients) == 0 {
		logger.Warn("ALERT_RECIPIENTS is empty, digests will not be delivered")
	}

	sender := notify.NewMailSender(mail.NewClient(cfg))
	dispatcher := notify.NewDispatcher(sender, recipients, logger)

	pipe := pipeline.New(pg, rds, dispatcher, ruleset, pipeline.Options{
		BatchWindow: time.Duration(cfg.BatchWindowDays) * 24 * time.Hour,
		CacheTTL:    time.Duration(cfg.AlertCacheTTLHours) * time.Hour,
		Workers:     cfg.EvalWorkers,
	}, logger)

	// Bound every pass, scheduled or manual, with one deadline.
	boundedPipe := &timeoutRunner{
		inner:   pipe,
		timeout: time.Duration(cfg.PassTimeoutSeconds) * time.Second,
	}

	workflow := clearance.NewWorkflow(pg, logger)

	daily := scheduler.NewDaily(boundedPipe, cfg.DigestHour, cfg.DigestMinute, loc, logger)
	go daily.Run(ctx)

	handler := transport.NewHandler(boundedPipe, workflow, pg, ruleset,
		[]transport.Pinger{pg, rds}, logger)
	authMW := transport.NewAuthMiddleware(auth.NewAuthenticator(cfg, rds))

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      transport.NewRouter(handler, authMW),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("alertd listening",
		zap.String("port", cfg.HTTPPort),
		zap.Int("recipients", len(recipients)),
		zap.String("digest_time", cfg.DigestTimezone))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("http server failed", zap.Error(err))
	}
}

type timeoutRunner struct {
	inner   *pipeline.Pipeline
	timeout time.Duration
}

func (t *timeoutRunner) Run(ctx context.Context, now time.Time, force bool) (pipeline.Summary, error) {
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}
	return t.inner.Run(ctx, now, force)
}
