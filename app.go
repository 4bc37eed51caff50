package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"hivewatch/internal/alerting/application"
	alertingpg "hivewatch/internal/alerting/infrastructure/postgres"
	"hivewatch/internal/config"
	"hivewatch/internal/eventing"
	outboxpg "hivewatch/internal/eventing/infrastructure/postgres"
	"hivewatch/internal/notify"
	"hivewatch/internal/observability/logging"
	"hivewatch/internal/observability/metrics"
)

type app struct {
	logger     *zap.Logger
	db         *sql.DB
	evaluator  *application.Evaluator
	dispatcher *eventing.Dispatcher
	publisher  *notify.MultiPublisher
}

func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, cfg.ServiceName)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	if cfg.DatabaseURL == "" {
		return nil, errors.New("config: database url required (DATABASE_URL or PG_DSN)")
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	metrics.Init(db, logger)

	outbox := outboxpg.NewOutboxStore(db)
	eventsRepo := alertingpg.NewEventRepository(db)
	txManager, err := alertingpg.NewTxManager(db, eventsRepo, outbox)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	evaluator, err := application.NewEvaluator(
		alertingpg.NewRuleRepository(db),
		alertingpg.NewMeasurementRepository(db),
		eventsRepo,
		txManager,
		application.WithSampleWindow(cfg.Evaluator.SampleWindow),
		application.WithLogger(logger.Named("evaluator")),
	)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	publisher, err := notify.Build(cfg.Channels, logger.Named("notify"))
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	dispatcher, err := eventing.NewDispatcher(outbox, publisher,
		eventing.WithBatchSize(cfg.Dispatcher.BatchSize),
		eventing.WithMaxRetries(cfg.Dispatcher.MaxRetries),
		eventing.WithPollInterval(cfg.Dispatcher.PollInterval),
		eventing.WithPublishTimeout(cfg.Dispatcher.PublishTimeout),
		eventing.WithLogger(logger.Named("dispatcher")),
	)
	if err != nil {
		_ = publisher.Close()
		_ = db.Close()
		return nil, err
	}

	return &app{
		logger:     logger,
		db:         db,
		evaluator:  evaluator,
		dispatcher: dispatcher,
		publisher:  publisher,
	}, nil
}

func (a *app) Close() {
	if a == nil {
		return
	}
	if err := a.publisher.Close(); err != nil {
		a.logger.Warn("close publishers", zap.Error(err))
	}
	if err := a.db.Close(); err != nil {
		a.logger.Warn("close db", zap.Error(err))
	}
	_ = a.logger.Sync()
}
