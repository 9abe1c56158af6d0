package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"CourtWatch/internal/config"
	"CourtWatch/internal/dispatch"
	"CourtWatch/internal/infrastructure/djen"
	"CourtWatch/internal/infrastructure/email"
	"CourtWatch/internal/infrastructure/scheduler"
	"CourtWatch/internal/infrastructure/storage"
	"CourtWatch/internal/infrastructure/telegram"
	"CourtWatch/internal/infrastructure/vector"
	"CourtWatch/internal/logging"
	"CourtWatch/internal/ports"
	"CourtWatch/internal/usecase"
)

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg       config.Config
	logger    *slog.Logger
	pool      *dispatch.Pool
	scheduler *usecase.Scheduler
	Monitor   *usecase.Monitor
	Console   *usecase.Console
}

// New builds a runnable application instance: storage, outbound clients,
// the dispatch pool and the scheduling loop.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}

	db, err := storage.Open(ctx, cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect storage: %w", err)
	}
	if err := storage.EnsureSchema(ctx, db); err != nil {
		return nil, fmt.Errorf("prepare storage: %w", err)
	}

	entities := storage.NewEntityRepository(db)
	records := storage.NewRecordRepository(db)
	alerts := storage.NewAlertRepository(db)

	source := djen.NewClient(cfg.Source.BaseURL, &http.Client{Timeout: cfg.Source.Timeout()})

	var vectorSearch ports.VectorSearch
	if cfg.Vector.URL != "" {
		vectorSearch = vector.NewClient(cfg.Vector.URL, cfg.Vector.APIKey, cfg.Vector.Collection)
	}

	var notifiers []ports.Notifier
	if cfg.Notifications.Telegram.Enabled() {
		notifiers = append(notifiers, telegram.NewNotifier(
			cfg.Notifications.Telegram.BotToken,
			cfg.Notifications.Telegram.ChatID,
		))
	}
	if cfg.Notifications.Email.Enabled() {
		notifiers = append(notifiers, email.NewNotifier(
			cfg.Notifications.Email.Host,
			cfg.Notifications.Email.Port,
			cfg.Notifications.Email.User,
			cfg.Notifications.Email.Password,
			cfg.Notifications.Email.User,
			cfg.Notifications.Email.Recipients,
		))
	}

	pool := dispatch.NewPool(cfg.Scheduler.Workers, baseLogger.With("component", "dispatch"))

	monitor := usecase.NewMonitor(usecase.MonitorDeps{
		Source:           source,
		Entities:         entities,
		Records:          records,
		Alerts:           alerts,
		Notifiers:        notifiers,
		Queue:            pool,
		FirstCheckPolicy: config.FirstCheckTaskPolicy,
		MaxPages:         cfg.Source.MaxPages,
		DescriptionChars: cfg.Monitor.DescriptionChars,
		DefaultInterval:  cfg.Monitor.DefaultInterval(),
		Logger:           baseLogger.With("component", "monitor"),
	})

	detector := usecase.NewDetector(usecase.DetectorDeps{
		Records:   records,
		Alerts:    alerts,
		Entities:  entities,
		Vector:    vectorSearch,
		Notifiers: notifiers,
		Window:    time.Duration(cfg.Opportunity.WindowDays) * 24 * time.Hour,
		Limit:     cfg.Opportunity.MaxCandidates,
		Threshold: cfg.Opportunity.Threshold,
		Query:     cfg.Opportunity.Query,
		Logger:    baseLogger.With("component", "opportunity"),
	})

	sched := usecase.NewScheduler(usecase.SchedulerDeps{
		Entities:     entities,
		Queue:        pool,
		Monitor:      monitor,
		Detector:     detector,
		Driver:       scheduler.NewTicker(cfg.Scheduler.Tick()),
		BatchSize:    cfg.Scheduler.BatchSize,
		VerifyPolicy: config.VerifyTaskPolicy,
		SweepPolicy:  config.SweepTaskPolicy,
		Logger:       baseLogger.With("component", "scheduler"),
	})

	console := usecase.NewConsole(usecase.ConsoleDeps{
		Entities: entities,
		Records:  records,
		Alerts:   alerts,
		Logger:   baseLogger.With("component", "console"),
	})

	return &Application{
		cfg:       cfg,
		logger:    baseLogger,
		pool:      pool,
		scheduler: sched,
		Monitor:   monitor,
		Console:   console,
	}, nil
}

// Run starts the scheduling loop and blocks until the context is
// canceled, then drains in-flight tasks.
func (a *Application) Run(ctx context.Context) error {
	if err := a.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	a.logger.Info("monitoring started",
		slog.Duration("tick", a.cfg.Scheduler.Tick()),
		slog.Int("workers", a.cfg.Scheduler.Workers))

	<-ctx.Done()

	if err := a.scheduler.Stop(context.Background()); err != nil {
		a.logger.Warn("scheduler stop", "error", err)
	}
	a.pool.Wait()
	a.logger.Info("monitoring stopped")
	return nil
}
