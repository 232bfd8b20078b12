// Package main - точка входа фонового процесса (worker) StudyQuest.
//
// Worker отвечает за периодические задачи:
// - Почасовое сканирование серий под угрозой и предупреждения
// - Утренняя сводка плана на день для каждого пользователя
//
// Worker не обслуживает HTTP-запросы; API живёт в отдельном процессе server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/studyquest-hub/studyquest-backend/config"
	"github.com/studyquest-hub/studyquest-backend/internal/application/eventhandler"
	"github.com/studyquest-hub/studyquest-backend/internal/domain/progression"
	"github.com/studyquest-hub/studyquest-backend/internal/infrastructure/external/notifier"
	"github.com/studyquest-hub/studyquest-backend/internal/infrastructure/messaging"
	"github.com/studyquest-hub/studyquest-backend/internal/infrastructure/persistence/postgres"
	"github.com/studyquest-hub/studyquest-backend/internal/infrastructure/scheduler"
	"github.com/studyquest-hub/studyquest-backend/internal/infrastructure/scheduler/jobs"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. ЗАГРУЗКА КОНФИГУРАЦИИ
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. НАСТРОЙКА ЛОГИРОВАНИЯ
	// ─────────────────────────────────────────────────────────────────────────
	log := setupLogger(cfg)
	log.Info("starting StudyQuest worker",
		"env", string(cfg.App.Environment),
		"version", cfg.App.Version,
		"timezone", cfg.App.Timezone,
	)

	if !cfg.Scheduler.Enabled {
		return fmt.Errorf("scheduler is disabled, nothing to do")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 3. ПОДКЛЮЧЕНИЕ К БАЗЕ ДАННЫХ И МИГРАЦИИ
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("connecting to database...")
	dbConn, err := postgres.NewConnectionFromURL(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		log.Info("closing database connection...")
		dbConn.Close()
	}()

	log.Info("checking database migrations...")
	migrator := postgres.NewMigrator(dbConn)
	if err := migrator.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	log.Info("database schema is up to date")

	// Worker всегда ходит в Postgres напрямую: фоновые сканы должны видеть
	// свежие состояния, кеш здесь только мешал бы.
	stateRepo := postgres.NewUserStateRepository(dbConn)
	taskRepo := postgres.NewTaskRepository(dbConn)

	// ─────────────────────────────────────────────────────────────────────────
	// 4. EVENT BUS, УВЕДОМЛЕНИЯ И ОБРАБОТЧИКИ
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing event bus...")
	busCfg := messaging.DefaultConfig()
	busCfg.Logger = log
	eventBus := messaging.NewInMemoryEventBus(busCfg)
	defer func() {
		log.Info("closing event bus...")
		_ = eventBus.Close()
	}()

	var notifierClient eventhandler.Notifier
	if cfg.Notifier.WebhookURL != "" {
		clientCfg := notifier.DefaultClientConfig(cfg.Notifier.WebhookURL)
		clientCfg.AuthToken = cfg.Notifier.AuthToken
		clientCfg.Timeout = cfg.Notifier.RequestTimeout
		clientCfg.RetryAttempts = cfg.Notifier.RetryAttempts
		clientCfg.RetryDelay = cfg.Notifier.RetryDelay
		clientCfg.Logger = log
		notifierClient = notifier.NewClient(clientCfg)
	} else {
		log.Info("notifier webhook not configured, notifications disabled")
	}

	digestHandler := eventhandler.NewOnDailyDigestHandler(notifierClient, log)
	_ = eventBus.Subscribe(digestHandler.EventType(), digestHandler.Handle)

	progressionHandler := eventhandler.NewOnProgressionEventsHandler(notifierClient, log)
	for _, et := range progressionHandler.EventTypes() {
		_ = eventBus.Subscribe(et, progressionHandler.Handle)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. ПЛАНИРОВЩИК И ЗАДАЧИ
	// ─────────────────────────────────────────────────────────────────────────
	engine := progression.NewEngine(progression.BadgeMode(cfg.Gamification.BadgeAwardMode))

	sched := scheduler.NewScheduler(scheduler.SchedulerConfig{
		Logger:   log,
		Timezone: cfg.App.Location,
	})

	streakRiskCfg := jobs.DefaultStreakRiskConfig()
	streakRiskJob := jobs.NewStreakRiskJob(stateRepo, engine, eventBus, log, streakRiskCfg)
	if err := sched.Register(streakRiskJob, scheduler.NewIntervalSchedule(cfg.Scheduler.StreakRiskInterval)); err != nil {
		return fmt.Errorf("failed to register streak risk job: %w", err)
	}

	digestCfg := jobs.DefaultDailyDigestConfig()
	if cfg.Scheduler.JobTimeout > 0 {
		digestCfg.Timeout = cfg.Scheduler.JobTimeout
	}
	digestJob := jobs.NewDailyDigestJob(stateRepo, taskRepo, eventBus, log, digestCfg)
	digestSchedule := scheduler.NewDailySchedule(cfg.Scheduler.DailyDigestHour, cfg.Scheduler.DailyDigestMinute, cfg.App.Location)
	if err := sched.Register(digestJob, digestSchedule); err != nil {
		return fmt.Errorf("failed to register daily digest job: %w", err)
	}

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	log.Info("StudyQuest worker is running",
		"streak_risk_interval", cfg.Scheduler.StreakRiskInterval.String(),
		"daily_digest_at", fmt.Sprintf("%02d:%02d", cfg.Scheduler.DailyDigestHour, cfg.Scheduler.DailyDigestMinute),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 6. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	log.Info("received shutdown signal", "signal", sig.String())

	if err := sched.Stop(); err != nil {
		log.Warn("scheduler stop failed", "error", err)
	}

	log.Info("shutdown completed successfully")
	return nil
}

// setupLogger настраивает структурированное логирование.
func setupLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}
	if cfg.App.Debug {
		opts.Level = slog.LevelDebug
	}

	var handler slog.Handler
	if cfg.Observability.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	log := slog.New(handler)
	slog.SetDefault(log)

	return log
}
