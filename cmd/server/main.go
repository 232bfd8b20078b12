// Package main - точка входа API-сервера StudyQuest.
//
// Сервер обслуживает REST API для клиентов:
// - Объявление экзаменов и генерация планов подготовки
// - Отметка выполнения задач с начислением опыта и серий
// - Чтение прогресса, статуса серии и доски лучших серий
//
// Фоновые задачи (предупреждения о серии, утренняя сводка) живут
// в отдельном процессе worker.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/studyquest-hub/studyquest-backend/config"
	"github.com/studyquest-hub/studyquest-backend/internal/application/command"
	"github.com/studyquest-hub/studyquest-backend/internal/application/eventhandler"
	"github.com/studyquest-hub/studyquest-backend/internal/application/query"
	"github.com/studyquest-hub/studyquest-backend/internal/domain/progression"
	"github.com/studyquest-hub/studyquest-backend/internal/domain/shared"
	"github.com/studyquest-hub/studyquest-backend/internal/infrastructure/external/notifier"
	"github.com/studyquest-hub/studyquest-backend/internal/infrastructure/messaging"
	"github.com/studyquest-hub/studyquest-backend/internal/infrastructure/persistence/postgres"
	"github.com/studyquest-hub/studyquest-backend/internal/infrastructure/persistence/redis"
	httpapi "github.com/studyquest-hub/studyquest-backend/internal/interface/http"
	"github.com/studyquest-hub/studyquest-backend/pkg/logger"
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
	log.Info("starting StudyQuest API server",
		"env", string(cfg.App.Environment),
		"version", cfg.App.Version,
		"timezone", cfg.App.Timezone,
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. ПОДКЛЮЧЕНИЕ К БАЗЕ ДАННЫХ
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
	log.Info("database connection established")

	// ─────────────────────────────────────────────────────────────────────────
	// 4. МИГРАЦИИ
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("checking database migrations...")
	migrator := postgres.NewMigrator(dbConn)
	if err := migrator.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	log.Info("database schema is up to date")

	// ─────────────────────────────────────────────────────────────────────────
	// 5. REDIS (опционально)
	// ─────────────────────────────────────────────────────────────────────────
	var redisCache *redis.Cache
	if !cfg.Redis.Disabled {
		log.Info("connecting to Redis...")
		redisCfg := redis.DefaultConfig()
		redisCfg.Host = cfg.Redis.Host
		redisCfg.Port = cfg.Redis.Port
		redisCfg.Password = cfg.Redis.Password
		redisCfg.DB = cfg.Redis.DB
		redisCfg.PoolSize = cfg.Redis.PoolSize
		redisCfg.MinIdleConns = cfg.Redis.MinIdleConns
		redisCfg.DialTimeout = cfg.Redis.DialTimeout
		redisCfg.ReadTimeout = cfg.Redis.ReadTimeout
		redisCfg.WriteTimeout = cfg.Redis.WriteTimeout

		redisCache, err = redis.NewCache(redisCfg)
		if err != nil {
			log.Warn("failed to connect to Redis, caching disabled", "error", err)
			redisCache = nil
		} else {
			defer redisCache.Close()
			log.Info("Redis connection established")
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. РЕПОЗИТОРИИ
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing repositories...")
	examRepo := postgres.NewExamRepository(dbConn)
	taskRepo := postgres.NewTaskRepository(dbConn)

	var stateRepo progression.Repository = postgres.NewUserStateRepository(dbConn)
	if redisCache != nil {
		stateRepo = redis.NewCachedStateRepository(stateRepo, redisCache, log)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 7. EVENT BUS И ОБРАБОТЧИКИ СОБЫТИЙ
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing event bus...")
	busCfg := messaging.DefaultConfig()
	busCfg.Logger = log
	eventBus := messaging.NewInMemoryEventBus(busCfg)
	defer func() {
		log.Info("closing event bus...")
		_ = eventBus.Close()
	}()

	notifierClient := newNotifier(cfg, log)
	subscribeHandlers(eventBus, notifierClient, log)

	// ─────────────────────────────────────────────────────────────────────────
	// 8. ДВИЖОК ПРОГРЕССА И CQRS-ОБРАБОТЧИКИ
	// ─────────────────────────────────────────────────────────────────────────
	engine := progression.NewEngine(progression.BadgeMode(cfg.Gamification.BadgeAwardMode))

	deps := httpapi.Dependencies{
		CreateExamHandler:          command.NewCreateExamHandler(examRepo, taskRepo, nil, eventBus),
		DeleteExamHandler:          command.NewDeleteExamHandler(examRepo, taskRepo),
		CompleteTaskHandler:        command.NewCompleteTaskHandler(taskRepo, stateRepo, engine, eventBus),
		UseStreakProtectionHandler: command.NewUseStreakProtectionHandler(stateRepo, engine, eventBus),
		ListExamsHandler:           query.NewListExamsHandler(examRepo),
		GetExamPlanHandler:         query.NewGetExamPlanHandler(examRepo, taskRepo),
		GetDailyPlanHandler:        query.NewGetDailyPlanHandler(taskRepo, examRepo),
		GetProgressHandler:         query.NewGetProgressHandler(stateRepo),
		GetStreakStatusHandler:     query.NewGetStreakStatusHandler(stateRepo, engine),
		GetTopStreaksHandler:       query.NewGetTopStreaksHandler(stateRepo),
		Logger:                     logger.Default(),
		HealthChecker:              &healthChecker{db: dbConn, cache: redisCache},
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 9. HTTP СЕРВЕР
	// ─────────────────────────────────────────────────────────────────────────
	srvCfg := httpapi.DefaultConfig()
	srvCfg.Host = cfg.HTTP.Host
	srvCfg.Port = cfg.HTTP.Port
	srvCfg.ReadTimeout = cfg.HTTP.ReadTimeout
	srvCfg.WriteTimeout = cfg.HTTP.WriteTimeout
	srvCfg.IdleTimeout = cfg.HTTP.IdleTimeout
	srvCfg.EnableCORS = cfg.HTTP.EnableCORS
	srvCfg.AllowedOrigins = cfg.HTTP.AllowedOrigins
	srvCfg.RateLimitPerMinute = cfg.HTTP.RateLimitPerMinute

	srv := httpapi.NewServer(srvCfg, deps)
	errCh := srv.StartAsync()
	log.Info("StudyQuest API server is running", "address", srv.Address())

	// ─────────────────────────────────────────────────────────────────────────
	// 10. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", "signal", sig.String())
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("shutdown completed successfully")
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// WIRING HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// newNotifier создаёт клиент доставки уведомлений (nil = уведомления выключены).
func newNotifier(cfg *config.Config, log *slog.Logger) eventhandler.Notifier {
	if cfg.Notifier.WebhookURL == "" {
		log.Info("notifier webhook not configured, notifications disabled")
		return nil
	}

	clientCfg := notifier.DefaultClientConfig(cfg.Notifier.WebhookURL)
	clientCfg.AuthToken = cfg.Notifier.AuthToken
	clientCfg.Timeout = cfg.Notifier.RequestTimeout
	clientCfg.RetryAttempts = cfg.Notifier.RetryAttempts
	clientCfg.RetryDelay = cfg.Notifier.RetryDelay
	clientCfg.Logger = log

	return notifier.NewClient(clientCfg)
}

// subscribeHandlers подписывает обработчики доменных событий.
func subscribeHandlers(bus *messaging.InMemoryEventBus, n eventhandler.Notifier, log *slog.Logger) {
	taskCompleted := eventhandler.NewOnTaskCompletedHandler(n, log)
	_ = bus.Subscribe(taskCompleted.EventType(), taskCompleted.Handle)

	progressionEvents := eventhandler.NewOnProgressionEventsHandler(n, log)
	for _, et := range progressionEvents.EventTypes() {
		_ = bus.Subscribe(et, progressionEvents.Handle)
	}
}

// healthChecker проверяет доступность зависимостей для health-эндпоинтов.
type healthChecker struct {
	db    *postgres.Connection
	cache *redis.Cache
}

func (h *healthChecker) CheckHealth(ctx context.Context) map[string]error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	checks := map[string]error{
		"postgres": h.db.Ping(ctx),
	}
	if h.cache != nil {
		checks["redis"] = h.cache.Ping(ctx)
	}
	return checks
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

// Проверка на этапе компиляции: шина событий реализует контракт публикации.
var _ shared.EventPublisher = (*messaging.InMemoryEventBus)(nil)
