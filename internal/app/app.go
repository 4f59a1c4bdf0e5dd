package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/rafaelssenna/LUNA-PAINEL-BACK/internal/adapter/repository/postgres"
	"github.com/rafaelssenna/LUNA-PAINEL-BACK/internal/agent"
	"github.com/rafaelssenna/LUNA-PAINEL-BACK/internal/api"
	"github.com/rafaelssenna/LUNA-PAINEL-BACK/internal/auth"
	"github.com/rafaelssenna/LUNA-PAINEL-BACK/internal/buffer"
	"github.com/rafaelssenna/LUNA-PAINEL-BACK/internal/config"
	"github.com/rafaelssenna/LUNA-PAINEL-BACK/internal/domain/conversation"
	"github.com/rafaelssenna/LUNA-PAINEL-BACK/internal/domain/instance"
	"github.com/rafaelssenna/LUNA-PAINEL-BACK/internal/domain/outreach"
	"github.com/rafaelssenna/LUNA-PAINEL-BACK/internal/loop"
	"github.com/rafaelssenna/LUNA-PAINEL-BACK/internal/user"
	"github.com/rafaelssenna/LUNA-PAINEL-BACK/pkg/db"
	"github.com/rafaelssenna/LUNA-PAINEL-BACK/pkg/llm"
	zaplog "github.com/rafaelssenna/LUNA-PAINEL-BACK/pkg/log"
	"github.com/rafaelssenna/LUNA-PAINEL-BACK/pkg/snowflake"
	"github.com/rafaelssenna/LUNA-PAINEL-BACK/pkg/uazapi"
	"github.com/rafaelssenna/LUNA-PAINEL-BACK/sql/migrations"
)

// RunServer starts the HTTP server and background workers.
func RunServer() {
	app := fx.New(
		fx.Provide(
			// Config
			config.Load,

			// Infrastructure (Adapters)
			uazapi.NewFromEnv,
			llm.NewFromEnv,

			// Domain Adapters (Bind Interfaces)
			fx.Annotate(
				postgres.NewInstanceRepository,
				fx.As(new(instance.Repository)),
			),
			fx.Annotate(
				postgres.NewMemoryRepository,
				fx.As(new(conversation.MemoryRepository)),
			),
			fx.Annotate(
				postgres.NewMessageRepository,
				fx.As(new(conversation.MessageRepository)),
			),
			fx.Annotate(
				postgres.NewSettingsRepository,
				fx.As(new(outreach.SettingsRepository)),
			),
			fx.Annotate(
				postgres.NewQueueRepository,
				fx.As(new(outreach.QueueRepository)),
			),
			fx.Annotate(
				postgres.NewTotalsRepository,
				fx.As(new(outreach.TotalsRepository)),
			),
			fx.Annotate(
				postgres.NewEventRepository,
				fx.As(new(outreach.EventRepository)),
			),

			// Core services
			agent.NewLockRegistry,
			newPipeline,
			newBuffer,
			loop.NewHub,
			newLoopManager,
			loop.NewService,
			loop.NewImporter,
			loop.NewScheduler,

			// Auth & Users
			auth.NewManager,
			user.NewService,

			// API
			api.NewRouter,
		),
		db.Module,        // Database Module
		snowflake.Module, // Snowflake ID Module
		zaplog.Module,    // Logger Module
		fx.Invoke(registerHooks),
	)

	app.Run()
}

// RunMigrations executes database migrations (up or down).
func RunMigrations(command string) error {
	if command == "" {
		command = "up"
	}

	cfg := config.Load()
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	logger.Info("Starting database migration...", zap.String("command", command))

	dbURL := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		cfg.DBUser,
		cfg.DBPassword,
		cfg.DBHost,
		cfg.DBPort,
		cfg.DBName,
		cfg.DBSSLMode,
	)

	d, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("load migration files: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", d, dbURL)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}

	switch command {
	case "up":
		if err := m.Up(); err != nil && err != migrate.ErrNoChange {
			return fmt.Errorf("migration up failed: %w", err)
		}
		logger.Info("Migration up applied")
	case "down":
		if err := m.Down(); err != nil && err != migrate.ErrNoChange {
			return fmt.Errorf("migration down failed: %w", err)
		}
		logger.Info("Migration down applied")
	default:
		return fmt.Errorf("unknown migration command: %s", command)
	}

	return nil
}

func registerHooks(
	lc fx.Lifecycle,
	router *api.Router,
	buf *buffer.Registry,
	scheduler *loop.Scheduler,
	manager *loop.Manager,
	cfg *config.Config,
	logger *zap.Logger,
) {
	var sweepCancel context.CancelFunc
	var schedulerCancel context.CancelFunc

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("Starting HTTP server", zap.String("port", cfg.Port))

			sweepCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
			sweepCancel = cancel
			go buf.Run(sweepCtx)

			schedulerCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
			schedulerCancel = cancel
			go scheduler.Run(schedulerCtx)

			go func() {
				if err := router.Run(); err != nil && err != http.ErrServerClosed {
					logger.Fatal("Server failed to start", zap.Error(err))
				}
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("Shutting down HTTP server gracefully...")

			if sweepCancel != nil {
				sweepCancel()
			}
			if schedulerCancel != nil {
				schedulerCancel()
			}
			manager.StopAll()

			shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			defer cancel()

			if err := router.Shutdown(shutdownCtx); err != nil {
				logger.Error("Server forced to shutdown", zap.Error(err))
				return err
			}

			logger.Info("HTTP server stopped gracefully")
			return nil
		},
	})
}

func newPipeline(
	instances instance.Repository,
	memory conversation.MemoryRepository,
	messages conversation.MessageRepository,
	locks *agent.LockRegistry,
	model *llm.Client,
	gateway *uazapi.Client,
	cfg *config.Config,
	logger *zap.Logger,
) *agent.Pipeline {
	return agent.NewPipeline(instances, memory, messages, locks, model, gateway, cfg, logger)
}

func newLoopManager(
	instances instance.Repository,
	settings outreach.SettingsRepository,
	queue outreach.QueueRepository,
	totals outreach.TotalsRepository,
	gateway *uazapi.Client,
	hub *loop.Hub,
	logger *zap.Logger,
) *loop.Manager {
	return loop.NewManager(instances, settings, queue, totals, gateway, hub, logger)
}

// newBuffer wires the debounce buffer to the reply pipeline.
func newBuffer(cfg *config.Config, pipeline *agent.Pipeline, logger *zap.Logger) *buffer.Registry {
	flush := func(ctx context.Context, key buffer.Key, text string) {
		if err := pipeline.Process(ctx, key.InstanceID, key.ChatID, text); err != nil {
			logger.Error("flush_process_failed",
				zap.String("instance_id", key.InstanceID),
				zap.String("chat_id", key.ChatID),
				zap.Error(err),
			)
		}
	}
	return buffer.NewRegistry(
		time.Duration(cfg.DebounceSeconds)*time.Second,
		time.Duration(cfg.BufferStaleMinutes)*time.Minute,
		flush,
		logger,
	)
}
