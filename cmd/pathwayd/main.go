package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pathwaylabs/pathway/internal/api"
	"github.com/pathwaylabs/pathway/internal/auth"
	"github.com/pathwaylabs/pathway/internal/config"
	"github.com/pathwaylabs/pathway/internal/content"
	"github.com/pathwaylabs/pathway/internal/domain"
	"github.com/pathwaylabs/pathway/internal/events"
	"github.com/pathwaylabs/pathway/internal/runner"
	"github.com/pathwaylabs/pathway/internal/session"
	"github.com/pathwaylabs/pathway/internal/storage/postgres"
	"github.com/pathwaylabs/pathway/internal/storage/sqlite"
	"github.com/pathwaylabs/pathway/internal/timer"
	"github.com/pathwaylabs/pathway/internal/tutor"
)

func main() {
	if err := run(); err != nil {
		slog.Error("pathwayd error", "error", err)
		os.Exit(1)
	}
}

// stores bundles the persistence interfaces regardless of driver.
type stores struct {
	runs   domain.RunStore
	chats  domain.ChatStore
	hints  domain.HintStore
	timers domain.TimerStore
	tokens domain.TokenStore
	close  func()
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logLevel := slog.LevelInfo
	if cfg.Debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	ctx := context.Background()

	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.close()

	repo := content.NewCachedRepository(content.NewLoader(cfg.ContentPath), cfg.ContentCacheTTL, nil)

	gateway := tutor.NewResilientGateway(tutor.NewClient(tutor.ClientConfig{
		BaseURL: cfg.GatewayURL,
		APIKey:  cfg.GatewayAPIKey,
		Timeout: cfg.GatewayTimeout,
	}), tutor.DefaultResilientConfig())
	defer gateway.Close()

	var publisher events.Publisher = events.NopPublisher{}
	if cfg.RabbitMQURL != "" {
		conn, err := events.NewConnection(cfg.RabbitMQURL)
		if err != nil {
			// The event bus is analytics-only; the service runs without it.
			logger.Warn("event bus unavailable, publishing disabled", "error", err)
		} else {
			publisher = events.NewAMQPPublisher(conn)
		}
	}
	defer publisher.Close()

	var runnerClient *runner.Client
	if cfg.RunnerURL != "" {
		runnerClient = runner.NewClient(runner.ClientConfig{
			BaseURL: cfg.RunnerURL,
			Timeout: cfg.RunnerTimeout,
		})
	}

	server := api.NewServer(cfg, api.Deps{
		Auth:      auth.NewService(st.tokens),
		Sessions:  session.NewService(st.runs, st.chats, publisher, logger),
		Content:   repo,
		Runs:      st.runs,
		Chats:     st.chats,
		Hints:     st.hints,
		Gateway:   gateway,
		Timers:    timer.NewService(st.timers, publisher, logger),
		Runner:    runnerClient,
		Publisher: publisher,
		Logger:    logger,
	})

	done := make(chan struct{})
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh

		logger.Info("received signal, shutting down", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Error("shutdown error", "error", err)
		}
		close(done)
	}()

	if err := server.Start(); err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	<-done
	logger.Info("pathwayd stopped")
	return nil
}

func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	switch cfg.DatabaseDriver {
	case "postgres":
		pool, err := postgres.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := postgres.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
		return &stores{
			runs:   postgres.NewRunStore(pool),
			chats:  postgres.NewChatStore(pool),
			hints:  postgres.NewHintStore(pool),
			timers: postgres.NewTimerStore(pool),
			tokens: postgres.NewTokenStore(pool),
			close:  pool.Close,
		}, nil

	default:
		db, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		if err := db.Migrate(); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate sqlite: %w", err)
		}
		return &stores{
			runs:   sqlite.NewRunStore(db),
			chats:  sqlite.NewChatStore(db),
			hints:  sqlite.NewHintStore(db),
			timers: sqlite.NewTimerStore(db),
			tokens: sqlite.NewTokenStore(db),
			close:  func() { db.Close() },
		}, nil
	}
}
