package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	cognitopkg "github.com/jaekwang-park/todo-sync/internal/cognito"
	"github.com/jaekwang-park/todo-sync/internal/config"
	"github.com/jaekwang-park/todo-sync/internal/feed"
	todohttp "github.com/jaekwang-park/todo-sync/internal/http"
	"github.com/jaekwang-park/todo-sync/internal/http/handler"
	"github.com/jaekwang-park/todo-sync/internal/logging"
	"github.com/jaekwang-park/todo-sync/internal/middleware"
	"github.com/jaekwang-park/todo-sync/internal/repository"
	"github.com/jaekwang-park/todo-sync/internal/service"
	"github.com/jaekwang-park/todo-sync/internal/telemetry"
)

func main() {
	// Initial logger at info level; reconfigured after config load
	logger := logging.New("info", "json", os.Stdout)
	slog.SetDefault(logger)

	if err := run(context.Background()); err != nil {
		logger.Error("application failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	if err := config.LoadDotEnv(); err != nil {
		return err
	}
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	slog.SetDefault(logger)

	logger.Info("config loaded",
		"env", cfg.AppEnv,
		"port", cfg.ServerPort,
		"auth_dev_mode", cfg.AuthDevMode,
		"auth_verifier", cfg.AuthVerifier,
		"store", cfg.Store,
		"feed_mode", cfg.FeedMode,
		"log_level", cfg.LogLevel,
	)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var metrics *telemetry.Metrics
	if cfg.Telemetry.Enabled {
		providers, err := telemetry.Init(ctx, telemetry.Config{
			ServiceName: cfg.Telemetry.ServiceName,
			Exporter:    cfg.Telemetry.Exporter,
			Endpoint:    cfg.Telemetry.Endpoint,
		})
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := providers.Shutdown(shutdownCtx); err != nil {
				logger.Error("telemetry shutdown failed", "error", err)
			}
		}()
		metrics = providers.Metrics
		logger.Info("telemetry enabled", "exporter", cfg.Telemetry.Exporter)
	}

	// Store
	var (
		db       *sql.DB
		todoRepo repository.TodoRepository
		store    handler.Pinger
	)
	switch cfg.Store {
	case config.StorePostgres:
		var err error
		db, err = repository.NewDB(cfg.DB.DSN())
		if err != nil {
			return err
		}
		defer db.Close()
		todoRepo = repository.NewPostgresTodo(db)
		store = db
		logger.Info("database connected")
	default:
		todoRepo = repository.NewMemoryTodo()
		logger.Warn("using in-memory store; data is lost on restart")
	}

	// Change feed
	broker := feed.NewBroker(feed.DefaultBuffer, logger)
	defer broker.Close()

	var pub feed.Publisher = broker
	if cfg.FeedMode == config.FeedPostgres {
		pub = feed.NewPGNotifier(db)
		listener := feed.NewPGListener(cfg.DB.DSN(), broker, todoRepo, logger)
		go func() {
			if err := listener.Run(ctx); err != nil {
				logger.Error("feed listener failed", "error", err)
				stop()
			}
		}()
	}
	todoSvc := service.NewTodoService(todoRepo, feed.NewMetered(pub, metrics), logger)

	// Auth
	verifier, err := newVerifier(ctx, cfg, logger)
	if err != nil {
		return err
	}
	auth, err := middleware.NewAuth(verifier, logger)
	if err != nil {
		return fmt.Errorf("failed to create auth middleware: %w", err)
	}

	// HTTP Server
	router := todohttp.NewRouter(todohttp.RouterDeps{
		TodoService: todoSvc,
		Feed:        broker,
		Auth:        auth,
		Store:       store,
		Metrics:     metrics,
		Logger:      logger,
		CORSOrigins: cfg.CORSOrigins,
	})
	srv := todohttp.NewServer(cfg.ServerPort, logger, router)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			stop()
		}
	}()

	logger.Info("server starting", "port", cfg.ServerPort)

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	logger.Info("server stopped gracefully")
	return nil
}

func newVerifier(ctx context.Context, cfg config.Config, logger *slog.Logger) (middleware.TokenVerifier, error) {
	if cfg.AuthDevMode {
		logger.Warn("auth dev mode enabled: bearer token is taken as the user id")
		return middleware.DevVerifier{}, nil
	}

	switch cfg.AuthVerifier {
	case config.VerifierCognito:
		v, err := cognitopkg.NewVerifier(ctx, cfg.Cognito.Region)
		if err != nil {
			return nil, err
		}
		logger.Info("verifying tokens with cognito GetUser", "region", cfg.Cognito.Region)
		return v, nil
	default:
		jwks := middleware.NewJWKSClient(middleware.CognitoJWKSURL(cfg.Cognito.Region, cfg.Cognito.UserPoolID))
		issuer := middleware.CognitoIssuer(cfg.Cognito.Region, cfg.Cognito.UserPoolID)
		logger.Info("verifying tokens against JWKS", "issuer", issuer)
		return middleware.NewJWTVerifier(jwks, issuer, cfg.Cognito.AppClientID), nil
	}
}
