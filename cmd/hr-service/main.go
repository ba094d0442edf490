package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ministry-hr/internal/config"
	"ministry-hr/internal/httpapi"
	"ministry-hr/internal/models"
	"ministry-hr/internal/notify"
	"ministry-hr/internal/store"
	"ministry-hr/internal/store/memory"
	"ministry-hr/internal/store/postgres"
	"ministry-hr/internal/telemetry"
	"ministry-hr/internal/workflow"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	cfg := config.Load()
	logger := config.NewLogger(cfg.LogLevel, cfg.LogFormat)

	shutdownTracing := telemetry.Setup("hr-service", logger)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			logger.WithError(err).Warn("telemetry shutdown error")
		}
	}()

	var st store.Store
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
		if err != nil {
			logger.WithError(err).Fatal("db connect")
		}
		defer pool.Close()
		st = postgres.NewStore(pool, postgres.Options{SessionTTL: cfg.SessionTTL})
	} else {
		logger.Warn("DB_DSN not set, using in-memory store; data is lost on restart")
		st = memory.NewStore(cfg.SessionTTL)
	}

	if cfg.BootstrapAdminUser != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		admin, err := st.CreateUser(ctx, bootstrapAdmin(cfg), cfg.BootstrapAdminPassword)
		cancel()
		switch {
		case errors.Is(err, store.ErrUserExists):
			logger.WithField("user", admin.Username).Info("bootstrap admin already present")
		case err != nil:
			logger.WithError(err).Fatal("seed bootstrap admin")
		default:
			logger.WithField("user", admin.Username).Info("bootstrap admin created")
		}
	}

	engine := workflow.NewEngine(st, workflow.Options{
		Timeout: cfg.WorkflowTimeout,
		Logger:  logger,
	})
	handler := httpapi.NewHandler(st, engine, logger).WithUserAdmin(st)
	limiter := httpapi.NewRateLimiter(httpapi.RateLimitConfig{
		IPPerMinute:    cfg.RateLimitPerMinute,
		IPBurst:        cfg.RateLimitBurst,
		LoginPerMinute: cfg.LoginRateLimitPerMinute,
		LoginBurst:     cfg.LoginRateLimitBurst,
		TrustedProxies: cfg.TrustedProxies,
	})

	routes := httpapi.AuthMiddleware(st, logger, handler.Routes())
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      otelhttp.NewHandler(httpapi.LoggingMiddleware(logger, limiter.Middleware(routes)), "hr-service"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.NotifyEnabled && cfg.NotifyInterval > 0 {
		provider, err := notify.NewProvider(notify.ProviderConfig{
			Kind:          cfg.NotifyProvider,
			WebhookURL:    cfg.NotifyWebhookURL,
			WebhookToken:  cfg.NotifyWebhookKey,
			TelegramToken: cfg.NotifyTelegramKey,
			Logger:        logger,
		})
		if err != nil {
			logger.WithError(err).Fatal("notification provider")
		}
		w := notify.New(st, provider, notify.Config{
			BatchSize:   cfg.NotifyBatchSize,
			MaxAttempts: cfg.NotifyMaxAttempts,
			Recipient:   cfg.NotifyRecipient,
			Logger:      logger,
		})
		go notify.Start(ctx, cfg.NotifyInterval, w)
	}

	go func() {
		logger.WithField("addr", server.Addr).Info("hr-service listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("server error")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("shutdown error")
	}
}

func bootstrapAdmin(cfg config.Config) models.User {
	return models.User{
		Username:    cfg.BootstrapAdminUser,
		DisplayName: "HR Administrator",
		Role:        models.RoleAdminHR,
	}
}
