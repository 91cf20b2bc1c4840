// Package api собирает HTTP API: хранилище, кэш, сервисы и маршруты.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"

	// Регистрация описания API для /docs.
	_ "github.com/magabrotheeeer/bill-reminder/docs"
	"github.com/magabrotheeeer/bill-reminder/internal/cache"
	"github.com/magabrotheeeer/bill-reminder/internal/config"
	"github.com/magabrotheeeer/bill-reminder/internal/lib/jwt"
	"github.com/magabrotheeeer/bill-reminder/internal/lib/push"
	"github.com/magabrotheeeer/bill-reminder/internal/lib/sl"
	"github.com/magabrotheeeer/bill-reminder/internal/lib/smtp"
	"github.com/magabrotheeeer/bill-reminder/internal/migrations"
	authservice "github.com/magabrotheeeer/bill-reminder/internal/services/auth"
	senderservice "github.com/magabrotheeeer/bill-reminder/internal/services/sender"
	subservice "github.com/magabrotheeeer/bill-reminder/internal/services/subscription"
	"github.com/magabrotheeeer/bill-reminder/internal/storage/repository"
)

const shutdownTimeout = 15 * time.Second

// App HTTP API сервиса напоминаний.
type App struct {
	server *http.Server
	logger *slog.Logger
	db     *repository.Storage
	cache  *cache.Cache
}

// New подключает хранилище и кэш, применяет миграции и собирает маршруты.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, err
	}
	if err = migrations.Run(db.DB, cfg.MigrationsPath); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	cacheRedis, err := cache.InitServer(ctx, cfg.RedisConnection)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("cache not initialized: %w", err)
	}

	jwtMaker := jwt.NewJWTMaker(cfg.JWTSecretKey, cfg.TokenTTL)
	senderService := senderservice.NewSenderService(
		smtp.NewTransport(cfg.SMTP, logger),
		push.NewClient(cfg.WebPush),
		db,
		logger,
		cfg.PushConcurrency,
	)

	router := chi.NewRouter()
	RegisterRoutes(router, logger, Services{
		Auth:         authservice.NewAuthService(db, jwtMaker),
		Subscription: subservice.NewSubscriptionService(db, cacheRedis, logger),
		Sender:       senderService,
		DB:           db.DB,
	})

	srv := &http.Server{
		Addr:         cfg.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.TimeoutHTTP,
		WriteTimeout: cfg.TimeoutHTTP,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return &App{
		server: srv,
		logger: logger,
		db:     db,
		cache:  cacheRedis,
	}, nil
}

// Run запускает HTTP сервер и плавно останавливает его при отмене ctx.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	var err error
	select {
	case err = <-errCh:
	case <-ctx.Done():
		timeoutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		a.logger.Info("shutting down HTTP server gracefully")
		err = a.server.Shutdown(timeoutCtx)
	}

	if cerr := a.cache.Close(); cerr != nil {
		a.logger.Error("failed to close cache", sl.Err(cerr))
	}
	if cerr := a.db.Close(); cerr != nil {
		a.logger.Error("failed to close storage", sl.Err(cerr))
	}
	return err
}
