package api

import (
	"log/slog"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
	"golang.org/x/time/rate"

	"github.com/magabrotheeeer/bill-reminder/internal/http/handlers/auth/login"
	"github.com/magabrotheeeer/bill-reminder/internal/http/handlers/auth/me"
	"github.com/magabrotheeeer/bill-reminder/internal/http/handlers/auth/register"
	"github.com/magabrotheeeer/bill-reminder/internal/http/handlers/notification/subscribe"
	notificationtest "github.com/magabrotheeeer/bill-reminder/internal/http/handlers/notification/test"
	"github.com/magabrotheeeer/bill-reminder/internal/http/handlers/subscription/create"
	"github.com/magabrotheeeer/bill-reminder/internal/http/handlers/subscription/health"
	"github.com/magabrotheeeer/bill-reminder/internal/http/handlers/subscription/list"
	"github.com/magabrotheeeer/bill-reminder/internal/http/handlers/subscription/paid"
	"github.com/magabrotheeeer/bill-reminder/internal/http/handlers/subscription/read"
	"github.com/magabrotheeeer/bill-reminder/internal/http/handlers/subscription/remove"
	"github.com/magabrotheeeer/bill-reminder/internal/http/handlers/subscription/sum"
	"github.com/magabrotheeeer/bill-reminder/internal/http/handlers/subscription/update"
	"github.com/magabrotheeeer/bill-reminder/internal/http/middlewarectx"
	authservice "github.com/magabrotheeeer/bill-reminder/internal/services/auth"
	senderservice "github.com/magabrotheeeer/bill-reminder/internal/services/sender"
	subservice "github.com/magabrotheeeer/bill-reminder/internal/services/subscription"
)

// Лимит запросов регистрации и входа с одного адреса.
const (
	authRateLimit = rate.Limit(1)
	authRateBurst = 5
)

// Services набор сервисов, которые обслуживают HTTP API.
type Services struct {
	Auth         *authservice.AuthService
	Subscription *subservice.SubscriptionService
	Sender       *senderservice.SenderService
	DB           health.Pinger
}

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(r chi.Router, logger *slog.Logger, svc Services) {
	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.Logger,
		middleware.Recoverer,
		middleware.URLFormat,
	)

	r.Get("/health", health.New(logger, svc.DB).ServeHTTP)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/docs/*", httpSwagger.WrapHandler)

	r.Route("/api/v1", func(r chi.Router) {
		// Публичные маршруты
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.RateLimitMiddleware(logger, authRateLimit, authRateBurst))
			r.Post("/register", register.New(logger, svc.Auth).ServeHTTP)
			r.Post("/login", login.New(logger, svc.Auth).ServeHTTP)
		})

		// Маршруты с JWT
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.JWTMiddleware(svc.Auth, logger))

			r.Get("/me", me.New(logger, svc.Auth).ServeHTTP)

			r.Route("/subscriptions", func(r chi.Router) {
				r.Get("/", list.New(logger, svc.Subscription).ServeHTTP)
				r.Post("/", create.New(logger, svc.Subscription).ServeHTTP)
				r.Get("/sum", sum.New(logger, svc.Subscription).ServeHTTP)
				r.Get("/{id}", read.New(logger, svc.Subscription).ServeHTTP)
				r.Put("/{id}", update.New(logger, svc.Subscription).ServeHTTP)
				r.Delete("/{id}", remove.New(logger, svc.Subscription).ServeHTTP)
				r.Post("/{id}/paid", paid.New(logger, svc.Subscription).ServeHTTP)
			})

			r.Post("/notifications/subscribe", subscribe.New(logger, svc.Sender).ServeHTTP)
			r.Post("/notifications/test", notificationtest.New(logger, svc.Sender).ServeHTTP)
		})
	})
}
