// Package metrics описывает метрики Prometheus планировщика и доставки напоминаний
// и отдаёт их по HTTP для фоновых процессов.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/magabrotheeeer/bill-reminder/internal/lib/sl"
)

const namespace = "bill_reminder"

// Каналы и результаты доставки для меток Notifications.
const (
	ChannelEmail = "email"
	ChannelPush  = "push"
	ChannelQueue = "queue"

	ResultSent   = "sent"
	ResultFailed = "failed"
	ResultGone   = "gone"
)

var (
	// Ticks число срабатываний планировщика.
	Ticks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "scheduler",
		Name:      "ticks_total",
		Help:      "Number of scheduler ticks.",
	})
	// Candidates число подписок, найденных по времени напоминания.
	Candidates = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "scheduler",
		Name:      "candidates_total",
		Help:      "Subscriptions whose preferred time matched the tick minute.",
	})
	// Matched число подписок, прошедших проверку окна по дням.
	Matched = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "scheduler",
		Name:      "matched_total",
		Help:      "Subscriptions selected for a reminder.",
	})
	TickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "scheduler",
		Name:      "tick_duration_seconds",
		Help:      "Duration of a scheduler tick.",
		Buckets:   prometheus.DefBuckets,
	})
	// Notifications результаты доставки по каналам.
	Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sender",
		Name:      "notifications_total",
		Help:      "Delivery attempts by channel and result.",
	}, []string{"channel", "result"})
	PrunedEndpoints = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sender",
		Name:      "pruned_endpoints_total",
		Help:      "Push endpoints removed after a permanent failure.",
	})
)

// Router возвращает маршрутизатор фонового процесса с единственным маршрутом /metrics.
func Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

// Serve поднимает HTTP-сервер с /metrics на addr и останавливает его при отмене ctx.
func Serve(ctx context.Context, addr string, log *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("metrics server starting", slog.String("address", addr))
		err := srv.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("failed to shutdown metrics server", sl.Err(err))
			return err
		}
		return nil
	}
}
