// Package scheduler собирает процесс планировщика напоминаний.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/bill-reminder/internal/config"
	"github.com/magabrotheeeer/bill-reminder/internal/lib/metrics"
	"github.com/magabrotheeeer/bill-reminder/internal/lib/push"
	"github.com/magabrotheeeer/bill-reminder/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/bill-reminder/internal/lib/sl"
	"github.com/magabrotheeeer/bill-reminder/internal/lib/smtp"
	schedulerservice "github.com/magabrotheeeer/bill-reminder/internal/services/scheduler"
	senderservice "github.com/magabrotheeeer/bill-reminder/internal/services/sender"
	"github.com/magabrotheeeer/bill-reminder/internal/storage/repository"
)

const (
	dbReadyRetries = 10
	dbReadyDelay   = 3 * time.Second
)

// App представляет приложение планировщика.
type App struct {
	schedulerService *schedulerservice.SchedulerService
	db               *repository.Storage
	conn             *amqp.Connection
	ch               *amqp.Channel
	cronSpec         string
	metricsAddr      string
	logger           *slog.Logger
}

func waitForDB(db *repository.Storage) error {
	for range dbReadyRetries {
		err := repository.CheckDatabaseReady(db)
		if err == nil {
			return nil
		}
		time.Sleep(dbReadyDelay)
	}
	return errors.New("database not ready after retries")
}

// New создает новый экземпляр приложения планировщика.
// В режиме queue напоминания публикуются в RabbitMQ, в режиме direct
// доставляются в этом же процессе.
func New(_ context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	loc, err := cfg.Scheduler.Location()
	if err != nil {
		return nil, err
	}

	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect storage: %w", err)
	}
	if err := waitForDB(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	app := &App{
		db:          db,
		cronSpec:    cfg.CronSpec,
		metricsAddr: cfg.MetricsAddress,
		logger:      logger,
	}

	var dispatcher schedulerservice.Dispatcher
	switch cfg.DispatchMode {
	case config.DispatchDirect:
		dispatcher = senderservice.NewSenderService(
			smtp.NewTransport(cfg.SMTP, logger),
			push.NewClient(cfg.WebPush),
			db,
			logger,
			cfg.PushConcurrency,
		)
	default:
		conn, err := rabbitmq.Connect(cfg.RabbitMQURL, cfg.RabbitMQMaxRetries, cfg.RabbitMQRetryDelay)
		if err != nil {
			app.closeResources()
			return nil, fmt.Errorf("failed to connect RabbitMQ: %w", err)
		}
		app.conn = conn

		ch, err := rabbitmq.SetupChannel(conn, rabbitmq.GetReminderQueues())
		if err != nil {
			app.closeResources()
			return nil, fmt.Errorf("failed to setup RabbitMQ channel: %w", err)
		}
		app.ch = ch
		dispatcher = schedulerservice.NewQueueDispatcher(rabbitmq.NewReminderPublisher(ch))
	}

	app.schedulerService = schedulerservice.NewSchedulerService(db, dispatcher, logger, loc)
	logger.Info("scheduler configured",
		slog.String("dispatch_mode", cfg.DispatchMode),
		slog.String("timezone", loc.String()),
	)
	return app, nil
}

func (a *App) closeResources() {
	if a.ch != nil {
		if err := a.ch.Close(); err != nil {
			a.logger.Error("failed to close channel", sl.Err(err))
		}
	}
	if a.conn != nil {
		if err := a.conn.Close(); err != nil {
			a.logger.Error("failed to close connection", sl.Err(err))
		}
	}
	if err := a.db.Close(); err != nil {
		a.logger.Error("failed to close storage", sl.Err(err))
	}
}

// Run запускает планировщик и сервер метрик и ждёт отмены ctx.
// Перед выходом дожидается завершения текущего тика.
func (a *App) Run(ctx context.Context) error {
	defer a.closeResources()

	if err := a.schedulerService.Start(ctx, a.cronSpec); err != nil {
		return err
	}

	go func() {
		if err := metrics.Serve(ctx, a.metricsAddr, a.logger); err != nil {
			a.logger.Error("metrics server stopped", sl.Err(err))
		}
	}()

	<-ctx.Done()

	a.logger.Info("shutting down scheduler service")
	<-a.schedulerService.Stop().Done()
	return nil
}
