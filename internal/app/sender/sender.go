// Package sender собирает процесс доставки напоминаний из очереди.
package sender

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/bill-reminder/internal/config"
	"github.com/magabrotheeeer/bill-reminder/internal/lib/metrics"
	"github.com/magabrotheeeer/bill-reminder/internal/lib/push"
	"github.com/magabrotheeeer/bill-reminder/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/bill-reminder/internal/lib/sl"
	"github.com/magabrotheeeer/bill-reminder/internal/lib/smtp"
	senderservice "github.com/magabrotheeeer/bill-reminder/internal/services/sender"
	"github.com/magabrotheeeer/bill-reminder/internal/storage/repository"
)

// App читает напоминания из RabbitMQ и доставляет их.
type App struct {
	db            *repository.Storage
	conn          *amqp.Connection
	ch            *amqp.Channel
	senderService *senderservice.SenderService
	metricsAddr   string
	logger        *slog.Logger
}

// New подключает хранилище и брокер и собирает сервис доставки.
func New(_ context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect storage: %w", err)
	}

	conn, err := rabbitmq.Connect(cfg.RabbitMQURL, cfg.RabbitMQMaxRetries, cfg.RabbitMQRetryDelay)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect RabbitMQ: %w", err)
	}

	ch, err := rabbitmq.SetupChannel(conn, rabbitmq.GetReminderQueues())
	if err != nil {
		_ = conn.Close()
		_ = db.Close()
		return nil, fmt.Errorf("failed to setup RabbitMQ channel: %w", err)
	}

	senderService := senderservice.NewSenderService(
		smtp.NewTransport(cfg.SMTP, logger),
		push.NewClient(cfg.WebPush),
		db,
		logger,
		cfg.PushConcurrency,
	)

	return &App{
		db:            db,
		conn:          conn,
		ch:            ch,
		senderService: senderService,
		metricsAddr:   cfg.MetricsAddress,
		logger:        logger,
	}, nil
}

// Run запускает чтение очереди напоминаний и ждёт отмены ctx.
// Соединения закрываются после завершения начатых доставок.
func (a *App) Run(ctx context.Context) error {
	consumed, err := rabbitmq.ConsumerMessage(ctx, a.ch, rabbitmq.ReminderQueue, a.logger, a.senderService.HandleReminderMessage)
	if err != nil {
		a.logger.Error("failed to start reminder consumer", sl.Err(err))
		a.close()
		return err
	}

	go func() {
		if err := metrics.Serve(ctx, a.metricsAddr, a.logger); err != nil {
			a.logger.Error("metrics server stopped", sl.Err(err))
		}
	}()

	<-ctx.Done()
	a.logger.Info("sender service shutting down gracefully")
	<-consumed
	a.close()
	return nil
}

func (a *App) close() {
	if err := a.ch.Close(); err != nil {
		a.logger.Error("failed to close channel", sl.Err(err))
	}
	if err := a.conn.Close(); err != nil {
		a.logger.Error("failed to close connection", sl.Err(err))
	}
	if err := a.db.Close(); err != nil {
		a.logger.Error("failed to close storage", sl.Err(err))
	}
}
