package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/bill-reminder/internal/lib/sl"
)

const maxInFlight = 10

// ConsumerMessage запускает чтение очереди queueName и обработку сообщений handler,
// не более maxInFlight одновременно. Успешно обработанное сообщение подтверждается,
// остальные отклоняются без возврата в очередь. Чтение прекращается при отмене ctx
// или закрытии канала.
//
// Возвращённый канал закрывается, когда чтение остановлено и все начатые
// обработчики завершились. Канал amqp можно закрывать только после этого.
func ConsumerMessage(ctx context.Context, ch *amqp.Channel, queueName string, log *slog.Logger,
	handler func(ctx context.Context, body []byte) error) (<-chan struct{}, error) {
	const op = "rabbitmq.ConsumerMessage"
	delivery, err := ch.Consume(queueName, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	log = log.With(slog.String("op", op), slog.String("queue", queueName))
	return consume(ctx, delivery, log, handler), nil
}

func consume(ctx context.Context, delivery <-chan amqp.Delivery, log *slog.Logger,
	handler func(ctx context.Context, body []byte) error) <-chan struct{} {
	// Начатая доставка доводится до конца и после отмены ctx.
	handlerCtx := context.WithoutCancel(ctx)
	done := make(chan struct{})
	sem := make(chan struct{}, maxInFlight)
	var wg sync.WaitGroup

	go func() {
		defer close(done)
		defer wg.Wait()
		for {
			select {
			case d, ok := <-delivery:
				if !ok {
					log.Info("delivery channel closed")
					return
				}
				select {
				case sem <- struct{}{}:
				case <-ctx.Done():
					// Необработанное сообщение возвращается в очередь.
					if err := d.Nack(false, true); err != nil {
						log.Error("failed to requeue message", sl.Err(err))
					}
					return
				}
				wg.Add(1)
				go func(d amqp.Delivery) {
					defer wg.Done()
					defer func() { <-sem }()
					handle(handlerCtx, d, log, handler)
				}(d)
			case <-ctx.Done():
				return
			}
		}
	}()
	return done
}

func handle(ctx context.Context, d amqp.Delivery, log *slog.Logger, handler func(ctx context.Context, body []byte) error) {
	if err := handler(ctx, d.Body); err != nil {
		log.Error("failed to handle message", sl.Err(err))
		if nackErr := d.Nack(false, false); nackErr != nil {
			log.Error("failed to nack message", sl.Err(nackErr))
		}
		return
	}
	if ackErr := d.Ack(false); ackErr != nil {
		log.Error("failed to ack message", sl.Err(ackErr))
	}
}
