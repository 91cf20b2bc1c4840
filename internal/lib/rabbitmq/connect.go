// Package rabbitmq содержит подключение к RabbitMQ, объявление топологии
// очередей напоминаний, публикацию и потребление JSON-сообщений.
package rabbitmq

import (
	"fmt"
	"time"

	"github.com/streadway/amqp"
)

// Connect подключается к брокеру, повторяя попытку retries раз с паузой delay.
func Connect(connection string, retries int, delay time.Duration) (*amqp.Connection, error) {
	const op = "rabbitmq.Connect"
	var (
		conn *amqp.Connection
		err  error
	)

	for attempt := range max(retries, 1) {
		if attempt > 0 {
			time.Sleep(delay)
		}
		conn, err = amqp.Dial(connection)
		if err == nil {
			return conn, nil
		}
	}

	return nil, fmt.Errorf("%s: %w", op, err)
}
