package rabbitmq

import (
	"fmt"

	"github.com/streadway/amqp"
)

const (
	// ReminderExchange direct-обменник для сообщений о предстоящих платежах.
	ReminderExchange = "reminders"
	// ReminderQueue очередь, которую читает воркер доставки.
	ReminderQueue = "reminder.due"
	// ReminderRoutingKey ключ маршрутизации напоминаний.
	ReminderRoutingKey = "due"
	prefetch           = 10
)

// QueueConfig описывает очередь и ключ, которым она привязана к обменнику.
type QueueConfig struct {
	QueueName  string
	RoutingKey string
}

// GetReminderQueues возвращает очереди, которые нужно объявить для напоминаний.
func GetReminderQueues() []QueueConfig {
	return []QueueConfig{
		{QueueName: ReminderQueue, RoutingKey: ReminderRoutingKey},
	}
}

// SetupChannel открывает канал, объявляет обменник reminders и привязывает к нему очереди.
func SetupChannel(conn *amqp.Connection, queues []QueueConfig) (*amqp.Channel, error) {
	const op = "rabbitmq.SetupChannel"

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	fail := func(err error) (*amqp.Channel, error) {
		_ = ch.Close()
		return nil, err
	}

	if err := ch.Qos(prefetch, 0, false); err != nil {
		return fail(fmt.Errorf("%s: failed to set QoS: %w", op, err))
	}

	err = ch.ExchangeDeclare(ReminderExchange, amqp.ExchangeDirect, true, false, false, false, nil)
	if err != nil {
		return fail(fmt.Errorf("%s: %w", op, err))
	}

	for _, q := range queues {
		if _, err := ch.QueueDeclare(q.QueueName, true, false, false, false, nil); err != nil {
			return fail(fmt.Errorf("%s: failed to declare queue %s: %w", op, q.QueueName, err))
		}
		if err := ch.QueueBind(q.QueueName, q.RoutingKey, ReminderExchange, false, nil); err != nil {
			return fail(fmt.Errorf("%s: failed to bind queue %s with routing key %s: %w",
				op, q.QueueName, q.RoutingKey, err))
		}
	}

	return ch, nil
}
