package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"github.com/OFFIS-RIT/netunion/internal/util"
	"github.com/OFFIS-RIT/netunion/pkg/logger"
)

const (
	RunQueue = "run_queue"

	retryDelayMs = int32(10000)
	dialTries    = 5
	dialDelay    = 2 * time.Second
)

// Channel is the subset of *amqp091.Channel used for declaring and
// publishing.
type Channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp091.Table) (amqp091.Queue, error)
	Publish(exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
}

func connURL() string {
	return fmt.Sprintf(
		"amqp://%s:%s@%s:%s/",
		util.GetEnv("RABBITMQ_USER"),
		util.GetEnv("RABBITMQ_PASSWORD"),
		util.GetEnvString("RABBITMQ_HOST", "localhost"),
		util.GetEnvString("RABBITMQ_PORT", "5672"),
	)
}

// Init dials RabbitMQ from the RABBITMQ_* environment, retrying while the
// broker is still starting.
func Init(ctx context.Context) (*amqp091.Connection, error) {
	url := connURL()
	conn, err := util.RetryWithContext(ctx, dialTries, dialDelay, func(ctx context.Context) (*amqp091.Connection, error) {
		conn, err := amqp091.Dial(url)
		if err != nil {
			logger.Warn("[Queue] RabbitMQ not reachable yet", "err", err)
		}
		return conn, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	return conn, nil
}

// SetupQueues declares each queue with its _dlq and its _retry companion.
// Messages in _retry are dead-lettered back to the work queue after
// retryDelayMs.
func SetupQueues(ch Channel, queueNames []string) error {
	for _, name := range queueNames {
		if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
			return fmt.Errorf("failed to declare queue %s: %w", name, err)
		}

		dlqName := name + "_dlq"
		if _, err := ch.QueueDeclare(dlqName, true, false, false, false, nil); err != nil {
			return fmt.Errorf("failed to declare queue %s: %w", dlqName, err)
		}

		retryName := name + "_retry"
		_, err := ch.QueueDeclare(
			retryName,
			true,
			false,
			false,
			false,
			amqp091.Table{
				"x-message-ttl":             retryDelayMs,
				"x-dead-letter-exchange":    "",
				"x-dead-letter-routing-key": name,
			},
		)
		if err != nil {
			return fmt.Errorf("failed to declare queue %s: %w", retryName, err)
		}
	}

	return nil
}

// PublishFIFO publishes a persistent JSON message to queueName through the
// default exchange.
func PublishFIFO(ch Channel, queueName string, data []byte) error {
	q, err := ch.QueueDeclare(queueName, true, false, false, false, nil)
	if err != nil {
		return err
	}

	return ch.Publish("", q.Name, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		Body:         data,
		DeliveryMode: amqp091.Persistent,
		Timestamp:    time.Now(),
	})
}

// ChannelPublisher publishes through PublishFIFO on one channel.
type ChannelPublisher struct {
	Ch Channel
}

func (p ChannelPublisher) Publish(queueName string, data []byte) error {
	return PublishFIFO(p.Ch, queueName, data)
}
