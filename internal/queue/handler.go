package queue

import (
	"github.com/rabbitmq/amqp091-go"

	"github.com/OFFIS-RIT/netunion/pkg/logger"
)

// MaxRetries is the number of redeliveries before a message is parked in
// the dead-letter queue.
const MaxRetries = 10

const retriesHeader = "x-retries"

func retriesFromHeaders(headers amqp091.Table) int {
	switch v := headers[retriesHeader].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	case int16:
		return int(v)
	default:
		return 0
	}
}

// HandleProcessingError moves a failed delivery to queueName's retry queue,
// or to its dead-letter queue once MaxRetries is reached. The delivery is
// acked after a successful publish and requeued otherwise.
func HandleProcessingError(ch Channel, msg amqp091.Delivery, queueName string) {
	retries := retriesFromHeaders(msg.Headers)

	target := queueName + "_retry"
	headers := amqp091.Table{}
	for k, v := range msg.Headers {
		headers[k] = v
	}
	if retries >= MaxRetries {
		target = queueName + "_dlq"
		logger.Warn("[Queue] Sending message to DLQ", "dlq", target, "retries", retries)
	} else {
		headers[retriesHeader] = int32(retries + 1)
		logger.Info("[Queue] Scheduling retry", "queue", target, "retry", retries+1)
	}

	err := ch.Publish("", target, false, false, amqp091.Publishing{
		ContentType:  msg.ContentType,
		Body:         msg.Body,
		Headers:      headers,
		DeliveryMode: amqp091.Persistent,
	})
	if err != nil {
		logger.Error("[Queue] Failed to republish message", "queue", target, "err", err)
		if err := msg.Nack(false, true); err != nil {
			logger.Error("[Queue] Failed to nack message", "err", err)
		}
		return
	}
	if err := msg.Ack(false); err != nil {
		logger.Error("[Queue] Failed to ack message", "err", err)
	}
}
