package queue

import (
	"errors"
	"testing"

	"github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type declared struct {
	name string
	args amqp091.Table
}

type published struct {
	exchange string
	key      string
	msg      amqp091.Publishing
}

type fakeChannel struct {
	declared   []declared
	published  []published
	declareErr error
	publishErr error
}

func (c *fakeChannel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp091.Table) (amqp091.Queue, error) {
	if c.declareErr != nil {
		return amqp091.Queue{}, c.declareErr
	}
	c.declared = append(c.declared, declared{name: name, args: args})
	return amqp091.Queue{Name: name}, nil
}

func (c *fakeChannel) Publish(exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error {
	if c.publishErr != nil {
		return c.publishErr
	}
	c.published = append(c.published, published{exchange: exchange, key: key, msg: msg})
	return nil
}

func TestSetupQueues(t *testing.T) {
	ch := &fakeChannel{}
	require.NoError(t, SetupQueues(ch, []string{RunQueue}))

	require.Len(t, ch.declared, 3)
	assert.Equal(t, "run_queue", ch.declared[0].name)
	assert.Equal(t, "run_queue_dlq", ch.declared[1].name)
	assert.Equal(t, "run_queue_retry", ch.declared[2].name)
	assert.Equal(t, "run_queue", ch.declared[2].args["x-dead-letter-routing-key"])
	assert.Equal(t, int32(10000), ch.declared[2].args["x-message-ttl"])
}

func TestSetupQueuesError(t *testing.T) {
	ch := &fakeChannel{declareErr: errors.New("channel closed")}
	err := SetupQueues(ch, []string{RunQueue})
	assert.ErrorContains(t, err, "run_queue")
}

func TestPublishFIFO(t *testing.T) {
	ch := &fakeChannel{}
	require.NoError(t, PublishFIFO(ch, RunQueue, []byte(`{"run_id":"x"}`)))

	require.Len(t, ch.published, 1)
	p := ch.published[0]
	assert.Equal(t, "", p.exchange)
	assert.Equal(t, RunQueue, p.key)
	assert.Equal(t, amqp091.Persistent, p.msg.DeliveryMode)
	assert.Equal(t, `{"run_id":"x"}`, string(p.msg.Body))
}

func TestChannelPublisher(t *testing.T) {
	ch := &fakeChannel{}
	require.NoError(t, ChannelPublisher{Ch: ch}.Publish(RunQueue, []byte("x")))
	require.Len(t, ch.published, 1)
	assert.Equal(t, RunQueue, ch.published[0].key)
}
