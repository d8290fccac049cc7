package amqp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	amqplib "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/midopa-dept/python-code-judge-sub000/internal/domain"
)

const (
	// Reconnection parameters
	maxReconnectDelay  = 30 * time.Second
	baseReconnectDelay = 1 * time.Second
)

var errChannelClosed = errors.New("delivery channel closed")

// Consumer listens to RabbitMQ and dispatches JobMessage (with ACK callbacks) to a channel.
type Consumer struct {
	url      string
	prefetch int
	conn     *amqplib.Connection
	channel  *amqplib.Channel
	logger   *zap.Logger
	jobs     chan<- *domain.JobMessage

	mu      sync.Mutex
	closed  bool
	closeCh chan struct{}
}

// NewConsumer creates a new RabbitMQ consumer. Deliveries are not
// auto-acked: each JobMessage carries Ack/Nack callbacks that the worker
// pool calls once the verdict is stored. prefetch bounds unacked deliveries
// and is normally the pool size.
func NewConsumer(url string, jobs chan<- *domain.JobMessage, prefetch int, logger *zap.Logger) (*Consumer, error) {
	c := &Consumer{
		url:      url,
		prefetch: max(prefetch, 1),
		logger:   logger,
		jobs:     jobs,
		closeCh:  make(chan struct{}),
	}

	if err := c.connect(); err != nil {
		return nil, err
	}

	return c, nil
}

// connect establishes the AMQP connection and channel.
func (c *Consumer) connect() error {
	conn, err := amqplib.Dial(c.url)
	if err != nil {
		return fmt.Errorf("amqp dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("amqp channel: %w", err)
	}

	// A submission can run for many seconds; never hold more than the pool can judge.
	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("amqp qos: %w", err)
	}

	if err := declareTopology(ch); err != nil {
		ch.Close()
		conn.Close()
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.channel = ch
	c.mu.Unlock()

	return nil
}

// Start begins consuming messages. It blocks until the context is cancelled
// or the consumer is closed, reconnecting with exponential backoff when the
// broker connection is lost.
func (c *Consumer) Start(ctx context.Context) error {
	for {
		err := c.consume(ctx)
		if err == nil {
			return nil
		}
		if c.stopping(ctx) {
			return nil
		}

		c.logger.Warn("AMQP consumer lost connection, reconnecting", zap.Error(err))

		for attempt := 0; ; attempt++ {
			delay := reconnectDelay(attempt)
			c.logger.Info("Reconnect attempt",
				zap.Int("attempt", attempt+1),
				zap.Duration("delay", delay),
			)

			timer := time.NewTimer(delay)
			select {
			case <-c.closeCh:
				timer.Stop()
				return nil
			case <-ctx.Done():
				timer.Stop()
				return nil
			case <-timer.C:
			}

			if err := c.connect(); err != nil {
				c.logger.Error("Reconnect failed", zap.Error(err))
				continue
			}

			c.logger.Info("Reconnected to RabbitMQ")
			break
		}
	}
}

func (c *Consumer) stopping(ctx context.Context) bool {
	select {
	case <-c.closeCh:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// reconnectDelay doubles from baseReconnectDelay up to maxReconnectDelay.
func reconnectDelay(attempt int) time.Duration {
	return time.Duration(math.Min(
		float64(baseReconnectDelay)*math.Pow(2, float64(attempt)),
		float64(maxReconnectDelay),
	))
}

// consume runs one consume session until the delivery channel closes or ctx is cancelled.
func (c *Consumer) consume(ctx context.Context) error {
	c.mu.Lock()
	ch := c.channel
	c.mu.Unlock()

	if ch == nil {
		return fmt.Errorf("channel is nil")
	}

	deliveries, err := ch.Consume(
		queueName,
		"",    // auto-generated consumer tag
		false, // manual ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("amqp consume: %w", err)
	}

	c.logger.Info("AMQP consumer started", zap.String("queue", queueName))

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("AMQP consumer stopping (context cancelled)")
			return nil
		case delivery, ok := <-deliveries:
			if !ok {
				return errChannelClosed
			}

			job, err := decodeJob(delivery.Body)
			if err != nil {
				c.logger.Error("Rejecting malformed job",
					zap.Error(err),
					zap.Int("body_bytes", len(delivery.Body)),
				)
				delivery.Nack(false, false) // → DLQ
				continue
			}

			c.logger.Debug("Received job from queue",
				zap.String("submission_id", job.SubmissionID.String()),
				zap.Int("test_cases", len(job.TestCases)),
			)

			tag := delivery.DeliveryTag
			localCh := ch

			msg := &domain.JobMessage{
				Job: job,
				Ack: func() error {
					return localCh.Ack(tag, false)
				},
				Nack: func(requeue bool) error {
					return localCh.Nack(tag, false, requeue)
				},
			}

			// Blocks while the pool is busy; together with prefetch this is the back-pressure.
			select {
			case c.jobs <- msg:
			case <-ctx.Done():
				delivery.Nack(false, true)
				return nil
			}
		}
	}
}

// decodeJob parses a queued JudgeJob. Jobs without an ID or test cases are
// rejected here since no retry can fix them.
func decodeJob(body []byte) (*domain.JudgeJob, error) {
	var job domain.JudgeJob
	if err := json.Unmarshal(body, &job); err != nil {
		return nil, fmt.Errorf("decode job: %w", err)
	}
	if job.SubmissionID == uuid.Nil {
		return nil, errors.New("decode job: missing submission_id")
	}
	if len(job.TestCases) == 0 {
		return nil, fmt.Errorf("decode job %s: %w", job.SubmissionID, domain.ErrNoTestCases)
	}
	return &job, nil
}

// Close gracefully shuts down the consumer.
func (c *Consumer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	close(c.closeCh)

	var firstErr error
	if c.channel != nil {
		if err := c.channel.Close(); err != nil {
			firstErr = err
		}
	}
	if c.conn != nil {
		if err := c.conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
