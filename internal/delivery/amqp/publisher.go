package amqp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqplib "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/midopa-dept/python-code-judge-sub000/internal/domain"
	"github.com/midopa-dept/python-code-judge-sub000/internal/repository"
)

const publishTimeout = 5 * time.Second

var _ repository.JobPublisher = (*Publisher)(nil)

// Publisher queues judge jobs with publisher confirms. A lost connection is
// re-dialled on the next Publish.
type Publisher struct {
	url    string
	logger *zap.Logger

	mu      sync.Mutex
	conn    *amqplib.Connection
	channel *amqplib.Channel
	confirm chan amqplib.Confirmation
	closed  bool
}

// NewPublisher connects to RabbitMQ and declares the judge queue.
func NewPublisher(url string, logger *zap.Logger) (*Publisher, error) {
	p := &Publisher{url: url, logger: logger}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.connectLocked(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Publisher) connectLocked() error {
	conn, err := amqplib.Dial(p.url)
	if err != nil {
		return fmt.Errorf("amqp dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("amqp channel: %w", err)
	}

	if err := ch.Confirm(false); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("amqp enable confirms: %w", err)
	}

	if err := declareTopology(ch); err != nil {
		ch.Close()
		conn.Close()
		return err
	}

	p.conn = conn
	p.channel = ch
	p.confirm = ch.NotifyPublish(make(chan amqplib.Confirmation, 1))
	return nil
}

// Publish sends job to the judge queue and waits for the broker's confirm.
func (p *Publisher) Publish(ctx context.Context, job *domain.JudgeJob) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("amqp marshal job: %w", err)
	}

	// Confirms arrive in publish order on one channel, so publishes are serialised.
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return fmt.Errorf("amqp publisher closed")
	}
	if p.channel == nil || p.channel.IsClosed() {
		p.logger.Warn("AMQP publisher channel closed, reconnecting")
		if err := p.connectLocked(); err != nil {
			return err
		}
	}

	publishCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = p.channel.PublishWithContext(publishCtx,
		"",        // default exchange
		queueName, // routing key
		false,     // mandatory
		false,     // immediate
		amqplib.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqplib.Persistent,
			MessageId:    job.SubmissionID.String(),
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("amqp publish: %w", err)
	}

	select {
	case confirm, ok := <-p.confirm:
		if !ok {
			return fmt.Errorf("amqp channel closed before confirm (submission_id=%s)", job.SubmissionID)
		}
		if !confirm.Ack {
			return fmt.Errorf("amqp broker nacked message (submission_id=%s)", job.SubmissionID)
		}
	case <-publishCtx.Done():
		// A late confirm would be read by the next Publish; start over on a new channel.
		p.channel.Close()
		return fmt.Errorf("amqp publish confirmation timeout (submission_id=%s)", job.SubmissionID)
	}

	p.logger.Debug("Published job to RabbitMQ",
		zap.String("submission_id", job.SubmissionID.String()),
		zap.Int("body_size", len(body)),
	)
	return nil
}

// Close closes the channel and connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
