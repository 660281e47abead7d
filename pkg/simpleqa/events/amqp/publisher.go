// Package amqp publishes lifecycle events to RabbitMQ as persistent JSON
// messages on a durable queue.
package amqp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/tendant/simple-qa/pkg/simpleqa"
)

// DefaultQueue is the queue events are published to when none is configured
const DefaultQueue = "simpleqa.events"

// Message is the JSON body of every published event
type Message struct {
	Type       string     `json:"type"`
	ID         uuid.UUID  `json:"id"`
	QuestionID *uuid.UUID `json:"question_id,omitempty"`
	UserID     *uuid.UUID `json:"user_id,omitempty"`
	Parent     string     `json:"parent,omitempty"`
	ObjectKey  string     `json:"object_key,omitempty"`
	Error      string     `json:"error,omitempty"`
	OccurredAt time.Time  `json:"occurred_at"`
}

// Channel is the subset of *amqp.Channel the publisher needs
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher implements simpleqa.EventSink on top of an AMQP channel
type Publisher struct {
	conn    *amqp.Connection
	channel Channel
	queue   string
}

var _ simpleqa.EventSink = (*Publisher)(nil)

// Dial connects to the broker, declares the durable queue and returns a
// publisher bound to it
func Dial(url, queue string) (*Publisher, error) {
	if queue == "" {
		queue = DefaultQueue
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq: dial failed: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq: channel open failed: %w", err)
	}

	if _, err := ch.QueueDeclare(
		queue, // name
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,   // args
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq: queue declare failed: %w", err)
	}

	p := NewWithChannel(ch, queue)
	p.conn = conn
	return p, nil
}

// NewWithChannel wraps an already open channel. The queue must exist.
func NewWithChannel(ch Channel, queue string) *Publisher {
	if queue == "" {
		queue = DefaultQueue
	}
	return &Publisher{channel: ch, queue: queue}
}

// Close closes the channel and, when the publisher dialed it, the connection
func (p *Publisher) Close() error {
	err := p.channel.Close()
	if p.conn != nil {
		if cerr := p.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

func (p *Publisher) publish(ctx context.Context, msg Message) error {
	msg.OccurredAt = time.Now().UTC()
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("rabbitmq: marshal event failed: %w", err)
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    msg.OccurredAt,
		Type:         msg.Type,
		Body:         body,
	}

	if err := p.channel.PublishWithContext(ctx,
		"",      // default exchange
		p.queue, // routing key = queue name
		false,   // mandatory
		false,   // immediate
		pub,
	); err != nil {
		return fmt.Errorf("rabbitmq: publish %s failed: %w", msg.Type, err)
	}
	return nil
}

func (p *Publisher) QuestionCreated(ctx context.Context, question *simpleqa.Question) error {
	return p.publish(ctx, Message{Type: "question.created", ID: question.ID, UserID: &question.UserID})
}

func (p *Publisher) QuestionUpdated(ctx context.Context, question *simpleqa.Question) error {
	return p.publish(ctx, Message{Type: "question.updated", ID: question.ID, UserID: &question.UserID})
}

func (p *Publisher) QuestionDeleted(ctx context.Context, questionID uuid.UUID) error {
	return p.publish(ctx, Message{Type: "question.deleted", ID: questionID})
}

func (p *Publisher) AnswerCreated(ctx context.Context, answer *simpleqa.Answer) error {
	return p.publish(ctx, Message{Type: "answer.created", ID: answer.ID, QuestionID: &answer.QuestionID, UserID: &answer.UserID})
}

func (p *Publisher) AnswerUpdated(ctx context.Context, answer *simpleqa.Answer) error {
	return p.publish(ctx, Message{Type: "answer.updated", ID: answer.ID, QuestionID: &answer.QuestionID, UserID: &answer.UserID})
}

func (p *Publisher) AnswerDeleted(ctx context.Context, answerID uuid.UUID) error {
	return p.publish(ctx, Message{Type: "answer.deleted", ID: answerID})
}

func (p *Publisher) FileAttached(ctx context.Context, file *simpleqa.File) error {
	return p.publish(ctx, Message{Type: "file.attached", ID: file.ID, Parent: file.Parent().String(), ObjectKey: file.ObjectKey})
}

func (p *Publisher) FileDetached(ctx context.Context, file *simpleqa.File) error {
	return p.publish(ctx, Message{Type: "file.detached", ID: file.ID, Parent: file.Parent().String(), ObjectKey: file.ObjectKey})
}

func (p *Publisher) BlobOrphaned(ctx context.Context, failure simpleqa.FileFailure) error {
	msg := Message{Type: "blob.orphaned", ID: failure.FileID, ObjectKey: failure.Key}
	if failure.Err != nil {
		msg.Error = failure.Err.Error()
	}
	return p.publish(ctx, msg)
}
