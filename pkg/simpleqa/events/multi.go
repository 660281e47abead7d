// Package events provides EventSink implementations beyond the no-op and
// logging sinks in simpleqa: a fan-out combinator, Prometheus counters and
// (in the amqp subpackage) a RabbitMQ publisher.
package events

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/tendant/simple-qa/pkg/simpleqa"
)

// Multi forwards every event to each sink in order. All sinks are called even
// when one fails; the errors are joined.
type Multi []simpleqa.EventSink

var _ simpleqa.EventSink = Multi(nil)

// NewMulti skips nil sinks
func NewMulti(sinks ...simpleqa.EventSink) Multi {
	m := make(Multi, 0, len(sinks))
	for _, sink := range sinks {
		if sink != nil {
			m = append(m, sink)
		}
	}
	return m
}

func (m Multi) each(fn func(simpleqa.EventSink) error) error {
	var errs []error
	for _, sink := range m {
		if err := fn(sink); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) QuestionCreated(ctx context.Context, question *simpleqa.Question) error {
	return m.each(func(s simpleqa.EventSink) error { return s.QuestionCreated(ctx, question) })
}

func (m Multi) QuestionUpdated(ctx context.Context, question *simpleqa.Question) error {
	return m.each(func(s simpleqa.EventSink) error { return s.QuestionUpdated(ctx, question) })
}

func (m Multi) QuestionDeleted(ctx context.Context, questionID uuid.UUID) error {
	return m.each(func(s simpleqa.EventSink) error { return s.QuestionDeleted(ctx, questionID) })
}

func (m Multi) AnswerCreated(ctx context.Context, answer *simpleqa.Answer) error {
	return m.each(func(s simpleqa.EventSink) error { return s.AnswerCreated(ctx, answer) })
}

func (m Multi) AnswerUpdated(ctx context.Context, answer *simpleqa.Answer) error {
	return m.each(func(s simpleqa.EventSink) error { return s.AnswerUpdated(ctx, answer) })
}

func (m Multi) AnswerDeleted(ctx context.Context, answerID uuid.UUID) error {
	return m.each(func(s simpleqa.EventSink) error { return s.AnswerDeleted(ctx, answerID) })
}

func (m Multi) FileAttached(ctx context.Context, file *simpleqa.File) error {
	return m.each(func(s simpleqa.EventSink) error { return s.FileAttached(ctx, file) })
}

func (m Multi) FileDetached(ctx context.Context, file *simpleqa.File) error {
	return m.each(func(s simpleqa.EventSink) error { return s.FileDetached(ctx, file) })
}

func (m Multi) BlobOrphaned(ctx context.Context, failure simpleqa.FileFailure) error {
	return m.each(func(s simpleqa.EventSink) error { return s.BlobOrphaned(ctx, failure) })
}
