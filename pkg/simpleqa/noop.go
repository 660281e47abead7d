package simpleqa

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// NoopEventSink is a no-operation implementation of EventSink
type NoopEventSink struct{}

// NewNoopEventSink creates a new no-operation event sink
func NewNoopEventSink() EventSink {
	return &NoopEventSink{}
}

func (n *NoopEventSink) QuestionCreated(ctx context.Context, question *Question) error {
	return nil
}

func (n *NoopEventSink) QuestionUpdated(ctx context.Context, question *Question) error {
	return nil
}

func (n *NoopEventSink) QuestionDeleted(ctx context.Context, questionID uuid.UUID) error {
	return nil
}

func (n *NoopEventSink) AnswerCreated(ctx context.Context, answer *Answer) error {
	return nil
}

func (n *NoopEventSink) AnswerUpdated(ctx context.Context, answer *Answer) error {
	return nil
}

func (n *NoopEventSink) AnswerDeleted(ctx context.Context, answerID uuid.UUID) error {
	return nil
}

func (n *NoopEventSink) FileAttached(ctx context.Context, file *File) error {
	return nil
}

func (n *NoopEventSink) FileDetached(ctx context.Context, file *File) error {
	return nil
}

func (n *NoopEventSink) BlobOrphaned(ctx context.Context, failure FileFailure) error {
	return nil
}

// LoggingEventSink is an event sink that logs events but takes no other action.
// Useful for development and debugging.
type LoggingEventSink struct {
	logger *slog.Logger
}

// NewLoggingEventSink creates a new logging event sink. A nil logger selects
// slog.Default().
func NewLoggingEventSink(logger *slog.Logger) EventSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingEventSink{logger: logger}
}

// QuestionCreated logs the question creation event
func (l *LoggingEventSink) QuestionCreated(ctx context.Context, question *Question) error {
	l.logger.InfoContext(ctx, "question created", "question_id", question.ID, "user_id", question.UserID)
	return nil
}

// QuestionUpdated logs the question update event
func (l *LoggingEventSink) QuestionUpdated(ctx context.Context, question *Question) error {
	l.logger.InfoContext(ctx, "question updated", "question_id", question.ID)
	return nil
}

// QuestionDeleted logs the question deletion event
func (l *LoggingEventSink) QuestionDeleted(ctx context.Context, questionID uuid.UUID) error {
	l.logger.InfoContext(ctx, "question deleted", "question_id", questionID)
	return nil
}

// AnswerCreated logs the answer creation event
func (l *LoggingEventSink) AnswerCreated(ctx context.Context, answer *Answer) error {
	l.logger.InfoContext(ctx, "answer created", "answer_id", answer.ID, "question_id", answer.QuestionID, "user_id", answer.UserID)
	return nil
}

// AnswerUpdated logs the answer update event
func (l *LoggingEventSink) AnswerUpdated(ctx context.Context, answer *Answer) error {
	l.logger.InfoContext(ctx, "answer updated", "answer_id", answer.ID)
	return nil
}

// AnswerDeleted logs the answer deletion event
func (l *LoggingEventSink) AnswerDeleted(ctx context.Context, answerID uuid.UUID) error {
	l.logger.InfoContext(ctx, "answer deleted", "answer_id", answerID)
	return nil
}

// FileAttached logs the attach event
func (l *LoggingEventSink) FileAttached(ctx context.Context, file *File) error {
	l.logger.InfoContext(ctx, "file attached", "file_id", file.ID, "parent", file.Parent().String(), "key", file.ObjectKey, "size", file.ContentLength)
	return nil
}

// FileDetached logs the detach event
func (l *LoggingEventSink) FileDetached(ctx context.Context, file *File) error {
	l.logger.InfoContext(ctx, "file detached", "file_id", file.ID, "key", file.ObjectKey)
	return nil
}

// BlobOrphaned logs a blob left without a metadata row
func (l *LoggingEventSink) BlobOrphaned(ctx context.Context, failure FileFailure) error {
	l.logger.WarnContext(ctx, "blob orphaned", "file_id", failure.FileID, "key", failure.Key, "error", failure.Err)
	return nil
}
