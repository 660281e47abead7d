package events

import (
	"context"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/tendant/simple-qa/pkg/simpleqa"
)

// MetricsSink counts lifecycle events in Prometheus
type MetricsSink struct {
	events        *prometheus.CounterVec
	attachedBytes prometheus.Counter
	orphanedBlobs prometheus.Counter
}

var _ simpleqa.EventSink = (*MetricsSink)(nil)

// NewMetricsSink registers its collectors with reg. Pass
// prometheus.DefaultRegisterer in servers and a fresh registry in tests.
func NewMetricsSink(reg prometheus.Registerer) *MetricsSink {
	factory := promauto.With(reg)
	return &MetricsSink{
		events: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "simpleqa_events_total",
				Help: "Total number of question, answer and file lifecycle events",
			},
			[]string{"event"},
		),
		attachedBytes: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "simpleqa_attached_bytes_total",
				Help: "Total bytes of attachments written to the blob store",
			},
		),
		orphanedBlobs: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "simpleqa_orphaned_blobs_total",
				Help: "Number of blobs left in the blob store without a metadata row",
			},
		),
	}
}

func (m *MetricsSink) QuestionCreated(ctx context.Context, question *simpleqa.Question) error {
	m.events.WithLabelValues("question_created").Inc()
	return nil
}

func (m *MetricsSink) QuestionUpdated(ctx context.Context, question *simpleqa.Question) error {
	m.events.WithLabelValues("question_updated").Inc()
	return nil
}

func (m *MetricsSink) QuestionDeleted(ctx context.Context, questionID uuid.UUID) error {
	m.events.WithLabelValues("question_deleted").Inc()
	return nil
}

func (m *MetricsSink) AnswerCreated(ctx context.Context, answer *simpleqa.Answer) error {
	m.events.WithLabelValues("answer_created").Inc()
	return nil
}

func (m *MetricsSink) AnswerUpdated(ctx context.Context, answer *simpleqa.Answer) error {
	m.events.WithLabelValues("answer_updated").Inc()
	return nil
}

func (m *MetricsSink) AnswerDeleted(ctx context.Context, answerID uuid.UUID) error {
	m.events.WithLabelValues("answer_deleted").Inc()
	return nil
}

func (m *MetricsSink) FileAttached(ctx context.Context, file *simpleqa.File) error {
	m.events.WithLabelValues("file_attached").Inc()
	m.attachedBytes.Add(float64(file.ContentLength))
	return nil
}

func (m *MetricsSink) FileDetached(ctx context.Context, file *simpleqa.File) error {
	m.events.WithLabelValues("file_detached").Inc()
	return nil
}

func (m *MetricsSink) BlobOrphaned(ctx context.Context, failure simpleqa.FileFailure) error {
	m.events.WithLabelValues("blob_orphaned").Inc()
	m.orphanedBlobs.Inc()
	return nil
}
