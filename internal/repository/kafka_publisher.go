package repository

import (
	"context"
	"time"

	"BarPull/internal/domain/models"
	"BarPull/internal/domain/repository"
	"BarPull/pkg/logger"
)

// Event types carried in the envelope and the event_type header.
const (
	EventChunkSaved  = "bars.chunk_saved"
	EventJobFinished = "bars.job_finished"
	EventQuality     = "bars.quality"
)

// MessageWriter is the part of pkg/kafka.Producer the publisher needs.
type MessageWriter interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}, headers map[string]string) error
	Close() error
}

// Envelope is the JSON body of every ingestion event.
type Envelope struct {
	Type string    `json:"type"`
	At   time.Time `json:"at"`
	Data any       `json:"data"`
}

// KafkaEventPublisher writes ingestion events to one topic, keyed by
// symbol so a series keeps its order within a partition.
type KafkaEventPublisher struct {
	writer MessageWriter
	topic  string
	logger *logger.Logger
	now    func() time.Time
}

var _ repository.EventPublisher = (*KafkaEventPublisher)(nil)

func NewKafkaEventPublisher(w MessageWriter, topic string, log *logger.Logger) *KafkaEventPublisher {
	if log == nil {
		log = logger.Nop()
	}
	return &KafkaEventPublisher{writer: w, topic: topic, logger: log, now: time.Now}
}

func (p *KafkaEventPublisher) publish(ctx context.Context, eventType, symbol string, data any) error {
	env := Envelope{Type: eventType, At: p.now().UTC(), Data: data}
	err := p.writer.Publish(ctx, p.topic, []byte(symbol), env, map[string]string{"event_type": eventType})
	if err != nil {
		p.logger.Debug("event publish failed",
			logger.String("type", eventType),
			logger.String("symbol", symbol),
			logger.Error(err),
		)
	}
	return err
}

func (p *KafkaEventPublisher) PublishChunkSaved(ctx context.Context, e models.ChunkSavedEvent) error {
	return p.publish(ctx, EventChunkSaved, e.Symbol, e)
}

func (p *KafkaEventPublisher) PublishJobFinished(ctx context.Context, e models.JobFinishedEvent) error {
	return p.publish(ctx, EventJobFinished, e.Symbol, e)
}

func (p *KafkaEventPublisher) PublishQuality(ctx context.Context, s models.QualitySnapshot) error {
	return p.publish(ctx, EventQuality, s.Symbol, s)
}

func (p *KafkaEventPublisher) Close() error { return p.writer.Close() }

// NopPublisher drops every event. It stands in when Kafka is disabled.
type NopPublisher struct{}

func (NopPublisher) PublishChunkSaved(context.Context, models.ChunkSavedEvent) error   { return nil }
func (NopPublisher) PublishJobFinished(context.Context, models.JobFinishedEvent) error { return nil }
func (NopPublisher) PublishQuality(context.Context, models.QualitySnapshot) error      { return nil }
func (NopPublisher) Close() error                                                      { return nil }
