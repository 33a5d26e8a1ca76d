package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/segmentio/kafka-go"
)

const maxBatchBytes = 1 << 20

var codecs = map[string]kafka.Compression{
	"gzip":   kafka.Gzip,
	"snappy": kafka.Snappy,
	"lz4":    kafka.Lz4,
	"zstd":   kafka.Zstd,
}

// Producer publishes JSON events through a kafka-go Writer.
type Producer struct {
	writer *kafka.Writer
	comp   string
}

// NewProducer builds a writer. At least one broker is required; the
// connection is established lazily on first write.
func NewProducer(opts ...ProducerOption) (*Producer, error) {
	cfg := ProducerConfig{
		RequiredAcks: int(kafka.RequireAll),
		Compression:  "gzip",
		MaxAttempts:  3,
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  10 * time.Second,
		BatchSize:    100,
		BatchTimeout: time.Second,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka: brokers are required")
	}

	var balancer kafka.Balancer = &kafka.LeastBytes{}
	if cfg.HashByKey {
		balancer = &kafka.Hash{}
	}

	registerMetrics()
	return &Producer{
		comp: cfg.Compression,
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Balancer:     balancer,
			RequiredAcks: kafka.RequiredAcks(cfg.RequiredAcks),
			Compression:  parseCompression(cfg.Compression),
			MaxAttempts:  cfg.MaxAttempts,
			WriteTimeout: cfg.WriteTimeout,
			ReadTimeout:  cfg.ReadTimeout,
			BatchSize:    cfg.BatchSize,
			BatchBytes:   maxBatchBytes,
			BatchTimeout: cfg.BatchTimeout,
			Async:        cfg.Async,
		},
	}, nil
}

// Publish writes one message to topic. []byte and string values are sent
// as-is; anything else is JSON encoded.
func (p *Producer) Publish(ctx context.Context, topic string, key []byte, value interface{}, headers map[string]string) error {
	body, err := encode(value)
	if err != nil {
		return fmt.Errorf("kafka encode %s: %w", topic, err)
	}

	msg := kafka.Message{Topic: topic, Key: key, Value: body, Time: time.Now()}
	for k, v := range headers {
		msg.Headers = append(msg.Headers, kafka.Header{Key: k, Value: []byte(v)})
	}

	start := time.Now()
	err = p.writer.WriteMessages(ctx, msg)
	metrics.observe(topic, p.comp, len(body), time.Since(start), err)
	if err != nil {
		return fmt.Errorf("kafka write %s: %w", topic, err)
	}
	return nil
}

// Close flushes buffered messages and closes the writer.
func (p *Producer) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

func encode(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return json.Marshal(v)
	}
}

// parseCompression falls back to gzip for unknown names.
func parseCompression(name string) kafka.Compression {
	if c, ok := codecs[name]; ok {
		return c
	}
	return kafka.Gzip
}

type producerMetrics struct {
	messages *prometheus.CounterVec
	bytes    *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

var (
	metrics     producerMetrics
	metricsOnce sync.Once
)

func registerMetrics() {
	metricsOnce.Do(func() {
		metrics = producerMetrics{
			messages: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "barpull_kafka_producer_messages_total",
				Help: "Messages written to Kafka by topic and result.",
			}, []string{"topic", "compression", "result"}),
			bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "barpull_kafka_producer_bytes_total",
				Help: "Payload bytes written to Kafka before compression.",
			}, []string{"topic", "compression"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "barpull_kafka_producer_publish_seconds",
				Help:    "WriteMessages latency.",
				Buckets: prometheus.DefBuckets,
			}, []string{"topic"}),
		}
		prometheus.MustRegister(metrics.messages, metrics.bytes, metrics.latency)
	})
}

func (m producerMetrics) observe(topic, comp string, size int, took time.Duration, err error) {
	if m.messages == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.messages.WithLabelValues(topic, comp, result).Inc()
	m.bytes.WithLabelValues(topic, comp).Add(float64(size))
	m.latency.WithLabelValues(topic).Observe(took.Seconds())
}
