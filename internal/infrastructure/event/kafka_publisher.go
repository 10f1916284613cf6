package event

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/IBM/sarama"
	"github.com/sony/gobreaker"
	"github.com/waterbill/backend/internal/domain/shared"
	"github.com/waterbill/backend/internal/infrastructure/config"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

// Message header names set on every published record
const (
	HeaderEventType     = "event_type"
	HeaderEventID       = "event_id"
	HeaderAggregateType = "aggregate_type"
)

// ErrPublisherUnavailable is returned while the circuit breaker is open
var ErrPublisherUnavailable = errors.New("event publisher unavailable")

// KafkaPublisher publishes domain events to a Kafka topic.
// Records are keyed by aggregate ID so events for one bill stay ordered
// within a partition.
type KafkaPublisher struct {
	producer   sarama.SyncProducer
	topic      string
	serializer *EventSerializer
	breaker    *gobreaker.CircuitBreaker
	logger     *zap.Logger
}

// NewKafkaPublisher connects a synchronous producer to the configured brokers
func NewKafkaPublisher(cfg config.KafkaConfig, logger *zap.Logger) (*KafkaPublisher, error) {
	saramaConfig, err := NewSaramaConfig(cfg)
	if err != nil {
		return nil, err
	}
	producer, err := sarama.NewSyncProducer(cfg.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("error creating Sarama SyncProducer: %w", err)
	}
	return NewKafkaPublisherWithProducer(producer, cfg, logger), nil
}

// NewKafkaPublisherWithProducer wraps an existing producer
func NewKafkaPublisherWithProducer(producer sarama.SyncProducer, cfg config.KafkaConfig, logger *zap.Logger) *KafkaPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("kafka_publisher")

	maxFailures := cfg.BreakerMaxFailures
	if maxFailures == 0 {
		maxFailures = 3
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "KafkaPublisher",
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return &KafkaPublisher{
		producer:   producer,
		topic:      cfg.Topic,
		serializer: NewBillingEventSerializer(),
		breaker:    breaker,
		logger:     logger,
	}
}

// NewSaramaConfig translates KafkaConfig into a producer configuration
func NewSaramaConfig(cfg config.KafkaConfig) (*sarama.Config, error) {
	saramaConfig := sarama.NewConfig()
	if cfg.ClientID != "" {
		saramaConfig.ClientID = cfg.ClientID
	}

	acks, err := parseRequiredAcks(cfg.RequiredAcks)
	if err != nil {
		return nil, err
	}
	saramaConfig.Producer.RequiredAcks = acks

	codec, err := parseCompression(cfg.Compression)
	if err != nil {
		return nil, err
	}
	saramaConfig.Producer.Compression = codec

	if cfg.RetryMax > 0 {
		saramaConfig.Producer.Retry.Max = cfg.RetryMax
	}
	// required by SyncProducer
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Return.Errors = true
	saramaConfig.Producer.Partitioner = sarama.NewHashPartitioner

	return saramaConfig, nil
}

// Publish implements shared.EventPublisher
func (p *KafkaPublisher) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	if len(events) == 0 {
		return nil
	}

	msgs := make([]*sarama.ProducerMessage, 0, len(events))
	for _, e := range events {
		value, err := p.serializer.Serialize(e)
		if err != nil {
			return err
		}
		msg := &sarama.ProducerMessage{
			Topic: p.topic,
			Key:   sarama.StringEncoder(e.AggregateID().String()),
			Value: sarama.ByteEncoder(value),
			Headers: []sarama.RecordHeader{
				{Key: []byte(HeaderEventType), Value: []byte(e.EventType())},
				{Key: []byte(HeaderEventID), Value: []byte(e.EventID().String())},
				{Key: []byte(HeaderAggregateType), Value: []byte(e.AggregateType())},
			},
		}
		otel.GetTextMapPropagator().Inject(ctx, &headerCarrier{msg: msg})
		msgs = append(msgs, msg)
	}

	_, err := p.breaker.Execute(func() (interface{}, error) {
		return nil, p.producer.SendMessages(msgs)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrPublisherUnavailable, err)
	}
	if err != nil {
		p.logger.Error("Failed to publish events",
			zap.String("topic", p.topic),
			zap.Int("count", len(msgs)),
			zap.Error(err),
		)
		return fmt.Errorf("failed to publish events: %w", err)
	}

	p.logger.Debug("Published events", zap.String("topic", p.topic), zap.Int("count", len(msgs)))
	return nil
}

// State returns the circuit breaker state
func (p *KafkaPublisher) State() gobreaker.State {
	return p.breaker.State()
}

// Close closes the underlying producer
func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}

func parseRequiredAcks(v string) (sarama.RequiredAcks, error) {
	switch strings.ToLower(v) {
	case "none", "no_response", "0":
		return sarama.NoResponse, nil
	case "leader", "local", "wait_for_local", "1":
		return sarama.WaitForLocal, nil
	case "", "all", "wait_for_all", "-1":
		return sarama.WaitForAll, nil
	default:
		return sarama.WaitForAll, fmt.Errorf("invalid kafka required_acks: %s", v)
	}
}

func parseCompression(v string) (sarama.CompressionCodec, error) {
	switch strings.ToLower(v) {
	case "none":
		return sarama.CompressionNone, nil
	case "gzip":
		return sarama.CompressionGZIP, nil
	case "", "snappy":
		return sarama.CompressionSnappy, nil
	case "lz4":
		return sarama.CompressionLZ4, nil
	case "zstd":
		return sarama.CompressionZSTD, nil
	default:
		return sarama.CompressionNone, fmt.Errorf("invalid kafka compression: %s", v)
	}
}

// headerCarrier adapts record headers to propagation.TextMapCarrier
type headerCarrier struct {
	msg *sarama.ProducerMessage
}

func (c *headerCarrier) Get(key string) string {
	for _, h := range c.msg.Headers {
		if string(h.Key) == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c *headerCarrier) Set(key, value string) {
	for i, h := range c.msg.Headers {
		if string(h.Key) == key {
			c.msg.Headers[i].Value = []byte(value)
			return
		}
	}
	c.msg.Headers = append(c.msg.Headers, sarama.RecordHeader{Key: []byte(key), Value: []byte(value)})
}

func (c *headerCarrier) Keys() []string {
	keys := make([]string, 0, len(c.msg.Headers))
	for _, h := range c.msg.Headers {
		keys = append(keys, string(h.Key))
	}
	return keys
}

var _ shared.EventPublisher = (*KafkaPublisher)(nil)
