package messaging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/waterbill/backend/internal/domain/shared"
	"github.com/waterbill/backend/internal/infrastructure/config"
	"github.com/waterbill/backend/internal/infrastructure/logger"
	"github.com/waterbill/backend/internal/infrastructure/telemetry"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

// ConsumerConfig holds retry settings for the command consumer
type ConsumerConfig struct {
	Topics       []string
	MaxAttempts  int
	RetryBackoff time.Duration
}

// Consumer reads billing commands from a Kafka consumer group.
// Permanent failures are logged and skipped; transient failures are retried
// up to MaxAttempts before the message is skipped.
type Consumer struct {
	group    sarama.ConsumerGroup
	handler  *CommandHandler
	config   ConsumerConfig
	logger   *zap.Logger
	dedup    shared.IdempotencyStore
	dedupTTL time.Duration
}

// ConsumerOption configures a Consumer
type ConsumerOption func(*Consumer)

// WithDeduplication drops commands whose ID was already applied within ttl
func WithDeduplication(store shared.IdempotencyStore, ttl time.Duration) ConsumerOption {
	return func(c *Consumer) {
		c.dedup = store
		c.dedupTTL = ttl
	}
}

// NewSaramaConsumerConfig translates KafkaConfig into a consumer group configuration
func NewSaramaConsumerConfig(cfg config.KafkaConfig) (*sarama.Config, error) {
	saramaConfig := sarama.NewConfig()
	if cfg.ClientID != "" {
		saramaConfig.ClientID = cfg.ClientID
	}
	switch cfg.InitialOffset {
	case "", "newest":
		saramaConfig.Consumer.Offsets.Initial = sarama.OffsetNewest
	case "oldest":
		saramaConfig.Consumer.Offsets.Initial = sarama.OffsetOldest
	default:
		return nil, fmt.Errorf("invalid kafka initial_offset: %s", cfg.InitialOffset)
	}
	saramaConfig.Consumer.Return.Errors = true
	saramaConfig.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategySticky()}
	return saramaConfig, nil
}

// NewConsumer joins the configured consumer group
func NewConsumer(cfg config.KafkaConfig, handler *CommandHandler, logger *zap.Logger, opts ...ConsumerOption) (*Consumer, error) {
	saramaConfig, err := NewSaramaConsumerConfig(cfg)
	if err != nil {
		return nil, err
	}
	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.ConsumerGroup, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("error creating Sarama ConsumerGroup: %w", err)
	}
	return NewConsumerWithGroup(group, ConsumerConfig{
		Topics:       []string{cfg.CommandsTopic},
		MaxAttempts:  cfg.ConsumerMaxAttempts,
		RetryBackoff: cfg.ConsumerRetryBackoff,
	}, handler, logger, opts...), nil
}

// NewConsumerWithGroup wraps an existing consumer group
func NewConsumerWithGroup(group sarama.ConsumerGroup, cfg ConsumerConfig, handler *CommandHandler, logger *zap.Logger, opts ...ConsumerOption) *Consumer {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Consumer{
		group:   group,
		handler: handler,
		config:  cfg,
		logger:  logger.Named("command_consumer"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run consumes until ctx is cancelled. Consume returns on every rebalance,
// so it is called in a loop.
func (c *Consumer) Run(ctx context.Context) error {
	go func() {
		for err := range c.group.Errors() {
			c.logger.Error("Consumer group error", zap.Error(err))
		}
	}()

	c.logger.Info("Command consumer started", zap.Strings("topics", c.config.Topics))
	for {
		if err := c.group.Consume(ctx, c.config.Topics, c); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			return fmt.Errorf("consume: %w", err)
		}
		if ctx.Err() != nil {
			c.logger.Info("Command consumer stopped")
			return nil
		}
	}
}

// Close leaves the consumer group
func (c *Consumer) Close() error {
	return c.group.Close()
}

// Setup implements sarama.ConsumerGroupHandler
func (c *Consumer) Setup(session sarama.ConsumerGroupSession) error {
	c.logger.Info("Consumer group session started",
		zap.String("member_id", session.MemberID()),
		zap.Int32("generation", session.GenerationID()),
	)
	return nil
}

// Cleanup implements sarama.ConsumerGroupHandler
func (c *Consumer) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim implements sarama.ConsumerGroupHandler
func (c *Consumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if !c.process(session.Context(), msg) {
				// shutting down; leave the offset for the next owner
				return nil
			}
			session.MarkMessage(msg, "")
		case <-session.Context().Done():
			return nil
		}
	}
}

// process handles one message and reports whether its offset may be committed
func (c *Consumer) process(ctx context.Context, msg *sarama.ConsumerMessage) bool {
	ctx = otel.GetTextMapPropagator().Extract(ctx, consumerHeaderCarrier(msg.Headers))
	ctx, span := telemetry.StartSpan(ctx, "messaging.consume_command",
		telemetry.WithAttribute("messaging.destination", msg.Topic),
		telemetry.WithAttribute("messaging.partition", int(msg.Partition)),
		telemetry.WithAttribute("messaging.offset", msg.Offset),
	)
	defer span.End()

	log := logger.ForContext(ctx, c.logger).With(
		zap.String("topic", msg.Topic),
		zap.Int32("partition", msg.Partition),
		zap.Int64("offset", msg.Offset),
	)

	cmd, err := Decode(msg.Value)
	if err != nil {
		telemetry.RecordError(span, err)
		log.Warn("Skipping undecodable command", zap.Error(err))
		return true
	}
	telemetry.SetAttributes(span, "command", cmd.Name)
	if cmd.ID != "" {
		log = log.With(zap.String("command_id", cmd.ID))
		ctx = logger.ContextWithRequestID(ctx, cmd.ID)
	}
	if c.seen(ctx, cmd, log) {
		log.Info("Duplicate command skipped", zap.String("command", cmd.Name))
		return true
	}

	for attempt := 1; ; attempt++ {
		err = c.handler.Handle(ctx, cmd)
		if err == nil {
			log.Debug("Command handled", zap.String("command", cmd.Name))
			c.remember(ctx, cmd, log)
			return true
		}
		if IsPermanent(err) {
			log.Warn("Command rejected", zap.String("command", cmd.Name), zap.Error(err))
			c.remember(ctx, cmd, log)
			return true
		}
		if attempt >= c.config.MaxAttempts {
			telemetry.RecordError(span, err)
			log.Error("Command failed, skipping",
				zap.String("command", cmd.Name),
				zap.Int("attempts", attempt),
				zap.Error(err),
			)
			return true
		}
		log.Warn("Command failed, retrying",
			zap.String("command", cmd.Name),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return false
		case <-time.After(c.config.RetryBackoff):
		}
	}
}

// seen reports whether cmd was already applied. A store failure counts as unseen.
func (c *Consumer) seen(ctx context.Context, cmd Command, log *zap.Logger) bool {
	if c.dedup == nil || cmd.ID == "" {
		return false
	}
	processed, err := c.dedup.IsProcessed(ctx, cmd.ID)
	if err != nil {
		log.Warn("Deduplication lookup failed", zap.Error(err))
		return false
	}
	return processed
}

func (c *Consumer) remember(ctx context.Context, cmd Command, log *zap.Logger) {
	if c.dedup == nil || cmd.ID == "" {
		return
	}
	if _, err := c.dedup.MarkProcessed(ctx, cmd.ID, c.dedupTTL); err != nil {
		log.Warn("Failed to record applied command", zap.Error(err))
	}
}

// consumerHeaderCarrier adapts consumed record headers to propagation.TextMapCarrier
type consumerHeaderCarrier []*sarama.RecordHeader

func (c consumerHeaderCarrier) Get(key string) string {
	for _, h := range c {
		if h != nil && string(h.Key) == key {
			return string(h.Value)
		}
	}
	return ""
}

// Set is a no-op; consumed headers are read-only
func (c consumerHeaderCarrier) Set(string, string) {}

func (c consumerHeaderCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for _, h := range c {
		if h != nil {
			keys = append(keys, string(h.Key))
		}
	}
	return keys
}
