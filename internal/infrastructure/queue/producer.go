package queue

import (
	"context"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// ProducerOptions configures the reply publisher
type ProducerOptions struct {
	Brokers  []string
	Topic    string
	Security SecurityConfig
}

// Producer publishes correlated replies. Messages are keyed so all replies
// for one correlation id land on the same partition, in order.
type Producer struct {
	writer *kafka.Writer
	logger *zap.Logger
}

func NewProducer(opts ProducerOptions, logger *zap.Logger) (*Producer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	transport, err := opts.Security.transport()
	if err != nil {
		return nil, err
	}
	return &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(opts.Brokers...),
			Topic:        opts.Topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Transport:    transport,
		},
		logger: logger,
	}, nil
}

// Publish writes one message keyed by key
func (p *Producer) Publish(ctx context.Context, key string, value []byte) error {
	err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: value,
	})
	if err != nil {
		p.logger.Error("publish failed",
			zap.String("topic", p.writer.Topic),
			zap.String("key", key),
			zap.Error(err))
		return err
	}
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
