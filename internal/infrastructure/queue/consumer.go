package queue

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/docrender/backend/internal/domain/document"
)

// Message is one unit of work delivered to the handler
type Message struct {
	Key   []byte
	Value []byte
}

// Handler processes consumed messages. Handle is retried on retryable
// errors; OnExhausted fires once when retries run out, after the raw
// message has been forwarded to the dead-letter topic.
type Handler interface {
	Handle(ctx context.Context, msg Message) error
	OnExhausted(ctx context.Context, msg Message, err error)
}

// ConsumerOptions configures the request consumer
type ConsumerOptions struct {
	Brokers         []string
	GroupID         string
	Topic           string
	DeadLetterTopic string
	MaxRetries      int
	RetryDelay      time.Duration
	// PollTimeout caps how long a fetch waits for new messages
	PollTimeout time.Duration
	// MaxConcurrent bounds how many messages are processed at once.
	// Messages are sharded by partition, so one partition is never
	// handled by two workers.
	MaxConcurrent int
	Security      SecurityConfig
}

// messageSource is the slice of kafka.Reader the consumer drives
type messageSource interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer pulls request messages and drives the handler through the retry
// and dead-letter policy. Messages fan out across up to MaxConcurrent
// workers sharded by partition: partitions progress in parallel while each
// partition stays strictly ordered, so replies sharing a correlation id
// never overlap and commits within a partition are monotonic. Offsets are
// committed only after a terminal outcome, so an in-flight message
// survives a crash or shutdown.
type Consumer struct {
	reader  messageSource
	dlq     *kafka.Writer
	opts    ConsumerOptions
	handler Handler
	logger  *zap.Logger
}

func NewConsumer(opts ConsumerOptions, handler Handler, logger *zap.Logger) (*Consumer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	dialer, err := opts.Security.dialer()
	if err != nil {
		return nil, err
	}

	maxWait := opts.PollTimeout
	if maxWait <= 0 {
		maxWait = 10 * time.Second
	}
	c := &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:     opts.Brokers,
			GroupID:     opts.GroupID,
			Topic:       opts.Topic,
			Dialer:      dialer,
			MinBytes:    1,
			MaxBytes:    10 << 20,
			MaxWait:     maxWait,
			StartOffset: kafka.FirstOffset,
		}),
		opts:    opts,
		handler: handler,
		logger:  logger,
	}

	if opts.DeadLetterTopic != "" {
		transport, err := opts.Security.transport()
		if err != nil {
			return nil, err
		}
		c.dlq = &kafka.Writer{
			Addr:         kafka.TCP(opts.Brokers...),
			Topic:        opts.DeadLetterTopic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Transport:    transport,
		}
	}
	return c, nil
}

// Run consumes until ctx is cancelled. Always returns nil on graceful
// shutdown.
func (c *Consumer) Run(ctx context.Context) error {
	workers := c.workers()
	c.logger.Info("consumer started",
		zap.String("topic", c.opts.Topic),
		zap.String("groupId", c.opts.GroupID),
		zap.Int("workers", workers))

	lanes := make([]chan kafka.Message, workers)
	var wg sync.WaitGroup
	for i := range lanes {
		lanes[i] = make(chan kafka.Message)
		wg.Add(1)
		go func(in <-chan kafka.Message) {
			defer wg.Done()
			for m := range in {
				if c.process(ctx, m) {
					if err := c.reader.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
						c.logger.Error("commit failed", zap.Error(err))
					}
				}
			}
		}(lanes[i])
	}
	defer func() {
		for _, lane := range lanes {
			close(lane)
		}
		wg.Wait()
	}()

	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}
			c.logger.Error("fetch failed", zap.Error(err))
			if serr := sleepCtx(ctx, time.Second); serr != nil {
				return nil
			}
			continue
		}

		select {
		case lanes[m.Partition%workers] <- m:
		case <-ctx.Done():
			return nil
		}
	}
}

func (c *Consumer) workers() int {
	if c.opts.MaxConcurrent > 0 {
		return c.opts.MaxConcurrent
	}
	return 1
}

// process runs the retry loop for one message and reports whether the
// offset should be committed. It returns false only when shutdown
// interrupted the work, leaving the message for redelivery.
func (c *Consumer) process(ctx context.Context, m kafka.Message) bool {
	msg := Message{Key: m.Key, Value: m.Value}

	for attempt := 1; ; attempt++ {
		err := c.handler.Handle(ctx, msg)
		if err == nil {
			return true
		}

		if document.IsCancelled(err) && ctx.Err() != nil {
			c.logger.Info("shutdown interrupted message, leaving uncommitted",
				zap.String("key", string(m.Key)))
			return false
		}

		if !document.Retryable(err) || attempt > c.opts.MaxRetries {
			c.exhausted(ctx, msg, err, attempt)
			return true
		}

		delay := backoffDelay(c.opts.RetryDelay, attempt)
		c.logger.Warn("handler failed, retrying",
			zap.String("key", string(m.Key)),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))
		if sleepCtx(ctx, delay) != nil {
			return false
		}
	}
}

func (c *Consumer) exhausted(ctx context.Context, msg Message, err error, attempts int) {
	c.logger.Error("message exhausted retries",
		zap.String("key", string(msg.Key)),
		zap.Int("attempts", attempts),
		zap.Error(err))

	if c.dlq != nil {
		werr := c.dlq.WriteMessages(ctx, kafka.Message{Key: msg.Key, Value: msg.Value})
		if werr != nil {
			c.logger.Error("dead-letter publish failed",
				zap.String("key", string(msg.Key)),
				zap.Error(werr))
		}
	}

	c.handler.OnExhausted(ctx, msg, err)
}

func (c *Consumer) Close() error {
	err := c.reader.Close()
	if c.dlq != nil {
		if derr := c.dlq.Close(); err == nil {
			err = derr
		}
	}
	return err
}

// backoffDelay is base*2^(attempt-1)
func backoffDelay(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
