// internal/events/kafka.go
package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Bus publishes resolved-payment events to one topic and reads them back
// as a consumer group. The writer is shared across publishes.
type Bus struct {
	Brokers []string
	Topic   string
	GroupID string

	writer *kafka.Writer
	logger *zap.Logger
}

func NewBus(brokers []string, topic, groupID string, logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		Brokers: brokers,
		Topic:   topic,
		GroupID: groupID,
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
		},
		logger: logger,
	}
}

// Publish keys by correlation id so every event for one payment lands on
// the same partition.
func (b *Bus) Publish(ctx context.Context, evt PaymentResolved) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return b.writer.WriteMessages(ctx, kafka.Message{
		Key:   evt.Key(),
		Value: payload,
		Time:  time.Now(),
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(evt.EventID)},
			{Key: "event_type", Value: []byte("payment.resolved")},
		},
	})
}

const (
	handleAttempts = 5
	handleBackoff  = 200 * time.Millisecond
)

// Consume reads until ctx ends. A failing handler is retried with backoff
// before the partition moves on; a message that still fails is logged with
// its offset and committed, as are undecodable messages.
func (b *Bus) Consume(ctx context.Context, handle Handler) error {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  b.Brokers,
		Topic:    b.Topic,
		GroupID:  b.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	defer r.Close()

	for {
		msg, err := r.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}

		var evt PaymentResolved
		if err := json.Unmarshal(msg.Value, &evt); err != nil {
			b.logger.Error("bad event", zap.Error(err), zap.ByteString("key", msg.Key))
		} else if err := deliver(ctx, handle, evt, handleAttempts, handleBackoff); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			b.logger.Error("event dropped after retries",
				zap.Error(err),
				zap.String("correlation_id", evt.CorrelationID),
				zap.Int64("offset", msg.Offset))
		}

		if err := r.CommitMessages(ctx, msg); err != nil {
			b.logger.Error("commit offset", zap.Error(err), zap.Int64("offset", msg.Offset))
		}
	}
}

// deliver calls handle up to attempts times, doubling the wait between tries.
func deliver(ctx context.Context, handle Handler, evt PaymentResolved, attempts int, backoff time.Duration) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = handle(ctx, evt); err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return err
}

func (b *Bus) Close() error { return b.writer.Close() }

// LogPublisher is used when no brokers are configured.
type LogPublisher struct {
	Logger *zap.Logger
}

func (p LogPublisher) Publish(_ context.Context, evt PaymentResolved) error {
	p.Logger.Info("payment resolved",
		zap.String("event_id", evt.EventID),
		zap.String("correlation_id", evt.CorrelationID),
		zap.String("state", evt.State),
		zap.String("tenant_reference", evt.TenantReference))
	return nil
}
