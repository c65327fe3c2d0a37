package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/angelmondragon/ordercore/pkg/kafka"
	"github.com/angelmondragon/ordercore/pkg/logger"
	kafkago "github.com/segmentio/kafka-go"
)

// PubSubSource receives from a Pub/Sub subscription. Handler errors nack the
// message so Pub/Sub redelivers it with its own backoff.
type PubSubSource struct {
	subscription *gcppubsub.Subscriber
}

func NewPubSubSource(subscription *gcppubsub.Subscriber) (*PubSubSource, error) {
	if subscription == nil {
		return nil, errors.New("payment subscription is required")
	}
	return &PubSubSource{subscription: subscription}, nil
}

func (s *PubSubSource) Receive(ctx context.Context, handle Handler) error {
	return s.subscription.Receive(ctx, func(inner context.Context, msg *gcppubsub.Message) {
		if err := handle(inner, Message{ID: msg.ID, Data: msg.Data, Attributes: msg.Attributes}); err != nil {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

// KafkaSource reads a consumer group. Kafka has no per-message nack, so a
// failing message is retried in place and committed once it succeeds or the
// attempts run out.
type KafkaSource struct {
	reader      kafka.Reader
	logg        *logger.Logger
	maxAttempts int
	backoff     time.Duration
}

func NewKafkaSource(reader kafka.Reader, logg *logger.Logger, maxAttempts int, backoff time.Duration) (*KafkaSource, error) {
	if reader == nil {
		return nil, errors.New("kafka reader is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &KafkaSource{reader: reader, logg: logg, maxAttempts: maxAttempts, backoff: backoff}, nil
}

func (s *KafkaSource) Receive(ctx context.Context, handle Handler) error {
	for {
		msg, err := s.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if err := s.deliver(ctx, handle, msg); err != nil {
			return err
		}
		if err := s.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
	}
}

// deliver retries handle until it succeeds or attempts run out. It only
// returns an error when ctx is cancelled.
func (s *KafkaSource) deliver(ctx context.Context, handle Handler, msg kafkago.Message) error {
	converted := fromKafka(msg)
	var err error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		if err = handle(ctx, converted); err == nil {
			return nil
		}
		if attempt == s.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.backoff * time.Duration(attempt)):
		}
	}
	s.logg.Error(s.logg.WithFields(ctx, map[string]any{
		"topic":     msg.Topic,
		"partition": msg.Partition,
		"offset":    msg.Offset,
		"attempts":  s.maxAttempts,
	}), "payment event failed after retries, committing offset", err)
	return nil
}

func fromKafka(msg kafkago.Message) Message {
	attrs := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		attrs[h.Key] = string(h.Value)
	}
	return Message{
		ID:         fmt.Sprintf("%s/%d/%d", msg.Topic, msg.Partition, msg.Offset),
		Data:       msg.Value,
		Attributes: attrs,
	}
}
