package main

import (
	"context"
	"fmt"
	"sync"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/angelmondragon/ordercore/pkg/outbox/registry"
)

type topicSource interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
}

// pubSubSink keeps one ordered publisher per topic.
type pubSubSink struct {
	client topicSource

	mu         sync.Mutex
	publishers map[string]*gcppubsub.Publisher
}

func newPubSubSink(client topicSource) *pubSubSink {
	return &pubSubSink{client: client, publishers: make(map[string]*gcppubsub.Publisher)}
}

func (s *pubSubSink) Ping(ctx context.Context) error {
	return s.client.Ping(ctx)
}

func (s *pubSubSink) Send(ctx context.Context, topic string, msg *gcppubsub.Message) error {
	pub := s.publisher(topic)
	if pub == nil {
		return registry.NewNonRetryableError(fmt.Errorf("no publisher for topic %s", topic))
	}
	if _, err := pub.Publish(ctx, msg).Get(ctx); err != nil {
		// A failed ordered publish pauses the key until resumed.
		if msg.OrderingKey != "" {
			pub.ResumePublish(msg.OrderingKey)
		}
		return err
	}
	return nil
}

func (s *pubSubSink) publisher(topic string) *gcppubsub.Publisher {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pub, ok := s.publishers[topic]; ok {
		return pub
	}
	pub := s.client.Publisher(topic)
	if pub == nil {
		return nil
	}
	pub.EnableMessageOrdering = true
	s.publishers[topic] = pub
	return pub
}

// Stop flushes and stops every cached publisher.
func (s *pubSubSink) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for topic, pub := range s.publishers {
		pub.Stop()
		delete(s.publishers, topic)
	}
}
