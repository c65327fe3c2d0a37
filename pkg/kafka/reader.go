// Package kafka builds consumer-group readers for topics fed by external
// collaborators.
package kafka

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/angelmondragon/ordercore/pkg/config"
)

// Reader is the subset of *kafka.Reader the consumers rely on.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewReader returns a group reader with explicit commits so a message is only
// acknowledged after it has been handled.
func NewReader(cfg config.KafkaConfig) (*kafka.Reader, error) {
	readerCfg, err := readerConfig(cfg)
	if err != nil {
		return nil, err
	}
	return kafka.NewReader(readerCfg), nil
}

func readerConfig(cfg config.KafkaConfig) (kafka.ReaderConfig, error) {
	brokers := make([]string, 0, len(cfg.Brokers))
	for _, broker := range cfg.Brokers {
		if trimmed := strings.TrimSpace(broker); trimmed != "" {
			brokers = append(brokers, trimmed)
		}
	}
	if len(brokers) == 0 {
		return kafka.ReaderConfig{}, errors.New("kafka brokers are required")
	}
	if strings.TrimSpace(cfg.PaymentTopic) == "" {
		return kafka.ReaderConfig{}, errors.New("kafka payment topic is required")
	}
	if strings.TrimSpace(cfg.GroupID) == "" {
		return kafka.ReaderConfig{}, errors.New("kafka group id is required")
	}
	return kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          cfg.PaymentTopic,
		GroupID:        cfg.GroupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		MaxWait:        time.Second,
		CommitInterval: 0,
		StartOffset:    kafka.FirstOffset,
	}, nil
}
