package orders

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/angelmondragon/ordercore/pkg/redis"
)

// NumberGenerator hands out human-readable order numbers. Implementations
// must never return the same value twice.
type NumberGenerator interface {
	Next(ctx context.Context) (string, error)
}

const orderNumberCounter = "order_number"

func formatNumber(prefix string, at time.Time, seq int64) string {
	return fmt.Sprintf("%s-%s-%06d", prefix, at.UTC().Format("20060102"), seq)
}

func normalizePrefix(prefix string) string {
	prefix = strings.ToUpper(strings.TrimSpace(prefix))
	if prefix == "" {
		return "ORD"
	}
	return prefix
}

// RedisNumberGenerator draws sequence values from a Redis INCR counter shared
// by every API replica.
type RedisNumberGenerator struct {
	counter redis.Counter
	prefix  string
	now     func() time.Time
}

// NewRedisNumberGenerator builds a generator producing PREFIX-YYYYMMDD-NNNNNN.
func NewRedisNumberGenerator(counter redis.Counter, prefix string) (*RedisNumberGenerator, error) {
	if counter == nil {
		return nil, fmt.Errorf("redis counter required")
	}
	return &RedisNumberGenerator{counter: counter, prefix: normalizePrefix(prefix), now: time.Now}, nil
}

func (g *RedisNumberGenerator) Next(ctx context.Context) (string, error) {
	seq, err := g.counter.Incr(ctx, g.counter.CounterKey(orderNumberCounter))
	if err != nil {
		return "", fmt.Errorf("next order number: %w", err)
	}
	return formatNumber(g.prefix, g.now(), seq), nil
}

// SequenceNumberGenerator is an in-process counter for single-node runs and
// tests. Output is deterministic for a fixed clock.
type SequenceNumberGenerator struct {
	mu     sync.Mutex
	prefix string
	next   int64
	now    func() time.Time
}

// NewSequenceNumberGenerator starts counting at start.
func NewSequenceNumberGenerator(prefix string, start int64, now func() time.Time) *SequenceNumberGenerator {
	if now == nil {
		now = time.Now
	}
	if start < 1 {
		start = 1
	}
	return &SequenceNumberGenerator{prefix: normalizePrefix(prefix), next: start, now: now}
}

func (g *SequenceNumberGenerator) Next(context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	seq := g.next
	g.next++
	return formatNumber(g.prefix, g.now(), seq), nil
}
