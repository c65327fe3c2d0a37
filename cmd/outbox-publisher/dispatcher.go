package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/angelmondragon/ordercore/pkg/config"
	"github.com/angelmondragon/ordercore/pkg/db/models"
	"github.com/angelmondragon/ordercore/pkg/enums"
	"github.com/angelmondragon/ordercore/pkg/logger"
	"github.com/angelmondragon/ordercore/pkg/metrics"
	"github.com/angelmondragon/ordercore/pkg/outbox"
	"github.com/angelmondragon/ordercore/pkg/outbox/registry"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	workerName     = "outbox-publisher"
	publishTimeout = 15 * time.Second
	maxIdleBackoff = 10 * time.Second
	jitterWindow   = 250 * time.Millisecond
)

type txRunner interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type eventStore interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
	CountPending(tx *gorm.DB) (int64, error)
}

type deadLetters interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type resolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

// sink delivers one encoded event to a topic. Events sharing an ordering key
// are delivered in the order they were written.
type sink interface {
	Ping(context.Context) error
	Send(ctx context.Context, topic string, msg *gcppubsub.Message) error
}

type DispatcherParams struct {
	Outbox      config.OutboxConfig
	Logger      *logger.Logger
	DB          txRunner
	Events      eventStore
	DeadLetters deadLetters
	Registry    resolver
	Sink        sink
	Metrics     *metrics.WorkerMetrics
}

// Dispatcher drains outbox_events in commit order and hands each row to the
// sink. Rows that cannot be decoded or that exhaust their attempts move to
// the dead-letter table.
type Dispatcher struct {
	logg        *logger.Logger
	db          txRunner
	events      eventStore
	dlq         deadLetters
	registry    resolver
	sink        sink
	metrics     *metrics.WorkerMetrics
	batchSize   int
	maxAttempts int
	interval    time.Duration
	now         func() time.Time
	jitter      func(time.Duration) time.Duration
}

func NewDispatcher(p DispatcherParams) (*Dispatcher, error) {
	switch {
	case p.Logger == nil:
		return nil, errors.New("logger is required")
	case p.DB == nil:
		return nil, errors.New("database client is required")
	case p.Events == nil:
		return nil, errors.New("outbox repository is required")
	case p.DeadLetters == nil:
		return nil, errors.New("dead-letter repository is required")
	case p.Registry == nil:
		return nil, errors.New("event registry is required")
	case p.Sink == nil:
		return nil, errors.New("sink is required")
	}

	defaults := config.OutboxConfig{BatchSize: 50, PollIntervalMS: 500, MaxAttempts: 10}
	cfg := p.Outbox
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaults.BatchSize
	}
	if cfg.PollIntervalMS <= 0 {
		cfg.PollIntervalMS = defaults.PollIntervalMS
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaults.MaxAttempts
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	var mu sync.Mutex
	return &Dispatcher{
		logg:        p.Logger,
		db:          p.DB,
		events:      p.Events,
		dlq:         p.DeadLetters,
		registry:    p.Registry,
		sink:        p.Sink,
		metrics:     p.Metrics,
		batchSize:   cfg.BatchSize,
		maxAttempts: cfg.MaxAttempts,
		interval:    time.Duration(cfg.PollIntervalMS) * time.Millisecond,
		now:         func() time.Time { return time.Now().UTC() },
		jitter: func(d time.Duration) time.Duration {
			mu.Lock()
			defer mu.Unlock()
			return d + time.Duration(rng.Int63n(int64(jitterWindow)))
		},
	}, nil
}

// Run polls until ctx is cancelled. A failing batch backs off exponentially
// up to maxIdleBackoff; a full batch is followed immediately by the next one.
func (d *Dispatcher) Run(ctx context.Context) error {
	if err := d.ping(ctx, "database", d.db.Ping); err != nil {
		return err
	}
	if err := d.ping(ctx, "sink", d.sink.Ping); err != nil {
		return err
	}
	d.logBacklog(ctx)

	wait := d.interval
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		started := time.Now()
		drained, err := d.dispatchBatch(ctx)
		d.metrics.Observe(workerName, time.Since(started), err)

		switch {
		case err != nil:
			d.logg.Error(ctx, "outbox batch failed", err)
			wait = min(wait*2, maxIdleBackoff)
		case drained > 0:
			wait = d.interval
			continue
		default:
			wait = d.interval
		}

		timer := time.NewTimer(d.jitter(wait))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (d *Dispatcher) ping(ctx context.Context, name string, fn func(context.Context) error) error {
	if err := fn(ctx); err != nil {
		d.logg.Error(ctx, name+" not ready", err)
		return fmt.Errorf("%s ping: %w", name, err)
	}
	return nil
}

func (d *Dispatcher) logBacklog(ctx context.Context) {
	_ = d.db.WithTx(ctx, func(tx *gorm.DB) error {
		pending, err := d.events.CountPending(tx)
		if err != nil {
			d.logg.Warn(d.logg.WithField(ctx, "error", err.Error()), "could not count pending outbox rows")
			return nil
		}
		d.logg.Info(d.logg.WithField(ctx, "pending", pending), "outbox backlog")
		return nil
	})
}

// dispatchBatch locks one batch and settles every row in it. It returns the
// number of rows it looked at.
func (d *Dispatcher) dispatchBatch(ctx context.Context) (int, error) {
	var seen int
	err := d.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := d.events.FetchUnpublishedForPublish(tx, d.batchSize, d.maxAttempts)
		if err != nil {
			return fmt.Errorf("fetch outbox batch: %w", err)
		}
		seen = len(rows)
		for _, row := range rows {
			if err := d.settle(ctx, tx, row); err != nil {
				return err
			}
		}
		return nil
	})
	return seen, err
}

// settle publishes one row and records the outcome. Only bookkeeping
// failures are returned; publish failures are recorded on the row.
func (d *Dispatcher) settle(ctx context.Context, tx *gorm.DB, row models.OutboxEvent) error {
	fields := rowFields(row)

	resolved, err := d.registry.Resolve(row)
	if err != nil {
		return d.deadLetter(ctx, tx, row, enums.OutboxDLQReasonNonRetryable, err, fields)
	}
	fields["topic"] = resolved.Descriptor.Topic
	fields["event_id"] = resolved.Envelope.EventID

	publishCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	err = d.sink.Send(publishCtx, resolved.Descriptor.Topic, encode(row, resolved.Envelope))
	cancel()
	if err == nil {
		if err := d.events.MarkPublishedTx(tx, row.ID); err != nil {
			return fmt.Errorf("mark published %s: %w", row.ID, err)
		}
		d.logg.Debug(d.logg.WithFields(ctx, fields), "outbox event published")
		return nil
	}

	var nonRetryable registry.NonRetryableError
	if errors.As(err, &nonRetryable) {
		return d.deadLetter(ctx, tx, row, enums.OutboxDLQReasonNonRetryable, err, fields)
	}
	attempt := row.AttemptCount + 1
	fields["attempt_count"] = attempt
	if attempt >= d.maxAttempts {
		return d.deadLetter(ctx, tx, row, enums.OutboxDLQReasonMaxAttempts, fmt.Errorf("gave up after %d attempts: %w", attempt, err), fields)
	}

	d.logg.Warn(d.logg.WithField(d.logg.WithFields(ctx, fields), "error", err.Error()), "outbox publish failed, will retry")
	if err := d.events.MarkFailedTx(tx, row.ID, err); err != nil {
		return fmt.Errorf("mark failed %s: %w", row.ID, err)
	}
	return nil
}

func (d *Dispatcher) deadLetter(ctx context.Context, tx *gorm.DB, row models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error, fields map[string]any) error {
	fields["dlq_reason"] = reason
	d.logg.Warn(d.logg.WithField(d.logg.WithFields(ctx, fields), "error", cause.Error()), "outbox event dead-lettered")

	msg := cause.Error()
	entry := models.OutboxDLQ{
		ID:            uuid.New(),
		EventID:       row.ID,
		EventType:     row.EventType,
		AggregateType: row.AggregateType,
		AggregateID:   row.AggregateID,
		Payload:       row.Payload,
		ErrorReason:   reason,
		ErrorMessage:  &msg,
		AttemptCount:  row.AttemptCount,
		FailedAt:      d.now(),
	}
	if err := d.dlq.InsertTx(tx, entry); err != nil {
		return fmt.Errorf("insert dead letter %s: %w", row.ID, err)
	}
	if err := d.events.MarkTerminalTx(tx, row.ID, cause, d.maxAttempts); err != nil {
		return fmt.Errorf("mark terminal %s: %w", row.ID, err)
	}
	return nil
}

// encode keeps the stored envelope as the message body. The order id is the
// ordering key so one order's events are never reordered.
func encode(row models.OutboxEvent, env outbox.PayloadEnvelope) *gcppubsub.Message {
	return &gcppubsub.Message{
		Data:        row.Payload,
		OrderingKey: row.AggregateID.String(),
		Attributes: map[string]string{
			"event_id":       env.EventID,
			"event_type":     string(row.EventType),
			"aggregate_type": string(row.AggregateType),
			"aggregate_id":   row.AggregateID.String(),
			"occurred_at":    env.OccurredAt.UTC().Format(time.RFC3339Nano),
		},
	}
}

func rowFields(row models.OutboxEvent) map[string]any {
	fields := map[string]any{
		"outbox_id":     row.ID.String(),
		"event_type":    row.EventType,
		"order_id":      row.AggregateID.String(),
		"attempt_count": row.AttemptCount,
	}
	if row.LastError != nil {
		fields["last_error"] = *row.LastError
	}
	return fields
}
