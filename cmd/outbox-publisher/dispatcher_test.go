package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/angelmondragon/ordercore/pkg/config"
	"github.com/angelmondragon/ordercore/pkg/db/models"
	"github.com/angelmondragon/ordercore/pkg/enums"
	"github.com/angelmondragon/ordercore/pkg/logger"
	"github.com/angelmondragon/ordercore/pkg/outbox"
	"github.com/angelmondragon/ordercore/pkg/outbox/payloads"
	"github.com/angelmondragon/ordercore/pkg/outbox/registry"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestDispatchBatchContinuesAfterTransientFailure(t *testing.T) {
	first := orderRow(t, enums.EventOrderCreated, 0)
	second := orderRow(t, enums.EventOrderStatusChanged, 0)
	store := &memStore{rows: []models.OutboxEvent{first, second}}
	sink := &recordingSink{errs: []error{errors.New("unavailable"), nil}}
	d := newTestDispatcher(t, store, sink, passthroughRegistry{}, config.OutboxConfig{MaxAttempts: 5})

	seen, err := d.dispatchBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, seen)
	assert.Equal(t, []uuid.UUID{first.ID}, store.failed)
	assert.Equal(t, []uuid.UUID{second.ID}, store.published)
	assert.Empty(t, d.dlq.(*memDLQ).entries)
}

func TestDispatchBatchSetsOrderingKeyAndAttributes(t *testing.T) {
	row := orderRow(t, enums.EventOrderSplit, 0)
	store := &memStore{rows: []models.OutboxEvent{row}}
	sink := &recordingSink{}
	d := newTestDispatcher(t, store, sink, passthroughRegistry{}, config.OutboxConfig{})

	_, err := d.dispatchBatch(context.Background())
	require.NoError(t, err)
	require.Len(t, sink.sent, 1)
	msg := sink.sent[0]
	assert.Equal(t, "order-domain-events", sink.topics[0])
	assert.Equal(t, row.AggregateID.String(), msg.OrderingKey)
	assert.Equal(t, string(enums.EventOrderSplit), msg.Attributes["event_type"])
	assert.Equal(t, "evt-"+row.ID.String(), msg.Attributes["event_id"])
	assert.JSONEq(t, string(row.Payload), string(msg.Data))
}

func TestDispatchBatchDeadLettersUnresolvableRows(t *testing.T) {
	row := orderRow(t, enums.EventOrderCreated, 0)
	store := &memStore{rows: []models.OutboxEvent{row}}
	sink := &recordingSink{}
	reg := failingRegistry{err: registry.NewNonRetryableError(errors.New("unsupported event type"))}
	d := newTestDispatcher(t, store, sink, reg, config.OutboxConfig{MaxAttempts: 4})

	_, err := d.dispatchBatch(context.Background())
	require.NoError(t, err)
	assert.Empty(t, sink.sent)

	entries := d.dlq.(*memDLQ).entries
	require.Len(t, entries, 1)
	assert.Equal(t, row.ID, entries[0].EventID)
	assert.Equal(t, enums.OutboxDLQReasonNonRetryable, entries[0].ErrorReason)
	assert.JSONEq(t, string(row.Payload), string(entries[0].Payload))
	assert.Equal(t, []uuid.UUID{row.ID}, store.terminal)
}

func TestDispatchBatchDeadLettersAfterMaxAttempts(t *testing.T) {
	row := orderRow(t, enums.EventRefundRecorded, 1)
	store := &memStore{rows: []models.OutboxEvent{row}}
	sink := &recordingSink{errs: []error{errors.New("deadline exceeded")}}
	d := newTestDispatcher(t, store, sink, passthroughRegistry{}, config.OutboxConfig{MaxAttempts: 2})

	_, err := d.dispatchBatch(context.Background())
	require.NoError(t, err)

	entries := d.dlq.(*memDLQ).entries
	require.Len(t, entries, 1)
	assert.Equal(t, enums.OutboxDLQReasonMaxAttempts, entries[0].ErrorReason)
	require.NotNil(t, entries[0].ErrorMessage)
	assert.Contains(t, *entries[0].ErrorMessage, "deadline exceeded")
	assert.Empty(t, store.failed)
}

func TestDispatchBatchDeadLettersSinkRejections(t *testing.T) {
	row := orderRow(t, enums.EventReturnRequested, 0)
	store := &memStore{rows: []models.OutboxEvent{row}}
	sink := &recordingSink{errs: []error{registry.NewNonRetryableError(errors.New("no publisher"))}}
	d := newTestDispatcher(t, store, sink, passthroughRegistry{}, config.OutboxConfig{MaxAttempts: 10})

	_, err := d.dispatchBatch(context.Background())
	require.NoError(t, err)
	require.Len(t, d.dlq.(*memDLQ).entries, 1)
	assert.Equal(t, enums.OutboxDLQReasonNonRetryable, d.dlq.(*memDLQ).entries[0].ErrorReason)
}

func TestDispatchBatchSurfacesBookkeepingErrors(t *testing.T) {
	row := orderRow(t, enums.EventOrderCreated, 0)
	store := &memStore{rows: []models.OutboxEvent{row}, markErr: errors.New("connection reset")}
	d := newTestDispatcher(t, store, &recordingSink{}, passthroughRegistry{}, config.OutboxConfig{})

	_, err := d.dispatchBatch(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mark published")
}

func TestRunStopsWhenContextCancelled(t *testing.T) {
	store := &memStore{}
	d := newTestDispatcher(t, store, &recordingSink{}, passthroughRegistry{}, config.OutboxConfig{PollIntervalMS: 5})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := d.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRunFailsWhenSinkNotReady(t *testing.T) {
	d := newTestDispatcher(t, &memStore{}, &recordingSink{pingErr: errors.New("topic missing")}, passthroughRegistry{}, config.OutboxConfig{})
	err := d.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sink ping")
}

func TestNewDispatcherAppliesDefaults(t *testing.T) {
	d := newTestDispatcher(t, &memStore{}, &recordingSink{}, passthroughRegistry{}, config.OutboxConfig{})
	assert.Equal(t, 50, d.batchSize)
	assert.Equal(t, 10, d.maxAttempts)
	assert.Equal(t, 500*time.Millisecond, d.interval)

	_, err := NewDispatcher(DispatcherParams{})
	assert.Error(t, err)
}

func newTestDispatcher(t *testing.T, store *memStore, sink *recordingSink, reg resolver, cfg config.OutboxConfig) *Dispatcher {
	t.Helper()
	d, err := NewDispatcher(DispatcherParams{
		Outbox:      cfg,
		Logger:      logger.New(logger.Options{ServiceName: "outbox-test", Output: io.Discard}),
		DB:          fakeTx{},
		Events:      store,
		DeadLetters: &memDLQ{},
		Registry:    reg,
		Sink:        sink,
	})
	require.NoError(t, err)
	d.jitter = func(wait time.Duration) time.Duration { return wait }
	return d
}

func orderRow(t *testing.T, eventType enums.OutboxEventType, attempts int) models.OutboxEvent {
	t.Helper()
	id := uuid.New()
	env := outbox.PayloadEnvelope{
		Version:    1,
		EventID:    "evt-" + id.String(),
		OccurredAt: time.Now().UTC(),
		Data:       json.RawMessage(`{"order_id":"x"}`),
	}
	payload, err := json.Marshal(env)
	require.NoError(t, err)
	return models.OutboxEvent{
		ID:            id,
		EventType:     eventType,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       payload,
		AttemptCount:  attempts,
	}
}

type fakeTx struct{}

func (fakeTx) Ping(context.Context) error { return nil }

func (fakeTx) WithTx(_ context.Context, fn func(*gorm.DB) error) error { return fn(nil) }

type memStore struct {
	rows      []models.OutboxEvent
	published []uuid.UUID
	failed    []uuid.UUID
	terminal  []uuid.UUID
	markErr   error
}

func (s *memStore) FetchUnpublishedForPublish(_ *gorm.DB, limit, _ int) ([]models.OutboxEvent, error) {
	if len(s.rows) > limit {
		return s.rows[:limit], nil
	}
	return s.rows, nil
}

func (s *memStore) MarkPublishedTx(_ *gorm.DB, id uuid.UUID) error {
	if s.markErr != nil {
		return s.markErr
	}
	s.published = append(s.published, id)
	return nil
}

func (s *memStore) MarkFailedTx(_ *gorm.DB, id uuid.UUID, _ error) error {
	s.failed = append(s.failed, id)
	return nil
}

func (s *memStore) MarkTerminalTx(_ *gorm.DB, id uuid.UUID, _ error, _ int) error {
	s.terminal = append(s.terminal, id)
	return nil
}

func (s *memStore) CountPending(*gorm.DB) (int64, error) {
	return int64(len(s.rows) - len(s.published)), nil
}

type memDLQ struct {
	entries []models.OutboxDLQ
}

func (m *memDLQ) InsertTx(_ *gorm.DB, entry models.OutboxDLQ) error {
	m.entries = append(m.entries, entry)
	return nil
}

type recordingSink struct {
	errs    []error
	sent    []*gcppubsub.Message
	topics  []string
	pingErr error
}

func (s *recordingSink) Ping(context.Context) error { return s.pingErr }

func (s *recordingSink) Send(_ context.Context, topic string, msg *gcppubsub.Message) error {
	var err error
	if len(s.errs) > 0 {
		err, s.errs = s.errs[0], s.errs[1:]
	}
	if err == nil {
		s.sent = append(s.sent, msg)
		s.topics = append(s.topics, topic)
	}
	return err
}

type passthroughRegistry struct{}

func (passthroughRegistry) Resolve(row models.OutboxEvent) (*registry.ResolvedEvent, error) {
	var env outbox.PayloadEnvelope
	if err := json.Unmarshal(row.Payload, &env); err != nil {
		return nil, registry.NewNonRetryableError(err)
	}
	return &registry.ResolvedEvent{
		Descriptor: registry.EventDescriptor{
			EventType:     row.EventType,
			AggregateType: enums.AggregateOrder,
			Topic:         "order-domain-events",
		},
		Envelope: env,
		Payload:  &payloads.OrderCreatedEvent{},
	}, nil
}

type failingRegistry struct {
	err error
}

func (f failingRegistry) Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error) {
	return nil, f.err
}
