package payments

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/angelmondragon/ordercore/internal/orders"
	"github.com/angelmondragon/ordercore/pkg/db/models"
	"github.com/angelmondragon/ordercore/pkg/enums"
	pkgerrors "github.com/angelmondragon/ordercore/pkg/errors"
	"github.com/angelmondragon/ordercore/pkg/logger"
	"github.com/angelmondragon/ordercore/pkg/metrics"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeApplier struct {
	calls []orders.PaymentOutcome
	err   error
}

func (f *fakeApplier) ApplyPaymentOutcome(_ context.Context, input orders.PaymentOutcome) (*models.Order, error) {
	f.calls = append(f.calls, input)
	if f.err != nil {
		return nil, f.err
	}
	return &models.Order{ID: input.OrderID}, nil
}

type memoryIdempotency struct {
	seen     map[string]bool
	checkErr error
	deleted  []string
}

func newMemoryIdempotency() *memoryIdempotency {
	return &memoryIdempotency{seen: map[string]bool{}}
}

func (m *memoryIdempotency) CheckAndMarkProcessed(_ context.Context, consumer, eventID string) (bool, error) {
	if m.checkErr != nil {
		return false, m.checkErr
	}
	key := consumer + ":" + eventID
	if m.seen[key] {
		return true, nil
	}
	m.seen[key] = true
	return false, nil
}

func (m *memoryIdempotency) Delete(_ context.Context, consumer, eventID string) error {
	key := consumer + ":" + eventID
	delete(m.seen, key)
	m.deleted = append(m.deleted, key)
	return nil
}

func newTestConsumer(t *testing.T, applier *fakeApplier, manager *memoryIdempotency) (*Consumer, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	consumer, err := NewConsumer(applier, manager, logg, metrics.NewOrderMetrics(reg))
	require.NoError(t, err)
	return consumer, reg
}

func paymentMessage(t *testing.T, eventID string, eventType enums.PaymentEventType, orderID uuid.UUID) Message {
	t.Helper()
	data, err := json.Marshal(map[string]any{
		"event_id":    eventID,
		"type":        eventType,
		"order_id":    orderID,
		"occurred_at": time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	return Message{ID: "msg-" + eventID, Data: data}
}

func TestHandleAppliesOutcomeOnce(t *testing.T) {
	applier := &fakeApplier{}
	manager := newMemoryIdempotency()
	consumer, reg := newTestConsumer(t, applier, manager)
	orderID := uuid.New()
	msg := paymentMessage(t, "evt_1", enums.PaymentEventSucceeded, orderID)

	require.NoError(t, consumer.Handle(context.Background(), msg))
	require.NoError(t, consumer.Handle(context.Background(), msg))

	require.Len(t, applier.calls, 1)
	assert.Equal(t, orders.PaymentOutcome{OrderID: orderID, Type: enums.PaymentEventSucceeded, EventID: "evt_1"}, applier.calls[0])

	series, err := testutil.GatherAndCount(reg, "payment_events_total")
	require.NoError(t, err)
	assert.Equal(t, 2, series, "one success and one skipped duplicate")
}

func TestHandleDropsMalformedEvents(t *testing.T) {
	applier := &fakeApplier{}
	consumer, _ := newTestConsumer(t, applier, newMemoryIdempotency())

	cases := map[string]Message{
		"not json":      {ID: "1", Data: []byte("{")},
		"unknown type":  paymentMessage(t, "evt_1", "payment.refunded", uuid.New()),
		"missing order": paymentMessage(t, "evt_2", enums.PaymentEventFailed, uuid.Nil),
	}
	for name, msg := range cases {
		t.Run(name, func(t *testing.T) {
			assert.NoError(t, consumer.Handle(context.Background(), msg))
		})
	}
	assert.Empty(t, applier.calls)
}

func TestHandleAcksPermanentFailures(t *testing.T) {
	applier := &fakeApplier{err: pkgerrors.New(pkgerrors.CodeNotFound, "order missing")}
	manager := newMemoryIdempotency()
	consumer, _ := newTestConsumer(t, applier, manager)

	err := consumer.Handle(context.Background(), paymentMessage(t, "evt_1", enums.PaymentEventSucceeded, uuid.New()))
	require.NoError(t, err)
	assert.Empty(t, manager.deleted, "permanent failures stay marked")
}

func TestHandleReleasesKeyOnRetryableFailure(t *testing.T) {
	applier := &fakeApplier{err: pkgerrors.New(pkgerrors.CodeDependency, "db down")}
	manager := newMemoryIdempotency()
	consumer, _ := newTestConsumer(t, applier, manager)
	msg := paymentMessage(t, "evt_1", enums.PaymentEventSucceeded, uuid.New())

	require.Error(t, consumer.Handle(context.Background(), msg))
	assert.Equal(t, []string{ConsumerName + ":evt_1"}, manager.deleted)

	applier.err = nil
	require.NoError(t, consumer.Handle(context.Background(), msg))
	assert.Len(t, applier.calls, 2)
}

func TestHandleNacksWhenIdempotencyStoreFails(t *testing.T) {
	applier := &fakeApplier{}
	manager := newMemoryIdempotency()
	manager.checkErr = errors.New("redis timeout")
	consumer, _ := newTestConsumer(t, applier, manager)

	require.Error(t, consumer.Handle(context.Background(), paymentMessage(t, "evt_1", enums.PaymentEventSucceeded, uuid.New())))
	assert.Empty(t, applier.calls)
}

func TestDecodeEventFallsBackToAttributes(t *testing.T) {
	orderID := uuid.New()
	event, err := DecodeEvent(Message{
		ID:         "pubsub-123",
		Data:       []byte(`{"order_id":"` + orderID.String() + `"}`),
		Attributes: map[string]string{"event_type": "payment.failed"},
	})
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentEventFailed, event.Type)
	assert.Equal(t, "pubsub-123", event.EventID)
	assert.Equal(t, orderID, event.OrderID)
}

type fakeReader struct {
	messages  []kafkago.Message
	committed []int64
	cancel    context.CancelFunc
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafkago.Message, error) {
	if len(r.messages) == 0 {
		r.cancel()
		<-ctx.Done()
		return kafkago.Message{}, ctx.Err()
	}
	msg := r.messages[0]
	r.messages = r.messages[1:]
	return msg, nil
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafkago.Message) error {
	for _, msg := range msgs {
		r.committed = append(r.committed, msg.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

func TestKafkaSourceRetriesThenCommits(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reader := &fakeReader{
		cancel: cancel,
		messages: []kafkago.Message{
			{Topic: "payment-events", Offset: 7, Value: []byte("a"), Headers: []kafkago.Header{{Key: "event_type", Value: []byte("payment.succeeded")}}},
			{Topic: "payment-events", Offset: 8, Value: []byte("b")},
		},
	}
	source, err := NewKafkaSource(reader, logger.New(logger.Options{ServiceName: "test", Output: io.Discard}), 3, time.Millisecond)
	require.NoError(t, err)

	attempts := map[string]int{}
	var seen []Message
	err = source.Receive(ctx, func(_ context.Context, msg Message) error {
		attempts[string(msg.Data)]++
		seen = append(seen, msg)
		if string(msg.Data) == "b" {
			return errors.New("always failing")
		}
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, 1, attempts["a"])
	assert.Equal(t, 3, attempts["b"])
	assert.Equal(t, []int64{7, 8}, reader.committed)
	assert.Equal(t, "payment.succeeded", seen[0].Attributes["event_type"])
	assert.Equal(t, "payment-events/0/7", seen[0].ID)
}

func TestConsumerRunRequiresSource(t *testing.T) {
	consumer, _ := newTestConsumer(t, &fakeApplier{}, newMemoryIdempotency())
	assert.Error(t, consumer.Run(context.Background(), nil))
}
