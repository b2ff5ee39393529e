package kafka

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

type capturedEvent struct {
	topic   string
	key     string
	event   any
	headers map[string]string
}

type recordingPublisher struct {
	events []capturedEvent
	err    error
}

func (r *recordingPublisher) PublishEvent(_ context.Context, topic, key string, event any, headers map[string]string) error {
	r.events = append(r.events, capturedEvent{topic: topic, key: key, event: event, headers: headers})
	return r.err
}

func TestOutboxPublisher_Publish(t *testing.T) {
	t.Parallel()

	rec := &recordingPublisher{}
	publisher := NewOutboxPublisher(rec, "")
	require.Equal(t, TopicOrderEvents, publisher.Topic())

	err := publisher.Publish(context.Background(), domain.OutboxMessage{
		ID:            "outbox-1",
		AggregateType: domain.AggregateOrder,
		AggregateID:   "order-123",
		EventType:     domain.EventOrderCreated,
		Payload:       []byte(`{"status":"pending"}`),
	})
	require.NoError(t, err)
	require.Len(t, rec.events, 1)

	got := rec.events[0]
	assert.Equal(t, TopicOrderEvents, got.topic)
	assert.Equal(t, "order-123", got.key)
	assert.Equal(t, domain.EventOrderCreated, got.headers[HeaderEventType])
	assert.NotContains(t, got.headers, HeaderOriginalTopic)

	raw, err := json.Marshal(got.event)
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"pending"}`, string(got.event.(Envelope).Payload))
	assert.Contains(t, string(raw), `"event_type":"order.created"`)
}

func TestOutboxPublisher_KeyFallsBackToMessageID(t *testing.T) {
	t.Parallel()

	rec := &recordingPublisher{}
	publisher := NewOutboxPublisher(rec, TopicOrderEvents)

	require.NoError(t, publisher.Publish(context.Background(), domain.OutboxMessage{ID: "outbox-2"}))
	require.Len(t, rec.events, 1)
	assert.Equal(t, "outbox-2", rec.events[0].key)
	// пустой payload сериализуется как null
	assert.Equal(t, "null", string(rec.events[0].event.(Envelope).Payload))
}

func TestDLQPublisher_MarksSourceTopic(t *testing.T) {
	t.Parallel()

	rec := &recordingPublisher{}
	publisher := NewDLQPublisher(rec, "", TopicOrderEvents)

	require.NoError(t, publisher.Publish(context.Background(), domain.OutboxMessage{ID: "outbox-3", AggregateID: "o-3"}))
	require.Len(t, rec.events, 1)
	assert.Equal(t, TopicDeadLetterQueue, rec.events[0].topic)
	assert.Equal(t, TopicOrderEvents, rec.events[0].headers[HeaderOriginalTopic])
}

func TestOutboxPublisher_PublishProducerError(t *testing.T) {
	t.Parallel()

	producer, mockProducer := newTestProducer(t)
	mockProducer.ExpectSendMessageAndFail(assert.AnError)

	publisher := NewOutboxPublisher(producer, TopicOrderEvents)
	err := publisher.Publish(context.Background(), domain.OutboxMessage{
		ID:            "outbox-4",
		AggregateType: domain.AggregateOrder,
		AggregateID:   "order-234",
		EventType:     domain.EventOrderStatusChanged,
		Payload:       []byte(`{"status":"cancelled"}`),
	})
	require.Error(t, err)
	require.NoError(t, producer.Close())
}

func TestOutboxPublisher_PublishNilProducer(t *testing.T) {
	t.Parallel()

	publisher := NewOutboxPublisher(nil, TopicOrderEvents)
	if err := publisher.Publish(context.Background(), domain.OutboxMessage{ID: "outbox-5"}); err == nil {
		t.Fatal("expected error for nil producer")
	}
}
