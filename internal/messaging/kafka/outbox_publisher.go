package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

var errPublisherNotInitialized = errors.New("kafka outbox publisher is not initialized")

type rawJSON = json.RawMessage

// EventPublisher — часть Producer, нужная паблишеру (подменяется в тестах).
type EventPublisher interface {
	PublishEvent(ctx context.Context, topic, key string, event any, headers map[string]string) error
}

// OutboxTopicPublisher публикует outbox-сообщения в заданный Kafka topic.
type OutboxTopicPublisher struct {
	producer EventPublisher
	topic    string
	// sourceTopic указывается в заголовке для сообщений DLQ.
	sourceTopic string
}

// NewOutboxPublisher создаёт Kafka-паблишер для transactional outbox.
func NewOutboxPublisher(producer EventPublisher, topic string) *OutboxTopicPublisher {
	if topic == "" {
		topic = TopicOrderEvents
	}
	return &OutboxTopicPublisher{producer: producer, topic: topic}
}

// NewDLQPublisher создаёт паблишер в DLQ, помечающий исходный topic.
func NewDLQPublisher(producer EventPublisher, dlqTopic, sourceTopic string) *OutboxTopicPublisher {
	if dlqTopic == "" {
		dlqTopic = TopicDeadLetterQueue
	}
	return &OutboxTopicPublisher{producer: producer, topic: dlqTopic, sourceTopic: sourceTopic}
}

// Topic возвращает topic назначения.
func (p *OutboxTopicPublisher) Topic() string {
	return p.topic
}

// Publish отправляет сообщение с ключом AggregateID: события одного заказа попадают в одну партицию.
func (p *OutboxTopicPublisher) Publish(ctx context.Context, event domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return errPublisherNotInitialized
	}

	key := event.AggregateID
	if key == "" {
		key = event.ID
	}

	payload := rawJSON(event.Payload)
	if len(payload) == 0 {
		payload = rawJSON("null")
	}

	envelope := Envelope{
		ID:            event.ID,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		EventType:     event.EventType,
		Payload:       payload,
		PublishedAt:   time.Now().UTC().Format(time.RFC3339Nano),
	}

	headers := map[string]string{
		HeaderEventType:     event.EventType,
		HeaderAggregateType: event.AggregateType,
	}
	if p.sourceTopic != "" {
		headers[HeaderOriginalTopic] = p.sourceTopic
	}

	return p.producer.PublishEvent(ctx, p.topic, key, envelope, headers)
}

var _ domain.OutboxPublisher = (*OutboxTopicPublisher)(nil)
