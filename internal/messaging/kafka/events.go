package kafka

// Topics для Kafka.
const (
	TopicOrderEvents     = "shop.order.events"
	TopicDeadLetterQueue = "shop.order.events.dlq"
)

// Заголовки сообщений.
const (
	HeaderEventType     = "x-event-type"
	HeaderAggregateType = "x-aggregate-type"
	HeaderOriginalTopic = "x-original-topic"
	// HeaderReplayed ставится при повторной публикации из DLQ.
	HeaderReplayed      = "x-replayed"
)

// Envelope — формат сообщения, которое outbox отправляет в Kafka.
type Envelope struct {
	ID            string `json:"id"`
	AggregateType string `json:"aggregate_type"`
	AggregateID   string `json:"aggregate_id"`
	EventType     string `json:"event_type"`
	// Payload хранится как есть, ordering уже сериализовал его в JSON.
	Payload     rawJSON `json:"payload"`
	PublishedAt string  `json:"published_at"`
}
