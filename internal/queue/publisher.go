package queue

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// Publisher defines the interface for publishing events to a stream.
type Publisher interface {
	// Publish adds an event to the specified stream.
	// Returns the message ID assigned by Redis.
	Publish(ctx context.Context, stream string, event Event) (messageID string, err error)
}

// RedisPublisher implements Publisher using Redis Streams.
type RedisPublisher struct {
	client *redis.Client
}

// NewPublisher creates a new Publisher backed by Redis Streams.
func NewPublisher(client *redis.Client) Publisher {
	return &RedisPublisher{client: client}
}

// Publish adds an event to the stream using XADD.
// Uses "*" for auto-generated message ID (timestamp-sequence).
func (p *RedisPublisher) Publish(ctx context.Context, stream string, event Event) (string, error) {
	startTime := time.Now()

	values, err := event.ToMap()
	if err != nil {
		log.Printf("[Publisher] Publish FAILED: stream=%s type=%s err=%v", stream, event.Type, err)
		return "", fmt.Errorf("serialize event: %w", err)
	}

	messageID, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: values,
	}).Result()

	if err != nil {
		log.Printf("[Publisher] Publish FAILED: stream=%s type=%s err=%v", stream, event.Type, err)
		return "", fmt.Errorf("xadd to stream: %w", err)
	}

	log.Printf("[Publisher] Publish OK: stream=%s type=%s msgID=%s duration=%v",
		stream, event.Type, messageID, time.Since(startTime))

	switch event.Type {
	case EventTicketCreated:
		log.Printf("[Publisher]   -> ticket=%s customer=%d category=%d", event.TicketNumber, event.CustomerID, event.CategoryID)
	case EventTicketStatusChanged:
		log.Printf("[Publisher]   -> ticket=%s %s->%s actor=%d", event.TicketNumber, event.OldStatus, event.NewStatus, event.ActorID)
	case EventTicketAssigned:
		log.Printf("[Publisher]   -> ticket=%s agent=%d actor=%d", event.TicketNumber, event.AgentID, event.ActorID)
	case EventChatMessageSent:
		log.Printf("[Publisher]   -> ticket=%s chat=%d message=%d sender=%d", event.TicketNumber, event.ChatID, event.MessageID, event.ActorID)
	}

	return messageID, nil
}
