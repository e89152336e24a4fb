package queue

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event types for the event stream
const (
	EventTicketCreated       = "ticket_created"
	EventTicketStatusChanged = "ticket_status_changed"
	EventTicketAssigned      = "ticket_assigned"
	EventChatMessageSent     = "chat_message_sent"
)

// Stream names
const (
	StreamEvents = "stream:events"
)

// Consumer group name for event workers
const (
	ConsumerGroupEvents = "event_workers"
)

// Event represents an event published to the event stream.
// All ticket and chat events share this structure; fields not relevant to a
// given type stay zero and are omitted from the JSON payload.
type Event struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"` // Unix timestamp when event occurred

	// Common ticket context
	TicketID     int64  `json:"ticket_id,omitempty"`
	TicketNumber string `json:"ticket_number,omitempty"`
	CustomerID   int64  `json:"customer_id,omitempty"`
	CategoryID   int64  `json:"category_id,omitempty"`
	ActorID      int64  `json:"actor_id,omitempty"` // User who triggered the event

	// Status change (TicketStatusChanged)
	OldStatus string `json:"old_status,omitempty"`
	NewStatus string `json:"new_status,omitempty"`

	// Assignment (TicketAssigned)
	AgentID      int64  `json:"agent_id,omitempty"`
	OldAgentName string `json:"old_agent_name,omitempty"`
	NewAgentName string `json:"new_agent_name,omitempty"`

	// Chat message (ChatMessageSent)
	ChatID    int64  `json:"chat_id,omitempty"`
	MessageID int64  `json:"message_id,omitempty"`
	Preview   string `json:"preview,omitempty"` // Truncated message content for notification bodies
}

// NewTicketCreatedEvent creates an event for a freshly submitted ticket.
// Workers notify managers and category agents, and email the confirmation.
// The actor differs from the customer when staff create on their behalf.
func NewTicketCreatedEvent(ticketID int64, ticketNumber string, customerID, categoryID, actorID int64, preview string) Event {
	return Event{
		Type:         EventTicketCreated,
		Timestamp:    time.Now().Unix(),
		TicketID:     ticketID,
		TicketNumber: ticketNumber,
		CustomerID:   customerID,
		CategoryID:   categoryID,
		ActorID:      actorID,
		Preview:      preview,
	}
}

// NewTicketStatusChangedEvent creates an event for a ticket status transition.
func NewTicketStatusChangedEvent(ticketID int64, ticketNumber string, customerID, actorID int64, oldStatus, newStatus string) Event {
	return Event{
		Type:         EventTicketStatusChanged,
		Timestamp:    time.Now().Unix(),
		TicketID:     ticketID,
		TicketNumber: ticketNumber,
		CustomerID:   customerID,
		ActorID:      actorID,
		OldStatus:    oldStatus,
		NewStatus:    newStatus,
	}
}

// NewTicketAssignedEvent creates an event for an agent (re)assignment.
func NewTicketAssignedEvent(ticketID int64, ticketNumber string, customerID, agentID, actorID int64, oldAgentName, newAgentName string) Event {
	return Event{
		Type:         EventTicketAssigned,
		Timestamp:    time.Now().Unix(),
		TicketID:     ticketID,
		TicketNumber: ticketNumber,
		CustomerID:   customerID,
		AgentID:      agentID,
		ActorID:      actorID,
		OldAgentName: oldAgentName,
		NewAgentName: newAgentName,
	}
}

// NewChatMessageSentEvent creates an event for a stored chat message.
// Workers push-notify the offline participants.
func NewChatMessageSentEvent(ticketID int64, ticketNumber string, chatID, messageID, senderID int64, preview string) Event {
	return Event{
		Type:         EventChatMessageSent,
		Timestamp:    time.Now().Unix(),
		TicketID:     ticketID,
		TicketNumber: ticketNumber,
		ChatID:       chatID,
		MessageID:    messageID,
		ActorID:      senderID,
		Preview:      preview,
	}
}

// ToMap converts the event to a map for Redis XADD.
// Redis Streams store field-value pairs, so we serialize to JSON in a "data" field.
func (e Event) ToMap() (map[string]interface{}, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return map[string]interface{}{
		"type": e.Type,
		"data": string(data),
	}, nil
}

// ParseEvent parses an Event from Redis stream message values.
func ParseEvent(values map[string]interface{}) (Event, error) {
	data, ok := values["data"].(string)
	if !ok {
		return Event{}, fmt.Errorf("missing or invalid 'data' field")
	}

	var event Event
	if err := json.Unmarshal([]byte(data), &event); err != nil {
		return Event{}, fmt.Errorf("unmarshal event: %w", err)
	}
	return event, nil
}
