package events

// Package events defines the request lifecycle events the controller
// publishes over watermill. The panel subscribes through a router and turns
// them into UI updates; nothing in the engine depends on anyone listening.

import (
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/lithammer/shortuuid/v3"
	"github.com/rs/zerolog/log"
)

type EventType string

const (
	EventTypeStart     EventType = "start"
	EventTypeFinal     EventType = "final"
	EventTypeError     EventType = "error"
	EventTypeInterrupt EventType = "interrupt"
)

// EventMetadata identifies which request of which conversation an event
// belongs to.
type EventMetadata struct {
	ConversationID string `json:"conversation_id"`
	RequestID      string `json:"request_id"`
	CorrelationID  string `json:"correlation_id"`
}

type Event struct {
	Type     EventType     `json:"type"`
	Text     string        `json:"text,omitempty"`
	Error    string        `json:"error,omitempty"`
	Metadata EventMetadata `json:"meta"`
}

func NewStartEvent(meta EventMetadata) Event {
	return Event{Type: EventTypeStart, Metadata: meta}
}

func NewFinalEvent(meta EventMetadata, text string) Event {
	return Event{Type: EventTypeFinal, Text: text, Metadata: meta}
}

func NewErrorEvent(meta EventMetadata, errText string) Event {
	return Event{Type: EventTypeError, Error: errText, Metadata: meta}
}

func NewInterruptEvent(meta EventMetadata) Event {
	return Event{Type: EventTypeInterrupt, Metadata: meta}
}

func NewEventFromJSON(b []byte) (Event, error) {
	var e Event
	err := json.Unmarshal(b, &e)
	if err != nil {
		return Event{}, err
	}
	return e, nil
}

// NewCorrelationID returns a short id shared by all events of one request.
func NewCorrelationID() string {
	return shortuuid.New()
}

// Publisher publishes lifecycle events to a single topic.
type Publisher struct {
	publisher message.Publisher
	topic     string
}

func NewPublisher(publisher message.Publisher, topic string) *Publisher {
	return &Publisher{
		publisher: publisher,
		topic:     topic,
	}
}

// PublishBlind publishes and only logs on failure: a dead event bus must not
// fail the request lifecycle itself.
func (p *Publisher) PublishBlind(e Event) {
	if p == nil || p.publisher == nil {
		return
	}

	payload, err := json.Marshal(e)
	if err != nil {
		log.Error().Err(err).Str("type", string(e.Type)).Msg("could not serialize lifecycle event")
		return
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("correlation_id", e.Metadata.CorrelationID)
	if err := p.publisher.Publish(p.topic, msg); err != nil {
		log.Error().Err(err).Str("type", string(e.Type)).Msg("could not publish lifecycle event")
	}
}
