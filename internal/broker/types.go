package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
)

// Message is a record as read from a topic. Value is left undecoded so each
// consumer picks its own payload type.
type Message struct {
	Topic   string
	Key     string
	Value   []byte
	Headers map[string]string
}

// Decode unmarshals the message value into v. Numbers inside untyped
// fields stay json.Number so integers keep their literal form.
func (m Message) Decode(v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(m.Value))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("failed to decode message from %s: %w", m.Topic, err)
	}
	return nil
}

type Producer interface {
	// Publish JSON-encodes value and writes it to topic under key.
	Publish(ctx context.Context, topic, key string, value interface{}) error
	Close() error
}

type Consumer interface {
	Consume(ctx context.Context, topic string, handler HandlerFunc) error
	Close() error
	SetServiceName(name string)
}

type HandlerFunc func(ctx context.Context, msg Message) error
