// Package messaging defines the pub/sub seam between the outbox relay and
// its consumers.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
)

type Broker interface {
	Publisher
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	Close() error
}

type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) error
}

// Handler processes one raw message pulled off a channel
type Handler func(ctx context.Context, payload []byte) error

// Encode returns the wire form of message. Raw bytes and json.RawMessage
// pass through; anything else is marshalled as JSON.
func Encode(message interface{}) ([]byte, error) {
	switch m := message.(type) {
	case []byte:
		return m, nil
	case json.RawMessage:
		return m, nil
	}
	b, err := json.Marshal(message)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	return b, nil
}
