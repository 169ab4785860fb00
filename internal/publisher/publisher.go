// Package publisher announces hunt results to downstream consumers.
package publisher

import "context"

// Publisher sends one JSON-encodable payload to a topic and returns the
// broker's message id.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}
