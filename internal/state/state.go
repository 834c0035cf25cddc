// Package state holds the shared key/value store that the control loop and
// its external controller both touch: control flags, status, telemetry, the
// published frame and the command topic.
//
// Writes are field-level last-write-wins. There are no transactions; a value
// may be one tick stale.
package state

import "context"

// SharedState is the field-level store shared with external actors.
type SharedState interface {
	// Get returns the value at key and whether it was present.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set overwrites the value at key.
	Set(ctx context.Context, key, value string) error
	// HashSet merges fields into the hash at key; fields not named are kept.
	HashSet(ctx context.Context, key string, fields map[string]string) error
	// HashGetAll returns every field of the hash at key. A missing hash is
	// an empty map.
	HashGetAll(ctx context.Context, key string) (map[string]string, error)
	// Publish sends message to every current subscriber of topic.
	Publish(ctx context.Context, topic, message string) error
	// Subscribe starts receiving messages published to topic.
	Subscribe(ctx context.Context, topic string) (Subscription, error)
	Close() error
}

// Subscription delivers messages for one topic.
type Subscription interface {
	// Messages is closed when the subscription is closed.
	Messages() <-chan string
	Close() error
}

// subscriptionBuffer bounds how many commands can queue between two ticks.
const subscriptionBuffer = 256
