package domain

import (
	"context"
	"encoding/json"
	"time"
)

// Clock provides timestamps for envelopes and status snapshots.
type Clock interface {
	Now() time.Time
	Timezone() string
	Snapshot() Timestamp
	Format(instant time.Time, timezone string) Timestamp
	Elapsed(start, end time.Time) Uptime
}

// Broadcaster delivers payloads to every live subscriber.
type Broadcaster interface {
	// Broadcast delivers locally and fans out to peer instances.
	Broadcast(ctx context.Context, payload json.RawMessage) (int, error)
	// Deliver only reaches subscribers connected to this instance.
	Deliver(ctx context.Context, payload json.RawMessage) (int, error)
}

// Fanout forwards a payload to peer instances.
type Fanout interface {
	Publish(ctx context.Context, payload json.RawMessage) error
}

// StatusReporter composes the current status snapshot.
type StatusReporter interface {
	Current() Status
}
