package domain

import (
	"encoding/json"
	"time"
)

// EnvelopeType discriminates the messages pushed to subscribers.
type EnvelopeType string

const (
	EnvelopeWelcome   EnvelopeType = "welcome"
	EnvelopeBroadcast EnvelopeType = "broadcast"
)

// WelcomeMessage is the greeting carried by every welcome envelope.
const WelcomeMessage = "Connected to WebSocket server"

// Keepalive tokens exchanged as plain text frames.
const (
	KeepalivePing = "ping"
	KeepalivePong = "pong"
)

// Timestamp is a point-in-time presentation of an instant.
// Error is only set when the requested timezone could not be resolved; the
// other fields then fall back to UTC.
type Timestamp struct {
	ISO      string `json:"iso"`
	Local    string `json:"local"`
	Compact  string `json:"compact"`
	Unix     int64  `json:"unix"`
	Timezone string `json:"timezone"`
	Error    string `json:"error,omitempty"`

	Instant time.Time `json:"-"`
}

// EnvelopeTimestamp is the subset of Timestamp embedded into envelopes.
type EnvelopeTimestamp struct {
	ISO      string `json:"iso"`
	Local    string `json:"local"`
	Timezone string `json:"timezone"`
}

// Envelope wraps a payload with its discriminator and timestamp.
type Envelope struct {
	Type      EnvelopeType      `json:"type"`
	Data      json.RawMessage   `json:"data"`
	Timestamp EnvelopeTimestamp `json:"timestamp"`
}

// Welcome is the payload of a welcome envelope.
type Welcome struct {
	Message  string `json:"message"`
	ClientID string `json:"clientId"`
}

// NewEnvelope builds an envelope for the given payload and timestamp.
func NewEnvelope(kind EnvelopeType, data json.RawMessage, ts Timestamp) Envelope {
	return Envelope{
		Type: kind,
		Data: data,
		Timestamp: EnvelopeTimestamp{
			ISO:      ts.ISO,
			Local:    ts.Local,
			Timezone: ts.Timezone,
		},
	}
}
