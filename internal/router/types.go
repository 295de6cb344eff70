package router

import (
	"encoding/json"
	"time"

	"github.com/tidwall/gjson"
)

// Reserved event names for synthetic connection notifications.
const (
	EventConnected    = "__connected"
	EventDisconnected = "__disconnected"
)

// Payload types that subscribers can match on directly, regardless of
// meta.action.
const (
	TypeStreamChunk = "STREAM_CHUNK"
	TypeComment     = "COMMENT"
)

// isBroadcastType reports whether t may be matched by type alone.
func isBroadcastType(t string) bool {
	return t == TypeStreamChunk || t == TypeComment
}

// Payload is the first element of an inbound frame, or a synthetic
// connection payload.
type Payload struct {
	Type    string          // payload.type, if present
	Action  string          // payload.meta.action, if present
	HasMeta bool            // false only for synthetic payloads
	Raw     json.RawMessage // the full payload object
}

// Get returns the value at a gjson path within the payload.
func (p Payload) Get(path string) gjson.Result {
	return gjson.GetBytes(p.Raw, path)
}

// Decode unmarshals the payload into v.
func (p Payload) Decode(v any) error {
	return json.Unmarshal(p.Raw, v)
}

// Connected returns the flag carried by a synthetic connection payload.
// ok is false for payloads that carry none.
func (p Payload) Connected() (connected, ok bool) {
	r := p.Get("connected")
	if !r.Exists() {
		return false, false
	}
	return r.Bool(), true
}

// Handler receives one payload.
type Handler func(Payload)

// Options tune a subscription.
type Options struct {
	// Debounce delays each invocation by this long. Deliveries are not
	// coalesced: every frame gets its own delayed call.
	Debounce time.Duration

	// Namespace prefixes the handler id.
	Namespace string
}

// Subscription is one registered interest.
type Subscription struct {
	ID        string
	Event     string
	Handler   Handler
	Debounce  time.Duration
	Namespace string

	seq uint64 // registration order
}
