package core

// EventKind classifies events arriving on a verification channel.
type EventKind string

const (
	// EventConnected confirms the channel is established
	EventConnected EventKind = "connected"

	// EventHeartbeat is periodic liveness evidence, no payload semantics
	EventHeartbeat EventKind = "heartbeat"

	// EventVerification carries a provider verification-result payload
	EventVerification EventKind = "ndi-verification"

	// EventUnknown is any kind the channel does not recognize
	EventUnknown EventKind = "unknown"

	// EventError is a terminal channel failure
	EventError EventKind = "error"
)

// ChannelEvent is one event delivered on a verification channel.
// Payload is the raw JSON body; it is only meaningful for EventVerification.
type ChannelEvent struct {
	Kind     EventKind
	ThreadID string
	Payload  []byte
	Err      error // set only for EventError
}
