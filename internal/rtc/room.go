// Package rtc abstracts the real-time room transport. The room protocol
// itself (join, tracks, data channels) belongs to the external service; this
// package only adapts it to the narrow surface the session layer needs.
package rtc

import "context"

// Track identifies a subscribed remote track.
type Track struct {
	SID         string
	Kind        string // "audio" or "video"
	Participant string
}

// Handler receives room events. Handlers are registered as part of Connect
// so no event can be missed, and they may be invoked from transport
// goroutines. Nil fields are skipped.
type Handler struct {
	// OnDisconnected fires once when the server drops the connection. It is
	// not fired for a locally initiated Disconnect.
	OnDisconnected func()

	// OnDataReceived fires for every inbound data-channel payload.
	OnDataReceived func(payload []byte, topic string, sender string)

	// OnTrackSubscribed fires when a remote track becomes available.
	OnTrackSubscribed func(t Track)
}

// Room is a single connection to a real-time room.
//
// Connect must be called at most once per Room; create a new Room to
// reconnect. All methods are safe for concurrent use.
type Room interface {
	// Connect joins the room at url using token. The context bounds the
	// whole join sequence; on failure the room is left disconnected.
	Connect(ctx context.Context, url, token string, h Handler) error

	// PublishMicrophone publishes the local outbound audio track. The track
	// is a publish handle only; no samples are processed here.
	PublishMicrophone() error

	// PublishData sends one payload on the named data-channel topic.
	PublishData(payload []byte, topic string) error

	// Disconnect leaves the room and stops any published local tracks. It is
	// safe to call more than once and before Connect.
	Disconnect()
}
