package rooms

import "errors"

// ErrBackpressure is returned by Connection.TrySend when the adapter's
// outbound buffer is full; the caller (the room actor) decides the
// consequence (drop, mark slow, disconnect) rather than blocking.
var ErrBackpressure = errors.New("rooms: backpressure")

// Connection abstracts the transport endpoint for one member. It is
// owned by the adapter (internal/wsserver); the room never closes it
// directly, only asks it to close via Close.
type Connection interface {
	TrySend(payload []byte) error
	Close()
}
