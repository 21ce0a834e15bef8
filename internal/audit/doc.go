// Package audit relays session lifecycle events to a caller-supplied sink.
//
// The [Dispatcher] buffers events and delivers them from one goroutine, so a
// slow sink never stalls a login or logout. With DropIfFull set, a full
// buffer discards the event and counts it; otherwise Emit waits for room.
//
// Events never carry passwords or raw tokens. Tokens appear only as
// fingerprints.
package audit
