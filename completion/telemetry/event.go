// Package telemetry records completion lifecycle events. Recording never
// blocks and never fails the caller.
package telemetry

import "time"

// Kind names a lifecycle event.
type Kind string

const (
	KindRequested       Kind = "requested"
	KindReceived        Kind = "received"
	KindStale           Kind = "stale"
	KindDisplayed       Kind = "displayed"
	KindAcceptRequested Kind = "accept_requested"
	KindAccepted        Kind = "accepted"
	KindRejected        Kind = "rejected"
	KindError           Kind = "error"
)

// Kinds lists every event kind.
var Kinds = []Kind{
	KindRequested, KindReceived, KindStale, KindDisplayed,
	KindAcceptRequested, KindAccepted, KindRejected, KindError,
}

// Event is one observation of the completion lifecycle.
type Event struct {
	ID         string // ULID, assigned by the Sink when empty
	Kind       Kind
	SessionID  string
	RequestID  uint64
	URI        string
	Strategy   string
	Language   string
	AcceptType string
	Chars      int
	Latency    time.Duration
	Error      string
	Time       time.Time
}

// Recorder accepts events fire-and-forget.
type Recorder interface {
	Record(Event)
}

// Nop discards every event.
type Nop struct{}

func (Nop) Record(Event) {}
