package lifecycle

import "github.com/teranos/ghostwrite/completion/accept"

// Event drives a transition.
type Event interface {
	Name() string
	event()
}

// RequestCompletion asks for a new completion, superseding any other.
type RequestCompletion struct {
	ID  RequestID
	Ctx Context
}

// CompletionReceived delivers the provider's answer to request ID.
// A nil or blank Item means the provider had nothing to offer.
type CompletionReceived struct {
	Item *Item
	ID   RequestID
}

// DisplayCompleted reports that the renderer finished showing request ID.
type DisplayCompleted struct {
	ID RequestID
}

// AcceptRequested asks to commit the displayed item.
type AcceptRequested struct {
	Type accept.Type
}

// AcceptCompleted reports that the document edit for request ID succeeded.
type AcceptCompleted struct {
	ID RequestID
}

// Dismiss abandons whatever is pending or shown.
type Dismiss struct{}

// Error reports a failed fetch, render or edit for request ID.
type Error struct {
	ID  RequestID
	Err error
}

// Redisplay shows an item without fetching, under a fresh ID. It is used
// for the remainder of a partial accept.
type Redisplay struct {
	Item *Item
	Ctx  Context
	ID   RequestID
}

func (RequestCompletion) Name() string  { return "request_completion" }
func (CompletionReceived) Name() string { return "completion_received" }
func (DisplayCompleted) Name() string   { return "display_completed" }
func (AcceptRequested) Name() string    { return "accept_requested" }
func (AcceptCompleted) Name() string    { return "accept_completed" }
func (Dismiss) Name() string            { return "dismiss" }
func (Error) Name() string              { return "error" }
func (Redisplay) Name() string          { return "redisplay" }

func (RequestCompletion) event()  {}
func (CompletionReceived) event() {}
func (DisplayCompleted) event()   {}
func (AcceptRequested) event()    {}
func (AcceptCompleted) event()    {}
func (Dismiss) event()            {}
func (Error) event()              {}
func (Redisplay) event()          {}
