package lifecycle

import "github.com/teranos/ghostwrite/completion/accept"

// State is one of Idle, Requesting, Ready, Displaying or Accepting.
type State interface {
	Name() string
	state()
}

// Idle shows nothing and waits for a request.
type Idle struct{}

// Requesting waits for the provider to answer request ID.
type Requesting struct {
	ID  RequestID
	Ctx Context
}

// Ready holds a fresh item while the renderer shows it.
type Ready struct {
	Item *Item
	Ctx  Context
	ID   RequestID
}

// Displaying holds an item the user can see.
type Displaying struct {
	Item *Item
	Ctx  Context
	ID   RequestID
}

// Accepting commits part or all of Item to the document.
type Accepting struct {
	Item *Item
	Ctx  Context
	Type accept.Type
	ID   RequestID
}

func (Idle) Name() string       { return "idle" }
func (Requesting) Name() string { return "requesting" }
func (Ready) Name() string      { return "ready" }
func (Displaying) Name() string { return "displaying" }
func (Accepting) Name() string  { return "accepting" }

func (Idle) state()       {}
func (Requesting) state() {}
func (Ready) state()      {}
func (Displaying) state() {}
func (Accepting) state()  {}

// CurrentItem returns the item held by s, if any.
func CurrentItem(s State) *Item {
	switch s := s.(type) {
	case Ready:
		return s.Item
	case Displaying:
		return s.Item
	case Accepting:
		return s.Item
	default:
		return nil
	}
}

// CurrentID returns the request ID s belongs to, or 0 for Idle.
func CurrentID(s State) RequestID {
	switch s := s.(type) {
	case Requesting:
		return s.ID
	case Ready:
		return s.ID
	case Displaying:
		return s.ID
	case Accepting:
		return s.ID
	default:
		return 0
	}
}
