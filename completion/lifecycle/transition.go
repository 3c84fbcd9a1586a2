package lifecycle

// Transition returns the state that follows s on e, and whether it differs
// from s. It has no side effects. Every state handles every event; events a
// state does not list leave it unchanged.
func Transition(s State, e Event) (State, bool) {
	switch s := s.(type) {
	case Idle:
		switch e := e.(type) {
		case RequestCompletion:
			return Requesting{ID: e.ID, Ctx: e.Ctx}, true
		case Redisplay:
			if e.Item.Empty() {
				return s, false
			}
			return Ready{Item: e.Item, Ctx: e.Ctx, ID: e.ID}, true
		}

	case Requesting:
		switch e := e.(type) {
		case CompletionReceived:
			if e.ID != s.ID {
				return s, false
			}
			if e.Item.Empty() {
				return Idle{}, true
			}
			return Ready{Item: e.Item, Ctx: s.Ctx, ID: s.ID}, true
		case Error:
			if e.ID != s.ID {
				return s, false
			}
			return Idle{}, true
		case Dismiss:
			return Idle{}, true
		case RequestCompletion:
			return Requesting{ID: e.ID, Ctx: e.Ctx}, true
		}

	case Ready:
		switch e := e.(type) {
		case DisplayCompleted:
			if e.ID != s.ID {
				return s, false
			}
			return Displaying{Item: s.Item, Ctx: s.Ctx, ID: s.ID}, true
		case Error:
			if e.ID != s.ID {
				return s, false
			}
			return Idle{}, true
		case Dismiss:
			return Idle{}, true
		case RequestCompletion:
			return Requesting{ID: e.ID, Ctx: e.Ctx}, true
		}

	case Displaying:
		switch e := e.(type) {
		case AcceptRequested:
			return Accepting{Item: s.Item, Ctx: s.Ctx, Type: e.Type, ID: s.ID}, true
		case Dismiss:
			return Idle{}, true
		case RequestCompletion:
			return Requesting{ID: e.ID, Ctx: e.Ctx}, true
		}

	case Accepting:
		switch e := e.(type) {
		case AcceptCompleted:
			if e.ID != s.ID {
				return s, false
			}
			return Idle{}, true
		case Error:
			if e.ID != s.ID {
				return s, false
			}
			return Idle{}, true
		}
	}

	return s, false
}
