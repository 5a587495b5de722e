package swarm

import "context"

// Event is a one-shot, auto-reset signal: Signal sets it if it isn't
// already set, and Wait consumes (and therefore clears) exactly one
// pending signal. The swarm uses one per observable lifecycle moment —
// delta distributed, delta received, tx received — so tests and callers
// can wait on the next occurrence without polling shared state.
type Event struct {
	ch chan struct{}
}

// NewEvent constructs an unset Event.
func NewEvent() *Event {
	return &Event{ch: make(chan struct{}, 1)}
}

// Signal marks the event as set. Non-blocking: a Signal while already set
// is a no-op, matching "one-shot" semantics (callers that need to count
// signals should poll more often than they fire).
func (e *Event) Signal() {
	select {
	case e.ch <- struct{}{}:
	default:
	}
}

// Wait blocks until the event is signalled or ctx is done, consuming the
// signal on success.
func (e *Event) Wait(ctx context.Context) error {
	select {
	case <-e.ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
