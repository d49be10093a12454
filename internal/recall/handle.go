package recall

import (
	"context"
	"sync"
)

type State string

const (
	StateScheduled State = "scheduled"
	StateLocated   State = "located"
	StateNotFound  State = "not_found"
	StateRecalled  State = "recalled"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Handle tracks one scheduled recall.
type Handle struct {
	ID     string
	ChatID string

	cancel context.CancelFunc
	done   chan struct{}

	mu        sync.Mutex
	state     State
	messageID string
}

// Cancel stops the recall if it is still in one of its waits.
func (h *Handle) Cancel() {
	h.cancel()
}

func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the recall finishes or ctx ends, returning the final
// state.
func (h *Handle) Wait(ctx context.Context) (State, error) {
	select {
	case <-h.done:
		return h.State(), nil
	case <-ctx.Done():
		return h.State(), ctx.Err()
	}
}

func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// MessageID is the located platform message id, empty before lookup.
func (h *Handle) MessageID() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.messageID
}

func (h *Handle) located(messageID string) {
	h.mu.Lock()
	h.state = StateLocated
	h.messageID = messageID
	h.mu.Unlock()
}

func (h *Handle) finish(state State) {
	h.mu.Lock()
	h.state = state
	h.mu.Unlock()
	close(h.done)
}
