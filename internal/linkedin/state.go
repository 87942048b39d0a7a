package linkedin

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// StateTTL is how long an issued OAuth state stays redeemable.
const StateTTL = 10 * time.Minute

type pendingState struct {
	userID  int64
	expires time.Time
}

// StateRegistry maps OAuth state values to the chat user that started the flow.
// A state can be redeemed once.
type StateRegistry struct {
	mu      sync.Mutex
	pending map[string]pendingState
	now     func() time.Time
}

// NewStateRegistry creates an empty registry.
func NewStateRegistry() *StateRegistry {
	return &StateRegistry{pending: make(map[string]pendingState), now: time.Now}
}

// Issue creates a fresh state for userID.
func (r *StateRegistry) Issue(userID int64) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.prune()
	state := uuid.NewString()
	r.pending[state] = pendingState{userID: userID, expires: r.now().Add(StateTTL)}
	return state
}

// Redeem consumes state and returns the user it was issued to.
func (r *StateRegistry) Redeem(state string) (int64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.pending[state]
	if !ok {
		return 0, false
	}
	delete(r.pending, state)
	if r.now().After(p.expires) {
		return 0, false
	}
	return p.userID, true
}

func (r *StateRegistry) prune() {
	now := r.now()
	for k, p := range r.pending {
		if now.After(p.expires) {
			delete(r.pending, k)
		}
	}
}
