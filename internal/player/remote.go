package player

import (
	"context"
	"sync"
	"time"
)

// Remote holds state pushed by a browser overlay. Position is extrapolated
// from the last report so the sync loop does not depend on the push rate.
type Remote struct {
	mu       sync.RWMutex
	state    State
	received time.Time
	now      func() time.Time
	maxAge   time.Duration
}

func NewRemote(maxAge time.Duration) *Remote {
	if maxAge <= 0 {
		maxAge = 10 * time.Second
	}
	return &Remote{now: time.Now, maxAge: maxAge}
}

// Update records a report. paused reports are stored with their position
// but are not extrapolated.
func (r *Remote) Update(st State, paused bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = st
	if paused {
		r.received = time.Time{}
	} else {
		r.received = r.now()
	}
}

func (r *Remote) State(ctx context.Context) (State, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	st := r.state
	if !st.Ready() {
		return State{}, ErrNotReady
	}
	if !r.received.IsZero() {
		elapsed := r.now().Sub(r.received)
		if elapsed > r.maxAge {
			return State{}, ErrNotReady
		}
		st.Position += elapsed.Seconds()
	}
	return st, nil
}
