package session

import (
	"context"
	"sync"
)

// captureArchiver records what the manager emits on completion and
// closes done once the full set arrived.
type captureArchiver struct {
	mu   sync.Mutex
	rec  *Record
	ups  []RatingUpdate
	done chan struct{}
	once sync.Once
}

func (a *captureArchiver) SaveResult(_ context.Context, rec *Record) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rec = rec
	a.signal()
	return nil
}

func (a *captureArchiver) UpdateRating(_ context.Context, up RatingUpdate) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ups = append(a.ups, up)
	a.signal()
	return nil
}

func (a *captureArchiver) signal() {
	if a.rec != nil && len(a.ups) == 2 {
		a.once.Do(func() { close(a.done) })
	}
}
