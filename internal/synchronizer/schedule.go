package synchronizer

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Schedule is the token returned by Start. It owns the poll loop.
type Schedule struct {
	s        *Synchronizer
	interval time.Duration
	cancel   context.CancelFunc
	initial  chan error
	done     chan struct{}
}

// Initial delivers the outcome of the first refresh exactly once, then
// closes. A failure with no earlier snapshot is reported as ErrNoData.
func (sc *Schedule) Initial() <-chan error {
	return sc.initial
}

// Done is closed when the poll loop exits.
func (sc *Schedule) Done() <-chan struct{} {
	return sc.done
}

// Stop stops the synchronizer if this schedule is still the running one.
func (sc *Schedule) Stop() {
	sc.s.mu.Lock()
	current := sc.s.schedule == sc
	sc.s.mu.Unlock()
	if current {
		sc.s.Stop()
		return
	}
	sc.cancel()
}

func (sc *Schedule) run(ctx context.Context) {
	defer close(sc.done)

	err := sc.s.Refresh(ctx, true)
	switch {
	case ctx.Err() != nil:
		sc.initial <- ErrStopped
	case err == nil:
		sc.initial <- nil
	case errors.Is(err, ErrStopped):
		sc.initial <- err
	case !sc.s.hasData():
		sc.initial <- fmt.Errorf("%w: %w", ErrNoData, err)
	default:
		sc.initial <- nil
	}
	close(sc.initial)

	ticker := time.NewTicker(sc.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// read failures are logged by Refresh; the next tick tries again
			err := sc.s.Refresh(ctx, false)
			if err != nil && (ctx.Err() != nil || errors.Is(err, ErrStopped)) {
				return
			}
		}
	}
}
