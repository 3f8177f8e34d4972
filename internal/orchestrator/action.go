package orchestrator

import (
	"context"

	"github.com/ND68/TipJar/internal/domain/model"
)

// Listener receives every state an orchestrator enters, in order.
// Listeners run on the action's goroutine and must not block for long.
type Listener func(model.TxState)

// Action is the handle for one submitted write. Done is closed once the
// action reached a terminal state.
type Action struct {
	ID   string
	Kind model.ActionKind

	done  chan struct{}
	final model.TxState
}

func newAction(id string, kind model.ActionKind) *Action {
	return &Action{ID: id, Kind: kind, done: make(chan struct{})}
}

func (a *Action) Done() <-chan struct{} {
	return a.done
}

// Result returns the terminal state. It is only meaningful after Done is closed.
func (a *Action) Result() model.TxState {
	select {
	case <-a.done:
		return a.final
	default:
		return model.TxState{}
	}
}

// Wait blocks until the action finished or ctx is done. Giving up on the
// wait does not cancel the action.
func (a *Action) Wait(ctx context.Context) (model.TxState, error) {
	select {
	case <-a.done:
		return a.final, nil
	case <-ctx.Done():
		return model.TxState{}, ctx.Err()
	}
}

func (a *Action) finish(final model.TxState) {
	a.final = final
	close(a.done)
}
