// Package resetblock lets independent services hold a pending system
// reset open just long enough to finish whatever they need to do first.
// Reset signals every registered Blocker, waits for each to acknowledge,
// and only then invokes the platform-specific reset hook — two separate
// phases so a blocker's acknowledgement ordering doesn't matter.
package resetblock

import (
	"context"

	"github.com/jangala-dev/ecfw-core/internal/ecerr"
	"github.com/jangala-dev/ecfw-core/internal/xlog"
	"github.com/jangala-dev/ecfw-core/registry"
)

const logTag = "resetblock"

// Blocker is one service's hold on a pending reset.
type Blocker struct {
	node registry.Node[*Blocker]

	id      string
	pending chan struct{}
	done    chan struct{}
}

// NewBlocker builds a Blocker identified by id, used only for logging.
func NewBlocker(id string) *Blocker {
	return &Blocker{id: id, pending: make(chan struct{}, 1), done: make(chan struct{}, 1)}
}

// WaitForReset blocks until a reset is requested, runs beforeReset (if
// non-nil), then acknowledges so System.Reset can proceed. Meant to run
// for the process lifetime, typically in its own goroutine; returns
// early without acknowledging if ctx is cancelled first.
func (b *Blocker) WaitForReset(ctx context.Context, beforeReset func(ctx context.Context)) {
	select {
	case <-ctx.Done():
		return
	case <-b.pending:
	}
	if beforeReset != nil {
		beforeReset(ctx)
	}
	b.done <- struct{}{}
}

// System holds the registered blockers and the platform reset hook.
type System struct {
	blockers registry.List[*Blocker]
	reset    func()
}

// NewSystem builds a System. reset is invoked once every registered
// Blocker has acknowledged — e.g. an NVIC system reset on target, or a
// process exit on a host build.
func NewSystem(reset func()) *System {
	return &System{reset: reset}
}

// Register adds b to the set System.Reset signals. Returns
// ecerr.NodeAlreadyInList on double registration.
func (s *System) Register(b *Blocker) error {
	return s.blockers.Register(&b.node, b)
}

// Reset signals every registered Blocker, waits (bounded by ctx) for
// each to acknowledge, then invokes the platform reset hook. A non-nil
// return means some blocker did not acknowledge before ctx expired; the
// reset hook is not invoked in that case.
func (s *System) Reset(ctx context.Context) error {
	var pending []*Blocker
	s.blockers.Each(func(_ uint64, b *Blocker) bool {
		pending = append(pending, b)
		return true
	})

	for _, b := range pending {
		select {
		case b.pending <- struct{}{}:
		default:
		}
	}

	for _, b := range pending {
		select {
		case <-b.done:
		case <-ctx.Done():
			return ecerr.Wrapf(logTag, ecerr.ContextTimeout, ctx.Err(), "blocker %q did not acknowledge reset", b.id)
		}
	}

	xlog.Debugf(logTag, "all %d blockers acknowledged, resetting", len(pending))
	s.reset()
	return nil
}
