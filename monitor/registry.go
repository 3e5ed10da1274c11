package monitor

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/arloliu/go-ivscan/scan"
)

// StatusSource reports the status of a run. *scan.Controller implements it.
type StatusSource interface {
	Status() scan.Status
}

var _ StatusSource = (*scan.Controller)(nil)

type entry struct {
	src    StatusSource
	cancel context.CancelFunc
}

// Registry is a concurrent set of runs keyed by run id.
type Registry struct {
	runs *xsync.MapOf[string, *entry]
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{runs: xsync.NewMapOf[string, *entry]()}
}

// Register adds a run. cancel is called by Abort; it should cancel the
// context passed to the controller's Run.
func (r *Registry) Register(id string, src StatusSource, cancel context.CancelFunc) error {
	if src == nil || cancel == nil {
		return fmt.Errorf("monitor: status source and cancel func are required")
	}

	if _, loaded := r.runs.LoadOrStore(id, &entry{src: src, cancel: cancel}); loaded {
		return fmt.Errorf("%w: %s", ErrDuplicateRun, id)
	}

	return nil
}

// Remove forgets a run.
func (r *Registry) Remove(id string) {
	r.runs.Delete(id)
}

// Len returns the number of registered runs.
func (r *Registry) Len() int {
	return r.runs.Size()
}

// Active returns the number of registered runs not in a terminal state.
func (r *Registry) Active() int {
	n := 0
	r.runs.Range(func(_ string, e *entry) bool {
		if !e.src.Status().State.IsTerminal() {
			n++
		}

		return true
	})

	return n
}

// Status returns the status of one run.
func (r *Registry) Status(id string) (scan.Status, error) {
	e, ok := r.runs.Load(id)
	if !ok {
		return scan.Status{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}

	return e.src.Status(), nil
}

// Statuses returns the status of every run, oldest first.
func (r *Registry) Statuses() []scan.Status {
	out := make([]scan.Status, 0, r.runs.Size())
	r.runs.Range(func(_ string, e *entry) bool {
		out = append(out, e.src.Status())
		return true
	})

	slices.SortFunc(out, func(a, b scan.Status) int {
		if c := a.StartedAt.Compare(b.StartedAt); c != 0 {
			return c
		}

		return strings.Compare(a.RunID, b.RunID)
	})

	return out
}

// Abort cancels a registered run.
func (r *Registry) Abort(id string) error {
	e, ok := r.runs.Load(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if e.src.Status().State.IsTerminal() {
		return fmt.Errorf("%w: %s", ErrRunFinished, id)
	}
	e.cancel()

	return nil
}
