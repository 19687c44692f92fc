// Package reorder implements the sort mode of the task list: a frozen working
// copy that the user rearranges, committed to the store as one atomic batch.
package reorder

import (
	"context"
	"errors"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/i-Mobyl/cursor-todo-app/domain"
)

// State is the controller mode.
type State int

const (
	// Live mirrors the store's live query.
	Live State = iota
	// Reordering shows the working copy, decoupled from live updates.
	Reordering
)

func (s State) String() string {
	switch s {
	case Live:
		return "live"
	case Reordering:
		return "reordering"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var (
	ErrAlreadyReordering = errors.New("already reordering")
	ErrNotReordering     = errors.New("not reordering")
	ErrIndexOutOfRange   = errors.New("move index out of range")
	ErrCommitInProgress  = errors.New("order commit in progress")
)

// CommitError wraps a failed order commit. The controller is back in Live
// state when it is returned.
type CommitError struct {
	Tasks int
	Err   error
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("commit order of %d tasks: %v", e.Tasks, e.Err)
}

func (e *CommitError) Unwrap() error { return e.Err }

// Batcher is the single store operation the controller is allowed to call.
type Batcher interface {
	BatchUpdate(ctx context.Context, owner string, changes map[string]domain.Patch) error
}

// Controller holds the live list and, while reordering, the working copy.
// It is safe for concurrent use.
type Controller struct {
	store  Batcher
	owner  string
	logger *log.Logger

	mu         sync.Mutex
	state      State
	live       []domain.Task
	working    []domain.Task
	committing bool
}

// NewController creates a controller in Live state for owner's tasks.
func NewController(store Batcher, owner string, logger *log.Logger) *Controller {
	if store == nil {
		panic("reorder.NewController: store is nil")
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Controller{store: store, owner: owner, logger: logger}
}

// Receive records a live query delivery. It never touches the working copy.
func (c *Controller) Receive(tasks []domain.Task) {
	sorted := domain.CloneAll(tasks)
	domain.SortForDisplay(sorted)
	c.mu.Lock()
	c.live = sorted
	c.mu.Unlock()
}

// Update applies fn to the live list in place, then re-sorts it. It is used
// for optimistic local writes between deliveries.
func (c *Controller) Update(fn func([]domain.Task) []domain.Task) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.live = fn(c.live)
	domain.SortForDisplay(c.live)
}

// State returns the current mode.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Tasks returns the displayed sequence.
func (c *Controller) Tasks() []domain.Task {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Reordering {
		return domain.CloneAll(c.working)
	}
	return domain.CloneAll(c.live)
}

// Live returns the mirrored live list regardless of mode.
func (c *Controller) Live() []domain.Task {
	c.mu.Lock()
	defer c.mu.Unlock()
	return domain.CloneAll(c.live)
}

// Begin enters sort mode, snapshotting the current live list.
func (c *Controller) Begin() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.committing {
		return ErrCommitInProgress
	}
	if c.state == Reordering {
		return ErrAlreadyReordering
	}
	c.working = domain.CloneAll(c.live)
	c.state = Reordering
	c.logger.WithFields(log.Fields{"owner": c.owner, "tasks": len(c.working)}).Debug("reorder.begin")
	return nil
}

// Move applies one completed drag gesture to the working copy.
func (c *Controller) Move(from, to int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.committing {
		return ErrCommitInProgress
	}
	if c.state != Reordering {
		return ErrNotReordering
	}
	n := len(c.working)
	if from < 0 || from >= n || to < 0 || to >= n {
		return fmt.Errorf("%w: from=%d to=%d len=%d", ErrIndexOutOfRange, from, to, n)
	}
	if from == to {
		return nil
	}
	c.working = MoveItem(c.working, from, to)
	return nil
}

// Done commits the working copy's sequence as order 0..n-1 in one batch and
// returns to Live. The state changes even when the commit fails; the next
// live delivery is the source of truth either way.
func (c *Controller) Done(ctx context.Context) error {
	c.mu.Lock()
	if c.committing {
		c.mu.Unlock()
		return ErrCommitInProgress
	}
	if c.state != Reordering {
		c.mu.Unlock()
		return ErrNotReordering
	}
	working := c.working
	c.committing = true
	c.mu.Unlock()

	err := c.commit(ctx, working)

	c.mu.Lock()
	c.committing = false
	c.state = Live
	c.working = nil
	c.mu.Unlock()

	if err != nil {
		return &CommitError{Tasks: len(working), Err: err}
	}
	return nil
}

func (c *Controller) commit(ctx context.Context, working []domain.Task) error {
	if len(working) == 0 {
		return nil
	}
	ctx, span := otel.Tracer("reorder").Start(ctx, "reorder.commit")
	defer span.End()
	span.SetAttributes(attribute.Int("tasks.count", len(working)))

	fields := log.Fields{"owner": c.owner, "tasks": len(working)}
	if err := c.store.BatchUpdate(ctx, c.owner, OrderAssignments(working)); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.WithFields(fields).WithError(err).Error("reorder.commit failed")
		return err
	}
	c.logger.WithFields(fields).Info("reorder.commit")
	return nil
}
