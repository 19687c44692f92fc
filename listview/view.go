// Package listview is the task list a signed-in user works with: it mirrors
// the owner's live query, forwards single-task actions to the store, and hands
// drag gestures to the reorder controller.
package listview

import (
	"context"
	"errors"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/i-Mobyl/cursor-todo-app/domain"
	"github.com/i-Mobyl/cursor-todo-app/reorder"
	"github.com/i-Mobyl/cursor-todo-app/session"
)

var (
	ErrTaskCompleted = errors.New("completed tasks can't be edited")
	ErrNotEditing    = errors.New("no task is being edited")
)

// Store is the set of per-document and batch writes the list issues.
type Store interface {
	Create(ctx context.Context, owner string, nt domain.NewTask) (domain.Task, error)
	Update(ctx context.Context, owner, id string, p domain.Patch) error
	Delete(ctx context.Context, owner, id string) error
	BatchUpdate(ctx context.Context, owner string, changes map[string]domain.Patch) error
}

// Feed is the live query: fn receives the owner's full task set on subscribe
// and after every change until the returned cancel func is called.
type Feed interface {
	Subscribe(ctx context.Context, owner string, fn func([]domain.Task)) (func(), error)
}

// View is one owner's task list.
type View struct {
	sess   session.Session
	store  Store
	ctrl   *reorder.Controller
	logger *log.Logger
	cancel func()

	mu        sync.Mutex
	editingID string
	watchers  map[chan struct{}]struct{}
	closed    bool
}

// Open subscribes to sess's live query and returns the view.
func Open(ctx context.Context, sess session.Session, store Store, feed Feed, logger *log.Logger) (*View, error) {
	if sess.UserID == "" {
		return nil, session.ErrNoSession
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	v := &View{
		sess:     sess,
		store:    store,
		ctrl:     reorder.NewController(store, sess.UserID, logger),
		logger:   logger,
		watchers: make(map[chan struct{}]struct{}),
	}
	cancel, err := feed.Subscribe(ctx, sess.UserID, v.receive)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", sess.UserID, err)
	}
	v.cancel = cancel
	return v, nil
}

// Close tears down the live subscription.
func (v *View) Close() {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.closed = true
	for ch := range v.watchers {
		close(ch)
	}
	v.watchers = nil
	v.mu.Unlock()
	if v.cancel != nil {
		v.cancel()
	}
}

// Owner returns the user the view belongs to.
func (v *View) Owner() string { return v.sess.UserID }

func (v *View) receive(tasks []domain.Task) {
	v.ctrl.Receive(tasks)
	v.notify()
}

// Tasks returns the displayed sequence.
func (v *View) Tasks() []domain.Task { return v.ctrl.Tasks() }

// Progress summarises completion over the displayed tasks.
func (v *View) Progress() domain.Progress { return domain.ProgressOf(v.ctrl.Tasks()) }

// Sorting reports whether sort mode is active.
func (v *View) Sorting() bool { return v.ctrl.State() == reorder.Reordering }

// Editing returns the id of the task in edit mode, if any.
func (v *View) Editing() (string, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.editingID, v.editingID != ""
}

func (v *View) find(id string) (domain.Task, error) {
	for _, t := range v.ctrl.Live() {
		if t.ID == id {
			return t, nil
		}
	}
	return domain.Task{}, fmt.Errorf("%s: %w", id, domain.ErrTaskNotFound)
}

func (v *View) storeFailed(op, id string, err error) error {
	v.logger.WithFields(log.Fields{"owner": v.sess.UserID, "task": id, "op": op}).WithError(err).Error("listview.store failed")
	return err
}

// Add creates a task at the end of the current list.
func (v *View) Add(ctx context.Context, text string, due *domain.Date) (domain.Task, error) {
	text, err := domain.ValidateText(text)
	if err != nil {
		return domain.Task{}, err
	}
	nt := domain.NewTask{Text: text, DueDate: due, Order: domain.IntPtr(len(v.ctrl.Live()))}
	task, err := v.store.Create(ctx, v.sess.UserID, nt)
	if err != nil {
		return domain.Task{}, v.storeFailed("create", "", err)
	}
	v.ctrl.Update(func(live []domain.Task) []domain.Task {
		for _, t := range live {
			if t.ID == task.ID {
				return live
			}
		}
		return append(live, task.Clone())
	})
	v.notify()
	return task, nil
}

func (v *View) patch(ctx context.Context, op, id string, p domain.Patch) error {
	if err := v.store.Update(ctx, v.sess.UserID, id, p); err != nil {
		return v.storeFailed(op, id, err)
	}
	v.ctrl.Update(func(live []domain.Task) []domain.Task {
		for i := range live {
			if live[i].ID == id {
				p.Apply(&live[i])
			}
		}
		return live
	})
	v.notify()
	return nil
}

// Toggle flips the completion flag of a task.
func (v *View) Toggle(ctx context.Context, id string) error {
	t, err := v.find(id)
	if err != nil {
		return err
	}
	done := !t.Completed
	return v.patch(ctx, "toggle", id, domain.Patch{Completed: &done})
}

// SetCompleted writes the completion flag. The live list decides whether the
// task exists, so it works in sort mode too.
func (v *View) SetCompleted(ctx context.Context, id string, completed bool) error {
	if _, err := v.find(id); err != nil {
		return err
	}
	return v.patch(ctx, "complete", id, domain.Patch{Completed: &completed})
}

// Edit replaces a task's text.
func (v *View) Edit(ctx context.Context, id, text string) error {
	text, err := domain.ValidateText(text)
	if err != nil {
		return err
	}
	if _, err := v.find(id); err != nil {
		return err
	}
	return v.patch(ctx, "edit", id, domain.Patch{Text: &text})
}

// StartEdit puts a task in edit mode. Completed tasks can't be edited.
func (v *View) StartEdit(id string) error {
	t, err := v.find(id)
	if err != nil {
		return err
	}
	if t.Completed {
		return ErrTaskCompleted
	}
	v.mu.Lock()
	v.editingID = id
	v.mu.Unlock()
	return nil
}

// SaveEdit writes text to the task in edit mode and leaves edit mode. Empty
// text leaves the task untouched.
func (v *View) SaveEdit(ctx context.Context, text string) error {
	v.mu.Lock()
	id := v.editingID
	v.editingID = ""
	v.mu.Unlock()
	if id == "" {
		return ErrNotEditing
	}
	return v.Edit(ctx, id, text)
}

// CancelEdit leaves edit mode without writing.
func (v *View) CancelEdit() {
	v.mu.Lock()
	v.editingID = ""
	v.mu.Unlock()
}

// SetDueDate sets a task's due date.
func (v *View) SetDueDate(ctx context.Context, id string, due domain.Date) error {
	if due.IsZero() {
		return domain.ErrInvalidDate
	}
	if _, err := v.find(id); err != nil {
		return err
	}
	return v.patch(ctx, "due-date", id, domain.Patch{DueDate: &due})
}

// ClearDueDate removes a task's due date.
func (v *View) ClearDueDate(ctx context.Context, id string) error {
	if _, err := v.find(id); err != nil {
		return err
	}
	return v.patch(ctx, "due-date", id, domain.Patch{ClearDueDate: true})
}

// Delete removes a task.
func (v *View) Delete(ctx context.Context, id string) error {
	if err := v.store.Delete(ctx, v.sess.UserID, id); err != nil {
		return v.storeFailed("delete", id, err)
	}
	v.mu.Lock()
	if v.editingID == id {
		v.editingID = ""
	}
	v.mu.Unlock()
	v.ctrl.Update(func(live []domain.Task) []domain.Task {
		out := live[:0]
		for _, t := range live {
			if t.ID != id {
				out = append(out, t)
			}
		}
		return out
	})
	v.notify()
	return nil
}

// BeginSort enters sort mode.
func (v *View) BeginSort() error {
	if err := v.ctrl.Begin(); err != nil {
		return err
	}
	v.CancelEdit()
	v.notify()
	return nil
}

// Move applies one drag gesture while sorting.
func (v *View) Move(from, to int) error {
	if err := v.ctrl.Move(from, to); err != nil {
		return err
	}
	v.notify()
	return nil
}

// DoneSorting commits the new order and leaves sort mode, whatever the commit
// outcome. A failed commit is returned as *reorder.CommitError. A committed
// order is applied to the live list until the subscription redelivers.
func (v *View) DoneSorting(ctx context.Context) error {
	var assigned map[string]domain.Patch
	if v.Sorting() {
		assigned = reorder.OrderAssignments(v.ctrl.Tasks())
	}
	err := v.ctrl.Done(ctx)
	if errors.Is(err, reorder.ErrNotReordering) || errors.Is(err, reorder.ErrCommitInProgress) {
		return err
	}
	if err == nil && len(assigned) > 0 {
		v.ctrl.Update(func(live []domain.Task) []domain.Task {
			for i := range live {
				if p, ok := assigned[live[i].ID]; ok {
					p.Apply(&live[i])
				}
			}
			return live
		})
	}
	v.notify()
	return err
}

// Watch returns a channel that receives a value whenever the displayed list
// may have changed. The channel is closed when the view closes.
func (v *View) Watch() chan struct{} {
	ch := make(chan struct{}, 1)
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		close(ch)
		return ch
	}
	v.watchers[ch] = struct{}{}
	return ch
}

// Watchers reports how many Watch channels are open.
func (v *View) Watchers() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.watchers)
}

// Unwatch stops notifications on ch.
func (v *View) Unwatch(ch chan struct{}) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.watchers, ch)
}

func (v *View) notify() {
	v.mu.Lock()
	defer v.mu.Unlock()
	for ch := range v.watchers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
