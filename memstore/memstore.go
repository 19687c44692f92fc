// Package memstore is an in-process task store with a live query, used for
// tests and local runs without cloud dependencies.
package memstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/i-Mobyl/cursor-todo-app/domain"
)

// Operation names accepted by FailOn and Calls.
const (
	OpList   = "list"
	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
	OpBatch  = "batch"
)

type subscriber struct {
	owner string
	fn    func([]domain.Task)
}

// Store keeps tasks in memory, keyed by owner then id.
type Store struct {
	now func() time.Time

	mu     sync.Mutex
	tasks  map[string]map[string]domain.Task
	calls  map[string]int
	fail   map[string]error
	subs   map[int]subscriber
	nextID int
}

// New returns an empty store.
func New() *Store {
	return &Store{
		now:   domain.NextTimestamp,
		tasks: map[string]map[string]domain.Task{},
		calls: map[string]int{},
		fail:  map[string]error{},
		subs:  map[int]subscriber{},
	}
}

// FailOn makes every subsequent call of op return err. A nil err clears it.
func (s *Store) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.fail, op)
		return
	}
	s.fail[op] = err
}

// Calls returns how many times op was invoked.
func (s *Store) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// Get returns a copy of a stored task.
func (s *Store) Get(owner, id string) (domain.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[owner][id]
	return t.Clone(), ok
}

func (s *Store) begin(op string) error {
	s.calls[op]++
	return s.fail[op]
}

// List returns owner's tasks, newest first.
func (s *Store) List(ctx context.Context, owner string) ([]domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(OpList); err != nil {
		return nil, err
	}
	return s.snapshotLocked(owner), nil
}

func (s *Store) snapshotLocked(owner string) []domain.Task {
	out := make([]domain.Task, 0, len(s.tasks[owner]))
	for _, t := range s.tasks[owner] {
		out = append(out, t.Clone())
	}
	domain.SortNewestFirst(out)
	return out
}

// Create stores a new task and assigns its id and creation time.
func (s *Store) Create(ctx context.Context, owner string, nt domain.NewTask) (domain.Task, error) {
	s.mu.Lock()
	if err := s.begin(OpCreate); err != nil {
		s.mu.Unlock()
		return domain.Task{}, err
	}
	t := domain.Task{
		ID:        uuid.NewString(),
		Owner:     owner,
		Text:      nt.Text,
		CreatedAt: s.now(),
	}
	domain.Patch{DueDate: nt.DueDate, Order: nt.Order}.Apply(&t)
	if s.tasks[owner] == nil {
		s.tasks[owner] = map[string]domain.Task{}
	}
	s.tasks[owner][t.ID] = t
	s.mu.Unlock()

	s.publish(owner)
	return t.Clone(), nil
}

// Update merges p into an existing task. It fails if the task is absent.
func (s *Store) Update(ctx context.Context, owner, id string, p domain.Patch) error {
	s.mu.Lock()
	if err := s.begin(OpUpdate); err != nil {
		s.mu.Unlock()
		return err
	}
	t, ok := s.tasks[owner][id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("update %s: %w", id, domain.ErrTaskNotFound)
	}
	p.Apply(&t)
	s.tasks[owner][id] = t
	s.mu.Unlock()

	s.publish(owner)
	return nil
}

// Delete removes a task. Deleting a missing task succeeds.
func (s *Store) Delete(ctx context.Context, owner, id string) error {
	s.mu.Lock()
	if err := s.begin(OpDelete); err != nil {
		s.mu.Unlock()
		return err
	}
	_, existed := s.tasks[owner][id]
	delete(s.tasks[owner], id)
	s.mu.Unlock()

	if existed {
		s.publish(owner)
	}
	return nil
}

// BatchUpdate applies all patches or none of them.
func (s *Store) BatchUpdate(ctx context.Context, owner string, changes map[string]domain.Patch) error {
	if len(changes) == 0 {
		return nil
	}
	s.mu.Lock()
	if err := s.begin(OpBatch); err != nil {
		s.mu.Unlock()
		return err
	}
	for id := range changes {
		if _, ok := s.tasks[owner][id]; !ok {
			s.mu.Unlock()
			return fmt.Errorf("batch update %s: %w", id, domain.ErrTaskNotFound)
		}
	}
	for id, p := range changes {
		t := s.tasks[owner][id]
		p.Apply(&t)
		s.tasks[owner][id] = t
	}
	s.mu.Unlock()

	s.publish(owner)
	return nil
}

// Subscribe delivers owner's current list to fn, then again after every
// change, until cancel is called.
func (s *Store) Subscribe(ctx context.Context, owner string, fn func([]domain.Task)) (func(), error) {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.subs[id] = subscriber{owner: owner, fn: fn}
	initial := s.snapshotLocked(owner)
	s.mu.Unlock()

	fn(initial)
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}, nil
}

func (s *Store) publish(owner string) {
	s.mu.Lock()
	var fns []func([]domain.Task)
	for _, sub := range s.subs {
		if sub.owner == owner {
			fns = append(fns, sub.fn)
		}
	}
	s.mu.Unlock()

	for _, fn := range fns {
		s.mu.Lock()
		snapshot := s.snapshotLocked(owner)
		s.mu.Unlock()
		fn(snapshot)
	}
}
