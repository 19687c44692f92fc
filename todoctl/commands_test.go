package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	log "github.com/sirupsen/logrus"

	"github.com/i-Mobyl/cursor-todo-app/api"
	"github.com/i-Mobyl/cursor-todo-app/domain"
	"github.com/i-Mobyl/cursor-todo-app/listview"
	"github.com/i-Mobyl/cursor-todo-app/memstore"
)

func run(t *testing.T, store *memstore.Store, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd(func(bool, *log.Logger) (backend, listview.Feed, error) { return store, store, nil })
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--owner", "alice"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func mustRun(t *testing.T, store *memstore.Store, args ...string) string {
	t.Helper()
	out, err := run(t, store, args...)
	if err != nil {
		t.Fatalf("todoctl %s: %v\n%s", strings.Join(args, " "), err, out)
	}
	return out
}

func displayed(t *testing.T, store *memstore.Store) []domain.Task {
	t.Helper()
	tasks, err := store.List(context.Background(), "alice")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	domain.SortForDisplay(tasks)
	return tasks
}

func TestAddListToggle(t *testing.T) {
	store := memstore.New()
	mustRun(t, store, "add", "buy", "milk", "--due", "2024-06-30")
	out := mustRun(t, store, "add", "call", "mum")
	if !strings.Contains(out, "buy milk") || !strings.Contains(out, "2024-06-30") || !strings.Contains(out, "0/2 done (0%)") {
		t.Fatalf("unexpected output:\n%s", out)
	}

	out = mustRun(t, store, "toggle", "1")
	if !strings.Contains(out, "1/2 done (50%)") {
		t.Fatalf("unexpected output after toggle:\n%s", out)
	}
	tasks := displayed(t, store)
	if !tasks[0].Completed || tasks[1].Completed {
		t.Fatalf("wrong task toggled: %+v", tasks)
	}
}

func TestEditDueDelete(t *testing.T) {
	store := memstore.New()
	mustRun(t, store, "add", "draft")
	id := displayed(t, store)[0].ID

	mustRun(t, store, "edit", id, "final", "text")
	mustRun(t, store, "due", "1", "2024-12-24")
	if got := displayed(t, store)[0]; got.Text != "final text" || got.DueDate == nil {
		t.Fatalf("edit/due not applied: %+v", got)
	}
	mustRun(t, store, "due", "1", "--clear")
	if got := displayed(t, store)[0]; got.DueDate != nil {
		t.Fatalf("due date not cleared: %+v", got)
	}
	if _, err := run(t, store, "due", "1"); err == nil {
		t.Fatalf("expected error without date or --clear")
	}
	mustRun(t, store, "delete", "1")
	if n := len(displayed(t, store)); n != 0 {
		t.Fatalf("expected empty list, got %d", n)
	}
}

func TestMoveCommitsOrder(t *testing.T) {
	store := memstore.New()
	for _, text := range []string{"A", "B", "C"} {
		mustRun(t, store, "add", text)
	}
	mustRun(t, store, "move", "3", "1")

	var got []string
	for i, task := range displayed(t, store) {
		got = append(got, task.Text)
		if task.Order == nil || *task.Order != i {
			t.Fatalf("task %s: expected order %d, got %v", task.Text, i, task.Order)
		}
	}
	if strings.Join(got, "") != "CAB" {
		t.Fatalf("unexpected order %v", got)
	}

	batches := store.Calls(memstore.OpBatch)
	if _, err := run(t, store, "move", "1", "9"); err == nil {
		t.Fatalf("expected out of range error")
	}
	if store.Calls(memstore.OpBatch) != batches {
		t.Fatalf("invalid move must not commit")
	}
}

func TestRenumberReportsCommitFailure(t *testing.T) {
	store := memstore.New()
	mustRun(t, store, "add", "A")
	store.FailOn(memstore.OpBatch, errors.New("transaction rejected"))
	_, err := run(t, store, "renumber")
	if err == nil || !strings.Contains(err.Error(), "order not saved") {
		t.Fatalf("expected commit failure, got %v", err)
	}
}

func TestOwnerRequired(t *testing.T) {
	t.Setenv("TODO_OWNER", "")
	cmd := newRootCmd(func(bool, *log.Logger) (backend, listview.Feed, error) {
		t.Fatalf("connect must not be called")
		return nil, nil, nil
	})
	cmd.SetArgs([]string{"list"})
	cmd.SetOut(&bytes.Buffer{})
	if err := cmd.Execute(); err == nil {
		t.Fatalf("expected missing owner error")
	}
}

func TestUnknownTaskReference(t *testing.T) {
	store := memstore.New()
	mustRun(t, store, "add", "A")
	for _, ref := range []string{"0", "2", "no-such-id"} {
		if _, err := run(t, store, "toggle", ref); !errors.Is(err, domain.ErrTaskNotFound) {
			t.Fatalf("toggle %s: expected ErrTaskNotFound, got %v", ref, err)
		}
	}
}

func TestTokenAcceptedByTestAuth(t *testing.T) {
	out := mustRun(t, memstore.New(), "token", "--secret", "s3cret")
	sess, err := api.NewTestAuth([]byte("s3cret")).SessionFromAuthHeader("Bearer " + strings.TrimSpace(out))
	if err != nil {
		t.Fatalf("token rejected: %v", err)
	}
	if sess.UserID != "alice" {
		t.Fatalf("session user = %q, want alice", sess.UserID)
	}
	if _, err := run(t, memstore.New(), "token", "--secret", ""); err == nil {
		t.Fatal("expected error without a secret")
	}
}
