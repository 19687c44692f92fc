package domain

import (
	"strings"
	"time"
)

// Task is a single to-do item owned by one user.
type Task struct {
	ID        string    `json:"id"`
	Owner     string    `json:"owner"`
	Text      string    `json:"text"`
	Completed bool      `json:"completed"`
	DueDate   *Date     `json:"dueDate,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	// Order is nil until the task has been given an explicit position.
	Order *int `json:"order,omitempty"`
}

// NewTask carries the initial field values of a task being created.
type NewTask struct {
	Text    string
	DueDate *Date
	Order   *int
}

// ValidateText trims s and rejects empty or whitespace-only text.
func ValidateText(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", ErrEmptyText
	}
	return s, nil
}

// Clone returns a deep copy of t.
func (t Task) Clone() Task {
	if t.DueDate != nil {
		d := *t.DueDate
		t.DueDate = &d
	}
	if t.Order != nil {
		o := *t.Order
		t.Order = &o
	}
	return t
}

// CloneAll copies a task list so callers can't alias internal state.
func CloneAll(tasks []Task) []Task {
	out := make([]Task, len(tasks))
	for i, t := range tasks {
		out[i] = t.Clone()
	}
	return out
}

// IntPtr is a small helper for optional integer fields.
func IntPtr(i int) *int { return &i }
