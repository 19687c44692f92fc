package reorder

import "github.com/i-Mobyl/cursor-todo-app/domain"

// MoveItem returns a copy of items with the element at from removed and
// reinserted at to. Elements in between shift by one position.
func MoveItem[T any](items []T, from, to int) []T {
	out := make([]T, 0, len(items))
	out = append(out, items...)
	if from == to {
		return out
	}
	moved := out[from]
	if from < to {
		copy(out[from:to], out[from+1:to+1])
	} else {
		copy(out[to+1:from+1], out[to:from])
	}
	out[to] = moved
	return out
}

// OrderAssignments maps every task id to its position in tasks.
func OrderAssignments(tasks []domain.Task) map[string]domain.Patch {
	changes := make(map[string]domain.Patch, len(tasks))
	for i, t := range tasks {
		changes[t.ID] = domain.OrderPatch(i)
	}
	return changes
}
