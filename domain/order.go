package domain

import "sort"

// SortForDisplay orders tasks the way the list shows them: ascending Order when
// both tasks have one, otherwise ascending CreatedAt. Ties keep their relative
// position.
func SortForDisplay(tasks []Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		return displayLess(tasks[i], tasks[j])
	})
}

func displayLess(a, b Task) bool {
	if a.Order != nil && b.Order != nil && *a.Order != *b.Order {
		return *a.Order < *b.Order
	}
	if !a.CreatedAt.IsZero() && !b.CreatedAt.IsZero() {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return false
}

// SortNewestFirst applies the store's base ordering, CreatedAt descending.
func SortNewestFirst(tasks []Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
	})
}

// Progress summarises completion of a task list.
type Progress struct {
	Completed int `json:"completed"`
	Total     int `json:"total"`
	Percent   int `json:"percent"`
}

// ProgressOf counts completed tasks and rounds the completion percentage.
func ProgressOf(tasks []Task) Progress {
	p := Progress{Total: len(tasks)}
	for _, t := range tasks {
		if t.Completed {
			p.Completed++
		}
	}
	if p.Total > 0 {
		p.Percent = (p.Completed*200 + p.Total) / (2 * p.Total)
	}
	return p
}
