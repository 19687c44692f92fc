package domain

// Patch carries a partial task update. Nil fields are left untouched.
type Patch struct {
	Text      *string `json:"text,omitempty"`
	Completed *bool   `json:"completed,omitempty"`
	DueDate   *Date   `json:"dueDate,omitempty"`
	// ClearDueDate removes the due date; it wins over DueDate.
	ClearDueDate bool `json:"clearDueDate,omitempty"`
	Order        *int `json:"order,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p.Text == nil && p.Completed == nil && p.DueDate == nil && !p.ClearDueDate && p.Order == nil
}

// Apply merges the patch into t.
func (p Patch) Apply(t *Task) {
	if p.Text != nil {
		t.Text = *p.Text
	}
	if p.Completed != nil {
		t.Completed = *p.Completed
	}
	if p.ClearDueDate {
		t.DueDate = nil
	} else if p.DueDate != nil {
		d := *p.DueDate
		t.DueDate = &d
	}
	if p.Order != nil {
		o := *p.Order
		t.Order = &o
	}
}

// OrderPatch is the patch written for every task by a reorder commit.
func OrderPatch(order int) Patch {
	return Patch{Order: &order}
}
