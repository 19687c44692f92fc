package domain

const (
	TaskCreated    = "task-created"
	TaskUpdated    = "task-updated"
	TaskDeleted    = "task-deleted"
	TasksReordered = "tasks-reordered"
)

// Change announces that an owner's task set was modified. Subscribers refetch the
// owner's list on receipt; the notice itself carries no task data.
type Change struct {
	Owner   string   `json:"owner"`
	Type    string   `json:"type"`
	TaskIDs []string `json:"taskIds,omitempty"`
	Time    int64    `json:"time"`
}
