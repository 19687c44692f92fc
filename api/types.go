package api

import (
	"github.com/i-Mobyl/cursor-todo-app/domain"
	"github.com/i-Mobyl/cursor-todo-app/listview"
)

type listResponse struct {
	Tasks       []domain.Task   `json:"tasks"`
	Progress    domain.Progress `json:"progress"`
	Sorting     bool            `json:"sorting"`
	Editing     string          `json:"editing,omitempty"`
	CommitError string          `json:"commitError,omitempty"`
}

func snapshot(v *listview.View) listResponse {
	tasks := v.Tasks()
	editing, _ := v.Editing()
	return listResponse{
		Tasks:    tasks,
		Progress: domain.ProgressOf(tasks),
		Sorting:  v.Sorting(),
		Editing:  editing,
	}
}

type createRequest struct {
	Text    string  `json:"text"`
	DueDate *string `json:"dueDate,omitempty"`
}

type patchRequest struct {
	Text         *string `json:"text,omitempty"`
	Completed    *bool   `json:"completed,omitempty"`
	DueDate      *string `json:"dueDate,omitempty"`
	ClearDueDate bool    `json:"clearDueDate,omitempty"`
}

type move struct {
	From int `json:"from"`
	To   int `json:"to"`
}

type movesRequest struct {
	Moves []move `json:"moves"`
}

type editRequest struct {
	Text string `json:"text"`
}
