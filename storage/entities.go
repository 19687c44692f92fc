package storage

import (
	"encoding/json"
	"time"

	"github.com/i-Mobyl/cursor-todo-app/domain"
)

const (
	edmInt32 = "Edm.Int32"
	edmInt64 = "Edm.Int64"
)

// entityKeys are the table keys: PartitionKey is the owner, RowKey the task id.
type entityKeys struct {
	PartitionKey string `json:"PartitionKey"`
	RowKey       string `json:"RowKey"`
}

// taskEntity is a task row as stored in the tasks table.
type taskEntity struct {
	entityKeys
	Text          string `json:"Text"`
	Completed     bool   `json:"Completed"`
	DueDate       string `json:"DueDate,omitempty"`
	CreatedAt     int64  `json:"CreatedAt,string"`
	CreatedAtType string `json:"CreatedAt@odata.type"`
	Order         *int   `json:"Order,omitempty"`
	OrderType     string `json:"Order@odata.type,omitempty"`
}

// taskUpdate carries the columns merged by a partial update.
type taskUpdate struct {
	entityKeys
	Text      *string `json:"Text,omitempty"`
	Completed *bool   `json:"Completed,omitempty"`
	DueDate   *string `json:"DueDate,omitempty"`
	Order     *int    `json:"Order,omitempty"`
	OrderType *string `json:"Order@odata.type,omitempty"`
}

func newTaskEntity(t domain.Task) taskEntity {
	ent := taskEntity{
		entityKeys:    entityKeys{PartitionKey: t.Owner, RowKey: t.ID},
		Text:          t.Text,
		Completed:     t.Completed,
		CreatedAt:     t.CreatedAt.UnixNano(),
		CreatedAtType: edmInt64,
		Order:         t.Order,
	}
	if t.DueDate != nil {
		ent.DueDate = t.DueDate.String()
	}
	if t.Order != nil {
		ent.OrderType = edmInt32
	}
	return ent
}

func newTaskUpdate(owner, id string, p domain.Patch) taskUpdate {
	upd := taskUpdate{
		entityKeys: entityKeys{PartitionKey: owner, RowKey: id},
		Text:       p.Text,
		Completed:  p.Completed,
		Order:      p.Order,
	}
	switch {
	case p.ClearDueDate:
		empty := ""
		upd.DueDate = &empty
	case p.DueDate != nil:
		s := p.DueDate.String()
		upd.DueDate = &s
	}
	if p.Order != nil {
		t := edmInt32
		upd.OrderType = &t
	}
	return upd
}

// decodeTaskEntity converts a raw table row into a task. An empty or
// unparseable DueDate column reads as no due date.
func decodeTaskEntity(data []byte) (domain.Task, error) {
	var ent taskEntity
	if err := json.Unmarshal(data, &ent); err != nil {
		return domain.Task{}, err
	}
	t := domain.Task{
		ID:        ent.RowKey,
		Owner:     ent.PartitionKey,
		Text:      ent.Text,
		Completed: ent.Completed,
		Order:     ent.Order,
	}
	if ent.CreatedAt != 0 {
		t.CreatedAt = time.Unix(0, ent.CreatedAt).UTC()
	}
	if ent.DueDate != "" {
		if d, err := domain.ParseDate(ent.DueDate); err == nil {
			t.DueDate = &d
		}
	}
	return t, nil
}
