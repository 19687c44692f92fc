package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/i-Mobyl/cursor-todo-app/domain"
)

// MaxBatchSize is the largest entity-group transaction the table service accepts.
const MaxBatchSize = 100

type tableClient interface {
	NewListEntitiesPager(listOptions *aztables.ListEntitiesOptions) *runtime.Pager[aztables.ListEntitiesResponse]
	AddEntity(ctx context.Context, entity []byte, options *aztables.AddEntityOptions) (aztables.AddEntityResponse, error)
	UpdateEntity(ctx context.Context, entity []byte, options *aztables.UpdateEntityOptions) (aztables.UpdateEntityResponse, error)
	DeleteEntity(ctx context.Context, partitionKey, rowKey string, options *aztables.DeleteEntityOptions) (aztables.DeleteEntityResponse, error)
	SubmitTransaction(ctx context.Context, actions []aztables.TransactionAction, options *aztables.SubmitTransactionOptions) (aztables.TransactionResponse, error)
}

// Notifier announces task changes to live subscribers.
type Notifier interface {
	Notify(ctx context.Context, ch domain.Change) error
}

// TableStore keeps tasks in an Azure Storage table, one partition per owner.
type TableStore struct {
	table    tableClient
	notifier Notifier
	logger   *log.Logger
	now      func() time.Time
	newID    func() string
}

// New creates a TableStore for the named table from a connection string.
// notifier may be nil.
func New(connStr, tasksTable string, notifier Notifier, logger *log.Logger) (*TableStore, error) {
	opts := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &opts)
	if err != nil {
		return nil, err
	}
	return newTableStore(svc.NewClient(tasksTable), notifier, logger), nil
}

func newTableStore(table tableClient, notifier Notifier, logger *log.Logger) *TableStore {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &TableStore{
		table:    table,
		notifier: notifier,
		logger:   logger,
		now:      domain.NextTimestamp,
		newID:    uuid.NewString,
	}
}

func ownerFilter(owner string) string {
	return "PartitionKey eq '" + strings.ReplaceAll(owner, "'", "''") + "'"
}

// List returns all of owner's tasks, newest first.
func (s *TableStore) List(ctx context.Context, owner string) ([]domain.Task, error) {
	filter := ownerFilter(owner)
	pager := s.table.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	tasks := []domain.Task{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Entities {
			t, err := decodeTaskEntity(e)
			if err != nil {
				return nil, err
			}
			tasks = append(tasks, t)
		}
	}
	domain.SortNewestFirst(tasks)
	return tasks, nil
}

// Create inserts a new task, assigning its id and creation time.
func (s *TableStore) Create(ctx context.Context, owner string, nt domain.NewTask) (domain.Task, error) {
	t := domain.Task{
		ID:        s.newID(),
		Owner:     owner,
		Text:      nt.Text,
		CreatedAt: s.now(),
	}
	domain.Patch{DueDate: nt.DueDate, Order: nt.Order}.Apply(&t)
	payload, err := json.Marshal(newTaskEntity(t))
	if err != nil {
		return domain.Task{}, err
	}
	if _, err := s.table.AddEntity(ctx, payload, nil); err != nil {
		return domain.Task{}, err
	}
	s.notify(ctx, owner, domain.TaskCreated, t.ID)
	return t, nil
}

// Update merges p into an existing task. A missing task fails with
// domain.ErrTaskNotFound.
func (s *TableStore) Update(ctx context.Context, owner, id string, p domain.Patch) error {
	if p.IsEmpty() {
		return nil
	}
	payload, err := json.Marshal(newTaskUpdate(owner, id, p))
	if err != nil {
		return err
	}
	et := azcore.ETagAny
	_, err = s.table.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{IfMatch: &et, UpdateMode: aztables.UpdateModeMerge})
	if err != nil {
		return mapNotFound(err, id)
	}
	s.notify(ctx, owner, domain.TaskUpdated, id)
	return nil
}

// Delete removes a task. Deleting a task that no longer exists succeeds.
func (s *TableStore) Delete(ctx context.Context, owner, id string) error {
	et := azcore.ETagAny
	if _, err := s.table.DeleteEntity(ctx, owner, id, &aztables.DeleteEntityOptions{IfMatch: &et}); err != nil {
		if isStatus(err, http.StatusNotFound) {
			return nil
		}
		return err
	}
	s.notify(ctx, owner, domain.TaskDeleted, id)
	return nil
}

// BatchUpdate merges every patch in one entity-group transaction: all of
// them apply or none do.
func (s *TableStore) BatchUpdate(ctx context.Context, owner string, changes map[string]domain.Patch) error {
	if len(changes) == 0 {
		return nil
	}
	if len(changes) > MaxBatchSize {
		return fmt.Errorf("%w: %d updates, limit %d", domain.ErrBatchTooLarge, len(changes), MaxBatchSize)
	}
	ids := make([]string, 0, len(changes))
	for id := range changes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	et := azcore.ETagAny
	actions := make([]aztables.TransactionAction, 0, len(ids))
	for _, id := range ids {
		payload, err := json.Marshal(newTaskUpdate(owner, id, changes[id]))
		if err != nil {
			return err
		}
		actions = append(actions, aztables.TransactionAction{
			ActionType: aztables.TransactionTypeUpdateMerge,
			Entity:     payload,
			IfMatch:    &et,
		})
	}
	if _, err := s.table.SubmitTransaction(ctx, actions, nil); err != nil {
		return mapNotFound(err, "batch")
	}
	s.notify(ctx, owner, domain.TasksReordered, ids...)
	return nil
}

func (s *TableStore) notify(ctx context.Context, owner, kind string, ids ...string) {
	if s.notifier == nil {
		return
	}
	ch := domain.Change{Owner: owner, Type: kind, TaskIDs: ids, Time: s.now().UnixNano()}
	if err := s.notifier.Notify(ctx, ch); err != nil {
		s.logger.WithFields(log.Fields{"owner": owner, "type": kind}).WithError(err).Error("change notification failed")
	}
}

func isStatus(err error, status int) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == status
}

func mapNotFound(err error, id string) error {
	if isStatus(err, http.StatusNotFound) {
		return fmt.Errorf("%s: %w", id, domain.ErrTaskNotFound)
	}
	return err
}
