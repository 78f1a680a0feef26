package storage

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/google/uuid"

	"taskdesk-api/domain"
)

// TableStore provides access to the task and link tables.
type TableStore struct {
	taskTable *aztables.Client
	linkTable *aztables.Client
}

// New creates a TableStore instance from the given connection string.
func New(connStr, tasksTable, linksTable string) (*TableStore, error) {
	clientOptions := aztables.ClientOptions{
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
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &clientOptions)
	if err != nil {
		return nil, err
	}
	return &TableStore{
		taskTable: svc.NewClient(tasksTable),
		linkTable: svc.NewClient(linksTable),
	}, nil
}

type taskEntity struct {
	aztables.Entity
	Title         string  `json:"Title"`
	Description   *string `json:"Description"`
	State         string  `json:"State"`
	DeadlineAt    *string `json:"DeadlineAt"`
	AssigneeID    int64   `json:"AssigneeID"`
	ManagerID     int64   `json:"ManagerID"`
	ReviewComment *string `json:"ReviewComment"`
	Deleted       bool    `json:"Deleted"`
}

func (e *taskEntity) toTask() domain.Task {
	return domain.Task{
		ID:            e.RowKey,
		Title:         e.Title,
		Description:   e.Description,
		State:         domain.TaskState(e.State),
		DeadlineAt:    e.DeadlineAt,
		AssigneeID:    e.AssigneeID,
		ManagerID:     e.ManagerID,
		ReviewComment: e.ReviewComment,
		Deleted:       e.Deleted,
	}
}

func applyPayload(e *taskEntity, p domain.TaskPayload) {
	if p.Has(domain.FieldTitle) && p.Title != nil {
		e.Title = *p.Title
	}
	if p.Has(domain.FieldDescription) {
		e.Description = p.Description
	}
	if p.Has(domain.FieldState) && p.State != nil {
		e.State = string(*p.State)
	}
	if p.Has(domain.FieldDeadlineAt) {
		e.DeadlineAt = p.DeadlineAt
	}
	if p.Has(domain.FieldAssigneeID) {
		if p.AssigneeID != nil {
			e.AssigneeID = *p.AssigneeID
		} else {
			e.AssigneeID = 0
		}
	}
	if p.Has(domain.FieldManagerID) {
		if p.ManagerID != nil {
			e.ManagerID = *p.ManagerID
		} else {
			e.ManagerID = 0
		}
	}
	if p.Has(domain.FieldReviewComment) {
		e.ReviewComment = p.ReviewComment
	}
}

// InsertTask writes a new task row and returns the identifier the store
// assigned to it.
func (s *TableStore) InsertTask(ctx context.Context, p domain.TaskPayload) (string, error) {
	id := uuid.NewString()
	ent := taskEntity{
		Entity: aztables.Entity{PartitionKey: id, RowKey: id},
		State:  string(domain.StateUnassigned),
	}
	applyPayload(&ent, p)
	payload, err := json.Marshal(ent)
	if err != nil {
		return "", err
	}
	if _, err := s.taskTable.AddEntity(ctx, payload, nil); err != nil {
		return "", err
	}
	return id, nil
}

// UpdateTask applies a partial payload to the task row identified by id. The
// table service cannot clear properties through a merge, so the row is
// replaced with the payload applied on top of its current value.
func (s *TableStore) UpdateTask(ctx context.Context, id string, p domain.TaskPayload) error {
	resp, err := s.taskTable.GetEntity(ctx, id, id, nil)
	if err != nil {
		return err
	}
	var ent taskEntity
	if err := json.Unmarshal(resp.Value, &ent); err != nil {
		return err
	}
	applyPayload(&ent, p)
	payload, err := json.Marshal(ent)
	if err != nil {
		return err
	}
	et := azcore.ETagAny
	_, err = s.taskTable.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{IfMatch: &et, UpdateMode: aztables.UpdateModeReplace})
	return err
}

// GetTask retrieves a task row if present. A missing row yields (nil, nil).
func (s *TableStore) GetTask(ctx context.Context, id string) (*domain.Task, error) {
	resp, err := s.taskTable.GetEntity(ctx, id, id, nil)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	var ent taskEntity
	if err := json.Unmarshal(resp.Value, &ent); err != nil {
		return nil, err
	}
	task := ent.toTask()
	return &task, nil
}

// ListTasks retrieves all task rows.
func (s *TableStore) ListTasks(ctx context.Context) ([]domain.Task, error) {
	pager := s.taskTable.NewListEntitiesPager(nil)
	tasks := []domain.Task{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, raw := range resp.Entities {
			var ent taskEntity
			if err := json.Unmarshal(raw, &ent); err != nil {
				return nil, err
			}
			tasks = append(tasks, ent.toTask())
		}
	}
	return tasks, nil
}

// SetTaskDeleted marks a task row as deleted without removing it, so history
// and foreign references stay intact.
func (s *TableStore) SetTaskDeleted(ctx context.Context, id string) error {
	ent := struct {
		aztables.Entity
		Deleted bool `json:"Deleted"`
	}{
		Entity:  aztables.Entity{PartitionKey: id, RowKey: id},
		Deleted: true,
	}
	payload, err := json.Marshal(ent)
	if err != nil {
		return err
	}
	et := azcore.ETagAny
	_, err = s.taskTable.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{IfMatch: &et, UpdateMode: aztables.UpdateModeMerge})
	return err
}

type linkEntity struct {
	aztables.Entity
	URL         string  `json:"URL"`
	Description *string `json:"Description"`
	CreatedBy   int64   `json:"CreatedBy"`
}

func (e *linkEntity) toLink() domain.TaskLink {
	return domain.TaskLink{
		ID:          e.RowKey,
		TaskID:      e.PartitionKey,
		URL:         e.URL,
		Description: e.Description,
		CreatedBy:   e.CreatedBy,
	}
}

// partitionFilter builds an OData filter matching a single partition. Single
// quotes in the key are doubled per the OData string literal rules.
func partitionFilter(key string) string {
	return "PartitionKey eq '" + strings.ReplaceAll(key, "'", "''") + "'"
}

// ListLinks retrieves all links attached to the given task.
func (s *TableStore) ListLinks(ctx context.Context, taskID string) ([]domain.TaskLink, error) {
	filter := partitionFilter(taskID)
	pager := s.linkTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	links := []domain.TaskLink{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, raw := range resp.Entities {
			var ent linkEntity
			if err := json.Unmarshal(raw, &ent); err != nil {
				return nil, err
			}
			links = append(links, ent.toLink())
		}
	}
	return links, nil
}

// InsertLinks writes new link rows in a single transaction. Store-assigned
// identifiers are generated here; the rows all share the task's partition.
func (s *TableStore) InsertLinks(ctx context.Context, links []domain.TaskLink) error {
	if len(links) == 0 {
		return nil
	}
	actions := make([]aztables.TransactionAction, 0, len(links))
	for _, l := range links {
		id := l.ID
		if id == "" {
			id = uuid.NewString()
		}
		ent := linkEntity{
			Entity:      aztables.Entity{PartitionKey: l.TaskID, RowKey: id},
			URL:         l.URL,
			Description: l.Description,
			CreatedBy:   l.CreatedBy,
		}
		payload, err := json.Marshal(ent)
		if err != nil {
			return err
		}
		actions = append(actions, aztables.TransactionAction{ActionType: aztables.TransactionTypeAdd, Entity: payload})
	}
	_, err := s.linkTable.SubmitTransaction(ctx, actions, nil)
	return err
}

// UpdateLink replaces a stored link row with the given content.
func (s *TableStore) UpdateLink(ctx context.Context, link domain.TaskLink) error {
	ent := linkEntity{
		Entity:      aztables.Entity{PartitionKey: link.TaskID, RowKey: link.ID},
		URL:         link.URL,
		Description: link.Description,
		CreatedBy:   link.CreatedBy,
	}
	payload, err := json.Marshal(ent)
	if err != nil {
		return err
	}
	et := azcore.ETagAny
	_, err = s.linkTable.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{IfMatch: &et, UpdateMode: aztables.UpdateModeReplace})
	return err
}

// DeleteLinks removes the identified link rows in a single transaction.
func (s *TableStore) DeleteLinks(ctx context.Context, taskID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	actions := make([]aztables.TransactionAction, 0, len(ids))
	for _, id := range ids {
		ent := aztables.Entity{PartitionKey: taskID, RowKey: id}
		payload, err := json.Marshal(ent)
		if err != nil {
			return err
		}
		actions = append(actions, aztables.TransactionAction{ActionType: aztables.TransactionTypeDelete, Entity: payload})
	}
	_, err := s.linkTable.SubmitTransaction(ctx, actions, nil)
	return err
}

func isNotFound(err error) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == 404
}
