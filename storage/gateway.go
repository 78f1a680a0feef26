package storage

import (
	"context"

	"taskdesk-api/domain"
)

// RecordStore is the low-level surface of the external record store. The
// store is the sole source of truth and assigns record identity on insert.
type RecordStore interface {
	InsertTask(ctx context.Context, p domain.TaskPayload) (string, error)
	UpdateTask(ctx context.Context, id string, p domain.TaskPayload) error
	GetTask(ctx context.Context, id string) (*domain.Task, error)
	ListTasks(ctx context.Context) ([]domain.Task, error)
	SetTaskDeleted(ctx context.Context, id string) error
	ListLinks(ctx context.Context, taskID string) ([]domain.TaskLink, error)
	InsertLinks(ctx context.Context, links []domain.TaskLink) error
	UpdateLink(ctx context.Context, link domain.TaskLink) error
	DeleteLinks(ctx context.Context, taskID string, ids []string) error
}

// Gateway validates outbound task payloads, writes them through the record
// store and cross-checks the written row against the intended payload. It is
// stateless; every store error propagates immediately with no retry and no
// partial commit.
type Gateway struct {
	store RecordStore
}

// NewGateway creates a Gateway over the given record store.
func NewGateway(store RecordStore) *Gateway {
	return &Gateway{store: store}
}

// UpdateTask validates the payload, issues the update and re-reads the row,
// failing with a named integrity error when the store diverged from the
// intended write.
func (g *Gateway) UpdateTask(ctx context.Context, id string, p domain.TaskPayload) (*domain.Task, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := g.store.UpdateTask(ctx, id, p); err != nil {
		return nil, err
	}
	row, err := g.store.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, &NotFoundError{Message: "Task not found after update"}
	}
	if p.Has(domain.FieldTitle) && p.Title != nil && row.Title != *p.Title {
		return nil, &IntegrityError{Field: "title"}
	}
	if p.Has(domain.FieldState) && p.State != nil && row.State != *p.State {
		return nil, &IntegrityError{Field: "state"}
	}
	if p.Has(domain.FieldDeadlineAt) && !strPtrEq(p.DeadlineAt, row.DeadlineAt) {
		return nil, &IntegrityError{Field: "deadline"}
	}
	return row, nil
}

// InsertTask validates the payload, inserts the row and verifies the title of
// the row read back under the store-assigned id. State and deadline are not
// re-verified on insert.
func (g *Gateway) InsertTask(ctx context.Context, p domain.TaskPayload) (*domain.Task, error) {
	if !p.Has(domain.FieldTitle) {
		return nil, &domain.ValidationError{Field: domain.FieldTitle, Message: "title must be a non-empty string"}
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	id, err := g.store.InsertTask(ctx, p)
	if err != nil {
		return nil, err
	}
	if id == "" {
		return nil, ErrInsertNoID
	}
	row, err := g.store.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, &NotFoundError{Message: "Task not found after insert"}
	}
	if p.Title != nil && row.Title != *p.Title {
		return nil, &IntegrityError{Field: "title"}
	}
	return row, nil
}

// SyncTaskLinks converges the task's stored link collection to the desired
// list. Identity for matching is the link's id, not its content: unchanged
// and edited links keep their identifiers, only links dropped from the
// desired set are deleted. New links are stamped with the creating user and
// owning task before the batch insert. The resulting set is re-read and
// verified against the desired set as order-independent URL+description
// pairs.
func (g *Gateway) SyncTaskLinks(ctx context.Context, taskID string, desired []domain.TaskLink, userID int64) ([]domain.TaskLink, error) {
	current, err := g.store.ListLinks(ctx, taskID)
	if err != nil {
		return nil, err
	}

	currentByID := make(map[string]domain.TaskLink, len(current))
	for _, l := range current {
		currentByID[l.ID] = l
	}
	desiredByID := make(map[string]domain.TaskLink, len(desired))
	inserts := make([]domain.TaskLink, 0, len(desired))
	for _, l := range desired {
		if l.ID == "" {
			l.TaskID = taskID
			l.CreatedBy = userID
			inserts = append(inserts, l)
			continue
		}
		desiredByID[l.ID] = l
	}

	var stale []string
	for _, l := range current {
		if _, keep := desiredByID[l.ID]; !keep {
			stale = append(stale, l.ID)
		}
	}
	if len(stale) > 0 {
		if err := g.store.DeleteLinks(ctx, taskID, stale); err != nil {
			return nil, err
		}
	}

	for id, want := range desiredByID {
		have, ok := currentByID[id]
		if !ok {
			continue
		}
		if have.URL == want.URL && strPtrEq(have.Description, want.Description) {
			continue
		}
		want.TaskID = taskID
		if want.CreatedBy == 0 {
			want.CreatedBy = have.CreatedBy
		}
		if err := g.store.UpdateLink(ctx, want); err != nil {
			return nil, err
		}
	}

	if len(inserts) > 0 {
		if err := g.store.InsertLinks(ctx, inserts); err != nil {
			return nil, err
		}
	}

	final, err := g.store.ListLinks(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if len(final) != len(desired) {
		return nil, &IntegrityError{Field: "link count"}
	}
	want := linkPairCounts(desired)
	for _, l := range final {
		k := linkPair(l)
		if want[k] == 0 {
			return nil, &IntegrityError{Field: "link content"}
		}
		want[k]--
	}
	return final, nil
}

// GetTask retrieves a task row; a missing row yields (nil, nil).
func (g *Gateway) GetTask(ctx context.Context, id string) (*domain.Task, error) {
	return g.store.GetTask(ctx, id)
}

// ListTasks retrieves every task row.
func (g *Gateway) ListTasks(ctx context.Context) ([]domain.Task, error) {
	return g.store.ListTasks(ctx)
}

// ListLinks retrieves the links attached to a task.
func (g *Gateway) ListLinks(ctx context.Context, taskID string) ([]domain.TaskLink, error) {
	return g.store.ListLinks(ctx, taskID)
}

// DeleteTask marks a task as deleted.
func (g *Gateway) DeleteTask(ctx context.Context, id string) error {
	return g.store.SetTaskDeleted(ctx, id)
}

type pairKey struct {
	url     string
	desc    string
	hasDesc bool
}

func linkPair(l domain.TaskLink) pairKey {
	k := pairKey{url: l.URL}
	if l.Description != nil {
		k.desc = *l.Description
		k.hasDesc = true
	}
	return k
}

func linkPairCounts(links []domain.TaskLink) map[pairKey]int {
	counts := make(map[pairKey]int, len(links))
	for _, l := range links {
		counts[linkPair(l)]++
	}
	return counts
}

func strPtrEq(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
