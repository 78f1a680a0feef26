package api

import (
	"context"

	"taskdesk-api/domain"
)

// Store is the persistence surface handlers talk to. Write operations carry
// the gateway's post-write verification; their errors keep the gateway's
// taxonomy (validation, store, not-found, integrity).
type Store interface {
	ListTasks(ctx context.Context) ([]domain.Task, error)
	GetTask(ctx context.Context, id string) (*domain.Task, error)
	InsertTask(ctx context.Context, p domain.TaskPayload) (*domain.Task, error)
	UpdateTask(ctx context.Context, id string, p domain.TaskPayload) (*domain.Task, error)
	DeleteTask(ctx context.Context, id string) error
	ListLinks(ctx context.Context, taskID string) ([]domain.TaskLink, error)
	SyncTaskLinks(ctx context.Context, taskID string, links []domain.TaskLink, userID int64) ([]domain.TaskLink, error)
}

// Authenticator is implemented by types able to establish the acting user
// from request headers.
type Authenticator interface {
	IdentityFromAuthHeader(string) (domain.Identity, error)
}

// Deduper prevents processing of duplicate requests.
type Deduper interface {
	// Add records the idempotency key and returns true if it was newly added.
	Add(ctx context.Context, userID, key string) (bool, error)
	// Remove deletes a previously added key, used when downstream processing fails.
	Remove(ctx context.Context, userID, key string) error
}

// Notifier hands a payload to the push delivery layer. Delivery is
// best-effort; the boolean only reports whether the handoff succeeded.
type Notifier interface {
	TrySend(payload domain.NotifyPayload) bool
}
