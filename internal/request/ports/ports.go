// Package ports declares the collaborators the request service depends on.
package ports

import (
	"context"

	"golden/internal/request/models"
	id "golden/pkg/domain"
	audit "golden/pkg/platform/audit"
)

//go:generate mockgen -source=ports.go -destination=mocks/mocks.go -package=mocks

// RecordStore is durable storage for requests. Stores return sentinel errors:
//   - FindByID: sentinel.ErrNotFound
//   - Create: sentinel.ErrAlreadyUsed when the id exists or an Active key collides
//   - Save: sentinel.ErrNotFound, sentinel.ErrConflict on a stale Version,
//     sentinel.ErrAlreadyUsed when another Active record holds the key
//
// Save increments r.Version on success. Inside RunInTx, FindByID holds the
// record against concurrent writers until the transaction ends.
type RecordStore interface {
	FindByID(ctx context.Context, requestID id.RequestID) (*models.Request, error)
	Create(ctx context.Context, r *models.Request) error
	Save(ctx context.Context, r *models.Request) error
	// FindActiveByKey returns (nil, nil) when no Active record holds key.
	FindActiveByKey(ctx context.Context, key models.DuplicateKey) (*models.Request, error)
	// ListByStatus returns records in any of statuses, oldest first.
	ListByStatus(ctx context.Context, statuses []models.Status, limit int) ([]*models.Request, error)
}

// Repository is a RecordStore with an all-or-nothing transaction boundary.
// fn's writes commit together or not at all; a cancelled or expired context
// yields CodeTimeout.
type Repository interface {
	RecordStore
	RunInTx(ctx context.Context, fn func(ctx context.Context, store RecordStore) error) error
}

// KeyLocker serializes submissions racing for the same duplicate key.
type KeyLocker interface {
	Lock(ctx context.Context, key models.DuplicateKey) (unlock func(), err error)
}

// AuditEmitter persists audit events. A failed Emit fails the operation.
type AuditEmitter interface {
	Emit(ctx context.Context, event audit.Event) error
}

// AuditTrail reads back the events recorded for a request.
type AuditTrail interface {
	ListBySubject(ctx context.Context, subject string) ([]audit.Event, error)
}
