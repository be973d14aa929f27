// Package duplicate decides whether a submission collides with an existing
// golden record.
package duplicate

import (
	"context"
	"fmt"

	"golden/internal/request/models"
)

// Index looks up the Active record for a key. It returns (nil, nil) when
// there is none.
type Index interface {
	FindActiveByKey(ctx context.Context, key models.DuplicateKey) (*models.Request, error)
}

// Decide is the pure arbitration rule. existing may be nil. A record never
// conflicts with itself, and a golden edit never conflicts with its source.
func Decide(candidate, existing *models.Request) error {
	if existing == nil || existing.Status != models.StatusActive {
		return nil
	}
	if existing.ID == candidate.ID {
		return nil
	}
	if candidate.SourceGoldenID != nil && *candidate.SourceGoldenID == existing.ID {
		return nil
	}
	key := candidate.Key()
	if existing.Key() != key {
		return nil
	}
	return models.NewDuplicateConflictError(key, existing)
}

// Arbitrate runs one lookup for candidate's key and applies Decide. An
// incomplete key is not checked; callers validate the form first.
func Arbitrate(ctx context.Context, idx Index, candidate *models.Request) error {
	key := candidate.Key()
	if !key.IsComplete() {
		return nil
	}
	existing, err := idx.FindActiveByKey(ctx, key)
	if err != nil {
		return fmt.Errorf("duplicate lookup for %s: %w", key, err)
	}
	return Decide(candidate, existing)
}
