package models

import (
	"fmt"

	id "golden/pkg/domain"
	dErrors "golden/pkg/domain-errors"
)

// ConflictingRecord identifies the Active record a submission collided with.
type ConflictingRecord struct {
	ID     id.RequestID `json:"id"`
	Name   string       `json:"name"`
	Status Status       `json:"status"`
}

// DuplicateConflictError is returned when a submission collides with an
// existing Active record. It carries CodeDuplicateConflict.
type DuplicateConflictError struct {
	Key      DuplicateKey
	Conflict ConflictingRecord
	err      error
}

func NewDuplicateConflictError(key DuplicateKey, existing *Request) *DuplicateConflictError {
	return &DuplicateConflictError{
		Key: key,
		Conflict: ConflictingRecord{
			ID:     existing.ID,
			Name:   existing.Profile.Name,
			Status: existing.Status,
		},
		err: dErrors.New(dErrors.CodeDuplicateConflict,
			fmt.Sprintf("an active golden record already exists for %s", key)),
	}
}

func (e *DuplicateConflictError) Error() string {
	return fmt.Sprintf("%v (conflicting record %s)", e.err, e.Conflict.ID)
}

func (e *DuplicateConflictError) Unwrap() error { return e.err }
