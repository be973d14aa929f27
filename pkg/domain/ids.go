// Package domain holds identifier and enumeration values shared across
// bounded contexts. Construct values via the Parse* functions at trust
// boundaries; direct casts bypass validation.
package domain

import (
	"github.com/google/uuid"

	dErrors "golden/pkg/domain-errors"
)

// RequestID identifies a golden-record request.
type RequestID uuid.UUID

// ActorID identifies the human actor behind a call. It is recorded for audit
// and never used for authorization, which is driven by Role alone.
type ActorID string

// NewRequestID returns a fresh random RequestID.
func NewRequestID() RequestID {
	return RequestID(uuid.New())
}

// ParseRequestID parses a RequestID from external input.
//
// Errors: returns CodeInvalidInput when the value is empty, malformed, or the
// nil UUID.
func ParseRequestID(s string) (RequestID, error) {
	u, err := parseUUID(s, "request")
	return RequestID(u), err
}

func (id RequestID) String() string {
	return uuid.UUID(id).String()
}

// MarshalText encodes the canonical UUID string form.
func (id RequestID) MarshalText() ([]byte, error) {
	return uuid.UUID(id).MarshalText()
}

func (id *RequestID) UnmarshalText(b []byte) error {
	var u uuid.UUID
	if err := u.UnmarshalText(b); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid request id")
	}
	*id = RequestID(u)
	return nil
}

// IsNil reports whether the id is the zero value.
func (id RequestID) IsNil() bool {
	return uuid.UUID(id) == uuid.Nil
}

func parseUUID(s, kind string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" id cannot be empty")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid "+kind+" id")
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" id cannot be nil")
	}
	return u, nil
}
