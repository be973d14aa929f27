package models

import (
	"time"

	id "golden/pkg/domain"
	dErrors "golden/pkg/domain-errors"
)

// Request is the aggregate root for a golden-record request.
//
// Invariants:
//   - (Status, AssignedTo) is always an allowed pair (IsAllowedPair)
//   - SourceGoldenID is set iff Origin is goldenEdit, and never changes
//   - SupersededBy is set iff Status is Superseded
//   - ComplianceStatus is set only once compliance has acted
//   - RejectReason is non-empty only while Rejected; BlockReason only when Blocked
//   - Origin never changes after construction
//
// Mutation happens only through the Apply* methods, each of which assumes
// the lifecycle guard for that action has already passed.
type Request struct {
	ID               id.RequestID     `json:"id"`
	Status           Status           `json:"status"`
	AssignedTo       Assignee         `json:"assigned_to"`
	Origin           Origin           `json:"origin"`
	Profile          Profile          `json:"profile"`
	SourceGoldenID   *id.RequestID    `json:"source_golden_id,omitempty"`
	SupersededBy     *id.RequestID    `json:"superseded_by,omitempty"`
	ComplianceStatus ComplianceStatus `json:"compliance_status,omitempty"`
	RejectReason     string           `json:"reject_reason,omitempty"`
	BlockReason      string           `json:"block_reason,omitempty"`
	CreatedBy        id.ActorID       `json:"created_by,omitempty"`
	Version          int64            `json:"version"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// NewDraft creates a data-entry request in New.
func NewDraft(requestID id.RequestID, profile Profile, createdBy id.ActorID, now time.Time) *Request {
	return &Request{
		ID:         requestID,
		Status:     StatusNew,
		AssignedTo: AssigneeDataEntry,
		Origin:     OriginDataEntry,
		Profile:    profile.Normalized(),
		CreatedBy:  createdBy,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// NewIngested creates a Quarantine request from an external ingestion run.
func NewIngested(requestID id.RequestID, profile Profile, origin Origin, now time.Time) (*Request, error) {
	if !origin.IsIngestible() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "origin cannot be used for ingestion")
	}
	return &Request{
		ID:         requestID,
		Status:     StatusQuarantine,
		AssignedTo: AssigneeUnassigned,
		Origin:     origin,
		Profile:    profile.Normalized(),
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// NewGoldenEdit creates the shadow request proposing changes to source. The
// profile is a snapshot copy; later edits to either record do not leak.
func NewGoldenEdit(requestID id.RequestID, source *Request, createdBy id.ActorID, now time.Time) (*Request, error) {
	if source.Status != StatusActive {
		return nil, dErrors.New(dErrors.CodeInvalidTransition, "only an active golden record can be edited")
	}
	sourceID := source.ID
	return &Request{
		ID:             requestID,
		Status:         StatusNew,
		AssignedTo:     AssigneeDataEntry,
		Origin:         OriginGoldenEdit,
		Profile:        source.Profile,
		SourceGoldenID: &sourceID,
		CreatedBy:      createdBy,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

func (r *Request) IsGoldenEdit() bool {
	return r.Origin == OriginGoldenEdit && r.SourceGoldenID != nil
}

func (r *Request) IsActive() bool {
	return r.Status == StatusActive
}

// Key returns the request's duplicate key.
func (r *Request) Key() DuplicateKey {
	return r.Profile.Key()
}

// Clone returns a deep copy so stores never share mutable state with callers.
func (r *Request) Clone() *Request {
	if r == nil {
		return nil
	}
	c := *r
	if r.SourceGoldenID != nil {
		v := *r.SourceGoldenID
		c.SourceGoldenID = &v
	}
	if r.SupersededBy != nil {
		v := *r.SupersededBy
		c.SupersededBy = &v
	}
	return &c
}

// CheckInvariants reports the first violated structural invariant.
func (r *Request) CheckInvariants() error {
	switch {
	case !r.Status.IsValid():
		return dErrors.New(dErrors.CodeInvariantViolation, "unknown status")
	case !r.Origin.IsValid():
		return dErrors.New(dErrors.CodeInvariantViolation, "unknown origin")
	case !IsAllowedPair(r.Status, r.AssignedTo):
		return dErrors.New(dErrors.CodeInvariantViolation, "status and assignee do not form an allowed pair")
	case (r.Origin == OriginGoldenEdit) != (r.SourceGoldenID != nil):
		return dErrors.New(dErrors.CodeInvariantViolation, "source golden id must be set exactly for golden edits")
	case (r.Status == StatusSuperseded) != (r.SupersededBy != nil):
		return dErrors.New(dErrors.CodeInvariantViolation, "superseded-by must be set exactly for superseded records")
	case r.RejectReason != "" && r.Status != StatusRejected:
		return dErrors.New(dErrors.CodeInvariantViolation, "reject reason outside Rejected")
	case r.BlockReason != "" && r.Status != StatusBlocked:
		return dErrors.New(dErrors.CodeInvariantViolation, "block reason outside Blocked")
	}
	return nil
}

// ApplySubmit moves a New, Quarantine or Rejected request into review.
func (r *Request) ApplySubmit(now time.Time) {
	r.Status = StatusPending
	r.AssignedTo = AssigneeReviewer
	r.RejectReason = ""
	r.touch(now)
}

// ApplyApprove hands a reviewed request to compliance.
func (r *Request) ApplyApprove(now time.Time) {
	r.Status = StatusApproved
	r.AssignedTo = AssigneeCompliance
	r.touch(now)
}

// ApplyReject sends a request back to data entry.
func (r *Request) ApplyReject(reason string, now time.Time) {
	r.Status = StatusRejected
	r.AssignedTo = AssigneeDataEntry
	r.RejectReason = reason
	r.touch(now)
}

// ApplyComplianceApprove makes the request the golden record for its key.
func (r *Request) ApplyComplianceApprove(now time.Time) {
	r.Status = StatusActive
	r.AssignedTo = AssigneeUnassigned
	r.ComplianceStatus = ComplianceActive
	r.touch(now)
}

// ApplyComplianceBlock terminates the request as Blocked.
func (r *Request) ApplyComplianceBlock(reason string, now time.Time) {
	r.Status = StatusBlocked
	r.AssignedTo = AssigneeUnassigned
	r.ComplianceStatus = ComplianceBlocked
	r.BlockReason = reason
	r.touch(now)
}

// CanSupersede checks that this record can be replaced by shadow.
func (r *Request) CanSupersede(shadow *Request) error {
	if r.Status != StatusActive {
		return dErrors.New(dErrors.CodeInvalidTransition, "source golden record is no longer active")
	}
	if shadow.SourceGoldenID == nil || *shadow.SourceGoldenID != r.ID {
		return dErrors.New(dErrors.CodeInvariantViolation, "shadow does not reference this golden record")
	}
	return nil
}

// ApplySupersede retires this golden record in favour of shadowID.
func (r *Request) ApplySupersede(shadowID id.RequestID, now time.Time) {
	r.Status = StatusSuperseded
	r.AssignedTo = AssigneeUnassigned
	r.SupersededBy = &shadowID
	r.touch(now)
}

// ApplyProfile replaces the field values.
func (r *Request) ApplyProfile(profile Profile, now time.Time) {
	r.Profile = profile.Normalized()
	r.touch(now)
}

func (r *Request) touch(now time.Time) {
	r.UpdatedAt = now
}
