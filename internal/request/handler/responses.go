package handler

import (
	"time"

	"golden/internal/request/models"
	"golden/internal/request/permission"
	audit "golden/pkg/platform/audit"
)

// RequestResponse is the JSON form of a request.
type RequestResponse struct {
	ID               string         `json:"id"`
	Status           string         `json:"status"`
	AssignedTo       string         `json:"assigned_to"`
	Origin           string         `json:"origin"`
	Profile          models.Profile `json:"profile"`
	SourceGoldenID   string         `json:"source_golden_id,omitempty"`
	SupersededBy     string         `json:"superseded_by,omitempty"`
	ComplianceStatus string         `json:"compliance_status,omitempty"`
	RejectReason     string         `json:"reject_reason,omitempty"`
	BlockReason      string         `json:"block_reason,omitempty"`
	CreatedBy        string         `json:"created_by,omitempty"`
	Version          int64          `json:"version"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

func FromRequest(r *models.Request) *RequestResponse {
	resp := &RequestResponse{
		ID:               r.ID.String(),
		Status:           string(r.Status),
		AssignedTo:       string(r.AssignedTo),
		Origin:           string(r.Origin),
		Profile:          r.Profile,
		ComplianceStatus: string(r.ComplianceStatus),
		RejectReason:     r.RejectReason,
		BlockReason:      r.BlockReason,
		CreatedBy:        string(r.CreatedBy),
		Version:          r.Version,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
	if r.SourceGoldenID != nil {
		resp.SourceGoldenID = r.SourceGoldenID.String()
	}
	if r.SupersededBy != nil {
		resp.SupersededBy = r.SupersededBy.String()
	}
	return resp
}

// WorklistResponse is the body of GET /worklist.
type WorklistResponse struct {
	Role     string             `json:"role"`
	Requests []*RequestResponse `json:"requests"`
}

func FromWorklist(role string, recs []*models.Request) *WorklistResponse {
	out := make([]*RequestResponse, len(recs))
	for i, r := range recs {
		out[i] = FromRequest(r)
	}
	return &WorklistResponse{Role: role, Requests: out}
}

// CapabilitiesResponse is the body of GET /requests/{id}/capabilities.
type CapabilitiesResponse struct {
	RequestID string `json:"request_id"`
	Role      string `json:"role"`
	permission.Capabilities
}

// HistoryResponse is the body of GET /requests/{id}/history.
type HistoryResponse struct {
	RequestID string        `json:"request_id"`
	Events    []audit.Event `json:"events"`
}

// DuplicateConflictResponse is the 409 body for a blocked submission. It
// names the Active record that holds the key.
type DuplicateConflictResponse struct {
	Error            string                   `json:"error"`
	ErrorDescription string                   `json:"error_description"`
	Conflict         models.ConflictingRecord `json:"conflict"`
}
