// Package permission maps a role and a record's state to the capabilities
// that role has on it. Evaluate is pure: it reads only its arguments.
package permission

import (
	"golden/internal/request/models"
	id "golden/pkg/domain"
)

// Capabilities are the display and gating flags for one role on one record.
type Capabilities struct {
	CanEdit             bool `json:"can_edit"`
	CanView             bool `json:"can_view"`
	CanApproveReject    bool `json:"can_approve_reject"`
	CanComplianceAction bool `json:"can_compliance_action"`
}

// Any reports whether at least one flag is set.
func (c Capabilities) Any() bool {
	return c.CanEdit || c.CanView || c.CanApproveReject || c.CanComplianceAction
}

// Input is the slice of record state the evaluator depends on.
type Input struct {
	Status           models.Status
	AssignedTo       models.Assignee
	Origin           models.Origin
	ComplianceStatus models.ComplianceStatus
}

// InputOf extracts the evaluator input from a record.
func InputOf(r *models.Request) Input {
	return Input{
		Status:           r.Status,
		AssignedTo:       r.AssignedTo,
		Origin:           r.Origin,
		ComplianceStatus: r.ComplianceStatus,
	}
}

// Evaluate computes each flag independently. Origin is accepted so callers
// pass the full state, but no current rule depends on it. A role outside the
// closed set gets no capabilities.
func Evaluate(role id.Role, in Input) Capabilities {
	switch role {
	case id.RoleDataEntry:
		edit := dataEntryCanEdit(in)
		return Capabilities{CanEdit: edit, CanView: !edit}
	case id.RoleReviewer:
		return Capabilities{
			CanView:          true,
			CanApproveReject: reviewerCanDecide(in),
		}
	case id.RoleCompliance:
		return Capabilities{
			CanView:             true,
			CanComplianceAction: complianceCanAct(in),
		}
	case id.RoleAdmin:
		return Capabilities{
			CanView:             true,
			CanEdit:             in.Status == models.StatusRejected || in.Status == models.StatusPending || in.Status == models.StatusQuarantine,
			CanApproveReject:    in.Status == models.StatusPending,
			CanComplianceAction: in.Status == models.StatusApproved && !in.ComplianceStatus.IsSet(),
		}
	default:
		return Capabilities{}
	}
}

// For is Evaluate on a record.
func For(role id.Role, r *models.Request) Capabilities {
	return Evaluate(role, InputOf(r))
}

func dataEntryCanEdit(in Input) bool {
	if in.Status != models.StatusRejected && in.Status != models.StatusQuarantine {
		return false
	}
	return in.Status == models.StatusQuarantine ||
		in.AssignedTo == models.AssigneeDataEntry ||
		in.AssignedTo == models.AssigneeUnassigned
}

func reviewerCanDecide(in Input) bool {
	if in.Status != models.StatusPending {
		return false
	}
	switch in.AssignedTo {
	case models.AssigneeReviewer, models.AssigneeDataEntry, models.AssigneeUnassigned:
		return true
	}
	return false
}

func complianceCanAct(in Input) bool {
	if in.Status != models.StatusApproved {
		return false
	}
	return in.AssignedTo == models.AssigneeCompliance ||
		in.AssignedTo == models.AssigneeReviewer ||
		!in.ComplianceStatus.IsSet()
}
