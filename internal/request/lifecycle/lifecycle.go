// Package lifecycle holds the request transition table and the guards that
// decide whether an action may run. It never touches storage.
package lifecycle

import (
	"slices"
	"strings"
	"time"

	"golden/internal/request/models"
	"golden/internal/request/permission"
	id "golden/pkg/domain"
	dErrors "golden/pkg/domain-errors"
)

// Rule is one row of the transition table.
type Rule struct {
	From   models.Status
	Action models.Action
	Actors []id.Role
	To     models.Status
	// NeedsForm marks rows whose guard includes a valid profile and a
	// duplicate arbitration pass.
	NeedsForm bool
}

func (r Rule) permits(role id.Role) bool {
	return slices.Contains(r.Actors, role)
}

var dataEntry = []id.Role{id.RoleDataEntry}

// table is the complete set of legal transitions. editGolden leaves the
// source in place; the shadow it creates starts in New.
var table = []Rule{
	{From: models.StatusNew, Action: models.ActionSubmit, Actors: dataEntry, To: models.StatusPending, NeedsForm: true},
	{From: models.StatusQuarantine, Action: models.ActionSubmit, Actors: dataEntry, To: models.StatusPending, NeedsForm: true},
	{From: models.StatusQuarantine, Action: models.ActionCompleteQuarantine, Actors: dataEntry, To: models.StatusPending, NeedsForm: true},
	{From: models.StatusRejected, Action: models.ActionSubmit, Actors: dataEntry, To: models.StatusPending, NeedsForm: true},
	{From: models.StatusPending, Action: models.ActionApprove, Actors: []id.Role{id.RoleReviewer}, To: models.StatusApproved},
	{From: models.StatusPending, Action: models.ActionReject, Actors: []id.Role{id.RoleReviewer}, To: models.StatusRejected},
	{From: models.StatusApproved, Action: models.ActionComplianceApprove, Actors: []id.Role{id.RoleCompliance}, To: models.StatusActive},
	{From: models.StatusApproved, Action: models.ActionComplianceBlock, Actors: []id.Role{id.RoleCompliance}, To: models.StatusBlocked},
	{From: models.StatusActive, Action: models.ActionEditGolden, Actors: []id.Role{id.RoleDataEntry, id.RoleAdmin}, To: models.StatusActive},
}

// Rules returns a copy of the transition table.
func Rules() []Rule {
	out := make([]Rule, len(table))
	copy(out, table)
	return out
}

// Lookup finds the rule for (from, action).
func Lookup(from models.Status, action models.Action) (Rule, bool) {
	for _, r := range table {
		if r.From == from && r.Action == action {
			return r, true
		}
	}
	return Rule{}, false
}

// Check decides whether role may run action on r. Status is checked before
// role so a caller racing a concurrent change sees InvalidTransition. Form
// validity and duplicate arbitration are the caller's job for NeedsForm rows.
func Check(r *models.Request, action models.Action, role id.Role) (Rule, error) {
	rule, ok := Lookup(r.Status, action)
	if !ok {
		return Rule{}, dErrors.New(dErrors.CodeInvalidTransition,
			string(action)+" is not allowed from "+string(r.Status))
	}
	if !rule.permits(role) {
		return Rule{}, dErrors.New(dErrors.CodeForbidden,
			"role "+string(role)+" cannot "+string(action)+" a "+string(r.Status)+" request")
	}

	switch action {
	case models.ActionApprove:
		if r.AssignedTo != models.AssigneeReviewer && r.AssignedTo != models.AssigneeUnassigned {
			return Rule{}, dErrors.New(dErrors.CodeForbidden, "request is not assigned to review")
		}
	case models.ActionSubmit:
		if r.Status == models.StatusRejected && !permission.For(role, r).CanEdit {
			return Rule{}, dErrors.New(dErrors.CodeForbidden, "rejected request is not editable by this actor")
		}
	}
	return rule, nil
}

// NormalizeReason trims a free-text reason. Blocking requires one; rejecting
// accepts an empty reason.
func NormalizeReason(action models.Action, reason string) (string, error) {
	reason = strings.TrimSpace(reason)
	if action == models.ActionComplianceBlock && reason == "" {
		return "", dErrors.New(dErrors.CodeValidation, "block reason is required")
	}
	if len(reason) > 2000 {
		return "", dErrors.New(dErrors.CodeValidation, "reason must be 2000 characters or less")
	}
	return reason, nil
}

// Apply performs the single-record side effects of a checked rule. The
// golden-edit supersede step is not part of this; the service coordinates it.
func Apply(r *models.Request, rule Rule, reason string, now time.Time) {
	switch rule.Action {
	case models.ActionSubmit, models.ActionCompleteQuarantine:
		r.ApplySubmit(now)
	case models.ActionApprove:
		r.ApplyApprove(now)
	case models.ActionReject:
		r.ApplyReject(reason, now)
	case models.ActionComplianceApprove:
		r.ApplyComplianceApprove(now)
	case models.ActionComplianceBlock:
		r.ApplyComplianceBlock(reason, now)
	}
}

// AvailableActions lists the actions role could attempt on r right now,
// ignoring form validity and duplicates.
func AvailableActions(r *models.Request, role id.Role) []models.Action {
	var out []models.Action
	for _, action := range models.Actions() {
		if _, err := Check(r, action, role); err == nil {
			out = append(out, action)
		}
	}
	return out
}
