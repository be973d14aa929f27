package models

import (
	dErrors "golden/pkg/domain-errors"
)

// Status is a request's position in the approval pipeline.
type Status string

const (
	StatusNew        Status = "New"
	StatusPending    Status = "Pending"
	StatusApproved   Status = "Approved"
	StatusRejected   Status = "Rejected"
	StatusQuarantine Status = "Quarantine"
	StatusActive     Status = "Active"
	StatusBlocked    Status = "Blocked"
	// StatusSuperseded marks a former golden record replaced by a
	// compliance-approved golden edit. No action leaves it.
	StatusSuperseded Status = "Superseded"
)

var validStatuses = map[Status]bool{
	StatusNew:        true,
	StatusPending:    true,
	StatusApproved:   true,
	StatusRejected:   true,
	StatusQuarantine: true,
	StatusActive:     true,
	StatusBlocked:    true,
	StatusSuperseded: true,
}

// Statuses lists every status in pipeline order.
func Statuses() []Status {
	return []Status{
		StatusNew, StatusQuarantine, StatusPending, StatusApproved,
		StatusRejected, StatusActive, StatusBlocked, StatusSuperseded,
	}
}

func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid status")
	}
	return st, nil
}

func (s Status) IsValid() bool { return validStatuses[s] }

// IsTerminal reports whether no lifecycle action is defined from s.
func (s Status) IsTerminal() bool {
	return s == StatusActive || s == StatusBlocked || s == StatusSuperseded
}

func (s Status) String() string { return string(s) }

// Assignee is the queue currently responsible for a request.
type Assignee string

const (
	AssigneeDataEntry  Assignee = "data_entry"
	AssigneeReviewer   Assignee = "reviewer"
	AssigneeCompliance Assignee = "compliance"
	AssigneeUnassigned Assignee = "unassigned"
)

var validAssignees = map[Assignee]bool{
	AssigneeDataEntry:  true,
	AssigneeReviewer:   true,
	AssigneeCompliance: true,
	AssigneeUnassigned: true,
}

func Assignees() []Assignee {
	return []Assignee{AssigneeDataEntry, AssigneeReviewer, AssigneeCompliance, AssigneeUnassigned}
}

func ParseAssignee(s string) (Assignee, error) {
	a := Assignee(s)
	if !a.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid assignee")
	}
	return a, nil
}

func (a Assignee) IsValid() bool { return validAssignees[a] }

func (a Assignee) String() string { return string(a) }

// Origin records how a request entered the pipeline. It is carried unchanged
// through every transition.
type Origin string

const (
	OriginDataEntry  Origin = "dataEntry"
	OriginQuarantine Origin = "quarantine"
	OriginDuplicates Origin = "duplicates"
	OriginCompliance Origin = "compliance"
	OriginGoldenEdit Origin = "goldenEdit"
	OriginUnknown    Origin = "unknown"
)

var validOrigins = map[Origin]bool{
	OriginDataEntry:  true,
	OriginQuarantine: true,
	OriginDuplicates: true,
	OriginCompliance: true,
	OriginGoldenEdit: true,
	OriginUnknown:    true,
}

func Origins() []Origin {
	return []Origin{OriginDataEntry, OriginQuarantine, OriginDuplicates, OriginCompliance, OriginGoldenEdit, OriginUnknown}
}

func ParseOrigin(s string) (Origin, error) {
	o := Origin(s)
	if !o.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid origin")
	}
	return o, nil
}

func (o Origin) IsValid() bool { return validOrigins[o] }

// IsIngestible reports whether external ingestion may create a request with
// this origin. Data-entry drafts and golden edits have their own constructors.
func (o Origin) IsIngestible() bool {
	return o == OriginQuarantine || o == OriginDuplicates || o == OriginCompliance || o == OriginUnknown
}

func (o Origin) String() string { return string(o) }

// ComplianceStatus is set only once compliance has acted. The zero value
// means unset.
type ComplianceStatus string

const (
	ComplianceUnset   ComplianceStatus = ""
	ComplianceActive  ComplianceStatus = "Active"
	ComplianceBlocked ComplianceStatus = "Blocked"
)

func (c ComplianceStatus) IsSet() bool { return c != ComplianceUnset }

// Action is a lifecycle operation requested by a caller.
type Action string

const (
	ActionSubmit             Action = "submit"
	ActionCompleteQuarantine Action = "completeQuarantine"
	ActionApprove            Action = "approve"
	ActionReject             Action = "reject"
	ActionComplianceApprove  Action = "complianceApprove"
	ActionComplianceBlock    Action = "complianceBlock"
	ActionEditGolden         Action = "editGolden"
)

func Actions() []Action {
	return []Action{
		ActionSubmit, ActionCompleteQuarantine, ActionApprove, ActionReject,
		ActionComplianceApprove, ActionComplianceBlock, ActionEditGolden,
	}
}

func (a Action) String() string { return string(a) }

// allowedPairs is the closed set of (status, assignee) combinations a stored
// request may be in.
var allowedPairs = map[Status]map[Assignee]bool{
	StatusNew:        {AssigneeDataEntry: true, AssigneeUnassigned: true},
	StatusQuarantine: {AssigneeDataEntry: true, AssigneeUnassigned: true},
	StatusPending:    {AssigneeReviewer: true, AssigneeUnassigned: true},
	StatusApproved:   {AssigneeCompliance: true},
	StatusRejected:   {AssigneeDataEntry: true},
	StatusActive:     {AssigneeUnassigned: true},
	StatusBlocked:    {AssigneeUnassigned: true},
	StatusSuperseded: {AssigneeUnassigned: true},
}

// IsAllowedPair reports whether status and assignee may coexist.
func IsAllowedPair(s Status, a Assignee) bool {
	return allowedPairs[s][a]
}
