package service

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"

	"golden/internal/request/models"
	"golden/internal/request/permission"
	"golden/internal/request/ports"
	id "golden/pkg/domain"
	dErrors "golden/pkg/domain-errors"
	audit "golden/pkg/platform/audit"
	"golden/pkg/requestcontext"
)

// ingestRole is recorded as the actor role on events from external ingestion.
const ingestRole = "ingest"

// worklists names the statuses each role works on.
var worklists = map[id.Role][]models.Status{
	id.RoleDataEntry:  {models.StatusNew, models.StatusRejected, models.StatusQuarantine},
	id.RoleReviewer:   {models.StatusPending},
	id.RoleCompliance: {models.StatusApproved},
	id.RoleAdmin: {
		models.StatusNew, models.StatusQuarantine, models.StatusPending,
		models.StatusRejected, models.StatusApproved,
	},
}

// CreateDraft opens a New request for data entry. The profile may be
// incomplete; it is validated on submit.
func (s *Service) CreateDraft(ctx context.Context, profile models.Profile, role id.Role) (*models.Request, error) {
	start := time.Now()
	ctx, span := s.startSpan(ctx, "create", id.RequestID{}, role)

	var r *models.Request
	err := func() error {
		if role != id.RoleDataEntry {
			return dErrors.New(dErrors.CodeForbidden, "only data entry can create requests")
		}
		r = models.NewDraft(s.newID(), profile, requestcontext.Actor(ctx), s.now(ctx))
		return s.create(ctx, r, string(role), audit.EventRequestCreated)
	}()
	return s.finishCreate(r, err, "create", span, start)
}

// Ingest records a request arriving from an external process. It lands in
// Quarantine, unassigned, for data entry to complete.
func (s *Service) Ingest(ctx context.Context, profile models.Profile, origin models.Origin) (*models.Request, error) {
	start := time.Now()
	ctx, span := s.startSpan(ctx, "ingest", id.RequestID{}, ingestRole)

	var r *models.Request
	err := func() error {
		var err error
		r, err = models.NewIngested(s.newID(), profile, origin, s.now(ctx))
		if err != nil {
			return err
		}
		return s.create(ctx, r, ingestRole, audit.EventRequestIngested)
	}()
	return s.finishCreate(r, err, "ingest", span, start)
}

func (s *Service) create(ctx context.Context, r *models.Request, role string, event audit.AuditEvent) error {
	err := s.inTx(ctx, func(ctx context.Context, tx ports.RecordStore) error {
		if err := tx.Create(ctx, r); err != nil {
			return translate(err, "failed to create request")
		}
		s.record(ctx, audit.Event{
			Subject:   r.ID.String(),
			Action:    string(event),
			ActorRole: role,
			ToStatus:  string(r.Status),
			Reason:    string(r.Origin),
		})
		return nil
	})
	return translate(err, "failed to create request")
}

func (s *Service) finishCreate(r *models.Request, err error, op string, span trace.Span, start time.Time) (*models.Request, error) {
	s.observe(op, err, start)
	endSpan(span, err)
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.IncrementCreated(string(r.Origin))
	}
	return r, nil
}

// UpdateProfile replaces a request's field values. Allowed when the role can
// edit the record, or for data entry on its own New draft. Active and other
// terminal records only change through a golden edit.
func (s *Service) UpdateProfile(ctx context.Context, requestID id.RequestID, role id.Role, profile models.Profile) (*models.Request, error) {
	start := time.Now()
	ctx, span := s.startSpan(ctx, "updateProfile", requestID, role)

	var result *models.Request
	err := s.inTx(ctx, func(ctx context.Context, tx ports.RecordStore) error {
		r, err := s.load(ctx, tx, requestID)
		if err != nil {
			return err
		}
		if r.Status.IsTerminal() {
			return dErrors.New(dErrors.CodeInvalidTransition, "a "+string(r.Status)+" request cannot be edited")
		}
		canEdit := permission.For(role, r).CanEdit ||
			(r.Status == models.StatusNew && role == id.RoleDataEntry)
		if !canEdit {
			return dErrors.New(dErrors.CodeForbidden, "role "+string(role)+" cannot edit this request")
		}
		r.ApplyProfile(profile, s.now(ctx))
		if err := s.save(ctx, tx, r, r.Status, role, audit.EventProfileUpdated, "", ""); err != nil {
			return err
		}
		result = r
		return nil
	})
	err = translate(err, "failed to update request")
	s.observe("updateProfile", err, start)
	endSpan(span, err)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Get returns a request the role may see.
func (s *Service) Get(ctx context.Context, requestID id.RequestID, role id.Role) (*models.Request, error) {
	r, err := s.load(ctx, s.repo, requestID)
	if err != nil {
		return nil, err
	}
	if !permission.For(role, r).Any() {
		return nil, dErrors.New(dErrors.CodeForbidden, "request is not visible to this role")
	}
	return r, nil
}

// Capabilities evaluates what role may do with a request right now.
func (s *Service) Capabilities(ctx context.Context, requestID id.RequestID, role id.Role) (permission.Capabilities, error) {
	r, err := s.load(ctx, s.repo, requestID)
	if err != nil {
		return permission.Capabilities{}, err
	}
	return permission.For(role, r), nil
}

// Worklist returns the records waiting on role, oldest first.
func (s *Service) Worklist(ctx context.Context, role id.Role) ([]*models.Request, error) {
	statuses, ok := worklists[role]
	if !ok {
		return nil, dErrors.New(dErrors.CodeForbidden, "role has no worklist")
	}
	recs, err := s.repo.ListByStatus(ctx, statuses, s.worklistLimit)
	if err != nil {
		return nil, translate(err, "failed to list requests")
	}
	return recs, nil
}

// History returns the audit trail of a request the role may see.
func (s *Service) History(ctx context.Context, requestID id.RequestID, role id.Role) ([]audit.Event, error) {
	if _, err := s.Get(ctx, requestID, role); err != nil {
		return nil, err
	}
	if s.trail == nil {
		return []audit.Event{}, nil
	}
	events, err := s.trail.ListBySubject(ctx, requestID.String())
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load audit trail")
	}
	return events, nil
}
