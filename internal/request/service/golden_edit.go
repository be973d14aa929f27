package service

import (
	"context"
	"time"

	"golden/internal/request/lifecycle"
	"golden/internal/request/models"
	"golden/internal/request/ports"
	id "golden/pkg/domain"
	dErrors "golden/pkg/domain-errors"
	audit "golden/pkg/platform/audit"
	"golden/pkg/requestcontext"
)

// StartGoldenEdit opens a shadow request proposing changes to an Active
// golden record. The shadow starts in New with a copy of the source profile;
// the source is not modified until the shadow is activated.
func (s *Service) StartGoldenEdit(ctx context.Context, sourceID id.RequestID, role id.Role) (*models.Request, error) {
	shadow, err := s.run(ctx, sourceID, role, models.ActionEditGolden, nil,
		func(ctx context.Context, tx ports.RecordStore, source *models.Request, _ lifecycle.Rule, now time.Time) (*models.Request, error) {
			shadow, err := models.NewGoldenEdit(s.newID(), source, requestcontext.Actor(ctx), now)
			if err != nil {
				return nil, err
			}
			if err := tx.Create(ctx, shadow); err != nil {
				return nil, translate(err, "failed to create golden edit")
			}
			s.record(ctx, audit.Event{
				Subject:   shadow.ID.String(),
				Action:    string(audit.EventGoldenEditStarted),
				ActorRole: string(role),
				ToStatus:  string(shadow.Status),
				Related:   source.ID.String(),
			})
			return shadow, nil
		})
	if err == nil && s.metrics != nil {
		s.metrics.IncrementCreated(string(models.OriginGoldenEdit))
	}
	return shadow, err
}

// ComplianceApprove makes an Approved request the golden record for its key.
//
// For a golden edit the source is superseded and the shadow activated in one
// transaction: either both changes commit or neither does. If the source is no
// longer Active the activation fails with CodeInvalidTransition. The duplicate
// key lock is held across the transaction, as for Submit.
func (s *Service) ComplianceApprove(ctx context.Context, requestID id.RequestID, role id.Role) (*models.Request, error) {
	var (
		swapped bool
		locked  models.DuplicateKey
	)
	r, err := s.run(ctx, requestID, role, models.ActionComplianceApprove, s.lockKey(requestID, &locked),
		func(ctx context.Context, tx ports.RecordStore, r *models.Request, rule lifecycle.Rule, now time.Time) (*models.Request, error) {
			if r.Key() != locked {
				return nil, dErrors.New(dErrors.CodeInvalidTransition, "request changed while the activation was waiting")
			}
			var source *models.Request
			if r.IsGoldenEdit() {
				var err error
				source, err = s.supersedeSource(ctx, tx, r, role, now)
				if err != nil {
					return nil, err
				}
			}

			if err := arbitrate(ctx, tx, r); err != nil {
				return nil, err
			}
			from := r.Status
			lifecycle.Apply(r, rule, "", now)
			related := ""
			if source != nil {
				related = source.ID.String()
			}
			if err := s.save(ctx, tx, r, from, role, audit.EventRequestActivated, "", related); err != nil {
				return nil, err
			}
			swapped = source != nil
			return r, nil
		})
	if err == nil && swapped && s.metrics != nil {
		s.metrics.IncrementGoldenSwap()
	}
	return r, err
}

// supersedeSource retires shadow's source record inside tx.
func (s *Service) supersedeSource(ctx context.Context, tx ports.RecordStore, shadow *models.Request, role id.Role, now time.Time) (*models.Request, error) {
	source, err := s.load(ctx, tx, *shadow.SourceGoldenID)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeInvariantViolation, "golden edit source is missing")
		}
		return nil, err
	}
	if err := source.CanSupersede(shadow); err != nil {
		return nil, err
	}
	source.ApplySupersede(shadow.ID, now)
	if err := s.save(ctx, tx, source, models.StatusActive, role, audit.EventGoldenSuperseded, "", shadow.ID.String()); err != nil {
		return nil, err
	}
	return source, nil
}
