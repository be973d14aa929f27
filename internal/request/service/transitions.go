package service

import (
	"context"
	"errors"
	"time"

	"golden/internal/request/duplicate"
	"golden/internal/request/lifecycle"
	"golden/internal/request/models"
	"golden/internal/request/ports"
	id "golden/pkg/domain"
	dErrors "golden/pkg/domain-errors"
	audit "golden/pkg/platform/audit"
)

// step performs an action's work on a record that already passed
// lifecycle.Check. It returns the record the caller should see.
type step func(ctx context.Context, tx ports.RecordStore, r *models.Request, rule lifecycle.Rule, now time.Time) (*models.Request, error)

// acquireFunc takes any lock the action needs before its transaction opens.
type acquireFunc func(ctx context.Context) (unlock func(), err error)

// run loads the record inside a transaction, checks the action and applies
// do. Nothing is written unless every step succeeds.
func (s *Service) run(ctx context.Context, requestID id.RequestID, role id.Role, action models.Action, acquire acquireFunc, do step) (*models.Request, error) {
	start := time.Now()
	ctx, span := s.startSpan(ctx, string(action), requestID, role)

	var (
		result *models.Request
		seen   *models.Request
	)
	err := func() error {
		if acquire != nil {
			unlock, err := acquire(ctx)
			if err != nil {
				return err
			}
			defer unlock()
		}
		return s.inTx(ctx, func(ctx context.Context, tx ports.RecordStore) error {
			r, err := s.load(ctx, tx, requestID)
			if err != nil {
				return err
			}
			seen = r.Clone()
			rule, err := lifecycle.Check(r, action, role)
			if err != nil {
				return err
			}
			out, err := do(ctx, tx, r, rule, s.now(ctx))
			if err != nil {
				return err
			}
			result = out
			return nil
		})
	}()
	err = translate(err, "failed to "+string(action)+" request")
	err = s.describeConflict(ctx, seen, err)
	if err != nil {
		result = nil
		s.refusalEvents(ctx, seen, action, role, err)
	}
	s.observe(string(action), err, start)
	endSpan(span, err)
	return result, err
}

// save persists r and queues its transition event on the transaction.
func (s *Service) save(ctx context.Context, tx ports.RecordStore, r *models.Request, from models.Status, role id.Role, event audit.AuditEvent, reason, related string) error {
	if err := tx.Save(ctx, r); err != nil {
		return translate(err, "failed to save request")
	}
	s.record(ctx, audit.Event{
		Subject:    r.ID.String(),
		Action:     string(event),
		ActorRole:  string(role),
		FromStatus: string(from),
		ToStatus:   string(r.Status),
		Reason:     reason,
		Related:    related,
	})
	return nil
}

// arbitrate runs duplicate arbitration against the transaction's view.
func arbitrate(ctx context.Context, tx ports.RecordStore, r *models.Request) error {
	err := duplicate.Arbitrate(ctx, tx, r)
	if err == nil {
		return nil
	}
	var dup *models.DuplicateConflictError
	if errors.As(err, &dup) {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "duplicate lookup failed")
}

// Submit sends a New, Quarantine or Rejected request to review. The form must
// be valid and no other Active record may hold its duplicate key; a blocked
// submission leaves the record unchanged.
func (s *Service) Submit(ctx context.Context, requestID id.RequestID, role id.Role) (*models.Request, error) {
	return s.submit(ctx, requestID, role, models.ActionSubmit)
}

// CompleteQuarantine is Submit for a record in Quarantine.
func (s *Service) CompleteQuarantine(ctx context.Context, requestID id.RequestID, role id.Role) (*models.Request, error) {
	return s.submit(ctx, requestID, role, models.ActionCompleteQuarantine)
}

// lockKey reads the record's duplicate key ahead of the transaction and holds
// the key lock around it. The key is stored in *locked so the step can detect
// a change made while the caller was waiting.
func (s *Service) lockKey(requestID id.RequestID, locked *models.DuplicateKey) acquireFunc {
	return func(ctx context.Context) (func(), error) {
		pre, err := s.load(ctx, s.repo, requestID)
		if err != nil {
			return nil, err
		}
		*locked = pre.Key()
		if !locked.IsComplete() {
			return func() {}, nil
		}
		return s.locker.Lock(ctx, *locked)
	}
}

// describeConflict names the Active holder when a commit-time uniqueness
// check rejected r after arbitration had passed. The lookup runs after the
// rollback, so it sees the winner's committed row.
func (s *Service) describeConflict(ctx context.Context, r *models.Request, err error) error {
	if r == nil || !dErrors.HasCode(err, dErrors.CodeDuplicateConflict) {
		return err
	}
	var dup *models.DuplicateConflictError
	if errors.As(err, &dup) {
		return err
	}
	holder, lookupErr := s.repo.FindActiveByKey(ctx, r.Key())
	if lookupErr != nil || holder == nil || holder.ID == r.ID {
		if s.logger != nil {
			s.logger.WarnContext(ctx, "could not resolve duplicate key holder",
				"request_id", r.ID.String(),
				"key", r.Key().String(),
				"lookup_error", lookupErr,
			)
		}
		return err
	}
	return models.NewDuplicateConflictError(r.Key(), holder)
}

func (s *Service) submit(ctx context.Context, requestID id.RequestID, role id.Role, action models.Action) (*models.Request, error) {
	var locked models.DuplicateKey
	return s.run(ctx, requestID, role, action, s.lockKey(requestID, &locked),
		func(ctx context.Context, tx ports.RecordStore, r *models.Request, rule lifecycle.Rule, now time.Time) (*models.Request, error) {
			if err := r.Profile.Validate(); err != nil {
				return nil, err
			}
			if r.Key() != locked {
				return nil, dErrors.New(dErrors.CodeInvalidTransition, "request changed while the submission was waiting")
			}
			if err := arbitrate(ctx, tx, r); err != nil {
				return nil, err
			}
			from := r.Status
			lifecycle.Apply(r, rule, "", now)
			related := ""
			if r.SourceGoldenID != nil {
				related = r.SourceGoldenID.String()
			}
			if err := s.save(ctx, tx, r, from, role, audit.EventRequestSubmitted, "", related); err != nil {
				return nil, err
			}
			return r, nil
		})
}

// Approve hands a Pending request to compliance.
func (s *Service) Approve(ctx context.Context, requestID id.RequestID, role id.Role) (*models.Request, error) {
	return s.run(ctx, requestID, role, models.ActionApprove, nil,
		func(ctx context.Context, tx ports.RecordStore, r *models.Request, rule lifecycle.Rule, now time.Time) (*models.Request, error) {
			from := r.Status
			lifecycle.Apply(r, rule, "", now)
			if err := s.save(ctx, tx, r, from, role, audit.EventRequestApproved, "", ""); err != nil {
				return nil, err
			}
			return r, nil
		})
}

// Reject sends a Pending request back to data entry. reason is optional.
func (s *Service) Reject(ctx context.Context, requestID id.RequestID, role id.Role, reason string) (*models.Request, error) {
	return s.run(ctx, requestID, role, models.ActionReject, nil,
		func(ctx context.Context, tx ports.RecordStore, r *models.Request, rule lifecycle.Rule, now time.Time) (*models.Request, error) {
			reason, err := lifecycle.NormalizeReason(rule.Action, reason)
			if err != nil {
				return nil, err
			}
			from := r.Status
			lifecycle.Apply(r, rule, reason, now)
			if err := s.save(ctx, tx, r, from, role, audit.EventRequestRejected, reason, ""); err != nil {
				return nil, err
			}
			return r, nil
		})
}

// ComplianceBlock terminates an Approved request. A blocked golden edit
// leaves its source untouched.
func (s *Service) ComplianceBlock(ctx context.Context, requestID id.RequestID, role id.Role, reason string) (*models.Request, error) {
	return s.run(ctx, requestID, role, models.ActionComplianceBlock, nil,
		func(ctx context.Context, tx ports.RecordStore, r *models.Request, rule lifecycle.Rule, now time.Time) (*models.Request, error) {
			reason, err := lifecycle.NormalizeReason(rule.Action, reason)
			if err != nil {
				return nil, err
			}
			from := r.Status
			lifecycle.Apply(r, rule, reason, now)
			related := ""
			if r.SourceGoldenID != nil {
				related = r.SourceGoldenID.String()
			}
			if err := s.save(ctx, tx, r, from, role, audit.EventRequestBlocked, reason, related); err != nil {
				return nil, err
			}
			return r, nil
		})
}
