// Package service runs the request lifecycle: it loads a record, asks the
// lifecycle guards and permission evaluator whether the caller may act,
// arbitrates duplicates on submit, and persists the result in one store
// transaction together with its audit event.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"golden/internal/request/metrics"
	"golden/internal/request/models"
	"golden/internal/request/ports"
	"golden/internal/request/store/keylock"
	id "golden/pkg/domain"
	dErrors "golden/pkg/domain-errors"
	audit "golden/pkg/platform/audit"
	"golden/pkg/platform/sentinel"
	"golden/pkg/requestcontext"
)

const (
	tracerName           = "golden/request"
	defaultWorklistLimit = 200
)

// Service is the lifecycle engine and golden-edit coordinator.
type Service struct {
	repo          ports.Repository
	locker        ports.KeyLocker
	auditor       ports.AuditEmitter
	trail         ports.AuditTrail
	logger        *slog.Logger
	metrics       *metrics.Metrics
	tracer        trace.Tracer
	clock         func() time.Time
	newID         func() id.RequestID
	worklistLimit int
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithAuditEmitter makes every committed transition write an audit event in
// the same transaction. A failed write fails the transition.
func WithAuditEmitter(e ports.AuditEmitter) Option {
	return func(s *Service) {
		s.auditor = e
	}
}

func WithAuditTrail(t ports.AuditTrail) Option {
	return func(s *Service) {
		s.trail = t
	}
}

// WithKeyLocker replaces the in-process duplicate key locker, e.g. with a
// Redis locker shared by several replicas.
func WithKeyLocker(l ports.KeyLocker) Option {
	return func(s *Service) {
		if l != nil {
			s.locker = l
		}
	}
}

// WithClock fixes the time source. Without it the request time from the
// context is used.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		s.clock = clock
	}
}

func WithIDGenerator(gen func() id.RequestID) Option {
	return func(s *Service) {
		if gen != nil {
			s.newID = gen
		}
	}
}

func WithWorklistLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.worklistLimit = n
		}
	}
}

func New(repo ports.Repository, opts ...Option) *Service {
	s := &Service{
		repo:          repo,
		locker:        keylock.NewShardedLocker(),
		tracer:        otel.Tracer(tracerName),
		newID:         id.NewRequestID,
		worklistLimit: defaultWorklistLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) now(ctx context.Context) time.Time {
	if s.clock != nil {
		return s.clock()
	}
	return requestcontext.Now(ctx)
}

// load fetches a record through store and maps store facts to domain codes.
func (s *Service) load(ctx context.Context, store ports.RecordStore, requestID id.RequestID) (*models.Request, error) {
	r, err := store.FindByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "request not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load request")
	}
	return r, nil
}

// translate maps store sentinels that escape a transaction into domain codes.
// Errors that already carry a code pass through.
func translate(err error, msg string) error {
	if err == nil {
		return nil
	}
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, "request not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeInvalidTransition, "request was changed concurrently")
	case errors.Is(err, sentinel.ErrAlreadyUsed):
		return dErrors.Wrap(err, dErrors.CodeDuplicateConflict, "an active golden record already exists for this key")
	case errors.Is(err, sentinel.ErrLockHeld), errors.Is(err, context.DeadlineExceeded):
		return dErrors.Wrap(err, dErrors.CodeTimeout, msg)
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}

// pendingEvents buffers the audit events of one transaction so they are
// written only after every state change in it has succeeded.
type pendingEvents struct {
	events []audit.Event
}

type pendingEventsKey struct{}

// inTx runs fn in a store transaction and writes fn's audit events as the
// transaction's last step. A failed audit write rolls the transaction back.
func (s *Service) inTx(ctx context.Context, fn func(ctx context.Context, tx ports.RecordStore) error) error {
	return s.repo.RunInTx(ctx, func(ctx context.Context, tx ports.RecordStore) error {
		buf := &pendingEvents{}
		if err := fn(context.WithValue(ctx, pendingEventsKey{}, buf), tx); err != nil {
			return err
		}
		// The audit store may not share the transaction, so nothing is
		// written once the commit can no longer happen.
		if err := ctx.Err(); err != nil {
			return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted before audit")
		}
		for _, event := range buf.events {
			s.logAudit(ctx, event)
			if s.auditor == nil {
				continue
			}
			if err := s.auditor.Emit(ctx, event); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record audit event")
			}
		}
		return nil
	})
}

// record queues event on the enclosing inTx.
func (s *Service) record(ctx context.Context, event audit.Event) {
	buf, ok := ctx.Value(pendingEventsKey{}).(*pendingEvents)
	if !ok {
		s.recordBestEffort(ctx, event)
		return
	}
	buf.events = append(buf.events, s.enrich(ctx, event))
}

// recordBestEffort is for refusals, which have no transaction to join.
func (s *Service) recordBestEffort(ctx context.Context, event audit.Event) {
	event = s.enrich(ctx, event)
	s.logAudit(ctx, event)
	if s.auditor == nil {
		return
	}
	if err := s.auditor.Emit(ctx, event); err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "failed to record refusal audit event",
			"action", event.Action,
			"subject", event.Subject,
			"error", err,
		)
	}
}

func (s *Service) enrich(ctx context.Context, event audit.Event) audit.Event {
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now(ctx)
	}
	if event.ActorID == "" {
		event.ActorID = string(requestcontext.Actor(ctx))
	}
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}
	if event.Category == "" {
		event.Category = audit.AuditEvent(event.Action).Category()
	}
	return event
}

func (s *Service) logAudit(ctx context.Context, event audit.Event) {
	if s.logger == nil {
		return
	}
	args := []any{
		"event", event.Action,
		"log_type", "audit",
		"subject", event.Subject,
		"actor_role", event.ActorRole,
	}
	if event.ActorID != "" {
		args = append(args, "actor_id", event.ActorID)
	}
	if event.FromStatus != "" {
		args = append(args, "from_status", event.FromStatus, "to_status", event.ToStatus)
	}
	if event.Related != "" {
		args = append(args, "related", event.Related)
	}
	if event.RequestID != "" {
		args = append(args, "request_id", event.RequestID)
	}
	s.logger.InfoContext(ctx, event.Action, args...)
}

func (s *Service) startSpan(ctx context.Context, op string, requestID id.RequestID, role id.Role) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{attribute.String("actor.role", string(role))}
	if !requestID.IsNil() {
		attrs = append(attrs, attribute.String("request.id", requestID.String()))
	}
	return s.tracer.Start(ctx, "request."+op, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
	}
	span.End()
}

func (s *Service) observe(op string, err error, start time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.ObserveTransition(op, outcomeOf(err), start)
	if dErrors.HasCode(err, dErrors.CodeDuplicateConflict) {
		s.metrics.IncrementDuplicateBlock()
	}
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeApplied
	case dErrors.HasCode(err, dErrors.CodeForbidden):
		return metrics.OutcomeForbidden
	case dErrors.HasCode(err, dErrors.CodeInvalidTransition):
		return metrics.OutcomeInvalid
	case dErrors.HasCode(err, dErrors.CodeDuplicateConflict):
		return metrics.OutcomeDuplicate
	}
	return metrics.OutcomeFailed
}

// refusalEvents writes the security events for a refused action.
func (s *Service) refusalEvents(ctx context.Context, r *models.Request, action models.Action, role id.Role, err error) {
	if r == nil {
		return
	}
	var dup *models.DuplicateConflictError
	switch {
	case errors.As(err, &dup):
		s.recordBestEffort(ctx, audit.Event{
			Subject:    r.ID.String(),
			Action:     string(audit.EventSubmissionDuplicate),
			ActorRole:  string(role),
			FromStatus: string(r.Status),
			Related:    dup.Conflict.ID.String(),
			Reason:     string(action),
		})
	case dErrors.HasCode(err, dErrors.CodeForbidden):
		s.recordBestEffort(ctx, audit.Event{
			Subject:    r.ID.String(),
			Action:     string(audit.EventTransitionForbidden),
			ActorRole:  string(role),
			FromStatus: string(r.Status),
			Reason:     string(action),
		})
	}
}
