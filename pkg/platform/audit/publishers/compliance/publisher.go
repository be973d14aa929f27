// Package compliance provides a fail-closed audit emitter.
//
// Emit writes synchronously to the audit store; when the store is the
// PostgreSQL outbox and ctx carries a transaction, the event commits with the
// state change it describes. A failed write is returned and the calling
// operation must fail.
package compliance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	audit "golden/pkg/platform/audit"
)

// Publisher emits audit events with fail-closed semantics.
type Publisher struct {
	store   audit.Store
	logger  *slog.Logger
	metrics *Metrics
}

// Option configures the Publisher.
type Option func(*Publisher)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(p *Publisher) {
		p.metrics = m
	}
}

func New(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{
		store: store,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Emit synchronously writes event to the audit store.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	start := time.Now()

	if event.Subject == "" {
		return fmt.Errorf("audit event requires Subject")
	}
	if event.Action == "" {
		return fmt.Errorf("audit event requires Action")
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Category == "" {
		event.Category = audit.AuditEvent(event.Action).Category()
	}

	if err := p.store.Append(ctx, event); err != nil {
		if p.metrics != nil {
			p.metrics.IncPersistFailures()
		}
		if p.logger != nil {
			p.logger.ErrorContext(ctx, "CRITICAL: audit persistence failed",
				"action", event.Action,
				"subject", event.Subject,
				"error", err,
			)
		}
		return fmt.Errorf("audit persistence failed: %w", err)
	}

	if p.metrics != nil {
		p.metrics.ObservePersistDuration(time.Since(start).Seconds())
		p.metrics.IncEventsEmitted(event.Category)
	}
	return nil
}
