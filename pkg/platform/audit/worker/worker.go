package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	audit "golden/pkg/platform/audit"
)

// Outbox is the durable side of the relay.
type Outbox interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
	ClaimBatch(ctx context.Context, limit int) ([]audit.OutboxEntry, error)
	MarkPublished(ctx context.Context, entryID uuid.UUID, at time.Time) error
}

// Relay drains the audit outbox into a Publisher. Rows stay unpublished until
// the publisher accepts them, so delivery is at-least-once.
type Relay struct {
	outbox    Outbox
	publisher audit.Publisher
	interval  time.Duration
	batchSize int
	logger    *slog.Logger
}

func NewRelay(outbox Outbox, publisher audit.Publisher, interval time.Duration, batchSize int, logger *slog.Logger) *Relay {
	if interval <= 0 {
		interval = time.Second
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Relay{outbox: outbox, publisher: publisher, interval: interval, batchSize: batchSize, logger: logger}
}

func (w *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := w.Drain(ctx); err != nil {
				w.logger.WarnContext(ctx, "audit outbox relay pass failed", "error", err)
			}
		}
	}
}

// Drain publishes one batch and reports how many rows were delivered. It
// stops at the first publish failure and commits what was already sent.
func (w *Relay) Drain(ctx context.Context) (int, error) {
	delivered := 0
	var publishErr error
	err := w.outbox.RunInTx(ctx, func(txCtx context.Context) error {
		entries, err := w.outbox.ClaimBatch(txCtx, w.batchSize)
		if err != nil {
			return err
		}
		for _, entry := range entries {
			if err := w.publisher.Publish(txCtx, entry.Event); err != nil {
				publishErr = err
				return nil
			}
			if err := w.outbox.MarkPublished(txCtx, entry.ID, time.Now()); err != nil {
				return err
			}
			delivered++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return delivered, publishErr
}
