package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	audit "golden/pkg/platform/audit"
	txcontext "golden/pkg/platform/tx"
)

// Store implements audit.Store using the transactional outbox pattern.
// Append joins the caller's transaction when one is in the context, so an
// audit row commits or rolls back with the transition it describes. The
// outbox relay publishes rows to Kafka afterwards.
type Store struct {
	db *sql.DB
}

// New creates a new PostgreSQL audit store that writes to the outbox.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Append writes an audit event to the outbox table.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	if event.Category == "" {
		event.Category = audit.AuditEvent(event.Action).Category()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}

	query := `
		INSERT INTO audit_outbox (id, aggregate_id, event_type, category, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = txcontext.ExecerFrom(ctx, s.db).ExecContext(ctx, query,
		uuid.New(),
		event.Subject,
		event.Action,
		string(event.Category),
		payload,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}
	return nil
}

// ListBySubject returns a record's events oldest first.
func (s *Store) ListBySubject(ctx context.Context, subject string) ([]audit.Event, error) {
	query := `
		SELECT payload
		FROM audit_outbox
		WHERE aggregate_id = $1
		ORDER BY created_at, id
	`
	rows, err := s.db.QueryContext(ctx, query, subject)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var events []audit.Event
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		var ev audit.Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, fmt.Errorf("decode audit event: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}

// ClaimBatch locks up to limit unpublished rows for the duration of the
// transaction in ctx. Concurrent relays skip rows another relay holds.
func (s *Store) ClaimBatch(ctx context.Context, limit int) ([]audit.OutboxEntry, error) {
	query := `
		SELECT id, payload
		FROM audit_outbox
		WHERE published_at IS NULL
		ORDER BY created_at
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`
	rows, err := txcontext.ExecerFrom(ctx, s.db).QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("claim outbox batch: %w", err)
	}
	defer rows.Close()

	var entries []audit.OutboxEntry
	for rows.Next() {
		var (
			entry audit.OutboxEntry
			raw   []byte
		)
		if err := rows.Scan(&entry.ID, &raw); err != nil {
			return nil, fmt.Errorf("scan outbox entry: %w", err)
		}
		if err := json.Unmarshal(raw, &entry.Event); err != nil {
			return nil, fmt.Errorf("decode outbox entry %s: %w", entry.ID, err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// MarkPublished stamps a row as delivered.
func (s *Store) MarkPublished(ctx context.Context, entryID uuid.UUID, at time.Time) error {
	_, err := txcontext.ExecerFrom(ctx, s.db).ExecContext(ctx,
		`UPDATE audit_outbox SET published_at = $2 WHERE id = $1`, entryID, at)
	if err != nil {
		return fmt.Errorf("mark outbox entry published: %w", err)
	}
	return nil
}

// RunInTx runs fn inside a transaction carried on the context.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin outbox tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(txcontext.WithTx(ctx, tx)); err != nil {
		return err
	}
	return tx.Commit()
}
