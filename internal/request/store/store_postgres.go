package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"golden/internal/request/models"
	"golden/internal/request/ports"
	id "golden/pkg/domain"
	dErrors "golden/pkg/domain-errors"
	"golden/pkg/platform/sentinel"
	txcontext "golden/pkg/platform/tx"
)

// pgUniqueViolation is SQLSTATE unique_violation.
const pgUniqueViolation = "23505"

// PostgresStore persists requests in PostgreSQL.
// Inside RunInTx every statement runs on the transaction carried by the
// context, and FindByID takes a row lock. The partial unique index
// requests_active_key_uq enforces one Active record per duplicate key.
type PostgresStore struct {
	db      *sql.DB
	timeout time.Duration
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, timeout: DefaultTxTimeout}
}

// WithTimeout overrides DefaultTxTimeout.
func (s *PostgresStore) WithTimeout(d time.Duration) *PostgresStore {
	if d > 0 {
		s.timeout = d
	}
	return s
}

func (s *PostgresStore) RunInTx(ctx context.Context, fn func(ctx context.Context, store ports.RecordStore) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return s.txError(ctx, fmt.Errorf("begin tx: %w", err))
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(txcontext.WithTx(ctx, tx), s); err != nil {
		return s.txError(ctx, err)
	}
	if err := tx.Commit(); err != nil {
		return s.txError(ctx, fmt.Errorf("commit tx: %w", mapWriteError(err)))
	}
	return nil
}

// txError turns a driver failure caused by the deadline into CodeTimeout.
func (s *PostgresStore) txError(ctx context.Context, err error) error {
	var de *dErrors.Error
	if ctx.Err() != nil && !errors.As(err, &de) {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: deadline exceeded")
	}
	return err
}

const selectColumns = `
	id, status, assigned_to, origin,
	name, tax_number, customer_type, country, city, address,
	contact_name, contact_email, contact_phone,
	source_golden_id, superseded_by, compliance_status,
	reject_reason, block_reason, created_by, version, created_at, updated_at`

func (s *PostgresStore) FindByID(ctx context.Context, requestID id.RequestID) (*models.Request, error) {
	query := `SELECT ` + selectColumns + ` FROM requests WHERE id = $1`
	if _, inTx := txcontext.From(ctx); inTx {
		query += ` FOR UPDATE`
	}
	r, err := scanRequest(txcontext.ExecerFrom(ctx, s.db).QueryRowContext(ctx, query, uuid.UUID(requestID)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find request: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) Create(ctx context.Context, r *models.Request) error {
	if r == nil {
		return fmt.Errorf("request is required")
	}
	if r.Version == 0 {
		r.Version = 1
	}
	query := `
		INSERT INTO requests (
			id, status, assigned_to, origin,
			name, tax_number, customer_type, country, city, address,
			contact_name, contact_email, contact_phone,
			source_golden_id, superseded_by, compliance_status,
			reject_reason, block_reason, created_by, version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
	`
	p := r.Profile
	_, err := txcontext.ExecerFrom(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(r.ID), string(r.Status), string(r.AssignedTo), string(r.Origin),
		p.Name, p.TaxNumber, p.CustomerType, p.Country, p.City, p.Address,
		p.ContactName, p.ContactEmail, p.ContactPhone,
		nullableID(r.SourceGoldenID), nullableID(r.SupersededBy), string(r.ComplianceStatus),
		r.RejectReason, r.BlockReason, string(r.CreatedBy), r.Version, r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create request: %w", mapWriteError(err))
	}
	return nil
}

// Save writes r when the stored version still equals r.Version.
func (s *PostgresStore) Save(ctx context.Context, r *models.Request) error {
	if r == nil {
		return fmt.Errorf("request is required")
	}
	query := `
		UPDATE requests SET
			status = $2, assigned_to = $3,
			name = $4, tax_number = $5, customer_type = $6, country = $7, city = $8, address = $9,
			contact_name = $10, contact_email = $11, contact_phone = $12,
			superseded_by = $13, compliance_status = $14,
			reject_reason = $15, block_reason = $16,
			version = version + 1, updated_at = $17
		WHERE id = $1 AND version = $18
	`
	p := r.Profile
	exec := txcontext.ExecerFrom(ctx, s.db)
	res, err := exec.ExecContext(ctx, query,
		uuid.UUID(r.ID), string(r.Status), string(r.AssignedTo),
		p.Name, p.TaxNumber, p.CustomerType, p.Country, p.City, p.Address,
		p.ContactName, p.ContactEmail, p.ContactPhone,
		nullableID(r.SupersededBy), string(r.ComplianceStatus),
		r.RejectReason, r.BlockReason, r.UpdatedAt, r.Version,
	)
	if err != nil {
		return fmt.Errorf("save request: %w", mapWriteError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("save request rows affected: %w", err)
	}
	if n == 0 {
		var exists bool
		if err := exec.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM requests WHERE id = $1)`, uuid.UUID(r.ID)).Scan(&exists); err != nil {
			return fmt.Errorf("save request existence check: %w", err)
		}
		if !exists {
			return fmt.Errorf("save request %s: %w", r.ID, sentinel.ErrNotFound)
		}
		return fmt.Errorf("save request %s: stale version %d: %w", r.ID, r.Version, sentinel.ErrConflict)
	}
	r.Version++
	return nil
}

func (s *PostgresStore) FindActiveByKey(ctx context.Context, key models.DuplicateKey) (*models.Request, error) {
	query := `SELECT ` + selectColumns + `
		FROM requests
		WHERE tax_number = $1 AND customer_type = $2 AND status = 'Active'`
	r, err := scanRequest(txcontext.ExecerFrom(ctx, s.db).QueryRowContext(ctx, query, key.TaxNumber, key.CustomerType))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find active by key: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) ListByStatus(ctx context.Context, statuses []models.Status, limit int) ([]*models.Request, error) {
	names := make([]string, len(statuses))
	for i, st := range statuses {
		names[i] = string(st)
	}
	query := `SELECT ` + selectColumns + `
		FROM requests
		WHERE status = ANY($1)
		ORDER BY created_at, id`
	args := []any{pq.Array(names)}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := txcontext.ExecerFrom(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	defer rows.Close()

	out := make([]*models.Request, 0)
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan request: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate requests: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (*models.Request, error) {
	var (
		r            models.Request
		reqID        uuid.UUID
		status       string
		assignedTo   string
		origin       string
		sourceID     uuid.NullUUID
		supersededBy uuid.NullUUID
		compliance   string
		createdBy    string
	)
	err := row.Scan(
		&reqID, &status, &assignedTo, &origin,
		&r.Profile.Name, &r.Profile.TaxNumber, &r.Profile.CustomerType, &r.Profile.Country, &r.Profile.City, &r.Profile.Address,
		&r.Profile.ContactName, &r.Profile.ContactEmail, &r.Profile.ContactPhone,
		&sourceID, &supersededBy, &compliance,
		&r.RejectReason, &r.BlockReason, &createdBy, &r.Version, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.ID = id.RequestID(reqID)
	r.Status = models.Status(status)
	r.AssignedTo = models.Assignee(assignedTo)
	r.Origin = models.Origin(origin)
	r.ComplianceStatus = models.ComplianceStatus(compliance)
	r.CreatedBy = id.ActorID(createdBy)
	if sourceID.Valid {
		v := id.RequestID(sourceID.UUID)
		r.SourceGoldenID = &v
	}
	if supersededBy.Valid {
		v := id.RequestID(supersededBy.UUID)
		r.SupersededBy = &v
	}
	return &r, nil
}

func nullableID(v *id.RequestID) uuid.NullUUID {
	if v == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: uuid.UUID(*v), Valid: true}
}

// mapWriteError translates a unique violation into sentinel.ErrAlreadyUsed.
func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return fmt.Errorf("%s: %w", pgErr.ConstraintName, sentinel.ErrAlreadyUsed)
	}
	return err
}
