package repository

import (
	"context"
	"fmt"
	"time"

	"app/internal/model"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditRepository appends to the operation audit log. The log is
// append-only; rows are never updated.
type AuditRepository interface {
	Append(ctx context.Context, rec model.AuditRecord) error
	// ListByIdentity returns the most recent operations for an identity key.
	ListByIdentity(ctx context.Context, identityKey string, since time.Time, limit int) ([]model.AuditRecord, error)
}

type auditRepo struct {
	pool *pgxpool.Pool
}

// NewAuditRepo creates a new AuditRepository.
func NewAuditRepo(pool *pgxpool.Pool) AuditRepository {
	return &auditRepo{pool: pool}
}

func (r *auditRepo) Append(ctx context.Context, rec model.AuditRecord) error {
	const q = `
		INSERT INTO operation_audit (at, identity_key, scope, plan_id, format, size_bytes, outcome)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	at := rec.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	if _, err := r.pool.Exec(ctx, q, at, rec.IdentityKey, rec.Scope, rec.PlanID, string(rec.Format), rec.SizeBytes, rec.Outcome); err != nil {
		return fmt.Errorf("appending audit record for %s: %w", rec.IdentityKey, err)
	}
	return nil
}

func (r *auditRepo) ListByIdentity(ctx context.Context, identityKey string, since time.Time, limit int) ([]model.AuditRecord, error) {
	const q = `
		SELECT at, identity_key, scope, plan_id, format, size_bytes, outcome
		FROM operation_audit
		WHERE identity_key = $1 AND at >= $2
		ORDER BY at DESC
		LIMIT $3
	`
	rows, err := r.pool.Query(ctx, q, identityKey, since, limit)
	if err != nil {
		return nil, fmt.Errorf("querying audit log for %s: %w", identityKey, err)
	}
	defer rows.Close()

	var recs []model.AuditRecord
	for rows.Next() {
		var rec model.AuditRecord
		var format string
		if err := rows.Scan(&rec.At, &rec.IdentityKey, &rec.Scope, &rec.PlanID, &format, &rec.SizeBytes, &rec.Outcome); err != nil {
			return nil, fmt.Errorf("scanning audit row: %w", err)
		}
		rec.Format = model.Format(format)
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit row iteration: %w", err)
	}
	return recs, nil
}
