package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/grievance-portal/internal/domain"
)

// AuditRepository stores the append-only issue audit trail.
type AuditRepository interface {
	Append(ctx context.Context, entry *domain.AuditEntry) error
	ListByIssue(ctx context.Context, issueID int64) ([]domain.AuditEntry, error)
}

type auditRepository struct {
	pool *pgxpool.Pool
}

// NewAuditRepository builds repository.
func NewAuditRepository(pool *pgxpool.Pool) AuditRepository {
	return &auditRepository{pool: pool}
}

func (r *auditRepository) Append(ctx context.Context, entry *domain.AuditEntry) error {
	return insertAudit(ctx, r.pool, entry)
}

func (r *auditRepository) ListByIssue(ctx context.Context, issueID int64) ([]domain.AuditEntry, error) {
	const query = `
        SELECT id, issue_id, action, employee_id, previous_status, new_status, details, created_at
        FROM audit_entries WHERE issue_id=$1 ORDER BY created_at ASC, id ASC`
	rows, err := r.pool.Query(ctx, query, issueID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.AuditEntry
	for rows.Next() {
		var (
			entry          domain.AuditEntry
			employeeID     *int64
			previousStatus *string
			newStatus      *string
		)
		if err := rows.Scan(
			&entry.ID,
			&entry.IssueID,
			&entry.Action,
			&employeeID,
			&previousStatus,
			&newStatus,
			&entry.Details,
			&entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		if employeeID != nil {
			entry.EmployeeID = *employeeID
		}
		entry.PreviousStatus = statusPtr(previousStatus)
		entry.NewStatus = statusPtr(newStatus)
		result = append(result, entry)
	}
	return result, rows.Err()
}

type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func insertAudit(ctx context.Context, db queryRower, entry *domain.AuditEntry) error {
	const query = `
        INSERT INTO audit_entries (issue_id, action, employee_id, previous_status, new_status, details, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING id`
	details := entry.Details
	if details == nil {
		details = map[string]any{}
	}
	return db.QueryRow(ctx, query,
		entry.IssueID,
		entry.Action,
		nullableID(entry.EmployeeID),
		entry.PreviousStatus,
		entry.NewStatus,
		details,
		entry.CreatedAt,
	).Scan(&entry.ID)
}

// appendAudit stamps issueID on every entry and inserts them in order.
func appendAudit(ctx context.Context, tx pgx.Tx, issueID int64, audit []domain.AuditEntry) error {
	for i := range audit {
		audit[i].IssueID = issueID
		if err := insertAudit(ctx, tx, &audit[i]); err != nil {
			return fmt.Errorf("insert audit entry: %w", err)
		}
	}
	return nil
}

// nullableID maps the zero id, used for system actions, to NULL.
func nullableID(id int64) *int64 {
	if id == 0 {
		return nil
	}
	return &id
}

func statusPtr(v *string) *domain.IssueStatus {
	if v == nil {
		return nil
	}
	s := domain.IssueStatus(*v)
	return &s
}
