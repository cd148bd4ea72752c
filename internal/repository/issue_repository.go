package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/grievance-portal/internal/domain"
)

// ErrVersionConflict is returned by Save when the stored version no longer
// matches the expected one.
var ErrVersionConflict = errors.New("issue version conflict")

// IssueRepository encapsulates issue persistence.
type IssueRepository interface {
	Create(ctx context.Context, issue *domain.Issue, audit []domain.AuditEntry) error
	GetByID(ctx context.Context, id int64) (*domain.Issue, error)
	// Save writes issue and appends audit in one transaction, only if the
	// stored version equals expectedVersion. On success issue.Version is
	// advanced.
	Save(ctx context.Context, issue *domain.Issue, expectedVersion int64, audit []domain.AuditEntry) error
	// ListActive pages through open and in_progress issues in id order,
	// starting after afterID.
	ListActive(ctx context.Context, afterID int64, limit int) ([]domain.Issue, error)
}

type issueRepository struct {
	pool *pgxpool.Pool
}

// NewIssueRepository instantiates repository.
func NewIssueRepository(pool *pgxpool.Pool) IssueRepository {
	return &issueRepository{pool: pool}
}

const issueColumns = `id, type_id, sub_type_id, mapped_type_id, mapped_sub_type_id, title, description,
               status, priority, escalation_level, last_escalated_at, employee_id, assigned_to, assigned_by,
               created_at, updated_at, last_status_change_at, closed_at, reopenable_until,
               previously_closed_at, version`

func (r *issueRepository) Create(ctx context.Context, issue *domain.Issue, audit []domain.AuditEntry) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		const query = `
        INSERT INTO issues (type_id, sub_type_id, title, description, status, priority, escalation_level,
            employee_id, created_at, updated_at, last_status_change_at, previously_closed_at, version)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,1)
        RETURNING id, version`
		closed := issue.PreviouslyClosedAt
		if closed == nil {
			closed = []time.Time{}
		}
		if err := tx.QueryRow(ctx, query,
			issue.TypeID,
			issue.SubTypeID,
			issue.Title,
			issue.Description,
			issue.Status,
			issue.Priority,
			issue.EscalationLevel,
			issue.EmployeeID,
			issue.CreatedAt,
			issue.UpdatedAt,
			issue.LastStatusChangeAt,
			closed,
		).Scan(&issue.ID, &issue.Version); err != nil {
			return fmt.Errorf("insert issue: %w", err)
		}
		return appendAudit(ctx, tx, issue.ID, audit)
	})
}

func (r *issueRepository) GetByID(ctx context.Context, id int64) (*domain.Issue, error) {
	query := `SELECT ` + issueColumns + ` FROM issues WHERE id=$1`
	issue, err := scanIssue(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, err
	}
	return issue, nil
}

func (r *issueRepository) Save(ctx context.Context, issue *domain.Issue, expectedVersion int64, audit []domain.AuditEntry) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		const query = `
        UPDATE issues SET mapped_type_id=$1, mapped_sub_type_id=$2, title=$3, description=$4, status=$5,
            priority=$6, escalation_level=$7, last_escalated_at=$8, assigned_to=$9, assigned_by=$10,
            updated_at=$11, last_status_change_at=$12, closed_at=$13, reopenable_until=$14,
            previously_closed_at=$15, version=version+1
        WHERE id=$16 AND version=$17
        RETURNING version`
		closed := issue.PreviouslyClosedAt
		if closed == nil {
			closed = []time.Time{}
		}
		err := tx.QueryRow(ctx, query,
			issue.MappedTypeID,
			issue.MappedSubTypeID,
			issue.Title,
			issue.Description,
			issue.Status,
			issue.Priority,
			issue.EscalationLevel,
			issue.LastEscalatedAt,
			issue.AssignedTo,
			issue.AssignedBy,
			issue.UpdatedAt,
			issue.LastStatusChangeAt,
			issue.ClosedAt,
			issue.ReopenableUntil,
			closed,
			issue.ID,
			expectedVersion,
		).Scan(&issue.Version)
		if errors.Is(err, pgx.ErrNoRows) {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM issues WHERE id=$1)`, issue.ID).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return pgx.ErrNoRows
			}
			return ErrVersionConflict
		}
		if err != nil {
			return fmt.Errorf("update issue: %w", err)
		}
		return appendAudit(ctx, tx, issue.ID, audit)
	})
}

func (r *issueRepository) ListActive(ctx context.Context, afterID int64, limit int) ([]domain.Issue, error) {
	if limit <= 0 {
		limit = 500
	}
	query := `SELECT ` + issueColumns + `
        FROM issues WHERE status IN ('open','in_progress') AND id > $1
        ORDER BY id ASC LIMIT $2`
	rows, err := r.pool.Query(ctx, query, afterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Issue
	for rows.Next() {
		issue, err := scanIssue(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *issue)
	}
	return result, rows.Err()
}

func scanIssue(row pgx.Row) (*domain.Issue, error) {
	var issue domain.Issue
	if err := row.Scan(
		&issue.ID,
		&issue.TypeID,
		&issue.SubTypeID,
		&issue.MappedTypeID,
		&issue.MappedSubTypeID,
		&issue.Title,
		&issue.Description,
		&issue.Status,
		&issue.Priority,
		&issue.EscalationLevel,
		&issue.LastEscalatedAt,
		&issue.EmployeeID,
		&issue.AssignedTo,
		&issue.AssignedBy,
		&issue.CreatedAt,
		&issue.UpdatedAt,
		&issue.LastStatusChangeAt,
		&issue.ClosedAt,
		&issue.ReopenableUntil,
		&issue.PreviouslyClosedAt,
		&issue.Version,
	); err != nil {
		return nil, err
	}
	return &issue, nil
}
