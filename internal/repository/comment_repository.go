package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/grievance-portal/internal/domain"
)

// CommentRepository manages the public and internal issue threads. The two
// live in separate tables.
type CommentRepository interface {
	Create(ctx context.Context, comment *domain.Comment) error
	ListByIssue(ctx context.Context, issueID int64) ([]domain.Comment, error)
	CreateInternal(ctx context.Context, comment *domain.InternalComment) error
	ListInternalByIssue(ctx context.Context, issueID int64) ([]domain.InternalComment, error)
}

type commentRepository struct {
	pool *pgxpool.Pool
}

// NewCommentRepository builds repository.
func NewCommentRepository(pool *pgxpool.Pool) CommentRepository {
	return &commentRepository{pool: pool}
}

func (r *commentRepository) Create(ctx context.Context, comment *domain.Comment) error {
	const query = `
        INSERT INTO comments (issue_id, employee_id, content, created_at)
        VALUES ($1,$2,$3,$4)
        RETURNING id`
	return r.pool.QueryRow(ctx, query,
		comment.IssueID,
		comment.EmployeeID,
		comment.Content,
		comment.CreatedAt,
	).Scan(&comment.ID)
}

func (r *commentRepository) ListByIssue(ctx context.Context, issueID int64) ([]domain.Comment, error) {
	const query = `
        SELECT id, issue_id, employee_id, content, created_at
        FROM comments WHERE issue_id=$1 ORDER BY created_at ASC, id ASC`
	rows, err := r.pool.Query(ctx, query, issueID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Comment
	for rows.Next() {
		var c domain.Comment
		if err := rows.Scan(&c.ID, &c.IssueID, &c.EmployeeID, &c.Content, &c.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

func (r *commentRepository) CreateInternal(ctx context.Context, comment *domain.InternalComment) error {
	const query = `
        INSERT INTO internal_comments (issue_id, employee_id, recipient_id, content, created_at)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id`
	return r.pool.QueryRow(ctx, query,
		comment.IssueID,
		comment.EmployeeID,
		comment.RecipientID,
		comment.Content,
		comment.CreatedAt,
	).Scan(&comment.ID)
}

func (r *commentRepository) ListInternalByIssue(ctx context.Context, issueID int64) ([]domain.InternalComment, error) {
	const query = `
        SELECT id, issue_id, employee_id, recipient_id, content, created_at
        FROM internal_comments WHERE issue_id=$1 ORDER BY created_at ASC, id ASC`
	rows, err := r.pool.Query(ctx, query, issueID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.InternalComment
	for rows.Next() {
		var c domain.InternalComment
		if err := rows.Scan(&c.ID, &c.IssueID, &c.EmployeeID, &c.RecipientID, &c.Content, &c.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}
