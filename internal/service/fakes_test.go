package service

import (
	"context"
	"sort"
	"sync"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/grievance-portal/internal/domain"
	"github.com/spec-kit/grievance-portal/internal/repository"
)

// memStore backs the issue, audit and comment fakes with one lock so a
// Save and its audit entries land together, as in the postgres transaction.
type memStore struct {
	mu       sync.Mutex
	nextID   int64
	issues   map[int64]domain.Issue
	audit    []domain.AuditEntry
	comments []domain.Comment
	internal []domain.InternalComment

	saves int
	pages int
	// beforeSave runs under the lock ahead of the version check.
	beforeSave func(stored *domain.Issue)
}

func newMemStore() *memStore {
	return &memStore{issues: map[int64]domain.Issue{}}
}

func (m *memStore) id() int64 {
	m.nextID++
	return m.nextID
}

type memIssueRepo struct{ *memStore }

var _ repository.IssueRepository = memIssueRepo{}

func (r memIssueRepo) Create(_ context.Context, issue *domain.Issue, audit []domain.AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	issue.ID = r.id()
	issue.Version = 1
	r.issues[issue.ID] = issue.Clone()
	r.appendAudit(issue.ID, audit)
	return nil
}

func (r memIssueRepo) GetByID(_ context.Context, id int64) (*domain.Issue, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.issues[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	c := stored.Clone()
	return &c, nil
}

func (r memIssueRepo) Save(_ context.Context, issue *domain.Issue, expectedVersion int64, audit []domain.AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saves++
	stored, ok := r.issues[issue.ID]
	if !ok {
		return pgx.ErrNoRows
	}
	if r.beforeSave != nil {
		r.beforeSave(&stored)
		r.issues[issue.ID] = stored
	}
	if stored.Version != expectedVersion {
		return repository.ErrVersionConflict
	}
	issue.Version = expectedVersion + 1
	r.issues[issue.ID] = issue.Clone()
	r.appendAudit(issue.ID, audit)
	return nil
}

func (r memIssueRepo) ListActive(_ context.Context, afterID int64, limit int) ([]domain.Issue, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pages++
	var out []domain.Issue
	for _, issue := range r.issues {
		if !issue.Status.IsTerminal() && issue.ID > afterID {
			out = append(out, issue.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) appendAudit(issueID int64, audit []domain.AuditEntry) {
	for i := range audit {
		audit[i].IssueID = issueID
		audit[i].ID = m.id()
		m.audit = append(m.audit, audit[i])
	}
}

type memAuditRepo struct{ *memStore }

func (r memAuditRepo) Append(_ context.Context, entry *domain.AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry.ID = r.id()
	r.audit = append(r.audit, *entry)
	return nil
}

func (r memAuditRepo) ListByIssue(_ context.Context, issueID int64) ([]domain.AuditEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.AuditEntry
	for _, e := range r.audit {
		if e.IssueID == issueID {
			out = append(out, e)
		}
	}
	return out, nil
}

type memCommentRepo struct{ *memStore }

func (r memCommentRepo) Create(_ context.Context, c *domain.Comment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c.ID = r.id()
	r.comments = append(r.comments, *c)
	return nil
}

func (r memCommentRepo) ListByIssue(_ context.Context, issueID int64) ([]domain.Comment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Comment
	for _, c := range r.comments {
		if c.IssueID == issueID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r memCommentRepo) CreateInternal(_ context.Context, c *domain.InternalComment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c.ID = r.id()
	r.internal = append(r.internal, *c)
	return nil
}

func (r memCommentRepo) ListInternalByIssue(_ context.Context, issueID int64) ([]domain.InternalComment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.InternalComment
	for _, c := range r.internal {
		if c.IssueID == issueID {
			out = append(out, c)
		}
	}
	return out, nil
}

type memEmployeeRepo struct {
	mu        sync.Mutex
	employees map[int64]domain.Employee
	lookups   int
}

func newMemEmployeeRepo(list ...domain.Employee) *memEmployeeRepo {
	r := &memEmployeeRepo{employees: map[int64]domain.Employee{}}
	for _, e := range list {
		r.employees[e.ID] = e
	}
	return r
}

func (r *memEmployeeRepo) Create(_ context.Context, e *domain.Employee) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e.ID = int64(len(r.employees) + 1000)
	r.employees[e.ID] = *e
	return nil
}

func (r *memEmployeeRepo) GetByID(_ context.Context, id int64) (*domain.Employee, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lookups++
	e, ok := r.employees[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &e, nil
}

func (r *memEmployeeRepo) GetByEmail(_ context.Context, email string) (*domain.Employee, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.employees {
		if e.Email == email {
			c := e
			return &c, nil
		}
	}
	return nil, pgx.ErrNoRows
}
