package approval

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository is the document store. Action mutations run inside
// InTransaction, which hands the callback a repository bound to the
// transaction; the document row is locked there so step completions on the
// same document are serialized.
type Repository interface {
	CreateDocument(ctx context.Context, doc *Document) error
	GetDocumentWithSteps(ctx context.Context, id uuid.UUID) (*Document, error)
	LockDocumentWithSteps(ctx context.Context, id uuid.UUID) (*Document, error)
	SaveDocument(ctx context.Context, doc *Document) error

	CreateSteps(ctx context.Context, steps []ApprovalStep) error
	DeleteSteps(ctx context.Context, documentID uuid.UUID) error

	// TransitionStep updates a step's status only if it still has the
	// expected one; losing that race reports ErrConcurrentModification.
	TransitionStep(ctx context.Context, step *ApprovalStep, expected StepStatus) error

	NextDocumentNumber(ctx context.Context, year int) (string, error)

	ListInbox(ctx context.Context, filter FilterType, viewerID uuid.UUID, opts FilterOptions, page, limit int) ([]Document, int64, error)
	CountInbox(ctx context.Context, filter FilterType, viewerID uuid.UUID) (int64, error)
	ListMyTurnByMonth(ctx context.Context, viewerID uuid.UUID, year int, month time.Month) ([]Document, error)

	InTransaction(ctx context.Context, fn func(Repository) error) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a postgres-backed repository.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

// translateWriteError maps a lost document-number allocation onto the
// retryable concurrency error. Two submissions in the same year can compute
// the same number; the loser trips the unique index when it saves.
func translateWriteError(err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("document number already taken: %w", ErrConcurrentModification)
	}
	return err
}

func (r *gormRepository) CreateDocument(ctx context.Context, doc *Document) error {
	if err := r.db.WithContext(ctx).Omit("Steps").Create(doc).Error; err != nil {
		return fmt.Errorf("failed to create document: %w", translateWriteError(err))
	}
	return nil
}

func (r *gormRepository) getDocument(ctx context.Context, id uuid.UUID, lock bool) (*Document, error) {
	var doc Document
	q := r.db.WithContext(ctx)
	if lock {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	err := q.First(&doc, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load document: %w", err)
	}
	// Steps loaded separately so the row lock stays on documents only.
	if err := r.db.WithContext(ctx).
		Where("document_id = ?", id).
		Order("step_order ASC").
		Find(&doc.Steps).Error; err != nil {
		return nil, fmt.Errorf("failed to load steps: %w", err)
	}
	return &doc, nil
}

func (r *gormRepository) GetDocumentWithSteps(ctx context.Context, id uuid.UUID) (*Document, error) {
	return r.getDocument(ctx, id, false)
}

func (r *gormRepository) LockDocumentWithSteps(ctx context.Context, id uuid.UUID) (*Document, error) {
	return r.getDocument(ctx, id, true)
}

func (r *gormRepository) SaveDocument(ctx context.Context, doc *Document) error {
	if err := r.db.WithContext(ctx).Omit("Steps").Save(doc).Error; err != nil {
		return fmt.Errorf("failed to save document: %w", translateWriteError(err))
	}
	return nil
}

func (r *gormRepository) CreateSteps(ctx context.Context, steps []ApprovalStep) error {
	if len(steps) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Create(&steps).Error; err != nil {
		return fmt.Errorf("failed to create steps: %w", err)
	}
	return nil
}

func (r *gormRepository) DeleteSteps(ctx context.Context, documentID uuid.UUID) error {
	if err := r.db.WithContext(ctx).
		Where("document_id = ?", documentID).
		Delete(&ApprovalStep{}).Error; err != nil {
		return fmt.Errorf("failed to delete steps: %w", err)
	}
	return nil
}

func (r *gormRepository) TransitionStep(ctx context.Context, step *ApprovalStep, expected StepStatus) error {
	updates := map[string]any{
		"status":         step.Status,
		"approved_at":    step.ApprovedAt,
		"reject_comment": step.RejectComment,
		"updated_at":     time.Now(),
	}
	result := r.db.WithContext(ctx).
		Model(&ApprovalStep{}).
		Where("id = ? AND status = ?", step.ID, expected).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update step: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("step %s no longer %s: %w", step.ID, expected, ErrConcurrentModification)
	}
	return nil
}

// NextDocumentNumber allocates the next number in the per-year sequence,
// e.g. DOC-2026-000042. Called inside the submit transaction.
func (r *gormRepository) NextDocumentNumber(ctx context.Context, year int) (string, error) {
	var count int64
	prefix := fmt.Sprintf("DOC-%d-", year)
	if err := r.db.WithContext(ctx).
		Model(&Document{}).
		Where("document_number LIKE ?", prefix+"%").
		Count(&count).Error; err != nil {
		return "", fmt.Errorf("failed to count document numbers: %w", err)
	}
	return fmt.Sprintf("%s%06d", prefix, count+1), nil
}

func (r *gormRepository) inboxQuery(ctx context.Context, filter FilterType, viewerID uuid.UUID, opts FilterOptions) *gorm.DB {
	q := r.db.WithContext(ctx).Model(&Document{})
	return ApplyFilter(q, filter, viewerID, opts)
}

func (r *gormRepository) ListInbox(ctx context.Context, filter FilterType, viewerID uuid.UUID, opts FilterOptions, page, limit int) ([]Document, int64, error) {
	if limit <= 0 {
		limit = 20
	}
	if page <= 0 {
		page = 1
	}

	var total int64
	if err := r.inboxQuery(ctx, filter, viewerID, opts).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count inbox: %w", err)
	}

	var docs []Document
	err := r.inboxQuery(ctx, filter, viewerID, opts).
		Preload("Steps", func(db *gorm.DB) *gorm.DB { return db.Order("step_order ASC") }).
		Order("documents.created_at DESC").
		Limit(limit).
		Offset((page - 1) * limit).
		Find(&docs).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list inbox: %w", err)
	}
	return docs, total, nil
}

func (r *gormRepository) CountInbox(ctx context.Context, filter FilterType, viewerID uuid.UUID) (int64, error) {
	var total int64
	if err := r.inboxQuery(ctx, filter, viewerID, FilterOptions{}).Count(&total).Error; err != nil {
		return 0, fmt.Errorf("failed to count inbox: %w", err)
	}
	return total, nil
}

// ListMyTurnByMonth returns documents submitted in the given month where it
// is currently the viewer's turn.
func (r *gormRepository) ListMyTurnByMonth(ctx context.Context, viewerID uuid.UUID, year int, month time.Month) ([]Document, error) {
	start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)

	var docs []Document
	err := r.inboxQuery(ctx, FilterPendingApproval, viewerID, FilterOptions{}).
		Where("documents.submitted_at >= ? AND documents.submitted_at < ?", start, end).
		Preload("Steps", func(db *gorm.DB) *gorm.DB { return db.Order("step_order ASC") }).
		Order("documents.submitted_at DESC").
		Find(&docs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list my turn documents: %w", err)
	}
	return docs, nil
}

func (r *gormRepository) InTransaction(ctx context.Context, fn func(Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormRepository{db: tx})
	})
}
