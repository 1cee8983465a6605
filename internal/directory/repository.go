package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"groupware/approval-portal/approval-portal-backend/internal/approval"
)

type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Employee, error)
	GetByEmployeeNumber(ctx context.Context, number string) (*Employee, error)
	List(ctx context.Context, search string, page, limit int) ([]Employee, int64, error)
	Create(ctx context.Context, employee *Employee) error
	Update(ctx context.Context, employee *Employee) error
}

type gormRepository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) GetByID(ctx context.Context, id uuid.UUID) (*Employee, error) {
	var employee Employee
	err := r.db.WithContext(ctx).First(&employee, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("employee %s: %w", id, approval.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load employee: %w", err)
	}
	return &employee, nil
}

func (r *gormRepository) GetByEmployeeNumber(ctx context.Context, number string) (*Employee, error) {
	var employee Employee
	err := r.db.WithContext(ctx).First(&employee, "employee_number = ?", number).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("employee number %s: %w", number, approval.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load employee: %w", err)
	}
	return &employee, nil
}

func (r *gormRepository) List(ctx context.Context, search string, page, limit int) ([]Employee, int64, error) {
	if limit <= 0 {
		limit = 20
	}
	if page <= 0 {
		page = 1
	}

	q := r.db.WithContext(ctx).Model(&Employee{}).Where("is_active = ?", true)
	if search != "" {
		pattern := "%" + search + "%"
		q = q.Where("name ILIKE ? OR employee_number ILIKE ? OR department ILIKE ?", pattern, pattern, pattern)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count employees: %w", err)
	}

	var employees []Employee
	err := q.Order("name ASC").
		Limit(limit).
		Offset((page - 1) * limit).
		Find(&employees).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list employees: %w", err)
	}
	return employees, total, nil
}

func (r *gormRepository) Create(ctx context.Context, employee *Employee) error {
	if err := r.db.WithContext(ctx).Create(employee).Error; err != nil {
		return fmt.Errorf("failed to create employee: %w", err)
	}
	return nil
}

func (r *gormRepository) Update(ctx context.Context, employee *Employee) error {
	if err := r.db.WithContext(ctx).Save(employee).Error; err != nil {
		return fmt.Errorf("failed to update employee: %w", err)
	}
	return nil
}
