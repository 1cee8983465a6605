package directory

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"groupware/approval-portal/approval-portal-backend/internal/approval"
)

// ErrInvalidCredentials is returned for an unknown employee number, a wrong
// password or a deactivated account, without distinguishing between them.
var ErrInvalidCredentials = fmt.Errorf("invalid credentials")

// Service is the employee directory. It satisfies approval.DirectoryService
// so the approval package can snapshot approver metadata at assignment time.
type Service struct {
	repo   Repository
	logger *zap.Logger
}

func NewService(repo Repository, logger *zap.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// Resolve returns the snapshot fields for one active employee.
func (s *Service) Resolve(ctx context.Context, id uuid.UUID) (approval.EmployeeSnapshot, error) {
	employee, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return approval.EmployeeSnapshot{}, err
	}
	if !employee.IsActive {
		return approval.EmployeeSnapshot{}, fmt.Errorf("employee %s is deactivated: %w", id, approval.ErrValidation)
	}
	return approval.EmployeeSnapshot{
		ID:             employee.ID,
		Name:           employee.Name,
		EmployeeNumber: employee.EmployeeNumber,
		Department:     employee.Department,
		Position:       employee.Position,
		Rank:           employee.Rank,
		Email:          employee.Email,
	}, nil
}

// Authenticate checks an employee number and password pair.
func (s *Service) Authenticate(ctx context.Context, employeeNumber, password string) (*Employee, error) {
	employee, err := s.repo.GetByEmployeeNumber(ctx, employeeNumber)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	if !employee.IsActive {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(employee.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return employee, nil
}

// CreateEmployeeInput registers a new directory entry.
type CreateEmployeeInput struct {
	Name           string
	EmployeeNumber string
	Email          string
	Department     string
	Position       string
	Rank           string
	Password       string
}

func (s *Service) CreateEmployee(ctx context.Context, input CreateEmployeeInput) (*Employee, error) {
	if input.Name == "" || input.EmployeeNumber == "" || input.Password == "" {
		return nil, fmt.Errorf("name, employee number and password are required: %w", approval.ErrValidation)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	employee := &Employee{
		ID:             uuid.New(),
		Name:           input.Name,
		EmployeeNumber: input.EmployeeNumber,
		Email:          input.Email,
		Department:     input.Department,
		Position:       input.Position,
		Rank:           input.Rank,
		PasswordHash:   string(hash),
		IsActive:       true,
	}
	if err := s.repo.Create(ctx, employee); err != nil {
		return nil, err
	}
	s.logger.Info("employee created",
		zap.String("employee_id", employee.ID.String()),
		zap.String("employee_number", employee.EmployeeNumber))
	return employee, nil
}

func (s *Service) GetEmployee(ctx context.Context, id uuid.UUID) (*Employee, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ListEmployees(ctx context.Context, search string, page, limit int) ([]Employee, int64, error) {
	return s.repo.List(ctx, search, page, limit)
}
