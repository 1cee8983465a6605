package directory

import (
	"time"

	"github.com/google/uuid"
)

// Employee is one directory entry. PasswordHash is a bcrypt hash and never
// leaves the package.
type Employee struct {
	ID             uuid.UUID `json:"id" gorm:"primaryKey;type:uuid"`
	Name           string    `json:"name" gorm:"not null"`
	EmployeeNumber string    `json:"employee_number" gorm:"uniqueIndex;not null"`
	Email          string    `json:"email" gorm:"uniqueIndex"`
	Department     string    `json:"department"`
	Position       string    `json:"position"`
	Rank           string    `json:"rank"`
	PasswordHash   string    `json:"-" gorm:"not null"`
	IsActive       bool      `json:"is_active" gorm:"default:true"`
	CreatedAt      time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt      time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (Employee) TableName() string { return "employees" }
