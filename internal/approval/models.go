package approval

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DocumentStatus is the lifecycle status of a document.
type DocumentStatus string

const (
	DocumentDraft       DocumentStatus = "DRAFT"
	DocumentPending     DocumentStatus = "PENDING"
	DocumentApproved    DocumentStatus = "APPROVED"
	DocumentRejected    DocumentStatus = "REJECTED"
	DocumentCancelled   DocumentStatus = "CANCELLED"
	DocumentImplemented DocumentStatus = "IMPLEMENTED"
)

// StepType identifies which chain a step belongs to. Agreement and approval
// steps form one ordered chain; implementation and reference steps are
// processed after the document is approved.
type StepType string

const (
	StepAgreement      StepType = "AGREEMENT"
	StepApproval       StepType = "APPROVAL"
	StepImplementation StepType = "IMPLEMENTATION"
	StepReference      StepType = "REFERENCE"
)

// Valid reports whether t is one of the known step types.
func (t StepType) Valid() bool {
	switch t {
	case StepAgreement, StepApproval, StepImplementation, StepReference:
		return true
	}
	return false
}

// StepStatus is the status of an individual approval step. The only legal
// transitions are PENDING -> APPROVED and PENDING -> REJECTED; cancelling an
// approval is the single exception that moves a step back to PENDING.
type StepStatus string

const (
	StepPending  StepStatus = "PENDING"
	StepApproved StepStatus = "APPROVED"
	StepRejected StepStatus = "REJECTED"
)

// Document is an approval document owned by its drafter. Steps are an owned
// aggregate: they are created atomically at submission and never outlive the
// document.
type Document struct {
	ID             uuid.UUID      `json:"id" gorm:"primaryKey;type:uuid"`
	Title          string         `json:"title" gorm:"not null"`
	Content        string         `json:"content" gorm:"type:text"`
	Status         DocumentStatus `json:"status" gorm:"not null;index"`
	DrafterID      uuid.UUID      `json:"drafter_id" gorm:"type:uuid;not null;index"`
	DrafterName    string         `json:"drafter_name" gorm:""`
	DocumentNumber *string        `json:"document_number,omitempty" gorm:"uniqueIndex"`
	CancelReason   *string        `json:"cancel_reason,omitempty" gorm:""`
	SubmittedAt    *time.Time     `json:"submitted_at,omitempty" gorm:""`
	ApprovedAt     *time.Time     `json:"approved_at,omitempty" gorm:""`
	RejectedAt     *time.Time     `json:"rejected_at,omitempty" gorm:""`
	CancelledAt    *time.Time     `json:"cancelled_at,omitempty" gorm:""`
	CreatedAt      time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt      time.Time      `json:"updated_at" gorm:"autoUpdateTime"`

	Steps []ApprovalStep `json:"steps,omitempty" gorm:"foreignKey:DocumentID;constraint:OnDelete:CASCADE"`
}

// ApprovalStep is one entry in a document's approval chain. The approver
// metadata is a frozen snapshot taken from the directory at assignment time
// and is never refreshed afterwards, so the audit trail reflects the org
// chart as it was when the document was submitted.
type ApprovalStep struct {
	ID         uuid.UUID  `json:"id" gorm:"primaryKey;type:uuid"`
	DocumentID uuid.UUID  `json:"document_id" gorm:"type:uuid;not null;index"`
	StepOrder  int        `json:"step_order" gorm:"not null"`
	StepType   StepType   `json:"step_type" gorm:"not null"`
	ApproverID uuid.UUID  `json:"approver_id" gorm:"type:uuid;not null;index"`
	Status     StepStatus `json:"status" gorm:"not null"`

	ApproverName           string `json:"approver_name" gorm:""`
	ApproverEmployeeNumber string `json:"approver_employee_number" gorm:""`
	ApproverDepartment     string `json:"approver_department" gorm:""`
	ApproverPosition       string `json:"approver_position" gorm:""`
	ApproverRank           string `json:"approver_rank" gorm:""`

	ApprovedAt    *time.Time `json:"approved_at,omitempty" gorm:""`
	RejectComment *string    `json:"reject_comment,omitempty" gorm:""`
	CreatedAt     time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt     time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName keeps the snapshot semantics visible in the schema.
func (ApprovalStep) TableName() string { return "approval_step_snapshots" }

// ValidateStepOrders checks that step orders are 1-based, unique and
// contiguous. Steps are an ordered sequence, not a graph; this is enforced
// once at construction time.
func ValidateStepOrders(steps []ApprovalStep) error {
	seen := make(map[int]bool, len(steps))
	for _, s := range steps {
		if s.StepOrder < 1 || s.StepOrder > len(steps) {
			return fmt.Errorf("step order %d out of range 1..%d: %w", s.StepOrder, len(steps), ErrValidation)
		}
		if seen[s.StepOrder] {
			return fmt.Errorf("duplicate step order %d: %w", s.StepOrder, ErrValidation)
		}
		seen[s.StepOrder] = true
	}
	return nil
}

// chainRank orders the type chains: agreement/approval first, then
// implementation, then reference.
func chainRank(t StepType) int {
	switch t {
	case StepAgreement, StepApproval:
		return 0
	case StepImplementation:
		return 1
	case StepReference:
		return 2
	default:
		return 3
	}
}

// ValidateChainOrder rejects step lists where a later chain precedes an
// earlier one (e.g. an implementation step ordered before an approval step).
func ValidateChainOrder(steps []ApprovalStep) error {
	sorted := sortByStepOrder(steps)
	prev := 0
	for _, s := range sorted {
		r := chainRank(s.StepType)
		if r < prev {
			return fmt.Errorf("step %d (%s) ordered after a later chain: %w", s.StepOrder, s.StepType, ErrValidation)
		}
		prev = r
	}
	return nil
}
