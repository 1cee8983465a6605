package approval

import "github.com/google/uuid"

// Action is one of the closed set of approval actions. Each variant carries
// only the fields it needs and is dispatched by an exhaustive type switch in
// Service.Apply, so a new action type cannot silently fall through a default
// branch.
type Action interface {
	isAction()
	Actor() uuid.UUID
	TargetDocument() uuid.UUID
}

// StepAssignment names one approver in a submission. Step orders are assigned
// from slice position (1-based); the chain order agreement -> approval ->
// implementation -> reference is validated at submit time.
type StepAssignment struct {
	ApproverID uuid.UUID `json:"approver_id" binding:"required"`
	StepType   StepType  `json:"step_type" binding:"required"`
}

// SubmitAction submits a draft: assigns a document number, snapshots the
// approver list into steps and moves the document to PENDING.
type SubmitAction struct {
	DocumentID  uuid.UUID
	ActorID     uuid.UUID
	Assignments []StepAssignment
}

// ApproveStepAction approves the caller's pending approval step.
type ApproveStepAction struct {
	DocumentID uuid.UUID
	StepID     uuid.UUID
	ActorID    uuid.UUID
}

// CompleteAgreementAction approves the caller's pending agreement step.
type CompleteAgreementAction struct {
	DocumentID uuid.UUID
	StepID     uuid.UUID
	ActorID    uuid.UUID
}

// RejectStepAction rejects the caller's pending step and halts the document.
// Comment is mandatory.
type RejectStepAction struct {
	DocumentID uuid.UUID
	StepID     uuid.UUID
	ActorID    uuid.UUID
	Comment    string
}

// CompleteImplementationAction marks the caller's implementation step done.
type CompleteImplementationAction struct {
	DocumentID uuid.UUID
	StepID     uuid.UUID
	ActorID    uuid.UUID
}

// MarkReferenceReadAction records that the caller read a reference step.
type MarkReferenceReadAction struct {
	DocumentID uuid.UUID
	StepID     uuid.UUID
	ActorID    uuid.UUID
}

// CancelSubmitAction withdraws a pending document. With Discard the document
// terminates as CANCELLED; otherwise it returns to DRAFT for resubmission.
// Steps are removed either way and recreated on the next submit.
type CancelSubmitAction struct {
	DocumentID uuid.UUID
	ActorID    uuid.UUID
	Reason     string
	Discard    bool
}

// CancelApprovalStepAction reverts the caller's own approval, the sole
// backward step transition. Allowed only while no later step in the same
// chain has progressed.
type CancelApprovalStepAction struct {
	DocumentID uuid.UUID
	StepID     uuid.UUID
	ActorID    uuid.UUID
}

func (a SubmitAction) isAction()                 {}
func (a ApproveStepAction) isAction()            {}
func (a CompleteAgreementAction) isAction()      {}
func (a RejectStepAction) isAction()             {}
func (a CompleteImplementationAction) isAction() {}
func (a MarkReferenceReadAction) isAction()      {}
func (a CancelSubmitAction) isAction()           {}
func (a CancelApprovalStepAction) isAction()     {}

func (a SubmitAction) Actor() uuid.UUID                 { return a.ActorID }
func (a ApproveStepAction) Actor() uuid.UUID            { return a.ActorID }
func (a CompleteAgreementAction) Actor() uuid.UUID      { return a.ActorID }
func (a RejectStepAction) Actor() uuid.UUID             { return a.ActorID }
func (a CompleteImplementationAction) Actor() uuid.UUID { return a.ActorID }
func (a MarkReferenceReadAction) Actor() uuid.UUID      { return a.ActorID }
func (a CancelSubmitAction) Actor() uuid.UUID           { return a.ActorID }
func (a CancelApprovalStepAction) Actor() uuid.UUID     { return a.ActorID }

func (a SubmitAction) TargetDocument() uuid.UUID                 { return a.DocumentID }
func (a ApproveStepAction) TargetDocument() uuid.UUID            { return a.DocumentID }
func (a CompleteAgreementAction) TargetDocument() uuid.UUID      { return a.DocumentID }
func (a RejectStepAction) TargetDocument() uuid.UUID             { return a.DocumentID }
func (a CompleteImplementationAction) TargetDocument() uuid.UUID { return a.DocumentID }
func (a MarkReferenceReadAction) TargetDocument() uuid.UUID      { return a.DocumentID }
func (a CancelSubmitAction) TargetDocument() uuid.UUID           { return a.DocumentID }
func (a CancelApprovalStepAction) TargetDocument() uuid.UUID     { return a.DocumentID }

// Transition names the state change an applied action produced. Consumed by
// the notification trigger policy.
type Transition string

const (
	TransitionSubmitted               Transition = "SUBMITTED"
	TransitionStepApproved            Transition = "STEP_APPROVED"
	TransitionAgreementCompleted      Transition = "AGREEMENT_COMPLETED"
	TransitionRejected                Transition = "REJECTED"
	TransitionImplementationCompleted Transition = "IMPLEMENTATION_COMPLETED"
	TransitionReferenceRead           Transition = "REFERENCE_READ"
	TransitionSubmitCancelled         Transition = "SUBMIT_CANCELLED"
	TransitionApprovalCancelled       Transition = "APPROVAL_CANCELLED"
)

// ActionResult is what an applied action returns to the caller.
type ActionResult struct {
	Transition Transition    `json:"transition"`
	Document   *Document     `json:"document"`
	Step       *ApprovalStep `json:"step,omitempty"`

	// RequiresCancelSubmit signals that a cancelled approval was the first
	// step and the approver is the drafter, so the caller should follow up
	// with an explicit cancel-submit. Deliberately not cascaded here.
	RequiresCancelSubmit bool `json:"requires_cancel_submit,omitempty"`

	// Reason carries the reject comment or cancel reason for the
	// notification decision.
	Reason string `json:"-"`
}
