package approval

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"groupware/approval-portal/approval-portal-backend/pkg/workflows"
)

// EmployeeSnapshot is the directory data frozen onto a step at assignment
// time.
type EmployeeSnapshot struct {
	ID             uuid.UUID
	Name           string
	EmployeeNumber string
	Department     string
	Position       string
	Rank           string
	Email          string
}

// DirectoryService resolves employees at assignment time. The approval
// package only ever reads snapshots from it; org-chart changes after
// assignment do not flow back into existing steps.
type DirectoryService interface {
	Resolve(ctx context.Context, id uuid.UUID) (EmployeeSnapshot, error)
}

// Service owns the document lifecycle. Every mutation goes through Apply so
// the full set of state transitions lives in one place.
type Service struct {
	repo      Repository
	directory DirectoryService
	notifier  Notifier
	statuses  *workflows.StateMachine
	logger    *zap.Logger
}

func NewService(repo Repository, directory DirectoryService, notifier Notifier, logger *zap.Logger) *Service {
	return &Service{
		repo:      repo,
		directory: directory,
		notifier:  notifier,
		statuses:  workflows.NewDocumentStateMachine(),
		logger:    logger,
	}
}

// setStatus moves a document through the status machine; an edge the machine
// does not allow is a state conflict, not a programming error, because the
// per-action preconditions were checked against a possibly stale load.
func (s *Service) setStatus(doc *Document, to DocumentStatus) error {
	if !s.statuses.CanTransition(string(doc.Status), string(to)) {
		return fmt.Errorf("document cannot move from %s to %s: %w", doc.Status, to, ErrInvalidState)
	}
	doc.Status = to
	return nil
}

// CreateDocumentInput creates a draft; with Submit set the draft is submitted
// in the same call.
type CreateDocumentInput struct {
	Title       string
	Content     string
	DrafterID   uuid.UUID
	Submit      bool
	Assignments []StepAssignment
}

func (s *Service) CreateDocument(ctx context.Context, input CreateDocumentInput) (*Document, error) {
	if input.Title == "" {
		return nil, fmt.Errorf("title is required: %w", ErrValidation)
	}
	drafter, err := s.directory.Resolve(ctx, input.DrafterID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve drafter %s: %w", input.DrafterID, err)
	}

	doc := &Document{
		ID:          uuid.New(),
		Title:       input.Title,
		Content:     input.Content,
		Status:      DocumentDraft,
		DrafterID:   drafter.ID,
		DrafterName: drafter.Name,
	}
	if err := s.repo.CreateDocument(ctx, doc); err != nil {
		return nil, err
	}
	s.logger.Info("document created",
		zap.String("document_id", doc.ID.String()),
		zap.String("drafter_id", doc.DrafterID.String()))

	if !input.Submit {
		return doc, nil
	}

	result, err := s.Apply(ctx, SubmitAction{
		DocumentID:  doc.ID,
		ActorID:     input.DrafterID,
		Assignments: input.Assignments,
	})
	if err != nil {
		return nil, err
	}
	return result.Document, nil
}

func (s *Service) GetDocument(ctx context.Context, id uuid.UUID) (*Document, error) {
	return s.repo.GetDocumentWithSteps(ctx, id)
}

// DeleteDraft removes an unsubmitted document. Only the drafter may do so and
// only while the document is still a draft.
func (s *Service) DeleteDraft(ctx context.Context, documentID, actorID uuid.UUID) error {
	return s.repo.InTransaction(ctx, func(tx Repository) error {
		doc, err := tx.LockDocumentWithSteps(ctx, documentID)
		if err != nil {
			return err
		}
		if doc.DrafterID != actorID {
			return fmt.Errorf("only the drafter may delete a draft: %w", ErrForbidden)
		}
		if doc.Status != DocumentDraft {
			return fmt.Errorf("document is %s, not %s: %w", doc.Status, DocumentDraft, ErrInvalidState)
		}
		if err := tx.DeleteSteps(ctx, documentID); err != nil {
			return err
		}
		if err := s.setStatus(doc, DocumentCancelled); err != nil {
			return err
		}
		now := time.Now()
		doc.CancelledAt = &now
		return tx.SaveDocument(ctx, doc)
	})
}

// Apply runs one action against its document inside a transaction, with the
// document row locked so two step completions on the same document serialize.
// The type switch is exhaustive over the closed action set; an unknown action
// is a programming error.
func (s *Service) Apply(ctx context.Context, action Action) (*ActionResult, error) {
	var result *ActionResult

	err := s.repo.InTransaction(ctx, func(tx Repository) error {
		doc, err := tx.LockDocumentWithSteps(ctx, action.TargetDocument())
		if err != nil {
			return err
		}

		switch a := action.(type) {
		case SubmitAction:
			result, err = s.applySubmit(ctx, tx, doc, a)
		case CompleteAgreementAction:
			result, err = s.applyStepApproval(ctx, tx, doc, a.StepID, a.ActorID, StepAgreement)
		case ApproveStepAction:
			result, err = s.applyStepApproval(ctx, tx, doc, a.StepID, a.ActorID, StepApproval)
		case RejectStepAction:
			result, err = s.applyReject(ctx, tx, doc, a)
		case CompleteImplementationAction:
			result, err = s.applyCompleteImplementation(ctx, tx, doc, a)
		case MarkReferenceReadAction:
			result, err = s.applyMarkReferenceRead(ctx, tx, doc, a)
		case CancelSubmitAction:
			result, err = s.applyCancelSubmit(ctx, tx, doc, a)
		case CancelApprovalStepAction:
			result, err = s.applyCancelApprovalStep(ctx, tx, doc, a)
		default:
			err = fmt.Errorf("unhandled action type %T: %w", action, ErrValidation)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	s.dispatchNotifications(action.Actor(), result)
	return result, nil
}

func (s *Service) applySubmit(ctx context.Context, tx Repository, doc *Document, a SubmitAction) (*ActionResult, error) {
	if doc.DrafterID != a.ActorID {
		return nil, fmt.Errorf("only the drafter may submit: %w", ErrForbidden)
	}
	if doc.Status != DocumentDraft {
		return nil, fmt.Errorf("document is %s, not %s: %w", doc.Status, DocumentDraft, ErrInvalidState)
	}
	if len(a.Assignments) == 0 {
		return nil, fmt.Errorf("at least one step assignment is required: %w", ErrValidation)
	}

	now := time.Now()
	steps := make([]ApprovalStep, 0, len(a.Assignments))
	for i, assignment := range a.Assignments {
		if !assignment.StepType.Valid() {
			return nil, fmt.Errorf("unknown step type %q: %w", assignment.StepType, ErrValidation)
		}
		approver, err := s.directory.Resolve(ctx, assignment.ApproverID)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve approver %s: %w", assignment.ApproverID, err)
		}
		steps = append(steps, ApprovalStep{
			ID:         uuid.New(),
			DocumentID: doc.ID,
			StepOrder:  i + 1,
			StepType:   assignment.StepType,
			ApproverID: approver.ID,
			Status:     StepPending,

			ApproverName:           approver.Name,
			ApproverEmployeeNumber: approver.EmployeeNumber,
			ApproverDepartment:     approver.Department,
			ApproverPosition:       approver.Position,
			ApproverRank:           approver.Rank,
		})
	}
	if err := ValidateStepOrders(steps); err != nil {
		return nil, err
	}
	if err := ValidateChainOrder(steps); err != nil {
		return nil, err
	}

	// A withdrawn document keeps its original number on resubmission.
	if doc.DocumentNumber == nil {
		number, err := tx.NextDocumentNumber(ctx, now.Year())
		if err != nil {
			return nil, err
		}
		doc.DocumentNumber = &number
	}

	if err := tx.DeleteSteps(ctx, doc.ID); err != nil {
		return nil, err
	}
	if err := tx.CreateSteps(ctx, steps); err != nil {
		return nil, err
	}

	if err := s.setStatus(doc, DocumentPending); err != nil {
		return nil, err
	}
	doc.SubmittedAt = &now
	doc.CancelReason = nil
	doc.CancelledAt = nil
	if err := tx.SaveDocument(ctx, doc); err != nil {
		return nil, err
	}
	doc.Steps = steps

	s.logger.Info("document submitted",
		zap.String("document_id", doc.ID.String()),
		zap.Stringp("document_number", doc.DocumentNumber),
		zap.Int("steps", len(steps)))

	return &ActionResult{Transition: TransitionSubmitted, Document: doc}, nil
}

func (s *Service) findStep(doc *Document, stepID uuid.UUID) (*ApprovalStep, error) {
	for i := range doc.Steps {
		if doc.Steps[i].ID == stepID {
			return &doc.Steps[i], nil
		}
	}
	return nil, fmt.Errorf("step %s not found on document %s: %w", stepID, doc.ID, ErrNotFound)
}

// applyStepApproval handles both agreement completion and approval-step
// approval; the two differ only in which step type they accept and in the
// transition they report.
func (s *Service) applyStepApproval(ctx context.Context, tx Repository, doc *Document, stepID, actorID uuid.UUID, wantType StepType) (*ActionResult, error) {
	step, err := s.findStep(doc, stepID)
	if err != nil {
		return nil, err
	}
	if step.ApproverID != actorID {
		return nil, fmt.Errorf("step %s is not assigned to the caller: %w", stepID, ErrForbidden)
	}
	if step.StepType != wantType {
		return nil, fmt.Errorf("step %s is %s, not %s: %w", stepID, step.StepType, wantType, ErrValidation)
	}
	if doc.Status != DocumentPending {
		return nil, fmt.Errorf("document is %s, not %s: %w", doc.Status, DocumentPending, ErrInvalidState)
	}
	if step.Status != StepPending {
		return nil, fmt.Errorf("step is %s, not %s: %w", step.Status, StepPending, ErrInvalidState)
	}

	chains := SplitSteps(doc.Steps)
	state := Evaluate(chains.AgreementOrApproval, actorID)
	if !state.IsProgress || state.MyStep.ID != step.ID {
		return nil, fmt.Errorf("it is not the caller's turn: %w", ErrInvalidState)
	}

	now := time.Now()
	step.Status = StepApproved
	step.ApprovedAt = &now
	if err := tx.TransitionStep(ctx, step, StepPending); err != nil {
		return nil, err
	}

	// The document becomes APPROVED the moment the agreement/approval chain
	// is exhausted; implementation steps run against an APPROVED document.
	allApproved := true
	for _, c := range chains.AgreementOrApproval {
		if c.ID != step.ID && c.Status != StepApproved {
			allApproved = false
			break
		}
	}
	if allApproved {
		if err := s.setStatus(doc, DocumentApproved); err != nil {
			return nil, err
		}
		doc.ApprovedAt = &now
		if err := tx.SaveDocument(ctx, doc); err != nil {
			return nil, err
		}
	}

	transition := TransitionStepApproved
	if wantType == StepAgreement {
		transition = TransitionAgreementCompleted
	}

	s.logger.Info("step approved",
		zap.String("document_id", doc.ID.String()),
		zap.String("step_id", step.ID.String()),
		zap.String("step_type", string(step.StepType)),
		zap.String("document_status", string(doc.Status)))

	stepCopy := *step
	return &ActionResult{Transition: transition, Document: doc, Step: &stepCopy}, nil
}

func (s *Service) applyReject(ctx context.Context, tx Repository, doc *Document, a RejectStepAction) (*ActionResult, error) {
	comment := strings.TrimSpace(a.Comment)
	if comment == "" {
		return nil, fmt.Errorf("reject comment is required: %w", ErrValidation)
	}
	step, err := s.findStep(doc, a.StepID)
	if err != nil {
		return nil, err
	}
	if step.ApproverID != a.ActorID {
		return nil, fmt.Errorf("step %s is not assigned to the caller: %w", a.StepID, ErrForbidden)
	}
	if step.StepType != StepAgreement && step.StepType != StepApproval {
		return nil, fmt.Errorf("only agreement and approval steps can reject: %w", ErrValidation)
	}
	if doc.Status != DocumentPending {
		return nil, fmt.Errorf("document is %s, not %s: %w", doc.Status, DocumentPending, ErrInvalidState)
	}
	if step.Status != StepPending {
		return nil, fmt.Errorf("step is %s, not %s: %w", step.Status, StepPending, ErrInvalidState)
	}

	chains := SplitSteps(doc.Steps)
	state := Evaluate(chains.AgreementOrApproval, a.ActorID)
	if !state.IsProgress || state.MyStep.ID != step.ID {
		return nil, fmt.Errorf("it is not the caller's turn: %w", ErrInvalidState)
	}

	now := time.Now()
	step.Status = StepRejected
	step.RejectComment = &comment
	if err := tx.TransitionStep(ctx, step, StepPending); err != nil {
		return nil, err
	}

	// One rejection halts the whole document; later steps stay PENDING and
	// are never processed.
	if err := s.setStatus(doc, DocumentRejected); err != nil {
		return nil, err
	}
	doc.RejectedAt = &now
	if err := tx.SaveDocument(ctx, doc); err != nil {
		return nil, err
	}

	s.logger.Info("document rejected",
		zap.String("document_id", doc.ID.String()),
		zap.String("step_id", step.ID.String()))

	stepCopy := *step
	return &ActionResult{Transition: TransitionRejected, Document: doc, Step: &stepCopy, Reason: comment}, nil
}

func (s *Service) applyCompleteImplementation(ctx context.Context, tx Repository, doc *Document, a CompleteImplementationAction) (*ActionResult, error) {
	step, err := s.findStep(doc, a.StepID)
	if err != nil {
		return nil, err
	}
	if step.ApproverID != a.ActorID {
		return nil, fmt.Errorf("step %s is not assigned to the caller: %w", a.StepID, ErrForbidden)
	}
	if step.StepType != StepImplementation {
		return nil, fmt.Errorf("step %s is %s, not %s: %w", a.StepID, step.StepType, StepImplementation, ErrValidation)
	}
	if doc.Status != DocumentApproved {
		return nil, fmt.Errorf("document is %s, not %s: %w", doc.Status, DocumentApproved, ErrInvalidState)
	}
	if step.Status != StepPending {
		return nil, fmt.Errorf("step is %s, not %s: %w", step.Status, StepPending, ErrInvalidState)
	}

	now := time.Now()
	step.Status = StepApproved
	step.ApprovedAt = &now
	if err := tx.TransitionStep(ctx, step, StepPending); err != nil {
		return nil, err
	}

	allDone := true
	for _, other := range doc.Steps {
		if other.StepType == StepImplementation && other.ID != step.ID && other.Status != StepApproved {
			allDone = false
			break
		}
	}
	if allDone {
		if err := s.setStatus(doc, DocumentImplemented); err != nil {
			return nil, err
		}
		if err := tx.SaveDocument(ctx, doc); err != nil {
			return nil, err
		}
	}

	s.logger.Info("implementation step completed",
		zap.String("document_id", doc.ID.String()),
		zap.String("step_id", step.ID.String()),
		zap.Bool("all_done", allDone))

	stepCopy := *step
	return &ActionResult{Transition: TransitionImplementationCompleted, Document: doc, Step: &stepCopy}, nil
}

func (s *Service) applyMarkReferenceRead(ctx context.Context, tx Repository, doc *Document, a MarkReferenceReadAction) (*ActionResult, error) {
	step, err := s.findStep(doc, a.StepID)
	if err != nil {
		return nil, err
	}
	if step.ApproverID != a.ActorID {
		return nil, fmt.Errorf("step %s is not assigned to the caller: %w", a.StepID, ErrForbidden)
	}
	if step.StepType != StepReference {
		return nil, fmt.Errorf("step %s is %s, not %s: %w", a.StepID, step.StepType, StepReference, ErrValidation)
	}
	if step.Status != StepPending {
		return nil, fmt.Errorf("step is %s, not %s: %w", step.Status, StepPending, ErrInvalidState)
	}

	now := time.Now()
	step.Status = StepApproved
	step.ApprovedAt = &now
	if err := tx.TransitionStep(ctx, step, StepPending); err != nil {
		return nil, err
	}

	stepCopy := *step
	return &ActionResult{Transition: TransitionReferenceRead, Document: doc, Step: &stepCopy}, nil
}

func (s *Service) applyCancelSubmit(ctx context.Context, tx Repository, doc *Document, a CancelSubmitAction) (*ActionResult, error) {
	if doc.DrafterID != a.ActorID {
		return nil, fmt.Errorf("only the drafter may cancel a submission: %w", ErrForbidden)
	}
	if doc.Status != DocumentPending {
		return nil, fmt.Errorf("document is %s, not %s: %w", doc.Status, DocumentPending, ErrInvalidState)
	}
	// Withdrawal is only open while nobody but the drafter has acted on the
	// agreement/approval chain.
	for _, step := range doc.Steps {
		if step.StepType != StepAgreement && step.StepType != StepApproval {
			continue
		}
		if step.ApproverID == doc.DrafterID {
			continue
		}
		if step.Status != StepPending {
			return nil, fmt.Errorf("step %d already processed: %w", step.StepOrder, ErrInvalidState)
		}
	}

	if err := tx.DeleteSteps(ctx, doc.ID); err != nil {
		return nil, err
	}

	now := time.Now()
	if a.Discard {
		if err := s.setStatus(doc, DocumentCancelled); err != nil {
			return nil, err
		}
		doc.CancelledAt = &now
		if a.Reason != "" {
			doc.CancelReason = &a.Reason
		}
	} else {
		if err := s.setStatus(doc, DocumentDraft); err != nil {
			return nil, err
		}
		doc.SubmittedAt = nil
	}
	doc.Steps = nil
	if err := tx.SaveDocument(ctx, doc); err != nil {
		return nil, err
	}

	s.logger.Info("submission cancelled",
		zap.String("document_id", doc.ID.String()),
		zap.Bool("discard", a.Discard))

	return &ActionResult{Transition: TransitionSubmitCancelled, Document: doc, Reason: a.Reason}, nil
}

func (s *Service) applyCancelApprovalStep(ctx context.Context, tx Repository, doc *Document, a CancelApprovalStepAction) (*ActionResult, error) {
	step, err := s.findStep(doc, a.StepID)
	if err != nil {
		return nil, err
	}
	if step.ApproverID != a.ActorID {
		return nil, fmt.Errorf("step %s is not assigned to the caller: %w", a.StepID, ErrForbidden)
	}
	if step.StepType != StepAgreement && step.StepType != StepApproval {
		return nil, fmt.Errorf("only agreement and approval steps can be cancelled: %w", ErrValidation)
	}
	if doc.Status != DocumentPending && doc.Status != DocumentApproved {
		return nil, fmt.Errorf("document is %s: %w", doc.Status, ErrInvalidState)
	}
	if step.Status != StepApproved {
		return nil, fmt.Errorf("step is %s, not %s: %w", step.Status, StepApproved, ErrInvalidState)
	}

	// Nobody after the caller in the chain may have acted yet, and once the
	// document is APPROVED no implementation step may have started.
	chains := SplitSteps(doc.Steps)
	for _, other := range chains.AgreementOrApproval {
		if other.StepOrder > step.StepOrder && other.Status != StepPending {
			return nil, fmt.Errorf("a later step already processed: %w", ErrInvalidState)
		}
	}
	if doc.Status == DocumentApproved {
		for _, impl := range chains.Implementation {
			if impl.Status != StepPending {
				return nil, fmt.Errorf("implementation already started: %w", ErrInvalidState)
			}
		}
	}

	step.Status = StepPending
	step.ApprovedAt = nil
	if err := tx.TransitionStep(ctx, step, StepApproved); err != nil {
		return nil, err
	}

	if doc.Status == DocumentApproved {
		if err := s.setStatus(doc, DocumentPending); err != nil {
			return nil, err
		}
		doc.ApprovedAt = nil
		if err := tx.SaveDocument(ctx, doc); err != nil {
			return nil, err
		}
	}

	// The first step belonging to the drafter means cancelling it unwinds the
	// submission itself; the caller decides whether to follow through.
	requiresCancelSubmit := step.StepOrder == 1 && step.ApproverID == doc.DrafterID

	s.logger.Info("approval cancelled",
		zap.String("document_id", doc.ID.String()),
		zap.String("step_id", step.ID.String()),
		zap.Bool("requires_cancel_submit", requiresCancelSubmit))

	stepCopy := *step
	return &ActionResult{
		Transition:           TransitionApprovalCancelled,
		Document:             doc,
		Step:                 &stepCopy,
		RequiresCancelSubmit: requiresCancelSubmit,
	}, nil
}

// dispatchNotifications runs the trigger policy and hands the decisions to
// the notifier after the transaction committed. Failures are logged and
// swallowed; the action already succeeded.
func (s *Service) dispatchNotifications(actorID uuid.UUID, result *ActionResult) {
	if result == nil || s.notifier == nil {
		return
	}
	notifications := DecideNotifications(result, result.Document.Steps)
	if len(notifications) == 0 {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		sender := ""
		if snap, err := s.directory.Resolve(ctx, actorID); err == nil {
			sender = snap.EmployeeNumber
		} else {
			s.logger.Warn("failed to resolve notification sender",
				zap.String("actor_id", actorID.String()), zap.Error(err))
		}

		for _, n := range notifications {
			if err := s.notifier.Notify(ctx, sender, n); err != nil {
				s.logger.Error("failed to deliver notification",
					zap.String("document_id", result.Document.ID.String()),
					zap.String("title", n.Title),
					zap.Error(err))
			}
		}
	}()
}

// ActionButtonsFor loads a document and computes the viewer's buttons.
func (s *Service) ActionButtonsFor(ctx context.Context, documentID, viewerID uuid.UUID) ([]ActionButton, error) {
	doc, err := s.repo.GetDocumentWithSteps(ctx, documentID)
	if err != nil {
		return nil, err
	}
	return ActionButtons(doc, viewerID), nil
}

// ListInbox pages through the viewer's documents under one filter.
func (s *Service) ListInbox(ctx context.Context, filter FilterType, viewerID uuid.UUID, opts FilterOptions, page, limit int) ([]Document, int64, error) {
	return s.repo.ListInbox(ctx, filter, viewerID, opts, page, limit)
}

// InboxStatistics returns per-filter document counts for the viewer's
// dashboard.
func (s *Service) InboxStatistics(ctx context.Context, viewerID uuid.UUID) (map[FilterType]int64, error) {
	stats := make(map[FilterType]int64, len(AllFilterTypes))
	for _, filter := range AllFilterTypes {
		count, err := s.repo.CountInbox(ctx, filter, viewerID)
		if err != nil {
			return nil, err
		}
		stats[filter] = count
	}
	return stats, nil
}

// MyPendingByMonth lists documents submitted in the given month that are
// currently waiting on the viewer.
func (s *Service) MyPendingByMonth(ctx context.Context, viewerID uuid.UUID, year int, month time.Month) ([]Document, error) {
	return s.repo.ListMyTurnByMonth(ctx, viewerID, year, month)
}
