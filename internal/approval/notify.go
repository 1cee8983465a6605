package approval

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Notification is one recipient-resolved message the trigger policy decided
// to send. Delivery is the notifier collaborator's problem.
type Notification struct {
	Recipients []uuid.UUID
	Title      string
	Content    string
	LinkURL    string
	Metadata   map[string]any
}

// Notifier delivers notifications. Implementations are best-effort; a
// delivery failure never propagates back into the action that triggered it.
type Notifier interface {
	Notify(ctx context.Context, senderEmployeeNumber string, n Notification) error
}

func documentLink(docID uuid.UUID) string {
	return fmt.Sprintf("/approval/document/%s", docID)
}

func stepTypeText(t StepType) string {
	switch t {
	case StepAgreement:
		return "agreement"
	case StepApproval:
		return "approval"
	case StepImplementation:
		return "implementation"
	case StepReference:
		return "reference"
	default:
		return "processing"
	}
}

func stepRequestNotification(doc *Document, steps []ApprovalStep) Notification {
	recipients := make([]uuid.UUID, 0, len(steps))
	stepIDs := make([]string, 0, len(steps))
	for _, s := range steps {
		recipients = append(recipients, s.ApproverID)
		stepIDs = append(stepIDs, s.ID.String())
	}
	text := stepTypeText(steps[0].StepType)
	return Notification{
		Recipients: recipients,
		Title:      fmt.Sprintf("[%s] %s", text, doc.Title),
		Content:    fmt.Sprintf("A document drafted by %s is awaiting your %s.", doc.DrafterName, text),
		LinkURL:    documentLink(doc.ID),
		Metadata: map[string]any{
			"document_id": doc.ID.String(),
			"step_type":   string(steps[0].StepType),
			"step_ids":    stepIDs,
		},
	}
}

func referenceNotification(doc *Document, steps []ApprovalStep) (Notification, bool) {
	var recipients []uuid.UUID
	for _, s := range steps {
		if s.StepType == StepReference {
			recipients = append(recipients, s.ApproverID)
		}
	}
	if len(recipients) == 0 {
		return Notification{}, false
	}
	return Notification{
		Recipients: recipients,
		Title:      fmt.Sprintf("[reference] %s", doc.Title),
		Content:    fmt.Sprintf("A document drafted by %s has been fully approved.", doc.DrafterName),
		LinkURL:    documentLink(doc.ID),
		Metadata: map[string]any{
			"document_id": doc.ID.String(),
			"status":      string(doc.Status),
		},
	}, true
}

func drafterNotification(doc *Document, status DocumentStatus, reason string) Notification {
	var title, content string
	switch status {
	case DocumentRejected:
		title = fmt.Sprintf("[rejected] %s", doc.Title)
		if reason == "" {
			reason = "no reason given"
		}
		content = fmt.Sprintf("Your document was rejected.\nReason: %s", reason)
	case DocumentApproved:
		title = fmt.Sprintf("[approved] %s", doc.Title)
		content = "Your document has completed approval."
	case DocumentImplemented:
		title = fmt.Sprintf("[implemented] %s", doc.Title)
		content = "Your document has completed implementation."
	default:
		title = fmt.Sprintf("[update] %s", doc.Title)
		content = "Your document status has changed."
	}
	md := map[string]any{
		"document_id": doc.ID.String(),
		"status":      string(status),
	}
	if reason != "" {
		md["reason"] = reason
	}
	return Notification{
		Recipients: []uuid.UUID{doc.DrafterID},
		Title:      title,
		Content:    content,
		LinkURL:    documentLink(doc.ID),
		Metadata:   md,
	}
}

// nextPendingStep finds the step to notify after an approval at
// currentStepOrder. Approval successors are only eligible once every
// agreement step is approved; implementation steps only once every approval
// step is. An approval-step completion therefore never skips ahead past an
// unfinished agreement chain.
func nextPendingStep(steps []ApprovalStep, currentStepOrder int) *ApprovalStep {
	var agreements, approvals []ApprovalStep
	for _, s := range steps {
		switch s.StepType {
		case StepAgreement:
			agreements = append(agreements, s)
		case StepApproval:
			approvals = append(approvals, s)
		}
	}

	allAgreementsApproved := true
	for _, s := range agreements {
		if s.Status != StepApproved {
			allAgreementsApproved = false
			break
		}
	}
	allApprovalsApproved := true
	for _, s := range approvals {
		if s.Status != StepApproved {
			allApprovalsApproved = false
			break
		}
	}

	if !allApprovalsApproved && allAgreementsApproved {
		for _, s := range sortByStepOrder(approvals) {
			if s.StepOrder > currentStepOrder && s.Status == StepPending {
				next := s
				return &next
			}
		}
	}

	if allApprovalsApproved {
		for _, s := range sortByStepOrder(steps) {
			if s.StepType == StepImplementation && s.Status == StepPending {
				next := s
				return &next
			}
		}
	}

	return nil
}

// DecideNotifications is the pure trigger policy: given the transition an
// action just produced and the post-mutation step list, it decides who is
// notified. An empty result is a normal outcome, not an error.
func DecideNotifications(result *ActionResult, steps []ApprovalStep) []Notification {
	doc := result.Document

	switch result.Transition {
	case TransitionSubmitted:
		var agreements []ApprovalStep
		for _, s := range steps {
			if s.StepType == StepAgreement {
				agreements = append(agreements, s)
			}
		}
		if len(agreements) > 0 {
			return []Notification{stepRequestNotification(doc, agreements)}
		}

		var firstApproval *ApprovalStep
		for _, s := range sortByStepOrder(steps) {
			if s.StepType == StepApproval && s.Status == StepPending {
				first := s
				firstApproval = &first
				break
			}
		}
		if firstApproval != nil {
			if firstApproval.ApproverID == doc.DrafterID {
				return nil
			}
			return []Notification{stepRequestNotification(doc, []ApprovalStep{*firstApproval})}
		}

		// No approvers at all: implementation steps become the first
		// notified stage. Nobody left to notify is a valid terminal branch.
		var implementations []ApprovalStep
		for _, s := range steps {
			if s.StepType == StepImplementation && s.Status == StepPending {
				implementations = append(implementations, s)
			}
		}
		if len(implementations) > 0 {
			return []Notification{stepRequestNotification(doc, implementations)}
		}
		return nil

	case TransitionAgreementCompleted:
		// Only once the whole agreement stage is done does the first
		// approver hear about it; completing one of several agreements in
		// the middle notifies nobody.
		for _, s := range steps {
			if s.StepType == StepAgreement && s.Status != StepApproved {
				return nil
			}
		}
		for _, s := range sortByStepOrder(steps) {
			if s.StepType == StepApproval && s.Status == StepPending {
				return []Notification{stepRequestNotification(doc, []ApprovalStep{s})}
			}
		}
		// Agreements-only chain: finishing the last agreement approves the
		// document outright.
		if doc.Status == DocumentApproved {
			notifications := []Notification{}
			if ref, ok := referenceNotification(doc, steps); ok {
				notifications = append(notifications, ref)
			}
			notifications = append(notifications, drafterNotification(doc, DocumentApproved, ""))
			return notifications
		}
		return nil

	case TransitionStepApproved:
		currentOrder := 0
		if result.Step != nil {
			currentOrder = result.Step.StepOrder
		}
		next := nextPendingStep(steps, currentOrder)
		if next == nil {
			notifications := []Notification{}
			if ref, ok := referenceNotification(doc, steps); ok {
				notifications = append(notifications, ref)
			}
			notifications = append(notifications, drafterNotification(doc, DocumentApproved, ""))
			return notifications
		}
		if next.StepType == StepImplementation {
			var implementations []ApprovalStep
			for _, s := range steps {
				if s.StepType == StepImplementation && s.Status == StepPending {
					implementations = append(implementations, s)
				}
			}
			return []Notification{stepRequestNotification(doc, implementations)}
		}
		return []Notification{stepRequestNotification(doc, []ApprovalStep{*next})}

	case TransitionRejected:
		return []Notification{drafterNotification(doc, DocumentRejected, result.Reason)}

	case TransitionImplementationCompleted:
		if doc.Status != DocumentImplemented {
			return nil
		}
		notifications := []Notification{}
		if ref, ok := referenceNotification(doc, steps); ok {
			notifications = append(notifications, ref)
		}
		notifications = append(notifications, drafterNotification(doc, DocumentImplemented, ""))
		return notifications

	case TransitionReferenceRead, TransitionSubmitCancelled, TransitionApprovalCancelled:
		return nil

	default:
		return nil
	}
}
