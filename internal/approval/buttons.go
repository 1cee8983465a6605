package approval

import "github.com/google/uuid"

// ActionButton is a UI action the detail view may expose for a viewer.
type ActionButton string

const (
	ButtonDraft          ActionButton = "DRAFT"
	ButtonModify         ActionButton = "MODIFY"
	ButtonStepPending    ActionButton = "STEP_PENDING"
	ButtonStepApproved   ActionButton = "STEP_APPROVED"
	ButtonImplementation ActionButton = "IMPLEMENTATION"
)

// ActionButtons computes the buttons to expose for a (document, viewer) pair.
// Rules are evaluated independently; a document can expose several at once.
// An absent viewer gets none.
func ActionButtons(doc *Document, viewerID uuid.UUID) []ActionButton {
	if viewerID == uuid.Nil {
		return nil
	}

	chains := SplitSteps(doc.Steps)
	isDrafter := doc.DrafterID == viewerID
	agreementApproval := Evaluate(chains.AgreementOrApproval, viewerID)

	var buttons []ActionButton

	// Drafter of an unsubmitted document can delete or submit it.
	if doc.Status == DocumentDraft && isDrafter {
		buttons = append(buttons, ButtonDraft)
	}

	// Modify: drafter while drafting, or an approver whose turn is current
	// or just passed while the document is still in flight.
	if doc.Status == DocumentDraft && isDrafter {
		buttons = append(buttons, ButtonModify)
	} else if doc.Status == DocumentPending && (agreementApproval.IsProgress || agreementApproval.IsComplete) {
		buttons = append(buttons, ButtonModify)
	}

	// Approve/reject: it is the viewer's turn in the agreement/approval chain.
	if doc.Status == DocumentPending && agreementApproval.IsProgress {
		buttons = append(buttons, ButtonStepPending)
	}

	// Cancel approval: the viewer approved and nobody after them has yet.
	if (doc.Status == DocumentPending || doc.Status == DocumentApproved) && agreementApproval.IsComplete {
		buttons = append(buttons, ButtonStepApproved)
	}

	// Complete implementation: approved document with a pending
	// implementation step assigned to the viewer.
	if doc.Status == DocumentApproved {
		for _, s := range chains.Implementation {
			if s.ApproverID == viewerID && s.Status == StepPending {
				buttons = append(buttons, ButtonImplementation)
				break
			}
		}
	}

	return buttons
}
