package approval

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

type inboxFixture struct {
	drafter     uuid.UUID
	agreement   uuid.UUID
	approver1   uuid.UUID
	approver2   uuid.UUID
	implementer uuid.UUID
	reference   uuid.UUID
	outsider    uuid.UUID
}

func newInboxFixture() inboxFixture {
	return inboxFixture{
		drafter:     uuid.New(),
		agreement:   uuid.New(),
		approver1:   uuid.New(),
		approver2:   uuid.New(),
		implementer: uuid.New(),
		reference:   uuid.New(),
		outsider:    uuid.New(),
	}
}

// fullChainDoc builds a PENDING document with one step of every type.
func (f inboxFixture) fullChainDoc() *Document {
	doc := &Document{
		ID:        uuid.New(),
		Title:     "office relocation",
		Status:    DocumentPending,
		DrafterID: f.drafter,
	}
	doc.Steps = []ApprovalStep{
		makeStep(1, StepAgreement, f.agreement, StepPending),
		makeStep(2, StepApproval, f.approver1, StepPending),
		makeStep(3, StepApproval, f.approver2, StepPending),
		makeStep(4, StepImplementation, f.implementer, StepPending),
		makeStep(5, StepReference, f.reference, StepPending),
	}
	return doc
}

func TestMatchesFilterDraft(t *testing.T) {
	f := newInboxFixture()
	doc := f.fullChainDoc()
	doc.Status = DocumentDraft

	assert.True(t, MatchesFilter(doc, FilterDraft, f.drafter, FilterOptions{}))
	assert.False(t, MatchesFilter(doc, FilterDraft, f.approver1, FilterOptions{}))

	doc.Status = DocumentPending
	assert.False(t, MatchesFilter(doc, FilterDraft, f.drafter, FilterOptions{}))
}

func TestMatchesFilterPending(t *testing.T) {
	f := newInboxFixture()
	doc := f.fullChainDoc()

	assert.True(t, MatchesFilter(doc, FilterPending, f.drafter, FilterOptions{}))
	assert.False(t, MatchesFilter(doc, FilterPending, f.approver1, FilterOptions{}))

	// Status narrowing.
	opts := FilterOptions{PendingStatusFilter: DocumentApproved}
	assert.False(t, MatchesFilter(doc, FilterPending, f.drafter, opts))
	doc.Status = DocumentApproved
	assert.True(t, MatchesFilter(doc, FilterPending, f.drafter, opts))

	// Drafts never show in the pending box.
	doc.Status = DocumentDraft
	assert.False(t, MatchesFilter(doc, FilterPending, f.drafter, FilterOptions{}))
}

func TestMatchesFilterPendingApprovalFollowsTurn(t *testing.T) {
	f := newInboxFixture()
	doc := f.fullChainDoc()

	// Agreement first: only the agreement holder is on turn.
	assert.False(t, MatchesFilter(doc, FilterPendingApproval, f.approver1, FilterOptions{}))
	assert.True(t, MatchesFilter(doc, FilterPendingApproval, f.agreement, FilterOptions{}))

	doc.Steps[0].Status = StepApproved
	assert.True(t, MatchesFilter(doc, FilterPendingApproval, f.approver1, FilterOptions{}))
	assert.False(t, MatchesFilter(doc, FilterPendingApproval, f.approver2, FilterOptions{}))

	doc.Steps[1].Status = StepApproved
	assert.False(t, MatchesFilter(doc, FilterPendingApproval, f.approver1, FilterOptions{}))
	assert.True(t, MatchesFilter(doc, FilterPendingApproval, f.approver2, FilterOptions{}))

	// A rejected predecessor blocks the turn even while the document status
	// has not been refreshed yet.
	doc.Steps[1].Status = StepRejected
	assert.False(t, MatchesFilter(doc, FilterPendingApproval, f.approver2, FilterOptions{}))
}

func TestMatchesFilterPendingApprovalExcludesDrafterAndNonPending(t *testing.T) {
	f := newInboxFixture()
	doc := f.fullChainDoc()

	assert.False(t, MatchesFilter(doc, FilterPendingApproval, f.drafter, FilterOptions{}))

	doc.Steps[0].Status = StepApproved
	doc.Status = DocumentApproved
	assert.False(t, MatchesFilter(doc, FilterPendingApproval, f.approver1, FilterOptions{}))
}

func TestMatchesFilterReceived(t *testing.T) {
	f := newInboxFixture()
	doc := f.fullChainDoc()

	// approver2 is behind a pending step: received but not actionable.
	assert.True(t, MatchesFilter(doc, FilterReceived, f.approver2, FilterOptions{}))
	// approver1 is behind the agreement step, also waiting.
	assert.True(t, MatchesFilter(doc, FilterReceived, f.approver1, FilterOptions{}))
	// The agreement holder only counts when agreements are included.
	assert.False(t, MatchesFilter(doc, FilterReceived, f.agreement, FilterOptions{}))
	assert.False(t, MatchesFilter(doc, FilterReceived, f.agreement, FilterOptions{IncludeAgreementReceived: true}))

	// After approving, the approver keeps the document in received.
	doc.Steps[0].Status = StepApproved
	doc.Steps[1].Status = StepApproved
	assert.True(t, MatchesFilter(doc, FilterReceived, f.approver1, FilterOptions{}))
	assert.True(t, MatchesFilter(doc, FilterReceived, f.agreement, FilterOptions{IncludeAgreementReceived: true}))

	assert.False(t, MatchesFilter(doc, FilterReceived, f.outsider, FilterOptions{}))
	assert.False(t, MatchesFilter(doc, FilterReceived, f.drafter, FilterOptions{}))
}

func TestMatchesFilterPendingAgreement(t *testing.T) {
	f := newInboxFixture()
	doc := f.fullChainDoc()

	assert.True(t, MatchesFilter(doc, FilterPendingAgreement, f.agreement, FilterOptions{}))
	assert.True(t, MatchesFilter(doc, FilterPendingAgreement, f.agreement,
		FilterOptions{AgreementStepStatus: AgreementPending}))
	assert.False(t, MatchesFilter(doc, FilterPendingAgreement, f.agreement,
		FilterOptions{AgreementStepStatus: AgreementScheduled}))
	assert.False(t, MatchesFilter(doc, FilterPendingAgreement, f.approver1, FilterOptions{}))

	doc.Steps[0].Status = StepApproved
	assert.True(t, MatchesFilter(doc, FilterPendingAgreement, f.agreement,
		FilterOptions{AgreementStepStatus: AgreementCompleted}))
	assert.False(t, MatchesFilter(doc, FilterPendingAgreement, f.agreement,
		FilterOptions{AgreementStepStatus: AgreementPending}))
}

func TestMatchesFilterImplementation(t *testing.T) {
	f := newInboxFixture()
	doc := f.fullChainDoc()

	// Not approved yet: nothing to implement.
	assert.False(t, MatchesFilter(doc, FilterImplementation, f.implementer, FilterOptions{}))

	for i := 0; i < 3; i++ {
		doc.Steps[i].Status = StepApproved
	}
	doc.Status = DocumentApproved
	assert.True(t, MatchesFilter(doc, FilterImplementation, f.implementer, FilterOptions{}))
	assert.False(t, MatchesFilter(doc, FilterImplementation, f.approver1, FilterOptions{}))

	doc.Steps[3].Status = StepApproved
	assert.False(t, MatchesFilter(doc, FilterImplementation, f.implementer, FilterOptions{}))
}

func TestMatchesFilterApproved(t *testing.T) {
	f := newInboxFixture()
	doc := f.fullChainDoc()
	for i := 0; i < 3; i++ {
		doc.Steps[i].Status = StepApproved
	}
	doc.Status = DocumentApproved

	// Drafter sees it as their own approved draft.
	assert.True(t, MatchesFilter(doc, FilterApproved, f.drafter, FilterOptions{}))
	assert.True(t, MatchesFilter(doc, FilterApproved, f.drafter,
		FilterOptions{DrafterFilter: DrafterMyDraft}))
	assert.False(t, MatchesFilter(doc, FilterApproved, f.drafter,
		FilterOptions{DrafterFilter: DrafterParticipated}))

	// Approvers see it as participated.
	assert.True(t, MatchesFilter(doc, FilterApproved, f.approver1, FilterOptions{}))
	assert.True(t, MatchesFilter(doc, FilterApproved, f.approver1,
		FilterOptions{DrafterFilter: DrafterParticipated}))
	assert.False(t, MatchesFilter(doc, FilterApproved, f.approver1,
		FilterOptions{DrafterFilter: DrafterMyDraft}))

	// Reference recipients did not participate in the decision.
	assert.False(t, MatchesFilter(doc, FilterApproved, f.reference, FilterOptions{}))
}

func TestMatchesFilterRejected(t *testing.T) {
	f := newInboxFixture()
	doc := f.fullChainDoc()
	doc.Steps[0].Status = StepApproved
	doc.Steps[1].Status = StepRejected
	doc.Status = DocumentRejected

	assert.True(t, MatchesFilter(doc, FilterRejected, f.approver1, FilterOptions{}))
	assert.True(t, MatchesFilter(doc, FilterRejected, f.agreement, FilterOptions{}))
	// The drafter tracks rejections through their own pending box instead.
	assert.False(t, MatchesFilter(doc, FilterRejected, f.drafter, FilterOptions{}))
	assert.False(t, MatchesFilter(doc, FilterRejected, f.reference, FilterOptions{}))
}

func TestMatchesFilterReceivedReference(t *testing.T) {
	f := newInboxFixture()
	doc := f.fullChainDoc()

	assert.True(t, MatchesFilter(doc, FilterReceivedReference, f.reference, FilterOptions{}))
	assert.True(t, MatchesFilter(doc, FilterReceivedReference, f.reference,
		FilterOptions{ReferenceReadStatus: ReferenceUnread}))
	assert.False(t, MatchesFilter(doc, FilterReceivedReference, f.reference,
		FilterOptions{ReferenceReadStatus: ReferenceRead}))

	doc.Steps[4].Status = StepApproved
	assert.True(t, MatchesFilter(doc, FilterReceivedReference, f.reference,
		FilterOptions{ReferenceReadStatus: ReferenceRead}))
	assert.False(t, MatchesFilter(doc, FilterReceivedReference, f.reference,
		FilterOptions{ReferenceReadStatus: ReferenceUnread}))

	assert.False(t, MatchesFilter(doc, FilterReceivedReference, f.approver1, FilterOptions{}))
}

func TestMatchesFilterAll(t *testing.T) {
	f := newInboxFixture()
	doc := f.fullChainDoc()

	assert.True(t, MatchesFilter(doc, FilterAll, f.drafter, FilterOptions{}))
	assert.True(t, MatchesFilter(doc, FilterAll, f.approver2, FilterOptions{}))
	assert.True(t, MatchesFilter(doc, FilterAll, f.reference, FilterOptions{}))
	assert.False(t, MatchesFilter(doc, FilterAll, f.outsider, FilterOptions{}))

	// Other people's drafts are invisible even to assigned approvers.
	doc.Status = DocumentDraft
	assert.True(t, MatchesFilter(doc, FilterAll, f.drafter, FilterOptions{}))
	assert.False(t, MatchesFilter(doc, FilterAll, f.approver1, FilterOptions{}))
}

// A viewer sees the approve/reject button exactly when the document sits in
// their PENDING_APPROVAL inbox, for every prefix of approvals on the chain.
func TestStepPendingButtonMatchesPendingApprovalInbox(t *testing.T) {
	f := newInboxFixture()
	participants := []uuid.UUID{f.agreement, f.approver1, f.approver2, f.implementer, f.reference}

	for approvedPrefix := 0; approvedPrefix <= 3; approvedPrefix++ {
		doc := f.fullChainDoc()
		for i := 0; i < approvedPrefix; i++ {
			doc.Steps[i].Status = StepApproved
		}

		for _, viewer := range participants {
			hasButton := false
			for _, b := range ActionButtons(doc, viewer) {
				if b == ButtonStepPending {
					hasButton = true
					break
				}
			}
			inInbox := MatchesFilter(doc, FilterPendingApproval, viewer, FilterOptions{})
			assert.Equal(t, inInbox, hasButton,
				"prefix %d viewer mismatch", approvedPrefix)
		}
	}
}

// Whoever PENDING_APPROVAL selects must be exactly the approver whose turn
// Evaluate reports, for every prefix of approvals on the chain.
func TestPendingApprovalMatchesEvaluatorAcrossChain(t *testing.T) {
	f := newInboxFixture()
	participants := []uuid.UUID{f.agreement, f.approver1, f.approver2}

	for approvedPrefix := 0; approvedPrefix <= 3; approvedPrefix++ {
		doc := f.fullChainDoc()
		for i := 0; i < approvedPrefix; i++ {
			doc.Steps[i].Status = StepApproved
		}
		chains := SplitSteps(doc.Steps)

		for _, viewer := range participants {
			fromFilter := MatchesFilter(doc, FilterPendingApproval, viewer, FilterOptions{})
			fromEvaluator := Evaluate(chains.AgreementOrApproval, viewer).IsProgress
			assert.Equal(t, fromEvaluator, fromFilter,
				"prefix %d viewer mismatch", approvedPrefix)
		}
	}
}
