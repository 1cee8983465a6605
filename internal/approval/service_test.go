package approval

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockRepository is a mock implementation of the Repository interface
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) CreateDocument(ctx context.Context, doc *Document) error {
	args := m.Called(ctx, doc)
	return args.Error(0)
}

func (m *MockRepository) GetDocumentWithSteps(ctx context.Context, id uuid.UUID) (*Document, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Document), args.Error(1)
}

func (m *MockRepository) LockDocumentWithSteps(ctx context.Context, id uuid.UUID) (*Document, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Document), args.Error(1)
}

func (m *MockRepository) SaveDocument(ctx context.Context, doc *Document) error {
	args := m.Called(ctx, doc)
	return args.Error(0)
}

func (m *MockRepository) CreateSteps(ctx context.Context, steps []ApprovalStep) error {
	args := m.Called(ctx, steps)
	return args.Error(0)
}

func (m *MockRepository) DeleteSteps(ctx context.Context, documentID uuid.UUID) error {
	args := m.Called(ctx, documentID)
	return args.Error(0)
}

func (m *MockRepository) TransitionStep(ctx context.Context, step *ApprovalStep, expected StepStatus) error {
	args := m.Called(ctx, step, expected)
	return args.Error(0)
}

func (m *MockRepository) NextDocumentNumber(ctx context.Context, year int) (string, error) {
	args := m.Called(ctx, year)
	return args.String(0), args.Error(1)
}

func (m *MockRepository) ListInbox(ctx context.Context, filter FilterType, viewerID uuid.UUID, opts FilterOptions, page, limit int) ([]Document, int64, error) {
	args := m.Called(ctx, filter, viewerID, opts, page, limit)
	return args.Get(0).([]Document), args.Get(1).(int64), args.Error(2)
}

func (m *MockRepository) CountInbox(ctx context.Context, filter FilterType, viewerID uuid.UUID) (int64, error) {
	args := m.Called(ctx, filter, viewerID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRepository) ListMyTurnByMonth(ctx context.Context, viewerID uuid.UUID, year int, month time.Month) ([]Document, error) {
	args := m.Called(ctx, viewerID, year, month)
	return args.Get(0).([]Document), args.Error(1)
}

func (m *MockRepository) InTransaction(ctx context.Context, fn func(Repository) error) error {
	args := m.Called(ctx, fn)
	if args.Error(0) != nil {
		return args.Error(0)
	}
	return fn(m)
}

// MockDirectory is a mock implementation of DirectoryService
type MockDirectory struct {
	mock.Mock
}

func (m *MockDirectory) Resolve(ctx context.Context, id uuid.UUID) (EmployeeSnapshot, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(EmployeeSnapshot), args.Error(1)
}

// recordingNotifier captures deliveries on a channel so tests can wait for
// the post-commit goroutine.
type recordingNotifier struct {
	deliveries chan Notification
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{deliveries: make(chan Notification, 16)}
}

func (n *recordingNotifier) Notify(ctx context.Context, sender string, notification Notification) error {
	n.deliveries <- notification
	return nil
}

func (n *recordingNotifier) waitForDelivery(t *testing.T) Notification {
	t.Helper()
	select {
	case d := <-n.deliveries:
		return d
	case <-time.After(2 * time.Second):
		t.Fatal("expected a notification delivery")
		return Notification{}
	}
}

func (n *recordingNotifier) assertNoDelivery(t *testing.T) {
	t.Helper()
	select {
	case d := <-n.deliveries:
		t.Fatalf("unexpected delivery: %s", d.Title)
	case <-time.After(100 * time.Millisecond):
	}
}

func snapshotFor(id uuid.UUID, name string) EmployeeSnapshot {
	return EmployeeSnapshot{
		ID:             id,
		Name:           name,
		EmployeeNumber: "E-" + id.String()[:8],
		Department:     "Operations",
		Position:       "Manager",
	}
}

func newTestService(repo *MockRepository, dir *MockDirectory, notifier Notifier) *Service {
	return NewService(repo, dir, notifier, zap.NewNop())
}

func passthroughTransaction(repo *MockRepository) {
	repo.On("InTransaction", mock.Anything, mock.Anything).Return(nil)
}

func TestSubmitAssignsNumberAndSteps(t *testing.T) {
	repo := new(MockRepository)
	dir := new(MockDirectory)
	notifier := newRecordingNotifier()
	service := newTestService(repo, dir, notifier)

	drafter, agreement, approver := uuid.New(), uuid.New(), uuid.New()
	doc := &Document{ID: uuid.New(), Title: "travel request", Status: DocumentDraft, DrafterID: drafter}

	passthroughTransaction(repo)
	repo.On("LockDocumentWithSteps", mock.Anything, doc.ID).Return(doc, nil)
	repo.On("NextDocumentNumber", mock.Anything, mock.Anything).Return("DOC-2026-000001", nil)
	repo.On("DeleteSteps", mock.Anything, doc.ID).Return(nil)
	repo.On("CreateSteps", mock.Anything, mock.Anything).Return(nil)
	repo.On("SaveDocument", mock.Anything, doc).Return(nil)
	dir.On("Resolve", mock.Anything, agreement).Return(snapshotFor(agreement, "Park"), nil)
	dir.On("Resolve", mock.Anything, approver).Return(snapshotFor(approver, "Lee"), nil)
	dir.On("Resolve", mock.Anything, drafter).Return(snapshotFor(drafter, "Kim"), nil)

	result, err := service.Apply(context.Background(), SubmitAction{
		DocumentID: doc.ID,
		ActorID:    drafter,
		Assignments: []StepAssignment{
			{ApproverID: agreement, StepType: StepAgreement},
			{ApproverID: approver, StepType: StepApproval},
		},
	})

	require.NoError(t, err)
	assert.Equal(t, TransitionSubmitted, result.Transition)
	assert.Equal(t, DocumentPending, doc.Status)
	require.NotNil(t, doc.DocumentNumber)
	assert.Equal(t, "DOC-2026-000001", *doc.DocumentNumber)
	require.Len(t, doc.Steps, 2)
	assert.Equal(t, 1, doc.Steps[0].StepOrder)
	assert.Equal(t, "Park", doc.Steps[0].ApproverName)
	assert.NotNil(t, doc.SubmittedAt)

	// Agreement steps get the submit notification.
	delivery := notifier.waitForDelivery(t)
	assert.Equal(t, []uuid.UUID{agreement}, delivery.Recipients)
}

func TestSubmitKeepsExistingNumber(t *testing.T) {
	repo := new(MockRepository)
	dir := new(MockDirectory)
	service := newTestService(repo, dir, newRecordingNotifier())

	drafter, approver := uuid.New(), uuid.New()
	number := "DOC-2025-000042"
	doc := &Document{ID: uuid.New(), Title: "resubmitted", Status: DocumentDraft, DrafterID: drafter, DocumentNumber: &number}

	passthroughTransaction(repo)
	repo.On("LockDocumentWithSteps", mock.Anything, doc.ID).Return(doc, nil)
	repo.On("DeleteSteps", mock.Anything, doc.ID).Return(nil)
	repo.On("CreateSteps", mock.Anything, mock.Anything).Return(nil)
	repo.On("SaveDocument", mock.Anything, doc).Return(nil)
	dir.On("Resolve", mock.Anything, mock.Anything).Return(snapshotFor(approver, "Lee"), nil)

	_, err := service.Apply(context.Background(), SubmitAction{
		DocumentID:  doc.ID,
		ActorID:     drafter,
		Assignments: []StepAssignment{{ApproverID: approver, StepType: StepApproval}},
	})

	require.NoError(t, err)
	assert.Equal(t, "DOC-2025-000042", *doc.DocumentNumber)
	repo.AssertNotCalled(t, "NextDocumentNumber", mock.Anything, mock.Anything)
}

func TestSubmitRejectsNonDrafter(t *testing.T) {
	repo := new(MockRepository)
	service := newTestService(repo, new(MockDirectory), newRecordingNotifier())

	doc := &Document{ID: uuid.New(), Status: DocumentDraft, DrafterID: uuid.New()}
	passthroughTransaction(repo)
	repo.On("LockDocumentWithSteps", mock.Anything, doc.ID).Return(doc, nil)

	_, err := service.Apply(context.Background(), SubmitAction{
		DocumentID:  doc.ID,
		ActorID:     uuid.New(),
		Assignments: []StepAssignment{{ApproverID: uuid.New(), StepType: StepApproval}},
	})

	assert.ErrorIs(t, err, ErrForbidden)
}

func TestSubmitRejectsUnknownStepType(t *testing.T) {
	repo := new(MockRepository)
	service := newTestService(repo, new(MockDirectory), newRecordingNotifier())

	drafter := uuid.New()
	doc := &Document{ID: uuid.New(), Status: DocumentDraft, DrafterID: drafter}

	passthroughTransaction(repo)
	repo.On("LockDocumentWithSteps", mock.Anything, doc.ID).Return(doc, nil)

	// A made-up step type would land in no chain and could never be acted
	// on; it must fail before anything is written.
	_, err := service.Apply(context.Background(), SubmitAction{
		DocumentID:  doc.ID,
		ActorID:     drafter,
		Assignments: []StepAssignment{{ApproverID: uuid.New(), StepType: StepType("BANANA")}},
	})

	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, DocumentDraft, doc.Status)
	repo.AssertNotCalled(t, "CreateSteps", mock.Anything, mock.Anything)
	repo.AssertNotCalled(t, "SaveDocument", mock.Anything, mock.Anything)
}

func TestSubmitRejectsChainOrderViolation(t *testing.T) {
	repo := new(MockRepository)
	dir := new(MockDirectory)
	service := newTestService(repo, dir, newRecordingNotifier())

	drafter := uuid.New()
	impl, approver := uuid.New(), uuid.New()
	doc := &Document{ID: uuid.New(), Status: DocumentDraft, DrafterID: drafter}

	passthroughTransaction(repo)
	repo.On("LockDocumentWithSteps", mock.Anything, doc.ID).Return(doc, nil)
	dir.On("Resolve", mock.Anything, impl).Return(snapshotFor(impl, "Choi"), nil)
	dir.On("Resolve", mock.Anything, approver).Return(snapshotFor(approver, "Lee"), nil)

	_, err := service.Apply(context.Background(), SubmitAction{
		DocumentID: doc.ID,
		ActorID:    drafter,
		Assignments: []StepAssignment{
			{ApproverID: impl, StepType: StepImplementation},
			{ApproverID: approver, StepType: StepApproval},
		},
	})

	assert.ErrorIs(t, err, ErrValidation)
}

func pendingTwoApproverDoc(drafter, first, second uuid.UUID) *Document {
	doc := &Document{ID: uuid.New(), Title: "policy", Status: DocumentPending, DrafterID: drafter}
	s1 := makeStep(1, StepApproval, first, StepPending)
	s2 := makeStep(2, StepApproval, second, StepPending)
	s1.DocumentID = doc.ID
	s2.DocumentID = doc.ID
	doc.Steps = []ApprovalStep{s1, s2}
	return doc
}

func TestApproveStepMidChain(t *testing.T) {
	repo := new(MockRepository)
	dir := new(MockDirectory)
	notifier := newRecordingNotifier()
	service := newTestService(repo, dir, notifier)

	drafter, first, second := uuid.New(), uuid.New(), uuid.New()
	doc := pendingTwoApproverDoc(drafter, first, second)

	passthroughTransaction(repo)
	repo.On("LockDocumentWithSteps", mock.Anything, doc.ID).Return(doc, nil)
	repo.On("TransitionStep", mock.Anything, mock.Anything, StepPending).Return(nil)
	dir.On("Resolve", mock.Anything, first).Return(snapshotFor(first, "Lee"), nil)

	result, err := service.Apply(context.Background(), ApproveStepAction{
		DocumentID: doc.ID,
		StepID:     doc.Steps[0].ID,
		ActorID:    first,
	})

	require.NoError(t, err)
	assert.Equal(t, TransitionStepApproved, result.Transition)
	assert.Equal(t, StepApproved, doc.Steps[0].Status)
	// The document stays PENDING until the whole chain is done.
	assert.Equal(t, DocumentPending, doc.Status)
	repo.AssertNotCalled(t, "SaveDocument", mock.Anything, mock.Anything)

	delivery := notifier.waitForDelivery(t)
	assert.Equal(t, []uuid.UUID{second}, delivery.Recipients)
}

func TestApproveFinalStepApprovesDocument(t *testing.T) {
	repo := new(MockRepository)
	dir := new(MockDirectory)
	notifier := newRecordingNotifier()
	service := newTestService(repo, dir, notifier)

	drafter, first, second := uuid.New(), uuid.New(), uuid.New()
	doc := pendingTwoApproverDoc(drafter, first, second)
	doc.Steps[0].Status = StepApproved

	passthroughTransaction(repo)
	repo.On("LockDocumentWithSteps", mock.Anything, doc.ID).Return(doc, nil)
	repo.On("TransitionStep", mock.Anything, mock.Anything, StepPending).Return(nil)
	repo.On("SaveDocument", mock.Anything, doc).Return(nil)
	dir.On("Resolve", mock.Anything, second).Return(snapshotFor(second, "Park"), nil)

	result, err := service.Apply(context.Background(), ApproveStepAction{
		DocumentID: doc.ID,
		StepID:     doc.Steps[1].ID,
		ActorID:    second,
	})

	require.NoError(t, err)
	assert.Equal(t, TransitionStepApproved, result.Transition)
	assert.Equal(t, DocumentApproved, doc.Status)
	assert.NotNil(t, doc.ApprovedAt)

	// No references and no implementations: only the drafter hears.
	delivery := notifier.waitForDelivery(t)
	assert.Equal(t, []uuid.UUID{drafter}, delivery.Recipients)
}

func TestApproveOutOfTurn(t *testing.T) {
	repo := new(MockRepository)
	service := newTestService(repo, new(MockDirectory), newRecordingNotifier())

	drafter, first, second := uuid.New(), uuid.New(), uuid.New()
	doc := pendingTwoApproverDoc(drafter, first, second)

	passthroughTransaction(repo)
	repo.On("LockDocumentWithSteps", mock.Anything, doc.ID).Return(doc, nil)

	_, err := service.Apply(context.Background(), ApproveStepAction{
		DocumentID: doc.ID,
		StepID:     doc.Steps[1].ID,
		ActorID:    second,
	})

	assert.ErrorIs(t, err, ErrInvalidState)
	repo.AssertNotCalled(t, "TransitionStep", mock.Anything, mock.Anything, mock.Anything)
}

func TestApproveWrongApprover(t *testing.T) {
	repo := new(MockRepository)
	service := newTestService(repo, new(MockDirectory), newRecordingNotifier())

	drafter, first, second := uuid.New(), uuid.New(), uuid.New()
	doc := pendingTwoApproverDoc(drafter, first, second)

	passthroughTransaction(repo)
	repo.On("LockDocumentWithSteps", mock.Anything, doc.ID).Return(doc, nil)

	_, err := service.Apply(context.Background(), ApproveStepAction{
		DocumentID: doc.ID,
		StepID:     doc.Steps[0].ID,
		ActorID:    second,
	})

	assert.ErrorIs(t, err, ErrForbidden)
}

func TestApproveLosesGuardedUpdate(t *testing.T) {
	repo := new(MockRepository)
	service := newTestService(repo, new(MockDirectory), newRecordingNotifier())

	drafter, first, second := uuid.New(), uuid.New(), uuid.New()
	doc := pendingTwoApproverDoc(drafter, first, second)

	passthroughTransaction(repo)
	repo.On("LockDocumentWithSteps", mock.Anything, doc.ID).Return(doc, nil)
	repo.On("TransitionStep", mock.Anything, mock.Anything, StepPending).Return(ErrConcurrentModification)

	_, err := service.Apply(context.Background(), ApproveStepAction{
		DocumentID: doc.ID,
		StepID:     doc.Steps[0].ID,
		ActorID:    first,
	})

	assert.ErrorIs(t, err, ErrConcurrentModification)
}

func TestRejectHaltsDocument(t *testing.T) {
	repo := new(MockRepository)
	dir := new(MockDirectory)
	notifier := newRecordingNotifier()
	service := newTestService(repo, dir, notifier)

	drafter, first, second := uuid.New(), uuid.New(), uuid.New()
	doc := pendingTwoApproverDoc(drafter, first, second)

	passthroughTransaction(repo)
	repo.On("LockDocumentWithSteps", mock.Anything, doc.ID).Return(doc, nil)
	repo.On("TransitionStep", mock.Anything, mock.Anything, StepPending).Return(nil)
	repo.On("SaveDocument", mock.Anything, doc).Return(nil)
	dir.On("Resolve", mock.Anything, first).Return(snapshotFor(first, "Lee"), nil)

	result, err := service.Apply(context.Background(), RejectStepAction{
		DocumentID: doc.ID,
		StepID:     doc.Steps[0].ID,
		ActorID:    first,
		Comment:    "missing cost estimate",
	})

	require.NoError(t, err)
	assert.Equal(t, TransitionRejected, result.Transition)
	assert.Equal(t, DocumentRejected, doc.Status)
	assert.Equal(t, StepRejected, doc.Steps[0].Status)
	// The successor step is left untouched.
	assert.Equal(t, StepPending, doc.Steps[1].Status)
	assert.NotNil(t, doc.RejectedAt)

	delivery := notifier.waitForDelivery(t)
	assert.Equal(t, []uuid.UUID{drafter}, delivery.Recipients)
	assert.Contains(t, delivery.Content, "missing cost estimate")
}

func TestRejectRequiresComment(t *testing.T) {
	repo := new(MockRepository)
	service := newTestService(repo, new(MockDirectory), newRecordingNotifier())

	drafter, first, second := uuid.New(), uuid.New(), uuid.New()
	doc := pendingTwoApproverDoc(drafter, first, second)

	passthroughTransaction(repo)
	repo.On("LockDocumentWithSteps", mock.Anything, doc.ID).Return(doc, nil)

	_, err := service.Apply(context.Background(), RejectStepAction{
		DocumentID: doc.ID,
		StepID:     doc.Steps[0].ID,
		ActorID:    first,
	})
	assert.ErrorIs(t, err, ErrValidation)

	// Whitespace is not a comment either.
	_, err = service.Apply(context.Background(), RejectStepAction{
		DocumentID: doc.ID,
		StepID:     doc.Steps[0].ID,
		ActorID:    first,
		Comment:    "   ",
	})
	assert.ErrorIs(t, err, ErrValidation)
	repo.AssertNotCalled(t, "TransitionStep", mock.Anything, mock.Anything, mock.Anything)
}

func TestRejectTrimsComment(t *testing.T) {
	repo := new(MockRepository)
	dir := new(MockDirectory)
	notifier := newRecordingNotifier()
	service := newTestService(repo, dir, notifier)

	drafter, first, second := uuid.New(), uuid.New(), uuid.New()
	doc := pendingTwoApproverDoc(drafter, first, second)

	passthroughTransaction(repo)
	repo.On("LockDocumentWithSteps", mock.Anything, doc.ID).Return(doc, nil)
	repo.On("TransitionStep", mock.Anything, mock.Anything, StepPending).Return(nil)
	repo.On("SaveDocument", mock.Anything, doc).Return(nil)
	dir.On("Resolve", mock.Anything, first).Return(snapshotFor(first, "Lee"), nil)

	result, err := service.Apply(context.Background(), RejectStepAction{
		DocumentID: doc.ID,
		StepID:     doc.Steps[0].ID,
		ActorID:    first,
		Comment:    "  budget exceeded  ",
	})

	require.NoError(t, err)
	assert.Equal(t, "budget exceeded", result.Reason)
	require.NotNil(t, doc.Steps[0].RejectComment)
	assert.Equal(t, "budget exceeded", *doc.Steps[0].RejectComment)

	notifier.waitForDelivery(t)
}

func TestRejectOnRejectedDocument(t *testing.T) {
	repo := new(MockRepository)
	service := newTestService(repo, new(MockDirectory), newRecordingNotifier())

	drafter, first, second := uuid.New(), uuid.New(), uuid.New()
	doc := pendingTwoApproverDoc(drafter, first, second)
	doc.Status = DocumentRejected
	doc.Steps[0].Status = StepRejected

	passthroughTransaction(repo)
	repo.On("LockDocumentWithSteps", mock.Anything, doc.ID).Return(doc, nil)

	// A second reject attempt must fail rather than double-fire.
	_, err := service.Apply(context.Background(), RejectStepAction{
		DocumentID: doc.ID,
		StepID:     doc.Steps[1].ID,
		ActorID:    second,
		Comment:    "also bad",
	})

	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestCompleteImplementation(t *testing.T) {
	repo := new(MockRepository)
	dir := new(MockDirectory)
	notifier := newRecordingNotifier()
	service := newTestService(repo, dir, notifier)

	drafter, approver, implementer := uuid.New(), uuid.New(), uuid.New()
	doc := &Document{ID: uuid.New(), Title: "rollout", Status: DocumentApproved, DrafterID: drafter}
	s1 := makeStep(1, StepApproval, approver, StepApproved)
	s2 := makeStep(2, StepImplementation, implementer, StepPending)
	doc.Steps = []ApprovalStep{s1, s2}

	passthroughTransaction(repo)
	repo.On("LockDocumentWithSteps", mock.Anything, doc.ID).Return(doc, nil)
	repo.On("TransitionStep", mock.Anything, mock.Anything, StepPending).Return(nil)
	repo.On("SaveDocument", mock.Anything, doc).Return(nil)
	dir.On("Resolve", mock.Anything, implementer).Return(snapshotFor(implementer, "Choi"), nil)

	result, err := service.Apply(context.Background(), CompleteImplementationAction{
		DocumentID: doc.ID,
		StepID:     s2.ID,
		ActorID:    implementer,
	})

	require.NoError(t, err)
	assert.Equal(t, TransitionImplementationCompleted, result.Transition)
	assert.Equal(t, DocumentImplemented, doc.Status)

	delivery := notifier.waitForDelivery(t)
	assert.Equal(t, []uuid.UUID{drafter}, delivery.Recipients)
}

func TestCompleteImplementationBeforeApproval(t *testing.T) {
	repo := new(MockRepository)
	service := newTestService(repo, new(MockDirectory), newRecordingNotifier())

	implementer := uuid.New()
	doc := &Document{ID: uuid.New(), Status: DocumentPending, DrafterID: uuid.New()}
	step := makeStep(2, StepImplementation, implementer, StepPending)
	doc.Steps = []ApprovalStep{makeStep(1, StepApproval, uuid.New(), StepPending), step}

	passthroughTransaction(repo)
	repo.On("LockDocumentWithSteps", mock.Anything, doc.ID).Return(doc, nil)

	_, err := service.Apply(context.Background(), CompleteImplementationAction{
		DocumentID: doc.ID,
		StepID:     step.ID,
		ActorID:    implementer,
	})

	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestMarkReferenceRead(t *testing.T) {
	repo := new(MockRepository)
	service := newTestService(repo, new(MockDirectory), newRecordingNotifier())

	reader := uuid.New()
	doc := &Document{ID: uuid.New(), Status: DocumentApproved, DrafterID: uuid.New()}
	step := makeStep(2, StepReference, reader, StepPending)
	doc.Steps = []ApprovalStep{makeStep(1, StepApproval, uuid.New(), StepApproved), step}

	passthroughTransaction(repo)
	repo.On("LockDocumentWithSteps", mock.Anything, doc.ID).Return(doc, nil)
	repo.On("TransitionStep", mock.Anything, mock.Anything, StepPending).Return(nil)

	result, err := service.Apply(context.Background(), MarkReferenceReadAction{
		DocumentID: doc.ID,
		StepID:     step.ID,
		ActorID:    reader,
	})

	require.NoError(t, err)
	assert.Equal(t, TransitionReferenceRead, result.Transition)
	assert.Equal(t, StepApproved, doc.Steps[1].Status)
}

func TestCancelSubmitReturnsToDraft(t *testing.T) {
	repo := new(MockRepository)
	notifier := newRecordingNotifier()
	service := newTestService(repo, new(MockDirectory), notifier)

	drafter, first, second := uuid.New(), uuid.New(), uuid.New()
	doc := pendingTwoApproverDoc(drafter, first, second)
	number := "DOC-2026-000009"
	doc.DocumentNumber = &number
	now := time.Now()
	doc.SubmittedAt = &now

	passthroughTransaction(repo)
	repo.On("LockDocumentWithSteps", mock.Anything, doc.ID).Return(doc, nil)
	repo.On("DeleteSteps", mock.Anything, doc.ID).Return(nil)
	repo.On("SaveDocument", mock.Anything, doc).Return(nil)

	result, err := service.Apply(context.Background(), CancelSubmitAction{
		DocumentID: doc.ID,
		ActorID:    drafter,
	})

	require.NoError(t, err)
	assert.Equal(t, TransitionSubmitCancelled, result.Transition)
	assert.Equal(t, DocumentDraft, doc.Status)
	assert.Nil(t, doc.SubmittedAt)
	// The assigned number survives withdrawal.
	assert.Equal(t, "DOC-2026-000009", *doc.DocumentNumber)

	notifier.assertNoDelivery(t)
}

func TestCancelSubmitDiscard(t *testing.T) {
	repo := new(MockRepository)
	service := newTestService(repo, new(MockDirectory), newRecordingNotifier())

	drafter, first, second := uuid.New(), uuid.New(), uuid.New()
	doc := pendingTwoApproverDoc(drafter, first, second)

	passthroughTransaction(repo)
	repo.On("LockDocumentWithSteps", mock.Anything, doc.ID).Return(doc, nil)
	repo.On("DeleteSteps", mock.Anything, doc.ID).Return(nil)
	repo.On("SaveDocument", mock.Anything, doc).Return(nil)

	_, err := service.Apply(context.Background(), CancelSubmitAction{
		DocumentID: doc.ID,
		ActorID:    drafter,
		Reason:     "superseded by new policy",
		Discard:    true,
	})

	require.NoError(t, err)
	assert.Equal(t, DocumentCancelled, doc.Status)
	require.NotNil(t, doc.CancelReason)
	assert.Equal(t, "superseded by new policy", *doc.CancelReason)
	assert.NotNil(t, doc.CancelledAt)
}

func TestCancelSubmitBlockedAfterProgress(t *testing.T) {
	repo := new(MockRepository)
	service := newTestService(repo, new(MockDirectory), newRecordingNotifier())

	drafter, first, second := uuid.New(), uuid.New(), uuid.New()
	doc := pendingTwoApproverDoc(drafter, first, second)
	doc.Steps[0].Status = StepApproved

	passthroughTransaction(repo)
	repo.On("LockDocumentWithSteps", mock.Anything, doc.ID).Return(doc, nil)

	_, err := service.Apply(context.Background(), CancelSubmitAction{
		DocumentID: doc.ID,
		ActorID:    drafter,
	})

	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestCancelApprovalStep(t *testing.T) {
	repo := new(MockRepository)
	notifier := newRecordingNotifier()
	service := newTestService(repo, new(MockDirectory), notifier)

	drafter, first, second := uuid.New(), uuid.New(), uuid.New()
	doc := pendingTwoApproverDoc(drafter, first, second)
	doc.Steps[0].Status = StepApproved
	now := time.Now()
	doc.Steps[0].ApprovedAt = &now

	passthroughTransaction(repo)
	repo.On("LockDocumentWithSteps", mock.Anything, doc.ID).Return(doc, nil)
	repo.On("TransitionStep", mock.Anything, mock.Anything, StepApproved).Return(nil)

	result, err := service.Apply(context.Background(), CancelApprovalStepAction{
		DocumentID: doc.ID,
		StepID:     doc.Steps[0].ID,
		ActorID:    first,
	})

	require.NoError(t, err)
	assert.Equal(t, TransitionApprovalCancelled, result.Transition)
	assert.Equal(t, StepPending, doc.Steps[0].Status)
	assert.Nil(t, doc.Steps[0].ApprovedAt)
	assert.False(t, result.RequiresCancelSubmit)

	notifier.assertNoDelivery(t)
}

func TestCancelApprovalStepBlockedByLaterProgress(t *testing.T) {
	repo := new(MockRepository)
	service := newTestService(repo, new(MockDirectory), newRecordingNotifier())

	drafter, first, second := uuid.New(), uuid.New(), uuid.New()
	doc := pendingTwoApproverDoc(drafter, first, second)
	doc.Steps[0].Status = StepApproved
	doc.Steps[1].Status = StepApproved

	passthroughTransaction(repo)
	repo.On("LockDocumentWithSteps", mock.Anything, doc.ID).Return(doc, nil)

	_, err := service.Apply(context.Background(), CancelApprovalStepAction{
		DocumentID: doc.ID,
		StepID:     doc.Steps[0].ID,
		ActorID:    first,
	})

	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestCancelApprovalStepRevertsApprovedDocument(t *testing.T) {
	repo := new(MockRepository)
	service := newTestService(repo, new(MockDirectory), newRecordingNotifier())

	drafter, only := uuid.New(), uuid.New()
	doc := &Document{ID: uuid.New(), Status: DocumentApproved, DrafterID: drafter}
	now := time.Now()
	doc.ApprovedAt = &now
	step := makeStep(1, StepApproval, only, StepApproved)
	doc.Steps = []ApprovalStep{step}

	passthroughTransaction(repo)
	repo.On("LockDocumentWithSteps", mock.Anything, doc.ID).Return(doc, nil)
	repo.On("TransitionStep", mock.Anything, mock.Anything, StepApproved).Return(nil)
	repo.On("SaveDocument", mock.Anything, doc).Return(nil)

	_, err := service.Apply(context.Background(), CancelApprovalStepAction{
		DocumentID: doc.ID,
		StepID:     step.ID,
		ActorID:    only,
	})

	require.NoError(t, err)
	assert.Equal(t, DocumentPending, doc.Status)
	assert.Nil(t, doc.ApprovedAt)
}

func TestCancelApprovalStepSignalsCancelSubmit(t *testing.T) {
	repo := new(MockRepository)
	service := newTestService(repo, new(MockDirectory), newRecordingNotifier())

	drafter, second := uuid.New(), uuid.New()
	doc := pendingTwoApproverDoc(drafter, drafter, second)
	doc.Steps[0].Status = StepApproved

	passthroughTransaction(repo)
	repo.On("LockDocumentWithSteps", mock.Anything, doc.ID).Return(doc, nil)
	repo.On("TransitionStep", mock.Anything, mock.Anything, StepApproved).Return(nil)

	result, err := service.Apply(context.Background(), CancelApprovalStepAction{
		DocumentID: doc.ID,
		StepID:     doc.Steps[0].ID,
		ActorID:    drafter,
	})

	require.NoError(t, err)
	// First step, own document: unwinding it means the submission itself
	// should be cancelled, but that is left to an explicit follow-up call.
	assert.True(t, result.RequiresCancelSubmit)
	assert.Equal(t, DocumentPending, doc.Status)
}
