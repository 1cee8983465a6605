package approval

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// FilterType names one viewer-relative inbox.
type FilterType string

const (
	FilterDraft             FilterType = "DRAFT"
	FilterPending           FilterType = "PENDING"
	FilterReceived          FilterType = "RECEIVED"
	FilterPendingAgreement  FilterType = "PENDING_AGREEMENT"
	FilterPendingApproval   FilterType = "PENDING_APPROVAL"
	FilterImplementation    FilterType = "IMPLEMENTATION"
	FilterApproved          FilterType = "APPROVED"
	FilterRejected          FilterType = "REJECTED"
	FilterReceivedReference FilterType = "RECEIVED_REFERENCE"
	FilterAll               FilterType = "ALL"
)

// AllFilterTypes lists every inbox, in statistics display order.
var AllFilterTypes = []FilterType{
	FilterDraft, FilterPending, FilterReceived, FilterPendingAgreement,
	FilterPendingApproval, FilterImplementation, FilterApproved,
	FilterRejected, FilterReceivedReference, FilterAll,
}

// AgreementStepStatus narrows PENDING_AGREEMENT.
type AgreementStepStatus string

const (
	AgreementScheduled AgreementStepStatus = "SCHEDULED" // not my turn yet
	AgreementPending   AgreementStepStatus = "PENDING"   // my turn
	AgreementCompleted AgreementStepStatus = "COMPLETED" // already agreed
)

// DrafterFilter narrows APPROVED.
type DrafterFilter string

const (
	DrafterMyDraft      DrafterFilter = "MY_DRAFT"
	DrafterParticipated DrafterFilter = "PARTICIPATED"
)

// ReferenceReadStatus narrows RECEIVED_REFERENCE.
type ReferenceReadStatus string

const (
	ReferenceRead   ReferenceReadStatus = "READ"
	ReferenceUnread ReferenceReadStatus = "UNREAD"
)

// FilterOptions are the optional narrowing knobs of the filters table.
type FilterOptions struct {
	PendingStatusFilter DocumentStatus      `form:"pendingStatusFilter"`
	AgreementStepStatus AgreementStepStatus `form:"agreementStepStatus"`
	DrafterFilter       DrafterFilter       `form:"drafterFilter"`
	ReferenceReadStatus ReferenceReadStatus `form:"referenceReadStatus"`

	// IncludeAgreementReceived widens RECEIVED to agreement steps as well
	// as approval steps.
	IncludeAgreementReceived bool `form:"includeAgreement"`
}

func validPendingStatus(s DocumentStatus) bool {
	switch s {
	case DocumentPending, DocumentApproved, DocumentRejected, DocumentCancelled, DocumentImplemented:
		return true
	}
	return false
}

const stepsTable = "approval_step_snapshots"

// myStepExists builds an EXISTS over the viewer's steps of the given types.
// extra is appended inside the subquery and may reference my_step.
func myStepExists(types []StepType, extra string) string {
	q := `EXISTS (
		SELECT 1 FROM ` + stepsTable + ` my_step
		WHERE my_step.document_id = documents.id
		AND my_step.approver_id = ?`
	if len(types) > 0 {
		q += "\n\t\tAND my_step.step_type IN " + typeList(types)
	}
	if extra != "" {
		q += "\n\t\tAND " + extra
	}
	return q + ")"
}

func typeList(types []StepType) string {
	out := "("
	for i, t := range types {
		if i > 0 {
			out += ","
		}
		out += "'" + string(t) + "'"
	}
	return out + ")"
}

var agreementOrApprovalTypes = []StepType{StepAgreement, StepApproval}

// pendingPredecessorExists: some step earlier in the document still pending.
const pendingPredecessorExists = `EXISTS (
		SELECT 1 FROM ` + stepsTable + ` prior_step
		WHERE prior_step.document_id = my_step.document_id
		AND prior_step.step_order < my_step.step_order
		AND prior_step.status = 'PENDING')`

// ApplyFilter narrows a documents query to one inbox for the viewer. The
// predicates restate Evaluate as set-membership queries; MatchesFilter is the
// per-document form and the two are kept in lockstep by tests.
func ApplyFilter(db *gorm.DB, filter FilterType, viewerID uuid.UUID, opts FilterOptions) *gorm.DB {
	switch filter {
	case FilterDraft:
		return db.Where("documents.drafter_id = ? AND documents.status = ?", viewerID, DocumentDraft)

	case FilterPending:
		db = db.Where("documents.drafter_id = ?", viewerID)
		if opts.PendingStatusFilter != "" && validPendingStatus(opts.PendingStatusFilter) {
			return db.Where("documents.status = ?", opts.PendingStatusFilter)
		}
		return db.Where("documents.status <> ?", DocumentDraft)

	case FilterReceived:
		types := []StepType{StepApproval}
		if opts.IncludeAgreementReceived {
			types = agreementOrApprovalTypes
		}
		cond := myStepExists(types, `(
			my_step.status = 'APPROVED'
			OR (my_step.status = 'PENDING' AND `+pendingPredecessorExists+`)
		)`)
		return db.Where("documents.drafter_id <> ? AND documents.status = ?", viewerID, DocumentPending).
			Where(cond, viewerID)

	case FilterPendingAgreement:
		db = db.Where("documents.drafter_id <> ? AND documents.status = ?", viewerID, DocumentPending)
		agreement := []StepType{StepAgreement}
		switch opts.AgreementStepStatus {
		case AgreementScheduled:
			return db.Where(myStepExists(agreement, "my_step.status = 'PENDING' AND "+pendingPredecessorExists), viewerID)
		case AgreementPending:
			return db.Where(myStepExists(agreement, "my_step.status = 'PENDING' AND NOT "+pendingPredecessorExists), viewerID)
		case AgreementCompleted:
			return db.Where(myStepExists(agreement, "my_step.status = 'APPROVED'"), viewerID)
		default:
			return db.Where(myStepExists(agreement, ""), viewerID)
		}

	case FilterPendingApproval:
		// The authoritative "my turn" query. Only the viewer's earliest
		// agreement/approval step governs, and a rejected predecessor
		// blocks the turn, matching Evaluate.IsProgress exactly.
		cond := myStepExists(agreementOrApprovalTypes, `my_step.status = 'PENDING'
		AND my_step.step_order = (
			SELECT MIN(first_step.step_order) FROM `+stepsTable+` first_step
			WHERE first_step.document_id = documents.id
			AND first_step.approver_id = my_step.approver_id
			AND first_step.step_type IN `+typeList(agreementOrApprovalTypes)+`)
		AND NOT EXISTS (
			SELECT 1 FROM `+stepsTable+` prior_step
			WHERE prior_step.document_id = my_step.document_id
			AND prior_step.step_type IN `+typeList(agreementOrApprovalTypes)+`
			AND prior_step.step_order < my_step.step_order
			AND prior_step.status <> 'APPROVED')`)
		return db.Where("documents.drafter_id <> ? AND documents.status = ?", viewerID, DocumentPending).
			Where(cond, viewerID)

	case FilterImplementation:
		return db.Where("documents.status = ?", DocumentApproved).
			Where(myStepExists([]StepType{StepImplementation}, "my_step.status = 'PENDING'"), viewerID)

	case FilterApproved:
		mine := db.Session(&gorm.Session{NewDB: true}).
			Where("documents.drafter_id = ? AND documents.status IN ?", viewerID,
				[]DocumentStatus{DocumentApproved, DocumentImplemented})
		participated := db.Session(&gorm.Session{NewDB: true}).
			Where("documents.drafter_id <> ? AND documents.status IN ?", viewerID,
				[]DocumentStatus{DocumentPending, DocumentApproved, DocumentImplemented}).
			Where(myStepExists(agreementOrApprovalTypes, "my_step.status = 'APPROVED'"), viewerID)
		switch opts.DrafterFilter {
		case DrafterMyDraft:
			return db.Where(mine)
		case DrafterParticipated:
			return db.Where(participated)
		default:
			return db.Where(mine.Or(participated))
		}

	case FilterRejected:
		return db.Where("documents.drafter_id <> ? AND documents.status = ?", viewerID, DocumentRejected).
			Where(myStepExists(agreementOrApprovalTypes, ""), viewerID)

	case FilterReceivedReference:
		db = db.Where("documents.drafter_id <> ?", viewerID)
		switch opts.ReferenceReadStatus {
		case ReferenceRead:
			return db.Where(myStepExists([]StepType{StepReference}, "my_step.status = 'APPROVED'"), viewerID)
		case ReferenceUnread:
			return db.Where(myStepExists([]StepType{StepReference}, "my_step.status = 'PENDING'"), viewerID)
		default:
			return db.Where(myStepExists([]StepType{StepReference}, ""), viewerID)
		}

	default: // FilterAll
		return db.Where("documents.drafter_id = ? OR (documents.status <> ? AND "+
			myStepExists(nil, "")+")", viewerID, DocumentDraft, viewerID)
	}
}

// viewerSteps returns the viewer's steps of the given types, ordered.
func viewerSteps(all []ApprovalStep, viewerID uuid.UUID, types ...StepType) []ApprovalStep {
	var out []ApprovalStep
	for _, s := range sortByStepOrder(all) {
		if s.ApproverID != viewerID {
			continue
		}
		for _, t := range types {
			if s.StepType == t {
				out = append(out, s)
				break
			}
		}
	}
	return out
}

func hasPendingPredecessor(all []ApprovalStep, step ApprovalStep) bool {
	for _, s := range all {
		if s.StepOrder < step.StepOrder && s.Status == StepPending {
			return true
		}
	}
	return false
}

// MatchesFilter is the per-document form of ApplyFilter: the same inbox
// predicate evaluated against a loaded document and its steps. "My turn" is
// answered by Evaluate so the two code paths cannot drift apart.
func MatchesFilter(doc *Document, filter FilterType, viewerID uuid.UUID, opts FilterOptions) bool {
	all := doc.Steps

	switch filter {
	case FilterDraft:
		return doc.DrafterID == viewerID && doc.Status == DocumentDraft

	case FilterPending:
		if doc.DrafterID != viewerID {
			return false
		}
		if opts.PendingStatusFilter != "" && validPendingStatus(opts.PendingStatusFilter) {
			return doc.Status == opts.PendingStatusFilter
		}
		return doc.Status != DocumentDraft

	case FilterReceived:
		if doc.DrafterID == viewerID || doc.Status != DocumentPending {
			return false
		}
		types := []StepType{StepApproval}
		if opts.IncludeAgreementReceived {
			types = agreementOrApprovalTypes
		}
		for _, s := range viewerSteps(all, viewerID, types...) {
			if s.Status == StepApproved {
				return true
			}
			if s.Status == StepPending && hasPendingPredecessor(all, s) {
				return true
			}
		}
		return false

	case FilterPendingAgreement:
		if doc.DrafterID == viewerID || doc.Status != DocumentPending {
			return false
		}
		mine := viewerSteps(all, viewerID, StepAgreement)
		for _, s := range mine {
			switch opts.AgreementStepStatus {
			case AgreementScheduled:
				if s.Status == StepPending && hasPendingPredecessor(all, s) {
					return true
				}
			case AgreementPending:
				if s.Status == StepPending && !hasPendingPredecessor(all, s) {
					return true
				}
			case AgreementCompleted:
				if s.Status == StepApproved {
					return true
				}
			default:
				return true
			}
		}
		return false

	case FilterPendingApproval:
		if doc.DrafterID == viewerID || doc.Status != DocumentPending {
			return false
		}
		chains := SplitSteps(all)
		return Evaluate(chains.AgreementOrApproval, viewerID).IsProgress

	case FilterImplementation:
		if doc.Status != DocumentApproved {
			return false
		}
		for _, s := range viewerSteps(all, viewerID, StepImplementation) {
			if s.Status == StepPending {
				return true
			}
		}
		return false

	case FilterApproved:
		mine := doc.DrafterID == viewerID &&
			(doc.Status == DocumentApproved || doc.Status == DocumentImplemented)
		participated := false
		if doc.DrafterID != viewerID &&
			(doc.Status == DocumentPending || doc.Status == DocumentApproved || doc.Status == DocumentImplemented) {
			for _, s := range viewerSteps(all, viewerID, StepAgreement, StepApproval) {
				if s.Status == StepApproved {
					participated = true
					break
				}
			}
		}
		switch opts.DrafterFilter {
		case DrafterMyDraft:
			return mine
		case DrafterParticipated:
			return participated
		default:
			return mine || participated
		}

	case FilterRejected:
		return doc.DrafterID != viewerID && doc.Status == DocumentRejected &&
			len(viewerSteps(all, viewerID, StepAgreement, StepApproval)) > 0

	case FilterReceivedReference:
		if doc.DrafterID == viewerID {
			return false
		}
		for _, s := range viewerSteps(all, viewerID, StepReference) {
			switch opts.ReferenceReadStatus {
			case ReferenceRead:
				if s.Status == StepApproved {
					return true
				}
			case ReferenceUnread:
				if s.Status == StepPending {
					return true
				}
			default:
				return true
			}
		}
		return false

	default: // FilterAll
		if doc.DrafterID == viewerID {
			return true
		}
		if doc.Status == DocumentDraft {
			return false
		}
		for _, s := range all {
			if s.ApproverID == viewerID {
				return true
			}
		}
		return false
	}
}
