package approval

import (
	"sort"

	"github.com/google/uuid"
)

// StepState is the viewer-relative state of one homogeneous step chain.
// At most one of the four flags is true; all are false when the viewer has
// no step in the chain.
//
//   - Waiting:  my step is pending and someone before me still is too
//   - Progress: my step is pending and everyone before me has approved
//   - Complete: I approved but someone after me has not
//   - Ended:    I approved and everyone after me has too
type StepState struct {
	IsWaiting  bool
	IsProgress bool
	IsComplete bool
	IsEnded    bool
	MyStep     *ApprovalStep
}

// StepChains is a document's steps split into the three flows the policies
// evaluate independently. Agreement and approval form a single ordered chain.
type StepChains struct {
	AgreementOrApproval []ApprovalStep
	Implementation      []ApprovalStep
	Reference           []ApprovalStep
}

func sortByStepOrder(steps []ApprovalStep) []ApprovalStep {
	sorted := make([]ApprovalStep, len(steps))
	copy(sorted, steps)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].StepOrder < sorted[j].StepOrder })
	return sorted
}

// SplitSteps partitions steps by chain, each partition sorted by step order.
func SplitSteps(steps []ApprovalStep) StepChains {
	sorted := sortByStepOrder(steps)
	var chains StepChains
	for _, s := range sorted {
		switch s.StepType {
		case StepAgreement, StepApproval:
			chains.AgreementOrApproval = append(chains.AgreementOrApproval, s)
		case StepImplementation:
			chains.Implementation = append(chains.Implementation, s)
		case StepReference:
			chains.Reference = append(chains.Reference, s)
		}
	}
	return chains
}

// Evaluate computes the viewer-relative state of an ordered step chain.
//
// The input is re-sorted defensively. If the viewer appears more than once,
// the earliest step order governs. A REJECTED step counts as neither approved
// nor pending, so a rejected predecessor permanently blocks allBeforeApproved;
// the document status will already be REJECTED in that case but the evaluator
// must still answer without treating the rejection as an approval.
func Evaluate(steps []ApprovalStep, viewerID uuid.UUID) StepState {
	sorted := sortByStepOrder(steps)

	myIndex := -1
	for i, s := range sorted {
		if s.ApproverID == viewerID {
			myIndex = i
			break
		}
	}
	if myIndex < 0 {
		return StepState{}
	}

	myStep := sorted[myIndex]
	before := sorted[:myIndex]
	after := sorted[myIndex+1:]

	allBeforeApproved := true
	for _, s := range before {
		if s.Status != StepApproved {
			allBeforeApproved = false
			break
		}
	}
	allAfterApproved := len(after) > 0
	for _, s := range after {
		if s.Status != StepApproved {
			allAfterApproved = false
			break
		}
	}

	myPending := myStep.Status == StepPending
	myApproved := myStep.Status == StepApproved

	return StepState{
		IsWaiting:  myPending && !allBeforeApproved,
		IsProgress: myPending && allBeforeApproved,
		IsComplete: myApproved && (len(after) == 0 || !allAfterApproved),
		IsEnded:    myApproved && allAfterApproved,
		MyStep:     &myStep,
	}
}
