package workflows

// StateMachine enforces document status transitions
type StateMachine struct {
	allowedTransitions map[string][]string
}

// NewDocumentStateMachine creates the state machine for the document
// lifecycle. CANCELLED, REJECTED and IMPLEMENTED are terminal; the only
// backward edge is APPROVED to PENDING, taken when an approval is cancelled.
func NewDocumentStateMachine() *StateMachine {
	return &StateMachine{
		allowedTransitions: map[string][]string{
			"DRAFT":       {"PENDING", "CANCELLED"},
			"PENDING":     {"APPROVED", "REJECTED", "DRAFT", "CANCELLED"},
			"APPROVED":    {"IMPLEMENTED", "PENDING"},
			"REJECTED":    {},
			"CANCELLED":   {},
			"IMPLEMENTED": {},
		},
	}
}

// CanTransition checks if a status transition is allowed
func (sm *StateMachine) CanTransition(from, to string) bool {
	allowed, exists := sm.allowedTransitions[from]
	if !exists {
		return false
	}
	for _, allowedTo := range allowed {
		if allowedTo == to {
			return true
		}
	}
	return false
}

// GetAllowedTransitions returns the allowed next statuses for a given status
func (sm *StateMachine) GetAllowedTransitions(from string) []string {
	allowed, exists := sm.allowedTransitions[from]
	if !exists {
		return []string{}
	}
	return allowed
}
