package store

import "ministry-hr/internal/models"

const (
	ActionApprove = "approve"
	ActionReject  = "reject"
	ActionCancel  = "cancel"
)

var transitionMap = map[string][]models.AbsenceStatus{
	ActionApprove: {models.StatusPending},
	ActionReject:  {models.StatusPending},
	ActionCancel:  {models.StatusPending},
}

var transitionTarget = map[string]models.AbsenceStatus{
	ActionApprove: models.StatusApproved,
	ActionReject:  models.StatusRejected,
	ActionCancel:  models.StatusCancelled,
}

func ValidTransition(action string, fromStatus models.AbsenceStatus) bool {
	allowed, ok := transitionMap[action]
	if !ok {
		return false
	}
	for _, status := range allowed {
		if status == fromStatus {
			return true
		}
	}
	return false
}

// TargetStatus returns the status an action moves a request into.
func TargetStatus(action string) (models.AbsenceStatus, bool) {
	status, ok := transitionTarget[action]
	return status, ok
}

// EventType is the outbox event type emitted for an action.
func EventType(action string) string {
	switch action {
	case ActionApprove:
		return "absence.approved"
	case ActionReject:
		return "absence.rejected"
	case ActionCancel:
		return "absence.cancelled"
	default:
		return "absence." + action
	}
}
