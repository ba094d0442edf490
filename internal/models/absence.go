package models

import "time"

type AbsenceType string

const (
	AbsenceAnnualLeave    AbsenceType = "ANNUAL_LEAVE"
	AbsenceSickLeave      AbsenceType = "SICK_LEAVE"
	AbsenceMaternityLeave AbsenceType = "MATERNITY_LEAVE"
	AbsenceSecondment     AbsenceType = "SECONDMENT"
	AbsenceAvailability   AbsenceType = "AVAILABILITY"
	AbsenceSabbatical     AbsenceType = "SABBATICAL"
)

func (t AbsenceType) Valid() bool {
	switch t {
	case AbsenceAnnualLeave, AbsenceSickLeave, AbsenceMaternityLeave,
		AbsenceSecondment, AbsenceAvailability, AbsenceSabbatical:
		return true
	}
	return false
}

type AbsenceStatus string

const (
	StatusPending   AbsenceStatus = "PENDING"
	StatusApproved  AbsenceStatus = "APPROVED"
	StatusRejected  AbsenceStatus = "REJECTED"
	StatusCancelled AbsenceStatus = "CANCELLED"
)

func (s AbsenceStatus) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusCancelled:
		return true
	}
	return false
}

func (s AbsenceStatus) Terminal() bool {
	return s == StatusApproved || s == StatusRejected || s == StatusCancelled
}

// DateLayout is the wire format of StartDate and EndDate.
const DateLayout = "2006-01-02"

type AbsenceRequest struct {
	ID              string        `json:"id"`
	RequesterRef    string        `json:"requester_ref"`
	ServiceRef      string        `json:"service_ref,omitempty"`
	Type            AbsenceType   `json:"type"`
	StartDate       time.Time     `json:"start_date"`
	EndDate         time.Time     `json:"end_date"`
	Status          AbsenceStatus `json:"status"`
	ApproverRef     string        `json:"approver_ref,omitempty"`
	ApproverComment string        `json:"approver_comment,omitempty"`
	RejectionReason string        `json:"rejection_reason,omitempty"`
	RequestedAt     time.Time     `json:"requested_at"`
	ResolvedAt      *time.Time    `json:"resolved_at,omitempty"`
}
