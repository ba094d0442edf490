package workflow

import (
	"fmt"
	"strings"
	"time"

	"ministry-hr/internal/models"
)

type SubmitInput struct {
	// RequesterRef defaults to the acting user. Only HR may file for someone else.
	RequesterRef string
	// ServiceRef is used when HR files on behalf of another employee.
	ServiceRef string
	Type       models.AbsenceType
	StartDate  time.Time
	EndDate    time.Time
}

// ValidateSubmission checks the fields of a new request without touching any store.
func ValidateSubmission(input SubmitInput) error {
	if !input.Type.Valid() {
		return fmt.Errorf("%w: unknown absence type %q", ErrValidation, input.Type)
	}
	if input.StartDate.IsZero() || input.EndDate.IsZero() {
		return fmt.Errorf("%w: start and end dates are required", ErrValidation)
	}
	if truncateDate(input.EndDate).Before(truncateDate(input.StartDate)) {
		return fmt.Errorf("%w: end date %s is before start date %s", ErrValidation,
			input.EndDate.Format(models.DateLayout), input.StartDate.Format(models.DateLayout))
	}
	return nil
}

// ValidateReason returns the trimmed rejection reason or ErrMissingReason.
func ValidateReason(reason string) (string, error) {
	trimmed := strings.TrimSpace(reason)
	if trimmed == "" {
		return "", ErrMissingReason
	}
	return trimmed, nil
}

// ParseDate parses a YYYY-MM-DD calendar date.
func ParseDate(value string) (time.Time, error) {
	parsed, err := time.Parse(models.DateLayout, strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q must be YYYY-MM-DD", ErrValidation, value)
	}
	return parsed, nil
}

func truncateDate(value time.Time) time.Time {
	y, m, d := value.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
