// Package guard holds the preconditions the scheduler checks before it
// touches a business day.
package guard

import (
	"errors"
	"time"

	reconciliationdomain "github.com/smallbiznis/carebill/internal/reconciliation/domain"
)

var (
	ErrDayNotClosed        = errors.New("business_day_not_closed")
	ErrDayAlreadyFinalized = errors.New("business_day_already_finalized")
	ErrDayCancelled        = errors.New("business_day_cancelled")
)

// EnsureDayCanReconcile rejects a day that has not ended yet or whose
// report a person has already finalized or cancelled.
func EnsureDayCanReconcile(existingStatus string, dayEnd time.Time, now time.Time) error {
	if now.Before(dayEnd) {
		return ErrDayNotClosed
	}
	switch existingStatus {
	case reconciliationdomain.StatusFinalized:
		return ErrDayAlreadyFinalized
	case reconciliationdomain.StatusCancelled:
		return ErrDayCancelled
	}
	return nil
}

// IsSkip reports whether err means the day should be left alone rather
// than counted as a failure.
func IsSkip(err error) bool {
	return errors.Is(err, ErrDayNotClosed) ||
		errors.Is(err, ErrDayAlreadyFinalized) ||
		errors.Is(err, ErrDayCancelled)
}
