package domain

import "errors"

var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")

	// Dispatch outcomes. They travel inside DispatchResult.Err and are never
	// returned to callers of the dispatcher as plain errors.
	ErrNotConfigured        = errors.New("sms notifications not enabled")
	ErrQuotaExceeded        = errors.New("daily sms limit reached")
	ErrNoEligibleRecipients = errors.New("no eligible recipients")
	ErrDeliveryFailed       = errors.New("sms delivery failed")
)
