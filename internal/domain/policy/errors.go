package policy

import "errors"

var (
	ErrNotFound            = errors.New("policy not found")
	ErrInvalidDates        = errors.New("policy expiry date must be after the start date")
	ErrInvalidStatus       = errors.New("unknown expiry status")
	ErrReminderNotEligible = errors.New("reminder unavailable: policy is too early or expired")
	ErrInvalidLookup       = errors.New("lookup value is not valid for the lookup type")
)
