package domain

import "errors"

var (
	ErrNotFound               = errors.New("not found")
	ErrInsufficientInventory  = errors.New("insufficient inventory for the requested dates")
	ErrInvalidDateRange       = errors.New("invalid date range")
	ErrOwnershipMismatch      = errors.New("booking belongs to a different account")
	ErrInvalidStateTransition = errors.New("invalid booking state transition")
	ErrBookingExpired         = errors.New("booking hold has expired")
	ErrValidation             = errors.New("validation error")
)
