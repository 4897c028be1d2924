package common

import "errors"

// Business logic errors
var (
	// General errors
	ErrNotFound     = errors.New("resource not found")
	ErrForbidden    = errors.New("forbidden")
	ErrInvalidInput = errors.New("invalid input")

	// Catalog errors
	ErrAdNotFound         = errors.New("ad not found")
	ErrZoneNotFound       = errors.New("zone not found")
	ErrAssignmentNotFound = errors.New("assignment not found")

	// Lifecycle errors
	ErrInvalidTransition = errors.New("invalid status transition")

	// A/B test errors
	ErrInvalidTrafficSplit = errors.New("invalid traffic split")

	// Delivery errors
	ErrInvalidDeliveryRef = errors.New("invalid delivery ref")

	// Metering errors. ErrCapExhausted and ErrDuplicateEvent are internal
	// outcomes: the reporting caller still gets a success, the counters
	// just do not move again.
	ErrCapExhausted   = errors.New("delivery cap exhausted")
	ErrDuplicateEvent = errors.New("event already recorded")

	// Storage errors
	ErrStorage = errors.New("storage error")

	// Auth errors
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("expired token")
)
