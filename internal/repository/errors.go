package repository

import "errors"

var (
	// ErrConflict means a create hit an existing track id. The caller must
	// not retry with the same id.
	ErrConflict = errors.New("tracking id already exists")

	// ErrNotFound means no intent exists for the given track id.
	ErrNotFound = errors.New("payment intent not found")

	// ErrStaleState means a conditional transition found the intent in a
	// different status than expected. The losing writer has had no effect.
	ErrStaleState = errors.New("intent status changed concurrently")

	// ErrAlreadyDelivered means a fulfillment record already exists for the
	// track id. Callers treat it as a successful no-op.
	ErrAlreadyDelivered = errors.New("fulfillment already recorded")
)
