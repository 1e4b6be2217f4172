package tools

import "errors"

// Collaborator errors.
var (
	// ErrNotFound is returned when a customer, transcript, order, or product
	// does not exist in the collaborator system. Stages map it to a negative
	// or default verdict; it is never a process-level fault.
	ErrNotFound = errors.New("not found")

	// ErrSecretUnavailable is returned when a client credential cannot be
	// resolved from the secret source.
	ErrSecretUnavailable = errors.New("secret unavailable")
)
