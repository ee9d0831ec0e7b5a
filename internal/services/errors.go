package services

import "fmt"

// ValidationReason explains why a request could not proceed as asked.
type ValidationReason int

const (
	ReasonMissingCredential ValidationReason = iota + 1
	ReasonOffline
	ReasonOversizeOffline
	ReasonEmptyCredential
	ReasonInvalidExpense
)

func (r ValidationReason) String() string {
	switch r {
	case ReasonMissingCredential:
		return "missing_credential"
	case ReasonOffline:
		return "offline"
	case ReasonOversizeOffline:
		return "oversize_offline"
	case ReasonEmptyCredential:
		return "empty_credential"
	case ReasonInvalidExpense:
		return "invalid_expense"
	default:
		return "unknown"
	}
}

// ValidationError is returned for requests rejected before any I/O.
type ValidationError struct {
	Reason ValidationReason
	Err    error // underlying cause, if any
}

func (e *ValidationError) Error() string {
	switch e.Reason {
	case ReasonMissingCredential:
		return "no API key is saved"
	case ReasonOffline:
		return "the analysis service is unreachable"
	case ReasonOversizeOffline:
		return fmt.Sprintf("files over %d MiB can only be analyzed while online with an API key", maxOfflineMiB)
	case ReasonEmptyCredential:
		return "API key cannot be empty"
	case ReasonInvalidExpense:
		return fmt.Sprintf("invalid expense: %v", e.Err)
	default:
		return "validation failed"
	}
}

func (e *ValidationError) Unwrap() error { return e.Err }
