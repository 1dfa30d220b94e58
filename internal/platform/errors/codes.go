// Package errors provides structured error handling for the sync engine.
package errors

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Collaborator errors
	CodeNotFound    Code = "NOT_FOUND"
	CodeUnavailable Code = "UNAVAILABLE"

	// Input errors
	CodeInvalidArgument  Code = "INVALID_ARGUMENT"
	CodeMalformedPayload Code = "MALFORMED_PAYLOAD"

	// Mutation errors
	CodeMutationFailed  Code = "MUTATION_FAILED"
	CodeNotEligible     Code = "NOT_ELIGIBLE"
	CodeNoActiveRequest Code = "NO_ACTIVE_REQUEST"

	// Lifecycle errors
	CodeNotConnected Code = "NOT_CONNECTED"
	CodeViewClosed   Code = "VIEW_CLOSED"
)

// Retryable reports whether an operation failing with this code may succeed
// when attempted again without changing its input.
func (c Code) Retryable() bool {
	switch c {
	case CodeUnavailable, CodeNotConnected:
		return true
	default:
		return false
	}
}
