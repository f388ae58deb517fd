// Package errors provides standardized error handling for blockstore.
//
// # Overview
//
// The package implements a three-class error system tuned for a storage
// pipeline: Transient (temporary, retryable), Invalid (bad input or mixed
// calling conventions, non-retryable), and Fatal (unrecoverable medium
// failure, latches the backend).
//
// It also defines the caller-facing error taxonomy of the backend:
//
//   - ErrNotFound: requested uid has no data on the medium
//   - ErrTimeout: ReadGet exceeded its wait budget with no completed result
//   - ErrProtocolViolation: synchronous and asynchronous reads were mixed on
//     one backend instance
//   - ErrUnsupported: the chosen medium does not implement the operation
//   - ErrBackendClosed: the backend was already shut down
//
// # Wrapping
//
// All error wrapping follows the standardized format:
//
//	"component.method: action failed: %w"
//
// Three wrapper functions provide classification-aware wrapping:
//
//	errors.WrapTransient(err, "Backend", "ReadGet", "wait for result")
//	errors.WrapInvalid(err, "Config", "Validate", "simultaneous_writes")
//	errors.WrapFatal(err, "Backend", "writer", "medium save")
//
// Classification survives error chains and integrates with errors.Is,
// errors.As and Unwrap from the standard library. Context cancellation errors
// classify as Transient.
//
// # Checking
//
// Callers branch on predicates rather than string matching:
//
//	data, err := b.ReadSync(block)
//	switch {
//	case errors.IsNotFound(err):
//	    // block was never written
//	case errors.IsFatal(err):
//	    // medium failed, backend is latched; rebuild it
//	}
package errors
