// Package errors provides classified error primitives used across detecttune.
//
// A ClassifiedError carries a category (config, detector, subject, store, ...),
// a severity and a retry strategy next to the message and the wrapped cause.
// The CLI adapter turns them into exit codes and log records.
//
// Example usage:
//
//	err := errors.SubjectError("marker rate unknown").
//		WithContext("subject_id", 5).
//		WithCause(originalErr).
//		Build()
package errors
