// Package utils provides shared utility helpers used across go-summercash.
package utils

import (
	"errors"
	"fmt"
)

// Wrap adds context to an error message. It returns nil if err is nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf is Wrap with a formatted message.
func Wrapf(err error, format string, args ...interface{}) error {
	return Wrap(err, fmt.Sprintf(format, args...))
}

// FirstError returns the first non-nil error in errs, or nil if all are nil.
// Useful for collapsing a sequence of cleanup calls (file close, flush,
// unlock) into a single return value without losing the earliest failure.
func FirstError(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// Is is a thin re-export of errors.Is, kept here so callers that already
// import utils for Wrap don't need a second import for taxonomy checks.
func Is(err, target error) bool {
	return errors.Is(err, target)
}
