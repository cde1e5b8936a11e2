// SPDX-License-Identifier: MPL-2.0

package cmd

import "fmt"

// Process exit codes.
const (
	ExitOK = iota
	// ExitFailure covers unusable configuration, sources and I/O failures.
	ExitFailure
	// ExitUsage is returned for invalid arguments.
	ExitUsage
	// ExitMissingRuntimeModule is returned when no runtime module was found
	// and the classpaths could not be assembled.
	ExitMissingRuntimeModule
)

// ExitError signals a non-zero exit code without forcing os.Exit in RunE handlers.
type ExitError struct {
	Code int
	Err  error
}

// Error returns the error message for ExitError.
func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("exit status %d", e.Code)
}

// Unwrap returns the underlying error, if any.
func (e *ExitError) Unwrap() error {
	return e.Err
}
