package sifter

import (
	"fmt"
	"strings"
)

// NotFoundError indicates the named sifter is not in the effective registry.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("sifter %q not found", e.Name)
}

// ExecutionError indicates a sifter exited non-zero.
//
// It carries the full command line and the captured stderr text for
// diagnostics. No artifact is delivered when execution fails, regardless
// of any partial stdout the sifter produced.
type ExecutionError struct {
	// CommandLine is the argv the sifter was launched with.
	CommandLine []string

	// ExitCode is the sifter's exit code.
	ExitCode int

	// Stderr is the full captured standard-error text.
	Stderr string

	// Err is the underlying process error.
	Err error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("sifter %s exited %d: %s",
		strings.Join(e.CommandLine, " "), e.ExitCode, e.Stderr)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}
