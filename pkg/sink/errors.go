package sink

import (
	"errors"
	"fmt"
)

// Sentinel errors for sink operations.
var (
	// ErrAccessDenied indicates insufficient permissions on the target.
	ErrAccessDenied = errors.New("access denied")

	// ErrBucketNotFound indicates the bucket does not exist.
	ErrBucketNotFound = errors.New("bucket not found")

	// ErrInvalidCredentials indicates authentication failed.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrUnavailable indicates the backend is unavailable.
	ErrUnavailable = errors.New("storage unavailable")
)

// StorageError wraps backend-specific delivery failures with context.
type StorageError struct {
	// Op is the operation that failed (e.g., "Store").
	Op string

	// Kind is the sink backend kind.
	Kind Kind

	// CourseID is the course scope of the failed delivery.
	CourseID string

	// Filename is the artifact filename, if applicable.
	Filename string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	if e.Filename != "" {
		return fmt.Sprintf("%s %s: %s/%s: %v", e.Kind, e.Op, e.CourseID, e.Filename, e.Err)
	}
	return fmt.Sprintf("%s %s: %s: %v", e.Kind, e.Op, e.CourseID, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *StorageError) Unwrap() error {
	return e.Err
}

// IsAccessDenied returns true if the error indicates insufficient permissions.
func IsAccessDenied(err error) bool {
	return errors.Is(err, ErrAccessDenied)
}

// IsBucketNotFound returns true if the error indicates the bucket does not exist.
func IsBucketNotFound(err error) bool {
	return errors.Is(err, ErrBucketNotFound)
}

// IsInvalidCredentials returns true if the error indicates authentication failed.
func IsInvalidCredentials(err error) bool {
	return errors.Is(err, ErrInvalidCredentials)
}
