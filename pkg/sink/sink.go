// Package sink defines the delivery target for sifter artifacts.
//
// A sink persists one named artifact under a course-scoped key. Two
// implementations exist: a local filesystem sink and an S3 sink matching
// the layout the platform dashboard reads from.
package sink

import "context"

// Sink persists artifacts produced by sifter runs.
//
// Implementations should:
//   - Derive a course-scoped key so concurrent deliveries for different
//     courses never collide
//   - Fail rather than truncate on any partial-write condition
//   - Be safe for concurrent use
type Sink interface {
	// Store writes the artifact content under the given course scope and
	// filename. The artifact is immutable once stored; calling Store again
	// with the same scope and filename overwrites the previous delivery.
	Store(ctx context.Context, courseID, filename string, content []byte) error

	// Close releases any resources held by the sink.
	Close() error
}

// Kind identifies a sink backend.
type Kind string

const (
	// KindFile represents the local filesystem backend.
	KindFile Kind = "file"

	// KindS3 represents AWS S3 or S3-compatible storage.
	KindS3 Kind = "s3"
)

// String returns the string representation of the sink kind.
func (k Kind) String() string {
	return string(k)
}
