// Package file implements the sink interface for local filesystem delivery.
package file

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/siftworks/siftx/pkg/sink"
)

// Sink delivers artifacts under RootDir, one subdirectory per course.
//
// The course identifier is percent-encoded into the directory name so that
// identifiers containing slashes (e.g. "org/number/term") stay a single
// path segment. This matches the layout the dashboard file server expects.
type Sink struct {
	rootDir string
}

var _ sink.Sink = (*Sink)(nil)

type Config struct {
	// RootDir is the delivery root (required).
	RootDir string
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.RootDir) == "" {
		return fmt.Errorf("root dir is required")
	}
	return nil
}

func New(cfg Config) (*Sink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Sink{rootDir: filepath.Clean(cfg.RootDir)}, nil
}

func (s *Sink) Close() error { return nil }

// PathFor returns the filesystem path an artifact would be delivered to.
func (s *Sink) PathFor(courseID, filename string) string {
	return filepath.Join(s.rootDir, url.QueryEscape(courseID), filename)
}

// Store writes the artifact via a temp file and rename so a failed write
// never leaves a truncated artifact at the final path.
func (s *Sink) Store(ctx context.Context, courseID, filename string, content []byte) error {
	_ = ctx
	if strings.TrimSpace(filename) == "" {
		return s.wrapError(courseID, filename, fmt.Errorf("filename is required"))
	}
	full := s.PathFor(courseID, filename)
	dir := filepath.Dir(full)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return s.wrapError(courseID, filename, err)
	}

	tmp, err := os.CreateTemp(dir, "siftx-put-*")
	if err != nil {
		return s.wrapError(courseID, filename, err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(content); err != nil {
		return s.wrapError(courseID, filename, err)
	}
	if err := tmp.Close(); err != nil {
		return s.wrapError(courseID, filename, err)
	}

	if err := os.Rename(tmpName, full); err != nil {
		return s.wrapError(courseID, filename, err)
	}
	return nil
}

func (s *Sink) wrapError(courseID, filename string, err error) error {
	wrapped := &sink.StorageError{Op: "Store", Kind: sink.KindFile, CourseID: courseID, Filename: filename, Err: err}
	// Normalize common filesystem errors to sink sentinels.
	if os.IsPermission(err) {
		wrapped.Err = sink.ErrAccessDenied
	}
	return wrapped
}
