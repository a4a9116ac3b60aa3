// Package courses lists the course identifiers known to the host platform.
//
// The platform's own management command is consumed as an opaque external
// process that prints one course id per line.
package courses

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

// DiscoveryError indicates the course-listing command failed.
type DiscoveryError struct {
	// CommandLine is the argv the listing command was launched with.
	CommandLine []string

	// Output is the combined output captured from the failed command.
	Output string

	// Err is the underlying process error.
	Err error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("course listing failed: %v: %s", e.Err, e.Output)
}

func (e *DiscoveryError) Unwrap() error {
	return e.Err
}

// Lister runs the platform course-listing command.
type Lister struct {
	venvPath     string
	platformPath string
}

// NewLister creates a lister for the platform rooted at platformPath using
// the python interpreter from venvPath.
func NewLister(venvPath, platformPath string) *Lister {
	return &Lister{venvPath: venvPath, platformPath: platformPath}
}

// List returns every course id the platform reports, one per stdout line,
// with the trailing empty line dropped.
func (l *Lister) List(ctx context.Context) ([]string, error) {
	argv := []string{
		filepath.Join(l.venvPath, "bin", "python"),
		"manage.py", "lms", "--settings=aws", "dump_course_ids",
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = l.platformPath

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		out := stderr.String()
		if out == "" {
			out = stdout.String()
		}
		return nil, &DiscoveryError{CommandLine: argv, Output: out, Err: err}
	}

	lines := strings.Split(stdout.String(), "\n")
	courses := make([]string, 0, len(lines))
	for _, line := range lines {
		if line != "" {
			courses = append(courses, line)
		}
	}
	return courses, nil
}
