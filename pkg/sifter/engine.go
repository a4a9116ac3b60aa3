package sifter

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/siftworks/siftx/pkg/sink"
)

// Artifact is the named byte payload produced by a successful sifter run.
type Artifact struct {
	// Filename is the first stdout line with its terminator stripped.
	Filename string

	// CourseID is the course scope the artifact belongs to.
	CourseID string

	// Content is every stdout byte after the first line, verbatim.
	Content []byte
}

// Engine runs one sifter as a subprocess and delivers its output.
//
// The subprocess receives positional arguments
//
//	<venv-path> <platform-path> <course-id> [extra args...]
//
// and its stdout and stderr are captured separately. An exit code of zero
// with non-empty stdout produces an artifact; zero with empty stdout is a
// deliberate no-op; a non-zero exit fails with ExecutionError.
type Engine struct {
	venvPath     string
	platformPath string
	sink         sink.Sink
	logger       *zap.Logger

	// timeout bounds one run. Zero means no limit: a hung sifter blocks
	// its caller until the process exits on its own.
	timeout time.Duration
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithTimeout bounds each run. Zero (the default) imposes no limit.
func WithTimeout(d time.Duration) EngineOption {
	return func(e *Engine) { e.timeout = d }
}

// NewEngine creates an execution engine delivering to the given sink.
func NewEngine(venvPath, platformPath string, s sink.Sink, logger *zap.Logger, opts ...EngineOption) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		venvPath:     venvPath,
		platformPath: platformPath,
		sink:         s,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes the sifter at sifterPath for one course and delivers the
// resulting artifact, if any, to the sink.
//
// Returns (nil, nil) when the sifter exits zero with empty stdout: that is
// a deliberate no-op, not an error.
func (e *Engine) Run(ctx context.Context, sifterPath, courseID string, extraArgs []string) (*Artifact, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	argv := append([]string{sifterPath, e.venvPath, e.platformPath, courseID}, extraArgs...)
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	e.logger.Debug("running sifter",
		zap.String("sifter", sifterPath),
		zap.String("course_id", courseID),
		zap.Strings("extra_args", extraArgs))

	if err := cmd.Run(); err != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		return nil, &ExecutionError{
			CommandLine: argv,
			ExitCode:    exitCode,
			Stderr:      stderr.String(),
			Err:         err,
		}
	}

	out := stdout.Bytes()
	if len(out) == 0 {
		e.logger.Info("sifter produced no output, skipping delivery",
			zap.String("sifter", sifterPath),
			zap.String("course_id", courseID))
		return nil, nil
	}

	artifact := splitOutput(out, courseID)
	if err := e.sink.Store(ctx, courseID, artifact.Filename, artifact.Content); err != nil {
		return nil, err
	}

	e.logger.Info("delivered artifact",
		zap.String("sifter", sifterPath),
		zap.String("course_id", courseID),
		zap.String("filename", artifact.Filename),
		zap.Int("bytes", len(artifact.Content)))
	return artifact, nil
}

// splitOutput applies the output protocol: the first line (terminator
// stripped) names the artifact, the remaining bytes are its content with
// no reinterpretation.
func splitOutput(out []byte, courseID string) *Artifact {
	name, content, found := bytes.Cut(out, []byte("\n"))
	if !found {
		content = nil
	}
	return &Artifact{
		Filename: strings.TrimSuffix(string(name), "\r"),
		CourseID: courseID,
		Content:  content,
	}
}
