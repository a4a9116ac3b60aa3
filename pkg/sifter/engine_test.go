package sifter

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siftworks/siftx/pkg/sink"
)

// memSink records deliveries in memory.
type memSink struct {
	mu     sync.Mutex
	stored map[string][]byte
}

func newMemSink() *memSink {
	return &memSink{stored: make(map[string][]byte)}
}

func (m *memSink) Store(ctx context.Context, courseID, filename string, content []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stored[courseID+"/"+filename] = append([]byte(nil), content...)
	return nil
}

func (m *memSink) Close() error { return nil }

var _ sink.Sink = (*memSink)(nil)

func writeSifter(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test_sifter")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func TestEngine_Run(t *testing.T) {
	ctx := context.Background()

	t.Run("DeliversArtifactByteForByte", func(t *testing.T) {
		path := writeSifter(t, `printf 'name.csv\nrow1\nrow2\n'`)
		s := newMemSink()
		engine := NewEngine("/venv", "/platform", s, nil)

		artifact, err := engine.Run(ctx, path, "org/num/term", nil)
		require.NoError(t, err)
		require.NotNil(t, artifact)
		assert.Equal(t, "name.csv", artifact.Filename)
		assert.Equal(t, []byte("row1\nrow2\n"), artifact.Content)
		assert.Equal(t, []byte("row1\nrow2\n"), s.stored["org/num/term/name.csv"])
	})

	t.Run("PassesPositionalArguments", func(t *testing.T) {
		// The sifter echoes its argv back as the artifact content.
		path := writeSifter(t, `printf 'args.txt\n%s %s %s %s %s\n' "$1" "$2" "$3" "$4" "$5"`)
		s := newMemSink()
		engine := NewEngine("/venv", "/platform", s, nil)

		artifact, err := engine.Run(ctx, path, "course-1", []string{"--flag", "value"})
		require.NoError(t, err)
		assert.Equal(t, []byte("/venv /platform course-1 --flag value\n"), artifact.Content)
	})

	t.Run("EmptyOutputIsDeliberateNoOp", func(t *testing.T) {
		path := writeSifter(t, `exit 0`)
		s := newMemSink()
		engine := NewEngine("/venv", "/platform", s, nil)

		artifact, err := engine.Run(ctx, path, "course-1", nil)
		require.NoError(t, err)
		assert.Nil(t, artifact)
		assert.Empty(t, s.stored)
	})

	t.Run("NonZeroExitFailsWithStderr", func(t *testing.T) {
		path := writeSifter(t, "printf 'partial.csv\\nrow\\n'\necho 'boom happened' >&2\nexit 3")
		s := newMemSink()
		engine := NewEngine("/venv", "/platform", s, nil)

		artifact, err := engine.Run(ctx, path, "course-1", nil)
		assert.Nil(t, artifact)

		var execErr *ExecutionError
		require.ErrorAs(t, err, &execErr)
		assert.Equal(t, 3, execErr.ExitCode)
		assert.Contains(t, execErr.Stderr, "boom happened")
		assert.Contains(t, execErr.CommandLine, path)

		// No artifact regardless of partial stdout.
		assert.Empty(t, s.stored)
	})

	t.Run("FilenameOnlyOutput", func(t *testing.T) {
		path := writeSifter(t, `printf 'lonely.txt'`)
		s := newMemSink()
		engine := NewEngine("/venv", "/platform", s, nil)

		artifact, err := engine.Run(ctx, path, "course-1", nil)
		require.NoError(t, err)
		assert.Equal(t, "lonely.txt", artifact.Filename)
		assert.Empty(t, artifact.Content)
	})

	t.Run("CRLFTerminatorStripped", func(t *testing.T) {
		path := writeSifter(t, `printf 'name.csv\r\ncontent'`)
		s := newMemSink()
		engine := NewEngine("/venv", "/platform", s, nil)

		artifact, err := engine.Run(ctx, path, "course-1", nil)
		require.NoError(t, err)
		assert.Equal(t, "name.csv", artifact.Filename)
		assert.Equal(t, []byte("content"), artifact.Content)
	})

	t.Run("TimeoutKillsHungSifter", func(t *testing.T) {
		path := writeSifter(t, `sleep 30`)
		s := newMemSink()
		engine := NewEngine("/venv", "/platform", s, nil, WithTimeout(100*time.Millisecond))

		start := time.Now()
		_, err := engine.Run(ctx, path, "course-1", nil)
		require.Error(t, err)
		assert.Less(t, time.Since(start), 10*time.Second)
	})
}
