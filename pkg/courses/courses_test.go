package courses

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeFakeVenv installs a shell script at <venv>/bin/python so the lister
// exercises the real process boundary.
func writeFakeVenv(t *testing.T, body string) string {
	t.Helper()
	venv := t.TempDir()
	bin := filepath.Join(venv, "bin")
	require.NoError(t, os.Mkdir(bin, 0o755))
	script := "#!/bin/sh\n" + body
	require.NoError(t, os.WriteFile(filepath.Join(bin, "python"), []byte(script), 0o755))
	return venv
}

func TestLister_List(t *testing.T) {
	ctx := context.Background()

	t.Run("OneCoursePerLine", func(t *testing.T) {
		venv := writeFakeVenv(t, `printf 'MITx/6.00x/2013_Spring\nHarvardX/CS50/2013\n'`)
		l := NewLister(venv, t.TempDir())

		got, err := l.List(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"MITx/6.00x/2013_Spring", "HarvardX/CS50/2013"}, got)
	})

	t.Run("EmptyLinesDropped", func(t *testing.T) {
		venv := writeFakeVenv(t, `printf 'a\n\nb\n\n'`)
		l := NewLister(venv, t.TempDir())

		got, err := l.List(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, got)
	})

	t.Run("NoCourses", func(t *testing.T) {
		venv := writeFakeVenv(t, `exit 0`)
		l := NewLister(venv, t.TempDir())

		got, err := l.List(ctx)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("RunsFromPlatformDirectory", func(t *testing.T) {
		venv := writeFakeVenv(t, `pwd`)
		platform := t.TempDir()
		l := NewLister(venv, platform)

		got, err := l.List(ctx)
		require.NoError(t, err)
		require.Len(t, got, 1)
		// Resolve symlinks so macOS /tmp vs /private/tmp compares equal.
		want, err := filepath.EvalSymlinks(platform)
		require.NoError(t, err)
		have, err := filepath.EvalSymlinks(got[0])
		require.NoError(t, err)
		assert.Equal(t, want, have)
	})

	t.Run("CommandFailureSurfacesStderr", func(t *testing.T) {
		venv := writeFakeVenv(t, "echo 'django exploded' >&2\nexit 2")
		l := NewLister(venv, t.TempDir())

		_, err := l.List(ctx)
		var discErr *DiscoveryError
		require.ErrorAs(t, err, &discErr)
		assert.Contains(t, discErr.Output, "django exploded")
		assert.Contains(t, discErr.CommandLine, "dump_course_ids")
	})

	t.Run("MissingInterpreter", func(t *testing.T) {
		l := NewLister(filepath.Join(t.TempDir(), "no-venv"), t.TempDir())

		_, err := l.List(ctx)
		var discErr *DiscoveryError
		require.ErrorAs(t, err, &discErr)
	})
}
