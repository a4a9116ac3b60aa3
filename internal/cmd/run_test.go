package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/siftworks/siftx/internal/config"
)

func TestResolveLocators(t *testing.T) {
	resetFlags := func() {
		runVenv = ""
		runPlatform = ""
	}

	t.Run("NoConfigNoFlags", func(t *testing.T) {
		resetFlags()
		venv, platformRoot, sifterDir := resolveLocators(nil)
		assert.Empty(t, venv)
		assert.Empty(t, platformRoot)
		assert.Equal(t, config.DefaultSifterDir, sifterDir)
	})

	t.Run("ConfigFillsGaps", func(t *testing.T) {
		resetFlags()
		cfg := &config.Config{
			EdxVenvPath:     "/cfg/venv",
			EdxPlatformPath: "/cfg/platform",
			SifterDir:       "/cfg/sifters",
		}
		venv, platformRoot, sifterDir := resolveLocators(cfg)
		assert.Equal(t, "/cfg/venv", venv)
		assert.Equal(t, "/cfg/platform", platformRoot)
		assert.Equal(t, "/cfg/sifters", sifterDir)
	})

	t.Run("FlagsBeatConfig", func(t *testing.T) {
		resetFlags()
		runVenv = "/flag/venv"
		runPlatform = "/flag/platform"
		t.Cleanup(resetFlags)

		cfg := &config.Config{
			EdxVenvPath:     "/cfg/venv",
			EdxPlatformPath: "/cfg/platform",
		}
		venv, platformRoot, _ := resolveLocators(cfg)
		assert.Equal(t, "/flag/venv", venv)
		assert.Equal(t, "/flag/platform", platformRoot)
	})
}

func TestExitCodeError(t *testing.T) {
	err := exitError(128, assert.AnError)
	var ec *exitCodeError
	assert.ErrorAs(t, err, &ec)
	assert.Equal(t, 128, ec.code)
	assert.ErrorIs(t, err, assert.AnError)
}
