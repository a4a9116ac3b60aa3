package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/siftworks/siftx/internal/config"
	"github.com/siftworks/siftx/internal/platform"
	"github.com/siftworks/siftx/pkg/courses"
	"github.com/siftworks/siftx/pkg/sifter"
)

// CLI exit codes. Sifter failures use 128 so batch callers can tell them
// from argument and configuration problems.
const (
	exitUnknownSifter   = -1
	exitUnknownCourse   = -2
	exitMissingSettings = -2
	exitSifterFailure   = 128
)

var runCmd = &cobra.Command{
	Use:   "run <sifter> [extra args...]",
	Short: "Run a sifter against one or all courses",
	Long: `Run a sifter against one course, or against every course the
platform reports when --course is omitted. Extra arguments after the
sifter name are passed through to the sifter.

Example:
  siftx run dump_grades -c MITx/6.00x/2013_Spring
  siftx run dump_grades -v /edx/app/edxapp/venvs/edxapp -e /edx/app/edxapp/edx-platform`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

var (
	runCourse   string
	runVenv     string
	runPlatform string
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runCourse, "course", "c", "", "Course ID e.g. org/number/term (default: all courses)")
	runCmd.Flags().StringVarP(&runVenv, "venv", "v", "", "Virtualenv root path for the platform")
	runCmd.Flags().StringVarP(&runPlatform, "edx-platform", "e", "", "Root path to the platform checkout")
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return exitError(1, err)
	}

	venv, platformRoot, sifterDir := resolveLocators(cfg)
	if venv == "" || platformRoot == "" {
		return exitError(1, fmt.Errorf("virtualenv and platform paths are required (flags or configuration)"))
	}

	registry := sifter.NewRegistry(sifter.DefaultLayers(sifterDir))
	entry, err := registry.Lookup(args[0])
	if err != nil {
		return exitError(exitUnknownSifter, fmt.Errorf("you have specified a sifter that doesn't exist"))
	}
	extraArgs := args[1:]

	courseList, err := courses.NewLister(venv, platformRoot).List(ctx)
	if err != nil {
		return exitError(exitUnknownSifter, err)
	}

	scopes := courseList
	if runCourse != "" {
		if !contains(courseList, runCourse) {
			return exitError(exitUnknownCourse, fmt.Errorf(
				"course doesn't exist, please pick from:\n%s", strings.Join(courseList, "\n")))
		}
		scopes = []string{runCourse}
	}

	settings, err := platform.LoadStorageSettings(platformRoot)
	if err != nil {
		return exitError(exitMissingSettings, err)
	}
	deliverySink, err := settings.NewSink(ctx)
	if err != nil {
		return exitError(exitMissingSettings, err)
	}
	defer func() { _ = deliverySink.Close() }()

	engineOpts := []sifter.EngineOption{}
	if cfg != nil && cfg.SifterTimeout > 0 {
		engineOpts = append(engineOpts, sifter.WithTimeout(cfg.SifterTimeout))
	}
	engine := sifter.NewEngine(venv, platformRoot, deliverySink, logger, engineOpts...)

	// Each course runs to completion before the next begins; one failure
	// is recorded but does not halt the batch.
	failed := false
	for _, scope := range scopes {
		artifact, err := engine.Run(ctx, entry.Path, scope, extraArgs)
		if err != nil {
			failed = true
			fmt.Fprintf(os.Stderr, "sifter failed for %s: %v\n", scope, err)
			continue
		}
		if artifact != nil {
			logger.Info("artifact delivered",
				zap.String("course_id", scope),
				zap.String("filename", artifact.Filename))
		}
	}
	if failed {
		return exitError(exitSifterFailure, fmt.Errorf("one or more sifter runs failed"))
	}
	return nil
}

// resolveLocators merges flags over configuration defaults.
func resolveLocators(cfg *config.Config) (venv, platformRoot, sifterDir string) {
	venv = runVenv
	platformRoot = runPlatform
	sifterDir = config.DefaultSifterDir
	if cfg != nil {
		if venv == "" {
			venv = cfg.EdxVenvPath
		}
		if platformRoot == "" {
			platformRoot = cfg.EdxPlatformPath
		}
		if cfg.SifterDir != "" {
			sifterDir = cfg.SifterDir
		}
	}
	return venv, platformRoot, sifterDir
}

func contains(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}
