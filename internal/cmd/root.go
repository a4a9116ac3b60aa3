// Package cmd implements the siftx command line.
package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/siftworks/siftx/internal/config"
	"github.com/siftworks/siftx/internal/observability"
)

var rootCmd = &cobra.Command{
	Use:   "siftx",
	Short: "Run sifters against platform course data",
	Long: `siftx runs analysis scripts ("sifters") against course data and
delivers their output to the grade download storage so results appear on
the instructor dashboard.

A sifter is any executable that prints the artifact filename as its first
line of output and the artifact content as the rest.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var (
	rootLogLevel string

	logger *zap.Logger
)

func init() {
	rootCmd.PersistentFlags().StringVar(&rootLogLevel, "log-level", "", "Log level (debug, info, warn, error)")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		l, err := observability.NewCLILogger(rootLogLevel)
		if err != nil {
			return err
		}
		logger = l
		return nil
	}
}

// exitCodeError carries an explicit process exit code through cobra.
type exitCodeError struct {
	code int
	err  error
}

func (e *exitCodeError) Error() string {
	return e.err.Error()
}

func (e *exitCodeError) Unwrap() error {
	return e.err
}

func exitError(code int, err error) error {
	return &exitCodeError{code: code, err: err}
}

// Execute runs the command line and terminates the process with the
// command's exit code.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		var ec *exitCodeError
		if errors.As(err, &ec) {
			os.Exit(ec.code)
		}
		os.Exit(1)
	}
}

// loadConfig loads the configuration file when one exists. The CLI can run
// without one as long as the platform locators are given as flags; the web
// service cannot.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		var cfgErr *config.ConfigurationError
		if errors.As(err, &cfgErr) && errors.Is(err, config.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return cfg, nil
}
