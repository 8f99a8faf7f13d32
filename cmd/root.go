// Package cmd implements the stepforge CLI commands.
package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/initializ/stepforge/config"
	"github.com/initializ/stepforge/logging"
)

var (
	cfgFile       string
	verbose       bool
	themeOverride string

	appVersion = "dev"

	// stdout and stderr are swapped out by tests.
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

var rootCmd = &cobra.Command{
	Use:   "stepforge",
	Short: "stepforge — run ordered build steps with hooks",
	Long:  "stepforge runs the steps declared in stepforge.yaml in order, invoking each step's hooks against a shared property bag.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", config.DefaultFile, "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().StringVar(&themeOverride, "theme", "", "TUI color theme: dark, light, or auto")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(stepsCmd)
}

// SetVersionInfo sets the version and commit for display.
func SetVersionInfo(version, commit string) {
	appVersion = version
	rootCmd.Version = version
	rootCmd.SetVersionTemplate(fmt.Sprintf("stepforge %s (commit: %s)\n", version, commit))
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func configPath() (string, error) {
	cfgPath := cfgFile
	if !filepath.IsAbs(cfgPath) {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("getting working directory: %w", err)
		}
		cfgPath = filepath.Join(wd, cfgPath)
	}
	return cfgPath, nil
}

// diagnostics returns the lifecycle logger. Without --verbose the pipeline
// stays quiet apart from warnings and errors.
func diagnostics() logging.Logger {
	l := logging.NewJSONLogger(stderr, verbose)
	if verbose {
		return l
	}
	return quietLogger{l}
}

type quietLogger struct{ logging.Logger }

func (quietLogger) Info(string, map[string]any) {}
