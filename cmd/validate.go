package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/initializ/stepforge"
	"github.com/initializ/stepforge/hooks"
	"github.com/initializ/stepforge/types"
	"github.com/initializ/stepforge/validate"
)

var strictWarnings bool

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate stepforge.yaml",
	RunE:  runValidate,
}

func init() {
	validateCmd.Flags().BoolVar(&strictWarnings, "strict", false, "treat warnings as errors")
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfgPath, err := configPath()
	if err != nil {
		return err
	}
	data, err := os.ReadFile(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	result := &validate.ValidationResult{}

	schemaErrs, err := validate.ValidatePipelineYAML(data)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("schema: %v", err))
	}
	for _, e := range schemaErrs {
		result.Errors = append(result.Errors, fmt.Sprintf("schema: %s", e))
	}

	// Semantic checks only make sense once the document parses.
	if cfg, err := types.ParsePipelineConfig(data); err != nil {
		result.Errors = append(result.Errors, err.Error())
	} else {
		reg := hooks.NewDefaultRegistry(hooks.Env{WorkDir: filepath.Dir(cfgPath)})
		semantic := stepforge.Validate(cfg, reg)
		result.Errors = append(result.Errors, semantic.Errors...)
		result.Warnings = append(result.Warnings, semantic.Warnings...)
	}

	for _, w := range result.Warnings {
		fmt.Fprintf(stderr, "WARNING: %s\n", w)
	}
	for _, e := range result.Errors {
		fmt.Fprintf(stderr, "ERROR: %s\n", e)
	}

	if strictWarnings && len(result.Warnings) > 0 {
		return fmt.Errorf("validation failed: %d warning(s) treated as errors in strict mode", len(result.Warnings))
	}

	if !result.IsValid() {
		return fmt.Errorf("validation failed: %d error(s)", len(result.Errors))
	}

	fmt.Fprintln(stdout, "Validation passed.")
	return nil
}
