package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/initializ/stepforge"
	"github.com/initializ/stepforge/config"
	"github.com/initializ/stepforge/hooks"
	"github.com/initializ/stepforge/internal/tui"
	"github.com/initializ/stepforge/logging"
	"github.com/initializ/stepforge/pipeline"
	"github.com/initializ/stepforge/types"
)

var useTUI bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run every step of the pipeline in order",
	RunE:  runRun,
}

func init() {
	runCmd.Flags().BoolVar(&useTUI, "tui", false, "show interactive progress (terminal only)")
}

// loadPipeline loads, validates and assembles the configured pipeline.
func loadPipeline() (*types.PipelineConfig, *pipeline.Pipeline, error) {
	cfgPath, err := configPath()
	if err != nil {
		return nil, nil, err
	}
	cfg, err := config.LoadPipelineConfig(cfgPath)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}

	diag := diagnostics()
	// Hooks log through hookLog; the pipeline relabels it before each call.
	hookLog := logging.NewLabeledLogger(logging.NewJSONLogger(stderr, verbose), cfg.Name)
	reg := hooks.NewDefaultRegistry(hooks.Env{WorkDir: filepath.Dir(cfgPath), Log: hookLog})

	result := stepforge.Validate(cfg, reg)
	for _, w := range result.Warnings {
		fmt.Fprintf(stderr, "WARNING: %s\n", w)
	}
	if !result.IsValid() {
		for _, e := range result.Errors {
			fmt.Fprintf(stderr, "ERROR: %s\n", e)
		}
		return nil, nil, fmt.Errorf("config validation failed: %d error(s)", len(result.Errors))
	}

	p, err := stepforge.Assemble(cfg, reg, stepforge.Options{
		Logger:     diag,
		HookLogger: hookLog,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("assembling pipeline: %w", err)
	}
	return cfg, p, nil
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, p, err := loadPipeline()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	styles := tui.NewStyleSet(tui.DetectTheme(themeOverride))
	fmt.Fprintf(stdout, "%s %s\n", styles.Title.Render(cfg.Name), styles.SecondaryTxt.Render("stepforge "+appVersion))

	if useTUI && term.IsTerminal(int(os.Stdout.Fd())) {
		if err := tui.RunProgress(ctx, p, styles, stdout); err != nil {
			return fmt.Errorf("build failed: %w", err)
		}
	} else if err := runSteps(ctx, p, styles); err != nil {
		return err
	}

	if box := styles.Properties(p.Bag().Snapshot()); box != "" {
		fmt.Fprintln(stdout, box)
	}
	fmt.Fprintln(stdout, styles.SuccessTxt.Render("Build complete."))
	return nil
}

// runSteps drives the traversal without the interactive view, printing one
// line per finished step.
func runSteps(ctx context.Context, p *pipeline.Pipeline, styles *tui.StyleSet) error {
	total := p.Len()
	for bag, err := range p.Iterate(ctx) {
		if err != nil {
			var he *pipeline.HookError
			if errors.As(err, &he) {
				fmt.Fprintln(stdout, styles.StepLine(he.Index, total, he.Step, err))
				return fmt.Errorf("build failed: %w", err)
			}
			// Cancelled between steps: no step failed.
			fmt.Fprintln(stdout, styles.WarningTxt.Render("Build cancelled: "+err.Error()))
			return fmt.Errorf("build cancelled: %w", err)
		}
		fmt.Fprintln(stdout, styles.StepLine(bag.StepIndex(), total, bag.Step(), nil))
	}
	return nil
}
