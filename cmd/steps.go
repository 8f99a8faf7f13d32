package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/initializ/stepforge/internal/tui"
	"github.com/initializ/stepforge/pipeline"
)

var stepsYAML bool

var stepsCmd = &cobra.Command{
	Use:   "steps",
	Short: "Show the resolved step order and hooks",
	RunE:  runSteps,
}

func init() {
	stepsCmd.Flags().BoolVar(&stepsYAML, "yaml", false, "print the plan as YAML")
}

// stepPlan is one entry of the resolved plan.
type stepPlan struct {
	Index  int      `yaml:"index"`
	Name   string   `yaml:"name"`
	Before string   `yaml:"before,omitempty"`
	Hooks  []string `yaml:"hooks,omitempty"`
	After  string   `yaml:"after,omitempty"`
}

func planOf(p *pipeline.Pipeline) []stepPlan {
	steps := p.Steps()
	plan := make([]stepPlan, 0, len(steps))
	for i, s := range steps {
		entry := stepPlan{Index: i, Name: s}
		d := p.DefaultHooks(s)
		if d.Before != nil {
			entry.Before = d.Before.Name()
		}
		if d.After != nil {
			entry.After = d.After.Name()
		}
		for _, h := range p.Hooks(s) {
			entry.Hooks = append(entry.Hooks, h.Name())
		}
		plan = append(plan, entry)
	}
	return plan
}

func runSteps(cmd *cobra.Command, args []string) error {
	_, p, err := loadPipeline()
	if err != nil {
		return err
	}
	plan := planOf(p)

	if stepsYAML {
		data, err := yaml.Marshal(plan)
		if err != nil {
			return fmt.Errorf("marshalling plan: %w", err)
		}
		_, err = stdout.Write(data)
		return err
	}

	styles := tui.NewStyleSet(tui.DetectTheme(themeOverride))
	for _, s := range plan {
		fmt.Fprintf(stdout, "%s %s\n", styles.StepBadgePending.Render(fmt.Sprintf("%d/%d", s.Index+1, len(plan))), styles.PrimaryTxt.Render(s.Name))
		if s.Before != "" {
			fmt.Fprintf(stdout, "    %s %s\n", styles.DimTxt.Render("before"), s.Before)
		}
		for _, h := range s.Hooks {
			fmt.Fprintf(stdout, "    %s %s\n", styles.DimTxt.Render("hook  "), h)
		}
		if s.After != "" {
			fmt.Fprintf(stdout, "    %s %s\n", styles.DimTxt.Render("after "), s.After)
		}
	}
	return nil
}
