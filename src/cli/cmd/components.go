package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sofmeright/crtb/src/component"
	"github.com/sofmeright/crtb/src/manifest"
	"github.com/sofmeright/crtb/src/output"
)

var componentsKinds []string

var componentsCmd = &cobra.Command{
	Use:     "components",
	Aliases: []string{"ls"},
	Short:   "List configured components and what is deployed",
	RunE:    runComponents,
}

func init() {
	componentsCmd.Flags().StringSliceVar(&componentsKinds, "kind", nil, "only components of these kinds (comma-separated)")
	rootCmd.AddCommand(componentsCmd)
}

func runComponents(cmd *cobra.Command, args []string) error {
	all, err := cfg.ComponentList()
	if err != nil {
		return err
	}
	comps, err := selectComponents(all, nil, componentsKinds)
	if err != nil {
		return err
	}

	m := manifest.Load(cfg.ServerRoot(), logger)
	color := output.UseColor()
	w := cmd.OutOrStdout()

	output.ContextBlock(w, []output.KV{
		{Key: "flavor", Value: cfg.Server.Flavor},
		{Key: "server", Value: cfg.Server.Root},
	})

	sec := output.NewSection(w, "Components", 0, color)
	if len(comps) == 0 {
		sec.Row("%s", output.Dimmed("no components configured", color))
	}
	for _, c := range comps {
		deployed := output.Dimmed("not deployed", color)
		if paths := m.Paths(c.ID()); len(paths) > 0 {
			deployed = fmt.Sprintf("%d path(s)", len(paths))
		}
		sec.Row("%-24s %-6s %-7s %s", c.ID(), sourceLabel(c.Source), c.BuildSpec().Type(), deployed)
	}
	sec.Close()
	return nil
}

func sourceLabel(s component.Source) string {
	if s == nil {
		return "-"
	}
	return component.SourceType(s)
}
