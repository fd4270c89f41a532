package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kbukum/pipegraph/dag"
)

func (a *app) validateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <pipeline.yml>",
		Short: "Check a pipeline definition without running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			_, g, err := a.build(args[0], cfg, a.logger(cfg))
			if err != nil {
				return err
			}

			instances := 0
			for _, id := range g.Order() {
				job, _ := g.Job(id)
				instances += len(dag.Expand(job))
			}
			if a.output == OutputYAML {
				return a.writeYAML(map[string]any{
					"pipeline":  g.Name(),
					"valid":     true,
					"jobs":      g.Len(),
					"instances": instances,
				})
			}
			fmt.Fprintf(a.stdout, "pipeline %s is valid: %d jobs, %d instances\n", g.Name(), g.Len(), instances)
			return nil
		},
	}
}
