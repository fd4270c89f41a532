package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kbukum/pipegraph/version"
)

func (a *app) versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the pipegraph version",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			info := version.Get()
			if a.output == OutputYAML {
				return a.writeYAML(info)
			}
			fmt.Fprintln(a.stdout, info.String())
			return nil
		},
	}
}
