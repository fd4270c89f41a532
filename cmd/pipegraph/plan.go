package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kbukum/pipegraph/dag"
)

type planView struct {
	Pipeline string      `yaml:"pipeline"`
	Gate     string      `yaml:"gate,omitempty"`
	Levels   []levelView `yaml:"levels"`
}

type levelView struct {
	Level int           `yaml:"level"`
	Jobs  []planJobView `yaml:"jobs"`
}

type planJobView struct {
	ID        string   `yaml:"id"`
	DependsOn []string `yaml:"depends_on,omitempty"`
	When      string   `yaml:"when"`
	Steps     []string `yaml:"steps"`
	Instances []string `yaml:"instances"`
}

func (a *app) planCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "plan <pipeline.yml>",
		Short: "Print the execution levels and expanded instances of a pipeline",
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

			view := buildPlan(g)
			if a.output == OutputYAML {
				return a.writeYAML(view)
			}
			a.printPlan(view)
			return nil
		},
	}
}

func buildPlan(g *dag.Graph) planView {
	view := planView{Pipeline: g.Name(), Gate: g.Gate()}
	for i, level := range g.Levels() {
		lv := levelView{Level: i}
		for _, id := range level {
			job, _ := g.Job(id)
			jv := planJobView{ID: id, DependsOn: g.Dependencies(id), When: string(job.Policy())}
			for _, s := range job.Steps {
				jv.Steps = append(jv.Steps, s.Name)
			}
			for _, inst := range dag.Expand(job) {
				jv.Instances = append(jv.Instances, inst.ID)
			}
			lv.Jobs = append(lv.Jobs, jv)
		}
		view.Levels = append(view.Levels, lv)
	}
	return view
}

func (a *app) printPlan(view planView) {
	header := "pipeline " + view.Pipeline
	if view.Gate != "" {
		header += " (gate: " + view.Gate + ")"
	}
	fmt.Fprintln(a.stdout, header)
	for _, lv := range view.Levels {
		fmt.Fprintf(a.stdout, "level %d\n", lv.Level)
		for _, job := range lv.Jobs {
			line := "  " + job.ID
			if len(job.DependsOn) > 0 {
				line += " <- " + strings.Join(job.DependsOn, ", ")
			}
			if job.When != string(dag.RunOnSuccess) {
				line += " [when: " + job.When + "]"
			}
			fmt.Fprintln(a.stdout, line)
			if len(job.Instances) > 1 {
				for _, id := range job.Instances {
					fmt.Fprintln(a.stdout, "    "+id)
				}
			}
		}
	}
}
