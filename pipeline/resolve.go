package pipeline

import (
	"fmt"
	"strings"

	"github.com/kbukum/pipegraph/errors"
	"github.com/kbukum/pipegraph/logger"
)

// Resolve merges the jobs of every included pipeline, recursively, into a
// copy of def. Included jobs come first, in include order. When two
// pipelines declare the same job id the first one reached wins and the
// shadowed one is logged as a warning; duplicates inside a single file are
// kept so the graph loader reports them.
func Resolve(def *Definition, loader Loader, opts ...ResolveOption) (*Definition, error) {
	r := &resolver{
		loader:   loader,
		log:      logger.Nop(),
		stack:    []string{def.Name},
		resolved: make(map[string]bool),
		seen:     make(map[string]string),
	}
	for _, opt := range opts {
		opt(r)
	}
	out := &Definition{Name: def.Name, Gate: def.Gate, Source: def.Source}
	jobs, err := r.resolve(def)
	if err != nil {
		return nil, err
	}
	out.Jobs = jobs
	return out, nil
}

// ResolveOption configures Resolve.
type ResolveOption func(*resolver)

// WithResolveLogger sets the logger that reports shadowed jobs.
func WithResolveLogger(l *logger.Logger) ResolveOption {
	return func(r *resolver) {
		if l != nil {
			r.log = l
		}
	}
}

type resolver struct {
	loader Loader
	log    *logger.Logger
	// stack is the current include chain, for cycle detection.
	stack []string
	// resolved holds includes already merged via another branch.
	resolved map[string]bool
	// seen maps job ids merged so far to the pipeline that declared them.
	seen map[string]string
}

func (r *resolver) resolve(def *Definition) ([]JobDef, error) {
	var jobs []JobDef
	for _, name := range def.Includes {
		if r.onStack(name) {
			chain := append(append([]string(nil), r.stack...), name)
			return nil, errors.InvalidDefinition(fmt.Sprintf("circular include: %s", strings.Join(chain, " -> "))).
				WithDetail("chain", chain)
		}
		if r.resolved[name] {
			continue
		}
		if r.loader == nil {
			return nil, errors.InvalidDefinition(fmt.Sprintf("pipeline %q includes %q but no loader is configured", def.Name, name))
		}

		sub, err := r.loader.Load(name)
		if err != nil {
			return nil, fmt.Errorf("loading include %q: %w", name, err)
		}
		r.stack = append(r.stack, name)
		subJobs, err := r.resolve(sub)
		r.stack = r.stack[:len(r.stack)-1]
		if err != nil {
			return nil, err
		}
		r.resolved[name] = true
		jobs = append(jobs, subJobs...)
	}

	// ids merged earlier win over this file's declarations
	own := make([]JobDef, 0, len(def.Jobs))
	for _, j := range def.Jobs {
		if kept, ok := r.seen[j.ID]; ok {
			r.log.Warn("job shadowed by an earlier definition", logger.Fields(
				logger.FieldJob, j.ID,
				"kept_from", kept,
				"dropped_from", def.Name,
				"source", def.Source,
			))
			continue
		}
		own = append(own, j)
	}
	for _, j := range own {
		if _, ok := r.seen[j.ID]; !ok {
			r.seen[j.ID] = def.Name
		}
	}
	return append(jobs, own...), nil
}

func (r *resolver) onStack(name string) bool {
	for _, n := range r.stack {
		if n == name {
			return true
		}
	}
	return false
}
