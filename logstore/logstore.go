// Package logstore keeps the output of every executed step on disk, one file
// per step under <dir>/<run id>/<instance>/.
package logstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kbukum/pipegraph/dag"
)

// Store writes step output files. It implements dag.OutputSink.
type Store struct {
	dir string
}

var _ dag.OutputSink = (*Store)(nil)

// New returns a store rooted at dir. The directory is created on first write.
func New(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the root directory.
func (s *Store) Dir() string { return s.dir }

// RunDir returns the directory holding the logs of one run.
func (s *Store) RunDir(runID string) string {
	return filepath.Join(s.dir, sanitize(runID, "run"))
}

// Path returns the file of the index-th step (1-based) of an instance.
func (s *Store) Path(runID, instanceID string, index int, step string) string {
	return filepath.Join(s.RunDir(runID), sanitize(instanceID, "instance"), fmt.Sprintf("%02d-%s.log", index, sanitize(step, "step")))
}

// WriteStep saves the output of a step that ran. Steps skipped by their
// condition leave no file.
func (s *Store) WriteStep(_ context.Context, sc dag.StepContext, res dag.StepResult) error {
	if res.Status == dag.StepSkipped {
		return nil
	}
	index := stepIndex(sc, res.Name)
	path := s.Path(sc.RunID, sc.InstanceID, index, res.Name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("logstore: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# instance: %s\n# step: %s\n# status: %s\n", sc.InstanceID, res.Name, res.Status)
	if res.Status != dag.StepSuccess {
		fmt.Fprintf(&b, "# exit_code: %d\n", res.ExitCode)
	}
	if res.Tag != "" {
		fmt.Fprintf(&b, "# tag: %s\n", res.Tag)
	}
	if res.Err != nil {
		fmt.Fprintf(&b, "# error: %s\n", res.Err)
	}
	fmt.Fprintf(&b, "# duration: %s\n\n", res.Duration)
	b.WriteString(res.Output)

	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("logstore: %w", err)
	}
	return nil
}

// stepIndex is the 1-based position of the step among the instance's
// processed steps; Prior already holds the step being written.
func stepIndex(sc dag.StepContext, name string) int {
	for i := len(sc.Prior) - 1; i >= 0; i-- {
		if sc.Prior[i].Name == name {
			return i + 1
		}
	}
	return len(sc.Prior) + 1
}

// sanitize keeps letters, digits, '.', '-' and '_' and folds every other run
// of characters into a single '_'.
func sanitize(name, fallback string) string {
	var b strings.Builder
	pending := false
	for _, r := range name {
		ok := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') ||
			r == '-' || r == '_' || r == '.'
		if !ok {
			pending = true
			continue
		}
		if pending && b.Len() > 0 {
			b.WriteByte('_')
		}
		pending = false
		b.WriteRune(r)
	}
	clean := strings.Trim(b.String(), ".")
	if clean == "" {
		return fallback
	}
	return clean
}
