package pipeline

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"go.yaml.in/yaml/v3"

	"github.com/kbukum/pipegraph/errors"
)

// Loader loads pipeline definitions by name.
type Loader interface {
	Load(name string) (*Definition, error)
}

// FileLoader loads pipelines from YAML files on disk.
type FileLoader struct {
	dirs []string
}

var _ Loader = (*FileLoader)(nil)

// NewFileLoader creates a loader that searches the given directories for pipeline YAML files.
func NewFileLoader(dirs ...string) *FileLoader {
	return &FileLoader{dirs: dirs}
}

// Load searches for {name}.yaml and {name}.yml in each directory, first
// directly and then in subdirectories. Directories are tried in order.
func (l *FileLoader) Load(name string) (*Definition, error) {
	for _, dir := range l.dirs {
		if path, ok := findFile(dir, name); ok {
			return LoadFile(path)
		}
	}
	return nil, errors.NotFound("pipeline", name).WithDetail("search_path", l.dirs)
}

func findFile(dir, name string) (string, bool) {
	exts := []string{".yaml", ".yml"}
	for _, ext := range exts {
		path := filepath.Join(dir, name+ext)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, true
		}
	}

	var found string
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		for _, ext := range exts {
			if d.Name() == name+ext {
				found = path
				return fs.SkipAll
			}
		}
		return nil
	})
	return found, found != ""
}

// LoadFile reads one definition from path. Includes are not resolved.
func LoadFile(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return nil, errors.NotFound("pipeline file", path).WithCause(err)
		}
		return nil, errors.Internal(fmt.Errorf("reading %s: %w", path, err))
	}
	return Parse(data, path)
}

// Parse decodes a definition. Unknown keys are rejected so that typos such
// as "depend_on" do not silently drop dependencies.
func Parse(data []byte, source string) (*Definition, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var def Definition
	if err := dec.Decode(&def); err != nil {
		if stderrors.Is(err, io.EOF) {
			return nil, errors.InvalidDefinition(fmt.Sprintf("%s: empty pipeline definition", source))
		}
		return nil, errors.InvalidDefinition(fmt.Sprintf("parsing %s: %v", source, err)).WithCause(err)
	}
	def.Source = source
	return &def, nil
}
