package schema

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// definitionFile is the on-disk form: either a single definition or a list
type definitionFile struct {
	Definition  `yaml:",inline"`
	Definitions []*Definition `yaml:"definitions,omitempty"`
}

// Decode reads one or more definitions from YAML
func Decode(r io.Reader) ([]*Definition, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read definitions: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%w: empty document", ErrInvalidDefinition)
	}

	var f definitionFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse definitions: %w", err)
	}

	if len(f.Definitions) > 0 {
		if f.ID != "" {
			return nil, fmt.Errorf("%w: both id and definitions set", ErrInvalidDefinition)
		}
		return f.Definitions, nil
	}
	if f.ID == "" {
		return nil, fmt.Errorf("%w: missing id", ErrInvalidDefinition)
	}
	def := f.Definition
	return []*Definition{&def}, nil
}

// LoadFile registers the definitions held in a YAML file
func LoadFile(reg *Registry, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open definitions: %w", err)
	}
	defer f.Close()

	defs, err := Decode(f)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", path, err)
	}
	for i, def := range defs {
		if err := reg.Register(def); err != nil {
			return i, fmt.Errorf("%s: %w", path, err)
		}
	}
	return len(defs), nil
}

// LoadDir registers every *.yaml and *.yml file in dir, in name order
func LoadDir(reg *Registry, dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read schema directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext == ".yaml" || ext == ".yml" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	total := 0
	for _, name := range names {
		n, err := LoadFile(reg, filepath.Join(dir, name))
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
