package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	craberr "github.com/opst/crabclient/cmd/crab/errors"
	"gopkg.in/yaml.v3"
)

// Load reads a task configuration from a YAML file like
//
//	General:
//	  requestName: ttbar_2024
//	JobType:
//	  pluginName: Analysis
//	  psetName: pset.py
//
// Sections and keys are taken in the order written in the file.
// The result is not validated yet.
//
// A missing file is reported as an error wrapping errors.ErrConfigMissing.
func Load(path string) (*Configuration, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", craberr.ErrConfigMissing, path)
		}
		return nil, err
	}
	defer f.Close()

	c, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Read reads a task configuration in YAML from r. See Load.
func Read(r io.Reader) (*Configuration, error) {
	doc := yaml.Node{}
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return New(), nil
		}
		return nil, fmt.Errorf("%w: %w", craberr.ErrConfig, err)
	}

	root := &doc
	if root.Kind == yaml.DocumentNode && 0 < len(root.Content) {
		root = root.Content[0]
	}
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: line %d: top level should be a mapping of sections", craberr.ErrConfig, root.Line)
	}

	c := New()
	for i := 0; i+1 < len(root.Content); i += 2 {
		name, body := root.Content[i], root.Content[i+1]
		if err := c.DeclareSection(name.Value); err != nil {
			return nil, err
		}
		if body.Kind == yaml.ScalarNode && body.Tag == "!!null" {
			continue
		}
		if body.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("%w: line %d: section %s should be a mapping", craberr.ErrConfig, body.Line, name.Value)
		}
		for j := 0; j+1 < len(body.Content); j += 2 {
			key, val := body.Content[j], body.Content[j+1]
			var v any
			if err := val.Decode(&v); err != nil {
				return nil, fmt.Errorf("%w: line %d: %s.%s: %w", craberr.ErrConfig, val.Line, name.Value, key.Value, err)
			}
			if err := c.SetValue(name.Value, key.Value, v); err != nil {
				return nil, err
			}
		}
	}
	return c, nil
}
