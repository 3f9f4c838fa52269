package pipeline

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Load reads a pipeline definition from a YAML file and validates it.
// When the file does not set a name, the directory name is used.
func Load(path string) (*Pipeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pipeline file: %w", err)
	}
	return Parse(data, filepath.Base(filepath.Dir(path)))
}

// Parse decodes a pipeline definition and validates its dependency graph.
func Parse(data []byte, defaultName string) (*Pipeline, error) {
	var p Pipeline
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse pipeline: %w", err)
	}
	if p.Name == "" {
		p.Name = defaultName
	}
	if len(p.Stages) == 0 {
		return nil, fmt.Errorf("pipeline %q defines no stages", p.Name)
	}
	for _, stage := range p.Stages {
		stage.Status = StatusPending
		for _, job := range stage.Jobs {
			job.Status = StatusPending
		}
	}
	p.Status = StatusPending
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}
