package deploy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"drydock/pipeline"
	"drydock/rollback"
)

// EnvType selects which deploy action ships a release to an environment
type EnvType string

const (
	EnvDevelopment EnvType = "development" // local container runtime
	EnvTest        EnvType = "test"        // compose project
	EnvStaging     EnvType = "staging"     // compose project
	EnvProduction  EnvType = "production"  // cluster manifest
	EnvSSH         EnvType = "ssh"         // rsync over ssh
)

// Valid reports whether t is a known environment type
func (t EnvType) Valid() bool {
	switch t {
	case EnvDevelopment, EnvTest, EnvStaging, EnvProduction, EnvSSH:
		return true
	}
	return false
}

// HealthCheck is a post-deploy probe. All configured checks must pass
// for a deployment to be judged healthy.
type HealthCheck struct {
	Type     string            `yaml:"type" json:"type"` // "http" or "tcp"
	Endpoint string            `yaml:"endpoint" json:"endpoint"`
	Timeout  pipeline.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// Hooks are shell commands run around the deploy action. They are
// best-effort: a failing hook is logged, never fatal.
type Hooks struct {
	PreDeploy  []string `yaml:"pre_deploy,omitempty" json:"pre_deploy,omitempty"`
	PostDeploy []string `yaml:"post_deploy,omitempty" json:"post_deploy,omitempty"`
}

// RollbackSpec configures how a failed deployment to this environment is
// recovered: the strategy, and optional custom steps replacing the
// strategy's default sequence.
type RollbackSpec struct {
	Strategy rollback.Strategy `yaml:"strategy,omitempty" json:"strategy,omitempty"`
	Steps    []rollback.Step   `yaml:"steps,omitempty" json:"steps,omitempty"`
}

// Environment is a deploy target. Read-only during a deployment.
type Environment struct {
	Name         string            `yaml:"name" json:"name"`
	Type         EnvType           `yaml:"type" json:"type"`
	Connection   map[string]string `yaml:"connection,omitempty" json:"connection,omitempty"`
	Variables    map[string]string `yaml:"variables,omitempty" json:"variables,omitempty"`
	Hooks        Hooks             `yaml:"hooks,omitempty" json:"hooks,omitempty"`
	HealthChecks []HealthCheck     `yaml:"health_checks,omitempty" json:"health_checks,omitempty"`
	Rollback     RollbackSpec      `yaml:"rollback,omitempty" json:"rollback,omitempty"`
}

// Config holds all configured deploy targets
type Config struct {
	Environments []Environment `yaml:"environments" json:"environments"`
}

// LoadConfig reads the environments file (top-level "environments:" list)
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read environments config: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse environments config: %w", err)
	}

	for _, env := range config.Environments {
		if env.Name == "" {
			return nil, fmt.Errorf("environment without a name in %s", path)
		}
		if !env.Type.Valid() {
			return nil, fmt.Errorf("environment %q has unknown type %q", env.Name, env.Type)
		}
		for _, check := range env.HealthChecks {
			if check.Type != "http" && check.Type != "tcp" {
				return nil, fmt.Errorf("environment %q has unknown health check type %q", env.Name, check.Type)
			}
		}
		if env.Rollback.Strategy != "" && !env.Rollback.Strategy.Valid() {
			return nil, fmt.Errorf("environment %q has unknown rollback strategy %q", env.Name, env.Rollback.Strategy)
		}
	}

	return &config, nil
}

// Get returns the environment with the given name
func (c *Config) Get(name string) (*Environment, error) {
	for i := range c.Environments {
		if c.Environments[i].Name == name {
			return &c.Environments[i], nil
		}
	}
	return nil, fmt.Errorf("environment '%s' not found", name)
}
