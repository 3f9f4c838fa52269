package deploy

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "environments.yml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
environments:
  - name: staging
    type: staging
    connection:
      compose_dir: /srv/app
    variables:
      REPLICAS: "2"
    hooks:
      pre_deploy:
        - echo starting
    health_checks:
      - type: http
        endpoint: http://localhost:8080/health
        timeout: 5s
    rollback:
      strategy: rolling
      steps:
        - name: drain
          command: echo draining
          timeout: 30s
  - name: prod
    type: production
    connection:
      manifest: deploy/k8s.yml
`)

	config, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(config.Environments) != 2 {
		t.Fatalf("expected 2 environments, got %d", len(config.Environments))
	}

	env, err := config.Get("staging")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if env.Type != EnvStaging {
		t.Errorf("expected staging type, got %q", env.Type)
	}
	if env.Connection["compose_dir"] != "/srv/app" {
		t.Errorf("unexpected connection %v", env.Connection)
	}
	if env.Rollback.Strategy != "rolling" || len(env.Rollback.Steps) != 1 {
		t.Errorf("unexpected rollback spec %+v", env.Rollback)
	}
	if env.HealthChecks[0].Timeout.Std().Seconds() != 5 {
		t.Errorf("expected 5s check timeout, got %s", env.HealthChecks[0].Timeout.Std())
	}
}

func TestLoadConfigRejectsBadInput(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"missing name", "environments:\n  - type: staging"},
		{"unknown type", "environments:\n  - name: x\n    type: mainframe"},
		{"unknown check type", "environments:\n  - name: x\n    type: test\n    health_checks:\n      - type: icmp\n        endpoint: host"},
		{"unknown rollback strategy", "environments:\n  - name: x\n    type: test\n    rollback:\n      strategy: hope"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := LoadConfig(writeConfig(t, tc.yaml)); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

func TestConfigGetUnknownEnvironment(t *testing.T) {
	config := &Config{Environments: []Environment{{Name: "dev", Type: EnvDevelopment}}}
	if _, err := config.Get("prod"); err == nil {
		t.Fatal("expected an error for an unknown environment")
	}
}
