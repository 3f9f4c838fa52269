package runner

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadProjects(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "projects.yml")
	content := `
projects:
  - name: web-app
    path: ./web-app
    description: Frontend service
  - name: api
    path: ./api
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	config, err := LoadProjects(configPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(config.Projects) != 2 {
		t.Fatalf("expected 2 projects, got %d", len(config.Projects))
	}

	project, err := config.GetProject("web-app")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if project.Description != "Frontend service" {
		t.Errorf("unexpected project %+v", project)
	}

	if _, err := config.GetProject("ghost"); err == nil {
		t.Error("expected an error for an unknown project")
	}
}

func TestProjectValidate(t *testing.T) {
	base := t.TempDir()
	projectDir := filepath.Join(base, "web-app")
	if err := os.MkdirAll(projectDir, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	project := &Project{Name: "web-app", Path: "web-app"}
	if err := project.Validate(base); err == nil {
		t.Error("expected an error without drydock.yml")
	}

	pipeline := "stages:\n  - name: build\n    jobs:\n      - name: compile\n        run: [\"true\"]\n"
	if err := os.WriteFile(filepath.Join(projectDir, "drydock.yml"), []byte(pipeline), 0644); err != nil {
		t.Fatalf("write pipeline: %v", err)
	}
	if err := project.Validate(base); err != nil {
		t.Errorf("expected valid project, got %v", err)
	}

	if got := project.PipelinePath(base); got != filepath.Join(projectDir, "drydock.yml") {
		t.Errorf("unexpected pipeline path %q", got)
	}

	missing := &Project{Name: "nope", Path: "nope"}
	if err := missing.Validate(base); err == nil {
		t.Error("expected an error for a missing path")
	}
}
