package pipeline

import (
	"errors"
	"testing"
)

func stageDef(name string, deps ...string) *Stage {
	return &Stage{
		Name:      name,
		DependsOn: deps,
		Jobs:      []*Job{{Name: name + "-job", Run: []string{"true"}}},
	}
}

func indexOf(order []string, name string) int {
	for i, n := range order {
		if n == name {
			return i
		}
	}
	return -1
}

func TestStageOrderRespectsDependencies(t *testing.T) {
	p := &Pipeline{Name: "build", Stages: []*Stage{
		stageDef("deploy", "test"),
		stageDef("build"),
		stageDef("test", "build"),
	}}

	order, err := p.StageOrder()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(order) != 3 {
		t.Fatalf("expected 3 stages, got %v", order)
	}
	if indexOf(order, "build") > indexOf(order, "test") {
		t.Errorf("build must come before test, got %v", order)
	}
	if indexOf(order, "test") > indexOf(order, "deploy") {
		t.Errorf("test must come before deploy, got %v", order)
	}
}

func TestStageOrderFanIn(t *testing.T) {
	// A with no deps, B and C depending on A, D depending on both
	p := &Pipeline{Name: "fan", Stages: []*Stage{
		stageDef("d", "b", "c"),
		stageDef("b", "a"),
		stageDef("c", "a"),
		stageDef("a"),
	}}

	order, err := p.StageOrder()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if order[0] != "a" {
		t.Errorf("expected a first, got %v", order)
	}
	if order[len(order)-1] != "d" {
		t.Errorf("expected d last, got %v", order)
	}
	if indexOf(order, "b") > indexOf(order, "d") || indexOf(order, "c") > indexOf(order, "d") {
		t.Errorf("b and c must come before d, got %v", order)
	}
}

func TestValidateRejectsCycle(t *testing.T) {
	p := &Pipeline{Name: "cyclic", Stages: []*Stage{
		stageDef("a", "b"),
		stageDef("b", "a"),
	}}

	err := p.Validate()
	var cycleErr *CycleError
	if !errors.As(err, &cycleErr) {
		t.Fatalf("expected CycleError, got %v", err)
	}
	if cycleErr.Kind != "stage" {
		t.Errorf("expected stage cycle, got %q", cycleErr.Kind)
	}
}

func TestValidateRejectsSelfCycle(t *testing.T) {
	p := &Pipeline{Name: "self", Stages: []*Stage{stageDef("a", "a")}}

	var cycleErr *CycleError
	if err := p.Validate(); !errors.As(err, &cycleErr) {
		t.Fatalf("expected CycleError, got %v", err)
	}
}

func TestValidateRejectsDanglingDependency(t *testing.T) {
	p := &Pipeline{Name: "dangling", Stages: []*Stage{
		stageDef("a", "missing"),
	}}

	err := p.Validate()
	var danglingErr *DanglingDependencyError
	if !errors.As(err, &danglingErr) {
		t.Fatalf("expected DanglingDependencyError, got %v", err)
	}
	if danglingErr.Dependency != "missing" {
		t.Errorf("expected dependency 'missing', got %q", danglingErr.Dependency)
	}
}

func TestValidateRejectsJobCycle(t *testing.T) {
	p := &Pipeline{Name: "jobs", Stages: []*Stage{{
		Name: "build",
		Jobs: []*Job{
			{Name: "x", Run: []string{"true"}, DependsOn: []string{"y"}},
			{Name: "y", Run: []string{"true"}, DependsOn: []string{"x"}},
		},
	}}}

	err := p.Validate()
	var cycleErr *CycleError
	if !errors.As(err, &cycleErr) {
		t.Fatalf("expected CycleError, got %v", err)
	}
	if cycleErr.Kind != "job" {
		t.Errorf("expected job cycle, got %q", cycleErr.Kind)
	}
}

func TestAddStageRejectsDuplicateName(t *testing.T) {
	p := &Pipeline{Name: "dup"}
	if err := p.AddStage(stageDef("build")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err := p.AddStage(stageDef("build"))
	var dupErr *DuplicateNameError
	if !errors.As(err, &dupErr) {
		t.Fatalf("expected DuplicateNameError, got %v", err)
	}
	if dupErr.Name != "build" {
		t.Errorf("expected name 'build', got %q", dupErr.Name)
	}
}

func TestParseValidatesAndDefaults(t *testing.T) {
	data := []byte(`
stages:
  - name: build
    jobs:
      - name: compile
        run: ["echo compiling"]
        timeout: 30s
  - name: test
    depends_on: [build]
    parallel: true
    jobs:
      - name: unit
        run: ["echo unit"]
      - name: lint
        run: ["echo lint"]
        allow_failure: true
`)
	p, err := Parse(data, "myproject")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Name != "myproject" {
		t.Errorf("expected defaulted name, got %q", p.Name)
	}
	if p.Status != StatusPending {
		t.Errorf("expected pending pipeline, got %q", p.Status)
	}
	job := p.Stage("build").Job("compile")
	if job.Timeout.Std().Seconds() != 30 {
		t.Errorf("expected 30s timeout, got %s", job.Timeout.Std())
	}
	if !p.Stage("test").Jobs[1].AllowFailure {
		t.Error("expected lint to allow failure")
	}
}

func TestParseRejectsBadGraph(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"no stages", `name: empty`},
		{"cycle", "stages:\n  - name: a\n    depends_on: [b]\n    jobs: [{name: j, run: [\"true\"]}]\n  - name: b\n    depends_on: [a]\n    jobs: [{name: k, run: [\"true\"]}]"},
		{"dangling", "stages:\n  - name: a\n    depends_on: [ghost]\n    jobs: [{name: j, run: [\"true\"]}]"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Parse([]byte(tc.yaml), "x"); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

func TestStatusTerminal(t *testing.T) {
	terminal := []Status{StatusSucceeded, StatusFailed, StatusCancelled}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("expected %q to be terminal", s)
		}
	}
	for _, s := range []Status{StatusPending, StatusRunning, StatusSkipped} {
		if s.Terminal() {
			t.Errorf("expected %q to be non-terminal", s)
		}
	}
}
