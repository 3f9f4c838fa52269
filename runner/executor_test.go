package runner

import (
	"context"
	"strings"
	"testing"
	"time"

	"drydock/pipeline"
)

func shellStage(name string, command string, deps ...string) *pipeline.Stage {
	return &pipeline.Stage{
		Name:      name,
		DependsOn: deps,
		Jobs:      []*pipeline.Job{{Name: name + "-job", Run: []string{command}}},
	}
}

func newTestEngine() *Engine {
	return NewEngine(nil, nil, 2)
}

func TestRunSuccessfulPipeline(t *testing.T) {
	p := &pipeline.Pipeline{Name: "ok", Stages: []*pipeline.Stage{
		shellStage("build", "echo building"),
		shellStage("test", "echo testing", "build"),
	}}

	result, err := newTestEngine().Run(context.Background(), p, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != pipeline.StatusSucceeded {
		t.Fatalf("expected success, got %s (errors: %v)", result.Status, result.Errors)
	}
	if result.StepsCompleted != 2 || result.TotalSteps != 2 {
		t.Errorf("expected 2/2 steps, got %d/%d", result.StepsCompleted, result.TotalSteps)
	}
	if p.Stage("test").Status != pipeline.StatusSucceeded {
		t.Errorf("expected test stage success, got %s", p.Stage("test").Status)
	}
	if result.Duration <= 0 {
		t.Error("expected a recorded duration")
	}
}

func TestRunGatesOnFailedDependency(t *testing.T) {
	// A succeeds, B fails, C depends on B and must never run
	p := &pipeline.Pipeline{Name: "gated", Stages: []*pipeline.Stage{
		shellStage("a", "true"),
		shellStage("b", "false", "a"),
		shellStage("c", "echo should-not-run", "b"),
	}}

	result, err := newTestEngine().Run(context.Background(), p, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != pipeline.StatusFailed {
		t.Fatalf("expected failed, got %s", result.Status)
	}
	if result.StepsCompleted != 1 {
		t.Errorf("expected 1 completed step, got %d", result.StepsCompleted)
	}
	if got := p.Stage("c").Jobs[0].Status; got != pipeline.StatusPending {
		t.Errorf("expected c-job untouched, got %s", got)
	}
	if len(result.Errors) == 0 {
		t.Fatal("expected errors recorded")
	}
}

func TestRunHaltsWithDependencyError(t *testing.T) {
	// b is allowed to fail, so the run continues to c, whose gate then
	// trips on b's failed status
	p := &pipeline.Pipeline{Name: "halted", Stages: []*pipeline.Stage{
		shellStage("a", "true"),
		shellStage("b", "false", "a"),
		shellStage("c", "echo never", "b"),
	}}
	p.Stages[1].AllowFailure = true

	result, err := newTestEngine().Run(context.Background(), p, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != pipeline.StatusFailed {
		t.Fatalf("expected failed, got %s", result.Status)
	}
	found := false
	for _, msg := range result.Errors {
		if strings.Contains(msg, "dependencies not satisfied") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a dependencies-not-satisfied error, got %v", result.Errors)
	}
}

func TestRunParallelStage(t *testing.T) {
	p := &pipeline.Pipeline{Name: "par", Stages: []*pipeline.Stage{{
		Name:     "checks",
		Parallel: true,
		Jobs: []*pipeline.Job{
			{Name: "unit", Run: []string{"echo unit"}},
			{Name: "lint", Run: []string{"echo lint"}},
			{Name: "vet", Run: []string{"echo vet"}},
		},
	}}}

	result, err := newTestEngine().Run(context.Background(), p, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != pipeline.StatusSucceeded {
		t.Fatalf("expected success, got %s (errors: %v)", result.Status, result.Errors)
	}
	if result.StepsCompleted != 3 {
		t.Errorf("expected 3 completed jobs, got %d", result.StepsCompleted)
	}
}

func TestRunParallelStageWithJobDependencies(t *testing.T) {
	// package must wait for both compile jobs
	p := &pipeline.Pipeline{Name: "waves", Stages: []*pipeline.Stage{{
		Name:     "build",
		Parallel: true,
		Jobs: []*pipeline.Job{
			{Name: "compile-a", Run: []string{"echo a"}},
			{Name: "compile-b", Run: []string{"echo b"}},
			{Name: "package", Run: []string{"echo pkg"}, DependsOn: []string{"compile-a", "compile-b"}},
		},
	}}}

	result, err := newTestEngine().Run(context.Background(), p, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != pipeline.StatusSucceeded {
		t.Fatalf("expected success, got %s (errors: %v)", result.Status, result.Errors)
	}
	// package must have been recorded after its dependencies
	if result.Jobs[len(result.Jobs)-1].Name != "package" {
		t.Errorf("expected package to finish last, got %v", result.Jobs)
	}
}

func TestRunParallelJobFailureFailsStage(t *testing.T) {
	p := &pipeline.Pipeline{Name: "parfail", Stages: []*pipeline.Stage{{
		Name:     "checks",
		Parallel: true,
		Jobs: []*pipeline.Job{
			{Name: "good", Run: []string{"true"}},
			{Name: "bad", Run: []string{"false"}},
		},
	}}}

	result, err := newTestEngine().Run(context.Background(), p, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != pipeline.StatusFailed {
		t.Fatalf("expected failed, got %s", result.Status)
	}
}

func TestRunAllowFailureJob(t *testing.T) {
	p := &pipeline.Pipeline{Name: "soft", Stages: []*pipeline.Stage{{
		Name: "checks",
		Jobs: []*pipeline.Job{
			{Name: "flaky", Run: []string{"false"}, AllowFailure: true},
			{Name: "solid", Run: []string{"true"}},
		},
	}}}

	result, err := newTestEngine().Run(context.Background(), p, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != pipeline.StatusSucceeded {
		t.Fatalf("expected success despite allowed failure, got %s", result.Status)
	}
	if result.StepsCompleted != 1 {
		t.Errorf("expected 1 completed step, got %d", result.StepsCompleted)
	}
	if len(result.Errors) == 0 {
		t.Error("expected the allowed failure to be recorded")
	}
}

func TestRunRetriesFailedJob(t *testing.T) {
	// Fails on the first attempt, succeeds once the marker file exists
	dir := t.TempDir()
	command := "test -f " + dir + "/marker || { touch " + dir + "/marker; false; }"

	p := &pipeline.Pipeline{Name: "retry", Stages: []*pipeline.Stage{{
		Name: "build",
		Jobs: []*pipeline.Job{{Name: "flaky", Run: []string{command}, Retries: 2}},
	}}}

	result, err := newTestEngine().Run(context.Background(), p, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != pipeline.StatusSucceeded {
		t.Fatalf("expected success after retry, got %s (errors: %v)", result.Status, result.Errors)
	}
	if result.Jobs[0].Attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", result.Jobs[0].Attempts)
	}
}

func TestRunJobTimeout(t *testing.T) {
	p := &pipeline.Pipeline{Name: "slow", Stages: []*pipeline.Stage{{
		Name: "build",
		Jobs: []*pipeline.Job{{
			Name:    "sleepy",
			Run:     []string{"sleep 5"},
			Timeout: pipeline.Duration(100 * time.Millisecond),
		}},
	}}}

	start := time.Now()
	result, err := newTestEngine().Run(context.Background(), p, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != pipeline.StatusFailed {
		t.Fatalf("expected failed, got %s", result.Status)
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("timeout not enforced, run took %s", elapsed)
	}
	if !strings.Contains(result.Jobs[0].Error, "timed out") {
		t.Errorf("expected a timeout error, got %q", result.Jobs[0].Error)
	}
}

func TestRunStageFilter(t *testing.T) {
	p := &pipeline.Pipeline{Name: "filtered", Stages: []*pipeline.Stage{
		shellStage("build", "echo build"),
		shellStage("docs", "echo docs"),
	}}

	result, err := newTestEngine().Run(context.Background(), p, Options{StageFilter: "docs"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != pipeline.StatusSucceeded {
		t.Fatalf("expected success, got %s", result.Status)
	}
	if result.TotalSteps != 1 || result.StepsCompleted != 1 {
		t.Errorf("expected 1/1 steps, got %d/%d", result.StepsCompleted, result.TotalSteps)
	}
	if p.Stage("build").Status != pipeline.StatusSkipped {
		t.Errorf("expected build skipped, got %s", p.Stage("build").Status)
	}
	if result.StepsSkipped != 1 {
		t.Errorf("expected 1 skipped step, got %d", result.StepsSkipped)
	}
}

func TestRunStageFilterDependentStage(t *testing.T) {
	// Filtering to a stage with dependencies runs it unconditionally;
	// stages skipped by the filter do not gate the requested stage
	p := &pipeline.Pipeline{Name: "filtered-dep", Stages: []*pipeline.Stage{
		shellStage("build", "echo build"),
		shellStage("test", "echo test", "build"),
		shellStage("deploy", "echo deploy", "test"),
	}}

	result, err := newTestEngine().Run(context.Background(), p, Options{StageFilter: "deploy"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != pipeline.StatusSucceeded {
		t.Fatalf("expected success, got %s (errors: %v)", result.Status, result.Errors)
	}
	if result.TotalSteps != 1 || result.StepsCompleted != 1 {
		t.Errorf("expected 1/1 steps, got %d/%d", result.StepsCompleted, result.TotalSteps)
	}
	if result.StepsSkipped != 2 {
		t.Errorf("expected 2 skipped steps, got %d", result.StepsSkipped)
	}
	if p.Stage("deploy").Jobs[0].Status != pipeline.StatusSucceeded {
		t.Errorf("expected the deploy job to run, got %s", p.Stage("deploy").Jobs[0].Status)
	}
	for _, name := range []string{"build", "test"} {
		if p.Stage(name).Status != pipeline.StatusSkipped {
			t.Errorf("expected %s skipped, got %s", name, p.Stage(name).Status)
		}
	}
}

func TestRunCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := &pipeline.Pipeline{Name: "cancelled", Stages: []*pipeline.Stage{
		shellStage("build", "echo build"),
	}}

	result, err := newTestEngine().Run(ctx, p, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != pipeline.StatusCancelled {
		t.Fatalf("expected cancelled, got %s", result.Status)
	}
}

func TestRunRejectsInvalidPipeline(t *testing.T) {
	p := &pipeline.Pipeline{Name: "bad", Stages: []*pipeline.Stage{
		shellStage("a", "true", "a"),
	}}

	if _, err := newTestEngine().Run(context.Background(), p, Options{}); err == nil {
		t.Fatal("expected a validation error")
	}
}
