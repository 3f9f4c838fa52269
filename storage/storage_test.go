package storage

import (
	"path/filepath"
	"testing"
	"time"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	store, err := NewStorage(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestCreateAndFinishRun(t *testing.T) {
	store := newTestStorage(t)

	run, err := store.CreateRun("web-app", "drydock.yml", 5)
	if err != nil {
		t.Fatalf("failed to create run: %v", err)
	}
	if run.ID == 0 {
		t.Error("expected a run id")
	}
	if run.Status != "running" || run.TotalSteps != 5 {
		t.Errorf("unexpected run %+v", run)
	}

	if err := store.FinishRun(run.ID, "success", 5, 3*time.Second); err != nil {
		t.Fatalf("failed to finish run: %v", err)
	}

	got, err := store.GetRun(run.ID)
	if err != nil {
		t.Fatalf("failed to get run: %v", err)
	}
	if got.Status != "success" || got.StepsCompleted != 5 {
		t.Errorf("unexpected run %+v", got)
	}
	if got.FinishedAt == nil || got.Duration == nil || *got.Duration != "3s" {
		t.Errorf("expected finish data, got %+v", got)
	}
}

func TestGetRunNotFound(t *testing.T) {
	store := newTestStorage(t)
	if _, err := store.GetRun(999); err == nil {
		t.Fatal("expected an error for a missing run")
	}
}

func TestGetRunsByPipeline(t *testing.T) {
	store := newTestStorage(t)

	for _, name := range []string{"alpha", "alpha", "beta"} {
		if _, err := store.CreateRun(name, "drydock.yml", 1); err != nil {
			t.Fatalf("failed to create run: %v", err)
		}
	}

	runs, err := store.GetRunsByPipeline("alpha", 10)
	if err != nil {
		t.Fatalf("failed to query runs: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 alpha runs, got %d", len(runs))
	}
	for _, run := range runs {
		if run.PipelineName != "alpha" {
			t.Errorf("unexpected pipeline %q", run.PipelineName)
		}
	}

	all, err := store.GetRuns(10)
	if err != nil {
		t.Fatalf("failed to query runs: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("expected 3 runs total, got %d", len(all))
	}
}

func TestJobExecutionLifecycle(t *testing.T) {
	store := newTestStorage(t)

	run, err := store.CreateRun("web-app", "drydock.yml", 1)
	if err != nil {
		t.Fatalf("failed to create run: %v", err)
	}

	job, err := store.CreateJobExecution(run.ID, "compile", "build", "go build ./...")
	if err != nil {
		t.Fatalf("failed to create job execution: %v", err)
	}
	if err := store.FinishJobExecution(job.ID, "success", "ok\n", "", 2, time.Second); err != nil {
		t.Fatalf("failed to finish job execution: %v", err)
	}

	jobs, err := store.GetJobExecutions(run.ID)
	if err != nil {
		t.Fatalf("failed to query job executions: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("expected 1 job execution, got %d", len(jobs))
	}
	got := jobs[0]
	if got.Status != "success" || got.Output != "ok\n" || got.Attempts != 2 {
		t.Errorf("unexpected job execution %+v", got)
	}
	if got.Stage != "build" || got.Command != "go build ./..." {
		t.Errorf("unexpected job execution %+v", got)
	}
}

func TestSaveDeploymentUpsert(t *testing.T) {
	store := newTestStorage(t)

	started := time.Now()
	record := &DeploymentRecord{
		ID:          "dep-1",
		Name:        "api",
		Version:     "1.0.0",
		Environment: "staging",
		Strategy:    "immediate",
		Status:      "running",
		StartedAt:   &started,
	}
	if err := store.SaveDeployment(record); err != nil {
		t.Fatalf("failed to save deployment: %v", err)
	}

	finished := time.Now()
	duration := "5s"
	record.Status = "rolled_back"
	record.RollbackExecutionID = "ex-1"
	record.FinishedAt = &finished
	record.Duration = &duration
	if err := store.SaveDeployment(record); err != nil {
		t.Fatalf("failed to update deployment: %v", err)
	}

	got, err := store.GetDeployment("dep-1")
	if err != nil {
		t.Fatalf("failed to get deployment: %v", err)
	}
	if got.Status != "rolled_back" || got.RollbackExecutionID != "ex-1" {
		t.Errorf("unexpected deployment %+v", got)
	}
	if got.Duration == nil || *got.Duration != "5s" {
		t.Errorf("expected duration 5s, got %+v", got.Duration)
	}

	all, err := store.GetDeployments(10)
	if err != nil {
		t.Fatalf("failed to query deployments: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("expected upsert, got %d records", len(all))
	}
}

func TestGetDeploymentNotFound(t *testing.T) {
	store := newTestStorage(t)
	if _, err := store.GetDeployment("ghost"); err == nil {
		t.Fatal("expected an error for a missing deployment")
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	fs, err := NewFileStore(filepath.Join(t.TempDir(), "records"))
	if err != nil {
		t.Fatalf("failed to create file store: %v", err)
	}

	type record struct {
		ID    string `json:"id"`
		Notes string `json:"notes"`
	}

	path, err := fs.Save("rollback", "ex_with_underscores", record{ID: "ex_with_underscores", Notes: "first"})
	if err != nil {
		t.Fatalf("failed to save record: %v", err)
	}
	if filepath.Ext(path) != ".json" {
		t.Errorf("expected a json file, got %q", path)
	}

	var got record
	if err := fs.Load("rollback", "ex_with_underscores", &got); err != nil {
		t.Fatalf("failed to load record: %v", err)
	}
	if got.Notes != "first" {
		t.Errorf("unexpected record %+v", got)
	}

	ids, err := fs.List("rollback")
	if err != nil {
		t.Fatalf("failed to list records: %v", err)
	}
	if len(ids) != 1 || ids[0] != "ex_with_underscores" {
		t.Errorf("unexpected ids %v", ids)
	}
}

func TestFileStoreLoadMissing(t *testing.T) {
	fs, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create file store: %v", err)
	}
	var out map[string]any
	if err := fs.Load("rollback", "missing", &out); err == nil {
		t.Fatal("expected an error for a missing record")
	}
}
