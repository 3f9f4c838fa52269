package runner

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"drydock/events"
	"drydock/pipeline"
	"drydock/storage"
)

const defaultWorkers = 4

// Engine executes pipelines in dependency order. Construct it with its
// collaborators and share one instance; each Run owns the pipeline record
// it is given for the duration of that run.
type Engine struct {
	store   *storage.Storage
	broker  *events.Broker
	workers int
}

// NewEngine creates an execution engine. store and broker may be nil;
// workers bounds the pool used for parallel stages.
func NewEngine(store *storage.Storage, broker *events.Broker, workers int) *Engine {
	if workers <= 0 {
		workers = defaultWorkers
	}
	return &Engine{store: store, broker: broker, workers: workers}
}

// Run executes the pipeline. Stages run in dependency order, each gated
// on every declared dependency having succeeded; an unsatisfied
// dependency halts the run and fails the pipeline. Execution failures are
// captured into the result, never returned as errors; the error return is
// reserved for invalid definitions and storage setup problems.
func (e *Engine) Run(ctx context.Context, p *pipeline.Pipeline, opts Options) (*RunResult, error) {
	start := time.Now()

	if err := p.Validate(); err != nil {
		return nil, err
	}
	order, err := p.StageOrder()
	if err != nil {
		return nil, err
	}

	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout.Std())
		defer cancel()
	}

	result := &RunResult{PipelineName: p.Name, Status: pipeline.StatusRunning}
	for _, stage := range p.Stages {
		if opts.StageFilter == "" || stage.Name == opts.StageFilter {
			result.TotalSteps += len(stage.Jobs)
		}
	}

	if e.store != nil {
		run, err := e.store.CreateRun(p.Name, opts.ConfigPath, result.TotalSteps)
		if err != nil {
			return nil, fmt.Errorf("failed to create run: %w", err)
		}
		result.RunID = run.ID
	}

	p.Status = pipeline.StatusRunning
	p.StartedAt = &start
	e.broker.Broadcast("run_started", map[string]interface{}{
		"run_id":   result.RunID,
		"pipeline": p.Name,
	})

	for _, name := range order {
		stage := p.Stage(name)

		if opts.StageFilter != "" && name != opts.StageFilter {
			stage.Status = pipeline.StatusSkipped
			result.StepsSkipped += len(stage.Jobs)
			continue
		}

		if ctx.Err() != nil {
			p.Status = pipeline.StatusCancelled
			result.Errors = append(result.Errors, "run cancelled: "+ctx.Err().Error())
			break
		}

		if unmet := unmetStageDependency(p, stage); unmet != "" {
			p.Status = pipeline.StatusFailed
			result.Errors = append(result.Errors, fmt.Sprintf("dependencies not satisfied for stage %q: %s", name, unmet))
			break
		}

		e.runStage(ctx, p, stage, result, opts)

		if stage.Status == pipeline.StatusCancelled {
			p.Status = pipeline.StatusCancelled
			break
		}
		if stage.Status == pipeline.StatusFailed && !stage.AllowFailure {
			p.Status = pipeline.StatusFailed
			break
		}
	}

	if p.Status == pipeline.StatusRunning {
		p.Status = pipeline.StatusSucceeded
	}

	finished := time.Now()
	p.FinishedAt = &finished
	result.Duration = finished.Sub(start)
	p.Duration = result.Duration.String()
	result.Status = p.Status
	for _, jr := range result.Jobs {
		if jr.Status == pipeline.StatusSucceeded {
			result.StepsCompleted++
		}
	}

	if e.store != nil {
		if err := e.store.FinishRun(result.RunID, string(p.Status), result.StepsCompleted, result.Duration); err != nil {
			log.Printf("⚠️  Failed to update run %d: %v", result.RunID, err)
		}
	}
	e.broker.Broadcast("run_finished", map[string]interface{}{
		"run_id":   result.RunID,
		"pipeline": p.Name,
		"status":   p.Status,
	})

	if opts.StreamToTerminal && p.Status == pipeline.StatusSucceeded {
		fmt.Println("\n🏁 All stages finished successfully.")
	}

	return result, nil
}

// unmetStageDependency returns a description of the first dependency of
// the stage that is not in a succeeded state, or "". Stages are only ever
// skipped by the stage filter, so a skipped dependency does not gate the
// requested stage.
func unmetStageDependency(p *pipeline.Pipeline, stage *pipeline.Stage) string {
	for _, dep := range stage.DependsOn {
		depStage := p.Stage(dep)
		if depStage == nil {
			return fmt.Sprintf("stage %q is not defined", dep)
		}
		if depStage.Status != pipeline.StatusSucceeded && depStage.Status != pipeline.StatusSkipped {
			return fmt.Sprintf("stage %q has status %q", dep, depStage.Status)
		}
	}
	return ""
}

func (e *Engine) runStage(ctx context.Context, p *pipeline.Pipeline, stage *pipeline.Stage, result *RunResult, opts Options) {
	start := time.Now()
	stage.Status = pipeline.StatusRunning
	stage.StartedAt = &start

	if opts.StreamToTerminal {
		fmt.Printf("\n📦 Stage: %s\n", stage.Name)
	}
	e.broker.Broadcast("stage_started", map[string]interface{}{
		"run_id": result.RunID,
		"stage":  stage.Name,
	})

	// The definition was validated before the run started.
	order, _ := stage.JobOrder()

	if stage.Parallel {
		e.runJobsParallel(ctx, p, stage, order, result, opts)
	} else {
		e.runJobsSequential(ctx, p, stage, order, result, opts)
	}

	if stage.Status == pipeline.StatusRunning {
		stage.Status = pipeline.StatusSucceeded
	}
	finished := time.Now()
	stage.FinishedAt = &finished

	e.broker.Broadcast("stage_finished", map[string]interface{}{
		"run_id": result.RunID,
		"stage":  stage.Name,
		"status": stage.Status,
	})
}

func (e *Engine) runJobsSequential(ctx context.Context, p *pipeline.Pipeline, stage *pipeline.Stage, order []string, result *RunResult, opts Options) {
	for _, name := range order {
		job := stage.Job(name)

		if ctx.Err() != nil {
			stage.Status = pipeline.StatusCancelled
			return
		}

		if unmet := unmetJobDependency(stage, job); unmet != "" {
			stage.Status = pipeline.StatusFailed
			result.Errors = append(result.Errors, fmt.Sprintf("dependencies not satisfied for job %q: %s", name, unmet))
			return
		}

		jr := e.runJob(ctx, p, stage, job, result.RunID, opts)
		result.Jobs = append(result.Jobs, jr)
		if jr.Status == pipeline.StatusFailed {
			result.Errors = append(result.Errors, jr.Error)
			if !job.AllowFailure {
				stage.Status = pipeline.StatusFailed
				return
			}
		}
	}
}

// runJobsParallel dispatches ready jobs (all dependencies succeeded) to a
// bounded worker pool in waves and joins each wave before dispatching the
// next. Each worker owns exactly one job record.
func (e *Engine) runJobsParallel(ctx context.Context, p *pipeline.Pipeline, stage *pipeline.Stage, order []string, result *RunResult, opts Options) {
	pending := make(map[string]bool, len(order))
	for _, name := range order {
		pending[name] = true
	}

	sem := make(chan struct{}, e.workers)
	var mu sync.Mutex

	for len(pending) > 0 {
		if ctx.Err() != nil {
			stage.Status = pipeline.StatusCancelled
			return
		}

		var ready []*pipeline.Job
		for _, name := range order {
			if !pending[name] {
				continue
			}
			job := stage.Job(name)
			if unmetJobDependency(stage, job) == "" {
				ready = append(ready, job)
			}
		}

		if len(ready) == 0 {
			stage.Status = pipeline.StatusFailed
			for _, name := range order {
				if pending[name] {
					result.Errors = append(result.Errors, fmt.Sprintf("dependencies not satisfied for job %q: %s", name, unmetJobDependency(stage, stage.Job(name))))
				}
			}
			return
		}

		var wg sync.WaitGroup
		for _, job := range ready {
			delete(pending, job.Name)
			wg.Add(1)
			go func(job *pipeline.Job) {
				defer wg.Done()
				sem <- struct{}{}
				defer func() { <-sem }()

				jr := e.runJob(ctx, p, stage, job, result.RunID, opts)

				mu.Lock()
				result.Jobs = append(result.Jobs, jr)
				if jr.Status == pipeline.StatusFailed {
					result.Errors = append(result.Errors, jr.Error)
				}
				mu.Unlock()
			}(job)
		}
		wg.Wait()

		for _, job := range ready {
			if job.Status == pipeline.StatusFailed && !job.AllowFailure {
				stage.Status = pipeline.StatusFailed
				return
			}
		}
	}
}

func unmetJobDependency(stage *pipeline.Stage, job *pipeline.Job) string {
	for _, dep := range job.DependsOn {
		depJob := stage.Job(dep)
		if depJob == nil {
			return fmt.Sprintf("job %q is not defined", dep)
		}
		if depJob.Status != pipeline.StatusSucceeded {
			return fmt.Sprintf("job %q has status %q", dep, depJob.Status)
		}
	}
	return ""
}

// runJob executes one job, retrying failed attempts immediately up to the
// configured retry count. The outcome is captured on the job record.
func (e *Engine) runJob(ctx context.Context, p *pipeline.Pipeline, stage *pipeline.Stage, job *pipeline.Job, runID int, opts Options) JobResult {
	start := time.Now()
	job.Status = pipeline.StatusRunning
	job.StartedAt = &start

	if opts.StreamToTerminal {
		fmt.Println("→", job.Name)
	}

	env := mergeEnv(p.Variables, job.Env)

	var jobExec *storage.JobExecution
	if e.store != nil {
		var err error
		jobExec, err = e.store.CreateJobExecution(runID, job.Name, stage.Name, strings.Join(job.Run, " && "))
		if err != nil {
			log.Printf("⚠️  Failed to record job execution for %q: %v", job.Name, err)
		}
	}

	attempts := 0
	maxAttempts := job.Retries + 1
	var output string
	var runErr error
	for attempts < maxAttempts {
		attempts++
		output, runErr = e.runJobCommands(ctx, job, env, opts)
		if runErr == nil || ctx.Err() != nil {
			break
		}
	}

	finished := time.Now()
	job.FinishedAt = &finished
	job.Output = output
	duration := finished.Sub(start)

	jr := JobResult{
		Name:     job.Name,
		Stage:    stage.Name,
		Output:   output,
		Attempts: attempts,
		Duration: duration,
	}

	if runErr != nil {
		job.Status = pipeline.StatusFailed
		job.Error = fmt.Sprintf("job %q failed after %d attempt(s): %v", job.Name, attempts, runErr)
		jr.Status = pipeline.StatusFailed
		jr.Error = job.Error
		if opts.StreamToTerminal {
			fmt.Println("❌ Job failed:", runErr)
		}
	} else {
		job.Status = pipeline.StatusSucceeded
		jr.Status = pipeline.StatusSucceeded
		if opts.StreamToTerminal {
			fmt.Println("✅ Done:", job.Name)
		}
	}

	if e.store != nil && jobExec != nil {
		if err := e.store.FinishJobExecution(jobExec.ID, string(job.Status), output, job.Error, attempts, duration); err != nil {
			log.Printf("⚠️  Failed to update job execution for %q: %v", job.Name, err)
		}
	}
	e.broker.Broadcast("job_finished", map[string]interface{}{
		"run_id": runID,
		"stage":  stage.Name,
		"job":    job.Name,
		"status": job.Status,
	})

	return jr
}

// runJobCommands runs the job's commands in order under the job timeout.
func (e *Engine) runJobCommands(ctx context.Context, job *pipeline.Job, env map[string]string, opts Options) (string, error) {
	jobCtx := ctx
	if job.Timeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(ctx, job.Timeout.Std())
		defer cancel()
	}

	var combined strings.Builder
	for _, command := range job.Run {
		out, err := runShellCommand(jobCtx, command, env, opts.StreamToTerminal)
		combined.WriteString(out)
		if err != nil {
			if jobCtx.Err() == context.DeadlineExceeded {
				return combined.String(), fmt.Errorf("timed out after %s", job.Timeout.Std())
			}
			return combined.String(), err
		}
	}
	return combined.String(), nil
}

func mergeEnv(variables, jobEnv map[string]string) map[string]string {
	if len(variables) == 0 && len(jobEnv) == 0 {
		return nil
	}
	merged := make(map[string]string, len(variables)+len(jobEnv))
	for key, value := range variables {
		merged[key] = value
	}
	for key, value := range jobEnv {
		merged[key] = value
	}
	return merged
}
