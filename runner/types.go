package runner

import (
	"time"

	"drydock/pipeline"
)

// RunResult represents the outcome of running a whole pipeline
type RunResult struct {
	RunID          int             `json:"run_id"`
	PipelineName   string          `json:"pipeline_name"`
	Status         pipeline.Status `json:"status"`
	Jobs           []JobResult     `json:"jobs"`
	StepsCompleted int             `json:"steps_completed"`
	StepsSkipped   int             `json:"steps_skipped,omitempty"`
	TotalSteps     int             `json:"total_steps"`
	Errors         []string        `json:"errors,omitempty"`
	Duration       time.Duration   `json:"duration"`
}

// JobResult represents the outcome of executing a single job
type JobResult struct {
	Name     string          `json:"name"`
	Stage    string          `json:"stage"`
	Status   pipeline.Status `json:"status"`
	Output   string          `json:"output,omitempty"`
	Error    string          `json:"error,omitempty"`
	Attempts int             `json:"attempts"`
	Duration time.Duration   `json:"duration"`
}

// Options configures how a pipeline run is executed
type Options struct {
	ConfigPath       string // recorded on the run, informational
	StageFilter      string // run only this stage (empty = run all)
	StreamToTerminal bool   // if true, also stream job output to terminal
}
