package storage

import "time"

// Run represents one pipeline execution
type Run struct {
	ID             int        `json:"id"`
	Status         string     `json:"status"` // "running", "success", "failed"
	PipelineName   string     `json:"pipeline_name"`
	ConfigPath     string     `json:"config_path"`
	StepsCompleted int        `json:"steps_completed"`
	TotalSteps     int        `json:"total_steps"`
	StartedAt      time.Time  `json:"started_at"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
	Duration       *string    `json:"duration,omitempty"`
}

// JobExecution represents one attempt-set of a job within a run
type JobExecution struct {
	ID         int        `json:"id"`
	RunID      int        `json:"run_id"`
	Name       string     `json:"name"`
	Stage      string     `json:"stage"`
	Status     string     `json:"status"` // "running", "success", "failed", "skipped"
	Command    string     `json:"command"`
	Output     string     `json:"output"`
	Error      string     `json:"error,omitempty"`
	Attempts   int        `json:"attempts"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Duration   *string    `json:"duration,omitempty"`
}

// DeploymentRecord is the persisted form of a deployment attempt
type DeploymentRecord struct {
	ID                  string     `json:"id"`
	Name                string     `json:"name"`
	Version             string     `json:"version"`
	Environment         string     `json:"environment"`
	Strategy            string     `json:"strategy"`
	Status              string     `json:"status"`
	Logs                string     `json:"logs,omitempty"`
	RollbackExecutionID string     `json:"rollback_execution_id,omitempty"`
	StartedAt           *time.Time `json:"started_at,omitempty"`
	FinishedAt          *time.Time `json:"finished_at,omitempty"`
	Duration            *string    `json:"duration,omitempty"`
}
