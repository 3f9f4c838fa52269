package pipeline

import (
	"encoding/json"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Status tracks where a pipeline, stage or job is in its lifecycle.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "success"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further transition can happen from s.
func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Duration wraps time.Duration so it can be written as "30s" / "5m"
// in pipeline and environment YAML files.
type Duration time.Duration

// UnmarshalYAML parses durations given as strings ("90s") or bare seconds.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Job is the smallest schedulable unit inside a stage.
type Job struct {
	Name         string            `yaml:"name" json:"name"`
	Run          []string          `yaml:"run" json:"run"`
	Env          map[string]string `yaml:"env,omitempty" json:"env,omitempty"`
	DependsOn    []string          `yaml:"depends_on,omitempty" json:"depends_on,omitempty"`
	Timeout      Duration          `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	Retries      int               `yaml:"retries,omitempty" json:"retries,omitempty"`
	AllowFailure bool              `yaml:"allow_failure,omitempty" json:"allow_failure,omitempty"`

	// Execution state, owned by the engine during a run.
	Status     Status     `yaml:"-" json:"status"`
	StartedAt  *time.Time `yaml:"-" json:"started_at,omitempty"`
	FinishedAt *time.Time `yaml:"-" json:"finished_at,omitempty"`
	Output     string     `yaml:"-" json:"output,omitempty"`
	Error      string     `yaml:"-" json:"error,omitempty"`
}

// Stage is a named group of jobs, run sequentially or in parallel.
type Stage struct {
	Name         string   `yaml:"name" json:"name"`
	Jobs         []*Job   `yaml:"jobs" json:"jobs"`
	DependsOn    []string `yaml:"depends_on,omitempty" json:"depends_on,omitempty"`
	Parallel     bool     `yaml:"parallel,omitempty" json:"parallel,omitempty"`
	AllowFailure bool     `yaml:"allow_failure,omitempty" json:"allow_failure,omitempty"`

	Status     Status     `yaml:"-" json:"status"`
	StartedAt  *time.Time `yaml:"-" json:"started_at,omitempty"`
	FinishedAt *time.Time `yaml:"-" json:"finished_at,omitempty"`
}

// Trigger schedules automatic runs of a pipeline, either on a fixed
// interval ("every") or once a day at a wall-clock time ("at").
type Trigger struct {
	Every  string   `yaml:"every,omitempty" json:"every,omitempty"`
	At     string   `yaml:"at,omitempty" json:"at,omitempty"`
	Stages []string `yaml:"stages,omitempty" json:"stages,omitempty"`
}

// Pipeline is a full workflow definition plus the mutable state of one run.
type Pipeline struct {
	Name      string            `yaml:"name" json:"name"`
	Stages    []*Stage          `yaml:"stages" json:"stages"`
	Variables map[string]string `yaml:"variables,omitempty" json:"variables,omitempty"`
	Triggers  []Trigger         `yaml:"triggers,omitempty" json:"triggers,omitempty"`
	Timeout   Duration          `yaml:"timeout,omitempty" json:"timeout,omitempty"`

	Status     Status     `yaml:"-" json:"status"`
	StartedAt  *time.Time `yaml:"-" json:"started_at,omitempty"`
	FinishedAt *time.Time `yaml:"-" json:"finished_at,omitempty"`
	Duration   string     `yaml:"-" json:"duration,omitempty"`
}

// Stage returns the stage with the given name, or nil.
func (p *Pipeline) Stage(name string) *Stage {
	for _, stage := range p.Stages {
		if stage.Name == name {
			return stage
		}
	}
	return nil
}

// Job returns the job with the given name, or nil.
func (s *Stage) Job(name string) *Job {
	for _, job := range s.Jobs {
		if job.Name == name {
			return job
		}
	}
	return nil
}
