package deploy

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"drydock/events"
	"drydock/pipeline"
	"drydock/rollback"
	"drydock/storage"
)

// Status of a deployment. Transitions are monotonic:
// pending → running → {success, failed, rolled_back, cancelled}.
type Status string

const (
	StatusPending    Status = "pending"
	StatusRunning    Status = "running"
	StatusSucceeded  Status = "success"
	StatusFailed     Status = "failed"
	StatusRolledBack Status = "rolled_back"
	StatusCancelled  Status = "cancelled"
)

// Terminal reports whether no further transition can happen from s
func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusRolledBack, StatusCancelled:
		return true
	}
	return false
}

// Deployment is one attempt to ship a version to an environment. The
// orchestrator owns and mutates the record for the duration of Deploy;
// everyone else sees snapshots.
type Deployment struct {
	ID                string            `json:"id"`
	Name              string            `json:"name"`
	Version           string            `json:"version"`
	Environment       string            `json:"environment"`
	Artifacts         []string          `json:"artifacts,omitempty"`
	Strategy          rollback.Strategy `json:"strategy"`
	Timeout           pipeline.Duration `json:"timeout,omitempty"`
	RollbackOnFailure bool              `json:"rollback_on_failure"`

	Status              Status            `json:"status"`
	Logs                []string          `json:"logs,omitempty"`
	Metrics             map[string]string `json:"metrics,omitempty"`
	RollbackExecutionID string            `json:"rollback_execution_id,omitempty"`
	StartedAt           *time.Time        `json:"started_at,omitempty"`
	FinishedAt          *time.Time        `json:"finished_at,omitempty"`
	Duration            string            `json:"duration,omitempty"`
}

// Orchestrator drives deployments through their state machine: hooks,
// the environment's deploy action, health checks, and rollback on
// failure. Construct with New; one instance serves many deployments but
// each Deploy call owns its deployment record exclusively.
type Orchestrator struct {
	config    *Config
	actions   Actions
	health    *Checker
	rollbacks *rollback.Manager
	store     *storage.Storage
	broker    *events.Broker
}

// New creates an orchestrator and registers the built-in rollback step
// handlers on the manager. store and broker may be nil.
func New(config *Config, actions Actions, rollbacks *rollback.Manager, store *storage.Storage, broker *events.Broker) *Orchestrator {
	o := &Orchestrator{
		config:    config,
		actions:   actions,
		health:    NewChecker(),
		rollbacks: rollbacks,
		store:     store,
		broker:    broker,
	}
	for _, name := range rollback.BuiltinStepNames() {
		rollbacks.Register(name, commandStepHandler)
	}
	return o
}

// RegisterCommandSteps installs the generic command handler for each of
// the given custom steps, so plans referencing them can be built
func RegisterCommandSteps(m *rollback.Manager, steps []rollback.Step) {
	for _, step := range steps {
		m.Register(step.Name, commandStepHandler)
	}
}

// commandStepHandler runs a step's configured command through the shell.
// Steps without a command are integration points owned by external
// tooling; they only log here.
func commandStepHandler(ctx context.Context, step rollback.Step) error {
	if step.Command == "" {
		log.Printf("🔄 Rollback step %q has no command configured, nothing to run", step.Name)
		return nil
	}
	return runShell(ctx, step.Command, nil)
}

// Deploy executes the deployment against its target environment and
// returns the same record with a terminal status. Expected failures
// (deploy errors, failed health checks, rollback outcomes) are captured
// on the record; the error return is reserved for configuration
// problems detected before anything runs.
func (o *Orchestrator) Deploy(ctx context.Context, d *Deployment) (*Deployment, error) {
	env, err := o.config.Get(d.Environment)
	if err != nil {
		return nil, err
	}
	if d.Status.Terminal() {
		return nil, fmt.Errorf("deployment %s already finished with status %q", d.ID, d.Status)
	}
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.Strategy == "" {
		d.Strategy = env.Rollback.Strategy
	}
	if d.Strategy == "" {
		d.Strategy = rollback.StrategyImmediate
	}
	if !d.Strategy.Valid() {
		return nil, fmt.Errorf("unknown rollback strategy %q", d.Strategy)
	}

	start := time.Now()
	d.Status = StatusRunning
	d.StartedAt = &start
	if d.Metrics == nil {
		d.Metrics = make(map[string]string)
	}
	o.logf(d, "deploying %s version %s to %s (%s)", d.Name, d.Version, env.Name, env.Type)
	o.broker.Broadcast("deployment_started", map[string]interface{}{
		"deployment_id": d.ID,
		"environment":   env.Name,
		"version":       d.Version,
	})

	// The rollback must be able to run even after the deploy deadline
	// has expired, so it gets the pre-timeout context.
	recoveryCtx := context.WithoutCancel(ctx)
	deployCtx := ctx
	if d.Timeout > 0 {
		var cancel context.CancelFunc
		deployCtx, cancel = context.WithTimeout(ctx, d.Timeout.Std())
		defer cancel()
	}

	if deployErr := o.runDeploy(deployCtx, d, env); deployErr != nil {
		o.logf(d, "deployment failed: %v", deployErr)
		o.handleFailure(recoveryCtx, d, env, deployErr)
	} else {
		d.Status = StatusSucceeded
		o.logf(d, "deployment succeeded")
	}

	finished := time.Now()
	d.FinishedAt = &finished
	d.Duration = finished.Sub(start).String()
	d.Metrics["duration"] = d.Duration
	d.Metrics["health_checks"] = fmt.Sprintf("%d", len(env.HealthChecks))

	o.persist(d)
	o.broker.Broadcast("deployment_finished", map[string]interface{}{
		"deployment_id": d.ID,
		"environment":   env.Name,
		"status":        d.Status,
	})
	log.Printf("🚢 Deployment %s to %s: %s", d.Name, env.Name, d.Status)

	return d, nil
}

// runDeploy performs the deploy sequence: pre hooks, the environment's
// deploy action, post hooks, health checks
func (o *Orchestrator) runDeploy(ctx context.Context, d *Deployment, env *Environment) error {
	o.runHooks(ctx, d, env.Hooks.PreDeploy, "pre-deploy")

	if err := o.dispatch(ctx, d, env); err != nil {
		return err
	}

	o.runHooks(ctx, d, env.Hooks.PostDeploy, "post-deploy")

	if err := o.health.Check(ctx, env.HealthChecks); err != nil {
		return err
	}
	if len(env.HealthChecks) > 0 {
		o.logf(d, "all %d health checks passed", len(env.HealthChecks))
	}
	return nil
}

// runHooks executes hook commands best-effort: failures are logged on
// the deployment, never fatal
func (o *Orchestrator) runHooks(ctx context.Context, d *Deployment, hooks []string, phase string) {
	for _, hook := range hooks {
		if err := runShell(ctx, hook, nil); err != nil {
			o.logf(d, "%s hook failed (ignored): %v", phase, err)
		} else {
			o.logf(d, "%s hook ran: %s", phase, hook)
		}
	}
}

// dispatch hands the deployment to the deploy action for the
// environment's type
func (o *Orchestrator) dispatch(ctx context.Context, d *Deployment, env *Environment) error {
	conn := env.Connection
	switch env.Type {
	case EnvDevelopment:
		buildPath := conn["context"]
		if buildPath == "" {
			buildPath = "."
		}
		tag := fmt.Sprintf("%s:%s", d.Name, d.Version)
		if err := o.actions.Containers.BuildImage(ctx, buildPath, tag, map[string]string{"VERSION": d.Version}); err != nil {
			return err
		}
		o.logf(d, "built image %s", tag)
		var ports []string
		if conn["ports"] != "" {
			ports = strings.Split(conn["ports"], ",")
		}
		if err := o.actions.Containers.RunContainer(ctx, tag, env.Variables, ports); err != nil {
			return err
		}
		o.logf(d, "started container %s", tag)
		return nil

	case EnvTest, EnvStaging:
		dir := conn["compose_dir"]
		if dir == "" {
			dir = "."
		}
		if err := o.actions.Compose.Up(ctx, dir, env.Variables); err != nil {
			return err
		}
		o.logf(d, "compose project up in %s", dir)
		return nil

	case EnvProduction:
		manifestPath := conn["manifest"]
		if manifestPath == "" {
			return fmt.Errorf("environment %q has no manifest configured", env.Name)
		}
		manifest, err := renderManifest(manifestPath, d, env)
		if err != nil {
			return err
		}
		if err := o.actions.Cluster.ApplyManifest(ctx, manifest); err != nil {
			return err
		}
		o.logf(d, "applied manifest %s", manifestPath)
		return nil

	case EnvSSH:
		target := conn["target"]
		if target == "" {
			return fmt.Errorf("environment %q has no ssh target configured", env.Name)
		}
		for _, artifact := range d.Artifacts {
			if err := o.actions.SSH.SyncArtifact(ctx, artifact, target, conn["key_path"]); err != nil {
				return err
			}
			o.logf(d, "synced %s to %s", artifact, target)
		}
		return nil

	default:
		return fmt.Errorf("no deploy action for environment type %q", env.Type)
	}
}

// renderManifest substitutes ${VAR} references with the environment's
// variables plus the deployment's name and version
func renderManifest(path string, d *Deployment, env *Environment) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read manifest: %w", err)
	}
	rendered := os.Expand(string(raw), func(key string) string {
		switch key {
		case "NAME":
			return d.Name
		case "VERSION":
			return d.Version
		default:
			return env.Variables[key]
		}
	})
	return rendered, nil
}

// handleFailure decides between plain failure and rollback, and maps the
// rollback outcome onto the deployment status
func (o *Orchestrator) handleFailure(ctx context.Context, d *Deployment, env *Environment, cause error) {
	if !d.RollbackOnFailure {
		d.Status = StatusFailed
		return
	}

	RegisterCommandSteps(o.rollbacks, env.Rollback.Steps)

	plan, err := o.rollbacks.CreatePlan(d.ID, d.Strategy, cause.Error(), env.Rollback.Steps)
	if err != nil {
		o.logf(d, "rollback plan could not be built: %v", err)
		d.Status = StatusFailed
		return
	}
	o.logf(d, "rollback plan %s built: %d steps, estimated %s, risk %s", plan.ID, len(plan.Steps), plan.EstimatedDuration.Std(), plan.RiskLevel)

	ex, err := o.rollbacks.Execute(ctx, d.ID)
	if err != nil {
		o.logf(d, "rollback could not run: %v", err)
		d.Status = StatusFailed
		return
	}
	d.RollbackExecutionID = ex.ID
	o.logf(d, "rollback %s: %d/%d steps completed, %d failed", ex.Status, ex.CompletedSteps, len(plan.Steps), ex.FailedSteps)

	switch {
	case ex.Status == rollback.ExecutionCompleted:
		d.Status = StatusRolledBack
	case ex.Status == rollback.ExecutionFailed && plan.Strategy != rollback.StrategyImmediate:
		// Best-effort strategies recovered partially; the step errors
		// stay on the execution record.
		d.Status = StatusRolledBack
	default:
		d.Status = StatusFailed
	}
}

func (o *Orchestrator) logf(d *Deployment, format string, args ...interface{}) {
	line := fmt.Sprintf("%s %s", time.Now().Format(time.RFC3339), fmt.Sprintf(format, args...))
	d.Logs = append(d.Logs, line)
}

func (o *Orchestrator) persist(d *Deployment) {
	if o.store == nil {
		return
	}
	record := &storage.DeploymentRecord{
		ID:                  d.ID,
		Name:                d.Name,
		Version:             d.Version,
		Environment:         d.Environment,
		Strategy:            string(d.Strategy),
		Status:              string(d.Status),
		Logs:                strings.Join(d.Logs, "\n"),
		RollbackExecutionID: d.RollbackExecutionID,
		StartedAt:           d.StartedAt,
		FinishedAt:          d.FinishedAt,
	}
	if d.Duration != "" {
		duration := d.Duration
		record.Duration = &duration
	}
	if err := o.store.SaveDeployment(record); err != nil {
		log.Printf("⚠️  Failed to persist deployment %s: %v", d.ID, err)
	}
}
