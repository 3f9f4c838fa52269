package rollback

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"drydock/events"
	"drydock/storage"
)

// Execution statuses. Terminal once set.
const (
	ExecutionRunning   = "running"
	ExecutionCompleted = "completed"
	ExecutionFailed    = "failed"
	ExecutionCancelled = "cancelled"
)

// Execution is the run record of one rollback plan. It is appended to
// while the rollback runs and persisted, immutable, once finished.
type Execution struct {
	ID             string     `json:"id"`
	DeploymentID   string     `json:"deployment_id"`
	PlanID         string     `json:"plan_id"`
	Strategy       Strategy   `json:"strategy"`
	Status         string     `json:"status"`
	CurrentStep    int        `json:"current_step"`
	CompletedSteps int        `json:"completed_steps"`
	FailedSteps    int        `json:"failed_steps"`
	Errors         []string   `json:"errors,omitempty"`
	StartedAt      time.Time  `json:"started_at"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
}

// StepFunc performs one rollback step. Handlers must be idempotent:
// a step interrupted by cancellation may be run again on a later
// rollback attempt with no compensating action in between.
type StepFunc func(ctx context.Context, step Step) error

// Manager builds and executes rollback plans. Step behavior comes from a
// registry keyed by step name; nothing executable is stored on the plan
// itself. Construct with NewManager and register handlers before
// creating plans.
type Manager struct {
	store  *storage.FileStore
	broker *events.Broker

	mu       sync.Mutex
	registry map[string]StepFunc
	active   map[string]*Plan
}

// NewManager creates a rollback manager. store may be nil, in which case
// execution records are not persisted to disk.
func NewManager(store *storage.FileStore, broker *events.Broker) *Manager {
	return &Manager{
		store:    store,
		broker:   broker,
		registry: make(map[string]StepFunc),
		active:   make(map[string]*Plan),
	}
}

// Register installs the handler for a step name, replacing any previous one
func (m *Manager) Register(name string, fn StepFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.registry[name] = fn
}

func (m *Manager) handler(name string) StepFunc {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.registry[name]
}

// Execute runs the active plan for the deployment strictly in plan
// order, each step bounded by its own timeout. Under the immediate
// strategy the first failed step aborts the rest; under every other
// strategy failures are recorded and execution continues. The returned
// execution always carries a terminal status; the error return is
// reserved for calling without an active plan.
func (m *Manager) Execute(ctx context.Context, deploymentID string) (*Execution, error) {
	plan := m.ActivePlan(deploymentID)
	if plan == nil {
		return nil, fmt.Errorf("no active rollback plan for deployment %s", deploymentID)
	}

	ex := &Execution{
		ID:           uuid.NewString(),
		DeploymentID: deploymentID,
		PlanID:       plan.ID,
		Strategy:     plan.Strategy,
		Status:       ExecutionRunning,
		StartedAt:    time.Now(),
	}

	log.Printf("🔄 Rollback started for deployment %s (%s, %d steps)", deploymentID, plan.Strategy, len(plan.Steps))
	m.broker.Broadcast("rollback_started", map[string]interface{}{
		"execution_id":  ex.ID,
		"deployment_id": deploymentID,
		"strategy":      plan.Strategy,
	})

	for i, step := range plan.Steps {
		if ctx.Err() != nil {
			ex.Status = ExecutionCancelled
			ex.Errors = append(ex.Errors, "rollback cancelled: "+ctx.Err().Error())
			break
		}

		ex.CurrentStep = i + 1
		if err := m.runStep(ctx, step); err != nil {
			ex.FailedSteps++
			ex.Errors = append(ex.Errors, err.Error())
			log.Printf("❌ Rollback step %q failed: %v", step.Name, err)

			if plan.Strategy == StrategyImmediate {
				break
			}
			continue
		}
		ex.CompletedSteps++
	}

	if ex.Status == ExecutionRunning {
		if ex.FailedSteps == 0 {
			ex.Status = ExecutionCompleted
		} else {
			ex.Status = ExecutionFailed
		}
	}
	now := time.Now()
	ex.FinishedAt = &now

	m.mu.Lock()
	delete(m.active, deploymentID)
	m.mu.Unlock()

	if m.store != nil {
		if _, err := m.store.Save("rollback", ex.ID, ex); err != nil {
			log.Printf("⚠️  Failed to persist rollback execution %s: %v", ex.ID, err)
		}
	}
	m.broker.Broadcast("rollback_finished", map[string]interface{}{
		"execution_id":  ex.ID,
		"deployment_id": deploymentID,
		"status":        ex.Status,
	})
	log.Printf("🔄 Rollback %s for deployment %s: %d completed, %d failed", ex.Status, deploymentID, ex.CompletedSteps, ex.FailedSteps)

	return ex, nil
}

// runStep executes one step under its timeout, retrying failed attempts
// immediately up to the configured retry count
func (m *Manager) runStep(ctx context.Context, step Step) error {
	fn := m.handler(step.Name)
	if fn == nil {
		// CreatePlan validated the registry; a missing handler here means
		// it was replaced concurrently, treat it as a step failure.
		return fmt.Errorf("no handler registered for rollback step %q", step.Name)
	}

	var err error
	maxAttempts := step.Retries + 1
	for attempt := 0; attempt < maxAttempts; attempt++ {
		stepCtx, cancel := context.WithTimeout(ctx, step.Timeout.Std())
		err = fn(stepCtx, step)
		timedOut := stepCtx.Err() == context.DeadlineExceeded
		cancel()

		if err == nil && !timedOut {
			return nil
		}
		if timedOut {
			err = fmt.Errorf("rollback step %q timed out after %s", step.Name, step.Timeout.Std())
		} else {
			err = fmt.Errorf("rollback step %q failed: %w", step.Name, err)
		}
		if ctx.Err() != nil {
			return err
		}
	}
	return err
}
