package rollback

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"drydock/pipeline"
)

// Strategy is the recovery policy for a failed deployment. It determines
// the default step sequence and the failure policy during execution:
// immediate aborts on the first failed step, every other strategy
// records the failure and keeps going.
type Strategy string

const (
	StrategyImmediate Strategy = "immediate"
	StrategyRolling   Strategy = "rolling"
	StrategyBlueGreen Strategy = "blue_green"
	StrategyCanary    Strategy = "canary"
	StrategyManual    Strategy = "manual"
)

// Valid reports whether s is a known strategy
func (s Strategy) Valid() bool {
	switch s {
	case StrategyImmediate, StrategyRolling, StrategyBlueGreen, StrategyCanary, StrategyManual:
		return true
	}
	return false
}

// Step is one recovery action inside a plan. Steps are not mutated during
// execution; run state lives on the Execution record. What a step does
// comes from the handler registered under its name, never from the step
// itself; Command is plain data that a command-running handler may use.
type Step struct {
	Name        string            `yaml:"name" json:"name"`
	Description string            `yaml:"description,omitempty" json:"description,omitempty"`
	Command     string            `yaml:"command,omitempty" json:"command,omitempty"`
	Timeout     pipeline.Duration `yaml:"timeout,omitempty" json:"timeout"`
	Retries     int               `yaml:"retries,omitempty" json:"retries,omitempty"`
	// DependsOn is reserved for future branching; execution is strictly
	// linear in plan order today.
	DependsOn []string `yaml:"depends_on,omitempty" json:"depends_on,omitempty"`
}

// BuiltinStepNames lists every step name used by the strategy default
// sequences. Whoever constructs the Manager registers handlers for these.
func BuiltinStepNames() []string {
	return []string{
		"stop_services",
		"restore_backup",
		"restart_services",
		"identify_healthy_instances",
		"rollback_instances",
		"prepare_rollback",
		"execute_rollback",
		"validate_rollback",
	}
}

// Plan is an ordered recovery procedure for one deployment. Read-only
// once built.
type Plan struct {
	ID                string            `json:"id"`
	DeploymentID      string            `json:"deployment_id"`
	Strategy          Strategy          `json:"strategy"`
	Reason            string            `json:"reason,omitempty"`
	Steps             []Step            `json:"steps"`
	EstimatedDuration pipeline.Duration `json:"estimated_duration"`
	RiskLevel         string            `json:"risk_level"`
	CreatedAt         time.Time         `json:"created_at"`
}

const defaultStepTimeout = 60 * time.Second

// defaultSteps returns the strategy-specific default step sequence
func defaultSteps(strategy Strategy) []Step {
	switch strategy {
	case StrategyImmediate:
		return []Step{
			{Name: "stop_services", Description: "Stop the services of the failed release", Timeout: pipeline.Duration(60 * time.Second)},
			{Name: "restore_backup", Description: "Restore the previous release from backup", Timeout: pipeline.Duration(120 * time.Second)},
			{Name: "restart_services", Description: "Restart services on the restored release", Timeout: pipeline.Duration(60 * time.Second)},
		}
	case StrategyRolling:
		return []Step{
			{Name: "identify_healthy_instances", Description: "Find instances still serving the previous release", Timeout: pipeline.Duration(30 * time.Second)},
			{Name: "rollback_instances", Description: "Roll instances back one batch at a time", Timeout: pipeline.Duration(180 * time.Second)},
			{Name: "validate_rollback", Description: "Verify the rolled-back release is serving", Timeout: pipeline.Duration(60 * time.Second)},
		}
	default:
		return []Step{
			{Name: "prepare_rollback", Description: "Prepare the rollback of the failed release", Timeout: pipeline.Duration(30 * time.Second)},
			{Name: "execute_rollback", Description: "Execute the rollback", Timeout: pipeline.Duration(120 * time.Second)},
			{Name: "validate_rollback", Description: "Verify the rolled-back release is serving", Timeout: pipeline.Duration(60 * time.Second)},
		}
	}
}

func riskLevel(strategy Strategy) string {
	switch strategy {
	case StrategyImmediate:
		return "high"
	case StrategyRolling, StrategyCanary:
		return "medium"
	default:
		return "low"
	}
}

// CreatePlan builds a rollback plan for a deployment. Custom steps
// replace the strategy defaults when supplied. Unknown strategies and
// steps without a registered handler are configuration errors and fail
// here, before anything runs. At most one plan may be active per
// deployment at a time.
func (m *Manager) CreatePlan(deploymentID string, strategy Strategy, reason string, customSteps []Step) (*Plan, error) {
	if !strategy.Valid() {
		return nil, fmt.Errorf("unknown rollback strategy %q", strategy)
	}

	// Copy before defaulting timeouts; the caller's steps usually come
	// straight out of loaded environment config, which stays untouched.
	var steps []Step
	if len(customSteps) > 0 {
		steps = append([]Step(nil), customSteps...)
	} else {
		steps = defaultSteps(strategy)
	}

	var estimated time.Duration
	for i := range steps {
		if steps[i].Timeout == 0 {
			steps[i].Timeout = pipeline.Duration(defaultStepTimeout)
		}
		if m.handler(steps[i].Name) == nil {
			return nil, fmt.Errorf("no handler registered for rollback step %q", steps[i].Name)
		}
		estimated += steps[i].Timeout.Std()
	}

	plan := &Plan{
		ID:                uuid.NewString(),
		DeploymentID:      deploymentID,
		Strategy:          strategy,
		Reason:            reason,
		Steps:             steps,
		EstimatedDuration: pipeline.Duration(estimated),
		RiskLevel:         riskLevel(strategy),
		CreatedAt:         time.Now(),
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.active[deploymentID]; exists {
		return nil, fmt.Errorf("deployment %s already has an active rollback plan", deploymentID)
	}
	m.active[deploymentID] = plan

	return plan, nil
}

// ActivePlan returns the active plan for a deployment, or nil
func (m *Manager) ActivePlan(deploymentID string) *Plan {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active[deploymentID]
}
