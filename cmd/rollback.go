package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"drydock/deploy"
	"drydock/events"
	"drydock/rollback"
	"drydock/storage"
)

// Rollback executes the 'rollback' command: it builds and runs a
// rollback plan for a previously recorded deployment.
func Rollback(deploymentID, strategy, reason string) error {
	cwd, err := os.Getwd()
	if err != nil {
		log.Fatalf("Failed to get current directory: %v", err)
	}

	dataDir := filepath.Join(cwd, "data")
	store, err := storage.NewStorage(filepath.Join(dataDir, "drydock.db"))
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	defer store.Close()

	files, err := storage.NewFileStore(filepath.Join(dataDir, "records"))
	if err != nil {
		log.Fatalf("Failed to initialize record store: %v", err)
	}

	record, err := store.GetDeployment(deploymentID)
	if err != nil {
		log.Fatalf("Unknown deployment: %v", err)
	}

	envConfig, err := deploy.LoadConfig(filepath.Join(cwd, "environments.yml"))
	if err != nil {
		log.Fatalf("Failed to load environments config: %v", err)
	}
	env, err := envConfig.Get(record.Environment)
	if err != nil {
		log.Fatalf("Environment no longer configured: %v", err)
	}

	broker := events.NewBroker()
	rollbacks := rollback.NewManager(files, broker)
	// Registers the built-in step handlers on the manager
	deploy.New(envConfig, deploy.DefaultActions(), rollbacks, store, broker)
	deploy.RegisterCommandSteps(rollbacks, env.Rollback.Steps)

	if strategy == "" {
		strategy = record.Strategy
	}
	if reason == "" {
		reason = "manual rollback"
	}

	plan, err := rollbacks.CreatePlan(deploymentID, rollback.Strategy(strategy), reason, env.Rollback.Steps)
	if err != nil {
		log.Fatalf("Failed to build rollback plan: %v", err)
	}
	fmt.Printf("🔄 Plan %s: %d steps, estimated %s, risk %s\n", plan.ID, len(plan.Steps), plan.EstimatedDuration.Std(), plan.RiskLevel)

	ex, err := rollbacks.Execute(context.Background(), deploymentID)
	if err != nil {
		log.Fatalf("Rollback failed to run: %v", err)
	}

	fmt.Printf("🔄 Rollback %s | Status: %s | Completed: %d | Failed: %d\n", ex.ID, ex.Status, ex.CompletedSteps, ex.FailedSteps)
	for _, errMsg := range ex.Errors {
		fmt.Println("  ✗", errMsg)
	}

	if ex.Status != rollback.ExecutionCompleted {
		os.Exit(1)
	}
	return nil
}
