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

// DeployOptions carries the 'deploy' command flags
type DeployOptions struct {
	Name              string
	Version           string
	Environment       string
	Artifacts         []string
	Strategy          string
	RollbackOnFailure bool
}

// Deploy executes the 'deploy' command
func Deploy(opts DeployOptions) error {
	cwd, err := os.Getwd()
	if err != nil {
		log.Fatalf("Failed to get current directory: %v", err)
	}

	dataDir := filepath.Join(cwd, "data")
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}

	store, err := storage.NewStorage(filepath.Join(dataDir, "drydock.db"))
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	defer store.Close()

	files, err := storage.NewFileStore(filepath.Join(dataDir, "records"))
	if err != nil {
		log.Fatalf("Failed to initialize record store: %v", err)
	}

	envConfig, err := deploy.LoadConfig(filepath.Join(cwd, "environments.yml"))
	if err != nil {
		log.Fatalf("Failed to load environments config: %v", err)
	}

	broker := events.NewBroker()
	rollbacks := rollback.NewManager(files, broker)
	orchestrator := deploy.New(envConfig, deploy.DefaultActions(), rollbacks, store, broker)

	d := &deploy.Deployment{
		Name:              opts.Name,
		Version:           opts.Version,
		Environment:       opts.Environment,
		Artifacts:         opts.Artifacts,
		Strategy:          rollback.Strategy(opts.Strategy),
		RollbackOnFailure: opts.RollbackOnFailure,
	}

	result, err := orchestrator.Deploy(context.Background(), d)
	if err != nil {
		log.Fatalf("Deployment failed to start: %v", err)
	}

	fmt.Printf("\n🚢 Deployment %s | Status: %s | Duration: %s\n", result.ID, result.Status, result.Duration)
	for _, line := range result.Logs {
		fmt.Println("  ", line)
	}
	if result.RollbackExecutionID != "" {
		fmt.Printf("  Rollback execution: %s\n", result.RollbackExecutionID)
	}

	if result.Status != deploy.StatusSucceeded {
		os.Exit(1)
	}
	return nil
}
