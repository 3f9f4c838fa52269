package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"drydock/pipeline"
	"drydock/runner"
	"drydock/storage"
)

// Run executes the 'run' command
func Run(configPath string) error {
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

	p, err := pipeline.Load(configPath)
	if err != nil {
		log.Fatalf("Invalid pipeline: %v", err)
	}

	engine := runner.NewEngine(store, nil, 0)
	result, err := engine.Run(context.Background(), p, runner.Options{
		ConfigPath:       configPath,
		StreamToTerminal: true, // Always stream to console for local development
	})
	if err != nil {
		log.Fatalf("Pipeline failed: %v", err)
	}

	fmt.Printf("\n📊 Run ID: %d | Status: %s | Steps: %d/%d | Duration: %s\n",
		result.RunID, result.Status, result.StepsCompleted, result.TotalSteps, result.Duration)

	if result.Status != pipeline.StatusSucceeded {
		for _, errMsg := range result.Errors {
			fmt.Println("  ✗", errMsg)
		}
		os.Exit(1)
	}

	return nil
}
