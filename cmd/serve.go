package cmd

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"

	"drydock/api"
	"drydock/deploy"
	"drydock/events"
	"drydock/rollback"
	"drydock/runner"
	"drydock/storage"
)

// Serve starts the HTTP control-plane server
func Serve() error {
	// Load .env file if it exists (ignore errors if it doesn't)
	_ = godotenv.Load()

	port := getEnv("PORT", "8080")

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

	broker := events.NewBroker()
	engine := runner.NewEngine(store, broker, 0)
	rollbacks := rollback.NewManager(files, broker)

	// Environments config is optional; deployments just need it present
	envConfig := &deploy.Config{}
	envPath := filepath.Join(cwd, "environments.yml")
	if _, err := os.Stat(envPath); err == nil {
		envConfig, err = deploy.LoadConfig(envPath)
		if err != nil {
			log.Fatalf("Failed to load environments config: %v", err)
		}
		log.Printf("🌍 Loaded %d environment(s)", len(envConfig.Environments))
	}
	orchestrator := deploy.New(envConfig, deploy.DefaultActions(), rollbacks, store, broker)

	// Load projects configuration
	projectsPath := filepath.Join(cwd, "projects.yml")
	projectsConfig, err := runner.LoadProjects(projectsPath)
	if err != nil {
		log.Printf("Warning: Failed to load projects config: %v", err)
		projectsConfig = &runner.ProjectsConfig{Projects: []runner.Project{}}
	} else {
		log.Printf("📁 Loaded %d project(s)", len(projectsConfig.Projects))
	}

	// Start the trigger scheduler
	scheduler := runner.NewScheduler(projectsConfig, engine, broker, cwd)
	go scheduler.Start()
	defer scheduler.Stop()

	r := chi.NewRouter()
	r.Use(corsMiddleware)

	r.Route("/api", func(r chi.Router) {
		r.Get("/runs", api.GetRuns(store))
		r.Get("/runs/{id}", api.GetRun(store))
		r.Get("/runs/{id}/status", api.GetRunStatus(store))
		r.Post("/run", api.PostRun(engine))

		r.Get("/projects", api.GetProjects(projectsConfig, cwd))
		r.Get("/projects/{name}/runs", api.GetProjectRuns(store))
		r.Post("/projects/{name}/run", api.PostProjectRun(engine, projectsConfig, cwd))
		r.Get("/projects/{name}/stats", api.GetProjectStats(store))

		r.Get("/deployments", api.GetDeployments(store))
		r.Get("/deployments/{id}", api.GetDeployment(store))
		r.Post("/deploy", api.PostDeploy(orchestrator))

		r.Get("/rollbacks", api.GetRollbacks(files))
		r.Get("/rollbacks/{id}", api.GetRollback(files))

		r.Get("/events", api.SSEHandler(broker))
	})

	serverAddr := ":" + port
	log.Printf("🚀 Starting drydock server on port %s...", port)

	if err := http.ListenAndServe(serverAddr, r); err != nil {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// corsMiddleware allows browser dashboards on other origins
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// getEnv gets environment variable or returns default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}
