package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"

	"drydock/deploy"
	"drydock/pipeline"
	"drydock/rollback"
	"drydock/runner"
	"drydock/storage"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, format string, args ...interface{}) {
	writeJSON(w, status, map[string]interface{}{
		"error": fmt.Sprintf(format, args...),
	})
}

// GetRuns returns the most recent runs
func GetRuns(store *storage.Storage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		runs, err := store.GetRuns(100)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to get runs: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, runs)
	}
}

// GetRun returns a single run with its job executions
func GetRun(store *storage.Storage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		runID, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid run ID")
			return
		}

		run, err := store.GetRun(runID)
		if err != nil {
			writeError(w, http.StatusNotFound, "Run not found: %v", err)
			return
		}

		jobs, err := store.GetJobExecutions(runID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to get jobs: %v", err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"run":  run,
			"jobs": jobs,
		})
	}
}

// GetRunStatus returns just the status of a run (lightweight for polling)
func GetRunStatus(store *storage.Storage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		runID, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid run ID")
			return
		}

		run, err := store.GetRun(runID)
		if err != nil {
			writeError(w, http.StatusNotFound, "Run not found: %v", err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"id":     run.ID,
			"status": run.Status,
		})
	}
}

// PostRun starts a pipeline run from an explicit config path
func PostRun(engine *runner.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ConfigPath string `json:"config_path"`
			Stage      string `json:"stage,omitempty"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request: %v", err)
			return
		}
		if req.ConfigPath == "" {
			writeError(w, http.StatusBadRequest, "config_path is required")
			return
		}

		configPath := req.ConfigPath
		if !filepath.IsAbs(configPath) {
			cwd, err := os.Getwd()
			if err != nil {
				writeError(w, http.StatusInternalServerError, "Failed to get working directory: %v", err)
				return
			}
			configPath = filepath.Join(cwd, configPath)
		}

		p, err := pipeline.Load(configPath)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid pipeline: %v", err)
			return
		}

		log.Printf("🚀 Triggering pipeline: %s", configPath)
		result, err := engine.Run(r.Context(), p, runner.Options{
			ConfigPath:  configPath,
			StageFilter: req.Stage,
		})
		if err != nil {
			writeError(w, http.StatusInternalServerError, "%v", err)
			return
		}

		writeJSON(w, http.StatusOK, result)
	}
}

// GetProjects returns all configured projects with validation state
func GetProjects(projectsConfig *runner.ProjectsConfig, baseDir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		type ProjectResponse struct {
			runner.Project
			Valid bool   `json:"valid"`
			Error string `json:"error,omitempty"`
		}

		projects := make([]ProjectResponse, 0, len(projectsConfig.Projects))
		for _, project := range projectsConfig.Projects {
			pr := ProjectResponse{Project: project, Valid: true}
			if err := project.Validate(baseDir); err != nil {
				pr.Valid = false
				pr.Error = err.Error()
			}
			projects = append(projects, pr)
		}

		writeJSON(w, http.StatusOK, projects)
	}
}

// GetProjectRuns returns runs for a specific project's pipeline
func GetProjectRuns(store *storage.Storage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		runs, err := store.GetRunsByPipeline(chi.URLParam(r, "name"), 100)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to get runs: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, runs)
	}
}

// PostProjectRun starts a pipeline run for a project, asynchronously
func PostProjectRun(engine *runner.Engine, projectsConfig *runner.ProjectsConfig, baseDir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projectName := chi.URLParam(r, "name")

		project, err := projectsConfig.GetProject(projectName)
		if err != nil {
			writeError(w, http.StatusNotFound, "Project not found: %v", err)
			return
		}
		if err := project.Validate(baseDir); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid project: %v", err)
			return
		}

		configPath := project.PipelinePath(baseDir)
		stageFilter := r.URL.Query().Get("stage")

		if stageFilter != "" {
			log.Printf("🚀 Triggering pipeline for project %s (stage: %s): %s", projectName, stageFilter, configPath)
		} else {
			log.Printf("🚀 Triggering pipeline for project %s: %s", projectName, configPath)
		}

		// Run fully async - the run record shows up in the store and
		// polling or the event stream picks it up
		go func() {
			p, err := pipeline.Load(configPath)
			if err != nil {
				log.Printf("❌ Pipeline load failed for %s: %v", projectName, err)
				return
			}
			result, err := engine.Run(context.Background(), p, runner.Options{
				ConfigPath:  configPath,
				StageFilter: stageFilter,
			})
			if err != nil {
				log.Printf("❌ Pipeline execution failed for %s: %v", projectName, err)
				return
			}
			if result.Status == pipeline.StatusSucceeded {
				log.Printf("✅ Pipeline completed successfully for %s", projectName)
			} else {
				log.Printf("❌ Pipeline ended %s for %s", result.Status, projectName)
			}
		}()

		writeJSON(w, http.StatusAccepted, map[string]interface{}{
			"message": fmt.Sprintf("Pipeline started for %s", projectName),
			"status":  "starting",
		})
	}
}

// GetProjectStats returns latest runs grouped by stage for a project
func GetProjectStats(store *storage.Storage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := store.GetLatestRunsByStage(chi.URLParam(r, "name"), 5)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to get project stats: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}

// GetDeployments returns the most recent deployments
func GetDeployments(store *storage.Storage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deployments, err := store.GetDeployments(100)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to get deployments: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, deployments)
	}
}

// GetDeployment returns one deployment record
func GetDeployment(store *storage.Storage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		record, err := store.GetDeployment(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusNotFound, "Deployment not found: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, record)
	}
}

// PostDeploy runs a deployment and returns its terminal record
func PostDeploy(orchestrator *deploy.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Name              string            `json:"name"`
			Version           string            `json:"version"`
			Environment       string            `json:"environment"`
			Artifacts         []string          `json:"artifacts,omitempty"`
			Strategy          rollback.Strategy `json:"strategy,omitempty"`
			Timeout           pipeline.Duration `json:"timeout,omitempty"`
			RollbackOnFailure bool              `json:"rollback_on_failure"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request: %v", err)
			return
		}
		if req.Name == "" || req.Version == "" || req.Environment == "" {
			writeError(w, http.StatusBadRequest, "name, version and environment are required")
			return
		}

		d := &deploy.Deployment{
			Name:              req.Name,
			Version:           req.Version,
			Environment:       req.Environment,
			Artifacts:         req.Artifacts,
			Strategy:          req.Strategy,
			Timeout:           req.Timeout,
			RollbackOnFailure: req.RollbackOnFailure,
		}

		log.Printf("🚢 Deploying %s %s to %s", req.Name, req.Version, req.Environment)
		result, err := orchestrator.Deploy(r.Context(), d)
		if err != nil {
			writeError(w, http.StatusBadRequest, "%v", err)
			return
		}

		writeJSON(w, http.StatusOK, result)
	}
}

// GetRollbacks lists the ids of persisted rollback executions
func GetRollbacks(files *storage.FileStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ids, err := files.List("rollback")
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to list rollback executions: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"ids": ids})
	}
}

// GetRollback returns one persisted rollback execution
func GetRollback(files *storage.FileStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var ex rollback.Execution
		if err := files.Load("rollback", chi.URLParam(r, "id"), &ex); err != nil {
			writeError(w, http.StatusNotFound, "Rollback execution not found: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, ex)
	}
}
