package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// CreateRun creates a new run record
func (s *Storage) CreateRun(pipelineName, configPath string, totalSteps int) (*Run, error) {
	now := time.Now()
	result, err := s.db.Exec(
		"INSERT INTO runs (status, pipeline_name, config_path, total_steps, started_at) VALUES (?, ?, ?, ?, ?)",
		"running", pipelineName, configPath, totalSteps, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get run ID: %w", err)
	}

	return &Run{
		ID:           int(id),
		Status:       "running",
		PipelineName: pipelineName,
		ConfigPath:   configPath,
		TotalSteps:   totalSteps,
		StartedAt:    now,
	}, nil
}

// FinishRun updates status, progress counters and finish time of a run
func (s *Storage) FinishRun(runID int, status string, stepsCompleted int, duration time.Duration) error {
	now := time.Now()
	durationStr := duration.String()
	_, err := s.db.Exec(
		"UPDATE runs SET status = ?, steps_completed = ?, finished_at = ?, duration = ? WHERE id = ?",
		status, stepsCompleted, now, durationStr, runID,
	)
	if err != nil {
		return fmt.Errorf("failed to update run status: %w", err)
	}
	return nil
}

// GetRuns retrieves all runs, ordered by most recent first
func (s *Storage) GetRuns(limit int) ([]*Run, error) {
	query := `SELECT id, status, pipeline_name, config_path, steps_completed, total_steps, started_at, finished_at, duration
		FROM runs ORDER BY started_at DESC LIMIT ?`
	rows, err := s.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows.Scan)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// GetRunsByPipeline retrieves runs for one pipeline, most recent first
func (s *Storage) GetRunsByPipeline(pipelineName string, limit int) ([]*Run, error) {
	query := `SELECT id, status, pipeline_name, config_path, steps_completed, total_steps, started_at, finished_at, duration
		FROM runs WHERE pipeline_name = ? ORDER BY started_at DESC LIMIT ?`
	rows, err := s.db.Query(query, pipelineName, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows.Scan)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// GetRun retrieves a single run by ID
func (s *Storage) GetRun(runID int) (*Run, error) {
	row := s.db.QueryRow(
		`SELECT id, status, pipeline_name, config_path, steps_completed, total_steps, started_at, finished_at, duration
		FROM runs WHERE id = ?`,
		runID,
	)

	run, err := scanRun(row.Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

func scanRun(scan func(dest ...any) error) (*Run, error) {
	var r Run
	var finishedAt sql.NullTime
	var duration sql.NullString

	err := scan(&r.ID, &r.Status, &r.PipelineName, &r.ConfigPath, &r.StepsCompleted, &r.TotalSteps, &r.StartedAt, &finishedAt, &duration)
	if err != nil {
		return nil, err
	}

	if finishedAt.Valid {
		r.FinishedAt = &finishedAt.Time
	}
	if duration.Valid {
		durationStr := duration.String
		r.Duration = &durationStr
	}

	return &r, nil
}
