package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// CreateJobExecution creates a new job execution record
func (s *Storage) CreateJobExecution(runID int, name, stage, command string) (*JobExecution, error) {
	now := time.Now()
	result, err := s.db.Exec(
		"INSERT INTO job_executions (run_id, name, stage, status, command, started_at) VALUES (?, ?, ?, ?, ?, ?)",
		runID, name, stage, "running", command, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create job execution: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get job execution ID: %w", err)
	}

	return &JobExecution{
		ID:        int(id),
		RunID:     runID,
		Name:      name,
		Stage:     stage,
		Status:    "running",
		Command:   command,
		Attempts:  1,
		StartedAt: now,
	}, nil
}

// FinishJobExecution updates a job execution with its outcome
func (s *Storage) FinishJobExecution(jobID int, status, output, errMsg string, attempts int, duration time.Duration) error {
	now := time.Now()
	durationStr := duration.String()
	_, err := s.db.Exec(
		"UPDATE job_executions SET status = ?, output = ?, error = ?, attempts = ?, finished_at = ?, duration = ? WHERE id = ?",
		status, output, errMsg, attempts, now, durationStr, jobID,
	)
	if err != nil {
		return fmt.Errorf("failed to update job execution: %w", err)
	}
	return nil
}

// GetJobExecutions retrieves all job executions for a run
func (s *Storage) GetJobExecutions(runID int) ([]*JobExecution, error) {
	rows, err := s.db.Query(
		`SELECT id, run_id, name, stage, status, command, output, error, attempts, started_at, finished_at, duration
		FROM job_executions WHERE run_id = ? ORDER BY id ASC`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query job executions: %w", err)
	}
	defer rows.Close()

	var jobs []*JobExecution
	for rows.Next() {
		var job JobExecution
		var output, errMsg sql.NullString
		var finishedAt sql.NullTime
		var duration sql.NullString

		err := rows.Scan(&job.ID, &job.RunID, &job.Name, &job.Stage, &job.Status, &job.Command, &output, &errMsg, &job.Attempts, &job.StartedAt, &finishedAt, &duration)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job execution: %w", err)
		}

		if output.Valid {
			job.Output = output.String
		}
		if errMsg.Valid {
			job.Error = errMsg.String
		}
		if finishedAt.Valid {
			job.FinishedAt = &finishedAt.Time
		}
		if duration.Valid {
			durationStr := duration.String
			job.Duration = &durationStr
		}

		jobs = append(jobs, &job)
	}

	return jobs, rows.Err()
}
