package storage

import (
	"database/sql"
	"fmt"
)

// SaveDeployment inserts or updates a deployment record
func (s *Storage) SaveDeployment(d *DeploymentRecord) error {
	_, err := s.db.Exec(
		`INSERT INTO deployments (id, name, version, environment, strategy, status, logs, rollback_execution_id, started_at, finished_at, duration)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			logs = excluded.logs,
			rollback_execution_id = excluded.rollback_execution_id,
			started_at = excluded.started_at,
			finished_at = excluded.finished_at,
			duration = excluded.duration`,
		d.ID, d.Name, d.Version, d.Environment, d.Strategy, d.Status, d.Logs, d.RollbackExecutionID, d.StartedAt, d.FinishedAt, d.Duration,
	)
	if err != nil {
		return fmt.Errorf("failed to save deployment: %w", err)
	}
	return nil
}

// GetDeployment retrieves a single deployment by ID
func (s *Storage) GetDeployment(id string) (*DeploymentRecord, error) {
	row := s.db.QueryRow(
		`SELECT id, name, version, environment, strategy, status, logs, rollback_execution_id, started_at, finished_at, duration
		FROM deployments WHERE id = ?`,
		id,
	)
	d, err := scanDeployment(row.Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("deployment not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get deployment: %w", err)
	}
	return d, nil
}

// GetDeployments retrieves deployments, most recent first
func (s *Storage) GetDeployments(limit int) ([]*DeploymentRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, name, version, environment, strategy, status, logs, rollback_execution_id, started_at, finished_at, duration
		FROM deployments ORDER BY started_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query deployments: %w", err)
	}
	defer rows.Close()

	var deployments []*DeploymentRecord
	for rows.Next() {
		d, err := scanDeployment(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan deployment: %w", err)
		}
		deployments = append(deployments, d)
	}

	return deployments, rows.Err()
}

func scanDeployment(scan func(dest ...any) error) (*DeploymentRecord, error) {
	var d DeploymentRecord
	var logs sql.NullString
	var startedAt, finishedAt sql.NullTime
	var duration sql.NullString

	err := scan(&d.ID, &d.Name, &d.Version, &d.Environment, &d.Strategy, &d.Status, &logs, &d.RollbackExecutionID, &startedAt, &finishedAt, &duration)
	if err != nil {
		return nil, err
	}

	if logs.Valid {
		d.Logs = logs.String
	}
	if startedAt.Valid {
		d.StartedAt = &startedAt.Time
	}
	if finishedAt.Valid {
		d.FinishedAt = &finishedAt.Time
	}
	if duration.Valid {
		durationStr := duration.String
		d.Duration = &durationStr
	}

	return &d, nil
}
