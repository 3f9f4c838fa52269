package storage

import (
	"database/sql"
	"fmt"
)

// StageRunStats represents the latest runs of a pipeline grouped by stage
type StageRunStats struct {
	Stage     string  `json:"stage"`
	RunID     int     `json:"run_id"`
	Status    string  `json:"status"`
	Duration  *string `json:"duration,omitempty"`
	StartedAt string  `json:"started_at"`
	JobCount  int     `json:"job_count"`
}

// GetLatestRunsByStage returns the latest runs for each stage of a pipeline
func (s *Storage) GetLatestRunsByStage(pipelineName string, limit int) ([]StageRunStats, error) {
	// Simple query without window functions for better SQLite compatibility
	query := `
		SELECT
			je.stage,
			r.id,
			r.status,
			r.duration,
			r.started_at,
			COUNT(je.id) as job_count
		FROM runs r
		JOIN job_executions je ON r.id = je.run_id
		WHERE r.pipeline_name = ?
		GROUP BY je.stage, r.id, r.status, r.duration, r.started_at
		ORDER BY je.stage, r.started_at DESC
	`

	rows, err := s.db.Query(query, pipelineName)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest runs: %w", err)
	}
	defer rows.Close()

	// Group by stage and limit per stage
	stageCounts := make(map[string]int)
	stats := make([]StageRunStats, 0)

	for rows.Next() {
		var stat StageRunStats
		var duration sql.NullString

		err := rows.Scan(
			&stat.Stage,
			&stat.RunID,
			&stat.Status,
			&duration,
			&stat.StartedAt,
			&stat.JobCount,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run stats: %w", err)
		}

		if stageCounts[stat.Stage] >= limit {
			continue
		}
		stageCounts[stat.Stage]++

		if duration.Valid {
			durationStr := duration.String
			stat.Duration = &durationStr
		}

		stats = append(stats, stat)
	}

	return stats, rows.Err()
}
