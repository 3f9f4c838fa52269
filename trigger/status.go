package trigger

import "drydock/pipeline"

// workflowRun is the subset of the remote run payload we consume
type workflowRun struct {
	ID         int64  `json:"id"`
	Status     string `json:"status"`
	Conclusion string `json:"conclusion"`
	HTMLURL    string `json:"html_url"`
	CreatedAt  string `json:"created_at"`
	UpdatedAt  string `json:"updated_at"`
}

type workflowRunList struct {
	WorkflowRuns []workflowRun `json:"workflow_runs"`
}

// mapRunStatus translates the remote status vocabulary into ours.
// Unknown combinations map to failed rather than a made-up state.
func mapRunStatus(status, conclusion string) pipeline.Status {
	switch status {
	case "completed":
		switch conclusion {
		case "success":
			return pipeline.StatusSucceeded
		case "cancelled":
			return pipeline.StatusCancelled
		default:
			return pipeline.StatusFailed
		}
	case "in_progress":
		return pipeline.StatusRunning
	case "queued":
		return pipeline.StatusPending
	default:
		return pipeline.StatusFailed
	}
}
