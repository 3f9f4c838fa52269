package trigger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"drydock/pipeline"
)

const defaultBaseURL = "https://api.github.com"

// Target identifies a workflow on the remote CI platform
type Target struct {
	Owner      string `json:"owner"`
	Repo       string `json:"repo"`
	WorkflowID string `json:"workflow_id"` // file name or numeric id
}

// Result is the terminal outcome of one client operation. Expected
// failures (non-2xx responses, timeouts) are reported here, not raised.
type Result struct {
	Status     pipeline.Status `json:"status"`
	RunID      int64           `json:"run_id,omitempty"`
	URL        string          `json:"url,omitempty"`
	LastStatus pipeline.Status `json:"last_status,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// Client triggers and tracks remote CI runs over the workflow-dispatch
// REST API. All methods observe the caller's context at every request
// and at every poll sleep.
type Client struct {
	baseURL string
	token   string
	httpc   *http.Client
}

// NewClient creates a client for the given API base URL (empty =
// api.github.com) authenticating with the given token.
func NewClient(baseURL, token string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpc:   &http.Client{},
	}
}

// Trigger issues a single workflow-dispatch call. The remote answers 204
// on acceptance; the run itself starts asynchronously, so a successful
// trigger reports status pending.
func (c *Client) Trigger(ctx context.Context, target Target, ref string, inputs map[string]string, timeout time.Duration) Result {
	body := map[string]interface{}{"ref": ref}
	if len(inputs) > 0 {
		body["inputs"] = inputs
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return Result{Status: pipeline.StatusFailed, Error: err.Error()}
	}

	url := fmt.Sprintf("%s/repos/%s/%s/actions/workflows/%s/dispatches", c.baseURL, target.Owner, target.Repo, target.WorkflowID)
	resp, respBody, err := c.do(ctx, http.MethodPost, url, payload, timeout)
	if err != nil {
		return Result{Status: pipeline.StatusFailed, Error: requestError(ctx, err)}
	}

	if resp.StatusCode != http.StatusNoContent {
		return Result{
			Status: pipeline.StatusFailed,
			Error:  fmt.Sprintf("dispatch returned %d: %s", resp.StatusCode, string(respBody)),
		}
	}
	return Result{Status: pipeline.StatusPending}
}

// GetStatus fetches a run by id, or the latest run of the target workflow
// when runID is zero, and maps its remote status into ours.
func (c *Client) GetStatus(ctx context.Context, target Target, runID int64, timeout time.Duration) Result {
	var url string
	if runID > 0 {
		url = fmt.Sprintf("%s/repos/%s/%s/actions/runs/%d", c.baseURL, target.Owner, target.Repo, runID)
	} else {
		url = fmt.Sprintf("%s/repos/%s/%s/actions/workflows/%s/runs?per_page=1", c.baseURL, target.Owner, target.Repo, target.WorkflowID)
	}

	resp, respBody, err := c.do(ctx, http.MethodGet, url, nil, timeout)
	if err != nil {
		return Result{Status: pipeline.StatusFailed, Error: requestError(ctx, err)}
	}
	if resp.StatusCode != http.StatusOK {
		return Result{
			Status: pipeline.StatusFailed,
			Error:  fmt.Sprintf("status fetch returned %d: %s", resp.StatusCode, string(respBody)),
		}
	}

	var run workflowRun
	if runID > 0 {
		if err := json.Unmarshal(respBody, &run); err != nil {
			return Result{Status: pipeline.StatusFailed, Error: "invalid run payload: " + err.Error()}
		}
	} else {
		var list workflowRunList
		if err := json.Unmarshal(respBody, &list); err != nil {
			return Result{Status: pipeline.StatusFailed, Error: "invalid run list payload: " + err.Error()}
		}
		if len(list.WorkflowRuns) == 0 {
			return Result{Status: pipeline.StatusFailed, Error: "no runs found for workflow"}
		}
		run = list.WorkflowRuns[0]
	}

	return Result{
		Status: mapRunStatus(run.Status, run.Conclusion),
		RunID:  run.ID,
		URL:    run.HTMLURL,
	}
}

// WaitForCompletion polls the run status on a fixed interval until a
// terminal status is observed or the overall timeout elapses. Transient
// per-poll errors are logged and do not abort the wait; only the timeout
// expiry becomes a failure, carrying the last observed non-terminal
// status.
func (c *Client) WaitForCompletion(ctx context.Context, target Target, runID int64, pollInterval, timeout time.Duration) Result {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	lastStatus := pipeline.StatusPending
	for {
		result := c.GetStatus(waitCtx, target, runID, pollInterval)
		if result.Error != "" {
			log.Printf("⚠️  Poll for run %d failed: %s", runID, result.Error)
		} else {
			if result.Status.Terminal() {
				return result
			}
			lastStatus = result.Status
		}

		select {
		case <-time.After(pollInterval):
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return Result{
					Status:     pipeline.StatusCancelled,
					RunID:      runID,
					LastStatus: lastStatus,
					Error:      "wait cancelled",
				}
			}
			return Result{
				Status:     pipeline.StatusFailed,
				RunID:      runID,
				LastStatus: lastStatus,
				Error:      fmt.Sprintf("timed out after %s; last status: %s", timeout, lastStatus),
			}
		}
	}
}

// Cancel requests cancellation of a run. Success means the remote
// accepted the request (202), not that the run reached cancelled.
func (c *Client) Cancel(ctx context.Context, target Target, runID int64, timeout time.Duration) Result {
	url := fmt.Sprintf("%s/repos/%s/%s/actions/runs/%d/cancel", c.baseURL, target.Owner, target.Repo, runID)
	resp, respBody, err := c.do(ctx, http.MethodPost, url, nil, timeout)
	if err != nil {
		return Result{Status: pipeline.StatusFailed, Error: requestError(ctx, err)}
	}
	if resp.StatusCode != http.StatusAccepted {
		return Result{
			Status: pipeline.StatusFailed,
			Error:  fmt.Sprintf("cancel returned %d: %s", resp.StatusCode, string(respBody)),
		}
	}
	return Result{Status: pipeline.StatusCancelled, RunID: runID}
}

func (c *Client) do(ctx context.Context, method, url string, body []byte, timeout time.Duration) (*http.Response, []byte, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, err
	}
	return resp, respBody, nil
}

func requestError(ctx context.Context, err error) string {
	if ctx.Err() == context.DeadlineExceeded || errors.Is(err, context.DeadlineExceeded) {
		return "timed out"
	}
	return err.Error()
}
