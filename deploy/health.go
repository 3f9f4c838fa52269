package deploy

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"
)

const defaultProbeTimeout = 10 * time.Second

// HealthCheckError reports which probe failed the health assessment
type HealthCheckError struct {
	Check HealthCheck
	Err   error
}

func (e *HealthCheckError) Error() string {
	return fmt.Sprintf("health check %s %s failed: %v", e.Check.Type, e.Check.Endpoint, e.Err)
}

func (e *HealthCheckError) Unwrap() error {
	return e.Err
}

// Checker probes deployed services over HTTP and TCP
type Checker struct {
	httpc *http.Client
}

// NewChecker creates a health checker
func NewChecker() *Checker {
	return &Checker{httpc: &http.Client{}}
}

// Check runs every configured probe. A single failing probe fails the
// whole assessment.
func (c *Checker) Check(ctx context.Context, checks []HealthCheck) error {
	for _, check := range checks {
		timeout := check.Timeout.Std()
		if timeout <= 0 {
			timeout = defaultProbeTimeout
		}
		checkCtx, cancel := context.WithTimeout(ctx, timeout)
		err := c.probe(checkCtx, check)
		cancel()
		if err != nil {
			return &HealthCheckError{Check: check, Err: err}
		}
	}
	return nil
}

func (c *Checker) probe(ctx context.Context, check HealthCheck) error {
	switch check.Type {
	case "http":
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, check.Endpoint, nil)
		if err != nil {
			return err
		}
		resp, err := c.httpc.Do(req)
		if err != nil {
			return err
		}
		resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return fmt.Errorf("unexpected status %d", resp.StatusCode)
		}
		return nil
	case "tcp":
		var dialer net.Dialer
		conn, err := dialer.DialContext(ctx, "tcp", check.Endpoint)
		if err != nil {
			return err
		}
		conn.Close()
		return nil
	default:
		return fmt.Errorf("unknown health check type %q", check.Type)
	}
}
