package runner

import (
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"
)

// runShellCommand executes a shell command and captures its combined output.
// The context carries the job timeout; exceeding it kills the process.
func runShellCommand(ctx context.Context, command string, env map[string]string, streamToTerminal bool) (string, error) {
	cmd := exec.CommandContext(ctx, "bash", "-c", command)

	if len(env) > 0 {
		cmd.Env = os.Environ()
		for key, value := range env {
			cmd.Env = append(cmd.Env, key+"="+value)
		}
	}

	var stdout, stderr bytes.Buffer
	var stdoutWriters []io.Writer
	var stderrWriters []io.Writer

	// Always capture output
	stdoutWriters = append(stdoutWriters, &stdout)
	stderrWriters = append(stderrWriters, &stderr)

	// Optionally also stream to terminal
	if streamToTerminal {
		stdoutWriters = append(stdoutWriters, os.Stdout)
		stderrWriters = append(stderrWriters, os.Stderr)
	}

	cmd.Stdout = io.MultiWriter(stdoutWriters...)
	cmd.Stderr = io.MultiWriter(stderrWriters...)

	err := cmd.Run()

	// Combine stdout and stderr
	combinedOutput := stdout.String() + stderr.String()
	if len(combinedOutput) > 0 && combinedOutput[len(combinedOutput)-1] != '\n' {
		combinedOutput += "\n"
	}

	return combinedOutput, err
}
