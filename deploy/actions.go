package deploy

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// The deploy actions are opaque collaborators: the orchestrator only
// decides which one to call for an environment and treats the mechanics
// of building images or applying manifests as someone else's problem.

// ContainerRuntime builds and runs container images
type ContainerRuntime interface {
	BuildImage(ctx context.Context, path, tag string, buildArgs map[string]string) error
	RunContainer(ctx context.Context, tag string, env map[string]string, ports []string) error
}

// ClusterManager applies rendered manifests to a cluster
type ClusterManager interface {
	ApplyManifest(ctx context.Context, manifest string) error
}

// ComposeRunner brings a compose project up
type ComposeRunner interface {
	Up(ctx context.Context, dir string, env map[string]string) error
}

// SSHExecutor ships artifacts to a remote host
type SSHExecutor interface {
	SyncArtifact(ctx context.Context, localPath, remote, keyPath string) error
}

// Actions bundles the deploy collaborators an orchestrator dispatches to
type Actions struct {
	Containers ContainerRuntime
	Cluster    ClusterManager
	Compose    ComposeRunner
	SSH        SSHExecutor
}

// DefaultActions shells out to the local docker, kubectl and rsync
// binaries.
func DefaultActions() Actions {
	return Actions{
		Containers: dockerRuntime{},
		Cluster:    kubectlManager{},
		Compose:    composeRunner{},
		SSH:        rsyncExecutor{},
	}
}

type dockerRuntime struct{}

func (dockerRuntime) BuildImage(ctx context.Context, path, tag string, buildArgs map[string]string) error {
	args := []string{"build", "-t", tag}
	for key, value := range buildArgs {
		args = append(args, "--build-arg", key+"="+value)
	}
	args = append(args, path)
	return runCommand(ctx, "docker", args...)
}

func (dockerRuntime) RunContainer(ctx context.Context, tag string, env map[string]string, ports []string) error {
	args := []string{"run", "-d"}
	for key, value := range env {
		args = append(args, "-e", key+"="+value)
	}
	for _, port := range ports {
		args = append(args, "-p", port)
	}
	args = append(args, tag)
	return runCommand(ctx, "docker", args...)
}

type kubectlManager struct{}

func (kubectlManager) ApplyManifest(ctx context.Context, manifest string) error {
	cmd := exec.CommandContext(ctx, "kubectl", "apply", "-f", "-")
	cmd.Stdin = strings.NewReader(manifest)
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("kubectl apply failed: %v: %s", err, output.String())
	}
	return nil
}

type composeRunner struct{}

func (composeRunner) Up(ctx context.Context, dir string, env map[string]string) error {
	cmd := exec.CommandContext(ctx, "docker", "compose", "up", "-d", "--build")
	cmd.Dir = dir
	if len(env) > 0 {
		cmd.Env = os.Environ()
		for key, value := range env {
			cmd.Env = append(cmd.Env, key+"="+value)
		}
	}
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("compose up failed: %v: %s", err, output.String())
	}
	return nil
}

type rsyncExecutor struct{}

func (rsyncExecutor) SyncArtifact(ctx context.Context, localPath, remote, keyPath string) error {
	args := []string{"-az", "--delete"}
	if keyPath != "" {
		args = append(args, "-e", "ssh -i "+keyPath)
	}
	args = append(args, localPath, remote)
	return runCommand(ctx, "rsync", args...)
}

// runShell executes a shell command line, used for hooks and
// command-backed rollback steps
func runShell(ctx context.Context, command string, env map[string]string) error {
	cmd := exec.CommandContext(ctx, "bash", "-c", command)
	if len(env) > 0 {
		cmd.Env = os.Environ()
		for key, value := range env {
			cmd.Env = append(cmd.Env, key+"="+value)
		}
	}
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("command %q failed: %v: %s", command, err, output.String())
	}
	return nil
}

func runCommand(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s %s failed: %v: %s", name, strings.Join(args, " "), err, output.String())
	}
	return nil
}
