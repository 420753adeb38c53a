// Package agent defines the narrow contract the gateway consumes from the
// agent runtime, plus a subprocess-backed implementation so the gateway runs
// standalone against any external agent CLI.
package agent

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Runner executes one agent turn. The gateway never looks inside the agent.
type Runner interface {
	ProcessDirect(ctx context.Context, content, sessionKey, channel, chatID string) (string, error)
}

// DefaultTimeout bounds a single agent turn.
const DefaultTimeout = 5 * time.Minute

// CommandRunner shells out to a configured agent command. The prompt is
// written to stdin; the reply is read from stdout. The session key, channel,
// and chat id are exposed through the environment.
type CommandRunner struct {
	Command string
	Args    []string
	Timeout time.Duration
}

// NewCommandRunner creates a runner for the given command line.
func NewCommandRunner(command string, args []string, timeout time.Duration) (*CommandRunner, error) {
	if command == "" {
		return nil, fmt.Errorf("agent command is required")
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &CommandRunner{Command: command, Args: args, Timeout: timeout}, nil
}

// ProcessDirect runs one agent turn.
func (r *CommandRunner) ProcessDirect(ctx context.Context, content, sessionKey, channel, chatID string) (string, error) {
	runCtx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, r.Command, r.Args...)
	cmd.Stdin = strings.NewReader(content)
	cmd.Env = append(cmd.Environ(),
		"NANOBOT_SESSION_KEY="+sessionKey,
		"NANOBOT_CHANNEL="+channel,
		"NANOBOT_CHAT_ID="+chatID,
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("agent turn timed out after %s", r.Timeout)
		}
		detail := strings.TrimSpace(stderr.String())
		if detail != "" {
			return "", fmt.Errorf("agent command failed: %w: %s", err, detail)
		}
		return "", fmt.Errorf("agent command failed: %w", err)
	}

	return strings.TrimSpace(stdout.String()), nil
}

// RunnerFunc adapts a function to the Runner interface. Used by tests and
// by callers embedding an in-process agent.
type RunnerFunc func(ctx context.Context, content, sessionKey, channel, chatID string) (string, error)

func (f RunnerFunc) ProcessDirect(ctx context.Context, content, sessionKey, channel, chatID string) (string, error) {
	return f(ctx, content, sessionKey, channel, chatID)
}
