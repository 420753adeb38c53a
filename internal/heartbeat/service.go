// Package heartbeat periodically prompts the agent to self-service the
// workspace HEARTBEAT.md task file.
package heartbeat

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// DefaultInterval between heartbeat turns.
const DefaultInterval = 30 * time.Minute

// OKToken is the sentinel the agent returns when no action was needed.
// Matched case-insensitively with underscores ignored.
const OKToken = "HEARTBEAT_OK"

// taskFile is the workspace file driving heartbeat turns.
const taskFile = "HEARTBEAT.md"

// prompt sent to the agent on each actionable tick.
const prompt = "Read " + taskFile + " in your workspace and follow any instructions it contains. " +
	"If there is nothing that needs doing right now, reply with exactly " + OKToken + " and nothing else."

// Handler runs one heartbeat agent turn and returns the agent's response.
type Handler func(prompt string) (string, error)

// Service fires periodic heartbeat turns. Independent of the cron service;
// they share no state.
type Service struct {
	workspace string
	interval  time.Duration
	enabled   bool
	onBeat    Handler

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	trigger chan struct{}
}

// NewService creates a heartbeat service over the given workspace.
// A non-positive interval falls back to the default.
func NewService(workspace string, interval time.Duration, enabled bool, onBeat Handler) *Service {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Service{
		workspace: workspace,
		interval:  interval,
		enabled:   enabled,
		onBeat:    onBeat,
		trigger:   make(chan struct{}, 1),
	}
}

// Start launches the tick loop. Disabled mode is a no-op.
func (s *Service) Start(ctx context.Context) {
	if !s.enabled {
		slog.Info("heartbeat disabled")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true
	go s.run(runCtx)

	slog.Info("heartbeat started", "interval", s.interval)
}

// Stop cancels the tick loop and waits for it to exit. Idempotent.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	<-done
	slog.Info("heartbeat stopped")
}

// TriggerNow fires a heartbeat immediately without waiting for the timer.
// Manual triggers run even when HEARTBEAT.md has no actionable tasks.
func (s *Service) TriggerNow() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.beat(false)
		case <-s.trigger:
			s.beat(true)
		}
	}
}

// beat runs one heartbeat turn. Timer beats are skipped when the task file
// holds nothing actionable; forced beats always run. Errors are logged and
// never stop the loop.
func (s *Service) beat(force bool) {
	if !force && !s.hasActionableTasks() {
		slog.Debug("heartbeat skipped, no actionable tasks")
		return
	}

	response, err := s.onBeat(prompt)
	if err != nil {
		slog.Error("heartbeat turn failed", "error", err)
		return
	}

	if IsOK(response) {
		slog.Info("heartbeat ok")
	} else {
		slog.Info("heartbeat completed", "response_chars", len(response))
	}
}

// hasActionableTasks reports whether HEARTBEAT.md contains anything beyond
// headings, HTML comments, blank lines, and bare checkbox items.
func (s *Service) hasActionableTasks() bool {
	data, err := os.ReadFile(filepath.Join(s.workspace, taskFile))
	if err != nil {
		return false
	}
	return HasActionableContent(string(data))
}

// HasActionableContent applies the emptiness rules to a task file body.
func HasActionableContent(body string) bool {
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" ||
			strings.HasPrefix(line, "#") ||
			strings.HasPrefix(line, "<!--") {
			continue
		}
		if strings.HasPrefix(line, "- [ ]") || strings.HasPrefix(line, "* [ ]") ||
			strings.HasPrefix(line, "- [x]") || strings.HasPrefix(line, "* [x]") {
			continue
		}
		return true
	}
	return false
}

// IsOK reports whether a response carries the HEARTBEAT_OK sentinel.
func IsOK(response string) bool {
	normalized := strings.ReplaceAll(strings.ToUpper(response), "_", "")
	token := strings.ReplaceAll(OKToken, "_", "")
	return strings.Contains(normalized, token)
}
