package cron

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/adhocore/gronx"
	"github.com/google/uuid"
)

// JobHandler runs one job's agent turn and returns the agent's response.
// When job.Payload.Deliver is set, the installed handler is responsible for
// emitting the non-empty response to (Payload.Channel, Payload.To).
type JobHandler func(job *Job) (string, error)

// Service owns the cron store and a single one-shot wake timer. On each
// expiry it runs all due jobs in submission order, recomputes their next
// fire, persists, and rearms.
type Service struct {
	store *Store
	onJob JobHandler

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	rearm   chan struct{}
}

// NewService creates a cron service persisting to storePath.
func NewService(storePath string, onJob JobHandler) *Service {
	return &Service{
		store: NewStore(storePath),
		onJob: onJob,
		rearm: make(chan struct{}, 1),
	}
}

// Start loads the store, reseeds next-run instants for enabled jobs, and
// launches the timer loop.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	if err := s.store.Load(); err != nil {
		slog.Warn("cron store load failed, starting empty", "error", err)
	}

	// Recompute schedules against the current clock; stale one-shots go terminal.
	now := nowMs()
	for _, job := range s.store.Jobs() {
		if job.Enabled {
			job.State.NextRunAtMs = s.nextRunAt(job.Schedule, now)
		}
	}
	if err := s.store.Save(); err != nil {
		slog.Warn("cron store save failed", "error", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true
	go s.run(runCtx)

	slog.Info("cron service started", "jobs", len(s.store.Jobs()))
	return nil
}

// Load reads the store without starting the timer loop. Used by CLI
// subcommands that manage jobs out of process.
func (s *Service) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Load()
}

// Stop cancels the timer loop and waits for it to exit.
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
	slog.Info("cron service stopped")
}

// run is the timer loop: sleep until the earliest enabled next-run, fire all
// due jobs, persist, repeat. Any mutation signals rearm so the wake instant
// is recomputed.
func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	for {
		var timerC <-chan time.Time
		var timer *time.Timer

		if wake := s.nextWakeAt(); wake != nil {
			d := time.Until(time.UnixMilli(*wake))
			if d < 0 {
				d = 0
			}
			timer = time.NewTimer(d)
			timerC = timer.C
		}

		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case <-s.rearm:
			if timer != nil {
				timer.Stop()
			}
		case <-timerC:
			s.fireDue()
		}
	}
}

// nextWakeAt returns the earliest next-run across enabled jobs, nil when idle.
func (s *Service) nextWakeAt() *int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	var wake *int64
	for _, job := range s.store.Jobs() {
		if !job.Enabled || job.State.NextRunAtMs == nil {
			continue
		}
		if wake == nil || *job.State.NextRunAtMs < *wake {
			v := *job.State.NextRunAtMs
			wake = &v
		}
	}
	return wake
}

// fireDue executes every enabled job whose next-run has arrived, in
// submission order, then persists once.
func (s *Service) fireDue() {
	s.mu.Lock()
	now := nowMs()
	var due []*Job
	for _, job := range s.store.Jobs() {
		if job.Enabled && job.State.NextRunAtMs != nil && *job.State.NextRunAtMs <= now {
			due = append(due, job)
		}
	}
	s.mu.Unlock()

	for _, job := range due {
		s.executeJob(job)
	}

	if len(due) > 0 {
		s.mu.Lock()
		if err := s.store.Save(); err != nil {
			slog.Error("cron store save failed", "error", err)
		}
		s.mu.Unlock()
	}
}

// executeJob runs one job through the installed handler and applies the
// post-fire fate. Failures are recorded, never retried.
func (s *Service) executeJob(job *Job) {
	start := nowMs()

	s.mu.Lock()
	job.State.LastRunAtMs = &start
	s.mu.Unlock()

	slog.Info("cron job firing", "id", job.ID, "name", job.Name)
	var runErr error
	if s.onJob != nil {
		_, runErr = s.onJob(job)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if runErr != nil {
		job.State.LastStatus = StatusError
		job.State.LastError = runErr.Error()
		slog.Error("cron job failed", "id", job.ID, "name", job.Name, "error", runErr)
	} else {
		job.State.LastStatus = StatusOK
		job.State.LastError = ""
	}

	end := nowMs()
	job.UpdatedAtMs = end

	// Post-fire fate.
	if job.Schedule.Kind == KindAt {
		if job.DeleteAfterRun {
			s.store.Remove(job.ID)
			return
		}
		job.Enabled = false
		job.State.NextRunAtMs = nil
		return
	}
	job.State.NextRunAtMs = s.nextRunAt(job.Schedule, end)
}

// nextRunAt computes the next fire instant for a schedule from the given
// reference, or nil when the schedule is terminal.
//
//   - at: atMs while still in the future, else terminal
//   - every: from + everyMs (missed intervals are skipped, never backfilled)
//   - cron: next expression tick strictly after from
func (s *Service) nextRunAt(sched Schedule, fromMs int64) *int64 {
	switch sched.Kind {
	case KindAt:
		if sched.AtMs > fromMs {
			v := sched.AtMs
			return &v
		}
		return nil
	case KindEvery:
		if sched.EveryMs <= 0 {
			return nil
		}
		v := fromMs + sched.EveryMs
		return &v
	case KindCron:
		ref := time.UnixMilli(fromMs)
		if sched.TZ != "" {
			if loc, err := time.LoadLocation(sched.TZ); err == nil {
				ref = ref.In(loc)
			} else {
				slog.Warn("cron job has unknown timezone", "tz", sched.TZ)
			}
		}
		next, err := gronx.NextTickAfter(sched.Expr, ref, false)
		if err != nil {
			slog.Warn("invalid cron expression", "expr", sched.Expr, "error", err)
			return nil
		}
		v := next.UnixMilli()
		return &v
	}
	return nil
}

// signalRearm wakes the timer loop so it recomputes the wake instant.
func (s *Service) signalRearm() {
	select {
	case s.rearm <- struct{}{}:
	default:
	}
}

// saveLocked persists the store; callers hold s.mu.
func (s *Service) saveLocked() {
	if err := s.store.Save(); err != nil {
		slog.Error("cron store save failed", "error", err)
	}
}

// AddJob validates and persists a new job, then rearms the timer.
func (s *Service) AddJob(name string, sched Schedule, message string, deliver bool, channel, to string, deleteAfterRun bool) (*Job, error) {
	switch sched.Kind {
	case KindAt:
		if sched.AtMs <= 0 {
			return nil, fmt.Errorf("at schedule requires atMs")
		}
	case KindEvery:
		if sched.EveryMs <= 0 {
			return nil, fmt.Errorf("every schedule requires a positive everyMs")
		}
	case KindCron:
		if !gronx.New().IsValid(sched.Expr) {
			return nil, fmt.Errorf("invalid cron expression %q", sched.Expr)
		}
	default:
		return nil, fmt.Errorf("unknown schedule kind %q", sched.Kind)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := nowMs()
	job := &Job{
		ID:       strings.ReplaceAll(uuid.NewString(), "-", "")[:8],
		Name:     name,
		Enabled:  true,
		Schedule: sched,
		Payload: Payload{
			Kind:    "agent_turn",
			Message: message,
			Deliver: deliver,
			Channel: channel,
			To:      to,
		},
		State:          JobState{NextRunAtMs: s.nextRunAt(sched, now)},
		CreatedAtMs:    now,
		UpdatedAtMs:    now,
		DeleteAfterRun: deleteAfterRun,
	}
	s.store.Add(job)
	s.saveLocked()
	s.signalRearm()
	return job, nil
}

// ListJobs returns jobs sorted by next fire, nulls last. Disabled jobs are
// included only when includeDisabled is set.
func (s *Service) ListJobs(includeDisabled bool) []*Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	var jobs []*Job
	for _, job := range s.store.Jobs() {
		if job.Enabled || includeDisabled {
			jobs = append(jobs, job)
		}
	}
	sort.SliceStable(jobs, func(i, j int) bool {
		a, b := jobs[i].State.NextRunAtMs, jobs[j].State.NextRunAtMs
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return *a < *b
		}
	})
	return jobs
}

// RemoveJob deletes a job. Returns false when the id is unknown.
func (s *Service) RemoveJob(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.store.Remove(id) {
		return false
	}
	s.saveLocked()
	s.signalRearm()
	return true
}

// EnableJob toggles a job; enabling reseeds the next run from now,
// disabling nulls it.
func (s *Service) EnableJob(id string, enabled bool) (*Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.store.Get(id)
	if !ok {
		return nil, false
	}
	job.Enabled = enabled
	if enabled {
		job.State.NextRunAtMs = s.nextRunAt(job.Schedule, nowMs())
	} else {
		job.State.NextRunAtMs = nil
	}
	job.UpdatedAtMs = nowMs()
	s.saveLocked()
	s.signalRearm()
	return job, true
}

// RunJob fires a job immediately, outside its schedule. Disabled jobs run
// only when force is set.
func (s *Service) RunJob(id string, force bool) bool {
	s.mu.Lock()
	job, ok := s.store.Get(id)
	if !ok || (!job.Enabled && !force) {
		s.mu.Unlock()
		return false
	}
	s.mu.Unlock()

	s.executeJob(job)

	s.mu.Lock()
	s.saveLocked()
	s.mu.Unlock()
	s.signalRearm()
	return true
}

// Status reports job counts and the next wake instant.
func (s *Service) Status() Status {
	wake := s.nextWakeAt()

	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{NextWakeAtMs: wake}
	for _, job := range s.store.Jobs() {
		st.Jobs++
		if job.Enabled {
			st.Enabled++
		}
	}
	return st
}
