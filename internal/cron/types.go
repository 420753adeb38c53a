// Package cron persists and fires scheduled agent jobs.
package cron

import "time"

// Schedule kinds.
const (
	KindAt    = "at"    // one-shot at an absolute instant
	KindEvery = "every" // fixed interval from "now" each fire
	KindCron  = "cron"  // 5-field cron expression
)

// Job execution statuses.
const (
	StatusOK      = "ok"
	StatusError   = "error"
	StatusSkipped = "skipped"
)

// Schedule is a tagged variant describing when a job fires.
type Schedule struct {
	Kind    string `json:"kind"`
	AtMs    int64  `json:"atMs,omitempty"`
	EveryMs int64  `json:"everyMs,omitempty"`
	Expr    string `json:"expr,omitempty"`
	TZ      string `json:"tz,omitempty"`
}

// Payload describes the agent turn a job triggers. When Deliver is true and
// the agent returns a non-empty response, the caller emits it on Channel/To.
type Payload struct {
	Kind    string `json:"kind"` // "agent_turn"
	Message string `json:"message"`
	Deliver bool   `json:"deliver"`
	Channel string `json:"channel,omitempty"`
	To      string `json:"to,omitempty"`
}

// JobState holds the mutable run bookkeeping of a job.
type JobState struct {
	NextRunAtMs *int64 `json:"nextRunAtMs,omitempty"`
	LastRunAtMs *int64 `json:"lastRunAtMs,omitempty"`
	LastStatus  string `json:"lastStatus,omitempty"` // ok | error | skipped
	LastError   string `json:"lastError,omitempty"`
}

// Job is one persistent scheduled task.
type Job struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Enabled        bool     `json:"enabled"`
	Schedule       Schedule `json:"schedule"`
	Payload        Payload  `json:"payload"`
	State          JobState `json:"state"`
	CreatedAtMs    int64    `json:"createdAtMs"`
	UpdatedAtMs    int64    `json:"updatedAtMs"`
	DeleteAfterRun bool     `json:"deleteAfterRun"`
}

// storeVersion is the on-disk schema version.
const storeVersion = 1

// storeFile is the persisted JSON document.
type storeFile struct {
	Version int    `json:"version"`
	Jobs    []*Job `json:"jobs"`
}

// Status is the service snapshot returned by Service.Status.
type Status struct {
	Jobs         int    `json:"jobs"`
	Enabled      int    `json:"enabled"`
	NextWakeAtMs *int64 `json:"nextWakeAtMs,omitempty"`
}

func nowMs() int64 {
	return time.Now().UnixMilli()
}
