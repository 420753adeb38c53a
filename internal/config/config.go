// Package config loads and validates the gateway configuration.
package config

import (
	"encoding/json"
	"fmt"
)

// FlexibleStringSlice accepts both ["str"] and [123] in JSON.
type FlexibleStringSlice []string

func (f *FlexibleStringSlice) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}
	var raw []interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	result := make([]string, 0, len(raw))
	for _, v := range raw {
		switch val := v.(type) {
		case string:
			result = append(result, val)
		case float64:
			result = append(result, fmt.Sprintf("%.0f", val))
		default:
			result = append(result, fmt.Sprintf("%v", val))
		}
	}
	*f = result
	return nil
}

// Config is the root configuration for the nanobot gateway.
type Config struct {
	Workspace string          `json:"workspace"` // HEARTBEAT.md and agent files live here
	Channels  ChannelsConfig  `json:"channels"`
	Agent     AgentConfig     `json:"agent"`
	Cron      CronConfig      `json:"cron"`
	Heartbeat HeartbeatConfig `json:"heartbeat"`
	Bus       BusConfig       `json:"bus"`
}

// AgentConfig describes the external agent command the gateway drives.
// The command receives the prompt on stdin and replies on stdout.
type AgentConfig struct {
	Command        string   `json:"command"`
	Args           []string `json:"args,omitempty"`
	TimeoutSeconds int      `json:"timeout_seconds,omitempty"` // default 300
}

// CronConfig configures the scheduled-job service.
type CronConfig struct {
	StorePath string `json:"store_path,omitempty"` // default ~/.nanobot/cron/jobs.json
}

// HeartbeatConfig configures the periodic self-check service.
type HeartbeatConfig struct {
	Enabled         bool `json:"enabled"`
	IntervalMinutes int  `json:"interval_minutes,omitempty"` // default 30
}

// BusConfig sizes the message bus queues.
type BusConfig struct {
	QueueSize int `json:"queue_size,omitempty"` // default 256
}
