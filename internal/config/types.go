// Package config loads, validates and watches the runner configuration.
//
// Files may be YAML or JSON; YAML is coerced to JSON so both formats go
// through the same strict decoder (unknown fields are rejected). All
// structural and cron-expression validation happens here; the execution
// engine only ever sees validated, immutable task descriptors.
package config

import "time"

type Config struct {
	Logging       LoggingConfig      `json:"logging,omitempty"`
	Scheduler     SchedulerConfig    `json:"scheduler,omitempty"`
	Notifications NotificationConfig `json:"notifications,omitempty"`
	History       *HistoryConfig     `json:"history,omitempty"`

	Tasks []TaskConfig `json:"tasks" validate:"required,min=1,dive"`
}

type LoggingConfig struct {
	Level   string      `json:"level,omitempty" validate:"omitempty,oneof=debug info warn error"`
	Console *bool       `json:"console,omitempty"`
	File    LoggingFile `json:"file,omitempty"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled,omitempty"`
	Path    string `json:"path,omitempty"`
}

// ConsoleEnabled defaults to true when the field is omitted.
func (l LoggingConfig) ConsoleEnabled() bool {
	return l.Console == nil || *l.Console
}

// SchedulerConfig tunes triggering. Durations are Go duration strings
// (e.g. "30s", "5m").
type SchedulerConfig struct {
	Timezone  string `json:"timezone,omitempty"`
	Workers   int    `json:"workers,omitempty" validate:"omitempty,gte=1"`
	QueueSize int    `json:"queue_size,omitempty" validate:"omitempty,gte=1"`

	// ShutdownGrace bounds how long shutdown waits for in-flight runs
	// before abandoning them. Default "15s".
	ShutdownGrace string `json:"shutdown_grace,omitempty"`
}

// NotificationConfig holds the global endpoint set and global defaults
// for the per-task notify_on / include_output overrides.
type NotificationConfig struct {
	Endpoints     []string `json:"endpoints,omitempty"`
	NotifyOn      string   `json:"notify_on,omitempty" validate:"omitempty,oneof=all failure never"`
	IncludeOutput string   `json:"include_output,omitempty" validate:"omitempty,oneof=all failure never"`
	RatePerSec    int      `json:"rate_per_sec,omitempty" validate:"omitempty,gte=1"`
}

type HistoryConfig struct {
	Driver      string `json:"driver,omitempty" validate:"omitempty,oneof=none sqlite"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
	MaxRows     int    `json:"max_rows,omitempty" validate:"omitempty,gte=1"`
}

type TaskConfig struct {
	Name  string       `json:"name" validate:"required"`
	Cron  string       `json:"cron" validate:"required"`
	Steps []StepConfig `json:"steps" validate:"required,min=1,dive"`

	OnFailure  string `json:"on_failure,omitempty" validate:"omitempty,oneof=stop continue retry"`
	RetryCount int    `json:"retry_count,omitempty" validate:"omitempty,gte=1"`

	// Empty means "fall back to the global default".
	NotifyOn      string `json:"notify_on,omitempty" validate:"omitempty,oneof=all failure never"`
	IncludeOutput string `json:"include_output,omitempty" validate:"omitempty,oneof=all failure never"`

	// Endpoints, when set, completely replaces the global endpoint set
	// for this task.
	Endpoints []string `json:"endpoints,omitempty"`

	// CommandTimeout bounds each step ("90m", "2h"). Default one hour.
	CommandTimeout string `json:"command_timeout,omitempty"`
}

type StepConfig struct {
	Command string `json:"command" validate:"required"`
}

// Defaults applied where the file is silent.
const (
	DefaultRetryCount    = 3
	DefaultShutdownGrace = 15 * time.Second
)
