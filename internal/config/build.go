package config

import (
	"fmt"

	"cronward/internal/task"
)

// BuildTasks resolves the validated config into immutable task
// descriptors: policy strings become tagged enums and absent per-task
// notification overrides fall back to the global defaults, so downstream
// code never re-resolves anything.
func BuildTasks(cfg *Config) ([]task.Task, error) {
	globalNotify, err := task.ParseNotifyPolicy(cfg.Notifications.NotifyOn)
	if err != nil {
		return nil, fmt.Errorf("notifications.notify_on: %w", err)
	}
	globalOutput, err := task.ParseOutputPolicy(cfg.Notifications.IncludeOutput)
	if err != nil {
		return nil, fmt.Errorf("notifications.include_output: %w", err)
	}

	out := make([]task.Task, 0, len(cfg.Tasks))
	for i, tc := range cfg.Tasks {
		onFailure, err := task.ParseFailurePolicy(tc.OnFailure)
		if err != nil {
			return nil, fmt.Errorf("tasks[%d] (%s): %w", i, tc.Name, err)
		}

		notifyOn := globalNotify
		if tc.NotifyOn != "" {
			if notifyOn, err = task.ParseNotifyPolicy(tc.NotifyOn); err != nil {
				return nil, fmt.Errorf("tasks[%d] (%s): %w", i, tc.Name, err)
			}
		}
		includeOutput := globalOutput
		if tc.IncludeOutput != "" {
			if includeOutput, err = task.ParseOutputPolicy(tc.IncludeOutput); err != nil {
				return nil, fmt.Errorf("tasks[%d] (%s): %w", i, tc.Name, err)
			}
		}

		retryCount := tc.RetryCount
		if retryCount <= 0 {
			retryCount = DefaultRetryCount
		}

		timeout, err := ParseDurationField(fmt.Sprintf("tasks[%d].command_timeout", i), tc.CommandTimeout)
		if err != nil {
			return nil, err
		}

		steps := make([]task.Step, 0, len(tc.Steps))
		for _, sc := range tc.Steps {
			steps = append(steps, task.Step{Command: sc.Command})
		}

		out = append(out, task.Task{
			Name:           tc.Name,
			Schedule:       tc.Cron,
			Steps:          steps,
			OnFailure:      onFailure,
			RetryCount:     retryCount,
			NotifyOn:       notifyOn,
			IncludeOutput:  includeOutput,
			Endpoints:      append([]string(nil), tc.Endpoints...),
			CommandTimeout: timeout,
		})
	}
	return out, nil
}
