package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"cronward/internal/notify"
	"cronward/internal/scheduler"
)

var validate = validator.New()

// Validate applies struct-tag validation plus the checks tags can't
// express: cron expression validity, unique task names, endpoint shape.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}

	parser := scheduler.Parser()
	seen := make(map[string]struct{}, len(cfg.Tasks))
	for i, t := range cfg.Tasks {
		if _, dup := seen[t.Name]; dup {
			return fmt.Errorf("tasks[%d]: duplicate task name %q", i, t.Name)
		}
		seen[t.Name] = struct{}{}

		if _, err := parser.Parse(t.Cron); err != nil {
			return fmt.Errorf("tasks[%d] (%s): invalid cron expression %q: %w", i, t.Name, t.Cron, err)
		}
		if _, err := ParseDurationField(fmt.Sprintf("tasks[%d].command_timeout", i), t.CommandTimeout); err != nil {
			return err
		}
		for j, ep := range t.Endpoints {
			if err := notify.ValidateEndpoint(ep); err != nil {
				return fmt.Errorf("tasks[%d] (%s) endpoints[%d]: %w", i, t.Name, j, err)
			}
		}
	}

	for i, ep := range cfg.Notifications.Endpoints {
		if err := notify.ValidateEndpoint(ep); err != nil {
			return fmt.Errorf("notifications.endpoints[%d]: %w", i, err)
		}
	}

	if _, err := ParseDurationField("scheduler.shutdown_grace", cfg.Scheduler.ShutdownGrace); err != nil {
		return err
	}
	if cfg.History != nil {
		if _, err := ParseDurationField("history.busy_timeout", cfg.History.BusyTimeout); err != nil {
			return err
		}
	}
	return nil
}
