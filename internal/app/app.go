// Package app wires config, scheduler, engine, notifications and history
// into one daemon with a Start/Stop lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"cronward/internal/config"
	"cronward/internal/engine"
	"cronward/internal/eventbus"
	"cronward/internal/history"
	"cronward/internal/notify"
	"cronward/internal/scheduler"
	"cronward/internal/task"
	"cronward/pkg/logx"
)

type App struct {
	cfgMgr *config.Manager
	logSvc *logx.Service
	log    logx.Logger

	bus      eventbus.Bus
	store    history.Store
	recorder *history.Recorder

	eng        *engine.Engine
	dispatcher *notify.Dispatcher
	sched      *scheduler.Service

	ratePerSec    int
	globalSink    notify.Sink
	shutdownGrace time.Duration

	watchCancel context.CancelFunc
	watchGroup  *errgroup.Group
}

func New(cfgPath string) (*App, error) {
	boot := logx.NewConsole("info")
	mgr := config.NewManager(cfgPath, boot)

	cfg, err := mgr.Load()
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.ConsoleEnabled(),
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})

	bus := eventbus.New()

	storeCfg := history.Config{}
	if cfg.History != nil {
		busy, err := config.ParseDurationField("history.busy_timeout", cfg.History.BusyTimeout)
		if err != nil {
			return nil, err
		}
		storeCfg = history.Config{
			Driver:      cfg.History.Driver,
			Path:        cfg.History.Path,
			BusyTimeout: busy,
			MaxRows:     cfg.History.MaxRows,
		}
	}
	store, err := history.Open(storeCfg, log.With(logx.String("component", "history")))
	if err != nil {
		return nil, fmt.Errorf("open history store: %w", err)
	}

	grace, err := config.ParseDurationOrDefault("scheduler.shutdown_grace", cfg.Scheduler.ShutdownGrace, config.DefaultShutdownGrace)
	if err != nil {
		return nil, err
	}

	executor := engine.NewExecutor(log.With(logx.String("component", "executor")))
	a := &App{
		cfgMgr:        mgr,
		logSvc:        logSvc,
		log:           log,
		bus:           bus,
		store:         store,
		recorder:      history.NewRecorder(store, bus, log.With(logx.String("component", "recorder"))),
		eng:           engine.New(executor, log.With(logx.String("component", "engine"))),
		dispatcher:    notify.NewDispatcher(log.With(logx.String("component", "dispatcher"))),
		shutdownGrace: grace,
		sched: scheduler.New(scheduler.Config{
			Workers:   cfg.Scheduler.Workers,
			QueueSize: cfg.Scheduler.QueueSize,
			Timezone:  cfg.Scheduler.Timezone,
		}, log.With(logx.String("component", "scheduler"))),
	}

	if err := a.applyConfig(cfg); err != nil {
		return nil, err
	}
	return a, nil
}

// applyConfig (re)builds notification sinks and the registered task set.
// Called at startup and on every accepted hot reload.
func (a *App) applyConfig(cfg *config.Config) error {
	tasks, err := config.BuildTasks(cfg)
	if err != nil {
		return err
	}

	a.ratePerSec = cfg.Notifications.RatePerSec
	a.globalSink = a.buildSink(cfg.Notifications.Endpoints)

	// Upsert every configured task, then drop schedules that vanished.
	current := make(map[string]struct{}, len(tasks))
	for _, t := range tasks {
		current[t.Name] = struct{}{}
		sink := a.globalSink
		if len(t.Endpoints) > 0 {
			sink = a.buildSink(t.Endpoints)
		}
		if err := a.sched.Register(t.Name, t.Schedule, a.jobFor(t, sink)); err != nil {
			return fmt.Errorf("schedule task %q: %w", t.Name, err)
		}
	}
	for _, name := range a.sched.Names() {
		if _, ok := current[name]; !ok {
			a.sched.Remove(name)
			a.log.Info("task unscheduled (removed from config)", logx.String("task", name))
		}
	}

	a.log.Info("configuration applied",
		logx.Int("tasks", len(tasks)),
		logx.Int("endpoints", len(cfg.Notifications.Endpoints)))
	return nil
}

// buildSink constructs a fanout over the endpoint set. Endpoint
// construction errors (e.g. telegram token rejected) degrade that
// endpoint set to whatever did construct; notification delivery is
// best-effort by contract, the daemon keeps running.
func (a *App) buildSink(endpoints []string) notify.Sink {
	log := a.log.With(logx.String("component", "notify"))
	sinks, err := notify.BuildSinks(endpoints, log)
	if err != nil {
		a.log.Error("notification endpoint setup failed", logx.Err(err))
	}
	return notify.NewFanout(sinks, a.ratePerSec, log)
}

// jobFor composes one invocation: run the engine, publish the outcome
// on the bus, then dispatch notifications.
func (a *App) jobFor(t task.Task, sink notify.Sink) scheduler.Job {
	return func(ctx context.Context) {
		started := time.Now()
		out := a.eng.Run(ctx, t)

		a.bus.Publish(eventbus.RunEvent{
			ID:        uuid.NewString(),
			Task:      t.Name,
			Started:   started,
			Duration:  out.Duration,
			Succeeded: out.Succeeded,
			Detail:    out.ErrorDetail,
		})

		a.dispatcher.Dispatch(ctx, out, t.NotifyOn, t.IncludeOutput, sink)
	}
}

func (a *App) Start(ctx context.Context) error {
	a.recorder.Start(ctx)
	a.sched.Start(ctx)

	watchCtx, cancel := context.WithCancel(ctx)
	a.watchCancel = cancel
	g, gctx := errgroup.WithContext(watchCtx)
	a.watchGroup = g

	g.Go(func() error {
		err := a.cfgMgr.Watch(gctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			a.log.Error("config watch stopped", logx.Err(err))
			return err
		}
		return nil
	})

	updates := a.cfgMgr.Subscribe(1)
	g.Go(func() error {
		defer a.cfgMgr.Unsubscribe(updates)
		for {
			select {
			case <-gctx.Done():
				return nil
			case cfg, ok := <-updates:
				if !ok {
					return nil
				}
				a.logSvc.Apply(logx.Config{
					Level:   cfg.Logging.Level,
					Console: cfg.Logging.ConsoleEnabled(),
					File: logx.FileConfig{
						Enabled: cfg.Logging.File.Enabled,
						Path:    cfg.Logging.File.Path,
					},
				})
				if err := a.applyConfig(cfg); err != nil {
					a.log.Error("config reload apply failed; previous task set stays active", logx.Err(err))
				}
			}
		}
	})

	a.log.Info("cronward started", logx.String("config", a.cfgMgr.Path()))
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	a.log.Info("shutting down")

	if a.watchCancel != nil {
		a.watchCancel()
	}
	if a.watchGroup != nil {
		_ = a.watchGroup.Wait()
	}

	stopCtx, cancel := context.WithTimeout(ctx, a.shutdownGrace)
	defer cancel()
	a.sched.Stop(stopCtx)

	a.recorder.Stop()
	if err := a.store.Close(); err != nil {
		a.log.Warn("history store close failed", logx.Err(err))
	}

	a.log.Info("shutdown complete")
	a.logSvc.Close()
	return nil
}
