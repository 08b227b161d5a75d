// Package scheduler triggers task runs from cron expressions.
//
// Guarantees toward the execution engine:
//   - at most one concurrent invocation per task (overlapping firings of
//     the same task are skipped, which also coalesces any backlog into a
//     single catch-up run);
//   - different tasks may run concurrently, bounded by the worker pool;
//   - shutdown stops new invocations promptly and cancels the run
//     context handed to in-flight jobs.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"cronward/pkg/logx"
)

// Config controls the scheduler service.
type Config struct {
	Workers   int
	QueueSize int
	Timezone  string // IANA TZ, e.g. "Europe/Berlin"; empty means local
}

// Job is one task invocation. It must not return errors or panic
// upward; run outcomes travel through the engine's result path.
type Job func(ctx context.Context)

type runState struct {
	mu      sync.Mutex
	running bool
}

func (st *runState) tryAcquire() bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.running {
		return false
	}
	st.running = true
	return true
}

func (st *runState) release() {
	st.mu.Lock()
	st.running = false
	st.mu.Unlock()
}

type scheduleDef struct {
	name    string
	spec    string
	job     Job
	entryID cron.EntryID
	state   *runState
}

type queued struct {
	name  string
	job   Job
	state *runState
}

// Service owns the cron instance and the worker pool that executes
// triggered jobs.
type Service struct {
	mu sync.Mutex

	log logx.Logger
	cfg Config
	loc *time.Location

	parser cron.Parser
	c      *cron.Cron
	defs   []scheduleDef

	queue     chan queued
	stopCh    chan struct{}
	runCtx    context.Context
	runCancel context.CancelFunc
	workerWG  sync.WaitGroup
}

// Parser returns a cron parser accepting standard 5-field specs and
// descriptors (@hourly, @every 10m). Shared with config validation so a
// spec accepted at load time is accepted at registration time.
func Parser() cron.Parser {
	return cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
}

func New(cfg Config, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:    cfg,
		log:    log,
		parser: Parser(),
	}
}

// Register adds (or replaces, by name) a schedule. Safe to call before
// Start; pending definitions are attached when the service starts.
func (s *Service) Register(name, spec string, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if strings.TrimSpace(name) == "" {
		return errors.New("schedule name required")
	}
	// Upsert by name so hot reloads don't accumulate duplicates.
	s.removeLocked(name)
	d := scheduleDef{name: name, spec: spec, job: job, state: &runState{}}
	s.defs = append(s.defs, d)
	if s.c != nil {
		if err := s.attachLocked(&s.defs[len(s.defs)-1]); err != nil {
			return fmt.Errorf("register %q: %w", name, err)
		}
	}
	s.log.Debug("schedule registered", logx.String("task", name), logx.String("spec", spec))
	return nil
}

// Remove unschedules a task by name. Returns true if something was removed.
func (s *Service) Remove(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(name)
}

// Names returns the currently registered schedule names.
func (s *Service) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.defs))
	for _, d := range s.defs {
		out = append(out, d.name)
	}
	return out
}

func (s *Service) removeLocked(name string) bool {
	removed := false
	n := 0
	for _, d := range s.defs {
		if d.name == name {
			if s.c != nil && d.entryID != 0 {
				s.c.Remove(d.entryID)
			}
			removed = true
			continue
		}
		s.defs[n] = d
		n++
	}
	s.defs = s.defs[:n]
	return removed
}

func (s *Service) attachLocked(d *scheduleDef) error {
	def := d
	eid, err := s.c.AddFunc(def.spec, func() {
		// Single-flight per task: a firing that overlaps a still-running
		// invocation is skipped. Missed firings therefore collapse into
		// whatever run is current plus the next scheduled one.
		s.enqueue(queued{name: def.name, job: def.job, state: def.state})
	})
	if err != nil {
		return err
	}
	d.entryID = eid
	return nil
}

func (s *Service) enqueue(q queued) {
	s.mu.Lock()
	queue := s.queue
	s.mu.Unlock()
	if queue == nil {
		s.log.Debug("scheduler not running; dropping trigger", logx.String("task", q.name))
		return
	}
	if !q.state.tryAcquire() {
		s.log.Info("run skipped (previous invocation still running)", logx.String("task", q.name))
		return
	}
	select {
	case queue <- q:
	default:
		q.state.release()
		s.log.Warn("scheduler queue full; dropping trigger", logx.String("task", q.name), logx.Int("queue_cap", cap(queue)))
	}
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopCh != nil {
		return
	}

	workers := s.cfg.Workers
	if workers <= 0 {
		workers = 2
	}
	queueSize := s.cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 64
	}

	s.stopCh = make(chan struct{})
	s.runCtx, s.runCancel = context.WithCancel(ctx)
	// Fresh queue per run so a stop/start cycle never executes stale triggers.
	s.queue = make(chan queued, queueSize)

	loc := s.loadLocationLocked()
	s.loc = loc
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(loc))
	for i := range s.defs {
		if err := s.attachLocked(&s.defs[i]); err != nil {
			s.log.Error("schedule attach failed", logx.String("task", s.defs[i].name), logx.Err(err))
		}
	}

	runCtx := s.runCtx
	stopCh := s.stopCh
	queue := s.queue

	s.workerWG.Add(workers)
	for i := 0; i < workers; i++ {
		idx := i
		go func() {
			defer s.workerWG.Done()
			defer func() {
				if r := recover(); r != nil {
					s.log.Error("panic in scheduler worker", logx.Int("worker", idx), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
				}
			}()
			s.worker(runCtx, stopCh, queue)
		}()
	}
	s.c.Start()
	s.log.Info("scheduler started", logx.Int("workers", workers), logx.String("tz", loc.String()), logx.Int("schedules", len(s.defs)))
}

// Stop halts triggering, cancels in-flight run contexts and waits for
// workers until ctx expires. In-flight subprocesses receive the
// cancellation through the executor and are killed rather than awaited
// indefinitely.
func (s *Service) Stop(ctx context.Context) {
	start := time.Now()
	s.mu.Lock()
	if s.stopCh == nil {
		s.mu.Unlock()
		return
	}
	stopCh := s.stopCh
	cancel := s.runCancel
	c := s.c
	s.c = nil
	s.stopCh = nil
	s.queue = nil
	s.runCancel = nil
	s.runCtx = nil
	s.mu.Unlock()

	close(stopCh)
	if c != nil {
		<-c.Stop().Done()
	}
	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		s.workerWG.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.log.Info("scheduler stopped", logx.Duration("took", time.Since(start)))
	case <-ctx.Done():
		s.log.Warn("scheduler stop timed out; workers finishing in background")
	}
}

func (s *Service) worker(ctx context.Context, stopCh <-chan struct{}, queue <-chan queued) {
	for {
		// Fast-exit check so a closed stopCh wins over queued work.
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		default:
		}

		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case q := <-queue:
			func() {
				defer q.state.release()
				q.job(ctx)
			}()
		}
	}
}

func (s *Service) loadLocationLocked() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone; falling back to local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}
