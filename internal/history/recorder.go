package history

import (
	"context"
	"sync"

	"cronward/internal/eventbus"
	"cronward/pkg/logx"
)

// Recorder subscribes to run events and persists them. It owns one
// background goroutine between Start and Stop.
type Recorder struct {
	store Store
	bus   eventbus.Bus
	log   logx.Logger

	mu    sync.Mutex
	unsub func()
	done  chan struct{}
}

func NewRecorder(store Store, bus eventbus.Bus, log logx.Logger) *Recorder {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Recorder{store: store, bus: bus, log: log}
}

func (r *Recorder) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done != nil {
		return
	}

	events, unsub := r.bus.Subscribe(64)
	r.unsub = unsub
	done := make(chan struct{})
	r.done = done

	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				rec := Record{
					ID:        ev.ID,
					Task:      ev.Task,
					Succeeded: ev.Succeeded,
					StartedAt: ev.Started,
					Duration:  ev.Duration,
					Detail:    ev.Detail,
				}
				if err := r.store.SaveRun(ctx, rec); err != nil {
					r.log.Warn("run record not saved", logx.String("task", ev.Task), logx.Err(err))
				}
			}
		}
	}()
}

// Stop unsubscribes and waits for the drain goroutine to exit.
func (r *Recorder) Stop() {
	r.mu.Lock()
	unsub := r.unsub
	done := r.done
	r.unsub = nil
	r.done = nil
	r.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	if done != nil {
		<-done
	}
}
