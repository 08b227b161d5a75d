package eventbus

import (
	"testing"
	"time"
)

func TestPublishReachesAllSubscribers(t *testing.T) {
	t.Parallel()
	b := New()
	ch1, unsub1 := b.Subscribe(4)
	ch2, unsub2 := b.Subscribe(4)
	defer unsub1()
	defer unsub2()

	b.Publish(RunEvent{ID: "r1", Task: "backup", Succeeded: true})

	for _, ch := range []<-chan RunEvent{ch1, ch2} {
		select {
		case e := <-ch:
			if e.ID != "r1" || e.Task != "backup" {
				t.Fatalf("unexpected event %+v", e)
			}
		case <-time.After(time.Second):
			t.Fatal("subscriber never received the event")
		}
	}
}

func TestPublishDropsWhenSubscriberIsFull(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(1)
	defer unsub()

	b.Publish(RunEvent{ID: "kept"})
	// Buffer is full now; this one is dropped rather than blocking.
	b.Publish(RunEvent{ID: "dropped"})

	e := <-ch
	if e.ID != "kept" {
		t.Fatalf("got %q, want kept", e.ID)
	}
	select {
	case e := <-ch:
		t.Fatalf("unexpected second event %+v", e)
	default:
	}
}

func TestUnsubscribeClosesChannelOnce(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(1)
	unsub()
	unsub() // idempotent

	if _, ok := <-ch; ok {
		t.Fatal("channel must be closed after unsubscribe")
	}

	// Publishing after unsubscribe must not panic.
	b.Publish(RunEvent{ID: "late"})
}
