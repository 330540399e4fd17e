package events

import (
	"testing"
	"time"
)

func TestSubscribePublish(t *testing.T) {
	bus := NewBus()
	ch, unsub := bus.Subscribe(EventJobProgress, 4)
	defer unsub()

	bus.Publish(EventJobProgress, JobProgress{JobID: "j1", Completed: 1, Total: 2})

	select {
	case msg := <-ch:
		p, ok := msg.(JobProgress)
		if !ok || p.JobID != "j1" {
			t.Fatalf("unexpected payload %v", msg)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for published event")
	}
}

func TestPublishNeverBlocks(t *testing.T) {
	bus := NewBus()
	_, unsub := bus.Subscribe(EventJobProgress, 1)
	defer unsub()

	// Nobody drains the channel; extra publishes must be dropped, not
	// stall the caller.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			bus.Publish(EventJobProgress, JobProgress{Completed: i})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("publish blocked on a full subscriber")
	}
}

func TestTopicsAreIsolated(t *testing.T) {
	bus := NewBus()
	progress, unsub1 := bus.Subscribe(EventJobProgress, 1)
	defer unsub1()
	done, unsub2 := bus.Subscribe(EventJobCompleted, 1)
	defer unsub2()

	bus.Publish(EventJobCompleted, JobDone{JobID: "j1"})

	select {
	case msg := <-progress:
		t.Fatalf("progress subscriber received foreign event %v", msg)
	default:
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("completed subscriber missed its event")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus()
	ch, unsub := bus.Subscribe(EventJobFailed, 1)
	unsub()

	if _, open := <-ch; open {
		t.Fatalf("channel still open after unsubscribe")
	}

	// Publishing after unsubscribe must not panic or deliver.
	bus.Publish(EventJobFailed, JobDone{JobID: "gone"})
}
