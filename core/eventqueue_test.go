package orchestration

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/koscakluka/astrape-core/core/events"
)

func TestEventQueueMultipleProducers(t *testing.T) {
	q := NewEventQueue(4)
	kinds := []events.Kind{events.KindWake, events.KindSleep, events.KindEmergency, events.KindShutdown}

	var wg sync.WaitGroup
	for _, kind := range kinds {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := q.Push(context.Background(), kind); err != nil {
				t.Errorf("unexpected push error: %v", err)
			}
		}()
	}
	wg.Wait()

	seen := map[events.Kind]bool{}
	for range kinds {
		select {
		case item := <-q.items:
			seen[item.kind] = true
		case <-time.After(time.Second):
			t.Fatalf("timed out reading queue")
		}
	}
	if len(seen) != len(kinds) {
		t.Fatalf("expected every kind to be delivered, got %v", seen)
	}
}

func TestEventQueueRejectsUndetectableKinds(t *testing.T) {
	q := NewEventQueue(1)
	if err := q.TryPush(events.KindContinue); err == nil {
		t.Fatalf("expected continue to be rejected")
	}
	if err := q.Push(context.Background(), events.KindError); err == nil {
		t.Fatalf("expected error events to be rejected")
	}
}

func TestEventQueueTryPushWhenFull(t *testing.T) {
	q := NewEventQueue(1)
	if err := q.TryPush(events.KindWake); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := q.TryPush(events.KindSleep); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected full queue, got %v", err)
	}
	if q.Len() != 1 {
		t.Fatalf("expected one queued event, got %d", q.Len())
	}
}

func TestEventQueuePushHonoursContext(t *testing.T) {
	q := NewEventQueue(0)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := q.Push(ctx, events.KindWake); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestEventQueueClosed(t *testing.T) {
	q := NewEventQueue(2)
	if err := q.TryPush(events.KindWake); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	q.Close()
	q.Close()

	if err := q.Push(context.Background(), events.KindSleep); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("expected closed queue, got %v", err)
	}
	if err := q.TryPush(events.KindSleep); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("expected closed queue, got %v", err)
	}

	select {
	case item := <-q.items:
		if item.kind != events.KindWake {
			t.Fatalf("expected queued wake to survive close, got %s", item.kind)
		}
	default:
		t.Fatalf("expected queued event to still be delivered")
	}
}
