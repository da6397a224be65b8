package orchestration

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/koscakluka/astrape-core/core/events"
)

const DefaultEventQueueCapacity = 10

var (
	ErrQueueClosed = errors.New("event queue closed")
	ErrQueueFull   = errors.New("event queue full")
)

type eventQueueItem struct {
	kind     events.Kind
	queuedAt time.Time
}

// EventQueue carries control events from any number of producers to the
// control loop. Only the detectable kinds can be queued.
type EventQueue struct {
	items     chan eventQueueItem
	closed    chan struct{}
	closeOnce sync.Once
}

func NewEventQueue(capacity int) *EventQueue {
	if capacity < 0 {
		capacity = 0
	}
	return &EventQueue{
		items:  make(chan eventQueueItem, capacity),
		closed: make(chan struct{}),
	}
}

// Push queues kind, blocking while the queue is full.
func (q *EventQueue) Push(ctx context.Context, kind events.Kind) error {
	if err := q.accepts(kind); err != nil {
		return err
	}

	select {
	case <-q.closed:
		return ErrQueueClosed
	case q.items <- eventQueueItem{kind: kind, queuedAt: time.Now()}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryPush queues kind only if there is room for it right now.
func (q *EventQueue) TryPush(kind events.Kind) error {
	if err := q.accepts(kind); err != nil {
		return err
	}

	select {
	case q.items <- eventQueueItem{kind: kind, queuedAt: time.Now()}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops the queue from accepting events. Events already queued are
// still delivered.
func (q *EventQueue) Close() {
	q.closeOnce.Do(func() { close(q.closed) })
}

func (q *EventQueue) Len() int { return len(q.items) }

func (q *EventQueue) accepts(kind events.Kind) error {
	if !kind.IsDetectable() {
		return fmt.Errorf("cannot queue %q events", kind)
	}
	select {
	case <-q.closed:
		return ErrQueueClosed
	default:
		return nil
	}
}
