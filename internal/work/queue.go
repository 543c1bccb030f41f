package work

import (
	"context"

	"github.com/google/uuid"
)

// Mode tags a work item with its conversational flow.
type Mode string

const (
	ModeTriage  Mode = "triage"
	ModeGeneral Mode = "general"
)

// Item is one unit of deferred inference work. For triage items,
// PromptContext carries the session snapshot rendered at enqueue time.
type Item struct {
	ID            string
	Sender        string
	Mode          Mode
	Text          string
	PromptContext string
}

// Queue is the bounded FIFO between the router and the inference workers.
// Enqueue never blocks: when the queue is full the router bounces the sender
// instead of stalling the radio loop.
type Queue struct {
	items chan Item
}

func NewQueue(depth int) *Queue {
	if depth <= 0 {
		depth = 15
	}
	return &Queue{items: make(chan Item, depth)}
}

// TryEnqueue places the item on the queue, reporting false at capacity.
func (q *Queue) TryEnqueue(item Item) bool {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	select {
	case q.items <- item:
		return true
	default:
		return false
	}
}

// Dequeue blocks until an item is available or ctx is cancelled.
func (q *Queue) Dequeue(ctx context.Context) (Item, bool) {
	select {
	case <-ctx.Done():
		return Item{}, false
	case item := <-q.items:
		return item, true
	}
}

// Depth reports the number of waiting items.
func (q *Queue) Depth() int {
	return len(q.items)
}
