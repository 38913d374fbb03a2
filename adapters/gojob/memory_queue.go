package gojob

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/google/uuid"
)

var ErrQueueClosed = errors.New("gojob: queue closed")

const defaultQueueCapacity = 1024

// MemoryQueue is an in-process queue with delayed requeue and a dead letter
// list. Pending messages are lost on exit; stored events left queued are
// picked up again by the webhook recoverer.
type MemoryQueue struct {
	items chan *memoryItem

	mu          sync.Mutex
	closed      bool
	pending     map[string]queue.EnqueueReceipt
	deadLetters []*job.ExecutionMessage
	timers      map[*time.Timer]struct{}
}

type memoryItem struct {
	msg     *job.ExecutionMessage
	attempt int
	receipt queue.EnqueueReceipt
}

func NewMemoryQueue(capacity int) *MemoryQueue {
	if capacity <= 0 {
		capacity = defaultQueueCapacity
	}
	return &MemoryQueue{
		items:   make(chan *memoryItem, capacity),
		pending: map[string]queue.EnqueueReceipt{},
		timers:  map[*time.Timer]struct{}{},
	}
}

// Enqueue adds a message. A message whose idempotency key is already waiting
// in the queue is dropped and the receipt of the waiting one is returned.
func (q *MemoryQueue) Enqueue(ctx context.Context, msg *job.ExecutionMessage) (queue.EnqueueReceipt, error) {
	if q == nil {
		return queue.EnqueueReceipt{}, fmt.Errorf("gojob: queue is not configured")
	}
	if msg == nil {
		return queue.EnqueueReceipt{}, fmt.Errorf("gojob: execution message is required")
	}
	msg = cloneMessage(msg)
	receipt := queue.EnqueueReceipt{DispatchID: uuid.NewString(), EnqueuedAt: time.Now().UTC()}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return queue.EnqueueReceipt{}, ErrQueueClosed
	}
	if key := msg.IdempotencyKey; key != "" {
		if waiting, exists := q.pending[key]; exists {
			q.mu.Unlock()
			return waiting, nil
		}
		q.pending[key] = receipt
	}
	q.mu.Unlock()

	if err := q.push(ctx, &memoryItem{msg: msg, attempt: 1, receipt: receipt}); err != nil {
		return queue.EnqueueReceipt{}, err
	}
	return receipt, nil
}

func (q *MemoryQueue) Dequeue(ctx context.Context) (queue.Delivery, error) {
	if q == nil {
		return nil, fmt.Errorf("gojob: queue is not configured")
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case item, ok := <-q.items:
		if !ok {
			return nil, ErrQueueClosed
		}
		q.mu.Lock()
		delete(q.pending, item.msg.IdempotencyKey)
		q.mu.Unlock()
		return &memoryDelivery{queue: q, item: item}, nil
	}
}

// Len reports the number of messages ready for delivery.
func (q *MemoryQueue) Len() int {
	if q == nil {
		return 0
	}
	return len(q.items)
}

func (q *MemoryQueue) DeadLetters() []*job.ExecutionMessage {
	if q == nil {
		return nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*job.ExecutionMessage, 0, len(q.deadLetters))
	for _, msg := range q.deadLetters {
		out = append(out, cloneMessage(msg))
	}
	return out
}

// Close stops delayed requeues and makes Dequeue return ErrQueueClosed once
// the buffered messages are drained.
func (q *MemoryQueue) Close() {
	if q == nil {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	for timer := range q.timers {
		timer.Stop()
	}
	q.timers = map[*time.Timer]struct{}{}
	close(q.items)
}

func (q *MemoryQueue) push(ctx context.Context, item *memoryItem) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.items <- item:
		return nil
	case <-ctx.Done():
		delete(q.pending, item.msg.IdempotencyKey)
		return ctx.Err()
	default:
		delete(q.pending, item.msg.IdempotencyKey)
		return fmt.Errorf("gojob: queue is full")
	}
}

func (q *MemoryQueue) requeue(item *memoryItem, delay time.Duration) error {
	next := &memoryItem{msg: item.msg, attempt: item.attempt + 1, receipt: item.receipt}
	if delay <= 0 {
		return q.push(context.Background(), next)
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		q.mu.Lock()
		delete(q.timers, timer)
		q.mu.Unlock()
		_ = q.push(context.Background(), next)
	})
	q.timers[timer] = struct{}{}
	return nil
}

func (q *MemoryQueue) deadLetter(msg *job.ExecutionMessage) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.deadLetters = append(q.deadLetters, msg)
}

type memoryDelivery struct {
	queue *MemoryQueue
	item  *memoryItem

	mu      sync.Mutex
	settled bool
}

func (d *memoryDelivery) Message() *job.ExecutionMessage {
	return d.item.msg
}

// Attempts is 1 for the first delivery of a message. The go-job worker
// passes it to its retry policy.
func (d *memoryDelivery) Attempts() int {
	return d.item.attempt
}

func (d *memoryDelivery) DispatchID() string {
	return d.item.receipt.DispatchID
}

func (d *memoryDelivery) Ack(context.Context) error {
	return d.settle()
}

// Nack requeues on NackDispositionRetry and keeps dead-lettered messages for
// inspection. Failed and canceled deliveries are dropped.
func (d *memoryDelivery) Nack(_ context.Context, opts queue.NackOptions) error {
	if err := queue.ValidateNackOptions(opts); err != nil {
		return fmt.Errorf("gojob: nack: %w", err)
	}
	if err := d.settle(); err != nil {
		return err
	}
	switch opts.Disposition {
	case queue.NackDispositionRetry:
		return d.queue.requeue(d.item, opts.Delay)
	case queue.NackDispositionDeadLetter:
		d.queue.deadLetter(d.item.msg)
		return nil
	default:
		return nil
	}
}

func (d *memoryDelivery) settle() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.settled {
		return fmt.Errorf("gojob: delivery already settled")
	}
	d.settled = true
	return nil
}

var (
	_ queue.Enqueuer = (*MemoryQueue)(nil)
	_ queue.Dequeuer = (*MemoryQueue)(nil)
	_ queue.Delivery = (*memoryDelivery)(nil)
)
