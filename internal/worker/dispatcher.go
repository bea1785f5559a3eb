// Package worker performs the I/O behind the transfer queues and reports progress,
// success and failure back into them.
package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/openmined/docbox/internal/transfer"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultConcurrency = 4
	rescanInterval     = time.Second
)

// Handler runs one item. It claims the item itself and records the outcome in the queue.
type Handler func(ctx context.Context, id string)

// Dispatcher starts a Handler for every Pending item of a queue, at most Concurrency at
// a time.
type Dispatcher[P, R any] struct {
	queue       *transfer.Queue[P, R]
	handle      Handler
	concurrency int
}

func NewDispatcher[P, R any](queue *transfer.Queue[P, R], handle Handler, concurrency int) *Dispatcher[P, R] {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Dispatcher[P, R]{queue: queue, handle: handle, concurrency: concurrency}
}

// Run dispatches until ctx is done, or, with untilIdle, until the queue has no Pending or
// Active items left. It waits for running handlers before returning.
func (d *Dispatcher[P, R]) Run(ctx context.Context, untilIdle bool) error {
	events := d.queue.Subscribe()
	defer d.queue.Unsubscribe(events)

	ticker := time.NewTicker(rescanInterval)
	defer ticker.Stop()

	var g errgroup.Group
	g.SetLimit(d.concurrency)

	slog.Debug("dispatcher started", "queue", d.queue.Name(), "concurrency", d.concurrency)

loop:
	for {
		for _, id := range d.queue.Pending() {
			if !g.TryGo(func() error {
				d.handle(ctx, id)
				return nil
			}) {
				break
			}
		}

		if untilIdle && !d.queue.IsActive() {
			break
		}

		select {
		case <-ctx.Done():
			break loop
		case <-events:
		case <-ticker.C:
		}
	}

	err := g.Wait()
	slog.Debug("dispatcher stopped", "queue", d.queue.Name())
	if err == nil {
		err = ctx.Err()
	}
	return err
}

// begin claims id and binds a cancellable context to it. ok is false when another
// handler already owns the item.
func begin[P, R any](ctx context.Context, q *transfer.Queue[P, R], id string, phase transfer.Phase) (itemCtx context.Context, item transfer.Item[P, R], done func(), ok bool) {
	if !q.Claim(id, phase) {
		return nil, item, nil, false
	}

	itemCtx, cancel := context.WithCancel(ctx)
	if err := q.Bind(id, cancel); err != nil {
		cancel()
		return nil, item, nil, false
	}

	item, found := q.Get(id)
	if !found {
		cancel()
		return nil, item, nil, false
	}
	return itemCtx, item, cancel, true
}

// fail records err unless the item was cancelled or removed while running.
func fail[P, R any](parent, itemCtx context.Context, q *transfer.Queue[P, R], id string, err error) {
	if itemCtx.Err() != nil && parent.Err() == nil {
		slog.Debug("transfer stopped by user", "queue", q.Name(), "id", id)
		return
	}
	if ferr := q.Fail(id, err.Error()); ferr != nil {
		slog.Debug("transfer fail", "queue", q.Name(), "id", id, "error", ferr)
	}
}

func percent(done, total int64) int {
	if total <= 0 {
		return 0
	}
	return int(done * 100 / total)
}
