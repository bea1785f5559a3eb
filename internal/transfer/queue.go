package transfer

import (
	"context"
	"log/slog"
	"math"
	"slices"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"
)

const eventBufferSize = 64

// activeStatuses keep a queue busy.
var activeStatuses = mapset.NewThreadUnsafeSet(Pending, Active)

// EventKind names the mutation that produced an Event.
type EventKind string

const (
	EventEnqueued  EventKind = "enqueued"
	EventClaimed   EventKind = "claimed"
	EventProgress  EventKind = "progress"
	EventPhase     EventKind = "phase"
	EventCompleted EventKind = "completed"
	EventFailed    EventKind = "failed"
	EventRetried   EventKind = "retried"
	EventCancelled EventKind = "cancelled"
	EventRemoved   EventKind = "removed"
)

// Event is broadcast after every mutation. Active and Progress are the queue aggregates
// computed from the state right after the mutation.
type Event[P, R any] struct {
	Queue    string
	Kind     EventKind
	Item     Item[P, R]
	Active   bool
	Progress int
}

type entry[P, R any] struct {
	item   Item[P, R]
	cancel context.CancelFunc
}

// Queue tracks transfer items of one kind. All methods are safe for concurrent use and
// mutations are applied in the order they acquire the lock.
type Queue[P, R any] struct {
	name  string
	phase Phase
	now   func() time.Time

	mu     sync.Mutex
	order  []string
	items  map[string]*entry[P, R]
	active bool

	subMu sync.RWMutex
	subs  []chan Event[P, R]
}

// NewQueue creates a queue. phase is used for items that become Active implicitly.
func NewQueue[P, R any](name string, phase Phase) *Queue[P, R] {
	return &Queue[P, R]{
		name:  name,
		phase: phase,
		now:   time.Now,
		items: make(map[string]*entry[P, R]),
	}
}

func (q *Queue[P, R]) Name() string { return q.name }

// Enqueue adds one Pending item per payload and returns their ids in order. Ids are
// random and never derived from payload content.
func (q *Queue[P, R]) Enqueue(payloads ...P) []string {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	ids := make([]string, 0, len(payloads))
	for _, p := range payloads {
		id := uuid.NewString()
		e := &entry[P, R]{item: Item[P, R]{
			ID:        id,
			Payload:   cloneValue(p),
			Status:    Pending,
			CreatedAt: now,
			UpdatedAt: now,
		}}
		q.items[id] = e
		q.order = append(q.order, id)
		ids = append(ids, id)
		q.changed(EventEnqueued, e)
	}

	slog.Debug("transfer enqueued", "queue", q.name, "count", len(ids))
	return ids
}

// Claim moves a Pending item to Active with the given phase. It returns false when the
// item is unknown or already claimed, so two workers never run the same item.
func (q *Queue[P, R]) Claim(id string, phase Phase) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.items[id]
	if !ok || e.item.Status != Pending {
		return false
	}
	e.item.Status = Active
	e.item.Phase = q.phaseOr(phase)
	q.changed(EventClaimed, e)
	return true
}

// Bind attaches the cancel func of the context driving an item. Cancel and Remove call it.
func (q *Queue[P, R]) Bind(id string, cancel context.CancelFunc) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.items[id]
	if !ok {
		return ErrItemNotFound
	}
	e.cancel = cancel
	return nil
}

// UpdateProgress records progress for a Pending or Active item; a Pending item becomes
// Active. percent is clamped to [0,100] and values lower than the current progress are
// ignored. mutate, when set, edits the payload under the queue lock.
func (q *Queue[P, R]) UpdateProgress(id string, percent int, mutate func(*P)) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.items[id]
	if !ok {
		return ErrItemNotFound
	}
	switch e.item.Status {
	case Pending:
		e.item.Status = Active
		e.item.Phase = q.phaseOr(e.item.Phase)
	case Active:
	default:
		return ErrInvalidTransition
	}

	percent = min(max(percent, 0), 100)
	if percent > e.item.Progress {
		e.item.Progress = percent
	}
	if mutate != nil {
		mutate(&e.item.Payload)
	}
	q.changed(EventProgress, e)
	return nil
}

// SetPhase switches the phase of an Active item, e.g. downloading to zipping.
func (q *Queue[P, R]) SetPhase(id string, phase Phase) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.items[id]
	if !ok {
		return ErrItemNotFound
	}
	if e.item.Status != Active {
		return ErrInvalidTransition
	}
	e.item.Phase = phase
	q.changed(EventPhase, e)
	return nil
}

// Complete marks the item Completed with progress 100 and stores result.
func (q *Queue[P, R]) Complete(id string, result R) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.items[id]
	if !ok {
		return ErrItemNotFound
	}
	if e.item.Status != Pending && e.item.Status != Active {
		return ErrInvalidTransition
	}
	e.item.Status = Completed
	e.item.Progress = 100
	e.item.Error = ""
	e.item.Result = cloneValue(result)
	e.cancel = nil
	q.changed(EventCompleted, e)
	return nil
}

// Fail marks the item Error with message.
func (q *Queue[P, R]) Fail(id string, message string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.items[id]
	if !ok {
		return ErrItemNotFound
	}
	if e.item.Status != Pending && e.item.Status != Active {
		return ErrInvalidTransition
	}
	e.item.Status = Error
	e.item.Error = message
	e.cancel = nil
	q.changed(EventFailed, e)

	slog.Debug("transfer failed", "queue", q.name, "id", id, "error", message)
	return nil
}

// Retry resets an Error item to Pending, keeping its id.
func (q *Queue[P, R]) Retry(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.items[id]
	if !ok {
		return ErrItemNotFound
	}
	if e.item.Status != Error {
		return ErrInvalidTransition
	}
	e.item.Status = Pending
	e.item.Phase = PhaseNone
	e.item.Progress = 0
	e.item.Error = ""
	q.changed(EventRetried, e)
	return nil
}

// Cancel stops a Pending or Active item and signals its worker.
func (q *Queue[P, R]) Cancel(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.items[id]
	if !ok {
		return ErrItemNotFound
	}
	if e.item.Status != Pending && e.item.Status != Active {
		return ErrInvalidTransition
	}
	e.item.Status = Cancelled
	e.release()
	q.changed(EventCancelled, e)
	return nil
}

// Remove deletes the item whatever its status. For an Active item this is a best effort
// cancel: the bound context is cancelled and the item stops being tracked.
func (q *Queue[P, R]) Remove(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.items[id]
	if !ok {
		return ErrItemNotFound
	}
	e.release()
	q.delete(id)
	q.changed(EventRemoved, e)
	return nil
}

// ClearCompleted removes every Completed item and returns how many were removed.
// Error items stay until they are retried or removed.
func (q *Queue[P, R]) ClearCompleted() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	removed := 0
	for _, id := range slices.Clone(q.order) {
		e := q.items[id]
		if e.item.Status != Completed {
			continue
		}
		q.delete(id)
		removed++
		q.changed(EventRemoved, e)
	}
	return removed
}

// IsActive reports whether any item is Pending or Active.
func (q *Queue[P, R]) IsActive() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.active
}

// Progress is the mean progress of Pending, Active and Completed items. Error and
// Cancelled items are left out. An empty queue reports 0.
func (q *Queue[P, R]) Progress() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.progress()
}

// Items returns snapshots in enqueue order.
func (q *Queue[P, R]) Items() []Item[P, R] {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Item[P, R], 0, len(q.order))
	for _, id := range q.order {
		out = append(out, q.items[id].item.clone())
	}
	return out
}

// Pending returns the ids of Pending items in enqueue order.
func (q *Queue[P, R]) Pending() []string {
	q.mu.Lock()
	defer q.mu.Unlock()

	var ids []string
	for _, id := range q.order {
		if q.items[id].item.Status == Pending {
			ids = append(ids, id)
		}
	}
	return ids
}

func (q *Queue[P, R]) Get(id string) (Item[P, R], bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.items[id]
	if !ok {
		return Item[P, R]{}, false
	}
	return e.item.clone(), true
}

func (q *Queue[P, R]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.order)
}

// Summary is the aggregate view of a queue.
type Summary struct {
	Name     string         `json:"name" yaml:"name"`
	Active   bool           `json:"active" yaml:"active"`
	Progress int            `json:"progress" yaml:"progress"`
	Counts   map[Status]int `json:"counts" yaml:"counts"`
}

func (q *Queue[P, R]) Summary() Summary {
	q.mu.Lock()
	defer q.mu.Unlock()

	counts := make(map[Status]int)
	for _, e := range q.items {
		counts[e.item.Status]++
	}
	return Summary{Name: q.name, Active: q.active, Progress: q.progress(), Counts: counts}
}

// Subscribe returns a channel receiving every event. Slow subscribers miss events
// instead of blocking the queue.
func (q *Queue[P, R]) Subscribe() <-chan Event[P, R] {
	q.subMu.Lock()
	defer q.subMu.Unlock()

	ch := make(chan Event[P, R], eventBufferSize)
	q.subs = append(q.subs, ch)
	return ch
}

func (q *Queue[P, R]) Unsubscribe(ch <-chan Event[P, R]) {
	q.subMu.Lock()
	defer q.subMu.Unlock()

	for i, sub := range q.subs {
		if sub == ch {
			close(sub)
			q.subs = slices.Delete(q.subs, i, i+1)
			return
		}
	}
}

func (q *Queue[P, R]) phaseOr(phase Phase) Phase {
	if phase != PhaseNone {
		return phase
	}
	return q.phase
}

func (q *Queue[P, R]) delete(id string) {
	delete(q.items, id)
	if i := slices.Index(q.order, id); i >= 0 {
		q.order = slices.Delete(q.order, i, i+1)
	}
}

// changed stamps e, recomputes the active flag from statuses and broadcasts. Callers
// hold q.mu.
func (q *Queue[P, R]) changed(kind EventKind, e *entry[P, R]) {
	e.item.UpdatedAt = q.now()

	q.active = false
	for _, other := range q.items {
		if activeStatuses.Contains(other.item.Status) {
			q.active = true
			break
		}
	}

	q.broadcast(Event[P, R]{
		Queue:    q.name,
		Kind:     kind,
		Item:     e.item.clone(),
		Active:   q.active,
		Progress: q.progress(),
	})
}

func (q *Queue[P, R]) progress() int {
	sum, n := 0, 0
	for _, e := range q.items {
		switch e.item.Status {
		case Pending, Active, Completed:
			sum += e.item.Progress
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return int(math.Round(float64(sum) / float64(n)))
}

func (q *Queue[P, R]) broadcast(ev Event[P, R]) {
	q.subMu.RLock()
	defer q.subMu.RUnlock()

	for _, sub := range q.subs {
		select {
		case sub <- ev:
		default:
		}
	}
}

func (e *entry[P, R]) release() {
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
}
