package chunk

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Entry is one pending chunk-load request.
type Entry struct {
	Index    int
	Priority Priority
	Queued   time.Time

	seq uint64
}

// LoadHandle identifies one in-flight load for tracking and log correlation.
type LoadHandle struct {
	ID      string
	Index   int
	Started time.Time
}

// NewLoadHandle mints a handle for a load that is about to start.
func NewLoadHandle(index int) *LoadHandle {
	return &LoadHandle{
		ID:      uuid.NewString(),
		Index:   index,
		Started: time.Now(),
	}
}

// Queue orders pending chunk loads by urgency. Each chunk index appears at
// most once: re-enqueueing moves the entry to its new priority instead of
// duplicating it. Within one priority the most recently requested entry
// drains first, so a rapid re-seek outranks stale requests of equal rank.
// In-flight loads are tracked separately from queued entries so a dequeued
// chunk still counts as requested until its load settles.
type Queue struct {
	mu      sync.Mutex
	entries []Entry
	active  map[int]*LoadHandle
	seq     uint64
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	return &Queue{active: make(map[int]*LoadHandle)}
}

// Enqueue adds or re-prioritizes a request for the given chunk index.
func (q *Queue) Enqueue(index int, p Priority) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i := range q.entries {
		if q.entries[i].Index == index {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			break
		}
	}

	q.seq++
	q.entries = append(q.entries, Entry{
		Index:    index,
		Priority: p,
		Queued:   time.Now(),
		seq:      q.seq,
	})

	sort.Slice(q.entries, func(i, j int) bool {
		if q.entries[i].Priority != q.entries[j].Priority {
			return q.entries[i].Priority < q.entries[j].Priority
		}
		return q.entries[i].seq > q.entries[j].seq
	})
}

// Dequeue removes and returns the most urgent entry.
func (q *Queue) Dequeue() (Entry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) == 0 {
		return Entry{}, false
	}
	head := q.entries[0]
	q.entries = q.entries[1:]
	return head, true
}

// ClearBelow drops every entry less urgent than the threshold. Entries at
// the threshold itself survive.
func (q *Queue) ClearBelow(threshold Priority) {
	q.mu.Lock()
	defer q.mu.Unlock()

	kept := q.entries[:0]
	for _, e := range q.entries {
		if e.Priority <= threshold {
			kept = append(kept, e)
		}
	}
	q.entries = kept
}

// Clear drops all queued entries. In-flight tracking is unaffected.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = nil
}

// Len returns the number of queued (not in-flight) entries.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// MarkActive records an in-flight load for the chunk index.
func (q *Queue) MarkActive(index int, h *LoadHandle) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.active[index] = h
}

// ClearActive removes in-flight tracking for the chunk index.
func (q *Queue) ClearActive(index int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.active, index)
}

// IsLoading reports whether a load for the chunk index is in flight.
func (q *Queue) IsLoading(index int) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.active[index]
	return ok
}

// IsQueued reports whether the chunk index is requested at all, either
// waiting in the queue or already in flight.
func (q *Queue) IsQueued(index int) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.active[index]; ok {
		return true
	}
	for _, e := range q.entries {
		if e.Index == index {
			return true
		}
	}
	return false
}

// ActiveCount returns the number of in-flight loads.
func (q *Queue) ActiveCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.active)
}
