// Package chunk provides the load-scheduling primitives for chunked tracks:
// the priority queue of pending loads and the bounded cache of decoded
// chunks.
package chunk

// Priority ranks chunk-load urgency. Lower values drain first.
type Priority int

const (
	// PriorityCurrent marks the chunk the playhead is inside right now.
	PriorityCurrent Priority = iota
	// PriorityNext marks the chunk needed next for gapless continuity.
	PriorityNext
	// PrioritySeek marks the target of an in-progress seek.
	PrioritySeek
	// PriorityAdjacent marks neighbors of the playhead.
	PriorityAdjacent
	// PriorityBackground marks opportunistic preload work.
	PriorityBackground
)

func (p Priority) String() string {
	switch p {
	case PriorityCurrent:
		return "current"
	case PriorityNext:
		return "next"
	case PrioritySeek:
		return "seek"
	case PriorityAdjacent:
		return "adjacent"
	case PriorityBackground:
		return "background"
	default:
		return "unknown"
	}
}
