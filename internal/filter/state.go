package filter

import (
	"time"

	"github.com/roach88/bullion/internal/ir"
)

// State is the lifecycle of the request in a slot.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateDelivered
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateDelivered:
		return "delivered"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether s ends a request.
func (s State) Terminal() bool {
	return s == StateFailed || s == StateCancelled
}

// Snapshot is one immutable publication of a request's results.
type Snapshot struct {
	// Seq counts publications of this request, starting at 1.
	Seq uint64

	// Items is sorted and must not be modified by receivers.
	Items []ir.Item

	// Err is set when the query failed; Items is then empty and the
	// request has ended.
	Err error

	At time.Time
}
