// Package ewf ties together the section, segment, chunktable, header,
// format, and codec packages into the two public entry points: Writer
// (streaming acquisition, C7) and Reader (random-access read path, C6).
package ewf

import "fmt"

// State is a position in the acquisition lifecycle (spec §2's C7):
// Configuring → Open → Writing → Finalizing → Closed.
type State int

const (
	StateConfiguring State = iota
	StateOpen
	StateWriting
	StateFinalizing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConfiguring:
		return "configuring"
	case StateOpen:
		return "open"
	case StateWriting:
		return "writing"
	case StateFinalizing:
		return "finalizing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Status reports how an acquisition concluded.
type Status int

const (
	StatusComplete Status = iota
	StatusPartial         // one or more sectors were absorbed into error2
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusComplete:
		return "complete"
	case StatusPartial:
		return "partial"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}
