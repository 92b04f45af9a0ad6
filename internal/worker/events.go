// Package worker implements the Segment Worker (spec §4.2): one ranged
// HTTP GET per attempt, streamed into a part file and an incremental hash,
// with retry/backoff and cooperative cancellation. Workers communicate with
// the orchestrator purely by sending events over a channel the
// orchestrator creates and passes in -- no
// back-reference from worker to orchestrator, matching the message-passing
// topology the Design Notes call for.
package worker

import "github.com/kagedl/resumedl/internal/corerrors"

// EventKind discriminates the Event union.
type EventKind string

const (
	EventProgressTick      EventKind = "ProgressTick"
	EventSegmentCompleted  EventKind = "SegmentCompleted"
	EventSegmentFailed     EventKind = "SegmentFailed"
)

// Event is the single message type a worker emits on its outbound channel.
// Exactly one of the optional fields is meaningful, selected by Kind.
type Event struct {
	Kind        EventKind
	SegmentID   string
	Downloaded  int64 // cumulative bytes downloaded for this segment, set on every event
	DeltaBytes  int64 // bytes added since the previous ProgressTick
	SpeedSample float64
	Checksum    string
	Reason      corerrors.Code
	Err         error
}
