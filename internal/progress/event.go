// Package progress defines the event structures emitted by the crawl orchestrator.
package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageRunStart    Stage = "RUN_START"
	StageRunDone     Stage = "RUN_DONE"
	StageTargetStart Stage = "TARGET_START"
	StageTargetDone  Stage = "TARGET_DONE"
	StageTargetError Stage = "TARGET_ERROR"
)

// Event captures a single component of crawl progress.
type Event struct {
	// RunID uniquely identifies a crawl run using the 16-byte UUID form.
	RunID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which run or target milestone occurred.
	Stage Stage
	// District scopes target events to a district label.
	District string
	// URL is the optional target URL.
	URL string
	// Index is the 1-based position of the target in the run.
	Index int
	// Total is the number of targets in the run.
	Total int
	// Bytes carries the rendered markup size for the target.
	Bytes int64
	// Records counts listings accumulated from the target (or the run).
	Records int64
	// Dropped counts containers that produced no record.
	Dropped int64
	// Dur captures execution latency for targets and runs.
	Dur time.Duration
	// Note lets emitters attach low-volume debug context (e.g. error text).
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == [16]byte{} {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone:
	case StageTargetStart, StageTargetDone, StageTargetError:
		if e.District == "" {
			return fmt.Errorf("%s requires district", e.Stage)
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	if e.Records < 0 || e.Dropped < 0 || e.Bytes < 0 {
		return errors.New("counters must be >= 0")
	}
	return nil
}

// RunUUID converts the binary run ID to uuid.UUID.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}

// ParseRunID parses a textual run ID into the Event form. Unparsable IDs map
// to the zero value, which Validate rejects.
func ParseRunID(runID string) [16]byte {
	id, err := uuid.Parse(runID)
	if err != nil {
		return [16]byte{}
	}
	return UUIDToBytes(id)
}
