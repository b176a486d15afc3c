// Package progress defines the side-channel events emitted while a rank run
// executes, keeping the orchestration core free of presentation concerns.
package progress

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rankscope/rankscope/internal/serp"
)

// Stage denotes the milestone an Event represents.
type Stage string

// Supported progress stages.
const (
	StageRunStart  Stage = "RUN_START"
	StageUnitStart Stage = "UNIT_START"
	StageUnitDone  Stage = "UNIT_DONE"
	StageRunDone   Stage = "RUN_DONE"
	StageRunError  Stage = "RUN_ERROR"
)

// Outcome is the coarse classification of a terminal rank record.
type Outcome string

// Supported unit outcomes.
const (
	OutcomeRanked   Outcome = "ranked"
	OutcomeNotFound Outcome = "not_found"
	OutcomeError    Outcome = "error"
	OutcomeStopped  Outcome = "stopped"
)

// Event captures a single run milestone.
type Event struct {
	// RunID identifies the run in 16-byte UUID form.
	RunID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage is the lifecycle milestone.
	Stage Stage
	// Mode is "live" or "standard".
	Mode string
	// Keyword scopes unit events to one requested keyword.
	Keyword string
	// Outcome classifies UNIT_DONE events.
	Outcome Outcome
	// Total and Done carry run-level counters on run events.
	Total int
	Done  int
	// Dur captures unit or run latency.
	Dur time.Duration
	// Note attaches low-volume context (e.g. error text).
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
	case StageRunStart, StageRunDone, StageRunError:
	case StageUnitStart:
		if e.Keyword == "" {
			return errors.New("unit start requires keyword")
		}
	case StageUnitDone:
		if e.Keyword == "" {
			return errors.New("unit done requires keyword")
		}
		if e.Outcome == "" {
			return errors.New("unit done requires outcome")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
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

// ClassifyRecord maps a terminal RankRecord to its Outcome.
func ClassifyRecord(rec serp.RankRecord) Outcome {
	switch {
	case rec.Found:
		return OutcomeRanked
	case rec.Note == "No organic results found", strings.HasPrefix(rec.Note, "Not found in"):
		return OutcomeNotFound
	case strings.HasPrefix(rec.Note, "Stopped"):
		return OutcomeStopped
	default:
		return OutcomeError
	}
}
