// Package progress defines the event structures emitted while hunting a logo.
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
	StageDiscoveryStart    Stage = "discovery_start"
	StageHomepageFetched   Stage = "homepage_fetched"
	StageCandidatesFound   Stage = "candidates_found"
	StageCandidateScored   Stage = "candidate_scored"
	StageFetchStart        Stage = "fetch_start"
	StageFetchDone         Stage = "fetch_done"
	StageCandidateRejected Stage = "candidate_rejected"
	StageLogoSelected      Stage = "logo_selected"
	StageNoLogo            Stage = "no_logo"
)

// StatusClass is a coarse HTTP response grouping.
type StatusClass string

// Supported HTTP status classes tracked for fetch completions.
const (
	Status2xx   StatusClass = "2xx"
	Status3xx   StatusClass = "3xx"
	Status4xx   StatusClass = "4xx"
	Status5xx   StatusClass = "5xx"
	StatusOther StatusClass = "other"
)

var (
	errNoRunID     = errors.New("run id is required")
	errNoTimestamp = errors.New("timestamp is required")
	errNoDomain    = errors.New("domain is required")
)

// Event captures a single step of one domain run.
type Event struct {
	// RunID identifies one Discover/Validate/Hunt call in 16-byte UUID form.
	RunID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS     time.Time
	Stage  Stage
	Domain string
	// URL is the homepage or candidate the event is about.
	URL string
	// Rank is the 1-based position of a candidate in the ranked list.
	Rank int
	// Score is a declared score, or the validated score on logo_selected.
	Score int
	// Count carries the number of candidates for candidates_found.
	Count       int
	Bytes       int64
	StatusClass StatusClass
	// Dur is fetch latency, or total run time on logo_selected and no_logo.
	Dur time.Duration
	// Reason is the rejection or failure cause.
	Reason string
	// Rendered marks a homepage that came from the headless browser.
	Rendered bool
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == [16]byte{} {
		return errNoRunID
	}
	if e.TS.IsZero() {
		return errNoTimestamp
	}
	if e.Domain == "" {
		return errNoDomain
	}
	switch e.Stage {
	case StageDiscoveryStart, StageCandidatesFound, StageNoLogo:
	case StageHomepageFetched, StageCandidateScored, StageFetchStart, StageLogoSelected:
		if e.URL == "" {
			return fmt.Errorf("%s requires url", e.Stage)
		}
	case StageFetchDone:
		if e.URL == "" {
			return errors.New("fetch_done requires url")
		}
		if e.StatusClass == "" {
			return errors.New("fetch_done requires status class")
		}
	case StageCandidateRejected:
		if e.URL == "" || e.Reason == "" {
			return errors.New("candidate_rejected requires url and reason")
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

// ClassifyStatus groups HTTP status codes for fetch events.
func ClassifyStatus(code int) StatusClass {
	switch {
	case code >= 200 && code < 300:
		return Status2xx
	case code >= 300 && code < 400:
		return Status3xx
	case code >= 400 && code < 500:
		return Status4xx
	case code >= 500 && code < 600:
		return Status5xx
	default:
		return StatusOther
	}
}
