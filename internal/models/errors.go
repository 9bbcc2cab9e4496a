package models

import (
	"errors"
	"fmt"
)

// Domain errors returned by the core services. The transport layer maps these
// to status codes; the core never does.
var (
	ErrChallengeNotFound   = errors.New("challenge not found")
	ErrVersionNotFound     = errors.New("challenge version not found")
	ErrWaypointNotFound    = errors.New("waypoint not found")
	ErrParticipantNotFound = errors.New("participant not found")

	ErrNotModerator            = errors.New("user not moderator of challenge")
	ErrChallengeAlreadyStarted = errors.New("challenge already started")
	ErrChallengeNotActive      = errors.New("challenge not active")
	ErrChallengeEnded          = errors.New("challenge has ended")
	ErrAlreadyParticipant      = errors.New("user already participant in challenge")
	ErrNotCurrentWaypoint      = errors.New("waypoint is not the participant's current waypoint")
	ErrNotCheckedIn            = errors.New("participant must check in before submitting proof")
	ErrWrongChallenge          = errors.New("waypoint does not belong to participant's challenge")

	ErrInvalidWaypointSequence = errors.New("invalid waypoint sequence")

	// ErrVersionConflict signals that a concurrent caller superseded the
	// current version first. The losing caller should re-read and retry.
	ErrVersionConflict = errors.New("challenge version superseded concurrently")
)

// ValidationError reports malformed input; it is never auto-retried.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("challenge validation failed: %s", e.Reason)
}

// InvalidCoordinatesError reports a coordinate outside the WGS84 ranges.
type InvalidCoordinatesError struct {
	Lat float64
	Lon float64
}

func (e *InvalidCoordinatesError) Error() string {
	return fmt.Sprintf("invalid coordinates: lat=%v, lon=%v", e.Lat, e.Lon)
}

// TooFarError reports a check-in attempt outside the waypoint radius. It is
// user-recoverable: retry from a closer location.
type TooFarError struct {
	Distance    float64
	MaxDistance float64
}

func (e *TooFarError) Error() string {
	return fmt.Sprintf("location outside allowed radius: distance=%.1fm, max=%.1fm", e.Distance, e.MaxDistance)
}
