package models

import (
	"time"
)

// ChallengeType is the closed set of challenge categories.
type ChallengeType string

const (
	ChallengeTypeRecreational ChallengeType = "REC"
	ChallengeTypeCompetitive  ChallengeType = "COM"
	ChallengeTypeRestricted   ChallengeType = "RES"
)

// Valid reports whether the type is one of the known wire values.
func (t ChallengeType) Valid() bool {
	switch t {
	case ChallengeTypeRecreational, ChallengeTypeCompetitive, ChallengeTypeRestricted:
		return true
	}
	return false
}

// GeoLocation is a WGS84 coordinate pair. The external services use "long"
// for the longitude key, so the JSON tag follows that.
type GeoLocation struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"long"`
}

// WaypointDefinition is one ordered stop inside a challenge payload.
// Sequence numbers are 1-based and must form a contiguous run.
type WaypointDefinition struct {
	ID                int32       `json:"waypoint_id"`
	Sequence          int32       `json:"waypoint_sequence"`
	Location          GeoLocation `json:"location"`
	RadiusMeters      float64     `json:"radius_meters"`
	Clue              string      `json:"waypoint_clue"`
	Hints             []string    `json:"hints"`
	TimeBudgetMinutes *int32      `json:"waypoint_time_minutes,omitempty"`
	ExpectedSubject   string      `json:"image_subject"`
	CreatedAt         *time.Time  `json:"created_at,omitempty"`
}

// PayloadMetadata travels inside the payload JSON.
type PayloadMetadata struct {
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	VersionNotes *string   `json:"version_notes,omitempty"`
}

// ChallengePayload is the versioned body of a challenge definition. It is
// immutable once stored; edits produce a new version row.
type ChallengePayload struct {
	Description     *string              `json:"challenge_description,omitempty"`
	ModeratorID     uint64               `json:"challenge_moderator"`
	ActualStartTime *time.Time           `json:"actual_start_time,omitempty"`
	DurationMinutes int32                `json:"duration_minutes"`
	Type            ChallengeType        `json:"challenge_type"`
	Active          bool                 `json:"active"`
	Waypoints       []WaypointDefinition `json:"waypoints"`
	Metadata        PayloadMetadata      `json:"metadata"`
}

// WaypointByID returns the waypoint with the given id, or nil.
func (p *ChallengePayload) WaypointByID(waypointID int32) *WaypointDefinition {
	for i := range p.Waypoints {
		if p.Waypoints[i].ID == waypointID {
			return &p.Waypoints[i]
		}
	}
	return nil
}

// WaypointBySequence returns the waypoint with the given sequence number, or nil.
func (p *ChallengePayload) WaypointBySequence(sequence int32) *WaypointDefinition {
	for i := range p.Waypoints {
		if p.Waypoints[i].Sequence == sequence {
			return &p.Waypoints[i]
		}
	}
	return nil
}

// FirstWaypoint returns the waypoint with sequence 1, or nil for an empty payload.
func (p *ChallengePayload) FirstWaypoint() *WaypointDefinition {
	return p.WaypointBySequence(1)
}

// EndTime returns the wall-clock end of a started challenge, or nil when the
// challenge has not started yet.
func (p *ChallengePayload) EndTime() *time.Time {
	if p.ActualStartTime == nil {
		return nil
	}
	end := p.ActualStartTime.Add(time.Duration(p.DurationMinutes) * time.Minute)
	return &end
}

// IsEnded reports whether the challenge started and its duration has elapsed.
func (p *ChallengePayload) IsEnded(now time.Time) bool {
	end := p.EndTime()
	return end != nil && now.After(*end)
}

// ChallengeVersion is one immutable snapshot of a challenge definition, valid
// over the half-open interval [ValidityStart, ValidityEnd). The row with a
// null ValidityEnd is the current version; exactly one such row exists per
// challenge id.
type ChallengeVersion struct {
	VersionID        string
	ChallengeID      uint64
	Name             string
	PlannedStartTime time.Time
	Payload          ChallengePayload
	ValidityStart    time.Time
	ValidityEnd      *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// CreateWaypointRequest is the inbound shape for one waypoint of a new challenge.
type CreateWaypointRequest struct {
	Sequence          int32       `json:"waypoint_sequence" validate:"required,min=1"`
	Location          GeoLocation `json:"location"`
	RadiusMeters      float64     `json:"radius_meters" validate:"required,gt=0"`
	Clue              string      `json:"waypoint_clue" validate:"required"`
	Hints             []string    `json:"hints"`
	TimeBudgetMinutes *int32      `json:"waypoint_time_minutes,omitempty"`
	ExpectedSubject   string      `json:"image_subject" validate:"required"`
}

// CreateChallengeRequest is the inbound shape for a new challenge definition.
type CreateChallengeRequest struct {
	Name             string                  `json:"challenge_name" validate:"required"`
	Description      *string                 `json:"challenge_description,omitempty"`
	PlannedStartTime time.Time               `json:"planned_start_time" validate:"required"`
	DurationMinutes  int32                   `json:"duration_minutes" validate:"required,gt=0"`
	Type             ChallengeType           `json:"challenge_type" validate:"required"`
	Waypoints        []CreateWaypointRequest `json:"waypoints"`
}
