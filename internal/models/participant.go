package models

import "time"

// WaypointState is the per-waypoint progression state of a participant.
// The wire values match the persisted enum.
type WaypointState string

const (
	WaypointStatePresented WaypointState = "PRESENTED"
	WaypointStateCheckedIn WaypointState = "CHECKED_IN"
	WaypointStateVerified  WaypointState = "VERIFIED"
)

// Valid reports whether the state is one of the known values.
func (s WaypointState) Valid() bool {
	switch s {
	case WaypointStatePresented, WaypointStateCheckedIn, WaypointStateVerified:
		return true
	}
	return false
}

// Participant is a user's enrollment in one challenge. The state advances
// Presented -> CheckedIn -> Verified within one waypoint and resets to
// Presented when the participant moves to the next waypoint.
type Participant struct {
	ParticipantID     string
	ChallengeID       uint64
	UserID            uint64
	Nickname          *string
	CurrentWaypointID *int32
	CurrentState      WaypointState
	JoinedAt          time.Time
	LastUpdated       time.Time
}

// InviteParticipantRequest is the inbound shape for enrolling a user.
type InviteParticipantRequest struct {
	UserID   uint64  `json:"user_id" validate:"required"`
	Nickname *string `json:"participant_nickname,omitempty"`
}
