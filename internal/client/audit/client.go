package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ortaieb/scavenger-hunt-game/pkg/logger"
)

// EventType is the closed set of audit event kinds the core emits.
type EventType string

const (
	EventChallengeCreated       EventType = "CHALLENGE_CREATED"
	EventChallengeStarted       EventType = "CHALLENGE_STARTED"
	EventParticipantInvited     EventType = "PARTICIPANT_INVITED"
	EventWaypointCheckedIn      EventType = "WAYPOINT_CHECKED_IN"
	EventWaypointProofSubmitted EventType = "WAYPOINT_PROOF_SUBMITTED"
	EventWaypointVerified       EventType = "WAYPOINT_VERIFIED"
)

// Event is one audit record. Zero-valued fields are omitted on the wire.
type Event struct {
	EventType        EventType              `json:"event_type"`
	OccurredAt       time.Time              `json:"occurred_at"`
	ChallengeID      uint64                 `json:"challenge_id,omitempty"`
	ParticipantID    string                 `json:"participant_id,omitempty"`
	UserID           uint64                 `json:"user_id,omitempty"`
	WaypointID       int32                  `json:"waypoint_id,omitempty"`
	WaypointSequence int32                  `json:"waypoint_sequence,omitempty"`
	Details          map[string]interface{} `json:"details,omitempty"`
}

// Recorder accepts audit records. Persistence lives behind the collaborator.
type Recorder interface {
	Record(ctx context.Context, event Event) error
}

// Client ships audit events to the audit collaborator over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

// Record posts one event to the audit collaborator.
func (c *Client) Record(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode audit event: %w", err)
	}

	url := fmt.Sprintf("%s/events", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build audit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send audit event: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("audit collaborator returned %s", resp.Status)
	}

	return nil
}

// Emitter wraps a Recorder with best-effort semantics: failures are logged
// and never propagated, so audit calls cannot block or fail the primary
// operation.
type Emitter struct {
	recorder Recorder
	log      *logger.Logger
}

func NewEmitter(recorder Recorder, log *logger.Logger) *Emitter {
	return &Emitter{recorder: recorder, log: log}
}

// Emit records the event, swallowing any failure. Safe on a nil receiver and
// with a nil recorder so audit stays optional in tests.
func (e *Emitter) Emit(ctx context.Context, event Event) {
	if e == nil || e.recorder == nil {
		return
	}

	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	if err := e.recorder.Record(ctx, event); err != nil && e.log != nil {
		e.log.WithField("event_type", string(event.EventType)).
			Warnf("Failed to record audit event: %v", err)
	}
}
