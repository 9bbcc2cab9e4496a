package service

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/ortaieb/scavenger-hunt-game/internal/client/audit"
	"github.com/ortaieb/scavenger-hunt-game/internal/client/evidence"
	"github.com/ortaieb/scavenger-hunt-game/internal/client/imagecheck"
	"github.com/ortaieb/scavenger-hunt-game/internal/models"
	"github.com/ortaieb/scavenger-hunt-game/internal/repository"
	"github.com/ortaieb/scavenger-hunt-game/pkg/logger"
	"github.com/ortaieb/scavenger-hunt-game/pkg/metrics"
)

// ProofVerifier runs one verification job against the analysis service.
type ProofVerifier interface {
	Verify(ctx context.Context, evidencePath, expectedSubject string, location *imagecheck.LocationConstraint, window *imagecheck.TimeConstraint) (*imagecheck.Result, error)
}

// CheckInResult reports a successful waypoint check-in.
type CheckInResult struct {
	ChallengeID    uint64               `json:"challenge_id"`
	ParticipantID  string               `json:"participant_id"`
	Timestamp      time.Time            `json:"timestamp"`
	WaypointID     int32                `json:"waypoint_id"`
	State          models.WaypointState `json:"state"`
	Proof          string               `json:"proof"`
	DistanceMeters float64              `json:"distance_meters"`
}

// ProofSubmission carries one evidence image for the current waypoint.
type ProofSubmission struct {
	Filename string
	Image    io.Reader
}

// ProofResult reports the verification verdict for a proof submission.
type ProofResult struct {
	ChallengeID   uint64                     `json:"challenge_id"`
	ParticipantID string                     `json:"participant_id"`
	Timestamp     time.Time                  `json:"timestamp"`
	WaypointID    int32                      `json:"waypoint_id"`
	State         models.WaypointState       `json:"state"`
	Accepted      bool                       `json:"accepted"`
	Reasons       []string                   `json:"reasons,omitempty"`
	NextWaypoint  *models.WaypointDefinition `json:"next_waypoint,omitempty"`
	HuntComplete  bool                       `json:"hunt_complete"`
}

// ParticipantService drives the per-participant waypoint progression state
// machine: Presented -> CheckedIn -> Verified, then on to the next waypoint.
// Domain-rule violations never partially mutate a participant row; every
// mutation is one atomic write.
type ParticipantService struct {
	participantRepo *repository.ParticipantRepository
	versionRepo     *repository.ChallengeVersionRepository
	locationService *LocationService
	verifier        ProofVerifier
	evidenceStore   evidence.Store
	validate        *validator.Validate
	auditor         *audit.Emitter
	metrics         *metrics.Metrics
	log             *logger.Logger
}

func NewParticipantService(
	participantRepo *repository.ParticipantRepository,
	versionRepo *repository.ChallengeVersionRepository,
	locationService *LocationService,
	verifier ProofVerifier,
	evidenceStore evidence.Store,
	auditor *audit.Emitter,
	m *metrics.Metrics,
	log *logger.Logger,
) *ParticipantService {
	return &ParticipantService{
		participantRepo: participantRepo,
		versionRepo:     versionRepo,
		locationService: locationService,
		verifier:        verifier,
		evidenceStore:   evidenceStore,
		validate:        validator.New(),
		auditor:         auditor,
		metrics:         m,
		log:             log,
	}
}

// Invite enrolls a user in a challenge. For a challenge that already started
// the participant is presented at the first waypoint immediately; otherwise
// the row stays detached until StartChallenge presents everyone.
func (s *ParticipantService) Invite(ctx context.Context, challengeID uint64, request *models.InviteParticipantRequest) (*models.Participant, error) {
	if err := s.validate.Struct(request); err != nil {
		return nil, &models.ValidationError{Reason: err.Error()}
	}

	current, err := s.versionRepo.FindCurrent(ctx, challengeID)
	if err != nil {
		return nil, err
	}

	exists, err := s.participantRepo.Exists(ctx, challengeID, request.UserID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, models.ErrAlreadyParticipant
	}

	now := time.Now().UTC()
	participant := &models.Participant{
		ParticipantID: uuid.New().String(),
		ChallengeID:   challengeID,
		UserID:        request.UserID,
		Nickname:      request.Nickname,
		CurrentState:  models.WaypointStatePresented,
		JoinedAt:      now,
		LastUpdated:   now,
	}

	if current.Payload.ActualStartTime != nil {
		if first := current.Payload.FirstWaypoint(); first != nil {
			waypointID := first.ID
			participant.CurrentWaypointID = &waypointID
		}
	}

	if err := s.participantRepo.Insert(ctx, participant); err != nil {
		return nil, err
	}

	s.auditor.Emit(ctx, audit.Event{
		EventType:     audit.EventParticipantInvited,
		ChallengeID:   challengeID,
		ParticipantID: participant.ParticipantID,
		UserID:        request.UserID,
	})

	return participant, nil
}

// Get retrieves a participant by ID.
func (s *ParticipantService) Get(ctx context.Context, participantID string) (*models.Participant, error) {
	return s.participantRepo.FindByID(ctx, participantID)
}

// CheckIn validates the reported location against the participant's current
// waypoint. Inside the radius the state moves to CheckedIn atomically;
// outside it the row is untouched and a TooFarError is returned.
func (s *ParticipantService) CheckIn(ctx context.Context, participantID string, challengeID uint64, waypointID int32, location models.GeoLocation) (*CheckInResult, error) {
	start := time.Now()

	participant, err := s.participantRepo.FindByID(ctx, participantID)
	if err != nil {
		return nil, err
	}

	if participant.ChallengeID != challengeID {
		return nil, models.ErrWrongChallenge
	}

	current, err := s.versionRepo.FindCurrent(ctx, participant.ChallengeID)
	if err != nil {
		return nil, err
	}

	if current.Payload.IsEnded(time.Now().UTC()) {
		return nil, models.ErrChallengeEnded
	}

	waypoint := current.Payload.WaypointByID(waypointID)
	if waypoint == nil {
		return nil, models.ErrWaypointNotFound
	}

	if participant.CurrentWaypointID == nil || *participant.CurrentWaypointID != waypointID {
		return nil, models.ErrNotCurrentWaypoint
	}

	validation, err := s.locationService.ValidateWaypointLocation(waypoint, location)
	if err != nil {
		return nil, err
	}

	s.auditor.Emit(ctx, audit.Event{
		EventType:        audit.EventWaypointCheckedIn,
		ChallengeID:      participant.ChallengeID,
		ParticipantID:    participant.ParticipantID,
		UserID:           participant.UserID,
		WaypointID:       waypoint.ID,
		WaypointSequence: waypoint.Sequence,
		Details: map[string]interface{}{
			"location_lat":         location.Lat,
			"location_lon":         location.Lon,
			"distance_from_target": validation.DistanceMeters,
			"within_radius":        validation.IsValid,
		},
	})

	if !validation.IsValid {
		if s.log != nil {
			s.log.WithWaypointID(waypointID).WithField("participant_id", participantID).
				Warn("Check-in rejected: too far from target")
		}
		s.metrics.ObserveOperation("check_in", "too_far", time.Since(start))
		return nil, &models.TooFarError{
			Distance:    validation.DistanceMeters,
			MaxDistance: validation.MaxDistanceMeters,
		}
	}

	now := time.Now().UTC()
	if err := s.participantRepo.UpdateProgress(ctx, participantID, &waypointID, models.WaypointStateCheckedIn, now); err != nil {
		s.metrics.ObserveOperation("check_in", "error", time.Since(start))
		return nil, err
	}

	s.metrics.ObserveOperation("check_in", "ok", time.Since(start))

	return &CheckInResult{
		ChallengeID:    participant.ChallengeID,
		ParticipantID:  participant.ParticipantID,
		Timestamp:      now,
		WaypointID:     waypointID,
		State:          models.WaypointStateCheckedIn,
		Proof:          waypoint.ExpectedSubject,
		DistanceMeters: validation.DistanceMeters,
	}, nil
}

// SubmitProof stores the evidence image, runs the verification job and, on
// acceptance, marks the waypoint Verified and advances the participant. A
// rejected verdict leaves the participant state unchanged.
func (s *ParticipantService) SubmitProof(ctx context.Context, participantID string, challengeID uint64, waypointID int32, submission *ProofSubmission) (*ProofResult, error) {
	start := time.Now()

	participant, err := s.participantRepo.FindByID(ctx, participantID)
	if err != nil {
		return nil, err
	}

	if participant.ChallengeID != challengeID {
		return nil, models.ErrWrongChallenge
	}

	current, err := s.versionRepo.FindCurrent(ctx, participant.ChallengeID)
	if err != nil {
		return nil, err
	}

	if current.Payload.IsEnded(time.Now().UTC()) {
		return nil, models.ErrChallengeEnded
	}

	waypoint := current.Payload.WaypointByID(waypointID)
	if waypoint == nil {
		return nil, models.ErrWaypointNotFound
	}

	if participant.CurrentWaypointID == nil || *participant.CurrentWaypointID != waypointID ||
		participant.CurrentState != models.WaypointStateCheckedIn {
		return nil, models.ErrNotCheckedIn
	}

	if err := evidence.ValidateFilename(submission.Filename); err != nil {
		return nil, &models.ValidationError{Reason: err.Error()}
	}

	now := time.Now().UTC()
	evidencePath := evidence.ProofPath(participant.ChallengeID, participant.ParticipantID, waypointID, now, submission.Filename)

	if err := s.evidenceStore.Save(evidencePath, submission.Image); err != nil {
		return nil, fmt.Errorf("failed to store evidence image: %w", err)
	}

	s.auditor.Emit(ctx, audit.Event{
		EventType:        audit.EventWaypointProofSubmitted,
		ChallengeID:      participant.ChallengeID,
		ParticipantID:    participant.ParticipantID,
		UserID:           participant.UserID,
		WaypointID:       waypoint.ID,
		WaypointSequence: waypoint.Sequence,
		Details: map[string]interface{}{
			"evidence_path": evidencePath,
		},
	})

	locationConstraint := &imagecheck.LocationConstraint{
		Lat:         waypoint.Location.Lat,
		Lon:         waypoint.Location.Lon,
		MaxDistance: waypoint.RadiusMeters,
	}

	var window *imagecheck.TimeConstraint
	if waypoint.TimeBudgetMinutes != nil && *waypoint.TimeBudgetMinutes > 0 {
		w := imagecheck.NewTimeConstraint(now, int64(*waypoint.TimeBudgetMinutes))
		window = &w
	}

	result, err := s.verifier.Verify(ctx, evidencePath, waypoint.ExpectedSubject, locationConstraint, window)
	if err != nil {
		s.emitVerificationOutcome(ctx, participant, waypoint, "failed", []string{err.Error()}, time.Since(start))
		s.metrics.ObserveOperation("submit_proof", "error", time.Since(start))
		return nil, err
	}

	if !result.Accepted() {
		s.emitVerificationOutcome(ctx, participant, waypoint, "rejected", result.Reasons, time.Since(start))
		s.metrics.ObserveOperation("submit_proof", "rejected", time.Since(start))
		return &ProofResult{
			ChallengeID:   participant.ChallengeID,
			ParticipantID: participant.ParticipantID,
			Timestamp:     time.Now().UTC(),
			WaypointID:    waypointID,
			State:         participant.CurrentState,
			Accepted:      false,
			Reasons:       result.Reasons,
		}, nil
	}

	verifiedAt := time.Now().UTC()
	if err := s.participantRepo.UpdateProgress(ctx, participantID, &waypointID, models.WaypointStateVerified, verifiedAt); err != nil {
		return nil, err
	}
	participant.CurrentState = models.WaypointStateVerified

	next, err := s.Advance(ctx, participant, &current.Payload)
	if err != nil {
		return nil, err
	}

	s.emitVerificationOutcome(ctx, participant, waypoint, "accepted", result.Reasons, time.Since(start))
	s.metrics.ObserveOperation("submit_proof", "ok", time.Since(start))

	return &ProofResult{
		ChallengeID:   participant.ChallengeID,
		ParticipantID: participant.ParticipantID,
		Timestamp:     verifiedAt,
		WaypointID:    waypointID,
		State:         models.WaypointStateVerified,
		Accepted:      true,
		NextWaypoint:  next,
		HuntComplete:  next == nil,
	}, nil
}

// Advance moves the participant to the waypoint with the next sequence
// number, resetting the state to Presented. Returning a nil waypoint means
// the hunt is complete; the participant row stays on the final waypoint.
func (s *ParticipantService) Advance(ctx context.Context, participant *models.Participant, payload *models.ChallengePayload) (*models.WaypointDefinition, error) {
	if participant.CurrentWaypointID == nil {
		return nil, nil
	}

	currentWaypoint := payload.WaypointByID(*participant.CurrentWaypointID)
	if currentWaypoint == nil {
		return nil, models.ErrWaypointNotFound
	}

	next := payload.WaypointBySequence(currentWaypoint.Sequence + 1)
	if next == nil {
		if s.log != nil {
			s.log.WithParticipantID(participant.ParticipantID).Info("Participant completed all waypoints")
		}
		return nil, nil
	}

	now := time.Now().UTC()
	nextID := next.ID
	if err := s.participantRepo.UpdateProgress(ctx, participant.ParticipantID, &nextID, models.WaypointStatePresented, now); err != nil {
		return nil, err
	}

	participant.CurrentWaypointID = &nextID
	participant.CurrentState = models.WaypointStatePresented
	participant.LastUpdated = now

	return next, nil
}

func (s *ParticipantService) emitVerificationOutcome(ctx context.Context, participant *models.Participant, waypoint *models.WaypointDefinition, outcome string, reasons []string, elapsed time.Duration) {
	details := map[string]interface{}{
		"verification_result":     outcome,
		"processing_time_seconds": elapsed.Seconds(),
	}
	if len(reasons) > 0 {
		details["verification_reasons"] = reasons
	}

	s.auditor.Emit(ctx, audit.Event{
		EventType:        audit.EventWaypointVerified,
		ChallengeID:      participant.ChallengeID,
		ParticipantID:    participant.ParticipantID,
		UserID:           participant.UserID,
		WaypointID:       waypoint.ID,
		WaypointSequence: waypoint.Sequence,
		Details:          details,
	})
}
