package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/ortaieb/scavenger-hunt-game/internal/client/audit"
	"github.com/ortaieb/scavenger-hunt-game/internal/models"
	"github.com/ortaieb/scavenger-hunt-game/internal/repository"
	"github.com/ortaieb/scavenger-hunt-game/pkg/logger"
	"github.com/ortaieb/scavenger-hunt-game/pkg/metrics"
)

// ChallengeService is the temporal store for challenge definitions. Every
// edit produces a new immutable version; the row with a null validity_end is
// the current one.
type ChallengeService struct {
	versionRepo     *repository.ChallengeVersionRepository
	participantRepo *repository.ParticipantRepository
	idAllocator     repository.ChallengeIDAllocator
	validate        *validator.Validate
	auditor         *audit.Emitter
	metrics         *metrics.Metrics
	log             *logger.Logger
}

func NewChallengeService(
	versionRepo *repository.ChallengeVersionRepository,
	participantRepo *repository.ParticipantRepository,
	idAllocator repository.ChallengeIDAllocator,
	auditor *audit.Emitter,
	m *metrics.Metrics,
	log *logger.Logger,
) *ChallengeService {
	return &ChallengeService{
		versionRepo:     versionRepo,
		participantRepo: participantRepo,
		idAllocator:     idAllocator,
		validate:        validator.New(),
		auditor:         auditor,
		metrics:         m,
		log:             log,
	}
}

// StartChallengeResult reports the outcome of starting a challenge.
type StartChallengeResult struct {
	Challenge    *models.ChallengeVersion
	Participants []*models.Participant
}

// Create validates the request, allocates a challenge ID and stores the first
// version with validity_start = now and no validity_end.
func (s *ChallengeService) Create(ctx context.Context, moderatorID uint64, request *models.CreateChallengeRequest) (*models.ChallengeVersion, error) {
	start := time.Now()

	if err := s.validate.Struct(request); err != nil {
		return nil, &models.ValidationError{Reason: err.Error()}
	}
	if !request.Type.Valid() {
		return nil, &models.ValidationError{Reason: fmt.Sprintf("unknown challenge type: %s", request.Type)}
	}

	sequences := make([]int32, 0, len(request.Waypoints))
	for _, waypoint := range request.Waypoints {
		sequences = append(sequences, waypoint.Sequence)
	}
	if err := validateWaypointSequences(sequences); err != nil {
		return nil, err
	}

	challengeID, err := s.idAllocator.Next(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate challenge id: %w", err)
	}

	now := time.Now().UTC()

	waypoints := make([]models.WaypointDefinition, 0, len(request.Waypoints))
	for _, waypointReq := range request.Waypoints {
		createdAt := now
		waypoints = append(waypoints, models.WaypointDefinition{
			// Waypoint IDs are sequence-stable small integers; waypoints
			// live inside the version payload, not in their own table.
			ID:                waypointReq.Sequence,
			Sequence:          waypointReq.Sequence,
			Location:          waypointReq.Location,
			RadiusMeters:      waypointReq.RadiusMeters,
			Clue:              waypointReq.Clue,
			Hints:             waypointReq.Hints,
			TimeBudgetMinutes: waypointReq.TimeBudgetMinutes,
			ExpectedSubject:   waypointReq.ExpectedSubject,
			CreatedAt:         &createdAt,
		})
	}

	version := &models.ChallengeVersion{
		VersionID:        uuid.New().String(),
		ChallengeID:      challengeID,
		Name:             request.Name,
		PlannedStartTime: request.PlannedStartTime,
		Payload: models.ChallengePayload{
			Description:     request.Description,
			ModeratorID:     moderatorID,
			ActualStartTime: nil,
			DurationMinutes: request.DurationMinutes,
			Type:            request.Type,
			Active:          true,
			Waypoints:       waypoints,
			Metadata: models.PayloadMetadata{
				CreatedAt: now,
				UpdatedAt: now,
			},
		},
		ValidityStart: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.versionRepo.Insert(ctx, version); err != nil {
		s.metrics.ObserveOperation("create_challenge", "error", time.Since(start))
		return nil, err
	}

	s.auditor.Emit(ctx, audit.Event{
		EventType:   audit.EventChallengeCreated,
		ChallengeID: challengeID,
		UserID:      moderatorID,
		Details: map[string]interface{}{
			"challenge_name": request.Name,
			"waypoint_count": len(waypoints),
		},
	})
	s.metrics.ObserveOperation("create_challenge", "ok", time.Since(start))

	return version, nil
}

// GetCurrent returns the current version of a challenge.
func (s *ChallengeService) GetCurrent(ctx context.Context, challengeID uint64) (*models.ChallengeVersion, error) {
	return s.versionRepo.FindCurrent(ctx, challengeID)
}

// GetVersion returns one historical version.
func (s *ChallengeService) GetVersion(ctx context.Context, versionID string) (*models.ChallengeVersion, error) {
	return s.versionRepo.FindByVersionID(ctx, versionID)
}

// History returns the full version chain of a challenge, oldest first.
func (s *ChallengeService) History(ctx context.Context, challengeID uint64) ([]*models.ChallengeVersion, error) {
	return s.versionRepo.ListVersions(ctx, challengeID)
}

// CreateNewVersion supersedes the current version with an updated payload.
// The close-then-insert runs in one transaction; a concurrent writer losing
// the race receives ErrVersionConflict and should re-read and retry.
func (s *ChallengeService) CreateNewVersion(ctx context.Context, current *models.ChallengeVersion, payload models.ChallengePayload, notes string) (*models.ChallengeVersion, error) {
	sequences := make([]int32, 0, len(payload.Waypoints))
	for _, waypoint := range payload.Waypoints {
		sequences = append(sequences, waypoint.Sequence)
	}
	if err := validateWaypointSequences(sequences); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	payload.Metadata.UpdatedAt = now
	if notes != "" {
		payload.Metadata.VersionNotes = &notes
	}

	next := &models.ChallengeVersion{
		VersionID:        uuid.New().String(),
		ChallengeID:      current.ChallengeID,
		Name:             current.Name,
		PlannedStartTime: current.PlannedStartTime,
		Payload:          payload,
		ValidityStart:    now,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := s.versionRepo.SupersedeAndInsert(ctx, current.ChallengeID, next, now); err != nil {
		return nil, err
	}

	return next, nil
}

// StartChallenge records the actual start time as a new version and presents
// every enrolled participant at the first waypoint.
func (s *ChallengeService) StartChallenge(ctx context.Context, current *models.ChallengeVersion, moderatorID uint64) (*StartChallengeResult, error) {
	start := time.Now()

	if current.Payload.ModeratorID != moderatorID {
		return nil, models.ErrNotModerator
	}
	if !current.Payload.Active {
		return nil, models.ErrChallengeNotActive
	}
	if current.Payload.ActualStartTime != nil {
		return nil, models.ErrChallengeAlreadyStarted
	}

	now := time.Now().UTC()
	payload := current.Payload
	payload.ActualStartTime = &now

	next, err := s.CreateNewVersion(ctx, current, payload, "Challenge started")
	if err != nil {
		s.metrics.ObserveOperation("start_challenge", "error", time.Since(start))
		return nil, err
	}

	participants, err := s.participantRepo.ListByChallenge(ctx, current.ChallengeID)
	if err != nil {
		return nil, err
	}

	if first := next.Payload.FirstWaypoint(); first != nil {
		for _, participant := range participants {
			waypointID := first.ID
			if err := s.participantRepo.UpdateProgress(ctx, participant.ParticipantID, &waypointID, models.WaypointStatePresented, now); err != nil {
				return nil, err
			}
			participant.CurrentWaypointID = &waypointID
			participant.CurrentState = models.WaypointStatePresented
			participant.LastUpdated = now
		}
	}

	s.auditor.Emit(ctx, audit.Event{
		EventType:   audit.EventChallengeStarted,
		ChallengeID: current.ChallengeID,
		UserID:      moderatorID,
		Details: map[string]interface{}{
			"participant_count": len(participants),
		},
	})
	s.metrics.ObserveOperation("start_challenge", "ok", time.Since(start))

	if s.log != nil {
		s.log.WithChallengeID(current.ChallengeID).Info("Challenge started")
	}

	return &StartChallengeResult{Challenge: next, Participants: participants}, nil
}

// validateWaypointSequences checks that the sorted sequence numbers form the
// contiguous run 1..N. An empty list is a plain validation failure.
func validateWaypointSequences(sequences []int32) error {
	if len(sequences) == 0 {
		return &models.ValidationError{Reason: "challenge must have at least one waypoint"}
	}

	sorted := make([]int32, len(sequences))
	copy(sorted, sequences)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	for i, sequence := range sorted {
		if sequence != int32(i)+1 {
			return models.ErrInvalidWaypointSequence
		}
	}

	return nil
}
