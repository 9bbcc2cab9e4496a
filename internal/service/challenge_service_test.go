package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ortaieb/scavenger-hunt-game/internal/models"
	"github.com/ortaieb/scavenger-hunt-game/internal/repository"
)

var (
	testVersionColumns = []string{"version_id", "challenge_id", "challenge_name", "planned_start_time",
		"payload", "validity_start", "validity_end", "created_at", "updated_at"}
	testParticipantColumns = []string{"participant_id", "challenge_id", "user_id", "participant_nickname",
		"current_waypoint_id", "current_state", "joined_at", "last_updated"}
)

// stubAllocator hands out a fixed challenge id.
type stubAllocator struct {
	id  uint64
	err error
}

func (a *stubAllocator) Next(ctx context.Context) (uint64, error) {
	return a.id, a.err
}

func testChallengeService(t *testing.T) (*ChallengeService, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	versionRepo := repository.NewChallengeVersionRepository(db)
	participantRepo := repository.NewParticipantRepository(db)

	return NewChallengeService(versionRepo, participantRepo, &stubAllocator{id: 42}, nil, nil, nil), mock
}

func testWaypointRequests(sequences ...int32) []models.CreateWaypointRequest {
	waypoints := make([]models.CreateWaypointRequest, 0, len(sequences))
	for _, sequence := range sequences {
		waypoints = append(waypoints, models.CreateWaypointRequest{
			Sequence:        sequence,
			Location:        models.GeoLocation{Lat: 51.5074, Lon: -0.1278},
			RadiusMeters:    50.0,
			Clue:            "look for the red door",
			ExpectedSubject: "red door",
		})
	}
	return waypoints
}

func testCreateRequest(sequences ...int32) *models.CreateChallengeRequest {
	return &models.CreateChallengeRequest{
		Name:             "City Hunt",
		PlannedStartTime: time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
		DurationMinutes:  120,
		Type:             models.ChallengeTypeRecreational,
		Waypoints:        testWaypointRequests(sequences...),
	}
}

// testPayload builds a stored challenge payload with contiguous waypoints.
func testPayload(moderatorID uint64, started bool, waypointCount int) models.ChallengePayload {
	now := time.Now().UTC()

	waypoints := make([]models.WaypointDefinition, 0, waypointCount)
	for i := 1; i <= waypointCount; i++ {
		waypoints = append(waypoints, models.WaypointDefinition{
			ID:              int32(i),
			Sequence:        int32(i),
			Location:        models.GeoLocation{Lat: 51.5074, Lon: -0.1278},
			RadiusMeters:    50.0,
			Clue:            "look for the red door",
			ExpectedSubject: "red door",
		})
	}

	payload := models.ChallengePayload{
		ModeratorID:     moderatorID,
		DurationMinutes: 120,
		Type:            models.ChallengeTypeRecreational,
		Active:          true,
		Waypoints:       waypoints,
		Metadata:        models.PayloadMetadata{CreatedAt: now, UpdatedAt: now},
	}
	if started {
		startTime := now.Add(-time.Hour)
		payload.ActualStartTime = &startTime
	}
	return payload
}

func testVersion(challengeID uint64, payload models.ChallengePayload) *models.ChallengeVersion {
	now := time.Now().UTC()
	return &models.ChallengeVersion{
		VersionID:        "v-original",
		ChallengeID:      challengeID,
		Name:             "City Hunt",
		PlannedStartTime: now,
		Payload:          payload,
		ValidityStart:    now,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func mustPayloadJSON(t *testing.T, payload models.ChallengePayload) []byte {
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return data
}

func TestChallengeService_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		service, mock := testChallengeService(t)

		mock.ExpectExec("INSERT INTO challenge_versions").
			WithArgs(sqlmock.AnyArg(), uint64(42), "City Hunt", sqlmock.AnyArg(),
				sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))

		version, err := service.Create(ctx, 7, testCreateRequest(2, 1, 3))
		require.NoError(t, err)

		assert.Equal(t, uint64(42), version.ChallengeID)
		assert.NotEmpty(t, version.VersionID)
		assert.Nil(t, version.ValidityEnd)
		assert.Equal(t, uint64(7), version.Payload.ModeratorID)
		assert.True(t, version.Payload.Active)
		assert.Nil(t, version.Payload.ActualStartTime)
		require.Len(t, version.Payload.Waypoints, 3)
		for _, waypoint := range version.Payload.Waypoints {
			assert.Equal(t, waypoint.Sequence, waypoint.ID)
		}

		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("NoWaypoints", func(t *testing.T) {
		service, _ := testChallengeService(t)

		_, err := service.Create(ctx, 7, testCreateRequest())

		var validationErr *models.ValidationError
		require.True(t, errors.As(err, &validationErr))
		assert.Contains(t, validationErr.Reason, "at least one waypoint")
	})

	t.Run("SequenceGap", func(t *testing.T) {
		service, _ := testChallengeService(t)

		_, err := service.Create(ctx, 7, testCreateRequest(1, 3))

		assert.True(t, errors.Is(err, models.ErrInvalidWaypointSequence))
	})

	t.Run("UnknownType", func(t *testing.T) {
		service, _ := testChallengeService(t)

		request := testCreateRequest(1)
		request.Type = "MARATHON"

		_, err := service.Create(ctx, 7, request)

		var validationErr *models.ValidationError
		assert.True(t, errors.As(err, &validationErr))
	})

	t.Run("MissingName", func(t *testing.T) {
		service, _ := testChallengeService(t)

		request := testCreateRequest(1)
		request.Name = ""

		_, err := service.Create(ctx, 7, request)

		var validationErr *models.ValidationError
		assert.True(t, errors.As(err, &validationErr))
	})

	t.Run("ConcurrentCreateConflict", func(t *testing.T) {
		service, mock := testChallengeService(t)

		mock.ExpectExec("INSERT INTO challenge_versions").
			WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})

		_, err := service.Create(ctx, 7, testCreateRequest(1))

		assert.True(t, errors.Is(err, models.ErrVersionConflict))
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestChallengeService_CreateNewVersion(t *testing.T) {
	ctx := context.Background()

	t.Run("SupersedesCurrentInOneTransaction", func(t *testing.T) {
		service, mock := testChallengeService(t)
		current := testVersion(42, testPayload(7, false, 2))

		mock.ExpectBegin()
		mock.ExpectExec("UPDATE challenge_versions").
			WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), uint64(42)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO challenge_versions").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		next, err := service.CreateNewVersion(ctx, current, current.Payload, "clue reworded")
		require.NoError(t, err)

		assert.Equal(t, uint64(42), next.ChallengeID)
		assert.NotEqual(t, current.VersionID, next.VersionID)
		require.NotNil(t, next.Payload.Metadata.VersionNotes)
		assert.Equal(t, "clue reworded", *next.Payload.Metadata.VersionNotes)

		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("LostRaceOnClose", func(t *testing.T) {
		service, mock := testChallengeService(t)
		current := testVersion(42, testPayload(7, false, 1))

		mock.ExpectBegin()
		mock.ExpectExec("UPDATE challenge_versions").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		_, err := service.CreateNewVersion(ctx, current, current.Payload, "")

		assert.True(t, errors.Is(err, models.ErrVersionConflict))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("LostRaceOnInsert", func(t *testing.T) {
		service, mock := testChallengeService(t)
		current := testVersion(42, testPayload(7, false, 1))

		mock.ExpectBegin()
		mock.ExpectExec("UPDATE challenge_versions").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO challenge_versions").
			WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})
		mock.ExpectRollback()

		_, err := service.CreateNewVersion(ctx, current, current.Payload, "")

		assert.True(t, errors.Is(err, models.ErrVersionConflict))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("RejectsBrokenSequences", func(t *testing.T) {
		service, _ := testChallengeService(t)
		current := testVersion(42, testPayload(7, false, 2))

		payload := current.Payload
		payload.Waypoints = payload.Waypoints[1:]

		_, err := service.CreateNewVersion(ctx, current, payload, "")

		assert.True(t, errors.Is(err, models.ErrInvalidWaypointSequence))
	})
}

func TestChallengeService_StartChallenge(t *testing.T) {
	ctx := context.Background()

	t.Run("NotModerator", func(t *testing.T) {
		service, _ := testChallengeService(t)
		current := testVersion(42, testPayload(7, false, 1))

		_, err := service.StartChallenge(ctx, current, 99)

		assert.True(t, errors.Is(err, models.ErrNotModerator))
	})

	t.Run("InactiveChallenge", func(t *testing.T) {
		service, _ := testChallengeService(t)
		payload := testPayload(7, false, 1)
		payload.Active = false
		current := testVersion(42, payload)

		_, err := service.StartChallenge(ctx, current, 7)

		assert.True(t, errors.Is(err, models.ErrChallengeNotActive))
	})

	t.Run("AlreadyStarted", func(t *testing.T) {
		service, _ := testChallengeService(t)
		current := testVersion(42, testPayload(7, true, 1))

		_, err := service.StartChallenge(ctx, current, 7)

		assert.True(t, errors.Is(err, models.ErrChallengeAlreadyStarted))
	})

	t.Run("PresentsParticipantsAtFirstWaypoint", func(t *testing.T) {
		service, mock := testChallengeService(t)
		current := testVersion(42, testPayload(7, false, 2))
		now := time.Now().UTC()

		mock.ExpectBegin()
		mock.ExpectExec("UPDATE challenge_versions").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO challenge_versions").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		mock.ExpectQuery("SELECT participant_id").
			WithArgs(uint64(42)).
			WillReturnRows(sqlmock.NewRows(testParticipantColumns).
				AddRow("p-1", 42, 100, nil, nil, "PRESENTED", now, now).
				AddRow("p-2", 42, 101, "runner", nil, "PRESENTED", now, now))

		mock.ExpectExec("UPDATE challenge_participants").
			WithArgs(int32(1), string(models.WaypointStatePresented), sqlmock.AnyArg(), "p-1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("UPDATE challenge_participants").
			WithArgs(int32(1), string(models.WaypointStatePresented), sqlmock.AnyArg(), "p-2").
			WillReturnResult(sqlmock.NewResult(0, 1))

		result, err := service.StartChallenge(ctx, current, 7)
		require.NoError(t, err)

		require.NotNil(t, result.Challenge.Payload.ActualStartTime)
		require.Len(t, result.Participants, 2)
		for _, participant := range result.Participants {
			require.NotNil(t, participant.CurrentWaypointID)
			assert.Equal(t, int32(1), *participant.CurrentWaypointID)
			assert.Equal(t, models.WaypointStatePresented, participant.CurrentState)
		}

		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestValidateWaypointSequences(t *testing.T) {
	t.Run("ContiguousFromOne", func(t *testing.T) {
		assert.NoError(t, validateWaypointSequences([]int32{1}))
		assert.NoError(t, validateWaypointSequences([]int32{3, 1, 2}))
	})

	t.Run("Empty", func(t *testing.T) {
		var validationErr *models.ValidationError
		assert.True(t, errors.As(validateWaypointSequences(nil), &validationErr))
	})

	t.Run("Gap", func(t *testing.T) {
		assert.True(t, errors.Is(validateWaypointSequences([]int32{1, 2, 4}), models.ErrInvalidWaypointSequence))
	})

	t.Run("Duplicate", func(t *testing.T) {
		assert.True(t, errors.Is(validateWaypointSequences([]int32{1, 1, 2}), models.ErrInvalidWaypointSequence))
	})

	t.Run("NotStartingAtOne", func(t *testing.T) {
		assert.True(t, errors.Is(validateWaypointSequences([]int32{2, 3}), models.ErrInvalidWaypointSequence))
	})
}
