package repository

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
)

var versionTestColumns = []string{"version_id", "challenge_id", "challenge_name", "planned_start_time",
	"payload", "validity_start", "validity_end", "created_at", "updated_at"}

func versionFixture(t *testing.T, versionID string, challengeID uint64) (*models.ChallengeVersion, []byte) {
	now := time.Now().UTC()
	version := &models.ChallengeVersion{
		VersionID:        versionID,
		ChallengeID:      challengeID,
		Name:             "City Hunt",
		PlannedStartTime: now,
		Payload: models.ChallengePayload{
			ModeratorID:     7,
			DurationMinutes: 120,
			Type:            models.ChallengeTypeRecreational,
			Active:          true,
			Waypoints: []models.WaypointDefinition{
				{ID: 1, Sequence: 1, RadiusMeters: 50.0, Clue: "red door", ExpectedSubject: "red door"},
			},
			Metadata: models.PayloadMetadata{CreatedAt: now, UpdatedAt: now},
		},
		ValidityStart: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	payload, err := json.Marshal(version.Payload)
	require.NoError(t, err)
	return version, payload
}

func TestChallengeVersionRepository_Insert(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewChallengeVersionRepository(db)
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		version, _ := versionFixture(t, "v-1", 42)

		mock.ExpectExec("INSERT INTO challenge_versions").
			WithArgs("v-1", uint64(42), "City Hunt", sqlmock.AnyArg(), sqlmock.AnyArg(),
				sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))

		require.NoError(t, repo.Insert(ctx, version))
	})

	t.Run("DuplicateCurrentRow", func(t *testing.T) {
		version, _ := versionFixture(t, "v-2", 42)

		mock.ExpectExec("INSERT INTO challenge_versions").
			WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry '42' for key 'uniq_current_challenge'"})

		err := repo.Insert(ctx, version)
		assert.True(t, errors.Is(err, models.ErrVersionConflict))
	})

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestChallengeVersionRepository_FindCurrent(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewChallengeVersionRepository(db)
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		version, payload := versionFixture(t, "v-1", 42)

		mock.ExpectQuery("SELECT version_id").
			WithArgs(uint64(42)).
			WillReturnRows(sqlmock.NewRows(versionTestColumns).
				AddRow(version.VersionID, version.ChallengeID, version.Name, version.PlannedStartTime,
					payload, version.ValidityStart, nil, version.CreatedAt, version.UpdatedAt))

		found, err := repo.FindCurrent(ctx, 42)
		require.NoError(t, err)

		assert.Equal(t, "v-1", found.VersionID)
		assert.Nil(t, found.ValidityEnd)
		require.Len(t, found.Payload.Waypoints, 1)
		assert.Equal(t, "red door", found.Payload.Waypoints[0].ExpectedSubject)
	})

	t.Run("NotFound", func(t *testing.T) {
		mock.ExpectQuery("SELECT version_id").
			WithArgs(uint64(99)).
			WillReturnRows(sqlmock.NewRows(versionTestColumns))

		_, err := repo.FindCurrent(ctx, 99)
		assert.True(t, errors.Is(err, models.ErrChallengeNotFound))
	})

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestChallengeVersionRepository_FindByVersionID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewChallengeVersionRepository(db)
	ctx := context.Background()

	t.Run("ClosedVersionKeepsValidityEnd", func(t *testing.T) {
		version, payload := versionFixture(t, "v-1", 42)
		closedAt := time.Now().UTC()

		mock.ExpectQuery("SELECT version_id").
			WithArgs("v-1").
			WillReturnRows(sqlmock.NewRows(versionTestColumns).
				AddRow(version.VersionID, version.ChallengeID, version.Name, version.PlannedStartTime,
					payload, version.ValidityStart, closedAt, version.CreatedAt, version.UpdatedAt))

		found, err := repo.FindByVersionID(ctx, "v-1")
		require.NoError(t, err)
		require.NotNil(t, found.ValidityEnd)
		assert.WithinDuration(t, closedAt, *found.ValidityEnd, time.Second)
	})

	t.Run("NotFound", func(t *testing.T) {
		mock.ExpectQuery("SELECT version_id").
			WithArgs("v-missing").
			WillReturnRows(sqlmock.NewRows(versionTestColumns))

		_, err := repo.FindByVersionID(ctx, "v-missing")
		assert.True(t, errors.Is(err, models.ErrVersionNotFound))
	})

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestChallengeVersionRepository_ListVersions(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewChallengeVersionRepository(db)
	ctx := context.Background()

	version, payload := versionFixture(t, "v-1", 42)
	closedAt := time.Now().UTC()

	mock.ExpectQuery("SELECT version_id").
		WithArgs(uint64(42)).
		WillReturnRows(sqlmock.NewRows(versionTestColumns).
			AddRow("v-1", version.ChallengeID, version.Name, version.PlannedStartTime,
				payload, version.ValidityStart, closedAt, version.CreatedAt, version.UpdatedAt).
			AddRow("v-2", version.ChallengeID, version.Name, version.PlannedStartTime,
				payload, closedAt, nil, version.CreatedAt, version.UpdatedAt))

	versions, err := repo.ListVersions(ctx, 42)
	require.NoError(t, err)

	require.Len(t, versions, 2)
	assert.Equal(t, "v-1", versions[0].VersionID)
	assert.NotNil(t, versions[0].ValidityEnd)
	assert.Equal(t, "v-2", versions[1].VersionID)
	assert.Nil(t, versions[1].ValidityEnd)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestChallengeVersionRepository_SupersedeAndInsert(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewChallengeVersionRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	t.Run("ClosesAndInsertsAtomically", func(t *testing.T) {
		next, _ := versionFixture(t, "v-2", 42)

		mock.ExpectBegin()
		mock.ExpectExec("UPDATE challenge_versions").
			WithArgs(now, now, uint64(42)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO challenge_versions").
			WithArgs("v-2", uint64(42), "City Hunt", sqlmock.AnyArg(), sqlmock.AnyArg(),
				sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		require.NoError(t, repo.SupersedeAndInsert(ctx, 42, next, now))
	})

	t.Run("NoCurrentRowToClose", func(t *testing.T) {
		next, _ := versionFixture(t, "v-3", 42)

		mock.ExpectBegin()
		mock.ExpectExec("UPDATE challenge_versions").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		err := repo.SupersedeAndInsert(ctx, 42, next, now)
		assert.True(t, errors.Is(err, models.ErrVersionConflict))
	})

	t.Run("InsertLosesRace", func(t *testing.T) {
		next, _ := versionFixture(t, "v-4", 42)

		mock.ExpectBegin()
		mock.ExpectExec("UPDATE challenge_versions").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO challenge_versions").
			WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})
		mock.ExpectRollback()

		err := repo.SupersedeAndInsert(ctx, 42, next, now)
		assert.True(t, errors.Is(err, models.ErrVersionConflict))
	})

	require.NoError(t, mock.ExpectationsWereMet())
}
