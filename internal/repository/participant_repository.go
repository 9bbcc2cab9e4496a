package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ortaieb/scavenger-hunt-game/internal/models"
)

// ParticipantRepository stores participant enrollments. Progression updates
// are single-row atomic writes; the row is never deleted.
type ParticipantRepository struct {
	db *sql.DB
}

func NewParticipantRepository(db *sql.DB) *ParticipantRepository {
	return &ParticipantRepository{db: db}
}

const participantColumns = `participant_id, challenge_id, user_id, participant_nickname,
	       current_waypoint_id, current_state, joined_at, last_updated`

// Insert enrolls a participant.
func (r *ParticipantRepository) Insert(ctx context.Context, participant *models.Participant) error {
	query := `
		INSERT INTO challenge_participants (participant_id, challenge_id, user_id, participant_nickname,
		                                    current_waypoint_id, current_state, joined_at, last_updated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		participant.ParticipantID, participant.ChallengeID, participant.UserID, participant.Nickname,
		participant.CurrentWaypointID, participant.CurrentState, participant.JoinedAt, participant.LastUpdated,
	)
	if err != nil {
		return fmt.Errorf("failed to insert participant: %w", err)
	}

	return nil
}

// FindByID retrieves a participant by ID.
func (r *ParticipantRepository) FindByID(ctx context.Context, participantID string) (*models.Participant, error) {
	query := `
		SELECT ` + participantColumns + `
		FROM challenge_participants
		WHERE participant_id = ?
	`

	participant, err := r.scanParticipant(r.db.QueryRowContext(ctx, query, participantID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrParticipantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find participant: %w", err)
	}

	return participant, nil
}

// Exists reports whether a user is already enrolled in a challenge.
func (r *ParticipantRepository) Exists(ctx context.Context, challengeID, userID uint64) (bool, error) {
	query := `
		SELECT EXISTS(
			SELECT 1
			FROM challenge_participants
			WHERE challenge_id = ? AND user_id = ?
		)
	`

	var exists bool
	err := r.db.QueryRowContext(ctx, query, challengeID, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check participant existence: %w", err)
	}

	return exists, nil
}

// ListByChallenge retrieves all participants of a challenge.
func (r *ParticipantRepository) ListByChallenge(ctx context.Context, challengeID uint64) ([]*models.Participant, error) {
	query := `
		SELECT ` + participantColumns + `
		FROM challenge_participants
		WHERE challenge_id = ?
	`

	rows, err := r.db.QueryContext(ctx, query, challengeID)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}
	defer rows.Close()

	participants := []*models.Participant{}
	for rows.Next() {
		participant, err := r.scanParticipant(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		participants = append(participants, participant)
	}

	return participants, rows.Err()
}

// UpdateProgress moves a participant to a waypoint/state pair in one atomic
// write. Passing a nil waypoint keeps the participant detached from any
// waypoint (pre-start enrollments).
func (r *ParticipantRepository) UpdateProgress(ctx context.Context, participantID string, waypointID *int32, state models.WaypointState, now time.Time) error {
	query := `
		UPDATE challenge_participants
		SET current_waypoint_id = ?, current_state = ?, last_updated = ?
		WHERE participant_id = ?
	`

	result, err := r.db.ExecContext(ctx, query, waypointID, state, now, participantID)
	if err != nil {
		return fmt.Errorf("failed to update participant progress: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return models.ErrParticipantNotFound
	}

	return nil
}

func (r *ParticipantRepository) scanParticipant(row rowScanner) (*models.Participant, error) {
	participant := &models.Participant{}
	var nickname sql.NullString
	var waypointID sql.NullInt32

	err := row.Scan(
		&participant.ParticipantID, &participant.ChallengeID, &participant.UserID, &nickname,
		&waypointID, &participant.CurrentState, &participant.JoinedAt, &participant.LastUpdated,
	)
	if err != nil {
		return nil, err
	}

	if nickname.Valid {
		participant.Nickname = &nickname.String
	}
	if waypointID.Valid {
		id := waypointID.Int32
		participant.CurrentWaypointID = &id
	}

	return participant, nil
}
