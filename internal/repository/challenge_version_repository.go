package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/ortaieb/scavenger-hunt-game/internal/models"
)

// ChallengeVersionRepository stores challenge definitions as an append-only
// version chain. The schema carries a stored generated column
// (current_challenge_id = challenge_id when validity_end is null) with a
// unique key on it, so at most one current row can exist per challenge and a
// concurrent second insert fails with a duplicate-key error.
type ChallengeVersionRepository struct {
	db *sql.DB
}

func NewChallengeVersionRepository(db *sql.DB) *ChallengeVersionRepository {
	return &ChallengeVersionRepository{db: db}
}

const versionColumns = `version_id, challenge_id, challenge_name, planned_start_time, payload,
	       validity_start, validity_end, created_at, updated_at`

// Insert stores the first version of a new challenge.
func (r *ChallengeVersionRepository) Insert(ctx context.Context, version *models.ChallengeVersion) error {
	payload, err := json.Marshal(version.Payload)
	if err != nil {
		return fmt.Errorf("failed to encode challenge payload: %w", err)
	}

	query := `
		INSERT INTO challenge_versions (version_id, challenge_id, challenge_name, planned_start_time,
		                                payload, validity_start, validity_end, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, NULL, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, query,
		version.VersionID, version.ChallengeID, version.Name, version.PlannedStartTime,
		payload, version.ValidityStart, version.CreatedAt, version.UpdatedAt,
	)
	if isDuplicateKey(err) {
		return models.ErrVersionConflict
	}
	if err != nil {
		return fmt.Errorf("failed to insert challenge version: %w", err)
	}

	return nil
}

// FindCurrent retrieves the version with a null validity_end for a challenge.
func (r *ChallengeVersionRepository) FindCurrent(ctx context.Context, challengeID uint64) (*models.ChallengeVersion, error) {
	query := `
		SELECT ` + versionColumns + `
		FROM challenge_versions
		WHERE challenge_id = ? AND validity_end IS NULL
	`

	version, err := r.scanVersion(r.db.QueryRowContext(ctx, query, challengeID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrChallengeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find current challenge version: %w", err)
	}

	return version, nil
}

// FindByVersionID retrieves one historical version.
func (r *ChallengeVersionRepository) FindByVersionID(ctx context.Context, versionID string) (*models.ChallengeVersion, error) {
	query := `
		SELECT ` + versionColumns + `
		FROM challenge_versions
		WHERE version_id = ?
	`

	version, err := r.scanVersion(r.db.QueryRowContext(ctx, query, versionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrVersionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find challenge version: %w", err)
	}

	return version, nil
}

// ListVersions retrieves the full version chain for a challenge, oldest first.
func (r *ChallengeVersionRepository) ListVersions(ctx context.Context, challengeID uint64) ([]*models.ChallengeVersion, error) {
	query := `
		SELECT ` + versionColumns + `
		FROM challenge_versions
		WHERE challenge_id = ?
		ORDER BY validity_start ASC
	`

	rows, err := r.db.QueryContext(ctx, query, challengeID)
	if err != nil {
		return nil, fmt.Errorf("failed to list challenge versions: %w", err)
	}
	defer rows.Close()

	versions := []*models.ChallengeVersion{}
	for rows.Next() {
		version, err := r.scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan challenge version: %w", err)
		}
		versions = append(versions, version)
	}

	return versions, rows.Err()
}

// SupersedeAndInsert closes the current version and inserts its replacement
// in one transaction. The close must hit exactly one row; a duplicate-key
// failure on the insert means a concurrent caller won the race. Either case
// surfaces as ErrVersionConflict for the caller to retry.
func (r *ChallengeVersionRepository) SupersedeAndInsert(ctx context.Context, challengeID uint64, next *models.ChallengeVersion, now time.Time) error {
	payload, err := json.Marshal(next.Payload)
	if err != nil {
		return fmt.Errorf("failed to encode challenge payload: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	closeQuery := `
		UPDATE challenge_versions
		SET validity_end = ?, updated_at = ?
		WHERE challenge_id = ? AND validity_end IS NULL
	`

	result, err := tx.ExecContext(ctx, closeQuery, now, now, challengeID)
	if err != nil {
		return fmt.Errorf("failed to close current challenge version: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return models.ErrVersionConflict
	}

	insertQuery := `
		INSERT INTO challenge_versions (version_id, challenge_id, challenge_name, planned_start_time,
		                                payload, validity_start, validity_end, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, NULL, ?, ?)
	`

	_, err = tx.ExecContext(ctx, insertQuery,
		next.VersionID, next.ChallengeID, next.Name, next.PlannedStartTime,
		payload, next.ValidityStart, next.CreatedAt, next.UpdatedAt,
	)
	if isDuplicateKey(err) {
		return models.ErrVersionConflict
	}
	if err != nil {
		return fmt.Errorf("failed to insert new challenge version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit version supersede: %w", err)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *ChallengeVersionRepository) scanVersion(row rowScanner) (*models.ChallengeVersion, error) {
	version := &models.ChallengeVersion{}
	var payload []byte
	var validityEnd sql.NullTime

	err := row.Scan(
		&version.VersionID, &version.ChallengeID, &version.Name, &version.PlannedStartTime,
		&payload, &version.ValidityStart, &validityEnd, &version.CreatedAt, &version.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if validityEnd.Valid {
		version.ValidityEnd = &validityEnd.Time
	}

	if err := json.Unmarshal(payload, &version.Payload); err != nil {
		return nil, fmt.Errorf("failed to decode challenge payload: %w", err)
	}

	return version, nil
}

// isDuplicateKey reports whether err is a MySQL duplicate-entry error (1062).
func isDuplicateKey(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == 1062
}
