package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ortaieb/scavenger-hunt-game/internal/client/evidence"
	"github.com/ortaieb/scavenger-hunt-game/internal/client/imagecheck"
	"github.com/ortaieb/scavenger-hunt-game/internal/models"
)

type errorResponse struct {
	Error string `json:"error"`
}

// statusForError maps domain errors to HTTP status codes. Unknown errors are
// treated as internal and their detail is not leaked to the caller.
func statusForError(err error) int {
	switch {
	case errors.Is(err, models.ErrChallengeNotFound),
		errors.Is(err, models.ErrVersionNotFound),
		errors.Is(err, models.ErrWaypointNotFound),
		errors.Is(err, models.ErrParticipantNotFound):
		return http.StatusNotFound

	case errors.Is(err, models.ErrNotModerator):
		return http.StatusForbidden

	case errors.Is(err, models.ErrVersionConflict),
		errors.Is(err, models.ErrChallengeAlreadyStarted),
		errors.Is(err, models.ErrChallengeNotActive),
		errors.Is(err, models.ErrChallengeEnded),
		errors.Is(err, models.ErrAlreadyParticipant),
		errors.Is(err, models.ErrNotCurrentWaypoint),
		errors.Is(err, models.ErrNotCheckedIn),
		errors.Is(err, models.ErrWrongChallenge),
		errors.Is(err, models.ErrInvalidWaypointSequence):
		return http.StatusConflict

	case errors.Is(err, imagecheck.ErrValidationFailed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, imagecheck.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, imagecheck.ErrServiceUnavailable):
		return http.StatusBadGateway
	}

	var validationErr *models.ValidationError
	var coordErr *models.InvalidCoordinatesError
	var imageErr *evidence.InvalidImageError
	var pathErr *imagecheck.InvalidEvidencePathError
	if errors.As(err, &validationErr) || errors.As(err, &coordErr) ||
		errors.As(err, &imageErr) || errors.As(err, &pathErr) {
		return http.StatusBadRequest
	}

	var tooFarErr *models.TooFarError
	if errors.As(err, &tooFarErr) {
		return http.StatusUnprocessableEntity
	}

	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	status := statusForError(err)

	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal server error"
	}

	writeJSON(w, status, errorResponse{Error: message})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
