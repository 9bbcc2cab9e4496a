package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/ortaieb/scavenger-hunt-game/internal/models"
	"github.com/ortaieb/scavenger-hunt-game/internal/service"
	"github.com/ortaieb/scavenger-hunt-game/pkg/logger"
)

// ChallengeHandler exposes challenge definition operations over HTTP. Token
// verification happens upstream; the gateway forwards the authenticated user
// in the X-User-ID header.
type ChallengeHandler struct {
	challenges *service.ChallengeService
	log        *logger.Logger
}

func NewChallengeHandler(challenges *service.ChallengeService, log *logger.Logger) *ChallengeHandler {
	return &ChallengeHandler{challenges: challenges, log: log}
}

type startChallengeRequest struct {
	ChallengeID uint64 `json:"challenge_id"`
}

// Create handles POST /challenges.
func (h *ChallengeHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromHeader(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var request models.CreateChallengeRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		writeError(w, &models.ValidationError{Reason: "invalid request body"})
		return
	}

	version, err := h.challenges.Create(r.Context(), userID, &request)
	if err != nil {
		h.log.WithField("user_id", userID).Warnf("Failed to create challenge: %v", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, challengeResponse(version))
}

// Get handles GET /challenges/{challengeID}, returning the current version.
func (h *ChallengeHandler) Get(w http.ResponseWriter, r *http.Request) {
	challengeID, err := pathUint(r, "challengeID")
	if err != nil {
		writeError(w, err)
		return
	}

	version, err := h.challenges.GetCurrent(r.Context(), challengeID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, challengeResponse(version))
}

// History handles GET /challenges/{challengeID}/versions.
func (h *ChallengeHandler) History(w http.ResponseWriter, r *http.Request) {
	challengeID, err := pathUint(r, "challengeID")
	if err != nil {
		writeError(w, err)
		return
	}

	versions, err := h.challenges.History(r.Context(), challengeID)
	if err != nil {
		writeError(w, err)
		return
	}

	response := make([]map[string]interface{}, 0, len(versions))
	for _, version := range versions {
		response = append(response, challengeResponse(version))
	}

	writeJSON(w, http.StatusOK, response)
}

// GetVersion handles GET /versions/{versionID}.
func (h *ChallengeHandler) GetVersion(w http.ResponseWriter, r *http.Request) {
	version, err := h.challenges.GetVersion(r.Context(), r.PathValue("versionID"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, challengeResponse(version))
}

// Start handles POST /challenges/start.
func (h *ChallengeHandler) Start(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromHeader(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var request startChallengeRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		writeError(w, &models.ValidationError{Reason: "invalid request body"})
		return
	}

	current, err := h.challenges.GetCurrent(r.Context(), request.ChallengeID)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := h.challenges.StartChallenge(r.Context(), current, userID)
	if err != nil {
		h.log.WithChallengeID(request.ChallengeID).Warnf("Failed to start challenge: %v", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"challenge":         challengeResponse(result.Challenge),
		"participant_count": len(result.Participants),
	})
}

// challengeResponse flattens a version row for the API. The payload keeps its
// stored JSON shape.
func challengeResponse(version *models.ChallengeVersion) map[string]interface{} {
	response := map[string]interface{}{
		"version_id":         version.VersionID,
		"challenge_id":       version.ChallengeID,
		"challenge_name":     version.Name,
		"planned_start_time": version.PlannedStartTime,
		"validity_start":     version.ValidityStart,
		"payload":            version.Payload,
	}
	if version.ValidityEnd != nil {
		response["validity_end"] = version.ValidityEnd
	}
	return response
}

func userIDFromHeader(r *http.Request) (uint64, error) {
	raw := r.Header.Get("X-User-ID")
	if raw == "" {
		return 0, &models.ValidationError{Reason: "missing X-User-ID header"}
	}

	userID, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, &models.ValidationError{Reason: "invalid X-User-ID header"}
	}

	return userID, nil
}

func pathUint(r *http.Request, name string) (uint64, error) {
	value, err := strconv.ParseUint(r.PathValue(name), 10, 64)
	if err != nil {
		return 0, &models.ValidationError{Reason: "invalid " + name}
	}
	return value, nil
}
