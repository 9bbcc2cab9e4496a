package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/ortaieb/scavenger-hunt-game/internal/models"
	"github.com/ortaieb/scavenger-hunt-game/internal/service"
	"github.com/ortaieb/scavenger-hunt-game/pkg/logger"
)

// maxProofUploadBytes caps the multipart memory buffer for proof images.
const maxProofUploadBytes = 10 << 20

// ParticipantHandler exposes enrollment and waypoint progression over HTTP.
// The gateway forwards the participant identity in the X-Participant-ID and
// X-Challenge-ID headers after verifying the challenge token.
type ParticipantHandler struct {
	participants *service.ParticipantService
	log          *logger.Logger
}

func NewParticipantHandler(participants *service.ParticipantService, log *logger.Logger) *ParticipantHandler {
	return &ParticipantHandler{participants: participants, log: log}
}

type checkInRequest struct {
	Location models.GeoLocation `json:"location"`
}

// Invite handles POST /challenges/{challengeID}/invite/{userID}.
func (h *ParticipantHandler) Invite(w http.ResponseWriter, r *http.Request) {
	challengeID, err := pathUint(r, "challengeID")
	if err != nil {
		writeError(w, err)
		return
	}

	userID, err := pathUint(r, "userID")
	if err != nil {
		writeError(w, err)
		return
	}

	request := models.InviteParticipantRequest{UserID: userID}
	if r.Body != nil && r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&request); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, &models.ValidationError{Reason: "invalid request body"})
			return
		}
		request.UserID = userID
	}

	participant, err := h.participants.Invite(r.Context(), challengeID, &request)
	if err != nil {
		h.log.WithChallengeID(challengeID).Warnf("Failed to invite participant: %v", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, participantResponse(participant))
}

// Get handles GET /participants/{participantID}.
func (h *ParticipantHandler) Get(w http.ResponseWriter, r *http.Request) {
	participant, err := h.participants.Get(r.Context(), r.PathValue("participantID"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, participantResponse(participant))
}

// CheckIn handles POST /challenges/waypoints/{waypointID}/checkin.
func (h *ParticipantHandler) CheckIn(w http.ResponseWriter, r *http.Request) {
	identity, err := participantIdentity(r)
	if err != nil {
		writeError(w, err)
		return
	}

	waypointID, err := pathWaypointID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var request checkInRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		writeError(w, &models.ValidationError{Reason: "invalid request body"})
		return
	}

	result, err := h.participants.CheckIn(r.Context(), identity.participantID, identity.challengeID, waypointID, request.Location)
	if err != nil {
		h.log.WithParticipantID(identity.participantID).Warnf("Check-in failed: %v", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// SubmitProof handles POST /challenges/waypoints/{waypointID}/proof. The
// evidence image travels as the multipart field "image".
func (h *ParticipantHandler) SubmitProof(w http.ResponseWriter, r *http.Request) {
	identity, err := participantIdentity(r)
	if err != nil {
		writeError(w, err)
		return
	}

	waypointID, err := pathWaypointID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := r.ParseMultipartForm(maxProofUploadBytes); err != nil {
		writeError(w, &models.ValidationError{Reason: "invalid multipart body"})
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		writeError(w, &models.ValidationError{Reason: "missing image field"})
		return
	}
	defer file.Close()

	result, err := h.participants.SubmitProof(r.Context(), identity.participantID, identity.challengeID, waypointID, &service.ProofSubmission{
		Filename: header.Filename,
		Image:    file,
	})
	if err != nil {
		h.log.WithParticipantID(identity.participantID).Warnf("Proof submission failed: %v", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

type identity struct {
	participantID string
	challengeID   uint64
}

func participantIdentity(r *http.Request) (identity, error) {
	participantID := r.Header.Get("X-Participant-ID")
	if participantID == "" {
		return identity{}, &models.ValidationError{Reason: "missing X-Participant-ID header"}
	}

	challengeID, err := strconv.ParseUint(r.Header.Get("X-Challenge-ID"), 10, 64)
	if err != nil {
		return identity{}, &models.ValidationError{Reason: "invalid X-Challenge-ID header"}
	}

	return identity{participantID: participantID, challengeID: challengeID}, nil
}

func pathWaypointID(r *http.Request) (int32, error) {
	value, err := strconv.ParseInt(r.PathValue("waypointID"), 10, 32)
	if err != nil {
		return 0, &models.ValidationError{Reason: "invalid waypointID"}
	}
	return int32(value), nil
}

func participantResponse(participant *models.Participant) map[string]interface{} {
	response := map[string]interface{}{
		"participant_id": participant.ParticipantID,
		"challenge_id":   participant.ChallengeID,
		"user_id":        participant.UserID,
		"current_state":  participant.CurrentState,
		"joined_at":      participant.JoinedAt,
		"last_updated":   participant.LastUpdated,
	}
	if participant.Nickname != nil {
		response["participant_nickname"] = participant.Nickname
	}
	if participant.CurrentWaypointID != nil {
		response["current_waypoint_id"] = participant.CurrentWaypointID
	}
	return response
}
