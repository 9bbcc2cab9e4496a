package handler

import "net/http"

// Register mounts the API routes on the given mux.
func Register(mux *http.ServeMux, challenges *ChallengeHandler, participants *ParticipantHandler) {
	mux.HandleFunc("POST /challenges", challenges.Create)
	mux.HandleFunc("GET /challenges/{challengeID}", challenges.Get)
	mux.HandleFunc("GET /challenges/{challengeID}/versions", challenges.History)
	mux.HandleFunc("GET /versions/{versionID}", challenges.GetVersion)
	mux.HandleFunc("POST /challenges/start", challenges.Start)

	mux.HandleFunc("POST /challenges/{challengeID}/invite/{userID}", participants.Invite)
	mux.HandleFunc("GET /participants/{participantID}", participants.Get)
	mux.HandleFunc("POST /challenges/waypoints/{waypointID}/checkin", participants.CheckIn)
	mux.HandleFunc("POST /challenges/waypoints/{waypointID}/proof", participants.SubmitProof)
}
