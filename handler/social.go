package handler

import (
	"errors"
	"log"
	"net/http"

	"github.com/deddy77/Moun-project/service"
)

func (s *Server) HandleToggleFollow(w http.ResponseWriter, r *http.Request, userID int64) {
	targetID, ok := pathID(w, r)
	if !ok {
		return
	}
	following, err := s.svc.ToggleFollow(r.Context(), userID, targetID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrSelfFollow):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, service.ErrNotFound):
			writeError(w, http.StatusNotFound, "user not found")
		default:
			log.Printf("toggle follow: %v", err)
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"following": following})
}

func (s *Server) HandleFollowData(w http.ResponseWriter, r *http.Request, userID int64) {
	targetID, ok := pathID(w, r)
	if !ok {
		return
	}
	data, err := s.svc.FollowData(r.Context(), userID, targetID)
	if err != nil {
		log.Printf("follow data: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, data)
}

// HandleStatusCheck reports the online state of the requester's mutual
// followers.
func (s *Server) HandleStatusCheck(w http.ResponseWriter, r *http.Request, userID int64) {
	statuses, err := s.svc.StatusCheck(r.Context(), userID)
	if err != nil {
		log.Printf("status check: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, statuses)
}

// HandleActivity is the explicit heartbeat endpoint. Authenticated requests
// already stamp presence, so the body of this handler only acknowledges.
func (s *Server) HandleActivity(w http.ResponseWriter, _ *http.Request, _ int64) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
