package web

import (
	"encoding/json"
	"net/http"

	"github.com/starcmd/starcmd/internal/session"
)

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type apiErrorResponse struct {
	Error apiError `json:"error"`
}

type statusResponse struct {
	Status   session.Status `json:"status"`
	Sessions int            `json:"sessions"`
	Blocked  int            `json:"blocked"`
	Idle     int            `json:"idle"`
}

// feed is the payload of /events and /ws change messages.
type feed struct {
	Status   session.Status        `json:"status"`
	Sessions []session.SessionInfo `json:"sessions"`
}

func (s *Server) currentFeed() feed {
	infos := s.sessions.Snapshot()
	return feed{Status: session.Aggregate(infos), Sessions: infos}
}

// guard rejects non-GET and unauthorized requests. It reports whether the
// handler should continue.
func (s *Server) guard(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet {
		writeAPIError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return false
	}
	if !s.authorizeRequest(r) {
		writeAPIError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
		return false
	}
	return true
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if !s.guard(w, r) {
		return
	}
	writeJSON(w, http.StatusOK, s.sessions.Snapshot())
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !s.guard(w, r) {
		return
	}
	infos := s.sessions.Snapshot()
	resp := statusResponse{Status: session.Aggregate(infos), Sessions: len(infos)}
	for _, info := range infos {
		switch info.Status {
		case session.StatusBlocked:
			resp.Blocked++
		case session.StatusIdle:
			resp.Idle++
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeAPIError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, apiErrorResponse{
		Error: apiError{
			Code:    code,
			Message: message,
		},
	})
}
