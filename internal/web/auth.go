package web

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// authorizeRequest accepts the configured token as "?token=" (EventSource
// and WebSocket clients cannot set headers) or as a bearer token.
func (s *Server) authorizeRequest(r *http.Request) bool {
	want := s.cfg.Token
	if want == "" {
		return true
	}
	for _, got := range []string{
		strings.TrimSpace(r.URL.Query().Get("token")),
		bearerToken(r.Header.Get("Authorization")),
	} {
		if got != "" && subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1 {
			return true
		}
	}
	return false
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	header = strings.TrimSpace(header)
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
