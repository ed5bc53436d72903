package http

import "net/http"

// handleEvents streams the signed-in user's data-changed events.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	user, _ := s.deps.Identity.CurrentUser(r.Context())
	if s.deps.Hub == nil {
		ErrorResponse(http.StatusServiceUnavailable, "live updates are not available").Write(w)
		return
	}
	s.deps.Hub.Serve(w, r, user.ID)
}
