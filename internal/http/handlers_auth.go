package http

import (
	"net/http"

	"tueje/internal/identity"
)

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type userResponse struct {
	User identity.Snapshot `json:"user"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !bindJSON(w, r, &req) {
		return
	}
	u, err := s.deps.Identity.Register(r.Context(), req.Email, req.Password, sanitizeInput(req.Name))
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Body(userResponse{User: u.Snapshot()}).Write(w)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !bindJSON(w, r, &req) {
		return
	}
	// A fresh session id on every sign-in.
	sid := identity.NewSessionID()
	snap, err := s.deps.Identity.Login(r.Context(), sid, req.Email, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.finishSignIn(w, r, sid, snap)
}

type googleSignInRequest struct {
	IDToken string `json:"idToken"`
}

func (s *Server) handleGoogleSignIn(w http.ResponseWriter, r *http.Request) {
	if s.deps.Verifier == nil {
		ErrorResponse(http.StatusServiceUnavailable, "federated sign-in is not configured").Write(w)
		return
	}
	var req googleSignInRequest
	if !bindJSON(w, r, &req) {
		return
	}
	profile, err := s.deps.Verifier.Verify(r.Context(), req.IDToken)
	if err != nil {
		writeError(w, r, err)
		return
	}
	sid := identity.NewSessionID()
	snap, err := s.deps.Identity.SyncFederated(r.Context(), sid, profile)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.finishSignIn(w, r, sid, snap)
}

func (s *Server) finishSignIn(w http.ResponseWriter, r *http.Request, sid string, snap identity.Snapshot) {
	old := sessionID(r)
	if err := s.setSessionCookie(w, sid); err != nil {
		writeError(w, r, err)
		return
	}
	if _, signedIn := s.deps.Identity.Current(r.Context(), old); signedIn && old != sid {
		if err := s.deps.Identity.Logout(r.Context(), old); err != nil {
			writeError(w, r, err)
			return
		}
	}
	NewJSONResponse().Changed().Body(userResponse{User: snap}).Write(w)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	_, signedIn := s.deps.Identity.CurrentUser(r.Context())
	if err := s.deps.Identity.Logout(r.Context(), sessionID(r)); err != nil {
		writeError(w, r, err)
		return
	}
	resp := NewJSONResponse().Status(http.StatusNoContent)
	if signedIn {
		resp.Changed()
	}
	resp.Write(w)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.deps.Identity.CurrentUser(r.Context())
	if !ok {
		UnauthorizedError("not signed in").Write(w)
		return
	}
	NewJSONResponse().Body(userResponse{User: snap}).Write(w)
}
