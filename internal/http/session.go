package http

import (
	"log/slog"
	"net/http"

	"tueje/internal/identity"
	applog "tueje/internal/log"
)

// SessionCookie holds the signed session token.
const SessionCookie = "tueje_session"

// sessionMiddleware binds the session id from the cookie to the request,
// issuing a fresh session when the cookie is missing or invalid.
func (s *Server) sessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sid := ""
		if c, err := r.Cookie(SessionCookie); err == nil {
			if parsed, err := s.deps.Sessions.Parse(c.Value); err == nil {
				sid = parsed
			} else {
				slog.DebugContext(r.Context(), "Discarding invalid session cookie", applog.FieldComponent, applog.ComponentHTTP, applog.FieldError, err)
			}
		}
		if sid == "" {
			sid = identity.NewSessionID()
			if err := s.setSessionCookie(w, sid); err != nil {
				slog.ErrorContext(r.Context(), "Failed to issue session", applog.FieldComponent, applog.ComponentHTTP, applog.FieldError, err)
				InternalServerError("could not start session").Write(w)
				return
			}
		}
		next.ServeHTTP(w, r.WithContext(identity.WithSession(r.Context(), sid)))
	})
}

func (s *Server) setSessionCookie(w http.ResponseWriter, sid string) error {
	token, err := s.deps.Sessions.Sign(sid)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(s.deps.Sessions.TTL().Seconds()),
		HttpOnly: true,
		Secure:   s.opts.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// requireUser rejects requests without a signed-in user.
func (s *Server) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := s.deps.Identity.CurrentUser(r.Context()); !ok {
			UnauthorizedError("sign in required").Write(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func sessionID(r *http.Request) string {
	sid, _ := identity.SessionFrom(r.Context())
	return sid
}
