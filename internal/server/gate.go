package server

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/siftworks/siftx/internal/observability"
	"github.com/siftworks/siftx/pkg/launch"
)

type contextKey int

const sessionContextKey contextKey = iota

// SessionFromContext returns the authenticated session the gate attached.
func SessionFromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(sessionContextKey).(*Session)
	return s, ok
}

// launchGate authenticates every route.
//
// A request carrying a consumer key is always re-validated, even when a
// session already exists: a fresh session replaces the old one so a stale
// identity can never persist into a different tenant's request. A request
// without launch parameters rides an existing session or is rejected.
// Authenticated requests then pass the staff-role check.
func (s *Server) launchGate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		params := collectParams(r)

		var sess *Session
		if launch.HasLaunchParams(params) {
			l, err := s.verifier.Validate(r, params)
			if err != nil {
				observability.LaunchesTotal.WithLabelValues("denied").Inc()
				s.renderAuthError(w, r, err)
				return
			}
			observability.LaunchesTotal.WithLabelValues("accepted").Inc()

			sess = s.sessions.Create(l.ConsumerKey, l.Properties)
			cookie, err := s.sessions.IssueCookie(sess)
			if err != nil {
				s.logger.Error("failed to issue session cookie", zap.Error(err))
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}
			http.SetCookie(w, cookie)
		} else {
			existing, ok := s.sessions.FromRequest(r)
			if !ok {
				s.renderAuthError(w, r, &launch.AuthenticationError{
					Message: "this page requires a valid session or request",
				})
				return
			}
			sess = existing
		}

		if err := launch.CheckRole(sess.Roles(), s.staffRoles); err != nil {
			s.renderAuthError(w, r, err)
			return
		}

		ctx := context.WithValue(r.Context(), sessionContextKey, sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// collectParams flattens query and form parameters into the single map the
// signature covers.
func collectParams(r *http.Request) map[string]string {
	_ = r.ParseForm()
	params := make(map[string]string, len(r.Form))
	for key, values := range r.Form {
		if len(values) > 0 {
			params[key] = values[0]
		}
	}
	return params
}

// renderAuthError writes the 401 response: JSON for API routes, rendered
// content otherwise. Authentication and authorization failures carry
// distinct messages so callers can tell them apart.
func (s *Server) renderAuthError(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Info("request rejected by authorization gate",
		zap.String("path", r.URL.Path),
		zap.String("reason", err.Error()))

	if strings.HasPrefix(r.URL.Path, "/api/") {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"message": err.Error()})
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	_ = s.templates.ExecuteTemplate(w, "error.html", map[string]any{
		"Message": err.Error(),
	})
}
