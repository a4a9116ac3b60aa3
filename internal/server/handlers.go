package server

import (
	"encoding/json"
	"net/http"
	"sort"

	"github.com/kballard/go-shellquote"
	"go.uber.org/zap"

	"github.com/siftworks/siftx/internal/observability"
	"github.com/siftworks/siftx/pkg/jobtracker"
	"github.com/siftworks/siftx/pkg/launch"
)

// APIVersion is the versioned API path segment.
const APIVersion = "v0.1"

// apiUsageError is a malformed API request. It renders as HTTP 400 with a
// JSON body of {"message": ..., <payload fields>} for machine consumers.
type apiUsageError struct {
	Message string
	Payload map[string]any
}

func (e *apiUsageError) write(w http.ResponseWriter) {
	body := make(map[string]any, len(e.Payload)+1)
	for k, v := range e.Payload {
		body[k] = v
	}
	body["message"] = e.Message
	writeJSON(w, http.StatusBadRequest, body)
}

// handleIndex renders the sifter list visible to the authenticated tenant.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	sess, _ := SessionFromContext(r.Context())
	names := s.visibleSifterNames(sess)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.templates.ExecuteTemplate(w, "index.html", map[string]any{
		"Sifters": names,
	}); err != nil {
		s.logger.Error("failed to render index", zap.Error(err))
	}
}

// handleRun submits a sifter job for the course the session was launched
// from and returns the refreshed job list.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	sess, _ := SessionFromContext(r.Context())

	sifterName := r.FormValue("sifter")
	if sifterName == "" {
		(&apiUsageError{Message: `this api call requires the parameter "sifter"`}).write(w)
		return
	}

	consumer, _ := s.verifier.Consumer(sess.ConsumerKey)
	visible := launch.VisibleSifters(consumer, s.registry.List())
	entry, ok := visible[sifterName]
	if !ok {
		(&apiUsageError{
			Message: "you have specified an invalid sifter",
			Payload: map[string]any{"available_sifters": sortedKeys(visible)},
		}).write(w)
		return
	}

	extraArgs, err := shellquote.Split(r.FormValue("extra_args"))
	if err != nil {
		(&apiUsageError{Message: "extra_args is not a valid argument string"}).write(w)
		return
	}

	if !s.allowSubmission(sess.ConsumerKey) {
		writeJSON(w, http.StatusTooManyRequests, map[string]any{
			"message": "job submission rate limit exceeded",
		})
		return
	}

	_, err = s.tracker.Submit(r.Context(), sess.Jobs, jobtracker.Task{
		SifterName: sifterName,
		SifterPath: entry.Path,
		CourseID:   sess.ContextID(),
		ExtraArgs:  extraArgs,
	})
	if err != nil {
		s.logger.Error("job submission failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"message": "could not submit job",
		})
		return
	}
	observability.JobsSubmittedTotal.Inc()

	writeJSON(w, http.StatusOK, map[string]any{"tasks": s.tracker.Query(sess.Jobs)})
}

// handleTaskStatus returns freshly polled statuses for every tracked job.
func (s *Server) handleTaskStatus(w http.ResponseWriter, r *http.Request) {
	sess, _ := SessionFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"tasks": s.tracker.Query(sess.Jobs)})
}

// handleClearTasks drops terminal jobs from the session's visible list and
// returns what remains.
func (s *Server) handleClearTasks(w http.ResponseWriter, r *http.Request) {
	sess, _ := SessionFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"tasks": s.tracker.Clear(sess.Jobs)})
}

func (s *Server) visibleSifterNames(sess *Session) []string {
	consumer, _ := s.verifier.Consumer(sess.ConsumerKey)
	return sortedKeys(launch.VisibleSifters(consumer, s.registry.List()))
}

func sortedKeys[T any](m map[string]T) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
