package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siftworks/siftx/internal/config"
	"github.com/siftworks/siftx/pkg/jobtracker"
	"github.com/siftworks/siftx/pkg/launch"
	filesink "github.com/siftworks/siftx/pkg/sink/file"
	"github.com/siftworks/siftx/pkg/sifter"
)

const (
	testConsumerKey = "MITx-6.00x"
	testSecret      = "shared-secret"
	testCourseID    = "MITx/6.00x/2013_Spring"
)

type testHarness struct {
	server   *Server
	sink     *filesink.Sink
	sinkRoot string
}

// newTestHarness builds a full server over a temp sifter directory and a
// filesystem sink: dump_grades always succeeds, broken always exits 1.
func newTestHarness(t *testing.T) *testHarness {
	t.Helper()

	sifterDir := t.TempDir()
	writeTestSifter(t, sifterDir, "dump_grades", `printf 'grades.csv\nname,grade\n'`)
	writeTestSifter(t, sifterDir, "broken", "echo 'no luck' >&2\nexit 1")

	sinkRoot := t.TempDir()
	snk, err := filesink.New(filesink.Config{RootDir: sinkRoot})
	require.NoError(t, err)

	registry := sifter.NewRegistry([]sifter.Layer{{Name: "installed", Dir: sifterDir}})
	engine := sifter.NewEngine("/venv", "/platform", snk, nil)
	pool := jobtracker.NewPool(engine, jobtracker.PoolConfig{Workers: 2, QueueSize: 16}, nil)
	t.Cleanup(func() { _ = pool.Close() })

	cfg := &config.Config{
		SessionSecret: "test-session-secret",
		Consumers: []config.ConsumerConfig{
			{Key: testConsumerKey, Secret: testSecret},
		},
	}
	srv, err := New(cfg, registry, jobtracker.NewTracker(pool, nil), nil)
	require.NoError(t, err)

	return &testHarness{server: srv, sink: snk, sinkRoot: sinkRoot}
}

func writeTestSifter(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name),
		[]byte("#!/bin/sh\n"+body), 0o755))
}

// signedLaunchForm builds a launch POST body signed for the given path.
func signedLaunchForm(path, secret, role string, extra map[string]string) url.Values {
	params := map[string]string{
		"oauth_consumer_key":     testConsumerKey,
		"oauth_signature_method": launch.SignatureHMACSHA1,
		"oauth_timestamp":        "1234567890",
		"oauth_nonce":            "nonce-1",
		"oauth_version":          "1.0",
		"user_id":                "user-1",
		"context_id":             testCourseID,
		"roles":                  role,
	}
	for k, v := range extra {
		params[k] = v
	}
	params["oauth_signature"] = launch.Sign(
		http.MethodPost, "http://siftx.example.com"+path, params, secret)

	form := url.Values{}
	for k, v := range params {
		form.Set(k, v)
	}
	return form
}

func postForm(h http.Handler, path string, form url.Values, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	return doForm(h, http.MethodPost, path, form, cookies...)
}

func doForm(h http.Handler, method, path string, form url.Values, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	var body string
	if form != nil {
		body = form.Encode()
	}
	req := httptest.NewRequest(method, "http://siftx.example.com"+path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == SessionCookieName {
			return c
		}
	}
	t.Fatal("no session cookie issued")
	return nil
}

func decodeTasks(t *testing.T, rec *httptest.ResponseRecorder) []jobtracker.Job {
	t.Helper()
	var body struct {
		Tasks []jobtracker.Job `json:"tasks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Tasks
}

func TestServer_Launch(t *testing.T) {
	t.Run("SignedLaunchEstablishesSession", func(t *testing.T) {
		h := newTestHarness(t)
		rec := postForm(h.server.Handler(), "/",
			signedLaunchForm("/", testSecret, "Instructor", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "dump_grades")
		sessionCookie(t, rec)
	})

	t.Run("WrongSecretRejected", func(t *testing.T) {
		h := newTestHarness(t)
		rec := postForm(h.server.Handler(), "/",
			signedLaunchForm("/", "wrong-secret", "Instructor", nil))

		require.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "check your key and secret")
	})

	t.Run("NonStaffRoleRejected", func(t *testing.T) {
		h := newTestHarness(t)
		// The signature is valid; only the role check fails.
		rec := postForm(h.server.Handler(), "/",
			signedLaunchForm("/", testSecret, "Student", nil))

		require.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "staff")
	})

	t.Run("UnauthenticatedAPIRequestIsJSON401", func(t *testing.T) {
		h := newTestHarness(t)
		rec := postForm(h.server.Handler(), "/api/"+APIVersion+"/run", url.Values{})

		require.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "this page requires a valid session or request", body["message"])
	})

	t.Run("RelaunchReplacesSession", func(t *testing.T) {
		h := newTestHarness(t)
		first := postForm(h.server.Handler(), "/",
			signedLaunchForm("/", testSecret, "Instructor", nil))
		second := postForm(h.server.Handler(), "/",
			signedLaunchForm("/", testSecret, "Instructor", nil))

		assert.NotEqual(t,
			sessionCookie(t, first).Value,
			sessionCookie(t, second).Value)
	})

	t.Run("HealthIsUngated", func(t *testing.T) {
		h := newTestHarness(t)
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		rec := httptest.NewRecorder()
		h.server.Handler().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestServer_Run(t *testing.T) {
	launchSession := func(t *testing.T, h *testHarness) *http.Cookie {
		rec := postForm(h.server.Handler(), "/",
			signedLaunchForm("/", testSecret, "Instructor", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		return sessionCookie(t, rec)
	}

	t.Run("MissingSifterParameter", func(t *testing.T) {
		h := newTestHarness(t)
		cookie := launchSession(t, h)

		rec := postForm(h.server.Handler(), "/api/"+APIVersion+"/run", url.Values{}, cookie)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), `requires the parameter "sifter"`)
	})

	t.Run("UnknownSifterListsAvailable", func(t *testing.T) {
		h := newTestHarness(t)
		cookie := launchSession(t, h)

		rec := postForm(h.server.Handler(), "/api/"+APIVersion+"/run",
			url.Values{"sifter": {"not_installed"}}, cookie)
		require.Equal(t, http.StatusBadRequest, rec.Code)

		var body struct {
			Message   string   `json:"message"`
			Available []string `json:"available_sifters"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Contains(t, body.Message, "invalid sifter")
		assert.Equal(t, []string{"broken", "dump_grades"}, body.Available)
	})

	t.Run("MalformedExtraArgs", func(t *testing.T) {
		h := newTestHarness(t)
		cookie := launchSession(t, h)

		rec := postForm(h.server.Handler(), "/api/"+APIVersion+"/run",
			url.Values{"sifter": {"dump_grades"}, "extra_args": {`"unterminated`}}, cookie)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("SubmitPollClear", func(t *testing.T) {
		h := newTestHarness(t)
		cookie := launchSession(t, h)

		rec := postForm(h.server.Handler(), "/api/"+APIVersion+"/run",
			url.Values{"sifter": {"dump_grades"}}, cookie)
		require.Equal(t, http.StatusOK, rec.Code)

		tasks := decodeTasks(t, rec)
		require.Len(t, tasks, 1)
		assert.Equal(t, "dump_grades", tasks[0].Sifter)
		assert.Equal(t, testCourseID, tasks[0].CourseID)

		require.Eventually(t, func() bool {
			rec := doForm(h.server.Handler(), http.MethodPut,
				"/api/"+APIVersion+"/update_task_status", nil, cookie)
			tasks := decodeTasks(t, rec)
			return len(tasks) == 1 && tasks[0].Status == jobtracker.StatusSuccess
		}, 10*time.Second, 20*time.Millisecond)

		// The artifact landed in the sink under the launch course scope.
		content, err := os.ReadFile(h.sink.PathFor(testCourseID, "grades.csv"))
		require.NoError(t, err)
		assert.Equal(t, "name,grade\n", string(content))

		rec = doForm(h.server.Handler(), http.MethodDelete,
			"/api/"+APIVersion+"/clear_complete_tasks", nil, cookie)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, decodeTasks(t, rec))
	})

	t.Run("FailingSifterReportsSifterFailure", func(t *testing.T) {
		h := newTestHarness(t)
		cookie := launchSession(t, h)

		rec := postForm(h.server.Handler(), "/api/"+APIVersion+"/run",
			url.Values{"sifter": {"broken"}}, cookie)
		require.Equal(t, http.StatusOK, rec.Code)

		require.Eventually(t, func() bool {
			rec := doForm(h.server.Handler(), http.MethodPut,
				"/api/"+APIVersion+"/update_task_status", nil, cookie)
			tasks := decodeTasks(t, rec)
			return len(tasks) == 1 && tasks[0].Status.Terminal()
		}, 10*time.Second, 20*time.Millisecond)

		rec = doForm(h.server.Handler(), http.MethodPut,
			"/api/"+APIVersion+"/update_task_status", nil, cookie)
		tasks := decodeTasks(t, rec)
		assert.Equal(t, jobtracker.StatusSifterFailure, tasks[0].Status)
		require.NotNil(t, tasks[0].Result)
		assert.Contains(t, tasks[0].Result.Error, "no luck")

		// Nothing was written for the failed run.
		entries, err := os.ReadDir(h.sinkRoot)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})
}

func TestServer_AllowedSiftersScopeTenant(t *testing.T) {
	sifterDir := t.TempDir()
	writeTestSifter(t, sifterDir, "dump_grades", `printf 'grades.csv\nx\n'`)
	writeTestSifter(t, sifterDir, "secret_tool", `printf 'a.txt\nx\n'`)

	snk, err := filesink.New(filesink.Config{RootDir: t.TempDir()})
	require.NoError(t, err)
	registry := sifter.NewRegistry([]sifter.Layer{{Name: "installed", Dir: sifterDir}})
	engine := sifter.NewEngine("/venv", "/platform", snk, nil)
	pool := jobtracker.NewPool(engine, jobtracker.DefaultPoolConfig(), nil)
	t.Cleanup(func() { _ = pool.Close() })

	cfg := &config.Config{
		SessionSecret: "s",
		Consumers: []config.ConsumerConfig{
			{Key: testConsumerKey, Secret: testSecret, AllowedSifters: []string{"dump_grades"}},
		},
	}
	srv, err := New(cfg, registry, jobtracker.NewTracker(pool, nil), nil)
	require.NoError(t, err)

	rec := postForm(srv.Handler(), "/",
		signedLaunchForm("/", testSecret, "Instructor", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	cookie := sessionCookie(t, rec)

	assert.Contains(t, rec.Body.String(), "dump_grades")
	assert.NotContains(t, rec.Body.String(), "secret_tool")

	rec = postForm(srv.Handler(), "/api/"+APIVersion+"/run",
		url.Values{"sifter": {"secret_tool"}}, cookie)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.NotContains(t, rec.Body.String(), "secret_tool")
}

func TestServer_RateLimit(t *testing.T) {
	h := newTestHarness(t)
	h.server.rateCfg = config.RateConfig{PerSecond: 0.001, Burst: 1}

	rec := postForm(h.server.Handler(), "/",
		signedLaunchForm("/", testSecret, "Instructor", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	cookie := sessionCookie(t, rec)

	first := postForm(h.server.Handler(), "/api/"+APIVersion+"/run",
		url.Values{"sifter": {"dump_grades"}}, cookie)
	require.Equal(t, http.StatusOK, first.Code)

	second := postForm(h.server.Handler(), "/api/"+APIVersion+"/run",
		url.Values{"sifter": {"dump_grades"}}, cookie)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
}

func TestSessionStore(t *testing.T) {
	st := NewSessionStore("secret")
	sess := st.Create(testConsumerKey, map[string]string{"roles": "Instructor"})

	cookie, err := st.IssueCookie(sess)
	require.NoError(t, err)
	assert.True(t, cookie.HttpOnly)

	t.Run("RoundTrip", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(cookie)
		got, ok := st.FromRequest(req)
		require.True(t, ok)
		assert.Equal(t, sess.ID, got.ID)
	})

	t.Run("TamperedCookieRejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: cookie.Value + "x"})
		_, ok := st.FromRequest(req)
		assert.False(t, ok)
	})

	t.Run("ForeignSecretRejected", func(t *testing.T) {
		other := NewSessionStore("different-secret")
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(cookie)
		_, ok := other.FromRequest(req)
		assert.False(t, ok)
	})

	t.Run("DeletedSessionGone", func(t *testing.T) {
		st.Delete(sess.ID)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(cookie)
		_, ok := st.FromRequest(req)
		assert.False(t, ok)
	})
}
