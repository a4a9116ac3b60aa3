package server

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/siftworks/siftx/pkg/jobtracker"
)

// SessionCookieName carries the signed session token.
const SessionCookieName = "siftx_session"

// Session is the per request-chain state established by a trusted launch.
//
// A session is created fresh on every launch, even mid-session, so a new
// launch can never inherit a previous tenant's identity or job list.
type Session struct {
	ID          string
	ConsumerKey string
	Properties  map[string]string
	Jobs        *jobtracker.JobList
	CreatedAt   time.Time
}

// Roles returns the role the launch asserted for the user.
func (s *Session) Roles() string {
	return s.Properties["roles"]
}

// ContextID returns the course scope of the launch.
func (s *Session) ContextID() string {
	return s.Properties["context_id"]
}

// SessionStore holds active sessions in memory, keyed by id. The ids are
// only ever handed out inside signed cookies.
type SessionStore struct {
	secret []byte

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewSessionStore creates a store signing cookies with the given secret.
func NewSessionStore(secret string) *SessionStore {
	return &SessionStore{
		secret:   []byte(secret),
		sessions: make(map[string]*Session),
	}
}

// Create registers a new session for an authenticated launch.
func (st *SessionStore) Create(consumerKey string, properties map[string]string) *Session {
	s := &Session{
		ID:          uuid.New().String(),
		ConsumerKey: consumerKey,
		Properties:  properties,
		Jobs:        jobtracker.NewJobList(),
		CreatedAt:   time.Now().UTC(),
	}
	st.mu.Lock()
	st.sessions[s.ID] = s
	st.mu.Unlock()
	return s
}

// Get looks up a session by id.
func (st *SessionStore) Get(id string) (*Session, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.sessions[id]
	return s, ok
}

// Delete removes a session.
func (st *SessionStore) Delete(id string) {
	st.mu.Lock()
	delete(st.sessions, id)
	st.mu.Unlock()
}

// IssueCookie returns a signed cookie carrying the session id.
func (st *SessionStore) IssueCookie(s *Session) (*http.Cookie, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sid": s.ID,
		"iat": s.CreatedAt.Unix(),
	})
	signed, err := token.SignedString(st.secret)
	if err != nil {
		return nil, fmt.Errorf("sign session cookie: %w", err)
	}
	return &http.Cookie{
		Name:     SessionCookieName,
		Value:    signed,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteNoneMode,
		Secure:   true,
	}, nil
}

// FromRequest resolves the session named by the request's signed cookie.
// Any verification failure yields no session, never an error: the caller
// treats the request as unauthenticated.
func (st *SessionStore) FromRequest(r *http.Request) (*Session, bool) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		return nil, false
	}
	token, err := jwt.Parse(cookie.Value, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return st.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, false
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, false
	}
	sid, _ := claims["sid"].(string)
	if sid == "" {
		return nil, false
	}
	return st.Get(sid)
}
