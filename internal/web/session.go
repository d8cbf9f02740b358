// Package web provides the JSON HTTP API for digster.
package web

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/justestif/digster/internal/db"
)

const (
	sessionCookieName = "session_id"
	sessionTTL        = 7 * 24 * time.Hour
)

// Session is an authenticated browser session. Spotify tokens live on the user row, not here.
type Session struct {
	ID        string
	UserID    string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// SessionManager defines the interface for session management.
type SessionManager interface {
	Create(ctx context.Context, userID string) (*Session, error)
	Get(ctx context.Context, id string) *Session
	Delete(ctx context.Context, id string)
	GetFromRequest(r *http.Request) *Session
	SetCookie(w http.ResponseWriter, session *Session)
	ClearCookie(w http.ResponseWriter)
}

// ============================================================================
// Database-Backed Session Store
// ============================================================================

// SessionRepository is the persistence behind DBSessionStore.
type SessionRepository interface {
	Create(ctx context.Context, session *db.Session) error
	Get(ctx context.Context, id string) (*db.Session, error)
	Delete(ctx context.Context, id string) error
}

// DBSessionStore manages user sessions in PostgreSQL.
type DBSessionStore struct {
	repo SessionRepository
}

// NewDBSessionStore creates a new database-backed session store.
func NewDBSessionStore(repo SessionRepository) *DBSessionStore {
	return &DBSessionStore{repo: repo}
}

// Create generates a new session and stores it in the database.
func (s *DBSessionStore) Create(ctx context.Context, userID string) (*Session, error) {
	session, err := newSession(userID)
	if err != nil {
		return nil, err
	}

	err = s.repo.Create(ctx, &db.Session{
		ID:        session.ID,
		UserID:    session.UserID,
		CreatedAt: session.CreatedAt,
		ExpiresAt: session.ExpiresAt,
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// Get retrieves a session by ID from the database. Expired sessions are not returned.
func (s *DBSessionStore) Get(ctx context.Context, id string) *Session {
	dbSession, err := s.repo.Get(ctx, id)
	if err != nil || time.Now().After(dbSession.ExpiresAt) {
		return nil
	}
	return &Session{
		ID:        dbSession.ID,
		UserID:    dbSession.UserID,
		CreatedAt: dbSession.CreatedAt,
		ExpiresAt: dbSession.ExpiresAt,
	}
}

// Delete removes a session from the database.
func (s *DBSessionStore) Delete(ctx context.Context, id string) {
	_ = s.repo.Delete(ctx, id)
}

// GetFromRequest extracts the session from the request cookie.
func (s *DBSessionStore) GetFromRequest(r *http.Request) *Session {
	return sessionFromCookie(r, s)
}

// SetCookie sets the session cookie on the response.
func (s *DBSessionStore) SetCookie(w http.ResponseWriter, session *Session) {
	setCookie(w, session)
}

// ClearCookie removes the session cookie from the response.
func (s *DBSessionStore) ClearCookie(w http.ResponseWriter) {
	clearCookie(w)
}

// ============================================================================
// Helper Functions
// ============================================================================

func newSession(userID string) (*Session, error) {
	id, err := generateSessionID()
	if err != nil {
		return nil, err
	}
	now := time.Now()
	return &Session{
		ID:        id,
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(sessionTTL),
	}, nil
}

// generateSessionID creates a cryptographically random session ID.
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func sessionFromCookie(r *http.Request, m SessionManager) *Session {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		return nil
	}
	return m.Get(r.Context(), cookie.Value)
}

// setCookie sets the session cookie on the response.
func setCookie(w http.ResponseWriter, session *Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    session.ID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(sessionTTL.Seconds()),
	})
}

// clearCookie removes the session cookie from the response.
func clearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
}

var _ SessionManager = (*DBSessionStore)(nil)
