package web

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"

	"github.com/zmb3/spotify/v2"
	"golang.org/x/oauth2"

	"github.com/justestif/digster/internal/db"
	"github.com/justestif/digster/internal/jobs"
	"github.com/justestif/digster/internal/logger"
)

const stateCookieName = "oauth_state"

// OAuth is the authorization-code side of the login flow. *spotifyauth.Authenticator implements it.
type OAuth interface {
	AuthURL(state string, opts ...oauth2.AuthCodeOption) string
	Token(ctx context.Context, state string, r *http.Request, opts ...oauth2.AuthCodeOption) (*oauth2.Token, error)
	Client(ctx context.Context, token *oauth2.Token) *http.Client
}

// UserStore persists logged-in users.
type UserStore interface {
	Upsert(ctx context.Context, user *db.User) error
}

// Handlers contains HTTP handlers for the API.
type Handlers struct {
	auth       OAuth
	sessions   SessionManager
	users      UserStore
	discovery  Discovery
	queue      jobs.Queue
	log        *logger.Logger
	spotifyAPI string
}

// Login initiates the Spotify OAuth flow (GET /auth/login).
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	// Generate state for CSRF protection
	state, err := generateOAuthState()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to generate state")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   300, // 5 minutes
	})

	http.Redirect(w, r, h.auth.AuthURL(state), http.StatusTemporaryRedirect)
}

// Callback handles the OAuth callback from Spotify (GET /callback). It stores the
// user with their tokens, opens a session and queues a first sync.
func (h *Handlers) Callback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	stateCookie, err := r.Cookie(stateCookieName)
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing state cookie")
		return
	}
	state := r.URL.Query().Get("state")
	if state != stateCookie.Value {
		writeError(w, http.StatusBadRequest, "state mismatch")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})

	if errMsg := r.URL.Query().Get("error"); errMsg != "" {
		writeError(w, http.StatusBadRequest, "spotify auth error: "+errMsg)
		return
	}

	token, err := h.auth.Token(ctx, state, r)
	if err != nil {
		h.log.Warn("token exchange failed", "error", err)
		writeError(w, http.StatusBadGateway, "failed to get token")
		return
	}

	opts := []spotify.ClientOption{}
	if h.spotifyAPI != "" {
		opts = append(opts, spotify.WithBaseURL(h.spotifyAPI))
	}
	profile, err := spotify.New(h.auth.Client(ctx, token), opts...).CurrentUser(ctx)
	if err != nil {
		h.log.Warn("profile lookup failed", "error", err)
		writeError(w, http.StatusBadGateway, "failed to get user info")
		return
	}

	user := &db.User{
		ID:           string(profile.ID),
		DisplayName:  profile.DisplayName,
		Email:        profile.Email,
		Country:      profile.Country,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
	}
	if len(profile.Images) > 0 {
		user.ImageURL = profile.Images[0].URL
	}
	if err := h.users.Upsert(ctx, user); err != nil {
		h.log.Error("storing user failed", "user_id", user.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to store user")
		return
	}

	session, err := h.sessions.Create(ctx, user.ID)
	if err != nil {
		h.log.Error("creating session failed", "user_id", user.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}
	h.sessions.SetCookie(w, session)

	if job, err := h.queue.Enqueue(ctx, user.ID); err != nil {
		h.log.Warn("queueing first sync failed", "user_id", user.ID, "error", err)
	} else {
		h.log.Info("user logged in", "user_id", user.ID, "job_id", job.ID.String())
	}

	http.Redirect(w, r, "/me", http.StatusTemporaryRedirect)
}

// Logout clears the session (POST /auth/logout).
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	if session := h.sessions.GetFromRequest(r); session != nil {
		h.sessions.Delete(r.Context(), session.ID)
	}
	h.sessions.ClearCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// generateOAuthState creates a random state string for OAuth.
func generateOAuthState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
