package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/justestif/digster/internal/db"
	"github.com/justestif/digster/internal/discover"
)

// Discovery is the social and discovery service behind the API.
type Discovery interface {
	Profile(ctx context.Context, userID string) (*db.User, error)
	ToggleFollow(ctx context.Context, followerID, followingID string) (bool, error)
	Followers(ctx context.Context, userID string) ([]db.User, error)
	Following(ctx context.Context, userID string) ([]db.User, error)
	Feed(ctx context.Context, userID string, limit int) ([]db.FeedItem, error)
	Library(ctx context.Context, userID string) ([]db.LibraryAlbum, error)
	RandomAlbum(ctx context.Context, genre string) (*discover.AlbumView, error)
	SetFetching(ctx context.Context, userID string, allowed bool) error
	SetDescription(ctx context.Context, userID, description string) error
}

type ctxKey struct{}

// requireSession rejects requests without a valid session and stores the user ID in the context.
func (h *Handlers) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session := h.sessions.GetFromRequest(r)
		if session == nil {
			writeError(w, http.StatusUnauthorized, "not logged in")
			return
		}
		ctx := context.WithValue(r.Context(), ctxKey{}, session.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func currentUser(r *http.Request) string {
	id, _ := r.Context().Value(ctxKey{}).(string)
	return id
}

// Me returns the logged-in user's profile (GET /me).
func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.discovery.Profile(r.Context(), currentUser(r))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserView(*user, true))
}

// Sync queues a sync of the logged-in user's library (POST /sync).
func (h *Handlers) Sync(w http.ResponseWriter, r *http.Request) {
	job, err := h.queue.Enqueue(r.Context(), currentUser(r))
	if err != nil {
		h.log.Error("queueing sync failed", "user_id", currentUser(r), "error", err)
		writeError(w, http.StatusServiceUnavailable, "failed to queue sync")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": job.ID.String()})
}

// SetFetching toggles scheduled syncs (PUT /me/fetching).
func (h *Handlers) SetFetching(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Allowed *bool `json:"allowed"`
	}
	if err := decodeJSON(w, r, &body); err != nil || body.Allowed == nil {
		writeError(w, http.StatusBadRequest, `body must be {"allowed": bool}`)
		return
	}
	if err := h.discovery.SetFetching(r.Context(), currentUser(r), *body.Allowed); err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"allowed": *body.Allowed})
}

// SetDescription updates the profile description (PUT /me/description).
func (h *Handlers) SetDescription(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Description string `json:"description"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := h.discovery.SetDescription(r.Context(), currentUser(r), body.Description); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ToggleFollow follows or unfollows a user (POST /follows/{userID}).
func (h *Handlers) ToggleFollow(w http.ResponseWriter, r *http.Request) {
	following, err := h.discovery.ToggleFollow(r.Context(), currentUser(r), chi.URLParam(r, "userID"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"following": following})
}

// Followers lists who follows a user (GET /users/{userID}/followers).
func (h *Handlers) Followers(w http.ResponseWriter, r *http.Request) {
	h.userList(w, r, h.discovery.Followers)
}

// Following lists who a user follows (GET /users/{userID}/following).
func (h *Handlers) Following(w http.ResponseWriter, r *http.Request) {
	h.userList(w, r, h.discovery.Following)
}

func (h *Handlers) userList(w http.ResponseWriter, r *http.Request, list func(context.Context, string) ([]db.User, error)) {
	users, err := list(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.fail(w, err)
		return
	}
	out := make([]userView, len(users))
	for i, u := range users {
		out[i] = toUserView(u, false)
	}
	writeJSON(w, http.StatusOK, out)
}

// UserAlbums lists a user's saved albums (GET /users/{userID}/albums).
func (h *Handlers) UserAlbums(w http.ResponseWriter, r *http.Request) {
	albums, err := h.discovery.Library(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.fail(w, err)
		return
	}
	out := make([]albumView, len(albums))
	for i, la := range albums {
		out[i] = toAlbumView(la.Album)
		out[i].AddedAt = la.AddedAt
	}
	writeJSON(w, http.StatusOK, out)
}

// Feed lists albums recently saved by followed users (GET /feed?limit=).
func (h *Handlers) Feed(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "limit must be a number")
			return
		}
		limit = n
	}

	items, err := h.discovery.Feed(r.Context(), currentUser(r), limit)
	if err != nil {
		h.fail(w, err)
		return
	}
	out := make([]feedItemView, len(items))
	for i, it := range items {
		album := toAlbumView(it.Album)
		album.AddedAt = it.AddedAt
		out[i] = feedItemView{UserID: it.UserID, DisplayName: it.DisplayName, Album: album}
	}
	writeJSON(w, http.StatusOK, out)
}

// RandomAlbum returns a random album (GET /albums/random?genre=).
func (h *Handlers) RandomAlbum(w http.ResponseWriter, r *http.Request) {
	view, err := h.discovery.RandomAlbum(r.Context(), r.URL.Query().Get("genre"))
	if err != nil {
		h.fail(w, err)
		return
	}
	out := toAlbumView(view.Album)
	out.Genres, out.Styles = view.Genres, view.Styles
	writeJSON(w, http.StatusOK, out)
}

// fail maps service errors to status codes.
func (h *Handlers) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, db.ErrNotFound), errors.Is(err, discover.ErrGenreNotInCollection):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, discover.ErrSelfFollow), errors.Is(err, discover.ErrDescriptionTooLong):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.log.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
