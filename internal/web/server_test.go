package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/justestif/digster/internal/db"
	"github.com/justestif/digster/internal/discover"
	"github.com/justestif/digster/internal/jobs"
	"github.com/justestif/digster/internal/logger"
)

type fakeOAuth struct{}

func (fakeOAuth) AuthURL(state string, _ ...oauth2.AuthCodeOption) string {
	return "https://accounts.example.com/authorize?state=" + state
}

func (fakeOAuth) Token(_ context.Context, _ string, r *http.Request, _ ...oauth2.AuthCodeOption) (*oauth2.Token, error) {
	if r.URL.Query().Get("code") != "good" {
		return nil, errors.New("bad code")
	}
	return &oauth2.Token{AccessToken: "access", RefreshToken: "refresh"}, nil
}

func (fakeOAuth) Client(context.Context, *oauth2.Token) *http.Client {
	return http.DefaultClient
}

type fakeUsers struct {
	upserted []db.User
}

func (f *fakeUsers) Upsert(_ context.Context, u *db.User) error {
	f.upserted = append(f.upserted, *u)
	return nil
}

type recordingQueue struct {
	mu   sync.Mutex
	jobs []jobs.Job
	err  error
}

func (q *recordingQueue) Enqueue(_ context.Context, userID string) (jobs.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return jobs.Job{}, q.err
	}
	job := jobs.NewJob(userID)
	q.jobs = append(q.jobs, job)
	return job, nil
}

// fakeDiscovery keeps a tiny social graph in memory.
type fakeDiscovery struct {
	users    map[string]*db.User
	follows  map[[2]string]bool
	random   *discover.AlbumView
	feedSeen int
}

func newFakeDiscovery() *fakeDiscovery {
	return &fakeDiscovery{
		users: map[string]*db.User{
			"alice": {ID: "alice", DisplayName: "Alice", AccessToken: "secret-token", Email: "a@example.com"},
			"bob":   {ID: "bob", DisplayName: "Bob"},
		},
		follows: make(map[[2]string]bool),
	}
}

func (f *fakeDiscovery) Profile(_ context.Context, id string) (*db.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	return u, nil
}

func (f *fakeDiscovery) ToggleFollow(_ context.Context, from, to string) (bool, error) {
	if from == to {
		return false, discover.ErrSelfFollow
	}
	if _, ok := f.users[to]; !ok {
		return false, db.ErrNotFound
	}
	k := [2]string{from, to}
	f.follows[k] = !f.follows[k]
	return f.follows[k], nil
}

func (f *fakeDiscovery) Followers(_ context.Context, id string) ([]db.User, error) {
	var out []db.User
	for k, on := range f.follows {
		if on && k[1] == id {
			out = append(out, *f.users[k[0]])
		}
	}
	return out, nil
}

func (f *fakeDiscovery) Following(context.Context, string) ([]db.User, error) { return nil, nil }

func (f *fakeDiscovery) Feed(_ context.Context, _ string, limit int) ([]db.FeedItem, error) {
	f.feedSeen = limit
	return []db.FeedItem{{UserID: "bob", DisplayName: "Bob", Album: db.Album{ID: 1, Name: "Loveless"}}}, nil
}

func (f *fakeDiscovery) Library(_ context.Context, id string) ([]db.LibraryAlbum, error) {
	if _, ok := f.users[id]; !ok {
		return nil, db.ErrNotFound
	}
	added := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return []db.LibraryAlbum{{Album: db.Album{ID: 1, Name: "Loveless"}, AddedAt: &added}}, nil
}

func (f *fakeDiscovery) RandomAlbum(_ context.Context, genre string) (*discover.AlbumView, error) {
	if f.random == nil || genre == "polka" {
		return nil, discover.ErrGenreNotInCollection
	}
	return f.random, nil
}

func (f *fakeDiscovery) SetFetching(_ context.Context, id string, allowed bool) error {
	f.users[id].HasAllowedFetching = allowed
	return nil
}

func (f *fakeDiscovery) SetDescription(_ context.Context, id, d string) error {
	if len(d) > discover.MaxDescriptionLength {
		return discover.ErrDescriptionTooLong
	}
	f.users[id].Description = d
	return nil
}

type testEnv struct {
	handler   http.Handler
	sessions  *DBSessionStore
	users     *fakeUsers
	queue     *recordingQueue
	discovery *fakeDiscovery
}

func newTestEnv(t *testing.T, spotifyAPI string) *testEnv {
	t.Helper()
	env := &testEnv{
		sessions:  NewDBSessionStore(newMemSessionRepo()),
		users:     &fakeUsers{},
		queue:     &recordingQueue{},
		discovery: newFakeDiscovery(),
	}
	srv, err := NewServer(ServerConfig{
		OAuth:         fakeOAuth{},
		Sessions:      env.sessions,
		Users:         env.users,
		Discovery:     env.discovery,
		Queue:         env.queue,
		Log:           logger.NewNop(),
		SpotifyAPIURL: spotifyAPI,
	})
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	env.handler = srv.Handler()
	return env
}

// do sends a request, logged in as userID when it is not empty.
func (e *testEnv) do(t *testing.T, method, target, body, userID string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if userID != "" {
		s, err := e.sessions.Create(context.Background(), userID)
		if err != nil {
			t.Fatal(err)
		}
		req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: s.ID})
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decoding %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestNewServer_IncompleteConfig(t *testing.T) {
	if _, err := NewServer(ServerConfig{}); err == nil {
		t.Error("expected error for empty config")
	}
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t, "")
	rec := env.do(t, http.MethodGet, "/auth/login", "", "")

	if rec.Code != http.StatusTemporaryRedirect {
		t.Fatalf("status = %d, want 307", rec.Code)
	}
	var state string
	for _, c := range rec.Result().Cookies() {
		if c.Name == stateCookieName {
			state = c.Value
		}
	}
	if state == "" {
		t.Fatal("state cookie not set")
	}
	loc, _ := url.Parse(rec.Header().Get("Location"))
	if loc.Query().Get("state") != state {
		t.Errorf("redirect state = %q, want %q", loc.Query().Get("state"), state)
	}
}

func TestCallback(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/me" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"alice","display_name":"Alice","email":"a@example.com","country":"SE","images":[{"url":"https://img/alice"}]}`))
	}))
	defer api.Close()

	env := newTestEnv(t, api.URL+"/")

	req := httptest.NewRequest(http.MethodGet, "/callback?state=xyz&code=good", nil)
	req.AddCookie(&http.Cookie{Name: stateCookieName, Value: "xyz"})
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusTemporaryRedirect || rec.Header().Get("Location") != "/me" {
		t.Fatalf("status = %d, location = %q; body %s", rec.Code, rec.Header().Get("Location"), rec.Body.String())
	}

	if len(env.users.upserted) != 1 {
		t.Fatalf("upserted %d users, want 1", len(env.users.upserted))
	}
	u := env.users.upserted[0]
	if u.ID != "alice" || u.AccessToken != "access" || u.RefreshToken != "refresh" || u.ImageURL != "https://img/alice" {
		t.Errorf("stored user = %+v", u)
	}

	var sessionID string
	for _, c := range rec.Result().Cookies() {
		if c.Name == sessionCookieName {
			sessionID = c.Value
		}
	}
	if s := env.sessions.Get(context.Background(), sessionID); s == nil || s.UserID != "alice" {
		t.Errorf("session = %+v, want one for alice", s)
	}
	if len(env.queue.jobs) != 1 || env.queue.jobs[0].UserID != "alice" {
		t.Errorf("queued jobs = %+v, want a first sync for alice", env.queue.jobs)
	}
}

func TestCallback_Rejected(t *testing.T) {
	env := newTestEnv(t, "")
	tests := []struct {
		name   string
		target string
		cookie string
		want   int
	}{
		{"missing state cookie", "/callback?state=a&code=good", "", http.StatusBadRequest},
		{"state mismatch", "/callback?state=a&code=good", "b", http.StatusBadRequest},
		{"denied by user", "/callback?state=a&error=access_denied", "a", http.StatusBadRequest},
		{"bad code", "/callback?state=a&code=bad", "a", http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: stateCookieName, Value: tt.cookie})
			}
			rec := httptest.NewRecorder()
			env.handler.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
	if len(env.users.upserted) != 0 {
		t.Error("no user should be stored")
	}
}

func TestMe(t *testing.T) {
	env := newTestEnv(t, "")

	if rec := env.do(t, http.MethodGet, "/me", "", ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("anonymous /me status = %d, want 401", rec.Code)
	}

	rec := env.do(t, http.MethodGet, "/me", "", "alice")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if body := rec.Body.String(); strings.Contains(body, "secret-token") || strings.Contains(body, "a@example.com") {
		t.Errorf("profile leaks credentials: %s", body)
	}
	got := decode[map[string]any](t, rec)
	if got["id"] != "alice" || got["has_allowed_fetching"] != false {
		t.Errorf("profile = %v", got)
	}
}

func TestSync(t *testing.T) {
	env := newTestEnv(t, "")

	rec := env.do(t, http.MethodPost, "/sync", "", "alice")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	got := decode[map[string]string](t, rec)
	if len(env.queue.jobs) != 1 || got["job_id"] != env.queue.jobs[0].ID.String() {
		t.Errorf("job_id = %q, queued %+v", got["job_id"], env.queue.jobs)
	}

	env.queue.err = errors.New("redis down")
	if rec := env.do(t, http.MethodPost, "/sync", "", "alice"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status with failing queue = %d, want 503", rec.Code)
	}
}

func TestToggleFollow(t *testing.T) {
	env := newTestEnv(t, "")

	for _, want := range []bool{true, false} {
		rec := env.do(t, http.MethodPost, "/follows/bob", "", "alice")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		if got := decode[map[string]bool](t, rec); got["following"] != want {
			t.Errorf("following = %v, want %v", got["following"], want)
		}
	}

	if rec := env.do(t, http.MethodPost, "/follows/alice", "", "alice"); rec.Code != http.StatusBadRequest {
		t.Errorf("self follow status = %d, want 400", rec.Code)
	}
	if rec := env.do(t, http.MethodPost, "/follows/ghost", "", "alice"); rec.Code != http.StatusNotFound {
		t.Errorf("unknown user status = %d, want 404", rec.Code)
	}
	if rec := env.do(t, http.MethodPost, "/follows/bob", "", ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("anonymous follow status = %d, want 401", rec.Code)
	}
}

func TestFollowersAndAlbums(t *testing.T) {
	env := newTestEnv(t, "")
	env.discovery.follows[[2]string{"alice", "bob"}] = true

	rec := env.do(t, http.MethodGet, "/users/bob/followers", "", "")
	followers := decode[[]map[string]any](t, rec)
	if len(followers) != 1 || followers[0]["id"] != "alice" {
		t.Errorf("followers = %v", followers)
	}
	if _, ok := followers[0]["has_allowed_fetching"]; ok {
		t.Error("settings should only be shown to their owner")
	}

	rec = env.do(t, http.MethodGet, "/users/bob/albums", "", "")
	albums := decode[[]map[string]any](t, rec)
	if len(albums) != 1 || albums[0]["name"] != "Loveless" || albums[0]["added_at"] == nil {
		t.Errorf("albums = %v", albums)
	}

	if rec := env.do(t, http.MethodGet, "/users/ghost/albums", "", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown user albums status = %d, want 404", rec.Code)
	}
}

func TestFeed(t *testing.T) {
	env := newTestEnv(t, "")

	rec := env.do(t, http.MethodGet, "/feed?limit=5", "", "alice")
	if rec.Code != http.StatusOK || env.discovery.feedSeen != 5 {
		t.Fatalf("status = %d, limit seen = %d", rec.Code, env.discovery.feedSeen)
	}
	items := decode[[]map[string]any](t, rec)
	if len(items) != 1 || items[0]["user_id"] != "bob" {
		t.Errorf("feed = %v", items)
	}

	if rec := env.do(t, http.MethodGet, "/feed?limit=lots", "", "alice"); rec.Code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d, want 400", rec.Code)
	}
}

func TestRandomAlbum(t *testing.T) {
	env := newTestEnv(t, "")
	primary := "#C86432"
	env.discovery.random = &discover.AlbumView{
		Album:  db.Album{ID: 2, Name: "Kind of Blue", PrimaryColor: &primary},
		Genres: []string{"Jazz"},
		Styles: []string{"Modal"},
	}

	rec := env.do(t, http.MethodGet, "/albums/random?genre=jazz", "", "")
	got := decode[map[string]any](t, rec)
	if got["name"] != "Kind of Blue" || got["primary_color"] != primary {
		t.Errorf("random album = %v", got)
	}
	if genres, _ := got["genres"].([]any); len(genres) != 1 || genres[0] != "Jazz" {
		t.Errorf("genres = %v", got["genres"])
	}

	if rec := env.do(t, http.MethodGet, "/albums/random?genre=polka", "", ""); rec.Code != http.StatusNotFound {
		t.Errorf("missing genre status = %d, want 404", rec.Code)
	}
}

func TestSettings(t *testing.T) {
	env := newTestEnv(t, "")

	for _, body := range []string{"", "{}", `{"allowed":"yes"}`, `{"allowed":true,"extra":1}`} {
		if rec := env.do(t, http.MethodPut, "/me/fetching", body, "alice"); rec.Code != http.StatusBadRequest {
			t.Errorf("PUT /me/fetching %q status = %d, want 400", body, rec.Code)
		}
	}
	if rec := env.do(t, http.MethodPut, "/me/fetching", `{"allowed":true}`, "alice"); rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if !env.discovery.users["alice"].HasAllowedFetching {
		t.Error("fetching should be allowed")
	}

	if rec := env.do(t, http.MethodPut, "/me/description", `{"description":"digger"}`, "alice"); rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}
	long := `{"description":"` + strings.Repeat("x", discover.MaxDescriptionLength+1) + `"}`
	if rec := env.do(t, http.MethodPut, "/me/description", long, "alice"); rec.Code != http.StatusBadRequest {
		t.Errorf("long description status = %d, want 400", rec.Code)
	}
}

func TestLogout(t *testing.T) {
	env := newTestEnv(t, "")
	s, _ := env.sessions.Create(context.Background(), "alice")

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: s.ID})
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}
	if env.sessions.Get(context.Background(), s.ID) != nil {
		t.Error("session should be deleted")
	}
}

// memSessionRepo keeps sessions in a map. Expiry is left to DBSessionStore.
type memSessionRepo struct {
	mu   sync.Mutex
	rows map[string]db.Session
}

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{rows: make(map[string]db.Session)}
}

func (m *memSessionRepo) Create(_ context.Context, s *db.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[s.ID] = *s
	return nil
}

func (m *memSessionRepo) Get(_ context.Context, id string) (*db.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.rows[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	return &s, nil
}

func (m *memSessionRepo) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, id)
	return nil
}

func TestDBSessionStore(t *testing.T) {
	repo := newMemSessionRepo()
	store := NewDBSessionStore(repo)
	ctx := context.Background()

	s, err := store.Create(ctx, "alice")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if len(s.ID) != 64 || !s.ExpiresAt.After(s.CreatedAt) {
		t.Errorf("session = %+v", s)
	}

	got := store.Get(ctx, s.ID)
	if got == nil || got.UserID != "alice" {
		t.Fatalf("Get() = %+v", got)
	}

	store.Delete(ctx, s.ID)
	if store.Get(ctx, s.ID) != nil {
		t.Error("session should be gone after Delete")
	}
}

func TestDBSessionStore_Expiry(t *testing.T) {
	repo := newMemSessionRepo()
	store := NewDBSessionStore(repo)
	now := time.Now()
	repo.rows["old"] = db.Session{ID: "old", UserID: "alice", CreatedAt: now.Add(-8 * 24 * time.Hour), ExpiresAt: now.Add(-time.Minute)}

	if store.Get(context.Background(), "old") != nil {
		t.Error("expired session should not be returned")
	}
}
