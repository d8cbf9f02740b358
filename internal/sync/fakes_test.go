package sync

import (
	"context"
	"sort"
	"time"

	"github.com/justestif/digster/internal/db"
	"github.com/justestif/digster/internal/palette"
	"github.com/justestif/digster/internal/spotify"
	"github.com/justestif/digster/internal/tags"
)

// fakeCatalog serves canned catalog data and records batch sizes.
type fakeCatalog struct {
	saved    []spotify.SavedAlbum
	recent   []spotify.RecentlyPlayedPage
	tracks   map[string]spotify.Track
	albums   map[string]spotify.Album
	artists  map[string]spotify.Artist
	features map[string]spotify.AudioFeatures

	// err is returned by every call once set.
	err error
	// refreshTo simulates the client refreshing the access token on the first call.
	refreshTo string
	// rotateTo is the refresh token handed back with that refresh, if any.
	rotateTo string

	pageCalls  int
	batchSizes map[string][]int
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		tracks:     make(map[string]spotify.Track),
		albums:     make(map[string]spotify.Album),
		artists:    make(map[string]spotify.Artist),
		features:   make(map[string]spotify.AudioFeatures),
		batchSizes: make(map[string][]int),
	}
}

func (f *fakeCatalog) refresh(creds *spotify.Credentials) {
	if f.refreshTo != "" {
		creds.AccessToken = f.refreshTo
	}
	if f.rotateTo != "" {
		creds.RefreshToken = f.rotateTo
	}
}

func (f *fakeCatalog) SavedAlbums(_ context.Context, creds *spotify.Credentials, limit, offset int) ([]spotify.SavedAlbum, int, error) {
	f.pageCalls++
	f.refresh(creds)
	if f.err != nil {
		return nil, 0, f.err
	}
	if offset >= len(f.saved) {
		return nil, len(f.saved), nil
	}
	end := min(offset+limit, len(f.saved))
	return f.saved[offset:end], len(f.saved), nil
}

func (f *fakeCatalog) RecentlyPlayed(_ context.Context, _ *spotify.Credentials, next string) (*spotify.RecentlyPlayedPage, error) {
	if f.err != nil {
		return nil, f.err
	}
	i := 0
	if next != "" {
		for j, p := range f.recent {
			if p.Next == next {
				i = j + 1
			}
		}
	}
	if i >= len(f.recent) {
		return &spotify.RecentlyPlayedPage{}, nil
	}
	page := f.recent[i]
	return &page, nil
}

func lookup[T any](f *fakeCatalog, kind string, m map[string]T, ids []string) []T {
	f.batchSizes[kind] = append(f.batchSizes[kind], len(ids))
	var out []T
	for _, id := range ids {
		if v, ok := m[id]; ok {
			out = append(out, v)
		}
	}
	return out
}

func (f *fakeCatalog) Tracks(_ context.Context, _ *spotify.Credentials, ids []string) ([]spotify.Track, error) {
	if f.err != nil {
		return nil, f.err
	}
	return lookup(f, "tracks", f.tracks, ids), nil
}

func (f *fakeCatalog) AudioFeatures(_ context.Context, _ *spotify.Credentials, ids []string) ([]spotify.AudioFeatures, error) {
	if f.err != nil {
		return nil, f.err
	}
	return lookup(f, "features", f.features, ids), nil
}

func (f *fakeCatalog) Albums(_ context.Context, _ *spotify.Credentials, ids []string) ([]spotify.Album, error) {
	if f.err != nil {
		return nil, f.err
	}
	return lookup(f, "albums", f.albums, ids), nil
}

func (f *fakeCatalog) Artists(_ context.Context, _ *spotify.Credentials, ids []string) ([]spotify.Artist, error) {
	if f.err != nil {
		return nil, f.err
	}
	return lookup(f, "artists", f.artists, ids), nil
}

type libraryKey struct {
	userID  string
	albumID int64
}

type listenKey struct {
	userID  string
	trackID string
	at      time.Time
}

// memStore implements every store interface over maps with the same
// insert-if-absent semantics as the SQL.
type memStore struct {
	users   map[string]*db.User
	artists map[string]*db.Artist
	albums  map[string]*db.Album
	tracks  map[string]*db.Track
	listens map[listenKey]bool
	library map[libraryKey]*time.Time
	nextID  int64

	tokenUpdates []string
}

func newMemStore() *memStore {
	return &memStore{
		users:   make(map[string]*db.User),
		artists: make(map[string]*db.Artist),
		albums:  make(map[string]*db.Album),
		tracks:  make(map[string]*db.Track),
		listens: make(map[listenKey]bool),
		library: make(map[libraryKey]*time.Time),
	}
}

func (m *memStore) stores() Stores {
	return Stores{
		Users:   (*memUsers)(m),
		Artists: (*memArtists)(m),
		Albums:  (*memAlbums)(m),
		Tracks:  (*memTracks)(m),
		Listens: (*memListens)(m),
		Library: (*memLibrary)(m),
	}
}

func (m *memStore) id() int64 {
	m.nextID++
	return m.nextID
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

type memUsers memStore

func (m *memUsers) Get(_ context.Context, id string) (*db.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memUsers) UpdateTokens(_ context.Context, id, access, refresh string) error {
	m.users[id].AccessToken = access
	m.users[id].RefreshToken = refresh
	m.tokenUpdates = append(m.tokenUpdates, access)
	return nil
}

type memArtists memStore

func (m *memArtists) GetOrCreate(_ context.Context, spotifyID, name string) (int64, error) {
	if a, ok := m.artists[spotifyID]; ok {
		return a.ID, nil
	}
	a := &db.Artist{ID: (*memStore)(m).id(), SpotifyID: spotifyID, Name: name}
	m.artists[spotifyID] = a
	return a.ID, nil
}

func (m *memArtists) InsertBatch(_ context.Context, artists []db.Artist) error {
	for _, a := range artists {
		if _, ok := m.artists[a.SpotifyID]; ok {
			continue
		}
		a.ID = (*memStore)(m).id()
		m.artists[a.SpotifyID] = &a
	}
	return nil
}

func (m *memArtists) Missing(context.Context) ([]string, error) {
	set := make(map[string]bool)
	for _, al := range m.albums {
		if _, ok := m.artists[al.ArtistSpotifyID]; al.ArtistSpotifyID != "" && !ok {
			set[al.ArtistSpotifyID] = true
		}
	}
	return sortedKeys(set), nil
}

type memAlbums memStore

func (m *memAlbums) GetOrCreate(_ context.Context, album *db.Album) (int64, error) {
	if a, ok := m.albums[album.SpotifyID]; ok {
		return a.ID, nil
	}
	cp := *album
	cp.ID = (*memStore)(m).id()
	m.albums[album.SpotifyID] = &cp
	return cp.ID, nil
}

func (m *memAlbums) InsertBatch(_ context.Context, albums []db.Album) error {
	for _, a := range albums {
		if _, ok := m.albums[a.SpotifyID]; ok {
			continue
		}
		a.ID = (*memStore)(m).id()
		m.albums[a.SpotifyID] = &a
	}
	return nil
}

func (m *memAlbums) Missing(context.Context) ([]string, error) {
	set := make(map[string]bool)
	for _, t := range m.tracks {
		if _, ok := m.albums[t.AlbumSpotifyID]; t.AlbumSpotifyID != "" && !ok {
			set[t.AlbumSpotifyID] = true
		}
	}
	return sortedKeys(set), nil
}

func (m *memAlbums) LinkArtists(context.Context) (int64, error) {
	var n int64
	for _, al := range m.albums {
		if al.ArtistID != nil {
			continue
		}
		if ar, ok := m.artists[al.ArtistSpotifyID]; ok {
			id := ar.ID
			al.ArtistID = &id
			n++
		}
	}
	return n, nil
}

type memTracks memStore

func (m *memTracks) InsertBatch(_ context.Context, tracks []db.Track) error {
	for _, t := range tracks {
		if _, ok := m.tracks[t.SpotifyID]; ok {
			continue
		}
		t.ID = (*memStore)(m).id()
		m.tracks[t.SpotifyID] = &t
	}
	return nil
}

func (m *memTracks) Missing(context.Context) ([]string, error) {
	set := make(map[string]bool)
	for k := range m.listens {
		if _, ok := m.tracks[k.trackID]; !ok {
			set[k.trackID] = true
		}
	}
	return sortedKeys(set), nil
}

type memListens memStore

func (m *memListens) InsertBatch(_ context.Context, userID string, listens []db.Listen) error {
	for _, l := range listens {
		m.listens[listenKey{userID, l.TrackSpotifyID, l.ListenedAt}] = true
	}
	return nil
}

type memLibrary memStore

func (m *memLibrary) Link(_ context.Context, userID string, albumID int64, addedAt *time.Time) error {
	k := libraryKey{userID, albumID}
	if _, ok := m.library[k]; !ok {
		m.library[k] = addedAt
	}
	return nil
}

// countingPasses records that the enrichment passes ran.
type countingPasses struct {
	tagRuns, colorRuns int
	tagErr             error
}

func (p *countingPasses) tagPass() TagPass     { return tagFunc(p.runTags) }
func (p *countingPasses) colorPass() ColorPass { return colorFunc(p.runColors) }

func (p *countingPasses) runTags(context.Context) (tags.Result, error) {
	p.tagRuns++
	return tags.Result{Albums: 1}, p.tagErr
}

func (p *countingPasses) runColors(context.Context) (palette.Result, error) {
	p.colorRuns++
	return palette.Result{Albums: 1}, nil
}

type tagFunc func(context.Context) (tags.Result, error)

func (f tagFunc) Backfill(ctx context.Context) (tags.Result, error) { return f(ctx) }

type colorFunc func(context.Context) (palette.Result, error)

func (f colorFunc) Backfill(ctx context.Context) (palette.Result, error) { return f(ctx) }
