package palette

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/justestif/digster/internal/db"
	"github.com/justestif/digster/internal/logger"
)

type fakeAlbums struct {
	missing []db.AlbumRef
	colors  map[int64][2]string
	stamped map[int64]time.Time
	// setErr fails SetColors for failID, or for every album when failID is 0.
	setErr error
	failID int64
}

func newFakeAlbums(refs ...db.AlbumRef) *fakeAlbums {
	return &fakeAlbums{
		missing: refs,
		colors:  make(map[int64][2]string),
		stamped: make(map[int64]time.Time),
	}
}

func (f *fakeAlbums) MissingColors(context.Context) ([]db.AlbumRef, error) {
	var out []db.AlbumRef
	for _, r := range f.missing {
		if _, ok := f.stamped[r.ID]; !ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeAlbums) SetColors(_ context.Context, id int64, primary, secondary string) error {
	if f.setErr != nil && (f.failID == 0 || f.failID == id) {
		return f.setErr
	}
	f.colors[id] = [2]string{primary, secondary}
	return nil
}

func (f *fakeAlbums) MarkEnriched(_ context.Context, id int64, e db.Enrichment, at time.Time) error {
	if e != db.EnrichColors {
		return errors.New("wrong enrichment")
	}
	f.stamped[id] = at
	return nil
}

// fakeExtractor returns canned palettes per URL; unknown URLs fail.
type fakeExtractor struct {
	palettes map[string][]string
	calls    int
}

func (f *fakeExtractor) Extract(_ context.Context, url string) ([]string, error) {
	f.calls++
	if p, ok := f.palettes[url]; ok {
		return p, nil
	}
	return nil, errors.New("404")
}

func TestBackfill(t *testing.T) {
	albums := newFakeAlbums(
		db.AlbumRef{ID: 1, ImageURL: "https://img/1"},
		db.AlbumRef{ID: 2, ImageURL: "https://img/broken"},
		db.AlbumRef{ID: 3, ImageURL: "https://img/solid"},
	)
	extractor := &fakeExtractor{palettes: map[string][]string{
		"https://img/1":     {"#C86432", "#0000C8"},
		"https://img/solid": {"#969696"},
	}}
	svc := NewService(albums, extractor, logger.NewNop())
	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	res, err := svc.Backfill(context.Background())
	if err != nil {
		t.Fatalf("Backfill() error = %v", err)
	}
	if res.Albums != 3 || res.Fallbacks != 1 {
		t.Errorf("result = %+v, want 3 albums, 1 fallback", res)
	}

	want := map[int64][2]string{
		1: {"#C86432", "#0000C8"},
		2: {"#FFFFFF", "#000000"},
		3: {"#969696", "#969696"},
	}
	for id, w := range want {
		if albums.colors[id] != w {
			t.Errorf("album %d colors = %v, want %v", id, albums.colors[id], w)
		}
		if !albums.stamped[id].Equal(fixed) {
			t.Errorf("album %d stamped at %v, want %v", id, albums.stamped[id], fixed)
		}
	}

	// A second pass has nothing left to do.
	extractor.calls = 0
	res, err = svc.Backfill(context.Background())
	if err != nil {
		t.Fatalf("second Backfill() error = %v", err)
	}
	if res.Albums != 0 || extractor.calls != 0 {
		t.Errorf("second pass touched %d albums with %d extractions", res.Albums, extractor.calls)
	}
}

func TestBackfill_StoreErrorSkipsAlbum(t *testing.T) {
	albums := newFakeAlbums(db.AlbumRef{ID: 1, ImageURL: "x"}, db.AlbumRef{ID: 2, ImageURL: "y"})
	albums.setErr = errors.New("db down")
	albums.failID = 1
	svc := NewService(albums, &fakeExtractor{}, logger.NewNop())

	res, err := svc.Backfill(context.Background())
	if err != nil {
		t.Fatalf("Backfill() error = %v", err)
	}
	if res.Failed != 1 || res.Albums != 1 {
		t.Errorf("result = %+v, want 1 failed and 1 stamped", res)
	}
	if _, ok := albums.stamped[1]; ok {
		t.Error("album 1 should not be stamped when colors were not stored")
	}
	if _, ok := albums.stamped[2]; !ok {
		t.Error("album 2 should be stamped")
	}
}

func TestBackfill_Cancelled(t *testing.T) {
	albums := newFakeAlbums(db.AlbumRef{ID: 1}, db.AlbumRef{ID: 2})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	svc := NewService(albums, &fakeExtractor{}, logger.NewNop())
	if _, err := svc.Backfill(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Backfill() error = %v, want context.Canceled", err)
	}
	if len(albums.stamped) != 0 {
		t.Errorf("stamped %d albums after cancellation", len(albums.stamped))
	}
}
