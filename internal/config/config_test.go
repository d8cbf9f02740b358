package config

import (
	"errors"
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost/digster")
	t.Setenv("SPOTIFY_ID", "id")
	t.Setenv("SPOTIFY_SECRET", "secret")
	t.Setenv("DISCOGS_TOKEN", "discogs")
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr error
	}{
		{
			name:    "missing database url",
			env:     map[string]string{"DATABASE_URL": ""},
			wantErr: ErrMissingDatabaseURL,
		},
		{
			name:    "missing spotify id",
			env:     map[string]string{"SPOTIFY_ID": ""},
			wantErr: ErrMissingSpotifyCredentials,
		},
		{
			name:    "whitespace secret",
			env:     map[string]string{"SPOTIFY_SECRET": "   "},
			wantErr: ErrMissingSpotifyCredentials,
		},
		{
			name:    "missing discogs token",
			env:     map[string]string{"DISCOGS_TOKEN": ""},
			wantErr: ErrMissingDiscogsToken,
		},
		{
			name: "all set",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg, err := Load()
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Load() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr == nil && cfg == nil {
				t.Fatal("Load() returned nil config")
			}
		})
	}
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("SYNC_SCHEDULE", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Addr != DefaultAddr {
		t.Errorf("Addr = %q, want %q", cfg.Addr, DefaultAddr)
	}
	if cfg.RedirectURI != DefaultRedirectURI {
		t.Errorf("RedirectURI = %q, want %q", cfg.RedirectURI, DefaultRedirectURI)
	}
	if cfg.RedisQueue != DefaultRedisQueue {
		t.Errorf("RedisQueue = %q, want %q", cfg.RedisQueue, DefaultRedisQueue)
	}
	if cfg.SyncSchedule != 0 {
		t.Errorf("SyncSchedule = %v, want 0", cfg.SyncSchedule)
	}
}

func TestLoad_SyncSchedule(t *testing.T) {
	setRequired(t)

	t.Setenv("SYNC_SCHEDULE", "6h")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.SyncSchedule != 6*time.Hour {
		t.Errorf("SyncSchedule = %v, want 6h", cfg.SyncSchedule)
	}

	t.Setenv("SYNC_SCHEDULE", "soon")
	if _, err := Load(); err == nil {
		t.Error("expected error for unparseable schedule")
	}

	t.Setenv("SYNC_SCHEDULE", "-1h")
	if _, err := Load(); err == nil {
		t.Error("expected error for negative schedule")
	}
}

func TestLoad_CatalogAppToken(t *testing.T) {
	setRequired(t)

	t.Setenv("CATALOG_APP_TOKEN", "true")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.CatalogAppToken {
		t.Error("CatalogAppToken = false, want true")
	}

	t.Setenv("CATALOG_APP_TOKEN", "maybe")
	if _, err := Load(); err == nil {
		t.Error("expected error for unparseable bool")
	}
}
