package settings

import (
	"context"
	"path/filepath"
	"testing"

	"iptv-bridge/internal/plan"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(context.Background(), filepath.Join(t.TempDir(), "settings.db"))
	if err != nil {
		t.Fatalf("Failed to create settings store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("Failed to close store: %v", err)
		}
	})
	return store
}

func TestGetReturnsDefaults(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	tests := []struct {
		key  string
		want string
	}{
		{KeyQuality, "medium"},
		{KeyMaxResolution, "1080p"},
		{KeyHWEncoder, "auto"},
		{KeyAudioMixPreset, "auto"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got, err := store.Get(ctx, tt.key)
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("Expected default %q, got %q", tt.want, got)
			}
		})
	}
}

func TestSetAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Set(ctx, KeyQuality, "high"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, err := store.Get(ctx, KeyQuality)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != "high" {
		t.Errorf("Expected high, got %q", got)
	}
}

func TestSetOverwrites(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Set(ctx, KeyMaxResolution, "720p"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := store.Set(ctx, KeyMaxResolution, "4k"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, err := store.Get(ctx, KeyMaxResolution)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != "4k" {
		t.Errorf("Expected 4k, got %q", got)
	}
}

func TestSetRejectsInvalidValue(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Set(ctx, KeyQuality, "ultra"); err == nil {
		t.Error("Expected error for invalid quality value")
	}
	if err := store.Set(ctx, KeyHWEncoder, "metal"); err == nil {
		t.Error("Expected error for invalid encoder value")
	}
}

func TestUnknownKey(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Get(ctx, "theme"); err != ErrUnknownKey {
		t.Errorf("Expected ErrUnknownKey, got %v", err)
	}
	if err := store.Set(ctx, "theme", "dark"); err != ErrUnknownKey {
		t.Errorf("Expected ErrUnknownKey, got %v", err)
	}
}

func TestAllAppliesDefaults(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Set(ctx, KeyAudioMixPreset, "night"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	all, err := store.All(ctx)
	if err != nil {
		t.Fatalf("All failed: %v", err)
	}

	if all[KeyAudioMixPreset] != "night" {
		t.Errorf("Expected stored value, got %q", all[KeyAudioMixPreset])
	}
	if all[KeyQuality] != "medium" {
		t.Errorf("Expected default quality, got %q", all[KeyQuality])
	}
	if len(all) != 4 {
		t.Errorf("Expected 4 settings, got %d", len(all))
	}
}

func TestPlanOptionsFillsOnlyUnsetFields(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Set(ctx, KeyQuality, "low"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	opts := plan.Options{MaxResolution: "720p"}
	if err := store.PlanOptions(ctx, &opts); err != nil {
		t.Fatalf("PlanOptions failed: %v", err)
	}

	if opts.Quality != "low" {
		t.Errorf("Expected stored quality, got %q", opts.Quality)
	}
	if opts.MaxResolution != "720p" {
		t.Errorf("Caller-set resolution must be preserved, got %q", opts.MaxResolution)
	}
	if opts.HWEncoder != "auto" {
		t.Errorf("Expected default encoder, got %q", opts.HWEncoder)
	}
	if opts.AudioMixPreset != "auto" {
		t.Errorf("Expected default mix preset, got %q", opts.AudioMixPreset)
	}
}

func TestSettingsSurviveReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "settings.db")
	ctx := context.Background()

	store, err := New(ctx, dbPath)
	if err != nil {
		t.Fatalf("Failed to create settings store: %v", err)
	}
	if err := store.Set(ctx, KeyQuality, "high"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := New(ctx, dbPath)
	if err != nil {
		t.Fatalf("Failed to reopen settings store: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.Get(ctx, KeyQuality)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != "high" {
		t.Errorf("Expected persisted value, got %q", got)
	}
}
