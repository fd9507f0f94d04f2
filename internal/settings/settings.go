package settings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite3 driver

	"iptv-bridge/internal/hwaccel"
	"iptv-bridge/internal/logging"
	"iptv-bridge/internal/plan"
)

// Default timeout for store operations
const defaultTimeout = 5 * time.Second

// Setting keys.
const (
	KeyQuality        = "quality"
	KeyMaxResolution  = "maxResolution"
	KeyHWEncoder      = "hwEncoder"
	KeyAudioMixPreset = "audioMixPreset"
)

// ErrUnknownKey is returned for reads or writes of keys the store does
// not manage.
var ErrUnknownKey = errors.New("unknown setting key")

// defaults are the values served until an explicit write overrides them.
var defaults = map[string]string{
	KeyQuality:        plan.QualityMedium,
	KeyMaxResolution:  "1080p",
	KeyHWEncoder:      "auto",
	KeyAudioMixPreset: plan.AudioAuto,
}

// validValues constrains writes per key.
var validValues = map[string]map[string]bool{
	KeyQuality: {
		plan.QualityLow:    true,
		plan.QualityMedium: true,
		plan.QualityHigh:   true,
	},
	KeyMaxResolution: {
		"480p":  true,
		"720p":  true,
		"1080p": true,
		"4k":    true,
	},
	KeyHWEncoder: {
		"auto":                  true,
		hwaccel.BackendSoftware: true,
		hwaccel.BackendNvenc:    true,
		hwaccel.BackendVaapi:    true,
		hwaccel.BackendQsv:      true,
		hwaccel.BackendAmf:      true,
	},
	KeyAudioMixPreset: {
		plan.AudioAuto:        true,
		plan.AudioPassthrough: true,
		plan.AudioITU:         true,
		plan.AudioNight:       true,
		plan.AudioCinematic:   true,
	},
}

// Store persists transcoding defaults across restarts. Reads fall back
// to built-in defaults for keys that were never written.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New opens (or creates) the settings database at dbPath. The parent
// directory must already exist and be writable; startup.LoadConfig
// validates that before this runs.
func New(ctx context.Context, dbPath string) (*Store, error) {
	logging.Info("Settings store path: %s", dbPath)

	// WAL with a busy timeout avoids "database is locked" errors when a
	// settings write races the readiness probe.
	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open settings database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close settings database after ping failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to connect to settings database: %w", err)
	}

	s := &Store{db: db}
	if err := s.initialize(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close settings database after initialization failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to initialize settings schema: %w", err)
	}

	return s, nil
}

func (s *Store) initialize(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
	);`

	initCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err := s.db.ExecContext(initCtx, schema)
	return err
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the store is reachable. Used by the readiness probe.
func (s *Store) Ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	return s.db.PingContext(pingCtx)
}

// Get returns the stored value for key, or its default when unset.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	fallback, ok := defaults[key]
	if !ok {
		return "", ErrUnknownKey
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	queryCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var value string
	err := s.db.QueryRowContext(queryCtx,
		"SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return fallback, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read setting %q: %w", key, err)
	}

	// A stale value from an older release falls back to the default
	// rather than poisoning plan construction.
	if !validValues[key][value] {
		logging.Warn("Stored setting %s=%q is no longer valid, using default %q", key, value, fallback)
		return fallback, nil
	}
	return value, nil
}

// Validate checks a key/value pair without writing it.
func Validate(key, value string) error {
	allowed, ok := validValues[key]
	if !ok {
		return ErrUnknownKey
	}
	if !allowed[value] {
		return fmt.Errorf("invalid value %q for setting %q", value, key)
	}
	return nil
}

// Set validates and persists a setting.
func (s *Store) Set(ctx context.Context, key, value string) error {
	if err := Validate(key, value); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	execCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err := s.db.ExecContext(execCtx, `
		INSERT INTO settings (key, value, updated_at)
		VALUES (?, ?, strftime('%s', 'now'))
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at`,
		key, value)
	if err != nil {
		return fmt.Errorf("failed to write setting %q: %w", key, err)
	}

	logging.Info("Setting updated: %s=%s", key, value)
	return nil
}

// All returns every managed setting with defaults applied.
func (s *Store) All(ctx context.Context) (map[string]string, error) {
	out := make(map[string]string, len(defaults))
	for key := range defaults {
		value, err := s.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		out[key] = value
	}
	return out, nil
}

// PlanOptions assembles the stored defaults into plan options. Request
// fields the caller already set are left untouched.
func (s *Store) PlanOptions(ctx context.Context, opts *plan.Options) error {
	if opts.Quality == "" {
		value, err := s.Get(ctx, KeyQuality)
		if err != nil {
			return err
		}
		opts.Quality = value
	}
	if opts.MaxResolution == "" {
		value, err := s.Get(ctx, KeyMaxResolution)
		if err != nil {
			return err
		}
		opts.MaxResolution = value
	}
	if opts.HWEncoder == "" {
		value, err := s.Get(ctx, KeyHWEncoder)
		if err != nil {
			return err
		}
		opts.HWEncoder = value
	}
	if opts.AudioMixPreset == "" {
		value, err := s.Get(ctx, KeyAudioMixPreset)
		if err != nil {
			return err
		}
		opts.AudioMixPreset = value
	}
	return nil
}
