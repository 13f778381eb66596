package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"strings"
	"sync"

	"golang.org/x/text/language"

	"github.com/MimeLyc/caption-sync/internal/playback"
	"github.com/MimeLyc/caption-sync/pkg/file"
	"github.com/MimeLyc/caption-sync/pkg/icron"
	"github.com/MimeLyc/caption-sync/pkg/log"
)

// RuntimeSettings are the editor preferences the host UI may change while
// the server runs. They are kept in a JSON file next to the database.
type RuntimeSettings struct {
	Locale       string  `json:"locale"`
	AutosaveCron string  `json:"autosave_cron"`
	Volume       float64 `json:"volume"`
	Rate         float64 `json:"rate"`
}

// Validate reports every invalid field at once.
func (s RuntimeSettings) Validate() error {
	var errs []error
	if strings.TrimSpace(s.Locale) == "" {
		errs = append(errs, errors.New("locale is required"))
	} else if _, err := language.Parse(s.Locale); err != nil {
		errs = append(errs, fmt.Errorf("invalid locale: %w", err))
	}
	if strings.TrimSpace(s.AutosaveCron) == "" {
		errs = append(errs, errors.New("autosave_cron is required"))
	} else if err := icron.Validate(s.AutosaveCron); err != nil {
		errs = append(errs, fmt.Errorf("invalid autosave_cron: %w", err))
	}
	if math.IsNaN(s.Volume) || s.Volume < 0 || s.Volume > 1 {
		errs = append(errs, errors.New("volume must be between 0 and 1"))
	}
	if math.IsNaN(s.Rate) || s.Rate < playback.MinRate || s.Rate > playback.MaxRate {
		errs = append(errs, fmt.Errorf("rate must be between %v and %v", playback.MinRate, playback.MaxRate))
	}
	return errors.Join(errs...)
}

// withDefaults fills the fields an older settings file may lack. Volume
// is left alone because zero means muted.
func (s RuntimeSettings) withDefaults(d RuntimeSettings) RuntimeSettings {
	if strings.TrimSpace(s.Locale) == "" {
		s.Locale = d.Locale
	}
	if strings.TrimSpace(s.AutosaveCron) == "" {
		s.AutosaveCron = d.AutosaveCron
	}
	if s.Rate == 0 {
		s.Rate = d.Rate
	}
	return s
}

// RuntimeSettings returns the preferences implied by the static config.
func (c *Config) RuntimeSettings() RuntimeSettings {
	return RuntimeSettings{
		Locale:       c.Locale.Default,
		AutosaveCron: c.Autosave.CronExpr,
		Volume:       1,
		Rate:         1,
	}
}

// WithRuntimeSettings copies the saved locale and autosave schedule into
// the static config.
func WithRuntimeSettings(settings RuntimeSettings) Option {
	return func(c *Config) {
		if _, err := language.Parse(settings.Locale); err == nil {
			c.Locale.Default = settings.Locale
		}
		if icron.Validate(settings.AutosaveCron) == nil {
			c.Autosave.CronExpr = settings.AutosaveCron
		}
	}
}

func LoadRuntimeSettingsFile(path string) (RuntimeSettings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RuntimeSettings{}, err
	}
	var settings RuntimeSettings
	if err := json.Unmarshal(data, &settings); err != nil {
		return RuntimeSettings{}, fmt.Errorf("invalid settings file %s: %w", path, err)
	}
	return settings, nil
}

func WriteRuntimeSettingsFile(path string, settings RuntimeSettings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	content, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return err
	}
	return file.WriteAtomic(path, append(content, '\n'), 0o600)
}

// RuntimeSettingsStore serves the current preferences and writes every
// accepted change through to its file.
type RuntimeSettingsStore struct {
	path string

	mu      sync.RWMutex
	current RuntimeSettings
}

// OpenRuntimeSettingsStore loads path on top of defaults. A missing file
// keeps the defaults; an unreadable or invalid one is logged and ignored
// so a bad edit never prevents startup.
func OpenRuntimeSettingsStore(path string, defaults RuntimeSettings) (*RuntimeSettingsStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("settings file path is required")
	}
	if err := defaults.Validate(); err != nil {
		return nil, fmt.Errorf("default settings: %w", err)
	}

	current := defaults
	saved, err := LoadRuntimeSettingsFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		log.Warn("Ignoring settings file: %v", err)
	default:
		saved = saved.withDefaults(defaults)
		if verr := saved.Validate(); verr != nil {
			log.Warn("Ignoring settings file %s: %v", path, verr)
		} else {
			current = saved
		}
	}
	return &RuntimeSettingsStore{path: path, current: current}, nil
}

// Current returns the preferences in effect.
func (s *RuntimeSettingsStore) Current() RuntimeSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

func (s *RuntimeSettingsStore) GetRuntimeSettings() (RuntimeSettings, error) {
	return s.Current(), nil
}

// UpdateRuntimeSettings validates next, writes it and makes it current.
// A rejected update leaves both the file and the current value untouched.
func (s *RuntimeSettingsStore) UpdateRuntimeSettings(next RuntimeSettings) (RuntimeSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := WriteRuntimeSettingsFile(s.path, next); err != nil {
		return RuntimeSettings{}, err
	}
	s.current = next
	return next, nil
}
