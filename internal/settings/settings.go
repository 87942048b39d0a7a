package settings

import (
	"context"
	"errors"
	"fmt"

	"github.com/TobiSchelling/AutoPoster/internal/config"
	"github.com/TobiSchelling/AutoPoster/internal/jsonfile"
	"github.com/TobiSchelling/AutoPoster/internal/style"
)

// ErrInvalidSettings marks a settings record that violates its invariants.
var ErrInvalidSettings = errors.New("invalid autopost settings")

// Settings is the persisted autopost record. Only one exists.
type Settings struct {
	Enabled            bool    `json:"enabled"`
	ChatID             *int64  `json:"chat_id"`
	OwnerUserID        *int64  `json:"owner_user_id"`
	IntervalMinutes    int     `json:"interval_minutes"`
	Style              string  `json:"style"`
	LastPostedNewsLink *string `json:"last_posted_news_link"`
	LastRunEpoch       *int64  `json:"last_run_epoch"`
}

// Defaults returns a disabled record with the given interval and style.
func Defaults(intervalMinutes int, styleName string) Settings {
	return Settings{IntervalMinutes: intervalMinutes, Style: styleName}
}

// Validate checks the interval bounds and the enabled invariant.
func (s Settings) Validate() error {
	if s.IntervalMinutes < config.MinIntervalMinutes || s.IntervalMinutes > config.MaxIntervalMinutes {
		return fmt.Errorf("%w: interval must be between %d and %d minutes, got %d",
			ErrInvalidSettings, config.MinIntervalMinutes, config.MaxIntervalMinutes, s.IntervalMinutes)
	}
	if s.Enabled && (s.ChatID == nil || s.OwnerUserID == nil) {
		return fmt.Errorf("%w: enabled autopost requires chat_id and owner_user_id", ErrInvalidSettings)
	}
	return nil
}

// ParsedStyle resolves the stored style name.
func (s Settings) ParsedStyle() (style.Style, error) {
	return style.Parse(s.Style)
}

// LastPostedLink returns the dedup cursor, or "" when nothing was posted yet.
func (s Settings) LastPostedLink() string {
	if s.LastPostedNewsLink == nil {
		return ""
	}
	return *s.LastPostedNewsLink
}

// FileStore keeps the settings record in a JSON file.
type FileStore struct {
	path     string
	defaults Settings
}

// NewFileStore creates a store at path. Reads of a missing file return defaults.
func NewFileStore(path string, defaults Settings) *FileStore {
	return &FileStore{path: path, defaults: defaults}
}

// Path returns the backing file path.
func (s *FileStore) Path() string { return s.path }

// Load reads the record, returning defaults when none has been saved.
func (s *FileStore) Load(_ context.Context) (Settings, error) {
	st := s.defaults
	found, err := jsonfile.Read(s.path, &st)
	if err != nil {
		return Settings{}, fmt.Errorf("loading settings: %w", err)
	}
	if !found {
		return s.defaults, nil
	}
	if err := st.Validate(); err != nil {
		return Settings{}, fmt.Errorf("loading settings from %s: %w", s.path, err)
	}
	return st, nil
}

// Save validates and overwrites the record.
func (s *FileStore) Save(_ context.Context, st Settings) error {
	if err := st.Validate(); err != nil {
		return err
	}
	if err := jsonfile.Write(s.path, st); err != nil {
		return fmt.Errorf("saving settings: %w", err)
	}
	return nil
}
