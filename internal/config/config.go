package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"eventtimers/internal/model"
	"eventtimers/internal/notify"
)

var (
	ErrEmptyPath = errors.New("config path is empty")
	ErrNilConfig = errors.New("config is nil")
)

const (
	defaultListen        = "127.0.0.1:8080"
	defaultTimezone      = "UTC"
	defaultLogLevel      = "info"
	defaultCatalogPath   = "catalog.json"
	defaultCatalogCron   = "0 */6 * * *"
	defaultFrameMillis   = 100
	defaultToastSeconds  = 5
	defaultMaxToasts     = 3
	defaultMaxUpcoming   = 5
	defaultHorizonHours  = 24
	minFrameMillis       = 10
	maxToastDurationSecs = 120
)

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// CatalogConfig locates the track document and its update source.
type CatalogConfig struct {
	// Path is the local copy of the document (JSON or YAML).
	Path string `yaml:"path" json:"path"`

	// URL, if set, is polled for a newer document. Empty disables updates.
	URL string `yaml:"url" json:"url"`

	// Refresh is a standard 5-field cron spec (e.g. "0 */6 * * *") for the
	// update check and local reload.
	Refresh string `yaml:"refresh" json:"refresh"`
}

// NotificationConfig mirrors the reminder and toast settings panel.
type NotificationConfig struct {
	ToastsEnabled        bool             `yaml:"toasts_enabled" json:"toasts_enabled"`
	ToastDurationSeconds float64          `yaml:"toast_duration_seconds" json:"toast_duration_seconds"`
	MaxVisibleToasts     int              `yaml:"max_visible_toasts" json:"max_visible_toasts"`
	UpcomingEnabled      bool             `yaml:"upcoming_enabled" json:"upcoming_enabled"`
	MaxUpcomingEvents    int              `yaml:"max_upcoming_events" json:"max_upcoming_events"`
	Reminders            []model.Reminder `yaml:"reminders" json:"reminders"`
}

// Settings converts the panel values into scheduler limits. A disabled
// upcoming panel projects nothing.
func (n NotificationConfig) Settings() notify.Settings {
	maxUpcoming := n.MaxUpcomingEvents
	if !n.UpcomingEnabled {
		maxUpcoming = 0
	}
	return notify.Settings{
		ToastsEnabled:    n.ToastsEnabled,
		ToastDuration:    time.Duration(n.ToastDurationSeconds * float64(time.Second)),
		MaxVisibleToasts: n.MaxVisibleToasts,
		MaxUpcoming:      maxUpcoming,
	}
}

// SubscriptionConfig stores event ids in their "Track/Event" form.
type SubscriptionConfig struct {
	Persistent []string `yaml:"persistent" json:"persistent"`
	OneShot    []string `yaml:"one_shot" json:"one_shot"`
}

// Set parses both lists. Invalid ids are reported together.
func (s SubscriptionConfig) Set() (model.Subscriptions, error) {
	out := model.NewSubscriptions()
	var errs []error
	for _, raw := range s.Persistent {
		id, err := model.ParseEventID(raw)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out.Persistent[id] = struct{}{}
	}
	for _, raw := range s.OneShot {
		id, err := model.ParseEventID(raw)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if _, dup := out.Persistent[id]; dup {
			continue
		}
		out.OneShot[id] = struct{}{}
	}
	return out, errors.Join(errs...)
}

// SubscriptionsFrom is the inverse of Set.
func SubscriptionsFrom(persistent, oneShot []model.EventID) SubscriptionConfig {
	out := SubscriptionConfig{
		Persistent: make([]string, 0, len(persistent)),
		OneShot:    make([]string, 0, len(oneShot)),
	}
	for _, id := range persistent {
		out.Persistent = append(out.Persistent, id.String())
	}
	for _, id := range oneShot {
		out.OneShot = append(out.OneShot, id.String())
	}
	return out
}

// EventOverride replaces selected fields of a catalog event. Nil leaves the
// catalog value in place.
type EventOverride struct {
	Enabled     *bool        `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	Color       *model.Color `yaml:"color,omitempty" json:"color,omitempty"`
	StartOffset *int64       `yaml:"start_offset,omitempty" json:"start_offset,omitempty"`
	Duration    *int64       `yaml:"duration,omitempty" json:"duration,omitempty"`
}

// TrackOverride adjusts a catalog track by name.
type TrackOverride struct {
	Visible *bool                    `yaml:"visible,omitempty" json:"visible,omitempty"`
	Height  *float32                 `yaml:"height,omitempty" json:"height,omitempty"`
	Events  map[string]EventOverride `yaml:"events,omitempty" json:"events,omitempty"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA zone used for local day start anchors and
	// display (e.g. "Europe/Berlin").
	Timezone string `yaml:"timezone" json:"timezone"`

	LogLevel string `yaml:"log_level" json:"log_level"`

	// CopyWithEventName prefixes copied location codes with the event name.
	CopyWithEventName bool `yaml:"copy_with_event_name" json:"copy_with_event_name"`

	// FrameMillis is the scheduler tick period of the run loop.
	FrameMillis int `yaml:"frame_ms" json:"frame_ms"`

	// HorizonHours bounds the agenda export and occurrence listing.
	HorizonHours int `yaml:"horizon_hours" json:"horizon_hours"`

	Catalog       CatalogConfig      `yaml:"catalog" json:"catalog"`
	Notifications NotificationConfig `yaml:"notifications" json:"notifications"`
	Subscriptions SubscriptionConfig `yaml:"subscriptions" json:"subscriptions"`

	// Tracks holds per-track overrides keyed by track name.
	Tracks map[string]TrackOverride `yaml:"tracks,omitempty" json:"tracks,omitempty"`

	// CustomTracks are user-defined tracks appended after the catalog.
	CustomTracks []model.Track `yaml:"custom_tracks,omitempty" json:"custom_tracks,omitempty"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all
	// endpoints except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultReminders is the reminder list written on first run.
func DefaultReminders() []model.Reminder {
	return []model.Reminder{
		{Name: "Starting soon", MinutesBefore: 5, Color: model.Color{R: 1, G: 0.8, B: 0.2, A: 1}},
		{Name: "Active", MinutesBefore: 0, Color: model.Color{R: 0.3, G: 0.9, B: 0.4, A: 1}, OngoingIntervalMinutes: 5},
	}
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:       defaultListen,
		Timezone:     defaultTimezone,
		LogLevel:     defaultLogLevel,
		FrameMillis:  defaultFrameMillis,
		HorizonHours: defaultHorizonHours,
		Catalog: CatalogConfig{
			Path:    defaultCatalogPath,
			Refresh: defaultCatalogCron,
		},
		Notifications: NotificationConfig{
			ToastsEnabled:        true,
			ToastDurationSeconds: defaultToastSeconds,
			MaxVisibleToasts:     defaultMaxToasts,
			UpcomingEnabled:      true,
			MaxUpcomingEvents:    defaultMaxUpcoming,
			Reminders:            DefaultReminders(),
		},
		Subscriptions: SubscriptionConfig{
			Persistent: []string{},
			OneShot:    []string{},
		},
		Tracks:    map[string]TrackOverride{},
		BasicAuth: nil,
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
	if c.FrameMillis <= 0 {
		c.FrameMillis = defaultFrameMillis
	}
	if c.FrameMillis < minFrameMillis {
		c.FrameMillis = minFrameMillis
	}
	if c.HorizonHours <= 0 {
		c.HorizonHours = defaultHorizonHours
	}
	if c.Catalog.Path == "" {
		c.Catalog.Path = defaultCatalogPath
	}
	if c.Catalog.Refresh == "" {
		c.Catalog.Refresh = defaultCatalogCron
	}

	n := &c.Notifications
	if n.ToastDurationSeconds <= 0 {
		n.ToastDurationSeconds = defaultToastSeconds
	}
	if n.ToastDurationSeconds > maxToastDurationSecs {
		n.ToastDurationSeconds = maxToastDurationSecs
	}
	if n.MaxVisibleToasts <= 0 {
		n.MaxVisibleToasts = defaultMaxToasts
	}
	if n.MaxUpcomingEvents <= 0 {
		n.MaxUpcomingEvents = defaultMaxUpcoming
	}
	if n.Reminders == nil {
		n.Reminders = DefaultReminders()
	}

	if c.Subscriptions.Persistent == nil {
		c.Subscriptions.Persistent = []string{}
	}
	if c.Subscriptions.OneShot == nil {
		c.Subscriptions.OneShot = []string{}
	}
	if c.Tracks == nil {
		c.Tracks = map[string]TrackOverride{}
	}
}

// Validate reports values Normalize cannot repair.
func (c *Config) Validate() error {
	var errs []error
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("timezone %q: %w", c.Timezone, err))
	}
	if _, err := cron.ParseStandard(c.Catalog.Refresh); err != nil {
		errs = append(errs, fmt.Errorf("catalog.refresh %q: %w", c.Catalog.Refresh, err))
	}
	if _, err := c.Subscriptions.Set(); err != nil {
		errs = append(errs, fmt.Errorf("subscriptions: %w", err))
	}
	for i, r := range c.Notifications.Reminders {
		if r.Name == "" {
			errs = append(errs, fmt.Errorf("notifications.reminders[%d]: name is empty", i))
		}
	}
	for _, t := range c.CustomTracks {
		if t.Name == "" {
			errs = append(errs, errors.New("custom_tracks: track name is empty"))
		}
	}
	return errors.Join(errs...)
}

// Location resolves Timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c *Config) FrameInterval() time.Duration {
	return time.Duration(c.FrameMillis) * time.Millisecond
}

func (c *Config) Horizon() time.Duration {
	return time.Duration(c.HorizonHours) * time.Hour
}

// Load loads configuration from the given YAML path on fsys.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults and validate
func Load(fsys afero.Fs, path string) (*Config, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}

	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(fsys, path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return &cfg, err
	}

	return &cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(fsys afero.Fs, path string, cfg *Config) error {
	if path == "" {
		return ErrEmptyPath
	}
	if cfg == nil {
		return ErrNilConfig
	}

	cfg.Normalize()

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return WriteFileAtomic(fsys, path, data)
}

// WriteFileAtomic writes data to a temp file next to path and renames it
// over path with 0600 permissions.
func WriteFileAtomic(fsys afero.Fs, path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := fsys.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmp, err := afero.TempFile(fsys, dir, ".eventtimers-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
	defer fsys.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}

	// Flush and close before chmod/rename.
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := fsys.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	return fsys.Rename(tmpName, path)
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(fsys afero.Fs, path string) error {
	return Save(fsys, path, c)
}
