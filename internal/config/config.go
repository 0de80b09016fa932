// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for tutorhub. It supports a four-layer
// override chain (defaults -> config file -> environment -> CLI flags).
package config

import "time"

// Config is the top-level configuration structure parsed from a TOML file.
// Every section is optional; omitted keys keep their defaults because the
// file is decoded on top of DefaultConfig().
type Config struct {
	Autosave     AutosaveConfig     `toml:"autosave"`
	Remote       RemoteConfig       `toml:"remote"`
	Connectivity ConnectivityConfig `toml:"connectivity"`
	Logging      LoggingConfig      `toml:"logging"`
	Store        StoreConfig        `toml:"store"`
}

// AutosaveConfig controls the draft autosave timing. Durations are Go
// duration strings ("900ms", "2s").
type AutosaveConfig struct {
	Debounce      string `toml:"debounce"`
	Throttle      string `toml:"throttle"`
	StatusDisplay string `toml:"status_display"`
}

// RemoteConfig describes the hosted persistence API. The REST surface is
// PostgREST-shaped: rows live under /rest/v1/<table>.
type RemoteConfig struct {
	BaseURL        string `toml:"base_url"`
	Table          string `toml:"table"`
	APIKey         string `toml:"api_key"`
	AccessToken    string `toml:"access_token"`
	HealthPath     string `toml:"health_path"`
	RealtimePath   string `toml:"realtime_path"`
	ConnectTimeout string `toml:"connect_timeout"`
	DataTimeout    string `toml:"data_timeout"`
	UserAgent      string `toml:"user_agent"`
}

// ConnectivityConfig selects where the online/offline signal comes from.
type ConnectivityConfig struct {
	Mode          string `toml:"mode"`
	ProbeInterval string `toml:"probe_interval"`
}

// LoggingConfig controls log output behavior.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
}

// StoreConfig locates the local fallback database.
type StoreConfig struct {
	Path string `toml:"path"`
}

// Connectivity modes.
const (
	ConnectivityProbe    = "probe"
	ConnectivityRealtime = "realtime"
	ConnectivityAlways   = "always"
)

// CLIOverrides holds values from CLI flags that override config file and
// environment settings. Pointer fields distinguish "not specified" (nil)
// from "explicitly set to zero value".
type CLIOverrides struct {
	ConfigPath string  // --config flag (empty = use default)
	StorePath  *string // --store flag
	OwnerID    *string // --owner flag
	Offline    *bool   // --offline flag forces ConnectivityAlways off
}

// Resolved is the effective configuration after all override layers, with
// durations already parsed.
type Resolved struct {
	Config

	ConfigPath string
	OwnerID    string // empty means "use the saved token's user"
	TokenPath  string
	Offline    bool

	DebounceDelay  time.Duration
	ThrottleDelay  time.Duration
	StatusDisplay  time.Duration
	ProbeEvery     time.Duration
	ConnectTimeout time.Duration
	DataTimeout    time.Duration
}
