package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Load reads and parses a TOML config file, validates it, and returns the
// resulting Config. Unknown keys are treated as fatal errors with "did you
// mean?" suggestions.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns
// a Config populated with all default values.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// Resolve loads configuration and applies the four-layer override chain:
// defaults -> config file -> environment variables -> CLI flags.
func Resolve(env EnvOverrides, cli CLIOverrides) (*Resolved, error) {
	// 1. Config path: CLI > env > default
	cfgPath := DefaultConfigPath()
	if env.ConfigPath != "" {
		cfgPath = env.ConfigPath
	}

	if cli.ConfigPath != "" {
		cfgPath = cli.ConfigPath
	}

	// 2. Load config file (defaults if absent)
	cfg, err := LoadOrDefault(cfgPath)
	if err != nil {
		return nil, err
	}

	// 3. Environment
	if env.BaseURL != "" {
		cfg.Remote.BaseURL = env.BaseURL
	}

	if env.APIKey != "" {
		cfg.Remote.APIKey = env.APIKey
	}

	if env.AccessToken != "" {
		cfg.Remote.AccessToken = env.AccessToken
	}

	if cfg.Store.Path == "" {
		cfg.Store.Path = filepath.Join(DefaultDataDir(), storeFileName)
	}

	// 4. CLI flags
	if cli.StorePath != nil {
		cfg.Store.Path = *cli.StorePath
	}

	resolved := &Resolved{
		Config:     *cfg,
		ConfigPath: cfgPath,
		OwnerID:    env.OwnerID,
		TokenPath:  DefaultTokenPath(),
	}

	if cli.OwnerID != nil {
		resolved.OwnerID = *cli.OwnerID
	}

	if cli.Offline != nil {
		resolved.Offline = *cli.Offline
	}

	if err := resolved.parseDurations(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	if err := ValidateResolved(resolved); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return resolved, nil
}

// parseDurations fills the typed duration fields. Values were already
// checked by Validate for file-sourced configs; this also covers defaults.
func (r *Resolved) parseDurations() error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"autosave.debounce", r.Autosave.Debounce, &r.DebounceDelay},
		{"autosave.throttle", r.Autosave.Throttle, &r.ThrottleDelay},
		{"autosave.status_display", r.Autosave.StatusDisplay, &r.StatusDisplay},
		{"connectivity.probe_interval", r.Connectivity.ProbeInterval, &r.ProbeEvery},
		{"remote.connect_timeout", r.Remote.ConnectTimeout, &r.ConnectTimeout},
		{"remote.data_timeout", r.Remote.DataTimeout, &r.DataTimeout},
	}

	var errs []error

	for _, f := range fields {
		d, err := parseDuration(f.raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", f.name, err))
			continue
		}

		*f.dst = d
	}

	return errors.Join(errs...)
}
