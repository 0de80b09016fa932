package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// Validation range constants.
const (
	minDebounce       = 100 * time.Millisecond
	maxDebounce       = 30 * time.Second
	minThrottle       = 100 * time.Millisecond
	maxThrottle       = 5 * time.Minute
	minStatusDisplay  = 500 * time.Millisecond
	minProbeInterval  = 1 * time.Second
	minConnectTimeout = 1 * time.Second
	minDataTimeout    = 5 * time.Second
)

// Validate checks all configuration values and returns all errors found.
// Every error is reported, not just the first.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateAutosave(&cfg.Autosave)...)
	errs = append(errs, validateRemote(&cfg.Remote)...)
	errs = append(errs, validateConnectivity(&cfg.Connectivity)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)

	return errors.Join(errs...)
}

// ValidateResolved checks cross-field constraints on the fully resolved
// configuration, after env and CLI overrides have been applied.
func ValidateResolved(r *Resolved) error {
	var errs []error

	if r.Store.Path == "" {
		errs = append(errs, errors.New("store.path: could not determine a data directory; set it explicitly"))
	}

	if r.Connectivity.Mode == ConnectivityRealtime && r.Remote.BaseURL == "" {
		errs = append(errs, errors.New("connectivity.mode: realtime requires remote.base_url"))
	}

	if r.DebounceDelay > r.ThrottleDelay*10 {
		errs = append(errs, fmt.Errorf("autosave.debounce: %s is more than ten times the throttle %s",
			r.DebounceDelay, r.ThrottleDelay))
	}

	return errors.Join(errs...)
}

func validateAutosave(a *AutosaveConfig) []error {
	var errs []error

	errs = appendDurationRange(errs, "autosave.debounce", a.Debounce, minDebounce, maxDebounce)
	errs = appendDurationRange(errs, "autosave.throttle", a.Throttle, minThrottle, maxThrottle)
	errs = appendDurationRange(errs, "autosave.status_display", a.StatusDisplay, minStatusDisplay, time.Hour)

	return errs
}

func validateRemote(r *RemoteConfig) []error {
	var errs []error

	if r.BaseURL != "" {
		u, err := url.Parse(r.BaseURL)
		if err != nil {
			errs = append(errs, fmt.Errorf("remote.base_url: %w", err))
		} else if u.Scheme != "http" && u.Scheme != "https" {
			errs = append(errs, fmt.Errorf("remote.base_url: scheme must be http or https, got %q", u.Scheme))
		}
	}

	if r.Table == "" {
		errs = append(errs, errors.New("remote.table: must not be empty"))
	}

	errs = appendDurationRange(errs, "remote.connect_timeout", r.ConnectTimeout, minConnectTimeout, 0)
	errs = appendDurationRange(errs, "remote.data_timeout", r.DataTimeout, minDataTimeout, 0)

	return errs
}

func validateConnectivity(c *ConnectivityConfig) []error {
	var errs []error

	switch c.Mode {
	case ConnectivityProbe, ConnectivityRealtime, ConnectivityAlways:
	default:
		errs = append(errs, fmt.Errorf("connectivity.mode: must be one of probe, realtime, always; got %q", c.Mode))
	}

	errs = appendDurationRange(errs, "connectivity.probe_interval", c.ProbeInterval, minProbeInterval, 0)

	return errs
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	switch l.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.log_level: must be one of debug, info, warn, error; got %q", l.LogLevel))
	}

	switch l.LogFormat {
	case "auto", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.log_format: must be one of auto, text, json; got %q", l.LogFormat))
	}

	return errs
}

// appendDurationRange parses raw and appends an error if it is malformed or
// outside [minVal, maxVal]. A zero maxVal means no upper bound.
func appendDurationRange(errs []error, field, raw string, minVal, maxVal time.Duration) []error {
	d, err := parseDuration(raw)
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", field, err))
	}

	if d < minVal {
		return append(errs, fmt.Errorf("%s: must be at least %s, got %s", field, minVal, d))
	}

	if maxVal > 0 && d > maxVal {
		return append(errs, fmt.Errorf("%s: must be at most %s, got %s", field, maxVal, d))
	}

	return errs
}

// parseDuration parses a Go duration string, rejecting empty and negative values.
func parseDuration(raw string) (time.Duration, error) {
	if raw == "" {
		return 0, errors.New("must not be empty")
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", raw, err)
	}

	if d < 0 {
		return 0, fmt.Errorf("must not be negative, got %q", raw)
	}

	return d, nil
}
