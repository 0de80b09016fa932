package config

import (
	"fmt"
	"io"
)

// redacted replaces secrets in rendered output.
const redacted = "(set)"

// RenderEffective writes the resolved configuration as a human-readable
// annotated summary to w. This powers the "config show" command.
func RenderEffective(r *Resolved, w io.Writer) error {
	ew := &errWriter{w: w}

	ew.printf("# Effective configuration (config file: %q)\n", r.ConfigPath)
	ew.printf("# token file: %q\n", r.TokenPath)

	if r.OwnerID != "" {
		ew.printf("# owner: %q\n", r.OwnerID)
	}

	ew.printf("\n")

	ew.printf("[autosave]\n")
	ew.printf("  debounce       = %q\n", r.DebounceDelay.String())
	ew.printf("  throttle       = %q\n", r.ThrottleDelay.String())
	ew.printf("  status_display = %q\n\n", r.StatusDisplay.String())

	ew.printf("[remote]\n")
	ew.printf("  base_url        = %q\n", r.Remote.BaseURL)
	ew.printf("  table           = %q\n", r.Remote.Table)
	ew.printf("  api_key         = %q\n", secret(r.Remote.APIKey))
	ew.printf("  access_token    = %q\n", secret(r.Remote.AccessToken))
	ew.printf("  health_path     = %q\n", r.Remote.HealthPath)
	ew.printf("  realtime_path   = %q\n", r.Remote.RealtimePath)
	ew.printf("  connect_timeout = %q\n", r.ConnectTimeout.String())
	ew.printf("  data_timeout    = %q\n", r.DataTimeout.String())

	if r.Remote.UserAgent != "" {
		ew.printf("  user_agent      = %q\n", r.Remote.UserAgent)
	}

	ew.printf("\n[connectivity]\n")
	ew.printf("  mode           = %q\n", r.Connectivity.Mode)
	ew.printf("  probe_interval = %q\n", r.ProbeEvery.String())

	if r.Offline {
		ew.printf("  # forced offline by --offline\n")
	}

	ew.printf("\n[logging]\n")
	ew.printf("  log_level  = %q\n", r.Logging.LogLevel)
	ew.printf("  log_format = %q\n\n", r.Logging.LogFormat)

	ew.printf("[store]\n")
	ew.printf("  path = %q\n", r.Store.Path)

	return ew.err
}

// Redacted returns a copy of r with credentials masked, for display.
func (r *Resolved) Redacted() *Resolved {
	out := *r
	out.Remote.APIKey = secret(r.Remote.APIKey)
	out.Remote.AccessToken = secret(r.Remote.AccessToken)

	return &out
}

func secret(s string) string {
	if s == "" {
		return ""
	}

	return redacted
}

// errWriter wraps an io.Writer and captures the first write error.
// Subsequent writes after an error are no-ops, so callers can chain
// printf calls without checking each one individually.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}

	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}
