package config

// Default values for configuration options. These represent the "layer 0"
// of the four-layer override chain and work without any config file.
const (
	defaultDebounce         = "900ms"
	defaultThrottle         = "2s"
	defaultStatusDisplay    = "3s"
	defaultTable            = "tutor_applications"
	defaultHealthPath       = "/rest/v1/"
	defaultRealtimePath     = "/realtime/v1/websocket"
	defaultConnectTimeout   = "10s"
	defaultDataTimeout      = "60s"
	defaultConnectivityMode = ConnectivityProbe
	defaultProbeInterval    = "15s"
	defaultLogLevel         = "info"
	defaultLogFormat        = "auto"
	storeFileName           = "fallback.db"
)

// DefaultConfig returns a Config populated with all default values.
// This is used both as the starting point for TOML decoding (so unset
// fields retain defaults) and as the fallback when no config file exists.
func DefaultConfig() *Config {
	return &Config{
		Autosave: AutosaveConfig{
			Debounce:      defaultDebounce,
			Throttle:      defaultThrottle,
			StatusDisplay: defaultStatusDisplay,
		},
		Remote: RemoteConfig{
			Table:          defaultTable,
			HealthPath:     defaultHealthPath,
			RealtimePath:   defaultRealtimePath,
			ConnectTimeout: defaultConnectTimeout,
			DataTimeout:    defaultDataTimeout,
		},
		Connectivity: ConnectivityConfig{
			Mode:          defaultConnectivityMode,
			ProbeInterval: defaultProbeInterval,
		},
		Logging: LoggingConfig{
			LogLevel:  defaultLogLevel,
			LogFormat: defaultLogFormat,
		},
	}
}
