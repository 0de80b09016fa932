package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

// Environment variable names for overrides.
const (
	EnvConfig      = "TUTORHUB_CONFIG"
	EnvOwner       = "TUTORHUB_OWNER"
	EnvBaseURL     = "TUTORHUB_BASE_URL"
	EnvAPIKey      = "TUTORHUB_API_KEY"
	EnvAccessToken = "TUTORHUB_ACCESS_TOKEN" //nolint:gosec // G101: variable name, not a credential
)

// dotEnvFile is read from the working directory before the environment is
// consulted. Variables already set in the process environment win.
const dotEnvFile = ".env"

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath  string // TUTORHUB_CONFIG: override config file path
	OwnerID     string // TUTORHUB_OWNER: default owner (student) ID for drafts
	BaseURL     string // TUTORHUB_BASE_URL: persistence API base URL
	APIKey      string // TUTORHUB_API_KEY: project API key
	AccessToken string // TUTORHUB_ACCESS_TOKEN: signed-in user's bearer token
}

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set. A missing file is not
// an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = dotEnvFile
	}

	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}

		return fmt.Errorf("loading %s: %w", path, err)
	}

	return nil
}

// ReadEnvOverrides reads environment variables and returns any overrides found.
// This does not modify the Config; Resolve applies the relevant fields.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath:  os.Getenv(EnvConfig),
		OwnerID:     os.Getenv(EnvOwner),
		BaseURL:     os.Getenv(EnvBaseURL),
		APIKey:      os.Getenv(EnvAPIKey),
		AccessToken: os.Getenv(EnvAccessToken),
	}
}
