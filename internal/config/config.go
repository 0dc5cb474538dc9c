// Package config loads and validates farmhand configuration from the
// environment and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Storage backends for client state
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Config holds client and mock server configuration
type Config struct {
	// APIBaseURL is the API root every request path is joined to
	APIBaseURL string `mapstructure:"FARMHAND_API_BASE_URL"`

	// Storage keys, kept configurable so several clients can share one state file
	TokenKey          string `mapstructure:"FARMHAND_TOKEN_KEY"`
	SelectedFarmKey   string `mapstructure:"FARMHAND_SELECTED_FARM_KEY"`
	SelectedFarmIDKey string `mapstructure:"FARMHAND_SELECTED_FARM_ID_KEY"`

	// StateBackend is file, sqlite or memory
	StateBackend string `mapstructure:"FARMHAND_STATE_BACKEND"`
	// StatePath is the state file or SQLite database; defaults under the user config dir
	StatePath string `mapstructure:"FARMHAND_STATE_PATH"`

	RequestTimeout       time.Duration `mapstructure:"FARMHAND_REQUEST_TIMEOUT"`
	RefreshDecisionDelay time.Duration `mapstructure:"FARMHAND_REFRESH_DECISION_DELAY"`
	PollInterval         time.Duration `mapstructure:"FARMHAND_POLL_INTERVAL"`
	ProbeInterval        time.Duration `mapstructure:"FARMHAND_PROBE_INTERVAL"`
	// ProbeAddr is the host:port dialed to decide local connectivity. It is
	// not the API host: an unreachable backend is a network error, not offline.
	ProbeAddr string `mapstructure:"FARMHAND_PROBE_ADDR"`

	// Env "dev" switches logs to the console writer
	Env      string `mapstructure:"ENV"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	// Mock server only
	MockAddr     string        `mapstructure:"FARMHAND_MOCK_ADDR"`
	JWTSecret    string        `mapstructure:"FARMHAND_JWT_SECRET"`
	TokenTTL     time.Duration `mapstructure:"FARMHAND_TOKEN_TTL"`
	BcryptCost   int           `mapstructure:"FARMHAND_BCRYPT_COST"`
	SeedPassword string        `mapstructure:"FARMHAND_SEED_PASSWORD"`
}

// Load reads .env (if present) from the working directory and then the
// environment. Env vars override .env.
func Load() (*Config, error) {
	return LoadFile(".env")
}

// LoadFile is Load with an explicit dotenv path. A missing file is ignored.
func LoadFile(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			v.SetConfigType("env")
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("config: read %s: %w", path, err)
			}
		}
	}

	v.AutomaticEnv()

	v.SetDefault("FARMHAND_API_BASE_URL", "http://localhost:5000/api")
	v.SetDefault("FARMHAND_TOKEN_KEY", "token")
	v.SetDefault("FARMHAND_SELECTED_FARM_KEY", "selectedFarm")
	v.SetDefault("FARMHAND_SELECTED_FARM_ID_KEY", "selectedFarmId")
	v.SetDefault("FARMHAND_STATE_BACKEND", BackendFile)
	v.SetDefault("FARMHAND_STATE_PATH", "")
	v.SetDefault("FARMHAND_REQUEST_TIMEOUT", "30s")
	v.SetDefault("FARMHAND_REFRESH_DECISION_DELAY", "1s")
	v.SetDefault("FARMHAND_POLL_INTERVAL", "30s")
	v.SetDefault("FARMHAND_PROBE_INTERVAL", "15s")
	v.SetDefault("FARMHAND_PROBE_ADDR", "1.1.1.1:53")
	v.SetDefault("ENV", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("FARMHAND_MOCK_ADDR", ":5000")
	v.SetDefault("FARMHAND_JWT_SECRET", "dev-secret")
	v.SetDefault("FARMHAND_TOKEN_TTL", "1h")
	v.SetDefault("FARMHAND_BCRYPT_COST", 10)
	v.SetDefault("FARMHAND_SEED_PASSWORD", "password")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the loaded values and fills the derived state path
func (c *Config) Validate() error {
	u, err := url.Parse(c.APIBaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("config: FARMHAND_API_BASE_URL %q must be an absolute URL", c.APIBaseURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("config: FARMHAND_API_BASE_URL must use http or https")
	}

	if strings.TrimSpace(c.TokenKey) == "" {
		return errors.New("config: FARMHAND_TOKEN_KEY must be set")
	}

	for name, d := range map[string]time.Duration{
		"FARMHAND_REQUEST_TIMEOUT":        c.RequestTimeout,
		"FARMHAND_REFRESH_DECISION_DELAY": c.RefreshDecisionDelay,
		"FARMHAND_POLL_INTERVAL":          c.PollInterval,
		"FARMHAND_PROBE_INTERVAL":         c.ProbeInterval,
		"FARMHAND_TOKEN_TTL":              c.TokenTTL,
	} {
		if d <= 0 {
			return fmt.Errorf("config: %s must be positive", name)
		}
	}

	if _, _, err := net.SplitHostPort(c.ProbeAddr); err != nil {
		return fmt.Errorf("config: FARMHAND_PROBE_ADDR %q must be host:port", c.ProbeAddr)
	}

	c.StateBackend = strings.ToLower(c.StateBackend)
	switch c.StateBackend {
	case BackendFile, BackendSQLite, BackendMemory:
	default:
		return fmt.Errorf("config: FARMHAND_STATE_BACKEND %q must be file, sqlite or memory", c.StateBackend)
	}

	if c.StatePath == "" && c.StateBackend != BackendMemory {
		c.StatePath = DefaultStatePath(c.StateBackend)
	}

	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return errors.New("config: FARMHAND_BCRYPT_COST must be between 4 and 31")
	}
	return nil
}

// DefaultStatePath places client state under the user config directory
func DefaultStatePath(backend string) string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	name := "state.json"
	if backend == BackendSQLite {
		name = "state.db"
	}
	return filepath.Join(dir, "farmhand", name)
}

// IsDev reports whether console logging should be used
func (c *Config) IsDev() bool {
	return c.Env == "dev"
}
