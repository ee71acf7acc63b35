// Package config manages application configuration for the relay gateway.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/viper"
)

// Mode selects which upstream backend serves a request.
type Mode string

const (
	ModeNative Mode = "native"
	ModeLegacy Mode = "legacy"
	ModeHybrid Mode = "hybrid"
)

// Data defines where credential and quota state are persisted.
type Data struct {
	Directory string `mapstructure:"directory"`
}

// HTTPConfig controls the gateway's listen address.
type HTTPConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// UpstreamConfig describes one of the two backends the router dispatches to.
type UpstreamConfig struct {
	BaseURL  string            `mapstructure:"baseURL"`
	ModelMap map[string]string `mapstructure:"modelMap"`
	Headers  map[string]string `mapstructure:"headers"`
}

// OAuthConfig controls credential refresh behaviour.
type OAuthConfig struct {
	RefreshBufferSeconds int    `mapstructure:"refreshBufferSeconds"`
	ClientID             string `mapstructure:"clientID"`
	RefreshURL           string `mapstructure:"refreshURL"`
	CredentialFile       string `mapstructure:"credentialFile"`
	GitCredentialsFile   string `mapstructure:"gitCredentialsFile"`
	EnvAccessToken       string `mapstructure:"envAccessToken"`
}

// QuotaConfig controls where the weekly quota ledger is persisted.
type QuotaConfig struct {
	StatePath string `mapstructure:"statePath"`
}

// Config is the gateway's runtime configuration.
type Config struct {
	Data             Data           `mapstructure:"data"`
	Debug            bool           `mapstructure:"debug"`
	Mode             Mode           `mapstructure:"mode"`
	HTTP             HTTPConfig     `mapstructure:"http"`
	Native           UpstreamConfig `mapstructure:"native"`
	Legacy           UpstreamConfig `mapstructure:"legacy"`
	OAuth            OAuthConfig    `mapstructure:"oauth"`
	Quota            QuotaConfig    `mapstructure:"quota"`
	MaxContextTokens int64          `mapstructure:"maxContextTokens"`
}

const (
	defaultDataDirectory = ".relay"
	appName               = "relay"

	// MaxContextTokensDefault is the context-window budget used by
	// MessageTranscoder's max_tokens cap when no override is configured.
	MaxContextTokensDefault = 200000
)

func getDefaultConfig() *Config {
	return &Config{
		Data: Data{Directory: defaultDataDirectory},
		Mode: ModeHybrid,
		HTTP: HTTPConfig{
			Host: "127.0.0.1",
			Port: 8080,
		},
		Native: UpstreamConfig{
			ModelMap: map[string]string{},
			Headers: map[string]string{
				"x-app-name-v2":          "claude-code-internal",
				"x-claude-code-internal": "true",
			},
		},
		Legacy: UpstreamConfig{
			ModelMap: map[string]string{},
			Headers:  map[string]string{},
		},
		OAuth: OAuthConfig{
			RefreshBufferSeconds: 300,
		},
		Quota:            QuotaConfig{StatePath: filepath.Join(defaultDataDirectory, "quota.json")},
		MaxContextTokens: MaxContextTokensDefault,
	}
}

var (
	cfg      *Config
	loadOnce sync.Once
	loadErr  error
)

// Load reads configuration from an explicit path (if non-empty), the
// conventional per-user location, environment variables prefixed
// RELAY_, and finally hard-coded defaults, in viper's standard
// precedence order (explicit calls to Set/BindPFlag outrank all of
// these, matching the teacher's config.Load pattern).
func Load(explicitPath string) (*Config, error) {
	loadOnce.Do(func() {
		cfg = getDefaultConfig()

		v := viper.New()
		v.SetConfigType("json")
		v.SetEnvPrefix("RELAY")
		v.AutomaticEnv()
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

		if explicitPath != "" {
			v.SetConfigFile(explicitPath)
		} else {
			home, err := os.UserHomeDir()
			if err == nil {
				v.AddConfigPath(filepath.Join(home, "."+appName))
			}
			v.AddConfigPath(".")
			v.SetConfigName("config")
		}

		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok && explicitPath != "" {
				loadErr = fmt.Errorf("failed to read config: %w", err)
				return
			}
		}

		if err := v.Unmarshal(cfg); err != nil {
			loadErr = fmt.Errorf("failed to parse config: %w", err)
			return
		}
	})

	return cfg, loadErr
}

// Get returns the already-loaded configuration. Callers must call Load
// first (cmd/root.go does this during RunE before any component reads
// config); returns the hard-coded defaults if Load was never called,
// which is convenient for tests.
func Get() *Config {
	if cfg == nil {
		return getDefaultConfig()
	}
	return cfg
}

// DataDir returns the directory credential and quota state live under,
// creating it if necessary.
func DataDir() (string, error) {
	dir := Get().Data.Directory
	if dir == "" {
		dir = defaultDataDirectory
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}
	return dir, nil
}
