package shared

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/afero"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Credentials CredentialsConfig `toml:"credentials"`
	Database    DatabaseConfig    `toml:"database"`
	Server      ServerConfig      `toml:"server"`
	Backend     BackendConfig     `toml:"backend"`
	Auth        AuthConfig        `toml:"auth"`
	Cache       CacheConfig       `toml:"cache"`
	Lists       ListsConfig       `toml:"lists"`
	Log         LogConfig         `toml:"log"`
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	TMDB TMDBConfig `toml:"tmdb"`
}

// TMDBConfig contains catalog API credentials.
//
// AccessToken (v4 read token) is preferred; APIKey is sent as a query parameter when no token is set.
type TMDBConfig struct {
	AccessToken       string  `toml:"access_token"`
	APIKey            string  `toml:"api_key"`
	Language          string  `toml:"language"`
	BaseURL           string  `toml:"base_url"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Driver       string `toml:"driver"`
	Path         string `toml:"path"`
	DSN          string `toml:"dsn"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host    string `toml:"host"`
	Port    int    `toml:"port"`
	BaseURL string `toml:"base_url"`
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// BackendConfig selects where lists and identities live.
//
// Mode "local" keeps both in the configured database; "hosted" talks to a Supabase project.
type BackendConfig struct {
	Mode      string `toml:"mode"`
	URL       string `toml:"url"`
	AnonKey   string `toml:"anon_key"`
	JWTSecret string `toml:"jwt_secret"`
}

// Hosted reports whether the hosted backend is selected.
func (b BackendConfig) Hosted() bool {
	return strings.EqualFold(b.Mode, "hosted")
}

// AuthConfig contains local identity settings.
type AuthConfig struct {
	JWTSecret   string   `toml:"jwt_secret"`
	TokenTTL    Duration `toml:"token_ttl"`
	ResetTTL    Duration `toml:"reset_ttl"`
	SessionPath string   `toml:"session_path"`
}

// CacheConfig contains catalog cache lifetimes per request class.
type CacheConfig struct {
	Size           int      `toml:"size"`
	TrendingTTL    Duration `toml:"trending_ttl"`
	PeopleTTL      Duration `toml:"people_ttl"`
	DetailsTTL     Duration `toml:"details_ttl"`
	ExternalIDsTTL Duration `toml:"external_ids_ttl"`
}

// ListsConfig contains list storage settings.
type ListsConfig struct {
	KeyScheme string `toml:"key_scheme"`
}

// LogConfig contains logger settings.
type LogConfig struct {
	Level      string `toml:"level"`
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
}

// Duration is a [time.Duration] that decodes from TOML strings such as "1h" or "168h".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("%w: duration %q: %v", ErrInvalidConfig, text, err)
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
func LoadConfig(path string) (*Config, error) {
	return LoadConfigFS(afero.NewOsFs(), path)
}

// LoadConfigFS reads and parses a TOML configuration file from fs.
//
// Values missing from the file keep the embedded defaults.
func LoadConfigFS(fs afero.Fs, path string) (*Config, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	return CreateConfigFileFS(afero.NewOsFs(), path)
}

// CreateConfigFileFS writes the embedded example config to path on fs, refusing to overwrite.
func CreateConfigFileFS(fs afero.Fs, path string) error {
	if exists, err := afero.Exists(fs, path); err != nil {
		return fmt.Errorf("failed to check config file: %w", err)
	} else if exists {
		return fmt.Errorf("%w: config file already exists at %s", ErrConflict, path)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := fs.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	if err := afero.WriteFile(fs, path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ExpandHome replaces a leading "~" with the user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
