package shared

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Credentials     CredentialsConfig     `toml:"credentials"`
	Server          ServerConfig          `toml:"server"`
	Database        DatabaseConfig        `toml:"database"`
	Matcher         MatcherConfig         `toml:"matcher"`
	Recommendations RecommendationsConfig `toml:"recommendations"`
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	Spotify SpotifyConfig `toml:"spotify"`
	YouTube YouTubeConfig `toml:"youtube"`
	Groq    GroqConfig    `toml:"groq"`
	Resend  ResendConfig  `toml:"resend"`
}

// SpotifyConfig contains Spotify API credentials.
type SpotifyConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	RedirectURI  string `toml:"redirect_uri"`
}

// YouTubeConfig contains YouTube Data API credentials.
type YouTubeConfig struct {
	APIKey string `toml:"api_key"`
}

// GroqConfig contains Groq LLM API credentials.
type GroqConfig struct {
	APIKey string `toml:"api_key"`
	Model  string `toml:"model"`
}

// ResendConfig contains Resend email API settings for access-request notifications.
type ResendConfig struct {
	APIKey     string `toml:"api_key"`
	FromEmail  string `toml:"from_email"`
	AdminEmail string `toml:"admin_email"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host        string `toml:"host"`
	Port        int    `toml:"port"`
	FrontendURL string `toml:"frontend_url"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// MatcherConfig tunes the catalog matcher and its worker pool.
type MatcherConfig struct {
	Threshold float64 `toml:"threshold"`
	Workers   int     `toml:"workers"`
	RateLimit float64 `toml:"rate_limit"`
}

// RecommendationsConfig bounds the recommendation engine.
type RecommendationsConfig struct {
	MaxResults int `toml:"max_results"`
	MaxSeeds   int `toml:"max_seeds"`
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMissingConfig, path)
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	return &config, nil
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
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// LoadEnvFile loads variables from a .env file in the working directory, if present.
//
// A missing file is not an error.
func LoadEnvFile() error {
	if _, err := os.Stat(".env"); err != nil {
		return nil
	}
	return godotenv.Load()
}

// ApplyEnvOverrides overlays environment variables onto the config.
//
// Secrets provided via the environment always win over TOML values.
func ApplyEnvOverrides(config *Config) {
	setString := func(target *string, key string) {
		if v := os.Getenv(key); v != "" {
			*target = v
		}
	}

	setString(&config.Credentials.Spotify.ClientID, "SPOTIFY_CLIENT_ID")
	setString(&config.Credentials.Spotify.ClientSecret, "SPOTIFY_CLIENT_SECRET")
	setString(&config.Credentials.Spotify.RedirectURI, "REDIRECT_URI")
	setString(&config.Credentials.YouTube.APIKey, "YOUTUBE_API_KEY")
	setString(&config.Credentials.Groq.APIKey, "GROQ_API_KEY")
	setString(&config.Credentials.Groq.Model, "GROQ_MODEL")
	setString(&config.Credentials.Resend.APIKey, "RESEND_API_KEY")
	setString(&config.Credentials.Resend.FromEmail, "RESEND_FROM_EMAIL")
	setString(&config.Credentials.Resend.AdminEmail, "ADMIN_EMAIL")
	setString(&config.Server.FrontendURL, "FRONTEND_URL")

	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			config.Server.Port = port
		}
	}
}

// Validate checks that credentials required to serve requests are present.
func (c *Config) Validate() error {
	if c.Credentials.Spotify.ClientID == "" || c.Credentials.Spotify.ClientSecret == "" {
		return fmt.Errorf("%w: spotify client_id and client_secret are required", ErrMissingCredentials)
	}
	if c.Credentials.YouTube.APIKey == "" {
		return fmt.Errorf("%w: youtube api_key is required", ErrMissingCredentials)
	}
	return nil
}
