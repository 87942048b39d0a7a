package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/TobiSchelling/AutoPoster/internal/style"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

// Interval bounds for the autopost timer, in minutes.
const (
	MinIntervalMinutes = 30
	MaxIntervalMinutes = 1440
)

type Config struct {
	Telegram   Telegram   `yaml:"telegram"`
	Generation Generation `yaml:"generation"`
	LinkedIn   LinkedIn   `yaml:"linkedin"`
	News       News       `yaml:"news"`
	Autopost   Autopost   `yaml:"autopost"`
	Storage    Storage    `yaml:"storage"`
	Server     Server     `yaml:"server"`
	Logging    Logging    `yaml:"logging"`
}

type Telegram struct {
	BotTokenEnv string `yaml:"bot_token_env"`
}

type Generation struct {
	APIURL                 string   `yaml:"api_url"`
	APIKeyEnv              string   `yaml:"api_key_env"`
	Model                  string   `yaml:"model"`
	ProviderPrefix         string   `yaml:"provider_prefix"`
	UnavailableStatusCodes []int    `yaml:"unavailable_status_codes"`
	Temperature            float64  `yaml:"temperature"`
	TimeoutSeconds         float64  `yaml:"timeout_seconds"`
	MaxRetries             int      `yaml:"max_retries"`
	RetryBackoffSeconds    float64  `yaml:"retry_backoff_seconds"`
	RequestsPerMinute      int      `yaml:"requests_per_minute"`
	Language               string   `yaml:"language"`
	ClosingQuestion        string   `yaml:"closing_question"`
	DefaultHashtags        []string `yaml:"default_hashtags"`
}

type LinkedIn struct {
	AccessTokenEnv  string   `yaml:"access_token_env"`
	PersonIDEnv     string   `yaml:"person_id_env"`
	ClientIDEnv     string   `yaml:"client_id_env"`
	ClientSecretEnv string   `yaml:"client_secret_env"`
	RedirectURI     string   `yaml:"redirect_uri"`
	Scopes          []string `yaml:"scopes"`
	TimeoutSeconds  float64  `yaml:"timeout_seconds"`
}

type News struct {
	Feeds           []Feed   `yaml:"feeds"`
	Keywords        []string `yaml:"keywords"`
	Limit           int      `yaml:"limit"`
	TimeoutSeconds  float64  `yaml:"timeout_seconds"`
	EnrichSummaries bool     `yaml:"enrich_summaries"`
}

type Feed struct {
	URL  string `yaml:"url"`
	Name string `yaml:"name"`
}

type Autopost struct {
	DefaultIntervalMinutes int    `yaml:"default_interval_minutes"`
	DefaultStyle           string `yaml:"default_style"`
}

type Storage struct {
	DataDir string `yaml:"data_dir"`
}

type Server struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Logging controls log output. Level is INFO or DEBUG; DEBUG adds
// file:line to log lines, like --verbose.
type Logging struct {
	Level string `yaml:"level"`
}

// Debug reports whether the configured level is DEBUG.
func (l Logging) Debug() bool {
	return strings.EqualFold(strings.TrimSpace(l.Level), "DEBUG")
}

// ConfigDir returns the XDG config directory for autoposter.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "autoposter")
}

// DataDir returns the XDG data directory for autoposter.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "autoposter")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/autoposter/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'autoposter init' to create a default config",
		xdgConfig,
	)
}

// LoadEnv loads a .env file from the working directory if one exists.
func LoadEnv() error {
	if err := godotenv.Load(); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("loading .env: %w", err)
	}
	return nil
}

// Load reads, parses and validates a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg, err := parse(data)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Telegram: Telegram{BotTokenEnv: "TELEGRAM_BOT_TOKEN"},
		Generation: Generation{
			APIURL:                 "https://dashscope-intl.aliyuncs.com/compatible-mode/v1/chat/completions",
			APIKeyEnv:              "QWEN_API_KEY",
			Model:                  "qwen-plus",
			UnavailableStatusCodes: []int{404},
			Temperature:            0.7,
			TimeoutSeconds:         90,
			MaxRetries:             3,
			RetryBackoffSeconds:    1.5,
			RequestsPerMinute:      20,
			Language:               "Ukrainian",
			ClosingQuestion:        "Що ви про це думаєте?",
			DefaultHashtags:        []string{"#AI", "#Tech", "#LinkedIn", "#Innovation", "#Startup"},
		},
		LinkedIn: LinkedIn{
			AccessTokenEnv:  "LINKEDIN_ACCESS_TOKEN",
			PersonIDEnv:     "LINKEDIN_PERSON_ID",
			ClientIDEnv:     "LINKEDIN_CLIENT_ID",
			ClientSecretEnv: "LINKEDIN_CLIENT_SECRET",
			Scopes:          []string{"openid", "profile", "w_member_social"},
			TimeoutSeconds:  20,
		},
		News: News{
			Feeds: []Feed{
				{URL: "https://news.ycombinator.com/rss", Name: "HackerNews"},
				{URL: "https://techcrunch.com/category/artificial-intelligence/feed/", Name: "TechCrunch AI"},
			},
			Keywords:        []string{"ai", "programming", "startup", "open source"},
			Limit:           10,
			TimeoutSeconds:  20,
			EnrichSummaries: true,
		},
		Autopost: Autopost{
			DefaultIntervalMinutes: 120,
			DefaultStyle:           "analytical",
		},
		Server:  Server{Host: "127.0.0.1", Port: 8000},
		Logging: Logging{Level: "INFO"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	for i, kw := range cfg.News.Keywords {
		cfg.News.Keywords[i] = strings.ToLower(strings.TrimSpace(kw))
	}

	return cfg, nil
}

// Validate checks values that would otherwise fail later at run time.
func (c *Config) Validate() error {
	a := c.Autopost
	if a.DefaultIntervalMinutes < MinIntervalMinutes || a.DefaultIntervalMinutes > MaxIntervalMinutes {
		return fmt.Errorf("autopost.default_interval_minutes must be between %d and %d, got %d",
			MinIntervalMinutes, MaxIntervalMinutes, a.DefaultIntervalMinutes)
	}
	if _, err := style.Parse(a.DefaultStyle); err != nil {
		return fmt.Errorf("autopost.default_style: %w", err)
	}
	g := c.Generation
	if g.MaxRetries < 1 {
		return fmt.Errorf("generation.max_retries must be at least 1")
	}
	if g.TimeoutSeconds <= 0 || c.LinkedIn.TimeoutSeconds <= 0 || c.News.TimeoutSeconds <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	if c.News.Limit < 1 {
		return fmt.Errorf("news.limit must be at least 1")
	}
	if g.APIURL == "" || g.Model == "" {
		return fmt.Errorf("generation.api_url and generation.model are required")
	}
	return nil
}

// Addr returns the HTTP listen address.
func (s Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Storage.DataDir != "" {
		return c.Storage.DataDir
	}
	return DataDir()
}

// SettingsPath is where the autopost settings record lives.
func (c *Config) SettingsPath() string {
	return filepath.Join(c.GetDataDir(), "autopost_settings.json")
}

// TokenStorePath is where connected LinkedIn accounts are stored.
func (c *Config) TokenStorePath() string {
	return filepath.Join(c.GetDataDir(), "linkedin_tokens.json")
}

// JournalPath is the SQLite run journal.
func (c *Config) JournalPath() string {
	return filepath.Join(c.GetDataDir(), "autoposter.db")
}

// BotToken returns the Telegram bot token from the environment.
func (c *Config) BotToken() string {
	return strings.TrimSpace(os.Getenv(c.Telegram.BotTokenEnv))
}

// APIKey returns the generation API key from the environment.
func (g Generation) APIKey() string {
	return strings.TrimSpace(os.Getenv(g.APIKeyEnv))
}

// Timeout returns the per-call generation timeout.
func (g Generation) Timeout() time.Duration {
	return seconds(g.TimeoutSeconds)
}

// RetryBackoff returns the base delay between generation attempts.
func (g Generation) RetryBackoff() time.Duration {
	return seconds(g.RetryBackoffSeconds)
}

// AccessToken returns the static fallback access token, or "" for placeholders.
func (l LinkedIn) AccessToken() string { return Sanitize(os.Getenv(l.AccessTokenEnv)) }

// PersonID returns the static fallback person id, or "" for placeholders.
func (l LinkedIn) PersonID() string { return Sanitize(os.Getenv(l.PersonIDEnv)) }

// ClientID returns the OAuth client id.
func (l LinkedIn) ClientID() string { return Sanitize(os.Getenv(l.ClientIDEnv)) }

// ClientSecret returns the OAuth client secret.
func (l LinkedIn) ClientSecret() string { return Sanitize(os.Getenv(l.ClientSecretEnv)) }

// Timeout returns the per-call LinkedIn timeout.
func (l LinkedIn) Timeout() time.Duration { return seconds(l.TimeoutSeconds) }

// Timeout returns the per-feed fetch timeout.
func (n News) Timeout() time.Duration { return seconds(n.TimeoutSeconds) }

// Sanitize treats blank and placeholder-looking values as absent.
func Sanitize(raw string) string {
	v := strings.TrimSpace(raw)
	lowered := strings.ToLower(v)
	if strings.HasPrefix(lowered, "your_") || strings.Contains(lowered, "your-domain.com") {
		return ""
	}
	return v
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
