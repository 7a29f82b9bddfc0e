package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Google    GoogleConfig    `mapstructure:"google"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	YouTube   YouTubeConfig   `mapstructure:"youtube"`
	Proxy     ProxyConfig     `mapstructure:"proxy"`
	Channels  ChannelsConfig  `mapstructure:"channels"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig holds REST API settings
type ServerConfig struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	Mode      string `mapstructure:"mode"`       // gin mode: debug, release, test
	ClientURL string `mapstructure:"client_url"` // Frontend origin, used for OAuth redirects
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"` // sqlite or postgres
	DSN    string `mapstructure:"dsn"`    // Connection string
}

// GoogleConfig holds Google OAuth client settings
type GoogleConfig struct {
	ClientID     string   `mapstructure:"client_id"`
	ClientSecret string   `mapstructure:"client_secret"`
	RedirectURI  string   `mapstructure:"redirect_uri"`
	Scopes       []string `mapstructure:"scopes"`
}

// AuthConfig holds API authentication settings
type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
	StateTTL  time.Duration `mapstructure:"state_ttl"` // OAuth connect state lifetime
}

// SchedulerConfig holds background job settings
type SchedulerConfig struct {
	Enabled          bool   `mapstructure:"enabled"`
	MaintenanceCron  string `mapstructure:"maintenance_cron"`
	DueCommentsCron  string `mapstructure:"due_comments_cron"`
	DueCommentsBatch int    `mapstructure:"due_comments_batch"`
}

// YouTubeConfig holds YouTube Data API client settings
type YouTubeConfig struct {
	UserAgent         string        `mapstructure:"user_agent"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
	// When an account's proxy cannot be used, post without it instead of failing
	AllowUnproxied bool `mapstructure:"allow_unproxied"`
}

// ProxyConfig holds proxy health check settings
type ProxyConfig struct {
	CheckURL     string        `mapstructure:"check_url"`
	CheckTimeout time.Duration `mapstructure:"check_timeout"`
}

// ChannelsConfig holds channel feed settings
type ChannelsConfig struct {
	FeedURL  string `mapstructure:"feed_url"` // printf template taking the channel ID
	MaxItems int    `mapstructure:"max_items"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json or console
	Output     string `mapstructure:"output"` // stdout or file path
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	// Load .env file if present (ignore errors if not found)
	_ = godotenv.Load()
	_ = godotenv.Load(".env.local")

	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")

		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".youtube-agent"))
		}
	}

	v.SetEnvPrefix("YTAGENT")
	v.AutomaticEnv()

	// Explicit bindings for nested keys (Viper doesn't auto-bind underscored nested keys)
	v.BindEnv("server.port", "YTAGENT_SERVER_PORT", "PORT")
	v.BindEnv("server.client_url", "YTAGENT_SERVER_CLIENT_URL", "CLIENT_URL")
	v.BindEnv("database.driver", "YTAGENT_DATABASE_DRIVER")
	v.BindEnv("database.dsn", "YTAGENT_DATABASE_DSN", "DATABASE_URL")
	v.BindEnv("google.client_id", "YTAGENT_GOOGLE_CLIENT_ID", "GOOGLE_CLIENT_ID")
	v.BindEnv("google.client_secret", "YTAGENT_GOOGLE_CLIENT_SECRET", "GOOGLE_CLIENT_SECRET")
	v.BindEnv("google.redirect_uri", "YTAGENT_GOOGLE_REDIRECT_URI", "GOOGLE_REDIRECT_URI")
	v.BindEnv("auth.jwt_secret", "YTAGENT_AUTH_JWT_SECRET", "JWT_SECRET")
	v.BindEnv("scheduler.enabled", "YTAGENT_SCHEDULER_ENABLED")
	v.BindEnv("youtube.allow_unproxied", "YTAGENT_YOUTUBE_ALLOW_UNPROXIED")
	v.BindEnv("logging.level", "YTAGENT_LOGGING_LEVEL")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 4000)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.client_url", "http://localhost:3000")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "./data/youtube-agent.db")

	v.SetDefault("google.redirect_uri", "http://localhost:4000/api/auth/google/callback")
	v.SetDefault("google.scopes", []string{
		"openid",
		"email",
		"profile",
		"https://www.googleapis.com/auth/youtube",
		"https://www.googleapis.com/auth/youtube.force-ssl",
	})

	v.SetDefault("auth.token_ttl", "168h") // 7 days
	v.SetDefault("auth.state_ttl", "10m")

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.maintenance_cron", "0 0 * * *") // Midnight daily
	v.SetDefault("scheduler.due_comments_cron", "* * * * *")
	v.SetDefault("scheduler.due_comments_batch", 10)

	v.SetDefault("youtube.user_agent", "youtube-agent/1.0")
	v.SetDefault("youtube.request_timeout", "30s")
	v.SetDefault("youtube.requests_per_second", 1.0)
	v.SetDefault("youtube.burst", 5)
	v.SetDefault("youtube.allow_unproxied", true)

	v.SetDefault("proxy.check_url", "https://www.google.com")
	v.SetDefault("proxy.check_timeout", "10s")

	v.SetDefault("channels.feed_url", "https://www.youtube.com/feeds/videos.xml?channel_id=%s")
	v.SetDefault("channels.max_items", 15)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.max_size_mb", 50)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age_days", 28)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if c.Google.ClientID == "" {
		return fmt.Errorf("google.client_id is required")
	}
	if c.Google.ClientSecret == "" {
		return fmt.Errorf("google.client_secret is required")
	}
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("database.driver must be sqlite or postgres, got %q", c.Database.Driver)
	}
	return nil
}
