package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"forum/crawler/internal/domain"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// AppName names the default data directory under XDG_DATA_HOME.
const AppName = "forum-crawler"

// Config holds all configuration for the application
type Config struct {
	Crawler  CrawlerConfig  `mapstructure:"crawler"`
	State    StateConfig    `mapstructure:"state"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Database DatabaseConfig `mapstructure:"database"`
	Log      LogConfig      `mapstructure:"log"`
}

// CrawlerConfig holds everything the crawl session needs
type CrawlerConfig struct {
	BaseURL              string               `mapstructure:"base_url"`
	OutputDir            string               `mapstructure:"output_dir"`
	ImageDir             string               `mapstructure:"image_dir"`
	MaxConcurrentTasks   int                  `mapstructure:"max_concurrent_tasks"`
	MaxRetries           int                  `mapstructure:"max_retries"`
	RetryDelay           time.Duration        `mapstructure:"retry_delay"`
	Timeout              time.Duration        `mapstructure:"timeout"`
	SaveImages           bool                 `mapstructure:"save_images"`
	UserAgents           []string             `mapstructure:"user_agents"`
	Proxies              []string             `mapstructure:"proxies"`
	ValidateProxies      bool                 `mapstructure:"validate_proxies"`
	MaxRequestsPerSecond int                  `mapstructure:"max_requests_per_second"`
	Boards               []domain.BoardTarget `mapstructure:"boards"`
}

// StateConfig selects the resume store backend
type StateConfig struct {
	Backend string `mapstructure:"backend"` // file, redis or sqlite
	Dir     string `mapstructure:"dir"`
}

// RedisConfig holds Redis connection details
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	Database int    `mapstructure:"database"`
}

// DatabaseConfig holds the optional Postgres post repository configuration
type DatabaseConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

const (
	StateBackendFile   = "file"
	StateBackendRedis  = "redis"
	StateBackendSQLite = "sqlite"
)

// Load loads configuration from a YAML file with environment variable overrides.
// An empty path searches config.yaml in the current directory.
func Load(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("config.yaml file not found in current directory")
		}
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	config.applyDerivedDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("crawler.base_url", "https://www.newsmth.net")
	v.SetDefault("crawler.output_dir", "./shuimu_data")
	v.SetDefault("crawler.image_dir", "")
	v.SetDefault("crawler.max_concurrent_tasks", 5)
	v.SetDefault("crawler.max_retries", 3)
	v.SetDefault("crawler.retry_delay", "1s")
	v.SetDefault("crawler.timeout", "30s")
	v.SetDefault("crawler.save_images", true)
	v.SetDefault("crawler.user_agents", []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
	})
	v.SetDefault("crawler.validate_proxies", false)
	v.SetDefault("crawler.max_requests_per_second", 0)

	v.SetDefault("state.backend", StateBackendFile)
	v.SetDefault("state.dir", "")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.database", 0)

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "forum")
	v.SetDefault("database.user", "forum_user")
	v.SetDefault("database.password", "forum_pass")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

func (c *Config) applyDerivedDefaults() {
	if c.Crawler.ImageDir == "" && c.Crawler.OutputDir != "" {
		c.Crawler.ImageDir = filepath.Join(c.Crawler.OutputDir, "images")
	}
	if c.State.Dir == "" {
		c.State.Dir = DefaultStateDir(c.Crawler.OutputDir)
	}
}

// DefaultStateDir keeps resume state next to the crawl output, or under the
// XDG data directory when no output directory is configured.
func DefaultStateDir(outputDir string) string {
	if outputDir != "" {
		return filepath.Join(outputDir, ".state")
	}
	return filepath.Join(xdg.DataHome, AppName)
}

// Validate checks the configuration and returns one of the sentinel errors.
func (c *Config) Validate() error {
	cr := c.Crawler
	if !strings.HasPrefix(cr.BaseURL, "http://") && !strings.HasPrefix(cr.BaseURL, "https://") {
		return ErrInvalidBaseURL
	}
	if cr.MaxConcurrentTasks < 1 {
		return ErrInvalidConcurrency
	}
	if cr.MaxRetries < 0 {
		return ErrInvalidRetries
	}
	if cr.RetryDelay < 0 {
		return ErrInvalidRetryDelay
	}
	if cr.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	if cr.MaxRequestsPerSecond < 0 {
		return ErrInvalidRequestsLimit
	}
	if len(cr.Boards) == 0 {
		return ErrNoBoards
	}

	seen := make(map[string]struct{}, len(cr.Boards))
	for _, board := range cr.Boards {
		if err := board.Validate(); err != nil {
			return err
		}
		if _, ok := seen[board.Name]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateBoard, board.Name)
		}
		seen[board.Name] = struct{}{}
	}

	switch c.State.Backend {
	case StateBackendFile, StateBackendRedis, StateBackendSQLite:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownStateBackend, c.State.Backend)
	}

	return nil
}

// Addr returns host:port of the Redis server.
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DSN returns the pgx connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		c.Host, c.Port, c.User, c.Password, c.Name)
}
