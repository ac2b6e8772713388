package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/storemap/internal/archive"
	"github.com/sells-group/storemap/internal/monitoring"
	"github.com/sells-group/storemap/internal/publish"
	"github.com/sells-group/storemap/internal/source"
	"github.com/sells-group/storemap/internal/store"
)

// Config holds the full application configuration.
type Config struct {
	Store    store.Config      `yaml:"store" mapstructure:"store"`
	Crawl    CrawlConfig       `yaml:"crawl" mapstructure:"crawl"`
	Sources  source.Config     `yaml:"sources" mapstructure:"sources"`
	Distance DistanceConfig    `yaml:"distance" mapstructure:"distance"`
	Server   ServerConfig      `yaml:"server" mapstructure:"server"`
	Schedule ScheduleConfig    `yaml:"schedule" mapstructure:"schedule"`
	Archive  archive.Config    `yaml:"archive" mapstructure:"archive"`
	Publish  publish.Config    `yaml:"publish" mapstructure:"publish"`
	Alerts   monitoring.Config `yaml:"alerts" mapstructure:"alerts"`
	Log      LogConfig         `yaml:"log" mapstructure:"log"`
}

// CrawlConfig configures the polite fetcher and the crawl queue.
type CrawlConfig struct {
	UserAgent       string        `yaml:"user_agent" mapstructure:"user_agent"`
	HostDelay       time.Duration `yaml:"host_delay" mapstructure:"host_delay"`
	Timeout         time.Duration `yaml:"timeout" mapstructure:"timeout"`
	Workers         int           `yaml:"workers" mapstructure:"workers"`
	MaxAttempts     int           `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoff  time.Duration `yaml:"initial_backoff" mapstructure:"initial_backoff"`
	MaxBackoff      time.Duration `yaml:"max_backoff" mapstructure:"max_backoff"`
	BreakerFailures int           `yaml:"breaker_failures" mapstructure:"breaker_failures"`
	BreakerReset    time.Duration `yaml:"breaker_reset" mapstructure:"breaker_reset"`
	SourceTimeout   time.Duration `yaml:"source_timeout" mapstructure:"source_timeout"`
}

// DistanceConfig configures the nearest-neighbor calculation.
type DistanceConfig struct {
	Strategy string `yaml:"strategy" mapstructure:"strategy"`
	Workers  int    `yaml:"workers" mapstructure:"workers"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// ScheduleConfig configures periodic collection while serving. An empty
// Cron disables it.
type ScheduleConfig struct {
	Cron    string   `yaml:"cron" mapstructure:"cron"`
	Sources []string `yaml:"sources" mapstructure:"sources"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from .env, config.yaml and the environment, in
// increasing precedence.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !isNotExist(err) {
		return nil, eris.Wrap(err, "config: read .env")
	}

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("STOREMAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("store.driver", store.DriverSQLite)
	v.SetDefault("store.dsn", "storemap.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 1)
	v.SetDefault("crawl.user_agent", "storemap/1.0")
	v.SetDefault("crawl.host_delay", 750*time.Millisecond)
	v.SetDefault("crawl.timeout", 15*time.Second)
	v.SetDefault("crawl.workers", 4)
	v.SetDefault("crawl.max_attempts", 3)
	v.SetDefault("crawl.initial_backoff", 500*time.Millisecond)
	v.SetDefault("crawl.max_backoff", 30*time.Second)
	v.SetDefault("crawl.breaker_failures", 5)
	v.SetDefault("crawl.breaker_reset", 30*time.Second)
	v.SetDefault("crawl.source_timeout", 2*time.Hour)
	v.SetDefault("sources.aldi_nord_dump", "")
	v.SetDefault("sources.aldi_sued_sitemap", source.DefaultAldiSuedSitemap)
	v.SetDefault("sources.lidl_base_url", source.DefaultLidlBaseURL)
	v.SetDefault("distance.strategy", "indexed")
	v.SetDefault("distance.workers", 0)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("schedule.cron", "")
	v.SetDefault("schedule.sources", []string{})
	v.SetDefault("archive.kind", "")
	v.SetDefault("archive.dir", "raw")
	v.SetDefault("archive.bucket", "storemap-raw")
	v.SetDefault("archive.access_key", "")
	v.SetDefault("archive.secret_key", "")
	v.SetDefault("archive.endpoint", "")
	v.SetDefault("archive.region", "")
	v.SetDefault("archive.use_ssl", true)
	v.SetDefault("publish.brokers", []string{})
	v.SetDefault("publish.topic", "storemap.locations")
	v.SetDefault("publish.batch_size", 500)
	v.SetDefault("alerts.webhook_url", "")
	v.SetDefault("alerts.failed_page_rate", 0.1)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	if len(cfg.Publish.Brokers) == 1 && strings.Contains(cfg.Publish.Brokers[0], ",") {
		cfg.Publish.Brokers = strings.Split(cfg.Publish.Brokers[0], ",")
	}

	return &cfg, nil
}

// Validate checks the settings a command mode depends on. Modes: collect,
// serve, distances, store, archive, publish.
func (c *Config) Validate(mode string) error {
	var errs []string
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf(format, args...))
	}

	checkStore := func() {
		switch c.Store.Driver {
		case store.DriverSQLite, store.DriverPostgres:
		default:
			add("store.driver must be sqlite or postgres, got %q", c.Store.Driver)
		}
		if c.Store.Driver == store.DriverPostgres && c.Store.DSN == "" {
			add("store.dsn is required for postgres")
		}
	}
	checkCrawl := func() {
		if c.Crawl.Workers < 1 || c.Crawl.Workers > 64 {
			add("crawl.workers must be between 1 and 64")
		}
		if c.Crawl.MaxAttempts < 1 {
			add("crawl.max_attempts must be >= 1")
		}
		if c.Crawl.HostDelay < 0 {
			add("crawl.host_delay must be >= 0")
		}
	}
	checkDistance := func() {
		switch c.Distance.Strategy {
		case "", "brute", "indexed", "rtree":
		default:
			add("distance.strategy must be brute or indexed, got %q", c.Distance.Strategy)
		}
		if c.Distance.Workers < 0 {
			add("distance.workers must be >= 0")
		}
	}
	checkArchive := func() {
		switch c.Archive.Kind {
		case "", "none":
		case "dir":
			if c.Archive.Dir == "" {
				add("archive.dir is required")
			}
		case "s3":
			if c.Archive.Endpoint == "" || c.Archive.Bucket == "" {
				add("archive.endpoint and archive.bucket are required for s3")
			}
		default:
			add("archive.kind must be dir or s3, got %q", c.Archive.Kind)
		}
	}
	checkPublish := func() {
		if len(c.Publish.Brokers) > 0 && c.Publish.Topic == "" {
			add("publish.topic is required when brokers are set")
		}
	}
	checkAlerts := func() {
		if c.Alerts.FailedPageRate < 0 || c.Alerts.FailedPageRate > 1 {
			add("alerts.failed_page_rate must be between 0 and 1")
		}
	}

	switch mode {
	case "collect":
		checkStore()
		checkCrawl()
		checkArchive()
		checkPublish()
		checkAlerts()
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			add("server.port must be > 0 and <= 65535")
		}
		checkStore()
		checkDistance()
		if c.Schedule.Cron != "" {
			checkCrawl()
			checkArchive()
			checkPublish()
			checkAlerts()
		}
	case "distances":
		checkDistance()
	case "store":
		checkStore()
	case "archive":
		checkArchive()
		if c.Archive.Kind == "" {
			add("archive.kind is required")
		}
	case "publish":
		checkPublish()
		if len(c.Publish.Brokers) == 0 {
			add("publish.brokers is required")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
