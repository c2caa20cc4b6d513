// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultFirstIssueURL is the earliest known entry of the archive. The crawl cursor
// starts here when the store holds no issues yet.
const DefaultFirstIssueURL = "https://www.penny-arcade.com/comic/1998/11/18/the-sin-of-long-load-times"

// Queue drivers understood by the queue factory.
const (
	QueueDriverAMQP   = "amqp"
	QueueDriverPubSub = "pubsub"
	QueueDriverMemory = "memory"
)

// Store drivers.
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// Archive drivers for raw page snapshots.
const (
	ArchiveDriverNone   = "none"
	ArchiveDriverLocal  = "local"
	ArchiveDriverGCS    = "gcs"
	ArchiveDriverMemory = "memory"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Logging LoggingConfig `mapstructure:"logging"`
	Server  ServerConfig  `mapstructure:"server"`
	DB      DBConfig      `mapstructure:"db"`
	Queue   QueueConfig   `mapstructure:"queue"`
	Crawl   CrawlConfig   `mapstructure:"crawl"`
	Fetcher FetcherConfig `mapstructure:"fetcher"`
	Enrich  EnrichConfig  `mapstructure:"enrich"`
	Archive ArchiveConfig `mapstructure:"archive"`
	Startup StartupConfig `mapstructure:"startup"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// ServerConfig controls the read API listener.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// DBConfig controls access to the issue store.
type DBConfig struct {
	Driver          string `mapstructure:"driver"`
	DSN             string `mapstructure:"dsn"`
	MaxConns        int32  `mapstructure:"max_conns"`
	MinConns        int32  `mapstructure:"min_conns"`
	MaxConnLifetime int    `mapstructure:"max_conn_lifetime_seconds"`
	Migrate         bool   `mapstructure:"migrate"`
}

// QueueConfig selects and configures the enrichment queue transport.
type QueueConfig struct {
	Driver string       `mapstructure:"driver"`
	Name   string       `mapstructure:"name"`
	AMQP   AMQPConfig   `mapstructure:"amqp"`
	PubSub PubSubConfig `mapstructure:"pubsub"`
}

// AMQPConfig addresses a RabbitMQ broker. URL wins over the individual parts.
type AMQPConfig struct {
	URL      string `mapstructure:"url"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	VHost    string `mapstructure:"vhost"`
}

// PubSubConfig holds Google Cloud Pub/Sub identifiers.
type PubSubConfig struct {
	ProjectID    string `mapstructure:"project_id"`
	Topic        string `mapstructure:"topic"`
	Subscription string `mapstructure:"subscription"`
}

// CrawlConfig governs the crawl cycle.
type CrawlConfig struct {
	BaseURL         string `mapstructure:"base_url"`
	FirstIssueURL   string `mapstructure:"first_issue_url"`
	IntervalSeconds int    `mapstructure:"interval_seconds"`
	BatchLimit      int    `mapstructure:"batch_limit"`
}

// FetcherConfig configures the HTTP client used for pages and images.
type FetcherConfig struct {
	UserAgent           string  `mapstructure:"user_agent"`
	PageTimeoutSeconds  int     `mapstructure:"page_timeout_seconds"`
	ImageTimeoutSeconds int     `mapstructure:"image_timeout_seconds"`
	MaxBodyBytes        int     `mapstructure:"max_body_bytes"`
	RequestsPerSecond   float64 `mapstructure:"requests_per_second"`
	Burst               int     `mapstructure:"burst"`
}

// EnrichConfig configures the enrichment consumer.
type EnrichConfig struct {
	Workers     int    `mapstructure:"workers"`
	OCRLanguage string `mapstructure:"ocr_language"`
}

// ArchiveConfig configures optional raw HTML snapshots of ingested pages.
type ArchiveConfig struct {
	Driver    string `mapstructure:"driver"`
	BaseDir   string `mapstructure:"base_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// StartupConfig bounds the connection retry window for storage and broker.
type StartupConfig struct {
	MaxAttempts          int `mapstructure:"max_attempts"`
	RetryIntervalSeconds int `mapstructure:"retry_interval_seconds"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("COMICS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := bindLegacyEnv(v); err != nil {
		return Config{}, err
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "")
	v.SetDefault("server.port", 5000)
	v.SetDefault("db.driver", StoreDriverPostgres)
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_conns", 10)
	v.SetDefault("db.min_conns", 1)
	v.SetDefault("db.max_conn_lifetime_seconds", 0)
	v.SetDefault("db.migrate", true)
	v.SetDefault("queue.driver", QueueDriverAMQP)
	v.SetDefault("queue.name", "analyzer_queue")
	v.SetDefault("queue.amqp.url", "")
	v.SetDefault("queue.amqp.host", "localhost")
	v.SetDefault("queue.amqp.port", 5672)
	v.SetDefault("queue.amqp.user", "guest")
	v.SetDefault("queue.amqp.password", "guest")
	v.SetDefault("queue.amqp.vhost", "/")
	v.SetDefault("queue.pubsub.project_id", "")
	v.SetDefault("queue.pubsub.topic", "analyzer_queue")
	v.SetDefault("queue.pubsub.subscription", "analyzer_queue-sub")
	v.SetDefault("crawl.base_url", "https://www.penny-arcade.com")
	v.SetDefault("crawl.first_issue_url", DefaultFirstIssueURL)
	v.SetDefault("crawl.interval_seconds", 600)
	v.SetDefault("crawl.batch_limit", 2)
	v.SetDefault("fetcher.user_agent",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36")
	v.SetDefault("fetcher.page_timeout_seconds", 15)
	v.SetDefault("fetcher.image_timeout_seconds", 30)
	v.SetDefault("fetcher.max_body_bytes", 20*1024*1024)
	v.SetDefault("fetcher.requests_per_second", 2.0)
	v.SetDefault("fetcher.burst", 4)
	v.SetDefault("enrich.workers", 1)
	v.SetDefault("enrich.ocr_language", "eng")
	v.SetDefault("archive.driver", ArchiveDriverNone)
	v.SetDefault("archive.base_dir", "data/pages")
	v.SetDefault("archive.gcs_bucket", "")
	v.SetDefault("archive.prefix", "pages")
	v.SetDefault("startup.max_attempts", 30)
	v.SetDefault("startup.retry_interval_seconds", 5)
}

// bindLegacyEnv keeps the deployment's original variable names working alongside the
// COMICS_ prefixed ones.
func bindLegacyEnv(v *viper.Viper) error {
	bindings := map[string]string{
		"db.dsn":                 "DATABASE_URL",
		"queue.amqp.host":        "RABBITMQ_HOST",
		"crawl.base_url":         "PENNY_ARCADE_BASE_URL",
		"crawl.interval_seconds": "SCRAPE_INTERVAL_SECONDS",
	}
	for key, legacy := range bindings {
		prefixed := "COMICS_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, legacy); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	return nil
}

// Validate enforces values every command needs. Command-specific requirements live in
// ValidateStore and ValidateQueue.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Crawl.IntervalSeconds <= 0 {
		return fmt.Errorf("crawl.interval_seconds must be > 0")
	}
	if c.Crawl.BatchLimit <= 0 {
		return fmt.Errorf("crawl.batch_limit must be > 0")
	}
	if _, err := url.ParseRequestURI(c.Crawl.BaseURL); err != nil {
		return fmt.Errorf("crawl.base_url is invalid: %w", err)
	}
	if c.Crawl.FirstIssueURL == "" {
		return fmt.Errorf("crawl.first_issue_url must be set")
	}
	if c.Fetcher.PageTimeoutSeconds <= 0 || c.Fetcher.ImageTimeoutSeconds <= 0 {
		return fmt.Errorf("fetcher timeouts must be > 0")
	}
	if c.Enrich.Workers <= 0 {
		return fmt.Errorf("enrich.workers must be > 0")
	}
	if c.Startup.MaxAttempts <= 0 {
		return fmt.Errorf("startup.max_attempts must be > 0")
	}
	switch c.Archive.Driver {
	case ArchiveDriverNone, ArchiveDriverLocal, ArchiveDriverMemory:
	case ArchiveDriverGCS:
		if c.Archive.GCSBucket == "" {
			return fmt.Errorf("archive.gcs_bucket must be set when archive.driver is gcs")
		}
	default:
		return fmt.Errorf("unknown archive.driver %q", c.Archive.Driver)
	}
	return nil
}

// ValidateStore checks the settings needed to open the issue store.
func (c Config) ValidateStore() error {
	switch c.DB.Driver {
	case StoreDriverPostgres:
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn (or DATABASE_URL) must be set")
		}
	case StoreDriverMemory:
	default:
		return fmt.Errorf("unknown db.driver %q", c.DB.Driver)
	}
	return nil
}

// ValidateQueue checks the settings needed to reach the enrichment queue.
func (c Config) ValidateQueue() error {
	if c.Queue.Name == "" {
		return fmt.Errorf("queue.name must be set")
	}
	switch c.Queue.Driver {
	case QueueDriverAMQP:
		if c.Queue.AMQP.URL == "" && c.Queue.AMQP.Host == "" {
			return fmt.Errorf("queue.amqp.host (or RABBITMQ_HOST) must be set")
		}
	case QueueDriverPubSub:
		if c.Queue.PubSub.ProjectID == "" || c.Queue.PubSub.Topic == "" || c.Queue.PubSub.Subscription == "" {
			return fmt.Errorf("queue.pubsub project_id, topic and subscription must be set")
		}
	case QueueDriverMemory:
	default:
		return fmt.Errorf("unknown queue.driver %q", c.Queue.Driver)
	}
	return nil
}

// AMQPURL renders the broker address.
func (c AMQPConfig) AMQPURL() string {
	if c.URL != "" {
		return c.URL
	}
	port := c.Port
	if port == 0 {
		port = 5672
	}
	u := url.URL{
		Scheme: "amqp",
		User:   url.UserPassword(c.User, c.Password),
		Host:   net.JoinHostPort(c.Host, strconv.Itoa(port)),
	}
	// An absent path selects the broker's default "/" vhost.
	if vhost := strings.TrimPrefix(c.VHost, "/"); vhost != "" {
		u.Path = "/" + vhost
	}
	return u.String()
}

// CrawlInterval is the pause between crawl cycles.
func (c Config) CrawlInterval() time.Duration {
	return time.Duration(c.Crawl.IntervalSeconds) * time.Second
}

// PageTimeout bounds HTML page fetches.
func (c Config) PageTimeout() time.Duration {
	return time.Duration(c.Fetcher.PageTimeoutSeconds) * time.Second
}

// ImageTimeout bounds panel image fetches.
func (c Config) ImageTimeout() time.Duration {
	return time.Duration(c.Fetcher.ImageTimeoutSeconds) * time.Second
}

// RetryInterval is the fixed pause between startup connection attempts.
func (c Config) RetryInterval() time.Duration {
	return time.Duration(c.Startup.RetryIntervalSeconds) * time.Second
}
