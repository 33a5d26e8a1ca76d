package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" default:"development" validate:"required"`
	Log         struct {
		Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
		Format string `yaml:"format" default:"json" validate:"oneof=json console"`
		Output string `yaml:"output" default:"stdout"`
	} `yaml:"log"`
	Server struct {
		Port            int           `yaml:"port" default:"8080" validate:"gte=1,lte=65535"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"120s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Store struct {
		Backend  string `yaml:"backend" default:"postgres" validate:"oneof=postgres clickhouse memory"`
		Postgres struct {
			DSN          string        `yaml:"dsn"`
			MaxConns     int32         `yaml:"max_conns" default:"10"`
			MinConns     int32         `yaml:"min_conns" default:"1"`
			ConnLifetime time.Duration `yaml:"conn_lifetime" default:"30m"`
		} `yaml:"postgres"`
		ClickHouse struct {
			Host             string        `yaml:"host"`
			Port             int           `yaml:"port" default:"9000"`
			Database         string        `yaml:"database" default:"barpull"`
			User             string        `yaml:"user" default:"default"`
			Password         string        `yaml:"password"`
			UseHTTP          bool          `yaml:"use_http"`
			DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
			ReadTimeout      time.Duration `yaml:"read_timeout" default:"30s"`
			WriteTimeout     time.Duration `yaml:"write_timeout" default:"30s"`
			MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`

			// AsyncInsert lets the server buffer bar inserts. Inserts still
			// wait for the flush unless AsyncInsertNoWait is set.
			AsyncInsert       bool `yaml:"async_insert"`
			AsyncInsertNoWait bool `yaml:"async_insert_no_wait"`
		} `yaml:"clickhouse"`
	} `yaml:"store"`
	Providers []Provider `yaml:"providers" validate:"min=1,dive"`
	Ingestion struct {
		DefaultStart   string        `yaml:"default_start" default:"2017-01-01T00:00:00Z"`
		BaseDelay      time.Duration `yaml:"base_delay" default:"200ms"`
		BurstEvery     int           `yaml:"burst_every" default:"10" validate:"gte=0"`
		BurstCooldown  time.Duration `yaml:"burst_cooldown" default:"2s"`
		RetryAttempts  int           `yaml:"retry_attempts" default:"3" validate:"gte=1,lte=10"`
		RetryBaseDelay time.Duration `yaml:"retry_base_delay" default:"1s"`
		RequestTimeout time.Duration `yaml:"request_timeout" default:"30s"`
		// MaxRows caps rows per request for providers that set none.
		MaxRows int `yaml:"max_rows" validate:"gte=0,lte=5000"`
		// AllowUnregistered lets jobs run for symbols missing from the registry.
		AllowUnregistered bool `yaml:"allow_unregistered"`
	} `yaml:"ingestion"`
	Quality struct {
		GapThresholdPct float64 `yaml:"gap_threshold_pct" default:"1" validate:"gte=0,lte=100"`
		LookbackHours   int     `yaml:"lookback_hours" default:"168" validate:"gte=1"`
	} `yaml:"quality"`
	Jobs struct {
		Workers    int           `yaml:"workers" default:"2" validate:"gte=1"`
		QueueSize  int           `yaml:"queue_size" default:"256" validate:"gte=1"`
		RetryLimit int           `yaml:"retry_limit" default:"3" validate:"gte=0"`
		RetryDelay time.Duration `yaml:"retry_delay" default:"1m"`
		LockTTL    time.Duration `yaml:"lock_ttl" default:"6h"`
		KeyPrefix  string        `yaml:"key_prefix" default:"barpull"`
	} `yaml:"jobs"`
	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Host     string `yaml:"host" default:"localhost"`
		Port     int    `yaml:"port" default:"6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		PoolSize int    `yaml:"pool_size" default:"10"`
	} `yaml:"redis"`
	Kafka struct {
		Enabled      bool          `yaml:"enabled"`
		Brokers      []string      `yaml:"brokers"`
		Topic        string        `yaml:"topic" default:"barpull.ingestion"`
		RequiredAcks int           `yaml:"required_acks" default:"-1"`
		Compression  string        `yaml:"compression" default:"gzip" validate:"oneof=gzip snappy lz4 zstd"`
		MaxAttempts  int           `yaml:"max_attempts" default:"3"`
		BatchSize    int           `yaml:"batch_size" default:"100"`
		BatchTimeout time.Duration `yaml:"batch_timeout" default:"200ms"`
		WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
		Async        bool          `yaml:"async"`
	} `yaml:"kafka"`
	Schedule struct {
		Enabled      bool     `yaml:"enabled"`
		BackfillCron string   `yaml:"backfill_cron" default:"0 */15 * * * *"`
		RepairCron   string   `yaml:"repair_cron" default:"0 5 * * * *"`
		QualityCron  string   `yaml:"quality_cron" default:"0 30 * * * *"`
		Timeframes   []string `yaml:"timeframes" validate:"dive,oneof=1m 5m 15m 1h 4h 1d"`
	} `yaml:"schedule"`
	Instruments []Instrument `yaml:"instruments" validate:"dive"`
}

// Provider configures one upstream kline source.
type Provider struct {
	Name        string            `yaml:"name" validate:"required"`
	Profile     string            `yaml:"profile" validate:"required,oneof=binance binance_us mexc"`
	BaseURL     string            `yaml:"base_url"`
	QuoteSuffix string            `yaml:"quote_suffix" default:"USDT"`
	SymbolMap   map[string]string `yaml:"symbol_map"`
	MaxRows     int               `yaml:"max_rows" validate:"gte=0,lte=5000"`
	// RequestsPerMinute is the provider's shared budget across all workers.
	RequestsPerMinute int  `yaml:"requests_per_minute" default:"1200" validate:"gte=0"`
	Disabled          bool `yaml:"disabled"`
}

type Instrument struct {
	ID       string `yaml:"id"`
	Ticker   string `yaml:"ticker" validate:"required"`
	Disabled bool   `yaml:"disabled"`
}

var validate = validator.New()

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML, applies defaults and validates the result.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := c.finish(); err != nil {
		return nil, err
	}
	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("BARPULL_ENV"); v != "" {
		c.Environment = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("STORE_BACKEND"); v != "" {
		c.Store.Backend = v
	}
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		c.Store.Postgres.DSN = v
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.Store.ClickHouse.Host = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
		c.Kafka.Enabled = true
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		host, port, ok := strings.Cut(v, ":")
		c.Redis.Host = host
		if ok {
			if p, err := strconv.Atoi(port); err == nil {
				c.Redis.Port = p
			}
		}
		c.Redis.Enabled = true
	}
	if v := os.Getenv("SYMBOLS"); v != "" {
		c.Instruments = c.Instruments[:0]
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				c.Instruments = append(c.Instruments, Instrument{ID: s, Ticker: s})
			}
		}
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) finish() error {
	if err := defaults.Set(c); err != nil {
		return fmt.Errorf("config defaults: %w", err)
	}
	for i := range c.Providers {
		if err := defaults.Set(&c.Providers[i]); err != nil {
			return fmt.Errorf("provider defaults: %w", err)
		}
	}
	for i := range c.Instruments {
		if c.Instruments[i].ID == "" {
			c.Instruments[i].ID = c.Instruments[i].Ticker
		}
	}
	if err := c.Validate(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}
	return nil
}

// Validate checks struct tags and cross-field rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	switch c.Store.Backend {
	case "postgres":
		if c.Store.Postgres.DSN == "" {
			return fmt.Errorf("store.postgres.dsn is required for the postgres backend")
		}
	case "clickhouse":
		if c.Store.ClickHouse.Host == "" {
			return fmt.Errorf("store.clickhouse.host is required for the clickhouse backend")
		}
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if _, err := c.DefaultStart(); err != nil {
		return err
	}
	seen := make(map[string]bool, len(c.Providers))
	for _, p := range c.Providers {
		if seen[p.Name] {
			return fmt.Errorf("duplicate provider name %q", p.Name)
		}
		seen[p.Name] = true
	}
	return nil
}

// DefaultStart returns the epoch used when a backfill has no explicit start.
func (c *Config) DefaultStart() (time.Time, error) {
	t, err := time.Parse(time.RFC3339, c.Ingestion.DefaultStart)
	if err != nil {
		return time.Time{}, fmt.Errorf("ingestion.default_start: %w", err)
	}
	return t.UTC(), nil
}
