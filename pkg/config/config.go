package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"ShrimpCast/pkg/kafka"
	"ShrimpCast/pkg/util"
)

type Config struct {
	Environment string `yaml:"environment" default:"development" validate:"required"`
	Server      struct {
		Port            int           `yaml:"port" default:"8080" validate:"gt=0,lt=65536"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"30s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
		RequestTimeout  time.Duration `yaml:"request_timeout" default:"20s"`
		// CORSOrigins lists browser origins allowed to call the API; empty disables CORS.
		CORSOrigins []string `yaml:"cors_origins"`
		RateLimit       struct {
			Capacity int           `yaml:"capacity" default:"10" validate:"gte=0"`
			Refill   time.Duration `yaml:"refill" default:"6s"`
			Prune    time.Duration `yaml:"prune" default:"1m"`
		} `yaml:"rate_limit"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
		Format string `yaml:"format" default:"json" validate:"oneof=json console"`
		Output string `yaml:"output" default:"stdout"`
		// Errors are aggregated and shipped to kafka.topics.logs when Kafka is enabled.
		CollectorInterval time.Duration `yaml:"collector_interval" default:"30s"`
	} `yaml:"log"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Store struct {
		Backend           string        `yaml:"backend" default:"memory" validate:"oneof=memory sqlite clickhouse"`
		SQLitePath        string        `yaml:"sqlite_path" default:"shrimpcast.db"`
		SQLiteBusyTimeout time.Duration `yaml:"sqlite_busy_timeout" default:"5s"`
	} `yaml:"store"`
	ClickHouse struct {
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"shrimpcast"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
		MaxOpenConns     int           `yaml:"max_open_conns" default:"10" validate:"gt=0"`
		MaxIdleConns     int           `yaml:"max_idle_conns" default:"5" validate:"gte=0"`
		AsyncInsert      bool          `yaml:"async_insert" default:"true"`
	} `yaml:"clickhouse"`
	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Addr     string `yaml:"addr" default:"localhost:6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Cache struct {
		Enabled bool          `yaml:"enabled" default:"true"`
		TTL     time.Duration `yaml:"ttl" default:"10m"`
		MaxSize int           `yaml:"max_size" default:"1000" validate:"gt=0"`
	} `yaml:"cache"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers"`
		RequiredAcks int      `yaml:"required_acks" default:"-1"`
		Compression  string   `yaml:"compression" default:"gzip" validate:"oneof=gzip snappy lz4 zstd"`
		Topics       kafka.Topics `yaml:"topics"`
		Producer struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger" default:"100ms"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id" default:"shrimpcast"`
			Workers    int           `yaml:"workers" default:"2" validate:"gt=0"`
			BufferSize int           `yaml:"buffer_size" default:"64"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"50ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"2s"`
			// DeadLetter parks records that keep failing on kafka.topics.dead_letter.
			DeadLetter bool `yaml:"dead_letter" default:"true"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	Queue struct {
		Name         string        `yaml:"name" default:"correlations"`
		Workers      int           `yaml:"workers" default:"1" validate:"gt=0"`
		PollInterval time.Duration `yaml:"poll_interval" default:"2s"`
	} `yaml:"queue"`
	Forecast struct {
		LookbackDays  int     `yaml:"lookback_days" default:"90" validate:"gt=0"`
		EMAAlpha      float64 `yaml:"ema_alpha" default:"0.3" validate:"gt=0,lte=1"`
		EMADamping    float64 `yaml:"ema_damping" default:"0.5" validate:"gte=0,lte=1"`
		HeadlessRatio float64 `yaml:"headless_ratio" default:"0.65" validate:"gt=0"`
		DefaultRatio  float64 `yaml:"default_ratio" default:"0.70" validate:"gt=0"`
		BatchWorkers  int     `yaml:"batch_workers" default:"4" validate:"gt=0"`
	} `yaml:"forecast"`
	Purchase struct {
		MinimumMargin     float64 `yaml:"minimum_margin" default:"0.10" validate:"gt=0"`
		RecommendedMargin float64 `yaml:"recommended_margin" default:"0.15" validate:"gtefield=MinimumMargin"`
	} `yaml:"purchase"`
	Consolidation struct {
		SourceWeights     map[string]float64 `yaml:"source_weights" validate:"dive,gt=0,lte=1"`
		UnitValuePriority []string           `yaml:"unit_value_priority"`
		Calibers          []string           `yaml:"calibers"`
	} `yaml:"consolidation"`
}

var validate = validator.New()

// Default returns a configuration with every default applied.
func Default() (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	return &c, nil
}

// Parse decodes YAML bytes on top of the defaults and validates the result.
func Parse(b []byte) (*Config, error) {
	c, err := Default()
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
// An empty path skips the file and starts from defaults.
func LoadWithEnv(path string) (*Config, error) {
	var (
		c   *Config
		err error
	)
	if path == "" {
		c, err = Default()
	} else {
		c, err = Load(path)
	}
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("STORE_BACKEND"); v != "" {
		c.Store.Backend = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		c.Store.SQLitePath = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = util.SplitCSV(v)
		c.Kafka.Enabled = true
	}
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		c.Server.CORSOrigins = util.SplitCSV(v)
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
		c.Redis.Enabled = true
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("HTTP_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("HTTP_PORT: %w", err)
		}
		c.Server.Port = port
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// Validate checks struct tags and cross-field rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if err := c.Kafka.Topics.Validate(); err != nil {
		return fmt.Errorf("kafka.topics: %w", err)
	}
	if c.Store.Backend == "sqlite" && c.Store.SQLitePath == "" {
		return fmt.Errorf("store.sqlite_path is required for the sqlite backend")
	}
	return nil
}
