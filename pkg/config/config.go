package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"FieldScan/pkg/logger"
	xutil "FieldScan/pkg/util"
)

type Config struct {
	Environment string `yaml:"environment" default:"development"`
	Log         struct {
		Level  string `yaml:"level" default:"info"`
		Format string `yaml:"format" default:"console"`
		Output string `yaml:"output" default:"stdout"`
	} `yaml:"log"`
	Server struct {
		Port            int           `yaml:"port" default:"8080"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"15s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"15s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Tracing struct {
		Enabled     bool    `yaml:"enabled"`
		ServiceName string  `yaml:"service_name" default:"fieldscan"`
		SampleRatio float64 `yaml:"sample_ratio" default:"1"`
	} `yaml:"tracing"`
	Engine     EngineConfig     `yaml:"engine"`
	Scan       ScanConfig       `yaml:"scan"`
	Data       DataConfig       `yaml:"data"`
	Finnhub    FinnhubConfig    `yaml:"finnhub"`
	Storage    StorageConfig    `yaml:"storage"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Redis      RedisConfig      `yaml:"redis"`
}

// EngineConfig holds the scoring and resolution parameters. Invalid values
// fall back to their defaults in Sanitize.
type EngineConfig struct {
	Percentile          float64       `yaml:"percentile" default:"0.95" validate:"gt=0,lte=1"`
	MassThreshold       float64       `yaml:"mass_threshold" default:"-0.5" validate:"gte=-10,lte=10"`
	MinScoreFloor       float64       `yaml:"min_score_floor" default:"0" validate:"gte=-100,lte=100"`
	TPMultiplier        float64       `yaml:"tp_multiplier" default:"5" validate:"gt=0,lte=100"`
	SLMultiplier        float64       `yaml:"sl_multiplier" default:"2" validate:"gt=0,lte=100"`
	MaxHoldDays         int           `yaml:"max_hold_days" default:"5" validate:"gte=1,lte=250"`
	SetupLabel          string        `yaml:"setup_label" default:"FIELD_AQM" validate:"required,max=64"`
	TieBreak            string        `yaml:"tie_break" default:"tp_first" validate:"oneof=tp_first sl_first bar_path"`
	DedupeWindow        time.Duration `yaml:"dedupe_window" default:"20h" validate:"gt=0"`
	NormWindow          int           `yaml:"norm_window" default:"100" validate:"gte=2,lte=5000"`
	HistoryBuffer       int           `yaml:"history_buffer" default:"201" validate:"gte=1,lte=5000"`
	InsiderLookbackDays int           `yaml:"insider_lookback_days" default:"30" validate:"gte=1,lte=365"`
	HerdingLookbackDays int           `yaml:"herding_lookback_days" default:"5" validate:"gte=1,lte=365"`
}

type ScanConfig struct {
	Mode         string   `yaml:"mode" default:"backtest"`
	Workers      int      `yaml:"workers" default:"4"`
	Universe     []string `yaml:"universe"`
	UniverseFile string   `yaml:"universe_file"`
	Schedule     string   `yaml:"schedule" default:"0 22 * * 1-5"`
	ReviewOpen   bool     `yaml:"review_open" default:"true"`
}

type DataConfig struct {
	Source      string        `yaml:"source" default:"csv"`
	CSVDir      string        `yaml:"csv_dir" default:"data"`
	HistoryDays int           `yaml:"history_days" default:"730"`
	CacheTTL    time.Duration `yaml:"cache_ttl" default:"15m"`
	RatePerSec  float64       `yaml:"rate_per_sec" default:"1"`
	Burst       int           `yaml:"burst" default:"2"`
	Timeout     time.Duration `yaml:"timeout" default:"10s"`
	Breaker     struct {
		MaxFailures uint32        `yaml:"max_failures" default:"5"`
		OpenTimeout time.Duration `yaml:"open_timeout" default:"30s"`
	} `yaml:"breaker"`
}

type FinnhubConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url" default:"https://finnhub.io/api/v1"`
}

type StorageConfig struct {
	Backend     string `yaml:"backend" default:"sqlite"`
	SQLitePath  string `yaml:"sqlite_path" default:"fieldscan.db"`
	PostgresDSN string `yaml:"postgres_dsn"`
}

type ClickHouseConfig struct {
	Host             string        `yaml:"host" default:"localhost"`
	Port             int           `yaml:"port" default:"9000"`
	Database         string        `yaml:"database" default:"fieldscan"`
	User             string        `yaml:"user" default:"default"`
	Password         string        `yaml:"password"`
	UseHTTP          bool          `yaml:"use_http"`
	AsyncInsert      bool          `yaml:"async_insert"`
	WaitForAsync     bool          `yaml:"wait_for_async_insert"`
	DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
	ReadTimeout      time.Duration `yaml:"read_timeout" default:"30s"`
	WriteTimeout     time.Duration `yaml:"write_timeout" default:"30s"`
	MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
	Archive          bool          `yaml:"archive"`
}

type KafkaConfig struct {
	Enabled      bool     `yaml:"enabled"`
	Brokers      []string `yaml:"brokers" default:"[\"localhost:9092\"]"`
	SignalsTopic string   `yaml:"signals_topic" default:"fieldscan.signals"`
	TradesTopic  string   `yaml:"trades_topic" default:"fieldscan.trades"`
	LogsTopic    string   `yaml:"logs_topic" default:"fieldscan.logs"`
	RequiredAcks int      `yaml:"required_acks" default:"-1"`
	Compression  string   `yaml:"compression" default:"snappy"`
	Producer     struct {
		MaxAttempts  int           `yaml:"max_attempts" default:"5"`
		Linger       time.Duration `yaml:"linger" default:"50ms"`
		BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
		BatchSize    int           `yaml:"batch_size" default:"100"`
		WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
		ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
		Async        bool          `yaml:"async"`
	} `yaml:"producer"`
	// Consumer reads scan requests. An empty requests_topic disables it.
	Consumer struct {
		GroupID       string        `yaml:"group_id" default:"fieldscan"`
		RequestsTopic string        `yaml:"requests_topic" default:"fieldscan.scan_requests"`
		Workers       int           `yaml:"workers" default:"1"`
		RetryMax      int           `yaml:"retry_max" default:"30"`
		BackoffMin    time.Duration `yaml:"backoff_min" default:"1s"`
		BackoffMax    time.Duration `yaml:"backoff_max" default:"1m"`
		DLQTopic      string        `yaml:"dlq_topic" default:"fieldscan.scan_requests.dlq"`
	} `yaml:"consumer"`
	Pipeline struct {
		BufferSize int           `yaml:"buffer_size" default:"1024"`
		RetryMax   int           `yaml:"retry_max" default:"5"`
		BackoffMin time.Duration `yaml:"backoff_min" default:"200ms"`
		BackoffMax time.Duration `yaml:"backoff_max" default:"10s"`
	} `yaml:"pipeline"`
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host" default:"localhost"`
	Port     int    `yaml:"port" default:"6379"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix" default:"fieldscan"`
}

// Load reads and parses a YAML configuration file on top of the defaults.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes raw YAML. Keys absent from the document keep their defaults.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	c.applyEnv(os.Getenv)
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv("FINNHUB_API_KEY"); v != "" {
		c.Finnhub.APIKey = v
	}
	if v := getenv("DATA_SOURCE"); v != "" {
		c.Data.Source = v
	}
	if v := getenv("TICKERS"); v != "" {
		c.Scan.Universe = splitList(v)
	}
	if v := getenv("STORAGE_BACKEND"); v != "" {
		c.Storage.Backend = v
	}
	if v := getenv("POSTGRES_DSN"); v != "" {
		c.Storage.PostgresDSN = v
	}
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = splitList(v)
	}
	if v := getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := getenv("SCAN_WORKERS"); v != "" {
		c.Scan.Workers = xutil.ParseIntDefault(v, c.Scan.Workers)
	}
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks structural settings. Engine tunables are handled by Sanitize.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	switch c.Scan.Mode {
	case "backtest", "live":
	default:
		return fmt.Errorf("scan.mode must be 'backtest' or 'live', got '%s'", c.Scan.Mode)
	}
	if c.Scan.Workers < 1 {
		return fmt.Errorf("scan.workers must be positive, got %d", c.Scan.Workers)
	}
	switch c.Data.Source {
	case "csv", "clickhouse":
	case "finnhub":
		if c.Finnhub.APIKey == "" {
			return fmt.Errorf("finnhub.api_key is required for data.source 'finnhub'")
		}
	default:
		return fmt.Errorf("data.source must be 'csv', 'clickhouse' or 'finnhub', got '%s'", c.Data.Source)
	}
	switch c.Storage.Backend {
	case "memory", "sqlite":
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("storage.postgres_dsn is required for backend 'postgres'")
		}
	default:
		return fmt.Errorf("storage.backend must be 'memory', 'sqlite' or 'postgres', got '%s'", c.Storage.Backend)
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	return nil
}

var engineValidator = validator.New()

// Sanitize resets every invalid engine field to its default and logs a warning
// per field. It returns the names of the fields that were reset.
func (e *EngineConfig) Sanitize(log *logger.Logger) []string {
	err := engineValidator.Struct(e)
	if err == nil {
		return nil
	}
	errs, ok := err.(validator.ValidationErrors)
	if !ok {
		return nil
	}

	var fallback EngineConfig
	_ = defaults.Set(&fallback)

	target := reflect.ValueOf(e).Elem()
	source := reflect.ValueOf(fallback)
	reset := make([]string, 0, len(errs))
	for _, fe := range errs {
		name := fe.StructField()
		field := target.FieldByName(name)
		if !field.IsValid() || !field.CanSet() {
			continue
		}
		if log != nil {
			log.Warn("invalid engine setting, using default",
				logger.String("field", fe.Field()),
				logger.Any("value", fe.Value()),
				logger.String("rule", fe.Tag()),
				logger.Any("default", source.FieldByName(name).Interface()),
			)
		}
		field.Set(source.FieldByName(name))
		reset = append(reset, name)
	}
	return reset
}
