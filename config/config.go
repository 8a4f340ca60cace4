package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"gopkg.in/yaml.v3"
)

// ErrMissingAPIKey is returned when no provider API key is configured.
var ErrMissingAPIKey = errors.New("provider api key is required")

type Config struct {
	Priceflow  PriceflowConfig  `yaml:"priceflow"`
	Provider   ProviderConfig   `yaml:"provider"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Storage    StorageConfig    `yaml:"storage"`
	Validation ValidationConfig `yaml:"validation"`
	Notify     NotifyConfig     `yaml:"notify"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type PriceflowConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type ProviderConfig struct {
	BaseURL              string        `yaml:"base_url"`
	APIKey               string        `yaml:"api_key"`
	Function             string        `yaml:"function"`
	Interval             string        `yaml:"interval"`
	OutputSize           string        `yaml:"output_size"`
	SeriesKey            string        `yaml:"series_key"`
	Fields               FieldsConfig  `yaml:"fields"`
	Timeout              time.Duration `yaml:"timeout"`
	MaxRetries           int           `yaml:"max_retries"`
	RetryBaseDelay       time.Duration `yaml:"retry_base_delay"`
	MaxRequestsPerMinute int           `yaml:"max_requests_per_minute"`
}

// FieldsConfig overrides the provider field labels. Empty labels fall back to
// the defaults of the configured series function.
type FieldsConfig struct {
	Open          string `yaml:"open"`
	High          string `yaml:"high"`
	Low           string `yaml:"low"`
	Close         string `yaml:"close"`
	AdjustedClose string `yaml:"adjusted_close"`
	Volume        string `yaml:"volume"`
}

type PipelineConfig struct {
	Symbols     []string      `yaml:"symbols"`
	SymbolPause time.Duration `yaml:"symbol_pause"`
}

type StorageConfig struct {
	Postgres PostgresConfig `yaml:"postgres"`
	S3       S3Config       `yaml:"s3"`
}

type PostgresConfig struct {
	URL            string        `yaml:"url"`
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	Database       string        `yaml:"database"`
	User           string        `yaml:"user"`
	Password       string        `yaml:"password"`
	SSLMode        string        `yaml:"ssl_mode"`
	MaxConns       int32         `yaml:"max_conns"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	BatchSize      int           `yaml:"batch_size"`
	Retention      time.Duration `yaml:"retention"`
	Table          TableConfig   `yaml:"table"`
}

// TableConfig maps price points onto an existing table.
type TableConfig struct {
	Name            string `yaml:"name"`
	TimeColumn      string `yaml:"time_column"`
	AdjustedClose   bool   `yaml:"adjusted_close"`
	UpdatedAtColumn string `yaml:"updated_at_column"`
}

type S3Config struct {
	Enabled         bool   `yaml:"enabled"`
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	PathStyle       bool   `yaml:"path_style"`
	Prefix          string `yaml:"prefix"`
	Compression     string `yaml:"compression"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

type ValidationConfig struct {
	Enabled bool          `yaml:"enabled"`
	Window  time.Duration `yaml:"window"`
}

type NotifyConfig struct {
	Kafka KafkaConfig `yaml:"kafka"`
}

type KafkaConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Brokers      []string      `yaml:"brokers"`
	Topic        string        `yaml:"topic"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type MetricsConfig struct {
	CloudWatch  CloudWatchConfig  `yaml:"cloudwatch"`
	Pushgateway PushgatewayConfig `yaml:"pushgateway"`
}

type CloudWatchConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
	Region    string `yaml:"region"`
}

type PushgatewayConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Job     string `yaml:"job"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

// envOverrides holds the deployment environment variables. Pointer fields
// distinguish "unset" from a zero value.
type envOverrides struct {
	APIKey         string   `env:"ALPHA_VANTAGE_API_KEY"`
	Symbols        []string `env:"SYMBOLS" envSeparator:","`
	SymbolSleepSec *float64 `env:"AV_SYMBOL_SLEEP_SEC"`
	HTTPRetries    *int     `env:"HTTP_RETRIES"`
	HTTPTimeoutSec *float64 `env:"HTTP_TIMEOUT_SEC"`
	DatabaseURL    string   `env:"DATABASE_URL"`
	PostgresHost   string   `env:"POSTGRES_HOST"`
	PostgresPort   *int     `env:"POSTGRES_PORT"`
	PostgresDB     string   `env:"POSTGRES_DB"`
	PostgresUser   string   `env:"POSTGRES_USER"`
	PostgresPass   string   `env:"POSTGRES_PASSWORD"`
	AWSRegion      string   `env:"AWS_REGION"`
	AWSAccessKey   string   `env:"AWS_ACCESS_KEY_ID"`
	AWSSecretKey   string   `env:"AWS_SECRET_ACCESS_KEY"`
	S3Bucket       string   `env:"S3_BUCKET"`
	KafkaBrokers   []string `env:"KAFKA_BROKERS" envSeparator:","`
}

func defaultConfig() Config {
	return Config{
		Priceflow: PriceflowConfig{Name: "priceflow", Version: "dev"},
		Provider: ProviderConfig{
			BaseURL:        "https://www.alphavantage.co/query",
			Function:       "TIME_SERIES_INTRADAY",
			Interval:       "60min",
			OutputSize:     "compact",
			Timeout:        30 * time.Second,
			MaxRetries:     2,
			RetryBaseDelay: 2 * time.Second,
		},
		Pipeline: PipelineConfig{SymbolPause: 12 * time.Second},
		Storage: StorageConfig{
			Postgres: PostgresConfig{
				Host:           "localhost",
				Port:           5432,
				SSLMode:        "disable",
				MaxConns:       4,
				ConnectTimeout: 10 * time.Second,
				BatchSize:      500,
				Table: TableConfig{
					Name:            "stock_prices",
					TimeColumn:      "ts",
					UpdatedAtColumn: "updated_at",
				},
			},
			S3: S3Config{Prefix: "prices", Compression: "snappy"},
		},
		Validation: ValidationConfig{Enabled: true, Window: 7 * 24 * time.Hour},
		Notify: NotifyConfig{
			Kafka: KafkaConfig{Topic: "priceflow.runs", WriteTimeout: 10 * time.Second},
		},
		Metrics: MetricsConfig{
			CloudWatch:  CloudWatchConfig{Namespace: "Priceflow"},
			Pushgateway: PushgatewayConfig{Job: "priceflow"},
		},
		Logging: LoggingConfig{Level: "info", Format: "json", Output: "stdout"},
	}
}

// LoadConfig reads the YAML file at path on top of the defaults, applies
// environment overrides and validates the result. An empty path skips the
// file. APP_ENV may redirect the default path to an environment specific file.
func LoadConfig(path string) (*Config, error) {
	config := defaultConfig()

	path = resolveConfigPath(path)
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := applyEnvOverrides(&config); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	config.Provider.APIKey = strings.TrimSpace(config.Provider.APIKey)
	config.Pipeline.Symbols = NormalizeSymbols(config.Pipeline.Symbols)
	config.Storage.S3.Bucket = strings.TrimSpace(config.Storage.S3.Bucket)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func applyEnvOverrides(cfg *Config) error {
	var o envOverrides
	if err := env.Parse(&o); err != nil {
		return err
	}

	if o.APIKey != "" {
		cfg.Provider.APIKey = o.APIKey
	}
	if len(o.Symbols) > 0 {
		cfg.Pipeline.Symbols = o.Symbols
	}
	if o.SymbolSleepSec != nil {
		cfg.Pipeline.SymbolPause = seconds(*o.SymbolSleepSec)
	}
	if o.HTTPRetries != nil {
		cfg.Provider.MaxRetries = *o.HTTPRetries
	}
	if o.HTTPTimeoutSec != nil {
		cfg.Provider.Timeout = seconds(*o.HTTPTimeoutSec)
	}

	pg := &cfg.Storage.Postgres
	if o.DatabaseURL != "" {
		pg.URL = o.DatabaseURL
	}
	if o.PostgresHost != "" {
		pg.Host = o.PostgresHost
	}
	if o.PostgresPort != nil {
		pg.Port = *o.PostgresPort
	}
	if o.PostgresDB != "" {
		pg.Database = o.PostgresDB
	}
	if o.PostgresUser != "" {
		pg.User = o.PostgresUser
	}
	if o.PostgresPass != "" {
		pg.Password = o.PostgresPass
	}

	// Override S3 settings from environment variables if available
	if cfg.Storage.S3.Enabled {
		if o.AWSAccessKey != "" {
			cfg.Storage.S3.AccessKeyID = strings.TrimSpace(o.AWSAccessKey)
		}
		if o.AWSSecretKey != "" {
			cfg.Storage.S3.SecretAccessKey = strings.TrimSpace(o.AWSSecretKey)
		}
		if o.S3Bucket != "" {
			cfg.Storage.S3.Bucket = o.S3Bucket
		}
	}
	if region := strings.TrimSpace(o.AWSRegion); region != "" {
		if cfg.Storage.S3.Enabled {
			cfg.Storage.S3.Region = region
		}
		if cfg.Metrics.CloudWatch.Region == "" {
			cfg.Metrics.CloudWatch.Region = region
		}
	}
	if len(o.KafkaBrokers) > 0 {
		cfg.Notify.Kafka.Brokers = o.KafkaBrokers
	}
	return nil
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

// NormalizeSymbols trims and upper-cases symbols, dropping blanks and
// duplicates while keeping the first occurrence order.
func NormalizeSymbols(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// ConnString returns the explicit database URL when set, otherwise a
// postgres:// URL assembled from the individual fields.
func (p PostgresConfig) ConnString() string {
	if p.URL != "" {
		return p.URL
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   p.Host + ":" + strconv.Itoa(p.Port),
		Path:   "/" + p.Database,
	}
	if p.User != "" {
		if p.Password != "" {
			u.User = url.UserPassword(p.User, p.Password)
		} else {
			u.User = url.User(p.User)
		}
	}
	q := url.Values{}
	if p.SSLMode != "" {
		q.Set("sslmode", p.SSLMode)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func validateConfig(cfg *Config) error {
	if cfg.Provider.APIKey == "" {
		return ErrMissingAPIKey
	}
	if cfg.Provider.BaseURL == "" {
		return fmt.Errorf("provider.base_url is required")
	}
	if cfg.Provider.Function == "" {
		return fmt.Errorf("provider.function is required")
	}
	if cfg.Provider.Timeout <= 0 {
		return fmt.Errorf("provider.timeout must be greater than 0")
	}
	if cfg.Provider.MaxRetries < 0 {
		return fmt.Errorf("provider.max_retries must not be negative")
	}
	if cfg.Provider.RetryBaseDelay < 0 {
		return fmt.Errorf("provider.retry_base_delay must not be negative")
	}
	if cfg.Provider.MaxRequestsPerMinute < 0 {
		return fmt.Errorf("provider.max_requests_per_minute must not be negative")
	}
	if cfg.Pipeline.SymbolPause < 0 {
		return fmt.Errorf("pipeline.symbol_pause must not be negative")
	}

	pg := cfg.Storage.Postgres
	if pg.URL == "" && pg.Host == "" {
		return fmt.Errorf("storage.postgres.url or storage.postgres.host is required")
	}
	if pg.BatchSize <= 0 {
		return fmt.Errorf("storage.postgres.batch_size must be greater than 0")
	}
	if pg.Retention < 0 {
		return fmt.Errorf("storage.postgres.retention must not be negative")
	}
	if pg.Table.Name == "" || pg.Table.TimeColumn == "" {
		return fmt.Errorf("storage.postgres.table.name and time_column are required")
	}

	if cfg.Storage.S3.Enabled {
		if cfg.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required when S3 is enabled")
		}
		if cfg.Storage.S3.Region == "" {
			return fmt.Errorf("storage.s3.region is required when S3 is enabled")
		}
		if !isValidS3Bucket(cfg.Storage.S3.Bucket) {
			return fmt.Errorf("storage.s3.bucket '%s' is invalid", cfg.Storage.S3.Bucket)
		}
	}

	if cfg.Validation.Enabled && cfg.Validation.Window <= 0 {
		return fmt.Errorf("validation.window must be greater than 0")
	}

	if cfg.Notify.Kafka.Enabled {
		if len(cfg.Notify.Kafka.Brokers) == 0 {
			return fmt.Errorf("notify.kafka.brokers is required when kafka is enabled")
		}
		if cfg.Notify.Kafka.Topic == "" {
			return fmt.Errorf("notify.kafka.topic is required when kafka is enabled")
		}
	}

	if cfg.Metrics.Pushgateway.Enabled && cfg.Metrics.Pushgateway.URL == "" {
		return fmt.Errorf("metrics.pushgateway.url is required when pushgateway is enabled")
	}

	return nil
}

var s3BucketRegexp = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

func isValidS3Bucket(name string) bool {
	if len(name) < 3 || len(name) > 63 {
		return false
	}
	if strings.Contains(name, "..") || strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") {
		return false
	}
	return s3BucketRegexp.MatchString(name)
}
