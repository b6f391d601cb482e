package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	API        APIConfig        `yaml:"api"`
	ETL        ETLConfig        `yaml:"etl"`
	Bronze     BronzeConfig     `yaml:"bronze"`
	Storage    StorageConfig    `yaml:"storage"`
	Database   DatabaseConfig   `yaml:"database"`
	Dashboard  DashboardConfig  `yaml:"dashboard"`
	Logging    LoggingConfig    `yaml:"logging"`
	Affiliates []AffiliateConfig
}

type AppConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type APIConfig struct {
	BaseURL        string               `yaml:"base_url"`
	TimeoutSeconds int                  `yaml:"timeout_seconds"`
	ConnectionPool ConnectionPoolConfig `yaml:"connection_pool"`
	RateLimit      RateLimitConfig      `yaml:"rate_limit"`
}

type ConnectionPoolConfig struct {
	MaxIdleConns           int `yaml:"max_idle_conns"`
	MaxConnsPerHost        int `yaml:"max_conns_per_host"`
	IdleConnTimeoutSeconds int `yaml:"idle_conn_timeout_seconds"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	BurstSize         float64 `yaml:"burst_size"`
}

type ETLConfig struct {
	PageSize        int    `yaml:"page_size"`
	WindowMinutes   int    `yaml:"window_minutes"`
	LookbackMinutes int    `yaml:"lookback_minutes"`
	CheckpointDir   string `yaml:"checkpoint_dir"`
}

type BronzeConfig struct {
	Dir string `yaml:"dir"`
}

type StorageConfig struct {
	S3    S3Config    `yaml:"s3"`
	Kafka KafkaConfig `yaml:"kafka"`
}

type S3Config struct {
	Enabled         bool   `yaml:"enabled"`
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	PathStyle       bool   `yaml:"path_style"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type DatabaseConfig struct {
	Enabled  bool   `yaml:"enabled"`
	DSN      string `yaml:"dsn"`
	MaxConns int    `yaml:"max_conns"`
}

type DashboardConfig struct {
	Enabled           bool    `yaml:"enabled"`
	Address           string  `yaml:"address"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	BurstSize         int     `yaml:"burst_size"`
}

type LoggingConfig struct {
	Level             string `yaml:"level"`
	Format            string `yaml:"format"`
	Output            string `yaml:"output"`
	MaxAge            int    `yaml:"max_age"`
	MetricsNamespace  string `yaml:"metrics_namespace"`
	CloudWatchEnabled bool   `yaml:"cloudwatch_enabled"`
}

type AffiliateConfig struct {
	ID            string
	Name          string
	APIKey        string
	APISecret     string
	APIPassphrase string
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Config{
		ETL: ETLConfig{
			PageSize:        1000,
			WindowMinutes:   10,
			LookbackMinutes: 10,
		},
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Override secrets from environment variables if available
	if v := os.Getenv("BITGET_BASE_URL"); v != "" {
		config.API.BaseURL = strings.TrimSpace(v)
	}
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		config.Database.DSN = strings.TrimSpace(v)
	}
	if config.Storage.S3.Enabled {
		if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
			config.Storage.S3.AccessKeyID = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
			config.Storage.S3.SecretAccessKey = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_REGION"); v != "" {
			config.Storage.S3.Region = strings.TrimSpace(v)
		}
		if v := os.Getenv("S3_BUCKET"); v != "" {
			config.Storage.S3.Bucket = strings.TrimSpace(v)
		}
	}

	affiliates, err := loadAffiliates()
	if err != nil {
		return nil, err
	}
	config.Affiliates = affiliates

	if err := config.validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// loadAffiliates reads affiliate credentials from environment variables.
// BITGET_AFFILIATE_IDS lists the configured ids; each id then needs
// BITGET_AFFILIATE_<id>_API_KEY, _API_SECRET and _API_PASSPHRASE.
func loadAffiliates() ([]AffiliateConfig, error) {
	ids := strings.Split(os.Getenv("BITGET_AFFILIATE_IDS"), ",")
	affiliates := make([]AffiliateConfig, 0, len(ids))
	for _, raw := range ids {
		id := strings.TrimSpace(raw)
		if id == "" {
			continue
		}
		aff := AffiliateConfig{
			ID:            id,
			Name:          os.Getenv(fmt.Sprintf("BITGET_AFFILIATE_%s_NAME", id)),
			APIKey:        os.Getenv(fmt.Sprintf("BITGET_AFFILIATE_%s_API_KEY", id)),
			APISecret:     os.Getenv(fmt.Sprintf("BITGET_AFFILIATE_%s_API_SECRET", id)),
			APIPassphrase: os.Getenv(fmt.Sprintf("BITGET_AFFILIATE_%s_API_PASSPHRASE", id)),
		}
		if aff.APIKey == "" || aff.APISecret == "" || aff.APIPassphrase == "" {
			return nil, fmt.Errorf("incomplete credentials for affiliate %q", id)
		}
		if aff.Name == "" {
			aff.Name = "Affiliate " + id
		}
		affiliates = append(affiliates, aff)
	}
	return affiliates, nil
}

func (c *Config) validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is required")
	}
	if c.ETL.PageSize <= 0 {
		return fmt.Errorf("etl.page_size must be positive")
	}
	if c.ETL.WindowMinutes <= 0 {
		return fmt.Errorf("etl.window_minutes must be positive")
	}
	if c.Bronze.Dir == "" {
		c.Bronze.Dir = "data/bronze"
	}
	if c.ETL.CheckpointDir == "" {
		c.ETL.CheckpointDir = "data/state"
	}
	if c.API.RateLimit.RequestsPerSecond <= 0 {
		c.API.RateLimit.RequestsPerSecond = 5
	}
	if c.API.RateLimit.BurstSize <= 0 {
		c.API.RateLimit.BurstSize = 10
	}
	if c.API.TimeoutSeconds <= 0 {
		c.API.TimeoutSeconds = 30
	}
	if c.Database.Enabled && c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required when database is enabled")
	}
	if c.Storage.Kafka.Enabled && len(c.Storage.Kafka.Brokers) == 0 {
		return fmt.Errorf("storage.kafka.brokers is required when kafka is enabled")
	}
	return nil
}
