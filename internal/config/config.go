package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	SES      SESConfig      `yaml:"ses"`
	Storage  StorageConfig  `yaml:"storage"`
	Redis    RedisConfig    `yaml:"redis"`
	Import   ImportConfig   `yaml:"import"`
	Dispatch DispatchConfig `yaml:"dispatch"`
	LogLevel string         `yaml:"log_level"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// GetHost returns the server host, with container detection.
func (c ServerConfig) GetHost() string {
	// On ECS/Lambda, listen on all interfaces
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// SESConfig holds AWS SES API configuration.
type SESConfig struct {
	Region         string `yaml:"region"`
	AccessKey      string `yaml:"access_key"`
	SecretKey      string `yaml:"secret_key"`
	FromName       string `yaml:"from_name"`
	FromEmail      string `yaml:"from_email"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the configured timeout as a duration.
func (c SESConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// StorageConfig holds DynamoDB and S3 storage configuration.
type StorageConfig struct {
	ContactTable  string `yaml:"contact_table"`
	CampaignTable string `yaml:"campaign_table"`
	AuditBucket   string `yaml:"audit_bucket"`
	AWSRegion     string `yaml:"aws_region"`
	AWSProfile    string `yaml:"aws_profile"` // Empty string uses default credential chain (IAM role)
}

// GetAWSProfile returns the AWS profile, with environment variable override.
func (c StorageConfig) GetAWSProfile() string {
	if envProfile := os.Getenv("AWS_PROFILE_OVERRIDE"); envProfile != "" {
		if envProfile == "none" || envProfile == "iam" {
			return ""
		}
		return envProfile
	}
	// On ECS/Lambda, don't use a profile - use the IAM role
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return ""
	}
	return c.AWSProfile
}

// RedisConfig holds the Redis connection used for rate limiting and
// campaign progress tracking.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// ImportConfig holds batch import settings.
type ImportConfig struct {
	EndpointURL    string `yaml:"endpoint_url"` // remote /contacts/batch endpoint
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the per-batch call timeout. The default of 29s matches the
// API Gateway integration ceiling.
func (c ImportConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// DispatchConfig holds campaign dispatch settings.
type DispatchConfig struct {
	RatePerSecond float64 `yaml:"rate_per_second"` // default ceiling when a campaign sets none
	MaxRate       float64 `yaml:"max_rate"`        // hard cap regardless of campaign config
}

// Load reads and parses the configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Set defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.SES.TimeoutSeconds == 0 {
		cfg.SES.TimeoutSeconds = 30
	}
	if cfg.SES.Region == "" {
		cfg.SES.Region = "us-east-1"
	}
	if cfg.Storage.AWSRegion == "" {
		cfg.Storage.AWSRegion = cfg.SES.Region
	}
	if cfg.Storage.ContactTable == "" {
		cfg.Storage.ContactTable = "campaign-contacts"
	}
	if cfg.Storage.CampaignTable == "" {
		cfg.Storage.CampaignTable = cfg.Storage.ContactTable
	}
	if cfg.Import.TimeoutSeconds == 0 {
		cfg.Import.TimeoutSeconds = 29
	}
	if cfg.Dispatch.RatePerSecond == 0 {
		cfg.Dispatch.RatePerSecond = 14 // SES sandbox default
	}
	if cfg.Dispatch.MaxRate == 0 {
		cfg.Dispatch.MaxRate = 500
	}
	if cfg.Redis.URL == "" {
		cfg.Redis.URL = "redis://localhost:6379/0"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	return &cfg, nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars on ECS/Lambda.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if accessKey := os.Getenv("AWS_SES_ACCESS_KEY"); accessKey != "" {
		cfg.SES.AccessKey = accessKey
	}
	if secretKey := os.Getenv("AWS_SES_SECRET_KEY"); secretKey != "" {
		cfg.SES.SecretKey = secretKey
	}
	if region := os.Getenv("AWS_SES_REGION"); region != "" {
		cfg.SES.Region = region
	}
	if v := os.Getenv("CONTACT_TABLE"); v != "" {
		cfg.Storage.ContactTable = v
	}
	if v := os.Getenv("CAMPAIGN_TABLE"); v != "" {
		cfg.Storage.CampaignTable = v
	}
	if v := os.Getenv("AUDIT_BUCKET"); v != "" {
		cfg.Storage.AuditBucket = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("IMPORT_ENDPOINT_URL"); v != "" {
		cfg.Import.EndpointURL = v
	}

	return cfg, nil
}
