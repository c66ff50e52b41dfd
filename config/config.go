package config

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Akashwatch    AkashwatchConfig     `yaml:"akashwatch"`
	Stream        StreamConfig         `yaml:"stream"`
	Subscriptions []SubscriptionConfig `yaml:"subscriptions"`
	Archive       ArchiveConfig        `yaml:"archive"`
	Dashboard     DashboardConfig      `yaml:"dashboard"`
	Logging       LoggingConfig        `yaml:"logging"`
}

type AkashwatchConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// StreamConfig controls the websocket client: endpoint, reconnection backoff
// and heartbeat liveness checks.
type StreamConfig struct {
	RPCEndpoint          string        `yaml:"rpc_endpoint"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`
	ReconnectBaseDelay   time.Duration `yaml:"reconnect_base_delay"`
	MaxReconnectDelay    time.Duration `yaml:"max_reconnect_delay"`
	HeartbeatInterval    time.Duration `yaml:"heartbeat_interval"`
	HeartbeatTimeout     time.Duration `yaml:"heartbeat_timeout"`
	SendRateLimit        int           `yaml:"send_rate_limit"`
	SendBurst            int           `yaml:"send_burst"`
	DispatchBuffer       int           `yaml:"dispatch_buffer"`
}

// SubscriptionConfig declares a subscription the watcher registers at startup.
type SubscriptionConfig struct {
	Query  string       `yaml:"query"`
	Filter FilterConfig `yaml:"filter"`
}

type FilterConfig struct {
	Types    []string `yaml:"types"`
	Owner    string   `yaml:"owner"`
	Provider string   `yaml:"provider"`
	DSeq     string   `yaml:"dseq"`
}

type ArchiveConfig struct {
	Enabled       bool          `yaml:"enabled"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	MaxBatchSize  int           `yaml:"max_batch_size"`
	S3            S3Config      `yaml:"s3"`
}

type S3Config struct {
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Prefix          string `yaml:"prefix"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

type DashboardConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Address         string        `yaml:"address"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	HistoryLimit    int           `yaml:"history_limit"`
}

type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	MaxAge       int    `yaml:"max_age"`
	CloudWatch   bool   `yaml:"cloudwatch"`
	CWNamespace  string `yaml:"cloudwatch_namespace"`
	ReportPeriod int    `yaml:"report_period_seconds"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Config{}
	if err := yaml.Unmarshal(expandEnv(data), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&config)

	// Override S3 settings from environment variables if available
	if config.Archive.Enabled {
		if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
			config.Archive.S3.AccessKeyID = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
			config.Archive.S3.SecretAccessKey = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_REGION"); v != "" {
			config.Archive.S3.Region = strings.TrimSpace(v)
		}
		if v := os.Getenv("S3_BUCKET"); v != "" {
			config.Archive.S3.Bucket = strings.TrimSpace(v)
		}
	}
	config.Archive.S3.Bucket = strings.TrimSpace(config.Archive.S3.Bucket)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

var envVarRegexp = regexp.MustCompile(`\$\{(\w+)\}`)

// expandEnv substitutes ${VAR} references with environment variable values.
func expandEnv(data []byte) []byte {
	return envVarRegexp.ReplaceAllFunc(data, func(match []byte) []byte {
		name := string(envVarRegexp.FindSubmatch(match)[1])
		return []byte(os.Getenv(name))
	})
}

func applyDefaults(cfg *Config) {
	if cfg.Stream.MaxReconnectAttempts == 0 {
		cfg.Stream.MaxReconnectAttempts = 5
	}
	if cfg.Stream.ReconnectBaseDelay == 0 {
		cfg.Stream.ReconnectBaseDelay = time.Second
	}
	if cfg.Stream.MaxReconnectDelay == 0 {
		cfg.Stream.MaxReconnectDelay = 30 * time.Second
	}
	if cfg.Stream.HeartbeatInterval == 0 {
		cfg.Stream.HeartbeatInterval = 30 * time.Second
	}
	if cfg.Stream.HeartbeatTimeout == 0 {
		cfg.Stream.HeartbeatTimeout = 10 * time.Second
	}
	if cfg.Stream.DispatchBuffer == 0 {
		cfg.Stream.DispatchBuffer = 256
	}
	if cfg.Archive.FlushInterval == 0 {
		cfg.Archive.FlushInterval = time.Minute
	}
	if cfg.Archive.MaxBatchSize == 0 {
		cfg.Archive.MaxBatchSize = 1000
	}
	if cfg.Dashboard.RefreshInterval == 0 {
		cfg.Dashboard.RefreshInterval = 5 * time.Second
	}
	if cfg.Dashboard.HistoryLimit == 0 {
		cfg.Dashboard.HistoryLimit = 200
	}
}

func validateConfig(cfg *Config) error {
	if cfg.Akashwatch.Name == "" {
		return fmt.Errorf("akashwatch.name is required")
	}
	if cfg.Akashwatch.Version == "" {
		return fmt.Errorf("akashwatch.version is required")
	}

	if cfg.Stream.RPCEndpoint == "" {
		return fmt.Errorf("stream.rpc_endpoint is required")
	}
	u, err := url.Parse(cfg.Stream.RPCEndpoint)
	if err != nil {
		return fmt.Errorf("stream.rpc_endpoint is not a valid URL: %w", err)
	}
	switch u.Scheme {
	case "http", "https", "ws", "wss":
	default:
		return fmt.Errorf("stream.rpc_endpoint scheme '%s' is not supported", u.Scheme)
	}

	if cfg.Stream.MaxReconnectAttempts < 0 {
		return fmt.Errorf("stream.max_reconnect_attempts must not be negative")
	}
	if cfg.Stream.ReconnectBaseDelay <= 0 {
		return fmt.Errorf("stream.reconnect_base_delay must be greater than 0")
	}
	if cfg.Stream.MaxReconnectDelay < cfg.Stream.ReconnectBaseDelay {
		return fmt.Errorf("stream.max_reconnect_delay must not be smaller than the base delay")
	}
	if cfg.Stream.HeartbeatInterval <= 0 {
		return fmt.Errorf("stream.heartbeat_interval must be greater than 0")
	}
	if cfg.Stream.HeartbeatTimeout <= 0 {
		return fmt.Errorf("stream.heartbeat_timeout must be greater than 0")
	}

	for i, sub := range cfg.Subscriptions {
		if strings.TrimSpace(sub.Query) == "" {
			return fmt.Errorf("subscriptions[%d].query is required", i)
		}
	}

	if cfg.Archive.Enabled {
		if cfg.Archive.S3.Bucket == "" {
			return fmt.Errorf("archive.s3.bucket is required when the archive is enabled")
		}
		if cfg.Archive.S3.Region == "" {
			return fmt.Errorf("archive.s3.region is required when the archive is enabled")
		}
		if !isValidS3Bucket(cfg.Archive.S3.Bucket) {
			return fmt.Errorf("archive.s3.bucket '%s' is invalid", cfg.Archive.S3.Bucket)
		}
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
