package config

import (
	"fmt"
	"os"
	"time"

	"github.com/wb-go/wbf/config"
	"github.com/wb-go/wbf/zlog"
)

// Config holds the main configuration for the application.
type Config struct {
	Server   Server   `mapstructure:"server"`
	Database Database `mapstructure:"database"`
	Storage  Storage  `mapstructure:"storage"`
	Backend  Backend  `mapstructure:"backend"`
	Result   Result   `mapstructure:"result"`
	Auth     Auth     `mapstructure:"auth"`
	Retry    Retry    `mapstructure:"retry"`
}

// Server holds HTTP server-related configuration.
type Server struct {
	HTTPPort string `mapstructure:"http_port"` // HTTP port to listen on
}

// Database holds PostgreSQL connection configuration.
type Database struct {
	Host            string        `mapstructure:"host"`
	Port            string        `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	Slaves          []string      `mapstructure:"slaves"` // replica DSNs
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN builds the master connection string.
func (d Database) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// Storage holds configuration for both storage backends. If the pinning
// credential is set, the pinning backend is used exclusively; otherwise
// the bucket backend is used. The choice is static for the process.
type Storage struct {
	Bucket  Bucket  `mapstructure:"bucket"`
	Pinning Pinning `mapstructure:"pinning"`
}

// Bucket holds configuration for the bucket-style object store.
type Bucket struct {
	Endpoint      string `mapstructure:"endpoint"`
	AccessKey     string `mapstructure:"access_key"`
	SecretKey     string `mapstructure:"secret_key"`
	BucketName    string `mapstructure:"bucket_name"`
	UseSSL        bool   `mapstructure:"use_ssl"`
	PublicBaseURL string `mapstructure:"public_base_url"`
}

// Pinning holds configuration for the content-addressed pinning store.
// Mode selects between "pin" (content address is public immediately)
// and "upload" (a separate resolve step builds the access URL).
type Pinning struct {
	APIURL     string `mapstructure:"api_url"`
	GatewayURL string `mapstructure:"gateway_url"`
	JWT        string `mapstructure:"jwt"`
	Mode       string `mapstructure:"mode"`
}

// Backend holds configuration for the generative model backend.
type Backend struct {
	APIBase string        `mapstructure:"api_base"`
	APIKey  string        `mapstructure:"api_key"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// Result holds the result-delivery policy knobs.
type Result struct {
	InlineMaxBytes int64         `mapstructure:"inline_max_bytes"` // below this, results are inlined as base64
	URLTTL         time.Duration `mapstructure:"url_ttl"`          // expiry of resolved access URLs
}

// Auth holds the single development bearer token.
type Auth struct {
	DevToken string `mapstructure:"dev_token"`
}

// Retry defines retry policy configuration for best-effort downloads.
type Retry struct {
	Attempts int           `mapstructure:"attempts"` // number of retry attempts
	Delay    time.Duration `mapstructure:"delay"`    // initial delay between retries
	Backoff  float64       `mapstructure:"backoff"`  // backoff multiplier for delays
}

// MustLoad loads the configuration from the specified file path, then
// applies environment overrides for secrets. It panics if the file
// cannot be loaded or unmarshaled.
func MustLoad(path string) *Config {
	c := config.New()

	if err := c.Load(path); err != nil {
		zlog.Logger.Panic().Err(err).Msg("failed to load config")
	}

	var cfg Config
	if err := c.Unmarshal(&cfg); err != nil {
		zlog.Logger.Panic().Err(err).Msg("failed to unmarshal config")
	}

	// Secrets come from the environment, never from the yaml file.
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("STORAGE_ACCESS_KEY"); v != "" {
		cfg.Storage.Bucket.AccessKey = v
	}
	if v := os.Getenv("STORAGE_SECRET_KEY"); v != "" {
		cfg.Storage.Bucket.SecretKey = v
	}
	if v := os.Getenv("PINNING_JWT"); v != "" {
		cfg.Storage.Pinning.JWT = v
	}
	if v := os.Getenv("GENAI_API_KEY"); v != "" {
		cfg.Backend.APIKey = v
	}
	if v := os.Getenv("DEV_API_TOKEN"); v != "" {
		cfg.Auth.DevToken = v
	}

	if cfg.Result.InlineMaxBytes == 0 {
		cfg.Result.InlineMaxBytes = 800_000
	}
	if cfg.Result.URLTTL == 0 {
		cfg.Result.URLTTL = 300 * time.Second
	}

	return &cfg
}
