package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type ServerConfig struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	BodyLimitMB int    `yaml:"bodyLimitMB"`
}

// BackendConfig points at the external processing backend that owns
// shorts and dubbing jobs.
type BackendConfig struct {
	BaseURL           string `yaml:"baseURL"`
	TimeoutMs         int    `yaml:"timeoutMs"`
	BreakerFailures   int    `yaml:"breakerFailures"`
	BreakerCooldownMs int    `yaml:"breakerCooldownMs"`
}

// CloudinaryConfig holds media host credentials and the upload retry policy.
// When UploadPreset is set uploads are unsigned; otherwise the API secret
// is used to sign each request.
type CloudinaryConfig struct {
	CloudName     string `yaml:"cloudName"`
	APIKey        string `yaml:"apiKey"`
	APISecret     string `yaml:"apiSecret"`
	UploadPreset  string `yaml:"uploadPreset"`
	APIBase       string `yaml:"apiBase"`
	YouTubeFolder string `yaml:"youtubeFolder"`
	FileFolder    string `yaml:"fileFolder"`
	TimeoutMs     int    `yaml:"timeoutMs"`
	MaxRetries    int    `yaml:"maxRetries"`
	RetryDelayMs  int    `yaml:"retryDelayMs"`
	RetryCode     int    `yaml:"retryCode"`
	SpoolDir      string `yaml:"spoolDir"`
}

// PollerConfig controls status polling. MaxWaitMinutes bounds a single
// status stream or CLI wait.
type PollerConfig struct {
	IntervalMs     int `yaml:"intervalMs"`
	MaxWaitMinutes int `yaml:"maxWaitMinutes"`
}

type UploadsConfig struct {
	MaxFileMB int `yaml:"maxFileMB"`
}

type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

type RedisConfig struct {
	URL string `yaml:"url"`
}

// CacheConfig controls how long terminal job snapshots stay in Redis.
type CacheConfig struct {
	SnapshotTTLMinutes int `yaml:"snapshotTTLMinutes"`
}

type RateLimitConfig struct {
	UploadsPerMinute int `yaml:"uploadsPerMinute"`
}

// RetentionConfig controls deletion of old upload ledger rows so that the
// database does not grow without bound.
type RetentionConfig struct {
	Enabled                bool `yaml:"enabled"`
	CleanupIntervalMinutes int  `yaml:"cleanupIntervalMinutes"`
	UploadDays             int  `yaml:"uploadDays"`
}

// WebConfig describes the public web front-end, used to build links such
// as "translate this clip".
type WebConfig struct {
	BaseURL string `yaml:"baseURL"`
}

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Backend    BackendConfig    `yaml:"backend"`
	Cloudinary CloudinaryConfig `yaml:"cloudinary"`
	Poller     PollerConfig     `yaml:"poller"`
	Uploads    UploadsConfig    `yaml:"uploads"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Cache      CacheConfig      `yaml:"cache"`
	RateLimit  RateLimitConfig  `yaml:"ratelimit"`
	Retention  RetentionConfig  `yaml:"retention"`
	Web        WebConfig        `yaml:"web"`
}

// Load reads the YAML file at path, applies environment overrides and
// defaults, and exits the process on failure.
func Load(path string) *Config {
	f, err := os.Open(path)
	if err != nil {
		log.Fatalf("failed to open config file: %v", err)
	}
	defer f.Close()

	cfg, err := Parse(f)
	if err != nil {
		log.Fatalf("failed to decode config: %v", err)
	}
	return cfg
}

// LoadOrDefault reads the YAML file at path when it exists and otherwise
// returns Default.
func LoadOrDefault(path string) (*Config, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse decodes a YAML config document and finalizes it.
func Parse(r io.Reader) (*Config, error) {
	var cfg Config
	if err := yaml.NewDecoder(r).Decode(&cfg); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.ApplyEnv()
	cfg.ApplyDefaults()
	return &cfg, nil
}

// Default returns a config with only defaults and environment overrides.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyEnv()
	cfg.ApplyDefaults()
	return cfg
}

// ApplyEnv overrides secrets and endpoints from the environment. Values
// already present in the file are replaced only when the variable is set.
func (c *Config) ApplyEnv() {
	setString(&c.Cloudinary.CloudName, "CLOUDINARY_CLOUD_NAME")
	setString(&c.Cloudinary.APIKey, "CLOUDINARY_API_KEY")
	setString(&c.Cloudinary.APISecret, "CLOUDINARY_API_SECRET")
	setString(&c.Cloudinary.UploadPreset, "CLOUDINARY_UPLOAD_PRESET")
	setString(&c.Database.DSN, "DATABASE_DSN")
	setString(&c.Redis.URL, "REDIS_URL")
	setString(&c.Backend.BaseURL, "BACKEND_BASE_URL")
	setString(&c.Web.BaseURL, "WEB_BASE_URL")
	setInt(&c.Server.Port, "PORT")
}

// ApplyDefaults fills zero values with working defaults.
func (c *Config) ApplyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.BodyLimitMB <= 0 {
		c.Server.BodyLimitMB = 25
	}
	if c.Backend.BaseURL == "" {
		c.Backend.BaseURL = "http://localhost:8000"
	}
	if c.Backend.TimeoutMs <= 0 {
		c.Backend.TimeoutMs = 15000
	}
	if c.Cloudinary.APIBase == "" {
		c.Cloudinary.APIBase = "https://api.cloudinary.com"
	}
	if c.Cloudinary.FileFolder == "" {
		c.Cloudinary.FileFolder = "podcasts"
	}
	if c.Cloudinary.TimeoutMs <= 0 {
		c.Cloudinary.TimeoutMs = 10 * 60 * 1000
	}
	if c.Cloudinary.MaxRetries <= 0 {
		c.Cloudinary.MaxRetries = 3
	}
	if c.Cloudinary.RetryDelayMs <= 0 {
		c.Cloudinary.RetryDelayMs = 2000
	}
	if c.Cloudinary.RetryCode == 0 {
		c.Cloudinary.RetryCode = 499
	}
	if c.Cloudinary.SpoolDir == "" {
		c.Cloudinary.SpoolDir = os.TempDir()
	}
	if c.Poller.IntervalMs <= 0 {
		c.Poller.IntervalMs = 5000
	}
	if c.Poller.MaxWaitMinutes <= 0 {
		c.Poller.MaxWaitMinutes = 60
	}
	if c.Uploads.MaxFileMB <= 0 {
		c.Uploads.MaxFileMB = 20
	}
	if c.Cache.SnapshotTTLMinutes <= 0 {
		c.Cache.SnapshotTTLMinutes = 60
	}
	if c.RateLimit.UploadsPerMinute == 0 {
		c.RateLimit.UploadsPerMinute = 10
	}
	if c.Retention.CleanupIntervalMinutes <= 0 {
		c.Retention.CleanupIntervalMinutes = 60
	}
	if c.Retention.UploadDays <= 0 {
		c.Retention.UploadDays = 30
	}
	if c.Web.BaseURL == "" {
		c.Web.BaseURL = "http://localhost:3000"
	}
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
