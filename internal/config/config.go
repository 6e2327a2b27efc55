package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	DefaultAPIURL     = "http://127.0.0.1:7444"
	DefaultDBFileName = ".assetd.db"
	DefaultLogLevel   = "debug"
	DefaultLogFormat  = "text"
	ConfigFileName    = ".assetd.toml"

	DefaultStorageDriver     = "s3"
	DefaultStorageBucket     = "uploads"
	DefaultPublicUploadPath  = "/storage"
	DefaultDownloadMode      = "proxy"
	DefaultPresignExpiry     = time.Hour
	DefaultStorageTimeout    = 5 * time.Second
	DefaultLocalStorageDir   = ".assetd-objects"
	DefaultMaxSizeCeiling    = int64(5 * 1024 * 1024)
	DefaultMetadataRefetch   = 10 * time.Minute
	DefaultStreamChunkBytes  = 8 * 1024 * 1024
	DefaultJobWorkers        = 4
	DefaultJobQueueSize      = 256
	DefaultJobMaxAttempts    = 3
	StorageDriverS3          = "s3"
	StorageDriverLocal       = "local"
	StorageDriverMemory      = "memory"
	DownloadModeProxy        = "proxy"
	DownloadModePresigned    = "presigned"
	configDirEnvKey          = "ASSETD_CONFIG_DIR"
	trustProjectConfigEnvKey = "ASSETD_TRUST_PROJECT_CONFIG"
)

// StorageConfig configures the blob store gateway.
type StorageConfig struct {
	Driver           string        `toml:"driver"`
	Endpoint         string        `toml:"endpoint"`
	Bucket           string        `toml:"bucket"`
	AccessKey        string        `toml:"access_key"`
	SecretKey        string        `toml:"secret_key"`
	Region           string        `toml:"region"`
	UseSSL           bool          `toml:"use_ssl"`
	PublicUploadPath string        `toml:"public_upload_path"`
	DownloadMode     string        `toml:"download_mode"`
	PresignExpiry    time.Duration `toml:"presign_expiry"`
	Timeout          time.Duration `toml:"timeout"`
	LocalRoot        string        `toml:"local_root"`
}

// AssetsConfig holds system-wide asset limits.
type AssetsConfig struct {
	MaxSizeCeiling       int64         `toml:"max_size_ceiling"`
	MetadataRefetchAfter time.Duration `toml:"metadata_refetch_after"`
	StreamChunkBytes     int           `toml:"stream_chunk_bytes"`
}

// JobsConfig sizes the background worker pool.
type JobsConfig struct {
	Workers     int `toml:"workers"`
	QueueSize   int `toml:"queue_size"`
	MaxAttempts int `toml:"max_attempts"`
}

// Config defines runtime configuration for assetd.
type Config struct {
	APIURL                   string        `toml:"api_url"`
	DBPath                   string        `toml:"db_path"`
	LogLevel                 string        `toml:"log_level"`
	LogFormat                string        `toml:"log_format"`
	Storage                  StorageConfig `toml:"storage"`
	Assets                   AssetsConfig  `toml:"assets"`
	Jobs                     JobsConfig    `toml:"jobs"`
	TrustedProjectConfigPath string        `toml:"-"`
}

// Default returns default configuration values.
func Default() Config {
	return Config{
		APIURL:    DefaultAPIURL,
		DBPath:    "",
		LogLevel:  DefaultLogLevel,
		LogFormat: DefaultLogFormat,
		Storage: StorageConfig{
			Driver:           DefaultStorageDriver,
			Bucket:           DefaultStorageBucket,
			PublicUploadPath: DefaultPublicUploadPath,
			DownloadMode:     DefaultDownloadMode,
			PresignExpiry:    DefaultPresignExpiry,
			Timeout:          DefaultStorageTimeout,
		},
		Assets: AssetsConfig{
			MaxSizeCeiling:       DefaultMaxSizeCeiling,
			MetadataRefetchAfter: DefaultMetadataRefetch,
			StreamChunkBytes:     DefaultStreamChunkBytes,
		},
		Jobs: JobsConfig{
			Workers:     DefaultJobWorkers,
			QueueSize:   DefaultJobQueueSize,
			MaxAttempts: DefaultJobMaxAttempts,
		},
	}
}

func loadFile(path string, cfg *Config) error {
	_, err := loadFileIfExists(path, cfg)
	return err
}

func loadFileIfExists(path string, cfg *Config) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if info.IsDir() {
		return false, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return false, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return true, nil
}

func overrideConfigPath() (string, bool) {
	dir := strings.TrimSpace(os.Getenv(configDirEnvKey))
	if dir == "" {
		return "", false
	}
	return filepath.Join(dir, ConfigFileName), true
}

func trustProjectConfig() bool {
	raw := strings.TrimSpace(os.Getenv(trustProjectConfigEnvKey))
	if raw == "" {
		return false
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false
	}
	return value
}

var allowedKeys = []string{
	"api_url",
	"db_path",
	"log_level",
	"log_format",
	"storage.driver",
	"storage.endpoint",
	"storage.bucket",
	"storage.access_key",
	"storage.secret_key",
	"storage.region",
	"storage.use_ssl",
	"storage.public_upload_path",
	"storage.download_mode",
	"storage.presign_expiry",
	"storage.timeout",
	"storage.local_root",
	"assets.max_size_ceiling",
	"assets.metadata_refetch_after",
	"assets.stream_chunk_bytes",
	"jobs.workers",
	"jobs.queue_size",
	"jobs.max_attempts",
}

// AllowedKeys returns the set of valid config keys.
func AllowedKeys() []string {
	return allowedKeys
}

// IsAllowedKey checks if a key is a valid config key.
func IsAllowedKey(key string) bool {
	for _, k := range allowedKeys {
		if k == key {
			return true
		}
	}
	return false
}

// Get returns the value of a config key. Secrets are masked.
func (c *Config) Get(key string) (string, error) {
	switch key {
	case "api_url":
		return c.APIURL, nil
	case "db_path":
		return c.DBPath, nil
	case "log_level":
		return c.LogLevel, nil
	case "log_format":
		return c.LogFormat, nil
	case "storage.driver":
		return c.Storage.Driver, nil
	case "storage.endpoint":
		return c.Storage.Endpoint, nil
	case "storage.bucket":
		return c.Storage.Bucket, nil
	case "storage.access_key":
		return c.Storage.AccessKey, nil
	case "storage.secret_key":
		if c.Storage.SecretKey == "" {
			return "", nil
		}
		return "********", nil
	case "storage.region":
		return c.Storage.Region, nil
	case "storage.use_ssl":
		return strconv.FormatBool(c.Storage.UseSSL), nil
	case "storage.public_upload_path":
		return c.Storage.PublicUploadPath, nil
	case "storage.download_mode":
		return c.Storage.DownloadMode, nil
	case "storage.presign_expiry":
		return c.Storage.PresignExpiry.String(), nil
	case "storage.timeout":
		return c.Storage.Timeout.String(), nil
	case "storage.local_root":
		return c.Storage.LocalRoot, nil
	case "assets.max_size_ceiling":
		return strconv.FormatInt(c.Assets.MaxSizeCeiling, 10), nil
	case "assets.metadata_refetch_after":
		return c.Assets.MetadataRefetchAfter.String(), nil
	case "assets.stream_chunk_bytes":
		return strconv.Itoa(c.Assets.StreamChunkBytes), nil
	case "jobs.workers":
		return strconv.Itoa(c.Jobs.Workers), nil
	case "jobs.queue_size":
		return strconv.Itoa(c.Jobs.QueueSize), nil
	case "jobs.max_attempts":
		return strconv.Itoa(c.Jobs.MaxAttempts), nil
	default:
		return "", fmt.Errorf("unknown key: %s", key)
	}
}

// GlobalPath returns the path to the global config file.
func GlobalPath() (string, error) {
	if path, ok := overrideConfigPath(); ok {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ConfigFileName), nil
}

// ProjectPath returns the path to the project config file.
func ProjectPath() (string, error) {
	if path, ok := overrideConfigPath(); ok {
		return path, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(cwd, ConfigFileName), nil
}

// SetKey reads the TOML file at path, sets key=value, and writes it back.
func SetKey(path, key, value string) error {
	if !IsAllowedKey(key) {
		return fmt.Errorf("unknown key: %s", key)
	}

	data := make(map[string]any)
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &data); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	}

	parsedValue, err := parseSetValue(key, value)
	if err != nil {
		return err
	}
	if err := setNestedKey(data, strings.Split(key, "."), parsedValue); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(data)
}

// Load reads config from trusted files and applies env overrides.
func Load() (*Config, error) {
	cfg := Default()

	if overridePath, ok := overrideConfigPath(); ok {
		if err := loadFile(overridePath, &cfg); err != nil {
			return nil, err
		}
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			if err := loadFile(filepath.Join(home, ConfigFileName), &cfg); err != nil {
				return nil, err
			}
		}

		if trustProjectConfig() {
			if cwd, err := os.Getwd(); err == nil {
				projectPath := filepath.Join(cwd, ConfigFileName)
				info, statErr := os.Stat(projectPath)
				switch {
				case statErr == nil && !info.IsDir():
					if err := loadFile(projectPath, &cfg); err != nil {
						return nil, err
					}
					cfg.TrustedProjectConfigPath = projectPath
				case statErr != nil && !os.IsNotExist(statErr):
					return nil, statErr
				}
			}
		}
	}

	if cfg.DBPath == "" {
		if cwd, err := os.Getwd(); err == nil {
			cfg.DBPath = filepath.Join(cwd, DefaultDBFileName)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.normalizeDefaults()

	return &cfg, nil
}

func (c *Config) applyEnv() error {
	stringVars := map[string]*string{
		"ASSETD_API_URL":        &c.APIURL,
		"ASSETD_DB":             &c.DBPath,
		"ASSETD_S3_ENDPOINT":    &c.Storage.Endpoint,
		"ASSETD_S3_BUCKET":      &c.Storage.Bucket,
		"ASSETD_S3_ACCESS_KEY":  &c.Storage.AccessKey,
		"ASSETD_S3_SECRET_KEY":  &c.Storage.SecretKey,
		"ASSETD_S3_REGION":      &c.Storage.Region,
		"ASSETD_STORAGE_DRIVER": &c.Storage.Driver,
	}
	for key, target := range stringVars {
		if value := strings.TrimSpace(os.Getenv(key)); value != "" {
			*target = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("ASSETD_S3_USE_SSL")); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("ASSETD_S3_USE_SSL must be true or false")
		}
		c.Storage.UseSSL = parsed
	}
	if raw := strings.TrimSpace(os.Getenv("ASSETD_FILE_SIZE_LIMIT")); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed <= 0 {
			return fmt.Errorf("ASSETD_FILE_SIZE_LIMIT must be a positive integer")
		}
		c.Assets.MaxSizeCeiling = parsed
	}
	return nil
}

func parseSetValue(key, value string) (any, error) {
	value = strings.TrimSpace(value)
	switch key {
	case "assets.max_size_ceiling":
		parsed, err := strconv.ParseInt(value, 10, 64)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("%s must be a positive integer", key)
		}
		return parsed, nil
	case "assets.stream_chunk_bytes", "jobs.workers", "jobs.queue_size", "jobs.max_attempts":
		parsed, err := strconv.Atoi(value)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("%s must be a positive integer", key)
		}
		return int64(parsed), nil
	case "storage.presign_expiry", "storage.timeout", "assets.metadata_refetch_after":
		parsed, err := time.ParseDuration(value)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("%s must be a positive duration such as 30s", key)
		}
		return parsed.String(), nil
	case "storage.use_ssl":
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("%s must be true or false", key)
		}
		return parsed, nil
	case "log_format":
		switch value {
		case "text", "json":
			return value, nil
		}
		return nil, fmt.Errorf("%s must be text or json", key)
	case "storage.driver":
		switch value {
		case StorageDriverS3, StorageDriverLocal, StorageDriverMemory:
			return value, nil
		}
		return nil, fmt.Errorf("%s must be one of s3, local, memory", key)
	case "storage.download_mode":
		switch value {
		case DownloadModeProxy, DownloadModePresigned:
			return value, nil
		}
		return nil, fmt.Errorf("%s must be proxy or presigned", key)
	default:
		return value, nil
	}
}

func setNestedKey(data map[string]any, parts []string, value any) error {
	if len(parts) == 0 {
		return fmt.Errorf("invalid config key")
	}
	if len(parts) == 1 {
		data[parts[0]] = value
		return nil
	}
	childRaw, ok := data[parts[0]]
	if !ok {
		child := map[string]any{}
		data[parts[0]] = child
		return setNestedKey(child, parts[1:], value)
	}
	child, ok := childRaw.(map[string]any)
	if !ok {
		return fmt.Errorf("cannot set nested key %q", strings.Join(parts, "."))
	}
	return setNestedKey(child, parts[1:], value)
}

func (c *Config) normalizeDefaults() {
	defaults := Default()
	if strings.TrimSpace(c.LogLevel) == "" {
		c.LogLevel = DefaultLogLevel
	}
	if strings.TrimSpace(c.LogFormat) == "" {
		c.LogFormat = DefaultLogFormat
	}
	c.Storage.Driver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	if c.Storage.Driver == "" {
		c.Storage.Driver = defaults.Storage.Driver
	}
	if strings.TrimSpace(c.Storage.Bucket) == "" {
		c.Storage.Bucket = defaults.Storage.Bucket
	}
	if c.Storage.PublicUploadPath == "" {
		c.Storage.PublicUploadPath = defaults.Storage.PublicUploadPath
	}
	if c.Storage.DownloadMode == "" {
		c.Storage.DownloadMode = defaults.Storage.DownloadMode
	}
	if c.Storage.PresignExpiry <= 0 {
		c.Storage.PresignExpiry = defaults.Storage.PresignExpiry
	}
	if c.Storage.Timeout <= 0 {
		c.Storage.Timeout = defaults.Storage.Timeout
	}
	if c.Storage.LocalRoot == "" && c.DBPath != "" {
		c.Storage.LocalRoot = filepath.Join(filepath.Dir(c.DBPath), DefaultLocalStorageDir)
	}
	if c.Assets.MaxSizeCeiling <= 0 {
		c.Assets.MaxSizeCeiling = defaults.Assets.MaxSizeCeiling
	}
	if c.Assets.MetadataRefetchAfter <= 0 {
		c.Assets.MetadataRefetchAfter = defaults.Assets.MetadataRefetchAfter
	}
	if c.Assets.StreamChunkBytes <= 0 {
		c.Assets.StreamChunkBytes = defaults.Assets.StreamChunkBytes
	}
	if c.Jobs.Workers <= 0 {
		c.Jobs.Workers = defaults.Jobs.Workers
	}
	if c.Jobs.QueueSize <= 0 {
		c.Jobs.QueueSize = defaults.Jobs.QueueSize
	}
	if c.Jobs.MaxAttempts <= 0 {
		c.Jobs.MaxAttempts = defaults.Jobs.MaxAttempts
	}
}
