package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	JWT       JWTConfig       `yaml:"jwt"`
	Redis     RedisConfig     `yaml:"redis"`
	Storage   StorageConfig   `yaml:"storage"`
	Log       LogConfig       `yaml:"log"`
	Workflow  WorkflowConfig  `yaml:"workflow"`
	Notify    NotifyConfig    `yaml:"notify"`
	Audit     AuditConfig     `yaml:"audit"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	CORS      CORSConfig      `yaml:"cors"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port string `yaml:"port"`
	Mode string `yaml:"mode"` // debug, release, test
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"` // sqlite, mysql, postgres
	DSN    string `yaml:"dsn"`
}

type JWTConfig struct {
	Secret     string `yaml:"secret"`
	ExpireHour int    `yaml:"expire_hour"`
}

// RedisConfig enables the distributed project lock, event broadcast and the async notify queue.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type StorageConfig struct {
	Root        string `yaml:"root"`
	MaxUploadMB int64  `yaml:"max_upload_mb"`
}

type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// Contract delete policies.
const (
	ContractDeleteParties = "parties"
	ContractDeleteAdmin   = "admin"
	ContractDeleteAny     = "any"
)

type WorkflowConfig struct {
	RejectSiblingsOnAccept bool   `yaml:"reject_siblings_on_accept"`
	ContractDeletePolicy   string `yaml:"contract_delete_policy"` // parties, admin, any
	LockTTLSeconds         int    `yaml:"lock_ttl_seconds"`
	LockWaitSeconds        int    `yaml:"lock_wait_seconds"`
}

type NotifyConfig struct {
	WebhookURL     string `yaml:"webhook_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type AuditConfig struct {
	RetentionDays int    `yaml:"retention_days"`
	CleanupCron   string `yaml:"cleanup_cron"`
}

// CORSConfig lists browser origins allowed to call the API. "*" allows any.
type CORSConfig struct {
	AllowOrigins []string `yaml:"allow_origins"`
}

type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

var GlobalConfig *Config

func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); err == nil {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, err
		}
		// Unmarshal over the defaults so a partial file keeps sane values.
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	cfg.overrideFromEnv()
	cfg.normalize()
	GlobalConfig = cfg
	return cfg, nil
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: "8080",
			Mode: "debug",
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "gigflow.db",
		},
		JWT: JWTConfig{
			Secret:     "gigflow-secret-key-change-in-production",
			ExpireHour: 24,
		},
		Redis: RedisConfig{
			Enabled: false,
			Addr:    "localhost:6379",
			DB:      0,
		},
		Storage: StorageConfig{
			Root:        "uploads",
			MaxUploadMB: 20,
		},
		Log: LogConfig{
			Level: "info",
		},
		Workflow: WorkflowConfig{
			RejectSiblingsOnAccept: true,
			ContractDeletePolicy:   ContractDeleteParties,
			LockTTLSeconds:         30,
			LockWaitSeconds:        10,
		},
		Notify: NotifyConfig{
			TimeoutSeconds: 10,
		},
		Audit: AuditConfig{
			RetentionDays: 90,
			CleanupCron:   "0 3 * * *",
		},
		RateLimit: RateLimitConfig{
			RPS:   20,
			Burst: 40,
		},
		CORS: CORSConfig{
			AllowOrigins: []string{"*"},
		},
	}
}

func (c *Config) overrideFromEnv() {
	if host := os.Getenv("SERVER_HOST"); host != "" {
		c.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		c.Server.Port = port
	}
	if mode := os.Getenv("SERVER_MODE"); mode != "" {
		c.Server.Mode = mode
	}
	if driver := os.Getenv("DB_DRIVER"); driver != "" {
		c.Database.Driver = driver
	}
	if dsn := os.Getenv("DB_DSN"); dsn != "" {
		c.Database.DSN = dsn
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		c.JWT.Secret = secret
	}
	if root := os.Getenv("STORAGE_ROOT"); root != "" {
		c.Storage.Root = root
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
	if hook := os.Getenv("NOTIFY_WEBHOOK_URL"); hook != "" {
		c.Notify.WebhookURL = hook
	}
	if origins := os.Getenv("CORS_ALLOW_ORIGINS"); origins != "" {
		c.CORS.AllowOrigins = splitList(origins)
	}
	// Redis URL override (format: redis://:password@host:port/db)
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		c.Redis.Enabled = true
		c.parseRedisURL(redisURL)
	}
}

func (c *Config) normalize() {
	switch c.Workflow.ContractDeletePolicy {
	case ContractDeleteParties, ContractDeleteAdmin, ContractDeleteAny:
	default:
		c.Workflow.ContractDeletePolicy = ContractDeleteParties
	}
	if c.Workflow.LockTTLSeconds <= 0 {
		c.Workflow.LockTTLSeconds = 30
	}
	if c.Workflow.LockWaitSeconds <= 0 {
		c.Workflow.LockWaitSeconds = 10
	}
	if c.Storage.MaxUploadMB <= 0 {
		c.Storage.MaxUploadMB = 20
	}
	if c.Notify.TimeoutSeconds <= 0 {
		c.Notify.TimeoutSeconds = 10
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parseRedisURL parses a Redis URL and sets config values
// Format: redis://:password@host:port/db
func (c *Config) parseRedisURL(redisURL string) {
	url := strings.TrimPrefix(redisURL, "redis://")

	if atIdx := strings.Index(url, "@"); atIdx != -1 {
		authPart := url[:atIdx]
		url = url[atIdx+1:]
		// Password format: :password or user:password
		if colonIdx := strings.Index(authPart, ":"); colonIdx != -1 {
			c.Redis.Password = authPart[colonIdx+1:]
		}
	}

	if slashIdx := strings.LastIndex(url, "/"); slashIdx != -1 {
		dbStr := url[slashIdx+1:]
		url = url[:slashIdx]
		if db, err := strconv.Atoi(dbStr); err == nil {
			c.Redis.DB = db
		}
	}

	c.Redis.Addr = url
}

func (c *Config) Save(configPath string) error {
	if configPath == "" {
		configPath = "config.yaml"
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(configPath, data, 0644)
}
