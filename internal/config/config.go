package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/imrishuroy/go-payment-reconciler/internal/logging"
	"github.com/imrishuroy/go-payment-reconciler/internal/notify"
	"github.com/imrishuroy/go-payment-reconciler/internal/retry"
)

// Store backends
const (
	BackendDynamoDB = "dynamodb"
	BackendSQLite   = "sqlite"
	BackendRedis    = "redis"
)

// Dispatch modes
const (
	DispatchQueue = "queue"
	DispatchPool  = "pool"
)

// Role names the binary a Config is loaded for; each validates only the sections it uses.
type Role string

const (
	RoleAPI    Role = "api"
	RoleWorker Role = "worker"
	RoleAudit  Role = "audit"
)

type Config struct {
	// Role is set by Load. The zero value validates every section.
	Role Role `mapstructure:"-"`

	Server   ServerConfig      `mapstructure:"server"`
	AWS      AWSConfig         `mapstructure:"aws"`
	Tables   TablesConfig      `mapstructure:"tables"`
	Queue    QueueConfig       `mapstructure:"queue"`
	Webhook  WebhookConfig     `mapstructure:"webhook"`
	Admin    AdminConfig       `mapstructure:"admin"`
	Store    StoreConfig       `mapstructure:"store"`
	Locker   LockerConfig      `mapstructure:"locker"`
	Redis    RedisConfig       `mapstructure:"redis"`
	Dispatch DispatchConfig    `mapstructure:"dispatch"`
	Retry    retry.Config      `mapstructure:"retry"`
	Notify   notify.Config     `mapstructure:"notify"`
	Metrics  MetricsConfig     `mapstructure:"metrics"`
	Log      logging.LogConfig `mapstructure:"log"`
}

type ServerConfig struct {
	Addr     string `mapstructure:"addr"`
	RunLocal bool   `mapstructure:"run_local"`
}

type AWSConfig struct {
	Region   string `mapstructure:"region"`
	Endpoint string `mapstructure:"endpoint"`
}

type TablesConfig struct {
	PendingOrders string `mapstructure:"pending_orders"`
	Orders        string `mapstructure:"orders"`
	Idempotency   string `mapstructure:"idempotency"`
}

type QueueConfig struct {
	URL string `mapstructure:"url"`
}

type WebhookConfig struct {
	Secret string `mapstructure:"secret"`
	// AllowUnsigned accepts requests without a signature header. Test environments only.
	AllowUnsigned bool `mapstructure:"allow_unsigned"`
}

type AdminConfig struct {
	Token string `mapstructure:"token"`
}

type StoreConfig struct {
	Backend    string `mapstructure:"backend"`
	SQLitePath string `mapstructure:"sqlite_path"`
}

type LockerConfig struct {
	Backend string        `mapstructure:"backend"`
	Lease   time.Duration `mapstructure:"lease"`
	DoneTTL time.Duration `mapstructure:"done_ttl"`
	Prefix  string        `mapstructure:"prefix"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type DispatchConfig struct {
	Mode      string `mapstructure:"mode"`
	Workers   int    `mapstructure:"workers"`
	QueueSize int    `mapstructure:"queue_size"`
}

type MetricsConfig struct {
	Namespace string `mapstructure:"namespace"`
}

// envBindings maps config keys to the environment variables the Lambda deployments set.
var envBindings = map[string]string{
	"server.addr":            "SERVER_ADDR",
	"server.run_local":       "RUN_LOCAL",
	"aws.region":             "AWS_REGION",
	"aws.endpoint":           "AWS_ENDPOINT_OVERRIDE",
	"tables.pending_orders":  "PENDING_ORDERS_TABLE",
	"tables.orders":          "ORDERS_TABLE",
	"tables.idempotency":     "IDEMPOTENCY_TABLE",
	"queue.url":              "ORDERS_QUEUE_URL",
	"webhook.secret":         "WEBHOOK_SECRET",
	"webhook.allow_unsigned": "WEBHOOK_ALLOW_UNSIGNED",
	"admin.token":            "ADMIN_TOKEN",
	"store.backend":          "STORE_BACKEND",
	"store.sqlite_path":      "SQLITE_PATH",
	"locker.backend":         "LOCKER_BACKEND",
	"redis.addr":             "REDIS_ADDR",
	"redis.password":         "REDIS_PASSWORD",
	"dispatch.mode":          "DISPATCH_MODE",
	"dispatch.workers":       "DISPATCH_WORKERS",
	"notify.sms_url":         "NOTIFY_SMS_URL",
	"notify.chat_url":        "NOTIFY_CHAT_URL",
	"notify.api_key":         "NOTIFY_API_KEY",
	"metrics.namespace":      "METRICS_NAMESPACE",
	"log.level":              "LOG_LEVEL",
	"log.encoding":           "LOG_ENCODING",
}

func setDefaults(v *viper.Viper) {
	rc := retry.DefaultConfig()

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.run_local", false)
	v.SetDefault("aws.region", "ap-south-1")
	v.SetDefault("tables.pending_orders", "pending_orders")
	v.SetDefault("tables.orders", "orders")
	v.SetDefault("tables.idempotency", "order_claims")
	v.SetDefault("webhook.allow_unsigned", false)
	v.SetDefault("store.backend", BackendDynamoDB)
	v.SetDefault("store.sqlite_path", "reconciler.db")
	v.SetDefault("locker.backend", BackendDynamoDB)
	v.SetDefault("locker.lease", 30*time.Second)
	v.SetDefault("locker.done_ttl", 48*time.Hour)
	v.SetDefault("locker.prefix", "reconciler")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("dispatch.workers", 4)
	v.SetDefault("dispatch.queue_size", 256)
	v.SetDefault("retry.max_attempts", rc.MaxAttempts)
	v.SetDefault("retry.attempt_timeout", rc.AttemptTimeout)
	v.SetDefault("retry.initial_interval", rc.InitialInterval)
	v.SetDefault("retry.max_interval", rc.MaxInterval)
	v.SetDefault("retry.multiplier", rc.Multiplier)
	v.SetDefault("notify.timeout", 5*time.Second)
	v.SetDefault("notify.country_code", "91")
	v.SetDefault("notify.rate_per_second", 5.0)
	v.SetDefault("notify.burst", 2)
	v.SetDefault("metrics.namespace", "PaymentReconciler")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "json")
	v.SetDefault("log.output_paths", []string{"stdout"})
}

// Load reads the optional YAML file at configPath, overlays the bound environment variables
// and validates the result for role. An empty configPath means environment and defaults only.
func Load(configPath string, role Role) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Role = role

	if cfg.Dispatch.Mode == "" {
		cfg.Dispatch.Mode = DispatchQueue
		if cfg.Server.RunLocal {
			cfg.Dispatch.Mode = DispatchPool
		}
	}
	cfg.Store.Backend = strings.ToLower(cfg.Store.Backend)
	cfg.Locker.Backend = strings.ToLower(cfg.Locker.Backend)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Dispatches reports whether the binary hands webhook jobs off.
func (c *Config) Dispatches() bool {
	return c.Role == RoleAPI || c.Role == ""
}

// NeedsLocker reports whether the binary runs the reconciler and so takes order locks.
func (c *Config) NeedsLocker() bool {
	switch c.Role {
	case RoleAudit:
		return false
	case RoleAPI:
		return c.Dispatch.Mode == DispatchPool
	}
	return true
}

// Validate checks the combinations the configured role cannot start without.
func (c *Config) Validate() error {
	var errs []error

	if c.Dispatches() && c.Webhook.Secret == "" && !c.Webhook.AllowUnsigned {
		errs = append(errs, errors.New("webhook.secret is required unless webhook.allow_unsigned is set"))
	}

	switch c.Store.Backend {
	case BackendDynamoDB:
		if c.Tables.PendingOrders == "" || c.Tables.Orders == "" {
			errs = append(errs, errors.New("tables.pending_orders and tables.orders are required"))
		}
	case BackendSQLite:
		if c.Store.SQLitePath == "" {
			errs = append(errs, errors.New("store.sqlite_path is required for the sqlite backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.backend %q: want dynamodb or sqlite", c.Store.Backend))
	}

	if c.NeedsLocker() {
		errs = append(errs, c.validateLocker()...)
	}

	if c.Dispatches() {
		switch c.Dispatch.Mode {
		case DispatchQueue:
			if c.Queue.URL == "" {
				errs = append(errs, errors.New("queue.url is required for queue dispatch"))
			}
		case DispatchPool:
			if !c.Server.RunLocal {
				// Lambda freezes the process after each response, stalling pool workers
				errs = append(errs, errors.New("dispatch.mode pool requires server.run_local"))
			}
			if c.Dispatch.Workers <= 0 {
				errs = append(errs, errors.New("dispatch.workers must be positive"))
			}
		default:
			errs = append(errs, fmt.Errorf("dispatch.mode %q: want queue or pool", c.Dispatch.Mode))
		}
	}

	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, errors.New("retry.max_attempts must be at least 1"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

func (c *Config) validateLocker() []error {
	var errs []error
	switch c.Locker.Backend {
	case BackendDynamoDB:
		if c.Tables.Idempotency == "" {
			errs = append(errs, errors.New("tables.idempotency is required for the dynamodb locker"))
		}
	case BackendRedis:
		if c.Redis.Addr == "" {
			errs = append(errs, errors.New("redis.addr is required for the redis locker"))
		}
	default:
		errs = append(errs, fmt.Errorf("locker.backend %q: want dynamodb or redis", c.Locker.Backend))
	}
	if c.Locker.Lease <= 0 {
		errs = append(errs, errors.New("locker.lease must be positive"))
	}
	if c.Locker.DoneTTL <= 0 {
		errs = append(errs, errors.New("locker.done_ttl must be positive"))
	}
	return errs
}
