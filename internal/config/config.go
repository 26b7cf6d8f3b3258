package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/krobus00/signal-order-service/internal/constant"
	"github.com/spf13/viper"
)

var (
	ServiceName    = "signal-order-service"
	ServiceVersion = ""
)

var (
	Env *EnvConfig
)

type EnvConfig struct {
	Env                     string                    `mapstructure:"env"`
	Log                     LogConfig                 `mapstructure:"log"`
	GracefulShutdownTimeout time.Duration             `mapstructure:"graceful_shutdown_timeout"`
	APIKeys                 []APIKeyConfig            `mapstructure:"api_keys"`
	Auth                    AuthConfig                `mapstructure:"auth"`
	Port                    map[string]string         `mapstructure:"port"`
	Database                map[string]DatabaseConfig `mapstructure:"database"`
	Redis                   map[string]RedisConfig    `mapstructure:"redis"`
	NatsJetstream           NatsJetstreamConfig       `mapstructure:"nats_jetstream"`
	Broker                  BrokerConfig              `mapstructure:"broker"`
	Trading                 TradingConfig             `mapstructure:"trading"`
	FillSync                FillSyncConfig            `mapstructure:"fill_sync"`
}

type APIKeyConfig struct {
	Name      string `mapstructure:"name"`
	Key       string `mapstructure:"key"`
	Active    bool   `mapstructure:"active"`
	ExpiredAt any    `mapstructure:"expired_at"`
}

type AuthConfig struct {
	Key                string `mapstructure:"key"`
	WebhookKeyRequired bool   `mapstructure:"webhook_key_required"`
}

type NatsJetstreamConfig struct {
	URL             string                   `mapstructure:"url"`
	MaxRetries      int                      `mapstructure:"max_retries"`
	ReconnectFactor float64                  `mapstructure:"reconnect_factor"`
	MinJitter       time.Duration            `mapstructure:"min_jitter"`
	MaxJitter       time.Duration            `mapstructure:"max_jitter"`
	TimeoutHandler  map[string]time.Duration `mapstructure:"timeout_handler"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
	PingInterval    time.Duration `mapstructure:"ping_interval"`
	ReconnectFactor float64       `mapstructure:"reconnect_factor"`
	MinJitter       time.Duration `mapstructure:"min_jitter"`
	MaxJitter       time.Duration `mapstructure:"max_jitter"`
	MaxRetry        int           `mapstructure:"max_retry"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxActiveConns  int           `mapstructure:"max_active_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

type LogConfig struct {
	ShowCaller bool   `mapstructure:"show_caller"`
	LogLevel   string `mapstructure:"log_level"`
}

type RedisConfig struct {
	CacheDSN string `mapstructure:"cache_dsn"`
}

type BrokerConfig struct {
	Driver            string               `mapstructure:"driver"`
	BaseURL           string               `mapstructure:"base_url"`
	SimulationBaseURL string               `mapstructure:"simulation_base_url"`
	APIKey            string               `mapstructure:"api_key"`
	SecretKey         string               `mapstructure:"secret_key"`
	CAPath            string               `mapstructure:"ca_path"`
	CAPassword        string               `mapstructure:"ca_password"`
	RequestTimeout    time.Duration        `mapstructure:"request_timeout"`
	RateLimit         float64              `mapstructure:"rate_limit"`
	Burst             int                  `mapstructure:"burst"`
	CircuitBreaker    CircuitBreakerConfig `mapstructure:"circuit_breaker"`
	Paper             PaperBrokerConfig    `mapstructure:"paper"`
}

type CircuitBreakerConfig struct {
	MaxRequests uint32        `mapstructure:"max_requests"`
	Interval    time.Duration `mapstructure:"interval"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxFailures uint32        `mapstructure:"max_failures"`
}

type PaperBrokerConfig struct {
	Contracts []PaperContractConfig `mapstructure:"contracts"`
}

type PaperContractConfig struct {
	Symbol        string `mapstructure:"symbol"`
	Code          string `mapstructure:"code"`
	Name          string `mapstructure:"name"`
	DeliveryMonth string `mapstructure:"delivery_month"`
	Reference     string `mapstructure:"reference"`
}

type TradingConfig struct {
	Families          []string      `mapstructure:"families"`
	SubmitTimeout     time.Duration `mapstructure:"submit_timeout"`
	ReconcileTimeout  time.Duration `mapstructure:"reconcile_timeout"`
	PositionTimeout   time.Duration `mapstructure:"position_timeout"`
	ContractTimeout   time.Duration `mapstructure:"contract_timeout"`
	DefaultSimulation bool          `mapstructure:"default_simulation"`
	Lock              LockConfig    `mapstructure:"lock"`
}

// Validate rejects a lock TTL that could expire while a position read and a submission
// are still running under the lock.
func (c TradingConfig) Validate() error {
	held := c.PositionTimeout + c.SubmitTimeout
	if c.Lock.TTL <= held {
		return fmt.Errorf("trading.lock.ttl %s must be longer than position_timeout + submit_timeout (%s)", c.Lock.TTL, held)
	}
	return nil
}

type LockConfig struct {
	Driver        string        `mapstructure:"driver"`
	TTL           time.Duration `mapstructure:"ttl"`
	RetryInterval time.Duration `mapstructure:"retry_interval"`
}

type FillSyncConfig struct {
	Interval  time.Duration `mapstructure:"interval"`
	BatchSize uint64        `mapstructure:"batch_size"`
	Embedded  bool          `mapstructure:"embedded"`
}

// legacyEnvBindings keeps the variable names used by existing deployments working.
var legacyEnvBindings = map[string]string{
	"broker.api_key":     "API_KEY",
	"broker.secret_key":  "SECRET_KEY",
	"broker.ca_path":     "CA_PATH",
	"broker.ca_password": "CA_PASSWORD",
	"auth.key":           "AUTH_KEY",
}

func setDefaults() {
	viper.SetDefault("env", "development")
	viper.SetDefault("log.log_level", "info")
	viper.SetDefault("graceful_shutdown_timeout", 10*time.Second)
	viper.SetDefault("auth.key", "changeme")
	viper.SetDefault("auth.webhook_key_required", true)
	viper.SetDefault("broker.driver", "sinopac")
	viper.SetDefault("broker.request_timeout", 10*time.Second)
	viper.SetDefault("broker.rate_limit", 5)
	viper.SetDefault("broker.burst", 5)
	viper.SetDefault("trading.families", []string{constant.DefaultContractFamilyMXF, constant.DefaultContractFamilyTXF})
	viper.SetDefault("trading.submit_timeout", 10*time.Second)
	viper.SetDefault("trading.reconcile_timeout", 5*time.Second)
	viper.SetDefault("trading.position_timeout", 5*time.Second)
	viper.SetDefault("trading.contract_timeout", 5*time.Second)
	viper.SetDefault("trading.default_simulation", true)
	viper.SetDefault("trading.lock.driver", "local")
	viper.SetDefault("trading.lock.ttl", 30*time.Second)
	viper.SetDefault("trading.lock.retry_interval", 50*time.Millisecond)
	viper.SetDefault("fill_sync.interval", 30*time.Second)
	viper.SetDefault("fill_sync.batch_size", 100)
}

func LoadConfig(configPath string) error {
	viper.Reset()

	configPath = strings.TrimSpace(configPath)
	if configPath == "" {
		viper.SetConfigName("config")
		viper.SetConfigType("yml")
		viper.AddConfigPath(".")
	} else {
		ext := strings.ToLower(filepath.Ext(configPath))
		if ext == ".yml" || ext == ".yaml" {
			viper.SetConfigFile(configPath)
		} else {
			viper.SetConfigName(filepath.Base(configPath))
			viper.SetConfigType("yml")
			configDir := filepath.Dir(configPath)
			if configDir == "." || configDir == "" {
				viper.AddConfigPath(".")
			} else {
				viper.AddConfigPath(configDir)
			}
		}
	}

	setDefaults()

	replacer := strings.NewReplacer(".", "_")
	viper.SetEnvKeyReplacer(replacer)
	viper.AutomaticEnv()

	for key, envName := range legacyEnvBindings {
		if err := viper.BindEnv(key, strings.ToUpper(replacer.Replace(key)), envName); err != nil {
			return fmt.Errorf("failed to bind env %s: %w", envName, err)
		}
	}

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg EnvConfig
	err = viper.Unmarshal(&cfg)
	if err != nil {
		return fmt.Errorf("failed to unmarshal config file: %w", err)
	}

	err = cfg.Trading.Validate()
	if err != nil {
		return fmt.Errorf("invalid trading config: %w", err)
	}
	Env = &cfg

	return nil
}
