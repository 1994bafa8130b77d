package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "MINISHOP"

type Config struct {
	Service  string `mapstructure:"service"`
	Env      string `mapstructure:"env"`
	LogLevel string `mapstructure:"log_level"`

	HTTP       HTTPConfig       `mapstructure:"http"`
	Postgres   PostgresConfig   `mapstructure:"postgres"`
	Redis      RedisConfig      `mapstructure:"redis"`
	RabbitMQ   RabbitMQConfig   `mapstructure:"rabbitmq"`
	Consul     ConsulConfig     `mapstructure:"consul"`
	Services   ServicesConfig   `mapstructure:"services"`
	Purchase   PurchaseConfig   `mapstructure:"purchase"`
	API        APIConfig        `mapstructure:"api"`
	Middleware MiddlewareConfig `mapstructure:"middleware"`
}

type HTTPConfig struct {
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type PostgresConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN renders the lib/pq connection string.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.DBName, p.SSLMode,
	)
}

type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

type RabbitMQConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
}

type ConsulConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`

	// AdvertiseAddress is registered as the service address. Empty means the
	// host's outbound IP.
	AdvertiseAddress string `mapstructure:"advertise_address"`
}

// ServicesConfig holds the static URLs used when Consul has no healthy instance.
type ServicesConfig struct {
	CustomerURL  string `mapstructure:"customer_url"`
	InventoryURL string `mapstructure:"inventory_url"`
	SalesURL     string `mapstructure:"sales_url"`
}

type PurchaseConfig struct {
	CallTimeout          time.Duration `mapstructure:"call_timeout"`
	CompensationAttempts int           `mapstructure:"compensation_attempts"`
	CompensationBackoff  time.Duration `mapstructure:"compensation_backoff"`
}

type APIConfig struct {
	Versions       []string `mapstructure:"versions"`
	DefaultVersion string   `mapstructure:"default_version"`
}

// MiddlewareConfig lists the request pipeline stages in execution order.
type MiddlewareConfig struct {
	Stages []string `mapstructure:"stages"`
}

var defaultPorts = map[string]int{
	"api-gateway":       8080,
	"customer-service":  8000,
	"inventory-service": 8001,
	"sales-service":     8002,
}

var defaultDatabases = map[string]string{
	"customer-service":  "customers",
	"inventory-service": "inventory",
	"sales-service":     "sales",
}

// Load builds the configuration for the named service from defaults, an
// optional YAML file named by MINISHOP_CONFIG and MINISHOP_* environment
// variables, in increasing order of precedence.
func Load(service string) (*Config, error) {
	v := viper.New()
	setDefaults(v, service)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path := os.Getenv(envPrefix + "_CONFIG"); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.Service = service

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper, service string) {
	port, ok := defaultPorts[service]
	if !ok {
		port = 8080
	}
	dbname, ok := defaultDatabases[service]
	if !ok {
		dbname = "minishop"
	}

	v.SetDefault("env", "development")
	v.SetDefault("log_level", "info")

	v.SetDefault("http.port", port)
	v.SetDefault("http.shutdown_timeout", 10*time.Second)

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "minishop")
	v.SetDefault("postgres.password", "minishop123")
	v.SetDefault("postgres.dbname", dbname)
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("postgres.max_open_conns", 20)
	v.SetDefault("postgres.max_idle_conns", 5)
	v.SetDefault("postgres.conn_max_lifetime", 30*time.Minute)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.cache_ttl", 5*time.Minute)

	v.SetDefault("rabbitmq.host", "localhost")
	v.SetDefault("rabbitmq.port", 5672)
	v.SetDefault("rabbitmq.user", "guest")
	v.SetDefault("rabbitmq.password", "guest")

	v.SetDefault("consul.enabled", true)
	v.SetDefault("consul.host", "localhost")
	v.SetDefault("consul.port", 8500)
	v.SetDefault("consul.advertise_address", "")

	v.SetDefault("services.customer_url", "http://localhost:8000")
	v.SetDefault("services.inventory_url", "http://localhost:8001")
	v.SetDefault("services.sales_url", "http://localhost:8002")

	v.SetDefault("purchase.call_timeout", 5*time.Second)
	v.SetDefault("purchase.compensation_attempts", 3)
	v.SetDefault("purchase.compensation_backoff", 200*time.Millisecond)

	v.SetDefault("api.versions", []string{"v1"})
	v.SetDefault("api.default_version", "v1")

	v.SetDefault("middleware.stages", []string{"request_id", "recovery", "logging", "metrics", "api_version"})
}

func (c *Config) validate() error {
	if c.HTTP.Port <= 0 {
		return fmt.Errorf("invalid http.port %d", c.HTTP.Port)
	}
	if c.Purchase.CallTimeout <= 0 {
		return fmt.Errorf("purchase.call_timeout must be positive")
	}
	if c.Purchase.CompensationAttempts < 1 {
		return fmt.Errorf("purchase.compensation_attempts must be at least 1")
	}
	if len(c.API.Versions) == 0 {
		return fmt.Errorf("api.versions must not be empty")
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.HTTP.Port)
}
