package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535
)

// Config represents the complete application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
	Logging  LoggingConfig  `yaml:"logging"`
	App      AppConfig      `yaml:"app"`
	Worker   WorkerConfig   `yaml:"worker"`
	Prover   ProverConfig   `yaml:"prover"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

// RabbitMQConfig holds RabbitMQ connection and exchange/queue configuration
type RabbitMQConfig struct {
	Host         string           `yaml:"host"`
	Port         int              `yaml:"port"`
	User         string           `yaml:"user"`
	Password     string           `yaml:"password"`
	VHost        string           `yaml:"vhost"`
	Exchange     ExchangeConfig   `yaml:"exchange"`
	WorkQueue    QueueConfig      `yaml:"work_queue"`
	ResultsQueue QueueConfig      `yaml:"results_queue"`
	Connection   ConnectionConfig `yaml:"connection"`
	Publish      PublishConfig    `yaml:"publish"`
	Consumer     ConsumerConfig   `yaml:"consumer"`
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
}

// QueueConfig holds RabbitMQ queue configuration
type QueueConfig struct {
	Name       string `yaml:"name"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
	Exclusive  bool   `yaml:"exclusive"`
	RoutingKey string `yaml:"routing_key"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	Heartbeat         time.Duration `yaml:"heartbeat"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
}

// PublishConfig holds RabbitMQ publish retry settings
type PublishConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

// ConsumerConfig holds queue consumer settings
type ConsumerConfig struct {
	BatchSize     int           `yaml:"batch_size"`
	ReceiveWait   time.Duration `yaml:"receive_wait"`
	PrefetchCount int           `yaml:"prefetch_count"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level            string `yaml:"level"`
	Format           string `yaml:"format"`
	Output           string `yaml:"output"`
	EnableCaller     bool   `yaml:"enable_caller"`
	EnableStackTrace bool   `yaml:"enable_stack_trace"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// WorkerConfig holds worker service configuration
type WorkerConfig struct {
	Concurrency       int           `yaml:"concurrency"`
	MaxAttempts       int           `yaml:"max_attempts"`
	ReceiveBackoffMin time.Duration `yaml:"receive_backoff_min"`
	ReceiveBackoffMax time.Duration `yaml:"receive_backoff_max"`
	ReaperInterval    time.Duration `yaml:"reaper_interval"`
	ReaperStaleAfter  time.Duration `yaml:"reaper_stale_after"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
}

// ProverConfig holds proof engine settings
type ProverConfig struct {
	// Engine selects the proof backend: "hashing" or "mock".
	Engine  string        `yaml:"engine"`
	Timeout time.Duration `yaml:"timeout"`
}

// Load reads and parses the configuration file
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyDefaults()

	return &config, nil
}

// applyDefaults fills in settings that are safe to leave out of the file.
func (c *Config) applyDefaults() {
	if c.Prover.Timeout <= 0 {
		c.Prover.Timeout = 5 * time.Minute
	}
	if c.Prover.Engine == "" {
		c.Prover.Engine = "hashing"
	}
	if c.Worker.MaxAttempts <= 0 {
		c.Worker.MaxAttempts = 3
	}
	if c.Worker.ReceiveBackoffMin <= 0 {
		c.Worker.ReceiveBackoffMin = time.Second
	}
	if c.Worker.ReceiveBackoffMax <= 0 {
		c.Worker.ReceiveBackoffMax = 30 * time.Second
	}
	if c.RabbitMQ.Consumer.BatchSize <= 0 {
		c.RabbitMQ.Consumer.BatchSize = 10
	}
	if c.RabbitMQ.Consumer.ReceiveWait <= 0 {
		c.RabbitMQ.Consumer.ReceiveWait = time.Second
	}
}

// ValidateAPIConfig checks the settings the API service depends on.
func (c *Config) ValidateAPIConfig() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	return c.validateShared()
}

// ValidateWorkerConfig checks the settings the worker service depends on.
func (c *Config) ValidateWorkerConfig() error {
	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker concurrency must be greater than 0")
	}

	if c.Worker.MaxAttempts <= 0 {
		return fmt.Errorf("worker max_attempts must be greater than 0")
	}

	if c.Prover.Timeout <= 0 {
		return fmt.Errorf("prover timeout must be greater than 0")
	}

	if c.Worker.ReaperInterval <= 0 {
		return fmt.Errorf("worker reaper_interval must be greater than 0")
	}

	if c.Worker.ReaperStaleAfter <= 0 {
		return fmt.Errorf("worker reaper_stale_after must be greater than 0")
	}

	if c.Worker.ShutdownTimeout <= 0 {
		return fmt.Errorf("worker shutdown_timeout must be greater than 0")
	}

	return c.validateShared()
}

// validateShared checks settings both services depend on.
func (c *Config) validateShared() error {
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.Port < MinPort || c.Database.Port > MaxPort {
		return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
	}

	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

	if c.RabbitMQ.Host == "" {
		return fmt.Errorf("rabbitmq host is required")
	}

	if c.RabbitMQ.Port < MinPort || c.RabbitMQ.Port > MaxPort {
		return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort)
	}

	if c.RabbitMQ.Exchange.Name == "" {
		return fmt.Errorf("rabbitmq exchange name is required")
	}

	if c.RabbitMQ.WorkQueue.Name == "" {
		return fmt.Errorf("rabbitmq work queue name is required")
	}

	if c.RabbitMQ.ResultsQueue.Name == "" {
		return fmt.Errorf("rabbitmq results queue name is required")
	}

	return nil
}
