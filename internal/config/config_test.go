package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name      string
		filePath  string
		wantErr   bool
		errString string
	}{
		{
			name:     "valid config file",
			filePath: "testdata/valid_config.yaml",
			wantErr:  false,
		},
		{
			name:      "non-existent file",
			filePath:  "testdata/nonexistent.yaml",
			wantErr:   true,
			errString: "failed to read config file",
		},
		{
			name:      "malformed yaml",
			filePath:  "testdata/malformed.yaml",
			wantErr:   true,
			errString: "failed to parse config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(tt.filePath)

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
				assert.Nil(t, cfg)
			} else {
				require.NoError(t, err)
				require.NotNil(t, cfg)

				// Verify some key fields are populated
				assert.Equal(t, 8080, cfg.Server.Port)
				assert.Equal(t, "localhost", cfg.Database.Host)
				assert.Equal(t, 5432, cfg.Database.Port)
				assert.Equal(t, "pricing_prover", cfg.Database.Database)
				assert.Equal(t, "pricing.proofs", cfg.RabbitMQ.Exchange.Name)
				assert.Equal(t, "proof.requests", cfg.RabbitMQ.WorkQueue.Name)
				assert.Equal(t, "proof.results", cfg.RabbitMQ.ResultsQueue.Name)
				assert.Equal(t, "pricing-prover-api", cfg.App.Name)
			}
		})
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("testdata/valid_config.yaml")
	require.NoError(t, err)

	// Values absent from the file fall back to defaults
	assert.Equal(t, time.Second, cfg.Worker.ReceiveBackoffMin)
	assert.Equal(t, 30*time.Second, cfg.Worker.ReceiveBackoffMax)

	// Values present in the file are kept
	assert.Equal(t, 5*time.Minute, cfg.Prover.Timeout)
	assert.Equal(t, "hashing", cfg.Prover.Engine)
	assert.Equal(t, 3, cfg.Worker.MaxAttempts)
	assert.Equal(t, 10, cfg.RabbitMQ.Consumer.BatchSize)
}

func validTestConfig() *Config {
	cfg := &Config{
		Server: ServerConfig{Port: 8080},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			Database: "pricing_prover",
		},
		RabbitMQ: RabbitMQConfig{
			Host: "localhost",
			Port: 5672,
			Exchange: ExchangeConfig{
				Name: "pricing.proofs",
			},
			WorkQueue: QueueConfig{
				Name: "proof.requests",
			},
			ResultsQueue: QueueConfig{
				Name: "proof.results",
			},
		},
		Worker: WorkerConfig{
			Concurrency:      4,
			ReaperInterval:   time.Minute,
			ReaperStaleAfter: 6 * time.Minute,
			ShutdownTimeout:  30 * time.Second,
		},
	}
	cfg.applyDefaults()
	return cfg
}

func TestValidateAPIConfig(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantErr   bool
		errString string
	}{
		{
			name:    "valid config",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name:      "invalid server port",
			mutate:    func(c *Config) { c.Server.Port = 0 },
			wantErr:   true,
			errString: "invalid server port",
		},
		{
			name:      "missing database host",
			mutate:    func(c *Config) { c.Database.Host = "" },
			wantErr:   true,
			errString: "database host is required",
		},
		{
			name:      "missing work queue name",
			mutate:    func(c *Config) { c.RabbitMQ.WorkQueue.Name = "" },
			wantErr:   true,
			errString: "work queue name is required",
		},
		{
			name:      "missing results queue name",
			mutate:    func(c *Config) { c.RabbitMQ.ResultsQueue.Name = "" },
			wantErr:   true,
			errString: "results queue name is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validTestConfig()
			tt.mutate(cfg)

			err := cfg.ValidateAPIConfig()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateWorkerConfig(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantErr   bool
		errString string
	}{
		{
			name:    "valid config",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name:      "zero concurrency",
			mutate:    func(c *Config) { c.Worker.Concurrency = 0 },
			wantErr:   true,
			errString: "concurrency must be greater than 0",
		},
		{
			name:      "zero prover timeout",
			mutate:    func(c *Config) { c.Prover.Timeout = 0 },
			wantErr:   true,
			errString: "prover timeout must be greater than 0",
		},
		{
			name:      "zero reaper interval",
			mutate:    func(c *Config) { c.Worker.ReaperInterval = 0 },
			wantErr:   true,
			errString: "reaper_interval must be greater than 0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validTestConfig()
			tt.mutate(cfg)

			err := cfg.ValidateWorkerConfig()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
