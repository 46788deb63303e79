package config

import (
	"strings"

	"github.com/spf13/viper"

	"github.com/archonhq/archon/errors"
)

// Load reads the Archon configuration from defaults, an optional archon.toml
// in the working directory, and ARCHON_* environment variables.
func Load() (*Config, error) {
	v := viper.New()

	v.SetEnvPrefix("ARCHON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	SetDefaults(v)

	v.SetConfigName("archon")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		// Missing config file is fine - defaults and env vars apply
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errors.Wrap(err, "failed to read config file")
		}
	}

	return LoadWithViper(v)
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("toml")

	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %s", configPath)
	}

	return LoadWithViper(v)
}

// LoadWithViper loads configuration using a provided Viper instance
func LoadWithViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database.path", "archon.db")

	v.SetDefault("server.addr", ":8710")
	v.SetDefault("server.request_timeout", 300) // 5 minutes for interactive chains

	v.SetDefault("chain.max_steps", 20)
	v.SetDefault("chain.max_context_turns", 10)
	v.SetDefault("chain.max_input_fields", 50)
	v.SetDefault("chain.max_input_bytes", 65536)
	v.SetDefault("chain.default_step_timeout", 0) // no per-step timeout unless the step declares one
	v.SetDefault("chain.retrieval_max_chunks", 10)
	v.SetDefault("chain.retrieval_max_tokens", 4000)
	v.SetDefault("chain.similarity_floor", 0.4)
	v.SetDefault("chain.vector_weight", 0.7)

	v.SetDefault("worker.workers", 1)
	v.SetDefault("worker.poll_interval_seconds", 5)
	v.SetDefault("worker.requests_per_minute", 0)
	v.SetDefault("worker.max_recovered_jobs", 100)

	v.SetDefault("ai.timeout_seconds", 600)

	v.SetDefault("auth.internal_issuer", "archon-scheduler")
	v.SetDefault("auth.internal_audience", "archon-internal")

	v.SetDefault("notify.timeout_seconds", 10)
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Chain.MaxSteps <= 0 {
		return errors.Newf("chain.max_steps must be > 0, got %d", c.Chain.MaxSteps)
	}
	if c.Chain.MaxContextTurns < 0 {
		return errors.Newf("chain.max_context_turns must be >= 0, got %d", c.Chain.MaxContextTurns)
	}
	if c.Worker.Workers < 0 {
		return errors.Newf("worker.workers must be >= 0, got %d", c.Worker.Workers)
	}
	if c.Worker.PollIntervalSeconds < 0 {
		return errors.Newf("worker.poll_interval_seconds must be >= 0, got %d", c.Worker.PollIntervalSeconds)
	}
	if c.Server.RequestTimeout < 0 {
		return errors.Newf("server.request_timeout must be >= 0, got %d", c.Server.RequestTimeout)
	}
	return nil
}
