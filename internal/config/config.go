// Package config reads process configuration from the environment, with an
// optional .env file loaded first.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config interface {
	EnvConfig
	GatewayConfig
	SessionConfig
	StorageConfig
	SSOConfig
}

type mainConfig struct {
	EnvVars
	Gateway
	Session
	Storage
	SSO
}

var _ Config = (*mainConfig)(nil)

// Load reads the given dotenv files (".env" when none are named; missing
// files are ignored) and then parses the environment.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		_ = godotenv.Load(f)
	}
	return parse(env.Options{})
}

// FromMap parses configuration from vars instead of the process environment.
func FromMap(vars map[string]string) (Config, error) {
	return parse(env.Options{Environment: vars})
}

// Default is the configuration with every variable unset.
func Default() Config {
	cfg, err := FromMap(map[string]string{})
	if err != nil {
		panic(err)
	}
	return cfg
}

func parse(opts env.Options) (Config, error) {
	cfg := &mainConfig{}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("[config.Load] failed to parse environment variables: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *mainConfig) validate() error {
	switch c.Storage.Backend {
	case BackendMemory, BackendBolt, BackendRedis:
	default:
		return fmt.Errorf("[config.Load] unknown storage backend %q", c.Storage.Backend)
	}
	if c.Gateway.RetryAttempts < 1 {
		return fmt.Errorf("[config.Load] HTTP_RETRY_ATTEMPTS must be at least 1")
	}
	return nil
}
