package config

import "github.com/rs/zerolog"

type EnvConfig interface {
	GetAppName() string
	GetEnv() string
	GetLogLevel() zerolog.Level
	GetAuthBaseURL() string
	GetRoutePolicyFile() string
}

type EnvVars struct {
	AppName         string `env:"APP_NAME" envDefault:"authctl"`
	Env             string `env:"ENV" envDefault:"DEV"`
	LogLevel        string `env:"LOG_LEVEL" envDefault:"info"`
	AuthBaseURL     string `env:"AUTH_BASE_URL" envDefault:"http://localhost:8080/api/v1"`
	RoutePolicyFile string `env:"ROUTE_POLICY_FILE"`
}

var _ EnvConfig = EnvVars{}

func (e EnvVars) GetAppName() string {
	return e.AppName
}

func (e EnvVars) GetEnv() string {
	return e.Env
}

// GetLogLevel falls back to info for an unknown level name.
func (e EnvVars) GetLogLevel() zerolog.Level {
	level, err := zerolog.ParseLevel(e.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}

// GetAuthBaseURL is the root of the authentication service, e.g.
// "https://api.example.com/api/v1". API traffic goes to the same root.
func (e EnvVars) GetAuthBaseURL() string {
	return e.AuthBaseURL
}

// GetRoutePolicyFile is an optional YAML navigation policy.
func (e EnvVars) GetRoutePolicyFile() string {
	return e.RoutePolicyFile
}
