package config

import (
	"os"
	"strings"
)

const (
	appEnvVar              = "APP_ENV"
	environmentDevelopment = "development"
	environmentProduction  = "production"
	environmentStaging     = "staging"

	// DefaultConfigPath is used when no -config flag is given.
	DefaultConfigPath = "config/config.yml"
)

const (
	EnvironmentDevelopment = environmentDevelopment
	EnvironmentProduction  = environmentProduction
	EnvironmentStaging     = environmentStaging
)

var environmentAliases = map[string]string{
	"dev":   environmentDevelopment,
	"prod":  environmentProduction,
	"stag":  environmentStaging,
	"stage": environmentStaging,
}

// getAppEnvironment reads the application environment from APP_ENV and
// defaults to development when no value is provided.
func getAppEnvironment() string {
	env := strings.ToLower(strings.TrimSpace(os.Getenv(appEnvVar)))
	if env == "" {
		return environmentDevelopment
	}
	if canonical, ok := environmentAliases[env]; ok {
		return canonical
	}
	return env
}

// envSpecificPath returns config/config.<env>.yml for the current environment.
func envSpecificPath() string {
	return "config/config." + getAppEnvironment() + ".yml"
}

// resolveConfigPath picks the environment specific file when the caller asked
// for the default path and that file exists. An explicit path always wins.
// A missing default file resolves to "" so defaults and env vars still apply.
func resolveConfigPath(path string) string {
	if path != "" && path != DefaultConfigPath {
		return path
	}
	if fileExists(envSpecificPath()) {
		return envSpecificPath()
	}
	if path != "" && fileExists(path) {
		return path
	}
	return ""
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// AppEnvironment exposes the current application environment as configured
// through the APP_ENV environment variable.
func AppEnvironment() string {
	return getAppEnvironment()
}

// IsProductionLike reports whether env is production or staging. Those
// environments never read a local .env file.
func IsProductionLike(env string) bool {
	switch env {
	case environmentProduction, environmentStaging:
		return true
	default:
		return false
	}
}
