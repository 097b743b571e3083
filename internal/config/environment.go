package config

import (
	"os"
	"path/filepath"
	"strings"
)

const appEnvVar = "APP_ENV"

const (
	EnvironmentDevelopment = "development"
	EnvironmentProduction  = "production"
	EnvironmentStaging     = "staging"
	EnvironmentTest        = "test"
)

var environmentAliases = map[string]string{
	"dev":   EnvironmentDevelopment,
	"prod":  EnvironmentProduction,
	"stag":  EnvironmentStaging,
	"stage": EnvironmentStaging,
	"tst":   EnvironmentTest,
}

// AppEnvironment returns the canonical APP_ENV value, development when unset.
func AppEnvironment() string {
	return AppEnvironmentOr(EnvironmentDevelopment)
}

// AppEnvironmentOr is AppEnvironment with a caller-chosen fallback.
func AppEnvironmentOr(fallback string) string {
	env := strings.ToLower(strings.TrimSpace(os.Getenv(appEnvVar)))
	if env == "" {
		return fallback
	}
	if canonical, ok := environmentAliases[env]; ok {
		return canonical
	}
	return env
}

// resolveEnvSpecificPath returns config.<env>.yaml next to path when
// APP_ENV is set and that file exists.
func resolveEnvSpecificPath(path string) string {
	if path == "" {
		path = DefaultPath
	}
	if os.Getenv(appEnvVar) == "" {
		return path
	}
	ext := filepath.Ext(path)
	candidate := strings.TrimSuffix(path, ext) + "." + AppEnvironment() + ext
	if _, err := os.Stat(candidate); err == nil {
		return candidate
	}
	return path
}
