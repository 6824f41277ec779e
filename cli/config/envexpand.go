// Package config handles buildout.yaml loading.
package config

import (
	"os"
	"regexp"
)

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
// - ${VAR} expands to the env var value, or empty string if unset
// - ${VAR:-default} expands to the env var value, or "default" if unset/empty
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// ExpandEnv replaces ${VAR} and ${VAR:-default} patterns in the input string
// with their corresponding environment variable values.
// Unset variables without defaults expand to empty string.
func ExpandEnv(input string) string {
	return ExpandEnvWith(input, nil)
}

// ExpandEnvWith is ExpandEnv with fallback values consulted when a
// variable is unset or empty in the process environment. The process
// environment always wins.
func ExpandEnvWith(input string, fallback map[string]string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}

		varName := groups[1]
		if value, ok := os.LookupEnv(varName); ok && value != "" {
			return value
		}
		if value := fallback[varName]; value != "" {
			return value
		}

		if len(groups) >= 3 && groups[2] != "" {
			return groups[2]
		}
		return ""
	})
}
