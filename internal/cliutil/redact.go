// Package cliutil holds output helpers shared by scriptq commands.
package cliutil

import (
	"regexp"
	"strings"
)

const redactedPlaceholder = "[redacted]"

var (
	secretNameFragments = []string{"PASSWORD", "PASSWD", "SECRET", "TOKEN", "API_KEY", "ACCESS_KEY", "PRIVATE_KEY", "CREDENTIAL"}

	secretAssignPattern = regexp.MustCompile(`(?i)\b([A-Z0-9_]*(?:` + strings.Join(quoteAll(secretNameFragments), "|") + `)[A-Z0-9_]*)(\s*[:=]\s*)(["']?)([^"'\s]+)(["']?)`)
)

func quoteAll(values []string) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = regexp.QuoteMeta(v)
	}
	return out
}

// IsSecretName reports whether an environment variable name looks like it
// carries a credential.
func IsSecretName(name string) bool {
	upper := strings.ToUpper(name)
	for _, fragment := range secretNameFragments {
		if strings.Contains(upper, fragment) {
			return true
		}
	}
	return false
}

// RedactEnv returns a copy of env with credential-looking values masked.
func RedactEnv(env map[string]string) map[string]string {
	if env == nil {
		return nil
	}
	out := make(map[string]string, len(env))
	for k, v := range env {
		if IsSecretName(k) {
			v = redactedPlaceholder
		}
		out[k] = v
	}
	return out
}

// RedactSecrets masks KEY=value assignments whose key looks like a
// credential, keeping the key and any quoting.
func RedactSecrets(message string) string {
	if message == "" {
		return message
	}
	return secretAssignPattern.ReplaceAllString(message, "$1$2$3"+redactedPlaceholder+"$5")
}

// RedactArgs applies RedactSecrets to each argument, for logging argv.
func RedactArgs(args []string) []string {
	out := make([]string, len(args))
	for i, arg := range args {
		out[i] = RedactSecrets(arg)
	}
	return out
}
