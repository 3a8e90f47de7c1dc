package config

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Environment variables that override the configuration file.
const (
	EnvWaitStrategy = "SCRIPTQ_WAIT_STRATEGY"
	EnvReapMode     = "SCRIPTQ_REAP_MODE"
	EnvLogLevel     = "SCRIPTQ_LOG_LEVEL"
	EnvLogFormat    = "SCRIPTQ_LOG_FORMAT"
	EnvMetricsAddr  = "SCRIPTQ_METRICS_ADDR"
)

// Load reads the configuration at path, applies environment overrides and
// defaults, and validates the result. An empty path yields the defaults with
// environment overrides applied.
func Load(path string) (*Config, error) {
	if path == "" {
		cfg := &Config{}
		applyEnv(cfg)
		cfg.ApplyDefaults()
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return cfg, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("open config file: %w", err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%s: decode: %w", absPath, err)
	}
	if raw == nil {
		raw = map[string]any{}
	}
	if err := validateAgainstSchema(raw); err != nil {
		return nil, fmt.Errorf("%s: %w", absPath, err)
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	var cfg Config
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%s: decode: %w", absPath, err)
	}

	if err := resolveChild(&cfg.Child, filepath.Dir(absPath)); err != nil {
		return nil, fmt.Errorf("%s: %w", absPath, err)
	}
	applyEnv(&cfg)
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", absPath, err)
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	if value := strings.TrimSpace(os.Getenv(EnvWaitStrategy)); value != "" {
		cfg.WaitStrategy = strings.ToLower(value)
	}
	if value := strings.TrimSpace(os.Getenv(EnvReapMode)); value != "" {
		cfg.ReapMode = strings.ToLower(value)
	}
	if value := strings.TrimSpace(os.Getenv(EnvLogLevel)); value != "" {
		cfg.Log.Level = strings.ToLower(value)
	}
	if value := strings.TrimSpace(os.Getenv(EnvLogFormat)); value != "" {
		cfg.Log.Format = strings.ToLower(value)
	}
	if value, ok := os.LookupEnv(EnvMetricsAddr); ok {
		cfg.Metrics.Addr = strings.TrimSpace(value)
	}
}

// resolveChild expands environment references in the child section, makes
// relative paths relative to the configuration directory and merges the env
// file beneath the inline values.
func resolveChild(child *Child, base string) error {
	child.Workdir = resolveWorkdir(base, os.ExpandEnv(child.Workdir))

	var inline map[string]string
	if len(child.Env) > 0 {
		inline = make(map[string]string, len(child.Env))
		for k, v := range child.Env {
			inline[k] = os.ExpandEnv(v)
		}
	}

	var fromFile map[string]string
	if child.EnvFromFile != "" {
		expanded := os.ExpandEnv(child.EnvFromFile)
		if !filepath.IsAbs(expanded) {
			expanded = filepath.Clean(filepath.Join(child.Workdir, expanded))
		}
		child.EnvFromFile = expanded

		var err error
		fromFile, err = loadEnvFile(expanded)
		if err != nil {
			return fmt.Errorf("child.envFromFile: %w", err)
		}
	}

	if len(inline) == 0 && len(fromFile) == 0 {
		child.Env = nil
		return nil
	}
	merged := make(map[string]string, len(inline)+len(fromFile))
	for k, v := range fromFile {
		merged[k] = v
	}
	for k, v := range inline {
		merged[k] = v
	}
	child.Env = merged
	return nil
}

func resolveWorkdir(base, workdir string) string {
	if workdir == "" {
		return base
	}
	if filepath.IsAbs(workdir) {
		return filepath.Clean(workdir)
	}
	return filepath.Clean(filepath.Join(base, workdir))
}

func loadEnvFile(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("load env file %q: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	values := make(map[string]string)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		key, value, ok := strings.Cut(line, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("load env file %q: invalid line %d", path, lineNo)
		}
		value, err := unquoteEnvValue(strings.TrimSpace(value))
		if err != nil {
			return nil, fmt.Errorf("load env file %q: %s on line %d: %w", path, key, lineNo, err)
		}
		values[key] = os.ExpandEnv(value)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("load env file %q: %w", path, err)
	}
	return values, nil
}

func unquoteEnvValue(value string) (string, error) {
	switch {
	case strings.HasPrefix(value, `"`):
		if len(value) < 2 || !strings.HasSuffix(value, `"`) {
			return "", errors.New("unmatched quote")
		}
		return strconv.Unquote(value)
	case strings.HasPrefix(value, "'"):
		if len(value) < 2 || !strings.HasSuffix(value, "'") {
			return "", errors.New("unmatched quote")
		}
		return value[1 : len(value)-1], nil
	}
	if comment := strings.IndexRune(value, '#'); comment >= 0 {
		value = strings.TrimSpace(value[:comment])
	}
	return value, nil
}
