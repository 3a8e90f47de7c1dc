package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
)

// Wait strategies and reap modes accepted in configuration files. They match
// the values the supervisor understands.
const (
	WaitCond    = "cond"
	WaitSuspend = "suspend"

	ReapTracked = "tracked"
	ReapAny     = "any"

	FormatAuto    = "auto"
	FormatConsole = "console"
	FormatJSON    = "json"
)

var logLevels = map[string]struct{}{
	"trace":    {},
	"debug":    {},
	"info":     {},
	"warn":     {},
	"error":    {},
	"disabled": {},
}

// Config is the top level scriptq configuration document.
type Config struct {
	WaitStrategy string  `yaml:"waitStrategy"`
	ReapMode     string  `yaml:"reapMode"`
	Log          Log     `yaml:"log"`
	Metrics      Metrics `yaml:"metrics"`
	Child        Child   `yaml:"child"`
}

// Log selects the diagnostic log level and encoding.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Metrics configures the optional Prometheus endpoint. An empty Addr leaves
// it disabled.
type Metrics struct {
	Addr string `yaml:"addr"`
}

// Child describes the environment and working directory given to children
// started by the fan command.
type Child struct {
	Env         map[string]string `yaml:"env"`
	EnvFromFile string            `yaml:"envFromFile"`
	Workdir     string            `yaml:"workdir"`
}

// Default returns a configuration with every field at its default.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.WaitStrategy == "" {
		c.WaitStrategy = WaitCond
	}
	if c.ReapMode == "" {
		c.ReapMode = ReapTracked
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = FormatAuto
	}
}

// Validate reports every invalid field of c.
func (c *Config) Validate() error {
	var errs []error
	switch c.WaitStrategy {
	case WaitCond, WaitSuspend:
	default:
		errs = append(errs, fmt.Errorf("waitStrategy: unsupported value %q", c.WaitStrategy))
	}
	switch c.ReapMode {
	case ReapTracked, ReapAny:
	default:
		errs = append(errs, fmt.Errorf("reapMode: unsupported value %q", c.ReapMode))
	}
	if _, ok := logLevels[strings.ToLower(c.Log.Level)]; !ok {
		errs = append(errs, fmt.Errorf("log.level: unsupported value %q", c.Log.Level))
	}
	switch c.Log.Format {
	case FormatAuto, FormatConsole, FormatJSON:
	default:
		errs = append(errs, fmt.Errorf("log.format: unsupported value %q", c.Log.Format))
	}
	for key := range c.Child.Env {
		if key == "" || strings.ContainsAny(key, "=\x00") {
			errs = append(errs, fmt.Errorf("child.env: invalid key %q", key))
		}
	}
	return errors.Join(errs...)
}

// Environ returns the host environment overlaid with the child overrides,
// in the KEY=value form exec expects. Overridden keys keep a single entry.
func (c Child) Environ() []string {
	base := os.Environ()
	if len(c.Env) == 0 {
		return base
	}
	out := make([]string, 0, len(base)+len(c.Env))
	for _, kv := range base {
		key, _, _ := strings.Cut(kv, "=")
		if _, overridden := c.Env[key]; overridden {
			continue
		}
		out = append(out, kv)
	}
	keys := make([]string, 0, len(c.Env))
	for k := range c.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out = append(out, k+"="+c.Env[k])
	}
	return out
}
