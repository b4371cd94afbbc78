// Loads server configuration from a YAML file, a .env file and defaults.

// Package config holds the startup configuration of the server.
//
// Values are layered: defaults, then the optional YAML file, then variables
// from a .env file. Command line flags are applied last by the caller.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Sync modes.
const (
	SyncScript = "script"
	SyncGit    = "git"
	SyncNone   = "none"
)

// Config is the server configuration.
type Config struct {
	HTTP         string    `yaml:"http" jsonschema:"description=Address to listen on,default=0.0.0.0:4747"`
	Secret       string    `yaml:"secret" jsonschema:"required,description=Shared secret expected in the X-Argos-Key header"`
	DataDir      string    `yaml:"data_dir" jsonschema:"description=Directory holding the dataset files,default=./data"`
	LogLevel     string    `yaml:"log_level" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
	MaxBodyBytes int64     `yaml:"max_body_bytes" jsonschema:"description=Maximum request body size in bytes"`
	Sync         Sync      `yaml:"sync"`
	RateLimit    RateLimit `yaml:"rate_limit"`
}

// Sync configures what runs after each successful write.
type Sync struct {
	Mode    string        `yaml:"mode" jsonschema:"enum=script,enum=git,enum=none"`
	Script  string        `yaml:"script" jsonschema:"description=Shell script run with bash in script mode"`
	Timeout time.Duration `yaml:"timeout" jsonschema:"description=Maximum duration of one sync run"`
	Remote  string        `yaml:"remote" jsonschema:"description=Remote URL pushed to in git mode; empty to only commit"`
	Token   string        `yaml:"token" jsonschema:"description=Access token injected in GitHub/GitLab HTTPS remote URLs"`
	Branch  string        `yaml:"branch"`
}

// RateLimit configures the per client IP limit on mutating requests.
type RateLimit struct {
	Requests int           `yaml:"requests" jsonschema:"description=Requests allowed per window; 0 disables rate limiting"`
	Window   time.Duration `yaml:"window"`
	Burst    int           `yaml:"burst"`
}

// Default returns the default configuration. Secret is left empty.
func Default() *Config {
	return &Config{
		HTTP:         "0.0.0.0:4747",
		DataDir:      "./data",
		LogLevel:     "info",
		MaxBodyBytes: 10 << 20,
		Sync: Sync{
			Mode:    SyncScript,
			Script:  "./sync_data.sh",
			Timeout: 30 * time.Second,
		},
		RateLimit: RateLimit{
			Requests: 120,
			Window:   time.Minute,
			Burst:    20,
		},
	}
}

// Load returns the defaults overlaid with the YAML file at path.
//
// An empty path returns the defaults.
func Load(path string) (*Config, error) {
	c := Default()
	if path == "" {
		return c, nil
	}
	raw, err := os.ReadFile(path) //nolint:gosec // G304: path is the -config flag
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return c, nil
}

// ReadDotEnv reads variables from .env files. A variable found in an earlier
// file wins over a later one. Missing files are skipped.
func ReadDotEnv(paths ...string) (map[string]string, error) {
	env := map[string]string{}
	for _, path := range paths {
		m, err := godotenv.Read(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		for k, v := range m {
			if _, ok := env[k]; !ok {
				env[k] = v
			}
		}
	}
	return env, nil
}

// ApplyEnv overrides fields with FAMILYHUB_* variables found in env.
func (c *Config) ApplyEnv(env map[string]string) error {
	str := map[string]*string{
		"FAMILYHUB_HTTP":        &c.HTTP,
		"FAMILYHUB_SECRET":      &c.Secret,
		"FAMILYHUB_DATA_DIR":    &c.DataDir,
		"FAMILYHUB_LOG_LEVEL":   &c.LogLevel,
		"FAMILYHUB_SYNC_MODE":   &c.Sync.Mode,
		"FAMILYHUB_SYNC_SCRIPT": &c.Sync.Script,
		"FAMILYHUB_SYNC_REMOTE": &c.Sync.Remote,
		"FAMILYHUB_SYNC_TOKEN":  &c.Sync.Token,
		"FAMILYHUB_SYNC_BRANCH": &c.Sync.Branch,
	}
	for k, p := range str {
		if v := env[k]; v != "" {
			*p = v
		}
	}
	if v := env["FAMILYHUB_SYNC_TIMEOUT"]; v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("FAMILYHUB_SYNC_TIMEOUT: %w", err)
		}
		c.Sync.Timeout = d
	}
	if v := env["FAMILYHUB_MAX_BODY_BYTES"]; v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("FAMILYHUB_MAX_BODY_BYTES: %w", err)
		}
		c.MaxBodyBytes = n
	}
	if v := env["FAMILYHUB_RATE_LIMIT"]; v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("FAMILYHUB_RATE_LIMIT: %w", err)
		}
		c.RateLimit.Requests = n
	}
	return nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Secret == "" {
		return errors.New("secret is required")
	}
	if c.DataDir == "" {
		return errors.New("data_dir is required")
	}
	if _, err := c.Port(); err != nil {
		return err
	}
	switch c.Sync.Mode {
	case SyncScript:
		if c.Sync.Script == "" {
			return errors.New("sync.script is required in script mode")
		}
	case SyncGit, SyncNone:
	default:
		return fmt.Errorf("unknown sync mode: %q", c.Sync.Mode)
	}
	if c.Sync.Mode != SyncNone && c.Sync.Timeout <= 0 {
		return errors.New("sync.timeout must be positive")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level: %q", c.LogLevel)
	}
	if c.MaxBodyBytes < 0 {
		return errors.New("max_body_bytes must not be negative")
	}
	if c.RateLimit.Requests < 0 {
		return errors.New("rate_limit.requests must not be negative")
	}
	if c.RateLimit.Requests > 0 && (c.RateLimit.Window <= 0 || c.RateLimit.Burst <= 0) {
		return errors.New("rate_limit.window and rate_limit.burst must be positive")
	}
	return nil
}

// Port returns the port part of HTTP.
func (c *Config) Port() (int, error) {
	_, p, err := net.SplitHostPort(c.HTTP)
	if err != nil {
		return 0, fmt.Errorf("invalid http address %q: %w", c.HTTP, err)
	}
	port, err := strconv.Atoi(p)
	if err != nil || port < 0 || port > 65535 {
		return 0, fmt.Errorf("invalid port in http address %q", c.HTTP)
	}
	return port, nil
}

// Schema returns the JSON schema of the configuration file.
func Schema() ([]byte, error) {
	r := &jsonschema.Reflector{
		FieldNameTag:               "yaml",
		DoNotReference:             true,
		RequiredFromJSONSchemaTags: true,
	}
	return json.MarshalIndent(r.Reflect(&Config{}), "", "  ")
}
