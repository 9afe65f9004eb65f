// Package config loads quill settings from quill.yaml, QUILL_* environment
// variables and built-in defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	configFileName = "quill"
	configFileType = "yaml"
	configFileExt  = "quill.yaml"
	envPrefix      = "QUILL"
	homeEnv        = "QUILL_HOME"
)

// Config keys.
const (
	KeyDatabasePath            = "database.path"
	KeyLockTimeout             = "locks.timeout"
	KeyLockHeartbeat           = "locks.heartbeat"
	KeyMaxAttempts             = "transcript.max_attempts"
	KeyRetryMaxAttempts        = "retry.max_attempts"
	KeyRetryInitialInterval    = "retry.initial_interval"
	KeyRetryMaxInterval        = "retry.max_interval"
	KeyRequireObligationsClear = "gate.require_obligations_clear"
	KeyWorkerCount             = "workers.count"
	KeyWorkerMaxItems          = "workers.max_items"
	KeyGeneratorCommand        = "generator.command"
	KeyGeneratorArgs           = "generator.args"
	KeyGeneratorTimeout        = "generator.timeout"
	KeyGeneratorProvider       = "generator.provider"
	KeyGeneratorModel          = "generator.model"
	KeyPersonasPath            = "personas.path"
	KeyAgentID                 = "agent.id"
	KeyLogLevel                = "log.level"
)

// DefaultConfigYAML is written by `quill init`.
const DefaultConfigYAML = `# quill configuration

# database:
#   path: ~/.quill/quill.db

locks:
  timeout: 15m
  heartbeat: 1m

transcript:
  max_attempts: 3

retry:
  max_attempts: 5
  initial_interval: 50ms
  max_interval: 2s

gate:
  require_obligations_clear: false

workers:
  count: 1
  max_items: 100

generator:
  command: ""
  args: []
  timeout: 10m
  provider: ""
  model: ""

personas:
  path: ""

log:
  level: info
`

// Config is the resolved configuration.
type Config struct {
	Database   DatabaseConfig   `mapstructure:"database"`
	Locks      LocksConfig      `mapstructure:"locks"`
	Transcript TranscriptConfig `mapstructure:"transcript"`
	Retry      RetryConfig      `mapstructure:"retry"`
	Gate       GateConfig       `mapstructure:"gate"`
	Workers    WorkersConfig    `mapstructure:"workers"`
	Generator  GeneratorConfig  `mapstructure:"generator"`
	Personas   PersonasConfig   `mapstructure:"personas"`
	Agent      AgentConfig      `mapstructure:"agent"`
	Log        LogConfig        `mapstructure:"log"`

	// Home is the directory the config was resolved against.
	Home string `mapstructure:"-"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// LocksConfig controls checkpoint lock staleness. A lock older than Timeout
// may be reclaimed by another worker; holders refresh it every Heartbeat.
type LocksConfig struct {
	Timeout   time.Duration `mapstructure:"timeout"`
	Heartbeat time.Duration `mapstructure:"heartbeat"`
}

// TranscriptConfig holds the per-item generation attempt budget.
type TranscriptConfig struct {
	MaxAttempts int `mapstructure:"max_attempts"`
}

// RetryConfig bounds transparent retries of lock and persistence conflicts.
type RetryConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
}

// GateConfig holds phase advancement policies.
type GateConfig struct {
	RequireObligationsClear bool `mapstructure:"require_obligations_clear"`
}

type WorkersConfig struct {
	Count    int `mapstructure:"count"`
	MaxItems int `mapstructure:"max_items"`
}

// GeneratorConfig points at the external generation command.
type GeneratorConfig struct {
	Command  string        `mapstructure:"command"`
	Args     []string      `mapstructure:"args"`
	Timeout  time.Duration `mapstructure:"timeout"`
	Provider string        `mapstructure:"provider"`
	Model    string        `mapstructure:"model"`
}

type PersonasConfig struct {
	Path string `mapstructure:"path"`
}

type AgentConfig struct {
	ID string `mapstructure:"id"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Home returns the quill home directory: $QUILL_HOME or ~/.quill.
func Home() (string, error) {
	if h := os.Getenv(homeEnv); h != "" {
		return h, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".quill"), nil
}

// New returns a viper instance with defaults and env bindings applied.
func New(home string) *viper.Viper {
	v := viper.New()
	setDefaults(v, home)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func setDefaults(v *viper.Viper, home string) {
	v.SetDefault(KeyDatabasePath, filepath.Join(home, "quill.db"))
	v.SetDefault(KeyLockTimeout, 15*time.Minute)
	v.SetDefault(KeyLockHeartbeat, time.Minute)
	v.SetDefault(KeyMaxAttempts, 3)
	v.SetDefault(KeyRetryMaxAttempts, 5)
	v.SetDefault(KeyRetryInitialInterval, 50*time.Millisecond)
	v.SetDefault(KeyRetryMaxInterval, 2*time.Second)
	v.SetDefault(KeyRequireObligationsClear, false)
	v.SetDefault(KeyWorkerCount, 1)
	v.SetDefault(KeyWorkerMaxItems, 100)
	v.SetDefault(KeyGeneratorCommand, "")
	v.SetDefault(KeyGeneratorArgs, []string{})
	v.SetDefault(KeyGeneratorTimeout, 10*time.Minute)
	v.SetDefault(KeyGeneratorProvider, "")
	v.SetDefault(KeyGeneratorModel, "")
	v.SetDefault(KeyPersonasPath, "")
	v.SetDefault(KeyAgentID, "")
	v.SetDefault(KeyLogLevel, "info")
}

// Load resolves configuration. configFile may be empty, in which case
// quill.yaml is searched for in the working directory and then in home.
// A missing config file is not an error.
func Load(configFile string) (*Config, error) {
	home, err := Home()
	if err != nil {
		return nil, err
	}

	v := New(home)
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(configFileName)
		v.SetConfigType(configFileType)
		v.AddConfigPath(".")
		v.AddConfigPath(home)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	return decode(v, home)
}

func decode(v *viper.Viper, home string) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.Home = home
	cfg.Database.Path = expandHome(cfg.Database.Path)
	cfg.Personas.Path = expandHome(cfg.Personas.Path)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the coordinator cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Database.Path == "" {
		errs = append(errs, fmt.Errorf("%s must be set", KeyDatabasePath))
	}
	if c.Locks.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive", KeyLockTimeout))
	}
	if c.Locks.Heartbeat < 0 || (c.Locks.Heartbeat > 0 && c.Locks.Heartbeat >= c.Locks.Timeout) {
		errs = append(errs, fmt.Errorf("%s must be shorter than %s", KeyLockHeartbeat, KeyLockTimeout))
	}
	if c.Transcript.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("%s must be at least 1", KeyMaxAttempts))
	}
	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("%s must be at least 1", KeyRetryMaxAttempts))
	}
	if c.Retry.InitialInterval <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive", KeyRetryInitialInterval))
	}
	if c.Workers.Count < 1 {
		errs = append(errs, fmt.Errorf("%s must be at least 1", KeyWorkerCount))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// WriteDefault writes DefaultConfigYAML to dir/quill.yaml unless it exists.
// Returns the path and whether a file was written.
func WriteDefault(dir string) (string, bool, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", false, fmt.Errorf("failed to create config dir: %w", err)
	}

	path := filepath.Join(dir, configFileExt)
	_, err := os.Stat(path)
	if err == nil {
		return path, false, nil
	}
	if !os.IsNotExist(err) {
		return "", false, fmt.Errorf("failed to stat config file: %w", err)
	}

	if err := os.WriteFile(path, []byte(DefaultConfigYAML), 0o644); err != nil {
		return "", false, fmt.Errorf("failed to write config: %w", err)
	}
	return path, true, nil
}

func expandHome(path string) string {
	rest, ok := strings.CutPrefix(path, "~/")
	if !ok {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, rest)
}
