// Package config provides configuration management for the Heimdex Aligner.
// Defaults are overridden by an optional YAML file, then by environment
// variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// Default values
	DefaultPort          = 8787
	DefaultLogLevel      = "info"
	DefaultDataDir       = ".heimdex-aligner"
	DefaultMaxConcurrent = 2
	DefaultPollInterval  = 5 * time.Second
	DefaultJobTimeout    = 5 * time.Minute

	// Environment variable names
	EnvConfigFile      = "ALIGNER_CONFIG"
	EnvPort            = "ALIGNER_PORT"
	EnvLogLevel        = "ALIGNER_LOG_LEVEL"
	EnvDataDir         = "ALIGNER_DATA_DIR"
	EnvStoreRoot       = "ALIGNER_STORE_ROOT"
	EnvInboxDir        = "ALIGNER_INBOX_DIR"
	EnvDownstreamURL   = "ALIGNER_DOWNSTREAM_URL"
	EnvDownstreamToken = "ALIGNER_DOWNSTREAM_TOKEN"
	EnvMaxConcurrent   = "ALIGNER_MAX_CONCURRENT"
	EnvPollInterval    = "ALIGNER_POLL_INTERVAL"
	EnvJobTimeout      = "ALIGNER_JOB_TIMEOUT"

	DBFilename   = "aligner.db"
	LockFilename = "aligner.lock"
)

// Config defines the application configuration interface
type Config interface {
	Port() int
	LogLevel() string
	DataDir() string
	DBPath() string
	LockPath() string
	StoreRoot() string
	InboxDir() string
	DownstreamURL() string
	DownstreamToken() string
	MaxConcurrent() int
	PollInterval() time.Duration
	JobTimeout() time.Duration
}

// fileConfig mirrors the YAML file. Zero values mean "not set".
type fileConfig struct {
	Server struct {
		Port     int    `yaml:"port"`
		LogLevel string `yaml:"log_level"`
	} `yaml:"server"`
	Paths struct {
		Data      string `yaml:"data"`
		StoreRoot string `yaml:"store_root"`
		Inbox     string `yaml:"inbox"`
	} `yaml:"paths"`
	Downstream struct {
		URL   string `yaml:"url"`
		Token string `yaml:"token"`
	} `yaml:"downstream"`
	Jobs struct {
		MaxConcurrent int    `yaml:"max_concurrent"`
		PollInterval  string `yaml:"poll_interval"`
		Timeout       string `yaml:"timeout"`
	} `yaml:"jobs"`
}

// EnvConfig holds the resolved configuration.
type EnvConfig struct {
	port          int
	logLevel      string
	dataDir       string
	storeRoot     string
	inboxDir      string
	maxConcurrent int
	pollInterval  time.Duration
	jobTimeout    time.Duration

	downstreamURL   string
	downstreamToken string

	source string
}

// New loads configuration. path names a YAML file; when empty the
// ALIGNER_CONFIG variable is consulted, and when that is empty too only
// defaults and environment variables apply.
func New(path string) (*EnvConfig, error) {
	cfg := &EnvConfig{
		port:          DefaultPort,
		logLevel:      DefaultLogLevel,
		dataDir:       defaultDataDir(),
		maxConcurrent: DefaultMaxConcurrent,
		pollInterval:  DefaultPollInterval,
		jobTimeout:    DefaultJobTimeout,
	}

	if path == "" {
		path = os.Getenv(EnvConfigFile)
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
		cfg.source = path
	}

	if err := cfg.loadEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *EnvConfig) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	if fc.Server.Port != 0 {
		c.port = fc.Server.Port
	}
	setString(&c.logLevel, fc.Server.LogLevel)
	setString(&c.dataDir, fc.Paths.Data)
	setString(&c.storeRoot, fc.Paths.StoreRoot)
	setString(&c.inboxDir, fc.Paths.Inbox)
	setString(&c.downstreamURL, fc.Downstream.URL)
	setString(&c.downstreamToken, fc.Downstream.Token)
	if fc.Jobs.MaxConcurrent != 0 {
		c.maxConcurrent = fc.Jobs.MaxConcurrent
	}
	if err := setDuration(&c.pollInterval, fc.Jobs.PollInterval, "jobs.poll_interval"); err != nil {
		return err
	}
	if err := setDuration(&c.jobTimeout, fc.Jobs.Timeout, "jobs.timeout"); err != nil {
		return err
	}
	return nil
}

func (c *EnvConfig) loadEnv() error {
	if p := os.Getenv(EnvPort); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvPort, err)
		}
		c.port = port
	}
	if n := os.Getenv(EnvMaxConcurrent); n != "" {
		v, err := strconv.Atoi(n)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvMaxConcurrent, err)
		}
		c.maxConcurrent = v
	}

	setString(&c.logLevel, os.Getenv(EnvLogLevel))
	setString(&c.dataDir, os.Getenv(EnvDataDir))
	setString(&c.storeRoot, os.Getenv(EnvStoreRoot))
	setString(&c.inboxDir, os.Getenv(EnvInboxDir))
	setString(&c.downstreamURL, os.Getenv(EnvDownstreamURL))
	setString(&c.downstreamToken, os.Getenv(EnvDownstreamToken))

	if err := setDuration(&c.pollInterval, os.Getenv(EnvPollInterval), EnvPollInterval); err != nil {
		return err
	}
	return setDuration(&c.jobTimeout, os.Getenv(EnvJobTimeout), EnvJobTimeout)
}

// Validate checks ranges on the resolved values.
func (c *EnvConfig) Validate() error {
	var errs []error
	if c.port < 1 || c.port > 65535 {
		errs = append(errs, fmt.Errorf("port must be between 1 and 65535, got %d", c.port))
	}
	if c.maxConcurrent < 1 {
		errs = append(errs, fmt.Errorf("max concurrent jobs must be at least 1, got %d", c.maxConcurrent))
	}
	if c.pollInterval <= 0 {
		errs = append(errs, fmt.Errorf("poll interval must be positive, got %s", c.pollInterval))
	}
	if c.jobTimeout <= 0 {
		errs = append(errs, fmt.Errorf("job timeout must be positive, got %s", c.jobTimeout))
	}
	switch strings.ToLower(c.logLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("unknown log level %q", c.logLevel))
	}
	if c.downstreamURL != "" && !strings.HasPrefix(c.downstreamURL, "http://") && !strings.HasPrefix(c.downstreamURL, "https://") {
		errs = append(errs, fmt.Errorf("downstream url must be http or https, got %q", c.downstreamURL))
	}
	return errors.Join(errs...)
}

func setString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v, name string) error {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	*dst = d
	return nil
}

func (c *EnvConfig) Port() int {
	return c.port
}

// LogLevel returns the log level (debug, info, warn, error)
func (c *EnvConfig) LogLevel() string {
	return c.logLevel
}

func (c *EnvConfig) DataDir() string {
	return c.dataDir
}

// DBPath returns the full path to the SQLite database file
func (c *EnvConfig) DBPath() string {
	return filepath.Join(c.dataDir, DBFilename)
}

// LockPath returns the file used to keep a single daemon per data directory.
func (c *EnvConfig) LockPath() string {
	return filepath.Join(c.dataDir, LockFilename)
}

// StoreRoot is the local mirror that s3:// URIs resolve into. Defaults to
// <data dir>/objects.
func (c *EnvConfig) StoreRoot() string {
	if c.storeRoot != "" {
		return c.storeRoot
	}
	return filepath.Join(c.dataDir, "objects")
}

// InboxDir returns the watched directory, or "" when watching is disabled.
func (c *EnvConfig) InboxDir() string {
	return c.inboxDir
}

func (c *EnvConfig) DownstreamURL() string {
	return c.downstreamURL
}

func (c *EnvConfig) DownstreamToken() string {
	return c.downstreamToken
}

func (c *EnvConfig) MaxConcurrent() int {
	return c.maxConcurrent
}

func (c *EnvConfig) PollInterval() time.Duration {
	return c.pollInterval
}

func (c *EnvConfig) JobTimeout() time.Duration {
	return c.jobTimeout
}

// Source returns the config file that was loaded, if any.
func (c *EnvConfig) Source() string {
	return c.source
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return DefaultDataDir
	}
	return filepath.Join(home, DefaultDataDir)
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
